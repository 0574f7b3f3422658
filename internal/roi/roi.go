// Package roi joins an entry's bids with a model's predictions and derives
// the per-team ROI table shown in the lab.
package roi

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/calcutta/console/internal/models"
)

// Row is one team in the ROI table.
type Row struct {
	TeamID               string  `json:"team_id"`
	SchoolName           string  `json:"school_name"`
	Seed                 int     `json:"seed"`
	Region               string  `json:"region"`
	PredictedPerformance float64 `json:"predicted_performance"`
	PredictedInvestment  float64 `json:"predicted_investment"`
	OurInvestment        float64 `json:"our_investment"`
	PredictedROI         float64 `json:"predicted_roi"`
	AdjustedROI          float64 `json:"adjusted_roi"`
}

// Join builds one row per team found in either input. Teams keep prediction
// order, followed by teams that only have a bid.
func Join(bids []models.Bid, predictions []models.Prediction) []Row {
	byTeam := make(map[string]models.Bid, len(bids))
	for _, b := range bids {
		byTeam[b.TeamID] = b
	}

	rows := make([]Row, 0, len(predictions)+len(bids))
	seen := make(map[string]bool, len(predictions))
	for _, p := range predictions {
		if seen[p.TeamID] {
			continue
		}
		seen[p.TeamID] = true
		row := Row{
			TeamID:               p.TeamID,
			SchoolName:           p.SchoolName,
			Seed:                 p.Seed,
			Region:               p.Region,
			PredictedPerformance: p.ExpectedPoints,
			PredictedInvestment:  p.PredictedMarketPoints,
		}
		if b, ok := byTeam[p.TeamID]; ok {
			applyBid(&row, b)
		}
		rows = append(rows, derive(row))
	}
	for _, b := range bids {
		if seen[b.TeamID] {
			continue
		}
		seen[b.TeamID] = true
		row := Row{TeamID: b.TeamID}
		applyBid(&row, b)
		rows = append(rows, derive(row))
	}
	return rows
}

func applyBid(row *Row, b models.Bid) {
	row.OurInvestment = b.BidPoints
	if b.SchoolName != "" {
		row.SchoolName = b.SchoolName
	}
	if b.Seed != 0 {
		row.Seed = b.Seed
	}
	if b.Region != "" {
		row.Region = b.Region
	}
}

func derive(row Row) Row {
	row.PredictedROI = ratio(row.PredictedPerformance, row.PredictedInvestment)
	row.AdjustedROI = ratio(row.PredictedPerformance, row.PredictedInvestment+row.OurInvestment)
	return row
}

func ratio(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}

// SortKey names a sortable column.
type SortKey string

const (
	SortSeed                 SortKey = "seed"
	SortTeam                 SortKey = "team"
	SortPredictedPerformance SortKey = "predicted_performance"
	SortPredictedInvestment  SortKey = "predicted_investment"
	SortOurInvestment        SortKey = "our_investment"
	SortPredictedROI         SortKey = "predicted_roi"
	SortAdjustedROI          SortKey = "adjusted_roi"
)

// ParseSortKey validates a column name from a query string.
func ParseSortKey(s string) (SortKey, error) {
	k := SortKey(strings.ToLower(strings.TrimSpace(s)))
	switch k {
	case SortSeed, SortTeam, SortPredictedPerformance, SortPredictedInvestment,
		SortOurInvestment, SortPredictedROI, SortAdjustedROI:
		return k, nil
	}
	return "", fmt.Errorf("unknown sort key %q", s)
}

// DefaultDesc reports the direction a column starts in when first selected.
func (k SortKey) DefaultDesc() bool {
	return k != SortSeed && k != SortTeam
}

// Sort is the table's sort state.
type Sort struct {
	Key  SortKey `json:"key"`
	Desc bool    `json:"desc"`
}

// DefaultSort orders the table by adjusted ROI, best first.
var DefaultSort = Sort{Key: SortAdjustedROI, Desc: true}

// Toggle returns the state after a column header is selected: the same
// column flips direction, a new column starts in its default direction.
func (s Sort) Toggle(key SortKey) Sort {
	if s.Key == key {
		return Sort{Key: key, Desc: !s.Desc}
	}
	return Sort{Key: key, Desc: key.DefaultDesc()}
}

// Apply returns a stably sorted copy of rows.
func Apply(rows []Row, s Sort) []Row {
	out := slices.Clone(rows)
	slices.SortStableFunc(out, func(a, b Row) int {
		c := compare(a, b, s.Key)
		if s.Desc {
			return -c
		}
		return c
	})
	return out
}

func compare(a, b Row, key SortKey) int {
	switch key {
	case SortSeed:
		return cmp.Compare(a.Seed, b.Seed)
	case SortTeam:
		return strings.Compare(a.SchoolName, b.SchoolName)
	case SortPredictedPerformance:
		return cmp.Compare(a.PredictedPerformance, b.PredictedPerformance)
	case SortPredictedInvestment:
		return cmp.Compare(a.PredictedInvestment, b.PredictedInvestment)
	case SortOurInvestment:
		return cmp.Compare(a.OurInvestment, b.OurInvestment)
	case SortPredictedROI:
		return cmp.Compare(a.PredictedROI, b.PredictedROI)
	case SortAdjustedROI:
		return cmp.Compare(a.AdjustedROI, b.AdjustedROI)
	}
	return 0
}

// FilterInvested drops rows the entry put nothing on.
func FilterInvested(rows []Row) []Row {
	out := make([]Row, 0, len(rows))
	for _, r := range rows {
		if r.OurInvestment != 0 {
			out = append(out, r)
		}
	}
	return out
}

// Summary aggregates the rows an entry invested in.
type Summary struct {
	TotalInvested        float64 `json:"total_invested"`
	WeightedPredictedROI float64 `json:"weighted_predicted_roi"`
	WeightedAdjustedROI  float64 `json:"weighted_adjusted_roi"`
	TopAdjusted          []Row   `json:"top_adjusted"`
}

const topN = 3

// Summarize computes investment-weighted ROI over rows with a positive bid.
func Summarize(rows []Row) Summary {
	var (
		invested []Row
		total    float64
		predSum  float64
		adjSum   float64
	)
	for _, r := range rows {
		if r.OurInvestment <= 0 {
			continue
		}
		invested = append(invested, r)
		total += r.OurInvestment
		predSum += r.PredictedROI * r.OurInvestment
		adjSum += r.AdjustedROI * r.OurInvestment
	}

	s := Summary{TotalInvested: total, TopAdjusted: []Row{}}
	if total > 0 {
		s.WeightedPredictedROI = predSum / total
		s.WeightedAdjustedROI = adjSum / total
	}
	top := Apply(invested, Sort{Key: SortAdjustedROI, Desc: true})
	if len(top) > topN {
		top = top[:topN]
	}
	if len(top) > 0 {
		s.TopAdjusted = top
	}
	return s
}

// Table is the assembled ROI view.
type Table struct {
	Sort     Sort    `json:"sort"`
	HideZero bool    `json:"hide_zero"`
	Rows     []Row   `json:"rows"`
	Summary  Summary `json:"summary"`
}

// Build joins, filters and sorts in the order the lab view applies them.
// The summary always covers every invested row, independent of the filter.
func Build(bids []models.Bid, predictions []models.Prediction, s Sort, hideZero bool) Table {
	rows := Join(bids, predictions)
	summary := Summarize(rows)
	if hideZero {
		rows = FilterInvested(rows)
	}
	return Table{Sort: s, HideZero: hideZero, Rows: Apply(rows, s), Summary: summary}
}
