package analyticsService

import (
	"cmp"
	"math"
	"net/http"
	"slices"
	"strings"

	"github.com/gorilla/mux"

	"github.com/calcutta/console/internal/format"
	"github.com/calcutta/console/internal/logger"
	"github.com/calcutta/console/internal/middleware"
	"github.com/calcutta/console/internal/models"
	"github.com/calcutta/console/internal/respond"
	"github.com/calcutta/console/internal/upstream"
)

// AnalyticsService serves the pool analytics tables.
type AnalyticsService struct {
	API *upstream.Client
	Log *logger.Logger
}

func NewAnalyticsService(api *upstream.Client) *AnalyticsService {
	return &AnalyticsService{API: api, Log: logger.NewLogger("analytics-service")}
}

// TeamRow is a team with its market ROI.
type TeamRow struct {
	models.TeamAnalytics
	ROIValue float64       `json:"-"`
	ROI      format.Metric `json:"roi"`
}

// SeedRow aggregates the teams sharing a seed line.
type SeedRow struct {
	Seed            int           `json:"seed"`
	Teams           int           `json:"teams"`
	TotalInvestment float64       `json:"total_investment"`
	TotalReturns    float64       `json:"total_returns"`
	PooledROI       format.Metric `json:"pooled_roi"`
	MeanROI         format.Metric `json:"mean_roi"`
	ROIVariance     float64       `json:"roi_variance"`
}

// TeamROI is returns over investment; NaN when nothing was invested.
func TeamROI(t models.TeamAnalytics) float64 {
	if t.TotalInvestment == 0 {
		return math.NaN()
	}
	return t.Returns / t.TotalInvestment
}

// BuildTeamRows derives ROI for every team.
func BuildTeamRows(teams []models.TeamAnalytics) []TeamRow {
	rows := make([]TeamRow, 0, len(teams))
	for _, t := range teams {
		v := TeamROI(t)
		rows = append(rows, TeamRow{TeamAnalytics: t, ROIValue: v, ROI: format.RoiMetric(v)})
	}
	return rows
}

var sortColumns = map[string]func(a, b TeamRow) int{
	"seed":       func(a, b TeamRow) int { return cmp.Compare(a.Seed, b.Seed) },
	"team":       func(a, b TeamRow) int { return strings.Compare(a.SchoolName, b.SchoolName) },
	"wins":       func(a, b TeamRow) int { return cmp.Compare(a.Wins, b.Wins) },
	"investment": func(a, b TeamRow) int { return cmp.Compare(a.TotalInvestment, b.TotalInvestment) },
	"returns":    func(a, b TeamRow) int { return cmp.Compare(a.Returns, b.Returns) },
	"roi":        func(a, b TeamRow) int { return cmp.Compare(a.ROIValue, b.ROIValue) },
}

// SortTeamRows stably sorts rows in place. Unknown columns fall back to ROI.
func SortTeamRows(rows []TeamRow, column string, desc bool) {
	less, ok := sortColumns[column]
	if !ok {
		less = sortColumns["roi"]
	}
	slices.SortStableFunc(rows, func(a, b TeamRow) int {
		if desc {
			return -less(a, b)
		}
		return less(a, b)
	})
}

// BuildSeedRows groups teams by seed. Mean and variance cover only teams
// with a finite ROI; variance is the population variance.
func BuildSeedRows(rows []TeamRow) []SeedRow {
	type acc struct {
		teams      int
		investment float64
		returns    float64
		rois       []float64
	}
	bySeed := map[int]*acc{}
	for _, r := range rows {
		a, ok := bySeed[r.Seed]
		if !ok {
			a = &acc{}
			bySeed[r.Seed] = a
		}
		a.teams++
		a.investment += r.TotalInvestment
		a.returns += r.Returns
		if !math.IsNaN(r.ROIValue) && !math.IsInf(r.ROIValue, 0) {
			a.rois = append(a.rois, r.ROIValue)
		}
	}

	seeds := make([]int, 0, len(bySeed))
	for s := range bySeed {
		seeds = append(seeds, s)
	}
	slices.Sort(seeds)

	out := make([]SeedRow, 0, len(seeds))
	for _, s := range seeds {
		a := bySeed[s]
		mean, variance := meanVariance(a.rois)
		pooled := math.NaN()
		if a.investment != 0 {
			pooled = a.returns / a.investment
		}
		out = append(out, SeedRow{
			Seed:            s,
			Teams:           a.teams,
			TotalInvestment: a.investment,
			TotalReturns:    a.returns,
			PooledROI:       format.RoiMetric(pooled),
			MeanROI:         format.RoiMetric(mean),
			ROIVariance:     variance,
		})
	}
	return out
}

func meanVariance(xs []float64) (float64, float64) {
	if len(xs) == 0 {
		return math.NaN(), 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean := sum / float64(len(xs))
	var sq float64
	for _, x := range xs {
		sq += (x - mean) * (x - mean)
	}
	return mean, sq / float64(len(xs))
}

// TeamAnalytics returns the team and seed tables for a pool
func (as *AnalyticsService) TeamAnalytics(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	poolID := mux.Vars(r)["id"]

	teams, err := as.API.TeamAnalytics(ctx, middleware.TokenFromContext(ctx), poolID)
	if err != nil {
		as.Log.WithContext(ctx).Error("Failed to load team analytics", "error", err, "pool_id", poolID)
		respond.Upstream(w, err)
		return
	}

	column := r.URL.Query().Get("sort")
	if column == "" {
		column = "roi"
	}
	desc := r.URL.Query().Get("dir") != "asc"

	rows := BuildTeamRows(teams)
	seeds := BuildSeedRows(rows)
	SortTeamRows(rows, column, desc)

	respond.JSON(w, http.StatusOK, map[string]interface{}{
		"pool_id": poolID,
		"sort":    map[string]interface{}{"key": column, "desc": desc},
		"teams":   rows,
		"seeds":   seeds,
	})
}
