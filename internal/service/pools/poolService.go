package poolService

import (
	"math"
	"net/http"

	"github.com/dustin/go-humanize"
	"github.com/gorilla/mux"

	"github.com/calcutta/console/internal/format"
	"github.com/calcutta/console/internal/logger"
	"github.com/calcutta/console/internal/middleware"
	"github.com/calcutta/console/internal/models"
	"github.com/calcutta/console/internal/respond"
	"github.com/calcutta/console/internal/upstream"
)

// PoolService serves the pool listing and standings views.
type PoolService struct {
	API *upstream.Client
	Log *logger.Logger
}

func NewPoolService(api *upstream.Client) *PoolService {
	return &PoolService{API: api, Log: logger.NewLogger("pool-service")}
}

// PoolCard is a pool in the listing.
type PoolCard struct {
	models.Pool
	PotDisplay string `json:"pot_display"`
}

// StandingRow is an entry's line in the standings table.
type StandingRow struct {
	models.PoolStanding
	ExpectedPayoutMetric format.Metric `json:"expected_payout_metric"`
	PInMoneyMetric       format.Metric `json:"p_in_money_metric"`
	ROI                  format.Metric `json:"roi"`
}

// PoolView is a pool with formatted standings.
type PoolView struct {
	PoolCard
	Standings []StandingRow `json:"standings"`
}

func potDisplay(v float64) string {
	return "$" + humanize.CommafWithDigits(v, 2)
}

// RealizedROI is payout over investment, NaN when either is unknown.
func RealizedROI(s models.PoolStanding) float64 {
	if s.Payout == nil || s.Investment == 0 {
		return math.NaN()
	}
	return *s.Payout / s.Investment
}

// BuildStandings formats standings in the API's finish order.
func BuildStandings(standings []models.PoolStanding) []StandingRow {
	rows := make([]StandingRow, 0, len(standings))
	for _, s := range standings {
		rows = append(rows, StandingRow{
			PoolStanding:         s,
			ExpectedPayoutMetric: format.PayoutMetric(s.ExpectedPayout),
			PInMoneyMetric:       format.PctMetric(s.PInMoney),
			ROI:                  format.RoiMetric(RealizedROI(s)),
		})
	}
	return rows
}

// ListPools returns the caller's pools
func (ps *PoolService) ListPools(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	pools, err := ps.API.ListPools(ctx, middleware.TokenFromContext(ctx))
	if err != nil {
		ps.Log.WithContext(ctx).Error("Failed to list pools", "error", err)
		respond.Upstream(w, err)
		return
	}

	cards := make([]PoolCard, 0, len(pools))
	for _, p := range pools {
		cards = append(cards, PoolCard{Pool: p, PotDisplay: potDisplay(p.TotalPot)})
	}
	respond.JSON(w, http.StatusOK, map[string]interface{}{"pools": cards})
}

// GetPool returns one pool with its standings
func (ps *PoolService) GetPool(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	poolID := mux.Vars(r)["id"]

	detail, err := ps.API.GetPool(ctx, middleware.TokenFromContext(ctx), poolID)
	if err != nil {
		ps.Log.WithContext(ctx).Error("Failed to get pool", "error", err, "pool_id", poolID)
		respond.Upstream(w, err)
		return
	}

	respond.JSON(w, http.StatusOK, PoolView{
		PoolCard:  PoolCard{Pool: detail.Pool, PotDisplay: potDisplay(detail.TotalPot)},
		Standings: BuildStandings(detail.Standings),
	})
}
