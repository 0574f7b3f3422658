package labService

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"golang.org/x/sync/errgroup"

	"github.com/calcutta/console/internal/format"
	"github.com/calcutta/console/internal/logger"
	"github.com/calcutta/console/internal/middleware"
	"github.com/calcutta/console/internal/models"
	"github.com/calcutta/console/internal/respond"
	"github.com/calcutta/console/internal/roi"
	"github.com/calcutta/console/internal/upstream"
)

// LabService serves the lab workbench: entries, ROI tables and pipelines.
type LabService struct {
	API *upstream.Client
	Log *logger.Logger
}

func NewLabService(api *upstream.Client) *LabService {
	return &LabService{API: api, Log: logger.NewLogger("lab-service")}
}

// EntryRow is a lab entry with its formatted evaluation.
type EntryRow struct {
	models.LabEntry
	MeanPayout format.Metric `json:"mean_payout"`
	PTop1      format.Metric `json:"p_top1"`
	PInMoney   format.Metric `json:"p_in_money"`
}

// BuildEntryRow formats an entry. Entries without an evaluation show "-".
func BuildEntryRow(e models.LabEntry) EntryRow {
	ev := models.Evaluation{}
	if e.Evaluation != nil {
		ev = *e.Evaluation
	}
	return EntryRow{
		LabEntry:   e,
		MeanPayout: format.PayoutMetric(ev.MeanPayout),
		PTop1:      format.PctMetric(ev.PTop1),
		PInMoney:   format.PctMetric(ev.PInMoney),
	}
}

// ROIRow is a table row with display strings for the ratio columns.
type ROIRow struct {
	roi.Row
	PredictedROIMetric format.Metric `json:"predicted_roi_metric"`
	AdjustedROIMetric  format.Metric `json:"adjusted_roi_metric"`
}

// ROIView is the lab ROI table response.
type ROIView struct {
	Entry                EntryRow      `json:"entry"`
	Sort                 roi.Sort      `json:"sort"`
	HideZero             bool          `json:"hide_zero"`
	Rows                 []ROIRow      `json:"rows"`
	TotalInvested        float64       `json:"total_invested"`
	WeightedPredictedROI format.Metric `json:"weighted_predicted_roi"`
	WeightedAdjustedROI  format.Metric `json:"weighted_adjusted_roi"`
	TopAdjusted          []ROIRow      `json:"top_adjusted"`
}

func roiRows(rows []roi.Row) []ROIRow {
	out := make([]ROIRow, 0, len(rows))
	for _, r := range rows {
		out = append(out, ROIRow{
			Row:                r,
			PredictedROIMetric: format.RoiMetric(r.PredictedROI),
			AdjustedROIMetric:  format.RoiMetric(r.AdjustedROI),
		})
	}
	return out
}

// NewROIView formats a built table.
func NewROIView(entry models.LabEntry, t roi.Table) ROIView {
	return ROIView{
		Entry:                BuildEntryRow(entry),
		Sort:                 t.Sort,
		HideZero:             t.HideZero,
		Rows:                 roiRows(t.Rows),
		TotalInvested:        t.Summary.TotalInvested,
		WeightedPredictedROI: format.RoiMetric(t.Summary.WeightedPredictedROI),
		WeightedAdjustedROI:  format.RoiMetric(t.Summary.WeightedAdjustedROI),
		TopAdjusted:          roiRows(t.Summary.TopAdjusted),
	}
}

// ParseSort reads sort and dir from the query. A missing dir takes the
// column's default direction. toggle names the header the user selected
// and is applied on top of the current sort and dir.
func ParseSort(r *http.Request) (roi.Sort, error) {
	q := r.URL.Query()
	s := roi.DefaultSort
	if key := q.Get("sort"); key != "" {
		k, err := roi.ParseSortKey(key)
		if err != nil {
			return roi.Sort{}, err
		}
		s = roi.Sort{Key: k, Desc: k.DefaultDesc()}
	}
	switch q.Get("dir") {
	case "asc":
		s.Desc = false
	case "desc":
		s.Desc = true
	}
	if key := q.Get("toggle"); key != "" {
		k, err := roi.ParseSortKey(key)
		if err != nil {
			return roi.Sort{}, err
		}
		s = s.Toggle(k)
	}
	return s, nil
}

// ListEntries returns every lab entry with its evaluation summary
func (ls *LabService) ListEntries(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	entries, err := ls.API.ListLabEntries(ctx, middleware.TokenFromContext(ctx))
	if err != nil {
		ls.Log.WithContext(ctx).Error("Failed to list lab entries", "error", err)
		respond.Upstream(w, err)
		return
	}

	model := r.URL.Query().Get("model")
	kept := make([]models.LabEntry, 0, len(entries))
	for _, e := range entries {
		if model != "" && e.ModelName != model {
			continue
		}
		kept = append(kept, e)
	}
	if err := ls.fillEvaluations(ctx, middleware.TokenFromContext(ctx), kept); err != nil {
		ls.Log.WithContext(ctx).Error("Failed to load lab evaluations", "error", err)
		respond.Upstream(w, err)
		return
	}

	rows := make([]EntryRow, 0, len(kept))
	for _, e := range kept {
		rows = append(rows, BuildEntryRow(e))
	}
	respond.JSON(w, http.StatusOK, map[string]interface{}{"entries": rows})
}

// evaluationFetches bounds concurrent evaluation lookups per listing.
const evaluationFetches = 8

// evaluation returns nil when the entry has not been evaluated yet.
func (ls *LabService) evaluation(ctx context.Context, token, entryID string) (*models.Evaluation, error) {
	ev, err := ls.API.Evaluation(ctx, token, entryID)
	if errors.Is(err, upstream.ErrNotFound) {
		return nil, nil
	}
	return ev, err
}

// fillEvaluations fetches the evaluation of every entry the listing did
// not embed one for.
func (ls *LabService) fillEvaluations(ctx context.Context, token string, entries []models.LabEntry) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(evaluationFetches)
	for i := range entries {
		if entries[i].Evaluation != nil {
			continue
		}
		e := &entries[i]
		g.Go(func() error {
			ev, err := ls.evaluation(gctx, token, e.ID)
			e.Evaluation = ev
			return err
		})
	}
	return g.Wait()
}

// loadTable fetches the entry, then its bids, the model's predictions and
// a missing evaluation in parallel.
func (ls *LabService) loadTable(r *http.Request, s roi.Sort, hideZero bool) (*models.LabEntry, roi.Table, error) {
	ctx := r.Context()
	token := middleware.TokenFromContext(ctx)
	entryID := mux.Vars(r)["id"]

	entry, err := ls.API.GetLabEntry(ctx, token, entryID)
	if err != nil {
		return nil, roi.Table{}, err
	}

	var (
		bids        []models.Bid
		predictions []models.Prediction
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		bids, err = ls.API.EntryBids(gctx, token, entryID)
		return err
	})
	g.Go(func() error {
		var err error
		predictions, err = ls.API.Predictions(gctx, token, entry.ModelName, entry.CalcuttaID)
		return err
	})
	if entry.Evaluation == nil {
		g.Go(func() error {
			var err error
			entry.Evaluation, err = ls.evaluation(gctx, token, entryID)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, roi.Table{}, err
	}
	return entry, roi.Build(bids, predictions, s, hideZero), nil
}

// EntryROI returns the joined bid/prediction table for an entry
func (ls *LabService) EntryROI(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	s, err := ParseSort(r)
	if err != nil {
		respond.Error(w, http.StatusBadRequest, respond.CodeInvalidRequest, err.Error())
		return
	}
	hideZero, _ := strconv.ParseBool(r.URL.Query().Get("hide_zero"))

	entry, table, err := ls.loadTable(r, s, hideZero)
	if err != nil {
		ls.Log.WithContext(ctx).Error("Failed to build ROI table", "error", err, "entry_id", mux.Vars(r)["id"])
		respond.Upstream(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, NewROIView(*entry, table))
}

// PipelineView is a pipeline status with display fields.
type PipelineView struct {
	models.PipelineStatus
	ProgressDisplay string `json:"progress_display"`
	Terminal        bool   `json:"terminal"`
}

// NewPipelineView formats a pipeline status.
func NewPipelineView(st models.PipelineStatus) PipelineView {
	progress := st.Progress
	return PipelineView{
		PipelineStatus:  st,
		ProgressDisplay: format.Pct(&progress, 0),
		Terminal:        st.Terminal(),
	}
}

// PipelineStatus returns the current state of a run
func (ls *LabService) PipelineStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	runID := mux.Vars(r)["run"]
	st, err := ls.API.PipelineStatus(ctx, middleware.TokenFromContext(ctx), runID)
	if err != nil {
		ls.Log.WithContext(ctx).Error("Failed to get pipeline status", "error", err, "run_id", runID)
		respond.Upstream(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, NewPipelineView(*st))
}

// StartPipeline queues a pipeline run
func (ls *LabService) StartPipeline(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req models.StartPipelineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Error(w, http.StatusBadRequest, respond.CodeInvalidRequest, "Invalid request body")
		return
	}
	if req.CalcuttaID == "" || req.ModelName == "" {
		respond.Error(w, http.StatusBadRequest, respond.CodeInvalidRequest, "calcutta_id and model_name are required")
		return
	}

	st, err := ls.API.StartPipeline(ctx, middleware.TokenFromContext(ctx), req)
	if err != nil {
		ls.Log.WithContext(ctx).Error("Failed to start pipeline", "error", err, "calcutta_id", req.CalcuttaID)
		respond.Upstream(w, err)
		return
	}

	log := ls.Log.WithContext(ctx)
	if u := middleware.UserFromContext(ctx); u != nil {
		log = log.WithUser(u.UserID)
	}
	log.Info("Pipeline started", "run_id", st.RunID, "calcutta_id", req.CalcuttaID, "model", req.ModelName)
	respond.JSON(w, http.StatusAccepted, NewPipelineView(*st))
}
