package models

import "time"

// LabEntry is a set of bids generated by a model for a pool.
type LabEntry struct {
	ID         string      `json:"id"`
	ModelName  string      `json:"model_name"`
	CalcuttaID string      `json:"calcutta_id"`
	PoolName   string      `json:"pool_name"`
	Strategy   string      `json:"strategy"`
	CreatedAt  time.Time   `json:"created_at"`
	Evaluation *Evaluation `json:"evaluation,omitempty"`
}

// Evaluation summarises the simulated outcomes of an entry.
type Evaluation struct {
	EntryID    string   `json:"entry_id"`
	NSims      int      `json:"n_sims"`
	MeanPayout *float64 `json:"mean_normalized_payout"`
	PTop1      *float64 `json:"p_top1"`
	PInMoney   *float64 `json:"p_in_money"`
}

// Bid is the points an entry put on a team.
type Bid struct {
	TeamID     string  `json:"team_id"`
	SchoolName string  `json:"school_name"`
	Seed       int     `json:"seed"`
	Region     string  `json:"region"`
	BidPoints  float64 `json:"bid_points"`
}

// Prediction is a model's expected outcome and market price for a team.
type Prediction struct {
	TeamID                string  `json:"team_id"`
	SchoolName            string  `json:"school_name"`
	Seed                  int     `json:"seed"`
	Region                string  `json:"region"`
	ExpectedPoints        float64 `json:"expected_points"`
	PredictedMarketPoints float64 `json:"predicted_market_points"`
}

// Pipeline run states reported by the API.
const (
	PipelineQueued    = "queued"
	PipelineRunning   = "running"
	PipelineSucceeded = "succeeded"
	PipelineFailed    = "failed"
	PipelineCancelled = "cancelled"
)

// PipelineStatus is the progress of a lab pipeline run.
type PipelineStatus struct {
	RunID     string    `json:"run_id"`
	Status    string    `json:"status"`
	Stage     string    `json:"stage"`
	Progress  float64   `json:"progress"`
	Message   string    `json:"message,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Terminal reports whether the run will not change again.
func (p PipelineStatus) Terminal() bool {
	switch p.Status {
	case PipelineSucceeded, PipelineFailed, PipelineCancelled:
		return true
	}
	return false
}

// StartPipelineRequest asks the API to run the lab pipeline.
type StartPipelineRequest struct {
	CalcuttaID string   `json:"calcutta_id"`
	ModelName  string   `json:"model_name"`
	Stages     []string `json:"stages,omitempty"`
}
