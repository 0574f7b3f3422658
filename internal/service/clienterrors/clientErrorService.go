package clientErrorService

import (
	"encoding/json"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/calcutta/console/internal/database"
	"github.com/calcutta/console/internal/logger"
	"github.com/calcutta/console/internal/middleware"
	"github.com/calcutta/console/internal/models"
	"github.com/calcutta/console/internal/respond"
	"github.com/calcutta/console/internal/telemetry"
)

const (
	maxBody    = 64 << 10
	maxMessage = 2000
	maxStack   = 16000
)

// ClientErrorService records render failures caught by the browser's error
// boundary so they are visible without a third-party tracker.
type ClientErrorService struct {
	Store   *database.Store
	Metrics *telemetry.Metrics
	Log     *logger.Logger
}

func NewClientErrorService(store *database.Store, metrics *telemetry.Metrics) *ClientErrorService {
	return &ClientErrorService{Store: store, Metrics: metrics, Log: logger.NewLogger("client-errors")}
}

type reportRequest struct {
	Message        string `json:"message"`
	Stack          string `json:"stack"`
	ComponentStack string `json:"component_stack"`
	URL            string `json:"url"`
}

// Report stores one error report and returns its ID.
func (s *ClientErrorService) Report(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req reportRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(&req); err != nil {
		respond.Error(w, http.StatusBadRequest, respond.CodeInvalidRequest, "Invalid request body")
		return
	}
	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		respond.Error(w, http.StatusBadRequest, respond.CodeInvalidRequest, "message is required")
		return
	}

	report := models.ClientError{
		ID:             uuid.NewString(),
		Message:        truncate(req.Message, maxMessage),
		Stack:          truncate(req.Stack, maxStack),
		ComponentStack: truncate(req.ComponentStack, maxStack),
		URL:            truncate(req.URL, maxMessage),
		UserAgent:      truncate(r.UserAgent(), maxMessage),
	}
	log := s.Log.WithContext(ctx)
	if user := middleware.UserFromContext(ctx); user != nil {
		report.UserID = user.UserID
		log = log.WithUser(user.UserID)
	}

	log.Error("Console render error", "report_id", report.ID, "message", report.Message, "url", report.URL)
	if s.Metrics != nil {
		s.Metrics.ClientErrors.Inc()
	}
	if err := s.Store.RecordClientError(ctx, report); err != nil {
		log.Error("Failed to store client error", "error", err, "report_id", report.ID)
		respond.Error(w, http.StatusInternalServerError, respond.CodeInternal, "Failed to store report")
		return
	}
	respond.JSON(w, http.StatusAccepted, map[string]string{"id": report.ID})
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
