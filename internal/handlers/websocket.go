package handlers

import (
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/calcutta/console/internal/logger"
	"github.com/calcutta/console/internal/middleware"
	"github.com/calcutta/console/internal/pipeline"
	"github.com/calcutta/console/internal/respond"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     sameOrigin,
}

// sameOrigin admits non-browser clients and pages served from this host.
func sameOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return u.Host == r.Host
}

// PipelineSocketHandler streams pipeline status to the lab views.
type PipelineSocketHandler struct {
	hub *pipeline.Hub
	log *logger.Logger
}

func NewPipelineSocketHandler(hub *pipeline.Hub) *PipelineSocketHandler {
	return &PipelineSocketHandler{hub: hub, log: logger.NewLogger("pipeline-socket")}
}

// HandleWebSocket checks the caller can read the run, upgrades the request
// and subscribes it. The first frame is the run's current status.
func (h *PipelineSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := middleware.UserFromContext(ctx)
	if user == nil {
		respond.Error(w, http.StatusUnauthorized, respond.CodeUnauthorized, "Sign in required")
		return
	}
	runID := mux.Vars(r)["run"]
	token := middleware.TokenFromContext(ctx)

	snapshot, err := h.hub.Snapshot(ctx, token, runID)
	if err != nil {
		h.log.WithContext(ctx).Warn("Pipeline subscription refused", "error", err, "run_id", runID)
		respond.Upstream(w, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithContext(ctx).Warn("WebSocket upgrade failed", "error", err, "run_id", runID)
		return
	}

	client := pipeline.NewClient(h.hub, conn, runID, user.UserID, token)
	if err := h.hub.Join(client, snapshot); err != nil {
		h.log.WithContext(ctx).Info("Pipeline hub closed, dropping subscriber", "run_id", runID)
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		conn.Close()
		return
	}

	go client.WritePump()
	go client.ReadPump()
}
