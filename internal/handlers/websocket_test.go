package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calcutta/console/internal/logger"
	"github.com/calcutta/console/internal/models"
	"github.com/calcutta/console/internal/pipeline"
	"github.com/calcutta/console/internal/testutil"
	"github.com/calcutta/console/internal/upstream"
)

type scriptedSource struct {
	mu       sync.Mutex
	statuses []models.PipelineStatus
	calls    int
}

func (s *scriptedSource) PipelineStatus(_ context.Context, token, runID string) (*models.PipelineStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	if i >= len(s.statuses) {
		i = len(s.statuses) - 1
	}
	s.calls++
	st := s.statuses[i]
	st.RunID = runID
	return &st, nil
}

func TestPipelineSocketStreamsUntilTerminal(t *testing.T) {
	source := &scriptedSource{statuses: []models.PipelineStatus{
		{Status: models.PipelineRunning, Stage: "simulate", Progress: 0.5},
		{Status: models.PipelineRunning, Stage: "simulate", Progress: 0.5},
		{Status: models.PipelineSucceeded, Stage: "evaluate", Progress: 1},
	}}
	hub := pipeline.NewHub(source, 5*time.Millisecond, logger.Nop(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	h := &PipelineSocketHandler{hub: hub, log: logger.Nop()}
	r := mux.NewRouter()
	r.HandleFunc("/ws/lab/pipelines/{run}", func(w http.ResponseWriter, req *http.Request) {
		h.HandleWebSocket(w, testutil.AsUser(req, 3, "lab.read"))
	})
	srv := httptest.NewServer(r)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/lab/pipelines/run-1"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	var got []pipeline.Message
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "unexpected error: %v", err)
			break
		}
		var msg pipeline.Message
		require.NoError(t, json.Unmarshal(data, &msg))
		got = append(got, msg)
	}

	require.Len(t, got, 2, "unchanged statuses are not re-sent")
	assert.Equal(t, "status", got[0].Type)
	assert.Equal(t, "run-1", got[0].Status.RunID)
	assert.Equal(t, models.PipelineSucceeded, got[1].Status.Status)

	require.Eventually(t, func() bool { return hub.Subscribers("run-1") == 0 }, time.Second, 5*time.Millisecond)
}

type failingSource struct{ err error }

func (f failingSource) PipelineStatus(context.Context, string, string) (*models.PipelineStatus, error) {
	return nil, f.err
}

func socketServer(t *testing.T, hub *pipeline.Hub) string {
	t.Helper()
	h := &PipelineSocketHandler{hub: hub, log: logger.Nop()}
	r := mux.NewRouter()
	r.HandleFunc("/ws/lab/pipelines/{run}", func(w http.ResponseWriter, req *http.Request) {
		h.HandleWebSocket(w, testutil.AsUser(req, 3, "lab.read"))
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/lab/pipelines/run-1"
}

func TestPipelineSocketRefusesUnreadableRun(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"missing run", &upstream.APIError{Status: 404, Message: "no such run"}, http.StatusNotFound},
		{"forbidden run", &upstream.APIError{Status: 403, Message: "not yours"}, http.StatusForbidden},
		{"expired token", &upstream.APIError{Status: 401, Message: "expired"}, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hub := pipeline.NewHub(failingSource{err: tt.err}, time.Hour, logger.Nop(), nil)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			go hub.Run(ctx)

			_, resp, err := websocket.DefaultDialer.Dial(socketServer(t, hub), nil)
			require.Error(t, err)
			require.NotNil(t, resp)
			assert.Equal(t, tt.want, resp.StatusCode)
			assert.Equal(t, 0, hub.Subscribers("run-1"))
		})
	}
}

func TestPipelineSocketAfterHubShutdown(t *testing.T) {
	source := &scriptedSource{statuses: []models.PipelineStatus{{Status: models.PipelineRunning}}}
	hub := pipeline.NewHub(source, time.Hour, logger.Nop(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	hub.Run(ctx)

	conn, _, err := websocket.DefaultDialer.Dial(socketServer(t, hub), nil)
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "unexpected error: %v", err)
}

func TestSameOrigin(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "http://console.test/ws", nil)
	assert.True(t, sameOrigin(req))

	req.Header.Set("Origin", "http://console.test")
	assert.True(t, sameOrigin(req))

	req.Header.Set("Origin", "http://evil.test")
	assert.False(t, sameOrigin(req))
}
