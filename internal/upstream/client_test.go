package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calcutta/console/internal/models"
)

func TestClientForwardsTokenAndDecodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "/api/lab/models/naive%20ev/predictions", r.URL.EscapedPath())
		assert.Equal(t, "c-1", r.URL.Query().Get("calcutta_id"))
		_ = json.NewEncoder(w).Encode([]models.Prediction{{TeamID: "duke", ExpectedPoints: 12}})
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", time.Second)
	preds, err := c.Predictions(context.Background(), "tok", "naive ev", "c-1")
	require.NoError(t, err)
	require.Len(t, preds, 1)
	assert.Equal(t, 12.0, preds[0].ExpectedPoints)
}

func TestClientPostsJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var req models.StartPipelineRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "c-1", req.CalcuttaID)
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(models.PipelineStatus{RunID: "run-9", Status: models.PipelineQueued})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	st, err := c.StartPipeline(context.Background(), "tok", models.StartPipelineRequest{CalcuttaID: "c-1", ModelName: "m"})
	require.NoError(t, err)
	assert.Equal(t, "run-9", st.RunID)
}

func TestClientMapsErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		target error
		msg    string
	}{
		{"unauthorized", http.StatusUnauthorized, `{"error":"token expired"}`, ErrUnauthorized, "token expired"},
		{"not found", http.StatusNotFound, `{"message":"no such pool"}`, ErrNotFound, "no such pool"},
		{"server error", http.StatusBadGateway, `boom`, ErrUnavailable, "boom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewClient(srv.URL, time.Second).GetPool(context.Background(), "tok", "p1")
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.target)

			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.status, apiErr.Status)
			assert.Equal(t, tt.msg, apiErr.Message)
		})
	}
}

func TestClientTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := NewClient(url, time.Second).ListPools(context.Background(), "tok")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestPermissions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/auth/permissions", r.URL.Path)
		_, _ = w.Write([]byte(`{"permissions":["lab.read","admin.users.read"]}`))
	}))
	defer srv.Close()

	perms, err := NewClient(srv.URL, time.Second).Permissions(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, []string{"lab.read", "admin.users.read"}, perms)
}
