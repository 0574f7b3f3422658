package preferenceService

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/calcutta/console/internal/database"
	"github.com/calcutta/console/internal/logger"
	"github.com/calcutta/console/internal/testutil"
)

func setup(t *testing.T) (*database.Store, *mux.Router) {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.Migrate(context.Background(), db))

	store := database.NewStore(db)
	ps := &PreferenceService{Store: store, Log: logger.Nop()}
	r := mux.NewRouter()
	r.HandleFunc("/api/preferences/{view}", ps.GetPreference).Methods(http.MethodGet)
	r.HandleFunc("/api/preferences/{view}", ps.SavePreference).Methods(http.MethodPut)
	r.HandleFunc("/api/preferences/{view}", ps.DeletePreference).Methods(http.MethodDelete)
	return store, r
}

func get(t *testing.T, r http.Handler, view string) preferenceResponse {
	t.Helper()
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, testutil.AsUser(httptest.NewRequest(http.MethodGet, "/api/preferences/"+view, nil), 1))
	require.Equal(t, http.StatusOK, rec.Code)
	var resp preferenceResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestPreferenceDefaultsAndSave(t *testing.T) {
	_, r := setup(t)

	resp := get(t, r, "lab.roi")
	assert.False(t, resp.Saved)
	assert.Equal(t, "adjusted_roi", resp.Preference.SortKey)
	assert.True(t, resp.Preference.Desc)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/api/preferences/lab.roi", strings.NewReader(`{"sort_key":"seed","desc":false,"hide_zero":true}`))
	r.ServeHTTP(rec, testutil.AsUser(req, 1))
	require.Equal(t, http.StatusOK, rec.Code)

	resp = get(t, r, "lab.roi")
	assert.True(t, resp.Saved)
	assert.Equal(t, "seed", resp.Preference.SortKey)
	assert.True(t, resp.Preference.HideZero)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, testutil.AsUser(httptest.NewRequest(http.MethodDelete, "/api/preferences/lab.roi", nil), 1))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.False(t, get(t, r, "lab.roi").Saved)
}

func TestMalformedPreferenceIsCleared(t *testing.T) {
	store, r := setup(t)
	ctx := context.Background()
	require.NoError(t, store.SavePreference(ctx, 1, "analytics.teams", []byte(`{"sort_key":`)))

	resp := get(t, r, "analytics.teams")
	assert.False(t, resp.Saved)
	assert.Equal(t, "roi", resp.Preference.SortKey)

	_, err := store.Preference(ctx, 1, "analytics.teams")
	assert.ErrorIs(t, err, database.ErrNoPreference)
}

func TestSavePreferenceValidation(t *testing.T) {
	_, r := setup(t)

	tests := []struct {
		name string
		path string
		body string
	}{
		{"bad view name", "/api/preferences/Lab%20ROI", `{}`},
		{"bad body", "/api/preferences/lab.roi", `{`},
		{"unknown sort key", "/api/preferences/lab.roi", `{"sort_key":"payout"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPut, tt.path, strings.NewReader(tt.body))
			r.ServeHTTP(rec, testutil.AsUser(req, 1))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}
