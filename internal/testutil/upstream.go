// Package testutil provides a fake Calcutta API for handler tests.
package testutil

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/calcutta/console/internal/middleware"
	models "github.com/calcutta/console/internal/models/users"
	"github.com/calcutta/console/internal/upstream"
)

// FakeAPI serves canned JSON keyed by "METHOD path".
type FakeAPI struct {
	Server *httptest.Server

	mu       sync.Mutex
	routes   map[string]response
	requests []*http.Request
}

type response struct {
	status int
	body   interface{}
}

// NewFakeAPI starts a fake API that is closed when the test ends.
func NewFakeAPI(t *testing.T) *FakeAPI {
	t.Helper()
	f := &FakeAPI{routes: map[string]response{}}
	f.Server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.Server.Close)
	return f
}

// Handle registers a JSON response. path includes the query string when
// the request has one.
func (f *FakeAPI) Handle(method, path string, status int, body interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routes[method+" "+path] = response{status: status, body: body}
}

// Requests returns the requests received so far.
func (f *FakeAPI) Requests() []*http.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*http.Request(nil), f.requests...)
}

// Client returns an API client pointed at the fake.
func (f *FakeAPI) Client() *upstream.Client {
	return upstream.NewClient(f.Server.URL, 2*time.Second)
}

func (f *FakeAPI) serve(w http.ResponseWriter, r *http.Request) {
	key := r.Method + " " + r.URL.Path
	if r.URL.RawQuery != "" {
		key += "?" + r.URL.RawQuery
	}

	f.mu.Lock()
	f.requests = append(f.requests, r.Clone(context.Background()))
	resp, ok := f.routes[key]
	f.mu.Unlock()

	if !ok {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"no fake route for ` + key + `"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.status)
	if resp.body != nil {
		_ = json.NewEncoder(w).Encode(resp.body)
	}
}

// AsUser attaches an authenticated user, token and permission set to r the
// way the auth middleware and guard do.
func AsUser(r *http.Request, userID int64, perms ...string) *http.Request {
	ctx := context.WithValue(r.Context(), middleware.UserContextKey, &models.User{UserID: userID, Email: "user@example.com"})
	ctx = context.WithValue(ctx, middleware.TokenContextKey, "tok")
	if perms == nil {
		perms = []string{}
	}
	ctx = context.WithValue(ctx, middleware.PermissionsContextKey, perms)
	return r.WithContext(ctx)
}
