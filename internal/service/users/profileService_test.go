package profileService

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calcutta/console/internal/access"
	"github.com/calcutta/console/internal/logger"
	"github.com/calcutta/console/internal/middleware"
	models "github.com/calcutta/console/internal/models/users"
	"github.com/calcutta/console/internal/navigation"
	"github.com/calcutta/console/internal/testutil"
)

type loadingResolver struct{ loading bool }

func (l loadingResolver) Resolve(context.Context, string) ([]string, bool, error) {
	return []string{"lab.read"}, l.loading, nil
}

func (loadingResolver) Forget(string) {}

func newProfileService(t *testing.T, loading bool) *ProfileService {
	menu, err := navigation.Load("")
	require.NoError(t, err)
	guard := middleware.NewGuard(loadingResolver{loading: loading}, access.Routes{}, logger.Nop(), nil)
	return &ProfileService{Guard: guard, Menu: menu, Log: logger.Nop()}
}

func TestGetUserProfile(t *testing.T) {
	ps := newProfileService(t, false)
	rec := httptest.NewRecorder()
	ps.GetUserProfile(rec, testutil.AsUser(httptest.NewRequest(http.MethodGet, "/api/me", nil), 5, "lab.read", "admin.users.read"))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		User struct {
			UserID      int64    `json:"user_id"`
			Permissions []string `json:"permissions"`
		} `json:"user_details"`
		IsAdmin    bool              `json:"is_admin"`
		Navigation []navigation.Item `json:"navigation"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.EqualValues(t, 5, body.User.UserID)
	assert.Equal(t, []string{"lab.read", "admin.users.read"}, body.User.Permissions)
	assert.True(t, body.IsAdmin)
	require.Len(t, body.Navigation, 2)
	assert.Equal(t, "Lab", body.Navigation[0].Label)
	assert.Equal(t, "Admin", body.Navigation[1].Label)
}

func TestGetUserProfileAnonymous(t *testing.T) {
	ps := newProfileService(t, false)
	rec := httptest.NewRecorder()
	ps.GetUserProfile(rec, httptest.NewRequest(http.MethodGet, "/api/me", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), `"redirect":"/login"`)
}

func TestGetNavigationWhileLoading(t *testing.T) {
	ps := newProfileService(t, true)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/nav", nil)
	ctx := context.WithValue(req.Context(), middleware.UserContextKey, &models.User{UserID: 1})
	ps.GetNavigation(rec, req.WithContext(ctx))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
