package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calcutta/console/internal/logger"
	models "github.com/calcutta/console/internal/models/users"
)

const testSecret = "test-secret"

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	if _, ok := claims["exp"]; !ok {
		claims["exp"] = time.Now().Add(time.Hour).Unix()
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return s
}

type captured struct {
	user  *models.User
	token string
	perms []string
	found bool
}

func captureHandler(c *captured) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.user = UserFromContext(r.Context())
		c.token = TokenFromContext(r.Context())
		c.perms, c.found = PermissionsFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestAuthenticatorBearer(t *testing.T) {
	token := signToken(t, jwt.MapClaims{"user_id": 7, "email": "sam@example.com", "first_name": "Sam"})
	var c captured
	h := NewAuthenticator(testSecret, logger.Nop()).Middleware(captureHandler(&c))

	req := httptest.NewRequest(http.MethodGet, "/api/pools", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	h.ServeHTTP(httptest.NewRecorder(), req)

	require.NotNil(t, c.user)
	assert.EqualValues(t, 7, c.user.UserID)
	assert.Equal(t, "sam@example.com", c.user.Email)
	assert.Equal(t, token, c.token)
	assert.False(t, c.found, "permissions are resolved later when absent from the token")
}

func TestAuthenticatorCookieWithEmbeddedPermissions(t *testing.T) {
	token := signToken(t, jwt.MapClaims{"user_id": 9, "permissions": []string{"lab.read", "admin.users.read"}})
	var c captured
	h := NewAuthenticator(testSecret, logger.Nop()).Middleware(captureHandler(&c))

	req := httptest.NewRequest(http.MethodGet, "/lab", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: token})
	h.ServeHTTP(httptest.NewRecorder(), req)

	require.NotNil(t, c.user)
	assert.True(t, c.found)
	assert.Equal(t, []string{"lab.read", "admin.users.read"}, c.perms)
}

func TestAuthenticatorAnonymous(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"no token", ""},
		{"garbage", "Bearer not-a-jwt"},
		{"wrong secret", "Bearer " + func() string {
			s, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"user_id": 1}).SignedString([]byte("other"))
			return s
		}()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var c captured
			h := NewAuthenticator(testSecret, logger.Nop()).Middleware(captureHandler(&c))
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusNoContent, rec.Code)
			assert.Nil(t, c.user)
			assert.Empty(t, c.token)
		})
	}
}

func TestAuthenticatorExpiredToken(t *testing.T) {
	token := signToken(t, jwt.MapClaims{"user_id": 1, "exp": time.Now().Add(-time.Minute).Unix()})
	var c captured
	h := NewAuthenticator(testSecret, logger.Nop()).Middleware(captureHandler(&c))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	h.ServeHTTP(httptest.NewRecorder(), req)

	assert.Nil(t, c.user)
}
