package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/calcutta/console/internal/logger"
	models "github.com/calcutta/console/internal/models/users"
)

type ContextKey string

const (
	UserContextKey        ContextKey = "currentUser"
	TokenContextKey       ContextKey = "token"
	PermissionsContextKey ContextKey = "permissions"
)

// SessionCookie is the cookie the console stores the API token in.
const SessionCookie = "calcutta_token"

// Authenticator resolves the caller from a bearer token or session cookie.
type Authenticator struct {
	secret []byte
	log    *logger.Logger
}

func NewAuthenticator(secret string, log *logger.Logger) *Authenticator {
	return &Authenticator{secret: []byte(secret), log: log}
}

// Middleware attaches the user and raw token to the request context.
// Requests without a valid token pass through anonymous; route guards
// decide what an anonymous caller may see.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenStr := tokenFromRequest(r)
		if tokenStr == "" {
			next.ServeHTTP(w, r)
			return
		}

		user, perms, err := a.Parse(tokenStr)
		if err != nil {
			a.log.WithContext(r.Context()).Warn("Rejected session token", "error", err, "path", r.URL.Path)
			next.ServeHTTP(w, r)
			return
		}

		ctx := context.WithValue(r.Context(), UserContextKey, user)
		ctx = context.WithValue(ctx, TokenContextKey, tokenStr)
		if perms != nil {
			ctx = context.WithValue(ctx, PermissionsContextKey, perms)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func tokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	if c, err := r.Cookie(SessionCookie); err == nil {
		return c.Value
	}
	return ""
}

// Parse validates the token. Permissions are returned only when the token
// embeds them; otherwise they are resolved from the API.
func (a *Authenticator) Parse(tokenStr string) (*models.User, []string, error) {
	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, nil, err
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, nil, fmt.Errorf("unexpected claims type %T", token.Claims)
	}

	userID, err := strconv.ParseInt(fmt.Sprintf("%v", claims["user_id"]), 10, 64)
	if err != nil {
		if f, ok := claims["user_id"].(float64); ok {
			userID = int64(f)
		} else {
			return nil, nil, fmt.Errorf("invalid user_id claim: %w", err)
		}
	}

	user := &models.User{
		UserID:    userID,
		Email:     stringClaim(claims, "email"),
		FirstName: stringClaim(claims, "first_name"),
		LastName:  stringClaim(claims, "last_name"),
	}

	var perms []string
	if raw, ok := claims["permissions"].([]interface{}); ok {
		perms = make([]string, 0, len(raw))
		for _, p := range raw {
			if s, ok := p.(string); ok {
				perms = append(perms, s)
			}
		}
		user.Permissions = perms
	}
	return user, perms, nil
}

func stringClaim(claims jwt.MapClaims, key string) string {
	s, _ := claims[key].(string)
	return s
}

// UserFromContext returns the authenticated user, or nil.
func UserFromContext(ctx context.Context) *models.User {
	u, _ := ctx.Value(UserContextKey).(*models.User)
	return u
}

// TokenFromContext returns the caller's API token.
func TokenFromContext(ctx context.Context) string {
	t, _ := ctx.Value(TokenContextKey).(string)
	return t
}

// PermissionsFromContext returns the permissions resolved for this request.
func PermissionsFromContext(ctx context.Context) ([]string, bool) {
	p, ok := ctx.Value(PermissionsContextKey).([]string)
	return p, ok
}

func ResponseWrapperMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}
