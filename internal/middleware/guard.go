package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/calcutta/console/internal/access"
	"github.com/calcutta/console/internal/logger"
	"github.com/calcutta/console/internal/respond"
	"github.com/calcutta/console/internal/telemetry"
	"github.com/calcutta/console/internal/upstream"
)

// PermissionResolver loads a caller's permissions from the API.
type PermissionResolver interface {
	Resolve(ctx context.Context, token string) ([]string, bool, error)
	Forget(token string)
}

// Guard gates routes on the caller's permissions.
type Guard struct {
	resolver PermissionResolver
	routes   access.Routes
	log      *logger.Logger
	metrics  *telemetry.Metrics
}

func NewGuard(resolver PermissionResolver, routes access.Routes, log *logger.Logger, metrics *telemetry.Metrics) *Guard {
	return &Guard{resolver: resolver, routes: routes.WithDefaults(), log: log, metrics: metrics}
}

// Routes returns the redirect targets the guard uses.
func (g *Guard) Routes() access.Routes {
	return g.routes
}

// Subject builds the guard's view of the caller and returns the request
// context with the resolved permissions attached.
func (g *Guard) Subject(r *http.Request) (access.Subject, context.Context, error) {
	ctx := r.Context()
	user := UserFromContext(ctx)
	if user == nil {
		return access.Subject{}, ctx, nil
	}
	if perms, ok := PermissionsFromContext(ctx); ok {
		return access.Subject{User: user, Permissions: perms}, ctx, nil
	}

	token := TokenFromContext(ctx)
	perms, loading, err := g.resolver.Resolve(ctx, token)
	if err != nil {
		if errors.Is(err, upstream.ErrUnauthorized) {
			g.resolver.Forget(token)
			return access.Subject{}, ctx, nil
		}
		return access.Subject{}, ctx, err
	}
	if loading {
		return access.Subject{User: user, Loading: true}, ctx, nil
	}
	return access.Subject{User: user, Permissions: perms}, context.WithValue(ctx, PermissionsContextKey, perms), nil
}

// Require admits callers holding permission, or any admin permission when
// permission is access.MetaAdmin.
func (g *Guard) Require(permission string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			subject, ctx, err := g.Subject(r)
			if err != nil {
				g.log.WithContext(ctx).Error("Failed to resolve permissions", "error", err)
				respond.Upstream(w, err)
				return
			}

			decision := access.Decide(subject, permission, g.routes)
			if decision.Outcome != access.Allow {
				g.log.WithContext(ctx).Debug("Route guard denied request",
					"path", r.URL.Path, "required", permission, "outcome", decision.Outcome.String())
				g.deny(w, r, decision)
				return
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireUser admits any authenticated caller.
func (g *Guard) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if UserFromContext(r.Context()) == nil {
			g.deny(w, r, access.Decide(access.Subject{}, "", g.routes))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (g *Guard) deny(w http.ResponseWriter, r *http.Request, d access.Decision) {
	if g.metrics != nil {
		g.metrics.GuardDenials.WithLabelValues(d.Outcome.String()).Inc()
	}
	if d.Outcome == access.Loading {
		w.Header().Set("Retry-After", "1")
		if !wantsJSON(r) {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			w.Header().Set("Cache-Control", "no-store")
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(loadingPage))
			return
		}
		respond.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "loading"})
		return
	}

	if !wantsJSON(r) {
		http.Redirect(w, r, d.Target, http.StatusFound)
		return
	}

	status, code, msg := http.StatusForbidden, respond.CodeForbidden, "You don't have access to this page"
	if d.Outcome == access.RedirectLogin {
		status, code, msg = http.StatusUnauthorized, respond.CodeUnauthorized, "Sign in required"
	}
	respond.JSON(w, status, respond.ErrorBody{Error: msg, Code: code, Redirect: d.Target})
}

// loadingPage reloads itself once permissions are likely to have resolved.
const loadingPage = `<!doctype html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta http-equiv="refresh" content="1">
<title>Loading</title>
</head>
<body><p>Checking your access&hellip;</p></body>
</html>
`

func wantsJSON(r *http.Request) bool {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}
