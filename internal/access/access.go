// Package access decides whether a caller may reach a console route.
package access

import (
	"slices"

	models "github.com/calcutta/console/internal/models/users"
)

// MetaAdmin is not a permission the API grants. Requiring it means "holds
// any of AdminPermissions".
const MetaAdmin = "admin"

// AdminPermissions grant access to routes guarded by MetaAdmin.
var AdminPermissions = []string{
	"admin.users.read",
	"admin.users.write",
	"admin.permissions.write",
	"admin.pools.write",
	"admin.tournaments.write",
	"admin.api_keys.write",
}

const (
	DefaultLoginRoute    = "/login"
	DefaultFallbackRoute = "/"
)

// Routes are the redirect targets for denied callers.
type Routes struct {
	Login    string
	Fallback string
}

// WithDefaults fills empty targets with the default routes.
func (r Routes) WithDefaults() Routes {
	if r.Login == "" {
		r.Login = DefaultLoginRoute
	}
	if r.Fallback == "" {
		r.Fallback = DefaultFallbackRoute
	}
	return r
}

// Subject is what the guard knows about the caller.
type Subject struct {
	User        *models.User
	Permissions []string
	Loading     bool
}

// Outcome is the guard's verdict.
type Outcome int

const (
	Allow Outcome = iota
	RedirectLogin
	Loading
	RedirectFallback
)

func (o Outcome) String() string {
	switch o {
	case Allow:
		return "allow"
	case RedirectLogin:
		return "redirect_login"
	case Loading:
		return "loading"
	case RedirectFallback:
		return "redirect_fallback"
	}
	return "unknown"
}

// Decision is an outcome plus where to send the caller.
type Decision struct {
	Outcome Outcome
	Target  string
}

// Decide evaluates a single required permission against the subject.
func Decide(s Subject, required string, routes Routes) Decision {
	routes = routes.WithDefaults()
	if s.User == nil {
		return Decision{Outcome: RedirectLogin, Target: routes.Login}
	}
	if s.Loading {
		return Decision{Outcome: Loading}
	}
	if Has(s.Permissions, required) {
		return Decision{Outcome: Allow}
	}
	return Decision{Outcome: RedirectFallback, Target: routes.Fallback}
}

// Has reports whether perms satisfies required, expanding MetaAdmin.
func Has(perms []string, required string) bool {
	if required == MetaAdmin {
		return IsAdmin(perms)
	}
	return slices.Contains(perms, required)
}

// IsAdmin reports whether perms holds any admin permission.
func IsAdmin(perms []string) bool {
	for _, p := range perms {
		if slices.Contains(AdminPermissions, p) {
			return true
		}
	}
	return false
}
