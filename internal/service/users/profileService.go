package profileService

import (
	"net/http"

	"github.com/calcutta/console/internal/access"
	"github.com/calcutta/console/internal/logger"
	"github.com/calcutta/console/internal/middleware"
	"github.com/calcutta/console/internal/navigation"
	"github.com/calcutta/console/internal/respond"
)

// ProfileService describes the signed-in caller to the console shell.
type ProfileService struct {
	Guard *middleware.Guard
	Menu  navigation.Menu
	Log   *logger.Logger
}

func NewProfileService(guard *middleware.Guard, menu navigation.Menu) *ProfileService {
	return &ProfileService{Guard: guard, Menu: menu, Log: logger.NewLogger("profile-service")}
}

// subject resolves the caller; ok is false once a response was written.
func (ps *ProfileService) subject(w http.ResponseWriter, r *http.Request) (access.Subject, bool) {
	subject, ctx, err := ps.Guard.Subject(r)
	if err != nil {
		ps.Log.WithContext(ctx).Error("Failed to resolve permissions", "error", err)
		respond.Upstream(w, err)
		return access.Subject{}, false
	}
	if subject.User == nil {
		routes := ps.Guard.Routes()
		respond.JSON(w, http.StatusUnauthorized, respond.ErrorBody{Error: "Sign in required", Code: respond.CodeUnauthorized, Redirect: routes.Login})
		return access.Subject{}, false
	}
	if subject.Loading {
		w.Header().Set("Retry-After", "1")
		respond.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "loading"})
		return access.Subject{}, false
	}
	return subject, true
}

// GetUserProfile returns the caller with permissions and menu
func (ps *ProfileService) GetUserProfile(w http.ResponseWriter, r *http.Request) {
	subject, ok := ps.subject(w, r)
	if !ok {
		return
	}
	user := *subject.User
	user.Permissions = subject.Permissions
	respond.JSON(w, http.StatusOK, map[string]interface{}{
		"user_details": user,
		"name":         user.DisplayName(),
		"is_admin":     access.IsAdmin(subject.Permissions),
		"navigation":   ps.Menu.Visible(subject.Permissions),
	})
}

// GetNavigation returns only the menu items the caller can reach
func (ps *ProfileService) GetNavigation(w http.ResponseWriter, r *http.Request) {
	subject, ok := ps.subject(w, r)
	if !ok {
		return
	}
	respond.JSON(w, http.StatusOK, map[string]interface{}{"items": ps.Menu.Visible(subject.Permissions)})
}
