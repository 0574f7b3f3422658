package userRoutes

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/calcutta/console/internal/middleware"
	"github.com/calcutta/console/internal/routes/deps"
	profileService "github.com/calcutta/console/internal/service/users"
)

func UserProfileRoutes(router *mux.Router, d *deps.Deps) {
	profileService := profileService.NewProfileService(d.Guard, d.Menu)

	// The handlers resolve permissions themselves so they can report the
	// loading state instead of denying.
	protectedRouter := router.PathPrefix("/api").Subrouter()
	protectedRouter.Use(middleware.ResponseWrapperMiddleware)

	protectedRouter.HandleFunc("/me", profileService.GetUserProfile).Methods(http.MethodGet, http.MethodOptions)
	protectedRouter.HandleFunc("/nav", profileService.GetNavigation).Methods(http.MethodGet, http.MethodOptions)
}
