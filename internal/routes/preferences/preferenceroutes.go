package preferenceRoutes

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/calcutta/console/internal/middleware"
	"github.com/calcutta/console/internal/routes/deps"
	clientErrorService "github.com/calcutta/console/internal/service/clienterrors"
	preferenceService "github.com/calcutta/console/internal/service/preferences"
)

func PreferenceRoutes(router *mux.Router, d *deps.Deps) {
	preferenceService := preferenceService.NewPreferenceService(d.Store)
	clientErrorService := clientErrorService.NewClientErrorService(d.Store, d.Metrics)

	protectedRouter := router.PathPrefix("/api/preferences").Subrouter()
	protectedRouter.Use(d.Guard.RequireUser, middleware.ResponseWrapperMiddleware)
	protectedRouter.HandleFunc("/{view}", preferenceService.GetPreference).Methods(http.MethodGet)
	protectedRouter.HandleFunc("/{view}", preferenceService.SavePreference).Methods(http.MethodPut)
	protectedRouter.HandleFunc("/{view}", preferenceService.DeletePreference).Methods(http.MethodDelete)

	// Reports arrive from the error boundary, which may render before sign-in.
	router.HandleFunc("/api/client-errors", clientErrorService.Report).Methods(http.MethodPost)
}
