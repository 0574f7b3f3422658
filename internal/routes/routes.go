package routes

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/calcutta/console/internal/middleware"
	"github.com/calcutta/console/internal/respond"
	adminRoutes "github.com/calcutta/console/internal/routes/admin"
	authRoute "github.com/calcutta/console/internal/routes/Auth"
	"github.com/calcutta/console/internal/routes/deps"
	labRoutes "github.com/calcutta/console/internal/routes/lab"
	poolRoutes "github.com/calcutta/console/internal/routes/pools"
	preferenceRoutes "github.com/calcutta/console/internal/routes/preferences"
	userRoutes "github.com/calcutta/console/internal/routes/user"
)

// List of all route registration functions
var routeModules = []func(*mux.Router, *deps.Deps){
	authRoute.RegisterAuthRoutes,
	userRoutes.UserProfileRoutes,
	poolRoutes.PoolRoutes,
	labRoutes.LabRoutes,
	adminRoutes.AdminRoutes,
	preferenceRoutes.PreferenceRoutes,
	RegisterPageRoutes,
}

// RegisterAllRoutes builds the router. Every request gets an ID, an access
// log line and an optional authenticated user before routing.
func RegisterAllRoutes(d *deps.Deps) *mux.Router {
	router := mux.NewRouter()
	router.Use(middleware.RequestID, middleware.AccessLog(d.Log, d.Metrics), d.Auth.Middleware)

	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		respond.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)
	router.Handle("/metrics", d.Metrics.Handler()).Methods(http.MethodGet)

	for _, register := range routeModules {
		register(router, d)
	}

	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respond.Error(w, http.StatusNotFound, respond.CodeNotFound, "Not found")
	})
	return router
}
