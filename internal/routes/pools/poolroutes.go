package poolRoutes

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/calcutta/console/internal/middleware"
	"github.com/calcutta/console/internal/routes/deps"
	analyticsService "github.com/calcutta/console/internal/service/analytics"
	poolService "github.com/calcutta/console/internal/service/pools"
)

func PoolRoutes(router *mux.Router, d *deps.Deps) {
	poolService := poolService.NewPoolService(d.API)
	analyticsService := analyticsService.NewAnalyticsService(d.API)

	poolRouter := router.PathPrefix("/api/pools").Subrouter()
	poolRouter.Use(d.Guard.Require("pools.read"), middleware.ResponseWrapperMiddleware)
	poolRouter.HandleFunc("", poolService.ListPools).Methods(http.MethodGet)
	poolRouter.HandleFunc("/{id}", poolService.GetPool).Methods(http.MethodGet)

	analyticsRouter := router.PathPrefix("/api/analytics").Subrouter()
	analyticsRouter.Use(d.Guard.Require("analytics.read"), middleware.ResponseWrapperMiddleware)
	analyticsRouter.HandleFunc("/pools/{id}/teams", analyticsService.TeamAnalytics).Methods(http.MethodGet)
}
