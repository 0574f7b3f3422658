package adminRoutes

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/calcutta/console/internal/access"
	"github.com/calcutta/console/internal/middleware"
	"github.com/calcutta/console/internal/routes/deps"
	adminService "github.com/calcutta/console/internal/service/admin"
)

func AdminRoutes(router *mux.Router, d *deps.Deps) {
	adminService := adminService.NewAdminService(d.API, d.Store)

	adminRouter := router.PathPrefix("/api/admin").Subrouter()
	adminRouter.Use(d.Guard.Require(access.MetaAdmin), middleware.ResponseWrapperMiddleware)
	adminRouter.HandleFunc("/users", adminService.ListUsers).Methods(http.MethodGet)
	adminRouter.HandleFunc("/client-errors", adminService.ClientErrors).Methods(http.MethodGet)
}
