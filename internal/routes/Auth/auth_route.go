package authRoute

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/calcutta/console/internal/handlers"
	"github.com/calcutta/console/internal/middleware"
	"github.com/calcutta/console/internal/routes/deps"
	services "github.com/calcutta/console/internal/service/auth"
)

func RegisterAuthRoutes(router *mux.Router, d *deps.Deps) {
	authService := services.NewAuthService(d.Config.JWTSecret, d.Config.Production())
	authHandler := handlers.NewAuthHandler(authService)

	// Public routes, the session endpoint validates the token itself
	publicRouter := router.PathPrefix("/auth").Subrouter()
	publicRouter.Use(middleware.ResponseWrapperMiddleware)
	publicRouter.HandleFunc("/session", authHandler.CreateSession).Methods(http.MethodPost)
	publicRouter.HandleFunc("/session", authHandler.DeleteSession).Methods(http.MethodDelete)
}
