package labRoutes

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/calcutta/console/internal/handlers"
	"github.com/calcutta/console/internal/routes/deps"
	labService "github.com/calcutta/console/internal/service/lab"
)

func LabRoutes(router *mux.Router, d *deps.Deps) {
	labService := labService.NewLabService(d.API)

	labRouter := router.PathPrefix("/api/lab").Subrouter()
	labRouter.Use(d.Guard.Require("lab.read"))
	labRouter.HandleFunc("/entries", labService.ListEntries).Methods(http.MethodGet)
	labRouter.HandleFunc("/entries/{id}/roi", labService.EntryROI).Methods(http.MethodGet)
	labRouter.HandleFunc("/entries/{id}/roi.xlsx", labService.ExportEntryROI).Methods(http.MethodGet)
	labRouter.HandleFunc("/pipelines/{run}", labService.PipelineStatus).Methods(http.MethodGet)

	writeRouter := labRouter.NewRoute().Subrouter()
	writeRouter.Use(d.Guard.Require("lab.pipeline.write"))
	writeRouter.HandleFunc("/pipelines", labService.StartPipeline).Methods(http.MethodPost)

	// WebSocket endpoint, the session cookie authenticates the upgrade
	wsHandler := handlers.NewPipelineSocketHandler(d.Hub)
	wsRouter := router.PathPrefix("/ws/lab").Subrouter()
	wsRouter.Use(d.Guard.Require("lab.read"))
	wsRouter.HandleFunc("/pipelines/{run}", wsHandler.HandleWebSocket).Methods(http.MethodGet)
}
