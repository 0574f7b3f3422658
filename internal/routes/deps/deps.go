// Package deps carries the shared dependencies every route module needs.
package deps

import (
	"github.com/calcutta/console/internal/config"
	"github.com/calcutta/console/internal/database"
	"github.com/calcutta/console/internal/logger"
	"github.com/calcutta/console/internal/middleware"
	"github.com/calcutta/console/internal/navigation"
	"github.com/calcutta/console/internal/pipeline"
	"github.com/calcutta/console/internal/telemetry"
	"github.com/calcutta/console/internal/upstream"
)

type Deps struct {
	Config  *config.Config
	API     *upstream.Client
	Store   *database.Store
	Auth    *middleware.Authenticator
	Guard   *middleware.Guard
	Hub     *pipeline.Hub
	Menu    navigation.Menu
	Metrics *telemetry.Metrics
	Log     *logger.Logger
}
