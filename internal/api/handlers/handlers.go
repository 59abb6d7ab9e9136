package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/noa10/mataresit-sub018/internal/config"
	"github.com/noa10/mataresit-sub018/internal/core/alerting"
	"github.com/noa10/mataresit-sub018/internal/core/metricstore"
	"github.com/noa10/mataresit-sub018/internal/database"
	"github.com/noa10/mataresit-sub018/internal/websocket"
	"github.com/noa10/mataresit-sub018/pkg/errors"
	"github.com/noa10/mataresit-sub018/pkg/utils"
)

// Handlers contains all HTTP handlers and their dependencies.
type Handlers struct {
	cfg        *config.Config
	repos      *database.Repositories
	log        *logrus.Logger
	wsHub      *websocket.Hub
	engine     *alerting.Engine
	instances  *alerting.InstanceManager
	dispatcher *alerting.Dispatcher
	health     *alerting.HealthMonitor
	samples    *metricstore.Store
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(
	cfg *config.Config,
	repos *database.Repositories,
	log *logrus.Logger,
	wsHub *websocket.Hub,
	engine *alerting.Engine,
	instances *alerting.InstanceManager,
	dispatcher *alerting.Dispatcher,
	health *alerting.HealthMonitor,
	samples *metricstore.Store,
) *Handlers {
	return &Handlers{
		cfg:        cfg,
		repos:      repos,
		log:        log,
		wsHub:      wsHub,
		engine:     engine,
		instances:  instances,
		dispatcher: dispatcher,
		health:     health,
		samples:    samples,
	}
}

// fail maps domain errors to HTTP status codes and sends the error response.
func (h *Handlers) fail(c *gin.Context, err error) {
	utils.SendError(c, errors.GetStatusCode(err), err.Error())
}
