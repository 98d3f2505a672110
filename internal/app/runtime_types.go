package app

import (
	"log/slog"
	"net/http"

	"github.com/dwizi/notify-bridge/internal/bridge"
	"github.com/dwizi/notify-bridge/internal/chatlog"
	"github.com/dwizi/notify-bridge/internal/config"
	"github.com/dwizi/notify-bridge/internal/connectors"
	"github.com/dwizi/notify-bridge/internal/heartbeat"
	"github.com/dwizi/notify-bridge/internal/metrics"
	"github.com/dwizi/notify-bridge/internal/scheduler"
	"github.com/dwizi/notify-bridge/internal/store"
)

type Runtime struct {
	cfg              config.Config
	logger           *slog.Logger
	store            *store.Store
	metrics          *metrics.Metrics
	bridge           *bridge.Service
	httpServer       *http.Server
	scheduler        *scheduler.Service
	sources          []connectors.MailSource
	connectors       []connectors.Connector
	chatlog          *chatlog.Handler
	heartbeat        *heartbeat.Registry
	heartbeatMonitor *heartbeat.Monitor
}

type heartbeatAware interface {
	SetHeartbeatReporter(reporter heartbeat.Reporter)
}
