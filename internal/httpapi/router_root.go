package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/dwizi/notify-bridge/internal/bridge"
	"github.com/dwizi/notify-bridge/internal/heartbeat"
	"github.com/dwizi/notify-bridge/internal/mailmsg"
	"github.com/dwizi/notify-bridge/internal/notification"
	"github.com/dwizi/notify-bridge/internal/store"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type IngestionLister interface {
	ListIngestions(ctx context.Context, limit int) ([]store.Ingestion, error)
}

type Previewer interface {
	Preview(msg mailmsg.Message, kind notification.Kind) (bridge.Preview, error)
}

type Dependencies struct {
	Version             string
	Sources             []string
	Store               Pinger
	Ingestions          IngestionLister
	Previewer           Previewer
	Metrics             http.Handler
	Logger              *slog.Logger
	Heartbeat           *heartbeat.Registry
	HeartbeatStaleAfter time.Duration
}

type router struct {
	deps Dependencies
}

func NewRouter(deps Dependencies) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.DiscardHandler)
	}
	rt := &router{deps: deps}
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.handleHealth)
	mux.HandleFunc("/readyz", rt.handleReady)
	mux.HandleFunc("/api/v1/heartbeat", rt.handleHeartbeat)
	mux.HandleFunc("/api/v1/info", rt.handleInfo)
	mux.HandleFunc("/api/v1/ingestions", rt.handleIngestions)
	mux.HandleFunc("/api/v1/preview", rt.handlePreview)
	if deps.Metrics != nil {
		mux.Handle("/metrics", deps.Metrics)
	}
	return mux
}
