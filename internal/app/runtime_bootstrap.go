package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/dwizi/notify-bridge/internal/bridge"
	"github.com/dwizi/notify-bridge/internal/chatlog"
	"github.com/dwizi/notify-bridge/internal/config"
	"github.com/dwizi/notify-bridge/internal/connectors"
	"github.com/dwizi/notify-bridge/internal/connectors/imap"
	"github.com/dwizi/notify-bridge/internal/connectors/spool"
	"github.com/dwizi/notify-bridge/internal/connectors/vkteams"
	"github.com/dwizi/notify-bridge/internal/heartbeat"
	"github.com/dwizi/notify-bridge/internal/httpapi"
	"github.com/dwizi/notify-bridge/internal/metrics"
	"github.com/dwizi/notify-bridge/internal/notification"
	"github.com/dwizi/notify-bridge/internal/scheduler"
	"github.com/dwizi/notify-bridge/internal/store"
)

const Version = "0.1.0"

func New(cfg config.Config, logger *slog.Logger) (*Runtime, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}
	location, err := parseLocation(cfg.Timezone)
	if err != nil {
		return nil, err
	}

	sqlStore, err := store.New(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	if err := sqlStore.AutoMigrate(context.Background()); err != nil {
		sqlStore.Close()
		return nil, err
	}

	metricsRef := metrics.New()
	heartbeatRegistry := heartbeat.NewRegistry()
	heartbeatRegistry.Starting("scheduler", "initializing")
	heartbeatRegistry.Starting("api", "initializing")

	client := vkteams.NewClient(
		cfg.VKTeamsToken,
		cfg.VKTeamsAPI,
		seconds(cfg.VKTeamsTimeout),
		metricsRef,
		logger.With("component", "vkteams-client"),
	)

	// Error records reach the admin chats only once the gateway can send.
	chatHandler := chatlog.New(logger.Handler(), client, metricsRef, chatlog.Config{
		Chats:        cfg.AdminChatIDs(),
		Level:        parseLevel(cfg.LogLevel),
		QueueSize:    cfg.ChatLogQueueSize,
		RetryTimeout: seconds(cfg.ChatLogRetrySec),
	})
	if client.Enabled() && chatHandler.Forwarding() {
		logger = slog.New(chatHandler)
	} else {
		chatHandler = nil
	}

	bridgeService := bridge.New(
		cfg.Classifier(),
		notification.NewRenderer(nil),
		client,
		bridge.Chats{Incident: cfg.IncidentChatID, Monitoring: cfg.MonitoringChatID},
		metricsRef,
		logger.With("component", "bridge"),
	)

	imapSource := imap.New(imap.Config{
		Host:          cfg.IMAPHost,
		Port:          cfg.IMAPPort,
		Username:      cfg.IMAPUsername,
		Password:      cfg.IMAPPassword,
		Mailbox:       cfg.IMAPMailbox,
		TLSSkipVerify: cfg.IMAPTLSSkipVerify,
	}, sqlStore, bridgeService, logger.With("connector", "imap"))
	spoolConnector := spool.New(spool.Config{
		Dir:    cfg.SpoolDir,
		Settle: time.Duration(cfg.SpoolSettleMS) * time.Millisecond,
	}, sqlStore, bridgeService, logger.With("connector", "spool"))
	vkConnector := vkteams.NewConnector(client, bridgeService, cfg.VKTeamsPoll, logger.With("connector", "vkteams"))

	schedulerService := scheduler.New(scheduler.Config{
		Location:          location,
		FailureBackoffMin: seconds(cfg.FailureBackoffMin),
		FailureBackoffMax: seconds(cfg.FailureBackoffMax),
	}, metricsRef, logger.With("component", "scheduler"))

	sources := []connectors.MailSource{}
	if imapSource.Enabled() {
		sources = append(sources, imapSource)
	}
	if spoolConnector.Enabled() && cfg.SpoolScheduledPoll {
		sources = append(sources, spoolConnector)
	}
	for _, source := range sources {
		if err := schedulerService.Add(scheduler.Job{
			Name:       "poll-" + source.Name(),
			Spec:       cfg.PollCron,
			RunOnStart: true,
			Run:        source.PollOnce,
		}); err != nil {
			sqlStore.Close()
			return nil, err
		}
	}
	if !imapSource.Enabled() && !spoolConnector.Enabled() {
		logger.Warn("no mail source configured, nothing will be delivered")
	}

	connectorList := []connectors.Connector{vkConnector, spoolConnector}
	for _, target := range []any{schedulerService, vkConnector, spoolConnector} {
		if aware, ok := target.(heartbeatAware); ok {
			aware.SetHeartbeatReporter(heartbeatRegistry)
		}
	}
	heartbeatMonitor := heartbeat.NewMonitor(heartbeatRegistry, heartbeat.MonitorConfig{
		Interval:   seconds(cfg.HeartbeatIntervalSec),
		StaleAfter: seconds(cfg.HeartbeatStaleSec),
		Logger:     logger.With("component", "heartbeat"),
	})

	handler := httpapi.NewRouter(httpapi.Dependencies{
		Version:             Version,
		Sources:             sourceNames(imapSource, spoolConnector),
		Store:               sqlStore,
		Ingestions:          sqlStore,
		Previewer:           bridgeService,
		Metrics:             metricsRef.Handler(),
		Logger:              logger.With("component", "api"),
		Heartbeat:           heartbeatRegistry,
		HeartbeatStaleAfter: seconds(cfg.HeartbeatStaleSec),
	})
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &Runtime{
		cfg:              cfg,
		logger:           logger,
		store:            sqlStore,
		metrics:          metricsRef,
		bridge:           bridgeService,
		httpServer:       httpServer,
		scheduler:        schedulerService,
		sources:          sources,
		connectors:       connectorList,
		chatlog:          chatHandler,
		heartbeat:        heartbeatRegistry,
		heartbeatMonitor: heartbeatMonitor,
	}, nil
}

func sourceNames(items ...connectors.MailSource) []string {
	names := []string{}
	for _, item := range items {
		if item.Enabled() {
			names = append(names, item.Name())
		}
	}
	return names
}
