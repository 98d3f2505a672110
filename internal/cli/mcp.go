package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dwizi/notify-bridge/internal/app"
	"github.com/dwizi/notify-bridge/internal/bridge"
	"github.com/dwizi/notify-bridge/internal/config"
	"github.com/dwizi/notify-bridge/internal/mcpserver"
	"github.com/dwizi/notify-bridge/internal/notification"
	"github.com/dwizi/notify-bridge/internal/store"
)

func newMCPCommand() *cobra.Command {
	var withLedger bool
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve parse, render and callback tools over MCP stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.FromEnv()
			logger := stderrLogger(cmd, cfg.LogLevel)
			renderer := notification.NewRenderer(nil)
			service := bridge.New(cfg.Classifier(), renderer, nil, bridge.Chats{}, nil, logger.With("component", "bridge"))

			var ingestions mcpserver.IngestionLister
			if withLedger {
				if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
					return fmt.Errorf("create db directory: %w", err)
				}
				sqlStore, err := store.New(cfg.DBPath)
				if err != nil {
					return err
				}
				defer sqlStore.Close()
				if err := sqlStore.AutoMigrate(context.Background()); err != nil {
					return err
				}
				ingestions = sqlStore
			}

			server, err := mcpserver.New(mcpserver.Config{
				Version: app.Version,
				Logger:  logger.With("component", "mcp"),
			}, service, notification.NewCoordinator(renderer), ingestions)
			if err != nil {
				return err
			}
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return server.Run(ctx)
		},
	}
	cmd.Flags().BoolVar(&withLedger, "ledger", true, "expose the ingestion ledger through list_ingestions")
	return cmd
}
