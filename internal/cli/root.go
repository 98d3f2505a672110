package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dwizi/notify-bridge/internal/app"
	"github.com/dwizi/notify-bridge/internal/config"
)

func NewRoot() *cobra.Command {
	var envFile string
	root := &cobra.Command{
		Use:           "notify-bridge",
		Short:         "Notify Bridge turns ITSM and monitoring e-mail into VK Teams chat messages",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return config.LoadDotEnv(envFile)
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", "", "dotenv file to load before reading NOTIFY_BRIDGE_* variables (default ./.env if present)")

	root.AddCommand(newServeCommand())
	root.AddCommand(newPollCommand())
	root.AddCommand(newPreviewCommand())
	root.AddCommand(newLedgerCommand())
	root.AddCommand(newMCPCommand())
	root.AddCommand(newVersionCommand())

	return root
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run mail sources, the chat gateway and the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.FromEnv()
			runtime, err := app.New(cfg, app.NewLogger(cfg.LogLevel, cfg.LogFormat, os.Stdout))
			if err != nil {
				return err
			}
			defer runtime.Close()

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return runtime.Run(ctx)
		},
	}
}

func newPollCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "poll",
		Short: "Poll every configured mail source once and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.FromEnv()
			runtime, err := app.New(cfg, app.NewLogger(cfg.LogLevel, cfg.LogFormat, cmd.ErrOrStderr()))
			if err != nil {
				return err
			}
			defer runtime.Close()

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return runtime.PollNow(ctx)
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print CLI version",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Println(app.Version)
		},
	}
}

// stderrLogger keeps stdout free for command output and protocol traffic.
func stderrLogger(cmd *cobra.Command, level string) *slog.Logger {
	return app.NewLogger(level, "text", cmd.ErrOrStderr())
}
