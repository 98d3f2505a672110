package main

import (
	"log/slog"
	"os"

	"github.com/dwizi/notify-bridge/internal/cli"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	if err := cli.NewRoot().Execute(); err != nil {
		logger.Error("command failed", "error", err)
		os.Exit(1)
	}
}
