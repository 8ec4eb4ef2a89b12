package main

import (
	"log/slog"
	"os"

	"github.com/GreedyKomodoDragon/s3-snapshot/internal/cli"
)

func main() {
	if err := cli.App().Run(os.Args); err != nil {
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
		logger.Error("Snapshot failed", "error", err)
		os.Exit(1)
	}
}
