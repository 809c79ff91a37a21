package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/andrestor94/pliegos-ai/internal/config"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:          "pliegos",
	Short:        "Analyze public tender documents",
	Long:         `Turns a tender and its annexes into a cited PDF report.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log pipeline progress to stderr")
}

// newLogger writes text logs to stderr so stdout stays parseable.
func newLogger() *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func loadConfig() (config.Config, error) {
	cfg := config.Load()
	return cfg, cfg.Validate()
}
