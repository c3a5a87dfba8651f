package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"task-dashboard/backend/internal/config"
)

var Version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "taskdash",
		Short:         "Task dashboard backend",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "configuration file (falls back to env when missing)")

	load := func() (*config.Config, *slog.Logger, error) {
		cfg, err := config.LoadConfig(configPath)
		if err != nil {
			return nil, nil, err
		}
		return cfg, mustMakeLogger(cfg.Log.Level, cfg.Log.Format), nil
	}

	rootCmd.AddCommand(serveCmd(load))
	rootCmd.AddCommand(statsCmd(load))
	rootCmd.AddCommand(tasksCmd(load))
	rootCmd.AddCommand(seedDBCmd(load))

	return rootCmd
}

type loader func() (*config.Config, *slog.Logger, error)

func mustMakeLogger(logLevel, format string) *slog.Logger {
	var level slog.Level
	switch strings.ToUpper(logLevel) {
	case "DEBUG":
		level = slog.LevelDebug
	case "INFO":
		level = slog.LevelInfo
	case "WARN":
		level = slog.LevelWarn
	case "ERROR":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
