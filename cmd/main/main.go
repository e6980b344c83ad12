package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
)

// app carries the state shared by all subcommands.
type app struct {
	configPath string
	logLevel   string
	config     *Config
	logger     *slog.Logger
	stdout     io.Writer
}

// loadConfig reads the config file and sets up the logger. The --log-level
// flag wins over the file's log_level.
func (a *app) loadConfig() error {
	config, err := LoadConfig(a.configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	a.config = config

	level := config.LogLevel
	if a.logLevel != "" {
		level = a.logLevel
	}
	a.logger = newLogger(a.stdout, level)
	a.logger.Debug("Loaded configuration", "path", a.configPath)
	return nil
}

func newLogger(w io.Writer, level string) *slog.Logger {
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: logLevel}))
}

func newRootCmd(stdout io.Writer) *cobra.Command {
	a := &app{stdout: stdout}

	rootCmd := &cobra.Command{
		Use:           "cascadia",
		Short:         "Static site builder",
		Long:          `cascadia renders the pages under the input directory into the output directory and copies passthrough files verbatim.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.SetOut(stdout)
	rootCmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", "./site.json", "path to the config file (.json or .toml)")
	rootCmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "override the configured log level (debug|info|warn|error)")

	rootCmd.AddCommand(newBuildCmd(a))
	rootCmd.AddCommand(newCleanCmd(a))
	rootCmd.AddCommand(newConfigCmd(a))
	rootCmd.AddCommand(newStatsCmd(a))
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

func main() {
	baseLogger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(os.Stdout).ExecuteContext(ctx); err != nil {
		baseLogger.Error("Command failed", "error", err)
		stop()
		os.Exit(1)
	}
}
