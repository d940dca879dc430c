// CIDS - Clock-based Intrusion Detection for Broadcast Buses
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cids

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tomtom215/cids/internal/api"
	"github.com/tomtom215/cids/internal/config"
	"github.com/tomtom215/cids/internal/logging"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

type options struct {
	configPath   string
	replayPath   string
	replayFormat string
	replayStrict bool
	trailing     float64
}

// runFunc executes the command once flags are parsed.
type runFunc func(ctx context.Context, opts options, out io.Writer) error

var rootCmd = newRootCmd(run)

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func newRootCmd(fn runFunc) *cobra.Command {
	opts := options{}

	cmd := &cobra.Command{
		Use:   "cids",
		Short: "Clock-skew intrusion detector for broadcast buses",
		Long: `cids - clock-based intrusion detection for CAN style buses

Without flags cids runs as a daemon: frames arrive over NATS, results and
alerts go to DuckDB, NATS, the WebSocket stream and the CSV log, and the
REST API serves detector state. With --replay a log file is run through a
fresh engine in virtual time and a JSON summary is printed.`,
		Version:      version,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		PreRunE: func(_ *cobra.Command, _ []string) error {
			if opts.trailing < 0 {
				return fmt.Errorf("--trailing must not be negative, got %v", opts.trailing)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return fn(cmd.Context(), opts, cmd.OutOrStdout())
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.configPath, "config", "", "Config file (default: $CONFIG_PATH or ./config.yaml)")
	f.StringVar(&opts.replayPath, "replay", "", "Run a candump or CSV log through the engine and exit")
	f.StringVar(&opts.replayFormat, "replay-format", "auto", "Replay log format (auto, candump, csv)")
	f.BoolVar(&opts.replayStrict, "replay-strict", false, "Stop the replay at the first malformed line")
	f.Float64Var(&opts.trailing, "trailing", 0, "Seconds of virtual silence appended after the last replayed frame")

	cmd.CompletionOptions.DisableDefaultCmd = true
	cmd.SetVersionTemplate(fmt.Sprintf("cids version %s\n", version))
	return cmd
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

// run loads the configuration and starts replay or daemon mode.
func run(parent context.Context, opts options, out io.Writer) error {
	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logging.Init(cfg.LoggingConfig())
	api.Version = version

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
			cancel()
		case <-ctx.Done():
		}
	}()

	if opts.replayPath != "" {
		if err := runReplay(ctx, cfg, opts, out); err != nil {
			logging.Error().Err(err).Str("file", opts.replayPath).Msg("Replay failed")
			return err
		}
		return nil
	}

	if err := runDaemon(ctx, cfg); err != nil {
		logging.Error().Err(err).Msg("Daemon stopped with error")
		return err
	}
	return nil
}
