// CIDS - Clock-based Intrusion Detection for Broadcast Buses
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cids

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tomtom215/cids/internal/logging"
	"github.com/tomtom215/cids/internal/simulation"
)

var version = "dev"

var rootCmd = newRootCmd()

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// rootOptions are the persistent flags shared by every subcommand.
type rootOptions struct {
	logLevel  string
	logFormat string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "cidssim",
		Short: "Clock-skew attack simulator",
		Long: `cidssim - attack experiments for the clock-skew detector

Each subcommand generates a periodic sender with uniform interval
jitter, runs a baseline phase, then switches to an attack and feeds every
timestamp to a fresh detector in virtual time.`,
		Version:      version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			switch opts.logLevel {
			case "trace", "debug", "info", "warn", "error":
			default:
				return fmt.Errorf("unknown log level %q", opts.logLevel)
			}
			logging.Init(logging.Config{
				Level:     opts.logLevel,
				Format:    opts.logFormat,
				Timestamp: true,
				Output:    cmd.ErrOrStderr(),
			})
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "Log level (trace, debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&opts.logFormat, "log-format", "console", "Log format (json, console)")

	for _, s := range simulation.Scenarios {
		cmd.AddCommand(newScenarioCmd(s))
	}
	cmd.AddCommand(newScenariosCmd())

	cmd.CompletionOptions.DisableDefaultCmd = true
	cmd.SetVersionTemplate(fmt.Sprintf("cidssim version %s\n", version))
	return cmd
}

func newScenariosCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scenarios",
		Short: "List the available scenarios",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			for _, s := range simulation.Scenarios {
				fmt.Fprintln(cmd.OutOrStdout(), s)
			}
		},
	}
}
