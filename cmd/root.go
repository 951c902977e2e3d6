// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"time"

	"github.com/Thermoquad/protoframe/internal/config"
	"github.com/Thermoquad/protoframe/internal/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	configFile string

	// Loaded in PersistentPreRunE
	v      = viper.New()
	cfg    *config.Config
	logger = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "protoframe",
	Short: "Reliable command exchange over serial links",
	Long: `Protoframe - send, receive and monitor framed commands over a serial link.

Every command is framed as START | LENGTH | PAYLOAD | CRC8, acknowledged by the
receiver and retried by the sender until it is acknowledged or its retry
budget runs out.

Connection modes:
  Serial:    --port /dev/ttyUSB0 [--baud 115200]
  WebSocket: --url ws://host/path [--username user]

For WebSocket authentication, the password is read from the PROTOFRAME_PASSWORD
environment variable, or prompted interactively if not set.

Every flag can also be set in protoframe.yaml (or the file given by --config)
and through PROTOFRAME_* environment variables, e.g. PROTOFRAME_ENGINE_TIMEOUT.`,
	Version:           "1.0.0",
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configFile, "config", "", "Config file (default ./protoframe.yaml if present)")

	// Serial connection flags
	pf.StringP("port", "p", "", "Serial port device")
	pf.IntP("baud", "b", 115200, "Baud rate (serial only)")

	// WebSocket connection flags
	pf.StringP("url", "u", "", "WebSocket URL (ws:// or wss://)")
	pf.String("username", "", "Username for HTTP Basic auth")
	pf.Bool("no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	// Engine
	pf.StringP("region", "r", "unspecified", "Own region: body, leg, neck, dome or a number")
	pf.Uint32("timeout", 1000, "Ack timeout and per-tick read budget in milliseconds")
	pf.Int("max-retries", 3, "Resends before a command is abandoned")
	pf.Duration("tick", 10*time.Millisecond, "Engine tick interval")

	// Logging
	pf.String("log-level", "info", "Log level: debug, info, warn, error")
	pf.String("log-format", "console", "Log format: console or json")
	pf.String("log-file", "", "Also write logs to this file, rotated")

	bind := map[string]string{
		"port":                 "port",
		"baud":                 "baud",
		"url":                  "url",
		"username":             "username",
		"no_ssl_verify":        "no-ssl-verify",
		"region":               "region",
		"engine.timeout":       "timeout",
		"engine.max_retries":   "max-retries",
		"engine.tick_interval": "tick",
		"log.level":            "log-level",
		"log.format":           "log-format",
		"log.file":             "log-file",
	}
	for key, flag := range bind {
		mustBind(key, pf.Lookup(flag))
	}
}

func mustBind(key string, flag *pflag.Flag) {
	if err := v.BindPFlag(key, flag); err != nil {
		panic(err)
	}
}

func loadConfig(cmd *cobra.Command, args []string) error {
	loaded, err := config.Load(v, configFile)
	if err != nil {
		return err
	}
	cfg = loaded

	l, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	logger = l
	return nil
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
