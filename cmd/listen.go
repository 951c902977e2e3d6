// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/Thermoquad/protoframe/pkg/protoframe"
	"github.com/spf13/cobra"
)

var listenStatsInterval time.Duration

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Acknowledge and print every command received",
	Long: `Run the engine as a passive endpoint: every inbound command is
acknowledged, deduplicated and printed in human-readable form.

Use --capture to record the raw traffic to a file for the replay command, and
--metrics-addr to expose engine statistics to Prometheus.

Supports both serial and WebSocket connections.`,
	RunE: runListen,
}

func init() {
	rootCmd.AddCommand(listenCmd)
	listenCmd.Flags().String("capture", "", "Record raw traffic to this file")
	listenCmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9100")
	listenCmd.Flags().DurationVar(&listenStatsInterval, "stats-interval", 0, "Print statistics at this interval (0 disables)")

	mustBind("capture.file", listenCmd.Flags().Lookup("capture"))
	mustBind("metrics.addr", listenCmd.Flags().Lookup("metrics-addr"))
}

func runListen(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	show := func(c protoframe.Command) {
		fmt.Printf("[%s] %s\n", time.Now().Format("15:04:05.000"), protoframe.FormatCommand(c))
	}
	s, err := openSession(ctx, sessionOptions{
		handlers: map[protoframe.PayloadKind]protoframe.Handler{
			protoframe.KindLed:   show,
			protoframe.KindMove:  show,
			protoframe.KindSound: show,
		},
		captureFile: cfg.Capture.File,
	})
	if err != nil {
		return err
	}
	defer s.close()

	fmt.Printf("Protoframe - Listen\n")
	fmt.Printf("Connection: %s\n", s.connInfo)
	if cfg.Capture.File != "" {
		fmt.Printf("Capture:    %s\n", cfg.Capture.File)
	}
	if cfg.Metrics.Addr != "" {
		s.serveMetrics(ctx, cfg.Metrics.Addr, cfg.Metrics.Path)
		fmt.Printf("Metrics:    http://%s%s\n", cfg.Metrics.Addr, cfg.Metrics.Path)
	}
	fmt.Printf("Press Ctrl+C to exit\n\n")

	lastStats := time.Now()
	err = s.run(ctx, func(e *protoframe.Engine) {
		if listenStatsInterval > 0 && time.Since(lastStats) >= listenStatsInterval {
			stats := e.Stats()
			fmt.Print(stats.String())
			lastStats = time.Now()
		}
	})

	s.with(func(e *protoframe.Engine) {
		stats := e.Stats()
		fmt.Printf("\n%s", stats.String())
	})
	return err
}
