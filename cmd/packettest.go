// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/Thermoquad/protoframe/pkg/protoframe"
	"github.com/spf13/cobra"
)

var packetTestTimeout int

var packetTestCmd = &cobra.Command{
	Use:   "packet_test",
	Short: "Test connection by waiting for a valid frame",
	Long: `Wait for a valid frame on the connection until timeout.

This command connects to a serial port or WebSocket and waits for any frame
that passes the CRC check. Leading noise is skipped. The received command is
acknowledged like any other.

Exit codes:
  0 - Frame received before timeout
  1 - Timeout reached without receiving a valid frame
  2 - Connection error`,
	RunE: runPacketTest,
}

func init() {
	rootCmd.AddCommand(packetTestCmd)
	packetTestCmd.Flags().IntVar(&packetTestTimeout, "timeout-seconds", 10, "Seconds to wait for a frame")
}

func runPacketTest(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), time.Duration(packetTestTimeout)*time.Second)
	defer cancel()

	s, err := openSession(ctx, sessionOptions{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer s.close()

	fmt.Printf("Protoframe - Packet Test\n")
	fmt.Printf("Connection: %s\n", s.connInfo)
	fmt.Printf("Timeout: %d seconds\n", packetTestTimeout)
	fmt.Printf("Waiting for valid frame...\n\n")

	var (
		received protoframe.Command
		ok       bool
		stats    protoframe.Statistics
	)
	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	err = s.run(runCtx, func(e *protoframe.Engine) {
		if e.Stats().FramesReceived == 0 {
			return
		}
		stats = e.Stats()
		received, ok = e.LastReceived()
		stop()
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Read error: %v\n", err)
		os.Exit(2)
	}

	if stats.FramesReceived == 0 {
		fmt.Fprintf(os.Stderr, "TIMEOUT: No valid frame received within %d seconds\n", packetTestTimeout)
		os.Exit(1)
	}

	fmt.Printf("SUCCESS: Received valid frame\n")
	if stats.DiscardedBytes > 0 {
		fmt.Printf("  (skipped %d invalid bytes before sync)\n", stats.DiscardedBytes)
	}
	if ok {
		fmt.Printf("  Command: %s\n", protoframe.FormatCommand(received))
	} else {
		fmt.Printf("  Payload did not decode (%d decode errors)\n", stats.DecodeErrors)
	}
	return nil
}
