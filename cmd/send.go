// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/Thermoquad/protoframe/pkg/protoframe"
	"github.com/spf13/cobra"
)

var sendNoWait bool

var sendCmd = &cobra.Command{
	Use:   "send <kind> <target> [args...]",
	Short: "Send one command and wait for its acknowledgement",
	Long: `Send a single command and keep the engine running until the peer
acknowledges it or the retry budget runs out.

Commands:
  ` + commandUsage + `

Exit codes:
  0 - Command acknowledged
  1 - Command abandoned after all retries
  2 - Connection error`,
	Example: `  protoframe send led dome 1 2 10 --port /dev/ttyUSB0
  protoframe send move body body_neck 10 20 0 --region dome
  protoframe send sound neck 3 true false --url ws://bridge.local/serial`,
	Args: cobra.MinimumNArgs(2),
	RunE: runSend,
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().BoolVar(&sendNoWait, "no-wait", false, "Return right after writing the frame")
}

func runSend(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	dropped := make(chan protoframe.Command, 1)
	s, err := openSession(ctx, sessionOptions{
		onDrop: func(c protoframe.Command) {
			select {
			case dropped <- c:
			default:
			}
		},
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer s.close()

	var command protoframe.Command
	s.with(func(e *protoframe.Engine) { command, err = parseCommand(e, args) })
	if err != nil {
		return err
	}

	fmt.Printf("Connection: %s\n", s.connInfo)
	fmt.Printf("Sending:    %s\n", protoframe.FormatCommand(command))

	if err := s.send(command); err != nil {
		return err
	}
	if sendNoWait {
		return nil
	}

	// Long enough for every retry to time out, plus slack for the last one
	wait := time.Duration(cfg.Engine.Timeout)*time.Millisecond*time.Duration(cfg.Engine.MaxRetries+2) + time.Second
	ctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	acked := make(chan struct{})
	runCtx, stopRun := context.WithCancel(ctx)
	defer stopRun()

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.run(runCtx, func(e *protoframe.Engine) {
			if _, pending := e.Pending(command.ID); !pending && e.Stats().Dropped == 0 {
				select {
				case <-acked:
				default:
					close(acked)
				}
			}
		})
	}()

	select {
	case <-acked:
		fmt.Printf("Acknowledged (id=%d)\n", command.ID)
		return nil
	case c := <-dropped:
		fmt.Fprintf(os.Stderr, "FAILED: no acknowledgement for id=%d after %d retries\n", c.ID, cfg.Engine.MaxRetries)
		os.Exit(1)
	case err := <-errCh:
		if err != nil {
			fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
			os.Exit(2)
		}
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		fmt.Fprintf(os.Stderr, "TIMEOUT: gave up waiting after %s\n", wait)
		os.Exit(1)
	}
	return nil
}
