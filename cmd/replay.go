// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/Thermoquad/protoframe/internal/capture"
	"github.com/Thermoquad/protoframe/pkg/protoframe"
	"github.com/spf13/cobra"
)

var replayShowRaw bool

var replayCmd = &cobra.Command{
	Use:   "replay <capture-file>",
	Short: "Feed a recorded capture through a fresh engine",
	Long: `Replay the inbound side of a capture written by "listen --capture".

The recorded bytes are fed chunk by chunk into an engine running over an
in-memory stream, so framing, deduplication and decode errors behave exactly
as they did live. No connection is opened.`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().BoolVar(&replayShowRaw, "raw", false, "Also print the raw bytes of every record")
}

func runReplay(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	return replayCapture(f, cmd.OutOrStdout())
}

func replayCapture(r io.Reader, out io.Writer) error {
	show := func(c protoframe.Command) {
		fmt.Fprintln(out, protoframe.FormatCommand(c))
	}

	engineCfg, err := cfg.EngineOptions(logger)
	if err != nil {
		return err
	}
	engineCfg.Handlers = map[protoframe.PayloadKind]protoframe.Handler{
		protoframe.KindLed:   show,
		protoframe.KindMove:  show,
		protoframe.KindSound: show,
	}

	stream := protoframe.NewBufferStream()
	e, err := protoframe.NewEngine(stream, engineCfg)
	if err != nil {
		return err
	}

	n, err := capture.Replay(r, stream.Feed, func(rec capture.Record) {
		if replayShowRaw {
			fmt.Fprintf(out, "%s %s %s\n", rec.At.Format("15:04:05.000"), rec.Dir, protoframe.FormatBytes(rec.Data))
		}
		e.ReadFrame()
		stream.TakeWritten()
	})
	if err != nil {
		return fmt.Errorf("replay stopped after %d records: %w", n, err)
	}

	stats := e.Stats()
	fmt.Fprintf(out, "\nReplayed %d records\n%s", n, stats.String())
	return nil
}
