// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/Thermoquad/protoframe/internal/capture"
	"github.com/Thermoquad/protoframe/internal/metrics"
	"github.com/Thermoquad/protoframe/internal/transport"
	"github.com/Thermoquad/protoframe/pkg/protoframe"
	"go.uber.org/zap"
)

// session owns an open connection and the engine running over it. The
// engine is only touched with mu held, so the metrics scraper can read it
// while the tick loop runs.
type session struct {
	conn     transport.Conn
	connInfo string
	engine   *protoframe.Engine
	capture  *os.File

	mu sync.Mutex
}

type sessionOptions struct {
	handlers    map[protoframe.PayloadKind]protoframe.Handler
	onDrop      func(protoframe.Command)
	captureFile string
}

// openSession connects using the loaded configuration and starts an engine
func openSession(ctx context.Context, opts sessionOptions) (*session, error) {
	conn, connInfo, err := transport.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	s := &session{conn: conn, connInfo: connInfo}

	var stream protoframe.Stream = conn
	if opts.captureFile != "" {
		f, err := os.Create(opts.captureFile)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("create capture file: %w", err)
		}
		s.capture = f
		tee := capture.NewTeeStream(conn, capture.NewWriter(f))
		tee.OnError = func(err error) { logger.Warn("capture write failed", zap.Error(err)) }
		stream = tee
	}

	engineCfg, err := cfg.EngineOptions(logger)
	if err != nil {
		s.close()
		return nil, err
	}
	engineCfg.Handlers = opts.handlers
	engineCfg.OnDrop = opts.onDrop

	s.engine, err = protoframe.NewEngine(stream, engineCfg)
	if err != nil {
		s.close()
		return nil, err
	}
	return s, nil
}

// with runs fn on the engine with the session lock held
func (s *session) with(fn func(e *protoframe.Engine)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.engine)
}

func (s *session) send(cmd protoframe.Command) error {
	var err error
	s.with(func(e *protoframe.Engine) { err = e.Send(cmd) })
	return err
}

// run ticks the engine every tick interval until ctx is done or the
// connection fails. each, if set, runs after every tick with the lock held.
func (s *session) run(ctx context.Context, each func(e *protoframe.Engine)) error {
	ticker := time.NewTicker(cfg.Engine.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		s.with(func(e *protoframe.Engine) {
			e.Tick()
			if each != nil {
				each(e)
			}
		})
		if err := s.connErr(); err != nil {
			return fmt.Errorf("connection lost: %w", err)
		}
	}
}

func (s *session) connErr() error {
	type errer interface{ Err() error }
	if c, ok := s.conn.(errer); ok {
		return c.Err()
	}
	return nil
}

// serveMetrics exposes the engine statistics on addr until ctx is done
func (s *session) serveMetrics(ctx context.Context, addr, path string) {
	reg := metrics.NewRegistry()
	reg.MustRegister(metrics.NewEngineCollector(func() metrics.Snapshot {
		var snap metrics.Snapshot
		s.with(func(e *protoframe.Engine) { snap = metrics.EngineSnapshot(e) })
		return snap
	}))

	go func() {
		if err := metrics.Serve(ctx, addr, path, reg, logger); err != nil {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()
}

func (s *session) close() {
	if s.capture != nil {
		if err := s.capture.Close(); err != nil {
			logger.Warn("closing capture file", zap.Error(err))
		}
	}
	if err := s.conn.Close(); err != nil && !errors.Is(err, transport.ErrConnectionClosed) {
		logger.Debug("closing connection", zap.Error(err))
	}
}
