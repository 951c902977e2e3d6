// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/Thermoquad/protoframe/pkg/protoframe"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const namespace = "protoframe"

// NewRegistry creates a Prometheus registry with the Go and process collectors
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler returns the Prometheus HTTP handler for reg
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// Snapshot is a point-in-time view of an engine
type Snapshot struct {
	Stats    protoframe.Statistics
	Pending  int
	Sent     int
	Received int
}

// EngineSnapshot reads a Snapshot from e. It must be called from the
// goroutine that drives e.
func EngineSnapshot(e *protoframe.Engine) Snapshot {
	return Snapshot{
		Stats:    e.Stats(),
		Pending:  e.PendingCount(),
		Sent:     e.SentHistorySize(),
		Received: e.ReceivedHistorySize(),
	}
}

type counterDesc struct {
	desc  *prometheus.Desc
	value func(*protoframe.Statistics) uint64
}

// EngineCollector exports engine statistics on every scrape. snapshot is
// called from the scraping goroutine, so it has to do its own locking.
type EngineCollector struct {
	snapshot func() Snapshot

	counters []counterDesc
	pending  *prometheus.Desc
	sent     *prometheus.Desc
	received *prometheus.Desc
}

// NewEngineCollector creates a collector reading from snapshot
func NewEngineCollector(snapshot func() Snapshot) *EngineCollector {
	counter := func(name, help string, value func(*protoframe.Statistics) uint64) counterDesc {
		return counterDesc{
			desc:  prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, nil, nil),
			value: value,
		}
	}
	gauge := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, nil, nil)
	}

	return &EngineCollector{
		snapshot: snapshot,
		counters: []counterDesc{
			counter("frames_received_total", "Frames received with a valid checksum.", func(s *protoframe.Statistics) uint64 { return s.FramesReceived }),
			counter("frames_sent_total", "Frames written to the stream.", func(s *protoframe.Statistics) uint64 { return s.FramesSent }),
			counter("checksum_errors_total", "Frames rejected for a checksum mismatch.", func(s *protoframe.Statistics) uint64 { return s.ChecksumErrors }),
			counter("length_errors_total", "Frames rejected for an oversize length byte.", func(s *protoframe.Statistics) uint64 { return s.LengthErrors }),
			counter("decode_errors_total", "Payloads that failed to decode.", func(s *protoframe.Statistics) uint64 { return s.DecodeErrors }),
			counter("duplicates_total", "Commands received again after they were already seen.", func(s *protoframe.Statistics) uint64 { return s.Duplicates }),
			counter("dispatched_total", "Commands delivered to a handler.", func(s *protoframe.Statistics) uint64 { return s.Dispatched }),
			counter("acks_received_total", "Positive acknowledgements received.", func(s *protoframe.Statistics) uint64 { return s.AcksReceived }),
			counter("nacks_received_total", "Negative acknowledgements received.", func(s *protoframe.Statistics) uint64 { return s.NacksReceived }),
			counter("acks_sent_total", "Positive acknowledgements sent.", func(s *protoframe.Statistics) uint64 { return s.AcksSent }),
			counter("nacks_sent_total", "Negative acknowledgements sent.", func(s *protoframe.Statistics) uint64 { return s.NacksSent }),
			counter("resends_total", "Commands retransmitted.", func(s *protoframe.Statistics) uint64 { return s.Resends }),
			counter("dropped_total", "Commands abandoned without an acknowledgement.", func(s *protoframe.Statistics) uint64 { return s.Dropped }),
			counter("write_errors_total", "Failed or short stream writes.", func(s *protoframe.Statistics) uint64 { return s.WriteErrors }),
			counter("discarded_bytes_total", "Bytes skipped while scanning for a start byte.", func(s *protoframe.Statistics) uint64 { return s.DiscardedBytes }),
			counter("read_budget_hits_total", "Reads cut short by the per-tick time budget.", func(s *protoframe.Statistics) uint64 { return s.ReadBudgetHits }),
		},
		pending:  gauge("pending_acks", "Sent commands awaiting acknowledgement."),
		sent:     gauge("sent_history_size", "Commands held in the sent-history."),
		received: gauge("received_history_size", "Commands held in the received-history."),
	}
}

// Describe implements prometheus.Collector
func (c *EngineCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, cd := range c.counters {
		ch <- cd.desc
	}
	ch <- c.pending
	ch <- c.sent
	ch <- c.received
}

// Collect implements prometheus.Collector
func (c *EngineCollector) Collect(ch chan<- prometheus.Metric) {
	snap := c.snapshot()
	for _, cd := range c.counters {
		ch <- prometheus.MustNewConstMetric(cd.desc, prometheus.CounterValue, float64(cd.value(&snap.Stats)))
	}
	ch <- prometheus.MustNewConstMetric(c.pending, prometheus.GaugeValue, float64(snap.Pending))
	ch <- prometheus.MustNewConstMetric(c.sent, prometheus.GaugeValue, float64(snap.Sent))
	ch <- prometheus.MustNewConstMetric(c.received, prometheus.GaugeValue, float64(snap.Received))
}

// Serve exposes reg on addr at path until ctx is cancelled
func Serve(ctx context.Context, addr, path string, reg *prometheus.Registry, log *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle(path, Handler(reg))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("metrics listening", zap.String("addr", addr), zap.String("path", path))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
