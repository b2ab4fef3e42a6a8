// Package stats maintains sliding-window per-column activity tracking
/*
 * Copyright (c) 2021-2026, WeaveMesh Systems, Inc. All rights reserved.
 */
package stats

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	inBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "weavemesh", Subsystem: "channel", Name: "in_bytes_total",
		Help: "Inbound bytes per channel",
	}, []string{"channel"})
	outBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "weavemesh", Subsystem: "channel", Name: "out_bytes_total",
		Help: "Outbound bytes per channel",
	}, []string{"channel"})
	inLines = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "weavemesh", Subsystem: "channel", Name: "in_lines_total",
		Help: "Inbound lines per channel",
	}, []string{"channel"})
	outLines = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "weavemesh", Subsystem: "channel", Name: "out_lines_total",
		Help: "Outbound lines per channel",
	}, []string{"channel"})
	clockGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "weavemesh", Subsystem: "channel", Name: "clock_diff_seconds",
		Help: "Estimated remote-minus-local clock skew",
	}, []string{"channel"})
)

// Channel aggregates the per-channel traffic columns.
type Channel struct {
	name      string
	in, out   *Column
	clockDiff atomic.Int64 // ns
}

func NewChannel(name string) *Channel {
	return &Channel{
		name: name,
		in:   NewColumn(name + ".in"),
		out:  NewColumn(name + ".out"),
	}
}

func (s *Channel) In(bytes int) {
	s.in.Add(bytes, 0)
	inBytes.WithLabelValues(s.name).Add(float64(bytes))
	inLines.WithLabelValues(s.name).Inc()
}

// InDelayed records an inbound action whose command timestamp is known; the
// propagation delay is computed with the peer's clock skew applied.
func (s *Channel) InDelayed(bytes int, cmdTs time.Time) {
	delay := time.Since(cmdTs) + time.Duration(s.clockDiff.Load())
	s.in.Add(bytes, delay)
	inBytes.WithLabelValues(s.name).Add(float64(bytes))
	inLines.WithLabelValues(s.name).Inc()
}

func (s *Channel) Out(bytes int) {
	s.out.Add(bytes, 0)
	outBytes.WithLabelValues(s.name).Add(float64(bytes))
	outLines.WithLabelValues(s.name).Inc()
}

func (s *Channel) ClockDiff(d time.Duration) {
	s.clockDiff.Store(int64(d))
	clockGauge.WithLabelValues(s.name).Set(d.Seconds())
}

func (s *Channel) InMetrics() Metrics  { return s.in.Snapshot() }
func (s *Channel) OutMetrics() Metrics { return s.out.Snapshot() }
