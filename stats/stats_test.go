// Package stats maintains sliding-window per-column activity tracking
/*
 * Copyright (c) 2021-2026, WeaveMesh Systems, Inc. All rights reserved.
 */
package stats_test

import (
	"testing"
	"time"

	"github.com/weavemesh/weavemesh/stats"
)

func Test_ColumnMetrics(t *testing.T) {
	col := stats.NewColumn("test.in")
	for n := 0; n < 60; n++ {
		col.Add(100, 0)
	}
	col.Add(100, 30*time.Millisecond)
	col.Add(100, 10*time.Millisecond)

	m := col.Snapshot()
	if m.ActionsPerMin <= 0 {
		t.Fatalf("actions/min: %v", m.ActionsPerMin)
	}
	if m.BytesPerSec <= 0 {
		t.Fatalf("bytes/sec: %v", m.BytesPerSec)
	}
	if m.MaxDelay != 30*time.Millisecond {
		t.Fatalf("max delay: %v", m.MaxDelay)
	}
	if m.AvgDelay != 20*time.Millisecond {
		t.Fatalf("avg delay: %v", m.AvgDelay)
	}
}

func Test_NegativeSkewClamped(t *testing.T) {
	col := stats.NewColumn("test.skew")
	col.Add(1, -5*time.Millisecond)
	if m := col.Snapshot(); m.MaxDelay != 0 || m.AvgDelay != 0 {
		t.Fatalf("negative delay not clamped: %+v", m)
	}
}
