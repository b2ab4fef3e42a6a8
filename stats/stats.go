// Package stats maintains sliding-window per-column activity, bandwidth,
// delay and clock-diff tracking for channels and object types
/*
 * Copyright (c) 2021-2026, WeaveMesh Systems, Inc. All rights reserved.
 */
package stats

import (
	"sync"
	"time"

	"github.com/weavemesh/weavemesh/cmn/mono"
)

const (
	winLength  = 5 * time.Minute
	idleWindow = 5 * time.Minute
)

type (
	window struct {
		start    int64 // mono
		actions  int64
		bytes    int64
		sumDelay time.Duration
		maxDelay time.Duration
		delayCnt int64
	}

	// Column tracks one traffic column (input, output, compressed input,
	// ...) over two rotating 5-minute windows.
	Column struct {
		name     string
		cur      window
		prev     window
		lastAct  int64 // mono
		hasPrev  bool
		mu       sync.Mutex
	}

	Metrics struct {
		ActionsPerMin float64
		BytesPerSec   float64
		AvgDelay      time.Duration
		MaxDelay      time.Duration
	}
)

func NewColumn(name string) *Column {
	now := mono.NanoTime()
	return &Column{name: name, cur: window{start: now}, lastAct: now}
}

func (c *Column) Name() string { return c.name }

// Add records one action. A non-zero delay is the propagation latency of a
// time-stamped action, already adjusted for the peer's clock skew.
func (c *Column) Add(bytes int, delay time.Duration) {
	now := mono.NanoTime()
	c.mu.Lock()
	c.roll(now)
	c.cur.actions++
	c.cur.bytes += int64(bytes)
	if delay != 0 {
		if delay < 0 {
			delay = 0 // skew overshoot
		}
		c.cur.sumDelay += delay
		c.cur.delayCnt++
		if delay > c.cur.maxDelay {
			c.cur.maxDelay = delay
		}
	}
	c.lastAct = now
	c.mu.Unlock()
}

// roll rotates the current window after 5 minutes and discards both windows
// after 5 minutes of inactivity.
func (c *Column) roll(now int64) {
	if time.Duration(now-c.lastAct) >= idleWindow {
		c.cur = window{start: now}
		c.prev = window{}
		c.hasPrev = false
		return
	}
	if time.Duration(now-c.cur.start) >= winLength {
		c.prev, c.hasPrev = c.cur, true
		c.cur = window{start: now}
	}
}

func (c *Column) Snapshot() Metrics {
	now := mono.NanoTime()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.roll(now)
	var (
		m     Metrics
		total = c.cur
	)
	if c.hasPrev {
		total.actions += c.prev.actions
		total.bytes += c.prev.bytes
		total.sumDelay += c.prev.sumDelay
		total.delayCnt += c.prev.delayCnt
		if c.prev.maxDelay > total.maxDelay {
			total.maxDelay = c.prev.maxDelay
		}
		total.start = c.prev.start
	}
	elapsed := time.Duration(now - total.start)
	if elapsed <= 0 {
		return m
	}
	m.ActionsPerMin = float64(total.actions) / elapsed.Minutes()
	m.BytesPerSec = float64(total.bytes) / elapsed.Seconds()
	m.MaxDelay = total.maxDelay
	if total.delayCnt > 0 {
		m.AvgDelay = total.sumDelay / time.Duration(total.delayCnt)
	}
	return m
}
