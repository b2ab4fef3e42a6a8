// Package wire implements the buffered channel
/*
 * Copyright (c) 2021-2026, WeaveMesh Systems, Inc. All rights reserved.
 */
package wire

import (
	"sync/atomic"
	"time"

	"github.com/weavemesh/weavemesh/cmn"
	"github.com/weavemesh/weavemesh/cmn/mono"
)

// flusher adapts the flush interval to the observed write rate over
// 30-second windows: light traffic flushes within 20 ms, heavy traffic
// batches up to 1 s (piecewise-linear in between).
type flusher struct {
	winStart  atomic.Int64 // mono
	winCnt    atomic.Int64
	rate      atomic.Int64 // writes/sec over the last window
	lastFlush atomic.Int64 // mono
	dirty     atomic.Bool
}

// rates (writes/sec) pinning the two ends of the interval ramp
const (
	rateLo = 10
	rateHi = 500
)

func (f *flusher) init() {
	now := mono.NanoTime()
	f.winStart.Store(now)
	f.lastFlush.Store(now)
}

func (f *flusher) count() {
	f.dirty.Store(true)
	n := f.winCnt.Add(1)
	start := f.winStart.Load()
	elapsed := mono.Since(start)
	if elapsed < cmn.FlushRateWindow {
		return
	}
	if f.winStart.CompareAndSwap(start, mono.NanoTime()) {
		f.rate.Store(n * int64(time.Second) / int64(elapsed))
		f.winCnt.Store(0)
	}
}

func (f *flusher) interval() time.Duration {
	r := f.rate.Load()
	switch {
	case r <= rateLo:
		return cmn.FlushIvalMin
	case r >= rateHi:
		return cmn.FlushIvalMax
	}
	span := int64(cmn.FlushIvalMax - cmn.FlushIvalMin)
	return cmn.FlushIvalMin + time.Duration(span*(r-rateLo)/(rateHi-rateLo))
}

func (f *flusher) due() bool {
	if !f.dirty.Load() {
		return false
	}
	return mono.Since(f.lastFlush.Load()) >= f.interval()
}

func (f *flusher) flushed() {
	f.dirty.Store(false)
	f.lastFlush.Store(mono.NanoTime())
}
