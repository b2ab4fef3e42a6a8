// Package mono provides low-level monotonic time
/*
 * Copyright (c) 2021-2026, WeaveMesh Systems, Inc. All rights reserved.
 */
package mono

import (
	"time"
	_ "unsafe" // for go:linkname
)

// https://golang.org/pkg/runtime/?m=all#nanotime
//
//go:linkname NanoTime runtime.nanotime
func NanoTime() int64

func Since(started int64) time.Duration { return time.Duration(NanoTime() - started) }

func SinceNano(started int64) int64 { return NanoTime() - started }
