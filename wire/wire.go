// Package wire implements the buffered channel: newline-delimited line
// transport with adaptive flushing, negotiated gzip compression, ping/pong
// clock sync, keep-alive, reconnect, and disk overflow
/*
 * Copyright (c) 2021-2026, WeaveMesh Systems, Inc. All rights reserved.
 */
package wire

import (
	"io"
	"time"

	"github.com/weavemesh/weavemesh/cmn"
)

// Transport is the concrete plugin boundary (TCP/WebSocket/file); the core
// never dials or listens by itself.
type Transport interface {
	io.Reader
	io.Writer
	Close() error
}

// Dialer (re)establishes the underlying transport.
type Dialer func() (Transport, error)

// channel event codes, reported through Callbacks.OnEvent
const (
	EvConnected = iota
	EvDisconnected
	EvClockSync // info: clock diff, formatted duration
)

type Callbacks interface {
	// OnLine delivers one inbound line (without the terminating newline).
	OnLine(line string)
	OnEvent(code int, info string)
}

// BackupMode governs behavior when the in-memory send buffer is full and
// overflow goes to (or cannot go to) the backup file.
type BackupMode int

const (
	BackupLossless      BackupMode = iota // block the producer
	BackupEmptyOnFull                     // drop all queued non-urgent items
	BackupDiscardOnFull                   // drop the oldest item
)

type Config struct {
	Name          string
	BackupPath    string // "" = no disk overflow
	BackupMode    BackupMode
	BufCap        int           // in-memory send buffer capacity
	KeepAlive     time.Duration // 0 = cmn.DfltKeepAlive, negative = disabled
	ReconnectWait time.Duration // 0 = no reconnect
	IsFile        bool          // file channels: no keep-alive, no ping
	DontReconnect bool
}

const (
	dfltBufCap = 8192

	// the in-band byte marking the switch to the gzip-framed stream
	compressSentinel = 0x01
)

func (c *Config) bufCap() int {
	if c.BufCap > 0 {
		return c.BufCap
	}
	return dfltBufCap
}

func (c *Config) keepAlive() time.Duration {
	if c.IsFile {
		return 0
	}
	if c.KeepAlive == 0 {
		return cmn.DfltKeepAlive
	}
	if c.KeepAlive < 0 {
		return 0
	}
	return c.KeepAlive
}
