// Package wire implements the buffered channel
/*
 * Copyright (c) 2021-2026, WeaveMesh Systems, Inc. All rights reserved.
 */
package wire

import (
	"bufio"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/weavemesh/weavemesh/cmn"
	"github.com/weavemesh/weavemesh/cmn/mono"
	"github.com/weavemesh/weavemesh/cmn/nlog"
	"github.com/weavemesh/weavemesh/stats"
)

// Conn is one buffered channel. A reader task blocks on the transport, a
// writer task drains the send buffer with adaptive flushing, and the owner's
// monitor drives ping/keep-alive through Ping()/Tick().
type Conn struct {
	cfg    Config
	dial   Dialer
	cb     Callbacks
	q      *sendq
	tr     Transport
	wr     *bufio.Writer
	gzw    *gzip.Writer
	wmu    sync.Mutex
	stopCh chan struct{}
	wg     sync.WaitGroup

	lastOut   atomic.Int64 // mono
	lastIn    atomic.Int64 // mono
	clockDiff atomic.Int64 // ns, remote minus local
	flush     flusher
	stat      *stats.Channel

	connected   atomic.Bool
	closed      atomic.Bool
	compressOut atomic.Bool
	compressIn  atomic.Bool
}

func NewConn(cfg Config, dial Dialer, cb Callbacks, st *stats.Channel) *Conn {
	c := &Conn{
		cfg:    cfg,
		dial:   dial,
		cb:     cb,
		q:      newSendq(cfg.bufCap(), cfg.BackupPath, cfg.BackupMode),
		stopCh: make(chan struct{}),
		stat:   st,
	}
	c.flush.init()
	return c
}

// Connect dials and starts the reader and writer tasks.
func (c *Conn) Connect() error {
	tr, err := c.dial()
	if err != nil {
		return cmn.TransportErr(err)
	}
	c.tr = tr
	c.wr = bufio.NewWriter(tr)
	c.connected.Store(true)
	c.lastIn.Store(mono.NanoTime())
	c.lastOut.Store(mono.NanoTime())
	c.wg.Add(2)
	go c.readLoop(tr)
	go c.writeLoop()
	if c.cb != nil {
		c.cb.OnEvent(EvConnected, c.cfg.Name)
	}
	return nil
}

// Transmit enqueues one line; urgent lines jump the queue and force an
// immediate flush. Returns false when the channel is closed; the full-buffer
// policies drop already queued items, not the line being put.
func (c *Conn) Transmit(line string, urgent bool) bool {
	if c.closed.Load() {
		return false
	}
	return c.q.put(line, urgent)
}

func (c *Conn) Connected() bool { return c.connected.Load() }

func (c *Conn) Pending() int { return c.q.len() }

// SinceLastInput is the input silence on this channel.
func (c *Conn) SinceLastInput() time.Duration { return mono.Since(c.lastIn.Load()) }

// ClockDiff is the NTP-style estimate of (remote clock - local clock).
func (c *Conn) ClockDiff() time.Duration { return time.Duration(c.clockDiff.Load()) }

//
// writer
//

func (c *Conn) writeLoop() {
	defer c.wg.Done()
	for {
		if !c.connected.Load() {
			return
		}
		it, ok := c.q.pop()
		if !ok {
			if !c.flushDue(false) {
				return // disconnected while flushing
			}
			select {
			case <-c.q.sig:
				continue
			case <-c.stopCh:
				c.flushDue(false)
				return
			case <-time.After(c.flush.interval()):
				continue
			}
		}
		if !c.writeLine(it.line, it.urgent) {
			return
		}
	}
}

func (c *Conn) writeLine(line string, urgent bool) bool {
	c.wmu.Lock()
	_, err := c.wr.WriteString(line)
	if err == nil {
		err = c.wr.WriteByte('\n')
	}
	c.wmu.Unlock()
	if err != nil {
		c.ioError(err)
		return false
	}
	c.lastOut.Store(mono.NanoTime())
	c.flush.count()
	if c.stat != nil {
		c.stat.Out(len(line) + 1)
	}
	if urgent {
		return c.flushDue(true)
	}
	return true
}

// flushDue flushes when forced or when the adaptive interval elapsed.
func (c *Conn) flushDue(force bool) bool {
	if c.wr == nil || (!force && !c.flush.due()) {
		return true
	}
	c.wmu.Lock()
	err := c.wr.Flush()
	if err == nil && c.gzw != nil {
		err = c.gzw.Flush()
	}
	c.wmu.Unlock()
	if err != nil {
		c.ioError(err)
		return false
	}
	c.flush.flushed()
	return true
}

//
// reader
//

func (c *Conn) readLoop(tr Transport) {
	defer c.wg.Done()
	br := bufio.NewReader(tr)
	for {
		if !c.compressIn.Load() {
			if b, err := br.Peek(1); err == nil && b[0] == compressSentinel {
				br.Discard(1)
				gzr, err := gzip.NewReader(br)
				if err != nil {
					c.ioError(err)
					return
				}
				br = bufio.NewReader(gzr)
				c.compressIn.Store(true)
			}
		}
		line, err := br.ReadString('\n')
		if err != nil {
			c.ioError(err)
			return
		}
		line = strings.TrimRight(line, "\r\n")
		c.lastIn.Store(mono.NanoTime())
		if c.stat != nil {
			c.stat.In(len(line) + 1)
		}
		if line == "" {
			continue // keep-alive
		}
		if c.pingPong(line) {
			continue
		}
		if c.cb != nil {
			c.cb.OnLine(line)
		}
	}
}

//
// ping/pong clock sync (NTP-like)
//

func (c *Conn) Ping() {
	if c.cfg.IsFile {
		return
	}
	c.Transmit(string(cmn.PrefixControl)+cmn.CtrlPing+","+strconv.FormatInt(time.Now().UnixNano(), 10), true)
}

func (c *Conn) pingPong(line string) bool {
	if line[0] != cmn.PrefixControl {
		return false
	}
	switch {
	case strings.HasPrefix(line[1:], cmn.CtrlPing+","):
		echo := line[len(cmn.CtrlPing)+2:]
		now := strconv.FormatInt(time.Now().UnixNano(), 10)
		c.Transmit(string(cmn.PrefixControl)+cmn.CtrlPong+","+now+","+echo, true)
		return true
	case strings.HasPrefix(line[1:], cmn.CtrlPong+","):
		c.handlePong(line[len(cmn.CtrlPong)+2:])
		return true
	}
	return false
}

func (c *Conn) handlePong(args string) {
	i := strings.IndexByte(args, ',')
	if i < 0 {
		return
	}
	pongTs, err1 := strconv.ParseInt(args[:i], 10, 64)
	sendTs, err2 := strconv.ParseInt(args[i+1:], 10, 64)
	if err1 != nil || err2 != nil {
		return
	}
	recvTs := time.Now().UnixNano()
	// one-way skew: remote pong time vs the midpoint of the round-trip
	diff := pongTs - (sendTs+recvTs)/2
	c.clockDiff.Store(diff)
	if c.stat != nil {
		c.stat.ClockDiff(time.Duration(diff))
	}
	if c.cb != nil {
		c.cb.OnEvent(EvClockSync, time.Duration(diff).String())
	}
}

//
// keep-alive (driven by the owner's monitor tick)
//

func (c *Conn) Tick() {
	ka := c.cfg.keepAlive()
	if ka == 0 || !c.connected.Load() {
		return
	}
	if mono.Since(c.lastOut.Load()) >= ka {
		c.Transmit("", true) // empty line
	}
}

//
// compression negotiation
//

// CompressOutput switches the outbound stream to gzip, preceded by the
// in-band sentinel byte so the remote reader can switch over cleanly.
func (c *Conn) CompressOutput() {
	if c.compressOut.Swap(true) {
		return
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if err := c.wr.Flush(); err != nil {
		return
	}
	if _, err := c.tr.Write([]byte{compressSentinel}); err != nil {
		return
	}
	c.gzw = gzip.NewWriter(c.tr)
	c.wr = bufio.NewWriter(c.gzw)
	nlog.Infof("%s: output compression enabled", c.cfg.Name)
}

//
// teardown and reconnect
//

func (c *Conn) ioError(err error) {
	if c.closed.Load() || !c.connected.Swap(false) {
		return
	}
	nlog.Warnf("%s: %v", c.cfg.Name, cmn.TransportErr(err))
	c.tr.Close()
	if c.cb != nil {
		c.cb.OnEvent(EvDisconnected, err.Error())
	}
	c.maybeReconnect()
}

func (c *Conn) maybeReconnect() {
	if c.cfg.DontReconnect || c.cfg.ReconnectWait <= 0 || c.closed.Load() {
		return
	}
	time.AfterFunc(c.cfg.ReconnectWait, func() {
		if c.closed.Load() || c.connected.Load() {
			return
		}
		// fresh plain-text streams on every reconnect
		c.compressIn.Store(false)
		c.compressOut.Store(false)
		c.gzw = nil
		if err := c.Connect(); err != nil {
			nlog.Warnf("%s: reconnect: %v", c.cfg.Name, err)
			c.maybeReconnect()
		}
	})
}

// Disconnect tears the channel down; no reconnect.
func (c *Conn) Disconnect(reason string) {
	if c.closed.Swap(true) {
		return
	}
	nlog.Infof("%s: disconnect: %s", c.cfg.Name, reason)
	c.flushDue(true)
	close(c.stopCh)
	c.q.close()
	if c.tr != nil {
		c.tr.Close()
	}
	c.connected.Store(false)
}
