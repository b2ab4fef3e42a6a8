// Package hub implements the central router
/*
 * Copyright (c) 2021-2026, WeaveMesh Systems, Inc. All rights reserved.
 */
package hub

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/weavemesh/weavemesh/cmn"
	"github.com/weavemesh/weavemesh/cmn/nlog"
	"github.com/weavemesh/weavemesh/codec"
	"github.com/weavemesh/weavemesh/dot"
	"github.com/weavemesh/weavemesh/seq"
)

// Resetter replays the current state of one type to a requester. It owns a
// bounded buffer and a transmit moderator, and writes through the same
// per-channel sequencer that services normal traffic, so replay stays
// ordered with live updates.
type Resetter struct {
	code      string
	requester string
	appUUID   string
	peer      Peer
	buf       chan *dot.Object
	mod       *Moderator
	ctx       context.Context
	cancel    context.CancelFunc
	onDone    func(code string, aborted bool)
	count     atomic.Int64
	ended     atomic.Bool
}

// StartReset replaces any running resetter for the same (peer, type): the
// old stream is canceled and what it still buffered is never sent, a fresh
// stream begins with a seq=0 keyframe.
func (h *Hub) StartReset(p Peer, code, requester string, itemsPerMinute int, onDone func(code string, aborted bool)) *Resetter {
	if itemsPerMinute <= 0 {
		itemsPerMinute = cmn.DfltResetRate
	}
	ctx, cancel := context.WithCancel(context.Background())
	r := &Resetter{
		code:      code,
		requester: requester,
		appUUID:   h.uuid,
		peer:      p,
		buf:       make(chan *dot.Object, cmn.DfltResetBufCap),
		mod:       NewModerator(itemsPerMinute),
		ctx:       ctx,
		cancel:    cancel,
		onDone:    onDone,
	}
	key := p.Name() + "\x00" + code
	h.resetMu.Lock()
	if prev := h.resetters[key]; prev != nil {
		prev.abort()
	}
	h.resetters[key] = r
	h.resetMu.Unlock()

	go r.stream(func() {
		h.resetMu.Lock()
		if h.resetters[key] == r {
			delete(h.resetters, key)
		}
		h.resetMu.Unlock()
	})
	return r
}

func (h *Hub) abortResetsFor(p Peer) {
	h.resetMu.Lock()
	for key, r := range h.resetters {
		if r.peer == p {
			r.abort()
			delete(h.resetters, key)
		}
	}
	h.resetMu.Unlock()
}

// ResetObject feeds one object into the replay; only items this node
// originated and of the matching type pass the filter. Returns false once
// the stream is aborted.
func (r *Resetter) ResetObject(o *dot.Object) bool {
	if o.Code() != r.code {
		return true // skip, keep streaming
	}
	if orig := o.Origin(); orig != "" && orig != r.appUUID {
		return true
	}
	select {
	case r.buf <- o:
		return true
	case <-r.ctx.Done():
		return false
	}
}

// EndOfData closes the stream; the streamer drains what is buffered and
// completes.
func (r *Resetter) EndOfData() {
	if !r.ended.Swap(true) {
		close(r.buf)
	}
}

// abort cancels the stream; the buffer is left to the producer, which
// observes the cancellation on its next ResetObject/EndOfData.
func (r *Resetter) abort() { r.cancel() }

func (r *Resetter) Aborted() bool { return r.ctx.Err() != nil }

func (r *Resetter) stream(cleanup func()) {
	defer cleanup()
	aborted := false
loop:
	for {
		select {
		case <-r.ctx.Done():
			aborted = true
			break loop
		case o, ok := <-r.buf:
			if !ok {
				break loop
			}
			if err := r.mod.Pause(r.ctx); err != nil {
				aborted = true
				break loop
			}
			cmd, err := r.command(o)
			if err != nil {
				nlog.Warnf("reset %s: %v", r.code, err)
				continue
			}
			r.peer.SendCommand(cmd)
			r.count.Add(1)
		}
	}
	if !aborted {
		nlog.Infof("reset %s to %s: %d objects", r.code, r.requester, r.count.Load())
	}
	if r.onDone != nil {
		r.onDone(r.code, aborted)
	}
}

func (r *Resetter) command(o *dot.Object) (*seq.Command, error) {
	fields, err := o.Serialize()
	if err != nil {
		return nil, err
	}
	origin := o.Origin()
	if origin == "" {
		origin = r.appUUID
	}
	ts := o.CmdTs()
	if ts.IsZero() {
		ts = time.Now()
	}
	return &seq.Command{
		Prefix: cmn.PrefixNormal,
		Type:   r.code,
		Ts:     ts,
		Origin: origin,
		Dests:  codec.DestsOf(r.requester),
		Keys:   o.Keys(),
		Fields: fields,
		ObjSeq: o.ObjSeq(),
	}, nil
}
