// Package seq implements per-(channel, object-type) frame sequencing:
// send/receive counters, delta compression against keyframe predecessors,
// gap detection and reset-request throttling
/*
 * Copyright (c) 2021-2026, WeaveMesh Systems, Inc. All rights reserved.
 */
package seq

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/weavemesh/weavemesh/cmn"
	"github.com/weavemesh/weavemesh/cmn/mono"
	"github.com/weavemesh/weavemesh/codec"
)

// Rx is the receive side: reconstructs the absolute command stream and
// detects gaps. Frames arriving while out of sequence are discarded until a
// seq=0 keyframe restores synchronization.
type Rx struct {
	typeCode     string
	keyframes    map[uint64]string
	objCounters  map[string]int64
	prevTs       time.Time
	prevOrigin   string
	prevKeys     string
	prevDests    codec.Dests
	nextSeq      int
	inSequence   bool
	lastResetReq int64 // mono; throttles re-requests
	mu           sync.Mutex
}

func NewRx(typeCode string) *Rx {
	return &Rx{
		typeCode:    typeCode,
		keyframes:   make(map[uint64]string),
		objCounters: make(map[string]int64),
	}
}

// Decode reconstructs the command carried by f.
//   - (cmd, nil): accepted
//   - (nil, nil): discarded while out of sequence
//   - (nil, ErrSequenceGap): gap detected on this frame; the caller decides
//     whether to emit a reset request (see NeedResetRequest)
//   - (nil, ErrParse): malformed; receive counters not advanced
func (rx *Rx) Decode(f *codec.Frame) (*Command, error) {
	rx.mu.Lock()
	defer rx.mu.Unlock()

	seq, err := f.Seq()
	if err != nil {
		return nil, err
	}
	switch {
	case seq == 0:
		// keyframe: reset all delta predecessors
		clear(rx.keyframes)
		clear(rx.objCounters)
		rx.prevTs, rx.prevOrigin, rx.prevKeys = time.Time{}, "", ""
		rx.prevDests = codec.Dests{}
		rx.inSequence = true
	case !rx.inSequence:
		return nil, nil
	case seq != rx.nextSeq:
		rx.inSequence = false
		return nil, cmn.ErrSequenceGap
	}
	cmd, err := rx.decode(f)
	if err != nil {
		// a parse error never advances the receive counter
		return nil, err
	}
	rx.nextSeq = (seq + 1) % cmn.SeqModulo
	return cmd, nil
}

func (rx *Rx) decode(f *codec.Frame) (*Command, error) {
	cmd := &Command{Type: rx.typeCode, Prefix: f.Prefix}

	if f.Ts == "" {
		cmd.Ts = rx.prevTs
	} else {
		ts, err := codec.ParseTs(f.Ts)
		if err != nil {
			return nil, err
		}
		cmd.Ts = ts
	}

	sub := strings.Split(f.SubHeader, "|")
	if len(sub) < 3 || len(sub) > 4 {
		return nil, cmn.ParseErrf("subheader %q", f.SubHeader)
	}
	if sub[0] == "" {
		cmd.Origin = rx.prevOrigin
	} else {
		cmd.Origin = codec.Unescape(sub[0])
	}
	if cmd.Origin == "" {
		return nil, cmn.ParseErrf("no origin in %q", f.SubHeader)
	}
	dests, err := codec.DecompressMap(rx.prevDests, sub[1])
	if err != nil {
		return nil, err
	}
	cmd.Dests = dests

	diff, err := strconv.ParseInt(sub[2], 10, 64)
	if err != nil {
		return nil, cmn.ParseErrf("obj seq %q", sub[2])
	}
	cmd.ObjSeq = rx.objCounters[cmd.Origin] + diff

	if len(sub) == 4 {
		ack, err := strconv.ParseInt(sub[3], 10, 64)
		if err != nil {
			return nil, cmn.ParseErrf("ack seq %q", sub[3])
		}
		cmd.AckSeq = ack
	}

	rawKeys := codec.DecompressValues(rx.prevKeys, f.Keys)
	cmd.Keys = codec.DecodeKeys(rawKeys)

	digest := keyDigest(rawKeys)
	cmd.Fields = codec.Decompress(rx.keyframes[digest], f.Fields, ',')

	// all decoded: commit the predecessors
	rx.prevTs, rx.prevOrigin, rx.prevKeys = cmd.Ts, cmd.Origin, rawKeys
	rx.prevDests = dests.Clone()
	rx.objCounters[cmd.Origin] = cmd.ObjSeq
	if cmd.Remove() {
		delete(rx.keyframes, digest)
	} else {
		rx.keyframes[digest] = cmd.Fields
	}
	return cmd, nil
}

// NeedResetRequest reports whether a reset request may be emitted now,
// debounced by cmn.ResetThrottle; the first call after a gap wins.
func (rx *Rx) NeedResetRequest() bool {
	rx.mu.Lock()
	defer rx.mu.Unlock()
	now := mono.NanoTime()
	if rx.lastResetReq != 0 && time.Duration(now-rx.lastResetReq) < cmn.ResetThrottle {
		return false
	}
	rx.lastResetReq = now
	return true
}

func (rx *Rx) InSequence() bool {
	rx.mu.Lock()
	defer rx.mu.Unlock()
	return rx.inSequence
}
