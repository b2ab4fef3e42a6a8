// Package seq implements per-(channel, object-type) frame sequencing:
// send/receive counters, delta compression against keyframe predecessors,
// gap detection and reset-request throttling
/*
 * Copyright (c) 2021-2026, WeaveMesh Systems, Inc. All rights reserved.
 */
package seq

import (
	"strconv"
	"sync"

	"github.com/weavemesh/weavemesh/cmn"
	"github.com/weavemesh/weavemesh/cmn/debug"
	"github.com/weavemesh/weavemesh/codec"
)

// Tx is the send side of one (channel, type) stream. Encode, Reset and Armed
// run under the stream's mutex.
type Tx struct {
	typeCode    string
	keyframes   map[uint64]string // key-tuple digest -> last transmitted fields
	objCounters map[string]int64  // origin UUID -> last transmitted obj seq
	prevTs      string
	prevOrigin  string
	prevKeys    string
	prevDests   codec.Dests
	nextSeq     int
	started     bool // false => next frame must be a seq=0 keyframe
	mu          sync.Mutex
}

func NewTx(typeCode string) *Tx {
	return &Tx{
		typeCode:    typeCode,
		keyframes:   make(map[uint64]string),
		objCounters: make(map[string]int64),
	}
}

// Reset arms the stream: the next Encode emits a full seq=0 keyframe.
func (tx *Tx) Reset() {
	tx.mu.Lock()
	tx.started = false
	tx.mu.Unlock()
}

func (tx *Tx) Armed() bool {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return !tx.started
}

// Encode produces the wire line for cmd, delta-compressed against this
// stream's predecessors.
func (tx *Tx) Encode(cmd *Command) string {
	debug.Assert(cmd.Type == tx.typeCode)
	tx.mu.Lock()
	defer tx.mu.Unlock()

	keyframe := !tx.started
	if keyframe {
		clear(tx.keyframes)
		clear(tx.objCounters)
		tx.prevTs, tx.prevOrigin, tx.prevKeys = "", "", ""
		tx.prevDests = codec.Dests{}
		tx.nextSeq = 0
		tx.started = true
	}
	seq := tx.nextSeq
	tx.nextSeq = (tx.nextSeq + 1) % cmn.SeqModulo

	f := &codec.Frame{Prefix: cmd.Prefix, Type: tx.typeCode, SeqHex: codec.SeqHex(seq)}

	// header deltas: empty component = same as predecessor
	ts := codec.FormatTs(cmd.Ts, codec.PrecMilli)
	if !keyframe && ts == tx.prevTs {
		f.Ts = ""
	} else {
		f.Ts = ts
	}
	tx.prevTs = ts

	origin := cmd.Origin
	if !keyframe && origin == tx.prevOrigin {
		origin = ""
	} else {
		origin = codec.Escape(cmd.Origin)
	}
	tx.prevOrigin = cmd.Origin

	var dests string
	if keyframe {
		dests = cmd.Dests.Encode()
	} else {
		dests = codec.CompressMap(tx.prevDests, cmd.Dests)
	}
	tx.prevDests = cmd.Dests.Clone()

	// per-origin object sequence travels as a diff
	diff := cmd.ObjSeq - tx.objCounters[cmd.Origin]
	tx.objCounters[cmd.Origin] = cmd.ObjSeq

	sub := origin + "|" + dests + "|" + strconv.FormatInt(diff, 10)
	if cmd.AckSeq != 0 {
		sub += "|" + strconv.FormatInt(cmd.AckSeq, 10)
	}
	f.SubHeader = sub

	rawKeys := cmd.KeyTuple()
	if keyframe {
		f.Keys = rawKeys
	} else {
		f.Keys = codec.CompressValues(tx.prevKeys, rawKeys)
	}
	tx.prevKeys = rawKeys

	digest := keyDigest(rawKeys)
	prevFields := tx.keyframes[digest]
	if keyframe {
		f.Fields = codec.FullMark + cmd.Fields
	} else {
		f.Fields = codec.Compress(prevFields, cmd.Fields, ',')
	}
	if cmd.Remove() {
		delete(tx.keyframes, digest)
	} else {
		tx.keyframes[digest] = cmd.Fields
	}
	return f.String()
}
