// Package seq implements per-(channel, object-type) frame sequencing:
// send/receive counters, delta compression against keyframe predecessors,
// gap detection and reset-request throttling
/*
 * Copyright (c) 2021-2026, WeaveMesh Systems, Inc. All rights reserved.
 */
package seq

import (
	"time"

	"github.com/OneOfOne/xxhash"
	"github.com/weavemesh/weavemesh/cmn"
	"github.com/weavemesh/weavemesh/cmn/cos"
	"github.com/weavemesh/weavemesh/codec"
)

// Command is one fully-reconstructed data command: the absolute form of a
// wire frame, before delta compression (sending) or after reconstruction
// (receiving).
type Command struct {
	Type   string
	Ts     time.Time
	Origin string     // originating application UUID
	Dests  codec.Dests
	Keys   []string   // key tuple: path of object IDs from root
	Fields string     // serialized fields, escaped, comma-joined
	ObjSeq int64      // per-origin application object sequence
	AckSeq int64      // lossless ack sequence; 0 = none
	UserID string
	Prefix byte
}

func (c *Command) Remove() bool { return c.Prefix == cmn.PrefixRemove }
func (c *Command) Urgent() bool {
	return c.Prefix == cmn.PrefixUrgent || c.Prefix == cmn.PrefixUrgentQuery
}
func (c *Command) Query() bool {
	return c.Prefix == cmn.PrefixQuery || c.Prefix == cmn.PrefixUrgentQuery
}

func (c *Command) KeyTuple() string { return codec.EncodeKeys(c.Keys) }

// MLCG32 constant, seeding the key-tuple digests
const keySeed = 2654435769

func keyDigest(rawKeys string) uint64 {
	return xxhash.Checksum64S(cos.UnsafeB(rawKeys), keySeed)
}
