// Package codec implements the weavemesh line format: delimiter escaping,
// delta compression against keyframe predecessors, key tuples, timestamps
/*
 * Copyright (c) 2021-2026, WeaveMesh Systems, Inc. All rights reserved.
 */
package codec

import (
	"sort"
	"strings"

	"github.com/weavemesh/weavemesh/cmn"
	"github.com/weavemesh/weavemesh/cmn/cos"
)

// Dests is a commit's destination set. Broadcast (nil destinations upstream)
// reaches every interested node; the empty set means "no other apps" while
// still allowing export channels.
type Dests struct {
	UUIDs     cos.StrSet
	Broadcast bool
}

func BroadcastDests() Dests           { return Dests{Broadcast: true} }
func DestsOf(uuids ...string) Dests   { return Dests{UUIDs: cos.NewStrSet(uuids...)} }

func (d Dests) IsEmpty() bool { return !d.Broadcast && len(d.UUIDs) == 0 }

func (d Dests) Contains(uuid string) bool {
	return d.Broadcast || d.UUIDs.Contains(uuid)
}

func (d Dests) Equal(other Dests) bool {
	if d.Broadcast != other.Broadcast {
		return false
	}
	if len(d.UUIDs) != len(other.UUIDs) {
		return false
	}
	for u := range d.UUIDs {
		if !other.UUIDs.Contains(u) {
			return false
		}
	}
	return true
}

func (d Dests) Clone() Dests {
	out := Dests{Broadcast: d.Broadcast}
	if d.UUIDs != nil {
		out.UUIDs = d.UUIDs.Clone()
	}
	return out
}

// absolute wire form: "*" broadcast, "-" empty, "u1;u2" otherwise (sorted)
func (d Dests) Encode() string {
	if d.Broadcast {
		return cmn.DestBroadcast
	}
	if len(d.UUIDs) == 0 {
		return cmn.DestNone
	}
	keys := d.UUIDs.Keys()
	sort.Strings(keys)
	return strings.Join(keys, ";")
}

func DecodeDests(s string) (Dests, error) {
	switch s {
	case cmn.DestBroadcast:
		return BroadcastDests(), nil
	case cmn.DestNone:
		return Dests{UUIDs: cos.NewStrSet()}, nil
	case "":
		return Dests{}, cmn.ParseErrf("empty destination set")
	}
	d := Dests{UUIDs: cos.NewStrSet()}
	for _, u := range strings.Split(s, ";") {
		if !cos.IsValidUUID(u) {
			return d, cmn.ParseErrf("destination UUID %q", u)
		}
		d.UUIDs.Add(u)
	}
	return d, nil
}

// CompressMap emits the destination-set delta: "" when unchanged, "+u"/"-u"
// diff tokens against the predecessor, or the absolute form when there is no
// usable predecessor. DecompressMap is the exact inverse.
func CompressMap(prev, cur Dests) string {
	if prev.Equal(cur) {
		return ""
	}
	if cur.Broadcast || len(cur.UUIDs) == 0 || prev.Broadcast || prev.UUIDs == nil {
		return cur.Encode()
	}
	var toks []string
	for u := range cur.UUIDs {
		if !prev.UUIDs.Contains(u) {
			toks = append(toks, "+"+u)
		}
	}
	for u := range prev.UUIDs {
		if !cur.UUIDs.Contains(u) {
			toks = append(toks, "-"+u)
		}
	}
	sort.Strings(toks)
	return strings.Join(toks, ";")
}

func DecompressMap(prev Dests, delta string) (Dests, error) {
	if delta == "" {
		return prev.Clone(), nil
	}
	if delta[0] != '+' && (delta[0] != '-' || len(delta) == 1) {
		return DecodeDests(delta)
	}
	cur := Dests{UUIDs: cos.NewStrSet()}
	if prev.UUIDs != nil {
		cur.UUIDs = prev.UUIDs.Clone()
	}
	for _, tok := range strings.Split(delta, ";") {
		if len(tok) < 2 {
			return cur, cmn.ParseErrf("destination delta %q", delta)
		}
		switch tok[0] {
		case '+':
			cur.UUIDs.Add(tok[1:])
		case '-':
			cur.UUIDs.Delete(tok[1:])
		default:
			return cur, cmn.ParseErrf("destination delta %q", delta)
		}
	}
	return cur, nil
}
