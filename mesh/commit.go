// Package mesh assembles the runtime
/*
 * Copyright (c) 2021-2026, WeaveMesh Systems, Inc. All rights reserved.
 */
package mesh

import (
	"time"

	"github.com/weavemesh/weavemesh/cmn"
	"github.com/weavemesh/weavemesh/codec"
	"github.com/weavemesh/weavemesh/dot"
	"github.com/weavemesh/weavemesh/query"
	"github.com/weavemesh/weavemesh/seq"
)

// Commit publishes the object's current snapshot to the mesh. Only the
// producing node of the type may commit; interested consumers everywhere
// observe the mutation in near-real-time.
func (rt *Runtime) Commit(obj *dot.Object) error {
	code := obj.Code()
	if !rt.hub.Produces(code) {
		return cmn.FatalErrf("commit %s: not a produced type", code)
	}
	fields, err := obj.Serialize()
	if err != nil {
		return err
	}
	now := time.Now()
	obj.StampCommit(rt.uuid, now)
	obj.SetObjSeq(rt.nextObjSeq(code))

	prefix := byte(cmn.PrefixNormal)
	if obj.Meta().Urgent {
		prefix = cmn.PrefixUrgent
	}
	rt.hub.Distribute(&seq.Command{
		Prefix: prefix,
		Type:   code,
		Ts:     now,
		Origin: rt.uuid,
		Dests:  destsOf(obj),
		Keys:   obj.Keys(),
		Fields: fields,
		ObjSeq: obj.ObjSeq(),
	})
	return nil
}

// destsOf: an object with no explicit destinations broadcasts; an explicitly
// empty set means "no other apps" (export channels still allowed).
func destsOf(obj *dot.Object) codec.Dests {
	d := obj.Dests()
	if !d.Broadcast && d.UUIDs == nil {
		return codec.BroadcastDests()
	}
	return d
}

// CommitRemove tombstones the object and propagates the removal.
func (rt *Runtime) CommitRemove(obj *dot.Object) error {
	code := obj.Code()
	if !rt.hub.Produces(code) {
		return cmn.FatalErrf("remove %s: not a produced type", code)
	}
	keys := obj.Keys()
	obj.Remove()
	now := time.Now()
	obj.StampCommit(rt.uuid, now)
	obj.SetObjSeq(rt.nextObjSeq(code))
	rt.hub.Distribute(&seq.Command{
		Prefix: cmn.PrefixRemove,
		Type:   code,
		Ts:     now,
		Origin: rt.uuid,
		Dests:  destsOf(obj),
		Keys:   keys,
		Fields: "", // removal
		ObjSeq: obj.ObjSeq(),
	})
	return nil
}

// CommitRename atomically re-keys the object and propagates the rename via
// its obsolete shadow (old ID carrying the new one).
func (rt *Runtime) CommitRename(obj *dot.Object, newID string) error {
	code := obj.Code()
	if !rt.hub.Produces(code) {
		return cmn.FatalErrf("rename %s: not a produced type", code)
	}
	shadow, err := obj.Rename(newID)
	if err != nil {
		return err
	}
	now := time.Now()
	obj.StampCommit(rt.uuid, now)
	obj.SetObjSeq(rt.nextObjSeq(code))
	rt.hub.Distribute(&seq.Command{
		Prefix: cmn.PrefixRemove,
		Type:   code,
		Ts:     now,
		Origin: rt.uuid,
		Dests:  destsOf(obj),
		Keys:   shadow.Keys(),
		Fields: shadow.ObsoleteValue(),
		ObjSeq: obj.ObjSeq(),
	})
	return nil
}

// StartQuery commits a query object and registers for its replies.
func (rt *Runtime) StartQuery(obj *dot.Object, expiry time.Duration, urgent bool) (*query.Query, error) {
	return rt.queries.Start(obj, expiry, urgent)
}
