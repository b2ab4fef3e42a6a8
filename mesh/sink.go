// Package mesh assembles the runtime
/*
 * Copyright (c) 2021-2026, WeaveMesh Systems, Inc. All rights reserved.
 */
package mesh

import (
	"strconv"
	"time"

	"github.com/weavemesh/weavemesh/cmn"
	"github.com/weavemesh/weavemesh/cmn/nlog"
	"github.com/weavemesh/weavemesh/codec"
	"github.com/weavemesh/weavemesh/dot"
	"github.com/weavemesh/weavemesh/events"
	"github.com/weavemesh/weavemesh/hub"
	"github.com/weavemesh/weavemesh/peer"
	"github.com/weavemesh/weavemesh/seq"
)

// Runtime implements peer.Sink: every connected channel reports in here.

func (rt *Runtime) AppUUID() string { return rt.uuid }

func (rt *Runtime) AppInfo() (string, string, string) {
	return rt.opts.AppName, rt.opts.AppVersion, CoreVersion
}

func (rt *Runtime) UserID() string         { return rt.opts.UserID }
func (rt *Runtime) DeployTime() time.Time  { return rt.deployTime }
func (rt *Runtime) NextResetSeq() int64    { return rt.resetSeq.Add(1) }
func (rt *Runtime) ConsumedTypes() []string { return rt.opts.Consume }

// HandleCommand is the spine of inbound processing: loop suppression,
// per-(origin, type) dedup, local delivery, then forwarding.
func (rt *Runtime) HandleCommand(h *peer.Handler, cmd *seq.Command, rawLine string) {
	if rt.hub.IsMe(cmd.Origin) {
		return // our own frame came back around
	}
	// queries occupy their own ordering space: "?Px" vs "Px"
	dedupKey := cmd.Type
	if cmd.Query() {
		dedupKey = "?" + cmd.Type
	}
	fresh, gap := rt.hub.Dedup(cmd.Origin, dedupKey, cmd.ObjSeq)
	if !fresh {
		return
	}

	if cmd.Query() {
		rt.handleQuery(cmd)
		rt.hub.RouteQuery(h, cmd)
		return
	}
	if gap {
		h.MaybeRequestReset(cmd.Type)
	}

	consumes, lossless := rt.hub.Consumes(cmd.Type)
	if consumes && !rt.tree.PassThrough() && rt.hub.ForMe(cmd.Dests) != hub.NotForMe {
		if !rt.deliverLocal(h, cmd, rawLine, lossless) {
			return // parse error: never forwarded
		}
	}
	rt.hub.Forward(h, cmd)
}

// deliverLocal applies the command to the tree and dispatches events. For
// created and updated objects the lossless ack is emitted only after the
// application processed the event; removals and renames are acked as soon as
// their event is handed to the dispatcher.
func (rt *Runtime) deliverLocal(h *peer.Handler, cmd *seq.Command, rawLine string, lossless bool) bool {
	res, err := rt.tree.ProcessCommand(cmd, rawLine)
	if err != nil {
		nlog.Warnf("%s: %s: %v", h.Name(), cmd.Type, err)
		return false
	}
	if res.Act == dot.ActNone {
		return true
	}
	obj := res.Obj
	obj.SetObjSeq(cmd.ObjSeq)

	var ack events.AckFn
	if lossless && cmd.AckSeq != 0 {
		origin, self := cmd.Origin, rt.uuid
		ack = func(ackSeq int64) { h.SendAck(cmd.Type, origin, self, ackSeq) }
	}
	switch res.Act {
	case dot.ActCreate:
		obj.Meta().Behavior.OnNew(obj)
		rt.disp.Deliver(cmd.Type, events.Event{
			Kind: events.EvObject, Obj: obj, Ack: ack, AckSeq: cmd.AckSeq,
		})
	case dot.ActUpdate:
		rt.disp.Deliver(cmd.Type, events.Event{
			Kind: events.EvObject, Obj: obj, Ack: ack, AckSeq: cmd.AckSeq,
		})
	case dot.ActRemove:
		rt.disp.Deliver(cmd.Type, events.Event{Kind: events.EvObsolete, Obj: obj})
		if ack != nil {
			ack(cmd.AckSeq)
		}
	case dot.ActRename:
		rt.disp.Deliver(cmd.Type, events.Event{Kind: events.EvObsolete, Obj: obj, OldID: res.OldID})
		if ack != nil {
			ack(cmd.AckSeq)
		}
	}
	return true
}

// handleQuery materializes a disposable query object and hands it to the
// overlay.
func (rt *Runtime) handleQuery(cmd *seq.Command) {
	meta := rt.reg.Get(cmd.Type)
	if meta == nil {
		nlog.Warnf("query for unknown type %s", cmd.Type)
		return
	}
	rec, err := codec.Deserialize(meta.Fields, cmd.Fields)
	if err != nil {
		nlog.Warnf("query %s: %v", cmd.Type, err)
		return
	}
	obj, err := rt.materialize(cmd.Type, cmd.Keys)
	if err != nil {
		nlog.Warnf("query %s: %v", cmd.Type, err)
		return
	}
	obj.SetAll(rec)
	obj.StampCommit(cmd.Origin, cmd.Ts)
	rt.queries.HandleInbound(cmd, obj, rt.hub.Produces(cmd.Type))
}

// HandleResetRequest validates via the hub's node table and, when this node
// produces any of the requested types, streams its current state through a
// resetter (the application may take over via ResetBehavior).
func (rt *Runtime) HandleResetRequest(h *peer.Handler, req *seq.ResetRequest) {
	replay := rt.hub.HandleResetRequest(h, req)
	rate := cmn.ConfInt(rt.opts.Config, "reset-rate", cmn.DfltResetRate)
	for _, code := range replay {
		r := rt.hub.StartReset(h, code, req.Requester, rate, func(code string, aborted bool) {
			if !aborted {
				rt.disp.Deliver(code, events.Event{Kind: events.EvResetCompleted})
			}
		})
		rt.disp.Deliver(code, events.Event{
			Kind: events.EvResetObject, Resetter: r, Tree: rt.tree,
		})
	}
}

// HandleAck confirms our own pending entry or relays the ack toward the
// producing origin.
func (rt *Runtime) HandleAck(h *peer.Handler, typeCode, origin, dest string, ackSeq int64) {
	if rt.hub.IsMe(origin) {
		rt.hub.ConfirmAck(dest, typeCode, ackSeq)
		return
	}
	for _, p := range rt.hub.Peers() {
		if p != hub.Peer(h) && p.Reaches(origin) {
			p.SendControl(codec.BuildControl(cmn.CtrlAck, typeCode, origin, dest,
				strconv.FormatInt(ackSeq, 10)), true)
			return
		}
	}
}

func (rt *Runtime) HandleRemoveNodes(h *peer.Handler, uuids []string) {
	rt.hub.HandleRemoveNodes(h, uuids)
}

func (rt *Runtime) PeerReady(h *peer.Handler) {
	rt.hub.Nodes().Register(h.RemoteUUID())
}

// PeerGone propagates the departure and tears down routing state.
func (rt *Runtime) PeerGone(h *peer.Handler) {
	gone := h.ConnectedNodes().Keys()
	rt.hub.RemovePeer(h)
	if len(gone) > 0 {
		rt.hub.HandleRemoveNodes(h, gone)
	}
}
