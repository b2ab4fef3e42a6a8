// Package hub implements the central router: forwarding decisions,
// destination filtering, origin deduplication, lossless acknowledgment
// bookkeeping, and bulk state resets
/*
 * Copyright (c) 2021-2026, WeaveMesh Systems, Inc. All rights reserved.
 */
package hub

import (
	"sync"
	"time"

	"github.com/weavemesh/weavemesh/cmn/cos"
	"github.com/weavemesh/weavemesh/cmn/nlog"
	"github.com/weavemesh/weavemesh/codec"
	"github.com/weavemesh/weavemesh/dot"
	"github.com/weavemesh/weavemesh/seq"
)

// Peer is one connected channel, as the router sees it; implemented by
// *peer.Handler.
type Peer interface {
	Name() string
	RemoteUUID() string
	ConnectedNodes() cos.StrSet
	Reaches(uuid string) bool
	NeedsType(code string) bool
	SendCommand(cmd *seq.Command) bool
	SendControl(line string, urgent bool) bool
	ArmReset(code string)
	RelayReset(req *seq.ResetRequest)
	AddInterest(types []string)
	NotifyRemoveNodes(uuids []string)
}

// destination-filter results, see ForMe
const (
	NotForMe    = -1
	NotSolely   = 0
	Exclusively = 1
)

// Hub owns the connected-peer table and all routing policy.
type Hub struct {
	uuid     string
	hubMode  bool
	produced cos.StrSet
	consumed map[string]bool // code -> lossless

	peers   []Peer
	peersMu sync.RWMutex

	nodes *NodeTable
	acks  *ackTracker

	recv   map[string]int64 // origin+type -> last seen obj seq
	recvMu sync.Mutex

	resetters map[string]*Resetter
	resetMu   sync.Mutex
}

func New(uuid string, hubMode bool, produced []string, consumed map[string]bool) *Hub {
	return &Hub{
		uuid:      uuid,
		hubMode:   hubMode,
		produced:  cos.NewStrSet(produced...),
		consumed:  consumed,
		nodes:     NewNodeTable(uuid),
		acks:      newAckTracker(),
		recv:      make(map[string]int64),
		resetters: make(map[string]*Resetter),
	}
}

func (h *Hub) UUID() string    { return h.uuid }
func (h *Hub) HubMode() bool   { return h.hubMode }
func (h *Hub) Nodes() *NodeTable { return h.nodes }

func (h *Hub) Produces(code string) bool { return h.produced.Contains(code) }

func (h *Hub) Consumes(code string) (consumes, lossless bool) {
	lossless, consumes = h.consumed[code]
	return
}

func (h *Hub) IsMe(uuid string) bool { return uuid == h.uuid }

// ForMe classifies a destination set: -1 = not for me, 0 = for me but not
// solely, +1 = exclusively for me.
func (h *Hub) ForMe(d codec.Dests) int {
	if d.Broadcast {
		return NotSolely
	}
	if !d.UUIDs.Contains(h.uuid) {
		return NotForMe
	}
	if len(d.UUIDs) == 1 {
		return Exclusively
	}
	return NotSolely
}

//
// peer table
//

func (h *Hub) AddPeer(p Peer) {
	h.peersMu.Lock()
	h.peers = append(h.peers, p)
	h.peersMu.Unlock()
}

func (h *Hub) RemovePeer(p Peer) {
	h.peersMu.Lock()
	for i, q := range h.peers {
		if q == p {
			h.peers = append(h.peers[:i], h.peers[i+1:]...)
			break
		}
	}
	h.peersMu.Unlock()
	h.abortResetsFor(p)
}

// Peers snapshots the peer table (copy-on-read for broadcast hot paths).
func (h *Hub) Peers() []Peer {
	h.peersMu.RLock()
	defer h.peersMu.RUnlock()
	return append([]Peer(nil), h.peers...)
}

//
// per-(origin, type) ordering
//

// Dedup advances the monotone receive counter; duplicates report fresh=false.
func (h *Hub) Dedup(origin, code string, objSeq int64) (fresh, gap bool) {
	key := origin + "\x00" + code
	h.recvMu.Lock()
	defer h.recvMu.Unlock()
	last, seen := h.recv[key]
	if seen && objSeq <= last {
		return false, false
	}
	h.recv[key] = objSeq
	return true, seen && objSeq > last+1
}

//
// forwarding
//

// reachesDest reports whether p gets a copy of a frame with these
// destinations: every peer for a broadcast or for an explicit UUID set, no
// peer for an empty set. An explicit set does not narrow the fan-out to the
// peers whose node sets contain its UUIDs.
func reachesDest(p Peer, d codec.Dests) bool {
	if d.Broadcast {
		return true
	}
	if len(d.UUIDs) == 0 {
		return false // "no other apps"
	}
	for uuid := range d.UUIDs {
		if p.Reaches(uuid) {
			return true
		}
	}
	return true // unknown routes still fan out; dedup stops the loops
}

// Forward relays a frame (after local delivery) to every peer, excluding the
// arrival channel and the origin, that needs the type, unless the frame has
// no destinations (see reachesDest).
// The ack sequence is end-to-end and travels with the frame unchanged.
func (h *Hub) Forward(from Peer, cmd *seq.Command) {
	if h.ForMe(cmd.Dests) == Exclusively {
		return // addressed solely to us
	}
	for _, p := range h.Peers() {
		if p == from || h.IsMe(p.RemoteUUID()) {
			continue
		}
		if p.RemoteUUID() == cmd.Origin {
			continue // never hand a frame back to its origin
		}
		if !p.NeedsType(cmd.Type) && !h.hubMode {
			continue
		}
		if !reachesDest(p, cmd.Dests) {
			continue
		}
		if !p.SendCommand(cmd) {
			nlog.Warnf("forward %s to %s: buffer full", cmd.Type, p.Name())
		}
	}
}

// Distribute fans a locally-committed command out to all interested peers,
// assigning per-(consumer, type) ack sequences for lossless subscribers.
func (h *Hub) Distribute(cmd *seq.Command) {
	for _, p := range h.Peers() {
		if !p.NeedsType(cmd.Type) {
			continue
		}
		if !reachesDest(p, cmd.Dests) {
			continue
		}
		out := *cmd
		if ackSeq, ok := h.acks.attachFor(p, cmd); ok {
			out.AckSeq = ackSeq
		}
		if !p.SendCommand(&out) {
			nlog.Warnf("distribute %s to %s: buffer full", cmd.Type, p.Name())
		}
	}
}

// RouteQuery sends a query toward every peer that may produce the type;
// interest tracking does not apply, producers never subscribe.
func (h *Hub) RouteQuery(from Peer, cmd *seq.Command) {
	for _, p := range h.Peers() {
		if p == from || p.RemoteUUID() == cmd.Origin {
			continue
		}
		p.SendCommand(cmd)
	}
}

// ConfirmAck clears the pending entry for a consumer's acknowledgment.
func (h *Hub) ConfirmAck(consumer, code string, ackSeq int64) {
	h.acks.confirm(consumer, code, ackSeq)
}

// SweepAcks resends unconfirmed lossless commits older than resendAfter and
// discards anything beyond the retention cutoff. Invoked from housekeeping.
func (h *Hub) SweepAcks() {
	h.acks.sweep(func(cmd *seq.Command, consumer string) {
		for _, p := range h.Peers() {
			if p.Reaches(consumer) || p.NeedsType(cmd.Type) {
				p.SendCommand(cmd)
				return
			}
		}
	})
}

func (h *Hub) PendingAcks(consumer, code string) int { return h.acks.pendingCnt(consumer, code) }

// SetAckResendTimeout overrides the default lossless resend timeout.
func (h *Hub) SetAckResendTimeout(d time.Duration) {
	h.acks.mu.Lock()
	h.acks.resendAfter = d
	h.acks.mu.Unlock()
}

//
// reset request handling
//

// HandleResetRequest implements the acceptance policy: ordering validation,
// loopback suppression, sender-sequencer arming, and further propagation.
// It returns the codes this node produces and must replay.
func (h *Hub) HandleResetRequest(from Peer, req *seq.ResetRequest) (replay []string) {
	if h.IsMe(req.Origin) || h.IsMe(req.Requester) {
		return nil // loopback
	}
	if !h.nodes.Accept(req) {
		return nil // out of order or already seen
	}
	from.AddInterest(req.Types)
	h.nodes.Register(req.Requester)
	nlog.Infof("reset request from %s via %s: %v", req.Requester, from.Name(), req.Types)

	if req.ForMe(h.uuid) {
		for _, t := range req.Types {
			code, lossless := dot.ParseSubscription(t)
			if !h.Produces(code) {
				continue
			}
			if lossless {
				h.acks.subscribe(req.Requester, code)
			}
			from.ArmReset(code)
			replay = append(replay, code)
		}
	}

	// propagate to the other peers for further fan-out
	relay := *req
	for _, p := range h.Peers() {
		if p == from {
			continue
		}
		p.RelayReset(&relay)
	}
	return replay
}

//
// remove-nodes
//

// HandleRemoveNodes drops departed nodes and propagates the notification.
func (h *Hub) HandleRemoveNodes(from Peer, uuids []string) {
	h.nodes.Remove(uuids)
	h.acks.dropConsumers(uuids)
	for _, p := range h.Peers() {
		if p == from {
			continue
		}
		p.NotifyRemoveNodes(uuids)
	}
}
