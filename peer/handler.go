// Package peer implements the per-peer control state machine
/*
 * Copyright (c) 2021-2026, WeaveMesh Systems, Inc. All rights reserved.
 */
package peer

import (
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/weavemesh/weavemesh/cmn"
	"github.com/weavemesh/weavemesh/cmn/cos"
	"github.com/weavemesh/weavemesh/cmn/mono"
	"github.com/weavemesh/weavemesh/cmn/nlog"
	"github.com/weavemesh/weavemesh/codec"
	"github.com/weavemesh/weavemesh/dot"
	"github.com/weavemesh/weavemesh/seq"
	"github.com/weavemesh/weavemesh/wire"
)

const defaultPingRate = cmn.DfltPingRate

// Handler drives one peer channel. It owns the per-type send and receive
// sequencers and converts between wire lines and reconstructed commands.
type Handler struct {
	cfg   Config
	conn  *wire.Conn
	sink  Sink
	state atomic.Int32

	info    Info
	infoMu  sync.RWMutex
	nodes   *nodeSet   // UUIDs reachable through this peer
	interest cos.StrSet // types the remote side asked for (via reset requests)
	intMu   sync.RWMutex

	rx   map[string]*seq.Rx
	rxMu sync.Mutex
	tx   map[string]*seq.Tx
	txMu sync.Mutex

	loginAt  atomic.Int64 // mono, when LoginSent was entered
	lastPing atomic.Int64
	sub      nlog.SubLog
}

func NewHandler(cfg Config, conn *wire.Conn, sink Sink) *Handler {
	h := &Handler{
		cfg:      cfg,
		conn:     conn,
		sink:     sink,
		nodes:    newNodeSet(),
		interest: cos.NewStrSet(),
		rx:       make(map[string]*seq.Rx),
		tx:       make(map[string]*seq.Tx),
	}
	h.state.Store(int32(Connecting))
	return h
}

// SetConn attaches the wire channel; the handler is constructed first so the
// channel can call back into it.
func (h *Handler) SetConn(conn *wire.Conn) { h.conn = conn }

func (h *Handler) Name() string  { return h.cfg.Name }
func (h *Handler) State() State  { return State(h.state.Load()) }
func (h *Handler) Conn() *wire.Conn { return h.conn }

func (h *Handler) RemoteUUID() string {
	h.infoMu.RLock()
	defer h.infoMu.RUnlock()
	return h.info.UUID
}

func (h *Handler) RemoteInfo() Info {
	h.infoMu.RLock()
	defer h.infoMu.RUnlock()
	return h.info
}

func (h *Handler) ConnectedNodes() cos.StrSet { return h.nodes.snapshot() }

func (h *Handler) Reaches(uuid string) bool { return h.nodes.contains(uuid) }

// Start connects the channel; the client side opens with its login.
func (h *Handler) Start() error {
	return h.conn.Connect()
}

//
// wire.Callbacks
//

func (h *Handler) OnEvent(code int, info string) {
	switch code {
	case wire.EvConnected:
		if !h.cfg.IsServer {
			h.sendLogin()
		}
	case wire.EvDisconnected:
		h.state.Store(int32(Disconnected))
		h.sink.PeerGone(h)
	}
}

func (h *Handler) OnLine(line string) {
	if h.cfg.LogTraffic {
		h.sub.Println("<", line)
	}
	if codec.IsControl(line) {
		h.handleControl(line)
		return
	}
	if h.State() < LoggedIn {
		nlog.Warnf("%s: data before login, dropping", h.cfg.Name)
		return
	}
	f, err := codec.ParseFrame(line)
	if err != nil {
		nlog.Warnf("%s: %v", h.cfg.Name, err)
		return
	}
	cmd, err := h.rxFor(f.Type).Decode(f)
	switch {
	case err == nil && cmd != nil:
		cmd.UserID = h.RemoteInfo().UserID
		h.sink.HandleCommand(h, cmd, line)
	case err == cmn.ErrSequenceGap:
		nlog.Warnf("%s: %s: sequence gap at %s", h.cfg.Name, f.Type, f.SeqHex)
		h.MaybeRequestReset(f.Type)
	case err != nil:
		nlog.Warnf("%s: %s: %v", h.cfg.Name, f.Type, err)
	}
}

func (h *Handler) rxFor(code string) *seq.Rx {
	h.rxMu.Lock()
	defer h.rxMu.Unlock()
	rx := h.rx[code]
	if rx == nil {
		rx = seq.NewRx(code)
		h.rx[code] = rx
	}
	return rx
}

func (h *Handler) txFor(code string) *seq.Tx {
	h.txMu.Lock()
	defer h.txMu.Unlock()
	tx := h.tx[code]
	if tx == nil {
		tx = seq.NewTx(code)
		h.tx[code] = tx
	}
	return tx
}

//
// outbound
//

// SendCommand encodes through this channel's per-type sequencer. The first
// frame after ArmReset is a seq=0 keyframe.
func (h *Handler) SendCommand(cmd *seq.Command) bool {
	line := h.txFor(cmd.Type).Encode(cmd)
	if h.cfg.LogTraffic {
		h.sub.Println(">", line)
	}
	return h.conn.Transmit(line, cmd.Urgent())
}

// ArmReset forces the next frame of the type to be a full keyframe.
func (h *Handler) ArmReset(code string) { h.txFor(code).Reset() }

func (h *Handler) SendControl(line string, urgent bool) bool {
	if h.cfg.LogTraffic {
		h.sub.Println(">", line)
	}
	return h.conn.Transmit(line, urgent)
}

// SendAck returns the lossless acknowledgment for a processed commit.
func (h *Handler) SendAck(typeCode, origin, dest string, ackSeq int64) {
	h.SendControl(codec.BuildControl(cmn.CtrlAck, typeCode, origin, dest,
		strconv.FormatInt(ackSeq, 10)), true)
}

// MaybeRequestReset emits one reset request for the type, debounced by the
// receive sequencer's throttle.
func (h *Handler) MaybeRequestReset(code string) {
	if !h.rxFor(code).NeedResetRequest() {
		return
	}
	h.RequestReset([]string{code}, "*")
}

func (h *Handler) RequestReset(types []string, target string) {
	name, ver, core := h.sink.AppInfo()
	req := &seq.ResetRequest{
		Types:      types,
		Ts:         time.Now(),
		ResetSeq:   h.sink.NextResetSeq(),
		Requester:  h.sink.AppUUID(),
		Target:     target,
		DeployTime: h.sink.DeployTime(),
		Origin:     h.sink.AppUUID(),
		AppName:    name,
		AppVersion: ver,
		CoreVer:    core,
	}
	nlog.Infof("%s: requesting reset of %s", h.cfg.Name, strings.Join(types, ";"))
	h.SendControl(req.Encode(), true)
}

// RelayReset propagates someone else's reset request further.
func (h *Handler) RelayReset(req *seq.ResetRequest) {
	h.SendControl(req.Encode(), true)
}

//
// interest tracking: which types to forward into this channel
//

func (h *Handler) AddInterest(types []string) {
	h.intMu.Lock()
	for _, t := range types {
		code, _ := dot.ParseSubscription(t)
		h.interest.Add(code)
	}
	h.intMu.Unlock()
}

func (h *Handler) DropInterest(code string) {
	h.intMu.Lock()
	h.interest.Delete(code)
	h.intMu.Unlock()
}

func (h *Handler) NeedsType(code string) bool {
	h.intMu.RLock()
	defer h.intMu.RUnlock()
	return h.interest.Contains(code)
}

//
// monitor (driven by the runtime's housekeeping tick)
//

func (h *Handler) Monitor() {
	switch h.State() {
	case LoginSent:
		if mono.Since(h.loginAt.Load()) > h.cfg.loginGrace() {
			nlog.Warnf("%s: login unanswered, re-issuing", h.cfg.Name)
			h.sendLogin()
		}
	case LoggedIn, Monitoring:
		if mono.Since(h.lastPing.Load()) >= h.cfg.pingRate() {
			h.lastPing.Store(mono.NanoTime())
			h.conn.Ping()
		}
		if h.cfg.IdleLimit > 0 && h.conn.SinceLastInput() > h.cfg.IdleLimit {
			h.Disconnect("obsolete: no input")
			return
		}
	}
	h.conn.Tick()
}

func (h *Handler) Disconnect(reason string) {
	h.state.Store(int32(Disconnected))
	h.conn.Disconnect(reason)
}

//
// remove-nodes
//

// NotifyRemoveNodes tells the peer which remote UUIDs departed.
func (h *Handler) NotifyRemoveNodes(uuids []string) {
	h.SendControl(codec.BuildControl(cmn.CtrlRemoveNodes, strings.Join(uuids, ";")), true)
}
