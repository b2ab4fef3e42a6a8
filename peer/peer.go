// Package peer implements the per-peer control state machine: login
// handshake, reset exchange, connected-node tracking, and command routing
// between the wire channel and the hub
/*
 * Copyright (c) 2021-2026, WeaveMesh Systems, Inc. All rights reserved.
 */
package peer

import (
	"sync"
	"time"

	"github.com/weavemesh/weavemesh/cmn/cos"
	"github.com/weavemesh/weavemesh/seq"
)

type State int32

const (
	Connecting State = iota
	LoginSent
	LoggedIn
	Monitoring
	Disconnected
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case LoginSent:
		return "login-sent"
	case LoggedIn:
		return "logged-in"
	case Monitoring:
		return "monitoring"
	}
	return "disconnected"
}

// Info describes the remote peer, as learned from its login frame.
type Info struct {
	UUID           string
	AppName        string
	AppVersion     string
	CoreVersion    string
	UserID         string
	RemoteAddr     string
	Role           string // cmn.RoleProducer | cmn.RoleConsumer
	ConnectedSince time.Time
	Compression    bool
}

// Sink is the upward interface the handler reports into (the runtime).
type Sink interface {
	AppUUID() string
	AppInfo() (name, version, core string)
	UserID() string
	DeployTime() time.Time
	NextResetSeq() int64
	ConsumedTypes() []string // with the '+' lossless suffix where applicable

	// inbound, post-sequencing
	HandleCommand(h *Handler, cmd *seq.Command, rawLine string)
	HandleResetRequest(h *Handler, req *seq.ResetRequest)
	HandleAck(h *Handler, typeCode, origin, dest string, ackSeq int64)
	HandleRemoveNodes(h *Handler, uuids []string)

	PeerReady(h *Handler)
	PeerGone(h *Handler)
}

type Config struct {
	Name       string
	LocalRole  string // role this node plays on this channel
	IsServer   bool   // passive side: wait for the client's login
	Compress   bool
	AlertFlag  bool
	PingRate   time.Duration
	LoginGrace time.Duration // re-issue login when LoginSent lingers
	IdleLimit  time.Duration // disconnect after this much input silence
	LogTraffic bool
}

func (c *Config) pingRate() time.Duration {
	if c.PingRate <= 0 {
		return defaultPingRate
	}
	return c.PingRate
}

func (c *Config) loginGrace() time.Duration {
	if c.LoginGrace <= 0 {
		return 30 * time.Second
	}
	return c.LoginGrace
}

//
// connected-node bookkeeping
//

type nodeSet struct {
	uuids cos.StrSet
	mu    sync.RWMutex
}

func newNodeSet() *nodeSet { return &nodeSet{uuids: cos.NewStrSet()} }

func (ns *nodeSet) add(uuids ...string) {
	ns.mu.Lock()
	ns.uuids.Add(uuids...)
	ns.mu.Unlock()
}

func (ns *nodeSet) remove(uuids []string) {
	ns.mu.Lock()
	for _, u := range uuids {
		ns.uuids.Delete(u)
	}
	ns.mu.Unlock()
}

func (ns *nodeSet) contains(uuid string) bool {
	ns.mu.RLock()
	defer ns.mu.RUnlock()
	return ns.uuids.Contains(uuid)
}

func (ns *nodeSet) snapshot() cos.StrSet {
	ns.mu.RLock()
	defer ns.mu.RUnlock()
	return ns.uuids.Clone()
}
