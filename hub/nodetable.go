// Package hub implements the central router
/*
 * Copyright (c) 2021-2026, WeaveMesh Systems, Inc. All rights reserved.
 */
package hub

import (
	"sync"
	"time"

	"github.com/weavemesh/weavemesh/cmn/cos"
	"github.com/weavemesh/weavemesh/seq"
)

// NodeTable tracks every node known to the mesh and enforces reset-request
// ordering per origin: a later (ts, reset_seq) always wins, an earlier one
// is silently dropped. A changed deploy time means the origin restarted and
// its counters reinitialized; the request is then accepted unconditionally.
type NodeTable struct {
	self    string
	entries map[string]*nodeEntry
	mu      sync.Mutex
}

type nodeEntry struct {
	lastTs     time.Time
	lastSeq    int64
	deployTime time.Time
}

func NewNodeTable(self string) *NodeTable {
	return &NodeTable{self: self, entries: make(map[string]*nodeEntry)}
}

// Accept validates (and records) the request's ordering stamp.
func (nt *NodeTable) Accept(req *seq.ResetRequest) bool {
	nt.mu.Lock()
	defer nt.mu.Unlock()
	e := nt.entries[req.Requester]
	if e == nil {
		nt.entries[req.Requester] = &nodeEntry{
			lastTs:     req.Ts,
			lastSeq:    req.ResetSeq,
			deployTime: req.DeployTime,
		}
		return true
	}
	if !req.DeployTime.Equal(e.deployTime) {
		// restarted origin: counters started over
		e.lastTs, e.lastSeq, e.deployTime = req.Ts, req.ResetSeq, req.DeployTime
		return true
	}
	if req.Ts.Before(e.lastTs) {
		return false
	}
	if req.Ts.Equal(e.lastTs) && req.ResetSeq <= e.lastSeq {
		return false
	}
	e.lastTs, e.lastSeq = req.Ts, req.ResetSeq
	return true
}

// Register notes a node exists (reachability bookkeeping).
func (nt *NodeTable) Register(uuid string) {
	nt.mu.Lock()
	if nt.entries[uuid] == nil {
		nt.entries[uuid] = &nodeEntry{}
	}
	nt.mu.Unlock()
}

func (nt *NodeTable) Remove(uuids []string) {
	nt.mu.Lock()
	for _, u := range uuids {
		delete(nt.entries, u)
	}
	nt.mu.Unlock()
}

func (nt *NodeTable) Known() cos.StrSet {
	nt.mu.Lock()
	defer nt.mu.Unlock()
	out := cos.NewStrSet()
	for u := range nt.entries {
		out.Add(u)
	}
	return out
}
