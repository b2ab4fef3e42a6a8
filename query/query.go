// Package query implements the request/reply overlay: short-lived query
// objects with a state machine, streaming replies, timers, and expiration
/*
 * Copyright (c) 2021-2026, WeaveMesh Systems, Inc. All rights reserved.
 */
package query

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/weavemesh/weavemesh/cmn"
	"github.com/weavemesh/weavemesh/codec"
	"github.com/weavemesh/weavemesh/dot"
)

type State string

const (
	StQuery   State = "QUERY"
	StReplied State = "REPLIED"
	StNext    State = "NEXT"
	StEnd     State = "END"
	StAborted State = "ABORTED"
)

var stateEnum = []string{
	string(StQuery), string(StReplied), string(StNext), string(StEnd), string(StAborted),
}

// reserved field names every query type carries ahead of its payload
const (
	FieldID    = "query_id"
	FieldState = "state"
)

// FieldSpecs prepends the query bookkeeping fields to a type's payload
// declaration; query types register the result with the type registry.
func FieldSpecs(payload []codec.FieldSpec) []codec.FieldSpec {
	return append([]codec.FieldSpec{
		{Name: FieldID, Kind: codec.KindInt},
		{Name: FieldState, Kind: codec.KindEnum, Enum: stateEnum},
	}, payload...)
}

// Behavior is optionally implemented by a query type's dot.Behavior.
type Behavior interface {
	// OnEnquire fires at a producer of the type when a query arrives.
	OnEnquire(q *Query)
	// OnReplyNext fires at the requester per streaming reply.
	OnReplyNext(q *Query)
	// OnReplyEnd fires once; no further reply callbacks after it.
	OnReplyEnd(q *Query)
	// OnExpire fires when the query's timer lapses without an END.
	OnExpire(q *Query)
}

// Query is one pending request/reply exchange.
type Query struct {
	Obj       *dot.Object
	mgr       *Manager
	id        int64
	requester string // origin UUID of the asking node
	state     State
	urgent    bool
	timer     *time.Timer
	done      atomic.Bool
	mu        sync.Mutex
}

func (q *Query) ID() int64         { return q.id }
func (q *Query) Requester() string { return q.requester }

func (q *Query) State() State {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state
}

func (q *Query) setState(s State) {
	q.mu.Lock()
	q.state = s
	q.mu.Unlock()
}

// Reply retransmits the query object back to the requester; allowed until
// END. The producer may call it multiple times with StNext before closing
// with StEnd, or answer once with StReplied.
func (q *Query) Reply(state State) error {
	if q.done.Load() {
		return cmn.ParseErrf("query %d already closed", q.id)
	}
	if state != StReplied && state != StNext && state != StEnd {
		return cmn.ParseErrf("reply state %q", state)
	}
	q.setState(state)
	if state != StNext {
		q.close()
	}
	return q.mgr.sendReply(q, state, q.requester)
}

// Abort cancels the exchange from the requester side.
func (q *Query) Abort() error {
	if q.done.Swap(true) {
		return nil
	}
	q.stopTimer()
	q.mgr.unregister(q)
	q.setState(StAborted)
	return q.mgr.sendReply(q, StAborted, "")
}

func (q *Query) close() {
	if !q.done.Swap(true) {
		q.stopTimer()
		q.mgr.unregister(q)
	}
}

func (q *Query) stopTimer() {
	if q.timer != nil {
		q.timer.Stop()
	}
}
