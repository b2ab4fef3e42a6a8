// Package query implements the request/reply overlay
/*
 * Copyright (c) 2021-2026, WeaveMesh Systems, Inc. All rights reserved.
 */
package query

import (
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/weavemesh/weavemesh/cmn"
	"github.com/weavemesh/weavemesh/cmn/nlog"
	"github.com/weavemesh/weavemesh/codec"
	"github.com/weavemesh/weavemesh/dot"
	"github.com/weavemesh/weavemesh/seq"
)

const dfltExpiry = time.Minute

// SendFn routes an encoded query command into the mesh (hub fan-out).
type SendFn func(cmd *seq.Command)

// DispatchFn runs a callback on the type's event queue so reply callbacks
// observe the dispatcher's ordering guarantees.
type DispatchFn func(code string, fn func())

// Manager owns the query tables of one node: queries we asked (keyed by our
// producer-local query_id) and queries we are answering (keyed by requester
// UUID + id).
type Manager struct {
	uuid     string
	reg      *dot.Registry
	send     SendFn
	dispatch DispatchFn

	nextID   atomic.Int64
	outbound map[int64]*Query
	inbound  map[string]*Query
	mu       sync.Mutex
}

func NewManager(uuid string, reg *dot.Registry, send SendFn, dispatch DispatchFn) *Manager {
	if dispatch == nil {
		dispatch = func(_ string, fn func()) { fn() }
	}
	return &Manager{
		uuid:     uuid,
		reg:      reg,
		send:     send,
		dispatch: dispatch,
		outbound: make(map[int64]*Query),
		inbound:  make(map[string]*Query),
	}
}

// Start commits a new query: assigns the producer-local query_id (unique per
// origin UUID), arms the expiration timer, and routes it to every producer
// of the type.
func (m *Manager) Start(obj *dot.Object, expiry time.Duration, urgent bool) (*Query, error) {
	if expiry <= 0 {
		expiry = dfltExpiry
	}
	q := &Query{
		Obj:       obj,
		mgr:       m,
		id:        m.nextID.Add(1),
		requester: m.uuid,
		state:     StQuery,
		urgent:    urgent,
	}
	obj.Set(FieldID, q.id)
	obj.Set(FieldState, string(StQuery))

	m.mu.Lock()
	m.outbound[q.id] = q
	m.mu.Unlock()

	q.timer = time.AfterFunc(expiry, func() { m.expire(q) })
	if err := m.transmit(q, ""); err != nil {
		q.close()
		return nil, err
	}
	return q, nil
}

func (m *Manager) expire(q *Query) {
	if q.done.Swap(true) {
		return
	}
	m.unregister(q)
	nlog.Infof("query %s[%d]: expired", q.Obj.Code(), q.id)
	if b, ok := behaviorOf(q.Obj); ok {
		m.dispatch(q.Obj.Code(), func() { b.OnExpire(q) })
	}
}

func (m *Manager) unregister(q *Query) {
	m.mu.Lock()
	if q.requester == m.uuid {
		delete(m.outbound, q.id)
	} else {
		delete(m.inbound, q.requester+"\x00"+strconv.FormatInt(q.id, 10))
	}
	m.mu.Unlock()
}

func behaviorOf(obj *dot.Object) (Behavior, bool) {
	b, ok := obj.Meta().Behavior.(Behavior)
	return b, ok
}

//
// wire side
//

// transmit serializes and routes; dest narrows the fan-out for replies.
func (m *Manager) transmit(q *Query, dest string) error {
	fields, err := q.Obj.Serialize()
	if err != nil {
		return err
	}
	prefix := byte(cmn.PrefixQuery)
	if q.urgent {
		prefix = cmn.PrefixUrgentQuery
	}
	dests := codec.BroadcastDests()
	if dest != "" {
		dests = codec.DestsOf(dest)
	}
	m.send(&seq.Command{
		Prefix: prefix,
		Type:   q.Obj.Code(),
		Ts:     time.Now(),
		Origin: m.uuid,
		Dests:  dests,
		Keys:   q.Obj.Keys(),
		Fields: fields,
	})
	return nil
}

// sendReply implements the reply/abort retransmission for Query.
func (m *Manager) sendReply(q *Query, state State, dest string) error {
	q.Obj.Set(FieldState, string(state))
	return m.transmit(q, dest)
}

// HandleInbound processes an arrived query-prefixed command. The object has
// already been deserialized into obj (detached; query objects are
// disposable). produced reports whether this node produces the type.
func (m *Manager) HandleInbound(cmd *seq.Command, obj *dot.Object, produced bool) {
	state := State(obj.GetString(FieldState))
	qid := obj.GetInt(FieldID)
	switch state {
	case StQuery:
		if !produced || m.notForMe(cmd) {
			return
		}
		m.enquire(cmd, obj, qid)
	case StAborted:
		m.aborted(cmd, qid)
	case StReplied, StNext, StEnd:
		m.reply(cmd, obj, qid, state)
	default:
		nlog.Warnf("query %s[%d]: state %q", cmd.Type, qid, state)
	}
}

func (m *Manager) notForMe(cmd *seq.Command) bool {
	return !cmd.Dests.Contains(m.uuid)
}

func (m *Manager) enquire(cmd *seq.Command, obj *dot.Object, qid int64) {
	q := &Query{
		Obj:       obj,
		mgr:       m,
		id:        qid,
		requester: cmd.Origin,
		state:     StQuery,
		urgent:    cmd.Prefix == cmn.PrefixUrgentQuery,
	}
	key := cmd.Origin + "\x00" + strconv.FormatInt(qid, 10)
	m.mu.Lock()
	m.inbound[key] = q
	m.mu.Unlock()

	if b, ok := behaviorOf(obj); ok {
		m.dispatch(obj.Code(), func() { b.OnEnquire(q) })
	}
}

func (m *Manager) aborted(cmd *seq.Command, qid int64) {
	key := cmd.Origin + "\x00" + strconv.FormatInt(qid, 10)
	m.mu.Lock()
	q := m.inbound[key]
	delete(m.inbound, key)
	m.mu.Unlock()
	if q != nil {
		q.done.Store(true)
		q.setState(StAborted)
	}
}

// reply delivers a producer's answer to our pending query. After END or
// expiration, late replies are ignored.
func (m *Manager) reply(cmd *seq.Command, obj *dot.Object, qid int64, state State) {
	if !cmd.Dests.Contains(m.uuid) {
		return
	}
	m.mu.Lock()
	q := m.outbound[qid]
	m.mu.Unlock()
	if q == nil || q.done.Load() {
		return // expired, aborted, or already ended
	}
	q.Obj.SetAll(recordOf(obj))
	q.setState(state)
	b, ok := behaviorOf(q.Obj)
	if !ok {
		if state != StNext {
			q.close()
		}
		return
	}
	switch state {
	case StNext:
		m.dispatch(q.Obj.Code(), func() { b.OnReplyNext(q) })
	default: // StReplied, StEnd
		q.close()
		m.dispatch(q.Obj.Code(), func() { b.OnReplyEnd(q) })
	}
}

func recordOf(obj *dot.Object) codec.Record {
	rec := make(codec.Record, 8)
	for _, spec := range obj.Meta().Fields {
		rec[spec.Name] = obj.Get(spec.Name)
	}
	return rec
}
