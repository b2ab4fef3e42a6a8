// Package events implements per-type event dispatch: worker pools, bounded
// queues, sync-to-async fallback, and the single-thread rule for lossless
// subscriptions
/*
 * Copyright (c) 2021-2026, WeaveMesh Systems, Inc. All rights reserved.
 */
package events

import (
	"runtime"
	"sync"

	"github.com/weavemesh/weavemesh/cmn"
	"github.com/weavemesh/weavemesh/cmn/nlog"
	"github.com/weavemesh/weavemesh/dot"
)

type Kind int

const (
	EvObject Kind = iota
	EvObsolete
	EvResetObject
	EvResetCompleted
	EvQueryEnquire
	EvQueryReply
)

// Resetter is the bulk-replay sink handed to the application (and to the
// built-in tree dump) during a reset; implemented by package hub.
type Resetter interface {
	ResetObject(o *dot.Object) bool
	EndOfData()
}

// ResetBehavior is optionally implemented by a type's Behavior to take over
// streaming its state on reset.
type ResetBehavior interface {
	OnObjectReset(r Resetter) bool // false => run the built-in tree dump
	OnResetCompleted(code string)
}

type (
	AckFn func(ackSeq int64)

	Event struct {
		Obj      *dot.Object
		OldID    string // EvObsolete rename
		Ack      AckFn  // emit the lossless ack on success
		AckSeq   int64
		Resetter Resetter  // EvResetObject
		Tree     *dot.Tree // for the built-in reset dump
		Deliver  func()    // EvQuery*: pre-bound callback
		Kind     Kind
	}

	typeQueue struct {
		meta     *dot.TypeMeta
		ch       chan Event
		lossless bool
	}

	Dispatcher struct {
		queues map[string]*typeQueue
		// OnAppError is invoked for panics escaping application callbacks
		// (alert-mail collaborator hook); processing continues.
		OnAppError func(typeCode string, err error)
		wg         sync.WaitGroup
		mu         sync.RWMutex
		stopped    bool
	}
)

func NewDispatcher() *Dispatcher {
	return &Dispatcher{queues: make(map[string]*typeQueue)}
}

// RegType allocates the worker pool for one type. Thread allocation:
// negative = CPU count, 0 = synchronous inline dispatch, positive = that
// many workers. A lossless subscription is capped at a single worker to
// preserve commit order.
func (d *Dispatcher) RegType(meta *dot.TypeMeta, lossless bool, qcap int) {
	workers := meta.Threads
	if workers < 0 {
		workers = runtime.NumCPU()
	}
	if lossless && workers != 1 {
		if workers > 1 {
			nlog.Warnf("%s: lossless subscription: capping %d workers to 1", meta.Code, workers)
		}
		workers = 1
	}
	if qcap <= 0 {
		qcap = cmn.DfltEventQueueCap
	}
	q := &typeQueue{meta: meta, lossless: lossless}
	if workers > 0 {
		q.ch = make(chan Event, qcap)
		for i := 0; i < workers; i++ {
			d.wg.Add(1)
			go d.worker(q)
		}
	}
	d.mu.Lock()
	d.queues[meta.Code] = q
	d.mu.Unlock()
}

func (d *Dispatcher) queue(code string) *typeQueue {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.queues[code]
}

// Deliver runs the synchronous part on the calling (reader) goroutine and
// falls back to the per-type pool. EvObject's OnEvent runs inline; a false
// return enqueues the object for OnAsyncEvent.
func (d *Dispatcher) Deliver(code string, ev Event) bool {
	q := d.queue(code)
	if q == nil {
		nlog.Errorf("no dispatch queue for type %s", code)
		return false
	}
	if ev.Kind == EvObject {
		done, ok := d.syncEvent(q, ev)
		if done {
			return ok
		}
	}
	return d.enqueue(q, ev)
}

// syncEvent returns (handled, success).
func (d *Dispatcher) syncEvent(q *typeQueue, ev Event) (bool, bool) {
	ok, err := d.invoke(q, func() bool { return q.meta.Behavior.OnEvent(ev.Obj) })
	if err != nil {
		return true, false
	}
	if !ok {
		return false, false // fall through to async
	}
	if ev.Ack != nil {
		ev.Ack(ev.AckSeq)
	}
	return true, true
}

func (d *Dispatcher) enqueue(q *typeQueue, ev Event) bool {
	if q.ch == nil { // inline dispatch (Threads == 0)
		d.execute(q, ev)
		return true
	}
	if q.lossless {
		q.ch <- ev // block: order and delivery trump back-pressure
		return true
	}
	select {
	case q.ch <- ev:
		return true
	default:
		nlog.Errorf("%s: event queue full (%d), dropping", q.meta.Code, cap(q.ch))
		return false
	}
}

func (d *Dispatcher) worker(q *typeQueue) {
	defer d.wg.Done()
	for ev := range q.ch {
		d.execute(q, ev)
	}
}

func (d *Dispatcher) execute(q *typeQueue, ev Event) {
	switch ev.Kind {
	case EvObject:
		ok, err := d.invoke(q, func() bool { return q.meta.Behavior.OnAsyncEvent(ev.Obj) })
		if ok && err == nil && ev.Ack != nil {
			ev.Ack(ev.AckSeq)
		}
	case EvObsolete:
		d.obsolete(q, ev)
	case EvResetObject:
		d.reset(q, ev)
	case EvResetCompleted:
		if rb, ok := q.meta.Behavior.(ResetBehavior); ok {
			rb.OnResetCompleted(q.meta.Code)
		}
	case EvQueryEnquire, EvQueryReply:
		if ev.Deliver != nil {
			_, _ = d.invoke(q, func() bool { ev.Deliver(); return true })
		}
	}
}

func (d *Dispatcher) obsolete(q *typeQueue, ev Event) {
	if ev.Obj.RenameTarget() != "" || ev.OldID != "" {
		_, _ = d.invoke(q, func() bool {
			q.meta.Behavior.OnRename(ev.Obj, ev.OldID)
			return true
		})
		return
	}
	ok, err := d.invoke(q, func() bool { return q.meta.Behavior.OnRemoval(ev.Obj) })
	if err == nil && !ok {
		ev.Obj.Undelete() // removal vetoed
	}
}

func (d *Dispatcher) reset(q *typeQueue, ev Event) {
	handled := false
	if rb, ok := q.meta.Behavior.(ResetBehavior); ok {
		h, err := d.invoke(q, func() bool { return rb.OnObjectReset(ev.Resetter) })
		handled = h && err == nil
	}
	if !handled && ev.Tree != nil {
		objs, err := ev.Tree.ObjectsOf(q.meta.Code)
		if err != nil {
			nlog.Errorln("reset dump:", err)
		} else {
			for _, o := range objs {
				if !ev.Resetter.ResetObject(o) {
					break
				}
			}
		}
	}
	ev.Resetter.EndOfData()
}

// invoke shields the core from application callbacks: a panic is logged,
// reported through OnAppError, and processing continues.
func (d *Dispatcher) invoke(q *typeQueue, f func() bool) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = cmn.ErrApplication
			nlog.Errorf("%s: application callback panic: %v", q.meta.Code, r)
			if d.OnAppError != nil {
				d.OnAppError(q.meta.Code, cmn.ErrApplication)
			}
		}
	}()
	return f(), nil
}

// Stop closes all queues and waits for the workers to drain.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	for _, q := range d.queues {
		if q.ch != nil {
			close(q.ch)
		}
	}
	d.mu.Unlock()
	d.wg.Wait()
}
