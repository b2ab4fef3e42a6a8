// Package hk provides mechanism for registering cleanup
// functions which are invoked at specified intervals.
/*
 * Copyright (c) 2021-2026, WeaveMesh Systems, Inc. All rights reserved.
 */
package hk

import (
	"container/heap"
	"sync"
	"time"

	"github.com/weavemesh/weavemesh/cmn/debug"
	"github.com/weavemesh/weavemesh/cmn/mono"
)

const NameSuffix = ".gc" // reg name suffix

// CleanupFunc is invoked at its scheduled time and returns the interval until
// the next invocation.
type CleanupFunc func() time.Duration

type (
	request struct {
		f       CleanupFunc
		name    string
		initial time.Duration
		reg     bool
	}
	timedAction struct {
		f          CleanupFunc
		name       string
		updateTime int64
	}
	timedActions []timedAction

	housekeeper struct {
		stopCh  chan struct{}
		sigCh   chan struct{}
		actions *timedActions
		running sync.WaitGroup
		mu      sync.Mutex
	}
)

var DefaultHK *housekeeper

func init() {
	DefaultHK = newHK()
	DefaultHK.running.Add(1)
	go DefaultHK.Run()
}

// TestInit reinitializes the default housekeeper (tests only).
func TestInit() {
	DefaultHK.Stop()
	DefaultHK = newHK()
	DefaultHK.running.Add(1)
}

func WaitStarted() { DefaultHK.running.Wait() }

func newHK() *housekeeper {
	return &housekeeper{
		stopCh:  make(chan struct{}),
		sigCh:   make(chan struct{}, 1),
		actions: &timedActions{},
	}
}

func Reg(name string, f CleanupFunc, initial ...time.Duration) {
	var ival time.Duration
	if len(initial) > 0 {
		ival = initial[0]
	}
	DefaultHK.reg(request{reg: true, name: name, f: f, initial: ival})
}

func Unreg(name string) { DefaultHK.reg(request{reg: false, name: name}) }

func (hk *housekeeper) reg(req request) {
	hk.mu.Lock()
	if req.reg {
		hk._reg(req)
	} else {
		hk._unreg(req.name)
	}
	hk.mu.Unlock()
	select {
	case hk.sigCh <- struct{}{}:
	default:
	}
}

func (hk *housekeeper) _reg(req request) {
	debug.AssertFunc(func() bool {
		for _, t := range *hk.actions {
			if t.name == req.name {
				return false
			}
		}
		return true
	}, "duplicated: ", req.name)
	heap.Push(hk.actions, timedAction{name: req.name, f: req.f, updateTime: mono.NanoTime() + req.initial.Nanoseconds()})
}

func (hk *housekeeper) _unreg(name string) {
	for i, t := range *hk.actions {
		if t.name == name {
			heap.Remove(hk.actions, i)
			return
		}
	}
}

func (hk *housekeeper) Run() {
	var (
		timer   = time.NewTimer(time.Hour)
		started bool
	)
	defer timer.Stop()
	for {
		if !started {
			started = true
			hk.running.Done()
		}
		select {
		case <-hk.stopCh:
			return
		case <-hk.sigCh:
		case <-timer.C:
		}
		ival := hk.tick()
		timer.Reset(ival)
	}
}

// invoke all due actions, reschedule, return time till the nearest
func (hk *housekeeper) tick() time.Duration {
	hk.mu.Lock()
	defer hk.mu.Unlock()
	now := mono.NanoTime()
	for hk.actions.Len() > 0 {
		next := (*hk.actions)[0]
		if next.updateTime > now {
			return time.Duration(next.updateTime - now)
		}
		ival := next.f()
		if ival < 0 { // self-unregister
			heap.Pop(hk.actions)
			continue
		}
		(*hk.actions)[0].updateTime = now + ival.Nanoseconds()
		heap.Fix(hk.actions, 0)
	}
	return time.Hour
}

func (hk *housekeeper) Stop() {
	select {
	case <-hk.stopCh:
	default:
		close(hk.stopCh)
	}
}

//
// container/heap impl
//

func (tc timedActions) Len() int            { return len(tc) }
func (tc timedActions) Less(i, j int) bool  { return tc[i].updateTime < tc[j].updateTime }
func (tc timedActions) Swap(i, j int)       { tc[i], tc[j] = tc[j], tc[i] }
func (tc timedActions) Peek() *timedAction  { return &tc[0] }
func (tc *timedActions) Push(x any)         { *tc = append(*tc, x.(timedAction)) }
func (tc *timedActions) Pop() any {
	old := *tc
	n := len(old)
	item := old[n-1]
	*tc = old[:n-1]
	return item
}

// UnregIf removes the named action only when cond holds (under lock).
func UnregIf(name string, cond func() bool) {
	DefaultHK.mu.Lock()
	if cond() {
		DefaultHK._unreg(name)
	}
	DefaultHK.mu.Unlock()
}
