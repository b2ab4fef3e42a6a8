// Package hub implements the central router
/*
 * Copyright (c) 2021-2026, WeaveMesh Systems, Inc. All rights reserved.
 */
package hub

import (
	"sort"
	"sync"
	"time"

	"github.com/weavemesh/weavemesh/cmn"
	"github.com/weavemesh/weavemesh/cmn/mono"
	"github.com/weavemesh/weavemesh/cmn/nlog"
	"github.com/weavemesh/weavemesh/codec"
	"github.com/weavemesh/weavemesh/seq"
)

// The producer keeps, per (consumer, type), a table of unconfirmed lossless
// commits keyed by ack sequence. An incoming ACK removes its entry; the
// periodic sweep resends anything older than the resend timeout - flat, no
// backoff - until the retention cutoff, at which point the consumer is
// considered gone.

const dfltResendAfter = 2 * time.Minute

type (
	ackKey struct {
		consumer string
		code     string
	}
	pendingAck struct {
		cmd     seq.Command
		sentAt  int64     // mono, last (re)send
		created time.Time // wall, for the retention cutoff
	}
	ackTracker struct {
		subs        map[ackKey]struct{}
		next        map[ackKey]int64
		pending     map[ackKey]map[int64]*pendingAck
		resendAfter time.Duration
		mu          sync.Mutex
	}
)

func newAckTracker() *ackTracker {
	return &ackTracker{
		subs:        make(map[ackKey]struct{}),
		next:        make(map[ackKey]int64),
		pending:     make(map[ackKey]map[int64]*pendingAck),
		resendAfter: dfltResendAfter,
	}
}

func (t *ackTracker) subscribe(consumer, code string) {
	t.mu.Lock()
	t.subs[ackKey{consumer, code}] = struct{}{}
	t.mu.Unlock()
}

// attachFor assigns an ack sequence when the outgoing copy serves a lossless
// subscriber reachable through p; the pending entry re-targets the consumer
// directly so a resend can be routed without the original fan-out.
func (t *ackTracker) attachFor(p Peer, cmd *seq.Command) (int64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	var (
		seqNo int64
		found bool
	)
	for key := range t.subs {
		if key.code != cmd.Type || !cmd.Dests.Contains(key.consumer) || !p.Reaches(key.consumer) {
			continue
		}
		if found {
			nlog.Warnf("%s: multiple lossless subscribers behind %s; acks may overlap", cmd.Type, p.Name())
			continue
		}
		found = true
		t.next[key]++
		seqNo = t.next[key]

		retained := *cmd
		retained.AckSeq = seqNo
		retained.Dests = codec.DestsOf(key.consumer)
		if t.pending[key] == nil {
			t.pending[key] = make(map[int64]*pendingAck, 16)
		}
		t.pending[key][seqNo] = &pendingAck{
			cmd:     retained,
			sentAt:  mono.NanoTime(),
			created: time.Now(),
		}
	}
	return seqNo, found
}

func (t *ackTracker) confirm(consumer, code string, ackSeq int64) {
	t.mu.Lock()
	if bysq := t.pending[ackKey{consumer, code}]; bysq != nil {
		delete(bysq, ackSeq)
	}
	t.mu.Unlock()
}

func (t *ackTracker) pendingCnt(consumer, code string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending[ackKey{consumer, code}])
}

// sweep resends overdue entries in ack-sequence order and drops those past
// the 24-hour retention window.
func (t *ackTracker) sweep(resend func(cmd *seq.Command, consumer string)) {
	type redo struct {
		cmd      *seq.Command
		consumer string
	}
	var todo []redo
	now, wall := mono.NanoTime(), time.Now()

	t.mu.Lock()
	for key, byseq := range t.pending {
		for seqNo, pa := range byseq {
			if wall.Sub(pa.created) > cmn.LosslessRetention {
				nlog.Warnf("%s: dropping ack %d for %s: consumer gone", key.code, seqNo, key.consumer)
				delete(byseq, seqNo)
				continue
			}
			if time.Duration(now-pa.sentAt) < t.resendAfter {
				continue
			}
			pa.sentAt = now
			cmd := pa.cmd
			todo = append(todo, redo{&cmd, key.consumer})
		}
	}
	t.mu.Unlock()

	sort.Slice(todo, func(i, j int) bool { return todo[i].cmd.AckSeq < todo[j].cmd.AckSeq })
	for _, r := range todo {
		resend(r.cmd, r.consumer)
	}
}

func (t *ackTracker) dropConsumers(uuids []string) {
	t.mu.Lock()
	for _, u := range uuids {
		for key := range t.subs {
			if key.consumer == u {
				delete(t.subs, key)
				delete(t.pending, key)
				delete(t.next, key)
			}
		}
	}
	t.mu.Unlock()
}
