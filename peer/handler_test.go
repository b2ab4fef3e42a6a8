// Package peer implements the per-peer control state machine
/*
 * Copyright (c) 2021-2026, WeaveMesh Systems, Inc. All rights reserved.
 */
package peer_test

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/weavemesh/weavemesh/cmn"
	"github.com/weavemesh/weavemesh/codec"
	"github.com/weavemesh/weavemesh/peer"
	"github.com/weavemesh/weavemesh/seq"
	"github.com/weavemesh/weavemesh/wire"
)

type fakeSink struct {
	uuid     string
	consume  []string
	mu       sync.Mutex
	cmds     []*seq.Command
	resets   []*seq.ResetRequest
	acks     []int64
	ready    bool
	gone     bool
}

func (s *fakeSink) AppUUID() string                        { return s.uuid }
func (s *fakeSink) AppInfo() (string, string, string)      { return "test-app", "1.0", "2.4" }
func (s *fakeSink) UserID() string                         { return "" }
func (s *fakeSink) DeployTime() time.Time                  { return time.Date(2026, 7, 1, 0, 0, 0, 0, time.Local) }
func (s *fakeSink) NextResetSeq() int64                    { return 1 }
func (s *fakeSink) ConsumedTypes() []string                { return s.consume }

func (s *fakeSink) HandleCommand(_ *peer.Handler, cmd *seq.Command, _ string) {
	s.mu.Lock()
	s.cmds = append(s.cmds, cmd)
	s.mu.Unlock()
}

func (s *fakeSink) HandleResetRequest(_ *peer.Handler, req *seq.ResetRequest) {
	s.mu.Lock()
	s.resets = append(s.resets, req)
	s.mu.Unlock()
}

func (s *fakeSink) HandleAck(_ *peer.Handler, _, _, _ string, ackSeq int64) {
	s.mu.Lock()
	s.acks = append(s.acks, ackSeq)
	s.mu.Unlock()
}

func (s *fakeSink) HandleRemoveNodes(*peer.Handler, []string) {}
func (s *fakeSink) PeerReady(*peer.Handler)                   { s.mu.Lock(); s.ready = true; s.mu.Unlock() }
func (s *fakeSink) PeerGone(*peer.Handler)                    { s.mu.Lock(); s.gone = true; s.mu.Unlock() }

func (s *fakeSink) isReady() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

func wait(t *testing.T, what string, cond func() bool) {
	t.Helper()
	for n := 0; n < 400; n++ {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("timed out: " + what)
}

func startPair(t *testing.T, prodRole, consRole string) (ph, ch *peer.Handler, psink, csink *fakeSink) {
	t.Helper()
	pa, pc := net.Pipe()
	psink = &fakeSink{uuid: "node-produuuuu"}
	csink = &fakeSink{uuid: "node-consuuuuu", consume: []string{"Px"}}

	ph = peer.NewHandler(peer.Config{Name: "srv", LocalRole: prodRole, IsServer: true}, nil, psink)
	ph.SetConn(wire.NewConn(wire.Config{Name: "srv"}, func() (wire.Transport, error) { return pa, nil }, ph, nil))
	ch = peer.NewHandler(peer.Config{Name: "cli", LocalRole: consRole}, nil, csink)
	ch.SetConn(wire.NewConn(wire.Config{Name: "cli"}, func() (wire.Transport, error) { return pc, nil }, ch, nil))

	if err := ph.Start(); err != nil {
		t.Fatal(err)
	}
	if err := ch.Start(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		ph.Disconnect("done")
		ch.Disconnect("done")
	})
	return
}

func Test_LoginHandshake(t *testing.T) {
	ph, ch, psink, csink := startPair(t, cmn.RoleProducer, cmn.RoleConsumer)

	wait(t, "both ready", func() bool { return psink.isReady() && csink.isReady() })
	if ph.RemoteUUID() != csink.uuid || ch.RemoteUUID() != psink.uuid {
		t.Fatalf("uuids: %q %q", ph.RemoteUUID(), ch.RemoteUUID())
	}
	if ph.State() != peer.Monitoring || ch.State() != peer.Monitoring {
		t.Fatalf("states: %s %s", ph.State(), ch.State())
	}
	// consumer bootstraps with a reset request for its subscriptions
	wait(t, "bootstrap reset", func() bool {
		psink.mu.Lock()
		defer psink.mu.Unlock()
		return len(psink.resets) == 1
	})
	psink.mu.Lock()
	req := psink.resets[0]
	psink.mu.Unlock()
	if req.Requester != csink.uuid || req.Types[0] != "Px" {
		t.Fatalf("reset request: %+v", req)
	}
	if !ph.Reaches(csink.uuid) {
		t.Fatal("remote UUID not in connected nodes")
	}
}

func Test_EqualRolesRejected(t *testing.T) {
	_, _, psink, csink := startPair(t, cmn.RoleConsumer, cmn.RoleConsumer)
	wait(t, "login refused", func() bool {
		csink.mu.Lock()
		defer csink.mu.Unlock()
		return csink.gone
	})
	if psink.isReady() || csink.isReady() {
		t.Fatal("consumer-to-consumer login succeeded")
	}
}

func Test_SequencedDataPath(t *testing.T) {
	ph, _, _, csink := startPair(t, cmn.RoleProducer, cmn.RoleConsumer)
	wait(t, "ready", func() bool { return csink.isReady() })

	for i := 0; i < 3; i++ {
		ok := ph.SendCommand(&seq.Command{
			Prefix: cmn.PrefixNormal,
			Type:   "Px",
			Ts:     time.Now(),
			Origin: "node-produuuuu",
			Dests:  codec.BroadcastDests(),
			Keys:   []string{"1"},
			Fields: "v" + string(rune('0'+i)),
			ObjSeq: int64(i + 1),
		})
		if !ok {
			t.Fatal("send refused")
		}
	}
	wait(t, "commands", func() bool {
		csink.mu.Lock()
		defer csink.mu.Unlock()
		return len(csink.cmds) == 3
	})
	csink.mu.Lock()
	defer csink.mu.Unlock()
	if csink.cmds[2].Fields != "v2" || csink.cmds[2].ObjSeq != 3 {
		t.Fatalf("last command: %+v", csink.cmds[2])
	}
}

func Test_AckFrame(t *testing.T) {
	ph, _, _, csink := startPair(t, cmn.RoleProducer, cmn.RoleConsumer)
	wait(t, "ready", func() bool { return csink.isReady() })

	ph.SendAck("Px", "node-produuuuu", "node-consuuuuu", 42)
	wait(t, "ack", func() bool {
		csink.mu.Lock()
		defer csink.mu.Unlock()
		return len(csink.acks) == 1 && csink.acks[0] == 42
	})
}
