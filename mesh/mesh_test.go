// Package mesh assembles the runtime
/*
 * Copyright (c) 2021-2026, WeaveMesh Systems, Inc. All rights reserved.
 */
package mesh_test

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/weavemesh/weavemesh/cmn"
	"github.com/weavemesh/weavemesh/codec"
	"github.com/weavemesh/weavemesh/dot"
	"github.com/weavemesh/weavemesh/mesh"
	"github.com/weavemesh/weavemesh/query"
	"github.com/weavemesh/weavemesh/wire"
)

type recorder struct {
	dot.NopBehavior
	mu      sync.Mutex
	events  []string // "id=v"
	renames []string
	removes []string
}

func (r *recorder) OnEvent(o *dot.Object) bool {
	r.mu.Lock()
	r.events = append(r.events, o.ID()+"="+o.GetString("v"))
	r.mu.Unlock()
	return true
}

func (r *recorder) OnRemoval(o *dot.Object) bool {
	r.mu.Lock()
	r.removes = append(r.removes, o.ID())
	r.mu.Unlock()
	return true
}

func (r *recorder) OnRename(o *dot.Object, oldID string) {
	r.mu.Lock()
	r.renames = append(r.renames, oldID+">"+o.ID())
	r.mu.Unlock()
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	for n := 0; n < 600; n++ {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("timed out: " + what)
}

func newRegistry(t *testing.T, b dot.Behavior) *dot.Registry {
	t.Helper()
	reg := dot.NewRegistry()
	if err := reg.Reg(&dot.TypeMeta{
		Code:     "Px",
		Behavior: b,
		Threads:  0, // inline: deterministic tests
		Fields: []codec.FieldSpec{
			{Name: "v", Kind: codec.KindString},
		},
	}); err != nil {
		t.Fatal(err)
	}
	return reg
}

// producer/consumer pair connected over an in-memory pipe
func newPair(t *testing.T, consume string) (prod, cons *mesh.Runtime, rec *recorder) {
	t.Helper()
	rec = &recorder{}

	prod, err := mesh.New(mesh.Options{
		Registry: newRegistry(t, nil),
		AppName:  "producer-app",
		Produce:  []string{"Px"},
	})
	if err != nil {
		t.Fatal(err)
	}
	cons, err = mesh.New(mesh.Options{
		Registry: newRegistry(t, rec),
		AppName:  "consumer-app",
		Consume:  []string{consume},
	})
	if err != nil {
		t.Fatal(err)
	}

	pa, pc := net.Pipe()
	ph, err := prod.AddChannel(mesh.ChannelSpec{
		Name:      "to-consumer",
		LocalRole: cmn.RoleProducer,
		IsServer:  true,
		Dial:      func() (wire.Transport, error) { return pa, nil },
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err = cons.AddChannel(mesh.ChannelSpec{
		Name:      "to-producer",
		LocalRole: cmn.RoleConsumer,
		Dial:      func() (wire.Transport, error) { return pc, nil },
	}); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		prod.Stop(false)
		cons.Stop(false)
	})

	// login + bootstrap reset request makes the producer interested
	waitFor(t, "login handshake", func() bool { return ph.NeedsType("Px") })
	return prod, cons, rec
}

func Test_ProducerToConsumer(t *testing.T) {
	prod, cons, rec := newPair(t, "Px")

	obj, _ := prod.Root().CreateChild("Px", "1")
	obj.Set("v", "7")
	if err := prod.Commit(obj); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "first event", func() bool { return len(rec.snapshot()) >= 1 })
	if got := rec.snapshot()[0]; got != "1=7" {
		t.Fatalf("event: %q", got)
	}

	obj.Set("v", "8")
	if err := prod.Commit(obj); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "update event", func() bool { return len(rec.snapshot()) >= 2 })
	if got := rec.snapshot()[1]; got != "1=8" {
		t.Fatalf("update: %q", got)
	}

	// the consumer's tree mirrors the producer's
	mirror := cons.Root().GetChild("Px", "1")
	if mirror == nil || mirror.GetString("v") != "8" {
		t.Fatalf("mirror: %+v", mirror)
	}
	if mirror.Origin() != prod.UUID() {
		t.Fatalf("origin: %q", mirror.Origin())
	}
}

func Test_RenamePropagation(t *testing.T) {
	prod, cons, rec := newPair(t, "Px")

	obj, _ := prod.Root().CreateChild("Px", "1")
	obj.Set("v", "7")
	if err := prod.Commit(obj); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "create", func() bool { return cons.Root().GetChild("Px", "1") != nil })

	if err := prod.CommitRename(obj, "1b"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "rename event", func() bool {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		return len(rec.renames) == 1
	})
	rec.mu.Lock()
	ren := rec.renames[0]
	rec.mu.Unlock()
	if ren != "1>1b" {
		t.Fatalf("rename: %q", ren)
	}
	if cons.Root().GetChild("Px", "1") != nil {
		t.Fatal("old ID still live downstream")
	}
	if cons.Root().GetChild("Px", "1b") == nil {
		t.Fatal("new ID missing downstream")
	}
}

func Test_RemovePropagation(t *testing.T) {
	prod, cons, rec := newPair(t, "Px")

	obj, _ := prod.Root().CreateChild("Px", "1")
	obj.Set("v", "7")
	_ = prod.Commit(obj)
	waitFor(t, "create", func() bool { return cons.Root().GetChild("Px", "1") != nil })

	if err := prod.CommitRemove(obj); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "removal event", func() bool {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		return len(rec.removes) == 1
	})
	waitFor(t, "removal applied", func() bool { return cons.Root().GetChild("Px", "1") == nil })
}

func Test_LosslessAckRoundTrip(t *testing.T) {
	prod, cons, _ := newPair(t, "Px+")

	obj, _ := prod.Root().CreateChild("Px", "1")
	obj.Set("v", "7")
	if err := prod.Commit(obj); err != nil {
		t.Fatal(err)
	}
	// the consumer processes the event, returns the ack, and the producer's
	// pending table empties
	waitFor(t, "ack round-trip", func() bool {
		return prod.Hub().PendingAcks(cons.UUID(), "Px") == 0
	})
	// a second lossless commit is acknowledged too and reaches the consumer
	obj2, _ := prod.Root().CreateChild("Px", "2")
	obj2.Set("v", "9")
	_ = prod.Commit(obj2)
	waitFor(t, "second ack", func() bool {
		return prod.Hub().PendingAcks(cons.UUID(), "Px") == 0
	})
	waitFor(t, "delivery", func() bool { return cons.Root().GetChild("Px", "2") != nil })
}

//
// query round-trip
//

type qserver struct {
	dot.NopBehavior
	replies int
}

func (s *qserver) OnEnquire(q *query.Query) {
	for i := 0; i < s.replies; i++ {
		q.Obj.Set("answer", "part-"+string(rune('a'+i)))
		state := query.StNext
		if i == s.replies-1 {
			state = query.StEnd
		}
		_ = q.Reply(state)
	}
}

type qclient struct {
	dot.NopBehavior
	mu    sync.Mutex
	nexts int
	ends  int
}

func (c *qclient) OnEnquire(*query.Query)  {}
func (c *qclient) OnReplyNext(*query.Query) { c.mu.Lock(); c.nexts++; c.mu.Unlock() }
func (c *qclient) OnReplyEnd(*query.Query)  { c.mu.Lock(); c.ends++; c.mu.Unlock() }
func (c *qclient) OnExpire(*query.Query)    {}
func (s *qserver) OnReplyNext(*query.Query) {}
func (s *qserver) OnReplyEnd(*query.Query)  {}
func (s *qserver) OnExpire(*query.Query)    {}

func queryRegistry(t *testing.T, b dot.Behavior) *dot.Registry {
	t.Helper()
	reg := dot.NewRegistry()
	if err := reg.Reg(&dot.TypeMeta{
		Code:       "Qy",
		Disposable: true,
		Behavior:   b,
		Threads:    0,
		Fields: query.FieldSpecs([]codec.FieldSpec{
			{Name: "question", Kind: codec.KindString},
			{Name: "answer", Kind: codec.KindString},
		}),
	}); err != nil {
		t.Fatal(err)
	}
	return reg
}

func Test_QueryEndToEnd(t *testing.T) {
	server := &qserver{replies: 3}
	client := &qclient{}

	prod, err := mesh.New(mesh.Options{
		Registry: queryRegistry(t, server),
		AppName:  "answering-app",
		Produce:  []string{"Qy"},
	})
	if err != nil {
		t.Fatal(err)
	}
	cons, err := mesh.New(mesh.Options{
		Registry: queryRegistry(t, client),
		AppName:  "asking-app",
		Consume:  []string{"Qy"},
	})
	if err != nil {
		t.Fatal(err)
	}
	pa, pc := net.Pipe()
	if _, err := prod.AddChannel(mesh.ChannelSpec{
		Name: "srv", LocalRole: cmn.RoleProducer, IsServer: true,
		Dial: func() (wire.Transport, error) { return pa, nil },
	}); err != nil {
		t.Fatal(err)
	}
	ch, err := cons.AddChannel(mesh.ChannelSpec{
		Name: "cli", LocalRole: cmn.RoleConsumer,
		Dial: func() (wire.Transport, error) { return pc, nil },
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		prod.Stop(false)
		cons.Stop(false)
	})
	waitFor(t, "login", func() bool { return ch.State() >= 2 /* LoggedIn */ })

	obj, _ := cons.Root().CreateChild("Qy", "")
	obj.Set("question", "state of the world?")
	if _, err := cons.StartQuery(obj, time.Minute, false); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "query replies", func() bool {
		client.mu.Lock()
		defer client.mu.Unlock()
		return client.ends == 1
	})
	client.mu.Lock()
	defer client.mu.Unlock()
	if client.nexts != 2 || client.ends != 1 {
		t.Fatalf("replies: next=%d end=%d", client.nexts, client.ends)
	}
}
