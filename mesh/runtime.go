// Package mesh assembles the runtime: the single constructed handle owning
// the hub, object tree, event dispatcher, query manager, and import manager
/*
 * Copyright (c) 2021-2026, WeaveMesh Systems, Inc. All rights reserved.
 */
package mesh

import (
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/weavemesh/weavemesh/cmn"
	"github.com/weavemesh/weavemesh/cmn/cos"
	"github.com/weavemesh/weavemesh/cmn/nlog"
	"github.com/weavemesh/weavemesh/codec"
	"github.com/weavemesh/weavemesh/dot"
	"github.com/weavemesh/weavemesh/events"
	"github.com/weavemesh/weavemesh/hk"
	"github.com/weavemesh/weavemesh/hub"
	"github.com/weavemesh/weavemesh/imports"
	"github.com/weavemesh/weavemesh/peer"
	"github.com/weavemesh/weavemesh/query"
	"github.com/weavemesh/weavemesh/seq"
	"github.com/weavemesh/weavemesh/stats"
	"github.com/weavemesh/weavemesh/wire"
)

// CoreVersion identifies the distribution core on login frames.
const CoreVersion = "2.4"

var shortIDOnce sync.Once

type Options struct {
	Config     cmn.Config
	Registry   *dot.Registry
	AppName    string
	AppVersion string
	UserID     string
	Produce    []string // type codes this node produces
	Consume    []string // type codes consumed; '+' suffix = lossless
}

// Runtime is the process-wide application instance: constructed once at
// startup, torn down exactly once on shutdown. No hidden global state.
type Runtime struct {
	opts       Options
	uuid       string
	deployTime time.Time
	resetSeq   atomic.Int64

	reg     *dot.Registry
	tree    *dot.Tree
	disp    *events.Dispatcher
	hub     *hub.Hub
	queries *query.Manager
	imports *imports.Manager

	handlers  []*peer.Handler
	handlerMu sync.Mutex

	objSeq map[string]*atomic.Int64
	seqMu  sync.Mutex

	stopOnce sync.Once
}

func New(opts Options) (*Runtime, error) {
	if opts.Registry == nil || opts.AppName == "" {
		return nil, cmn.FatalErrf("registry and app name are required")
	}
	if opts.Config == nil {
		opts.Config = cmn.MapConfig{}
	}
	shortIDOnce.Do(func() { cos.InitShortID(uint64(time.Now().UnixNano())) })

	rt := &Runtime{
		opts:       opts,
		uuid:       cos.GenUUID(),
		deployTime: time.Now(),
		reg:        opts.Registry,
		objSeq:     make(map[string]*atomic.Int64),
	}
	hubMode := cmn.ConfBool(opts.Config, "hub-mode", false)

	consumed := make(map[string]bool, len(opts.Consume))
	for _, t := range opts.Consume {
		code, lossless := dot.ParseSubscription(t)
		if rt.reg.Get(code) == nil {
			return nil, cmn.FatalErrf("consumed type %q not registered", code)
		}
		consumed[code] = lossless
	}
	for _, code := range opts.Produce {
		if rt.reg.Get(code) == nil {
			return nil, cmn.FatalErrf("produced type %q not registered", code)
		}
	}

	rt.tree = dot.NewTree(rt.reg, hubMode)
	rt.hub = hub.New(rt.uuid, hubMode, opts.Produce, consumed)
	rt.disp = events.NewDispatcher()
	qcap := cmn.ConfInt(opts.Config, "event-queue-cap", cmn.DfltEventQueueCap)
	for _, code := range rt.reg.Codes() {
		rt.disp.RegType(rt.reg.Get(code), consumed[code], qcap)
	}
	rt.queries = query.NewManager(rt.uuid, rt.reg, rt.routeQuery,
		func(code string, fn func()) {
			rt.disp.Deliver(code, events.Event{Kind: events.EvQueryReply, Deliver: fn})
		})
	rt.imports = imports.NewManager(rt.reg, opts.Produce, rt.commitImported)
	return rt, nil
}

func (rt *Runtime) UUID() string            { return rt.uuid }
func (rt *Runtime) Tree() *dot.Tree         { return rt.tree }
func (rt *Runtime) Root() *dot.Object       { return rt.tree.Root() }
func (rt *Runtime) Hub() *hub.Hub           { return rt.hub }
func (rt *Runtime) Imports() *imports.Manager { return rt.imports }

// OnAppError installs the alert collaborator hook for application-callback
// failures.
func (rt *Runtime) OnAppError(f func(typeCode string, err error)) { rt.disp.OnAppError = f }

//
// lifecycle
//

// Start arms the housekeeping: channel monitors, lossless resend sweeps, and
// log flushing.
func (rt *Runtime) Start() {
	hk.Reg("mesh.monitor"+hk.NameSuffix, func() time.Duration {
		rt.handlerMu.Lock()
		hs := append([]*peer.Handler(nil), rt.handlers...)
		rt.handlerMu.Unlock()
		for _, h := range hs {
			h.Monitor()
		}
		return time.Second
	}, time.Second)
	hk.Reg("mesh.acks"+hk.NameSuffix, func() time.Duration {
		rt.hub.SweepAcks()
		return cmn.AckSweepIval
	}, cmn.AckSweepIval)
	hk.Reg("mesh.logs"+hk.NameSuffix, func() time.Duration {
		nlog.Flush(false)
		return 10 * time.Second
	}, 10*time.Second)
}

// Stop tears everything down; flush waits for the send buffers to drain.
func (rt *Runtime) Stop(flush bool) {
	rt.stopOnce.Do(func() {
		hk.Unreg("mesh.monitor" + hk.NameSuffix)
		hk.Unreg("mesh.acks" + hk.NameSuffix)
		hk.Unreg("mesh.logs" + hk.NameSuffix)

		rt.handlerMu.Lock()
		hs := append([]*peer.Handler(nil), rt.handlers...)
		rt.handlerMu.Unlock()

		g := &errgroup.Group{}
		for _, h := range hs {
			h := h
			g.Go(func() error {
				if flush {
					deadline := time.Now().Add(5 * time.Second)
					for h.Conn().Pending() > 0 && time.Now().Before(deadline) {
						time.Sleep(10 * time.Millisecond)
					}
				}
				h.Disconnect("shutdown")
				return nil
			})
		}
		_ = g.Wait()
		rt.disp.Stop()
		nlog.Flush(true)
	})
}

//
// channels
//

type ChannelSpec struct {
	Name       string
	LocalRole  string // cmn.RoleProducer | cmn.RoleConsumer
	IsServer   bool
	Dial       wire.Dialer
	Wire       wire.Config
	Compress   bool
	LogTraffic bool
}

// AddChannel wires one peer channel and connects it.
func (rt *Runtime) AddChannel(spec ChannelSpec) (*peer.Handler, error) {
	if spec.LocalRole == "" {
		spec.LocalRole = cmn.RoleProducer
	}
	wcfg := spec.Wire
	if wcfg.Name == "" {
		wcfg.Name = spec.Name
	}
	st := stats.NewChannel(spec.Name)
	h := peer.NewHandler(peer.Config{
		Name:       spec.Name,
		LocalRole:  spec.LocalRole,
		IsServer:   spec.IsServer,
		Compress:   spec.Compress,
		LogTraffic: spec.LogTraffic,
		PingRate:   cmn.ConfDuration(rt.opts.Config, "ping-rate", cmn.DfltPingRate),
	}, nil, rt)
	conn := wire.NewConn(wcfg, spec.Dial, h, st)
	h.SetConn(conn)

	rt.handlerMu.Lock()
	rt.handlers = append(rt.handlers, h)
	rt.handlerMu.Unlock()
	rt.hub.AddPeer(h)

	if err := h.Start(); err != nil {
		return nil, err
	}
	return h, nil
}

//
// object sequence numbers: ours, per type, monotone
//

func (rt *Runtime) nextObjSeq(code string) int64 {
	rt.seqMu.Lock()
	ctr := rt.objSeq[code]
	if ctr == nil {
		ctr = &atomic.Int64{}
		rt.objSeq[code] = ctr
	}
	rt.seqMu.Unlock()
	return ctr.Add(1)
}

func (rt *Runtime) routeQuery(cmd *seq.Command) {
	// queries ride the same per-(origin, type) ordering space as commits so
	// the hub-level dedup applies to them too
	cmd.ObjSeq = rt.nextObjSeq("?" + cmd.Type)
	rt.hub.RouteQuery(nil, cmd)
}

func (rt *Runtime) commitImported(code string, keys []string, rec codec.Record, ts time.Time) {
	obj, err := rt.materialize(code, keys)
	if err != nil {
		nlog.Errorln("import commit:", err)
		return
	}
	obj.SetAll(rec)
	if err := rt.Commit(obj); err != nil {
		nlog.Errorln("import commit:", err)
	}
}

// materialize walks the type's parent path, creating what is missing.
func (rt *Runtime) materialize(code string, keys []string) (*dot.Object, error) {
	path, err := rt.reg.Path(code)
	if err != nil {
		return nil, err
	}
	if len(keys) != len(path) {
		return nil, cmn.ParseErrf("type %s: %d keys, %d expected", code, len(keys), len(path))
	}
	cur := rt.tree.Root()
	for i, c := range path {
		if cur, err = cur.CreateChild(c, keys[i]); err != nil {
			return nil, err
		}
	}
	return cur, nil
}
