// Package imports adapts foreign data sources into produced objects and
// relays raw foreign payloads across the mesh
/*
 * Copyright (c) 2021-2026, WeaveMesh Systems, Inc. All rights reserved.
 */
package imports

import (
	"time"

	"github.com/weavemesh/weavemesh/cmn/nlog"
	"github.com/weavemesh/weavemesh/codec"
	"github.com/weavemesh/weavemesh/dot"
)

// Behavior is implemented by produced types that know how to interpret a
// foreign payload. A non-nil key tuple marks the payload as relevant; the
// framework then commits the object normally.
type Behavior interface {
	ImportObject(foreign any, channel string, ts time.Time) (keys []string, rec codec.Record, ok bool)
}

// CommitFn publishes an imported object into the mesh (runtime-provided).
type CommitFn func(code string, keys []string, rec codec.Record, ts time.Time)

// Manager drives the import adapters: every foreign payload is offered to
// each produced type that implements Behavior.
type Manager struct {
	reg      *dot.Registry
	produced []string
	commit   CommitFn
}

func NewManager(reg *dot.Registry, produced []string, commit CommitFn) *Manager {
	return &Manager{reg: reg, produced: produced, commit: commit}
}

// Process offers one foreign payload to all import-capable produced types;
// returns how many objects were committed.
func (m *Manager) Process(foreign any, channel string, ts time.Time) (n int) {
	for _, code := range m.produced {
		meta := m.reg.Get(code)
		if meta == nil {
			continue
		}
		ib, ok := meta.Behavior.(Behavior)
		if !ok {
			continue
		}
		keys, rec, ok := ib.ImportObject(foreign, channel, ts)
		if !ok || keys == nil {
			continue
		}
		m.commit(code, keys, rec, ts)
		n++
	}
	if n == 0 && nlog.Verbose() {
		nlog.Infof("import %s: no taker", channel)
	}
	return n
}

//
// raw-import relay
//

// RawImportCode is the built-in type that carries a raw foreign payload
// across the mesh, so any node can re-emit it to its own local sinks.
const RawImportCode = "RawImport"

func RawImportFields() []codec.FieldSpec {
	return []codec.FieldSpec{
		{Name: "source", Kind: codec.KindString},
		{Name: "payload", Kind: codec.KindString},
		{Name: "at", Kind: codec.KindTime},
	}
}

// RegisterRawImport installs the relay type; sink (optional) receives
// payloads arriving from remote nodes for re-emission.
func RegisterRawImport(reg *dot.Registry, sink func(source, payload string, ts time.Time)) error {
	return reg.Reg(&dot.TypeMeta{
		Code:       RawImportCode,
		Disposable: true,
		Fields:     RawImportFields(),
		Behavior:   &rawImportBhv{sink: sink},
	})
}

// Relay publishes a raw foreign payload into the mesh.
func (m *Manager) Relay(source, payload string, ts time.Time) {
	m.commit(RawImportCode, []string{""}, codec.Record{
		"source":  source,
		"payload": payload,
		"at":      ts,
	}, ts)
}

type rawImportBhv struct {
	dot.NopBehavior
	sink func(source, payload string, ts time.Time)
}

func (b *rawImportBhv) OnEvent(o *dot.Object) bool {
	if b.sink != nil {
		at, _ := o.Get("at").(time.Time)
		b.sink(o.GetString("source"), o.GetString("payload"), at)
	}
	return true
}
