// Package dot implements the shared data-object tree: the explicit type
// registry, hierarchical typed store, parse/propagate semantics, filter
// traversal, and rename/tombstone lifecycle
/*
 * Copyright (c) 2021-2026, WeaveMesh Systems, Inc. All rights reserved.
 */
package dot

import (
	"strings"
	"sync"

	"github.com/weavemesh/weavemesh/cmn"
	"github.com/weavemesh/weavemesh/codec"
)

// Behavior is implemented by the application per registered type. The core
// manipulates objects as plain records and invokes the application only
// through this interface.
type Behavior interface {
	// OnEvent runs synchronously on the delivering (reader) goroutine;
	// returning false requeues the object for OnAsyncEvent.
	OnEvent(o *Object) bool
	// OnAsyncEvent returns true on success. For a lossless subscription the
	// ack frame is emitted only after OnEvent or OnAsyncEvent succeeds.
	OnAsyncEvent(o *Object) bool
	// OnNew fires once when the inbound parser creates an object; objects
	// created locally do not trigger it.
	OnNew(o *Object)
	// OnRemoval may veto by returning false, which undeletes the object.
	OnRemoval(o *Object) bool
	// OnRename fires after the object has been re-keyed under its new ID.
	OnRename(o *Object, oldID string)
}

// NopBehavior is a no-op base to embed.
type NopBehavior struct{}

func (NopBehavior) OnEvent(*Object) bool        { return true }
func (NopBehavior) OnAsyncEvent(*Object) bool   { return true }
func (NopBehavior) OnNew(*Object)               {}
func (NopBehavior) OnRemoval(*Object) bool      { return true }
func (NopBehavior) OnRename(*Object, string)    {}

// TypeMeta is the registry record for one object code.
type TypeMeta struct {
	Code          string // type code, unique across the mesh, no '+' suffix
	ParentCode    string // "" = owned by the root object
	Fields        []codec.FieldSpec
	Behavior      Behavior
	Threads       int  // event workers: <0 default, 0 inline, >0 that many
	Disposable    bool // never stored; lives for the duration of delivery
	CaseSensitive bool // object-ID case sensitivity
	Urgent        bool // commits preempt the send buffer
}

// Registry maps type codes to their metadata; populated by the application at
// startup in place of inheritance-based discovery.
type Registry struct {
	types map[string]*TypeMeta
	mu    sync.RWMutex
}

func NewRegistry() *Registry { return &Registry{types: make(map[string]*TypeMeta)} }

func (r *Registry) Reg(meta *TypeMeta) error {
	if meta.Code == "" || strings.ContainsAny(meta.Code, ",|\\") ||
		meta.Code[len(meta.Code)-1] == cmn.LosslessSuffix {
		return cmn.FatalErrf("invalid type code %q", meta.Code)
	}
	if meta.Behavior == nil {
		meta.Behavior = NopBehavior{}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.types[meta.Code]; ok {
		return cmn.FatalErrf("duplicate type code %q", meta.Code)
	}
	r.types[meta.Code] = meta
	return nil
}

func (r *Registry) Get(code string) *TypeMeta {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.types[code]
}

func (r *Registry) MustGet(code string) *TypeMeta {
	if meta := r.Get(code); meta != nil {
		return meta
	}
	panic(cmn.FatalErrf("type code %q not registered", code))
}

// Path returns the chain of type codes from a top-level type down to code,
// derived from the per-type parent codes.
func (r *Registry) Path(code string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var path []string
	for code != "" {
		meta := r.types[code]
		if meta == nil {
			return nil, cmn.ParseErrf("type code %q not registered", code)
		}
		path = append([]string{code}, path...)
		if len(path) > 16 {
			return nil, cmn.FatalErrf("type %q: parent-code cycle", code)
		}
		code = meta.ParentCode
	}
	return path, nil
}

func (r *Registry) Codes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	codes := make([]string, 0, len(r.types))
	for c := range r.types {
		codes = append(codes, c)
	}
	return codes
}

// ParseSubscription splits a consumed type code from its optional lossless
// marker ("Px+" => "Px", true).
func ParseSubscription(code string) (string, bool) {
	if code != "" && code[len(code)-1] == cmn.LosslessSuffix {
		return code[:len(code)-1], true
	}
	return code, false
}
