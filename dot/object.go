// Package dot implements the shared data-object tree
/*
 * Copyright (c) 2021-2026, WeaveMesh Systems, Inc. All rights reserved.
 */
package dot

import (
	"strings"
	"sync"
	"time"

	"github.com/weavemesh/weavemesh/cmn"
	"github.com/weavemesh/weavemesh/cmn/debug"
	"github.com/weavemesh/weavemesh/codec"
)

// Object is a node in the typed tree. The root object has no parent and no
// type code; it owns the top-level children. An object whose tombstone flag
// is set, or whose rename target is non-empty, is obsolete: it remains
// indexable only until superseded.
type Object struct {
	meta     *TypeMeta
	tree     *Tree
	parent   *Object
	id       string // stored lowercased when the type is case-insensitive
	rec      codec.Record
	fields   string // serialized form of rec
	origin   string // UUID of the mutating application
	userID   string
	cmdTs    time.Time
	rawLine  string // last inbound line (diagnostic)
	dests    codec.Dests
	renameTo string
	children map[string]map[string]*Object // type code -> id -> child
	objSeq   int64                         // per-origin application object sequence
	mu       sync.RWMutex
	dead     bool // tombstone
}

func (o *Object) IsRoot() bool { return o.parent == nil }

func (o *Object) Code() string {
	if o.meta == nil {
		return "" // root
	}
	return o.meta.Code
}

func (o *Object) Meta() *TypeMeta  { return o.meta }
func (o *Object) Parent() *Object  { return o.parent }
func (o *Object) Origin() string   { return o.origin }
func (o *Object) UserID() string   { return o.userID }
func (o *Object) CmdTs() time.Time { return o.cmdTs }
func (o *Object) RawLine() string  { return o.rawLine }

// ID returns the (possibly lowercased) object ID; "" for singletons.
func (o *Object) ID() string { return o.id }

func (o *Object) Obsolete() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.dead || o.renameTo != ""
}

func (o *Object) Removed() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.dead
}

func (o *Object) RenameTarget() string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.renameTo
}

// ObsoleteValue is what an obsolete object serializes to on the wire: the
// escaped rename target, or the empty string for a removal.
func (o *Object) ObsoleteValue() string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.renameTo != "" {
		return codec.Escape(o.renameTo)
	}
	return ""
}

// StampCommit records the committing application and command time.
func (o *Object) StampCommit(origin string, ts time.Time) {
	o.mu.Lock()
	o.origin, o.cmdTs = origin, ts
	o.mu.Unlock()
}

func (o *Object) ObjSeq() int64       { o.mu.RLock(); defer o.mu.RUnlock(); return o.objSeq }
func (o *Object) SetObjSeq(seq int64) { o.mu.Lock(); o.objSeq = seq; o.mu.Unlock() }

func (o *Object) Dests() codec.Dests { o.mu.RLock(); defer o.mu.RUnlock(); return o.dests }

// SetDests restricts the next commit's propagation; zero value = broadcast.
func (o *Object) SetDests(d codec.Dests) { o.mu.Lock(); o.dests = d; o.mu.Unlock() }

//
// field access
//

func (o *Object) Get(name string) any {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.rec == nil {
		return nil
	}
	return o.rec[name]
}

func (o *Object) GetString(name string) string {
	v, _ := o.Get(name).(string)
	return v
}

func (o *Object) GetInt(name string) int64 {
	switch v := o.Get(name).(type) {
	case int64:
		return v
	case int:
		return int64(v)
	}
	return 0
}

func (o *Object) GetBool(name string) bool { v, _ := o.Get(name).(bool); return v }

func (o *Object) Set(name string, v any) {
	o.mu.Lock()
	if o.rec == nil {
		o.rec = make(codec.Record, 8)
	}
	o.rec[name] = v
	o.mu.Unlock()
}

func (o *Object) SetAll(rec codec.Record) {
	o.mu.Lock()
	if o.rec == nil {
		o.rec = make(codec.Record, len(rec))
	}
	for k, v := range rec {
		o.rec[k] = v
	}
	o.mu.Unlock()
}

// Serialize produces the current field string per the type's declaration.
func (o *Object) Serialize() (string, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.dead || o.renameTo != "" {
		if o.renameTo != "" {
			return codec.Escape(o.renameTo), nil
		}
		return "", nil
	}
	return codec.Serialize(o.meta.Fields, o.rec)
}

// Fields returns the last serialized/parsed field string.
func (o *Object) FieldString() string { o.mu.RLock(); defer o.mu.RUnlock(); return o.fields }

//
// key tuple
//

// Keys returns the path of object IDs from the top level down to this object,
// aligned with the registry's parent-code path.
func (o *Object) Keys() []string {
	if o.IsRoot() {
		return nil
	}
	return append(o.parent.Keys(), o.id)
}

//
// children
//

func (o *Object) indexID(meta *TypeMeta, id string) string {
	if meta.CaseSensitive {
		return id
	}
	return strings.ToLower(id)
}

// CreateChild is idempotent: it returns the existing live child when present.
func (o *Object) CreateChild(code, id string) (*Object, error) {
	meta := o.tree.reg.Get(code)
	if meta == nil {
		return nil, cmn.FatalErrf("type code %q not registered", code)
	}
	if meta.ParentCode != o.Code() {
		return nil, cmn.FatalErrf("type %q: parent is %q, not %q", code, meta.ParentCode, o.Code())
	}
	if meta.Disposable || o.tree.passThrough {
		return o.newChild(meta, id), nil
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	key := o.indexID(meta, id)
	if byID := o.children[code]; byID != nil {
		if child := byID[key]; child != nil && !child.dead && child.renameTo == "" {
			return child, nil
		}
	}
	child := o.newChild(meta, id)
	if o.children == nil {
		o.children = make(map[string]map[string]*Object, 4)
	}
	if o.children[code] == nil {
		o.children[code] = make(map[string]*Object, 8)
	}
	o.children[code][key] = child
	return child, nil
}

func (o *Object) newChild(meta *TypeMeta, id string) *Object {
	return &Object{
		meta:   meta,
		tree:   o.tree,
		parent: o,
		id:     o.indexID(meta, id),
	}
}

// GetChild returns the live child or nil; lookups tolerate both cases for
// case-insensitive types.
func (o *Object) GetChild(code, id string) *Object {
	meta := o.tree.reg.Get(code)
	if meta == nil {
		return nil
	}
	o.mu.RLock()
	defer o.mu.RUnlock()
	byID := o.children[code]
	if byID == nil {
		return nil
	}
	child := byID[o.indexID(meta, id)]
	if child == nil || child.dead || child.renameTo != "" {
		return nil
	}
	return child
}

// Remove marks the object tombstoned and detaches it from the parent index.
func (o *Object) Remove() {
	debug.Assert(!o.IsRoot())
	o.mu.Lock()
	o.dead = true
	o.mu.Unlock()
	o.parent.detach(o)
}

// Undelete clears the tombstone (removal vetoed by the application) and
// restores the index entry.
func (o *Object) Undelete() {
	o.mu.Lock()
	o.dead = false
	o.mu.Unlock()
	o.parent.reattach(o)
}

func (o *Object) detach(child *Object) {
	o.mu.Lock()
	defer o.mu.Unlock()
	byID := o.children[child.meta.Code]
	if byID != nil && byID[child.id] == child {
		delete(byID, child.id)
	}
}

func (o *Object) reattach(child *Object) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.children == nil {
		o.children = make(map[string]map[string]*Object, 4)
	}
	if o.children[child.meta.Code] == nil {
		o.children[child.meta.Code] = make(map[string]*Object, 8)
	}
	if _, ok := o.children[child.meta.Code][child.id]; !ok {
		o.children[child.meta.Code][child.id] = child
	}
}

// Rename atomically re-keys the object under newID and returns an obsolete
// shadow carrying the old ID and the rename target, for propagation. The new
// ID must be free.
func (o *Object) Rename(newID string) (shadow *Object, err error) {
	debug.Assert(!o.IsRoot())
	p, meta := o.parent, o.meta
	newKey := p.indexID(meta, newID)

	p.mu.Lock()
	defer p.mu.Unlock()
	byID := p.children[meta.Code]
	if byID == nil {
		return nil, cmn.ParseErrf("rename %s[%s]: not indexed", meta.Code, o.id)
	}
	if live := byID[newKey]; live != nil && !live.dead && live.renameTo == "" {
		return nil, cmn.ParseErrf("rename %s[%s]: id %q is taken", meta.Code, o.id, newID)
	}
	oldKey := o.id

	o.mu.Lock()
	shadow = &Object{
		meta:     meta,
		tree:     o.tree,
		parent:   p,
		id:       oldKey,
		renameTo: newKey,
		origin:   o.origin,
		userID:   o.userID,
		cmdTs:    o.cmdTs,
		dests:    o.dests,
	}
	o.id = newKey
	o.mu.Unlock()

	delete(byID, oldKey)
	byID[newKey] = o
	return shadow, nil
}

// Cleanup drops obsolete children left behind by remove/rename traffic.
func (o *Object) Cleanup() {
	o.mu.Lock()
	for code, byID := range o.children {
		for id, child := range byID {
			if child.Obsolete() {
				delete(byID, id)
			}
		}
		if len(byID) == 0 {
			delete(o.children, code)
		}
	}
	kids := make([]*Object, 0, 8)
	for _, byID := range o.children {
		for _, child := range byID {
			kids = append(kids, child)
		}
	}
	o.mu.Unlock()
	for _, child := range kids {
		child.Cleanup()
	}
}
