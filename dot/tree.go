// Package dot implements the shared data-object tree
/*
 * Copyright (c) 2021-2026, WeaveMesh Systems, Inc. All rights reserved.
 */
package dot

import (
	"github.com/weavemesh/weavemesh/cmn"
	"github.com/weavemesh/weavemesh/codec"
	"github.com/weavemesh/weavemesh/seq"
)

// Tree owns the root object. In pass-through (hub) mode local indexing is
// disabled: inbound commands materialize as detached objects that live only
// for the duration of delivery and forwarding.
type Tree struct {
	reg         *Registry
	root        *Object
	passThrough bool
}

func NewTree(reg *Registry, passThrough bool) *Tree {
	t := &Tree{reg: reg, passThrough: passThrough}
	t.root = &Object{tree: t}
	return t
}

func (t *Tree) Root() *Object       { return t.root }
func (t *Tree) Registry() *Registry { return t.reg }
func (t *Tree) PassThrough() bool   { return t.passThrough }

// Action describes what an inbound command did to the tree.
type Action int

const (
	ActNone Action = iota
	ActCreate
	ActUpdate
	ActRemove
	ActRename
)

type Result struct {
	Obj   *Object
	OldID string // ActRename only
	Act   Action
}

// ProcessCommand applies one reconstructed inbound command: walks the type's
// parent path creating missing intermediates, then parses the leaf. The key
// tuple is aligned with the registry path root-down.
func (t *Tree) ProcessCommand(cmd *seq.Command, rawLine string) (Result, error) {
	var res Result
	path, err := t.reg.Path(cmd.Type)
	if err != nil {
		return res, err
	}
	if len(cmd.Keys) != len(path) {
		return res, cmn.ParseErrf("type %s: %d keys, %d expected", cmd.Type, len(cmd.Keys), len(path))
	}
	cur := t.root
	for i := 0; i < len(path)-1; i++ {
		cur, err = cur.CreateChild(path[i], cmd.Keys[i])
		if err != nil {
			return res, err
		}
	}
	var (
		code = path[len(path)-1]
		id   = cmd.Keys[len(path)-1]
		meta = t.reg.Get(code)
	)
	if cmd.Remove() {
		return t.processObsolete(cur, meta, id, cmd, rawLine)
	}

	rec, err := codec.Deserialize(meta.Fields, cmd.Fields)
	if err != nil {
		return res, err
	}
	existing := cur.GetChild(code, id)
	obj := existing
	if obj == nil {
		if obj, err = cur.CreateChild(code, id); err != nil {
			return res, err
		}
	}
	obj.mu.Lock()
	obj.rec = rec
	obj.fields = cmd.Fields
	obj.origin = cmd.Origin
	obj.userID = cmd.UserID
	obj.cmdTs = cmd.Ts
	obj.rawLine = rawLine
	obj.dests = cmd.Dests
	obj.mu.Unlock()

	res.Obj = obj
	if existing == nil {
		res.Act = ActCreate
	} else {
		res.Act = ActUpdate
	}
	return res, nil
}

// processObsolete handles '~' commands: empty fields = removal, otherwise the
// fields carry the escaped rename target.
func (t *Tree) processObsolete(parent *Object, meta *TypeMeta, id string, cmd *seq.Command, rawLine string) (Result, error) {
	var res Result
	obj := parent.GetChild(meta.Code, id)
	if cmd.Fields == "" { // removal
		if obj == nil {
			return res, nil // unknown object: nothing to remove
		}
		obj.mu.Lock()
		obj.origin, obj.cmdTs, obj.rawLine = cmd.Origin, cmd.Ts, rawLine
		obj.mu.Unlock()
		obj.Remove()
		res.Obj, res.Act = obj, ActRemove
		return res, nil
	}
	target := codec.Unescape(cmd.Fields)
	if obj == nil {
		// rename of an object we never saw: materialize it under the new ID
		created, err := parent.CreateChild(meta.Code, target)
		if err != nil {
			return res, err
		}
		res.Obj, res.Act, res.OldID = created, ActRename, id
		return res, nil
	}
	if _, err := obj.Rename(target); err != nil {
		return res, err
	}
	res.Obj, res.Act, res.OldID = obj, ActRename, id
	return res, nil
}

// ObjectsOf returns a stable snapshot of all live objects of the given type,
// walking the registry path from the root. Used by the resetter's built-in
// tree dump.
func (t *Tree) ObjectsOf(code string) ([]*Object, error) {
	path, err := t.reg.Path(code)
	if err != nil {
		return nil, err
	}
	level := []*Object{t.root}
	for _, c := range path {
		var next []*Object
		for _, o := range level {
			o.mu.RLock()
			for _, child := range o.children[c] {
				if !child.Obsolete() {
					next = append(next, child)
				}
			}
			o.mu.RUnlock()
		}
		level = next
	}
	return level, nil
}
