// Package dot implements the shared data-object tree
/*
 * Copyright (c) 2021-2026, WeaveMesh Systems, Inc. All rights reserved.
 */
package dot

// Filter selects objects of a target type anywhere below a starting object.
type Filter interface {
	// TargetCode is the type code the filter selects.
	TargetCode() string
	// FilterObject tests a candidate of the target type.
	FilterObject(o *Object) bool
	// FilterParent prunes the traversal: recurse into a child only when true.
	FilterParent(o *Object) bool
}

// FilteredChildren finds matching descendants: direct children of the target
// type are tested by FilterObject; otherwise the traversal recurses into
// every child that passes FilterParent. Read-locked for stability.
func (o *Object) FilteredChildren(f Filter) (out []*Object) {
	o.mu.RLock()
	if byID := o.children[f.TargetCode()]; byID != nil {
		for _, child := range byID {
			if !child.Obsolete() && f.FilterObject(child) {
				out = append(out, child)
			}
		}
		o.mu.RUnlock()
		return out
	}
	var recurse []*Object
	for _, byID := range o.children {
		for _, child := range byID {
			if !child.Obsolete() && f.FilterParent(child) {
				recurse = append(recurse, child)
			}
		}
	}
	o.mu.RUnlock()
	for _, child := range recurse {
		out = append(out, child.FilteredChildren(f)...)
	}
	return out
}

// FilterFunc adapts plain functions.
type FilterFunc struct {
	Code   string
	Object func(o *Object) bool
	Parent func(o *Object) bool
}

func (f FilterFunc) TargetCode() string { return f.Code }

func (f FilterFunc) FilterObject(o *Object) bool {
	if f.Object == nil {
		return true
	}
	return f.Object(o)
}

func (f FilterFunc) FilterParent(o *Object) bool {
	if f.Parent == nil {
		return true
	}
	return f.Parent(o)
}
