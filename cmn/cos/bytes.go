// Package cos provides common low-level types and utilities for weavemesh
/*
 * Copyright (c) 2021-2026, WeaveMesh Systems, Inc. All rights reserved.
 */
package cos

import (
	"strings"
	"unsafe"
)

func UnsafeS(b []byte) string { return *(*string)(unsafe.Pointer(&b)) }
func UnsafeB(s string) []byte { return unsafe.Slice(unsafe.StringData(s), len(s)) }

func Plural(num int) (s string) {
	if num != 1 {
		s = "s"
	}
	return
}

func Either(lhs, rhs string) string {
	if lhs != "" {
		return lhs
	}
	return rhs
}

// JoinWords joins with '/' (compare with filepath.Join)
func JoinWords(w string, words ...string) (path string) {
	path = w
	for _, s := range words {
		path += "/" + s
	}
	return
}

// StrSet

type StrSet map[string]struct{}

func NewStrSet(keys ...string) (ss StrSet) {
	ss = make(StrSet, len(keys))
	ss.Add(keys...)
	return
}

func (ss StrSet) Add(keys ...string) {
	for _, k := range keys {
		ss[k] = struct{}{}
	}
}

func (ss StrSet) Contains(key string) (ok bool) {
	if len(ss) == 0 {
		return false
	}
	_, ok = ss[key]
	return
}

func (ss StrSet) Delete(key string) { delete(ss, key) }

func (ss StrSet) Keys() []string {
	keys := make([]string, 0, len(ss))
	for k := range ss {
		keys = append(keys, k)
	}
	return keys
}

func (ss StrSet) Clone() StrSet {
	out := make(StrSet, len(ss))
	for k := range ss {
		out[k] = struct{}{}
	}
	return out
}

func (ss StrSet) Intersects(other StrSet) bool {
	small, big := ss, other
	if len(small) > len(big) {
		small, big = big, small
	}
	for k := range small {
		if big.Contains(k) {
			return true
		}
	}
	return false
}

func (ss StrSet) String() string {
	keys := ss.Keys()
	return strings.Join(keys, ",")
}
