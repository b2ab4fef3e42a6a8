// Package codec implements the weavemesh line format: delimiter escaping,
// delta compression against keyframe predecessors, key tuples, timestamps
/*
 * Copyright (c) 2021-2026, WeaveMesh Systems, Inc. All rights reserved.
 */
package codec

import (
	"strings"

	"github.com/weavemesh/weavemesh/cmn/debug"
)

// Successive frames of the same object differ in a field or two; the delta
// form transmits only those. Per position: empty token = same as the
// predecessor, EmptyMark = changed to "", anything else = the new (escaped)
// value. Trailing same-tokens are trimmed; the empty delta means the frame is
// identical to its predecessor. A FullMark prefix disables delta for the
// remainder (used when the current frame has fewer fields than the
// predecessor, and for the seq=0 keyframe after reset).

// Compress computes the field delta of cur against prev; both are escaped,
// sep-joined lists. Decompress(prev, Compress(prev, cur)) == cur.
func Compress(prev, cur string, sep byte) string {
	if prev == cur {
		return ""
	}
	if prev == "" {
		return FullMark + cur
	}
	pf, cf := SplitEscaped(prev, sep), SplitEscaped(cur, sep)
	if len(cf) < len(pf) {
		return FullMark + cur
	}
	out := make([]string, len(cf))
	for i, c := range cf {
		switch {
		case i < len(pf) && c == pf[i]:
			out[i] = ""
		case c == "":
			out[i] = EmptyMark
		default:
			out[i] = c
		}
	}
	n := len(out)
	for n > 0 && out[n-1] == "" {
		n--
	}
	debug.Assert(n > 0) // prev != cur and len(cf) >= len(pf)
	return strings.Join(out[:n], string(sep))
}

// Decompress reconstructs the current frame from its predecessor and delta.
func Decompress(prev, delta string, sep byte) string {
	if delta == "" {
		return prev
	}
	if strings.HasPrefix(delta, FullMark) {
		return delta[len(FullMark):]
	}
	pf, df := SplitEscaped(prev, sep), SplitEscaped(delta, sep)
	n := max(len(pf), len(df))
	out := make([]string, n)
	for i := 0; i < n; i++ {
		switch {
		case i >= len(df) || df[i] == "":
			if i < len(pf) {
				out[i] = pf[i]
			}
		case df[i] == EmptyMark:
			out[i] = ""
		default:
			out[i] = df[i]
		}
	}
	return strings.Join(out, string(sep))
}

// CompressValues/DecompressValues - ditto for pipe-separated key tuples.
func CompressValues(prev, cur string) string   { return Compress(prev, cur, '|') }
func DecompressValues(prev, delta string) string { return Decompress(prev, delta, '|') }
