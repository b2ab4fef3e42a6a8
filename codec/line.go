// Package codec implements the weavemesh line format: delimiter escaping,
// delta compression against keyframe predecessors, key tuples, timestamps
/*
 * Copyright (c) 2021-2026, WeaveMesh Systems, Inc. All rights reserved.
 */
package codec

import (
	"strconv"
	"strings"

	"github.com/weavemesh/weavemesh/cmn"
)

// Data line grammar:
//
//	PREFIX TYPECODE , ROUND_TS , SEQ_HEX , SUBHEADER , KEYS , FIELDS
//	SUBHEADER = ORIGIN | DESTINATIONS | OBJ_SEQ | [ACK_SEQ]
//
// Top-level components are comma-separated; SUBHEADER fields and KEYS tuple
// elements are pipe-separated. TS, SUBHEADER fields, KEYS and FIELDS are all
// delta-compressed against their predecessors by the sequencer; this file
// handles only the raw (possibly delta-form) components.

type Frame struct {
	Type      string
	Ts        string // rounded wire form, "" = same as predecessor
	SeqHex    string
	SubHeader string
	Keys      string
	Fields    string
	Prefix    byte
}

func (f *Frame) Seq() (int, error) {
	v, err := strconv.ParseInt(f.SeqHex, 16, 32)
	if err != nil || v < 0 || v >= cmn.SeqModulo {
		return 0, cmn.ParseErrf("seq %q", f.SeqHex)
	}
	return int(v), nil
}

func (f *Frame) Remove() bool { return f.Prefix == cmn.PrefixRemove }
func (f *Frame) Urgent() bool {
	return f.Prefix == cmn.PrefixUrgent || f.Prefix == cmn.PrefixUrgentQuery
}
func (f *Frame) Query() bool {
	return f.Prefix == cmn.PrefixQuery || f.Prefix == cmn.PrefixUrgentQuery
}

func IsControl(line string) bool { return line != "" && line[0] == cmn.PrefixControl }

func validPrefix(c byte) bool {
	switch c {
	case cmn.PrefixNormal, cmn.PrefixRemove, cmn.PrefixUrgent, cmn.PrefixQuery, cmn.PrefixUrgentQuery:
		return true
	}
	return false
}

func ParseFrame(line string) (*Frame, error) {
	if len(line) < 2 || !validPrefix(line[0]) {
		return nil, cmn.ParseErrf("line %.32q", line)
	}
	parts := strings.SplitN(line[1:], ",", 6)
	if len(parts) != 6 {
		return nil, cmn.ParseErrf("line %.32q: %d components", line, len(parts))
	}
	f := &Frame{
		Prefix:    line[0],
		Type:      parts[0],
		Ts:        parts[1],
		SeqHex:    parts[2],
		SubHeader: parts[3],
		Keys:      parts[4],
		Fields:    parts[5],
	}
	if f.Type == "" {
		return nil, cmn.ParseErrf("line %.32q: no type code", line)
	}
	return f, nil
}

func (f *Frame) String() string {
	var b strings.Builder
	b.Grow(16 + len(f.Type) + len(f.Ts) + len(f.SubHeader) + len(f.Keys) + len(f.Fields))
	b.WriteByte(f.Prefix)
	b.WriteString(f.Type)
	b.WriteByte(',')
	b.WriteString(f.Ts)
	b.WriteByte(',')
	b.WriteString(f.SeqHex)
	b.WriteByte(',')
	b.WriteString(f.SubHeader)
	b.WriteByte(',')
	b.WriteString(f.Keys)
	b.WriteByte(',')
	b.WriteString(f.Fields)
	return b.String()
}

func SeqHex(seq int) string { return strconv.FormatInt(int64(seq), 16) }

//
// control lines: ^TAG,arg,arg,...
//

func BuildControl(tag string, args ...string) string {
	var b strings.Builder
	b.WriteByte(cmn.PrefixControl)
	b.WriteString(tag)
	for _, a := range args {
		b.WriteByte(',')
		b.WriteString(Escape(a))
	}
	return b.String()
}

func ParseControl(line string) (tag string, args []string, err error) {
	if len(line) < 2 || line[0] != cmn.PrefixControl {
		return "", nil, cmn.ParseErrf("control %.32q", line)
	}
	parts := strings.Split(line[1:], ",")
	tag = parts[0]
	if tag == "" {
		return "", nil, cmn.ParseErrf("control %.32q: no tag", line)
	}
	args = parts[1:]
	for i := range args {
		args[i] = Unescape(args[i])
	}
	return tag, args, nil
}

//
// key tuples
//

func EncodeKeys(keys []string) string { return EscapeAndConcat('|', keys) }

func DecodeKeys(s string) []string {
	if s == "" {
		return nil
	}
	return SplitAndUnescape(s, '|')
}
