// Package codec implements the weavemesh line format: delimiter escaping,
// delta compression against keyframe predecessors, key tuples, timestamps
/*
 * Copyright (c) 2021-2026, WeaveMesh Systems, Inc. All rights reserved.
 */
package codec

import (
	"strconv"
	"time"

	"github.com/weavemesh/weavemesh/cmn"
)

// Wire timestamps: ddMMyyHHmmssSSS, local time, millisecond base. The
// precision shorthand drops trailing digits for 10ms- and 100ms-rounded forms.

const tsBase = "020106150405" // ddMMyyHHmmss

type TsPrec int

const (
	PrecMilli TsPrec = 3 // ddMMyyHHmmssSSS
	PrecCenti TsPrec = 2 // ddMMyyHHmmssSS (10 ms)
	PrecDeci  TsPrec = 1 // ddMMyyHHmmssS  (100 ms)
)

func FormatTs(t time.Time, prec TsPrec) string {
	if t.IsZero() {
		return ""
	}
	ms := t.Nanosecond() / int(time.Millisecond)
	s := t.Format(tsBase)
	switch prec {
	case PrecMilli:
		return s + pad3(ms)
	case PrecCenti:
		return s + pad3((ms+5)/10*10)[:2]
	default:
		return s + pad3((ms+50)/100*100)[:1]
	}
}

func ParseTs(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if len(s) < len(tsBase) || len(s) > len(tsBase)+3 {
		return time.Time{}, cmn.ParseErrf("timestamp %q", s)
	}
	t, err := time.ParseInLocation(tsBase, s[:len(tsBase)], time.Local)
	if err != nil {
		return time.Time{}, cmn.ParseErrf("timestamp %q: %v", s, err)
	}
	frac := s[len(tsBase):]
	if frac == "" {
		return t, nil
	}
	v, err := strconv.Atoi(frac)
	if err != nil {
		return time.Time{}, cmn.ParseErrf("timestamp %q: %v", s, err)
	}
	for i := len(frac); i < 3; i++ {
		v *= 10
	}
	return t.Add(time.Duration(v) * time.Millisecond), nil
}

func pad3(ms int) string {
	if ms > 999 {
		ms = 999
	}
	s := strconv.Itoa(ms)
	for len(s) < 3 {
		s = "0" + s
	}
	return s
}
