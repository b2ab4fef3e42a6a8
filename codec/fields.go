// Package codec implements the weavemesh line format: delimiter escaping,
// delta compression against keyframe predecessors, key tuples, timestamps
/*
 * Copyright (c) 2021-2026, WeaveMesh Systems, Inc. All rights reserved.
 */
package codec

import (
	"strconv"
	"strings"
	"time"

	"github.com/weavemesh/weavemesh/cmn"
)

// The serializer is description-driven: each data-object type supplies an
// ordered list of (name, kind) pairs at registration time; fields are
// concatenated in declaration order, strings delimiter-escaped, enums
// round-tripping by name. Older peers may send fewer (trailing) fields -
// additive extension; extra fields fail with ErrParse.

type Kind uint8

const (
	KindString Kind = iota
	KindInt
	KindFloat
	KindBool
	KindTime
	KindEnum
)

type (
	FieldSpec struct {
		Name string
		Enum []string // KindEnum only
		Kind Kind
	}
	Record map[string]any
)

func Serialize(specs []FieldSpec, rec Record) (string, error) {
	parts := make([]string, len(specs))
	for i := range specs {
		s, err := encodeField(&specs[i], rec[specs[i].Name])
		if err != nil {
			return "", err
		}
		parts[i] = s
	}
	// NOTE: parts are pre-escaped; plain join, not EscapeAndConcat
	return strings.Join(parts, ","), nil
}

func Deserialize(specs []FieldSpec, fields string) (Record, error) {
	var parts []string
	if fields != "" {
		parts = strings.Split(fields, ",")
	}
	if len(parts) > len(specs) {
		return nil, cmn.ParseErrf("%d fields, %d declared", len(parts), len(specs))
	}
	rec := make(Record, len(specs))
	for i := range specs {
		var raw string
		if i < len(parts) {
			raw = parts[i]
		}
		v, err := decodeField(&specs[i], raw)
		if err != nil {
			return nil, err
		}
		rec[specs[i].Name] = v
	}
	return rec, nil
}

func encodeField(spec *FieldSpec, v any) (string, error) {
	if v == nil {
		return "", nil
	}
	switch spec.Kind {
	case KindString:
		s, ok := v.(string)
		if !ok {
			return "", cmn.ParseErrf("field %s: %T is not a string", spec.Name, v)
		}
		return Escape(s), nil
	case KindInt:
		switch t := v.(type) {
		case int:
			return strconv.Itoa(t), nil
		case int64:
			return strconv.FormatInt(t, 10), nil
		}
		return "", cmn.ParseErrf("field %s: %T is not an int", spec.Name, v)
	case KindFloat:
		f, ok := v.(float64)
		if !ok {
			return "", cmn.ParseErrf("field %s: %T is not a float", spec.Name, v)
		}
		return strconv.FormatFloat(f, 'g', -1, 64), nil
	case KindBool:
		b, ok := v.(bool)
		if !ok {
			return "", cmn.ParseErrf("field %s: %T is not a bool", spec.Name, v)
		}
		if b {
			return "1", nil
		}
		return "0", nil
	case KindTime:
		t, ok := v.(time.Time)
		if !ok {
			return "", cmn.ParseErrf("field %s: %T is not a time", spec.Name, v)
		}
		return FormatTs(t, PrecMilli), nil
	case KindEnum:
		name, ok := v.(string)
		if !ok {
			return "", cmn.ParseErrf("field %s: %T is not an enum name", spec.Name, v)
		}
		for _, e := range spec.Enum {
			if e == name {
				return name, nil
			}
		}
		return "", cmn.ParseErrf("field %s: enum %q", spec.Name, name)
	}
	return "", cmn.ParseErrf("field %s: kind %d", spec.Name, spec.Kind)
}

func decodeField(spec *FieldSpec, raw string) (any, error) {
	switch spec.Kind {
	case KindString:
		return Unescape(raw), nil
	case KindInt:
		if raw == "" {
			return int64(0), nil
		}
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, cmn.ParseErrf("field %s: %q", spec.Name, raw)
		}
		return v, nil
	case KindFloat:
		if raw == "" {
			return float64(0), nil
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, cmn.ParseErrf("field %s: %q", spec.Name, raw)
		}
		return v, nil
	case KindBool:
		switch raw {
		case "", "0":
			return false, nil
		case "1":
			return true, nil
		}
		return nil, cmn.ParseErrf("field %s: %q", spec.Name, raw)
	case KindTime:
		return ParseTs(raw)
	case KindEnum:
		if raw == "" {
			return "", nil
		}
		for _, e := range spec.Enum {
			if e == raw {
				return raw, nil
			}
		}
		return nil, cmn.ParseErrf("field %s: enum %q", spec.Name, raw)
	}
	return nil, cmn.ParseErrf("field %s: kind %d", spec.Name, spec.Kind)
}
