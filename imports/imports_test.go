// Package imports adapts foreign data sources into produced objects
/*
 * Copyright (c) 2021-2026, WeaveMesh Systems, Inc. All rights reserved.
 */
package imports_test

import (
	"strings"
	"testing"
	"time"

	"github.com/weavemesh/weavemesh/codec"
	"github.com/weavemesh/weavemesh/dot"
	"github.com/weavemesh/weavemesh/imports"
)

type feedBhv struct {
	dot.NopBehavior
}

// foreign payloads look like "SYM price"; anything else is irrelevant
func (feedBhv) ImportObject(foreign any, _ string, _ time.Time) ([]string, codec.Record, bool) {
	s, ok := foreign.(string)
	if !ok {
		return nil, nil, false
	}
	sym, price, found := strings.Cut(s, " ")
	if !found {
		return nil, nil, false
	}
	return []string{sym}, codec.Record{"price": price}, true
}

func Test_ImportObject(t *testing.T) {
	reg := dot.NewRegistry()
	if err := reg.Reg(&dot.TypeMeta{
		Code:     "Tick",
		Behavior: feedBhv{},
		Fields:   []codec.FieldSpec{{Name: "price", Kind: codec.KindString}},
	}); err != nil {
		t.Fatal(err)
	}

	var committed []string
	m := imports.NewManager(reg, []string{"Tick"}, func(code string, keys []string, rec codec.Record, _ time.Time) {
		committed = append(committed, code+":"+keys[0]+"="+rec["price"].(string))
	})

	if n := m.Process("ACME 101.25", "feed-1", time.Now()); n != 1 {
		t.Fatalf("committed %d", n)
	}
	if committed[0] != "Tick:ACME=101.25" {
		t.Fatalf("commit: %v", committed)
	}
	// irrelevant payload: no key tuple, no commit
	if n := m.Process(42, "feed-1", time.Now()); n != 0 {
		t.Fatalf("irrelevant payload committed %d", n)
	}
}

func Test_RawImportRelay(t *testing.T) {
	reg := dot.NewRegistry()
	var got string
	if err := imports.RegisterRawImport(reg, func(source, payload string, _ time.Time) {
		got = source + "|" + payload
	}); err != nil {
		t.Fatal(err)
	}
	meta := reg.Get(imports.RawImportCode)
	if meta == nil || !meta.Disposable {
		t.Fatal("raw-import type not registered as disposable")
	}

	tree := dot.NewTree(reg, false)
	o, err := tree.Root().CreateChild(imports.RawImportCode, "")
	if err != nil {
		t.Fatal(err)
	}
	o.Set("source", "feed-9")
	o.Set("payload", "raw-bytes")
	meta.Behavior.OnEvent(o)
	if got != "feed-9|raw-bytes" {
		t.Fatalf("sink: %q", got)
	}
}
