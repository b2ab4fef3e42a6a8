// Package codec implements the weavemesh line format: delimiter escaping,
// delta compression against keyframe predecessors, key tuples, timestamps
/*
 * Copyright (c) 2021-2026, WeaveMesh Systems, Inc. All rights reserved.
 */
package codec_test

import (
	"testing"
	"time"

	"github.com/weavemesh/weavemesh/cmn"
	"github.com/weavemesh/weavemesh/codec"
)

func Test_EscapeInvolution(t *testing.T) {
	samples := []string{
		"",
		"plain",
		"with,comma",
		"with|pipe",
		`back\slash`,
		"new\nline",
		`all,of|the\above` + "\n",
		`\c\p\\`, // payload that looks like escapes
		",,,|||",
	}
	for _, s := range samples {
		got := codec.Unescape(codec.Escape(s))
		if got != s {
			t.Fatalf("unescape(escape(%q)) = %q", s, got)
		}
	}
}

func Test_ConcatSplit(t *testing.T) {
	parts := []string{"a", "b,c", "d|e", `f\g`, ""}
	joined := codec.EscapeAndConcat('|', parts)
	back := codec.SplitAndUnescape(joined, '|')
	if len(back) != len(parts) {
		t.Fatalf("split: %d parts, expected %d", len(back), len(parts))
	}
	for i := range parts {
		if back[i] != parts[i] {
			t.Fatalf("part %d: %q != %q", i, back[i], parts[i])
		}
	}
}

func Test_DeltaRoundTrip(t *testing.T) {
	cases := []struct{ prev, cur string }{
		{"", ""},
		{"", "a,b,c"},
		{"a,b,c", "a,b,c"},
		{"a,b,c", "a,x,c"},
		{"a,b,c", "a,b,x"},
		{"a,b,c", ",b,c"},
		{"a,b,c", "a,,"},
		{"a,b,c", "a,b,c,d"},
		{"a,b,c", "a,b"},
		{"a,b,c", ""},
		{"7,hello,0", "8,hello,0"},
	}
	for _, c := range cases {
		delta := codec.Compress(c.prev, c.cur, ',')
		got := codec.Decompress(c.prev, delta, ',')
		if got != c.cur {
			t.Fatalf("decompress(%q, compress(%q, %q)=%q) = %q", c.prev, c.prev, c.cur, delta, got)
		}
		if c.prev == c.cur && delta != "" {
			t.Fatalf("identical frames: non-empty delta %q", delta)
		}
	}
}

func Test_DeltaValues(t *testing.T) {
	prev, cur := "k1|k2|k3", "k1|k9|k3"
	delta := codec.CompressValues(prev, cur)
	if got := codec.DecompressValues(prev, delta); got != cur {
		t.Fatalf("values: %q != %q", got, cur)
	}
}

func Test_DestsRoundTrip(t *testing.T) {
	var (
		broadcast = codec.BroadcastDests()
		none      = codec.DestsOf()
		ab        = codec.DestsOf("node-aaaaaaaa", "node-bbbbbbbb")
		ac        = codec.DestsOf("node-aaaaaaaa", "node-cccccccc")
	)
	cases := []struct{ prev, cur codec.Dests }{
		{broadcast, broadcast},
		{broadcast, ab},
		{ab, broadcast},
		{ab, ac},
		{ab, none},
		{none, ab},
	}
	for _, c := range cases {
		delta := codec.CompressMap(c.prev, c.cur)
		got, err := codec.DecompressMap(c.prev, delta)
		if err != nil {
			t.Fatal(err)
		}
		if !got.Equal(c.cur) {
			t.Fatalf("dests: %q -> %q via %q => %q", c.prev.Encode(), c.cur.Encode(), delta, got.Encode())
		}
		if c.prev.Equal(c.cur) && delta != "" {
			t.Fatalf("unchanged dests: non-empty delta %q", delta)
		}
	}
}

func Test_Timestamp(t *testing.T) {
	ts := time.Date(2026, 7, 31, 23, 59, 58, 123*int(time.Millisecond), time.Local)
	for _, prec := range []codec.TsPrec{codec.PrecMilli, codec.PrecCenti, codec.PrecDeci} {
		s := codec.FormatTs(ts, prec)
		back, err := codec.ParseTs(s)
		if err != nil {
			t.Fatal(err)
		}
		maxSkew := time.Millisecond
		switch prec {
		case codec.PrecCenti:
			maxSkew = 10 * time.Millisecond
		case codec.PrecDeci:
			maxSkew = 100 * time.Millisecond
		}
		if d := back.Sub(ts); d > maxSkew || d < -maxSkew {
			t.Fatalf("prec %d: %s -> %s (skew %v)", prec, ts, back, d)
		}
	}
	if s := codec.FormatTs(ts, codec.PrecMilli); s != "310726235958123" {
		t.Fatalf("wire form %q", s)
	}
}

func Test_FrameRoundTrip(t *testing.T) {
	f := &codec.Frame{
		Prefix:    cmn.PrefixNormal,
		Type:      "Px",
		Ts:        "310726235958123",
		SeqHex:    codec.SeqHex(0x1f),
		SubHeader: "origin-aaaa|*|1|",
		Keys:      "k1|k2",
		Fields:    "7,hello,0",
	}
	back, err := codec.ParseFrame(f.String())
	if err != nil {
		t.Fatal(err)
	}
	if *back != *f {
		t.Fatalf("frame: %+v != %+v", back, f)
	}
	seq, err := back.Seq()
	if err != nil || seq != 0x1f {
		t.Fatalf("seq: %d, %v", seq, err)
	}
	if _, err := codec.ParseFrame("garbage"); !cmn.IsErrParse(err) {
		t.Fatalf("expected ErrParse, got %v", err)
	}
	if _, err := codec.ParseFrame("$Px,only,three"); !cmn.IsErrParse(err) {
		t.Fatalf("expected ErrParse, got %v", err)
	}
}

func Test_Control(t *testing.T) {
	line := codec.BuildControl(cmn.CtrlAck, "Px", "origin-1", "dest-1", "2a")
	tag, args, err := codec.ParseControl(line)
	if err != nil || tag != cmn.CtrlAck || len(args) != 4 || args[3] != "2a" {
		t.Fatalf("control: %q %v %v", tag, args, err)
	}
	// commas inside control args survive the round-trip
	line = codec.BuildControl(cmn.CtrlLogin, "C", "my,app")
	_, args, err = codec.ParseControl(line)
	if err != nil || args[1] != "my,app" {
		t.Fatalf("control escape: %v %v", args, err)
	}
}

func Test_Fields(t *testing.T) {
	specs := []codec.FieldSpec{
		{Name: "symbol", Kind: codec.KindString},
		{Name: "price", Kind: codec.KindFloat},
		{Name: "size", Kind: codec.KindInt},
		{Name: "open", Kind: codec.KindBool},
		{Name: "at", Kind: codec.KindTime},
		{Name: "side", Kind: codec.KindEnum, Enum: []string{"BUY", "SELL"}},
	}
	rec := codec.Record{
		"symbol": "ACME,B|C",
		"price":  101.25,
		"size":   int64(300),
		"open":   true,
		"at":     time.Date(2026, 7, 31, 12, 0, 0, 0, time.Local),
		"side":   "SELL",
	}
	s, err := codec.Serialize(specs, rec)
	if err != nil {
		t.Fatal(err)
	}
	back, err := codec.Deserialize(specs, s)
	if err != nil {
		t.Fatal(err)
	}
	for _, spec := range specs {
		a, b := rec[spec.Name], back[spec.Name]
		if at, ok := a.(time.Time); ok {
			if !at.Equal(b.(time.Time)) {
				t.Fatalf("field %s: %v != %v", spec.Name, a, b)
			}
			continue
		}
		if a != b {
			t.Fatalf("field %s: %v != %v", spec.Name, a, b)
		}
	}
	// extra fields are a parse error
	if _, err := codec.Deserialize(specs[:2], "a,1,too-many"); !cmn.IsErrParse(err) {
		t.Fatalf("expected ErrParse, got %v", err)
	}
	// trailing fields missing: additive extension
	if _, err := codec.Deserialize(specs, "a,1.5"); err != nil {
		t.Fatal(err)
	}
}
