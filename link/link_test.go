// Copyright 2014-2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package link

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/beevik/asm65/asm"
	"github.com/beevik/asm65/expr"
	"github.com/beevik/asm65/module"
)

func hunksString(p *Patch) string {
	var parts []string
	for _, h := range p.Hunks() {
		parts = append(parts, fmt.Sprintf("%X:%X", h.Start, h.Data))
	}
	return strings.Join(parts, " ")
}

func firstLine(err error) string {
	return strings.SplitN(err.Error(), "\n", 2)[0]
}

func checkLink(t *testing.T, l *Linker, expected string) *Patch {
	t.Helper()
	p, err := l.Link()
	if err != nil {
		t.Errorf("link failed: %v", err)
		return nil
	}
	if got := hunksString(p); got != expected {
		t.Errorf("patch mismatch:\n  got: %s\n  exp: %s", got, expected)
	}
	return p
}

func checkLinkError(t *testing.T, l *Linker, errString string) {
	t.Helper()
	_, err := l.Link()
	if err == nil {
		t.Errorf("expected error %q, got none", errString)
		return
	}
	if got := firstLine(err); got != errString {
		t.Errorf("error mismatch:\n  got: %s\n  exp: %s", got, errString)
	}
}

func newLinker(t *testing.T, modules ...*module.Module) *Linker {
	t.Helper()
	l := New(Options{})
	for _, m := range modules {
		if err := l.Read(m); err != nil {
			t.Fatalf("read failed: %v", err)
		}
	}
	return l
}

func assemble(t *testing.T, code string) *module.Module {
	t.Helper()
	m, err := asm.Assemble(strings.NewReader(code), "test", asm.Options{})
	if err != nil {
		t.Fatalf("assemble failed: %v", err)
	}
	return m
}

func seg(name string, size, offset, memory int) *module.Segment {
	return &module.Segment{
		Name:   name,
		Size:   expr.Int(size),
		Offset: expr.Int(offset),
		Memory: expr.Int(memory),
	}
}

func fixed(org int, data ...byte) *module.Chunk {
	return &module.Chunk{Segments: []string{"code"}, Org: expr.Int(org), Data: data}
}

func reloc(data ...byte) *module.Chunk {
	return &module.Chunk{Segments: []string{"code"}, Data: data}
}

func sub(offset, size int, e *expr.Expr) *module.Substitution {
	return &module.Substitution{Offset: offset, Size: size, Expr: e}
}

func TestFixedChunk(t *testing.T) {
	m := &module.Module{
		Segments: []*module.Segment{seg("code", 400, 30, 80)},
		Chunks:   []*module.Chunk{fixed(100, 2, 4, 6, 8)},
	}
	checkLink(t, newLinker(t, m), "32:02040608")
}

func TestFixedChunks(t *testing.T) {
	m := &module.Module{
		Segments: []*module.Segment{seg("code", 400, 30, 80)},
		Chunks: []*module.Chunk{
			fixed(100, 2, 4, 6, 8),
			fixed(200, 1, 3, 5, 7),
		},
	}
	checkLink(t, newLinker(t, m), "32:02040608 96:01030507")
}

func TestSameChunkOffset(t *testing.T) {
	c := fixed(100, 2, 4, 6, 0)
	c.Subs = []*module.Substitution{sub(3, 1, expr.Offset(3, 0))}
	m := &module.Module{
		Segments: []*module.Segment{seg("code", 400, 30, 80)},
		Chunks:   []*module.Chunk{c},
	}
	checkLink(t, newLinker(t, m), "32:02040667")
}

func TestSymbolCrossReference(t *testing.T) {
	c0 := fixed(100, 2, 4, 0, 8)
	c0.Subs = []*module.Substitution{sub(2, 1, expr.SymbolID(1))}
	c1 := fixed(200, 1, 3, 0, 7)
	c1.Subs = []*module.Substitution{sub(2, 1, expr.SymbolID(0))}
	m := &module.Module{
		Segments: []*module.Segment{seg("code", 400, 30, 80)},
		Chunks:   []*module.Chunk{c0, c1},
		Symbols: []*module.Symbol{
			{Expr: expr.Offset(2, 0)},
			{Expr: expr.Offset(1, 1)},
		},
	}
	checkLink(t, newLinker(t, m), "32:0204C908 96:01036607")
}

func TestOffsetArithmetic(t *testing.T) {
	c := fixed(100, 2, 4, 0, 8)
	c.Subs = []*module.Substitution{
		sub(2, 1, expr.Binary(expr.OpAdd, expr.Number(80), expr.Offset(1, 0))),
	}
	m := &module.Module{
		Segments: []*module.Segment{seg("code", 400, 30, 80)},
		Chunks:   []*module.Chunk{c},
	}
	checkLink(t, newLinker(t, m), "32:0204B508")
}

func TestMultipleSegments(t *testing.T) {
	c0 := fixed(0x100, 2, 4, 0, 0)
	c0.Subs = []*module.Substitution{sub(2, 2, expr.SymbolID(0))}
	c1 := &module.Chunk{Segments: []string{"data"}, Org: expr.Int(0x8123), Data: []byte{1, 1, 2, 3, 5}}
	m := &module.Module{
		Segments: []*module.Segment{
			seg("code", 0x400, 0x10, 0),
			seg("data", 0x400, 0x410, 0x8000),
		},
		Chunks:  []*module.Chunk{c0, c1},
		Symbols: []*module.Symbol{{Expr: expr.Offset(3, 1)}},
	}
	checkLink(t, newLinker(t, m), "110:02042681 533:0101020305")
}

func TestRelocation(t *testing.T) {
	code := seg("code", 0x400, 0x10, 0xc000)
	code.Free = [][2]int{{0xc200, 0xc300}}
	c0 := reloc(2, 4, 0, 0)
	c0.Subs = []*module.Substitution{sub(2, 2, expr.Offset(0, 0))}
	c1 := reloc(1, 3, 0, 0)
	c1.Subs = []*module.Substitution{sub(2, 2, expr.Offset(2, 0))}
	m := &module.Module{
		Segments: []*module.Segment{code},
		Chunks:   []*module.Chunk{c0, c1},
	}
	checkLink(t, newLinker(t, m), "210:020400C2010302C2")
}

func TestLargestFirst(t *testing.T) {
	m := &module.Module{
		Segments: []*module.Segment{seg("code", 0x10, 0, 0x8000)},
		Chunks: []*module.Chunk{
			reloc(1),
			reloc(2, 2, 2),
			reloc(3, 3),
		},
	}
	checkLink(t, newLinker(t, m), "0:020202030301")
}

func TestBestFit(t *testing.T) {
	code := seg("code", 0x100, 0, 0x8000)
	code.Free = [][2]int{{0x8000, 0x8010}, {0x8020, 0x8024}}
	m := &module.Module{
		Segments: []*module.Segment{code},
		Chunks:   []*module.Chunk{reloc(1, 2, 3)},
	}
	checkLink(t, newLinker(t, m), "20:010203")
}

func TestMutualReference(t *testing.T) {
	c0 := reloc(0, 0)
	c0.Subs = []*module.Substitution{sub(0, 2, expr.Offset(0, 1))}
	c1 := reloc(0, 0)
	c1.Subs = []*module.Substitution{sub(0, 2, expr.Offset(0, 0))}
	m := &module.Module{
		Segments: []*module.Segment{seg("code", 0x10, 0, 0x8000)},
		Chunks:   []*module.Chunk{c0, c1},
	}
	checkLink(t, newLinker(t, m), "0:02800080")
}

func TestStallPlacesOneDependency(t *testing.T) {
	c0 := reloc(0, 0, 0)
	c0.Subs = []*module.Substitution{
		sub(0, 1, expr.Offset(0, 1)),
		sub(1, 1, expr.Offset(0, 2)),
	}
	c1 := reloc(0, 0)
	c1.Subs = []*module.Substitution{sub(0, 1, expr.Offset(0, 0))}
	c2 := reloc(0)
	c2.Subs = []*module.Substitution{sub(0, 1, expr.Offset(0, 0))}
	m := &module.Module{
		Segments: []*module.Segment{seg("code", 0x10, 0, 0)},
		Chunks:   []*module.Chunk{c0, c1, c2},
	}

	// c1 is forced first, then c2, leaving c0 ready.
	checkLink(t, newLinker(t, m), "0:030003000200")
}

func TestBankByte(t *testing.T) {
	code := seg("code", 0x10, 0, 0x8000)
	code.Bank = expr.Int(3)
	c := reloc(0)
	c.Subs = []*module.Substitution{
		sub(0, 1, &expr.Expr{Op: expr.OpBankByte, Args: []*expr.Expr{expr.Offset(0, 0)}}),
	}
	m := &module.Module{Segments: []*module.Segment{code}, Chunks: []*module.Chunk{c}}
	checkLink(t, newLinker(t, m), "0:03")

	code = seg("code", 0x10, 0, 0x8000)
	c = fixed(0x8000, 0)
	c.Subs = []*module.Substitution{
		sub(0, 1, &expr.Expr{Op: expr.OpBankByte, Args: []*expr.Expr{expr.Offset(0, 0)}}),
	}
	m = &module.Module{Segments: []*module.Segment{code}, Chunks: []*module.Chunk{c}}
	checkLinkError(t, newLinker(t, m), "Segment has no bank data: code")
}

func TestByteAt(t *testing.T) {
	c := fixed(0x8000, 0)
	c.Subs = []*module.Substitution{
		sub(0, 1, &expr.Expr{Op: expr.OpByteAt, Args: []*expr.Expr{expr.Number(0x8003)}}),
	}
	m := &module.Module{
		Segments: []*module.Segment{seg("code", 0x10, 0, 0x8000)},
		Chunks:   []*module.Chunk{c},
	}
	l := newLinker(t, m)
	l.Base([]byte{0x00, 0x11, 0x22, 0x33, 0x44}, 0)
	checkLink(t, l, "0:33")
}

func TestLinkErrors(t *testing.T) {
	m := &module.Module{
		Segments: []*module.Segment{
			seg("a", 0x100, 0, 0x8000),
			seg("b", 0x100, 0x100, 0x8000),
		},
		Chunks: []*module.Chunk{{Segments: []string{"a", "b"}, Org: expr.Int(0x8000), Data: []byte{1}}},
	}
	checkLinkError(t, newLinker(t, m), "Non-unique segment for chunk Code at $8000: a,b")

	m = &module.Module{
		Segments: []*module.Segment{seg("code", 400, 30, 80)},
		Chunks:   []*module.Chunk{fixed(100, 1, 2), fixed(101, 3)},
	}
	checkLinkError(t, newLinker(t, m), "Chunk Code at $65 overlaps another chunk")

	c := fixed(100, 0)
	c.Subs = []*module.Substitution{sub(0, 1, expr.Number(0x1234))}
	m = &module.Module{Segments: []*module.Segment{seg("code", 400, 30, 80)}, Chunks: []*module.Chunk{c}}
	checkLinkError(t, newLinker(t, m), "Not a byte: $1234 at $64")

	m = &module.Module{
		Segments: []*module.Segment{seg("code", 2, 0, 0x8000)},
		Chunks:   []*module.Chunk{reloc(1, 2, 3)},
	}
	checkLinkError(t, newLinker(t, m), "Could not find space for 3-byte chunk Code in segments code")

	m = &module.Module{
		Chunks: []*module.Chunk{reloc(1)},
	}
	checkLinkError(t, newLinker(t, m), "Unknown segment: code")

	m = &module.Module{
		Segments: []*module.Segment{{Name: "code", Offset: expr.Int(0)}},
		Chunks:   []*module.Chunk{reloc(1)},
	}
	checkLinkError(t, newLinker(t, m), "Segment code has no size")

	c = reloc(0)
	c.Subs = []*module.Substitution{sub(0, 1, expr.SymbolID(0))}
	m = &module.Module{
		Segments: []*module.Segment{seg("code", 0x10, 0, 0x8000)},
		Chunks:   []*module.Chunk{c},
		Symbols:  []*module.Symbol{{Expr: expr.SymbolID(1)}, {Expr: expr.SymbolID(0)}},
	}
	checkLinkError(t, newLinker(t, m), "Circular symbol reference")

	l := newLinker(t, &module.Module{})
	if _, err := l.Link(); err != nil {
		t.Errorf("empty link: %v", err)
	}
	checkLinkError(t, l, "Linker already used")
}

func TestReadErrors(t *testing.T) {
	l := New(Options{})
	err := l.Read(&module.Module{Symbols: []*module.Symbol{{Export: "a"}}})
	if err == nil || err.Error() != "Symbol 0 never resolved" {
		t.Errorf("got %v", err)
	}

	l = New(Options{})
	m := &module.Module{Symbols: []*module.Symbol{{Export: "a", Expr: expr.Number(1)}}}
	if err := l.Read(m); err != nil {
		t.Fatal(err)
	}
	if err := l.Read(m); err == nil || err.Error() != "Duplicate export: a" {
		t.Errorf("got %v", err)
	}
}

func TestAssembledProgram(t *testing.T) {
	m := assemble(t, `
	.segment "code":size $10:offset 0:memory $8000
	.org $8000
Start:
	lda #$01
	jmp Start`)

	checkLink(t, newLinker(t, m), "0:A9014C0080")
}

func TestImportExport(t *testing.T) {
	lib := assemble(t, `
	.segment "code":size $100:offset $10:memory $8000
	.export foo
foo:
	lda #$01
	rts`)

	prog := assemble(t, `
	.import foo
	.segment "code"
	.org $8000
	jsr foo`)

	l := newLinker(t, lib, prog)
	checkLink(t, l, "10:200380A90160")

	exports, err := l.Exports()
	if err != nil {
		t.Fatal(err)
	}
	foo, ok := exports["foo"]
	switch {
	case !ok:
		t.Error("foo not exported")
	case foo.Value != 0x8003:
		t.Errorf("foo: got $%x, exp $8003", foo.Value)
	case foo.Offset == nil || *foo.Offset != 0x13:
		t.Errorf("foo: bad offset %v", foo.Offset)
	}

	prog = assemble(t, `
	.import bar
	.segment "code":size $10:offset 0
	.byte bar`)
	checkLinkError(t, newLinker(t, prog), "Symbol never exported bar")
}

func TestDeduplicate(t *testing.T) {
	m := assemble(t, `
	.segment "code":size $10:offset 0:memory $8000
	.export foo
foo:
	lda #$01
	rts`)

	l := newLinker(t, m)
	l.Base([]byte{0, 0, 0, 0, 0xa9, 0x01, 0x60, 0, 0, 0, 0, 0, 0, 0, 0, 0}, 0)
	checkLink(t, l, "")

	exports, err := l.Exports()
	if err != nil {
		t.Fatal(err)
	}
	if v := exports["foo"].Value; v != 0x8004 {
		t.Errorf("foo: got $%x, exp $8004", v)
	}

	var b bytes.Buffer
	l.Report(&b)
	if !strings.Contains(b.String(), "foo shared") {
		t.Errorf("report missing shared chunk:\n%s", b.String())
	}

	l = newLinker(t, m)
	l.Base(make([]byte, 16), 0)
	checkLinkError(t, l, "Could not find space for 3-byte chunk foo in segments code")
}

func TestDeduplicateChunks(t *testing.T) {
	a := reloc(0xa9, 0x01, 0x60)
	a.Name = "a"
	b := reloc(0xa9, 0x01, 0x60)
	b.Name = "b"
	c := reloc(0xea)
	c.Name = "c"
	m := &module.Module{
		Segments: []*module.Segment{seg("code", 0x10, 0, 0x8000)},
		Chunks:   []*module.Chunk{a, b, c},
	}

	l := newLinker(t, m)
	p := checkLink(t, l, "0:A90160EA")
	if p != nil && len(p.Hunks()) != 1 {
		t.Errorf("hunks: got %d, exp 1", len(p.Hunks()))
	}

	shared := 0
	for _, c := range l.chunks {
		if c.overlaps {
			shared++
			if c.name != "b" || c.offset != 0 {
				t.Errorf("shared chunk: got %s at %d, exp b at 0", c.name, c.offset)
			}
		}
	}
	if shared != 1 {
		t.Errorf("shared chunks: got %d, exp 1", shared)
	}

	for i, x := range l.chunks {
		for _, y := range l.chunks[i+1:] {
			if x.overlaps || y.overlaps {
				continue
			}
			if x.offset < y.offset+y.size() && y.offset < x.offset+x.size() {
				t.Errorf("chunks %s and %s overlap", x.name, y.name)
			}
		}
	}
}

func TestMoveFromBase(t *testing.T) {
	m := assemble(t, `
	.segment "code":size $20:offset 0:memory $8000
	.org $8002
src:
	.byte $aa
	.org $8010
	.move 2, src`)

	l := newLinker(t, m)
	l.Base([]byte{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}, 0)
	checkLink(t, l, "2:AA 10:2233")
}

func TestLinkAssert(t *testing.T) {
	m := assemble(t, `
	.segment "code":size $10:offset 0:memory $8000
foo:
	nop
	.assert foo > $9000`)
	checkLinkError(t, newLinker(t, m), "Assertion failed in foo at $8000")

	m = assemble(t, `
	.segment "code":size $10:offset 0:memory $8000
foo:
	nop
	.assert foo >= $8000`)
	checkLink(t, newLinker(t, m), "0:EA")
}

func TestDeterministic(t *testing.T) {
	build := func() string {
		c0 := reloc(1, 2, 0, 0)
		c0.Subs = []*module.Substitution{sub(2, 2, expr.Offset(0, 2))}
		c2 := reloc(9, 9, 9)
		c2.Subs = []*module.Substitution{sub(0, 2, expr.Offset(1, 1))}
		m := &module.Module{
			Segments: []*module.Segment{seg("code", 0x40, 0, 0x8000)},
			Chunks:   []*module.Chunk{c0, reloc(5, 6), c2, reloc(7)},
		}
		p, err := Link(m)
		if err != nil {
			t.Fatal(err)
		}
		return hunksString(p)
	}
	a, b := build(), build()
	if a != b {
		t.Errorf("nondeterministic link:\n  %s\n  %s", a, b)
	}
	if exp := "0:05060180090102028007"; a != exp {
		t.Errorf("patch mismatch:\n  got: %s\n  exp: %s", a, exp)
	}
}

func TestVerbose(t *testing.T) {
	var b bytes.Buffer
	l := New(Options{Verbose: true, Out: &b})
	m := &module.Module{
		Segments: []*module.Segment{seg("code", 0x10, 0, 0x8000)},
		Chunks:   []*module.Chunk{reloc(1, 2)},
	}
	if err := l.Read(m); err != nil {
		t.Fatal(err)
	}
	if _, err := l.Link(); err != nil {
		t.Fatal(err)
	}
	for _, s := range []string{"-- Link --", "place Code", "-- Free --"} {
		if !strings.Contains(b.String(), s) {
			t.Errorf("verbose output missing %q:\n%s", s, b.String())
		}
	}
}
