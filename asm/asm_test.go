// Copyright 2014-2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package asm

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/beevik/asm65/module"
)

func assemble(code string) (*module.Module, error) {
	return Assemble(strings.NewReader(code), "test", Options{})
}

func dataString(m *module.Module) string {
	var s string
	for _, c := range m.Chunks {
		s += strings.ReplaceAll(byteString(c.Data), " ", "")
	}
	return s
}

func subsString(c *module.Chunk) string {
	var subs []string
	for _, s := range c.Subs {
		subs = append(subs, fmt.Sprintf("%d:%d:%s", s.Offset, s.Size, s.Expr))
	}
	return strings.Join(subs, " ")
}

func symbolsString(m *module.Module) string {
	var syms []string
	for _, s := range m.Symbols {
		if s.Export != "" {
			syms = append(syms, s.Export+"="+s.Expr.String())
		} else {
			syms = append(syms, s.Expr.String())
		}
	}
	return strings.Join(syms, " ")
}

func checkASM(t *testing.T, asm string, expected string) *module.Module {
	t.Helper()
	m, err := assemble(asm)
	if err != nil {
		t.Error(err)
		return nil
	}

	s := dataString(m)
	if s != expected {
		t.Error("code doesn't match expected")
		t.Errorf("got: %s\n", s)
		t.Errorf("exp: %s\n", expected)
	}
	return m
}

func checkSubs(t *testing.T, m *module.Module, chunk int, expected string) {
	t.Helper()
	if m == nil {
		return
	}
	if got := subsString(m.Chunks[chunk]); got != expected {
		t.Errorf("subs: got %q, exp %q", got, expected)
	}
}

func checkSymbols(t *testing.T, m *module.Module, expected string) {
	t.Helper()
	if m == nil {
		return
	}
	if got := symbolsString(m); got != expected {
		t.Errorf("symbols: got %q, exp %q", got, expected)
	}
}

// checkASMError compares the first line of the error message; the rest
// holds the source location.
func checkASMError(t *testing.T, asm string, errString string) {
	t.Helper()
	_, err := assemble(asm)
	if err == nil {
		t.Errorf("Expected error on %s, didn't get one\n", asm)
		return
	}
	msg, _, _ := strings.Cut(err.Error(), "\n")
	if errString != msg {
		t.Errorf("Expected '%s', got '%v'\n", errString, err)
	}
}

func TestAddressingIMM(t *testing.T) {
	asm := `
	LDA #$20
	LDX #$20
	LDY #$20
	ADC #$20
	SBC #$20
	CMP #$20
	CPX #$20
	CPY #$20
	AND #$20
	ORA #$20
	EOR #$20`

	checkASM(t, asm, "A920A220A0206920E920C920E020C020292009204920")
}

func TestAddressingABS(t *testing.T) {
	asm := `
	LDA $2000
	LDX $2000
	LDY $2000
	STA $2000
	STX $2000
	STY $2000
	ADC $2000
	SBC $2000
	CMP $2000
	CPX $2000
	CPY $2000
	BIT $2000
	AND $2000
	ORA $2000
	EOR $2000
	INC $2000
	DEC $2000
	JMP $2000
	JSR $2000
	ASL $2000
	LSR $2000
	ROL $2000
	ROR $2000
	LDA A:$20
	LDA ABS:$20`

	checkASM(t, asm, "AD0020AE0020AC00208D00208E00208C00206D0020ED0020CD0020"+
		"EC0020CC00202C00202D00200D00204D0020EE0020CE00204C00202000200E0020"+
		"4E00202E00206E0020AD2000AD2000")
}

func TestAddressingABX(t *testing.T) {
	asm := `
	LDA $2000,X
	LDY $2000,X
	STA $2000,X
	ADC $2000,X
	SBC $2000,X
	CMP $2000,X
	AND $2000,X
	ORA $2000,X
	EOR $2000,X
	INC $2000,X
	DEC $2000,X
	ASL $2000,X
	LSR $2000,X
	ROL $2000,X
	ROR $2000,X`

	checkASM(t, asm, "BD0020BC00209D00207D0020FD0020DD00203D00201D00205D0020"+
		"FE0020DE00201E00205E00203E00207E0020")
}

func TestAddressingABY(t *testing.T) {
	asm := `
	LDA $2000,Y
	LDX $2000,Y
	STA $2000,Y
	ADC $2000,Y
	SBC $2000,Y
	CMP $2000,Y
	AND $2000,Y
	ORA $2000,Y
	EOR $2000,Y`

	checkASM(t, asm, "B90020BE0020990020790020F90020D90020390020190020590020")
}

func TestAddressingZPG(t *testing.T) {
	asm := `
	LDA $20
	LDX $20
	LDY $20
	STA $20
	STX $20
	STY $20
	ADC $20
	SBC $20
	CMP $20
	CPX $20
	CPY $20
	BIT $20
	AND $20
	ORA $20
	EOR $20
	INC $20
	DEC $20
	ASL $20
	LSR $20
	ROL $20
	ROR $20`

	checkASM(t, asm, "A520A620A4208520862084206520E520C520E420C42024202520"+
		"05204520E620C6200620462026206620")
}

func TestAddressingIND(t *testing.T) {
	asm := `
	JMP ($20)
	JMP ($2000)
	LDA ($24),Y
	STA ($20,X)`

	checkASM(t, asm, "6C20006C0020B1248120")
}

func TestAddressingACC(t *testing.T) {
	asm := `
	LSR
	LSR A
	ROL a
	ORA $480,X`

	checkASM(t, asm, "4A4A2A1D8004")
}

func TestZeroPageFromSymbol(t *testing.T) {
	asm := `
	ptr = $fb
	LDA ptr
	STA ptr+1,X
	LDA fwd
	fwd = $fc`

	checkASM(t, asm, "A5FB95FCADFFFF")
}

func TestDataBytes(t *testing.T) {
	asm := `
	.byte "AB", $00
	.byte 'f', 'f'
	.byte $ABCD >> 8
	.byte 1+2+3+4
	.byte -1
	.byte %01010101`

	checkASM(t, asm, "4142006666AB0AFF55")
}

func TestDataWords(t *testing.T) {
	checkASM(t, ".word 1, 2, $403", "010002000304")
	checkASM(t, ".word $ABCD, -1, 1+2", "CDABFFFF0300")
}

func TestDataRes(t *testing.T) {
	checkASM(t, ".res 10, 3", "03030303030303030303")
	checkASM(t, ".res 3", "000000")
}

func TestDataRange(t *testing.T) {
	checkASMError(t, ".byte $100", "Not a byte: $100")
	checkASMError(t, ".word $10000", "Not a word: $10000")
	checkASMError(t, "lda #$1234", "Not a byte: $1234")
}

func TestForwardValue(t *testing.T) {
	asm := `
	lda #val
	val = $23`

	m := checkASM(t, asm, "A9FF")
	checkSubs(t, m, 0, "1:1:sym:0")
	checkSymbols(t, m, "35")
}

func TestForwardFormula(t *testing.T) {
	asm := `
	val = 1 + x
	lda #val
	x = 2`

	m := checkASM(t, asm, "A9FF")
	checkSubs(t, m, 0, "1:1:(+ 1 sym:0)")
	checkSymbols(t, m, "2")
}

func TestForwardLabel(t *testing.T) {
	asm := `
	.org $8000
	jsr foo
	lda #0
foo:`

	m := checkASM(t, asm, "20FFFFA900")
	checkSubs(t, m, 0, "1:2:sym:0")
	checkSymbols(t, m, "32773")
	if m != nil && (m.Chunks[0].Org == nil || *m.Chunks[0].Org != 0x8000) {
		t.Errorf("chunk org not set")
	}
}

func TestImmediateLabel(t *testing.T) {
	asm := `
	.org $9135
foo:
	ldx #<foo
	ldy #>foo`

	m := checkASM(t, asm, "A235A091")
	if m != nil && m.Chunks[0].Name != "foo" {
		t.Errorf("chunk name: got %q, exp %q", m.Chunks[0].Name, "foo")
	}
}

func TestOrg(t *testing.T) {
	asm := `
	.org $1234
	rts
	.org $5678
	ldy #$12`

	m := checkASM(t, asm, "60A012")
	if m != nil && len(m.Chunks) != 2 {
		t.Errorf("got %d chunks, exp 2", len(m.Chunks))
	}

	asm = `
	.org $1234
	rts
	.org $1235
	ldy #$12`

	m = checkASM(t, asm, "60A012")
	if m != nil && len(m.Chunks) != 1 {
		t.Errorf("redundant .org: got %d chunks, exp 1", len(m.Chunks))
	}
}

func TestMutableSymbols(t *testing.T) {
	asm := `
	foo .set 5
	lda #foo
	foo .set 6
	lda #foo`

	m := checkASM(t, asm, "A905A906")
	checkSymbols(t, m, "")

	checkASMError(t, "foo = 1\nfoo .set 2", "Cannot change mutability of foo")
	checkASMError(t, "foo .set 1\nfoo = 2", "Cannot change mutability of foo")
	checkASMError(t, "foo .set bar\nbar = 1", "Mutable set requires constant")
}

func TestRedefinition(t *testing.T) {
	checkASMError(t, "foo = 5\nfoo = 5", "Redefining symbol foo")
	checkASMError(t, "foo = 5\nfoo:", "Redefining symbol foo")
	checkASMError(t, "foo:\nfoo = 5", "Redefining symbol foo")
	checkASMError(t, "foo:\nfoo:", "Redefining symbol foo")
}

func TestProgrammaticReferences(t *testing.T) {
	a := New(Options{})
	a.Reloc()
	a.Byte(8)
	foo, err := a.Symbol("foo")
	if err != nil {
		t.Fatal(err)
	}
	a.Word(foo)
	a.Byte(9)
	if err := a.Label("foo"); err != nil {
		t.Fatal(err)
	}
	m, err := a.Module()
	if err != nil {
		t.Fatal(err)
	}
	if got, exp := dataString(m), "08FFFF09"; got != exp {
		t.Errorf("got: %s, exp: %s", got, exp)
	}
	checkSubs(t, m, 0, "1:2:sym:0")
	checkSymbols(t, m, "[0]+4")

	a = New(Options{})
	a.Org(0x8000)
	a.Byte(8)
	a.Label("foo")
	a.Byte(9)
	foo, _ = a.Symbol("foo")
	a.Word(foo)
	if m, err = a.Module(); err != nil {
		t.Fatal(err)
	}
	if got, exp := dataString(m), "08090180"; got != exp {
		t.Errorf("got: %s, exp: %s", got, exp)
	}
}

func TestCheapLocals(t *testing.T) {
	asm := `
@foo:
	ldx #<@foo
	ldy #>@foo`

	m := checkASM(t, asm, "A2FFA0FF")
	checkSubs(t, m, 0, "1:1:(< [0]+0) 3:1:(> [0]+0)")

	asm = `
	jsr @foo
	lda #0
@foo:`

	m = checkASM(t, asm, "20FFFFA900")
	checkSubs(t, m, 0, "1:2:sym:0")
	checkSymbols(t, m, "[0]+5")

	asm = `
@foo:
	jsr @foo
bar:
	jsr @foo
@foo:`

	m = checkASM(t, asm, "20FFFF20FFFF")
	checkSubs(t, m, 0, "1:2:[0]+0 4:2:sym:0")
	checkSymbols(t, m, "[0]+6")

	checkASMError(t, "@foo = 5", "Cheap locals may only be labels: @foo")
	checkASMError(t, "@foo:\n@foo:", "Redefining symbol @foo")
	checkASMError(t, "@foo:\nbar = 2\n@foo:", "Redefining symbol @foo")
	checkASMError(t, "jsr @foo\nbar:", "Cheap local label never defined: @foo")
	checkASMError(t, "jsr @foo", "Cheap local label never defined: @foo")
}

func TestAnonymousLabels(t *testing.T) {
	asm := `
	bne :++
:
	bcc :+3
:
	lsr
:
	lsr
:`

	m := checkASM(t, asm, "D0FF90FF4A4A")
	checkSubs(t, m, 0, "1:1:(- sym:0 [0]+2) 3:1:(- sym:1 [0]+4)")
	checkSymbols(t, m, "[0]+4 [0]+6")

	asm = `
:	lsr
:	lsr
	lsr
:	bne :---
:	bcc :-2`

	m = checkASM(t, asm, "4A4A4AD0FB90FC")
	checkSymbols(t, m, "")

	asm = `
	bne :+
:	bcc :-`

	m = checkASM(t, asm, "D0FF90FE")
	checkSubs(t, m, 0, "1:1:(- sym:0 [0]+2)")
	checkSymbols(t, m, "[0]+2")

	checkASMError(t, "bne :-", "Bad anonymous backref: :-")
	checkASMError(t, "bne :+", "Symbol undefined")
}

func TestRtsLabels(t *testing.T) {
	asm := `
	rts
	bne :<rts
	bne :rts
	rts
	bne :>>rts
	bne :<<rts
	bne :>>rts
	bne :<<rts
	rts
	rts`

	m := checkASM(t, asm, "60D0FDD0FF60D0FFD0F6D0FFD0F26060")
	checkSubs(t, m, 0, "4:1:(- sym:0 [0]+5) 7:1:(- sym:1 [0]+8) 11:1:(- sym:1 [0]+12)")
	checkSymbols(t, m, "[0]+5 [0]+15")

	checkASMError(t, "bne :<rts", "Bad rts backref: :<rts")
}

func TestRelativeLabels(t *testing.T) {
	asm := `
	bne ++
+
	bcc +++
++
	lsr
	lsr
+++`

	m := checkASM(t, asm, "D0FF90FF4A4A")
	checkSubs(t, m, 0, "1:1:(- sym:0 [0]+2) 3:1:(- sym:1 [0]+4)")
	checkSymbols(t, m, "[0]+4 [0]+6")

	asm = `
--
	lsr
	lsr
	lsr
-
	bne --
	bcc -`

	m = checkASM(t, asm, "4A4A4AD0FB90FC")
	checkSymbols(t, m, "")

	checkASMError(t, "bne --", "Bad relative backref: --")
}

func TestBranchRange(t *testing.T) {
	checkASM(t, ".org $8000\nbne $8081", "D07F")
	checkASM(t, ".org $8000\nbne $7f82", "D080")
	checkASMError(t, ".org $8000\nbne $9000", "Branch out of range: 4094")
	checkASMError(t, ".org $8000\nbne $7f81", "Branch out of range: -129")
}

func TestForwardLabelData(t *testing.T) {
	m := checkASM(t, ".byte q+1\nq:", "FF")
	checkSubs(t, m, 0, "0:1:(+ sym:0 1)")
	checkSymbols(t, m, "[0]+1")

	m = checkASM(t, ".word q+1\nq:", "FFFF")
	checkSubs(t, m, 0, "0:2:(+ sym:0 1)")
	checkSymbols(t, m, "[0]+2")
}

func TestSegments(t *testing.T) {
	m := checkASM(t, `.segment "01", "02"`+"\n.byte 4", "04")
	if m != nil {
		if got := strings.Join(m.Chunks[0].Segments, ","); got != "01,02" {
			t.Errorf("segments: got %s, exp 01,02", got)
		}
	}

	asm := `
	size = 100
	.segment "03":bank 2+1:size size
	.segment "03":offset $10`

	m = checkASM(t, asm, "")
	if m != nil {
		if len(m.Segments) != 1 {
			t.Fatalf("got %d segments, exp 1", len(m.Segments))
		}
		if got, exp := m.Segments[0].String(), "03 bank=$3 size=$64 offset=$10"; got != exp {
			t.Errorf("got %q, exp %q", got, exp)
		}
	}

	checkASMError(t, `.segment "03":color 1`, "Unknown segment attr: color")

	asm = `
	.segmentprefix "cr:"
	.segment "02"
	lsr`

	m = checkASM(t, asm, "4A")
	if m != nil && m.Chunks[0].Segments[0] != "cr:02" {
		t.Errorf("got segment %s, exp cr:02", m.Chunks[0].Segments[0])
	}
}

func TestPushSeg(t *testing.T) {
	asm := `
	.segment "a", "b"
	.byte 4
	.pushseg "a"
	.byte 5
	.pushseg "a", "c"
	.byte 6
	.popseg
	.byte 7
	.popseg
	.byte 8`

	m := checkASM(t, asm, "04080507"+"06")
	if m != nil && len(m.Chunks) != 3 {
		t.Errorf("got %d chunks, exp 3", len(m.Chunks))
	}

	asm = `
	.segment "a", "b"
	.org 100
	.byte 4
	.pushseg "a", "c"
	.org 10
	.byte 5
	.popseg
	.byte 6
	.byte *`

	m = checkASM(t, asm, "04066605")
	if m != nil && *m.Chunks[1].Org != 10 {
		t.Errorf("second chunk org: got %d, exp 10", *m.Chunks[1].Org)
	}

	checkASMError(t, ".popseg", ".popseg without .pushseg")
}

func TestFree(t *testing.T) {
	asm := `
	.segment "02"
	.org $8000
	.free $200
	.org $9000
	.free $400`

	m := checkASM(t, asm, "")
	if m != nil {
		exp := [][2]int{{0x8000, 0x8200}, {0x9000, 0x9400}}
		if got := m.Segments[0].Free; fmt.Sprint(got) != fmt.Sprint(exp) {
			t.Errorf("free: got %v, exp %v", got, exp)
		}
	}

	checkASMError(t, ".reloc\n.free 4", ".free in .reloc mode")
	checkASMError(t, ".org $8000\nlda #1\n.org $8000\n.free 4",
		".free overlaps written data: [$8000, $8004)")
	checkASMError(t, `.segment "a", "b"`+"\n.org $8000\n.free 4",
		".free with non-unique segment: a,b")

	// Two views of the same file bytes.
	alias := `
	.segment "lo":size $100:offset $10:memory $8000
	.segment "hi":size $100:offset $10:memory $c000
	.segment "lo"
	.org $8000
	lda #1
	.segment "hi"
	.org $c000`
	checkASMError(t, alias+"\n.free 4", ".free overlaps written data: [$c000, $c004)")
	if _, err := assemble(alias + "\n.org $c002\n.free 4"); err != nil {
		t.Errorf("free after aliased write: %v", err)
	}
}

func TestAssert(t *testing.T) {
	checkASM(t, ".assert 1", "")
	checkASMError(t, ".assert 0", "Assertion failed")
	checkASMError(t, ".assert 1 == 2", "Assertion failed")
	checkASM(t, ".assert 2 == 2", "")
	checkASMError(t, ".org $8000\nnop\n.assert * < $8000", "Assertion failed (PC=$8001)")

	m := checkASM(t, "Foo:\n.assert Foo > 8", "")
	if m != nil {
		c := m.Chunks[0]
		if c.Name != "Foo" || len(c.Asserts) != 1 || c.Asserts[0].String() != "(> [0]+0 8)" {
			t.Errorf("deferred assert: got %q %v", c.Name, c.Asserts)
		}
	}
}

func TestScopes(t *testing.T) {
	asm := `
	bar = 12
	.scope foo
	bar = 42
	.byte bar
	.endscope
	.byte bar`

	checkASM(t, asm, "2A0C")

	asm = `
	.scope
	.scope foo
	.byte bar
	.endscope
	.scope
	.byte bar
	.endscope
	.endscope
	bar = 14`

	m := checkASM(t, asm, "FFFF")
	checkSubs(t, m, 0, "0:1:sym:0 1:1:sym:1")
	checkSymbols(t, m, "14 sym:0")

	asm = `
	.scope foo
	.byte bar
	.endscope
	foo::bar = 13`

	m = checkASM(t, asm, "FF")
	checkSubs(t, m, 0, "0:1:sym:0")
	checkSymbols(t, m, "13")

	asm = `
	.scope foo
	bar = 5
	.endscope
	.byte foo::bar`

	checkASM(t, asm, "05")

	checkASMError(t, ".scope foo\n.endscope\n.scope foo", "Cannot re-enter scope foo")
	checkASMError(t, ".endscope", ".endscope without .scope")
	checkASMError(t, ".scope", "Scope never closed")
	checkASMError(t, ".byte foo::bar", "Could not resolve scope foo")
	checkASMError(t, ".scope foo\n.byte bar\n.endscope\n.byte foo::bar",
		"Symbol 'bar' undefined")
}

func TestReentrantScopes(t *testing.T) {
	asm := `
	.scope foo
	a1 = 1
	.endscope
	.scope foo
	.byte a1
	.endscope`

	m, err := Assemble(strings.NewReader(asm), "test", Options{ReentrantScopes: true})
	if err != nil {
		t.Fatal(err)
	}
	if got := dataString(m); got != "01" {
		t.Errorf("got: %s, exp: 01", got)
	}
}

func TestProc(t *testing.T) {
	asm := `
	.org $8000
	.proc main
	lda #1
	rts
	.endproc
	jsr main`

	checkASM(t, asm, "A90160200080")
	checkASMError(t, ".proc main\n.endscope", ".endscope without .scope")
}

func TestImport(t *testing.T) {
	for _, asm := range []string{
		".import foo\n.byte foo",
		".byte foo\n.import foo",
		".scope\n.byte foo\n.endscope\n.import foo",
	} {
		m := checkASM(t, asm, "FF")
		checkSubs(t, m, 0, "0:1:sym:0")
		checkSymbols(t, m, "im:foo")
	}

	m := checkASM(t, ".import foo\n.byte 2", "02")
	checkSymbols(t, m, "")

	checkASMError(t, ".import foo\nfoo = 1", "Already defined: foo")
	checkASMError(t, "jsr foo", "Symbol 'foo' undefined")
}

func TestExport(t *testing.T) {
	m := checkASM(t, ".export qux\nqux = 12", "")
	checkSymbols(t, m, "qux=12")

	m = checkASM(t, "qux = 12\n.export qux", "")
	checkSymbols(t, m, "qux=12")

	checkASMError(t, ".export qux", "Symbol 'qux' undefined")
}

func TestMove(t *testing.T) {
	asm := `
	.org $8000
foo:
	.move 2, foo`

	m := checkASM(t, asm, "FFFF")
	checkSubs(t, m, 0, "0:2:(.move 32768)")

	checkASMError(t, ".move 2, 5", "Expected a constant offset")
}

func TestErrors(t *testing.T) {
	checkASMError(t, "foo #1", "Unknown mnemonic: foo")
	checkASMError(t, "sta #1", "Bad address mode imm for sta")
	checkASMError(t, "jmp ($20),y", "Bad address mode iny for jmp")
	checkASMError(t, ".bogus", "Unknown directive: .BOGUS")
	checkASMError(t, `.arch "z80"`, "Unknown architecture: STR[z80]")

	_, err := assemble("\n\tfoo #1")
	if err == nil || err.Error() != "Unknown mnemonic: foo\n  at test:2:9" {
		t.Errorf("got %v", err)
	}
}

var asm65c02 = `	PHX
	PHY
	PLX
	PLY
	BRA $1000
	STZ $01
	STZ $1234
	STZ ABS:$01
	STZ $01,X
	STZ $1234,X
	INC
	DEC
	JMP $1234,X
	BIT #$12
	BIT $12,X
	BIT $1234,X
	TRB $01
	TRB $1234
	TSB $01
	TSB $1234
	ADC ($01)
	SBC ($01)
	CMP ($01)
	AND ($01)
	ORA ($01)
	EOR ($01)
	LDA ($01)
	STA ($01)`

func Test65c02(t *testing.T) {
	prefix := `
	.arch "65c02"
	.org $1000
`
	checkASM(t, prefix+asm65c02, "DA5AFA7A80FA64019C34129C010074019E3412"+
		"1A3A7C3412891234123C341214011C341204010C34127201F201D201320112015201B2019201")

	checkASM(t, ".arch cmos\nphx\n.arch nmos\nlax $20", "DAA720")
}

func Test65c02FailOn6502(t *testing.T) {
	lines := strings.Split(asm65c02, "\n")
	prefix := `
	.arch "6502"
	.org $1000
`
	for _, line := range lines {
		if _, err := assemble(prefix + line); err == nil {
			t.Errorf("Expected error on %s, didn't get one", strings.TrimSpace(line))
		}
	}
}

func TestAssembleFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "prog.s")
	src := ".org $8000\nstart: lda #1\njmp start\n"
	if err := os.WriteFile(path, []byte(src), 0644); err != nil {
		t.Fatal(err)
	}

	obj, err := AssembleFile(path, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if exp := filepath.Join(dir, "prog.o"); obj != exp {
		t.Errorf("got %s, exp %s", obj, exp)
	}

	m, err := module.Load(obj)
	if err != nil {
		t.Fatal(err)
	}
	if got, exp := dataString(m), "A9014C0080"; got != exp {
		t.Errorf("got: %s, exp: %s", got, exp)
	}
}

func TestVerbose(t *testing.T) {
	var buf bytes.Buffer
	_, err := Assemble(strings.NewReader(".org $8000\nlda #1\n"), "test", Options{Verbose: true, Out: &buf})
	if err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, exp := range []string{"-- test --", "8000-*  A9 01", "-- Module --"} {
		if !strings.Contains(out, exp) {
			t.Errorf("verbose output missing %q:\n%s", exp, out)
		}
	}
}
