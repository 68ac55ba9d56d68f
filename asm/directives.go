// Copyright 2014-2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package asm

import (
	"strconv"
	"strings"

	"github.com/beevik/asm65/cpu"
	"github.com/beevik/asm65/expr"
	"github.com/beevik/asm65/module"
	"github.com/beevik/asm65/token"
	"github.com/beevik/prefixtree/v2"
	"github.com/pkg/errors"
)

// Line assembles a single line of tokens.
func (a *Assembler) Line(tokens []token.Token) error {
	if len(tokens) == 0 {
		return nil
	}
	a.source = tokens[0].Source
	a.logLine(tokens)

	cur, n := a.cur, 0
	if cur >= 0 {
		n = len(a.chunks[cur].Data)
	}
	err := a.line(tokens)
	if err == nil && a.opts.Verbose && a.cur >= 0 {
		if a.cur != cur {
			n = 0
		}
		c := a.chunks[a.cur]
		if len(c.Data) > n {
			addr := n
			if c.Org != nil {
				addr += *c.Org
			}
			a.logBytes(addr, c.Org == nil, c.Data[n:])
		}
	}
	return err
}

func (a *Assembler) line(tokens []token.Token) error {
	if n := labelPrefix(tokens); n > 0 {
		name := tokens[0].Str
		a.source = tokens[0].Source
		if err := a.Label(name); err != nil {
			return err
		}
		if tokens = tokens[n:]; len(tokens) == 0 {
			return nil
		}
		a.source = tokens[0].Source
	}

	switch {
	case len(tokens) > 1 && token.Eq(tokens[1], token.Assign):
		return a.parseAssign(tokens, a.Assign)
	case len(tokens) > 1 && token.Eq(tokens[1], token.Set):
		return a.parseAssign(tokens, a.Set)
	case tokens[0].Kind == token.Directive:
		return a.Directive(tokens)
	default:
		return a.Instruction(tokens)
	}
}

// labelPrefix returns the number of tokens making up a label definition at
// the start of the line, or 0 if there is none.
func labelPrefix(tokens []token.Token) int {
	first := tokens[0]
	if token.Eq(first, token.Colon) {
		return 1
	}
	run := first.Kind == token.Op && (repeated(first.Str, '+') || repeated(first.Str, '-'))
	if len(tokens) == 1 && run {
		return 1
	}
	if len(tokens) > 1 && token.Eq(tokens[1], token.Colon) && (first.Kind == token.Ident || run) {
		return 2
	}
	return 0
}

func (a *Assembler) parseAssign(tokens []token.Token, fn func(string, *expr.Expr) error) error {
	name, err := token.ExpectIdentifier(tokens[0])
	if err != nil {
		return err
	}
	e, err := a.parseExpr(tokens, 2)
	if err != nil {
		return err
	}
	return fn(name, e)
}

// parseExpr parses an expression filling the rest of the line, locating
// errors at the current line if the parser did not.
func (a *Assembler) parseExpr(tokens []token.Token, start int) (*expr.Expr, error) {
	e, err := expr.ParseOnly(tokens, start)
	if err != nil {
		if !strings.Contains(err.Error(), "\n  at ") {
			return nil, a.fail("%s", err.Error())
		}
		return nil, err
	}
	return e, nil
}

func (a *Assembler) parseConst(tokens []token.Token, start int) (int, error) {
	e, err := a.parseExpr(tokens, start)
	if err != nil {
		return 0, err
	}
	v, ok, err := a.Evaluate(e)
	if err != nil {
		return 0, err
	}
	if !ok {
		if start < len(tokens) {
			return 0, token.Errorf(tokens[start], "Expression is not constant")
		}
		return 0, a.fail("Expression is not constant")
	}
	return v, nil
}

//
// instruction arguments
//

type argMode byte

const (
	argImp argMode = iota
	argAcc
	argImm
	argAddr
	argAddrX
	argAddrY
	argInd
	argIndX
	argIndY
)

var argModeName = []string{"imp", "acc", "imm", "add", "a,x", "a,y", "ind", "inx", "iny"}

func (m argMode) String() string {
	return argModeName[m]
}

// cpuMode returns the addressing mode for argument forms that have
// exactly one.
func (m argMode) cpuMode() cpu.Mode {
	switch m {
	case argAcc:
		return cpu.ACC
	case argImm:
		return cpu.IMM
	case argInd:
		return cpu.IND
	case argIndX:
		return cpu.IDX
	case argIndY:
		return cpu.IDY
	}
	return cpu.IMP
}

type instArg struct {
	mode     argMode
	expr     *expr.Expr
	forceAbs bool // `a:` or `abs:` prefix
}

// parseArg parses the operand of an instruction starting at tokens[start].
func (a *Assembler) parseArg(tokens []token.Token, start int) (instArg, error) {
	if len(tokens) == start {
		return instArg{mode: argImp}, nil
	}
	front := tokens[start]

	switch {
	case len(tokens) == start+1 && token.IsRegister(front, "a"):
		return instArg{mode: argAcc}, nil

	case token.Eq(front, token.Immediate):
		e, err := a.parseExpr(tokens, start+1)
		return instArg{mode: argImm, expr: e}, err

	case token.Eq(front, token.Colon) && len(tokens) == start+2 && isRun(tokens[start+1]):
		e := expr.Symbol(":" + tokens[start+1].Str)
		e.Source = front.Source
		return instArg{mode: argAddr, expr: e}, nil

	case len(tokens) == start+1 && isRun(front):
		e := expr.Symbol(front.Str)
		e.Source = front.Source
		return instArg{mode: argAddr, expr: e}, nil
	}

	var arg instArg
	if (token.IsRegister(front, "a") || token.IsRegister(front, "abs")) &&
		len(tokens) > start+2 && token.Eq(tokens[start+1], token.Colon) {
		arg.forceAbs = true
		start += 2
		front = tokens[start]
	}

	if front.Kind == token.LP {
		end := token.FindBalanced(tokens, start)
		if end < 0 {
			return arg, token.Errorf(front, "Unbalanced %s", token.Name(front))
		}
		args := token.ArgList(tokens, start+1, end)
		if len(args) == 0 {
			return arg, token.Errorf(front, "Bad argument")
		}
		e, err := a.parseExpr(args[0], 0)
		if err != nil {
			return arg, err
		}
		arg.expr = e
		switch {
		case len(args) == 1 && len(tokens) > end+2 &&
			token.Eq(tokens[end+1], token.Comma) && token.IsRegister(tokens[end+2], "y"):
			arg.mode = argIndY
			return arg, token.ExpectEOL(tokens, end+3, "")
		case len(args) == 1:
			arg.mode = argInd
			return arg, token.ExpectEOL(tokens, end+1, "")
		case len(args) == 2 && len(args[1]) == 1 && token.IsRegister(args[1][0], "x"):
			arg.mode = argIndX
			return arg, token.ExpectEOL(tokens, end+1, "")
		}
		return arg, token.Errorf(front, "Bad argument")
	}

	args := token.ArgList(tokens, start, -1)
	e, err := a.parseExpr(args[0], 0)
	if err != nil {
		return arg, err
	}
	arg.expr = e
	switch {
	case len(args) == 1:
		arg.mode = argAddr
		return arg, nil
	case len(args) == 2 && len(args[1]) == 1 && token.IsRegister(args[1][0], "x"):
		arg.mode = argAddrX
		return arg, nil
	case len(args) == 2 && len(args[1]) == 1 && token.IsRegister(args[1][0], "y"):
		arg.mode = argAddrY
		return arg, nil
	}
	return arg, token.Errorf(front, "Bad argument")
}

func isRun(t token.Token) bool {
	return t.Kind == token.Op && (repeated(t.Str, '+') || repeated(t.Str, '-'))
}

//
// directives
//

type directiveFunc func(a *Assembler, tokens []token.Token) error

var directives = map[string]directiveFunc{
	".org":           (*Assembler).parseOrg,
	".reloc":         (*Assembler).parseReloc,
	".assert":        (*Assembler).parseAssert,
	".segment":       (*Assembler).parseSegment,
	".byte":          (*Assembler).parseByte,
	".res":           (*Assembler).parseRes,
	".word":          (*Assembler).parseWord,
	".free":          (*Assembler).parseFree,
	".segmentprefix": (*Assembler).parseSegmentPrefix,
	".import":        (*Assembler).parseImport,
	".export":        (*Assembler).parseExport,
	".scope":         (*Assembler).parseScope,
	".endscope":      (*Assembler).parseEndScope,
	".proc":          (*Assembler).parseProc,
	".endproc":       (*Assembler).parseEndProc,
	".pushseg":       (*Assembler).parsePushSeg,
	".popseg":        (*Assembler).parsePopSeg,
	".move":          (*Assembler).parseMove,
	".arch":          (*Assembler).parseArch,
}

// Directive assembles a line starting with a control sequence.
func (a *Assembler) Directive(tokens []token.Token) error {
	fn, ok := directives[strings.ToLower(tokens[0].Str)]
	if !ok {
		return errors.Errorf("Unknown directive: %s", token.NameAt(tokens[0]))
	}
	return fn(a, tokens)
}

func (a *Assembler) parseOrg(tokens []token.Token) error {
	addr, err := a.parseConst(tokens, 1)
	if err != nil {
		return err
	}
	a.Org(addr)
	return nil
}

func (a *Assembler) parseReloc(tokens []token.Token) error {
	if err := token.ExpectEOL(tokens, 1, ""); err != nil {
		return err
	}
	a.Reloc()
	return nil
}

func (a *Assembler) parseAssert(tokens []token.Token) error {
	e, err := a.parseExpr(tokens, 1)
	if err != nil {
		return err
	}
	return a.Assert(e)
}

func (a *Assembler) parseSegment(tokens []token.Token) error {
	names, err := a.parseSegmentList(tokens)
	if err != nil {
		return err
	}
	a.Segment(names...)
	return nil
}

func (a *Assembler) parsePushSeg(tokens []token.Token) error {
	names, err := a.parseSegmentList(tokens)
	if err != nil {
		return err
	}
	a.PushSeg(names...)
	return nil
}

func (a *Assembler) parsePopSeg(tokens []token.Token) error {
	if err := token.ExpectEOL(tokens, 1, ""); err != nil {
		return err
	}
	return a.PopSeg()
}

type segmentAttr byte

const (
	attrBank segmentAttr = iota
	attrSize
	attrOffset
	attrMemory
	attrAddressing
)

var segmentAttrs = prefixtree.New[segmentAttr]()

func init() {
	for name, attr := range map[string]segmentAttr{
		"bank":       attrBank,
		"size":       attrSize,
		"offset":     attrOffset,
		"memory":     attrMemory,
		"addressing": attrAddressing,
	} {
		segmentAttrs.Add(name, attr)
	}
}

// parseSegmentList parses a comma-separated list of segment names, each
// optionally followed by attributes such as `"code":bank 1:size $2000`.
// Attributes are merged into the segment declarations.
func (a *Assembler) parseSegmentList(tokens []token.Token) ([]string, error) {
	if len(tokens) < 2 {
		return nil, token.Errorf(tokens[0], "Expected a segment list")
	}
	var names []string
	for _, ts := range token.ArgList(tokens, 1, -1) {
		if len(ts) == 0 {
			return nil, token.Errorf(tokens[0], "Expected a segment list")
		}
		str, err := token.ExpectString(ts[0])
		if err != nil {
			return nil, err
		}
		name := a.prefix + str
		names = append(names, name)
		if len(ts) == 1 {
			continue
		}
		if !token.Eq(ts[1], token.Colon) {
			return nil, token.Errorf(ts[1], "Expected comma or colon: %s", token.Name(ts[1]))
		}
		attrs, err := token.AttrList(ts, 1)
		if err != nil {
			return nil, err
		}
		seg := &module.Segment{Name: name}
		for _, attr := range attrs {
			key, err := segmentAttrs.FindValue(strings.ToLower(attr.Key.Str))
			if err != nil {
				return nil, token.Errorf(attr.Key, "Unknown segment attr: %s", attr.Key.Str)
			}
			v, err := a.parseConst(attr.Value, 0)
			if err != nil {
				return nil, err
			}
			switch key {
			case attrBank:
				seg.Bank = expr.Int(v)
			case attrSize:
				seg.Size = expr.Int(v)
			case attrOffset:
				seg.Offset = expr.Int(v)
			case attrMemory:
				seg.Memory = expr.Int(v)
			case attrAddressing:
				seg.Addressing = expr.Int(v)
			}
		}
		a.ConfigureSegment(seg)
	}
	return names, nil
}

// parseDataList parses a comma-separated list of expressions, and strings
// if allowed.
func (a *Assembler) parseDataList(tokens []token.Token, allowString bool) ([]any, error) {
	if len(tokens) < 2 {
		return nil, token.Errorf(tokens[0], "Expected a data list")
	}
	var out []any
	for _, term := range token.ArgList(tokens, 1, -1) {
		if allowString && len(term) == 1 && term[0].Kind == token.String {
			out = append(out, term[0].Str)
			continue
		}
		e, err := a.parseExpr(term, 0)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (a *Assembler) parseByte(tokens []token.Token) error {
	data, err := a.parseDataList(tokens, true)
	if err != nil {
		return err
	}
	return a.Byte(data...)
}

func (a *Assembler) parseWord(tokens []token.Token) error {
	data, err := a.parseDataList(tokens, false)
	if err != nil {
		return err
	}
	return a.Word(data...)
}

func (a *Assembler) parseRes(tokens []token.Token) error {
	data, err := a.parseDataList(tokens, false)
	if err != nil {
		return err
	}
	if len(data) > 2 {
		return a.fail("Expected at most 2 args")
	}
	count, ok, err := a.Evaluate(data[0].(*expr.Expr))
	if err != nil {
		return err
	}
	if !ok {
		return a.fail("Expected constant count")
	}
	fill := 0
	if len(data) > 1 {
		if fill, ok, err = a.Evaluate(data[1].(*expr.Expr)); err != nil {
			return err
		}
		if !ok {
			return a.fail("Expected constant value")
		}
	}
	return a.Res(count, fill)
}

func (a *Assembler) parseFree(tokens []token.Token) error {
	size, err := a.parseConst(tokens, 1)
	if err != nil {
		return err
	}
	return a.Free(size)
}

func (a *Assembler) parseSegmentPrefix(tokens []token.Token) error {
	if len(tokens) < 2 {
		return token.Errorf(tokens[0], "Expected a single string")
	}
	prefix, err := token.ExpectString(tokens[1])
	if err != nil {
		return err
	}
	if err := token.ExpectEOL(tokens, 2, "a single string"); err != nil {
		return err
	}
	a.SegmentPrefix(prefix)
	return nil
}

func (a *Assembler) parseIdentifierList(tokens []token.Token) ([]string, error) {
	if len(tokens) < 2 {
		return nil, token.Errorf(tokens[0], "Expected identifier(s)")
	}
	var out []string
	for _, term := range token.ArgList(tokens, 1, -1) {
		if len(term) != 1 || term[0].Kind != token.Ident {
			if len(term) == 0 {
				return nil, token.Errorf(tokens[0], "Expected identifier")
			}
			return nil, token.Errorf(term[0], "Expected identifier: %s", token.Name(term[0]))
		}
		out = append(out, term[0].Str)
	}
	return out, nil
}

func (a *Assembler) parseImport(tokens []token.Token) error {
	names, err := a.parseIdentifierList(tokens)
	if err != nil {
		return err
	}
	a.Import(names...)
	return nil
}

func (a *Assembler) parseExport(tokens []token.Token) error {
	names, err := a.parseIdentifierList(tokens)
	if err != nil {
		return err
	}
	a.Export(names...)
	return nil
}

func (a *Assembler) parseScope(tokens []token.Token) error {
	name := ""
	if len(tokens) > 1 {
		var err error
		if name, err = token.ExpectIdentifier(tokens[1]); err != nil {
			return err
		}
		if err := token.ExpectEOL(tokens, 2, ""); err != nil {
			return err
		}
	}
	return a.Scope(name)
}

func (a *Assembler) parseEndScope(tokens []token.Token) error {
	if err := token.ExpectEOL(tokens, 1, ""); err != nil {
		return err
	}
	return a.EndScope()
}

func (a *Assembler) parseProc(tokens []token.Token) error {
	if len(tokens) < 2 {
		return token.Errorf(tokens[0], "Expected identifier")
	}
	name, err := token.ExpectIdentifier(tokens[1])
	if err != nil {
		return err
	}
	if err := token.ExpectEOL(tokens, 2, ""); err != nil {
		return err
	}
	return a.Proc(name)
}

func (a *Assembler) parseEndProc(tokens []token.Token) error {
	if err := token.ExpectEOL(tokens, 1, ""); err != nil {
		return err
	}
	return a.EndProc()
}

func (a *Assembler) parseMove(tokens []token.Token) error {
	args := token.ArgList(tokens, 1, -1)
	if len(args) != 2 {
		return a.fail("Expected constant number, then identifier")
	}
	size, err := a.parseConst(args[0], 0)
	if err != nil {
		return err
	}
	source, err := a.parseExpr(args[1], 0)
	if err != nil {
		return err
	}
	return a.Move(size, source)
}

func (a *Assembler) parseArch(tokens []token.Token) error {
	if len(tokens) < 2 {
		return token.Errorf(tokens[0], "Expected architecture")
	}
	t := tokens[1]
	var name string
	switch t.Kind {
	case token.String, token.Ident:
		name = t.Str
	case token.Number:
		name = strconv.Itoa(t.Num)
	}
	arch, ok := cpu.ParseArchitecture(name)
	switch strings.ToLower(name) {
	case "nmos":
		arch, ok = cpu.NMOS, true
	case "cmos":
		arch, ok = cpu.CMOS, true
	}
	if !ok {
		return token.Errorf(t, "Unknown architecture: %s", token.Name(t))
	}
	if err := token.ExpectEOL(tokens, 2, ""); err != nil {
		return err
	}
	a.SetArch(arch)
	return nil
}
