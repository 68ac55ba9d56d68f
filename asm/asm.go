// Copyright 2014-2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package asm implements a 6502 assembler that produces relocatable object
// modules for the linker.
package asm

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/beevik/asm65/cpu"
	"github.com/beevik/asm65/expr"
	"github.com/beevik/asm65/interval"
	"github.com/beevik/asm65/module"
	"github.com/beevik/asm65/token"
	"github.com/pkg/errors"
)

// Options control the behavior of the assembler.
type Options struct {
	Verbose         bool             // trace each line to Out
	ReentrantScopes bool             // allow a named scope to be opened again
	Arch            cpu.Architecture // initial instruction set
	Out             io.Writer        // verbose output, os.Stdout if nil
}

type globalKind byte

const (
	globalImport globalKind = iota
	globalExport
)

type global struct {
	name string
	kind globalKind
}

// segState is the segment context saved by .pushseg.
type segState struct {
	segments []string
	chunk    int
	org      *int
}

// An Assembler consumes token lines and produces an object module. Labels
// may be referenced before they are defined; such references become
// substitutions that the linker fills in.
type Assembler struct {
	opts      Options
	out       io.Writer
	set       *cpu.InstructionSet      // instructions on current arch
	arena     symbolArena              // every symbol, addressed by ID
	symbols   []symbolID               // promoted symbols, in module order
	globals   []global                 // .import and .export declarations
	scope     *scope                   // current lexical scope
	cheap     *cheapScope              // @-prefixed labels
	anonymous labelQueue               // `:` labels
	rts       labelQueue               // rts instructions
	relative  relativeTable            // `+` and `-` labels
	chunks    []*module.Chunk          // chunks in creation order
	cur       int                      // index of the current chunk, or -1
	org       *int                     // origin for the next chunk, nil if relocatable
	segments  []string                 // segments for new chunks
	segData   []*module.Segment        // segment declarations
	segIndex  map[string]int           // segment name -> segData index
	segStack  []segState               // saved by .pushseg
	prefix    string                   // .segmentprefix
	written   map[string]*interval.Set // by CPU address, per segment
	fileSpan  interval.Set             // by file offset
	source    *token.Source            // start of the line being assembled
	closed    bool                     // scopes have been closed
}

// New creates an assembler.
func New(opts Options) *Assembler {
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	a := &Assembler{
		opts:     opts,
		out:      out,
		set:      cpu.GetInstructionSet(opts.Arch),
		cur:      -1,
		segments: []string{"code"},
		segIndex: make(map[string]int),
		written:  make(map[string]*interval.Set),
	}
	a.scope = newScope(&a.arena, nil, scopeRoot)
	a.cheap = newCheapScope(&a.arena)
	return a
}

// Assemble reads assembly source from r and assembles it into a module.
func Assemble(r io.Reader, filename string, opts Options) (*module.Module, error) {
	a := New(opts)
	a.logSection(filename)

	tz := token.NewTokenizer(r, filename)
	for {
		line, err := tz.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if err := a.Line(line); err != nil {
			return nil, err
		}
	}
	return a.Module()
}

// AssembleFile assembles the file at path and writes the resulting module
// alongside it with an ".o" extension. It returns the path of the module.
func AssembleFile(path string, opts Options) (string, error) {
	inFile, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer inFile.Close()

	m, err := Assemble(inFile, path, opts)
	if err != nil {
		return "", err
	}

	ext := filepath.Ext(path)
	objPath := path[:len(path)-len(ext)] + ".o"
	if err := m.Save(objPath); err != nil {
		return "", err
	}
	return objPath, nil
}

//
// chunks
//

func (a *Assembler) chunk() *module.Chunk {
	if a.cur < 0 {
		c := &module.Chunk{Segments: a.segments}
		if a.org != nil {
			c.Org = expr.Int(*a.org)
		}
		a.chunks = append(a.chunks, c)
		a.cur = len(a.chunks) - 1
	}
	return a.chunks[a.cur]
}

// PC returns an expression for the current program counter. It is
// absolute if the current chunk has an origin.
func (a *Assembler) PC() *expr.Expr {
	c := a.chunk()
	e := expr.Offset(len(c.Data), a.cur)
	if c.Org != nil {
		e.Meta.Org = expr.Int(*c.Org)
	}
	return expr.Evaluate(e)
}

// emit appends bytes to the current chunk.
func (a *Assembler) emit(b ...byte) {
	c := a.chunk()
	a.markWritten(c, len(b))
	c.Data = append(c.Data, b...)
}

// markWritten records the address range about to be written so that a
// later .free of the same range is caught.
func (a *Assembler) markWritten(c *module.Chunk, n int) {
	if c.Org == nil || n == 0 {
		return
	}
	addr := *c.Org + len(c.Data)
	name := a.segmentAt(c.Segments, addr)
	if name == "" {
		return
	}
	set, pos := a.writtenAt(name, addr)
	set.Add(pos, pos+n)
}

// writtenAt returns the set recording writes to segment name and the
// position of addr within it. Segments with a declared file offset share a
// set keyed by file offset, so aliases of the same bytes see each other.
func (a *Assembler) writtenAt(name string, addr int) (*interval.Set, int) {
	if s := a.segment(name); s != nil && s.Offset != nil {
		mem := *s.Offset
		if s.Memory != nil {
			mem = *s.Memory
		}
		return &a.fileSpan, addr - mem + *s.Offset
	}
	set := a.written[name]
	if set == nil {
		set = new(interval.Set)
		a.written[name] = set
	}
	return set, addr
}

// segmentAt returns the unique segment among names that holds addr, or the
// empty string if there is none.
func (a *Assembler) segmentAt(names []string, addr int) string {
	if len(names) == 1 {
		return names[0]
	}
	found := ""
	for _, name := range names {
		s := a.segment(name)
		if s == nil || s.Memory == nil || s.Size == nil {
			continue
		}
		if addr < *s.Memory || addr >= *s.Memory+*s.Size {
			continue
		}
		if found != "" {
			return ""
		}
		found = name
	}
	return found
}

func (a *Assembler) segment(name string) *module.Segment {
	if i, ok := a.segIndex[name]; ok {
		return a.segData[i]
	}
	return nil
}

//
// symbols
//

// promote gives a symbol a module symbol index if it does not have one.
func (a *Assembler) promote(id symbolID) int {
	sym := a.arena.get(id)
	if sym.index < 0 {
		sym.index = len(a.symbols)
		a.symbols = append(a.symbols, id)
	}
	return sym.index
}

func (a *Assembler) placeholder() symbolID {
	id := a.arena.alloc()
	a.arena.get(id).ref = a.source
	a.promote(id)
	return id
}

func (a *Assembler) bind(id symbolID, e *expr.Expr) {
	if id != noSymbol {
		a.arena.get(id).expr = e
	}
}

func (a *Assembler) resolverFor(name string) symbolResolver {
	if strings.HasPrefix(name, "@") {
		return a.cheap
	}
	return a.scope
}

// Symbol returns the current value of a symbol, or a reference to it if it
// is not yet defined.
func (a *Assembler) Symbol(name string) (*expr.Expr, error) {
	if name == "*" {
		return a.PC(), nil
	}
	if ref, ok := parseLabelRef(name); ok {
		return a.labelRef(name, ref)
	}
	id, _, err := a.resolverFor(name).resolve(name, true)
	if err != nil {
		return nil, a.fail("%s", err.Error())
	}
	sym := a.arena.get(id)
	if sym.expr != nil {
		return sym.expr, nil
	}
	if sym.ref == nil {
		sym.ref = a.source
	}
	return expr.SymbolID(a.promote(id)), nil
}

func (a *Assembler) labelRef(name string, ref labelRef) (*expr.Expr, error) {
	switch ref.kind {
	case refAnonymous, refRts:
		q := &a.anonymous
		if ref.kind == refRts {
			q = &a.rts
		}
		if ref.forward {
			id := q.ahead(ref.dist, a.placeholder)
			return expr.SymbolID(a.arena.get(id).index), nil
		}
		if e, ok := q.behind(ref.dist); ok {
			return e, nil
		}
		if ref.kind == refRts {
			return nil, a.fail("Bad rts backref: %s", name)
		}
		return nil, a.fail("Bad anonymous backref: %s", name)

	default:
		if ref.forward {
			id := a.relative.ahead(ref.dist, a.placeholder)
			return expr.SymbolID(a.arena.get(id).index), nil
		}
		if e, ok := a.relative.behind(ref.dist); ok {
			return e, nil
		}
		return nil, a.fail("Bad relative backref: %s", name)
	}
}

// Resolve substitutes every known symbol in e and folds the result.
func (a *Assembler) Resolve(e *expr.Expr) (*expr.Expr, error) {
	return expr.Resolve(e, func(sym *expr.Expr) (*expr.Expr, error) {
		for sym.Op == expr.OpSym && sym.Sym != "" {
			r, err := a.Symbol(sym.Sym)
			if err != nil {
				return nil, err
			}
			sym = r
		}
		return sym, nil
	})
}

// Evaluate resolves e and returns its value if it is an absolute number.
func (a *Assembler) Evaluate(e *expr.Expr) (int, bool, error) {
	r, err := a.Resolve(e)
	if err != nil {
		return 0, false, err
	}
	v, ok := expr.Value(r)
	return v, ok, nil
}

// Label defines a label at the current program counter.
func (a *Assembler) Label(name string) error {
	pc := a.PC()
	pc.Source = a.source

	if name == ":" {
		a.bind(a.anonymous.define(pc), pc)
		return nil
	}
	if ref, ok := parseLabelRef(name); ok {
		if ref.kind != refRelative {
			return a.fail("Bad label: %s", name)
		}
		if ref.forward {
			a.bind(a.relative.defineForward(ref.dist), pc)
		} else {
			a.relative.defineBackward(ref.dist, pc)
		}
		return nil
	}

	if !strings.HasPrefix(name, "@") {
		if err := a.cheap.clear(); err != nil {
			return err
		}
		if c := a.chunk(); c.Name == "" && len(c.Data) == 0 {
			c.Name = name
		}
	}
	return a.assignSymbol(name, false, pc)
}

// Assign defines an immutable symbol.
func (a *Assembler) Assign(name string, e *expr.Expr) error {
	return a.define(name, false, e)
}

// Set defines or updates a mutable symbol, whose value must be a number.
func (a *Assembler) Set(name string, e *expr.Expr) error {
	return a.define(name, true, e)
}

func (a *Assembler) define(name string, mutable bool, e *expr.Expr) error {
	if strings.HasPrefix(name, "@") {
		return a.fail("Cheap locals may only be labels: %s", name)
	}
	e, err := a.Resolve(e)
	if err != nil {
		return err
	}
	return a.assignSymbol(name, mutable, e)
}

func (a *Assembler) assignSymbol(name string, mutable bool, e *expr.Expr) error {
	id, created, err := a.resolverFor(name).resolve(name, true)
	if err != nil {
		return a.fail("%s", err.Error())
	}
	sym := a.arena.get(id)
	switch {
	case created:
		sym.mutable = mutable
	case sym.mutable != mutable:
		return a.fail("Cannot change mutability of %s", name)
	}
	if mutable && !e.IsNum() {
		return a.fail("Mutable set requires constant")
	}
	if !mutable && sym.expr != nil {
		orig := ""
		if sym.expr.Source != nil {
			orig = "\nOriginally defined" + token.At(sym.expr.Source)
		}
		return errors.Errorf("Redefining symbol %s%s%s", name, token.At(a.source), orig)
	}
	sym.expr = e
	return nil
}

//
// emission
//

// appendExpr writes a size-byte value, or a placeholder and a
// substitution if the value is not yet known.
func (a *Assembler) appendExpr(e *expr.Expr, size int) error {
	e, err := a.Resolve(e)
	if err != nil {
		return err
	}
	if v, ok := expr.Value(e); ok {
		b, err := littleEndian(size, v)
		if err != nil {
			return a.fail("%s", err.Error())
		}
		a.emit(b...)
		return nil
	}
	c := a.chunk()
	c.Subs = append(c.Subs, &module.Substitution{Offset: len(c.Data), Size: size, Expr: e})
	a.emit(placeholder(size)...)
	return nil
}

func (a *Assembler) opcode(inst *cpu.Instruction, e *expr.Expr) error {
	arglen := int(inst.Length) - 1
	if arglen > 0 {
		var err error
		if e, err = a.Resolve(e); err != nil {
			return err
		}
	}
	a.emit(inst.Opcode)
	if arglen > 0 {
		if err := a.appendExpr(e, arglen); err != nil {
			return err
		}
	}
	if c := a.chunk(); c.Name == "" {
		c.Name = "Code"
	}
	return nil
}

// branch emits a branch whose operand is the distance from the end of
// the instruction to target.
func (a *Assembler) branch(inst *cpu.Instruction, target *expr.Expr) error {
	arglen := int(inst.Length) - 1
	c := a.chunk()
	next := expr.Offset(len(c.Data)+arglen+1, a.cur)
	if c.Org != nil {
		next.Meta.Org = expr.Int(*c.Org)
	}
	rel := expr.Binary(expr.OpSub, target, next)
	rel.Source = target.Source

	rel, err := a.Resolve(rel)
	if err != nil {
		return err
	}
	if v, ok := expr.Value(rel); ok && (v < -128 || v > 127) {
		return a.fail("Branch out of range: %d", v)
	}
	return a.opcode(inst, rel)
}

// Instruction assembles a single instruction line.
func (a *Assembler) Instruction(tokens []token.Token) error {
	mnemonic, err := token.ExpectIdentifier(tokens[0])
	if err != nil {
		return err
	}
	mnemonic = strings.ToLower(mnemonic)
	if !a.set.IsMnemonic(mnemonic) {
		return token.Errorf(tokens[0], "Unknown mnemonic: %s", mnemonic)
	}

	arg, err := a.parseArg(tokens, 1)
	if err != nil {
		return err
	}
	if arg.expr != nil {
		if arg.expr, err = a.Resolve(arg.expr); err != nil {
			return err
		}
	}

	find := func(m cpu.Mode) *cpu.Instruction {
		return a.set.Find(mnemonic, m)
	}

	switch arg.mode {
	case argAddr, argAddrX, argAddrY:
		size := arg.expr.Size()
		if size == 0 || arg.forceAbs {
			size = 2
		}
		zp, abs := cpu.ZPG, cpu.ABS
		switch arg.mode {
		case argAddrX:
			zp, abs = cpu.ZPX, cpu.ABX
		case argAddrY:
			zp, abs = cpu.ZPY, cpu.ABY
		}
		if inst := find(zp); size == 1 && inst != nil {
			return a.opcode(inst, arg.expr)
		}
		if inst := find(abs); inst != nil {
			return a.opcode(inst, arg.expr)
		}
		if inst := find(cpu.REL); arg.mode == argAddr && inst != nil {
			return a.branch(inst, arg.expr)
		}

	case argImp:
		inst := find(cpu.IMP)
		if inst == nil {
			inst = find(cpu.ACC)
		}
		if inst != nil {
			if mnemonic == "rts" {
				pc := a.PC()
				pc.Source = a.source
				a.bind(a.rts.define(pc), pc)
			}
			return a.opcode(inst, nil)
		}

	default:
		if inst := find(arg.mode.cpuMode()); inst != nil {
			return a.opcode(inst, arg.expr)
		}
	}
	return a.fail("Bad address mode %s for %s", arg.mode, mnemonic)
}

//
// directives
//

// Org starts a new chunk at a fixed address. An origin equal to the
// current program counter continues the current chunk.
func (a *Assembler) Org(addr int) {
	if a.cur >= 0 {
		c := a.chunks[a.cur]
		if c.Org != nil && *c.Org+len(c.Data) == addr {
			return
		}
	}
	a.org = expr.Int(addr)
	a.cur = -1
}

// Reloc starts a new relocatable chunk.
func (a *Assembler) Reloc() {
	a.org = nil
	a.cur = -1
}

// Segment selects the segments in which subsequent chunks may be placed.
func (a *Assembler) Segment(names ...string) {
	a.segments = append([]string(nil), names...)
	a.cur = -1
}

// ConfigureSegment merges attributes into a segment's declaration.
func (a *Assembler) ConfigureSegment(seg *module.Segment) {
	if i, ok := a.segIndex[seg.Name]; ok {
		a.segData[i] = module.MergeSegments(a.segData[i], seg)
		return
	}
	a.segIndex[seg.Name] = len(a.segData)
	a.segData = append(a.segData, module.MergeSegments(&module.Segment{Name: seg.Name}, seg))
}

// PushSeg saves the segment context and selects new segments.
func (a *Assembler) PushSeg(names ...string) {
	a.segStack = append(a.segStack, segState{a.segments, a.cur, a.org})
	a.Segment(names...)
}

// PopSeg restores the segment context saved by PushSeg.
func (a *Assembler) PopSeg() error {
	n := len(a.segStack)
	if n == 0 {
		return a.fail(".popseg without .pushseg")
	}
	s := a.segStack[n-1]
	a.segStack = a.segStack[:n-1]
	a.segments, a.cur, a.org = s.segments, s.chunk, s.org
	return nil
}

// SegmentPrefix sets a prefix applied to segment names in directives.
func (a *Assembler) SegmentPrefix(prefix string) {
	a.prefix = prefix
}

// Assert checks that e is nonzero, deferring the check to the linker if
// its value is not yet known.
func (a *Assembler) Assert(e *expr.Expr) error {
	e, err := a.Resolve(e)
	if err != nil {
		return err
	}
	if v, ok := expr.Value(e); ok {
		if v != 0 {
			return nil
		}
		pc := ""
		if c := a.chunk(); c.Org != nil {
			pc = fmt.Sprintf(" (PC=$%x)", *c.Org+len(c.Data))
		}
		if e.Source != nil {
			return errors.New("Assertion failed" + pc + token.At(e.Source))
		}
		return a.fail("Assertion failed%s", pc)
	}
	c := a.chunk()
	c.Asserts = append(c.Asserts, e)
	return nil
}

// Byte emits bytes. Each value may be an int, a string or an expression.
func (a *Assembler) Byte(values ...any) error {
	for _, v := range values {
		var err error
		switch v := v.(type) {
		case int:
			err = a.appendExpr(expr.Number(v), 1)
		case string:
			a.emit([]byte(v)...)
		case *expr.Expr:
			err = a.appendExpr(v, 1)
		default:
			err = a.fail("Bad byte value: %v", v)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Word emits little-endian words. Each value may be an int or an
// expression.
func (a *Assembler) Word(values ...any) error {
	for _, v := range values {
		var err error
		switch v := v.(type) {
		case int:
			err = a.appendExpr(expr.Number(v), 2)
		case *expr.Expr:
			err = a.appendExpr(v, 2)
		default:
			err = a.fail("Bad word value: %v", v)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Res reserves count bytes filled with fill.
func (a *Assembler) Res(count, fill int) error {
	if count <= 0 {
		return nil
	}
	b, err := littleEndian(1, fill)
	if err != nil {
		return a.fail("%s", err.Error())
	}
	for i := 0; i < count; i++ {
		a.emit(b...)
	}
	return nil
}

// Free declares size bytes at the current origin as unused, making them
// available to the linker. The current chunk is closed.
func (a *Assembler) Free(size int) error {
	if a.org == nil {
		return a.fail(".free in .reloc mode")
	}
	org := *a.org
	segs := a.segments
	if len(segs) > 1 {
		segs = nil
		for _, name := range a.segments {
			s := a.segment(name)
			if s == nil || s.Memory == nil || s.Size == nil {
				continue
			}
			if *s.Memory > org || *s.Memory+*s.Size <= org {
				continue
			}
			segs = append(segs, name)
		}
	}
	switch {
	case len(segs) != 1:
		return a.fail(".free with non-unique segment: %s", strings.Join(a.segments, ","))
	case size < 0:
		return a.fail(".free with negative size: %d", size)
	}

	if a.cur >= 0 {
		org += len(a.chunks[a.cur].Data)
	}
	a.cur = -1

	name := segs[0]
	if w, pos := a.writtenAt(name, org); w.Overlaps(pos, pos+size) {
		return a.fail(".free overlaps written data: [$%x, $%x)", org, org+size)
	}
	s := a.segment(name)
	if s == nil {
		a.ConfigureSegment(&module.Segment{Name: name})
		s = a.segment(name)
	}
	s.Free = append(s.Free, [2]int{org, org + size})
	a.org = expr.Int(org + size)
	return nil
}

// Import declares names defined by another module.
func (a *Assembler) Import(names ...string) {
	a.declare(globalImport, names)
}

// Export declares names made available to other modules.
func (a *Assembler) Export(names ...string) {
	a.declare(globalExport, names)
}

func (a *Assembler) declare(kind globalKind, names []string) {
outer:
	for _, name := range names {
		for i := range a.globals {
			if a.globals[i].name == name {
				a.globals[i].kind = kind
				continue outer
			}
		}
		a.globals = append(a.globals, global{name, kind})
	}
}

// Scope opens a new scope. The name may be empty for an anonymous scope.
func (a *Assembler) Scope(name string) error {
	return a.enterScope(name, scopeScope)
}

// EndScope closes a scope opened by Scope.
func (a *Assembler) EndScope() error {
	return a.exitScope(scopeScope)
}

// Proc defines a label and opens a scope of the same name.
func (a *Assembler) Proc(name string) error {
	if err := a.Label(name); err != nil {
		return err
	}
	return a.enterScope(name, scopeProc)
}

// EndProc closes a scope opened by Proc.
func (a *Assembler) EndProc() error {
	return a.exitScope(scopeProc)
}

func (a *Assembler) enterScope(name string, kind scopeKind) error {
	if name != "" {
		if existing, ok := a.scope.children[name]; ok {
			if !a.opts.ReentrantScopes {
				return a.fail("Cannot re-enter scope %s", name)
			}
			a.scope = existing
			return nil
		}
	}
	child := newScope(&a.arena, a.scope, kind)
	a.scope.addChild(name, child)
	a.scope = child
	return nil
}

func (a *Assembler) exitScope(kind scopeKind) error {
	if a.scope.kind != kind || a.scope.parent == nil {
		k := scopeKindName[kind]
		return a.fail(".end%s without .%s", k, k)
	}
	a.scope = a.scope.parent
	return nil
}

// Move emits size bytes copied from the base image at the address of
// source, once the linker knows it.
func (a *Assembler) Move(size int, source *expr.Expr) error {
	src, err := a.Resolve(source)
	if err != nil {
		return err
	}
	if !src.IsNum() || src.Meta == nil || src.Meta.Chunk == nil {
		return a.fail("Expected a constant offset")
	}
	mv := &expr.Expr{Op: expr.OpMove, Args: []*expr.Expr{src}, Meta: &expr.Meta{Size: size}}
	return a.appendExpr(mv, size)
}

// SetArch selects the instruction set for subsequent instructions.
func (a *Assembler) SetArch(arch cpu.Architecture) {
	a.set = cpu.GetInstructionSet(arch)
}

//
// closing
//

func (a *Assembler) closeScope(s *scope) error {
	for _, name := range s.childList {
		if err := a.closeScope(s.children[name]); err != nil {
			return err
		}
	}
	for _, child := range s.anonymous {
		if err := a.closeScope(child); err != nil {
			return err
		}
	}
	if s.parent == nil {
		return nil
	}
	for _, name := range s.symbols.names {
		id := s.symbols.ids[name]
		sym := a.arena.get(id)
		if sym.expr != nil || sym.index < 0 {
			continue
		}
		if sym.scoped {
			return errors.Errorf("Symbol '%s' undefined%s", name, token.At(sym.ref))
		}
		pid, ok := s.parent.symbols.get(name)
		if !ok {
			s.parent.symbols.set(name, id)
			continue
		}
		parent := a.arena.get(pid)
		switch {
		case parent.index >= 0 && !parent.mutable:
			sym.expr = expr.SymbolID(parent.index)
		case parent.expr != nil:
			sym.expr = parent.expr
		default:
			return errors.Errorf("Impossible: %s", name)
		}
	}
	return nil
}

// CloseScopes resolves symbols left undefined in inner scopes against
// their enclosing scopes, then applies imports and exports. It is called
// by Module and does nothing once it has succeeded.
func (a *Assembler) CloseScopes() error {
	if a.closed {
		return nil
	}
	if err := a.cheap.clear(); err != nil {
		return err
	}
	if a.scope.parent != nil {
		return a.fail("Scope never closed")
	}
	root := a.scope
	if err := a.closeScope(root); err != nil {
		return err
	}

	for _, g := range a.globals {
		id, ok := root.symbols.get(g.name)
		switch g.kind {
		case globalExport:
			if !ok || a.arena.get(id).expr == nil {
				return errors.Errorf("Symbol '%s' undefined", g.name)
			}
			a.promote(id)
			a.arena.get(id).export = g.name
		case globalImport:
			if !ok {
				continue
			}
			sym := a.arena.get(id)
			if sym.expr != nil {
				return errors.Errorf("Already defined: %s", g.name)
			}
			sym.expr = &expr.Expr{Op: expr.OpImport, Sym: g.name}
		}
	}

	for _, name := range root.symbols.names {
		sym := a.arena.get(root.symbols.ids[name])
		if sym.expr == nil {
			return errors.Errorf("Symbol '%s' undefined%s", name, token.At(sym.ref))
		}
	}
	a.closed = true
	return nil
}

// Module finishes assembly and returns the object module.
func (a *Assembler) Module() (*module.Module, error) {
	if err := a.CloseScopes(); err != nil {
		return nil, err
	}

	m := &module.Module{}
	for _, c := range a.chunks {
		cc := *c
		cc.Data = append([]byte{}, c.Data...)
		m.Chunks = append(m.Chunks, &cc)
	}
	for _, id := range a.symbols {
		sym := a.arena.get(id)
		if sym.expr == nil {
			return nil, errors.New("Symbol undefined" + token.At(sym.ref))
		}
		m.Symbols = append(m.Symbols, &module.Symbol{Export: sym.export, Expr: sym.expr})
	}
	m.Segments = append(m.Segments, a.segData...)

	a.logModule(m)
	return m, nil
}

//
// errors and logging
//

// fail returns an error located at the current line.
func (a *Assembler) fail(format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	if a.source == nil && a.cur >= 0 && a.chunks[a.cur].Name != "" {
		return errors.New(msg + "\n  in " + a.chunks[a.cur].Name)
	}
	return errors.New(msg + token.At(a.source))
}

func (a *Assembler) log(format string, args ...any) {
	if a.opts.Verbose {
		fmt.Fprintf(a.out, format, args...)
		fmt.Fprintf(a.out, "\n")
	}
}

func (a *Assembler) logLine(tokens []token.Token) {
	if a.opts.Verbose && len(tokens) > 0 {
		row, col := 0, 0
		if s := tokens[0].Source; s != nil {
			row, col = s.Line, s.Column
		}
		fmt.Fprintf(a.out, "%-3d %-3d | %s\n", row, col, tokenString(tokens))
	}
}

func (a *Assembler) logBytes(addr int, rel bool, b []byte) {
	if a.opts.Verbose {
		mark := ' '
		if rel {
			mark = '+'
		}
		for i, n := 0, len(b); i < n; i += 3 {
			j := min(i+3, n)
			a.log("%c%04X-*  %s", mark, addr+i, byteString(b[i:j]))
		}
	}
}

func (a *Assembler) logSection(name string) {
	if a.opts.Verbose {
		fmt.Fprintln(a.out, strings.Repeat("-", len(name)+6))
		fmt.Fprintf(a.out, "-- %s --\n", name)
		fmt.Fprintln(a.out, strings.Repeat("-", len(name)+6))
	}
}

func (a *Assembler) logModule(m *module.Module) {
	if !a.opts.Verbose {
		return
	}
	a.logSection("Module")
	for i, c := range m.Chunks {
		org := "reloc"
		if c.Org != nil {
			org = fmt.Sprintf("$%04X", *c.Org)
		}
		a.log("chunk %d %-12s %-6s %4d bytes  %d subs  [%s]",
			i, c.Name, org, len(c.Data), len(c.Subs), strings.Join(c.Segments, ","))
	}
	for i, s := range m.Symbols {
		a.log("sym %d %s = %s", i, s.Export, s.Expr)
	}
	for _, s := range m.Segments {
		a.log("segment %s", s)
	}
}
