// Copyright 2014-2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package link

import (
	"github.com/beevik/asm65/expr"
	"github.com/beevik/asm65/module"
	"github.com/beevik/asm65/token"
	"github.com/pkg/errors"
)

// resolve rewrites e with every symbol dereferenced and every address in a
// placed chunk made absolute, then folds what it can. It also returns the
// unplaced chunks the result still depends on. ctx is the chunk holding
// the expression, or nil.
func (l *Linker) resolve(e *expr.Expr, ctx *chunk) (*expr.Expr, []int, error) {
	r := resolver{l: l, ctx: ctx, visiting: make(map[int]bool)}
	out, err := r.walk(e)
	if err != nil {
		return nil, nil, err
	}
	return out, r.deps, nil
}

type resolver struct {
	l        *Linker
	ctx      *chunk
	deps     []int
	visiting map[int]bool // symbols being dereferenced
}

func (r *resolver) walk(e *expr.Expr) (*expr.Expr, error) {
	return expr.TraversePost(e, r.visit)
}

func (r *resolver) visit(n *expr.Expr) (*expr.Expr, error) {
	switch n.Op {
	case expr.OpSym, expr.OpImport:
		return r.deref(n)
	case expr.OpNum:
		return r.anchor(n), nil
	case expr.OpBankByte:
		return r.bank(n)
	case expr.OpMove:
		return n, nil
	case expr.OpByteAt, expr.OpWordAt:
		return r.peek(n)
	}
	return expr.Evaluate(n), nil
}

func (r *resolver) addDep(i int) {
	if r.ctx == nil || i != r.ctx.index {
		r.deps = appendUnique(r.deps, i)
	}
}

// deref replaces a symbol or import with the resolved value of the module
// symbol it names. Resolved values are stored back into the symbol table.
func (r *resolver) deref(n *expr.Expr) (*expr.Expr, error) {
	l := r.l
	var i int
	switch {
	case n.Op == expr.OpImport:
		idx, ok := l.exports[n.Sym]
		if !ok {
			return nil, errors.Errorf("Symbol never exported %s%s", n.Sym, at(n))
		}
		i = idx
	case n.Sym != "":
		return nil, errors.Errorf("Symbol not global: %s%s", n.Sym, at(n))
	default:
		i = n.Num
	}
	if i < 0 || i >= len(l.symbols) || l.symbols[i] == nil {
		return nil, errors.Errorf("Symbol %d never resolved", i)
	}
	if r.visiting[i] {
		return nil, errors.Errorf("Circular symbol reference%s", at(n))
	}
	r.visiting[i] = true
	v, err := r.walk(l.symbols[i])
	delete(r.visiting, i)
	if err != nil {
		return nil, err
	}
	l.symbols[i] = v
	return v, nil
}

// anchor makes an address absolute once its chunk is placed. An address
// in an unplaced chunk becomes a dependency.
func (r *resolver) anchor(n *expr.Expr) *expr.Expr {
	m := n.Meta
	if m == nil || m.Chunk == nil || m.Offset != nil {
		return expr.Evaluate(n)
	}
	c := r.l.chunks[*m.Chunk]
	if !c.placed {
		if m.Rel {
			r.addDep(c.index)
		}
		return n
	}
	a := *m
	if a.Rel {
		a.Org = expr.Int(c.org)
	}
	a.Offset = expr.Int(c.offset)
	a.Bank = c.seg.Bank
	out := *n
	out.Meta = &a
	return expr.Evaluate(&out)
}

// bank folds a bank byte. The bank is known before placement when every
// segment the chunk may go to agrees on it.
func (r *resolver) bank(n *expr.Expr) (*expr.Expr, error) {
	arg := n.Args[0]
	if !arg.IsNum() {
		return n, nil
	}
	if arg.Meta == nil || arg.Meta.Chunk == nil {
		return nil, errors.Errorf("Cannot get bank of non-address: %s%s", arg, at(n))
	}
	c := r.l.chunks[*arg.Meta.Chunk]
	if c.placed {
		if c.seg.Bank == nil {
			return nil, errors.Errorf("Segment has no bank data: %s%s", c.seg.Name, at(n))
		}
		return expr.Number(*c.seg.Bank), nil
	}
	var bank *int
	for _, name := range c.segments {
		s, ok := r.l.segments[name]
		if !ok || s.Bank == nil || (bank != nil && *bank != *s.Bank) {
			return n, nil
		}
		bank = s.Bank
	}
	if bank == nil {
		return n, nil
	}
	return expr.Number(*bank), nil
}

// peek folds .byteat and .wordat once the addressed bytes are settled in
// the working image.
func (r *resolver) peek(n *expr.Expr) (*expr.Expr, error) {
	if len(n.Args) != 1 {
		return nil, errors.Errorf("Expected one argument to %s%s", n.Op, at(n))
	}
	arg := n.Args[0]
	if !arg.IsAbs() {
		return n, nil
	}
	off, ok := r.l.fileOffset(arg, r.ctx)
	if !ok {
		return n, nil
	}
	size := 1
	if n.Op == expr.OpWordAt {
		size = 2
	}
	b, ok := r.l.image.read(off, size)
	if !ok {
		return n, nil
	}
	v := 0
	for i := size - 1; i >= 0; i-- {
		v = v<<8 | int(b[i])
	}
	return expr.Number(v), nil
}

// fileOffset converts an absolute CPU address to a file offset, using the
// chunk the address was defined in or else the segment of ctx.
func (l *Linker) fileOffset(e *expr.Expr, ctx *chunk) (int, bool) {
	if m := e.Meta; m != nil && m.Chunk != nil {
		c := l.chunks[*m.Chunk]
		if !c.placed {
			return 0, false
		}
		return e.Num - c.org + c.offset, true
	}
	if ctx == nil || !ctx.placed {
		return 0, false
	}
	return e.Num + ctx.seg.delta(), true
}

// resolveSubs resolves the pending substitutions of c, writing each one
// whose value is known. It returns the chunks the rest depend on.
func (l *Linker) resolveSubs(c *chunk) ([]int, error) {
	var deps []int
	pending := c.subs[:0]
	for _, sub := range c.subs {
		e, d, err := l.resolve(sub.Expr, c)
		if err != nil {
			return nil, err
		}
		sub.Expr = e
		done, err := l.writeSub(c, sub)
		if err != nil {
			return nil, err
		}
		if done {
			continue
		}
		pending = append(pending, sub)
		for _, i := range d {
			deps = appendUnique(deps, i)
		}
	}
	c.subs = pending
	return deps, nil
}

// writeSub stores the value of a resolved substitution into the chunk and
// the working image. It reports false if the value is not yet known.
func (l *Linker) writeSub(c *chunk, sub *module.Substitution) (bool, error) {
	var b []byte
	switch e := sub.Expr; {
	case e.Op == expr.OpMove:
		src := e.Args[0]
		if !src.IsAbs() {
			return false, nil
		}
		off, ok := l.fileOffset(src, c)
		if !ok {
			return false, nil
		}
		start := off - l.baseOff
		if start < 0 || start+sub.Size > len(l.base) {
			return false, errors.Errorf("Move source $%x outside of base image%s", src.Num, at(e))
		}
		b = l.base[start : start+sub.Size]
	default:
		v, ok := expr.Value(e)
		if !ok {
			return false, nil
		}
		enc, err := littleEndian(sub.Size, v)
		if err != nil {
			return false, errors.Errorf("%s at $%x%s", err, c.addr(sub.Offset), at(e))
		}
		b = enc
	}
	copy(c.data[sub.Offset:], b)
	if c.placed && !c.overlaps {
		l.image.write(c.offset+sub.Offset, b)
	}
	return true, nil
}

// resolveSymbols resolves every module symbol and every substitution as
// far as the fixed chunks allow.
func (l *Linker) resolveSymbols() error {
	l.logSection("Resolve")
	for i, s := range l.symbols {
		e, _, err := l.resolve(s, nil)
		if err != nil {
			return err
		}
		l.symbols[i] = e
	}
	for _, c := range l.chunks {
		if _, err := l.resolveSubs(c); err != nil {
			return err
		}
		if len(c.subs) > 0 {
			l.log("%-16s %d pending", c.name, len(c.subs))
		}
	}
	return nil
}

// resolveRemaining repeats resolution over every chunk until no more
// substitutions can be written.
func (l *Linker) resolveRemaining() error {
	remaining := -1
	for {
		n := 0
		for _, c := range l.chunks {
			if _, err := l.resolveSubs(c); err != nil {
				return err
			}
			n += len(c.subs)
		}
		if n == 0 {
			return nil
		}
		if n == remaining {
			break
		}
		remaining = n
	}
	for _, c := range l.chunks {
		if len(c.subs) > 0 {
			e := c.subs[0].Expr
			return errors.Errorf("Unable to fully resolve expr %s%s", e, at(e))
		}
	}
	return nil
}

// checkAsserts evaluates the assertions of every chunk.
func (l *Linker) checkAsserts() error {
	for _, c := range l.chunks {
		for _, a := range c.asserts {
			e, _, err := l.resolve(a, c)
			if err != nil {
				return err
			}
			v, ok := expr.Value(e)
			if !ok {
				return errors.Errorf("Unable to fully resolve expr %s%s", e, at(a))
			}
			if v == 0 {
				return errors.Errorf("Assertion failed in %s at $%x%s", c.name, c.org, at(a))
			}
		}
	}
	return nil
}

func at(e *expr.Expr) string {
	if e == nil || e.Source == nil {
		return ""
	}
	return token.At(e.Source)
}

func appendUnique(list []int, i int) []int {
	for _, v := range list {
		if v == i {
			return list
		}
	}
	return append(list, i)
}
