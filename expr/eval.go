// Copyright 2014-2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package expr

// Evaluate folds a single node whose arguments have already been
// evaluated. Nodes that cannot be folded yet are returned unchanged.
func Evaluate(e *Expr) *Expr {
	switch e.Op {
	case OpMove, OpImport, OpSym, OpByteAt, OpWordAt:
		return e
	case OpNum:
		m := e.Meta
		if m.rel() && m.Org != nil {
			c := m.clone()
			c.Rel = false
			return &Expr{Op: OpNum, Num: e.Num + *m.Org, Meta: c, Source: e.Source}
		}
		return e
	case OpMax:
		return sameChunk(e, func(a, b int) bool { return a > b })
	case OpMin:
		return sameChunk(e, func(a, b int) bool { return a < b })
	case OpPos:
		return e.Args[0]
	case OpBankByte:
		if m := e.Args[0].Meta; m != nil && m.Bank != nil {
			return Number(*m.Bank)
		}
		return e
	case OpAdd:
		return plus(e)
	case OpSub:
		return minus(e)
	case OpDiv, OpMod:
		if b := e.Args[1]; b.IsAbs() && b.Num == 0 {
			return e
		}
	}

	if e.Op.IsUnary() {
		a := e.Args[0]
		if !a.IsAbs() {
			return e
		}
		return Number(ops[e.Op].eval(a.Num, 0))
	}

	a, b := e.Args[0], e.Args[1]
	if !a.IsAbs() || !b.IsAbs() {
		return e
	}
	return Number(ops[e.Op].eval(a.Num, b.Num))
}

// sameChunk folds a variadic selection over absolute numbers, or over
// relative numbers that all lie in the same chunk.
func sameChunk(e *Expr, better func(a, b int) bool) *Expr {
	if len(e.Args) == 0 {
		return e
	}
	first := e.Args[0]
	if !first.IsNum() {
		return e
	}
	best := first
	for _, a := range e.Args[1:] {
		if !a.IsNum() || a.Meta.rel() != first.Meta.rel() {
			return e
		}
		if first.Meta.rel() && !SameChunk(first.Meta, a.Meta) {
			return e
		}
		if better(a.Num, best.Num) {
			best = a
		}
	}
	if first.Meta.rel() {
		return &Expr{Op: OpNum, Num: best.Num, Meta: best.Meta}
	}
	return Number(best.Num)
}

func plus(e *Expr) *Expr {
	a, b := e.Args[0], e.Args[1]
	if !a.IsNum() || !b.IsNum() {
		return e
	}
	if a.Meta.rel() && b.Meta.rel() {
		return e
	}
	out := &Expr{Op: OpNum, Num: a.Num + b.Num}
	switch {
	case a.Meta.rel():
		out.Meta = a.Meta
	case b.Meta.rel():
		out.Meta = b.Meta
	default:
		out.Meta = anchored(a.Meta, b.Meta, out.Num)
	}
	return out
}

func minus(e *Expr) *Expr {
	a, b := e.Args[0], e.Args[1]
	if !a.IsNum() || !b.IsNum() {
		return e
	}
	out := &Expr{Op: OpNum, Num: a.Num - b.Num}
	if b.Meta.rel() {
		if a.Meta.rel() && SameChunk(a.Meta, b.Meta) {
			return out
		}
		return e
	}
	if a.Meta.rel() {
		out.Meta = a.Meta
	} else {
		out.Meta = anchored(a.Meta, nil, out.Num)
		if b.Meta != nil && b.Meta.Chunk != nil {
			out.Meta = &Meta{Size: sizeOf(out.Num)}
		}
	}
	return out
}

// anchored returns the meta for the sum of two absolute values. An address
// offset by a plain number stays tied to its chunk.
func anchored(a, b *Meta, n int) *Meta {
	switch {
	case a != nil && a.Chunk != nil && (b == nil || b.Chunk == nil):
		return a
	case b != nil && b.Chunk != nil && (a == nil || a.Chunk == nil):
		return b
	}
	return &Meta{Size: sizeOf(n)}
}

// A Visitor rewrites a single node during a traversal. Calling rec
// rewrites the node's children and returns a copy holding the results.
// The parent is nil at the root.
type Visitor func(e *Expr, rec func(*Expr) (*Expr, error), parent *Expr) (*Expr, error)

// Traverse rewrites the tree rooted at e by calling f on each node, which
// decides whether and when to descend. The input tree is never modified.
func Traverse(e *Expr, f Visitor) (*Expr, error) {
	return traverse(e, f, nil)
}

func traverse(e *Expr, f Visitor, parent *Expr) (*Expr, error) {
	rec := func(n *Expr) (*Expr, error) {
		if len(n.Args) == 0 {
			return n, nil
		}
		args := make([]*Expr, len(n.Args))
		for i, c := range n.Args {
			r, err := traverse(c, f, n)
			if err != nil {
				return nil, err
			}
			args[i] = r
		}
		out := n.shallow()
		out.Args = args
		return out, nil
	}
	out, err := f(e, rec, parent)
	if err != nil {
		return nil, err
	}
	if out != nil && out.Source == nil && e.Source != nil {
		out = out.shallow()
		out.Source = e.Source
	}
	return out, nil
}

// TraversePost rewrites the tree bottom-up, calling f on each node after
// its children have been rewritten.
func TraversePost(e *Expr, f func(*Expr) (*Expr, error)) (*Expr, error) {
	return Traverse(e, func(n *Expr, rec func(*Expr) (*Expr, error), _ *Expr) (*Expr, error) {
		n, err := rec(n)
		if err != nil {
			return nil, err
		}
		return f(n)
	})
}

// Fold evaluates every node of the tree bottom-up.
func Fold(e *Expr) *Expr {
	out, _ := TraversePost(e, func(n *Expr) (*Expr, error) {
		return Evaluate(n), nil
	})
	return out
}

// A Lookup maps a named symbol reference to its current definition. It
// returns the node unchanged if the symbol cannot be resolved yet.
type Lookup func(sym *Expr) (*Expr, error)

// Resolve replaces symbol references through lookup and folds the result.
// Resolving an already-resolved tree returns an equivalent tree.
func Resolve(e *Expr, lookup Lookup) (*Expr, error) {
	return TraversePost(e, func(n *Expr) (*Expr, error) {
		if n.Op == OpSym && n.Sym != "" {
			r, err := lookup(n)
			if err != nil {
				return nil, err
			}
			n = r
		}
		return Evaluate(n), nil
	})
}
