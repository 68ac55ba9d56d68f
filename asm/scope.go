// Copyright 2014-2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package asm

import (
	"strings"

	"github.com/beevik/asm65/expr"
	"github.com/beevik/asm65/token"
	"github.com/pkg/errors"
)

// A symbolID addresses a symbol in the assembler's symbol arena.
type symbolID int

const noSymbol symbolID = -1

// A symbol is a named or anonymous value known to the assembler.
type symbol struct {
	index   int           // module symbol index, or -1 until promoted
	mutable bool          // assigned with .set
	scoped  bool          // referenced with an explicit scope path
	expr    *expr.Expr    // value, once defined
	export  string        // exported name, if any
	ref     *token.Source // first reference, for diagnostics
}

// A symbolArena owns every symbol created during assembly. Scopes refer to
// symbols by ID so that a symbol can be moved between scopes without
// copying.
type symbolArena struct {
	syms []*symbol
}

func (ar *symbolArena) alloc() symbolID {
	ar.syms = append(ar.syms, &symbol{index: -1})
	return symbolID(len(ar.syms) - 1)
}

func (ar *symbolArena) get(id symbolID) *symbol {
	return ar.syms[id]
}

// A symbolMap maps names to symbols, remembering insertion order so that
// scopes close deterministically.
type symbolMap struct {
	ids   map[string]symbolID
	names []string
}

func newSymbolMap() symbolMap {
	return symbolMap{ids: make(map[string]symbolID)}
}

func (m *symbolMap) get(name string) (symbolID, bool) {
	id, ok := m.ids[name]
	return id, ok
}

func (m *symbolMap) set(name string, id symbolID) {
	if _, ok := m.ids[name]; !ok {
		m.names = append(m.names, name)
	}
	m.ids[name] = id
}

func (m *symbolMap) clear() {
	m.ids = make(map[string]symbolID)
	m.names = nil
}

type scopeKind byte

const (
	scopeRoot scopeKind = iota
	scopeScope
	scopeProc
)

var scopeKindName = []string{"", "scope", "proc"}

// A scope is a node in the lexical scope tree.
type scope struct {
	arena     *symbolArena
	parent    *scope
	global    *scope
	kind      scopeKind
	children  map[string]*scope
	childList []string
	anonymous []*scope
	symbols   symbolMap
}

func newScope(arena *symbolArena, parent *scope, kind scopeKind) *scope {
	s := &scope{
		arena:    arena,
		parent:   parent,
		kind:     kind,
		children: make(map[string]*scope),
		symbols:  newSymbolMap(),
	}
	if parent != nil {
		s.global = parent.global
	} else {
		s.global = s
	}
	return s
}

func (s *scope) addChild(name string, child *scope) {
	if name == "" {
		s.anonymous = append(s.anonymous, child)
		return
	}
	s.children[name] = child
	s.childList = append(s.childList, name)
}

// pickScope splits a possibly-qualified name into its final component and
// the scope it names. Only the first path component may be found in an
// enclosing scope; a leading "::" starts at the global scope.
func (s *scope) pickScope(name string) (string, *scope, error) {
	split := strings.Split(name, "::")
	tail := split[len(split)-1]
	split = split[:len(split)-1]

	sc := s
	for i, part := range split {
		if i == 0 && part == "" {
			sc = sc.global
			continue
		}
		child := sc.children[part]
		for i == 0 && child == nil && sc.parent != nil {
			sc = sc.parent
			child = sc.children[part]
		}
		if child == nil {
			return "", nil, errors.Errorf("Could not resolve scope %s", strings.Join(split[:i+1], "::"))
		}
		sc = child
	}
	return tail, sc, nil
}

// resolve looks up a name in the scope it names, without searching
// enclosing scopes. If the symbol does not exist and create is set, an
// empty symbol is created in place as a forward reference.
func (s *scope) resolve(name string, create bool) (id symbolID, created bool, err error) {
	tail, sc, err := s.pickScope(name)
	if err != nil {
		return noSymbol, false, err
	}
	id, ok := sc.symbols.get(tail)
	if !ok {
		if !create {
			return noSymbol, false, nil
		}
		id, created = s.arena.alloc(), true
		sc.symbols.set(tail, id)
	}
	if tail != name {
		s.arena.get(id).scoped = true
	}
	return id, created, nil
}

// A cheapScope holds the flat namespace of @-prefixed labels, which is
// cleared at each ordinary label.
type cheapScope struct {
	arena   *symbolArena
	symbols symbolMap
}

func newCheapScope(arena *symbolArena) *cheapScope {
	return &cheapScope{arena: arena, symbols: newSymbolMap()}
}

func (c *cheapScope) resolve(name string, create bool) (id symbolID, created bool, err error) {
	id, ok := c.symbols.get(name)
	switch {
	case ok:
		return id, false, nil
	case create:
		id = c.arena.alloc()
		c.symbols.set(name, id)
		return id, true, nil
	}
	return noSymbol, false, nil
}

// clear empties the cheap scope, failing if any label referenced within it
// was never defined.
func (c *cheapScope) clear() error {
	for _, name := range c.symbols.names {
		sym := c.arena.get(c.symbols.ids[name])
		if sym.expr == nil {
			return errors.Errorf("Cheap local label never defined: %s%s", name, token.At(sym.ref))
		}
	}
	c.symbols.clear()
	return nil
}

// A symbolResolver is implemented by both kinds of scope.
type symbolResolver interface {
	resolve(name string, create bool) (id symbolID, created bool, err error)
}
