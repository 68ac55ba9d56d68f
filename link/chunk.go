// Copyright 2014-2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package link

import (
	"github.com/beevik/asm65/expr"
	"github.com/beevik/asm65/module"
	"github.com/pkg/errors"
)

// A chunk is a module chunk taken over by the linker. Its indices have been
// translated into the linker's global chunk and symbol numbering.
type chunk struct {
	index    int
	name     string
	segments []string
	fixed    bool // org given by the assembler
	data     []byte
	subs     []*module.Substitution
	asserts  []*expr.Expr

	placed   bool
	seg      *segment
	org      int  // CPU address, once placed
	offset   int  // file offset, once placed
	overlaps bool // shares bytes already in the image
}

func newChunk(c *module.Chunk, index, dc, ds int) *chunk {
	lc := &chunk{
		index:    index,
		name:     c.Name,
		segments: append([]string(nil), c.Segments...),
		data:     append([]byte(nil), c.Data...),
	}
	if lc.name == "" {
		lc.name = "Code"
	}
	if c.Org != nil {
		lc.fixed = true
		lc.org = *c.Org
	}
	for _, s := range c.Subs {
		lc.subs = append(lc.subs, &module.Substitution{
			Offset: s.Offset,
			Size:   s.Size,
			Expr:   translate(s.Expr, dc, ds),
		})
	}
	for _, a := range c.Asserts {
		lc.asserts = append(lc.asserts, translate(a, dc, ds))
	}
	return lc
}

// translate renumbers the chunk and symbol references of an expression
// read from a module whose chunks start at dc and symbols at ds.
func translate(e *expr.Expr, dc, ds int) *expr.Expr {
	out, _ := expr.TraversePost(e, func(n *expr.Expr) (*expr.Expr, error) {
		if n.Meta != nil && n.Meta.Chunk != nil {
			c := *n
			m := *n.Meta
			m.Chunk = expr.Int(*m.Chunk + dc)
			c.Meta = &m
			n = &c
		}
		if n.Op == expr.OpSym && n.Sym == "" {
			c := *n
			c.Num += ds
			n = &c
		}
		return n, nil
	})
	return out
}

var sizeName = []string{"", "byte", "word", "farword", "dword"}

// littleEndian encodes value in size bytes, failing if it does not fit
// either signed or unsigned.
func littleEndian(size, value int) ([]byte, error) {
	bits := uint(size) << 3
	if value < -(1<<bits) || value >= 1<<bits {
		return nil, errors.Errorf("Not a %s: $%x", sizeName[size], value)
	}
	b := make([]byte, size)
	for i := range b {
		b[i] = byte(value)
		value >>= 8
	}
	return b, nil
}

func (c *chunk) size() int {
	return len(c.data)
}

// addr returns the CPU address of a byte within the chunk, or its offset
// within the chunk if the chunk has not been placed.
func (c *chunk) addr(off int) int {
	if c.placed || c.fixed {
		return c.org + off
	}
	return off
}
