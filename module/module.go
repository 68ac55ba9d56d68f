// Copyright 2014-2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package module defines the object module produced by the assembler and
// consumed by the linker, along with its on-disk JSON encoding.
package module

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/beevik/asm65/expr"
	"github.com/pkg/errors"
)

// A Module is the output of assembling a single source file.
type Module struct {
	Chunks   []*Chunk   `json:"chunks,omitempty"`   // in a deterministic, indexable order
	Symbols  []*Symbol  `json:"symbols,omitempty"`  // indexed by module symbol id
	Segments []*Segment `json:"segments,omitempty"` // segment declarations
}

// A Chunk is a contiguous run of bytes that the linker places as a unit.
type Chunk struct {
	Name     string          `json:"name,omitempty"`    // human-readable identifier
	Segments []string        `json:"segments"`          // segments the chunk may be placed in
	Org      *int            `json:"org,omitempty"`     // fixed address, if not relocatable
	Data     []byte          `json:"data"`              // base64 encoded on disk
	Subs     []*Substitution `json:"subs,omitempty"`    // pending substitutions
	Asserts  []*expr.Expr    `json:"asserts,omitempty"` // each must evaluate nonzero
}

// A Substitution patches Size bytes at Offset within a chunk with the
// value of Expr once it is known.
type Substitution struct {
	Offset int        `json:"offset"`
	Size   int        `json:"size"`
	Expr   *expr.Expr `json:"expr"`
}

// A Symbol is a module-level symbol: a value referenced across chunks, or
// a named export.
type Symbol struct {
	Export string     `json:"export,omitempty"` // name exported to other modules
	Expr   *expr.Expr `json:"expr,omitempty"`   // value of the symbol
}

// A Segment describes a region of the output image.
type Segment struct {
	Name       string   `json:"name"`
	Bank       *int     `json:"bank,omitempty"`       // bank number
	Size       *int     `json:"size,omitempty"`       // size in bytes
	Offset     *int     `json:"offset,omitempty"`     // offset within the image
	Memory     *int     `json:"memory,omitempty"`     // CPU address of the start
	Addressing *int     `json:"addressing,omitempty"` // address size in bytes
	Free       [][2]int `json:"free,omitempty"`       // unallocated [start, end) CPU ranges
}

// MergeSegments combines two declarations of the same segment. Fields set
// in b override those of a, and free lists are concatenated.
func MergeSegments(a, b *Segment) *Segment {
	seg := *a
	if b.Name != "" {
		seg.Name = b.Name
	}
	if b.Bank != nil {
		seg.Bank = b.Bank
	}
	if b.Size != nil {
		seg.Size = b.Size
	}
	if b.Offset != nil {
		seg.Offset = b.Offset
	}
	if b.Memory != nil {
		seg.Memory = b.Memory
	}
	if b.Addressing != nil {
		seg.Addressing = b.Addressing
	}
	seg.Free = nil
	seg.Free = append(seg.Free, a.Free...)
	seg.Free = append(seg.Free, b.Free...)
	return &seg
}

func (s *Segment) String() string {
	str := s.Name
	field := func(name string, v *int) {
		if v != nil {
			str += fmt.Sprintf(" %s=$%x", name, *v)
		}
	}
	field("bank", s.Bank)
	field("size", s.Size)
	field("offset", s.Offset)
	field("memory", s.Memory)
	return str
}

// ReadFrom reads a JSON-encoded module.
func (m *Module) ReadFrom(r io.Reader) (n int64, err error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return 0, err
	}

	err = json.Unmarshal(b, m)
	if err != nil {
		return 0, errors.Wrap(err, "decoding module")
	}
	return int64(len(b)), nil
}

// WriteTo writes the module as JSON to an output stream.
func (m *Module) WriteTo(w io.Writer) (n int64, err error) {
	b, err := json.Marshal(m)
	if err != nil {
		return 0, err
	}

	nn, err := w.Write(b)
	return int64(nn), err
}

// Load reads a module from a file.
func Load(path string) (*Module, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	m := new(Module)
	if _, err := m.ReadFrom(file); err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	return m, nil
}

// Save writes the module to a file.
func (m *Module) Save(path string) error {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}

	if _, err := m.WriteTo(file); err != nil {
		file.Close()
		return errors.Wrapf(err, "writing %s", path)
	}
	return file.Close()
}
