// Copyright 2014-2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package link combines object modules into a patch over a file image,
// placing relocatable chunks into the free space of their segments.
package link

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/beevik/asm65/expr"
	"github.com/beevik/asm65/interval"
	"github.com/beevik/asm65/module"
	"github.com/pkg/errors"
)

// Options control the behavior of the linker.
type Options struct {
	Verbose bool      // trace each phase to Out
	Out     io.Writer // verbose output, os.Stdout if nil
}

// An Export is the linked value of an exported symbol.
type Export struct {
	Value  int
	Offset *int // file offset of the value, if it is an address
	Bank   *int // bank of the value's segment, if known
}

// A Linker collects modules and links them once.
type Linker struct {
	opts     Options
	out      io.Writer
	chunks   []*chunk
	symbols  []*expr.Expr      // symbol values in global numbering
	exports  map[string]int    // export name -> symbol index
	names    []string          // export names in the order read
	segments map[string]*segment
	segOrder []string
	base     []byte
	baseOff  int
	image    image
	used     interval.Set // file ranges owned by placed chunks
	linked   bool
}

// New creates a linker.
func New(opts Options) *Linker {
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	return &Linker{
		opts:     opts,
		out:      out,
		exports:  make(map[string]int),
		segments: make(map[string]*segment),
	}
}

// Link links modules with default options.
func Link(modules ...*module.Module) (*Patch, error) {
	l := New(Options{})
	for _, m := range modules {
		if err := l.Read(m); err != nil {
			return nil, err
		}
	}
	return l.Link()
}

// Read adds a module to the link. Its chunk and symbol indices are
// renumbered to follow those of previously read modules.
func (l *Linker) Read(m *module.Module) error {
	dc, ds := len(l.chunks), len(l.symbols)
	for i, c := range m.Chunks {
		l.chunks = append(l.chunks, newChunk(c, dc+i, dc, ds))
	}
	for i, s := range m.Symbols {
		if s.Expr == nil {
			return errors.Errorf("Symbol %d never resolved", ds+i)
		}
		l.symbols = append(l.symbols, translate(s.Expr, dc, ds))
		if s.Export == "" {
			continue
		}
		if _, ok := l.exports[s.Export]; ok {
			return errors.Errorf("Duplicate export: %s", s.Export)
		}
		l.exports[s.Export] = ds + i
		l.names = append(l.names, s.Export)
	}
	for _, s := range m.Segments {
		l.AddSegment(s)
	}
	return nil
}

// AddSegment declares a segment, merging it with any earlier declaration
// of the same name.
func (l *Linker) AddSegment(s *module.Segment) {
	if prev, ok := l.segments[s.Name]; ok {
		prev.Segment = *module.MergeSegments(&prev.Segment, s)
		return
	}
	l.segments[s.Name] = &segment{Segment: *module.MergeSegments(&module.Segment{Name: s.Name}, s)}
	l.segOrder = append(l.segOrder, s.Name)
}

// Base sets the original file image. Its bytes outside of free space are
// candidates for deduplication, and it is the source of .move copies.
func (l *Linker) Base(data []byte, offset int) {
	l.base = data
	l.baseOff = offset
}

func (l *Linker) segment(name string) (*segment, error) {
	s, ok := l.segments[name]
	if !ok {
		return nil, errors.Errorf("Unknown segment: %s", name)
	}
	if err := s.check(); err != nil {
		return nil, err
	}
	return s, nil
}

// Link places every chunk and returns the resulting patch.
func (l *Linker) Link() (*Patch, error) {
	if l.linked {
		return nil, errors.New("Linker already used")
	}
	l.linked = true

	l.logSection("Link")
	for _, phase := range []func() error{
		l.loadImage,
		l.placeFixed,
		l.resolveSymbols,
		l.placeRelocatable,
		l.resolveRemaining,
		l.checkAsserts,
	} {
		if err := phase(); err != nil {
			return nil, err
		}
	}

	p := &Patch{}
	for _, c := range l.chunks {
		if !c.overlaps {
			p.Add(c.offset, c.data)
		}
	}
	l.logFree()
	return p, nil
}

// loadImage copies the base image into the working image and computes the
// free space of each segment. A segment with a free list has only that
// space. A segment without one is free wherever the base image does not
// cover it.
func (l *Linker) loadImage() error {
	if len(l.base) > 0 {
		l.image.write(l.baseOff, l.base)
	}
	for _, name := range l.segOrder {
		s := l.segments[name]
		if s.Size == nil || s.Offset == nil {
			continue
		}
		if len(s.Free) == 0 {
			s.free.Add(s.start(), s.end())
			s.free.Delete(l.baseOff, l.baseOff+len(l.base))
		}
		for _, f := range s.Free {
			start, end := f[0]+s.delta(), f[1]+s.delta()
			s.free.Add(max(start, s.start()), min(end, s.end()))
			l.image.forget(start, end-start)
		}
		l.log("segment %-12s $%04X-$%04X  offset $%05X  %d bytes free",
			name, s.memory(), s.memory()+*s.Size-1, s.start(), s.freeBytes())
	}
	return nil
}

// place assigns chunk c to file offset off within segment s.
func (l *Linker) place(c *chunk, s *segment, off int, overlaps bool) {
	c.placed, c.seg, c.offset, c.overlaps = true, s, off, overlaps
	c.org = off - s.delta()
	if !overlaps {
		end := off + c.size()
		l.image.write(off, c.data)
		for _, sub := range c.subs {
			l.image.forget(off+sub.Offset, sub.Size)
		}
		for _, seg := range l.segments {
			seg.free.Delete(off, end)
		}
		l.used.Add(off, end)
	}

	mark := ""
	if overlaps {
		mark = " (shared)"
	}
	l.log("place %-16s $%04X  offset $%05X  %4d bytes  [%s]%s",
		c.name, c.org, c.offset, c.size(), s.Name, mark)
}

// placeFixed places each chunk whose org was set by the assembler in the
// one segment that holds it.
func (l *Linker) placeFixed() error {
	for _, c := range l.chunks {
		if !c.fixed {
			continue
		}
		var found []*segment
		for _, name := range c.segments {
			s, err := l.segment(name)
			if err != nil {
				return err
			}
			if s.holds(c.org, c.size()) {
				found = append(found, s)
			}
		}
		if len(found) != 1 {
			return errors.Errorf("Non-unique segment for chunk %s at $%x: %s",
				c.name, c.org, strings.Join(c.segments, ","))
		}
		s := found[0]
		off := c.org + s.delta()
		if l.used.Overlaps(off, off+c.size()) {
			return errors.Errorf("Chunk %s at $%x overlaps another chunk", c.name, c.org)
		}
		l.place(c, s, off, false)
	}
	return nil
}

// Exports returns the linked value of every exported symbol.
func (l *Linker) Exports() (map[string]Export, error) {
	if !l.linked {
		return nil, errors.New("Exports before Link")
	}
	out := make(map[string]Export, len(l.names))
	for _, name := range l.names {
		e, _, err := l.resolve(l.symbols[l.exports[name]], nil)
		if err != nil {
			return nil, err
		}
		v, ok := expr.Value(e)
		if !ok {
			return nil, errors.Errorf("Export %s not resolved: %s", name, e)
		}
		x := Export{Value: v}
		if m := e.Meta; m != nil && m.Chunk != nil {
			c := l.chunks[*m.Chunk]
			x.Offset = expr.Int(v - c.org + c.offset)
			x.Bank = c.seg.Bank
		}
		out[name] = x
	}
	return out, nil
}

// Report writes a summary of every placed chunk and the free space left
// in each segment.
func (l *Linker) Report(w io.Writer) {
	chunks := append([]*chunk(nil), l.chunks...)
	sort.SliceStable(chunks, func(i, j int) bool { return chunks[i].offset < chunks[j].offset })
	for _, c := range chunks {
		if !c.placed {
			continue
		}
		mark := ""
		if c.overlaps {
			mark = " shared"
		}
		fmt.Fprintf(w, "%05X  $%04X  %4d  %-12s %s%s\n",
			c.offset, c.org, c.size(), c.seg.Name, c.name, mark)
	}
	for _, name := range l.segOrder {
		s := l.segments[name]
		if s.Size == nil || s.Offset == nil {
			continue
		}
		fmt.Fprintf(w, "segment %-12s %5d of %5d bytes free %s\n",
			name, s.freeBytes(), *s.Size, s.free.String())
	}
}

//
// logging
//

func (l *Linker) log(format string, args ...any) {
	if l.opts.Verbose {
		fmt.Fprintf(l.out, format, args...)
		fmt.Fprintf(l.out, "\n")
	}
}

func (l *Linker) logSection(name string) {
	if l.opts.Verbose {
		fmt.Fprintln(l.out, strings.Repeat("-", len(name)+6))
		fmt.Fprintf(l.out, "-- %s --\n", name)
		fmt.Fprintln(l.out, strings.Repeat("-", len(name)+6))
	}
}

func (l *Linker) logFree() {
	if l.opts.Verbose {
		l.logSection("Free")
		for _, name := range l.segOrder {
			if s := l.segments[name]; s.Size != nil && s.Offset != nil {
				l.log("%-12s %s", name, s.free.String())
			}
		}
	}
}
