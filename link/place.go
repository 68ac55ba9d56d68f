// Copyright 2014-2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package link

import (
	"sort"
	"strings"

	"github.com/beevik/asm65/interval"
	"github.com/pkg/errors"
)

// A graph tracks which unplaced chunks each chunk still needs, and which
// chunks are waiting on each chunk.
type graph struct {
	deps       map[int][]int
	dependents map[int][]int
}

func (g *graph) set(i int, deps []int) {
	g.deps[i] = deps
	for _, d := range deps {
		g.dependents[d] = appendUnique(g.dependents[d], i)
	}
}

// placeRelocatable places every chunk without a fixed org, largest first.
// A chunk is ready once every chunk it refers to has been placed.
func (l *Linker) placeRelocatable() error {
	l.logSection("Place")
	g := &graph{deps: make(map[int][]int), dependents: make(map[int][]int)}
	var ready, blocked []*chunk
	for _, c := range l.chunks {
		deps, err := l.resolveSubs(c)
		if err != nil {
			return err
		}
		g.set(c.index, deps)
		switch {
		case c.placed:
		case len(deps) == 0:
			ready = append(ready, c)
		default:
			blocked = append(blocked, c)
		}
	}
	bySize(ready)
	bySize(blocked)

	remaining := len(ready) + len(blocked)
	place := func(c *chunk) error {
		if err := l.placeReloc(c); err != nil {
			return err
		}
		remaining--
		for _, i := range g.dependents[c.index] {
			d := l.chunks[i]
			deps, err := l.resolveSubs(d)
			if err != nil {
				return err
			}
			g.set(i, deps)
			if !d.placed && len(deps) == 0 && !contains(ready, d) {
				ready = append(ready, d)
				blocked = remove(blocked, d)
				bySize(ready)
			}
		}
		return nil
	}

	for remaining > 0 {
		if len(ready) > 0 {
			c := ready[0]
			ready = ready[1:]
			if c.placed {
				continue
			}
			if err := place(c); err != nil {
				return err
			}
			continue
		}

		// Every unplaced chunk waits on another. Place the first dependency
		// of the first one without waiting on its own.
		before := remaining
	stall:
		for _, c := range blocked {
			if c.placed {
				continue
			}
			l.log("stalled on %s", c.name)
			for _, i := range g.deps[c.index] {
				if d := l.chunks[i]; !d.placed {
					blocked = remove(blocked, d)
					if err := place(d); err != nil {
						return err
					}
					break stall
				}
			}
		}
		if remaining == before {
			return errors.New("Not making progress")
		}
	}
	return nil
}

// placeReloc places a single relocatable chunk. A fully resolved chunk
// reuses identical bytes already in one of its segments if it can.
// Otherwise it takes the smallest free block that holds it.
func (l *Linker) placeReloc(c *chunk) error {
	segs := make([]*segment, len(c.segments))
	for i, name := range c.segments {
		s, err := l.segment(name)
		if err != nil {
			return err
		}
		segs[i] = s
	}
	if len(segs) == 0 {
		return errors.Errorf("Chunk %s has no segments", c.name)
	}

	if c.size() == 0 {
		l.place(c, segs[0], segs[0].start(), true)
		return nil
	}

	if len(c.subs) == 0 {
		for _, s := range segs {
			if off, ok := l.image.find(c.data, s.start(), s.end()); ok {
				l.place(c, s, off, true)
				return nil
			}
		}
	}

	var best *segment
	var fit interval.Interval
	for _, s := range segs {
		for _, iv := range s.free.All() {
			if iv.Len() < c.size() {
				continue
			}
			if best == nil || iv.Len() < fit.Len() {
				best, fit = s, iv
			}
		}
	}
	if best == nil {
		return errors.Errorf("Could not find space for %d-byte chunk %s in segments %s",
			c.size(), c.name, strings.Join(c.segments, ","))
	}
	l.place(c, best, fit.Start, false)

	// References to the chunk's own addresses are now known.
	_, err := l.resolveSubs(c)
	return err
}

// bySize orders chunks largest first, keeping input order among equals.
func bySize(chunks []*chunk) {
	sort.SliceStable(chunks, func(i, j int) bool {
		if chunks[i].size() != chunks[j].size() {
			return chunks[i].size() > chunks[j].size()
		}
		return chunks[i].index < chunks[j].index
	})
}

func contains(chunks []*chunk, c *chunk) bool {
	for _, x := range chunks {
		if x == c {
			return true
		}
	}
	return false
}

func remove(chunks []*chunk, c *chunk) []*chunk {
	for i, x := range chunks {
		if x == c {
			return append(chunks[:i:i], chunks[i+1:]...)
		}
	}
	return chunks
}
