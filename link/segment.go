// Copyright 2014-2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package link

import (
	"github.com/beevik/asm65/interval"
	"github.com/beevik/asm65/module"
	"github.com/pkg/errors"
)

// A segment is a merged segment declaration along with the file ranges
// still free for relocatable chunks.
type segment struct {
	module.Segment
	free interval.Set // file offsets
}

// start returns the file offset of the first byte of the segment.
func (s *segment) start() int {
	return *s.Offset
}

// end returns the file offset just past the segment.
func (s *segment) end() int {
	return *s.Offset + *s.Size
}

// memory returns the CPU address of the first byte of the segment. It
// defaults to the file offset.
func (s *segment) memory() int {
	if s.Memory != nil {
		return *s.Memory
	}
	return *s.Offset
}

// delta converts a CPU address within the segment to a file offset.
func (s *segment) delta() int {
	return s.start() - s.memory()
}

// holds reports whether the CPU range [addr, addr+n) lies within the
// segment.
func (s *segment) holds(addr, n int) bool {
	m := s.memory()
	return addr >= m && addr+n <= m+*s.Size
}

func (s *segment) check() error {
	switch {
	case s.Size == nil:
		return errors.Errorf("Segment %s has no size", s.Name)
	case s.Offset == nil:
		return errors.Errorf("Segment %s has no offset", s.Name)
	}
	return nil
}

// freeBytes returns the number of free bytes left in the segment.
func (s *segment) freeBytes() int {
	n := 0
	for _, iv := range s.free.All() {
		n += iv.Len()
	}
	return n
}
