// Copyright 2014-2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package interval implements a set of integers stored as sorted, disjoint
// half-open ranges.
package interval

import (
	"fmt"
	"sort"
	"strings"
)

// An Interval is the half-open range [Start, End).
type Interval struct {
	Start, End int
}

// Len returns the number of integers in the interval.
func (iv Interval) Len() int {
	return iv.End - iv.Start
}

func (iv Interval) String() string {
	return fmt.Sprintf("[$%x, $%x)", iv.Start, iv.End)
}

// A Set is a collection of integers stored as sorted, disjoint, non-abutting
// intervals. The zero value is an empty set.
type Set struct {
	data []Interval
}

// find returns the index of the interval containing v. If there is none,
// it returns the index at which such an interval would be inserted, and
// false.
func (s *Set) find(v int) (int, bool) {
	i := sort.Search(len(s.data), func(i int) bool { return v < s.data[i].End })
	return i, i < len(s.data) && s.data[i].Start <= v
}

// Has reports whether x is a member of the set.
func (s *Set) Has(x int) bool {
	_, ok := s.find(x)
	return ok
}

// Overlaps reports whether any member of the set lies in [start, end).
func (s *Set) Overlaps(start, end int) bool {
	if start >= end {
		return false
	}
	i, _ := s.find(start)
	return i < len(s.data) && s.data[i].Start < end
}

// Add inserts [start, end) into the set, merging it with any interval it
// overlaps or abuts.
func (s *Set) Add(start, end int) {
	if start >= end {
		return
	}
	// First interval that overlaps or abuts the new range.
	lo := sort.Search(len(s.data), func(i int) bool { return start <= s.data[i].End })
	// First interval lying entirely past the new range.
	hi := sort.Search(len(s.data), func(i int) bool { return end < s.data[i].Start })

	merged := Interval{start, end}
	if lo < hi {
		merged.Start = min(merged.Start, s.data[lo].Start)
		merged.End = max(merged.End, s.data[hi-1].End)
	}

	out := make([]Interval, 0, len(s.data)-(hi-lo)+1)
	out = append(out, s.data[:lo]...)
	out = append(out, merged)
	out = append(out, s.data[hi:]...)
	s.data = out
}

// Delete removes [start, end) from the set, splitting intervals as needed.
func (s *Set) Delete(start, end int) {
	if start >= end {
		return
	}
	// First interval ending after start.
	lo := sort.Search(len(s.data), func(i int) bool { return start < s.data[i].End })
	// First interval starting at or after end.
	hi := sort.Search(len(s.data), func(i int) bool { return end <= s.data[i].Start })
	if lo >= hi {
		return
	}

	var keep []Interval
	if first := s.data[lo]; first.Start < start {
		keep = append(keep, Interval{first.Start, start})
	}
	if last := s.data[hi-1]; last.End > end {
		keep = append(keep, Interval{end, last.End})
	}

	out := make([]Interval, 0, len(s.data)-(hi-lo)+len(keep))
	out = append(out, s.data[:lo]...)
	out = append(out, keep...)
	out = append(out, s.data[hi:]...)
	s.data = out
}

// Tail returns the intervals at or after x, with the first one clipped so
// that it starts no earlier than x.
func (s *Set) Tail(x int) []Interval {
	i, _ := s.find(x)
	var out []Interval
	for ; i < len(s.data); i++ {
		iv := s.data[i]
		iv.Start = max(iv.Start, x)
		out = append(out, iv)
	}
	return out
}

// All returns a copy of every interval in the set, in ascending order.
func (s *Set) All() []Interval {
	return append([]Interval(nil), s.data...)
}

// Len returns the number of disjoint intervals in the set.
func (s *Set) Len() int {
	return len(s.data)
}

func (s *Set) String() string {
	parts := make([]string, len(s.data))
	for i, iv := range s.data {
		parts[i] = iv.String()
	}
	return "{" + strings.Join(parts, " ") + "}"
}
