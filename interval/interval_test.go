// Copyright 2014-2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package interval

import "testing"

func checkSet(t *testing.T, s *Set, expected ...Interval) {
	t.Helper()
	got := s.All()
	if len(got) != len(expected) {
		t.Errorf("got %s, exp %v", s, expected)
		return
	}
	for i := range got {
		if got[i] != expected[i] {
			t.Errorf("got %s, exp %v", s, expected)
			return
		}
	}
}

func TestAdd(t *testing.T) {
	var s Set
	s.Add(10, 20)
	s.Add(30, 40)
	checkSet(t, &s, Interval{10, 20}, Interval{30, 40})

	s.Add(20, 25) // abuts
	checkSet(t, &s, Interval{10, 25}, Interval{30, 40})

	s.Add(0, 5)
	checkSet(t, &s, Interval{0, 5}, Interval{10, 25}, Interval{30, 40})

	s.Add(3, 35) // spans several
	checkSet(t, &s, Interval{0, 40})

	s.Add(50, 50) // empty
	checkSet(t, &s, Interval{0, 40})
}

func TestDelete(t *testing.T) {
	var s Set
	s.Add(0, 100)
	s.Delete(10, 20)
	checkSet(t, &s, Interval{0, 10}, Interval{20, 100})

	s.Delete(0, 10)
	checkSet(t, &s, Interval{20, 100})

	s.Delete(90, 200)
	checkSet(t, &s, Interval{20, 90})

	s.Add(95, 99)
	s.Delete(50, 96)
	checkSet(t, &s, Interval{20, 50}, Interval{96, 99})

	s.Delete(0, 1000)
	checkSet(t, &s)
}

func TestHasAndOverlaps(t *testing.T) {
	var s Set
	s.Add(10, 20)
	s.Add(30, 40)

	for _, x := range []int{10, 19, 30, 39} {
		if !s.Has(x) {
			t.Errorf("expected %d in %s", x, &s)
		}
	}
	for _, x := range []int{9, 20, 25, 40} {
		if s.Has(x) {
			t.Errorf("did not expect %d in %s", x, &s)
		}
	}

	if !s.Overlaps(15, 35) || !s.Overlaps(0, 11) || !s.Overlaps(39, 50) {
		t.Error("expected overlap")
	}
	if s.Overlaps(20, 30) || s.Overlaps(40, 100) || s.Overlaps(0, 10) {
		t.Error("unexpected overlap")
	}
}

func TestTail(t *testing.T) {
	var s Set
	s.Add(0x8000, 0x8200)
	s.Add(0x9000, 0x9400)

	tail := s.Tail(0x8100)
	if len(tail) != 2 || tail[0] != (Interval{0x8100, 0x8200}) || tail[1] != (Interval{0x9000, 0x9400}) {
		t.Errorf("got %v", tail)
	}

	tail = s.Tail(0x8800)
	if len(tail) != 1 || tail[0] != (Interval{0x9000, 0x9400}) {
		t.Errorf("got %v", tail)
	}

	if tail = s.Tail(0xa000); len(tail) != 0 {
		t.Errorf("got %v", tail)
	}
}
