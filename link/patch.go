// Copyright 2014-2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package link

import (
	"io"
	"sort"
)

// A Hunk is a contiguous run of patched bytes starting at file offset
// Start.
type Hunk struct {
	Start int
	Data  []byte
}

// End returns the file offset just past the hunk.
func (h Hunk) End() int {
	return h.Start + len(h.Data)
}

// A Patch is a sparse set of bytes to be written over a file image. Its
// hunks are sorted, disjoint and never abut.
type Patch struct {
	hunks []Hunk
}

// Add writes data at start. Overlapping or abutting hunks are coalesced,
// with the new data taking precedence.
func (p *Patch) Add(start int, data []byte) {
	if len(data) == 0 {
		return
	}
	end := start + len(data)
	lo := sort.Search(len(p.hunks), func(i int) bool { return start <= p.hunks[i].End() })
	hi := sort.Search(len(p.hunks), func(i int) bool { return end < p.hunks[i].Start })

	a, b := start, end
	if lo < hi {
		a = min(a, p.hunks[lo].Start)
		b = max(b, p.hunks[hi-1].End())
	}
	buf := make([]byte, b-a)
	for _, h := range p.hunks[lo:hi] {
		copy(buf[h.Start-a:], h.Data)
	}
	copy(buf[start-a:], data)

	hunks := make([]Hunk, 0, len(p.hunks)-(hi-lo)+1)
	hunks = append(hunks, p.hunks[:lo]...)
	hunks = append(hunks, Hunk{Start: a, Data: buf})
	hunks = append(hunks, p.hunks[hi:]...)
	p.hunks = hunks
}

// Hunks returns the hunks of the patch in ascending order.
func (p *Patch) Hunks() []Hunk {
	return append([]Hunk(nil), p.hunks...)
}

// Read returns the patched byte at off, if there is one.
func (p *Patch) Read(off int) (byte, bool) {
	i := sort.Search(len(p.hunks), func(i int) bool { return off < p.hunks[i].End() })
	if i == len(p.hunks) || off < p.hunks[i].Start {
		return 0, false
	}
	h := p.hunks[i]
	return h.Data[off-h.Start], true
}

// Shift returns a copy of the patch moved by offset bytes.
func (p *Patch) Shift(offset int) *Patch {
	out := &Patch{hunks: make([]Hunk, len(p.hunks))}
	for i, h := range p.hunks {
		out.hunks[i] = Hunk{Start: h.Start + offset, Data: h.Data}
	}
	return out
}

// Span returns the range of file offsets covered by the patch.
func (p *Patch) Span() (start, end int) {
	if len(p.hunks) == 0 {
		return 0, 0
	}
	return p.hunks[0].Start, p.hunks[len(p.hunks)-1].End()
}

// Apply writes the patch over image, with file offset 0 of the patch at
// image[offset]. The image is extended if the patch runs past its end.
func (p *Patch) Apply(image []byte, offset int) []byte {
	_, end := p.Span()
	if n := end + offset; n > len(image) {
		image = append(image, make([]byte, n-len(image))...)
	}
	for _, h := range p.hunks {
		copy(image[h.Start+offset:], h.Data)
	}
	return image
}

// WriteTo writes the bytes of the patch span, filling gaps between hunks
// with zeros.
func (p *Patch) WriteTo(w io.Writer) (int64, error) {
	start, end := p.Span()
	buf := make([]byte, end-start)
	for _, h := range p.hunks {
		copy(buf[h.Start-start:], h.Data)
	}
	n, err := w.Write(buf)
	return int64(n), err
}
