// Copyright 2014-2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package link

import (
	"bytes"

	"github.com/beevik/asm65/interval"
)

// An image is the linker's working copy of the output file. Only the
// bytes in known hold settled values: the base image outside of free
// space, and placed chunk data outside of pending substitutions.
type image struct {
	data  []byte
	known interval.Set
}

func (im *image) grow(end int) {
	if end > len(im.data) {
		im.data = append(im.data, make([]byte, end-len(im.data))...)
	}
}

// write stores b at off and marks it known.
func (im *image) write(off int, b []byte) {
	im.grow(off + len(b))
	copy(im.data[off:], b)
	im.known.Add(off, off+len(b))
}

// forget marks [off, off+n) as not yet known.
func (im *image) forget(off, n int) {
	im.known.Delete(off, off+n)
}

// read returns the n bytes at off if all of them are known.
func (im *image) read(off, n int) ([]byte, bool) {
	ivs := im.known.Tail(off)
	if len(ivs) == 0 || ivs[0].Start != off || ivs[0].End < off+n {
		return nil, false
	}
	return im.data[off : off+n], true
}

// find returns the offset of the first known run within [start, end) that
// holds exactly b.
func (im *image) find(b []byte, start, end int) (int, bool) {
	for _, iv := range im.known.Tail(start) {
		if iv.Start >= end {
			break
		}
		hi := min(iv.End, end)
		if hi-iv.Start < len(b) {
			continue
		}
		if i := bytes.Index(im.data[iv.Start:hi], b); i >= 0 {
			return iv.Start + i, true
		}
	}
	return 0, false
}
