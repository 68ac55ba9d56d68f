// Copyright 2014-2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package asm

import (
	"strconv"
	"strings"

	"github.com/beevik/asm65/expr"
)

type refKind byte

const (
	refAnonymous refKind = iota // `:` labels, `:+` and `:-` references
	refRelative                 // `+` and `-` runs
	refRts                      // rts instructions, `:rts` and `:<rts`
)

// A labelRef is an anonymous, relative or rts label name with its
// direction and distance decoded.
type labelRef struct {
	kind    refKind
	forward bool
	dist    int
}

func repeated(s string, c byte) bool {
	return s != "" && strings.Count(s, string(c)) == len(s)
}

// parseLabelRef decodes a label reference or definition name. Names that
// are not label references return false.
func parseLabelRef(name string) (labelRef, bool) {
	if rest, ok := strings.CutPrefix(name, ":"); ok {
		switch {
		case repeated(rest, '+'):
			return labelRef{refAnonymous, true, len(rest)}, true
		case repeated(rest, '-'):
			return labelRef{refAnonymous, false, len(rest)}, true
		case len(rest) > 1 && (rest[0] == '+' || rest[0] == '-'):
			n, err := strconv.Atoi(rest[1:])
			if err != nil || n < 1 {
				return labelRef{}, false
			}
			return labelRef{refAnonymous, rest[0] == '+', n}, true
		}
		if dirs, ok := strings.CutSuffix(rest, "rts"); ok {
			switch {
			case dirs == "":
				return labelRef{refRts, true, 1}, true
			case repeated(dirs, '>'):
				return labelRef{refRts, true, len(dirs)}, true
			case repeated(dirs, '<'):
				return labelRef{refRts, false, len(dirs)}, true
			}
		}
		return labelRef{}, false
	}
	switch {
	case repeated(name, '+'):
		return labelRef{refRelative, true, len(name)}, true
	case repeated(name, '-'):
		return labelRef{refRelative, false, len(name)}, true
	}
	return labelRef{}, false
}

// A labelQueue tracks anonymous or rts labels. Each forward slot holds the
// placeholder for the Nth upcoming label; defining a label binds the
// nearest placeholder and moves the others one step closer.
type labelQueue struct {
	forward []symbolID
	reverse []*expr.Expr
}

// ahead returns the placeholder for the label dist definitions ahead,
// allocating one if needed.
func (q *labelQueue) ahead(dist int, alloc func() symbolID) symbolID {
	for len(q.forward) < dist {
		q.forward = append(q.forward, noSymbol)
	}
	if q.forward[dist-1] == noSymbol {
		q.forward[dist-1] = alloc()
	}
	return q.forward[dist-1]
}

// behind returns the label defined dist definitions ago.
func (q *labelQueue) behind(dist int) (*expr.Expr, bool) {
	i := len(q.reverse) - dist
	if i < 0 {
		return nil, false
	}
	return q.reverse[i], true
}

// define records a new label, returning the placeholder it binds, if any.
func (q *labelQueue) define(e *expr.Expr) symbolID {
	q.reverse = append(q.reverse, e)
	if len(q.forward) == 0 {
		return noSymbol
	}
	id := q.forward[0]
	q.forward = q.forward[1:]
	return id
}

// A relativeTable tracks `+` and `-` labels. Unlike anonymous labels, each
// distance is its own name: `++` refers only to the next `++` label.
type relativeTable struct {
	forward []symbolID
	reverse []*expr.Expr
}

func (r *relativeTable) ahead(dist int, alloc func() symbolID) symbolID {
	for len(r.forward) < dist {
		r.forward = append(r.forward, noSymbol)
	}
	if r.forward[dist-1] == noSymbol {
		r.forward[dist-1] = alloc()
	}
	return r.forward[dist-1]
}

func (r *relativeTable) behind(dist int) (*expr.Expr, bool) {
	if dist > len(r.reverse) || r.reverse[dist-1] == nil {
		return nil, false
	}
	return r.reverse[dist-1], true
}

// defineForward binds and clears the placeholder for a `+` label.
func (r *relativeTable) defineForward(dist int) symbolID {
	if dist > len(r.forward) {
		return noSymbol
	}
	id := r.forward[dist-1]
	r.forward[dist-1] = noSymbol
	return id
}

func (r *relativeTable) defineBackward(dist int, e *expr.Expr) {
	for len(r.reverse) < dist {
		r.reverse = append(r.reverse, nil)
	}
	r.reverse[dist-1] = e
}
