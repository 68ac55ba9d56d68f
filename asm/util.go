// Copyright 2014-2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package asm

import (
	"strings"

	"github.com/beevik/asm65/token"
	"github.com/pkg/errors"
)

var hex = "0123456789ABCDEF"

var sizeName = []string{"", "byte", "word", "farword", "dword"}

// littleEndian returns a little-endian representation of the value using
// the requested number of bytes. The value must fit in size bytes, either
// signed or unsigned.
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

// placeholder returns the filler bytes written in place of a value that
// is not yet known.
func placeholder(size int) []byte {
	b := make([]byte, size)
	for i := range b {
		b[i] = 0xff
	}
	return b
}

// Return a hexadecimal string representation of a byte slice.
func byteString(b []byte) string {
	if len(b) < 1 {
		return ""
	}

	s := make([]byte, len(b)*3-1)
	i, j := 0, 0
	for n := len(b) - 1; i < n; i, j = i+1, j+3 {
		s[j+0] = hex[(b[i] >> 4)]
		s[j+1] = hex[(b[i] & 0x0f)]
		s[j+2] = ' '
	}
	s[j+0] = hex[(b[i] >> 4)]
	s[j+1] = hex[(b[i] & 0x0f)]
	return string(s)
}

// tokenString renders a token line for verbose output.
func tokenString(tokens []token.Token) string {
	parts := make([]string, len(tokens))
	for i, t := range tokens {
		switch t.Kind {
		case token.Ident, token.Op, token.Directive:
			parts[i] = t.Str
		default:
			parts[i] = token.Name(t)
		}
	}
	return strings.Join(parts, " ")
}
