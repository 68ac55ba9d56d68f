// Copyright 2014-2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package token describes the lexical tokens consumed by the assembler,
// along with helpers for splitting token lines into argument lists.
package token

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Kind identifies the lexical class of a token.
type Kind byte

// All token kinds.
const (
	Ident     Kind = iota // identifier, including scoped and cheap names
	Op                    // operator or punctuation
	Directive             // control sequence such as .org
	String                // quoted string literal
	Number                // numeric literal
	LB                    // [
	LC                    // {
	LP                    // (
	RB                    // ]
	RC                    // }
	RP                    // )
	EOL                   // end of line
	EOF                   // end of input
)

var kindName = []string{
	"IDENT", "OP", "CS", "STR", "NUM", "[", "{", "(", "]", "}", ")", "EOL", "EOF",
}

// A Source identifies where a token was read. Parent links form the chain of
// include or expansion sites.
type Source struct {
	File   string  `json:"file,omitempty"`
	Line   int     `json:"line"`
	Column int     `json:"column"`
	Parent *Source `json:"parent,omitempty"`
}

func (s *Source) String() string {
	return fmt.Sprintf("%s:%d:%d", s.File, s.Line, s.Column)
}

// A Token is a single lexical element of a line of assembly source.
type Token struct {
	Kind   Kind
	Str    string  // text of identifiers, operators, directives and strings
	Num    int     // value of numbers
	Width  int     // byte width implied by hex and binary literals
	Source *Source // position, if known
}

// Commonly matched tokens.
var (
	Colon     = Token{Kind: Op, Str: ":"}
	Comma     = Token{Kind: Op, Str: ","}
	Star      = Token{Kind: Op, Str: "*"}
	Immediate = Token{Kind: Op, Str: "#"}
	Assign    = Token{Kind: Op, Str: "="}
	Set       = Token{Kind: Directive, Str: ".set"}
)

// Eq reports whether two tokens have the same kind and content. Source
// positions are ignored.
func Eq(a, b Token) bool {
	return a.Kind == b.Kind && a.Str == b.Str && a.Num == b.Num
}

// Name returns a short human-readable description of the token.
func Name(t Token) string {
	switch t.Kind {
	case Number:
		return fmt.Sprintf("NUM[$%x]", t.Num)
	case String:
		return fmt.Sprintf("STR[%s]", t.Str)
	case Ident, Op, Directive:
		return strings.ToUpper(t.Str)
	default:
		return kindName[t.Kind]
	}
}

// At returns the location suffix used in diagnostics, or the empty string
// if the position is unknown.
func At(s *Source) string {
	var b strings.Builder
	first := true
	for ; s != nil; s = s.Parent {
		if first {
			fmt.Fprintf(&b, "\n  at %s", s)
			first = false
		} else {
			fmt.Fprintf(&b, "\n  included from %s", s)
		}
	}
	return b.String()
}

// NameAt returns the token name followed by its location.
func NameAt(t Token) string {
	return Name(t) + At(t.Source)
}

// Errorf creates an error located at the token's source position.
func Errorf(t Token, format string, args ...any) error {
	return errors.New(fmt.Sprintf(format, args...) + At(t.Source))
}

// IsRegister reports whether the token is the named register identifier
// (matched case-insensitively).
func IsRegister(t Token, reg string) bool {
	return t.Kind == Ident && strings.EqualFold(t.Str, reg)
}

// ExpectIdentifier returns the identifier text of the token.
func ExpectIdentifier(t Token) (string, error) {
	if t.Kind != Ident {
		return "", Errorf(t, "Expected identifier, got %s", Name(t))
	}
	return t.Str, nil
}

// ExpectString returns the contents of a string token.
func ExpectString(t Token) (string, error) {
	if t.Kind != String {
		return "", Errorf(t, "Expected string, got %s", Name(t))
	}
	return t.Str, nil
}

// ExpectEOL returns an error if index i does not lie past the end of the
// token line.
func ExpectEOL(tokens []Token, i int, what string) error {
	if i < len(tokens) {
		if what == "" {
			what = "end of line"
		}
		return Errorf(tokens[i], "Expected %s, got %s", what, Name(tokens[i]))
	}
	return nil
}

func isOpen(k Kind) bool  { return k == LP || k == LB || k == LC }
func isClose(k Kind) bool { return k == RP || k == RB || k == RC }

// FindBalanced returns the index of the grouping token that closes the one
// at index i, or -1 if it is never closed.
func FindBalanced(tokens []Token, i int) int {
	if i >= len(tokens) || !isOpen(tokens[i].Kind) {
		return -1
	}
	depth := 0
	for ; i < len(tokens); i++ {
		switch {
		case isOpen(tokens[i].Kind):
			depth++
		case isClose(tokens[i].Kind):
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// ArgList splits tokens[start:end] on top-level commas. An end of -1 means
// the end of the line.
func ArgList(tokens []Token, start, end int) [][]Token {
	if end < 0 || end > len(tokens) {
		end = len(tokens)
	}
	if start >= end {
		return nil
	}
	var out [][]Token
	depth, s := 0, start
	for i := start; i < end; i++ {
		t := tokens[i]
		switch {
		case isOpen(t.Kind):
			depth++
		case isClose(t.Kind):
			depth--
		case depth == 0 && Eq(t, Comma):
			out = append(out, tokens[s:i])
			s = i + 1
		}
	}
	return append(out, tokens[s:end])
}

// An Attr is a single key and its value tokens from an attribute list.
type Attr struct {
	Key   Token
	Value []Token
}

// AttrList parses a list of the form `:key value... :key value...`
// starting at tokens[start], which must be a colon.
func AttrList(tokens []Token, start int) ([]Attr, error) {
	var out []Attr
	i := start
	for i < len(tokens) {
		if !Eq(tokens[i], Colon) {
			return nil, Errorf(tokens[i], "Expected colon, got %s", Name(tokens[i]))
		}
		i++
		if i >= len(tokens) || tokens[i].Kind != Ident {
			if i < len(tokens) {
				return nil, Errorf(tokens[i], "Expected attribute name, got %s", Name(tokens[i]))
			}
			return nil, Errorf(tokens[i-1], "Expected attribute name")
		}
		attr := Attr{Key: tokens[i]}
		i++
		for i < len(tokens) && !Eq(tokens[i], Colon) {
			attr.Value = append(attr.Value, tokens[i])
			i++
		}
		if len(attr.Value) == 0 {
			return nil, Errorf(attr.Key, "Missing value for attribute %s", attr.Key.Str)
		}
		out = append(out, attr)
	}
	return out, nil
}
