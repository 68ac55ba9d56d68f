// Copyright 2014-2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package token

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// A Tokenizer splits assembly source into lines of tokens.
type Tokenizer struct {
	scanner *bufio.Scanner
	file    string
	row     int
	parent  *Source
}

// NewTokenizer creates a tokenizer reading source text from r. The file
// name is recorded in the position of every token.
func NewTokenizer(r io.Reader, file string) *Tokenizer {
	return &Tokenizer{
		scanner: bufio.NewScanner(r),
		file:    file,
	}
}

// SetParent records the site that included this tokenizer's file.
func (t *Tokenizer) SetParent(s *Source) {
	t.parent = s
}

// Next returns the next non-empty line of tokens. It returns io.EOF when
// the input is exhausted.
func (t *Tokenizer) Next() ([]Token, error) {
	for t.scanner.Scan() {
		t.row++
		tokens, err := TokenizeLine(t.scanner.Text(), t.file, t.row)
		if err != nil {
			return nil, err
		}
		if len(tokens) == 0 {
			continue
		}
		if t.parent != nil {
			for i := range tokens {
				tokens[i].Source.Parent = t.parent
			}
		}
		return tokens, nil
	}
	if err := t.scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "reading %s", t.file)
	}
	return nil, io.EOF
}

// TokenizeLine converts a single line of source text into tokens. Blank
// and comment-only lines produce an empty slice.
func TokenizeLine(line, file string, row int) ([]Token, error) {
	var tokens []Token
	remain := newFstring(file, row, line)
	for {
		remain = remain.consumeWhitespace()
		if remain.isEmpty() || remain.startsWith(comment) {
			return tokens, nil
		}

		start := remain
		tok, next, err := scanToken(remain)
		if err != nil {
			src := start.source()
			near := ""
			if n := len(start.str) - len(next.str); n > 0 {
				near = fmt.Sprintf(" near '%s'", start.str[:n])
			}
			return nil, errors.New(err.Error() + At(src) + near)
		}
		tok.Source = start.source()
		tokens = append(tokens, tok)
		remain = next
	}
}

func scanToken(l fstring) (Token, fstring, error) {
	switch {
	case l.startsWithChar('@'):
		n := l.scanWhile(func(c byte) bool { return c == '@' })
		rest := l.consume(n)
		n += rest.scanWhile(identifierChar)
		return Token{Kind: Ident, Str: l.str[:n]}, l.consume(n), nil

	case l.startsWith(identifierStartChar) ||
		(l.startsWithString("::") && identifierStartChar(l.peek(2))):
		n := scanScopedName(l.str)
		return Token{Kind: Ident, Str: l.str[:n]}, l.consume(n), nil

	case l.startsWithChar('.') && alpha(l.peek(1)):
		n := 1
		for n < len(l.str) && alpha(l.str[n]) {
			n++
		}
		return Token{Kind: Directive, Str: l.str[:n]}, l.consume(n), nil

	case l.startsWithChar(':'):
		if n := scanLabelRef(l.str); n > 0 {
			return Token{Kind: Ident, Str: l.str[:n]}, l.consume(n), nil
		}
		return Token{Kind: Op, Str: ":"}, l.consume(1), nil
	}

	if n := scanOperator(l.str); n > 0 {
		return Token{Kind: Op, Str: l.str[:n]}, l.consume(n), nil
	}

	switch l.peek(0) {
	case '[':
		return Token{Kind: LB}, l.consume(1), nil
	case '{':
		return Token{Kind: LC}, l.consume(1), nil
	case '(':
		return Token{Kind: LP}, l.consume(1), nil
	case ']':
		return Token{Kind: RB}, l.consume(1), nil
	case '}':
		return Token{Kind: RC}, l.consume(1), nil
	case ')':
		return Token{Kind: RP}, l.consume(1), nil
	}

	if l.startsWith(stringQuote) {
		return scanString(l)
	}

	if l.startsWith(decimal) || ((l.startsWithChar('$') || l.startsWithChar('%')) && numberChar(l.peek(1))) {
		rest := l.consume(1)
		n := 1 + rest.scanWhile(numberChar)
		tok, err := parseNumber(l.str[:n])
		return tok, l.consume(n), err
	}

	return Token{}, l.consume(1), errors.New("Syntax error")
}

// scanScopedName returns the length of a name of the form
// (::)?ident(::ident)*.
func scanScopedName(s string) int {
	n := 0
	for {
		i := n
		if strings.HasPrefix(s[i:], "::") {
			i += 2
		}
		if i >= len(s) || !identifierStartChar(s[i]) {
			return n
		}
		i++
		for i < len(s) && identifierChar(s[i]) {
			i++
		}
		n = i
	}
}

// scanLabelRef returns the length of an anonymous, relative or rts label
// reference starting with a colon, or 0 if there is none.
func scanLabelRef(s string) int {
	if len(s) < 2 {
		return 0
	}
	rest := s[1:]
	switch rest[0] {
	case '+', '-':
		if len(rest) > 1 && decimal(rest[1]) {
			i := 2
			for i < len(rest) && decimal(rest[i]) {
				i++
			}
			return 1 + i
		}
		i := 0
		for i < len(rest) && (rest[i] == '+' || rest[i] == '-') {
			i++
		}
		return 1 + i
	case '<':
		i := 0
		for i < len(rest) && rest[i] == '<' {
			i++
		}
		if strings.HasPrefix(rest[i:], "rts") {
			return 1 + i + 3
		}
	default:
		i := 0
		for i < len(rest) && rest[i] == '>' {
			i++
		}
		if strings.HasPrefix(rest[i:], "rts") {
			return 1 + i + 3
		}
	}
	return 0
}

// scanOperator returns the length of the operator at the start of s, or 0.
func scanOperator(s string) int {
	if len(s) == 0 {
		return 0
	}
	c := s[0]
	switch c {
	case '+', '-':
		i := 1
		for i < len(s) && s[i] == c {
			i++
		}
		return i
	case '&', '|':
		if len(s) > 1 && s[1] == c {
			return 2
		}
		return 1
	case '=':
		if len(s) > 1 && s[1] == '=' {
			return 2
		}
		return 1
	case '#', '*', '/', ',', '~', '!', '^':
		return 1
	case '<':
		if len(s) > 1 && (s[1] == '<' || s[1] == '>' || s[1] == '=') {
			return 2
		}
		return 1
	case '>':
		if len(s) > 1 && (s[1] == '>' || s[1] == '=') {
			return 2
		}
		return 1
	}
	return 0
}

func scanString(l fstring) (Token, fstring, error) {
	quote := l.str[0]
	var b strings.Builder
	i := 1
	for {
		if i >= len(l.str) {
			return Token{}, l.consume(i), errors.Errorf("EOF while looking for %c", quote)
		}
		c := l.str[i]
		switch {
		case c == quote:
			return Token{Kind: String, Str: b.String()}, l.consume(i + 1), nil

		case c == '\\' && i+1 < len(l.str):
			esc := l.str[i+1]
			switch {
			case (esc == 'u' || esc == 'U') && i+6 <= len(l.str) && allHex(l.str[i+2:i+6]):
				v, _ := strconv.ParseUint(l.str[i+2:i+6], 16, 32)
				b.WriteRune(rune(v))
				i += 6
			case (esc == 'x' || esc == 'X') && i+4 <= len(l.str) && allHex(l.str[i+2:i+4]):
				v, _ := strconv.ParseUint(l.str[i+2:i+4], 16, 8)
				b.WriteByte(byte(v))
				i += 4
			default:
				b.WriteByte(esc)
				i += 2
			}

		default:
			b.WriteByte(c)
			i++
		}
	}
}

func allHex(s string) bool {
	for i := 0; i < len(s); i++ {
		if !hexadecimal(s[i]) {
			return false
		}
	}
	return true
}

func parseNumber(s string) (Token, error) {
	switch {
	case s[0] == '$':
		digits := s[1:]
		v, err := strconv.ParseUint(digits, 16, 32)
		if err != nil {
			return Token{}, errors.Errorf("Bad hex number: %s", s)
		}
		return Token{Kind: Number, Num: int(v), Width: (len(digits) + 1) / 2}, nil

	case s[0] == '%':
		digits := s[1:]
		v, err := strconv.ParseUint(digits, 2, 32)
		if err != nil {
			return Token{}, errors.Errorf("Bad binary number: %s", s)
		}
		return Token{Kind: Number, Num: int(v), Width: (len(digits) + 7) / 8}, nil

	case s[0] == '0':
		v, err := strconv.ParseUint(s, 8, 32)
		if err != nil {
			return Token{}, errors.Errorf("Bad octal number: %s", s)
		}
		return Token{Kind: Number, Num: int(v)}, nil

	default:
		v, err := strconv.ParseUint(s, 10, 32)
		if err != nil {
			return Token{}, errors.Errorf("Bad decimal number: %s", s)
		}
		return Token{Kind: Number, Num: int(v)}, nil
	}
}
