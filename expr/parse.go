// Copyright 2014-2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package expr

import (
	"github.com/beevik/asm65/token"
	"github.com/pkg/errors"
)

// ParseOnly parses a single expression that must occupy the remainder of
// the token line starting at index.
func ParseOnly(tokens []token.Token, index int) (*Expr, error) {
	e, i, err := Parse(tokens, index)
	if err != nil {
		return nil, err
	}
	if i < len(tokens) {
		return nil, errors.Errorf("Garbage after expression: %s", token.NameAt(tokens[i]))
	}
	if e == nil {
		return nil, errors.New("No expression?")
	}
	return e, nil
}

// Parse parses an expression starting at tokens[index] using Dijkstra's
// shunting-yard algorithm. Parenthesized groups are parsed recursively.
// Parsing stops at a top-level comma or at the first token that cannot
// continue the expression; the index of that token is returned.
func Parse(tokens []token.Token, index int) (*Expr, int, error) {
	var operands exprStack
	var operators opStack

	wantValue := true
	i := index
	for ; i < len(tokens); i++ {
		front := tokens[i]

		if wantValue {
			switch front.Kind {
			case token.Directive, token.Op:
				name := front.Str
				if mapped, ok := nameMap[name]; ok {
					name = mapped
				}
				if op, ok := prefixOps[name]; ok {
					operators.push(pendingOp{op, front.Str})
					continue
				}
				if front.Kind == token.Directive {
					op, ok := functions[front.Str]
					if !ok {
						return nil, -1, errors.Errorf("No such function: %s", token.NameAt(front))
					}
					if i+1 >= len(tokens) || tokens[i+1].Kind != token.LP {
						next := front
						if i+1 < len(tokens) {
							next = tokens[i+1]
						}
						return nil, -1, errors.Errorf("Bad funcall: %s", token.NameAt(next))
					}
					end := token.FindBalanced(tokens, i+1)
					if end < 0 {
						return nil, -1, errors.Errorf("Never closed: %s", token.NameAt(tokens[i+1]))
					}
					var args []*Expr
					for _, arg := range token.ArgList(tokens, i+2, end) {
						a, err := ParseOnly(arg, 0)
						if err != nil {
							return nil, -1, err
						}
						args = append(args, a)
					}
					operands.push(fixSize(&Expr{Op: op, Args: args}))
					i = end
				} else if token.Eq(front, token.Star) {
					operands.push(Symbol("*"))
				} else {
					return nil, -1, errors.Errorf("Unknown prefix operator: %s", token.NameAt(front))
				}

			case token.LP:
				end := token.FindBalanced(tokens, i)
				if end < 0 {
					return nil, -1, errors.Errorf("No close paren: %s", token.NameAt(front))
				}
				e, err := ParseOnly(tokens[i+1:end], 0)
				if err != nil {
					return nil, -1, err
				}
				operands.push(e)
				i = end

			case token.Ident:
				operands.push(Symbol(front.Str))

			case token.Number:
				operands.push(Number(front.Num))

			default:
				return nil, -1, errors.Errorf("Bad expression token: %s", token.NameAt(front))
			}
			wantValue = false
			continue
		}

		// Looking for an infix operator or the end of the expression.
		if token.Eq(front, token.Comma) {
			break
		}
		if front.Kind != token.Directive && front.Kind != token.Op {
			break
		}
		name := front.Str
		if mapped, ok := nameMap[name]; ok {
			name = mapped
		}
		op, ok := binaryOps[name]
		if !ok {
			break
		}
		for !operators.empty() {
			top := operators.peek()
			cmp := compareOp(top.op, op)
			if cmp < 0 {
				break
			}
			if cmp == 0 {
				return nil, -1, errors.Errorf("Mixing %s and %s needs explicit parens.%s",
					top.text, front.Str, token.At(front.Source))
			}
			if err := operands.collapse(operators.pop().op); err != nil {
				return nil, -1, err
			}
		}
		operators.push(pendingOp{op, front.Str})
		wantValue = true
	}

	for !operators.empty() {
		if err := operands.collapse(operators.pop().op); err != nil {
			return nil, -1, err
		}
	}
	if operands.empty() {
		return nil, i, nil
	}
	if len(operands.data) != 1 {
		return nil, -1, errors.New("shunting parse failed?")
	}
	e := operands.peek()
	if index < len(tokens) && tokens[index].Source != nil {
		e.Source = tokens[index].Source
	}
	return e, i, nil
}

// compareOp returns a positive value if the operator on top of the stack
// binds tighter than next, a negative value if it binds looser, and 0 if
// the two may not be mixed without parentheses.
func compareOp(top, next Op) int {
	t, n := ops[top], ops[next]
	switch {
	case t.precedence > n.precedence:
		return 1
	case t.precedence < n.precedence:
		return -1
	case t.marker != n.marker:
		return 0
	default:
		return t.marker
	}
}

// fixSize applies the operation's size rule to the node's meta.
func fixSize(e *Expr) *Expr {
	size := 0
	switch ops[e.Op].size {
	case sizeByte:
		size = 1
	case sizeWidest:
		for _, a := range e.Args {
			s := a.Size()
			if s == 0 {
				return e
			}
			if s > size {
				size = s
			}
		}
	}
	if size > 0 {
		m := e.Meta.clone()
		m.Size = size
		e.Meta = m
	}
	return e
}

//
// exprStack
//

type exprStack struct {
	data []*Expr
}

func (s *exprStack) empty() bool {
	return len(s.data) == 0
}

func (s *exprStack) push(e *Expr) {
	s.data = append(s.data, e)
}

func (s *exprStack) pop() *Expr {
	l := len(s.data)
	e := s.data[l-1]
	s.data = s.data[:l-1]
	return e
}

func (s *exprStack) peek() *Expr {
	if len(s.data) == 0 {
		return nil
	}
	return s.data[len(s.data)-1]
}

// Collapse one or more expression nodes on the top of the stack into a
// combined expression node, and push the combined node back onto the
// stack.
func (s *exprStack) collapse(op Op) error {
	n := ops[op].arity
	if len(s.data) < n {
		return errors.New("shunting parse failed?")
	}
	args := make([]*Expr, n)
	for i := n - 1; i >= 0; i-- {
		args[i] = s.pop()
	}
	s.push(fixSize(&Expr{Op: op, Args: args}))
	return nil
}

//
// opStack
//

type pendingOp struct {
	op   Op
	text string // operator as written, for diagnostics
}

type opStack struct {
	data []pendingOp
}

func (s *opStack) push(op pendingOp) {
	s.data = append(s.data, op)
}

func (s *opStack) pop() pendingOp {
	op := s.data[len(s.data)-1]
	s.data = s.data[:len(s.data)-1]
	return op
}

func (s *opStack) empty() bool {
	return len(s.data) == 0
}

func (s *opStack) peek() pendingOp {
	return s.data[len(s.data)-1]
}
