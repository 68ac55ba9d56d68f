// Copyright 2014-2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package expr implements the expression trees shared by the assembler and
// the linker: parsing from tokens, constant folding with relocation
// metadata, and tree rewriting.
package expr

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/beevik/asm65/token"
	"github.com/pkg/errors"
)

//
// Op
//

// An Op identifies the operation performed by an expression node.
type Op byte

// All expression operations. Leaf operations come first, followed by
// unary, binary and function operations.
const (
	// leaves
	OpNum    Op = iota // numeric value, possibly chunk-relative
	OpSym              // symbol reference, by name or by module symbol index
	OpImport           // import of a symbol exported by another module
	OpMove             // copy of bytes from the original image

	// prefix operations
	OpPos
	OpNeg
	OpBitNot
	OpLoByte
	OpHiByte
	OpBankByte
	OpNot

	// binary operations
	OpMul
	OpDiv
	OpMod
	OpBitAnd
	OpBitXor
	OpShl
	OpShr
	OpAdd
	OpSub
	OpBitOr
	OpLt
	OpLe
	OpGt
	OpGe
	OpEq
	OpNe
	OpAnd
	OpXor
	OpOr

	// functions
	OpByteAt
	OpWordAt
	OpMax
	OpMin
)

const (
	arityLeaf     = 0
	arityUnary    = 1
	arityBinary   = 2
	arityVariadic = -1
)

// A sizeRule describes how an operation derives its result's size hint.
type sizeRule byte

const (
	sizeKeep   sizeRule = iota // no size hint
	sizeByte                   // always a single byte
	sizeWidest                 // widest argument, if all are known
)

type opdata struct {
	symbol     string
	arity      int
	precedence int
	marker     int
	size       sizeRule
	eval       func(a, b int) int
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Bitwise operations act on 32-bit two's complement values.
func i32(x int) int32   { return int32(uint32(x)) }
func u32(x int) uint32  { return uint32(x) }
func shift(b int) uint  { return uint(u32(b) & 31) }
func truthy(x int) bool { return x != 0 }

var ops = []opdata{
	// leaves
	{"num", arityLeaf, 0, 0, sizeKeep, nil},
	{"sym", arityLeaf, 0, 0, sizeKeep, nil},
	{"im", arityLeaf, 0, 0, sizeKeep, nil},
	{".move", arityUnary, 0, 0, sizeKeep, nil},

	// prefix
	{"+", arityUnary, 9, -1, sizeKeep, func(a, _ int) int { return a }},
	{"-", arityUnary, 9, -1, sizeKeep, func(a, _ int) int { return -a }},
	{"~", arityUnary, 9, -1, sizeKeep, func(a, _ int) int { return int(^i32(a)) }},
	{"<", arityUnary, 9, -1, sizeByte, func(a, _ int) int { return a & 0xff }},
	{">", arityUnary, 9, -1, sizeByte, func(a, _ int) int { return (a >> 8) & 0xff }},
	{"^", arityUnary, 9, -1, sizeByte, nil},
	{"!", arityUnary, 2, -1, sizeByte, func(a, _ int) int { return boolInt(a == 0) }},

	// binary
	{"*", arityBinary, 5, 4, sizeKeep, func(a, b int) int { return a * b }},
	{"/", arityBinary, 5, 4, sizeKeep, floorDiv},
	{".mod", arityBinary, 5, 3, sizeKeep, func(a, b int) int { return a % b }},
	{"&", arityBinary, 5, 2, sizeWidest, func(a, b int) int { return int(i32(a) & i32(b)) }},
	{"^", arityBinary, 5, 1, sizeWidest, func(a, b int) int { return int(i32(a) ^ i32(b)) }},
	{"<<", arityBinary, 5, 0, sizeKeep, func(a, b int) int { return int(i32(a) << shift(b)) }},
	{">>", arityBinary, 5, 0, sizeKeep, func(a, b int) int { return int(u32(a) >> shift(b)) }},
	{"+", arityBinary, 4, 2, sizeKeep, func(a, b int) int { return a + b }},
	{"-", arityBinary, 4, 2, sizeKeep, func(a, b int) int { return a - b }},
	{"|", arityBinary, 4, 1, sizeWidest, func(a, b int) int { return int(i32(a) | i32(b)) }},
	{"<", arityBinary, 3, 0, sizeByte, func(a, b int) int { return boolInt(a < b) }},
	{"<=", arityBinary, 3, 0, sizeByte, func(a, b int) int { return boolInt(a <= b) }},
	{">", arityBinary, 3, 0, sizeByte, func(a, b int) int { return boolInt(a > b) }},
	{">=", arityBinary, 3, 0, sizeByte, func(a, b int) int { return boolInt(a >= b) }},
	{"=", arityBinary, 3, 0, sizeByte, func(a, b int) int { return boolInt(a == b) }},
	{"<>", arityBinary, 3, 0, sizeByte, func(a, b int) int { return boolInt(a != b) }},
	{"&&", arityBinary, 2, 3, sizeWidest, logicalAnd},
	{".xor", arityBinary, 2, 2, sizeWidest, logicalXor},
	{"||", arityBinary, 2, 1, sizeWidest, logicalOr},

	// functions
	{".byteat", arityVariadic, 0, 0, sizeKeep, nil},
	{".wordat", arityVariadic, 0, 0, sizeKeep, nil},
	{".max", arityVariadic, 0, 0, sizeWidest, nil},
	{".min", arityVariadic, 0, 0, sizeWidest, nil},
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func logicalAnd(a, b int) int {
	if !truthy(a) {
		return a
	}
	return b
}

func logicalOr(a, b int) int {
	if truthy(a) {
		return a
	}
	return b
}

func logicalXor(a, b int) int {
	switch {
	case !truthy(a) && truthy(b):
		return b
	case !truthy(b) && truthy(a):
		return a
	default:
		return 0
	}
}

// Symbol returns the source text of the operation.
func (op Op) Symbol() string {
	return ops[op].symbol
}

// IsUnary reports whether the operation takes exactly one argument.
func (op Op) IsUnary() bool {
	return ops[op].arity == arityUnary
}

// IsBinary reports whether the operation takes exactly two arguments.
func (op Op) IsBinary() bool {
	return ops[op].arity == arityBinary
}

// IsFunction reports whether the operation is a function call.
func (op Op) IsFunction() bool {
	return ops[op].arity == arityVariadic
}

func (op Op) String() string {
	return op.Symbol()
}

// lookupOp returns the operation with the given symbol and argument count.
func lookupOp(symbol string, nargs int) (Op, bool) {
	for i, o := range ops {
		if o.symbol != symbol {
			continue
		}
		if o.arity == arityVariadic || o.arity == nargs {
			return Op(i), true
		}
	}
	return 0, false
}

// Aliases for operators written as control sequences.
var nameMap = map[string]string{
	".bitand":   "&",
	".bitxor":   "^",
	".bitor":    "|",
	".shl":      "<<",
	".shr":      ">>",
	".and":      "&&",
	".or":       "||",
	".bitnot":   "~",
	".lobyte":   "<",
	".hibyte":   ">",
	".bankbyte": "^",
	".not":      "!",
}

var prefixOps = map[string]Op{
	"+": OpPos, "-": OpNeg, "~": OpBitNot, "<": OpLoByte,
	">": OpHiByte, "^": OpBankByte, "!": OpNot,
}

var binaryOps = map[string]Op{
	"*": OpMul, "/": OpDiv, ".mod": OpMod, "&": OpBitAnd, "^": OpBitXor,
	"<<": OpShl, ">>": OpShr, "+": OpAdd, "-": OpSub, "|": OpBitOr,
	"<": OpLt, "<=": OpLe, ">": OpGt, ">=": OpGe, "=": OpEq, "==": OpEq, "<>": OpNe,
	"&&": OpAnd, ".xor": OpXor, "||": OpOr,
}

var functions = map[string]Op{
	".byteat": OpByteAt, ".wordat": OpWordAt, ".max": OpMax, ".min": OpMin,
}

//
// Meta
//

// Meta holds relocation information attached to numeric values. A Meta is
// never modified once attached to an expression; changes produce copies.
type Meta struct {
	Rel    bool `json:"rel,omitempty"`    // relative to the start of Chunk
	Chunk  *int `json:"chunk,omitempty"`  // chunk the value is defined in
	Org    *int `json:"org,omitempty"`    // origin of the chunk, if known
	Bank   *int `json:"bank,omitempty"`   // bank of the chunk, if known
	Offset *int `json:"offset,omitempty"` // file offset of the chunk, if known
	Size   int  `json:"size,omitempty"`   // size hint in bytes, 0 if unknown
}

// Int returns a pointer to a copy of v, for populating Meta fields.
func Int(v int) *int {
	return &v
}

func (m *Meta) clone() *Meta {
	if m == nil {
		return &Meta{}
	}
	c := *m
	return &c
}

func (m *Meta) rel() bool {
	return m != nil && m.Rel
}

func (m *Meta) size() int {
	if m == nil {
		return 0
	}
	return m.Size
}

func sameInt(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// SameChunk reports whether both metas refer to the same chunk.
func SameChunk(a, b *Meta) bool {
	if a == nil || b == nil || a.Chunk == nil || b.Chunk == nil {
		return false
	}
	return *a.Chunk == *b.Chunk
}

func sizeOf(n int) int {
	if n >= 0 && n < 256 {
		return 1
	}
	return 2
}

//
// Expr
//

// An Expr is a node in an expression tree.
type Expr struct {
	Op     Op
	Args   []*Expr
	Num    int           // value of OpNum, or symbol index of an OpSym
	Sym    string        // name of an OpSym or OpImport, if named
	Meta   *Meta         // relocation data and size hint
	Source *token.Source // where the expression was parsed, if known
}

// Number returns an absolute numeric leaf with a size hint.
func Number(n int) *Expr {
	return &Expr{Op: OpNum, Num: n, Meta: &Meta{Size: sizeOf(n)}}
}

// Offset returns a numeric leaf relative to the start of a chunk.
func Offset(n, chunk int) *Expr {
	return &Expr{Op: OpNum, Num: n, Meta: &Meta{Rel: true, Chunk: Int(chunk)}}
}

// Symbol returns a reference to a named symbol.
func Symbol(name string) *Expr {
	return &Expr{Op: OpSym, Sym: name}
}

// SymbolID returns a reference to a module symbol by index.
func SymbolID(id int) *Expr {
	return &Expr{Op: OpSym, Num: id}
}

// Binary returns a binary expression node.
func Binary(op Op, a, b *Expr) *Expr {
	return &Expr{Op: op, Args: []*Expr{a, b}}
}

// IsNum reports whether the node is a numeric leaf.
func (e *Expr) IsNum() bool {
	return e != nil && e.Op == OpNum
}

// IsAbs reports whether the node is an absolute number.
func (e *Expr) IsAbs() bool {
	return e.IsNum() && !e.Meta.rel()
}

// IsRel reports whether the node is a chunk-relative number.
func (e *Expr) IsRel() bool {
	return e.IsNum() && e.Meta.rel()
}

// Size returns the size hint of the expression, or 0 if unknown.
func (e *Expr) Size() int {
	return e.Meta.size()
}

func (e *Expr) shallow() *Expr {
	c := *e
	return &c
}

// Value returns the value of a fully-resolved absolute expression.
func Value(e *Expr) (int, bool) {
	if e.IsAbs() {
		return e.Num, true
	}
	return 0, false
}

// String returns a compact prefix rendering of the expression.
func (e *Expr) String() string {
	var b strings.Builder
	e.write(&b)
	return b.String()
}

func (e *Expr) write(b *strings.Builder) {
	switch e.Op {
	case OpNum:
		if e.Meta.rel() {
			fmt.Fprintf(b, "[%d]+%d", *e.Meta.Chunk, e.Num)
		} else {
			fmt.Fprintf(b, "%d", e.Num)
		}
	case OpSym:
		if e.Sym != "" {
			b.WriteString(e.Sym)
		} else {
			fmt.Fprintf(b, "sym:%d", e.Num)
		}
	case OpImport:
		b.WriteString("im:" + e.Sym)
	default:
		b.WriteString("(" + e.Op.Symbol())
		for _, a := range e.Args {
			b.WriteByte(' ')
			a.write(b)
		}
		b.WriteByte(')')
	}
}

type jsonExpr struct {
	Op     string        `json:"op"`
	Args   []*Expr       `json:"args,omitempty"`
	Num    int           `json:"num,omitempty"`
	Sym    string        `json:"sym,omitempty"`
	Meta   *Meta         `json:"meta,omitempty"`
	Source *token.Source `json:"source,omitempty"`
}

// MarshalJSON encodes the expression with operations as source symbols.
func (e *Expr) MarshalJSON() ([]byte, error) {
	return json.Marshal(jsonExpr{
		Op:     e.Op.Symbol(),
		Args:   e.Args,
		Num:    e.Num,
		Sym:    e.Sym,
		Meta:   e.Meta,
		Source: e.Source,
	})
}

// UnmarshalJSON decodes an expression, using the argument count to tell
// unary from binary operations.
func (e *Expr) UnmarshalJSON(data []byte) error {
	var j jsonExpr
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	op, ok := lookupOp(j.Op, len(j.Args))
	if !ok {
		return errors.Errorf("Unknown operator: %s/%d", j.Op, len(j.Args))
	}
	*e = Expr{Op: op, Args: j.Args, Num: j.Num, Sym: j.Sym, Meta: j.Meta, Source: j.Source}
	return nil
}
