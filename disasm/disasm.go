// Copyright 2014-2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package disasm implements a 6502 instruction set
// disassembler.
package disasm

import (
	"fmt"

	"github.com/beevik/asm65/cpu"
)

// Disassembler formatting for addressing modes
var modeFormat = []string{
	"#$%s",    // IMM
	"%s",      // IMP
	"$%s",     // REL
	"$%s",     // ZPG
	"$%s,X",   // ZPX
	"$%s,Y",   // ZPY
	"$%s",     // ABS
	"$%s,X",   // ABX
	"$%s,Y",   // ABY
	"($%s)",   // IND
	"($%s,X)", // IDX
	"($%s),Y", // IDY
	"%s",      // ACC
}

var hex = "0123456789ABCDEF"

// Return a hexadecimal string representation of the byte slice, most
// significant byte first.
func hexString(b []byte) string {
	hexlen := len(b) * 2
	hexbuf := make([]byte, hexlen)
	j := hexlen - 1
	for _, n := range b {
		hexbuf[j] = hex[n&0xf]
		hexbuf[j-1] = hex[n>>4]
		j -= 2
	}
	return string(hexbuf)
}

// Disassemble the machine code at the start of 'code', which is loaded at
// CPU address 'addr'. Return a 'line' string representing the disassembled
// instruction and the 'length' of the instruction in bytes. An instruction
// cut short by the end of 'code' is shown as a byte directive.
func Disassemble(set *cpu.InstructionSet, code []byte, addr int) (line string, length int) {
	if len(code) == 0 {
		return "", 0
	}
	inst := set.Lookup(code[0])
	length = int(inst.Length)
	if length > len(code) {
		return fmt.Sprintf(".byte $%02X", code[0]), 1
	}
	operand := code[1:length]
	if inst.Mode == cpu.REL {
		// Convert relative offset to absolute address.
		braddr := addr + length + int(int8(operand[0]))
		operand = []byte{byte(braddr), byte(braddr >> 8)}
	}
	switch inst.Mode {
	case cpu.IMP:
		return inst.Name, length
	case cpu.ACC:
		return inst.Name + " A", length
	}
	format := "%s " + modeFormat[inst.Mode]
	return fmt.Sprintf(format, inst.Name, hexString(operand)), length
}
