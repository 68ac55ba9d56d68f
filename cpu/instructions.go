// Copyright 2014-2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package cpu describes the instruction encodings of the 6502 family of
// processors.
package cpu

import (
	"sort"
	"strings"
)

// Architecture selects the CPU chip: 6502 or 65c02
type Architecture byte

const (
	// NMOS 6502 CPU, including its stable undocumented opcodes
	NMOS Architecture = iota

	// CMOS 65c02 CPU
	CMOS
)

var archNames = []string{"6502", "65c02"}

func (a Architecture) String() string {
	return archNames[a]
}

// ParseArchitecture returns the architecture with the given name.
func ParseArchitecture(name string) (Architecture, bool) {
	for i, n := range archNames {
		if strings.EqualFold(n, name) {
			return Architecture(i), true
		}
	}
	return NMOS, false
}

// Mode describes a memory addressing mode.
type Mode byte

// All possible memory addressing modes
const (
	IMM Mode = iota // Immediate
	IMP             // Implied (no operand)
	REL             // Relative
	ZPG             // Zero Page
	ZPX             // Zero Page,X
	ZPY             // Zero Page,Y
	ABS             // Absolute
	ABX             // Absolute,X
	ABY             // Absolute,Y
	IND             // (Indirect)
	IDX             // (Indirect,X)
	IDY             // (Indirect),Y
	ACC             // Accumulator (no operand)
)

var modeNames = []string{
	"imm", "imp", "rel", "zpg", "zpx", "zpy", "abs", "abx", "aby",
	"ind", "inx", "iny", "acc",
}

func (m Mode) String() string {
	return modeNames[m]
}

// ArgLen returns the number of operand bytes that usually follow the
// opcode. Instruction.Length is authoritative for zero page indirect.
func (m Mode) ArgLen() int {
	switch m {
	case IMP, ACC:
		return 0
	case ABS, ABX, ABY, IND:
		return 2
	default:
		return 1
	}
}

// An opmap holds the opcode of each addressing mode supported by a
// mnemonic.
type opmap map[Mode]byte

type mnemonic struct {
	name string
	ops  opmap
}

// Documented instructions shared by every 6502 variant.
var common = []mnemonic{
	{"ADC", opmap{ABS: 0x6d, ABX: 0x7d, ABY: 0x79, IMM: 0x69, IDY: 0x71, IDX: 0x61, ZPG: 0x65, ZPX: 0x75}},
	{"AND", opmap{ABS: 0x2d, ABX: 0x3d, ABY: 0x39, IMM: 0x29, IDY: 0x31, IDX: 0x21, ZPG: 0x25, ZPX: 0x35}},
	{"ASL", opmap{ABS: 0x0e, ABX: 0x1e, ACC: 0x0a, IMP: 0x0a, ZPG: 0x06, ZPX: 0x16}},
	{"BCC", opmap{REL: 0x90}},
	{"BCS", opmap{REL: 0xb0}},
	{"BEQ", opmap{REL: 0xf0}},
	{"BIT", opmap{ABS: 0x2c, ZPG: 0x24}},
	{"BMI", opmap{REL: 0x30}},
	{"BNE", opmap{REL: 0xd0}},
	{"BPL", opmap{REL: 0x10}},
	{"BRK", opmap{IMP: 0x00}},
	{"BVC", opmap{REL: 0x50}},
	{"BVS", opmap{REL: 0x70}},
	{"CLC", opmap{IMP: 0x18}},
	{"CLD", opmap{IMP: 0xd8}},
	{"CLI", opmap{IMP: 0x58}},
	{"CLV", opmap{IMP: 0xb8}},
	{"CMP", opmap{ABS: 0xcd, ABX: 0xdd, ABY: 0xd9, IMM: 0xc9, IDY: 0xd1, IDX: 0xc1, ZPG: 0xc5, ZPX: 0xd5}},
	{"CPX", opmap{ABS: 0xec, IMM: 0xe0, ZPG: 0xe4}},
	{"CPY", opmap{ABS: 0xcc, IMM: 0xc0, ZPG: 0xc4}},
	{"DEC", opmap{ABS: 0xce, ABX: 0xde, ZPG: 0xc6, ZPX: 0xd6}},
	{"DEX", opmap{IMP: 0xca}},
	{"DEY", opmap{IMP: 0x88}},
	{"EOR", opmap{ABS: 0x4d, ABX: 0x5d, ABY: 0x59, IMM: 0x49, IDY: 0x51, IDX: 0x41, ZPG: 0x45, ZPX: 0x55}},
	{"INC", opmap{ABS: 0xee, ABX: 0xfe, ZPG: 0xe6, ZPX: 0xf6}},
	{"INX", opmap{IMP: 0xe8}},
	{"INY", opmap{IMP: 0xc8}},
	{"JMP", opmap{ABS: 0x4c, IND: 0x6c}},
	{"JSR", opmap{ABS: 0x20}},
	{"LDA", opmap{ABS: 0xad, ABX: 0xbd, ABY: 0xb9, IMM: 0xa9, IDY: 0xb1, IDX: 0xa1, ZPG: 0xa5, ZPX: 0xb5}},
	{"LDX", opmap{ABS: 0xae, ABY: 0xbe, IMM: 0xa2, ZPG: 0xa6, ZPY: 0xb6}},
	{"LDY", opmap{ABS: 0xac, ABX: 0xbc, IMM: 0xa0, ZPG: 0xa4, ZPX: 0xb4}},
	{"LSR", opmap{ABS: 0x4e, ABX: 0x5e, ACC: 0x4a, IMP: 0x4a, ZPG: 0x46, ZPX: 0x56}},
	{"NOP", opmap{IMP: 0xea}},
	{"ORA", opmap{ABS: 0x0d, ABX: 0x1d, ABY: 0x19, IMM: 0x09, IDY: 0x11, IDX: 0x01, ZPG: 0x05, ZPX: 0x15}},
	{"PHA", opmap{IMP: 0x48}},
	{"PHP", opmap{IMP: 0x08}},
	{"PLA", opmap{IMP: 0x68}},
	{"PLP", opmap{IMP: 0x28}},
	{"ROL", opmap{ABS: 0x2e, ABX: 0x3e, ACC: 0x2a, IMP: 0x2a, ZPG: 0x26, ZPX: 0x36}},
	{"ROR", opmap{ABS: 0x6e, ABX: 0x7e, ACC: 0x6a, IMP: 0x6a, ZPG: 0x66, ZPX: 0x76}},
	{"RTI", opmap{IMP: 0x40}},
	{"RTS", opmap{IMP: 0x60}},
	{"SBC", opmap{ABS: 0xed, ABX: 0xfd, ABY: 0xf9, IMM: 0xe9, IDY: 0xf1, IDX: 0xe1, ZPG: 0xe5, ZPX: 0xf5}},
	{"SEC", opmap{IMP: 0x38}},
	{"SED", opmap{IMP: 0xf8}},
	{"SEI", opmap{IMP: 0x78}},
	{"STA", opmap{ABS: 0x8d, ABX: 0x9d, ABY: 0x99, IDY: 0x91, IDX: 0x81, ZPG: 0x85, ZPX: 0x95}},
	{"STX", opmap{ABS: 0x8e, ZPG: 0x86, ZPY: 0x96}},
	{"STY", opmap{ABS: 0x8c, ZPG: 0x84, ZPX: 0x94}},
	{"TAX", opmap{IMP: 0xaa}},
	{"TAY", opmap{IMP: 0xa8}},
	{"TSX", opmap{IMP: 0xba}},
	{"TXA", opmap{IMP: 0x8a}},
	{"TXS", opmap{IMP: 0x9a}},
	{"TYA", opmap{IMP: 0x98}},
}

// Stable undocumented NMOS instructions.
var undocumented = []mnemonic{
	{"SLO", opmap{ABS: 0x0f, ABX: 0x1f, ABY: 0x1b, ZPG: 0x07, ZPX: 0x17, IDX: 0x03, IDY: 0x13}},
	{"RLA", opmap{ABS: 0x2f, ABX: 0x3f, ABY: 0x3b, ZPG: 0x27, ZPX: 0x37, IDX: 0x23, IDY: 0x33}},
	{"SRE", opmap{ABS: 0x4f, ABX: 0x5f, ABY: 0x5b, ZPG: 0x47, ZPX: 0x57, IDX: 0x43, IDY: 0x53}},
	{"RRA", opmap{ABS: 0x6f, ABX: 0x7f, ABY: 0x7b, ZPG: 0x67, ZPX: 0x77, IDX: 0x63, IDY: 0x73}},
	{"SAX", opmap{ABS: 0x8f, ZPG: 0x87, ZPY: 0x97, IDX: 0x83}},
	{"LAX", opmap{ABS: 0xaf, ABY: 0xbf, ZPG: 0xa7, ZPY: 0xb7, IDX: 0xa3, IDY: 0xb3}},
	{"DCP", opmap{ABS: 0xcf, ABX: 0xdf, ABY: 0xdb, ZPG: 0xc7, ZPX: 0xd7, IDX: 0xc3, IDY: 0xd3}},
	{"ISC", opmap{ABS: 0xef, ABX: 0xff, ABY: 0xfb, ZPG: 0xe7, ZPX: 0xf7, IDX: 0xe3, IDY: 0xf3}},
	{"ALR", opmap{IMM: 0x4b}},
	{"ARR", opmap{IMM: 0x6b}},
	{"AXS", opmap{IMM: 0xcb}},
	{"TAS", opmap{ABY: 0x9b}},
	{"SHY", opmap{ABX: 0x9c}},
	{"SHX", opmap{ABY: 0x9e}},
	{"AHX", opmap{ABY: 0x9f, IDY: 0x93}},
	{"ANC", opmap{IMM: 0x2b}},
	{"LAS", opmap{ABY: 0xbb}},
}

// Instructions and addressing modes added by the 65c02.
var cmosExtensions = []mnemonic{
	{"ADC", opmap{IND: 0x72}},
	{"AND", opmap{IND: 0x32}},
	{"BIT", opmap{IMM: 0x89, ZPX: 0x34, ABX: 0x3c}},
	{"BRA", opmap{REL: 0x80}},
	{"CMP", opmap{IND: 0xd2}},
	{"DEC", opmap{ACC: 0x3a}},
	{"EOR", opmap{IND: 0x52}},
	{"INC", opmap{ACC: 0x1a}},
	{"JMP", opmap{ABX: 0x7c}},
	{"LDA", opmap{IND: 0xb2}},
	{"ORA", opmap{IND: 0x12}},
	{"PHX", opmap{IMP: 0xda}},
	{"PHY", opmap{IMP: 0x5a}},
	{"PLX", opmap{IMP: 0xfa}},
	{"PLY", opmap{IMP: 0x7a}},
	{"SBC", opmap{IND: 0xf2}},
	{"STA", opmap{IND: 0x92}},
	{"STZ", opmap{ZPG: 0x64, ZPX: 0x74, ABS: 0x9c, ABX: 0x9e}},
	{"TRB", opmap{ZPG: 0x14, ABS: 0x1c}},
	{"TSB", opmap{ZPG: 0x04, ABS: 0x0c}},
}

// An Instruction describes a CPU instruction, including its name, its
// addressing mode, its opcode value and its encoded size.
type Instruction struct {
	Name   string // all-caps name of the instruction
	Mode   Mode   // addressing mode
	Opcode byte   // hexadecimal opcode value
	Length byte   // combined size of opcode and operand, in bytes
}

// An InstructionSet defines the set of all instructions that can be
// encoded for a CPU architecture.
type InstructionSet struct {
	Arch         Architecture
	instructions [256]Instruction               // all instructions by opcode
	variants     map[string]map[Mode]*Instruction // variants of each instruction
}

// Lookup retrieves a CPU instruction corresponding to the requested opcode.
// Opcodes with no instruction are named "???".
func (s *InstructionSet) Lookup(opcode byte) *Instruction {
	return &s.instructions[opcode]
}

// IsMnemonic reports whether name is an instruction of the set.
func (s *InstructionSet) IsMnemonic(name string) bool {
	_, ok := s.variants[strings.ToUpper(name)]
	return ok
}

// GetInstructions returns all CPU instructions whose name matches the
// provided string.
func (s *InstructionSet) GetInstructions(name string) []*Instruction {
	var out []*Instruction
	seen := make(map[*Instruction]bool)
	for _, inst := range s.variants[strings.ToUpper(name)] {
		if !seen[inst] {
			seen[inst] = true
			out = append(out, inst)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Mode < out[j].Mode })
	return out
}

// Find returns the instruction with the given name and addressing mode,
// or nil if there is none.
func (s *InstructionSet) Find(name string, mode Mode) *Instruction {
	return s.variants[strings.ToUpper(name)][mode]
}

// Create an instruction set for a CPU architecture.
func newInstructionSet(arch Architecture) *InstructionSet {
	set := &InstructionSet{
		Arch:     arch,
		variants: make(map[string]map[Mode]*Instruction),
	}

	for i := range set.instructions {
		set.instructions[i] = Instruction{Name: "???", Mode: IMP, Opcode: byte(i), Length: 1}
	}

	add := func(table []mnemonic) {
		for _, m := range table {
			modes := set.variants[m.name]
			if modes == nil {
				modes = make(map[Mode]*Instruction)
				set.variants[m.name] = modes
			}
			for mode, opcode := range m.ops {
				inst := &set.instructions[opcode]
				// The accumulator form shares its opcode with the implied
				// form; keep ACC for disassembly.
				if inst.Name == m.name && inst.Mode == ACC {
					modes[mode] = inst
					continue
				}
				length := 1 + mode.ArgLen()
				if mode == IND && m.name != "JMP" {
					length = 2 // 65c02 zero page indirect
				}
				*inst = Instruction{
					Name:   m.name,
					Mode:   mode,
					Opcode: opcode,
					Length: byte(length),
				}
				modes[mode] = inst
			}
		}
	}

	add(common)
	switch arch {
	case NMOS:
		add(undocumented)
	case CMOS:
		add(cmosExtensions)
	}
	return set
}

var instructionSets = [...]*InstructionSet{
	NMOS: newInstructionSet(NMOS),
	CMOS: newInstructionSet(CMOS),
}

// GetInstructionSet returns an instruction set for the requested CPU
// architecture.
func GetInstructionSet(arch Architecture) *InstructionSet {
	return instructionSets[arch]
}
