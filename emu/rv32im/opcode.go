/*
 * zkRISCV - RV32IM instruction decoding.
 *
 * Copyright 2024, Richard Cornwell
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in
 * all copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

// Package rv32im decodes and executes the RV32IM instruction set.
package rv32im

import "fmt"

// Register ABI indices used by the ecall interface.
const (
	RegZero = 0
	RegRA   = 1
	RegSP   = 2
	RegT0   = 5
	RegA0   = 10
	RegA1   = 11
	RegA2   = 12
	RegA3   = 13
	RegA4   = 14
	RegA5   = 15
)

// MajorType classifies an instruction for cycle accounting.
type MajorType int

const (
	Compute0 MajorType = iota // control transfer and upper immediates
	Compute1                  // integer ALU
	Compute2                  // fences and other misc ops
	MemIO                     // loads and stores
	Mul                       // multiply unit
	Div                       // divide unit
	ECall                     // environment call
)

func (m MajorType) String() string {
	switch m {
	case Compute0:
		return "Compute0"
	case Compute1:
		return "Compute1"
	case Compute2:
		return "Compute2"
	case MemIO:
		return "MemIO"
	case Mul:
		return "Mul"
	case Div:
		return "Div"
	case ECall:
		return "ECall"
	}
	return "Unknown"
}

// Base cycle count for each major class, independent of operands.
func (m MajorType) Cycles() int {
	if m == Div {
		return 2
	}
	return 1
}

// OpCode is a decoded instruction with its cycle class.
type OpCode struct {
	Insn     uint32
	Mnemonic string
	Major    MajorType
	Cycles   int
}

// DecodeError indicates an instruction word that is not valid RV32IM.
type DecodeError struct {
	PC   uint32
	Insn uint32
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("illegal instruction 0x%08x at pc 0x%08x", e.Insn, e.PC)
}

func newOp(insn uint32, mnemonic string, major MajorType) (OpCode, error) {
	return OpCode{Insn: insn, Mnemonic: mnemonic, Major: major, Cycles: major.Cycles()}, nil
}

// Instruction field accessors.
func opcodeBits(insn uint32) uint32 { return insn & 0x7f }
func rd(insn uint32) uint32        { return (insn >> 7) & 0x1f }
func funct3(insn uint32) uint32    { return (insn >> 12) & 0x7 }
func rs1(insn uint32) uint32       { return (insn >> 15) & 0x1f }
func rs2(insn uint32) uint32       { return (insn >> 20) & 0x1f }
func funct7(insn uint32) uint32    { return insn >> 25 }

// Decode classifies one instruction word. Invalid encodings fail with a
// DecodeError carrying the pc.
func Decode(insn uint32, pc uint32) (OpCode, error) {
	bad := func() (OpCode, error) {
		return OpCode{}, &DecodeError{PC: pc, Insn: insn}
	}

	switch opcodeBits(insn) {
	case 0x37:
		return newOp(insn, "LUI", Compute0)
	case 0x17:
		return newOp(insn, "AUIPC", Compute0)
	case 0x6f:
		return newOp(insn, "JAL", Compute0)
	case 0x67:
		if funct3(insn) != 0 {
			return bad()
		}
		return newOp(insn, "JALR", Compute0)
	case 0x63:
		switch funct3(insn) {
		case 0:
			return newOp(insn, "BEQ", Compute0)
		case 1:
			return newOp(insn, "BNE", Compute0)
		case 4:
			return newOp(insn, "BLT", Compute0)
		case 5:
			return newOp(insn, "BGE", Compute0)
		case 6:
			return newOp(insn, "BLTU", Compute0)
		case 7:
			return newOp(insn, "BGEU", Compute0)
		}
		return bad()
	case 0x03:
		switch funct3(insn) {
		case 0:
			return newOp(insn, "LB", MemIO)
		case 1:
			return newOp(insn, "LH", MemIO)
		case 2:
			return newOp(insn, "LW", MemIO)
		case 4:
			return newOp(insn, "LBU", MemIO)
		case 5:
			return newOp(insn, "LHU", MemIO)
		}
		return bad()
	case 0x23:
		switch funct3(insn) {
		case 0:
			return newOp(insn, "SB", MemIO)
		case 1:
			return newOp(insn, "SH", MemIO)
		case 2:
			return newOp(insn, "SW", MemIO)
		}
		return bad()
	case 0x13:
		switch funct3(insn) {
		case 0:
			return newOp(insn, "ADDI", Compute1)
		case 1:
			if funct7(insn) != 0 {
				return bad()
			}
			return newOp(insn, "SLLI", Compute1)
		case 2:
			return newOp(insn, "SLTI", Compute1)
		case 3:
			return newOp(insn, "SLTIU", Compute1)
		case 4:
			return newOp(insn, "XORI", Compute1)
		case 5:
			switch funct7(insn) {
			case 0x00:
				return newOp(insn, "SRLI", Compute1)
			case 0x20:
				return newOp(insn, "SRAI", Compute1)
			}
			return bad()
		case 6:
			return newOp(insn, "ORI", Compute1)
		case 7:
			return newOp(insn, "ANDI", Compute1)
		}
		return bad()
	case 0x33:
		switch funct7(insn) {
		case 0x00:
			switch funct3(insn) {
			case 0:
				return newOp(insn, "ADD", Compute1)
			case 1:
				return newOp(insn, "SLL", Compute1)
			case 2:
				return newOp(insn, "SLT", Compute1)
			case 3:
				return newOp(insn, "SLTU", Compute1)
			case 4:
				return newOp(insn, "XOR", Compute1)
			case 5:
				return newOp(insn, "SRL", Compute1)
			case 6:
				return newOp(insn, "OR", Compute1)
			case 7:
				return newOp(insn, "AND", Compute1)
			}
		case 0x20:
			switch funct3(insn) {
			case 0:
				return newOp(insn, "SUB", Compute1)
			case 5:
				return newOp(insn, "SRA", Compute1)
			}
			return bad()
		case 0x01:
			switch funct3(insn) {
			case 0:
				return newOp(insn, "MUL", Mul)
			case 1:
				return newOp(insn, "MULH", Mul)
			case 2:
				return newOp(insn, "MULHSU", Mul)
			case 3:
				return newOp(insn, "MULHU", Mul)
			case 4:
				return newOp(insn, "DIV", Div)
			case 5:
				return newOp(insn, "DIVU", Div)
			case 6:
				return newOp(insn, "REM", Div)
			case 7:
				return newOp(insn, "REMU", Div)
			}
		}
		return bad()
	case 0x0f:
		if funct3(insn) != 0 {
			return bad()
		}
		return newOp(insn, "FENCE", Compute2)
	case 0x73:
		// Only a bare ECALL is supported; EBREAK and the CSR space are
		// not part of this machine.
		if insn == 0x00000073 {
			return newOp(insn, "ECALL", ECall)
		}
		return bad()
	}
	return bad()
}
