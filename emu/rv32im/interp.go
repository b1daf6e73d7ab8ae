/*
 * zkRISCV - RV32IM inner interpreter.
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

package rv32im

import (
	"fmt"
	"math"
)

// HartState is the register file of one hart. LastRegisterWrite reports
// the destination register of the last executed instruction, or -1.
type HartState struct {
	Registers         [32]uint32
	PC                uint32
	LastRegisterWrite int
}

// NewHartState builds a hart at pc with the given register file.
func NewHartState(registers [32]uint32, pc uint32) *HartState {
	return &HartState{Registers: registers, PC: pc, LastRegisterWrite: -1}
}

// Reads of x0 always yield zero; writes to it are discarded.
func (h *HartState) readReg(i uint32) uint32 {
	if i == RegZero {
		return 0
	}
	return h.Registers[i]
}

func (h *HartState) writeReg(i uint32, v uint32) {
	if i == RegZero {
		return
	}
	h.Registers[i] = v
	h.LastRegisterWrite = int(i)
}

// Memory is the aligned word-level memory an InstructionExecutor runs
// against. Sub-word accesses are synthesized from word operations so the
// memory only ever sees aligned traffic.
type Memory interface {
	LoadWord(addr uint32) (uint32, error)
	StoreWord(addr uint32, value uint32) error
}

// AlignmentError indicates a guest load or store whose address is not a
// multiple of the access size.
type AlignmentError struct {
	PC   uint32
	Addr uint32
	Size uint32
}

func (e *AlignmentError) Error() string {
	return fmt.Sprintf("unaligned %d-byte access to 0x%08x at pc 0x%08x", e.Size, e.Addr, e.PC)
}

// InstructionExecutor executes one instruction against a hart and memory.
type InstructionExecutor struct {
	Mem  Memory
	Hart *HartState
}

// Immediate extraction for each instruction format.
func immI(insn uint32) uint32 {
	return uint32(int32(insn) >> 20)
}

func immS(insn uint32) uint32 {
	return uint32(int32(insn&0xfe000000)>>20) | ((insn >> 7) & 0x1f)
}

func immB(insn uint32) uint32 {
	imm := uint32(int32(insn)>>31) << 12
	imm |= ((insn >> 25) & 0x3f) << 5
	imm |= ((insn >> 8) & 0xf) << 1
	imm |= ((insn >> 7) & 0x1) << 11
	return imm
}

func immU(insn uint32) uint32 {
	return insn & 0xfffff000
}

func immJ(insn uint32) uint32 {
	imm := uint32(int32(insn)>>31) << 20
	imm |= ((insn >> 21) & 0x3ff) << 1
	imm |= ((insn >> 20) & 0x1) << 11
	imm |= ((insn >> 12) & 0xff) << 12
	return imm
}

// Step fetches the instruction at Hart.PC, executes it, and advances PC.
// The ECALL escape is not handled here; the caller dispatches it before
// delegating to the executor.
func (ix *InstructionExecutor) Step() error {
	hart := ix.Hart
	hart.LastRegisterWrite = -1

	insn, err := ix.Mem.LoadWord(hart.PC)
	if err != nil {
		return err
	}

	pc := hart.PC
	nextPC := pc + 4
	r1 := hart.readReg(rs1(insn))
	r2 := hart.readReg(rs2(insn))
	dest := rd(insn)

	switch opcodeBits(insn) {
	case 0x37: // LUI
		hart.writeReg(dest, immU(insn))

	case 0x17: // AUIPC
		hart.writeReg(dest, pc+immU(insn))

	case 0x6f: // JAL
		hart.writeReg(dest, pc+4)
		nextPC = pc + immJ(insn)

	case 0x67: // JALR
		target := (r1 + immI(insn)) &^ 1
		hart.writeReg(dest, pc+4)
		nextPC = target

	case 0x63: // branches
		taken := false
		switch funct3(insn) {
		case 0:
			taken = r1 == r2
		case 1:
			taken = r1 != r2
		case 4:
			taken = int32(r1) < int32(r2)
		case 5:
			taken = int32(r1) >= int32(r2)
		case 6:
			taken = r1 < r2
		case 7:
			taken = r1 >= r2
		default:
			return &DecodeError{PC: pc, Insn: insn}
		}
		if taken {
			nextPC = pc + immB(insn)
		}

	case 0x03: // loads
		addr := r1 + immI(insn)
		value, err := ix.load(pc, addr, funct3(insn))
		if err != nil {
			return err
		}
		hart.writeReg(dest, value)

	case 0x23: // stores
		addr := r1 + immS(insn)
		if err := ix.store(pc, addr, funct3(insn), r2); err != nil {
			return err
		}

	case 0x13: // ALU immediate
		hart.writeReg(dest, alu(funct3(insn), funct7(insn)&0x20 != 0 && funct3(insn) == 5, r1, immI(insn)))

	case 0x33: // ALU register
		switch funct7(insn) {
		case 0x00, 0x20:
			sub := funct7(insn) == 0x20
			if sub && funct3(insn) == 0 {
				hart.writeReg(dest, r1-r2)
			} else {
				hart.writeReg(dest, alu(funct3(insn), sub, r1, r2))
			}
		case 0x01:
			hart.writeReg(dest, muldiv(funct3(insn), r1, r2))
		default:
			return &DecodeError{PC: pc, Insn: insn}
		}

	case 0x0f: // FENCE is a no-op on a single in-order hart

	default:
		return &DecodeError{PC: pc, Insn: insn}
	}

	hart.PC = nextPC
	return nil
}

// Shared ALU for register and immediate forms. arith selects SRA over SRL.
func alu(fn uint32, arith bool, a uint32, b uint32) uint32 {
	switch fn {
	case 0:
		return a + b
	case 1:
		return a << (b & 0x1f)
	case 2:
		if int32(a) < int32(b) {
			return 1
		}
		return 0
	case 3:
		if a < b {
			return 1
		}
		return 0
	case 4:
		return a ^ b
	case 5:
		if arith {
			return uint32(int32(a) >> (b & 0x1f))
		}
		return a >> (b & 0x1f)
	case 6:
		return a | b
	case 7:
		return a & b
	}
	return 0
}

func muldiv(fn uint32, a uint32, b uint32) uint32 {
	switch fn {
	case 0: // MUL
		return a * b
	case 1: // MULH
		return uint32((int64(int32(a)) * int64(int32(b))) >> 32)
	case 2: // MULHSU
		return uint32((int64(int32(a)) * int64(b)) >> 32)
	case 3: // MULHU
		return uint32((uint64(a) * uint64(b)) >> 32)
	case 4: // DIV
		if b == 0 {
			return math.MaxUint32
		}
		if int32(a) == math.MinInt32 && int32(b) == -1 {
			return a
		}
		return uint32(int32(a) / int32(b))
	case 5: // DIVU
		if b == 0 {
			return math.MaxUint32
		}
		return a / b
	case 6: // REM
		if b == 0 {
			return a
		}
		if int32(a) == math.MinInt32 && int32(b) == -1 {
			return 0
		}
		return uint32(int32(a) % int32(b))
	case 7: // REMU
		if b == 0 {
			return a
		}
		return a % b
	}
	return 0
}

// load performs a byte, half, or word load. Sub-word loads are read from
// the containing aligned word.
func (ix *InstructionExecutor) load(pc uint32, addr uint32, fn uint32) (uint32, error) {
	switch fn {
	case 2: // LW
		return ix.Mem.LoadWord(addr)
	case 0, 4: // LB, LBU
		word, err := ix.Mem.LoadWord(addr &^ 3)
		if err != nil {
			return 0, err
		}
		b := (word >> ((addr & 3) * 8)) & 0xff
		if fn == 0 {
			return uint32(int32(b<<24) >> 24), nil
		}
		return b, nil
	case 1, 5: // LH, LHU
		if addr&1 != 0 {
			return 0, &AlignmentError{PC: pc, Addr: addr, Size: 2}
		}
		word, err := ix.Mem.LoadWord(addr &^ 3)
		if err != nil {
			return 0, err
		}
		h := (word >> ((addr & 2) * 8)) & 0xffff
		if fn == 1 {
			return uint32(int32(h<<16) >> 16), nil
		}
		return h, nil
	}
	return 0, &DecodeError{PC: pc}
}

// store performs a byte, half, or word store. Sub-word stores are merged
// into the containing aligned word.
func (ix *InstructionExecutor) store(pc uint32, addr uint32, fn uint32, value uint32) error {
	switch fn {
	case 2: // SW
		return ix.Mem.StoreWord(addr, value)
	case 0: // SB
		word, err := ix.Mem.LoadWord(addr &^ 3)
		if err != nil {
			return err
		}
		shift := (addr & 3) * 8
		word = (word &^ (0xff << shift)) | ((value & 0xff) << shift)
		return ix.Mem.StoreWord(addr&^3, word)
	case 1: // SH
		if addr&1 != 0 {
			return &AlignmentError{PC: pc, Addr: addr, Size: 2}
		}
		word, err := ix.Mem.LoadWord(addr &^ 3)
		if err != nil {
			return err
		}
		shift := (addr & 2) * 8
		word = (word &^ (0xffff << shift)) | ((value & 0xffff) << shift)
		return ix.Mem.StoreWord(addr&^3, word)
	}
	return &DecodeError{PC: pc}
}
