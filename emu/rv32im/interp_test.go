/*
 * zkRISCV - Inner interpreter test cases.
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
	"errors"
	"math"
	"testing"
)

// wordMemory is a plain word-addressed memory for interpreter tests.
type wordMemory map[uint32]uint32

func (m wordMemory) LoadWord(addr uint32) (uint32, error) {
	if addr%4 != 0 {
		return 0, &AlignmentError{Addr: addr, Size: 4}
	}
	return m[addr], nil
}

func (m wordMemory) StoreWord(addr uint32, value uint32) error {
	if addr%4 != 0 {
		return &AlignmentError{Addr: addr, Size: 4}
	}
	m[addr] = value
	return nil
}

const testPC = 0x1000

// step executes one instruction with rs1=x1, rs2=x2 preloaded.
func step(t *testing.T, insn uint32, r1 uint32, r2 uint32, mem wordMemory) *HartState {
	t.Helper()
	if mem == nil {
		mem = wordMemory{}
	}
	mem[testPC] = insn
	hart := NewHartState([32]uint32{}, testPC)
	hart.Registers[1] = r1
	hart.Registers[2] = r2
	ix := InstructionExecutor{Mem: mem, Hart: hart}
	if err := ix.Step(); err != nil {
		t.Fatalf("insn %08x: %v", insn, err)
	}
	return hart
}

// encR encodes a register-register instruction with rd=x3, rs1=x1, rs2=x2.
func encR(funct7, funct3 uint32) uint32 {
	return funct7<<25 | 2<<20 | 1<<15 | funct3<<12 | 3<<7 | 0x33
}

// encI encodes an immediate instruction with rd=x3, rs1=x1.
func encI(funct3 uint32, imm int32) uint32 {
	return uint32(imm)<<20 | 1<<15 | funct3<<12 | 3<<7 | 0x13
}

func TestAluOps(t *testing.T) {
	cases := []struct {
		name   string
		insn   uint32
		r1, r2 uint32
		want   uint32
	}{
		{"add", encR(0, 0), 7, 3, 10},
		{"add wrap", encR(0, 0), 0xffffffff, 2, 1},
		{"sub", encR(0x20, 0), 7, 3, 4},
		{"sll", encR(0, 1), 1, 33, 2}, // shift uses low 5 bits
		{"slt true", encR(0, 2), 0xffffffff, 0, 1},
		{"slt false", encR(0, 2), 0, 0xffffffff, 0},
		{"sltu", encR(0, 3), 0, 0xffffffff, 1},
		{"xor", encR(0, 4), 0xff00, 0x0ff0, 0xf0f0},
		{"srl", encR(0, 5), 0x80000000, 4, 0x08000000},
		{"sra", encR(0x20, 5), 0x80000000, 4, 0xf8000000},
		{"or", encR(0, 6), 0xf0, 0x0f, 0xff},
		{"and", encR(0, 7), 0xff, 0x0f, 0x0f},
	}
	for _, c := range cases {
		hart := step(t, c.insn, c.r1, c.r2, nil)
		if got := hart.Registers[3]; got != c.want {
			t.Errorf("%s: got %08x want %08x", c.name, got, c.want)
		}
		if hart.LastRegisterWrite != 3 {
			t.Errorf("%s: last write %d", c.name, hart.LastRegisterWrite)
		}
		if hart.PC != testPC+4 {
			t.Errorf("%s: pc %08x", c.name, hart.PC)
		}
	}
}

func TestAluImmediate(t *testing.T) {
	cases := []struct {
		name string
		insn uint32
		r1   uint32
		want uint32
	}{
		{"addi", encI(0, 5), 10, 15},
		{"addi neg", encI(0, -1), 10, 9},
		{"slti", encI(2, -1), 0xffffffff, 0}, // -1 < -1 is false
		{"sltiu", encI(3, -1), 5, 1},         // imm extends to 0xffffffff
		{"xori", encI(4, 0xff), 0xf0, 0x0f},
		{"ori", encI(6, 0x0f), 0xf0, 0xff},
		{"andi", encI(7, 0x0f), 0xff, 0x0f},
		{"slli", encI(1, 4), 1, 16},
		{"srli", encI(5, 4), 0x80000000, 0x08000000},
		{"srai", uint32(0x20)<<25 | 4<<20 | 1<<15 | 5<<12 | 3<<7 | 0x13, 0x80000000, 0xf8000000},
	}
	for _, c := range cases {
		hart := step(t, c.insn, c.r1, 0, nil)
		if got := hart.Registers[3]; got != c.want {
			t.Errorf("%s: got %08x want %08x", c.name, got, c.want)
		}
	}
}

func TestMulDiv(t *testing.T) {
	minInt := uint32(0x80000000)
	toU32 := func(v int32) uint32 { return uint32(v) }
	cases := []struct {
		name   string
		insn   uint32
		r1, r2 uint32
		want   uint32
	}{
		{"mul", encR(1, 0), 7, 6, 42},
		{"mul high bits lost", encR(1, 0), 0x10000, 0x10000, 0},
		{"mulh", encR(1, 1), 0xffffffff, 0xffffffff, 0}, // -1 * -1 = 1
		{"mulhsu", encR(1, 2), 0xffffffff, 2, 0xffffffff},
		{"mulhu", encR(1, 3), 0xffffffff, 0xffffffff, 0xfffffffe},
		{"div", encR(1, 4), 42, 7, 6},
		{"div round", encR(1, 4), 0x80000007, 2, 0xc0000004}, // truncates toward zero
		{"div by zero", encR(1, 4), 42, 0, math.MaxUint32},
		{"div overflow", encR(1, 4), minInt, 0xffffffff, minInt},
		{"divu", encR(1, 5), 42, 7, 6},
		{"divu by zero", encR(1, 5), 42, 0, math.MaxUint32},
		{"rem", encR(1, 6), 43, 7, 1},
		{"rem negative", encR(1, 6), toU32(-43), 7, toU32(-1)},
		{"rem by zero", encR(1, 6), 43, 0, 43},
		{"rem overflow", encR(1, 6), minInt, 0xffffffff, 0},
		{"remu", encR(1, 7), 43, 7, 1},
		{"remu by zero", encR(1, 7), 43, 0, 43},
	}
	for _, c := range cases {
		hart := step(t, c.insn, c.r1, c.r2, nil)
		if got := hart.Registers[3]; got != c.want {
			t.Errorf("%s: got %08x want %08x", c.name, got, c.want)
		}
	}
}

func TestBranches(t *testing.T) {
	// beq x1, x2, +16
	enc := func(funct3 uint32) uint32 {
		// imm=16: imm[4:1] = 8 in the 8..11 field
		return 2<<20 | 1<<15 | funct3<<12 | 8<<8 | 0x63
	}
	cases := []struct {
		name   string
		funct3 uint32
		r1, r2 uint32
		taken  bool
	}{
		{"beq taken", 0, 5, 5, true},
		{"beq not", 0, 5, 6, false},
		{"bne taken", 1, 5, 6, true},
		{"blt signed", 4, 0xffffffff, 0, true},
		{"bge equal", 5, 7, 7, true},
		{"bltu unsigned", 6, 0xffffffff, 0, false},
		{"bgeu", 7, 0xffffffff, 0, true},
	}
	for _, c := range cases {
		hart := step(t, enc(c.funct3), c.r1, c.r2, nil)
		want := uint32(testPC + 4)
		if c.taken {
			want = testPC + 16
		}
		if hart.PC != want {
			t.Errorf("%s: pc %08x want %08x", c.name, hart.PC, want)
		}
	}
}

func TestJumps(t *testing.T) {
	// jal x3, +2048. The J immediate places bit 11 at insn bit 20.
	jal := uint32(1)<<20 | 3<<7 | 0x6f
	hart := step(t, jal, 0, 0, nil)
	if hart.PC != testPC+2048 {
		t.Errorf("jal: pc %08x", hart.PC)
	}
	if hart.Registers[3] != testPC+4 {
		t.Errorf("jal: link %08x", hart.Registers[3])
	}

	// jalr x3, 4(x1): the low bit of the target is cleared.
	jalr := uint32(4)<<20 | 1<<15 | 3<<7 | 0x67
	hart = step(t, jalr, 0x2001, 0, nil)
	if hart.PC != 0x2004 {
		t.Errorf("jalr: pc %08x", hart.PC)
	}
	if hart.Registers[3] != testPC+4 {
		t.Errorf("jalr: link %08x", hart.Registers[3])
	}
}

func TestUpperImmediates(t *testing.T) {
	lui := uint32(0x12345)<<12 | 3<<7 | 0x37
	hart := step(t, lui, 0, 0, nil)
	if hart.Registers[3] != 0x12345000 {
		t.Errorf("lui: %08x", hart.Registers[3])
	}

	auipc := uint32(0x1)<<12 | 3<<7 | 0x17
	hart = step(t, auipc, 0, 0, nil)
	if hart.Registers[3] != testPC+0x1000 {
		t.Errorf("auipc: %08x", hart.Registers[3])
	}
}

func TestLoads(t *testing.T) {
	mem := wordMemory{0x2000: 0x84838281}
	cases := []struct {
		name   string
		funct3 uint32
		offset int32
		want   uint32
	}{
		{"lw", 2, 0, 0x84838281},
		{"lb", 0, 0, 0xffffff81},
		{"lb offset", 0, 1, 0xffffff82},
		{"lbu", 4, 3, 0x84},
		{"lh", 1, 0, 0xffff8281},
		{"lhu", 5, 2, 0x8483},
	}
	for _, c := range cases {
		insn := uint32(c.offset)<<20 | 1<<15 | c.funct3<<12 | 3<<7 | 0x03
		hart := step(t, insn, 0x2000, 0, mem)
		if got := hart.Registers[3]; got != c.want {
			t.Errorf("%s: got %08x want %08x", c.name, got, c.want)
		}
	}
}

func TestStores(t *testing.T) {
	mem := wordMemory{0x2000: 0xaabbccdd}

	// sb x2, 1(x1)
	sb := uint32(0)<<25 | 2<<20 | 1<<15 | 0<<12 | 1<<7 | 0x23
	step(t, sb, 0x2000, 0x42, mem)
	if mem[0x2000] != 0xaabb42dd {
		t.Errorf("sb: %08x", mem[0x2000])
	}

	// sh x2, 2(x1)
	sh := uint32(0)<<25 | 2<<20 | 1<<15 | 1<<12 | 2<<7 | 0x23
	step(t, sh, 0x2000, 0xbeef, mem)
	if mem[0x2000] != 0xbeef42dd {
		t.Errorf("sh: %08x", mem[0x2000])
	}

	// sw x2, 0(x1)
	sw := uint32(0)<<25 | 2<<20 | 1<<15 | 2<<12 | 0<<7 | 0x23
	step(t, sw, 0x2000, 0x11223344, mem)
	if mem[0x2000] != 0x11223344 {
		t.Errorf("sw: %08x", mem[0x2000])
	}
}

func TestMisalignedHalfword(t *testing.T) {
	mem := wordMemory{}
	mem[testPC] = uint32(1)<<20 | 1<<15 | 1<<12 | 3<<7 | 0x03 // lh x3, 1(x1)
	hart := NewHartState([32]uint32{}, testPC)
	hart.Registers[1] = 0x2000
	ix := InstructionExecutor{Mem: mem, Hart: hart}
	err := ix.Step()
	var alignErr *AlignmentError
	if !errors.As(err, &alignErr) {
		t.Errorf("misaligned lh: %v", err)
	}
}

func TestZeroRegisterIgnoresWrites(t *testing.T) {
	// addi x0, x1, 1
	insn := uint32(1)<<20 | 1<<15 | 0<<12 | 0<<7 | 0x13
	hart := step(t, insn, 10, 0, nil)
	if hart.Registers[0] != 0 {
		t.Errorf("x0 changed to %d", hart.Registers[0])
	}
	if hart.LastRegisterWrite != -1 {
		t.Errorf("x0 write recorded: %d", hart.LastRegisterWrite)
	}
}

func TestFenceIsNop(t *testing.T) {
	hart := step(t, 0x0000000f, 0, 0, nil)
	if hart.PC != testPC+4 {
		t.Errorf("fence: pc %08x", hart.PC)
	}
}
