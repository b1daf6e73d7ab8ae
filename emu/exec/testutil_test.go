/*
 * zkRISCV - Test helpers: a tiny RV32 assembler and program runner.
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

package exec

import (
	"testing"

	"github.com/rcornwell/zkriscv/emu/image"
	"github.com/rcornwell/zkriscv/emu/rv32im"
)

const testEntry = 0x4000

// Register shorthands for test programs.
const (
	x0 = 0
	t0 = rv32im.RegT0
	t1 = 6
	t2 = 7
	a0 = rv32im.RegA0
	a1 = rv32im.RegA1
	a2 = rv32im.RegA2
	a3 = rv32im.RegA3
	a4 = rv32im.RegA4
	a5 = rv32im.RegA5
)

const insnEcall = 0x00000073

func encI(op, rd, funct3, rs1 uint32, imm int32) uint32 {
	return (uint32(imm)&0xfff)<<20 | rs1<<15 | funct3<<12 | rd<<7 | op
}

func encS(funct3, rs1, rs2 uint32, imm int32) uint32 {
	u := uint32(imm)
	return ((u>>5)&0x7f)<<25 | rs2<<20 | rs1<<15 | funct3<<12 | (u&0x1f)<<7 | 0x23
}

func encB(funct3, rs1, rs2 uint32, imm int32) uint32 {
	u := uint32(imm)
	return ((u>>12)&1)<<31 | ((u>>5)&0x3f)<<25 | rs2<<20 | rs1<<15 |
		funct3<<12 | ((u>>1)&0xf)<<8 | ((u>>11)&1)<<7 | 0x63
}

func addi(rd, rs1 uint32, imm int32) uint32 {
	return encI(0x13, rd, 0, rs1, imm)
}

func lui(rd uint32, value uint32) uint32 {
	return value&0xfffff000 | rd<<7 | 0x37
}

func lw(rd, rs1 uint32, imm int32) uint32 {
	return encI(0x03, rd, 2, rs1, imm)
}

func sw(rs2, rs1 uint32, imm int32) uint32 {
	return encS(2, rs1, rs2, imm)
}

func bne(rs1, rs2 uint32, imm int32) uint32 {
	return encB(1, rs1, rs2, imm)
}

// haltSeq terminates the guest with exit value 0.
func haltSeq() []uint32 {
	return []uint32{addi(t0, x0, 0), addi(a0, x0, 0), insnEcall}
}

// pauseSeq pauses the guest.
func pauseSeq() []uint32 {
	return []uint32{addi(t0, x0, 0), addi(a0, x0, 1), insnEcall}
}

func flatten(seqs ...[]uint32) []uint32 {
	var out []uint32
	for _, seq := range seqs {
		out = append(out, seq...)
	}
	return out
}

// buildImage places code at the test entry point.
func buildImage(t *testing.T, code []uint32) *image.MemoryImage {
	t.Helper()
	prog := &image.Program{Entry: testEntry, Image: make(map[uint32]uint32)}
	for i, word := range code {
		prog.Image[testEntry+uint32(i*4)] = word
	}
	img, err := image.NewImage(prog)
	if err != nil {
		t.Fatal(err)
	}
	return img
}

func storeBytes(t *testing.T, img *image.MemoryImage, addr uint32, data []byte) {
	t.Helper()
	if err := img.StoreRegion(addr, data); err != nil {
		t.Fatal(err)
	}
}

// testEnv is NewEnv with the standard streams detached from the process.
func testEnv() *ExecutorEnv {
	env := NewEnv()
	env.SetStdout(discard{})
	env.SetStderr(discard{})
	return env
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

// runProgram builds an image for code, applies setup, runs to completion
// and returns the session plus the (mutated) image.
func runProgram(t *testing.T, env *ExecutorEnv, code []uint32,
	setup func(*image.MemoryImage)) (*Session, *image.MemoryImage) {
	t.Helper()
	img := buildImage(t, code)
	if setup != nil {
		setup(img)
	}
	executor := NewExecutor(env, img, testEntry)
	session, err := executor.Run()
	if err != nil {
		t.Fatal(err)
	}
	return session, img
}
