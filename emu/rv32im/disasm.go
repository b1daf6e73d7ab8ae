/*
 * zkRISCV - RV32IM disassembler.
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
	"strings"
)

var regNames = [32]string{
	"zero", "ra", "sp", "gp", "tp", "t0", "t1", "t2",
	"s0", "s1", "a0", "a1", "a2", "a3", "a4", "a5",
	"a6", "a7", "s2", "s3", "s4", "s5", "s6", "s7",
	"s8", "s9", "s10", "s11", "t3", "t4", "t5", "t6",
}

// Disassemble renders one instruction word as assembly text, for use by
// the interactive debugger.
func Disassemble(insn uint32, pc uint32) string {
	op, err := Decode(insn, pc)
	if err != nil {
		return fmt.Sprintf("<illegal: %08x>", insn)
	}
	mn := strings.ToLower(op.Mnemonic)
	rdN := regNames[rd(insn)]
	rs1N := regNames[rs1(insn)]
	rs2N := regNames[rs2(insn)]

	switch opcodeBits(insn) {
	case 0x37, 0x17:
		return fmt.Sprintf("%s %s, 0x%x", mn, rdN, immU(insn)>>12)
	case 0x6f:
		return fmt.Sprintf("%s %s, 0x%x", mn, rdN, pc+immJ(insn))
	case 0x67:
		return fmt.Sprintf("%s %s, %d(%s)", mn, rdN, int32(immI(insn)), rs1N)
	case 0x63:
		return fmt.Sprintf("%s %s, %s, 0x%x", mn, rs1N, rs2N, pc+immB(insn))
	case 0x03:
		return fmt.Sprintf("%s %s, %d(%s)", mn, rdN, int32(immI(insn)), rs1N)
	case 0x23:
		return fmt.Sprintf("%s %s, %d(%s)", mn, rs2N, int32(immS(insn)), rs1N)
	case 0x13:
		if f3 := funct3(insn); f3 == 1 || f3 == 5 {
			return fmt.Sprintf("%s %s, %s, %d", mn, rdN, rs1N, rs2(insn))
		}
		return fmt.Sprintf("%s %s, %s, %d", mn, rdN, rs1N, int32(immI(insn)))
	case 0x33:
		return fmt.Sprintf("%s %s, %s, %s", mn, rdN, rs1N, rs2N)
	case 0x0f:
		return mn
	case 0x73:
		return mn
	}
	return fmt.Sprintf("<illegal: %08x>", insn)
}
