/*
 * zkRISCV - Execution trace events.
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

import "fmt"

// TraceEventKind discriminates trace events.
type TraceEventKind int

const (
	// TraceInstructionStart marks the start of one instruction.
	TraceInstructionStart TraceEventKind = iota

	// TraceRegisterSet reports a register write.
	TraceRegisterSet

	// TraceMemorySet reports a word-aligned memory write.
	TraceMemorySet
)

// TraceEvent is one event observed while running the VM. Events for
// instruction k are delivered before instruction k+1 begins.
type TraceEvent struct {
	Kind  TraceEventKind
	Cycle uint32 // InstructionStart: session cycle count
	PC    uint32 // InstructionStart: pc of the instruction
	Reg   int    // RegisterSet: register index 0..31
	Addr  uint32 // MemorySet: word-aligned address
	Value uint32 // RegisterSet, MemorySet: value written
}

func (ev TraceEvent) String() string {
	switch ev.Kind {
	case TraceInstructionStart:
		return fmt.Sprintf("InstructionStart(%d, 0x%08X)", ev.Cycle, ev.PC)
	case TraceRegisterSet:
		return fmt.Sprintf("RegisterSet(%d, 0x%08X)", ev.Reg, ev.Value)
	case TraceMemorySet:
		return fmt.Sprintf("MemorySet(0x%08X, 0x%08X)", ev.Addr, ev.Value)
	}
	return "TraceEvent(?)"
}

// TraceFunc receives trace events. It is called from the execution loop
// itself; an error aborts the run.
type TraceFunc func(TraceEvent) error
