/*
 * zkRISCV - Memory monitor with page fault accounting.
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
	"fmt"

	"github.com/rcornwell/zkriscv/emu/image"
	"github.com/rcornwell/zkriscv/emu/rv32im"
	"github.com/rcornwell/zkriscv/util/sha2"
)

const (
	// cyclesPerPage is the cost of hashing one page into the Merkle
	// frontier: one SHA compression per 64-byte block.
	cyclesPerPage = (image.PageSize / sha2.BlockBytes) * ShaCycles

	// pageFaultCycles is the full cost of a first touch: one PageFault
	// cycle plus the page hash.
	pageFaultCycles = 1 + cyclesPerPage
)

// FaultSet is the set of pages touched within one scope, split by access
// kind. Keys are page indices.
type FaultSet struct {
	Reads  map[uint32]struct{}
	Writes map[uint32]struct{}
}

func newFaultSet() FaultSet {
	return FaultSet{
		Reads:  make(map[uint32]struct{}),
		Writes: make(map[uint32]struct{}),
	}
}

func (f FaultSet) total() int {
	return len(f.Reads) + len(f.Writes)
}

// MemoryMonitor mediates all guest memory and register traffic so that
// paging cost and trace events accumulate atomically with each access.
// Stores are staged and only land in the image when the instruction
// commits; an instruction cut off by a segment split therefore leaves no
// mark on the image.
type MemoryMonitor struct {
	Image *image.MemoryImage

	registers [32]uint32

	// State of the in-flight instruction.
	pendingWrites    map[uint32]uint32
	pendingRegisters map[int]uint32
	pendingFaults    FaultSet
	pendingOp        *OpCodeResult

	// TraceWrites buffers the write events of the current instruction;
	// the executor drains it once per step.
	TraceWrites []TraceEvent

	// Segment scoped state, cleared by ClearSegment.
	faults   FaultSet
	Syscalls []SyscallRecord

	// Session scoped fault set, cleared by ClearSession.
	sessionFaults FaultSet
}

// NewMonitor wraps a memory image. The monitor takes ownership: all
// mutation must go through it.
func NewMonitor(img *image.MemoryImage) *MemoryMonitor {
	return &MemoryMonitor{
		Image:            img,
		pendingWrites:    make(map[uint32]uint32),
		pendingRegisters: make(map[int]uint32),
		pendingFaults:    newFaultSet(),
		faults:           newFaultSet(),
		sessionFaults:    newFaultSet(),
	}
}

func (m *MemoryMonitor) faultRead(page uint32) {
	if _, ok := m.faults.Reads[page]; ok {
		return
	}
	m.pendingFaults.Reads[page] = struct{}{}
}

func (m *MemoryMonitor) faultWrite(page uint32) {
	if _, ok := m.faults.Writes[page]; ok {
		return
	}
	m.pendingFaults.Writes[page] = struct{}{}
}

// LoadU32 reads an aligned word, recording the page touch. Staged writes
// of the current instruction are visible.
func (m *MemoryMonitor) LoadU32(addr uint32) (uint32, error) {
	if staged, ok := m.pendingWrites[addr]; ok {
		m.faultRead(image.PageIndex(addr))
		return staged, nil
	}
	value, err := m.Image.LoadWord(addr)
	if err != nil {
		return 0, err
	}
	m.faultRead(image.PageIndex(addr))
	return value, nil
}

// LoadWord implements rv32im.Memory.
func (m *MemoryMonitor) LoadWord(addr uint32) (uint32, error) {
	return m.LoadU32(addr)
}

// StoreWord implements rv32im.Memory. The write is staged until Commit.
func (m *MemoryMonitor) StoreWord(addr uint32, value uint32) error {
	if addr%image.WordSize != 0 {
		return fmt.Errorf("%w: addr 0x%08x", image.ErrAlignment, addr)
	}
	if addr >= image.MemSize {
		return fmt.Errorf("%w: addr 0x%08x", image.ErrBounds, addr)
	}
	m.pendingWrites[addr] = value
	m.faultWrite(image.PageIndex(addr))
	m.TraceWrites = append(m.TraceWrites, TraceEvent{
		Kind:  TraceMemorySet,
		Addr:  addr,
		Value: value,
	})
	return nil
}

// LoadArray reads n bytes, honoring staged writes and recording the page
// touches. No alignment is required.
func (m *MemoryMonitor) LoadArray(addr uint32, n uint32) ([]byte, error) {
	if n == 0 {
		return nil, nil
	}
	data, err := m.Image.LoadBytes(addr, n)
	if err != nil {
		return nil, err
	}
	for page := image.PageIndex(addr); page <= image.PageIndex(addr + n - 1); page++ {
		m.faultRead(page)
	}
	// Overlay words staged by the current instruction.
	if len(m.pendingWrites) != 0 {
		for wAddr, value := range m.pendingWrites {
			for i := uint32(0); i < image.WordSize; i++ {
				b := wAddr + i
				if b >= addr && b < addr+n {
					data[b-addr] = byte(value >> (8 * i))
				}
			}
		}
	}
	return data, nil
}

// LoadString reads a NUL-terminated string.
func (m *MemoryMonitor) LoadString(addr uint32) (string, error) {
	var out []byte
	for {
		word, err := m.LoadU32(addr &^ 3)
		if err != nil {
			return "", err
		}
		for i := addr & 3; i < 4; i++ {
			b := byte(word >> (8 * i))
			if b == 0 {
				return string(out), nil
			}
			out = append(out, b)
		}
		addr = (addr &^ 3) + 4
	}
}

// StoreRegion stages a word-aligned byte region.
func (m *MemoryMonitor) StoreRegion(addr uint32, data []byte) error {
	if addr%image.WordSize != 0 || len(data)%image.WordSize != 0 {
		return fmt.Errorf("%w: region at 0x%08x len %d", image.ErrAlignment, addr, len(data))
	}
	for off := 0; off < len(data); off += image.WordSize {
		word := uint32(data[off]) | uint32(data[off+1])<<8 |
			uint32(data[off+2])<<16 | uint32(data[off+3])<<24
		if err := m.StoreWord(addr+uint32(off), word); err != nil {
			return err
		}
	}
	return nil
}

// LoadRegister reads a committed register value. Register 0 is always
// zero.
func (m *MemoryMonitor) LoadRegister(idx int) uint32 {
	if idx == rv32im.RegZero {
		return 0
	}
	return m.registers[idx]
}

// LoadRegisters reads several committed registers at once.
func (m *MemoryMonitor) LoadRegisters(idxs []int) []uint32 {
	out := make([]uint32, len(idxs))
	for i, idx := range idxs {
		out[i] = m.LoadRegister(idx)
	}
	return out
}

// Registers returns a snapshot of the committed register file.
func (m *MemoryMonitor) Registers() [32]uint32 {
	return m.registers
}

// StoreRegister stages a register write until Commit.
func (m *MemoryMonitor) StoreRegister(idx int, value uint32) {
	if idx == rv32im.RegZero {
		return
	}
	m.pendingRegisters[idx] = value
	m.TraceWrites = append(m.TraceWrites, TraceEvent{
		Kind:  TraceRegisterSet,
		Reg:   idx,
		Value: value,
	})
}

// SaveOp caches the result of the current instruction so that a step
// retried after a segment split replays it instead of re-executing.
func (m *MemoryMonitor) SaveOp(op OpCodeResult) {
	m.pendingOp = &op
}

// RestoreOp hands back the cached result, invalidating it. Returns nil
// when no result is cached.
func (m *MemoryMonitor) RestoreOp() *OpCodeResult {
	op := m.pendingOp
	m.pendingOp = nil
	return op
}

// Commit finalizes the current instruction: staged register and memory
// writes land, pending faults become confirmed, and the trace buffer is
// reset for the next instruction.
func (m *MemoryMonitor) Commit(sessionCycle uint32) error {
	_ = sessionCycle

	for idx, value := range m.pendingRegisters {
		m.registers[idx] = value
	}
	clear(m.pendingRegisters)

	for addr, value := range m.pendingWrites {
		if err := m.Image.StoreWord(addr, value); err != nil {
			return err
		}
	}
	clear(m.pendingWrites)

	for page := range m.pendingFaults.Reads {
		m.faults.Reads[page] = struct{}{}
		m.sessionFaults.Reads[page] = struct{}{}
	}
	for page := range m.pendingFaults.Writes {
		m.faults.Writes[page] = struct{}{}
		m.sessionFaults.Writes[page] = struct{}{}
	}
	m.pendingFaults = newFaultSet()

	// The committed instruction is done; only a split may replay it.
	m.pendingOp = nil
	m.TraceWrites = m.TraceWrites[:0]
	return nil
}

// TotalFaultCycles is the confirmed paging cost of this segment.
func (m *MemoryMonitor) TotalFaultCycles() int {
	return m.faults.total() * pageFaultCycles
}

// TotalPendingFaultCycles is the paging cost this segment would have if
// the current instruction were committed.
func (m *MemoryMonitor) TotalPendingFaultCycles() int {
	return (m.faults.total() + m.pendingFaults.total()) * pageFaultCycles
}

// TotalPageReadCycles is the read side paging cost, used to back-solve
// the segment cycle counter after each commit.
func (m *MemoryMonitor) TotalPageReadCycles() int {
	return len(m.faults.Reads) * pageFaultCycles
}

// takeFaults moves the confirmed segment faults out of the monitor.
func (m *MemoryMonitor) takeFaults() FaultSet {
	faults := m.faults
	m.faults = newFaultSet()
	return faults
}

// takeSyscalls moves the segment syscall records out of the monitor.
func (m *MemoryMonitor) takeSyscalls() []SyscallRecord {
	syscalls := m.Syscalls
	m.Syscalls = nil
	return syscalls
}

// ClearSegment resets segment-scoped state. State belonging to an
// in-flight instruction survives, so a split can replay it into the new
// segment.
func (m *MemoryMonitor) ClearSegment() {
	m.faults = newFaultSet()
	m.Syscalls = nil
}

// ClearSession resets everything for a fresh run.
func (m *MemoryMonitor) ClearSession() {
	m.ClearSegment()
	m.sessionFaults = newFaultSet()
	m.pendingFaults = newFaultSet()
	clear(m.pendingWrites)
	clear(m.pendingRegisters)
	m.pendingOp = nil
	m.TraceWrites = nil
}

// SessionFaults is the set of pages touched since the last ClearSession.
func (m *MemoryMonitor) SessionFaults() FaultSet {
	return m.sessionFaults
}
