/*
 * zkRISCV - Guest program loading.
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

package image

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"errors"
	"fmt"
)

// Program is a guest program ready to be turned into a memory image:
// an entry point and the initial contents as word writes.
type Program struct {
	Entry uint32
	Image map[uint32]uint32
}

// ErrBadElf indicates the binary is not a loadable RV32 executable.
var ErrBadElf = errors.New("image: invalid elf")

// LoadELF parses a 32-bit little-endian RISC-V executable and collects its
// loadable segments into a Program.
func LoadELF(data []byte) (*Program, error) {
	file, err := elf.NewFile(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadElf, err)
	}
	defer file.Close()

	if file.Class != elf.ELFCLASS32 {
		return nil, fmt.Errorf("%w: not a 32-bit binary", ErrBadElf)
	}
	if file.Data != elf.ELFDATA2LSB {
		return nil, fmt.Errorf("%w: not little-endian", ErrBadElf)
	}
	if file.Machine != elf.EM_RISCV {
		return nil, fmt.Errorf("%w: not a RISC-V binary", ErrBadElf)
	}
	if file.Type != elf.ET_EXEC {
		return nil, fmt.Errorf("%w: not an executable", ErrBadElf)
	}
	if file.Entry >= MemSize {
		return nil, fmt.Errorf("%w: entry point 0x%x out of range", ErrBadElf, file.Entry)
	}

	prog := &Program{
		Entry: uint32(file.Entry),
		Image: make(map[uint32]uint32),
	}

	for _, seg := range file.Progs {
		if seg.Type != elf.PT_LOAD {
			continue
		}
		if seg.Vaddr%WordSize != 0 {
			return nil, fmt.Errorf("%w: unaligned segment at 0x%x", ErrBadElf, seg.Vaddr)
		}
		if seg.Vaddr+seg.Memsz > MemSize {
			return nil, fmt.Errorf("%w: segment at 0x%x too large", ErrBadElf, seg.Vaddr)
		}
		raw := make([]byte, seg.Filesz)
		if _, err := seg.ReadAt(raw, 0); err != nil {
			return nil, fmt.Errorf("%w: reading segment at 0x%x: %v", ErrBadElf, seg.Vaddr, err)
		}
		// Pad the tail out to a whole word.
		for len(raw)%WordSize != 0 {
			raw = append(raw, 0)
		}
		for off := 0; off < len(raw); off += WordSize {
			addr := uint32(seg.Vaddr) + uint32(off)
			prog.Image[addr] = binary.LittleEndian.Uint32(raw[off:])
		}
	}

	return prog, nil
}
