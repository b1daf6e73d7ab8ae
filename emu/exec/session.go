/*
 * zkRISCV - Segments and sessions.
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
	"encoding/binary"
	"fmt"
	"io"
	"sort"

	"github.com/rcornwell/zkriscv/emu/image"
)

// ExitKind discriminates how a segment or session ended.
type ExitKind int

const (
	// ExitSystemSplit: the segment cycle budget was reached; execution
	// continues in a fresh segment.
	ExitSystemSplit ExitKind = iota

	// ExitSessionLimit: the configured session cycle limit was exceeded.
	ExitSessionLimit

	// ExitPaused: the guest paused itself; it can be resumed.
	ExitPaused

	// ExitHalted: the guest terminated with a user exit code.
	ExitHalted
)

// ExitCode describes why execution of a segment (or the session) stopped.
// Arg carries the instruction count for SystemSplit and the user exit
// value for Halted.
type ExitCode struct {
	Kind ExitKind
	Arg  uint32
}

// SystemSplit builds the exit code for a segment split after insns
// committed instructions.
func SystemSplit(insns uint32) ExitCode {
	return ExitCode{Kind: ExitSystemSplit, Arg: insns}
}

// Halted builds the exit code for guest termination.
func Halted(value uint32) ExitCode {
	return ExitCode{Kind: ExitHalted, Arg: value}
}

// Paused is the exit code for a guest initiated pause.
var Paused = ExitCode{Kind: ExitPaused}

// SessionLimitExceeded is the exit code reported when the session cycle
// limit is hit.
var SessionLimitExceeded = ExitCode{Kind: ExitSessionLimit}

func (e ExitCode) String() string {
	switch e.Kind {
	case ExitSystemSplit:
		return fmt.Sprintf("SystemSplit(%d)", e.Arg)
	case ExitSessionLimit:
		return "SessionLimit"
	case ExitPaused:
		return "Paused"
	case ExitHalted:
		return fmt.Sprintf("Halted(%d)", e.Arg)
	}
	return "ExitCode(?)"
}

// SyscallRecord captures the host response to one SOFTWARE ecall. The
// records are the guest-visible non-determinism and must be replayed in
// order when a segment is proved.
type SyscallRecord struct {
	ToGuest []uint32
	A0      uint32
	A1      uint32
}

// OpCodeResult is the outcome of executing one instruction.
type OpCodeResult struct {
	NextPC      uint32
	Exit        *ExitCode
	ExtraCycles int
	Syscall     *SyscallRecord
}

// Segment is a bounded slice of execution together with the before and
// after memory commitments the prover needs.
type Segment struct {
	PreImage    *image.MemoryImage
	PostImageID image.Digest
	PrePC       uint32
	Faults      FaultSet
	Syscalls    []SyscallRecord
	Exit        ExitCode
	Po2         uint32
	Index       uint32
}

// Session is the ordered list of segments from one program run plus the
// guest journal.
type Session struct {
	Segments []Segment
	Journal  []byte
	Exit     ExitCode

	// ProofID identifies a remotely registered proof. Only set on the
	// degenerate session produced when a remote prover is configured.
	ProofID int64
}

// segmentPo2 sizes a power-of-two cycle budget for a segment that used
// total cycles.
func segmentPo2(total int) uint32 {
	po2 := uint32(0)
	for n := 1; n < total; n <<= 1 {
		po2++
	}
	return po2
}

const segmentMagic = 0x5a4b5347 // "ZKSG"

func sortedPages(m map[uint32]struct{}) []uint32 {
	out := make([]uint32, 0, len(m))
	for idx := range m {
		out = append(out, idx)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Serialize writes the segment in its on-disk layout: a magic word,
// pre-image pages, post-image id, pre-pc, faults, syscalls, exit code,
// po2 and index.
// All integers are little-endian.
func (s *Segment) Serialize(w io.Writer) error {
	le := binary.LittleEndian
	put32 := func(v uint32) error {
		var b [4]byte
		le.PutUint32(b[:], v)
		_, err := w.Write(b[:])
		return err
	}

	if err := put32(segmentMagic); err != nil {
		return err
	}

	// Pre-image: page count then (index, bytes) pairs in index order.
	pages := s.PreImage.Pages()
	if err := put32(uint32(len(pages))); err != nil {
		return err
	}
	indices := make([]uint32, 0, len(pages))
	for idx := range pages {
		indices = append(indices, idx)
	}
	sort.Slice(indices, func(i, j int) bool { return indices[i] < indices[j] })
	for _, idx := range indices {
		if err := put32(idx); err != nil {
			return err
		}
		if _, err := w.Write(pages[idx]); err != nil {
			return err
		}
	}

	if _, err := w.Write(s.PostImageID[:]); err != nil {
		return err
	}
	if err := put32(s.PrePC); err != nil {
		return err
	}

	for _, set := range [][]uint32{sortedPages(s.Faults.Reads), sortedPages(s.Faults.Writes)} {
		if err := put32(uint32(len(set))); err != nil {
			return err
		}
		for _, idx := range set {
			if err := put32(idx); err != nil {
				return err
			}
		}
	}

	if err := put32(uint32(len(s.Syscalls))); err != nil {
		return err
	}
	for _, rec := range s.Syscalls {
		if err := put32(uint32(len(rec.ToGuest))); err != nil {
			return err
		}
		for _, word := range rec.ToGuest {
			if err := put32(word); err != nil {
				return err
			}
		}
		if err := put32(rec.A0); err != nil {
			return err
		}
		if err := put32(rec.A1); err != nil {
			return err
		}
	}

	if err := put32(uint32(s.Exit.Kind)); err != nil {
		return err
	}
	if err := put32(s.Exit.Arg); err != nil {
		return err
	}
	if err := put32(s.Po2); err != nil {
		return err
	}
	return put32(s.Index)
}

// LoadSegment reads a segment back from its serialized layout.
func LoadSegment(r io.Reader) (*Segment, error) {
	get32 := func() (uint32, error) {
		var b [4]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return 0, err
		}
		return binary.LittleEndian.Uint32(b[:]), nil
	}

	magic, err := get32()
	if err != nil {
		return nil, err
	}
	if magic != segmentMagic {
		return nil, fmt.Errorf("exec: bad segment magic 0x%08x", magic)
	}

	seg := &Segment{Faults: newFaultSet()}

	pageCount, err := get32()
	if err != nil {
		return nil, err
	}
	pages := make(map[uint32][]byte, pageCount)
	for i := uint32(0); i < pageCount; i++ {
		idx, err := get32()
		if err != nil {
			return nil, err
		}
		data := make([]byte, image.PageSize)
		if _, err := io.ReadFull(r, data); err != nil {
			return nil, err
		}
		pages[idx] = data
	}
	img, err := image.FromPages(pages)
	if err != nil {
		return nil, err
	}
	seg.PreImage = img

	if _, err := io.ReadFull(r, seg.PostImageID[:]); err != nil {
		return nil, err
	}
	if seg.PrePC, err = get32(); err != nil {
		return nil, err
	}

	for _, set := range []map[uint32]struct{}{seg.Faults.Reads, seg.Faults.Writes} {
		count, err := get32()
		if err != nil {
			return nil, err
		}
		for i := uint32(0); i < count; i++ {
			idx, err := get32()
			if err != nil {
				return nil, err
			}
			set[idx] = struct{}{}
		}
	}

	sysCount, err := get32()
	if err != nil {
		return nil, err
	}
	for i := uint32(0); i < sysCount; i++ {
		var rec SyscallRecord
		words, err := get32()
		if err != nil {
			return nil, err
		}
		rec.ToGuest = make([]uint32, words)
		for j := range rec.ToGuest {
			if rec.ToGuest[j], err = get32(); err != nil {
				return nil, err
			}
		}
		if rec.A0, err = get32(); err != nil {
			return nil, err
		}
		if rec.A1, err = get32(); err != nil {
			return nil, err
		}
		seg.Syscalls = append(seg.Syscalls, rec)
	}

	kind, err := get32()
	if err != nil {
		return nil, err
	}
	seg.Exit.Kind = ExitKind(kind)
	if seg.Exit.Arg, err = get32(); err != nil {
		return nil, err
	}
	if seg.Po2, err = get32(); err != nil {
		return nil, err
	}
	if seg.Index, err = get32(); err != nil {
		return nil, err
	}
	return seg, nil
}
