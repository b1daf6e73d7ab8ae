/*
 * zkRISCV - Executor: interpreter driver and segment splitter.
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

// Package exec runs a guest program and partitions the execution into
// cycle-bounded segments with before and after memory commitments. The
// segment list plus the guest journal form a Session, the input to the
// proving stage.
package exec

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/rcornwell/zkriscv/emu/image"
	"github.com/rcornwell/zkriscv/emu/prover"
	"github.com/rcornwell/zkriscv/emu/rv32im"
	"github.com/rcornwell/zkriscv/util/sha2"
)

const (
	// ShaCycles is the cost of one SHA-256 compression.
	ShaCycles = 72

	// ZkCycles is the per-segment reserve for the zero-knowledge
	// queries.
	ZkCycles = 50
)

// ECALL selectors, read from register T0.
const (
	ecallHalt     = 0
	ecallOutput   = 1
	ecallSoftware = 2
	ecallSha      = 3
)

// HALT ecall types, read from register A0.
const (
	haltTerminate = 0
	haltPause     = 1
)

// The following errors may be returned from a run.
var (
	// ErrSessionLimit indicates the configured session cycle limit was
	// exceeded.
	ErrSessionLimit = errors.New("exec: session limit exceeded")

	// ErrUnknownEcall indicates an ecall selector outside the ABI.
	ErrUnknownEcall = errors.New("exec: unknown ecall")

	// ErrIllegalHalt indicates a HALT ecall with a bad type.
	ErrIllegalHalt = errors.New("exec: illegal halt type")

	// ErrUnknownSyscall indicates a SOFTWARE ecall naming a syscall
	// with no registered handler.
	ErrUnknownSyscall = errors.New("exec: unknown syscall")

	// ErrSegmentOverflow indicates more segments than fit an index.
	ErrSegmentOverflow = errors.New("exec: too many segments to fit in u32")

	// ErrSegmentTooLarge indicates a finalized segment over its cycle
	// budget; this is a bug in the cycle projection, not in the guest.
	ErrSegmentTooLarge = errors.New("exec: segment exceeds cycle limit")
)

// Journal captures the guest's public output stream so it can be read
// into the final session.
type Journal struct {
	buf bytes.Buffer
}

func (j *Journal) Write(p []byte) (int, error) {
	return j.buf.Write(p)
}

// Bytes returns the journal contents.
func (j *Journal) Bytes() []byte {
	return j.buf.Bytes()
}

// Executor drives the interpreter and splits the run into segments whose
// total cycle cost stays within the configured power-of-two budget.
type Executor struct {
	env      *ExecutorEnv
	preImage *image.MemoryImage
	monitor  *MemoryMonitor

	prePC uint32
	pc    uint32

	initCycles   int
	finiCycles   int
	bodyCycles   int
	segmentCycle int

	segments    []Segment
	insnCounter uint32
	journal     *Journal
}

// NewExecutor builds an executor over a memory image and entry point.
func NewExecutor(env *ExecutorEnv, img *image.MemoryImage, pc uint32) *Executor {
	loader := NewLoader()
	return &Executor{
		env:          env,
		preImage:     img.Clone(),
		monitor:      NewMonitor(img),
		prePC:        pc,
		pc:           pc,
		initCycles:   loader.InitCycles(),
		finiCycles:   loader.FiniCycles(),
		segmentCycle: loader.InitCycles(),
	}
}

// FromELF builds an executor from an ELF binary.
func FromELF(env *ExecutorEnv, elf []byte) (*Executor, error) {
	prog, err := image.LoadELF(elf)
	if err != nil {
		return nil, err
	}
	img, err := image.NewImage(prog)
	if err != nil {
		return nil, err
	}
	return NewExecutor(env, img, prog.Entry), nil
}

// Run executes the guest until it halts or pauses, producing a Session.
// When the environment names a remote prover the run is delegated and a
// degenerate session carrying the proof id is returned instead.
func (e *Executor) Run() (*Session, error) {
	if e.env.RemoteProver != "" {
		return e.runRemote()
	}

	e.monitor.ClearSession()
	e.journal = &Journal{}
	e.env.setWriteFd(FdJournal, e.journal)

	for {
		exitCode, err := e.Step()
		if err != nil {
			return nil, err
		}
		if exitCode == nil {
			continue
		}

		total := e.totalCycles()
		slog.Debug("segment done", "exit", exitCode.String(), "cycles", total)
		if total > e.env.segmentLimit() {
			return nil, fmt.Errorf("%w: %d > %d", ErrSegmentTooLarge, total, e.env.segmentLimit())
		}
		if uint64(len(e.segments)) > math.MaxUint32 {
			return nil, ErrSegmentOverflow
		}

		e.monitor.Image.HashPages()
		e.segments = append(e.segments, Segment{
			PreImage:    e.preImage,
			PostImageID: e.monitor.Image.Root(),
			PrePC:       e.prePC,
			Faults:      e.monitor.takeFaults(),
			Syscalls:    e.monitor.takeSyscalls(),
			Exit:        *exitCode,
			Po2:         segmentPo2(total),
			Index:       uint32(len(e.segments)),
		})

		switch exitCode.Kind {
		case ExitSystemSplit:
			e.Split()
		case ExitSessionLimit:
			return nil, ErrSessionLimit
		case ExitPaused:
			slog.Debug("paused", "cycle", e.segmentCycle)
			e.Split()
			return e.session(*exitCode), nil
		case ExitHalted:
			slog.Debug("halted", "value", exitCode.Arg, "cycle", e.segmentCycle)
			return e.session(*exitCode), nil
		}
	}
}

func (e *Executor) session(exit ExitCode) *Session {
	segments := e.segments
	e.segments = nil
	return &Session{
		Segments: segments,
		Journal:  e.journal.Bytes(),
		Exit:     exit,
	}
}

func (e *Executor) runRemote() (*Session, error) {
	client := prover.NewClient(e.env.RemoteProver)
	root := e.preImage.Root()
	proofID, err := client.RegisterProof(root.String(), e.env.Input)
	if err != nil {
		return nil, fmt.Errorf("remote prover: %w", err)
	}
	status, err := client.RunProof(proofID)
	if err != nil {
		return nil, fmt.Errorf("remote prover: %w", err)
	}
	slog.Debug("remote session", "proof", proofID, "status", status)
	return &Session{Exit: Halted(0), ProofID: proofID}, nil
}

// Split snapshots the state for the next segment and resets the
// per-segment counters. The monitor keeps any in-flight instruction.
// Run calls this after finalizing a segment; a debugger stepping with
// Step must call it itself when Step reports SystemSplit.
func (e *Executor) Split() {
	e.preImage = e.monitor.Image.Clone()
	e.bodyCycles = 0
	e.insnCounter = 0
	e.segmentCycle = e.initCycles
	e.prePC = e.pc
	e.monitor.ClearSegment()
}

// Step executes a single instruction, or declares a segment split when
// committing it would blow the cycle budget. Debuggers may call this
// directly.
func (e *Executor) Step() (*ExitCode, error) {
	if e.sessionCycle() > e.env.sessionLimit() {
		code := SessionLimitExceeded
		return &code, nil
	}

	insn, err := e.monitor.LoadU32(e.pc)
	if err != nil {
		return nil, err
	}
	opcode, err := rv32im.Decode(insn, e.pc)
	if err != nil {
		return nil, err
	}

	// First step after a split: replay the cached result instead of
	// re-executing against post-split state.
	if op := e.monitor.RestoreOp(); op != nil {
		return e.advance(opcode, *op)
	}

	var opResult OpCodeResult
	if opcode.Major == rv32im.ECall {
		opResult, err = e.ecall()
		if err != nil {
			return nil, err
		}
	} else {
		hart := rv32im.NewHartState(e.monitor.Registers(), e.pc)
		ix := rv32im.InstructionExecutor{Mem: e.monitor, Hart: hart}
		if err := ix.Step(); err != nil {
			return nil, err
		}
		if idx := hart.LastRegisterWrite; idx >= 0 {
			e.monitor.StoreRegister(idx, hart.Registers[idx])
		}
		opResult = OpCodeResult{NextPC: hart.PC}
	}
	e.monitor.SaveOp(opResult)

	if e.env.TraceCallback != nil {
		start := TraceEvent{
			Kind:  TraceInstructionStart,
			Cycle: uint32(e.sessionCycle()),
			PC:    e.pc,
		}
		if err := e.env.TraceCallback(start); err != nil {
			return nil, fmt.Errorf("trace callback: %w", err)
		}
		for _, event := range e.monitor.TraceWrites {
			if err := e.env.TraceCallback(event); err != nil {
				return nil, fmt.Errorf("trace callback: %w", err)
			}
		}
	}

	// If committing this instruction would exceed the segment budget:
	// don't advance the pc, don't record any activity, declare a split.
	if e.totalPendingCycles(&opcode) > e.env.segmentLimit() {
		code := SystemSplit(e.insnCounter)
		return &code, nil
	}
	return e.advance(opcode, opResult)
}

func (e *Executor) advance(opcode rv32im.OpCode, op OpCodeResult) (*ExitCode, error) {
	slog.Debug(fmt.Sprintf("[%d] pc: 0x%08x, insn: 0x%08x %s",
		e.segmentCycle, e.pc, opcode.Insn, opcode.Mnemonic))

	e.pc = op.NextPC
	e.insnCounter++
	e.bodyCycles += opcode.Cycles + op.ExtraCycles
	e.segmentCycle = e.initCycles + e.monitor.TotalPageReadCycles() + e.bodyCycles
	if op.Syscall != nil {
		e.monitor.Syscalls = append(e.monitor.Syscalls, *op.Syscall)
	}
	if err := e.monitor.Commit(uint32(e.sessionCycle())); err != nil {
		return nil, err
	}
	return op.Exit, nil
}

// totalCycles is the realized cost of the segment just finished.
func (e *Executor) totalCycles() int {
	return e.initCycles +
		e.monitor.TotalFaultCycles() +
		e.bodyCycles +
		e.finiCycles +
		ShaCycles +
		ZkCycles
}

// totalPendingCycles over-approximates the segment cost if the current
// instruction were committed. It must include every category that feeds
// the realized total: a safe over-estimate splits a little early, an
// under-estimate produces an unprovable segment.
func (e *Executor) totalPendingCycles(opcode *rv32im.OpCode) int {
	return e.initCycles +
		e.monitor.TotalPendingFaultCycles() +
		opcode.Cycles +
		e.bodyCycles +
		e.finiCycles +
		ShaCycles +
		ZkCycles
}

// sessionCycle is the cycle count since the start of the run, with every
// prior segment accounted at the full segment limit.
func (e *Executor) sessionCycle() int {
	return len(e.segments)*e.env.segmentLimit() + e.segmentCycle
}

// PC returns the current program counter.
func (e *Executor) PC() uint32 {
	return e.pc
}

// Registers returns the committed register file.
func (e *Executor) Registers() [32]uint32 {
	return e.monitor.Registers()
}

// Segments returns the segments finalized so far.
func (e *Executor) Segments() []Segment {
	return e.segments
}

// PeekWord reads committed memory without disturbing fault accounting.
func (e *Executor) PeekWord(addr uint32) (uint32, error) {
	return e.monitor.Image.LoadWord(addr)
}

func (e *Executor) ecall() (OpCodeResult, error) {
	switch selector := e.monitor.LoadRegister(rv32im.RegT0); selector {
	case ecallHalt:
		return e.ecallHalt()
	case ecallOutput:
		return e.ecallOutput()
	case ecallSoftware:
		return e.ecallSoftware()
	case ecallSha:
		return e.ecallSha()
	default:
		return OpCodeResult{}, fmt.Errorf("%w: %d at pc 0x%08x", ErrUnknownEcall, selector, e.pc)
	}
}

func (e *Executor) ecallHalt() (OpCodeResult, error) {
	haltType := e.monitor.LoadRegister(rv32im.RegA0)
	switch haltType {
	case haltTerminate:
		exit := Halted(0)
		return OpCodeResult{NextPC: e.pc, Exit: &exit}, nil
	case haltPause:
		exit := Paused
		return OpCodeResult{NextPC: e.pc + image.WordSize, Exit: &exit}, nil
	default:
		return OpCodeResult{}, fmt.Errorf("%w: %d", ErrIllegalHalt, haltType)
	}
}

func (e *Executor) ecallOutput() (OpCodeResult, error) {
	// TODO: decide whether OUTPUT must also commit the guest word in A0
	// to a host sink; see the stub in executor_test.go.
	slog.Debug("ecall(output)")
	return OpCodeResult{NextPC: e.pc + image.WordSize}, nil
}

func (e *Executor) ecallSha() (OpCodeResult, error) {
	regs := e.monitor.LoadRegisters([]int{
		rv32im.RegA0, rv32im.RegA1, rv32im.RegA2, rv32im.RegA3, rv32im.RegA4,
	})
	outStatePtr, inStatePtr, block1Ptr, block2Ptr, count := regs[0], regs[1], regs[2], regs[3], regs[4]

	inState, err := e.monitor.LoadArray(inStatePtr, sha2.DigestWords*image.WordSize)
	if err != nil {
		return OpCodeResult{}, err
	}
	var state [sha2.DigestWords]uint32
	for i := range state {
		state[i] = binary.BigEndian.Uint32(inState[i*image.WordSize:])
	}

	for iter := uint32(0); iter < count; iter++ {
		var block [sha2.BlockBytes]byte
		half1, err := e.monitor.LoadArray(block1Ptr, sha2.BlockBytes/2)
		if err != nil {
			return OpCodeResult{}, err
		}
		half2, err := e.monitor.LoadArray(block2Ptr, sha2.BlockBytes/2)
		if err != nil {
			return OpCodeResult{}, err
		}
		copy(block[:], half1)
		copy(block[sha2.BlockBytes/2:], half2)
		sha2.Compress256(&state, block[:])

		block1Ptr += sha2.BlockBytes
		block2Ptr += sha2.BlockBytes
	}

	out := make([]byte, sha2.DigestWords*image.WordSize)
	for i, word := range state {
		binary.BigEndian.PutUint32(out[i*image.WordSize:], word)
	}
	if err := e.monitor.StoreRegion(outStatePtr, out); err != nil {
		return OpCodeResult{}, err
	}

	return OpCodeResult{
		NextPC:      e.pc + image.WordSize,
		ExtraCycles: ShaCycles * int(count),
	}, nil
}

func (e *Executor) ecallSoftware() (OpCodeResult, error) {
	regs := e.monitor.LoadRegisters([]int{rv32im.RegA0, rv32im.RegA1, rv32im.RegA2})
	toGuestPtr, toGuestWords, namePtr := regs[0], regs[1], regs[2]

	name, err := e.monitor.LoadString(namePtr)
	if err != nil {
		return OpCodeResult{}, err
	}
	slog.Debug("ecall(software)", "syscall", name, "words", toGuestWords)

	handler, ok := e.env.syscall(name)
	if !ok {
		return OpCodeResult{}, fmt.Errorf("%w: %q", ErrUnknownSyscall, name)
	}

	toGuest := make([]uint32, toGuestWords)
	a0, a1, err := handler.Syscall(name, e.monitor, toGuest)
	if err != nil {
		return OpCodeResult{}, fmt.Errorf("syscall %q: %w", name, err)
	}

	if len(toGuest) != 0 {
		data := make([]byte, len(toGuest)*image.WordSize)
		for i, word := range toGuest {
			binary.LittleEndian.PutUint32(data[i*image.WordSize:], word)
		}
		if err := e.monitor.StoreRegion(toGuestPtr, data); err != nil {
			return OpCodeResult{}, err
		}
	}
	e.monitor.StoreRegister(rv32im.RegA0, a0)
	e.monitor.StoreRegister(rv32im.RegA1, a1)

	// One cycle to enter the ecall, one per to-guest word with the word
	// count rounded up to a multiple of WordSize, and one to store A0/A1.
	chunks := alignUp(int(toGuestWords), image.WordSize)
	return OpCodeResult{
		NextPC:      e.pc + image.WordSize,
		ExtraCycles: 1 + chunks + 1,
		Syscall: &SyscallRecord{
			ToGuest: toGuest,
			A0:      a0,
			A1:      a1,
		},
	}, nil
}

func alignUp(n int, align int) int {
	return (n + align - 1) / align * align
}
