/*
 * zkRISCV - Executor environment.
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
	"bytes"
	"io"
	"os"
)

// Guest file descriptors.
const (
	FdStdin   = 0
	FdStdout  = 1
	FdStderr  = 2
	FdJournal = 3
)

// DefaultSegmentLimitPo2 caps each segment at 1<<20 cycles unless the
// environment says otherwise.
const DefaultSegmentLimitPo2 = 20

// defaultSessionLimit bounds runaway guests when no explicit limit is set.
const defaultSessionLimit = 1 << 40

// SyscallHandler serves one named SOFTWARE ecall. The handler may read
// guest memory through the monitor and fills toGuest with data for the
// guest; the returned pair lands in registers A0 and A1.
type SyscallHandler interface {
	Syscall(name string, monitor *MemoryMonitor, toGuest []uint32) (uint32, uint32, error)
}

// SyscallFunc adapts a plain function to SyscallHandler.
type SyscallFunc func(name string, monitor *MemoryMonitor, toGuest []uint32) (uint32, uint32, error)

func (f SyscallFunc) Syscall(name string, monitor *MemoryMonitor, toGuest []uint32) (uint32, uint32, error) {
	return f(name, monitor, toGuest)
}

// ExecutorEnv is the configuration an Executor consults while running.
// Build one with NewEnv, adjust the exported fields, then hand it to the
// executor; it must not change during a run.
type ExecutorEnv struct {
	// SegmentLimitPo2 caps each segment at 1<<po2 total cycles.
	SegmentLimitPo2 uint32

	// SessionLimit aborts the run once the session cycle count passes
	// it. Zero means the built-in default.
	SessionLimit int

	// Input is a byte buffer available to the guest through the
	// sys_initial_input syscall.
	Input []byte

	// TraceCallback, when set, receives every TraceEvent.
	TraceCallback TraceFunc

	// RemoteProver, when set to an endpoint URL, skips local execution
	// and registers the proof remotely instead.
	RemoteProver string

	syscalls map[string]SyscallHandler
	readFds  map[uint32]io.Reader
	writeFds map[uint32]io.Writer
}

// NewEnv builds an environment with default limits, stdout and stderr
// wired to the process, an empty stdin, and the built-in host syscalls
// registered.
func NewEnv() *ExecutorEnv {
	env := &ExecutorEnv{
		SegmentLimitPo2: DefaultSegmentLimitPo2,
		syscalls:        make(map[string]SyscallHandler),
		readFds:         make(map[uint32]io.Reader),
		writeFds:        make(map[uint32]io.Writer),
	}
	env.readFds[FdStdin] = bytes.NewReader(nil)
	env.writeFds[FdStdout] = os.Stdout
	env.writeFds[FdStderr] = os.Stderr
	env.registerHostIO()
	return env
}

// SetStdin maps a reader to the guest stdin descriptor.
func (env *ExecutorEnv) SetStdin(r io.Reader) {
	env.readFds[FdStdin] = r
}

// SetStdout maps a writer to the guest stdout descriptor.
func (env *ExecutorEnv) SetStdout(w io.Writer) {
	env.writeFds[FdStdout] = w
}

// SetStderr maps a writer to the guest stderr descriptor.
func (env *ExecutorEnv) SetStderr(w io.Writer) {
	env.writeFds[FdStderr] = w
}

// AddSyscall registers a handler under a syscall name, replacing any
// existing handler of that name.
func (env *ExecutorEnv) AddSyscall(name string, handler SyscallHandler) {
	env.syscalls[name] = handler
}

// AddSyscallFunc registers a plain function as a syscall handler.
func (env *ExecutorEnv) AddSyscallFunc(name string, fn SyscallFunc) {
	env.syscalls[name] = fn
}

func (env *ExecutorEnv) syscall(name string) (SyscallHandler, bool) {
	handler, ok := env.syscalls[name]
	return handler, ok
}

func (env *ExecutorEnv) setWriteFd(fd uint32, w io.Writer) {
	env.writeFds[fd] = w
}

func (env *ExecutorEnv) segmentLimit() int {
	return 1 << env.SegmentLimitPo2
}

func (env *ExecutorEnv) sessionLimit() int {
	if env.SessionLimit == 0 {
		return defaultSessionLimit
	}
	return env.SessionLimit
}
