/*
 * zkRISCV - Built-in host I/O syscalls.
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
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/rcornwell/zkriscv/emu/rv32im"
)

// Built-in syscall names. The guest passes extra arguments in registers
// A3 and up; A0..A2 are taken by the SOFTWARE ecall itself.
const (
	// SysRead (fd=A3, nbytes=A4): read up to nbytes from the host
	// reader mapped to fd into the to-guest buffer. Returns (nread, 0).
	SysRead = "sys_read"

	// SysWrite (fd=A3, ptr=A4, nbytes=A5): copy guest bytes to the host
	// writer mapped to fd. Returns (nbytes, 0).
	SysWrite = "sys_write"

	// SysLog (ptr=A3, nbytes=A4): log a guest message.
	SysLog = "sys_log"

	// SysInitialInput (offset=A3): copy the env input buffer, starting
	// at offset, into the to-guest buffer. Returns (len(input), 0).
	SysInitialInput = "sys_initial_input"
)

func (env *ExecutorEnv) registerHostIO() {
	env.AddSyscallFunc(SysRead, env.sysRead)
	env.AddSyscallFunc(SysWrite, env.sysWrite)
	env.AddSyscallFunc(SysLog, env.sysLog)
	env.AddSyscallFunc(SysInitialInput, env.sysInitialInput)
}

func (env *ExecutorEnv) sysRead(_ string, monitor *MemoryMonitor, toGuest []uint32) (uint32, uint32, error) {
	fd := monitor.LoadRegister(rv32im.RegA3)
	nbytes := monitor.LoadRegister(rv32im.RegA4)

	r, ok := env.readFds[fd]
	if !ok {
		return 0, 0, fmt.Errorf("sys_read from unmapped fd %d", fd)
	}
	if nbytes > uint32(len(toGuest)*4) {
		nbytes = uint32(len(toGuest) * 4)
	}

	buf := make([]byte, nbytes)
	nread, err := io.ReadFull(r, buf)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return 0, 0, err
	}
	packWords(toGuest, buf[:nread])
	return uint32(nread), 0, nil
}

func (env *ExecutorEnv) sysWrite(_ string, monitor *MemoryMonitor, _ []uint32) (uint32, uint32, error) {
	fd := monitor.LoadRegister(rv32im.RegA3)
	ptr := monitor.LoadRegister(rv32im.RegA4)
	nbytes := monitor.LoadRegister(rv32im.RegA5)

	w, ok := env.writeFds[fd]
	if !ok {
		return 0, 0, fmt.Errorf("sys_write to unmapped fd %d", fd)
	}
	data, err := monitor.LoadArray(ptr, nbytes)
	if err != nil {
		return 0, 0, err
	}
	if _, err := w.Write(data); err != nil {
		return 0, 0, err
	}
	return nbytes, 0, nil
}

func (env *ExecutorEnv) sysLog(_ string, monitor *MemoryMonitor, _ []uint32) (uint32, uint32, error) {
	ptr := monitor.LoadRegister(rv32im.RegA3)
	nbytes := monitor.LoadRegister(rv32im.RegA4)

	msg, err := monitor.LoadArray(ptr, nbytes)
	if err != nil {
		return 0, 0, err
	}
	slog.Info("Guest: " + string(msg))
	return 0, 0, nil
}

func (env *ExecutorEnv) sysInitialInput(_ string, monitor *MemoryMonitor, toGuest []uint32) (uint32, uint32, error) {
	// The offset lets a guest with a small buffer fetch the input in
	// several calls.
	offset := monitor.LoadRegister(rv32im.RegA3)

	data := env.Input
	if offset < uint32(len(data)) {
		data = data[offset:]
	} else {
		data = nil
	}
	packWords(toGuest, data)
	return uint32(len(env.Input)), 0, nil
}

// packWords packs bytes little-endian into the word buffer, zero padding
// the tail.
func packWords(words []uint32, data []byte) {
	for i := range words {
		var b [4]byte
		off := i * 4
		if off < len(data) {
			copy(b[:], data[off:])
		}
		words[i] = binary.LittleEndian.Uint32(b[:])
	}
}
