/*
 * zkRISCV - Debugger command parser.
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

// Package parser interprets single-step debugger commands against an
// executor.
package parser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rcornwell/zkriscv/emu/exec"
	"github.com/rcornwell/zkriscv/emu/rv32im"
)

var commands = []string{
	"step", "regs", "mem", "dis", "run", "segments", "help", "quit",
}

// CompleteCmd returns the commands starting with the given prefix, for
// line editor completion.
func CompleteCmd(line string) []string {
	var out []string
	for _, cmd := range commands {
		if strings.HasPrefix(cmd, strings.ToLower(line)) {
			out = append(out, cmd)
		}
	}
	return out
}

// ProcessCommand runs one debugger command. It returns true when the
// session should end.
func ProcessCommand(line string, e *exec.Executor) (bool, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}

	switch strings.ToLower(fields[0]) {
	case "step", "s":
		count := 1
		if len(fields) > 1 {
			n, err := strconv.Atoi(fields[1])
			if err != nil || n < 1 {
				return false, fmt.Errorf("bad step count %q", fields[1])
			}
			count = n
		}
		return false, doStep(e, count)

	case "regs", "r":
		printRegs(e)
		return false, nil

	case "mem", "m":
		return false, doMem(e, fields[1:])

	case "dis", "d":
		return false, doDis(e, fields[1:])

	case "run":
		return false, doRun(e)

	case "segments":
		for _, seg := range e.Segments() {
			fmt.Printf("segment %d: pc 0x%08x exit %s po2 %d post %s\n",
				seg.Index, seg.PrePC, seg.Exit, seg.Po2, seg.PostImageID)
		}
		return false, nil

	case "help", "?":
		fmt.Println("step [n]       execute n instructions")
		fmt.Println("regs           show the register file")
		fmt.Println("mem addr [n]   show n memory words")
		fmt.Println("dis addr [n]   disassemble n words")
		fmt.Println("run            run until the guest halts or pauses")
		fmt.Println("segments       list finalized segments")
		fmt.Println("quit           leave the debugger")
		return false, nil

	case "quit", "q", "exit":
		return true, nil
	}
	return false, fmt.Errorf("unknown command %q", fields[0])
}

func doStep(e *exec.Executor, count int) error {
	for i := 0; i < count; i++ {
		pc := e.PC()
		insn, err := e.PeekWord(pc)
		if err != nil {
			return err
		}
		exitCode, err := e.Step()
		if err != nil {
			return err
		}
		fmt.Printf("0x%08x: %s\n", pc, rv32im.Disassemble(insn, pc))
		if exitCode != nil {
			fmt.Printf("exit: %s\n", exitCode)
			if exitCode.Kind == exec.ExitSystemSplit {
				// Start the next segment; the instruction replays on
				// the following step.
				e.Split()
				continue
			}
			return nil
		}
	}
	return nil
}

func doRun(e *exec.Executor) error {
	for {
		exitCode, err := e.Step()
		if err != nil {
			return err
		}
		if exitCode == nil {
			continue
		}
		fmt.Printf("exit: %s at pc 0x%08x\n", exitCode, e.PC())
		if exitCode.Kind != exec.ExitSystemSplit {
			return nil
		}
		e.Split()
	}
}

func printRegs(e *exec.Executor) {
	regs := e.Registers()
	for i := 0; i < 32; i += 4 {
		fmt.Printf("x%-2d %08x  x%-2d %08x  x%-2d %08x  x%-2d %08x\n",
			i, regs[i], i+1, regs[i+1], i+2, regs[i+2], i+3, regs[i+3])
	}
	fmt.Printf("pc  %08x\n", e.PC())
}

func parseAddr(arg string) (uint32, error) {
	addr, err := strconv.ParseUint(arg, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("bad address %q", arg)
	}
	return uint32(addr), nil
}

func memArgs(args []string) (uint32, int, error) {
	if len(args) < 1 {
		return 0, 0, fmt.Errorf("address required")
	}
	addr, err := parseAddr(args[0])
	if err != nil {
		return 0, 0, err
	}
	count := 8
	if len(args) > 1 {
		n, err := strconv.Atoi(args[1])
		if err != nil || n < 1 {
			return 0, 0, fmt.Errorf("bad count %q", args[1])
		}
		count = n
	}
	return addr &^ 3, count, nil
}

func doMem(e *exec.Executor, args []string) error {
	addr, count, err := memArgs(args)
	if err != nil {
		return err
	}
	for i := 0; i < count; i++ {
		word, err := e.PeekWord(addr + uint32(i*4))
		if err != nil {
			return err
		}
		fmt.Printf("0x%08x: %08x\n", addr+uint32(i*4), word)
	}
	return nil
}

func doDis(e *exec.Executor, args []string) error {
	addr, count, err := memArgs(args)
	if err != nil {
		return err
	}
	for i := 0; i < count; i++ {
		pc := addr + uint32(i*4)
		word, err := e.PeekWord(pc)
		if err != nil {
			return err
		}
		fmt.Printf("0x%08x: %s\n", pc, rv32im.Disassemble(word, pc))
	}
	return nil
}
