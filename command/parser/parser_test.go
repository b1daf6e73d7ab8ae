/*
 * zkRISCV - Debugger command parser test cases.
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

package parser

import (
	"testing"

	"github.com/rcornwell/zkriscv/emu/exec"
	"github.com/rcornwell/zkriscv/emu/image"
)

// A guest that immediately halts: addi t0, zero, 0; addi a0, zero, 0;
// ecall.
var haltProgram = []uint32{0x00000293, 0x00000513, 0x00000073}

func testExecutor(t *testing.T) *exec.Executor {
	t.Helper()
	prog := &image.Program{Entry: 0x4000, Image: make(map[uint32]uint32)}
	for i, word := range haltProgram {
		prog.Image[0x4000+uint32(i*4)] = word
	}
	img, err := image.NewImage(prog)
	if err != nil {
		t.Fatal(err)
	}
	return exec.NewExecutor(exec.NewEnv(), img, 0x4000)
}

func TestCompleteCmd(t *testing.T) {
	got := CompleteCmd("s")
	want := map[string]bool{"step": true, "segments": true}
	if len(got) != len(want) {
		t.Fatalf("completions %v", got)
	}
	for _, cmd := range got {
		if !want[cmd] {
			t.Errorf("unexpected completion %q", cmd)
		}
	}
	if len(CompleteCmd("zz")) != 0 {
		t.Error("bogus prefix completed")
	}
}

func TestProcessCommands(t *testing.T) {
	e := testExecutor(t)

	cases := []struct {
		line string
		quit bool
		ok   bool
	}{
		{"", false, true},
		{"regs", false, true},
		{"mem 0x4000", false, true},
		{"mem 0x4000 2", false, true},
		{"dis 0x4000 3", false, true},
		{"step", false, true},
		{"step 2", false, true},
		{"segments", false, true},
		{"help", false, true},
		{"step banana", false, false},
		{"mem", false, false},
		{"bogus", false, false},
		{"quit", true, true},
	}
	for _, c := range cases {
		quit, err := ProcessCommand(c.line, e)
		if quit != c.quit {
			t.Errorf("%q: quit %v", c.line, quit)
		}
		if (err == nil) != c.ok {
			t.Errorf("%q: err %v", c.line, err)
		}
	}
}

func TestRunCommand(t *testing.T) {
	e := testExecutor(t)
	if _, err := ProcessCommand("run", e); err != nil {
		t.Fatal(err)
	}
	if e.PC() != 0x4008 {
		t.Errorf("pc after halt 0x%08x", e.PC())
	}
}
