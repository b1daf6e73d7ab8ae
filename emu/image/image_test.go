/*
 * zkRISCV - Memory image test cases.
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
	"errors"
	"testing"
)

func emptyImage(t *testing.T) *MemoryImage {
	t.Helper()
	img, err := NewImage(&Program{Image: map[uint32]uint32{}})
	if err != nil {
		t.Fatal(err)
	}
	return img
}

func TestLoadStoreWord(t *testing.T) {
	img := emptyImage(t)

	if err := img.StoreWord(0x1000, 0xdeadbeef); err != nil {
		t.Fatal(err)
	}
	v, err := img.LoadWord(0x1000)
	if err != nil {
		t.Fatal(err)
	}
	if v != 0xdeadbeef {
		t.Errorf("got %08x want deadbeef", v)
	}

	// Unmapped memory reads zero.
	v, err = img.LoadWord(0x7000_0000)
	if err != nil {
		t.Fatal(err)
	}
	if v != 0 {
		t.Errorf("unmapped read got %08x", v)
	}
}

func TestAlignmentAndBounds(t *testing.T) {
	img := emptyImage(t)

	if _, err := img.LoadWord(0x1001); !errors.Is(err, ErrAlignment) {
		t.Errorf("unaligned load got %v", err)
	}
	if err := img.StoreWord(0x1002, 1); !errors.Is(err, ErrAlignment) {
		t.Errorf("unaligned store got %v", err)
	}
	if _, err := img.LoadWord(MemSize); !errors.Is(err, ErrBounds) {
		t.Errorf("out of bounds load got %v", err)
	}
	if _, err := img.LoadBytes(MemSize-2, 4); !errors.Is(err, ErrBounds) {
		t.Errorf("out of bounds byte load got %v", err)
	}
}

func TestCrossPageRegion(t *testing.T) {
	img := emptyImage(t)

	data := make([]byte, 100)
	for i := range data {
		data[i] = byte(i + 1)
	}
	// Straddle the page boundary at 2*PageSize.
	addr := uint32(2*PageSize - 50)
	if err := img.StoreRegion(addr, data); err != nil {
		t.Fatal(err)
	}
	got, err := img.LoadBytes(addr, 100)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("cross page roundtrip mismatch: %x", got)
	}
}

func TestRootTracksContent(t *testing.T) {
	img := emptyImage(t)
	empty := img.Root()

	if err := img.StoreWord(0x2000, 7); err != nil {
		t.Fatal(err)
	}
	changed := img.Root()
	if changed == empty {
		t.Error("root unchanged after store")
	}

	// Storing the old value back restores the root.
	if err := img.StoreWord(0x2000, 0); err != nil {
		t.Fatal(err)
	}
	if img.Root() != empty {
		t.Error("root did not return to the empty root")
	}
}

func TestRootIndependentOfWriteOrder(t *testing.T) {
	a := emptyImage(t)
	b := emptyImage(t)

	writes := []struct{ addr, value uint32 }{
		{0x1000, 1}, {0x9000, 2}, {0x4000_0000, 3},
	}
	for _, w := range writes {
		if err := a.StoreWord(w.addr, w.value); err != nil {
			t.Fatal(err)
		}
	}
	for i := len(writes) - 1; i >= 0; i-- {
		if err := b.StoreWord(writes[i].addr, writes[i].value); err != nil {
			t.Fatal(err)
		}
	}
	if a.Root() != b.Root() {
		t.Errorf("roots differ: %s vs %s", a.Root(), b.Root())
	}
}

func TestIncrementalHashMatchesFresh(t *testing.T) {
	img := emptyImage(t)
	if err := img.StoreWord(0x1000, 1); err != nil {
		t.Fatal(err)
	}
	img.HashPages()
	// A second store dirties only one page; the incremental rehash must
	// agree with an image built from scratch.
	if err := img.StoreWord(0x4000_0000, 2); err != nil {
		t.Fatal(err)
	}

	fresh := emptyImage(t)
	_ = fresh.StoreWord(0x1000, 1)
	_ = fresh.StoreWord(0x4000_0000, 2)

	if img.Root() != fresh.Root() {
		t.Errorf("incremental root %s != fresh root %s", img.Root(), fresh.Root())
	}
}

func TestCloneIsDeep(t *testing.T) {
	img := emptyImage(t)
	if err := img.StoreWord(0x1000, 42); err != nil {
		t.Fatal(err)
	}
	root := img.Root()

	dup := img.Clone()
	if err := dup.StoreWord(0x1000, 43); err != nil {
		t.Fatal(err)
	}
	if img.Root() != root {
		t.Error("mutating the clone changed the original")
	}
	if dup.Root() == root {
		t.Error("clone root unchanged after store")
	}

	v, _ := img.LoadWord(0x1000)
	if v != 42 {
		t.Errorf("original word changed to %d", v)
	}
}

func TestPagesRoundTrip(t *testing.T) {
	img := emptyImage(t)
	_ = img.StoreWord(0x1000, 1)
	_ = img.StoreWord(0x5000, 2)

	rebuilt, err := FromPages(img.Pages())
	if err != nil {
		t.Fatal(err)
	}
	if rebuilt.Root() != img.Root() {
		t.Errorf("rebuilt root %s != %s", rebuilt.Root(), img.Root())
	}
}

func TestNewImageFromProgram(t *testing.T) {
	prog := &Program{
		Entry: 0x4000,
		Image: map[uint32]uint32{
			0x4000: 0x00000013,
			0x4004: 0x00000073,
		},
	}
	img, err := NewImage(prog)
	if err != nil {
		t.Fatal(err)
	}
	v, _ := img.LoadWord(0x4004)
	if v != 0x00000073 {
		t.Errorf("program word got %08x", v)
	}

	// Unaligned program words are rejected.
	_, err = NewImage(&Program{Image: map[uint32]uint32{1: 0}})
	if err == nil {
		t.Error("unaligned program word accepted")
	}
}
