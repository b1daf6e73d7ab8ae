/*
 * zkRISCV - Segment loader cycle model.
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

// Every segment is bracketed by a fixed setup microprogram (install the
// page table root, seed the register file) and a teardown microprogram
// (flush the Merkle frontier). Their cycle costs are constants of the
// circuit, not of the guest.
const (
	loaderInitCycles = 1000
	loaderFiniCycles = 100
)

// Loader describes the setup and teardown cost around a segment.
type Loader struct{}

// NewLoader returns the loader for the current circuit layout.
func NewLoader() Loader {
	return Loader{}
}

// InitCycles is the cost of segment setup.
func (Loader) InitCycles() int {
	return loaderInitCycles
}

// FiniCycles is the cost of segment teardown.
func (Loader) FiniCycles() int {
	return loaderFiniCycles
}
