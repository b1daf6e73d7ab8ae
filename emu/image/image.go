/*
 * zkRISCV - Paged, Merkle-hashed guest memory image.
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

// Package image holds the guest memory image. Memory is kept as sparse
// fixed-size pages; a binary Merkle tree over the pages yields a 256-bit
// root that commits to the byte contents of the whole address space.
package image

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
)

const (
	// WordSize is the guest word size in bytes.
	WordSize = 4

	// PageSize is the page size in bytes.
	PageSize = 1024

	// MemSize is the size of the guest address space in bytes.
	MemSize = 0x8000_0000

	// NumPages is the number of pages in the address space.
	NumPages = MemSize / PageSize

	// treeDepth is the height of the Merkle tree over the pages.
	treeDepth = 21
)

// Digest is a 256-bit hash value.
type Digest [sha256.Size]byte

func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// The following errors may be returned by memory accesses.
var (
	// ErrAlignment indicates an unaligned word access.
	ErrAlignment = errors.New("image: unaligned access")

	// ErrBounds indicates an access outside the guest address space.
	ErrBounds = errors.New("image: access out of bounds")
)

// zeroDigests[n] is the hash of a fully zero subtree of height n.
// zeroDigests[0] is the hash of a zero page.
var zeroDigests [treeDepth + 1]Digest

func init() {
	var zeroPage [PageSize]byte
	zeroDigests[0] = sha256.Sum256(zeroPage[:])
	for i := 1; i <= treeDepth; i++ {
		zeroDigests[i] = hashPair(zeroDigests[i-1], zeroDigests[i-1])
	}
}

func hashPair(left, right Digest) Digest {
	h := sha256.New()
	h.Write(left[:])
	h.Write(right[:])
	var d Digest
	h.Sum(d[:0])
	return d
}

// MemoryImage is a sparse paged memory with a Merkle commitment. Pages
// never touched stay unmapped and read as zero.
type MemoryImage struct {
	pages  map[uint32]*[PageSize]byte
	leaves map[uint32]Digest // leaf hash per mapped page
	dirty  map[uint32]bool   // pages whose leaf hash is stale
	root   Digest
	hashed bool
}

// NewImage builds a memory image from a loaded program.
func NewImage(prog *Program) (*MemoryImage, error) {
	img := &MemoryImage{
		pages:  make(map[uint32]*[PageSize]byte),
		leaves: make(map[uint32]Digest),
		dirty:  make(map[uint32]bool),
	}
	for addr, word := range prog.Image {
		if err := img.StoreWord(addr, word); err != nil {
			return nil, fmt.Errorf("program word at 0x%08x: %w", addr, err)
		}
	}
	return img, nil
}

// Clone returns a deep copy of the image.
func (img *MemoryImage) Clone() *MemoryImage {
	dup := &MemoryImage{
		pages:  make(map[uint32]*[PageSize]byte, len(img.pages)),
		leaves: make(map[uint32]Digest, len(img.leaves)),
		dirty:  make(map[uint32]bool, len(img.dirty)),
		root:   img.root,
		hashed: img.hashed,
	}
	for idx, page := range img.pages {
		p := *page
		dup.pages[idx] = &p
	}
	for idx, leaf := range img.leaves {
		dup.leaves[idx] = leaf
	}
	for idx := range img.dirty {
		dup.dirty[idx] = true
	}
	return dup
}

// PageIndex returns the page index containing addr.
func PageIndex(addr uint32) uint32 {
	return addr / PageSize
}

func (img *MemoryImage) page(idx uint32, create bool) *[PageSize]byte {
	page, ok := img.pages[idx]
	if !ok && create {
		page = new([PageSize]byte)
		img.pages[idx] = page
	}
	return page
}

func checkWord(addr uint32) error {
	if addr%WordSize != 0 {
		return fmt.Errorf("%w: addr 0x%08x", ErrAlignment, addr)
	}
	if addr >= MemSize {
		return fmt.Errorf("%w: addr 0x%08x", ErrBounds, addr)
	}
	return nil
}

// LoadWord reads an aligned 32-bit word.
func (img *MemoryImage) LoadWord(addr uint32) (uint32, error) {
	if err := checkWord(addr); err != nil {
		return 0, err
	}
	page := img.page(PageIndex(addr), false)
	if page == nil {
		return 0, nil
	}
	return binary.LittleEndian.Uint32(page[addr%PageSize:]), nil
}

// StoreWord writes an aligned 32-bit word.
func (img *MemoryImage) StoreWord(addr uint32, value uint32) error {
	if err := checkWord(addr); err != nil {
		return err
	}
	idx := PageIndex(addr)
	page := img.page(idx, true)
	binary.LittleEndian.PutUint32(page[addr%PageSize:], value)
	img.dirty[idx] = true
	img.hashed = false
	return nil
}

// LoadBytes reads n bytes starting at addr. No alignment is required.
func (img *MemoryImage) LoadBytes(addr uint32, n uint32) ([]byte, error) {
	if uint64(addr)+uint64(n) > MemSize {
		return nil, fmt.Errorf("%w: addr 0x%08x len %d", ErrBounds, addr, n)
	}
	out := make([]byte, n)
	for i := uint32(0); i < n; {
		idx := PageIndex(addr + i)
		off := (addr + i) % PageSize
		run := PageSize - off
		if run > n-i {
			run = n - i
		}
		if page := img.page(idx, false); page != nil {
			copy(out[i:i+run], page[off:off+run])
		}
		i += run
	}
	return out, nil
}

// StoreRegion writes a byte region starting at addr. No alignment is
// required.
func (img *MemoryImage) StoreRegion(addr uint32, data []byte) error {
	if uint64(addr)+uint64(len(data)) > MemSize {
		return fmt.Errorf("%w: addr 0x%08x len %d", ErrBounds, addr, len(data))
	}
	for i := 0; i < len(data); {
		a := addr + uint32(i)
		idx := PageIndex(a)
		off := a % PageSize
		run := int(PageSize - off)
		if run > len(data)-i {
			run = len(data) - i
		}
		page := img.page(idx, true)
		copy(page[off:int(off)+run], data[i:i+run])
		img.dirty[idx] = true
		i += run
	}
	img.hashed = false
	return nil
}

// HashPages recomputes the leaf hashes of dirty pages and folds the Merkle
// tree back up to the root. Clean pages are not rehashed.
func (img *MemoryImage) HashPages() {
	for idx := range img.dirty {
		page := img.pages[idx]
		img.leaves[idx] = sha256.Sum256(page[:])
	}
	img.dirty = make(map[uint32]bool)

	// Fold mapped nodes level by level, substituting the zero subtree
	// digest for any absent sibling.
	nodes := make(map[uint32]Digest, len(img.leaves))
	for idx, leaf := range img.leaves {
		nodes[idx] = leaf
	}
	for level := 0; level < treeDepth; level++ {
		next := make(map[uint32]Digest, (len(nodes)+1)/2)
		for idx := range nodes {
			parent := idx / 2
			if _, done := next[parent]; done {
				continue
			}
			left, ok := nodes[parent*2]
			if !ok {
				left = zeroDigests[level]
			}
			right, ok := nodes[parent*2+1]
			if !ok {
				right = zeroDigests[level]
			}
			next[parent] = hashPair(left, right)
		}
		nodes = next
	}

	if root, ok := nodes[0]; ok {
		img.root = root
	} else {
		img.root = zeroDigests[treeDepth]
	}
	img.hashed = true
}

// Pages returns a copy of the mapped pages keyed by page index.
func (img *MemoryImage) Pages() map[uint32][]byte {
	out := make(map[uint32][]byte, len(img.pages))
	for idx, page := range img.pages {
		data := make([]byte, PageSize)
		copy(data, page[:])
		out[idx] = data
	}
	return out
}

// FromPages rebuilds an image from page contents, as produced by Pages.
func FromPages(pages map[uint32][]byte) (*MemoryImage, error) {
	img := &MemoryImage{
		pages:  make(map[uint32]*[PageSize]byte, len(pages)),
		leaves: make(map[uint32]Digest, len(pages)),
		dirty:  make(map[uint32]bool, len(pages)),
	}
	for idx, data := range pages {
		if idx >= NumPages {
			return nil, fmt.Errorf("%w: page index %d", ErrBounds, idx)
		}
		if len(data) != PageSize {
			return nil, fmt.Errorf("image: page %d has %d bytes", idx, len(data))
		}
		page := new([PageSize]byte)
		copy(page[:], data)
		img.pages[idx] = page
		img.dirty[idx] = true
	}
	return img, nil
}

// Root returns the Merkle root over all pages, rehashing first if any page
// changed since the last HashPages.
func (img *MemoryImage) Root() Digest {
	if !img.hashed {
		img.HashPages()
	}
	return img.root
}
