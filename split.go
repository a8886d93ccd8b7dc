// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Placement/splitting and heap growth (spec.md §4.5, §4.6, §4.7).

package segalloc

import "unsafe"

// place removes free block b from its bucket and carves an allocated block
// of exactly asize bytes out of it, low address first. If the remainder is
// at least minBlockSize it is split off, reinserted as a free block, and the
// following block's prev flags are updated to describe it; otherwise the
// whole block is handed out and the following block's prev flags describe
// b unchanged in size.
func (a *Allocator) place(b unsafe.Pointer, asize int64) {
	total := blkSize(b)
	a.fl.remove(b)
	prevAlloc, prevMini := blkPrevAlloc(b), blkPrevMini(b)

	if total-asize >= minBlockSize {
		writeHeader(b, asize, true, prevAlloc, prevMini)

		rem := add(b, asize)
		remSize := total - asize
		writeHeader(rem, remSize, false, true, asize == minBlockSize)
		writeFooter(rem, remSize, false)
		a.fl.insert(rem)
		a.totalBlocks++

		setPrevFlags(nextPhysical(rem), false, remSize == minBlockSize)
		a.allocBytes += asize
		return
	}

	writeHeader(b, total, true, prevAlloc, prevMini)
	setPrevFlags(nextPhysical(b), true, total == minBlockSize)
	a.allocBytes += total
}

// findOrExtend returns a free block of at least asize bytes, growing the
// heap via extendHeap if no bucket holds a fit (spec.md §4.6).
func (a *Allocator) findOrExtend(asize int64) (unsafe.Pointer, error) {
	if b := a.fl.findFit(asize); b != nil {
		return b, nil
	}

	return a.extendHeap(maxI64(asize, a.chunkSize))
}

// extendHeap grows the arena by at least size bytes (rounded up to a
// multiple of dsize), overwrites the old epilogue with a new free block that
// inherits its predecessor's prev flags, writes a fresh epilogue after it,
// and coalesces the result with whatever free block preceded it (spec.md
// §4.7).
//
// The Extend call itself only reserves the new capacity; it returns the
// start of the bytes appended after the current epilogue, not the
// epilogue's own address. The new block overwrites the old epilogue word
// at a.epilogue, mirroring the C original's block = payload_to_header(bp).
func (a *Allocator) extendHeap(size int64) (unsafe.Pointer, error) {
	size = roundUp(maxI64(size, minBlockSize), dsize)

	if _, err := a.ext.Extend(size); err != nil {
		return nil, err
	}

	oldEpilogue := wordAt(a.epilogue)
	prevAlloc, prevMini := hPrevAlloc(oldEpilogue), hPrevMini(oldEpilogue)

	newBlock := a.epilogue
	writeHeader(newBlock, size, false, prevAlloc, prevMini)
	writeFooter(newBlock, size, false)
	a.totalBlocks++
	a.totalBytes += size

	a.epilogue = add(newBlock, size)
	writeEpilogue(a.epilogue, false, size == minBlockSize)

	return a.coalesce(newBlock), nil
}
