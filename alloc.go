// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// The public allocator: Init/New, Allocate, Release, Reallocate and
// ZeroAllocate (spec.md §4.8-§4.10, §6), wiring together the block
// encoding, free lists, coalescing and placement helpers. Mirrors the
// shape of the teacher package's Allocator (falloc.go): a struct holding
// the backing store plus whatever bookkeeping the checker and stats need,
// with the mutating entry points as its methods.
package segalloc

import "unsafe"

// Allocator is a segregated-free-list heap grown on demand from an
// Extender. The zero value is not usable; construct with New.
type Allocator struct {
	ext Extender

	heapStart unsafe.Pointer // fixed address of the first real block, set once at Init
	epilogue  unsafe.Pointer // current epilogue address, moves on every extendHeap
	fl        freeLists

	chunkSize int64

	allocBlocks int
	allocBytes  int64
	totalBlocks int
	totalBytes  int64
}

// Option configures an Allocator at construction time.
type Option func(*Allocator)

// WithChunkSize overrides the default heap-growth quantum (spec.md §4.6,
// §4.7). Non-positive values are ignored.
func WithChunkSize(n int64) Option {
	return func(a *Allocator) {
		if n > 0 {
			a.chunkSize = n
		}
	}
}

// New constructs an Allocator over ext and initializes it (spec.md §4.8).
func New(ext Extender, opts ...Option) (*Allocator, error) {
	a := &Allocator{ext: ext, chunkSize: chunksize}
	for _, opt := range opts {
		opt(a)
	}

	if err := a.Init(); err != nil {
		return nil, err
	}
	return a, nil
}

// Init (re)initializes the allocator: resets all free-list and bookkeeping
// state, writes a fresh prologue and initial epilogue, and grows the heap
// by one chunk. Safe to call again on an already-initialized Allocator
// sharing the same Extender, though in practice a fresh Extender is the
// common case (spec.md §4.8).
func (a *Allocator) Init() error {
	a.fl = freeLists{}
	a.allocBlocks, a.allocBytes = 0, 0
	a.totalBlocks, a.totalBytes = 0, 0

	p, err := a.ext.Extend(2 * wordSize)
	if err != nil {
		return err
	}

	prologue := p
	epilogue := add(p, wordSize)
	writePrologue(prologue)
	writeEpilogue(epilogue, true, false)

	a.heapStart = epilogue
	a.epilogue = epilogue

	if _, err := a.extendHeap(a.chunkSize); err != nil {
		return err
	}
	return nil
}

// Allocate returns a pointer to size usable bytes, or nil if size is zero
// or the heap could not be grown far enough (spec.md §6, §7). The returned
// pointer is always 16-byte aligned.
func (a *Allocator) Allocate(size int64) unsafe.Pointer {
	if size <= 0 {
		return nil
	}

	asize := maxI64(roundUp(size+wordSize, dsize), minBlockSize)

	b, err := a.findOrExtend(asize)
	if err != nil || b == nil {
		return nil
	}

	a.place(b, asize)
	a.allocBlocks++
	return payload(b)
}

// Release returns the block backing ptr to the free lists, coalescing with
// any free physical neighbor. A nil ptr is a no-op (spec.md §6, §7).
func (a *Allocator) Release(ptr unsafe.Pointer) {
	if ptr == nil {
		return
	}

	b := payloadToBlock(ptr)
	size := blkSize(b)
	writeHeader(b, size, false, blkPrevAlloc(b), blkPrevMini(b))
	writeFooter(b, size, false)

	a.allocBlocks--
	a.allocBytes -= size

	a.coalesce(b)
}

// Reallocate resizes the block backing ptr to size usable bytes, per
// spec.md §4.9: size == 0 releases ptr and returns nil; ptr == nil behaves
// as Allocate(size); otherwise it tries to satisfy the request in place
// (shrinking, or growing into a free right neighbor) before falling back to
// allocate-copy-release.
func (a *Allocator) Reallocate(ptr unsafe.Pointer, size int64) unsafe.Pointer {
	if size == 0 {
		a.Release(ptr)
		return nil
	}
	if ptr == nil {
		return a.Allocate(size)
	}

	b := payloadToBlock(ptr)
	asize := maxI64(roundUp(size+wordSize, dsize), minBlockSize)
	oldSize := blkSize(b)

	if oldSize >= asize {
		if oldSize-asize >= minBlockSize {
			a.splitInPlace(b, asize)
		}
		return ptr
	}

	next := nextPhysical(b)
	if !blkAlloc(next) {
		grown := oldSize + blkSize(next)
		if grown >= asize {
			a.fl.remove(next)
			a.totalBlocks--
			prevAlloc, prevMini := blkPrevAlloc(b), blkPrevMini(b)

			if grown-asize >= minBlockSize {
				writeHeader(b, asize, true, prevAlloc, prevMini)
				rem := add(b, asize)
				remSize := grown - asize
				writeHeader(rem, remSize, false, true, asize == minBlockSize)
				writeFooter(rem, remSize, false)
				a.fl.insert(rem)
				a.totalBlocks++
				setPrevFlags(nextPhysical(rem), false, remSize == minBlockSize)
			} else {
				writeHeader(b, grown, true, prevAlloc, prevMini)
				setPrevFlags(nextPhysical(b), true, grown == minBlockSize)
			}

			a.allocBytes += blkSize(b) - oldSize
			return ptr
		}
	}

	newPtr := a.Allocate(size)
	if newPtr == nil {
		return nil
	}

	copyBytes(newPtr, ptr, minI64(size, oldSize-wordSize))
	a.Release(ptr)
	return newPtr
}

// splitInPlace shrinks an already-allocated block b to asize bytes and
// frees the remainder, used by Reallocate's shrink path.
func (a *Allocator) splitInPlace(b unsafe.Pointer, asize int64) {
	total := blkSize(b)
	prevAlloc, prevMini := blkPrevAlloc(b), blkPrevMini(b)

	writeHeader(b, asize, true, prevAlloc, prevMini)
	rem := add(b, asize)
	remSize := total - asize
	writeHeader(rem, remSize, false, true, asize == minBlockSize)
	writeFooter(rem, remSize, false)
	a.totalBlocks++
	a.allocBytes -= remSize

	setPrevFlags(nextPhysical(rem), false, remSize == minBlockSize)
	a.coalesce(rem)
}

// ZeroAllocate allocates room for elements*size bytes, zeroed, returning nil
// on multiplicative overflow or if either argument is zero (spec.md §4.10,
// §7).
func (a *Allocator) ZeroAllocate(elements, size int64) unsafe.Pointer {
	if elements == 0 || size == 0 {
		return nil
	}
	if elements < 0 || size < 0 {
		return nil
	}

	n := elements * size
	if n/elements != size {
		return nil
	}

	p := a.Allocate(n)
	if p == nil {
		return nil
	}

	zeroBytes(p, n)
	return p
}

func minI64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
