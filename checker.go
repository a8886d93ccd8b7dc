// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// The heap checker (spec.md §4.11): walks the implicit list and every
// free-list bucket, cross-validates them against each other, and reports
// the first violation found. Modeled on the teacher package's
// Allocator.Verify, which runs a multi-phase scan (mark blocks from the
// implicit walk, check used blocks, walk the FLT checking reciprocal
// links, report anything left over) and fills an AllocStats summary on
// success; segalloc's single-residency implicit-list walk doesn't need
// lldb's bitmap-marking trick (that exists to verify a persisted file
// whose blocks aren't all resident at once), so VerifyHeap collapses the
// phases into one forward pass plus one per-bucket pass.

package segalloc

import "unsafe"

// HeapStats is a point-in-time summary of the heap's occupancy, filled by
// VerifyHeap on success and also available cheaply via Stats.
type HeapStats struct {
	TotalBlocks int
	AllocBlocks int
	AllocBytes  int64
	FreeBlocks  int
	FreeBytes   int64
}

// Stats returns the allocator's current occupancy, maintained incrementally
// by Allocate/Release/Reallocate rather than by walking the heap.
func (a *Allocator) Stats() HeapStats {
	return HeapStats{
		TotalBlocks: a.totalBlocks,
		AllocBlocks: a.allocBlocks,
		AllocBytes:  a.allocBytes,
		FreeBlocks:  a.fl.totalFree(),
		FreeBytes:   a.totalBytes - a.allocBytes,
	}
}

// VerifyHeap walks the implicit list and every free-list bucket, checking
// every invariant spec.md §3/§4.11 names, and cross-checks the two views
// against each other (P6). It reports the first violation found to log; if
// log returns false the walk stops immediately. stats is filled only if the
// walk completes without any reported violation. VerifyHeap runs whenever
// it is called: it does not consult the package-level Debug switch, and no
// allocator entry point calls it.
func (a *Allocator) VerifyHeap(log func(error) bool, stats *HeapStats) bool {
	if log == nil {
		log = func(error) bool { return true }
	}

	ok := true
	report := func(err error) bool {
		ok = false
		return log(err)
	}

	lo, hi := a.ext.Lo(), a.ext.Hi()

	var implicitFree, implicitBlocks int
	var implicitFreeBytes, implicitAllocBytes int64
	var prevAddr unsafe.Pointer

	b := a.heapStart
	for {
		if uintptr(b) < uintptr(lo) || uintptr(b) > uintptr(hi) {
			if !report(&ErrCorrupt{Kind: ErrBadBounds, Addr: uintptr(b)}) {
				return false
			}
			break
		}
		if uintptr(payload(b))%dsize != 0 {
			if !report(&ErrCorrupt{Kind: ErrBadAlignment, Addr: uintptr(b)}) {
				return false
			}
		}
		if prevAddr != nil && uintptr(b) <= uintptr(prevAddr) {
			if !report(&ErrCorrupt{Kind: ErrBadOrder, Addr: uintptr(b)}) {
				return false
			}
		}
		prevAddr = b

		size := blkSize(b)
		if size == 0 {
			// Epilogue: must be alloc, and must be where the implicit walk ends.
			if !blkAlloc(b) {
				if !report(&ErrCorrupt{Kind: ErrBadEpilogue, Addr: uintptr(b)}) {
					return false
				}
			}
			break
		}
		if size < minBlockSize || size%dsize != 0 {
			if !report(&ErrCorrupt{Kind: ErrBadSize, Addr: uintptr(b), Arg: size}) {
				return false
			}
		}

		alloc := blkAlloc(b)
		if !alloc && size != minBlockSize {
			if wordAt(footer(b)) != wordAt(b)&^(prevAllocBit|prevMiniBit) {
				if !report(&ErrCorrupt{Kind: ErrHeaderFooterMismatch, Addr: uintptr(b)}) {
					return false
				}
			}
		}

		next := nextPhysical(b)
		if blkPrevAlloc(next) != alloc {
			if !report(&ErrCorrupt{Kind: ErrPrevFlagMismatch, Addr: uintptr(next)}) {
				return false
			}
		}
		if blkPrevMini(next) != (size == minBlockSize) {
			if !report(&ErrCorrupt{Kind: ErrPrevFlagMismatch, Addr: uintptr(next)}) {
				return false
			}
		}
		if !alloc && blkSize(next) != 0 && !blkAlloc(next) {
			if !report(&ErrCorrupt{Kind: ErrAdjacentFree, Addr: uintptr(b)}) {
				return false
			}
		}

		implicitBlocks++
		if alloc {
			implicitAllocBytes += size
		} else {
			implicitFree++
			implicitFreeBytes += size
		}

		b = next
	}

	for cls := 0; cls < numClasses; cls++ {
		head := a.fl.heads[cls]
		if head == nil {
			continue
		}

		count := 0
		walk := head
		for {
			if sizeClass(blkSize(walk)) != cls {
				if !report(&ErrCorrupt{Kind: ErrFreeListSizeClass, Addr: uintptr(walk), Arg: int64(cls)}) {
					return false
				}
			}
			if blkAlloc(walk) {
				if !report(&ErrCorrupt{Kind: ErrFreeListMembership, Addr: uintptr(walk)}) {
					return false
				}
			}

			count++
			if cls == 0 {
				walk = miniNext(walk)
				if walk == nil {
					break
				}
				continue
			}

			if regNext(regPrev(walk)) != walk || regPrev(regNext(walk)) != walk {
				if !report(&ErrCorrupt{Kind: ErrFreeListLinkage, Addr: uintptr(walk)}) {
					return false
				}
			}
			walk = regNext(walk)
			if walk == head {
				break
			}
		}

		if count != a.fl.counts[cls] {
			if !report(&ErrCorrupt{Kind: ErrFreeListCount, Addr: 0, Arg: int64(cls)}) {
				return false
			}
		}
	}

	if a.fl.totalFree() != implicitFree {
		if !report(&ErrCorrupt{Kind: ErrFreeListCount, Arg: int64(implicitFree)}) {
			return false
		}
	}

	if ok && stats != nil {
		*stats = HeapStats{
			TotalBlocks: implicitBlocks,
			AllocBlocks: a.allocBlocks,
			AllocBytes:  implicitAllocBytes,
			FreeBlocks:  implicitFree,
			FreeBytes:   implicitFreeBytes,
		}
	}

	return ok
}
