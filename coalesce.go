// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Coalescing: merging a freshly-freed (or freshly-extended) block with its
// physically adjacent free neighbors, keyed on a 4-case table built from
// header bits alone (spec.md §4.4). This mirrors the teacher package's
// free2, which switches on (latoms == 0, ratoms == 0) to pick one of the
// same four joins (isolated, right-join, left-join, middle-join);
// segalloc's cases read b's prevAlloc bit and its right neighbor's alloc
// bit instead of lldb's on-disk left/right atom counts.

package segalloc

import "unsafe"

// coalesce merges free block b with any free physical neighbor and inserts
// the (possibly merged) result into the free lists. It returns the address
// of the resulting free block, which may differ from b if the left
// neighbor absorbed it.
func (a *Allocator) coalesce(b unsafe.Pointer) unsafe.Pointer {
	prevAlloc := blkPrevAlloc(b)
	next := nextPhysical(b)
	nextIsFree := !blkAlloc(next)

	switch {
	case prevAlloc && !nextIsFree:
		// Case (1,1): no free neighbor. b stands alone.
		a.fl.insert(b)
		setPrevFlags(next, false, blkSize(b) == minBlockSize)
		return b

	case prevAlloc && nextIsFree:
		// Case (1,0): absorb the right neighbor.
		a.fl.remove(next)
		a.totalBlocks--
		newSize := blkSize(b) + blkSize(next)
		writeHeader(b, newSize, false, true, blkPrevMini(b))
		writeFooter(b, newSize, false)
		a.fl.insert(b)
		setPrevFlags(nextPhysical(b), false, newSize == minBlockSize)
		return b

	case !prevAlloc && !nextIsFree:
		// Case (0,1): absorb the left neighbor.
		prev := prevPhysical(b)
		a.fl.remove(prev)
		a.totalBlocks--
		newSize := blkSize(prev) + blkSize(b)
		writeHeader(prev, newSize, false, blkPrevAlloc(prev), blkPrevMini(prev))
		writeFooter(prev, newSize, false)
		a.fl.insert(prev)
		setPrevFlags(nextPhysical(prev), false, newSize == minBlockSize)
		return prev

	default:
		// Case (0,0): absorb both neighbors.
		prev := prevPhysical(b)
		a.fl.remove(prev)
		a.fl.remove(next)
		a.totalBlocks -= 2
		newSize := blkSize(prev) + blkSize(b) + blkSize(next)
		writeHeader(prev, newSize, false, blkPrevAlloc(prev), blkPrevMini(prev))
		writeFooter(prev, newSize, false)
		a.fl.insert(prev)
		setPrevFlags(nextPhysical(prev), false, newSize == minBlockSize)
		return prev
	}
}
