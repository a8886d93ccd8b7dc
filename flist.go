// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// The segregated explicit free lists: L buckets of free blocks, bucket 0
// singly-linked for mini blocks, buckets 1..L-1 circular doubly-linked,
// mirroring the shape of the teacher package's flt (free list table) while
// threading the links through the blocks themselves rather than through a
// persisted table (spec.md §4.3).

package segalloc

import "unsafe"

// freeLists holds the L segregated bucket heads and per-bucket element
// counts. Its zero value is ready for use (all buckets empty).
type freeLists struct {
	heads  [numClasses]unsafe.Pointer
	counts [numClasses]int
}

// link words live in a free block's payload area, one word past the
// header. Storing them as plain address-sized words in arena memory (not
// as Go pointer fields) is safe here because the arena's backing slice is
// never moved or collected while the allocator using it is alive.

func linkWord(b unsafe.Pointer, idx int64) unsafe.Pointer {
	return add(payload(b), idx*wordSize)
}

func readLink(b unsafe.Pointer, idx int64) unsafe.Pointer {
	return unsafe.Pointer(uintptr(wordAt(linkWord(b, idx))))
}

func writeLink(b unsafe.Pointer, idx int64, v unsafe.Pointer) {
	setWordAt(linkWord(b, idx), word(uintptr(v)))
}

func miniNext(b unsafe.Pointer) unsafe.Pointer    { return readLink(b, 0) }
func setMiniNext(b, v unsafe.Pointer)             { writeLink(b, 0, v) }
func regNext(b unsafe.Pointer) unsafe.Pointer     { return readLink(b, 0) }
func setRegNext(b, v unsafe.Pointer)              { writeLink(b, 0, v) }
func regPrev(b unsafe.Pointer) unsafe.Pointer     { return readLink(b, 1) }
func setRegPrev(b, v unsafe.Pointer)              { writeLink(b, 1, v) }

// insert adds free block b to its size-class bucket, at the head (LIFO).
func (fl *freeLists) insert(b unsafe.Pointer) {
	cls := sizeClass(blkSize(b))
	if cls == 0 {
		setMiniNext(b, fl.heads[0])
		fl.heads[0] = b
		fl.counts[0]++
		return
	}

	head := fl.heads[cls]
	if head == nil {
		setRegNext(b, b)
		setRegPrev(b, b)
	} else {
		tail := regPrev(head)
		setRegNext(b, head)
		setRegPrev(b, tail)
		setRegNext(tail, b)
		setRegPrev(head, b)
	}
	fl.heads[cls] = b
	fl.counts[cls]++
}

// remove unlinks free block b from its size-class bucket. For bucket 0
// this requires a linear scan from the head to find the predecessor,
// since mini blocks have no fprev (spec.md §4.3).
func (fl *freeLists) remove(b unsafe.Pointer) {
	cls := sizeClass(blkSize(b))
	if cls == 0 {
		if fl.heads[0] == b {
			fl.heads[0] = miniNext(b)
		} else {
			prev := fl.heads[0]
			for prev != nil && miniNext(prev) != b {
				prev = miniNext(prev)
			}
			if prev != nil {
				setMiniNext(prev, miniNext(b))
			}
		}
		setMiniNext(b, nil)
		fl.counts[0]--
		return
	}

	next, prev := regNext(b), regPrev(b)
	if next == b {
		fl.heads[cls] = nil
	} else {
		setRegNext(prev, next)
		setRegPrev(next, prev)
		if fl.heads[cls] == b {
			fl.heads[cls] = next
		}
	}
	setRegNext(b, nil)
	setRegPrev(b, nil)
	fl.counts[cls]--
}

// findFit returns the first free block of size >= asize, scanning bucket
// sizeClass(asize) first and then each higher non-empty bucket in turn
// (spec.md §4.6). It returns nil if no bucket holds a fit.
func (fl *freeLists) findFit(asize int64) unsafe.Pointer {
	for cls := sizeClass(asize); cls < numClasses; cls++ {
		head := fl.heads[cls]
		if head == nil {
			continue
		}

		if cls == 0 {
			for b := head; b != nil; b = miniNext(b) {
				if blkSize(b) >= asize {
					return b
				}
			}
			continue
		}

		b := head
		for {
			if blkSize(b) >= asize {
				return b
			}
			b = regNext(b)
			if b == head {
				break
			}
		}
	}
	return nil
}

// totalFree returns the sum of all bucket counts (used by the heap checker
// to cross-validate against the implicit-list walk, P6).
func (fl *freeLists) totalFree() int {
	n := 0
	for _, c := range fl.counts {
		n += c
	}
	return n
}
