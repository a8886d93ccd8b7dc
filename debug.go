// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Debug instrumentation. The C original gates its dbg_requires/dbg_assert/
// dbg_printheap family behind a DEBUG build macro; segalloc instead keeps a
// package-level switch, and dump routines callers can reach for while
// chasing a VerifyHeap failure.

package segalloc

import (
	"fmt"
	"io"
)

// Debug is a package-level debug switch, false by default. No code in the
// package reads it: VerifyHeap and the dump routines below run whenever they
// are called, and the tests leave it unset.
var Debug = false

// dumpHeap writes one line per block of the implicit list to w, in the
// style of the C original's print_heap: address, size, alloc/free, and the
// prevAlloc/prevMini bits.
func dumpHeap(w io.Writer, a *Allocator) {
	b := a.heapStart
	for {
		size := blkSize(b)
		state := "free"
		if blkAlloc(b) {
			state = "alloc"
		}
		fmt.Fprintf(w, "%#x size=%d %s prevAlloc=%t prevMini=%t\n",
			uintptr(b), size, state, blkPrevAlloc(b), blkPrevMini(b))
		if size == 0 {
			return
		}
		b = nextPhysical(b)
	}
}

// dumpFreeLists writes the contents of every non-empty bucket to w.
func dumpFreeLists(w io.Writer, a *Allocator) {
	for cls := 0; cls < numClasses; cls++ {
		head := a.fl.heads[cls]
		if head == nil {
			continue
		}

		fmt.Fprintf(w, "bucket %d (count=%d):", cls, a.fl.counts[cls])
		walk := head
		for {
			fmt.Fprintf(w, " %#x(%d)", uintptr(walk), blkSize(walk))
			if cls == 0 {
				walk = miniNext(walk)
				if walk == nil {
					break
				}
				continue
			}
			walk = regNext(walk)
			if walk == head {
				break
			}
		}
		fmt.Fprintln(w)
	}
}
