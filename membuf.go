// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package segalloc

import "unsafe"

// ptrSlice views n bytes starting at p as a []byte without copying. The
// caller must ensure p and p+n both lie within the arena's live region.
func ptrSlice(p unsafe.Pointer, n int64) []byte {
	if n == 0 {
		return nil
	}

	return unsafe.Slice((*byte)(p), n)
}

// copyBytes copies n bytes from src to dst. It
// is the byte-copy primitive reallocate uses to migrate a payload to a
// freshly allocated block (spec.md §4.9).
func copyBytes(dst, src unsafe.Pointer, n int64) {
	if n <= 0 {
		return
	}

	copy(ptrSlice(dst, n), ptrSlice(src, n))
}

// zeroBytes fills n bytes starting at p with zero. It is the fill
// primitive zeroAllocate uses after allocate succeeds (spec.md §4.10).
func zeroBytes(p unsafe.Pointer, n int64) {
	if n <= 0 {
		return
	}

	b := ptrSlice(p, n)
	for i := range b {
		b[i] = 0
	}
}
