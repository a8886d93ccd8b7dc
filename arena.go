// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// The page extender: a growable, contiguous, pointer-addressable memory
// region standing in for the sbrk/mmap collaborator spec.md §1 treats as
// external.

package segalloc

import (
	"unsafe"

	"github.com/cznic/mathutil"
)

// DefaultArenaCap is the amount of address space an Arena reserves up
// front. The allocator never relocates live data, so the whole range must
// be reserved in one contiguous allocation at construction time; Extend
// only ever grows the logical length within it.
const DefaultArenaCap = 64 << 20 // 64 MiB

// Extender is the page extender interface the allocator consumes: request
// more bytes from the bottom of the free store, or query the current
// inclusive bounds of the live region. It is the Go analogue of a
// sbrk-style collaborator.
type Extender interface {
	// Extend grows the region by n bytes and returns a pointer to the
	// start of the newly added bytes, or an error if the region cannot
	// grow further.
	Extend(n int64) (unsafe.Pointer, error)

	// Lo returns the inclusive lower bound of the live region. Lo is the
	// zero pointer until the first successful Extend.
	Lo() unsafe.Pointer

	// Hi returns the inclusive upper bound of the live region (the
	// address of the last live byte). Hi is the zero pointer until the
	// first successful Extend.
	Hi() unsafe.Pointer
}

// Arena is a memory-backed Extender. Its backing store is a single
// pre-reserved byte slice so that addresses handed out by Extend remain
// valid for the Arena's lifetime — Go's append-style growth would silently
// relocate the backing array and invalidate every header/footer pointer
// the allocator has already written.
type Arena struct {
	buf   []byte
	brk   int64
	maxSz int64
}

var _ Extender = (*Arena)(nil)

// NewArena returns an Arena able to grow up to maxSize bytes. A maxSize of
// 0 selects DefaultArenaCap.
func NewArena(maxSize int64) *Arena {
	if maxSize <= 0 {
		maxSize = DefaultArenaCap
	}

	return &Arena{buf: make([]byte, maxSize), maxSz: maxSize}
}

// Extend implements Extender.
func (a *Arena) Extend(n int64) (unsafe.Pointer, error) {
	if n <= 0 {
		return nil, &ErrExtend{Requested: n, Cause: &ErrInvalid{Msg: "Extend: non-positive size", Arg: n}}
	}

	want := a.brk + n
	if want > a.maxSz {
		return nil, &ErrExtend{Requested: n, Cause: &ErrInvalid{Msg: "Extend: arena exhausted", Arg: mathutil.MaxInt64(0, want-a.maxSz)}}
	}

	p := unsafe.Pointer(&a.buf[a.brk])
	a.brk = want
	return p, nil
}

// Lo implements Extender.
func (a *Arena) Lo() unsafe.Pointer {
	if a.brk == 0 {
		return nil
	}

	return unsafe.Pointer(&a.buf[0])
}

// Hi implements Extender.
func (a *Arena) Hi() unsafe.Pointer {
	if a.brk == 0 {
		return nil
	}

	return unsafe.Pointer(&a.buf[a.brk-1])
}

// Size reports how many bytes of the reservation are currently live (the
// current "program break" offset from the start of the arena).
func (a *Arena) Size() int64 { return a.brk }
