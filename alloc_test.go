// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package segalloc

import (
	"flag"
	"math/rand"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	randTestOps  = flag.Int("ops", 2000, "segalloc rnd test operation count")
	randTestSeed = flag.Int64("seed", 1, "segalloc rnd test PRNG seed")
)

// pAlloc is a paranoid Allocator: it calls VerifyHeap after every mutating
// call and fails the test immediately on the first violation, mirroring
// the teacher package's pAllocator wrapper around falloc.Allocator.
type pAlloc struct {
	*Allocator
	t *testing.T
}

func newPAlloc(t *testing.T, arenaCap int64) *pAlloc {
	a, err := New(NewArena(arenaCap))
	require.NoError(t, err)
	return &pAlloc{Allocator: a, t: t}
}

func (p *pAlloc) verify(op string) {
	p.t.Helper()
	var stats HeapStats
	var violations []error
	ok := p.VerifyHeap(func(err error) bool {
		violations = append(violations, err)
		return len(violations) < 10
	}, &stats)
	if !ok {
		for _, v := range violations {
			p.t.Errorf("%s: %v", op, v)
		}
		p.t.FailNow()
	}
}

func (p *pAlloc) Allocate(size int64) unsafe.Pointer {
	ptr := p.Allocator.Allocate(size)
	p.verify("Allocate")
	return ptr
}

func (p *pAlloc) Release(ptr unsafe.Pointer) {
	p.Allocator.Release(ptr)
	p.verify("Release")
}

func (p *pAlloc) Reallocate(ptr unsafe.Pointer, size int64) unsafe.Pointer {
	np := p.Allocator.Reallocate(ptr, size)
	p.verify("Reallocate")
	return np
}

func (p *pAlloc) ZeroAllocate(n, size int64) unsafe.Pointer {
	np := p.Allocator.ZeroAllocate(n, size)
	p.verify("ZeroAllocate")
	return np
}

func TestInitLayout(t *testing.T) {
	a := newPAlloc(t, 0)
	stats := a.Stats()
	assert.Equal(t, 1, stats.TotalBlocks)
	assert.Equal(t, 0, stats.AllocBlocks)
	assert.EqualValues(t, chunksize, stats.FreeBytes)
}

// Scenario 1 (spec §8): init(); p = allocate(40) splits the initial chunk
// into a 48-byte allocated block and a 4048-byte free remainder; releasing
// p restores a single 4096-byte free block.
func TestScenarioAllocateThenRelease(t *testing.T) {
	a := newPAlloc(t, 0)

	p := a.Allocate(40)
	require.NotNil(t, p)

	b := payloadToBlock(p)
	assert.EqualValues(t, 48, blkSize(b))
	assert.True(t, blkAlloc(b))

	rem := nextPhysical(b)
	assert.EqualValues(t, chunksize-48, blkSize(rem))
	assert.False(t, blkAlloc(rem))

	cls := sizeClass(blkSize(rem))
	assert.Equal(t, 1, a.fl.counts[cls])

	a.Release(p)

	stats := a.Stats()
	assert.Equal(t, 1, stats.TotalBlocks)
	assert.EqualValues(t, chunksize, stats.FreeBytes)
}

// Scenario 2 (spec §8): three tight allocations out of the initial chunk;
// freeing the first leaves it isolated, freeing the last merges it with the
// heap's trailing free remainder, and freeing the middle one then
// coalesces everything back into the original single free block.
func TestScenarioCoalesceMiddle(t *testing.T) {
	a := newPAlloc(t, 0)

	pa := a.Allocate(24)
	pb := a.Allocate(24)
	pc := a.Allocate(24)

	a.Release(pa)
	a.Release(pc)

	ba, bc := payloadToBlock(pa), payloadToBlock(pc)
	assert.EqualValues(t, 32, blkSize(ba))
	assert.False(t, blkAlloc(ba))
	assert.False(t, blkAlloc(bc))
	assert.EqualValues(t, chunksize-64, blkSize(bc)) // absorbed the trailing remainder

	a.Release(pb)

	// pa's block, pb's former block, and bc's merged block are now one
	// free block spanning the whole original chunk again.
	assert.False(t, blkAlloc(ba))
	assert.EqualValues(t, chunksize, blkSize(ba))
}

// Scenario 3 (spec §8): two mini allocations, then both released.
func TestScenarioMiniBlocks(t *testing.T) {
	a := newPAlloc(t, 0)

	p := a.Allocate(8)
	q := a.Allocate(8)

	bp, bq := payloadToBlock(p), payloadToBlock(q)
	assert.EqualValues(t, minBlockSize, blkSize(bp))
	assert.EqualValues(t, minBlockSize, blkSize(bq))
	assert.Equal(t, 0, a.fl.counts[0])

	a.Release(p)
	a.Release(q)
}

// Scenario 4 (spec §8): a request as large as chunksize cannot be
// satisfied by the single initial chunk, so the allocator must extend the
// heap at least once before it can place the block.
func TestScenarioAllocateForcesExtend(t *testing.T) {
	a := newPAlloc(t, 0)

	p := a.Allocate(chunksize)
	require.NotNil(t, p)

	b := payloadToBlock(p)
	assert.True(t, blkAlloc(b))
	assert.GreaterOrEqual(t, blkSize(b), int64(chunksize+wordSize))
	assert.Greater(t, a.totalBytes, int64(chunksize)) // the initial chunk alone could not satisfy this request
}

// Scenario 5 (spec §8): reallocating into a sufficiently large free
// successor returns the same pointer and preserves the payload.
func TestScenarioReallocateInPlaceGrow(t *testing.T) {
	a := newPAlloc(t, 0)

	p := a.Allocate(32)
	require.NotNil(t, p)

	sentinel := (*byte)(p)
	*sentinel = 0xAB

	q := a.Reallocate(p, 64)
	require.NotNil(t, q)
	assert.Equal(t, p, q)
	assert.Equal(t, byte(0xAB), *(*byte)(q))
}

// Scenario 6 (spec §8): first-fit within a class returns the
// just-released block's original address.
func TestScenarioAllocateReusesFreedAddress(t *testing.T) {
	a := newPAlloc(t, 0)

	p := a.Allocate(100)
	a.Release(p)
	q := a.Allocate(50)

	assert.Equal(t, p, q)
}

// B1: repeated small allocations all produce mini blocks; releasing them
// exercises bucket 0's insert/remove path.
func TestBoundaryRepeatedMiniAllocate(t *testing.T) {
	a := newPAlloc(t, 0)

	var ptrs []unsafe.Pointer
	for i := 0; i < 8; i++ {
		p := a.Allocate(1)
		require.NotNil(t, p)
		assert.EqualValues(t, minBlockSize, blkSize(payloadToBlock(p)))
		ptrs = append(ptrs, p)
	}

	for _, p := range ptrs {
		a.Release(p)
	}
}

// B2: right after init, a request whose block fills the initial chunk
// exactly (chunksize-16 payload bytes, a chunksize block) succeeds without
// a second extend call, since init already grew the heap by one chunk.
func TestBoundaryNoSecondExtendNeeded(t *testing.T) {
	a := newPAlloc(t, 0)

	p := a.Allocate(chunksize - wordSize - 8)
	require.NotNil(t, p)
	assert.EqualValues(t, chunksize, a.totalBytes)
}

// B3: a request just under the single payload word a minimum-size block
// offers (wordSize-1 bytes) still rounds up to one minimum-size block, not
// two.
func TestBoundaryJustUnderMinBlock(t *testing.T) {
	a := newPAlloc(t, 0)

	p := a.Allocate(wordSize - 1)
	require.NotNil(t, p)
	assert.EqualValues(t, minBlockSize, blkSize(payloadToBlock(p)))
}

// B4: zero_allocate with an overflowing element*size product returns nil.
func TestBoundaryZeroAllocateOverflow(t *testing.T) {
	a := newPAlloc(t, 0)

	p := a.ZeroAllocate(1<<62, 4)
	assert.Nil(t, p)
}

func TestZeroAllocateZeroesPayload(t *testing.T) {
	a := newPAlloc(t, 0)

	p := a.ZeroAllocate(8, 8)
	require.NotNil(t, p)

	b := ptrSlice(p, 64)
	for _, v := range b {
		assert.Equal(t, byte(0), v)
	}
}

func TestZeroAllocateZeroArgsReturnNil(t *testing.T) {
	a := newPAlloc(t, 0)
	assert.Nil(t, a.ZeroAllocate(0, 8))
	assert.Nil(t, a.ZeroAllocate(8, 0))
}

func TestReallocateSizeZeroReleases(t *testing.T) {
	a := newPAlloc(t, 0)

	p := a.Allocate(40)
	got := a.Reallocate(p, 0)
	assert.Nil(t, got)
}

func TestReallocateNilActsAsAllocate(t *testing.T) {
	a := newPAlloc(t, 0)

	p := a.Reallocate(nil, 40)
	require.NotNil(t, p)
}

func TestReallocateSameSizeIsNoop(t *testing.T) {
	a := newPAlloc(t, 0)

	p := a.Allocate(40)
	b := payloadToBlock(p)
	size := blkSize(b)

	q := a.Reallocate(p, 40)
	assert.Equal(t, p, q)
	assert.Equal(t, size, blkSize(payloadToBlock(q)))
}

func TestAllocateZeroReturnsNil(t *testing.T) {
	a := newPAlloc(t, 0)
	assert.Nil(t, a.Allocate(0))
}

func TestReleaseNilIsNoop(t *testing.T) {
	a := newPAlloc(t, 0)
	a.Release(nil) // must not panic
}

// TestRandomizedSoak performs a random mix of allocate/release/reallocate
// calls through the paranoid wrapper, which verifies the full heap after
// every single call — any invariant violation fails the test immediately.
func TestRandomizedSoak(t *testing.T) {
	rng := rand.New(rand.NewSource(*randTestSeed))
	a := newPAlloc(t, 16<<20)

	live := map[unsafe.Pointer]int64{}
	for i := 0; i < *randTestOps; i++ {
		switch rng.Intn(3) {
		case 0:
			size := int64(rng.Intn(512) + 1)
			p := a.Allocate(size)
			if p != nil {
				live[p] = size
			}
		case 1:
			if len(live) == 0 {
				continue
			}
			for p := range live {
				a.Release(p)
				delete(live, p)
				break
			}
		case 2:
			if len(live) == 0 {
				continue
			}
			for p := range live {
				newSize := int64(rng.Intn(512) + 1)
				q := a.Reallocate(p, newSize)
				delete(live, p)
				if q != nil {
					live[q] = newSize
				}
				break
			}
		}
	}

	for p := range live {
		a.Release(p)
	}
}
