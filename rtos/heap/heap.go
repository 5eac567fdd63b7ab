// Package heap implements a deterministic first-fit allocator with
// split-on-alloc and coalesce-on-free, grounded on
// original_source/src/util/rtos_heap.cpp. Unlike that implementation,
// which hands out raw pointers into a static array, Alloc here returns
// an opaque *Block: Go has no pointer arithmetic to recover a block's
// header from a bare []byte, so the header a caller must hand back to
// Free travels alongside the payload slice instead of being read back
// out of memory immediately before it.
package heap

import (
	"sync"

	"rtkernel/rtos/config"
	"rtkernel/rtos/errs"
)

// block is one node of the heap's doubly linked address-ordered list.
type block struct {
	magic      uint32
	offset     int
	size       int // payload size in bytes, excluding any bookkeeping
	free       bool
	prev, next *block
}

// Block is an opaque handle to a live allocation. The zero value is not
// a valid block; only Heap.Alloc/Calloc/Realloc produce one.
type Block struct {
	data []byte
	blk  *block
}

// Bytes returns the allocation's backing storage. The slice is valid
// until the Block is freed.
func (b *Block) Bytes() []byte { return b.data }

// Size returns the allocation's payload size in bytes.
func (b *Block) Size() int { return b.blk.size }

// Stats mirrors the original firmware's heap_stats_t.
type Stats struct {
	TotalSize        int
	UsedSize         int
	FreeSize         int
	LargestFreeBlock int
	BlockCount       int
	PeakAllocated    int
	AllocCount       uint64
	FreeCount        uint64
	FailedAllocs     uint64
}

// Heap is a fixed-size arena allocator. Construct with New.
type Heap struct {
	mu    sync.Mutex
	arena []byte
	head  *block

	allocCount   uint64
	freeCount    uint64
	failedAllocs uint64
	usedSize     int
	peakAlloc    int
}

// New carves a heap out of a size-byte arena.
func New(size int) *Heap {
	if size < config.HeapMinBlock {
		size = config.HeapMinBlock
	}
	h := &Heap{arena: make([]byte, size)}
	h.head = &block{offset: 0, size: size, free: true}
	return h
}

func align(n int) int {
	a := config.HeapAlignment
	return (n + a - 1) / a * a
}

// Alloc reserves size bytes using first-fit search over the free list,
// splitting the chosen block if the remainder is worth keeping. It
// never blocks.
func (h *Heap) Alloc(size int) (*Block, errs.Result) {
	if size <= 0 {
		return nil, errs.ErrInvalidParam
	}
	need := align(size)

	h.mu.Lock()
	defer h.mu.Unlock()

	for b := h.head; b != nil; b = b.next {
		if !b.free || b.size < need {
			continue
		}
		h.splitLocked(b, need)
		b.free = false
		b.magic = config.HeapMagic
		h.allocCount++
		h.usedSize += b.size
		if h.usedSize > h.peakAlloc {
			h.peakAlloc = h.usedSize
		}
		return &Block{data: h.arena[b.offset : b.offset+b.size], blk: b}, errs.OK
	}
	h.failedAllocs++
	return nil, errs.ErrNoMem
}

// Calloc allocates count*size bytes, zeroed.
func (h *Heap) Calloc(count, size int) (*Block, errs.Result) {
	if count <= 0 || size <= 0 {
		return nil, errs.ErrInvalidParam
	}
	b, res := h.Alloc(count * size)
	if res != errs.OK {
		return nil, res
	}
	data := b.Bytes()
	for i := range data {
		data[i] = 0
	}
	return b, errs.OK
}

// Free releases an allocation, coalescing it with free neighbors.
func (h *Heap) Free(b *Block) errs.Result {
	if b == nil || b.blk == nil {
		return errs.ErrInvalidParam
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	blk := b.blk
	if blk.free {
		return errs.ErrGeneric // double free
	}
	if blk.magic != config.HeapMagic {
		return errs.ErrGeneric // corrupted header
	}
	h.usedSize -= blk.size
	blk.free = true
	blk.magic = 0
	h.freeCount++
	h.coalesceLocked(blk)
	// b.blk is deliberately left pointing at blk, rather than cleared,
	// so a second Free through the same handle is caught by the
	// blk.free check above instead of silently reporting
	// ErrInvalidParam as if the handle had never been valid.
	b.data = nil
	return errs.OK
}

// Realloc resizes an allocation, preserving its contents up to the
// smaller of the old and new sizes. It may return a different Block.
// realloc(nil, n) behaves as alloc(n); realloc(b, 0) behaves as
// free(b) and returns nil.
func (h *Heap) Realloc(b *Block, newSize int) (*Block, errs.Result) {
	if b == nil || b.blk == nil {
		if newSize <= 0 {
			return nil, errs.ErrInvalidParam
		}
		return h.Alloc(newSize)
	}
	if newSize <= 0 {
		res := h.Free(b)
		return nil, res
	}
	if newSize <= b.blk.size {
		return b, errs.OK
	}
	nb, res := h.Alloc(newSize)
	if res != errs.OK {
		return nil, res
	}
	copy(nb.Bytes(), b.Bytes())
	_ = h.Free(b)
	return nb, errs.OK
}

// splitLocked carves a need-byte block off the front of b if the
// leftover is at least config.HeapMinBlock, leaving b sized to need.
func (h *Heap) splitLocked(b *block, need int) {
	leftover := b.size - need
	if leftover < config.HeapMinBlock {
		return
	}
	nb := &block{
		offset: b.offset + need,
		size:   leftover,
		free:   true,
		prev:   b,
		next:   b.next,
	}
	if b.next != nil {
		b.next.prev = nb
	}
	b.next = nb
	b.size = need
}

// coalesceLocked merges blk with an immediately adjacent free
// predecessor and/or successor.
func (h *Heap) coalesceLocked(blk *block) {
	if n := blk.next; n != nil && n.free {
		blk.size += n.size
		blk.next = n.next
		if n.next != nil {
			n.next.prev = blk
		}
	}
	if p := blk.prev; p != nil && p.free {
		p.size += blk.size
		p.next = blk.next
		if blk.next != nil {
			blk.next.prev = p
		}
	}
}

// Defragment forces a full coalescing pass over the free list. Since
// Free already coalesces eagerly, this only recovers fragmentation left
// by callers holding stale Block handles across out-of-order frees; it
// is exposed for parity with the allocator's original defragment entry
// point.
func (h *Heap) Defragment() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for b := h.head; b != nil; b = b.next {
		if b.free {
			h.coalesceLocked(b)
		}
	}
}

// LargestFree returns the size of the largest contiguous free block.
func (h *Heap) LargestFree() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.largestFreeLocked()
}

func (h *Heap) largestFreeLocked() int {
	largest := 0
	for b := h.head; b != nil; b = b.next {
		if b.free && b.size > largest {
			largest = b.size
		}
	}
	return largest
}

// Stats returns a snapshot of allocator statistics.
func (h *Heap) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()
	st := Stats{
		TotalSize:     len(h.arena),
		PeakAllocated: h.peakAlloc,
		AllocCount:    h.allocCount,
		FreeCount:     h.freeCount,
		FailedAllocs:  h.failedAllocs,
	}
	for b := h.head; b != nil; b = b.next {
		st.BlockCount++
		if b.free {
			st.FreeSize += b.size
			if b.size > st.LargestFreeBlock {
				st.LargestFreeBlock = b.size
			}
		} else {
			st.UsedSize += b.size
		}
	}
	return st
}

// CheckIntegrity walks the block chain, verifying that every live
// block carries the allocator's magic word and that the chain covers
// the arena exactly: no gaps, no overlaps, ending precisely at
// len(arena). It returns ErrGeneric on the first violation found.
func (h *Heap) CheckIntegrity() errs.Result {
	h.mu.Lock()
	defer h.mu.Unlock()

	offset := 0
	for b := h.head; b != nil; b = b.next {
		if b.offset != offset {
			return errs.ErrGeneric
		}
		if b.size <= 0 {
			return errs.ErrGeneric
		}
		if !b.free && b.magic != config.HeapMagic {
			return errs.ErrGeneric
		}
		if b.free && b.magic != 0 {
			return errs.ErrGeneric
		}
		offset += b.size
	}
	if offset != len(h.arena) {
		return errs.ErrGeneric
	}
	return errs.OK
}
