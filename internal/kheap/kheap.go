// Package kheap implements the kernel heap (spec §4.3): a linked-list
// free-list allocator over frames mapped once, eagerly, at a fixed kernel
// virtual address range, guarded by its own lock (spec §5).
package kheap

import (
	"sync"
	"unsafe"

	"github.com/ulnasheyn/Chilena-microkernel/internal/defs"
	"github.com/ulnasheyn/Chilena-microkernel/internal/vm"
)

// Base is the fixed kernel heap virtual base address.
const Base uintptr = 0x4444_4444_0000

// freeBlock is one node of the heap's free list, stored in-place at the
// start of each free region.
type freeBlock struct {
	size uint64
	next *freeBlock
}

// Heap is a linked-list allocator. It owns no frames itself; Init maps
// the backing pages into the given address space before use.
type Heap struct {
	mu        sync.Mutex
	as        *vm.AddressSpace
	base, end uintptr
	free      *freeBlock
}

// Global is the kernel-wide heap singleton.
var Global = &Heap{}

// Init maps min(totalMemory/2, 4 MiB) of kernel-only pages at Base into
// the kernel address space and initializes the free list with one block
// spanning the whole region. It returns the address immediately
// following the mapped region. Process creation does not read that
// value: user code bases are computed from defs.UserBase (proc's
// codeBaseFor), and cmd/chilena discards the return value.
func (h *Heap) Init(as *vm.AddressSpace, totalMemory uint64) uintptr {
	size := totalMemory / 2
	const maxHeap = 4 * 1024 * 1024
	if size > maxHeap {
		size = maxHeap
	}
	pages := int(size / defs.PageSize)
	if pages == 0 {
		pages = 1
	}

	mapped := as.MapRange(Base, pages, vm.KernelHeapFlags)
	if mapped != pages {
		panic("kheap: failed to map kernel heap")
	}

	h.as = as
	h.base = Base
	h.end = Base + uintptr(pages)*defs.PageSize

	first := (*freeBlock)(unsafe.Pointer(h.base))
	first.size = uint64(h.end - h.base)
	first.next = nil
	h.free = first

	return h.end
}

// Alloc reserves n bytes from the heap, rounded up to a 16-byte boundary
// plus a 16-byte header recording the allocation size, first-fit over the
// free list.
func (h *Heap) Alloc(n uint64) (uintptr, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	need := (n + 15) &^ 15 // header + alignment
	const headerSize = 16

	var prev *freeBlock
	for b := h.free; b != nil; b = b.next {
		if b.size >= need+headerSize {
			addr := uintptr(unsafe.Pointer(b))
			remaining := b.size - need - headerSize
			if remaining > headerSize {
				nb := (*freeBlock)(unsafe.Pointer(addr + headerSize + uintptr(need)))
				nb.size = remaining
				nb.next = b.next
				if prev == nil {
					h.free = nb
				} else {
					prev.next = nb
				}
			} else {
				if prev == nil {
					h.free = b.next
				} else {
					prev.next = b.next
				}
			}
			*(*uint64)(unsafe.Pointer(addr)) = need
			return addr + headerSize, true
		}
		prev = b
	}
	return 0, false
}

// Free returns a previously allocated block to the free list. Chilena
// does not coalesce adjacent free blocks (fragmentation is bounded by the
// fixed 4 MiB heap ceiling and the process table's small size), matching
// the teacher's choice to keep its allocator's hot path branch-free.
func (h *Heap) Free(addr uintptr) {
	h.mu.Lock()
	defer h.mu.Unlock()

	headerAddr := addr - 16
	size := *(*uint64)(unsafe.Pointer(headerAddr))
	b := (*freeBlock)(unsafe.Pointer(headerAddr))
	b.size = size + 16
	b.next = h.free
	h.free = b
}
