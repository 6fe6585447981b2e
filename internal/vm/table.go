package vm

import (
	"github.com/ulnasheyn/Chilena-microkernel/internal/cpu"
	"github.com/ulnasheyn/Chilena-microkernel/internal/defs"
	"github.com/ulnasheyn/Chilena-microkernel/internal/mem"
)

// AddressSpace is a top-level (PML4) page table root plus the allocator
// it draws frames from.
type AddressSpace struct {
	Root  mem.Frame
	alloc *mem.Allocator
}

// New wraps an already-allocated PML4 frame. The frame's contents are
// the caller's responsibility (see NewFromKernel for the common case).
func New(alloc *mem.Allocator, root mem.Frame) *AddressSpace {
	return &AddressSpace{Root: root, alloc: alloc}
}

// table returns the in-kernel view of the page-table page at frame f,
// through the direct map.
func (as *AddressSpace) table(f mem.Frame) *pageTable {
	return (*pageTable)(as.alloc.Dmap(f.Address()))
}

// ActivePageTable returns the AddressSpace for whatever root the CPU's
// control register currently holds — never the process table's notion
// of "current pid". Spec §4.2's rationale: during a context switch there
// is a window where the hardware root and the process table disagree,
// and page-fault recovery must use the hardware as ground truth.
func ActivePageTable(alloc *mem.Allocator) *AddressSpace {
	root := mem.FrameOf(mem.Pa_t(cpu.ActivePageTableRoot()))
	return New(alloc, root)
}

// SwitchPageTable is the hook Activate calls to load a new root into
// CR3. It is a package var, not a direct cpu.SwitchPageTableRoot call,
// so host-side tests that exercise process creation/teardown (which
// legitimately call Activate) can swap in a no-op instead of executing
// a privileged instruction on the test runner's real CPU — the same
// override-for-tests shape as kfmt's haltFn.
var SwitchPageTable = cpu.SwitchPageTableRoot

// Activate loads this address space's root into CR3.
func (as *AddressSpace) Activate() {
	SwitchPageTable(uintptr(as.Root.Address()))
}

// NewFromKernel allocates a fresh PML4 frame and shallow-copies the
// kernel's current top-level entries into it, so every process's kernel
// mappings stay identical (spec §3 "Address space"). kernelRoot is the
// PML4 the loader set up.
func NewFromKernel(alloc *mem.Allocator, kernelRoot mem.Frame) (*AddressSpace, bool) {
	f, ok := alloc.AllocateFrame()
	if !ok {
		return nil, false
	}
	as := New(alloc, f)
	dst := as.table(f)
	src := (*pageTable)(alloc.Dmap(kernelRoot.Address()))
	*dst = *src
	return as, true
}

// walkEntry returns a pointer to the PTE for va, walking (and optionally
// creating) intermediate tables.
func (as *AddressSpace) walkEntry(va uintptr, create bool) *uint64 {
	l4, l3, l2, l1 := index4(va)
	cur := as.Root

	for _, idx := range []uint64{l4, l3, l2} {
		t := as.table(cur)
		pte := &t[idx]
		if *pte&uint64(FlagPresent) == 0 {
			if !create {
				return nil
			}
			nf, ok := as.alloc.AllocateFrame()
			if !ok {
				return nil
			}
			nt := as.table(nf)
			*nt = pageTable{}
			*pte = makePTE(nf, FlagPresent|FlagWrite|FlagUser)
		}
		cur = pteFrame(*pte)
	}

	t := as.table(cur)
	return &t[l1]
}

// MapPage maps a single virtual page to frame f with the given flags,
// allocating intermediate tables as needed. Returns false on allocator
// exhaustion.
func (as *AddressSpace) MapPage(va uintptr, f mem.Frame, flags Flag) bool {
	pte := as.walkEntry(va, true)
	if pte == nil {
		return false
	}
	*pte = makePTE(f, flags)
	return true
}

// MapRange maps count contiguous pages starting at baseVA to newly
// allocated frames with the given flags (spec §4.2). It returns the
// number of pages successfully mapped; a short count means the
// allocator was exhausted partway through.
func (as *AddressSpace) MapRange(baseVA uintptr, count int, flags Flag) int {
	for i := 0; i < count; i++ {
		f, ok := as.alloc.AllocateFrame()
		if !ok {
			return i
		}
		va := baseVA + uintptr(i)*mem.PageSize
		if !as.MapPage(va, f, flags) {
			as.alloc.DeallocateFrame(f)
			return i
		}
	}
	return count
}

// UnmapRange unmaps byteSize bytes starting at baseVA, flushing the TLB
// per page and deallocating the underlying frames, then opportunistically
// trims any intermediate table left fully empty (spec §4.2).
func (as *AddressSpace) UnmapRange(baseVA uintptr, byteSize int) {
	pages := (byteSize + mem.PageSize - 1) / mem.PageSize
	for i := 0; i < pages; i++ {
		va := baseVA + uintptr(i)*mem.PageSize
		as.unmapPage(va)
	}
	as.trimEmptyTables(baseVA, pages)
}

func (as *AddressSpace) unmapPage(va uintptr) {
	pte := as.walkEntry(va, false)
	if pte == nil || *pte&uint64(FlagPresent) == 0 {
		return
	}
	f := pteFrame(*pte)
	*pte = 0
	cpu.FlushTLBPage(va)
	as.alloc.DeallocateFrame(f)
}

// trimEmptyTables walks the PD/PDPT levels touched by the unmapped
// range and frees any table page left with no present entries.
func (as *AddressSpace) trimEmptyTables(baseVA uintptr, pages int) {
	seen := map[[3]uint64]bool{}
	for i := 0; i < pages; i++ {
		va := baseVA + uintptr(i)*mem.PageSize
		l4, l3, l2, _ := index4(va)
		seen[[3]uint64{l4, l3, l2}] = true
	}
	for key := range seen {
		as.trimPD(key[0], key[1], key[2])
	}
}

func (as *AddressSpace) trimPD(l4, l3, l2 uint64) {
	l4t := as.table(as.Root)
	if l4t[l4]&uint64(FlagPresent) == 0 {
		return
	}
	l3t := as.table(pteFrame(l4t[l4]))
	if l3t[l3]&uint64(FlagPresent) == 0 {
		return
	}
	pdFrame := pteFrame(l3t[l3])
	pd := as.table(pdFrame)
	if pd[l2]&uint64(FlagPresent) == 0 {
		return
	}
	ptFrame := pteFrame(pd[l2])
	pt := as.table(ptFrame)
	for _, e := range pt {
		if e&uint64(FlagPresent) != 0 {
			return
		}
	}
	pd[l2] = 0
	as.alloc.DeallocateFrame(ptFrame)

	for _, e := range pd {
		if e&uint64(FlagPresent) != 0 {
			return
		}
	}
	l3t[l3] = 0
	as.alloc.DeallocateFrame(pdFrame)
}

// Free deallocates this address space's own PML4 frame. Callers must
// have already unmapped every user mapping; kernel top-level entries are
// shared with every other process and must never be freed here.
func (as *AddressSpace) Free() {
	as.alloc.DeallocateFrame(as.Root)
}

// Translate resolves a virtual address to its backing physical address,
// or false if unmapped.
func (as *AddressSpace) Translate(va uintptr) (mem.Pa_t, bool) {
	pte := as.walkEntry(va, false)
	if pte == nil || *pte&uint64(FlagPresent) == 0 {
		return 0, false
	}
	off := uintptr(va) & (mem.PageSize - 1)
	return pteFrame(*pte).Address() + mem.Pa_t(off), true
}

// ValidateUserRange checks that [ptr, ptr+length) does not overflow and
// lies entirely within the userspace window (spec §4.5 "User pointer
// validation"). It never dereferences the pointer.
func ValidateUserRange(ptr, length uint64) bool {
	end := ptr + length
	if end < ptr {
		return false // overflow
	}
	lo, hi := defs.UserRange()
	return ptr >= uint64(lo) && end <= uint64(hi)
}
