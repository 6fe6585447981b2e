// Package vm implements x86_64 4-level paging over the physical frame
// allocator in internal/mem (spec §4.2): building and tearing down a
// process's address space, mapping/unmapping virtual ranges, resolving
// the page table the CPU control register currently points at, and
// validating/copying user pointers for the syscall gate.
//
// The page-table-entry bit layout and the Pa_t naming follow the
// teacher's mem/mem.go; the table-walking and insert/remove logic is
// Chilena's own since the teacher's copy-on-write reference counting is
// out of scope (Non-goal: COW fork semantics).
package vm

import "github.com/ulnasheyn/Chilena-microkernel/internal/mem"

// Flag is a page-table-entry permission/attribute bit.
type Flag uint64

const (
	FlagPresent Flag = 1 << 0
	FlagWrite   Flag = 1 << 1
	FlagUser    Flag = 1 << 2
)

// UserFlags are the flags applied to user-accessible pages (spec §4.2).
const UserFlags = FlagPresent | FlagWrite | FlagUser

// KernelHeapFlags are the flags applied to kernel-only heap pages.
const KernelHeapFlags = FlagPresent | FlagWrite

const (
	pteAddrMask uint64 = 0x000F_FFFF_FFFF_F000
	entriesPerTable      = 512
)

// pageTable is one 4 KiB level of the 4-level hierarchy: 512 raw page
// table entries. It is always accessed through the direct map, never
// through a recursive mapping, matching the teacher's Dmap-based
// approach rather than gopher-os's recursive-slot scheme (the spec's
// loader hands the kernel a linear physical mapping offset, not a spare
// PML4 slot to recurse through).
type pageTable [entriesPerTable]uint64

func pteFrame(pte uint64) mem.Frame {
	return mem.FrameOf(mem.Pa_t(pte & pteAddrMask))
}

func makePTE(f mem.Frame, flags Flag) uint64 {
	return uint64(f.Address()) | uint64(flags)
}

func pteHasFlags(pte uint64, flags Flag) bool {
	return pte&uint64(flags) == uint64(flags)
}

// index4 returns the PML4/PDPT/PD/PT indices for a virtual address.
func index4(va uintptr) (l4, l3, l2, l1 uint64) {
	v := uint64(va)
	l4 = (v >> 39) & 0x1FF
	l3 = (v >> 30) & 0x1FF
	l2 = (v >> 21) & 0x1FF
	l1 = (v >> 12) & 0x1FF
	return
}
