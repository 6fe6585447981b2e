package vm

import (
	"github.com/ulnasheyn/Chilena-microkernel/internal/defs"
	"github.com/ulnasheyn/Chilena-microkernel/internal/mem"
)

// FaultErrorCode mirrors the error code the CPU pushes for a page fault:
// bit 0 set means the fault was a protection violation rather than a
// not-present access, bit 1 set means the access was a write, bit 2 set
// means the access happened in user mode.
type FaultErrorCode uint64

const (
	FaultPresent FaultErrorCode = 1 << 0
	FaultWrite   FaultErrorCode = 1 << 1
	FaultUser    FaultErrorCode = 1 << 2
)

// HandlePageFault implements spec §7's recovery rule: a write fault on an
// unmapped userspace page is resolved by on-demand allocation through the
// page table derived from the active page-table root; anything else is
// unrecoverable and the caller must panic.
func HandlePageFault(alloc *mem.Allocator, faultAddr uintptr, code FaultErrorCode) bool {
	if code&FaultUser == 0 {
		return false // kernel page fault: always fatal
	}
	if code&FaultWrite == 0 {
		return false // non-write fault: always fatal
	}
	if code&FaultPresent != 0 {
		return false // protection violation on a mapped page: fatal
	}
	lo, hi := defs.UserRange()
	if faultAddr < lo || faultAddr >= hi {
		return false
	}

	as := ActivePageTable(alloc)
	page := faultAddr &^ (mem.PageSize - 1)
	f, ok := alloc.AllocateFrame()
	if !ok {
		return false
	}
	if !as.MapPage(page, f, UserFlags) {
		alloc.DeallocateFrame(f)
		return false
	}
	return true
}
