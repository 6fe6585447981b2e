package proc

import (
	"github.com/ulnasheyn/Chilena-microkernel/internal/defs"
	"github.com/ulnasheyn/Chilena-microkernel/internal/vm"
)

// Alloc grows this process's private heap by n bytes, mapping new pages
// on demand up to HeapHi, and returns the address of the new region.
// It is a simple bump allocator — the per-process heap has no free-list
// (ALLOC/FREE syscalls cover short-lived userspace scratch space, not
// general-purpose memory management; the kernel-side allocator in
// internal/kheap is the one with reclamation).
func (p *Process) Alloc(n uint64) (uintptr, defs.Err_t) {
	if n == 0 {
		return p.HeapNext, defs.Success
	}
	start := p.HeapNext
	end := start + uintptr(n)
	if end > p.HeapHi {
		return 0, defs.EExecError
	}

	if end > p.HeapMapped {
		need := end - p.HeapMapped
		pages := int((need + defs.PageSize - 1) / defs.PageSize)
		if p.AS.MapRange(p.HeapMapped, pages, vm.UserFlags) != pages {
			return 0, defs.EExecError
		}
		p.HeapMapped += uintptr(pages) * defs.PageSize
	}

	p.HeapNext = end
	return start, defs.Success
}

// Free only reclaims the most recent allocation (stack-discipline
// shrink); any other address is a no-op, matching a bump allocator's
// inherent limits.
func (p *Process) Free(addr uintptr, n uint64) defs.Err_t {
	if addr+uintptr(n) == p.HeapNext {
		p.HeapNext = addr
	}
	return defs.Success
}
