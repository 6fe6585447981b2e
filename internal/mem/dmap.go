package mem

import "unsafe"

// Dmap returns the kernel virtual address corresponding to the physical
// address pa under the loader's linear direct mapping, the same technique
// as the teacher's Vdirect/Dmap pair (mem/dmap.go): the bootloader hands
// the kernel an offset at which all of physical memory is linearly
// mapped, so translating a physical address never requires a page walk.
func (a *Allocator) Dmap(pa Pa_t) unsafe.Pointer {
	if a.physOffset == 0 {
		panic("mem: direct map not initialized")
	}
	return unsafe.Pointer(a.physOffset + uintptr(pa))
}

// DmapBytes returns a byte slice of length n mapping physical address pa
// through the direct map.
func (a *Allocator) DmapBytes(pa Pa_t, n int) []byte {
	p := a.Dmap(pa)
	return unsafe.Slice((*byte)(p), n)
}

// PhysOffset exposes the configured direct-map base for callers (paging)
// that need to translate virtual addresses inside the direct-mapped
// window back to physical addresses.
func (a *Allocator) PhysOffset() uintptr {
	return a.physOffset
}
