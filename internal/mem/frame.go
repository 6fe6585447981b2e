// Package mem implements physical frame allocation (spec §4.1) and the
// direct physical-memory mapping the loader hands the kernel at boot.
//
// The allocator state is grounded on the teacher's Physmem_t singleton
// (biscuit's mem/mem.go): a package-level lock-guarded struct, Pa_t as the
// physical-address type, and panics on invariant violations. The
// allocation policy itself is replaced: the teacher free-lists refcounted
// pages to support copy-on-write fork, a Non-goal here, so Chilena instead
// tracks usable frames with a flat bitmap and a next-fit hint, as spec §4.1
// requires.
package mem

import (
	"sync"

	"github.com/ulnasheyn/Chilena-microkernel/internal/defs"
)

// Pa_t represents a physical address.
type Pa_t uintptr

// Frame is a 4 KiB-aligned physical frame number (Pa_t >> PageShift).
type Frame uint64

const (
	PageShift = 12
	PageSize  = defs.PageSize
)

// maxRegions bounds the number of usable physical memory regions tracked
// from the boot memory map (spec §4.1: "cap the number of tracked regions
// at a small constant").
const maxRegions = 32

// Region describes one usable range of physical memory reported by the
// bootloader's memory map, in frame numbers.
type Region struct {
	FirstFrame Frame
	Count      uint64
}

// Allocator is a bitmap-backed next-fit physical frame allocator. One bit
// per frame, 1 = used. It is safe for concurrent use: all operations hold
// a single global lock (spec §5: "A global spin-lock on the frame
// allocator").
type Allocator struct {
	mu sync.Mutex

	regions    [maxRegions]Region
	nregions   int
	totalFrame Frame // lowest frame number tracked (base of the bitmap)
	nframes    uint64
	bitmap     []uint64
	hint       uint64 // next search start, in bit index

	// physOffset is the virtual address corresponding to physical
	// address 0 under the loader's linear direct mapping (spec §1).
	physOffset uintptr
}

// Global is the kernel-wide frame allocator singleton, mirroring the
// teacher's package-level `Physmem` instance.
var Global = &Allocator{}

// MemoryRegion is the subset of a bootloader memory-map entry the
// allocator needs: a physical byte range marked usable.
type MemoryRegion struct {
	Start  uintptr
	Length uint64
	Usable bool
}

// Init builds the bitmap allocator from the boot-time memory map,
// following spec §4.1's construction recipe: iterate usable regions,
// total the frame count, size a 1-bit-per-frame bitmap rounded to 64-bit
// words, and reserve that many bytes' worth of frames at the start of the
// first region large enough to hold it. The bitmap itself is an ordinary
// Go slice; it is not stored in the reserved frames.
func (a *Allocator) Init(physOffset uintptr, memMap []MemoryRegion) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.physOffset = physOffset

	var lowest Frame = ^Frame(0)
	var highest Frame
	for _, r := range memMap {
		if !r.Usable || r.Length < PageSize {
			continue
		}
		first := Frame(r.Start / PageSize)
		count := r.Length / PageSize
		if count == 0 {
			continue
		}
		if a.nregions < maxRegions {
			a.regions[a.nregions] = Region{FirstFrame: first, Count: count}
			a.nregions++
		}
		if first < lowest {
			lowest = first
		}
		last := first + Frame(count) - 1
		if last > highest {
			highest = last
		}
	}
	if a.nregions == 0 {
		panic("mem: no usable regions in memory map")
	}

	a.totalFrame = lowest
	a.nframes = uint64(highest-lowest) + 1

	words := (a.nframes + 63) / 64
	a.bitmap = make([]uint64, words)

	// Reserve a bitmap-sized run of frames: carve them out of the first
	// region large enough to hold the bitmap.
	bitmapBytes := uint64(len(a.bitmap)) * 8
	bitmapFrames := (bitmapBytes + PageSize - 1) / PageSize
	placed := false
	for i := 0; i < a.nregions; i++ {
		r := &a.regions[i]
		if r.Count < bitmapFrames {
			continue
		}
		for f := r.FirstFrame; f < r.FirstFrame+Frame(bitmapFrames); f++ {
			a.markUsed(f)
		}
		r.FirstFrame += Frame(bitmapFrames)
		r.Count -= bitmapFrames
		placed = true
		break
	}
	if !placed {
		panic("mem: no region large enough to hold the frame bitmap")
	}

	// Mark every frame outside a usable region as used, so that gaps
	// between regions (holes, reserved ranges) are never handed out.
	a.markHoles()
}

func (a *Allocator) markHoles() {
	usable := make([]bool, a.nframes)
	for i := 0; i < a.nregions; i++ {
		r := a.regions[i]
		for f := uint64(0); f < r.Count; f++ {
			idx := uint64(r.FirstFrame-a.totalFrame) + f
			if idx < a.nframes {
				usable[idx] = true
			}
		}
	}
	for idx, ok := range usable {
		if !ok {
			a.setBit(uint64(idx))
		}
	}
}

func (a *Allocator) bitIndex(f Frame) uint64 {
	return uint64(f - a.totalFrame)
}

func (a *Allocator) setBit(idx uint64) {
	a.bitmap[idx/64] |= 1 << (idx % 64)
}

func (a *Allocator) clearBit(idx uint64) {
	a.bitmap[idx/64] &^= 1 << (idx % 64)
}

func (a *Allocator) testBit(idx uint64) bool {
	return a.bitmap[idx/64]&(1<<(idx%64)) != 0
}

func (a *Allocator) markUsed(f Frame) {
	a.setBit(a.bitIndex(f))
}

// AllocateFrame returns the next free frame using next-fit search starting
// at the rotating hint, or false if no frame is available (spec §4.1).
func (a *Allocator) AllocateFrame() (Frame, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	start := a.hint
	for i := uint64(0); i < a.nframes; i++ {
		idx := (start + i) % a.nframes
		if !a.testBit(idx) {
			a.setBit(idx)
			a.hint = (idx + 1) % a.nframes
			return a.totalFrame + Frame(idx), true
		}
	}
	return 0, false
}

// DeallocateFrame clears the frame's bit and lowers the hint to the
// minimum of its current value and the freed index, so future allocations
// favor reuse of low-numbered frames.
func (a *Allocator) DeallocateFrame(f Frame) {
	a.mu.Lock()
	defer a.mu.Unlock()

	idx := a.bitIndex(f)
	if idx >= a.nframes {
		panic("mem: deallocating a frame outside tracked range")
	}
	if !a.testBit(idx) {
		panic("mem: double free of physical frame")
	}
	a.clearBit(idx)
	if idx < a.hint {
		a.hint = idx
	}
}

// Address returns the physical byte address of a frame.
func (f Frame) Address() Pa_t {
	return Pa_t(f) << PageShift
}

// FrameOf returns the frame number containing physical address pa.
func FrameOf(pa Pa_t) Frame {
	return Frame(pa >> PageShift)
}

// TotalBytes returns the size of the tracked physical address range,
// including holes. Used by kheap.Init to size the kernel heap as a
// fraction of total memory (spec §4.3).
func (a *Allocator) TotalBytes() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.nframes * PageSize
}
