package cpu

import "unsafe"

// gdtEntry is one 8-byte flat x86_64 segment descriptor (code/data); the
// TSS descriptor below is the one 16-byte exception to that rule.
type gdtEntry uint64

// accessCode/accessData/accessTSS are the access-byte bit patterns for
// a ring-0 or ring-3 code/data segment and the 64-bit TSS descriptor
// type, matching the original's gdt.rs kernel/user code/data/TSS
// entries (SPEC_FULL.md §3 resolves the exact bit layout from there;
// spec.md is silent on GDT shape since paging, not segmentation, is
// the addressing model it specifies).
const (
	accessPresent  = 1 << 7
	accessCode     = 1 << 3
	accessReadable = 1 << 1 // also "writable" for data segments
	accessDPL3     = 3 << 5
	accessTSSType  = 0x9 // 64-bit TSS (available)

	flagLongMode = 1 << 5 // only meaningful for code segments
	flagGranular = 1 << 7
)

func codeDescriptor(dpl uint8) gdtEntry {
	access := uint64(accessPresent | accessCode | accessReadable | 1<<4) // 1<<4 = S bit (code/data, not system)
	access |= uint64(dpl) << 5
	flags := uint64(flagLongMode) << 20
	return gdtEntry(access<<40 | flags)
}

func dataDescriptor(dpl uint8) gdtEntry {
	access := uint64(accessPresent | accessReadable | 1<<4)
	access |= uint64(dpl) << 5
	return gdtEntry(access << 40)
}

// gdt holds the five flat descriptors (null, kernel code/data, user
// code/data) plus the two 8-byte halves of the 16-byte TSS descriptor,
// in the fixed layout cpu.KernelCS/KernelDS/UserCS/UserDS's selector
// constants assume.
var gdt [7]gdtEntry

// tss is the Task State Segment; only RSP0 (the stack loaded on a
// ring3->ring0 transition) and IST1 (used for the double-fault
// handler, conventionally run on its own stack so a fault caused by a
// corrupted kernel stack doesn't double-fault again) are populated.
type taskStateSegment struct {
	reserved0 uint32
	rsp       [3]uint64
	reserved1 uint64
	ist       [7]uint64
	reserved2 uint64
	reserved3 uint16
	ioMapBase uint16
}

var tss taskStateSegment

// kernelStack and doubleFaultStack are static backing stacks for
// RSP0/IST1; a freestanding kernel has no host OS to allocate a goroutine
// stack from, so these are fixed-size arrays the linker places in BSS.
var (
	kernelStack      [16 * 1024]byte
	doubleFaultStack [16 * 1024]byte
)

func tssDescriptor(base uintptr, limit uint32) (lo, hi gdtEntry) {
	access := uint64(accessPresent | accessTSSType)
	b := uint64(base)
	l := uint64(limit)
	loVal := l&0xFFFF | (b&0xFFFFFF)<<16 | access<<40 | ((l>>16)&0xF)<<48 | (b>>24&0xFF)<<56
	hiVal := b >> 32
	return gdtEntry(loVal), gdtEntry(hiVal)
}

// InitGDT builds the flat GDT plus TSS and loads it, replacing
// whatever table the loader installed, then reloads CS via a
// synthetic far-return sequence (done in gdt_amd64.s, since a ring
// change on CS is not directly expressible as a plain MOV) and loads
// TR with the TSS selector. Must run once, before IDT gates are
// installed, since InstallGate encodes KernelCS into every gate.
func InitGDT() {
	tss.rsp[0] = uint64(uintptr(unsafe.Pointer(&kernelStack[0])) + uintptr(len(kernelStack)))
	tss.ist[0] = uint64(uintptr(unsafe.Pointer(&doubleFaultStack[0])) + uintptr(len(doubleFaultStack)))

	gdt[0] = 0
	gdt[1] = codeDescriptor(0) // KernelCS = 0x08
	gdt[2] = dataDescriptor(0) // KernelDS = 0x10
	gdt[3] = codeDescriptor(3) // UserCS   = 0x18 | 3
	gdt[4] = dataDescriptor(3) // UserDS   = 0x20 | 3
	lo, hi := tssDescriptor(uintptr(unsafe.Pointer(&tss)), uint32(unsafe.Sizeof(tss)-1))
	gdt[5] = lo // TSS selector = 0x28
	gdt[6] = hi

	gdtr = dtPointer{
		limit: uint16(unsafe.Sizeof(gdt) - 1),
		base:  uint64(uintptr(unsafe.Pointer(&gdt[0]))),
	}
	loadGDTAndReload()
	LoadTSS(0x28)
}

var gdtr dtPointer

// loadGDTAndReload is implemented in gdt_amd64.s: it LGDTs &gdtr, then
// performs a far return to reload CS with KernelCS and sets the data
// segment registers to KernelDS.
func loadGDTAndReload()

// LoadTSS loads the task register with the given GDT selector.
func LoadTSS(selector uint16)
