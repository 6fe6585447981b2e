package cpu

import "unsafe"

// idtEntry is one 16-byte x86_64 interrupt-gate descriptor.
type idtEntry struct {
	offsetLow  uint16
	selector   uint16
	ist        uint8
	typeAttr   uint8
	offsetMid  uint16
	offsetHigh uint32
	reserved   uint32
}

const idtSize = 256

var idt [idtSize]idtEntry

type dtPointer struct {
	limit uint16
	base  uint64
}

// gateInterrupt and gateTrap select the descriptor type byte for an
// interrupt gate (clears IF on entry) vs a trap gate. dpl shifts the
// descriptor privilege level into bits 5-6; dpl=3 is what lets ring-3
// code raise int 0x80 directly (spec §4.5).
const (
	gateInterrupt = 0x8E
	gateTrap      = 0x8F
)

// InstallGate wires interrupt vector n to the given handler, installed
// with descriptor privilege level dpl (0 = kernel only, 3 = also
// reachable from ring 3 — used for the syscall vector).
func InstallGate(n uint8, handler uintptr, dpl uint8, trap bool) {
	InstallGateIST(n, handler, dpl, trap, 0)
}

// InstallGateIST is InstallGate plus an explicit Interrupt Stack Table
// index (1-7, 0 means "don't switch stacks"). The double-fault vector
// uses IST1 (internal/cpu/gdt_amd64.go's doubleFaultStack) so a fault
// caused by a corrupted kernel stack pointer doesn't immediately fault
// again trying to push this handler's own frame.
func InstallGateIST(n uint8, handler uintptr, dpl uint8, trap bool, ist uint8) {
	attr := uint8(gateInterrupt)
	if trap {
		attr = gateTrap
	}
	attr |= dpl << 5

	idt[n] = idtEntry{
		offsetLow:  uint16(handler),
		selector:   KernelCS,
		ist:        ist,
		typeAttr:   attr,
		offsetMid:  uint16(handler >> 16),
		offsetHigh: uint32(handler >> 32),
	}
}

// LoadIDT installs the descriptor table built by InstallGate. Declared
// here, defined in tables_amd64.s.
func LoadIDT()

var idtr dtPointer

func init() {
	idtr = dtPointer{
		limit: uint16(unsafe.Sizeof(idt) - 1),
		base:  uint64(uintptr(unsafe.Pointer(&idt[0]))),
	}
}
