// Package cpu declares the architecture primitives the rest of the kernel
// treats as ground truth during interrupt handling: the register file
// layout, the interrupt frame layout, and the handful of privileged
// instructions (read/write CR3, hlt, cli/sti, port I/O) that have no
// meaning in portable Go and must be implemented in assembly.
//
// The declare-in-Go/define-in-assembly split mirrors gopher-os's
// kernel/irq package (interrupt_amd64.go declares Regs/Frame, the
// handler stubs are asm-only) and biscuit's reliance on runtime-internal
// asm for Rcr4/Cpuid/Vtop. Chilena keeps the same shape: every function
// below with no body is implemented in cpu_amd64.s.
package cpu

import "unsafe"

// Registers is the full general-purpose register file, both
// callee-saved and caller-saved. Its memory layout is bitwise-identical
// to the push order the syscall and timer entry stubs use, so the
// kernel can cast a stack pointer directly to *Registers (spec §4.5,
// §9 "Interrupt register save"). Saving only the caller-saved registers
// is the textbook kernel bug this layout exists to avoid: it would
// silently corrupt any user program using the callee-saved registers
// across a preemption.
type Registers struct {
	R15, R14, R13, R12, R11, R10, R9, R8 uint64
	RBP, RDI, RSI, RDX, RCX, RBX, RAX    uint64
}

// InterruptFrame is the frame the CPU pushes automatically on a ring
// transition: instruction pointer, code segment, flags, stack pointer,
// and stack segment (spec §3 "saved_frame").
type InterruptFrame struct {
	RIP    uint64
	CS     uint64
	RFlags uint64
	RSP    uint64
	SS     uint64
}

// Selector values for the kernel and user code/data segments, set up by
// the GDT at boot (internal/cpu/gdt_amd64.go).
const (
	KernelCS = 0x08
	KernelDS = 0x10
	UserCS   = 0x18 | 3 // ring 3
	UserDS   = 0x20 | 3
)

// RFlagsIF is the interrupt-enable bit in RFLAGS.
const RFlagsIF = 1 << 9

// ActivePageTableRoot reads CR3, the hardware's source of truth for
// "which address space am I in" (spec §4.2 rationale, §9 "Control-
// register vs. process-table disagreement"). Any code that can run
// between a context switch's two writes (new CR3, new current pid) must
// call this instead of consulting the process table.
func ActivePageTableRoot() uintptr

// SwitchPageTableRoot loads a new value into CR3, flushing the
// non-global TLB entries.
func SwitchPageTableRoot(root uintptr)

// FlushTLBPage invalidates a single page's TLB entry.
func FlushTLBPage(vaddr uintptr)

// readCR2 reads the faulting linear address register, implemented in
// cpu_amd64.s. Only the #PF entry stub calls this.
func readCR2() uintptr

// Halt executes hlt, parking the CPU until the next interrupt. Used by
// the IPC blocking primitives (spec §4.8) and the idle loop.
func Halt()

// DisableInterrupts executes cli.
func DisableInterrupts()

// EnableInterrupts executes sti.
func EnableInterrupts()

// OutByte writes a single byte to an I/O port (used by the ACPI/QEMU
// power-off sequence, spec §6 HALT sub-codes).
func OutByte(port uint16, value uint8)

// OutWord writes a 16-bit value to an I/O port.
func OutWord(port uint16, value uint16)

// LoadEmptyIDT loads a zero-length interrupt descriptor table so that
// the next interrupt triggers a triple fault (the HaltReboot path).
func LoadEmptyIDT()

// TriggerInterrupt raises interrupt vector n via `int n`.
func TriggerInterrupt(n uint8)

// RegistersFromStack reinterprets a pointer to the saved register area
// on an interrupt stack as a *Registers, matching the layout the entry
// stubs push in.
func RegistersFromStack(sp unsafe.Pointer) *Registers {
	return (*Registers)(sp)
}
