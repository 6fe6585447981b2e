// Command chilena is the kernel image's entry point. Its layout
// mirrors gopher-os's boot.go/stub.go split: a tiny main() trampoline
// the loader's rt0 stub jumps to, which immediately calls into Kmain
// (kept in its own function so the Go compiler cannot inline it away
// and eliminate the boot sequencing, the same concern gopher-os's
// comment on its stub.go documents).
package main

import (
	"fmt"
	"unsafe"

	"github.com/ulnasheyn/Chilena-microkernel/internal/cpu"
	"github.com/ulnasheyn/Chilena-microkernel/internal/defs"
	"github.com/ulnasheyn/Chilena-microkernel/internal/diag"
	"github.com/ulnasheyn/Chilena-microkernel/internal/kfmt"
	"github.com/ulnasheyn/Chilena-microkernel/internal/kheap"
	"github.com/ulnasheyn/Chilena-microkernel/internal/mem"
	"github.com/ulnasheyn/Chilena-microkernel/internal/proc"
	"github.com/ulnasheyn/Chilena-microkernel/internal/sched"
	"github.com/ulnasheyn/Chilena-microkernel/internal/shell"
	"github.com/ulnasheyn/Chilena-microkernel/internal/syscall"
	"github.com/ulnasheyn/Chilena-microkernel/internal/vfs"
	"github.com/ulnasheyn/Chilena-microkernel/internal/vm"
)

// bootMemMapPtr is a global rather than a parameter the compiler could
// prove unused, matching gopher-os's stub.go trick of passing a global
// to Kmain to keep the whole call graph reachable.
var bootMemMapPtr uintptr

func main() {
	Kmain(bootMemMapPtr)
}

// BootInfo is what the multiboot-style loader hands the kernel: the
// physical memory map and the offset of the linear direct physical
// mapping it has already established (spec §1, SPEC_FULL.md §1
// "Configuration"). There is no argv at this stage — a BootInfo value
// is the kernel's entire configuration surface.
type BootInfo struct {
	PhysOffset uintptr
	MemoryMap  []mem.MemoryRegion
	// VGABuffer is the direct-mapped view of the 0xB8000 text buffer,
	// already accessible through PhysOffset by the time Kmain runs.
	VGABuffer []byte
	VGACols   int
}

// Kmain runs the boot sequence spec §9 mandates: VGA/console first (so
// early diagnostics are visible), then descriptor tables, then the
// memory subsystem, then the PIC — only once the heap and process
// table exist is it safe to unmask the timer, because the scheduler
// allocates while running.
//
//go:noinline
func Kmain(infoPtr uintptr) {
	info := (*BootInfo)(unsafe.Pointer(infoPtr))

	if info != nil && info.VGABuffer != nil {
		kfmt.SetTarget(kfmt.NewVGAWriter(info.VGABuffer, info.VGACols, 25, 0x07))
	}
	kfmt.Printf("chilena: booting\n")

	cpu.InitGDT()
	installIDT()

	if info != nil {
		mem.Global.Init(info.PhysOffset, info.MemoryMap)
	}

	kernelRoot := mem.FrameOf(mem.Pa_t(cpu.ActivePageTableRoot()))
	kernelAS := vm.New(mem.Global, kernelRoot)
	totalMem := mem.Global.TotalBytes()
	kheap.Global.Init(kernelAS, totalMem)

	proc.Global.Init(mem.Global, kernelRoot)
	sched.Global.Init(proc.Global)
	syscall.Table = proc.Global

	initPIC()
	cpu.SyscallHandler = syscall.Dispatch
	cpu.TimerHandler = sched.Global.Step
	cpu.AckTimer = sendTimerEOI
	cpu.PageFaultHandler = handlePageFault
	cpu.FatalFault = handleFatalFault

	vfs.Global.RegisterSynthesizer("/sys/profile", profileSnapshot)

	runBootSequence()

	cpu.EnableInterrupts()
	for {
		cpu.Halt()
	}
}

// installIDT wires the software-reachable vectors Chilena uses — the
// syscall gate at 0x80 (dpl=3, so ring-3 code may raise it directly),
// the timer at vector 0x20 (dpl=0, hardware-only) — plus the five
// fatal-fault vectors spec §7 requires a handler for: double fault (8,
// on IST1 per cpu.InitGDT's doubleFaultStack), segment-not-present
// (11), stack-segment fault (12), general protection fault (13), and
// page fault (14, dpl=0 like the others since user code cannot raise
// it directly — the CPU delivers it on an invalid access).
func installIDT() {
	const timerVector = 0x20
	const doubleFaultIST = 1
	cpu.InstallGate(0x80, cpu.SyscallEntryAddr(), 3, false)
	cpu.InstallGate(timerVector, cpu.TimerEntryAddr(), 0, false)
	cpu.InstallGateIST(8, cpu.DoubleFaultEntryAddr(), 0, false, doubleFaultIST)
	cpu.InstallGate(11, cpu.NotPresentEntryAddr(), 0, false)
	cpu.InstallGate(12, cpu.StackFaultEntryAddr(), 0, false)
	cpu.InstallGate(13, cpu.GPFaultEntryAddr(), 0, false)
	cpu.InstallGate(14, cpu.PageFaultEntryAddr(), 0, false)
	cpu.LoadIDT()
}

// faultNames maps a vector number to the mnemonic kernel panic output
// uses, matching the names spec §7 calls the fatal events by.
var faultNames = map[uint8]string{
	8:  "double fault",
	11: "segment not present",
	12: "stack-segment fault",
	13: "general protection fault",
	14: "page fault",
}

// handlePageFault is cpu.PageFaultHandler: it delegates to vm's
// recovery rule against the live frame allocator and kernel-derived
// address space (spec §7's on-demand-allocation case).
func handlePageFault(faultAddr uintptr, errCode uint64) bool {
	return vm.HandlePageFault(mem.Global, faultAddr, vm.FaultErrorCode(errCode))
}

// handleFatalFault is cpu.FatalFault, the terminal path for any of the
// five vectors installIDT wires that vm.HandlePageFault did not (or
// could not) recover. It formats the faulting frame spec §7 requires
// ("panics the kernel with the faulting frame") and, where the
// interrupted RIP is mapped, disassembles the instruction that faulted
// and resolves+demangles the enclosing symbol from the faulting
// process's loaded ELF image using internal/diag — the same package
// /sys/profile is backed by.
func handleFatalFault(vector uint8, frame *cpu.InterruptFrame, errCode uint64) {
	name, ok := faultNames[vector]
	if !ok {
		name = "unknown fault"
	}

	instr := "<not mapped>"
	as := vm.ActivePageTable(mem.Global)
	if pa, mapped := as.Translate(uintptr(frame.RIP)); mapped {
		page := mem.Global.DmapBytes(pa, 16)
		instr = diag.DisassembleAt(uintptr(frame.RIP), page)
	}

	symbol := "<unknown>"
	if sym, found := proc.Global.SymbolFor(proc.Global.CurrentPid(), uintptr(frame.RIP)); found {
		symbol = diag.DemangleSymbol(sym)
	}

	kfmt.Panic(fmt.Sprintf(
		"%s (vector %d) errcode=%#x rip=%#x cs=%#x rflags=%#x rsp=%#x ss=%#x in %s\n%s",
		name, vector, errCode, frame.RIP, frame.CS, frame.RFlags, frame.RSP, frame.SS, symbol, instr,
	))
}

// profileSnapshot builds the pprof-format export /sys/profile serves,
// one diag.ProcessSample per occupied process-table slot (spec §3,
// "/sys/profile" OPEN/READ surface; SPEC_FULL.md).
func profileSnapshot() []byte {
	proc.Global.RLock()
	samples := make([]diag.ProcessSample, 0, defs.MaxProcs)
	for pid := defs.Pid_t(0); pid < defs.MaxProcs; pid++ {
		slot := proc.Global.Slot(pid)
		if pid != 0 && slot.ID == 0 {
			continue
		}
		u, s := slot.Accnt.Snapshot()
		samples = append(samples, diag.ProcessSample{Pid: pid, Userns: u, Sysns: s})
	}
	proc.Global.RUnlock()

	data, err := diag.MarshalProfile(samples)
	if err != nil {
		return nil
	}
	return data
}

// PIC ports and the standard 8259 remap sequence: the BIOS leaves the
// two PICs mapped onto vectors 0x08-0x0F and 0x70-0x77, which collide
// with CPU exception vectors in protected/long mode, so every PC
// kernel remaps them before unmasking anything (spec §9: "initialize
// ..., then the programmable interrupt controller").
const (
	pic1Command = 0x20
	pic1Data    = 0x21
	pic2Command = 0xA0
	pic2Data    = 0xA1

	icw1Init = 0x11
	icw4_8086 = 0x01
)

func initPIC() {
	cpu.OutByte(pic1Command, icw1Init)
	cpu.OutByte(pic2Command, icw1Init)
	cpu.OutByte(pic1Data, 0x20) // master PIC vector offset: IRQ0 -> int 0x20
	cpu.OutByte(pic2Data, 0x28) // slave PIC vector offset: IRQ8 -> int 0x28
	cpu.OutByte(pic1Data, 0x04) // tell master about slave at IRQ2
	cpu.OutByte(pic2Data, 0x02) // tell slave its cascade identity
	cpu.OutByte(pic1Data, icw4_8086)
	cpu.OutByte(pic2Data, icw4_8086)

	// Mask every IRQ except IRQ0 (the PIT timer, vector 0x20): this
	// kernel has no keyboard/disk driver reachable through this
	// substrate, and an unhandled unmasked IRQ would hang waiting for
	// cpu.TimerHandler to service a vector it was never wired to.
	cpu.OutByte(pic1Data, 0xFE)
	cpu.OutByte(pic2Data, 0xFF)
}

func sendTimerEOI() {
	cpu.OutByte(pic1Command, 0x20)
}

// runBootSequence implements the boot-script half of spec §8 scenario 1:
// if /ini/boot.sh exists, each of its lines is run through the shell.
// No interactive prompt loop is started, with or without a boot script:
// afterwards it prints "ready" and returns to Kmain's idle loop. The
// shell runs in-process (see internal/shell's doc comment) rather than
// via SPAWN, since no real userspace binary for it exists in this
// repository.
func runBootSequence() {
	out := kernelConsole{}
	sh := shell.New(vfs.Global, out)
	if shell.HasBootScript(vfs.Global) {
		for _, line := range shell.BootLines(vfs.Global) {
			sh.RunLine(line)
		}
	}
	kfmt.Printf("chilena: ready\n")
}

// kernelConsole adapts kfmt.Printf to the io.Writer shell.Shell wants
// for command output.
type kernelConsole struct{}

func (kernelConsole) Write(p []byte) (int, error) {
	kfmt.Printf("%s", string(p))
	return len(p), nil
}
