// Package proc owns the process table: the fixed-size array of process
// records, their address spaces, handle tables, and the saved CPU
// context a preempted or newly spawned process resumes from. Grounded
// on the teacher's accnt.Accnt_t (per-process accounting) and tinfo's
// "one struct holds everything a schedulable context needs" shape,
// generalized from biscuit's thread-per-process model to one process
// record per schedulable unit.
package proc

import (
	"sync"
	"sync/atomic"

	"github.com/ulnasheyn/Chilena-microkernel/internal/cpu"
	"github.com/ulnasheyn/Chilena-microkernel/internal/defs"
	"github.com/ulnasheyn/Chilena-microkernel/internal/device"
	"github.com/ulnasheyn/Chilena-microkernel/internal/mem"
	"github.com/ulnasheyn/Chilena-microkernel/internal/vm"
)

// BlockState is one of the three states a process record can be in.
type BlockState int

const (
	Running BlockState = iota
	WaitingSend
	WaitingRecv
)

// Message is the fixed-shape IPC payload: a 16-byte prefix (sender,
// kind, padding) followed by 64 payload bytes, per the wire layout
// spec'd for SEND/RECV.
type Message struct {
	Sender  defs.Pid_t
	Kind    uint32
	Payload [64]byte
}

// Process is one process-table slot's record.
type Process struct {
	ID       defs.Pid_t
	ParentID defs.Pid_t

	AS         *vm.AddressSpace
	CodeBase   uintptr
	StackBase  uintptr
	EntryPoint uintptr

	// HeapLo/HeapNext/HeapHi bound this process's private heap region,
	// distinct from the kernel heap — spec §4.4 step 7. HeapMapped
	// tracks how far the region has actually been mapped; Alloc grows
	// it on demand as HeapNext advances past it.
	HeapLo, HeapNext, HeapHi, HeapMapped uintptr

	SavedFrame *cpu.InterruptFrame
	SavedRegs  cpu.Registers

	Cwd  string
	Env  map[string]string
	Handles [defs.MaxHandles]device.Handle

	Mailbox *Message
	Block   BlockState
	WaitTarget defs.Pid_t

	Accnt Accnt

	// Symbols is the loaded ELF image's function symbol table, captured
	// by Spawn; nil for a flat "CHN" image or a stripped ELF.
	Symbols []Symbol
}

// reset restores a slot to the empty-record sentinel (id=0).
func (p *Process) reset() {
	*p = Process{}
}

// Table is the fixed-size process table singleton. Slot 0 is always the
// kernel/idle record and is never handed out by allocSlot.
type Table struct {
	mu    sync.RWMutex
	procs [defs.MaxProcs]Process

	current     int32 // defs.Pid_t, atomic: the hardware-scheduled pid
	activeCount int

	Alloc      *mem.Allocator
	KernelRoot mem.Frame
}

// Global is the single process table instance; there is exactly one
// per kernel image.
var Global = &Table{}

// Init wires the table to the frame allocator and records the kernel
// address space's top-level frame, used as the template every new
// process's address space shallow-copies (spec §3 "Address space").
func (t *Table) Init(alloc *mem.Allocator, kernelRoot mem.Frame) {
	t.Alloc = alloc
	t.KernelRoot = kernelRoot
	t.procs[0] = Process{ID: 0}
	t.procs[0].AS = vm.New(alloc, kernelRoot)
	var console0, console1, console2 device.Console
	var null3 device.Null
	t.procs[0].Handles[0] = console0
	t.procs[0].Handles[1] = console1
	t.procs[0].Handles[2] = console2
	t.procs[0].Handles[3] = null3
	atomic.StoreInt32(&t.current, 0)
}

// CurrentPid loads the seq-cst current-pid value (spec §5 "Ordering").
func (t *Table) CurrentPid() defs.Pid_t {
	return defs.Pid_t(atomic.LoadInt32(&t.current))
}

func (t *Table) setCurrentPid(pid defs.Pid_t) {
	atomic.StoreInt32(&t.current, int32(pid))
}

// SetCurrentPid publishes a new current-pid to collaborators outside
// this package (internal/sched) that perform their own context switch,
// seq-cst per spec §5's ordering requirement.
func (t *Table) SetCurrentPid(pid defs.Pid_t) {
	t.setCurrentPid(pid)
}

// Current returns a pointer to the current process's slot. Callers must
// hold (or not need) the table lock appropriately; this is a direct
// array index, not a copy.
func (t *Table) Current() *Process {
	return &t.procs[t.CurrentPid()]
}

// Slot returns a pointer to the process record at index pid.
func (t *Table) Slot(pid defs.Pid_t) *Process {
	return &t.procs[pid]
}

// Lock/Unlock/RLock/RUnlock expose the table's read-write spinlock to
// collaborators outside this package (internal/ipc, internal/sched)
// that need fine-grained control over the lock/hlt ordering spec §5
// mandates — a closure-taking helper would force those callers to
// either hold the lock across cpu.Halt or split into two calls anyway,
// so the raw lock is exposed instead of wrapped.
func (t *Table) Lock()    { t.mu.Lock() }
func (t *Table) Unlock()  { t.mu.Unlock() }
func (t *Table) RLock()   { t.mu.RLock() }
func (t *Table) RUnlock() { t.mu.RUnlock() }

// allocSlot finds a free slot (id==0, index>0) and claims it with id.
// Must be called under t.mu held for writing.
func (t *Table) allocSlot() (defs.Pid_t, bool) {
	for i := 1; i < defs.MaxProcs; i++ {
		if t.procs[i].ID == 0 {
			return defs.Pid_t(i), true
		}
	}
	return 0, false
}

// codeBaseFor returns USER_BASE + k*MAX_PROC_MEM for slot k, the layout
// invariant spec §3 requires to hold for every active process.
func codeBaseFor(k int) uintptr {
	return defs.UserBase + uintptr(k)*defs.MaxProcMem
}

// SymbolFor resolves va to the enclosing function symbol in pid's loaded
// ELF image, if any — used by kernel panic output to name the function a
// faulting RIP landed in (internal/diag.DemangleSymbol is applied by the
// caller; this just does the address-range lookup).
func (t *Table) SymbolFor(pid defs.Pid_t, va uintptr) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, s := range t.procs[pid].Symbols {
		if va >= s.Value && va < s.Value+uintptr(s.Size) {
			return s.Name, true
		}
	}
	return "", false
}

// ActiveCount reports the number of occupied (non-kernel) slots.
func (t *Table) ActiveCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.activeCount
}
