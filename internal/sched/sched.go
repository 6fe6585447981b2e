// Package sched implements the timer-driven round-robin scheduler
// (spec §4.6). Step implements the scheduling decision itself, wired
// to the hardware timer via cpu.TimerHandler by cmd/chilena's boot
// sequence. Grounded on the teacher's per-thread Tnote_t/Killnaps
// model of "suspend and resume a saved context", replaced here with a
// single flat process table and no kernel threads (Non-goal).
package sched

import (
	"github.com/ulnasheyn/Chilena-microkernel/internal/cpu"
	"github.com/ulnasheyn/Chilena-microkernel/internal/defs"
	"github.com/ulnasheyn/Chilena-microkernel/internal/proc"
)

// Scheduler holds the tick counter driving the quantum boundary. One
// instance per kernel image, wired to proc.Global at boot.
type Scheduler struct {
	tick  uint64
	Table *proc.Table

	// lastAccounted is the wall-clock timestamp of the previous Step
	// call; the elapsed delta is charged to whichever process was
	// running, the user-time half of spec §4.7's accounting (the
	// system-time half is charged by internal/syscall.Dispatch).
	lastAccounted int64
}

// Global is the kernel-wide scheduler singleton.
var Global = &Scheduler{}

// Init wires the scheduler to the process table it rotates through.
func (s *Scheduler) Init(t *proc.Table) {
	s.Table = t
}

// Step is the scheduling decision (spec §4.6), called from
// cpu.TimerHandler on every timer interrupt with pointers to the
// current interrupt frame and register file. It runs with interrupts
// disabled throughout — see cpu.timerTrampoline — since it may rewrite
// *frame and *regs in place and a re-entrant timer interrupt mid-switch
// would corrupt them.
func (s *Scheduler) Step(frame *cpu.InterruptFrame, regs *cpu.Registers) {
	t := s.Table
	running := t.CurrentPid()

	now := proc.Now()
	if s.lastAccounted != 0 {
		t.Slot(running).Accnt.Utadd(now - s.lastAccounted)
	}
	s.lastAccounted = now

	s.tick++
	if s.tick%defs.SchedTicks != 0 {
		return
	}

	current := running

	t.Lock()
	defer t.Unlock()

	next, found := nextRunnable(t, current)
	if !found {
		return
	}
	if next == current {
		return
	}

	cur := t.Slot(current)
	cur.SavedFrame = &cpu.InterruptFrame{
		RIP: frame.RIP, CS: frame.CS, RFlags: frame.RFlags, RSP: frame.RSP, SS: frame.SS,
	}
	cur.SavedRegs = *regs

	target := t.Slot(next)
	target.AS.Activate()
	t.SetCurrentPid(next)
	*regs = target.SavedRegs

	if target.SavedFrame != nil {
		*frame = *target.SavedFrame
	} else {
		// Never run before: synthesize a fresh frame at the target's
		// user entry point and stack top (spec §4.6 step 7).
		frame.RIP = uint64(target.CodeBase + target.EntryPoint)
		frame.CS = cpu.UserCS
		frame.RFlags = cpu.RFlagsIF
		frame.RSP = uint64(target.StackBase)
		frame.SS = cpu.UserDS
	}
}

// nextRunnable scans indices 1..MAX_PROCS-1 starting just after current
// and wrapping, for the first slot with id != 0 and block state
// Running (spec §4.6 steps 2 and 4, tie-break rule: lowest index
// strictly greater than current, wrapping). current itself is the
// last index visited, so it is returned only if nothing else in the
// ring is runnable.
func nextRunnable(t *proc.Table, current defs.Pid_t) (defs.Pid_t, bool) {
	const slots = defs.MaxProcs - 1 // indices 1..MaxProcs-1
	base := int(current) - 1
	for i := 1; i <= slots; i++ {
		idx := defs.Pid_t(1 + (base+i)%slots)
		slot := t.Slot(idx)
		if slot.ID != 0 && slot.Block == proc.Running {
			return idx, true
		}
	}
	return 0, false
}
