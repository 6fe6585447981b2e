package proc

import (
	"github.com/ulnasheyn/Chilena-microkernel/internal/cpu"
	"github.com/ulnasheyn/Chilena-microkernel/internal/defs"
)

// Terminate implements EXIT (spec §4.7): it tears down pid's address
// space without holding the process-table lock across the unmap (the
// unmap can fault, and fault recovery needs the lock), then resumes the
// parent by rewriting frame/regs to its last saved context.
func (t *Table) Terminate(frame *cpu.InterruptFrame, regs *cpu.Registers, pid defs.Pid_t, code defs.ExitCode) {
	_ = code // the exit code is not recorded anywhere

	t.mu.RLock()
	leaving := &t.procs[pid]
	parentID := leaving.ParentID
	as := leaving.AS
	codeBase := leaving.CodeBase
	t.mu.RUnlock()

	as.UnmapRange(codeBase, defs.MaxProcMem)

	// Second, unconditional unmap of the USER_BASE window, grounded on
	// the original's release_pages doing an independent unmap_page pass
	// at USER_BASE after the one at code_base. For pid 1 (k = 0) codeBase ==
	// UserBase and this is a harmless no-op re-unmap; for every other
	// slot it reclaims a stale mapping at USER_BASE that a prior bug in
	// this slot could otherwise leave unreclaimed forever. UnmapRange is
	// idempotent over already-unmapped pages, so this never double-frees
	// a frame already reclaimed by the first call.
	as.UnmapRange(defs.UserBase, defs.MaxProcMem)

	t.mu.Lock()
	t.procs[pid].reset()
	t.activeCount--
	parent := &t.procs[parentID]
	t.mu.Unlock()

	as.Free()
	parent.AS.Activate()
	t.setCurrentPid(parentID)

	if parent.SavedFrame != nil {
		*frame = *parent.SavedFrame
		*regs = parent.SavedRegs
		parent.SavedFrame = nil
	}
}
