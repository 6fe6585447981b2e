package proc

import (
	"testing"
	"unsafe"

	"github.com/ulnasheyn/Chilena-microkernel/internal/cpu"
	"github.com/ulnasheyn/Chilena-microkernel/internal/defs"
	"github.com/ulnasheyn/Chilena-microkernel/internal/mem"
	"github.com/ulnasheyn/Chilena-microkernel/internal/vm"
)

func init() {
	// Host-side tests build real page tables and call Activate as part
	// of exercising Spawn/Terminate, but there is no CR3 to load on the
	// test runner's own CPU — swap in a no-op for the whole package.
	vm.SwitchPageTable = func(uintptr) {}
}

func freshTable(t *testing.T, frames int) *Table {
	t.Helper()
	backing := make([]byte, frames*mem.PageSize)
	base := uintptr(unsafe.Pointer(&backing[0]))

	alloc := &mem.Allocator{}
	alloc.Init(base, []mem.MemoryRegion{
		{Start: 0, Length: uint64(frames * mem.PageSize), Usable: true},
	})

	kernelRoot, ok := alloc.AllocateFrame()
	if !ok {
		t.Fatal("could not allocate kernel root")
	}

	tbl := &Table{}
	tbl.Init(alloc, kernelRoot)
	return tbl
}

// chnImage builds a minimal flat "CHN" binary: magic followed by payload.
func chnImage(payload string) []byte {
	return append(append([]byte{}, defs.MagicCHN[:]...), []byte(payload)...)
}

func TestSpawnAssignsDistinctCodeBases(t *testing.T) {
	tbl := freshTable(t, 4096)

	var frame cpu.InterruptFrame
	var regs cpu.Registers

	err := tbl.Spawn(0, &frame, &regs, chnImage("hello"), nil)
	if err != defs.Success {
		t.Fatalf("first spawn failed: %v", err)
	}
	first := tbl.CurrentPid()
	if first == 0 {
		t.Fatal("expected a non-kernel pid after spawn")
	}
	firstBase := tbl.Slot(first).CodeBase

	// Spawn again from the kernel context; a second slot must get a
	// distinct code base per spec §3's pairwise-disjoint invariant.
	err = tbl.Spawn(0, &frame, &regs, chnImage("world"), nil)
	if err != defs.Success {
		t.Fatalf("second spawn failed: %v", err)
	}
	second := tbl.CurrentPid()
	if second == first {
		t.Fatalf("expected a distinct pid, got %d twice", first)
	}
	secondBase := tbl.Slot(second).CodeBase
	if secondBase == firstBase {
		t.Fatalf("code bases must be pairwise disjoint: both = %#x", firstBase)
	}
	if tbl.ActiveCount() != 2 {
		t.Fatalf("active count = %d, want 2", tbl.ActiveCount())
	}
}

func TestSpawnRejectsShortBuffer(t *testing.T) {
	tbl := freshTable(t, 256)
	var frame cpu.InterruptFrame
	var regs cpu.Registers

	err := tbl.Spawn(0, &frame, &regs, []byte{0x7F, 'C'}, nil)
	if err != defs.EExecError {
		t.Fatalf("expected EExecError for a <4 byte buffer, got %v", err)
	}
	if tbl.ActiveCount() != 0 {
		t.Fatal("a rejected spawn must not mutate the table")
	}
}

func TestSpawnFailsWhenTableFull(t *testing.T) {
	tbl := freshTable(t, 8192)
	var frame cpu.InterruptFrame
	var regs cpu.Registers

	for i := 0; i < defs.MaxProcs-1; i++ {
		if err := tbl.Spawn(0, &frame, &regs, chnImage("x"), nil); err != defs.Success {
			t.Fatalf("spawn %d failed: %v", i, err)
		}
	}
	before := tbl.ActiveCount()
	if err := tbl.Spawn(0, &frame, &regs, chnImage("overflow"), nil); err != defs.EExecError {
		t.Fatalf("expected table-full spawn to fail with EExecError, got %v", err)
	}
	if tbl.ActiveCount() != before {
		t.Fatal("a failed spawn must not mutate the active count")
	}
}

func TestTerminateFreesSlotAndResumesParent(t *testing.T) {
	tbl := freshTable(t, 4096)
	var frame cpu.InterruptFrame
	var regs cpu.Registers

	if err := tbl.Spawn(0, &frame, &regs, chnImage("child"), nil); err != defs.Success {
		t.Fatalf("spawn failed: %v", err)
	}
	child := tbl.CurrentPid()
	if child == 0 {
		t.Fatal("expected non-kernel pid")
	}

	tbl.Terminate(&frame, &regs, child, defs.ExitSuccess)

	if tbl.Slot(child).ID != 0 {
		t.Fatalf("slot %d should be free after terminate, got id=%d", child, tbl.Slot(child).ID)
	}
	if tbl.ActiveCount() != 0 {
		t.Fatalf("active count = %d, want 0", tbl.ActiveCount())
	}
	if tbl.CurrentPid() != 0 {
		t.Fatalf("current pid should resume the parent (0), got %d", tbl.CurrentPid())
	}
}
