package proc

import (
	"testing"

	"github.com/ulnasheyn/Chilena-microkernel/internal/cpu"
	"github.com/ulnasheyn/Chilena-microkernel/internal/defs"
)

func TestProcessHeapAllocFreeBumps(t *testing.T) {
	tbl := freshTable(t, 4096)
	var frame cpu.InterruptFrame
	var regs cpu.Registers

	if err := tbl.Spawn(0, &frame, &regs, chnImage("x"), nil); err != defs.Success {
		t.Fatalf("spawn failed: %v", err)
	}
	p := tbl.Slot(tbl.CurrentPid())

	a, err := p.Alloc(64)
	if err != defs.Success {
		t.Fatalf("Alloc err=%v", err)
	}
	b, err := p.Alloc(128)
	if err != defs.Success {
		t.Fatalf("Alloc err=%v", err)
	}
	if b != a+64 {
		t.Fatalf("second allocation should follow the first: a=%#x b=%#x", a, b)
	}

	if err := p.Free(b, 128); err != defs.Success {
		t.Fatalf("Free err=%v", err)
	}
	if p.HeapNext != a+64 {
		t.Fatalf("Free of the most recent allocation should roll back HeapNext, got %#x", p.HeapNext)
	}
}

func TestProcessHeapAllocExhaustion(t *testing.T) {
	tbl := freshTable(t, 4096)
	var frame cpu.InterruptFrame
	var regs cpu.Registers

	if err := tbl.Spawn(0, &frame, &regs, chnImage("x"), nil); err != defs.Success {
		t.Fatalf("spawn failed: %v", err)
	}
	p := tbl.Slot(tbl.CurrentPid())

	total := uint64(p.HeapHi - p.HeapLo)
	if _, err := p.Alloc(total + 1); err != defs.EExecError {
		t.Fatalf("expected allocation past HeapHi to fail, got %v", err)
	}
}
