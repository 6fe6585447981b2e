package syscall

import (
	"testing"
	"unsafe"

	"github.com/ulnasheyn/Chilena-microkernel/internal/cpu"
	"github.com/ulnasheyn/Chilena-microkernel/internal/defs"
	"github.com/ulnasheyn/Chilena-microkernel/internal/mem"
	"github.com/ulnasheyn/Chilena-microkernel/internal/proc"
	"github.com/ulnasheyn/Chilena-microkernel/internal/vm"
)

func init() {
	vm.SwitchPageTable = func(uintptr) {}
}

// freshProc spawns a single flat process into its own table and wires
// package-level Table at it, returning the child's pid and address
// space for tests to poke user memory through directly.
func freshProc(t *testing.T) (*proc.Table, defs.Pid_t) {
	t.Helper()
	backing := make([]byte, 4096*mem.PageSize)
	base := uintptr(unsafe.Pointer(&backing[0]))

	alloc := &mem.Allocator{}
	alloc.Init(base, []mem.MemoryRegion{
		{Start: 0, Length: uint64(4096 * mem.PageSize), Usable: true},
	})
	kernelRoot, ok := alloc.AllocateFrame()
	if !ok {
		t.Fatal("could not allocate kernel root")
	}

	tbl := &proc.Table{}
	tbl.Init(alloc, kernelRoot)

	var frame cpu.InterruptFrame
	var regs cpu.Registers
	binary := append(append([]byte{}, defs.MagicCHN[:]...), []byte("prog")...)
	if err := tbl.Spawn(0, &frame, &regs, binary, nil); err != defs.Success {
		t.Fatalf("spawn: %v", err)
	}
	pid := tbl.CurrentPid()
	Table = tbl
	return tbl, pid
}

func TestWriteThenReadMemFileRoundTrips(t *testing.T) {
	_, pid := freshProc(t)
	p := Table.Slot(pid)
	as := p.AS

	// Carve three separate pages out of the process's own heap (via
	// Alloc, which maps on demand) for the write buffer, the path
	// string, and the read-back buffer, rather than guessing at
	// addresses the spawn path may not have mapped.
	bufVA, aerr := p.Alloc(mem.PageSize)
	if aerr != defs.Success {
		t.Fatalf("alloc buf: %v", aerr)
	}
	pathArena, aerr := p.Alloc(mem.PageSize)
	if aerr != defs.Success {
		t.Fatalf("alloc path: %v", aerr)
	}
	readBufVA, aerr := p.Alloc(mem.PageSize)
	if aerr != defs.Success {
		t.Fatalf("alloc readbuf: %v", aerr)
	}

	if err := as.CopyToUser(bufVA, []byte("hello")); err != defs.Success {
		t.Fatalf("seed buffer: %v", err)
	}

	handle := sysOpen(pid, pathVA(t, as, pathArena, "/tmp/x"), uint64(len("/tmp/x")), 1)
	if handle == defs.UnsignedError {
		t.Fatalf("open failed")
	}

	n := sysWrite(pid, handle, uint64(bufVA), 5)
	if n != 5 {
		t.Fatalf("write returned %d, want 5", n)
	}

	n = sysRead(pid, handle, uint64(readBufVA), 5)
	if n != 5 {
		t.Fatalf("read returned %d, want 5", n)
	}
	got, ok := readUserBytes(pid, uint64(readBufVA), 5)
	if !ok || string(got) != "hello" {
		t.Fatalf("round trip got %q, want hello", got)
	}

	// A further read at EOF returns 0.
	n = sysRead(pid, handle, uint64(readBufVA), 5)
	if n != 0 {
		t.Fatalf("expected EOF read to return 0, got %d", n)
	}
}

// pathVA writes path as bytes into the process's address space at va
// and returns va, for tests that need a (ptr) pair naming a path.
func pathVA(t *testing.T, as *vm.AddressSpace, va uintptr, path string) uint64 {
	t.Helper()
	if err := as.CopyToUser(va, append([]byte(path), 0)); err != defs.Success {
		t.Fatalf("seed path: %v", err)
	}
	return uint64(va)
}

func TestInvalidPointerFailsWithoutDereferencing(t *testing.T) {
	_, pid := freshProc(t)
	// An address far outside the userspace window must be rejected by
	// validateRange before any copy is attempted.
	n := sysWrite(pid, 1, 0xFFFF_FFFF_FFFF_0000, 8)
	if n != defs.UnsignedError {
		t.Fatalf("expected UnsignedError for an out-of-range pointer, got %d", n)
	}
}

func TestSendRecvSyscallRoundTrips(t *testing.T) {
	tbl, sender := freshProc(t)

	var frame cpu.InterruptFrame
	var regs cpu.Registers
	binary := append(append([]byte{}, defs.MagicCHN[:]...), []byte("prog2")...)
	if err := tbl.Spawn(0, &frame, &regs, binary, nil); err != defs.Success {
		t.Fatalf("spawn second proc: %v", err)
	}
	receiver := tbl.CurrentPid()
	Table.Slot(sender).Block = proc.Running
	Table.Slot(receiver).Block = proc.Running

	senderAS := Table.Slot(sender).AS
	dataVA := Table.Slot(sender).CodeBase
	if err := senderAS.CopyToUser(dataVA, []byte("ping")); err != defs.Success {
		t.Fatalf("seed data: %v", err)
	}

	rc := sysSend(sender, uint64(receiver), 9, uint64(dataVA), 4)
	if rc != 0 {
		t.Fatalf("send returned %d, want 0", rc)
	}

	recvAS := Table.Slot(receiver).AS
	outVA := Table.Slot(receiver).CodeBase
	rc = sysRecv(receiver, uint64(outVA))
	if rc != 0 {
		t.Fatalf("recv returned %d, want 0", rc)
	}

	wire, ok := func() ([]byte, bool) {
		buf := make([]byte, msgWireSize)
		err := recvAS.CopyFromUser(buf, outVA)
		return buf, err == defs.Success
	}()
	if !ok {
		t.Fatal("could not read back message wire bytes")
	}
	gotSender := leU64(wire[0:8])
	if defs.Pid_t(gotSender) != sender {
		t.Fatalf("wire sender = %d, want %d", gotSender, sender)
	}
	if string(wire[16:20]) != "ping" {
		t.Fatalf("wire payload = %q, want ping...", wire[16:20])
	}
}
