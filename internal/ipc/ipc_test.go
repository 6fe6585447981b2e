package ipc

import (
	"testing"
	"unsafe"

	"github.com/ulnasheyn/Chilena-microkernel/internal/defs"
	"github.com/ulnasheyn/Chilena-microkernel/internal/mem"
	"github.com/ulnasheyn/Chilena-microkernel/internal/proc"
	"github.com/ulnasheyn/Chilena-microkernel/internal/vm"
)

func init() {
	vm.SwitchPageTable = func(uintptr) {}
	halt = func() {}
}

// twoProcTable builds a process table with the kernel slot plus two
// active slots (1 and 2) wired up enough for Send/Recv to exercise,
// without going through the full Spawn path this package doesn't need.
func twoProcTable(t *testing.T) *proc.Table {
	t.Helper()
	backing := make([]byte, 1024*mem.PageSize)
	base := uintptr(unsafe.Pointer(&backing[0]))

	alloc := &mem.Allocator{}
	alloc.Init(base, []mem.MemoryRegion{
		{Start: 0, Length: uint64(1024 * mem.PageSize), Usable: true},
	})
	kernelRoot, ok := alloc.AllocateFrame()
	if !ok {
		t.Fatal("could not allocate kernel root")
	}

	tbl := &proc.Table{}
	tbl.Init(alloc, kernelRoot)

	tbl.Lock()
	tbl.Slot(1).ID = 1
	tbl.Slot(2).ID = 2
	tbl.Unlock()
	return tbl
}

func TestSendThenRecvRoundTrips(t *testing.T) {
	tbl := twoProcTable(t)

	if err := Send(tbl, 1, 2, 7, []byte("ping")); err != defs.Success {
		t.Fatalf("send: %v", err)
	}

	msg, err := Recv(tbl, 2)
	if err != defs.Success {
		t.Fatalf("recv: %v", err)
	}
	if msg.Sender != 1 {
		t.Fatalf("sender = %d, want 1", msg.Sender)
	}
	if msg.Kind != 7 {
		t.Fatalf("kind = %d, want 7", msg.Kind)
	}
	if string(msg.Payload[:4]) != "ping" {
		t.Fatalf("payload = %q, want ping...", msg.Payload[:4])
	}
}

func TestSendTruncatesPayloadTo64Bytes(t *testing.T) {
	tbl := twoProcTable(t)
	big := make([]byte, 200)
	for i := range big {
		big[i] = byte('a' + i%26)
	}

	if err := Send(tbl, 1, 2, 0, big); err != defs.Success {
		t.Fatalf("send: %v", err)
	}
	msg, _ := Recv(tbl, 2)
	if string(msg.Payload[:]) != string(big[:64]) {
		t.Fatal("payload should be the first 64 bytes of data")
	}
}

func TestSendToNonexistentPidFailsWithoutBlocking(t *testing.T) {
	tbl := twoProcTable(t)
	err := Send(tbl, 1, 5, 0, []byte("x"))
	if err != defs.ENotFound {
		t.Fatalf("expected ENotFound for a nonexistent target, got %v", err)
	}
}

func TestSendBlocksUntilMailboxDrains(t *testing.T) {
	tbl := twoProcTable(t)

	if err := Send(tbl, 1, 2, 1, []byte("first")); err != defs.Success {
		t.Fatalf("first send: %v", err)
	}

	// Drain the mailbox from a goroutine after a few retries so the
	// second Send's retry loop observes the slot becoming free again,
	// rather than spinning the full maxSendRetries.
	drained := make(chan struct{})
	go func() {
		<-drained
		Recv(tbl, 2)
	}()

	retries := 0
	halt = func() {
		retries++
		if retries == 3 {
			close(drained)
		}
	}
	defer func() { halt = func() {} }()

	if err := Send(tbl, 1, 2, 2, []byte("second")); err != defs.Success {
		t.Fatalf("second send should eventually succeed, got %v", err)
	}
}
