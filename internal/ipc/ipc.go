// Package ipc implements the single-slot blocking mailbox each process
// owns (spec §4.8). Send/Recv are plain functions over *proc.Table
// rather than methods on proc.Process, mirroring the teacher's
// oommsg.go shape: a small message-passing primitive layered on top of
// the process table rather than folded into it, so proc stays the
// table-of-record and ipc stays the policy (retry bound, lock
// discipline) built on top.
package ipc

import (
	"github.com/ulnasheyn/Chilena-microkernel/internal/cpu"
	"github.com/ulnasheyn/Chilena-microkernel/internal/defs"
	"github.com/ulnasheyn/Chilena-microkernel/internal/proc"
)

// maxSendRetries bounds Send's wait loop (spec §4.8, §9 "Open question"):
// a uniprocessor livelock guard for a receiver that never consumes,
// documented here as the fixed-deadline reading of that open question
// rather than a per-process wait queue.
const maxSendRetries = 1000

// halt is cpu.Halt by default; overridden in tests the same way
// vm.SwitchPageTable is, so host-side unit tests can exercise the
// retry loop without executing a privileged instruction.
var halt = cpu.Halt

// Send implements SEND: deposit up to 64 bytes of data into target's
// mailbox if empty, else block the caller and retry on the next
// interrupt, bounded by maxSendRetries.
func Send(t *proc.Table, sender defs.Pid_t, target defs.Pid_t, kind uint32, data []byte) defs.Err_t {
	if target == 0 || int(target) >= defs.MaxProcs {
		return errNoSuchPid()
	}

	var payload [64]byte
	n := len(data)
	if n > 64 {
		n = 64
	}
	copy(payload[:n], data[:n])

	for attempt := 0; attempt < maxSendRetries; attempt++ {
		ok, done := trySend(t, sender, target, kind, payload)
		if done {
			if ok {
				return defs.Success
			}
			return errNoSuchPid()
		}
		halt()
	}

	clearWait(t, sender)
	return errTimeout()
}

// trySend attempts one deposit under the table's write lock. done=true
// means the caller should stop retrying (either it succeeded, or the
// target turned out not to exist); done=false means the mailbox was
// full and the caller should wait for the next interrupt and retry.
func trySend(t *proc.Table, sender, target defs.Pid_t, kind uint32, payload [64]byte) (ok, done bool) {
	t.Lock()
	defer t.Unlock()

	targetSlot := t.Slot(target)
	if targetSlot.ID != target {
		return false, true
	}

	if targetSlot.Mailbox != nil {
		senderSlot := t.Slot(sender)
		senderSlot.Block = proc.WaitingSend
		senderSlot.WaitTarget = target
		return false, false
	}

	targetSlot.Mailbox = &proc.Message{Sender: sender, Kind: kind, Payload: payload}
	targetSlot.Block = proc.Running
	t.Slot(sender).Block = proc.Running
	return true, true
}

func clearWait(t *proc.Table, sender defs.Pid_t) {
	t.Lock()
	defer t.Unlock()
	t.Slot(sender).Block = proc.Running
}

// Recv implements RECV: drain this process's mailbox if non-empty, else
// block and retry on the next interrupt. Unlike Send, Recv never times
// out — a process that asked to receive is defined to wait until a
// message arrives (spec §4.8 shows no retry bound on the recv loop).
func Recv(t *proc.Table, self defs.Pid_t) (proc.Message, defs.Err_t) {
	for {
		msg, ok := tryRecv(t, self)
		if ok {
			return msg, defs.Success
		}
		halt()
	}
}

func tryRecv(t *proc.Table, self defs.Pid_t) (proc.Message, bool) {
	t.Lock()
	defer t.Unlock()

	slot := t.Slot(self)
	if slot.Mailbox != nil {
		msg := *slot.Mailbox
		slot.Mailbox = nil
		slot.Block = proc.Running
		return msg, true
	}
	slot.Block = proc.WaitingRecv
	return proc.Message{}, false
}

func errNoSuchPid() defs.Err_t { return defs.ENotFound }
func errTimeout() defs.Err_t   { return defs.ENotFound }
