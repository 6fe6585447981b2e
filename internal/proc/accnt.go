package proc

import (
	"sync"
	"sync/atomic"
	"time"
)

// Accnt accumulates per-process user/system time, adapted from the
// teacher's accnt.Accnt_t: nanosecond counters updated atomically, with
// a mutex guarding the consistent-snapshot path diag's pprof export
// uses.
type Accnt struct {
	Userns int64
	Sysns  int64
	mu     sync.Mutex
}

// Utadd adds delta nanoseconds of user time.
func (a *Accnt) Utadd(delta int64) {
	atomic.AddInt64(&a.Userns, delta)
}

// Systadd adds delta nanoseconds of system time.
func (a *Accnt) Systadd(delta int64) {
	atomic.AddInt64(&a.Sysns, delta)
}

// Snapshot returns a consistent copy of the counters for diag to read.
func (a *Accnt) Snapshot() (userns, sysns int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return atomic.LoadInt64(&a.Userns), atomic.LoadInt64(&a.Sysns)
}

// now is the wall clock accounting measures against. Chilena runs on
// bare metal with no NTP-disciplined clock of its own at this layer, so
// accounting reads time.Now's nanosecond timestamp the same way the
// teacher's Accnt_t.Now does — this is purely a relative duration measure, never
// surfaced as a calendar time.
func now() int64 {
	return time.Now().UnixNano()
}

// Now exposes the accounting clock to internal/sched and internal/syscall,
// which attribute elapsed wall time to a process's user/system counters
// (spec §4.7) and have no clock source of their own.
func Now() int64 {
	return now()
}
