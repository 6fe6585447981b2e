package device

import (
	"sync"

	"github.com/ulnasheyn/Chilena-microkernel/internal/defs"
	"github.com/ulnasheyn/Chilena-microkernel/internal/kfmt"
)

// consoleLines is the package-level line queue a keyboard driver feeds
// via PushLine, and every Console handle drains from. The console is a
// zero-sized marker (per the design note: "the console is a zero-sized
// marker that dispatches to globals") so cloning one via Dup is free and
// carries no shared-mutable state of its own.
var consoleLines struct {
	mu      sync.Mutex
	pending [][]byte // queued complete lines, each including the trailing '\n'
	current []byte   // bytes of the line currently being drained
}

// PushLine is called by the keyboard interrupt path once it has
// assembled a complete line (including the terminating '\n'). It is the
// only producer for console reads.
func PushLine(line []byte) {
	consoleLines.mu.Lock()
	defer consoleLines.mu.Unlock()
	cp := make([]byte, len(line))
	copy(cp, line)
	consoleLines.pending = append(consoleLines.pending, cp)
}

// Console is handles 0/1/2: a zero-sized value dispatching to the
// package-level input queue and kfmt's active output target.
type Console struct{}

// Read implements the two edge-case shapes spec'd for console input:
// a short destination (len(buf) <= 4) drains a single byte so a caller
// probing with a tiny buffer gets one character at a time; a longer
// destination drains up through the end of the next queued line.
func (Console) Read(buf []byte) (int, defs.Err_t) {
	if len(buf) == 0 {
		return 0, 0
	}
	consoleLines.mu.Lock()
	defer consoleLines.mu.Unlock()

	if len(consoleLines.current) == 0 {
		if len(consoleLines.pending) == 0 {
			return 0, errWouldBlock
		}
		consoleLines.current = consoleLines.pending[0]
		consoleLines.pending = consoleLines.pending[1:]
	}

	if len(buf) <= 4 {
		buf[0] = consoleLines.current[0]
		consoleLines.current = consoleLines.current[1:]
		return 1, 0
	}

	n := copy(buf, consoleLines.current)
	consoleLines.current = consoleLines.current[n:]
	return n, 0
}

// Write sends bytes to whatever output sink kfmt currently targets
// (VGA text mode once console init has run, the early ring buffer
// before that).
func (Console) Write(buf []byte) (int, defs.Err_t) {
	kfmt.Printf("%s", string(buf))
	return len(buf), 0
}

func (Console) Close() defs.Err_t { return 0 }

func (Console) Poll() bool {
	consoleLines.mu.Lock()
	defer consoleLines.mu.Unlock()
	return len(consoleLines.current) > 0 || len(consoleLines.pending) > 0
}

func (Console) Kind() Kind { return KindConsole }

func (c Console) Dup() (Handle, defs.Err_t) { return c, 0 }
