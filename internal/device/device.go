// Package device implements the handle/resource union every process's
// descriptor table points into: console, null, and memory-backed files
// (grounded on the teacher's fd.Fd_t / defs device-id scheme, collapsed
// into a closed tagged union rather than an fdops vtable per the
// "avoid vtable-per-handle dispatch" design note).
package device

import "github.com/ulnasheyn/Chilena-microkernel/internal/defs"

// Kind identifies which member of the resource union a Handle is.
type Kind int

const (
	KindConsole Kind = iota
	KindNull
	KindMemFile
)

// errWouldBlock is returned by Read when no data is available yet; it
// never escapes to userspace. The syscall layer checks for it and
// suspends the calling process instead of propagating an error.
const errWouldBlock defs.Err_t = -1000

// WouldBlock reports whether err is the internal not-ready sentinel a
// Handle.Read can return.
func WouldBlock(err defs.Err_t) bool {
	return err == errWouldBlock
}

// Handle is the common interface every resource union member satisfies.
// Kept deliberately small: cloning a handle (DUP) must stay cheap, and
// every member must be representable without per-instance allocation
// for Console and Null.
type Handle interface {
	Read(buf []byte) (int, defs.Err_t)
	Write(buf []byte) (int, defs.Err_t)
	Close() defs.Err_t
	// Poll reports whether a READ would return data immediately
	// without suspending the caller.
	Poll() bool
	Kind() Kind
	// Dup produces an independent handle bound to the same underlying
	// resource, mirroring the teacher's Copyfd/Reopen pair.
	Dup() (Handle, defs.Err_t)
}

// Sized is implemented by handles that expose a size (memory files).
type Sized interface {
	Size() int
}
