package device

import "github.com/ulnasheyn/Chilena-microkernel/internal/defs"

// MemFile is a memory-backed file view: a shared byte slice plus
// private read and write cursors, opened via OPEN against the in-memory
// filesystem. Several handles can point at the same backing data (DUP,
// or two independent OPENs of the same path) with independent cursors.
type MemFile struct {
	data    *[]byte
	cursor  int // read position
	wcursor int // write position
	closed  bool
}

// NewMemFile wraps data (owned by the caller — typically the virtual
// filesystem's file table) in a fresh handle with both cursors at 0.
func NewMemFile(data *[]byte) *MemFile {
	return &MemFile{data: data}
}

func (f *MemFile) Read(buf []byte) (int, defs.Err_t) {
	if f.closed {
		return 0, defs.EIoError
	}
	d := *f.data
	if f.cursor >= len(d) {
		return 0, 0
	}
	n := copy(buf, d[f.cursor:])
	f.cursor += n
	return n, 0
}

// Write writes at the write cursor, growing the backing slice as needed,
// and overwrites in place where the write cursor falls inside existing
// data. Reads use their own cursor, so a READ after a WRITE on the same
// handle returns the bytes written.
func (f *MemFile) Write(buf []byte) (int, defs.Err_t) {
	if f.closed {
		return 0, defs.EIoError
	}
	d := *f.data
	need := f.wcursor + len(buf)
	if need > len(d) {
		grown := make([]byte, need)
		copy(grown, d)
		d = grown
	}
	copy(d[f.wcursor:], buf)
	*f.data = d
	f.wcursor += len(buf)
	return len(buf), 0
}

func (f *MemFile) Close() defs.Err_t {
	f.closed = true
	return 0
}

func (f *MemFile) Poll() bool { return true }

func (f *MemFile) Kind() Kind { return KindMemFile }

// Size reports the current length of the backing data, independent of
// this handle's cursor position.
func (f *MemFile) Size() int { return len(*f.data) }

// Dup reopens the same backing data with both cursors reset to the
// start, matching the teacher's Copyfd/Reopen: a fresh reference to the
// same resource, not a snapshot of read position.
func (f *MemFile) Dup() (Handle, defs.Err_t) {
	if f.closed {
		return nil, defs.EIoError
	}
	return &MemFile{data: f.data}, 0
}
