// Package vfs is the in-memory virtual filesystem OPEN/STAT/REMOVE/WRITE
// resolve against. It is explicitly a collaborator, not core kernel
// state (no disk, no inodes): a single mutex-guarded map from
// canonical path to backing bytes, grounded on the teacher's
// ustr.Ustr path handling and stat.Stat_t output layout.
package vfs

import (
	"strings"
	"sync"
	"unsafe"

	"github.com/ulnasheyn/Chilena-microkernel/internal/defs"
)

// FS is the process-shared filesystem table. The zero value is ready
// to use.
type FS struct {
	mu           sync.Mutex
	files        map[string]*[]byte
	synthesizers map[string]func() []byte
}

// RegisterSynthesizer binds path to a function computed fresh on every
// OPEN/STAT, rather than a stored byte slice — the mechanism /sys/profile
// (SPEC_FULL.md §3) uses to expose live per-process accounting through
// the same OPEN/READ surface ordinary files use, without a writer ever
// having pushed bytes into the table. A synthesized path is read-only:
// WriteFile and Remove still operate on the stored-file map and cannot
// touch it.
func (fs *FS) RegisterSynthesizer(path string, fn func() []byte) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.synthesizers == nil {
		fs.synthesizers = make(map[string]func() []byte)
	}
	fs.synthesizers[path] = fn
}

// Global is the single filesystem instance every process's OPEN/STAT/
// REMOVE resolves against (there is no mount namespace).
var Global = &FS{}

// Canonicalize resolves "." and ".." components and collapses repeated
// slashes, always returning an absolute, slash-prefixed path. Mirrors
// the teacher's Cwd_t.Canonicalpath/bpath.Canonicalize behavior but
// operates on a plain string rather than ustr.Ustr.
func Canonicalize(cwd, path string) string {
	full := path
	if !strings.HasPrefix(path, "/") {
		full = strings.TrimSuffix(cwd, "/") + "/" + path
	}
	parts := strings.Split(full, "/")
	stack := make([]string, 0, len(parts))
	for _, p := range parts {
		switch p {
		case "", ".":
			continue
		case "..":
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		default:
			stack = append(stack, p)
		}
	}
	return "/" + strings.Join(stack, "/")
}

// Exists reports whether path names a file in the table.
func (fs *FS) Exists(path string) bool {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if _, ok := fs.files[path]; ok {
		return true
	}
	_, ok := fs.synthesizers[path]
	return ok
}

// OpenFile returns the backing byte slice pointer for path, creating it
// if create is set. ENotFound is returned when create is false and the
// file does not exist. A synthesized path (RegisterSynthesizer) is
// recomputed into a fresh slice on every open rather than stored.
func (fs *FS) OpenFile(path string, create bool) (*[]byte, defs.Err_t) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.files == nil {
		fs.files = make(map[string]*[]byte)
	}
	data, ok := fs.files[path]
	if !ok {
		if fn, synth := fs.synthesizers[path]; synth {
			fresh := fn()
			return &fresh, 0
		}
		if !create {
			return nil, defs.ENotFound
		}
		fresh := []byte{}
		data = &fresh
		fs.files[path] = data
	}
	return data, 0
}

// WriteFile replaces the full contents of path, creating it if absent —
// the convenience entry point the shell's `write` and `install` commands
// use, as opposed to OPEN+WRITE at a cursor.
func (fs *FS) WriteFile(path string, contents []byte) defs.Err_t {
	data, err := fs.OpenFile(path, true)
	if err != 0 {
		return err
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()
	cp := make([]byte, len(contents))
	copy(cp, contents)
	*data = cp
	return 0
}

// Remove deletes path from the table.
func (fs *FS) Remove(path string) defs.Err_t {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if _, ok := fs.files[path]; !ok {
		return defs.ENotFound
	}
	delete(fs.files, path)
	return 0
}

// nameMax bounds Stat.Name the way a fixed on-wire struct must.
const nameMax = 64

// Stat is the fixed-layout {size, is_dir, name} record STAT copies out
// to the caller's output pointer, grounded on the teacher's
// stat.Stat_t "Bytes() via unsafe.Pointer cast" wire-encoding idiom.
// This filesystem has no directories, so IsDir is always 0; the field
// is carried because spec's STAT surface names it.
type Stat struct {
	Size  uint64
	IsDir uint8
	_     [7]byte // padding to keep Name 8-byte aligned
	Name  [nameMax]byte
}

// Bytes exposes the raw on-wire bytes of st for CopyToUser.
func (st *Stat) Bytes() []byte {
	const sz = unsafe.Sizeof(Stat{})
	return (*[sz]byte)(unsafe.Pointer(st))[:]
}

// StatPath builds a Stat record for path.
func (fs *FS) StatPath(path string) (Stat, defs.Err_t) {
	fs.mu.Lock()
	data, ok := fs.files[path]
	fn, synth := fs.synthesizers[path]
	fs.mu.Unlock()
	if !ok && !synth {
		return Stat{}, defs.ENotFound
	}

	var size int
	if ok {
		size = len(*data)
	} else {
		size = len(fn())
	}

	var st Stat
	st.Size = uint64(size)
	base := path
	if idx := strings.LastIndexByte(path, '/'); idx >= 0 {
		base = path[idx+1:]
	}
	n := copy(st.Name[:], base)
	_ = n
	return st, 0
}
