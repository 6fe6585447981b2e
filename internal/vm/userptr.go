package vm

import (
	"github.com/ulnasheyn/Chilena-microkernel/internal/defs"
	"github.com/ulnasheyn/Chilena-microkernel/internal/mem"
)

// CopyFromUser copies len(dst) bytes from the user virtual address uva in
// address space as into dst. Grounded on the teacher's User2k/Userdmap8r
// pair (vm/as.go): resolve each touched page through the page table, not
// the direct map wholesale, since a user range may straddle unmapped
// guard pages.
func (as *AddressSpace) CopyFromUser(dst []byte, uva uintptr) defs.Err_t {
	off := 0
	for off < len(dst) {
		va := uva + uintptr(off)
		pa, ok := as.Translate(va)
		if !ok {
			return defs.EInvalidArg
		}
		pageOff := int(va) & (mem.PageSize - 1)
		n := mem.PageSize - pageOff
		if rem := len(dst) - off; n > rem {
			n = rem
		}
		src := as.alloc.DmapBytes(pa, n)
		copy(dst[off:off+n], src)
		off += n
	}
	return defs.Success
}

// CopyToUser copies src into the user virtual address space of as
// starting at uva, mirroring the teacher's K2user.
func (as *AddressSpace) CopyToUser(uva uintptr, src []byte) defs.Err_t {
	off := 0
	for off < len(src) {
		va := uva + uintptr(off)
		pa, ok := as.Translate(va)
		if !ok {
			return defs.EInvalidArg
		}
		pageOff := int(va) & (mem.PageSize - 1)
		n := mem.PageSize - pageOff
		if rem := len(src) - off; n > rem {
			n = rem
		}
		dst := as.alloc.DmapBytes(pa, n)
		copy(dst, src[off:off+n])
		off += n
	}
	return defs.Success
}

// ReadUserCString copies a NUL-terminated string from user space, up to
// maxLen bytes, mirroring the teacher's Userstr.
func (as *AddressSpace) ReadUserCString(uva uintptr, maxLen int) (string, defs.Err_t) {
	buf := make([]byte, 0, 64)
	for i := 0; i < maxLen; i++ {
		var b [1]byte
		if err := as.CopyFromUser(b[:], uva+uintptr(i)); err != 0 {
			return "", err
		}
		if b[0] == 0 {
			return string(buf), defs.Success
		}
		buf = append(buf, b[0])
	}
	return "", defs.EInvalidArg
}
