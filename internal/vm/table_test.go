package vm

import (
	"testing"
	"unsafe"

	"github.com/ulnasheyn/Chilena-microkernel/internal/defs"
	"github.com/ulnasheyn/Chilena-microkernel/internal/mem"
)

// fakePhysical backs a mem.Allocator with a host-side byte array standing
// in for physical memory, so page tables can be built and walked without
// real hardware. This is the same trick the teacher's tests use when
// faking pmap pages (vm/as.go's reliance on mem.Physmem.Dmap is exercised
// here against a plain Go slice instead of the direct-mapped window).
func fakePhysical(t *testing.T, frames int) *mem.Allocator {
	t.Helper()
	backing := make([]byte, frames*mem.PageSize)
	base := uintptr(unsafe.Pointer(&backing[0]))

	a := &mem.Allocator{}
	a.Init(base, []mem.MemoryRegion{
		{Start: 0, Length: uint64(frames * mem.PageSize), Usable: true},
	})
	return a
}

func TestMapUnmapRangeRoundTrip(t *testing.T) {
	alloc := fakePhysical(t, 64)

	kernelRoot, ok := alloc.AllocateFrame()
	if !ok {
		t.Fatal("could not allocate kernel root")
	}
	kernel := New(alloc, kernelRoot)
	// kernel table itself must exist (even if empty) before processes
	// shallow-copy it.
	_ = kernel

	as, ok := NewFromKernel(alloc, kernelRoot)
	if !ok {
		t.Fatal("NewFromKernel failed")
	}

	const base = uintptr(defs.UserBase)
	mapped := as.MapRange(base, 4, UserFlags)
	if mapped != 4 {
		t.Fatalf("expected 4 pages mapped, got %d", mapped)
	}

	for i := 0; i < 4; i++ {
		va := base + uintptr(i)*mem.PageSize
		if _, ok := as.Translate(va); !ok {
			t.Fatalf("page %d should be mapped", i)
		}
	}

	payload := []byte("hello, process")
	if err := as.CopyToUser(base, payload); err != 0 {
		t.Fatalf("CopyToUser failed: %v", err)
	}
	got := make([]byte, len(payload))
	if err := as.CopyFromUser(got, base); err != 0 {
		t.Fatalf("CopyFromUser failed: %v", err)
	}
	if string(got) != string(payload) {
		t.Fatalf("round trip mismatch: got %q want %q", got, payload)
	}

	as.UnmapRange(base, 4*mem.PageSize)
	for i := 0; i < 4; i++ {
		va := base + uintptr(i)*mem.PageSize
		if _, ok := as.Translate(va); ok {
			t.Fatalf("page %d should be unmapped", i)
		}
	}
}

func TestValidateUserRange(t *testing.T) {
	lo, hi := defs.UserRange()

	cases := []struct {
		name       string
		ptr, n     uint64
		wantValid  bool
	}{
		{"inside", uint64(lo), 16, true},
		{"exactly at top", uint64(hi) - 16, 16, true},
		{"past top", uint64(hi) - 8, 16, false},
		{"below base", uint64(lo) - 8, 16, false},
		{"overflow", ^uint64(0) - 4, 16, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := ValidateUserRange(c.ptr, c.n); got != c.wantValid {
				t.Fatalf("ValidateUserRange(%#x, %d) = %v, want %v", c.ptr, c.n, got, c.wantValid)
			}
		})
	}
}
