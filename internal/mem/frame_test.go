package mem

import "testing"

func freshAllocator(t *testing.T) *Allocator {
	t.Helper()
	a := &Allocator{}
	a.Init(0x1000_0000_0000, []MemoryRegion{
		{Start: 0, Length: 16 * PageSize, Usable: true},
	})
	return a
}

func TestAllocateDeallocateRoundTrip(t *testing.T) {
	a := freshAllocator(t)

	var got []Frame
	for i := 0; i < 4; i++ {
		f, ok := a.AllocateFrame()
		if !ok {
			t.Fatalf("allocation %d failed unexpectedly", i)
		}
		got = append(got, f)
	}

	seen := map[Frame]bool{}
	for _, f := range got {
		if seen[f] {
			t.Fatalf("frame %d allocated twice", f)
		}
		seen[f] = true
	}

	a.DeallocateFrame(got[1])
	f, ok := a.AllocateFrame()
	if !ok {
		t.Fatal("expected reuse of freed frame")
	}
	if f != got[1] {
		t.Fatalf("next-fit hint should favor the freed low frame: got %d want %d", f, got[1])
	}
}

func TestAllocateExhaustion(t *testing.T) {
	a := &Allocator{}
	a.Init(0x1000_0000_0000, []MemoryRegion{
		{Start: 0, Length: 4 * PageSize, Usable: true},
	})

	n := 0
	for {
		if _, ok := a.AllocateFrame(); !ok {
			break
		}
		n++
		if n > 1000 {
			t.Fatal("allocator never reported exhaustion")
		}
	}
	if n == 0 {
		t.Fatal("expected at least one successful allocation before bitmap overhead")
	}
}

func TestDoubleFreePanics(t *testing.T) {
	a := freshAllocator(t)
	f, ok := a.AllocateFrame()
	if !ok {
		t.Fatal("allocation failed")
	}
	a.DeallocateFrame(f)

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on double free")
		}
	}()
	a.DeallocateFrame(f)
}
