package proc

import (
	"bytes"
	"debug/elf"
	"encoding/binary"

	"github.com/ulnasheyn/Chilena-microkernel/internal/cpu"
	"github.com/ulnasheyn/Chilena-microkernel/internal/defs"
	"github.com/ulnasheyn/Chilena-microkernel/internal/device"
	"github.com/ulnasheyn/Chilena-microkernel/internal/vm"
)

// descriptorSize is sizeof(ptr, len) for the argv descriptor array
// marshalled into the child's address space (spec §4.4 step 6).
const descriptorSize = 16

// Spawn implements the nine steps of process creation (spec §4.4). On
// success it rewrites frame and regs in place to perform the inter-ring
// return directly into the child and does not return to the caller's
// syscall return path (the caller's frame and registers are saved in its
// slot for Terminate to restore; its block state is left unchanged).
// On failure it leaves frame/regs untouched and returns
// EExecError so the syscall dispatcher can report it to the caller
// normally.
func (t *Table) Spawn(callerPid defs.Pid_t, frame *cpu.InterruptFrame, regs *cpu.Registers, binary []byte, argv [][]byte) defs.Err_t {
	if len(binary) < 4 {
		return defs.EExecError
	}

	t.mu.Lock()
	pid, ok := t.allocSlot()
	if !ok {
		t.mu.Unlock()
		return defs.EExecError
	}
	k := int(pid) - 1
	// Claim the slot immediately so a concurrent SPAWN cannot race onto
	// the same index; a failure past this point rolls the claim back.
	t.procs[pid].ID = pid
	t.mu.Unlock()

	committed := false
	defer func() {
		if !committed {
			t.mu.Lock()
			t.procs[pid].reset()
			t.mu.Unlock()
		}
	}()

	as, allocOk := vm.NewFromKernel(t.Alloc, t.KernelRoot)
	if !allocOk {
		return defs.EExecError
	}

	codeBase := codeBaseFor(k)
	entryPoint, symbols, loadErr := loadImage(as, codeBase, binary)
	if loadErr != defs.Success {
		abortSpawn(as, codeBase)
		return loadErr
	}

	stackBase := codeBase + defs.MaxProcMem - defs.PageSize

	argsBase := codeBase + (stackBase-codeBase)/2
	argvPtr, argvLen, argErr := marshalArgv(as, argsBase, argv)
	if argErr != defs.Success {
		abortSpawn(as, codeBase)
		return argErr
	}

	heapLo := argsBase + pagesFor(argvBytesNeeded(argv)) + defs.PageSize
	heapHi := codeBase + (stackBase-codeBase)/2 + (stackBase-argsBase)/2

	t.mu.Lock()
	parent := &t.procs[callerPid]
	parent.SavedFrame = &cpu.InterruptFrame{
		RIP: frame.RIP, CS: frame.CS, RFlags: frame.RFlags, RSP: frame.RSP, SS: frame.SS,
	}
	parent.SavedRegs = *regs

	child := &t.procs[pid]
	child.ID = pid
	child.ParentID = callerPid
	child.AS = as
	child.CodeBase = codeBase
	child.StackBase = stackBase
	child.EntryPoint = entryPoint
	child.Symbols = symbols
	child.HeapLo, child.HeapNext, child.HeapHi = heapLo, heapLo, heapHi
	child.HeapMapped = heapLo
	child.Cwd = "/"
	child.Env = map[string]string{}
	child.Block = Running
	var c0, c1, c2 device.Console
	var n3 device.Null
	child.Handles[0], child.Handles[1], child.Handles[2], child.Handles[3] = c0, c1, c2, n3

	t.activeCount++
	t.mu.Unlock()

	// Write the new page-table root before publishing the new current
	// pid (spec §9 "Control-register vs. process-table disagreement"):
	// anything that runs in between must still see the old pid, and it
	// will correctly derive "old" address space from CR3.
	as.Activate()
	t.setCurrentPid(pid)
	frame.RIP = uint64(codeBase + entryPoint)
	frame.CS = cpu.UserCS
	frame.RFlags = cpu.RFlagsIF
	frame.RSP = uint64(stackBase)
	frame.SS = cpu.UserDS
	*regs = cpu.Registers{RDI: argvPtr, RSI: argvLen}

	committed = true
	return defs.Success
}

// abortSpawn tears down a partially-built address space on a failed
// spawn, the same two-step teardown terminate.go uses (UnmapRange before
// Free): loadImage/marshalArgv may already have mapped pages anywhere in
// [codeBase, codeBase+MaxProcMem) via MapRange, and each of those pages
// owns a frame (plus whatever intermediate tables walkEntry created for
// it) that as.Free alone never reclaims — only the PML4 frame itself.
// UnmapRange is idempotent over pages that were never mapped, so this is
// safe to call regardless of how far loading got before it failed.
func abortSpawn(as *vm.AddressSpace, codeBase uintptr) {
	as.UnmapRange(codeBase, defs.MaxProcMem)
	as.Free()
}

// Symbol is one resolved entry from a loaded ELF image's symbol table,
// captured at spawn time (codeBase already folded into Value) so kernel
// panic output can name the function a faulting RIP landed in without
// re-parsing the original binary (internal/diag's DemangleSymbol is the
// consumer, wired from cmd/chilena's fatal-fault handler). Flat "CHN"
// images carry no symbol table and spawn with a nil slice.
type Symbol struct {
	Name  string
	Value uintptr
	Size  uint64
}

// loadImage recognizes the binary's leading magic and loads it into as
// at codeBase, returning the entry point address (relative to
// codeBase for CHN, absolute-in-ELF translated the same way) and any
// symbol table the image carries.
func loadImage(as *vm.AddressSpace, codeBase uintptr, binary []byte) (uintptr, []Symbol, defs.Err_t) {
	switch {
	case bytes.Equal(binary[:4], defs.MagicELF[:]):
		return loadELF(as, codeBase, binary)
	case bytes.Equal(binary[:4], defs.MagicCHN[:]):
		entry, err := loadFlat(as, codeBase, binary)
		return entry, nil, err
	default:
		return 0, nil, defs.EExecError
	}
}

func loadFlat(as *vm.AddressSpace, codeBase uintptr, binary []byte) (uintptr, defs.Err_t) {
	payload := binary[4:]
	if !mapAndCopy(as, codeBase, payload, len(payload)) {
		return 0, defs.EExecError
	}
	return 0, defs.Success
}

func loadELF(as *vm.AddressSpace, codeBase uintptr, binary []byte) (uintptr, []Symbol, defs.Err_t) {
	f, err := elf.NewFile(bytes.NewReader(binary))
	if err != nil {
		return 0, nil, defs.EExecError
	}
	defer f.Close()

	for _, prog := range f.Progs {
		if prog.Type != elf.PT_LOAD {
			continue
		}
		payload := make([]byte, prog.Filesz)
		if _, err := prog.ReadAt(payload, 0); err != nil {
			return 0, nil, defs.EExecError
		}
		segVA := codeBase + uintptr(prog.Vaddr)
		if !mapAndCopy(as, segVA, payload, int(prog.Memsz)) {
			return 0, nil, defs.EExecError
		}
	}

	// f.Symbols returns ErrNoSymbols for a stripped image; that is not a
	// load failure, just nothing for DemangleSymbol to ever resolve.
	var symbols []Symbol
	if elfSyms, serr := f.Symbols(); serr == nil {
		for _, s := range elfSyms {
			if elf.ST_TYPE(s.Info) != elf.STT_FUNC || s.Value == 0 {
				continue
			}
			symbols = append(symbols, Symbol{
				Name:  s.Name,
				Value: codeBase + uintptr(s.Value),
				Size:  s.Size,
			})
		}
	}

	return uintptr(f.Entry), symbols, defs.Success
}

// mapAndCopy maps enough pages at va to hold totalSize bytes, copies
// payload in, and zero-fills any tail beyond len(payload) up to
// totalSize (spec §4.4 step 4).
func mapAndCopy(as *vm.AddressSpace, va uintptr, payload []byte, totalSize int) bool {
	pageAligned := va &^ (defs.PageSize - 1)
	skew := int(va - pageAligned)
	pages := (skew + totalSize + defs.PageSize - 1) / defs.PageSize
	if as.MapRange(pageAligned, pages, vm.UserFlags) != pages {
		return false
	}
	if len(payload) > 0 {
		if as.CopyToUser(va, payload) != defs.Success {
			return false
		}
	}
	if totalSize > len(payload) {
		zeros := make([]byte, totalSize-len(payload))
		if as.CopyToUser(va+uintptr(len(payload)), zeros) != defs.Success {
			return false
		}
	}
	return true
}

// argvBytesNeeded computes sum(len(arg)) + a descriptor array entry per
// argument (spec §4.4 step 6). Alignment padding is folded into the
// fixed 16-byte descriptor stride.
func argvBytesNeeded(argv [][]byte) int {
	total := 0
	for _, a := range argv {
		total += len(a)
	}
	return total + len(argv)*descriptorSize
}

func pagesFor(n int) uintptr {
	return uintptr((n + defs.PageSize - 1) / defs.PageSize * defs.PageSize)
}

// marshalArgv copies argument bytes contiguously into the child's
// address space at argsBase, followed by an aligned array of (ptr, len)
// descriptors, and returns the descriptor array's address and count —
// the argv the entry point receives (spec §4.4 step 6).
func marshalArgv(as *vm.AddressSpace, argsBase uintptr, argv [][]byte) (ptr, length uint64, err defs.Err_t) {
	needed := argvBytesNeeded(argv)
	pages := int(pagesFor(needed)) / defs.PageSize
	if pages == 0 {
		pages = 1
	}
	if as.MapRange(argsBase, pages, vm.UserFlags) != pages {
		return 0, 0, defs.EExecError
	}

	bytesOff := uintptr(0)
	descriptors := make([]byte, len(argv)*descriptorSize)
	for i, a := range argv {
		argVA := argsBase + bytesOff
		if len(a) > 0 {
			if as.CopyToUser(argVA, a) != defs.Success {
				return 0, 0, defs.EExecError
			}
		}
		binary.LittleEndian.PutUint64(descriptors[i*descriptorSize:], uint64(argVA))
		binary.LittleEndian.PutUint64(descriptors[i*descriptorSize+8:], uint64(len(a)))
		bytesOff += uintptr(len(a))
	}

	descVA := argsBase + bytesOff
	if len(descriptors) > 0 {
		if as.CopyToUser(descVA, descriptors) != defs.Success {
			return 0, 0, defs.EExecError
		}
	}
	return uint64(descVA), uint64(len(argv)), defs.Success
}
