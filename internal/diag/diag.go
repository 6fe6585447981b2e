// Package diag provides kernel diagnostics that are not themselves
// part of the core process/scheduling substrate but consume it: a
// pprof-format export of per-process accounting, readable through the
// VFS at /sys/profile (an enrichment from original_source/'s
// usr/info.rs, see SPEC_FULL.md §3), and a crash-dump disassembler
// used by kernel panic output to show the instruction at a faulting
// RIP.
//
// Grounded on the teacher's stats/stats.go (per-component counters
// collected into a report) and accnt.Accnt_t's Userns/Sysns fields,
// re-exported in pprof's wire format instead of the teacher's plain
// text dump so the data is consumable by any standard pprof tool.
package diag

import (
	"bytes"
	"fmt"

	"github.com/google/pprof/profile"
	"github.com/ianlancetaylor/demangle"
	"golang.org/x/arch/x86/x86asm"

	"github.com/ulnasheyn/Chilena-microkernel/internal/defs"
)

// ProcessSample is the subset of a process record the profile exporter
// needs: identity plus accounted user/system nanoseconds. Kept decoupled
// from proc.Process so this package never imports proc (proc already
// depends on cpu/vm/device/mem; diag sits above all of them and is
// imported only by cmd/chilena).
type ProcessSample struct {
	Pid    defs.Pid_t
	Userns int64
	Sysns  int64
}

// userSampleType and sysSampleType are the two pprof sample types this
// export carries, mirroring how a CPU profile splits "samples"/"cpu".
var (
	userSampleType = &profile.ValueType{Type: "user", Unit: "nanoseconds"}
	sysSampleType  = &profile.ValueType{Type: "sys", Unit: "nanoseconds"}
)

// ExportProfile builds a pprof Profile with one sample per live
// process, each carrying that process's user/system time as a single
// "location" named by its pid — there is no call-stack symbolication
// available at this layer, so each process is its own flat leaf.
func ExportProfile(samples []ProcessSample) *profile.Profile {
	p := &profile.Profile{
		SampleType: []*profile.ValueType{userSampleType, sysSampleType},
		PeriodType: userSampleType,
		Period:     1,
	}

	for i, s := range samples {
		fn := &profile.Function{
			ID:   uint64(i + 1),
			Name: fmt.Sprintf("pid-%d", s.Pid),
		}
		loc := &profile.Location{
			ID:   uint64(i + 1),
			Line: []profile.Line{{Function: fn, Line: 0}},
		}
		p.Function = append(p.Function, fn)
		p.Location = append(p.Location, loc)
		p.Sample = append(p.Sample, &profile.Sample{
			Location: []*profile.Location{loc},
			Value:    []int64{s.Userns, s.Sysns},
		})
	}
	return p
}

// MarshalProfile serializes samples to the gzip-compressed protobuf
// wire format pprof tooling expects, the bytes internal/vfs's
// /sys/profile entry is backed by.
func MarshalProfile(samples []ProcessSample) ([]byte, error) {
	var buf bytes.Buffer
	if err := ExportProfile(samples).Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DisassembleAt decodes the single x86_64 instruction at the start of
// code and returns a human-readable line for kernel panic output
// (spec §7: "panics the kernel with the faulting frame"). It never
// panics itself on malformed bytes — a disassembler failing during
// crash reporting must not itself crash the reporter.
func DisassembleAt(rip uintptr, code []byte) string {
	inst, err := x86asm.Decode(code, 64)
	if err != nil {
		return fmt.Sprintf("%#x: <undecodable: %v>", rip, err)
	}
	return fmt.Sprintf("%#x: %s", rip, inst.String())
}

// DemangleSymbol demangles a C++-style mangled symbol name that may
// appear in an ELF binary's symbol table, for panic backtraces that
// walk through a loaded user image (spec.md's SPAWN handles ELF64
// binaries; their symbol names are not translated anywhere else in
// the kernel). Names demangle can't recognize are returned unchanged.
func DemangleSymbol(name string) string {
	return demangle.Filter(name)
}
