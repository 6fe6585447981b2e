package diag

import (
	"strings"
	"testing"

	"github.com/ulnasheyn/Chilena-microkernel/internal/defs"
)

func TestMarshalProfileProducesNonEmptyOutput(t *testing.T) {
	samples := []ProcessSample{
		{Pid: defs.Pid_t(1), Userns: 1000, Sysns: 200},
		{Pid: defs.Pid_t(2), Userns: 500, Sysns: 50},
	}
	data, err := MarshalProfile(samples)
	if err != nil {
		t.Fatalf("MarshalProfile: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("expected non-empty pprof bytes")
	}
}

func TestDisassembleAtHandlesGarbageBytes(t *testing.T) {
	// NOP (0x90) decodes cleanly; an empty slice must not panic.
	out := DisassembleAt(0x1000, []byte{0x90})
	if !strings.Contains(out, "0x1000") {
		t.Fatalf("expected the address in output, got %q", out)
	}
	out = DisassembleAt(0x2000, nil)
	if !strings.Contains(out, "undecodable") {
		t.Fatalf("expected an undecodable marker for empty input, got %q", out)
	}
}

func TestDemangleSymbolPassesThroughUnmangledNames(t *testing.T) {
	if got := DemangleSymbol("kmain"); got != "kmain" {
		t.Fatalf("plain symbol should pass through unchanged, got %q", got)
	}
}
