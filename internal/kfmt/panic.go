package kfmt

import "github.com/ulnasheyn/Chilena-microkernel/internal/cpu"

// haltFn is overridden by tests; in the kernel binary it is cpu.Halt.
var haltFn = cpu.Halt

// Panic prints a final diagnostic and halts the CPU. Calls to Panic never
// return. Spec §7 reserves this path for genuinely fatal events: double
// fault, GPF, stack-segment fault, segment-not-present, and a page fault
// with no pending on-demand allocation to satisfy it — syscalls never
// let a kernel panic reach user code, they return a sentinel instead.
func Panic(reason string) {
	Printf("\n-----------------------------------\n")
	Printf("kernel panic: %s\n", reason)
	Printf("-----------------------------------\n")
	for {
		haltFn()
	}
}
