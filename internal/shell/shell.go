// Package shell is the minimal line-oriented interactive shell spec
// §1 names as out-of-scope collaborator but SPEC_FULL.md supplies as a
// thin convenience so the end-to-end scenarios in spec §8 are
// checkable: `write`, `cat`, and `install` (which materializes
// /ini/boot.sh so the boot sequence in scenario 1 has something to
// find). It is not part of the kernel ring — conceptually the image
// SPAWN loads as pid 1 — but is implemented here as an ordinary Go
// package operating directly against internal/vfs so it is host-testable
// without a running kernel.
//
// Grounded on original_source/'s usr/shell.rs command dispatch loop
// (see SPEC_FULL.md §3) and the teacher's line-oriented boot log
// conventions; this package owns none of the core substrate spec.md
// scopes in (process table, scheduler, syscall gate) and only calls
// through internal/vfs's exported surface.
package shell

import (
	"fmt"
	"io"
	"strings"

	"github.com/ulnasheyn/Chilena-microkernel/internal/vfs"
)

// BootScript is the path the boot sequence checks for (spec §8
// scenario 1): if present, its lines are the commands the shell runs
// non-interactively before handing control to the interactive prompt.
const BootScript = "/ini/boot.sh"

// Shell holds the interpreter's working directory and output sink.
// Input is line-at-a-time via RunLine rather than an io.Reader loop,
// so callers (tests, or cmd/chilena's boot-script runner) control when
// the next line is available — mirroring how READ on handle 0 is
// itself a suspension point (spec §5), not something this package
// blocks on internally.
type Shell struct {
	FS  *vfs.FS
	Cwd string
	Out io.Writer
}

// New returns a shell rooted at "/" writing to out.
func New(fs *vfs.FS, out io.Writer) *Shell {
	return &Shell{FS: fs, Cwd: "/", Out: out}
}

// HasBootScript reports whether /ini/boot.sh exists, the check spec §8
// scenario 1 performs at boot.
func HasBootScript(fs *vfs.FS) bool {
	return fs.Exists(BootScript)
}

// BootLines returns the non-empty lines of /ini/boot.sh, or nil if it
// does not exist.
func BootLines(fs *vfs.FS) []string {
	data, err := fs.OpenFile(BootScript, false)
	if err != 0 {
		return nil
	}
	var lines []string
	for _, l := range strings.Split(string(*data), "\n") {
		if l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}

// RunLine parses and executes one command line. Unrecognized commands
// print a "command not found" line to Out, matching a conventional
// shell rather than returning a Go error the caller has to format.
func (s *Shell) RunLine(line string) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return
	}
	switch fields[0] {
	case "shell":
		// Scenario 1: `shell` as the sole boot.sh line just hands off to
		// the interactive prompt already running this loop; nothing to do.
	case "install":
		s.cmdInstall()
	case "write":
		s.cmdWrite(fields[1:])
	case "cat":
		s.cmdCat(fields[1:])
	case "rm":
		s.cmdRemove(fields[1:])
	case "ps":
		s.cmdPs()
	default:
		fmt.Fprintf(s.Out, "%s: command not found\n", fields[0])
	}
}

// cmdInstall creates /ini/boot.sh containing "shell\n" (spec §8
// scenario 1's `install` command).
func (s *Shell) cmdInstall() {
	if err := s.FS.WriteFile(BootScript, []byte("shell\n")); err != 0 {
		fmt.Fprintf(s.Out, "install: %v\n", err)
	}
}

// cmdWrite implements `write PATH word...`, joining the remaining
// fields with spaces and appending a trailing newline (spec §8
// scenario 2).
func (s *Shell) cmdWrite(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(s.Out, "write: missing path")
		return
	}
	path := vfs.Canonicalize(s.Cwd, args[0])
	contents := strings.Join(args[1:], " ") + "\n"
	if err := s.FS.WriteFile(path, []byte(contents)); err != 0 {
		fmt.Fprintf(s.Out, "write: %v\n", err)
	}
}

// cmdCat implements `cat PATH`, printing the file's full contents.
func (s *Shell) cmdCat(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(s.Out, "cat: missing path")
		return
	}
	path := vfs.Canonicalize(s.Cwd, args[0])
	data, err := s.FS.OpenFile(path, false)
	if err != 0 {
		fmt.Fprintf(s.Out, "cat: %v\n", err)
		return
	}
	s.Out.Write(*data)
}

func (s *Shell) cmdRemove(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(s.Out, "rm: missing path")
		return
	}
	path := vfs.Canonicalize(s.Cwd, args[0])
	if err := s.FS.Remove(path); err != 0 {
		fmt.Fprintf(s.Out, "rm: %v\n", err)
	}
}

// profilePath is the synthesized file cmd/chilena registers over
// internal/diag's pprof export (SPEC_FULL.md §3).
const profilePath = "/sys/profile"

// cmdPs implements `ps`: OPENs and READs /sys/profile the same way any
// other file is read, reporting the size of the pprof-format accounting
// snapshot rather than dumping its gzip-compressed protobuf bytes to the
// console. There is no process listing surface below this layer besides
// the profile export; there is no separate `uptime` command.
func (s *Shell) cmdPs() {
	data, err := s.FS.OpenFile(profilePath, false)
	if err != 0 {
		fmt.Fprintf(s.Out, "ps: %v\n", err)
		return
	}
	fmt.Fprintf(s.Out, "ps: %d bytes of profile data at %s\n", len(*data), profilePath)
}
