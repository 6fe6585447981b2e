package kfmt

import (
	"io"
	"sync"
)

// Writer is any sink kfmt can target: the early ring buffer, a VGA
// console, or a serial port.
type Writer interface {
	io.Writer
}

var (
	mu     sync.Mutex
	target Writer = &earlyBuffer
)

// SetTarget redirects future Printf output at w, first draining whatever
// the early ring buffer accumulated so no boot-time diagnostics are lost
// (gopher-os's SetOutputSink does the same hand-off).
func SetTarget(w Writer) {
	mu.Lock()
	defer mu.Unlock()

	var buf [ringBufferSize]byte
	n := earlyBuffer.Drain(buf[:])
	target = w
	if n > 0 {
		_, _ = w.Write(buf[:n])
	}
}

// Printf is a minimal, allocation-free subset of fmt.Printf safe to call
// before the Go runtime's heap is available — it never imports "fmt",
// which pulls in reflection and heap-backed formatting machinery a
// freestanding kernel cannot rely on this early (grounded on gopher-os
// kernel/kfmt/fmt.go). Supported verbs: %s, %d, %x, %t, %c, %%.
func Printf(format string, args ...interface{}) {
	mu.Lock()
	defer mu.Unlock()
	writeFormatted(target, format, args)
}

func writeFormatted(w Writer, format string, args []interface{}) {
	argi := 0
	next := func() interface{} {
		if argi >= len(args) {
			return nil
		}
		v := args[argi]
		argi++
		return v
	}

	i := 0
	for i < len(format) {
		c := format[i]
		if c != '%' || i+1 >= len(format) {
			writeByte(w, c)
			i++
			continue
		}
		verb := format[i+1]
		i += 2
		switch verb {
		case '%':
			writeByte(w, '%')
		case 's':
			writeString(w, toString(next()))
		case 'd':
			writeInt(w, toInt64(next()), 10, false)
		case 'x':
			writeInt(w, toInt64(next()), 16, false)
		case 't':
			if b, _ := next().(bool); b {
				writeString(w, "true")
			} else {
				writeString(w, "false")
			}
		case 'c':
			if v, ok := next().(rune); ok {
				writeByte(w, byte(v))
			}
		default:
			writeByte(w, '%')
			writeByte(w, verb)
		}
	}
}

func writeByte(w Writer, b byte) {
	var buf [1]byte
	buf[0] = b
	_, _ = w.Write(buf[:])
}

func writeString(w Writer, s string) {
	_, _ = w.Write([]byte(s))
}

func writeInt(w Writer, v int64, base int, _ bool) {
	if v == 0 {
		writeByte(w, '0')
		return
	}
	neg := v < 0
	u := uint64(v)
	if neg {
		u = uint64(-v)
	}
	var digits [20]byte
	n := 0
	const alphabet = "0123456789abcdef"
	for u > 0 {
		digits[n] = alphabet[u%uint64(base)]
		u /= uint64(base)
		n++
	}
	if neg {
		writeByte(w, '-')
	}
	for n > 0 {
		n--
		writeByte(w, digits[n])
	}
}

func toString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	case nil:
		return "<nil>"
	default:
		return "(unsupported)"
	}
}

func toInt64(v interface{}) int64 {
	switch t := v.(type) {
	case int:
		return int64(t)
	case int32:
		return int64(t)
	case int64:
		return t
	case uint:
		return int64(t)
	case uint32:
		return int64(t)
	case uint64:
		return int64(t)
	case uintptr:
		return int64(t)
	default:
		return 0
	}
}
