package device

import "testing"

func TestConsoleReadShapes(t *testing.T) {
	consoleLines.pending = nil
	consoleLines.current = nil

	PushLine([]byte("hi\n"))

	var c Console

	small := make([]byte, 4)
	n, err := c.Read(small)
	if err != 0 || n != 1 {
		t.Fatalf("short read: n=%d err=%d", n, err)
	}
	if small[0] != 'h' {
		t.Fatalf("expected first byte 'h', got %q", small[0])
	}

	big := make([]byte, 16)
	n, err = c.Read(big)
	if err != 0 || n != 2 {
		t.Fatalf("long read: n=%d err=%d", n, err)
	}
	if string(big[:n]) != "i\n" {
		t.Fatalf("expected remainder of line, got %q", big[:n])
	}
}

func TestConsoleReadWouldBlock(t *testing.T) {
	consoleLines.pending = nil
	consoleLines.current = nil

	var c Console
	_, err := c.Read(make([]byte, 16))
	if !WouldBlock(err) {
		t.Fatalf("expected would-block sentinel, got %d", err)
	}
}

func TestNullDevice(t *testing.T) {
	var n Null
	if !n.Poll() {
		t.Fatal("null device must always be ready")
	}
	count, err := n.Write([]byte("discarded"))
	if err != 0 || count != len("discarded") {
		t.Fatalf("write: n=%d err=%d", count, err)
	}
	buf := make([]byte, 8)
	count, err = n.Read(buf)
	if err != 0 || count != 0 {
		t.Fatalf("read: expected immediate EOF, got n=%d err=%d", count, err)
	}
}

func TestMemFileWriteThenRead(t *testing.T) {
	data := []byte{}
	f := NewMemFile(&data)

	n, err := f.Write([]byte("hello world"))
	if err != 0 || n != 11 {
		t.Fatalf("write: n=%d err=%d", n, err)
	}
	if f.Size() != 11 {
		t.Fatalf("size = %d, want 11", f.Size())
	}

	buf := make([]byte, 32)
	n, err = f.Read(buf)
	if err != 0 {
		t.Fatalf("read err=%d", err)
	}
	if string(buf[:n]) != "hello world" {
		t.Fatalf("read back %q", buf[:n])
	}

	n, err = f.Read(buf)
	if err != 0 || n != 0 {
		t.Fatalf("expected EOF at end of file, got n=%d err=%d", n, err)
	}
}

func TestMemFileDupIndependentCursor(t *testing.T) {
	data := []byte("abcdef")
	f := NewMemFile(&data)

	buf := make([]byte, 3)
	if _, err := f.Read(buf); err != 0 {
		t.Fatalf("read err=%d", err)
	}

	dupHandle, err := f.Dup()
	if err != 0 {
		t.Fatalf("dup err=%d", err)
	}
	dup := dupHandle.(*MemFile)

	full := make([]byte, 6)
	n, err := dup.Read(full)
	if err != 0 || n != 6 || string(full) != "abcdef" {
		t.Fatalf("dup should read from the start, got n=%d err=%d buf=%q", n, err, full[:n])
	}
}
