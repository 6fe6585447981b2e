package vfs

import "testing"

func TestCanonicalize(t *testing.T) {
	cases := []struct {
		cwd, path, want string
	}{
		{"/", "tmp/x", "/tmp/x"},
		{"/tmp", "x", "/tmp/x"},
		{"/a/b", "../c", "/a/c"},
		{"/", "/a//b/./c", "/a/b/c"},
	}
	for _, c := range cases {
		got := Canonicalize(c.cwd, c.path)
		if got != c.want {
			t.Errorf("Canonicalize(%q, %q) = %q, want %q", c.cwd, c.path, got, c.want)
		}
	}
}

func TestWriteThenStatThenRemove(t *testing.T) {
	fs := &FS{}
	path := "/tmp/x"

	if fs.Exists(path) {
		t.Fatal("file should not exist yet")
	}

	if err := fs.WriteFile(path, []byte("hello world\n")); err != 0 {
		t.Fatalf("WriteFile err=%d", err)
	}

	st, err := fs.StatPath(path)
	if err != 0 {
		t.Fatalf("StatPath err=%d", err)
	}
	if st.Size != uint64(len("hello world\n")) {
		t.Fatalf("size = %d, want %d", st.Size, len("hello world\n"))
	}
	if st.IsDir != 0 {
		t.Fatal("flat filesystem has no directories")
	}

	data, err := fs.OpenFile(path, false)
	if err != 0 {
		t.Fatalf("OpenFile err=%d", err)
	}
	if string(*data) != "hello world\n" {
		t.Fatalf("contents = %q", *data)
	}

	if err := fs.Remove(path); err != 0 {
		t.Fatalf("Remove err=%d", err)
	}
	if fs.Exists(path) {
		t.Fatal("file should be gone after Remove")
	}
}

func TestOpenFileMissingWithoutCreate(t *testing.T) {
	fs := &FS{}
	_, err := fs.OpenFile("/nope", false)
	if err != -1 {
		t.Fatalf("expected ENotFound (-1), got %d", err)
	}
}

func TestStatBytesFixedLayout(t *testing.T) {
	var st Stat
	st.Size = 42
	b := st.Bytes()
	if len(b) != 16+nameMax {
		t.Fatalf("Bytes() length = %d, want %d", len(b), 16+nameMax)
	}
	if b[0] != 42 {
		t.Fatalf("expected little-endian Size byte 0 = 42, got %d", b[0])
	}
}
