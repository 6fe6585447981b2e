package kfmt

import "golang.org/x/text/encoding/charmap"

// VGAWriter writes UTF-8 text into a VGA text-mode buffer, re-encoding it
// to CP437 — the glyph set VGA text mode actually addresses — via
// golang.org/x/text/encoding/charmap. The VGA buffer itself is a
// collaborator outside this module's scope (spec §1); this writer is the
// thin seam kfmt needs to talk to it.
type VGAWriter struct {
	buffer []byte // 2 bytes/cell: character, attribute
	cols   int
	row    int
	col    int
	attr   byte
}

// NewVGAWriter wraps a raw VGA text buffer (typically the direct-mapped
// view of physical address 0xB8000) of the given dimensions.
func NewVGAWriter(buffer []byte, cols, rows int, attr byte) *VGAWriter {
	_ = rows
	return &VGAWriter{buffer: buffer, cols: cols, attr: attr}
}

// Write implements io.Writer, transcoding to CP437 and scrolling the
// buffer when output reaches the bottom row.
func (v *VGAWriter) Write(p []byte) (int, error) {
	encoded, err := charmap.CodePage437.NewEncoder().Bytes(p)
	if err != nil {
		// CP437 cannot represent every Unicode code point; fall back to
		// '?' for anything the encoder rejects rather than dropping the
		// whole write.
		encoded = substituteUnmappable(p)
	}
	for _, b := range encoded {
		v.putChar(b)
	}
	return len(p), nil
}

func substituteUnmappable(p []byte) []byte {
	out := make([]byte, 0, len(p))
	enc := charmap.CodePage437.NewEncoder()
	for _, r := range string(p) {
		if b, err := enc.Bytes([]byte(string(r))); err == nil {
			out = append(out, b...)
		} else {
			out = append(out, '?')
		}
	}
	return out
}

func (v *VGAWriter) putChar(c byte) {
	if c == '\n' {
		v.col = 0
		v.row++
	} else {
		idx := (v.row*v.cols + v.col) * 2
		if idx+1 < len(v.buffer) {
			v.buffer[idx] = c
			v.buffer[idx+1] = v.attr
		}
		v.col++
		if v.col >= v.cols {
			v.col = 0
			v.row++
		}
	}
	maxRows := len(v.buffer) / 2 / v.cols
	if v.row >= maxRows {
		v.scroll(maxRows)
	}
}

func (v *VGAWriter) scroll(maxRows int) {
	rowBytes := v.cols * 2
	copy(v.buffer, v.buffer[rowBytes:])
	blank := v.buffer[len(v.buffer)-rowBytes:]
	for i := range blank {
		if i%2 == 0 {
			blank[i] = ' '
		} else {
			blank[i] = v.attr
		}
	}
	v.row = maxRows - 1
}
