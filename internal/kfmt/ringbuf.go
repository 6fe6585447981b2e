// Package kfmt is the kernel's logging surface. Every subsystem writes
// through Printf/Panic rather than calling fmt directly, since a
// freestanding kernel binary has no stdout until a console driver
// attaches — early boot output is buffered in a fixed ring buffer and
// replayed once a console is available. Grounded on gopher-os's
// kernel/kfmt package (ringbuf.go, prefix_writer.go, fmt.go, panic.go);
// no general-purpose logging library (zerolog/zap/logrus) can link into
// this binary, since all of them assume an os.Stdout/os.Stderr and a
// goroutine scheduler the kernel itself has not bootstrapped yet at the
// point logging first needs to work (see DESIGN.md).
package kfmt

// ringBufferSize must be a power of two; sized to hold a standard 80x25
// text console's worth of early output.
const ringBufferSize = 2048

type ringBuffer struct {
	buf            [ringBufferSize]byte
	rIndex, wIndex int
}

func (rb *ringBuffer) Write(p []byte) (int, error) {
	for _, b := range p {
		rb.buf[rb.wIndex] = b
		rb.wIndex = (rb.wIndex + 1) & (ringBufferSize - 1)
		if rb.rIndex == rb.wIndex {
			rb.rIndex = (rb.rIndex + 1) & (ringBufferSize - 1)
		}
	}
	return len(p), nil
}

// Drain copies all buffered bytes into dst (used once a console attaches
// and wants to replay early boot output), returning the number copied.
func (rb *ringBuffer) Drain(dst []byte) int {
	n := 0
	for rb.rIndex != rb.wIndex && n < len(dst) {
		dst[n] = rb.buf[rb.rIndex]
		rb.rIndex = (rb.rIndex + 1) & (ringBufferSize - 1)
		n++
	}
	return n
}

var earlyBuffer ringBuffer
