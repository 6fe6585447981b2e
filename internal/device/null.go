package device

import "github.com/ulnasheyn/Chilena-microkernel/internal/defs"

// Null is handle 3: reads always return EOF, writes always succeed and
// discard their payload.
type Null struct{}

func (Null) Read([]byte) (int, defs.Err_t)  { return 0, 0 }
func (Null) Write(buf []byte) (int, defs.Err_t) { return len(buf), 0 }
func (Null) Close() defs.Err_t              { return 0 }
func (Null) Poll() bool                     { return true }
func (Null) Kind() Kind                     { return KindNull }
func (n Null) Dup() (Handle, defs.Err_t)    { return n, 0 }
