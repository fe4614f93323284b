// Package securemem holds plaintext in memguard locked buffers and wipes
// caller-owned memory.
//
// Locked buffers are mmap'd outside the Go heap, mlock'd and surrounded by
// guard pages, so the garbage collector never moves or copies them.
package securemem

import (
	"runtime"
	"unsafe"

	"github.com/awnumar/memguard"
)

// Region is a fixed-size block of locked memory.
type Region struct {
	buf  *memguard.LockedBuffer
	size int
}

// NewRegion allocates n bytes of zeroed locked memory. A region of size 0
// holds no memory at all.
func NewRegion(n int) *Region {
	if n < 1 {
		return &Region{}
	}
	return &Region{buf: memguard.NewBuffer(n), size: n}
}

// Bytes returns the whole region. The slice is only valid until Destroy.
func (r *Region) Bytes() []byte {
	if r.buf == nil {
		return nil
	}
	return r.buf.Bytes()
}

// String returns a string aliasing n bytes of the region starting at offset.
// The string changes when the region is wiped and must not outlive Destroy.
func (r *Region) String(offset, n int) string {
	if n < 1 || r.buf == nil {
		return ""
	}
	b := r.buf.Bytes()[offset : offset+n]
	return unsafe.String(&b[0], n)
}

func (r *Region) Size() int { return r.size }

// Alive reports whether the region still owns its memory.
func (r *Region) Alive() bool { return r.buf != nil && r.buf.IsAlive() }

// Wipe zeroes the whole region.
func (r *Region) Wipe() {
	if r.buf != nil && r.buf.IsAlive() {
		memguard.WipeBytes(r.buf.Bytes())
	}
}

// Destroy wipes the region and returns its pages to the operating system.
func (r *Region) Destroy() {
	if r.buf != nil {
		r.buf.Destroy()
	}
}

// Wipe zeroes b in place.
func Wipe(b []byte) {
	if len(b) == 0 {
		return
	}
	memguard.WipeBytes(b)
}

// WipeUnits zeroes a code unit slice in place.
func WipeUnits(u []uint16) {
	for i := range u {
		u[i] = 0
	}
	runtime.KeepAlive(u)
}

// IsZero reports whether every byte of b is zero.
func IsZero(b []byte) bool {
	var acc byte
	for _, v := range b {
		acc |= v
	}
	return acc == 0
}
