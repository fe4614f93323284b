// Package atrest defines the protected store a secret lives in between uses,
// and provides the default memguard enclave implementation.
//
// A store holds a sequence of 16-bit code units. Binary payloads are packed
// into units by package codec; text is held as UTF-16.
package atrest

import "errors"

var (
	// ErrDisposed is returned by UnprotectInto after Dispose.
	ErrDisposed = errors.New("atrest: store disposed")
	// ErrLength is returned when a destination does not match the store.
	ErrLength = errors.New("atrest: destination length mismatch")
)

// Store is a protected value. Implementations must be safe for concurrent
// UnprotectInto calls.
type Store interface {
	// Len is the protected length in code units.
	Len() int
	// UnprotectInto writes the plaintext units into dst, which must hold
	// exactly Len units. Any intermediate plaintext is wiped before return.
	UnprotectInto(dst []uint16) error
	MakeReadOnly()
	IsReadOnly() bool
	// Dispose makes the store permanently unusable.
	Dispose()
}

// Binary is implemented by stores that know they hold a codec-packed byte
// payload and its original length.
type Binary interface {
	BinaryLength() (n int, ok bool)
}

// Protector creates stores from plaintext. Protect consumes units: they are
// zeroed before it returns, whether or not it succeeds.
type Protector interface {
	Protect(units []uint16) (Store, error)
}

// ProtectorFunc adapts a function to Protector.
type ProtectorFunc func(units []uint16) (Store, error)

func (f ProtectorFunc) Protect(units []uint16) (Store, error) { return f(units) }

// EnclaveProtector protects values in memguard enclaves.
var EnclaveProtector Protector = ProtectorFunc(func(units []uint16) (Store, error) {
	return NewEnclave(units)
})
