package atrest

import (
	"fmt"
	"sync/atomic"

	"github.com/awnumar/memguard"

	"example.com/cryptkeeper/pkg/codec"
	"example.com/cryptkeeper/pkg/util/securemem"
)

// Enclave keeps code units encrypted under memguard's process key. Units are
// laid out big-endian inside the enclave.
type Enclave struct {
	enclave  atomic.Pointer[memguard.Enclave]
	units    int
	readOnly atomic.Bool
	disposed atomic.Bool
}

// NewEnclave seals units into a new enclave. units is zeroed on return.
func NewEnclave(units []uint16) (*Enclave, error) {
	defer securemem.WipeUnits(units)

	e := &Enclave{units: len(units)}
	if len(units) == 0 {
		return e, nil
	}
	r := securemem.NewRegion(2 * len(units))
	defer r.Destroy()
	b := r.Bytes()
	codec.PutBigEndian(b, units)
	enc := memguard.NewEnclave(b)
	if enc == nil {
		return nil, fmt.Errorf("atrest: sealing %d units failed", len(units))
	}
	e.enclave.Store(enc)
	return e, nil
}

func (e *Enclave) Len() int { return e.units }

func (e *Enclave) UnprotectInto(dst []uint16) error {
	if e.disposed.Load() {
		return ErrDisposed
	}
	if len(dst) != e.units {
		return ErrLength
	}
	if e.units == 0 {
		return nil
	}
	enc := e.enclave.Load()
	if enc == nil {
		return ErrDisposed
	}
	lb, err := enc.Open()
	if err != nil {
		return fmt.Errorf("atrest: open enclave: %w", err)
	}
	defer lb.Destroy()
	codec.ReadBigEndian(dst, lb.Bytes())
	return nil
}

// MakeReadOnly records that the value may no longer change. Enclaves are
// immutable once sealed, so this only flips the flag.
func (e *Enclave) MakeReadOnly() { e.readOnly.Store(true) }

func (e *Enclave) IsReadOnly() bool { return e.readOnly.Load() }

// Dispose drops the sealed value. memguard enclaves carry no plaintext, so
// releasing the reference is enough.
func (e *Enclave) Dispose() {
	e.disposed.Store(true)
	e.enclave.Store(nil)
}
