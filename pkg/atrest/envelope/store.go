package envelope

import (
	"fmt"
	"sync/atomic"

	"example.com/cryptkeeper/pkg/atrest"
	"example.com/cryptkeeper/pkg/codec"
	"example.com/cryptkeeper/pkg/crypto/aesocb"
	"example.com/cryptkeeper/pkg/crypto/kem/xkem"
	"example.com/cryptkeeper/pkg/util/securemem"
)

// Store is an envelope opened with an identity. Every UnprotectInto derives
// the key again and decrypts into locked memory.
type Store struct {
	env      *Envelope
	curve    xkem.Curve
	id       atomic.Pointer[Identity]
	readOnly atomic.Bool
}

var (
	_ atrest.Store  = (*Store)(nil)
	_ atrest.Binary = (*Store)(nil)
)

// Open checks that env was sealed to id and that it decrypts. The identity
// must stay alive for as long as the store is used.
func Open(env *Envelope, id *Identity) (*Store, error) {
	if env.Header.Curve != id.curve.String() || env.Header.KeyID != id.KeyID() {
		return nil, ErrKeyMismatch
	}
	s := &Store{env: env, curve: id.curve}
	s.id.Store(id)

	probe := securemem.NewRegion(2 * env.Header.Units)
	defer probe.Destroy()
	if err := s.UnprotectInto(codec.Units(probe.Bytes())); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) Len() int { return s.env.Header.Units }

// BinaryLength reports the byte length of a binary payload.
func (s *Store) BinaryLength() (int, bool) {
	if s.env.Header.Length == nil {
		return 0, false
	}
	return *s.env.Header.Length, true
}

func (s *Store) UnprotectInto(dst []uint16) error {
	id := s.id.Load()
	if id == nil {
		return atrest.ErrDisposed
	}
	if len(dst) != s.env.Header.Units {
		return atrest.ErrLength
	}
	if !id.alive() {
		return fmt.Errorf("envelope: identity %s destroyed", id.KeyID())
	}

	c := s.curve
	scratch := securemem.NewRegion(c.ShareSize() + 2*len(dst))
	defer scratch.Destroy()
	share := scratch.Bytes()[:c.ShareSize()]
	plain := scratch.Bytes()[c.ShareSize():]

	if err := xkem.Decaps(c, id.priv.Bytes(), id.pub, s.env.Header.Ephemeral, share); err != nil {
		return err
	}
	aead, err := aesocb.NewAEAD(share[:aesocb.KeySize])
	if err != nil {
		return err
	}
	// plain has exactly the capacity Open needs, so it decrypts in place.
	out, err := aead.Open(plain[:0], s.env.Header.Nonce, s.env.Ciphertext, s.env.Header.AssociatedData())
	if err != nil {
		return ErrDecrypt
	}
	codec.ReadBigEndian(dst, out)
	return nil
}

// MakeReadOnly only records the flag; an envelope cannot change once sealed.
func (s *Store) MakeReadOnly() { s.readOnly.Store(true) }

func (s *Store) IsReadOnly() bool { return s.readOnly.Load() }

// Dispose drops the reference to the identity. The identity itself belongs
// to the caller.
func (s *Store) Dispose() { s.id.Store(nil) }

// Protector returns a protector that seals new values to id, for use with
// secret.WithProtector.
func (id *Identity) Protector() atrest.Protector {
	return atrest.ProtectorFunc(func(units []uint16) (atrest.Store, error) {
		env, err := Seal(units, id.Recipient())
		if err != nil {
			return nil, err
		}
		s := &Store{env: env, curve: id.curve}
		s.id.Store(id)
		return s, nil
	})
}
