// Package agestore keeps a protected value as an age-encrypted file, so
// values sealed with the age tooling can be adopted by package secret.
//
// The plaintext of the age file is the value's code units in big-endian
// order. The private key lives in locked memory; each UnprotectInto decrypts
// the file again.
package agestore

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"filippo.io/age"
	"filippo.io/age/armor"

	"example.com/cryptkeeper/pkg/atrest"
	"example.com/cryptkeeper/pkg/codec"
	"example.com/cryptkeeper/pkg/util/securemem"
)

// Encrypt seals units to the given age X25519 recipients (age1... strings)
// and returns ASCII-armored ciphertext. units is zeroed before Encrypt
// returns.
func Encrypt(units []uint16, recipientKeys ...string) ([]byte, error) {
	defer securemem.WipeUnits(units)
	if len(recipientKeys) == 0 {
		return nil, errors.New("agestore: at least one recipient is required")
	}
	recipients := make([]age.Recipient, 0, len(recipientKeys))
	for _, key := range recipientKeys {
		r, err := age.ParseX25519Recipient(key)
		if err != nil {
			return nil, fmt.Errorf("agestore: parsing recipient %q: %w", key, err)
		}
		recipients = append(recipients, r)
	}

	plain := securemem.NewRegion(2 * len(units))
	defer plain.Destroy()
	codec.PutBigEndian(plain.Bytes(), units)

	var buf bytes.Buffer
	aw := armor.NewWriter(&buf)
	w, err := age.Encrypt(aw, recipients...)
	if err != nil {
		return nil, fmt.Errorf("agestore: creating encryptor: %w", err)
	}
	if _, err := w.Write(plain.Bytes()); err != nil {
		return nil, fmt.Errorf("agestore: encrypting: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("agestore: finalizing: %w", err)
	}
	if err := aw.Close(); err != nil {
		return nil, fmt.Errorf("agestore: armor: %w", err)
	}
	return buf.Bytes(), nil
}

// Store is an age ciphertext together with the identity that opens it.
type Store struct {
	ciphertext []byte
	units      int
	readOnly   atomic.Bool
	disposed   atomic.Bool

	// mu keeps Dispose from unmapping the identity while it is parsed.
	mu       sync.RWMutex
	identity *securemem.Region
}

var _ atrest.Store = (*Store)(nil)

// Open takes an armored or binary age file and an AGE-SECRET-KEY-1...
// identity. The identity is copied into locked memory and wiped. Open
// decrypts once to validate the file and learn its length.
func Open(ciphertext, identity []byte) (*Store, error) {
	defer securemem.Wipe(identity)
	key := bytes.TrimSpace(identity)
	region := securemem.NewRegion(len(key))
	copy(region.Bytes(), key)

	s := &Store{ciphertext: bytes.Clone(ciphertext), identity: region}
	r, err := s.decrypt()
	if err != nil {
		region.Destroy()
		return nil, err
	}
	n, err := io.Copy(wiper{}, r)
	if err != nil {
		region.Destroy()
		return nil, fmt.Errorf("agestore: decrypting: %w", err)
	}
	if n%2 != 0 {
		region.Destroy()
		return nil, fmt.Errorf("agestore: odd plaintext length %d", n)
	}
	s.units = int(n / 2)
	return s, nil
}

func (s *Store) decrypt() (io.Reader, error) {
	s.mu.RLock()
	if s.disposed.Load() {
		s.mu.RUnlock()
		return nil, atrest.ErrDisposed
	}
	id, err := age.ParseX25519Identity(s.identity.String(0, s.identity.Size()))
	s.mu.RUnlock()
	if err != nil {
		return nil, fmt.Errorf("agestore: parsing identity: %w", err)
	}
	var src io.Reader = bytes.NewReader(s.ciphertext)
	if bytes.HasPrefix(bytes.TrimSpace(s.ciphertext), []byte(armor.Header)) {
		src = armor.NewReader(src)
	}
	r, err := age.Decrypt(src, id)
	if err != nil {
		return nil, fmt.Errorf("agestore: decrypting: %w", err)
	}
	return r, nil
}

func (s *Store) Len() int { return s.units }

func (s *Store) UnprotectInto(dst []uint16) error {
	if s.disposed.Load() {
		return atrest.ErrDisposed
	}
	if len(dst) != s.units {
		return atrest.ErrLength
	}
	r, err := s.decrypt()
	if err != nil {
		return err
	}
	plain := securemem.NewRegion(2 * s.units)
	defer plain.Destroy()
	if _, err := io.ReadFull(r, plain.Bytes()); err != nil {
		return fmt.Errorf("agestore: reading plaintext: %w", err)
	}
	codec.ReadBigEndian(dst, plain.Bytes())
	return nil
}

func (s *Store) MakeReadOnly() { s.readOnly.Store(true) }

func (s *Store) IsReadOnly() bool { return s.readOnly.Load() }

// Dispose destroys the identity. The ciphertext alone reveals nothing.
func (s *Store) Dispose() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed.CompareAndSwap(false, true) {
		s.identity.Destroy()
	}
}

// wiper discards what it is given after zeroing it.
type wiper struct{}

func (wiper) Write(p []byte) (int, error) {
	securemem.Wipe(p)
	return len(p), nil
}
