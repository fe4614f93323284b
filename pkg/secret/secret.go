package secret

import (
	"fmt"
	"log/slog"
	"runtime"
	"sync/atomic"
	"unicode/utf8"

	"example.com/cryptkeeper/pkg/atrest"
	"example.com/cryptkeeper/pkg/codec"
	"example.com/cryptkeeper/pkg/pool"
	"example.com/cryptkeeper/pkg/util/securemem"
)

const (
	// MaxBytes is the largest binary payload FromBytes accepts.
	MaxBytes = 2048
	// MaxTextUnits is the largest text FromText accepts, in UTF-16 code units.
	MaxTextUnits = 1024
)

type kind uint8

const (
	kindBinary kind = iota
	kindText
)

// Secret owns one protected value and mediates every access to its
// plaintext.
type Secret struct {
	res      *resources
	kind     kind
	size     int
	units    int
	disposed atomic.Bool
	logger   *slog.Logger
	cleanup  runtime.Cleanup
}

// resources are the parts of a Secret a GC cleanup may release. They must
// not point back at the Secret.
type resources struct {
	store     atrest.Store
	bytesPool *pool.Pool
	textPool  *pool.Pool
}

func (r *resources) release() {
	r.store.Dispose()
	r.bytesPool.Close()
	r.textPool.Close()
}

// Stats reports activity of the secret's two pools.
type Stats struct {
	Bytes pool.Stats
	Text  pool.Stats
}

// FromBytes protects a binary payload of at most MaxBytes bytes. value is
// zeroed before FromBytes returns, whatever the outcome.
func FromBytes(value []byte, opts ...Option) (*Secret, error) {
	if value == nil {
		return nil, ErrNullInput
	}
	defer securemem.Wipe(value)
	if len(value) > MaxBytes {
		return nil, fmt.Errorf("%w: %d bytes, max %d", ErrSizeExceeded, len(value), MaxBytes)
	}
	cfg := newConfig(opts)

	scratch := securemem.NewRegion(2 * codec.PackedLen(len(value)))
	defer scratch.Destroy()
	units := codec.Units(scratch.Bytes())
	codec.Pack(units, value)
	securemem.Wipe(value)

	store, err := cfg.protector.Protect(units)
	if err != nil {
		return nil, fmt.Errorf("secret: protect: %w", err)
	}
	return newSecret(store, kindBinary, len(value), cfg), nil
}

// FromText protects UTF-8 text of at most MaxTextUnits UTF-16 code units.
// Text arrives as a byte slice because Go strings cannot be wiped; value is
// zeroed before FromText returns, whatever the outcome.
func FromText(value []byte, opts ...Option) (*Secret, error) {
	if value == nil {
		return nil, ErrNullInput
	}
	defer securemem.Wipe(value)
	if !utf8.Valid(value) {
		return nil, ErrInvalidText
	}
	n := codec.UTF16Len(value)
	if n > MaxTextUnits {
		return nil, fmt.Errorf("%w: %d code units, max %d", ErrSizeExceeded, n, MaxTextUnits)
	}
	cfg := newConfig(opts)

	scratch := securemem.NewRegion(2 * n)
	defer scratch.Destroy()
	units := codec.Units(scratch.Bytes())
	codec.EncodeUTF16(units, value)
	securemem.Wipe(value)

	store, err := cfg.protector.Protect(units)
	if err != nil {
		return nil, fmt.Errorf("secret: protect: %w", err)
	}
	return newSecret(store, kindText, n, cfg), nil
}

// FromProtectedValue adopts a store that already protects a value. No
// plaintext passes through this path. The store is made read-only and from
// then on belongs to the Secret.
//
// The value is treated as text unless WithBinaryLength is given or the store
// implements atrest.Binary.
func FromProtectedValue(store atrest.Store, opts ...Option) (*Secret, error) {
	if store == nil {
		return nil, ErrNullInput
	}
	cfg := newConfig(opts)

	n, binary := cfg.binaryLength, cfg.binary
	if b, ok := store.(atrest.Binary); ok && !binary {
		n, binary = b.BinaryLength()
	}
	if !binary {
		return newSecret(store, kindText, store.Len(), cfg), nil
	}
	if n < 0 || codec.PackedLen(n) != store.Len() {
		return nil, fmt.Errorf("%w: binary length %d does not fit %d units", ErrSizeExceeded, n, store.Len())
	}
	return newSecret(store, kindBinary, n, cfg), nil
}

func newSecret(store atrest.Store, k kind, size int, cfg config) *Secret {
	if !store.IsReadOnly() {
		store.MakeReadOnly()
	}
	units := store.Len()
	slotSize := slotSizeFor(k, units)
	logger := cfg.logger.With("component", "secret")
	s := &Secret{
		res: &resources{
			store:     store,
			bytesPool: pool.New("bytes", cfg.poolSize, slotSize, logger),
			textPool:  pool.New("text", cfg.poolSize, slotSize, logger),
		},
		kind:   k,
		size:   size,
		units:  units,
		logger: logger,
	}
	s.cleanup = runtime.AddCleanup(s, (*resources).release, s.res)
	return s
}

// slotSizeFor sizes a slot for k. Binary slots hold the units and unpack
// them in place. Text slots hold the units followed by room for their UTF-8
// form; the total is kept even so the unit region stays 2-byte aligned.
func slotSizeFor(k kind, units int) int {
	if k == kindBinary {
		return 2 * units
	}
	n := 2*units + codec.MaxUTF8PerUnit*units
	return n + n%2
}

// Size is the plaintext length: bytes for binary secrets, UTF-16 code units
// for text secrets.
func (s *Secret) Size() int { return s.size }

// IsText reports whether the secret holds text.
func (s *Secret) IsText() bool { return s.kind == kindText }

// IsDisposed reports whether Dispose has been called.
func (s *Secret) IsDisposed() bool { return s.disposed.Load() }

// Dispose makes the store unusable and releases the pools. Uses whose
// callback is already running finish normally and their slots are destroyed
// on release; every other use fails with ErrUseAfterDispose. Dispose is
// idempotent.
func (s *Secret) Dispose() {
	if !s.disposed.CompareAndSwap(false, true) {
		return
	}
	s.cleanup.Stop()
	s.res.release()
	s.logger.Debug("secret disposed")
}

// Close disposes the secret. It always returns nil.
func (s *Secret) Close() error {
	s.Dispose()
	return nil
}

// Stats returns the activity of the secret's slot pools.
func (s *Secret) Stats() Stats {
	return Stats{
		Bytes: s.res.bytesPool.Stats(),
		Text:  s.res.textPool.Stats(),
	}
}
