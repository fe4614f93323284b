package secret

import (
	"bytes"
	"crypto/rand"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"unicode/utf16"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/cryptkeeper/pkg/atrest"
	"example.com/cryptkeeper/pkg/codec"
	"example.com/cryptkeeper/pkg/util/securemem"
)

// heapStore is a test store holding its units in plain memory.
type heapStore struct {
	units    []uint16
	err      error
	readOnly bool
	disposed bool
}

func (h *heapStore) Len() int { return len(h.units) }

func (h *heapStore) UnprotectInto(dst []uint16) error {
	if h.disposed {
		return atrest.ErrDisposed
	}
	if h.err != nil {
		return h.err
	}
	copy(dst, h.units)
	return nil
}

func (h *heapStore) MakeReadOnly()    { h.readOnly = true }
func (h *heapStore) IsReadOnly() bool { return h.readOnly }
func (h *heapStore) Dispose()         { h.disposed = true }

func randomBytes(t *testing.T, n int) []byte {
	t.Helper()
	b := make([]byte, n)
	_, err := rand.Read(b)
	require.NoError(t, err)
	return b
}

func readBytes(t *testing.T, s *Secret) []byte {
	t.Helper()
	got, err := UseBytesFunc(s, func(b []byte) ([]byte, error) {
		return bytes.Clone(b), nil
	})
	require.NoError(t, err)
	return got
}

func readText(t *testing.T, s *Secret) string {
	t.Helper()
	got, err := UseTextFunc(s, func(v string) (string, error) {
		return strings.Clone(v), nil
	})
	require.NoError(t, err)
	return got
}

func TestFromBytesRoundTripAllSizes(t *testing.T) {
	for n := 0; n <= MaxBytes; n += 1 + n/64 {
		want := randomBytes(t, n)
		in := bytes.Clone(want)

		s, err := FromBytes(in)
		require.NoError(t, err, "size %d", n)
		assert.True(t, securemem.IsZero(in), "input of size %d must be wiped", n)
		assert.Equal(t, n, s.Size())
		assert.False(t, s.IsText())
		assert.Equal(t, want, readBytes(t, s), "size %d", n)
		s.Dispose()
	}
}

func TestFromBytesLimits(t *testing.T) {
	s, err := FromBytes(make([]byte, MaxBytes))
	require.NoError(t, err)
	s.Dispose()

	in := bytes.Repeat([]byte{0x5a}, MaxBytes+1)
	_, err = FromBytes(in)
	assert.ErrorIs(t, err, ErrSizeExceeded)
	assert.True(t, securemem.IsZero(in), "rejected input must be wiped")

	_, err = FromBytes(nil)
	assert.ErrorIs(t, err, ErrNullInput)
}

func TestFromBytesKeepsTrailingZero(t *testing.T) {
	a, err := FromBytes([]byte{1})
	require.NoError(t, err)
	b, err := FromBytes([]byte{1, 0})
	require.NoError(t, err)

	assert.Equal(t, []byte{1}, readBytes(t, a))
	assert.Equal(t, []byte{1, 0}, readBytes(t, b))
}

func TestFromTextRoundTrip(t *testing.T) {
	for _, text := range []string{
		"",
		"hunter2",
		"pässwörd",
		"日本語のパスワード",
		"emoji 🔑🗝️",
		strings.Repeat("a", MaxTextUnits),
		strings.Repeat("🔑", MaxTextUnits/2),
	} {
		in := []byte(text)
		s, err := FromText(in)
		require.NoError(t, err, "%q", text)
		assert.True(t, securemem.IsZero(in))
		assert.True(t, s.IsText())
		assert.Equal(t, len(utf16.Encode([]rune(text))), s.Size())
		assert.Equal(t, text, readText(t, s))
		s.Dispose()
	}
}

func TestFromTextLimits(t *testing.T) {
	in := []byte(strings.Repeat("a", MaxTextUnits+1))
	_, err := FromText(in)
	assert.ErrorIs(t, err, ErrSizeExceeded)
	assert.True(t, securemem.IsZero(in))

	// Each astral rune takes two code units.
	_, err = FromText([]byte(strings.Repeat("🔑", MaxTextUnits/2+1)))
	assert.ErrorIs(t, err, ErrSizeExceeded)

	bad := []byte{'o', 'k', 0xff}
	_, err = FromText(bad)
	assert.ErrorIs(t, err, ErrInvalidText)
	assert.True(t, securemem.IsZero(bad))

	_, err = FromText(nil)
	assert.ErrorIs(t, err, ErrNullInput)
}

func TestProtectorFailureWipesInput(t *testing.T) {
	boom := errors.New("no enclave")
	var seen []uint16
	p := atrest.ProtectorFunc(func(units []uint16) (atrest.Store, error) {
		seen = units
		securemem.WipeUnits(units)
		return nil, boom
	})

	in := []byte("top secret")
	_, err := FromBytes(in, WithProtector(p))
	assert.ErrorIs(t, err, boom)
	assert.True(t, securemem.IsZero(in))
	assert.Len(t, seen, codec.PackedLen(len("top secret")))
}

func TestFromProtectedValueText(t *testing.T) {
	store := &heapStore{units: utf16.Encode([]rune("pässwörd"))}
	s, err := FromProtectedValue(store)
	require.NoError(t, err)
	assert.True(t, store.IsReadOnly())
	assert.True(t, s.IsText())
	assert.Equal(t, "pässwörd", readText(t, s))

	s.Dispose()
	assert.True(t, store.disposed)
}

func TestFromProtectedValueBinary(t *testing.T) {
	units := make([]uint16, codec.PackedLen(3))
	codec.Pack(units, []byte("abc"))

	s, err := FromProtectedValue(&heapStore{units: units}, WithBinaryLength(3))
	require.NoError(t, err)
	assert.False(t, s.IsText())
	assert.Equal(t, 3, s.Size())
	assert.Equal(t, []byte("abc"), readBytes(t, s))

	_, err = FromProtectedValue(&heapStore{units: units}, WithBinaryLength(5))
	assert.ErrorIs(t, err, ErrSizeExceeded)

	_, err = FromProtectedValue(nil)
	assert.ErrorIs(t, err, ErrNullInput)
}

func TestDispose(t *testing.T) {
	s, err := FromBytes([]byte("abc"), WithPoolSize(2))
	require.NoError(t, err)
	readBytes(t, s)
	require.Equal(t, 1, s.Stats().Bytes.Allocated)

	s.Dispose()
	s.Dispose()
	assert.True(t, s.IsDisposed())
	assert.Zero(t, s.Stats().Bytes.Allocated, "idle slots are destroyed on dispose")

	called := false
	err = s.UseBytes(func([]byte) error { called = true; return nil })
	assert.ErrorIs(t, err, ErrUseAfterDispose)
	assert.ErrorIs(t, s.UseText(func(string) error { return nil }), ErrUseAfterDispose)
	assert.False(t, called)
	assert.NoError(t, s.Close())
}

func TestDisposeDuringUse(t *testing.T) {
	s, err := FromBytes([]byte("abc"), WithPoolSize(1))
	require.NoError(t, err)

	entered := make(chan struct{})
	proceed := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- s.UseBytes(func(b []byte) error {
			close(entered)
			<-proceed
			if !bytes.Equal(b, []byte("abc")) {
				return errors.New("plaintext changed during use")
			}
			return nil
		})
	}()

	<-entered
	s.Dispose()
	close(proceed)
	require.NoError(t, <-done)
	assert.Zero(t, s.Stats().Bytes.Allocated, "busy slot is destroyed on release")
	assert.ErrorIs(t, s.UseBytes(func([]byte) error { return nil }), ErrUseAfterDispose)
}

func TestLoggerNeverSeesContent(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	s, err := FromText([]byte("correct horse"), WithLogger(logger), WithPoolSize(1))
	require.NoError(t, err)
	require.NoError(t, s.UseText(func(string) error {
		return s.UseText(func(string) error { return nil })
	}))
	s.Dispose()

	out := buf.String()
	assert.Contains(t, out, "secret disposed")
	assert.Contains(t, out, "pool exhausted")
	assert.NotContains(t, out, "correct horse")
}
