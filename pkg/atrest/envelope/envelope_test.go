package envelope_test

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/cryptkeeper/pkg/atrest"
	"example.com/cryptkeeper/pkg/atrest/envelope"
	"example.com/cryptkeeper/pkg/crypto/kem/xkem"
	"example.com/cryptkeeper/pkg/secret"
	"example.com/cryptkeeper/pkg/util/securemem"
)

func newIdentity(t *testing.T, c xkem.Curve) *envelope.Identity {
	t.Helper()
	id, err := envelope.GenerateIdentity(c)
	require.NoError(t, err)
	t.Cleanup(id.Destroy)
	return id
}

func TestSealBytesAdopt(t *testing.T) {
	for _, c := range []xkem.Curve{xkem.CurveX25519, xkem.CurveX448} {
		t.Run(c.String(), func(t *testing.T) {
			id := newIdentity(t, c)
			value := []byte("api-key-0123456789")

			env, err := envelope.SealBytes(value, id.Recipient())
			require.NoError(t, err)
			assert.True(t, securemem.IsZero(value))
			assert.True(t, env.Binary())
			assert.Equal(t, 9, env.Header.Units)
			assert.Equal(t, id.KeyID(), env.Header.KeyID)

			store, err := envelope.Open(env, id)
			require.NoError(t, err)
			s, err := secret.FromProtectedValue(store, secret.WithPoolSize(1))
			require.NoError(t, err)
			defer s.Dispose()

			assert.False(t, s.IsText())
			assert.Equal(t, 18, s.Size())
			require.NoError(t, s.UseBytes(func(b []byte) error {
				assert.Equal(t, "api-key-0123456789", string(b))
				return nil
			}))
		})
	}
}

func TestSealTextAdopt(t *testing.T) {
	id := newIdentity(t, xkem.CurveX25519)
	env, err := envelope.SealText([]byte("pässwörd🔑"), id.Recipient())
	require.NoError(t, err)
	assert.False(t, env.Binary())

	store, err := envelope.Open(env, id)
	require.NoError(t, err)
	s, err := secret.FromProtectedValue(store)
	require.NoError(t, err)
	defer s.Dispose()

	assert.True(t, s.IsText())
	require.NoError(t, s.UseText(func(v string) error {
		assert.Equal(t, "pässwörd🔑", v)
		return nil
	}))
	assert.True(t, store.IsReadOnly())
}

func TestParseForms(t *testing.T) {
	id := newIdentity(t, xkem.CurveX448)
	env, err := envelope.SealBytes([]byte{0, 1, 2}, id.Recipient())
	require.NoError(t, err)

	armored := env.Armor()
	assert.True(t, strings.HasPrefix(string(armored), "-----BEGIN "+envelope.BlockType+"-----\n"))
	assert.Contains(t, string(armored), "Key-Id: "+id.KeyID())

	for name, data := range map[string][]byte{"binary": env.Marshal(), "armored": armored} {
		t.Run(name, func(t *testing.T) {
			got, err := envelope.Parse(data)
			require.NoError(t, err)
			assert.Equal(t, env.Ciphertext, got.Ciphertext)
			assert.Equal(t, env.Header.Nonce, got.Header.Nonce)

			store, err := envelope.Open(got, id)
			require.NoError(t, err)
			n, ok := store.BinaryLength()
			assert.True(t, ok)
			assert.Equal(t, 3, n)
		})
	}
}

func TestParseRejectsInconsistentHeader(t *testing.T) {
	id := newIdentity(t, xkem.CurveX25519)
	env, err := envelope.SealBytes([]byte("abcd"), id.Recipient())
	require.NoError(t, err)

	env.Header.Units = 3
	_, err = envelope.Parse(env.Marshal())
	assert.ErrorContains(t, err, "does not match")
}

func TestOpenWrongKey(t *testing.T) {
	id := newIdentity(t, xkem.CurveX25519)
	other := newIdentity(t, xkem.CurveX25519)
	env, err := envelope.SealBytes([]byte("abc"), id.Recipient())
	require.NoError(t, err)

	_, err = envelope.Open(env, other)
	assert.ErrorIs(t, err, envelope.ErrKeyMismatch)
}

func TestOpenTamperedHeader(t *testing.T) {
	id := newIdentity(t, xkem.CurveX25519)
	env, err := envelope.SealBytes([]byte("abc"), id.Recipient())
	require.NoError(t, err)

	env.Header.Created = env.Header.Created.Add(time.Hour)
	_, err = envelope.Open(env, id)
	assert.ErrorIs(t, err, envelope.ErrDecrypt)
}

func TestStoreDispose(t *testing.T) {
	id := newIdentity(t, xkem.CurveX25519)
	env, err := envelope.SealText([]byte("x"), id.Recipient())
	require.NoError(t, err)
	store, err := envelope.Open(env, id)
	require.NoError(t, err)

	assert.ErrorIs(t, store.UnprotectInto(make([]uint16, 2)), atrest.ErrLength)
	store.Dispose()
	assert.ErrorIs(t, store.UnprotectInto(make([]uint16, 1)), atrest.ErrDisposed)
}

func TestIdentityMarshal(t *testing.T) {
	id := newIdentity(t, xkem.CurveX448)

	priv := id.Marshal()
	assert.Contains(t, string(priv), "Curve: x448")
	back, err := envelope.ParseIdentity(priv)
	require.NoError(t, err)
	defer back.Destroy()
	assert.True(t, securemem.IsZero(priv), "key file bytes are wiped after parsing")
	assert.Equal(t, id.KeyID(), back.KeyID())

	r, err := envelope.ParseRecipient(id.Recipient().Marshal())
	require.NoError(t, err)
	assert.Equal(t, xkem.CurveX448, r.Curve)
	assert.True(t, bytes.Equal(id.Recipient().Key, r.Key))

	_, err = envelope.ParseRecipient(id.Marshal())
	assert.ErrorContains(t, err, "expected "+"CRYPTKEEPER PUBLIC KEY")
}

func TestIdentityProtector(t *testing.T) {
	id := newIdentity(t, xkem.CurveX25519)
	s, err := secret.FromBytes([]byte("sealed at rest"), secret.WithProtector(id.Protector()))
	require.NoError(t, err)
	defer s.Dispose()

	got, err := secret.UseTextFunc(s, func(v string) (string, error) {
		return strings.Clone(v), nil
	})
	require.NoError(t, err)
	assert.Equal(t, "sealed at rest", got)
}
