// Package envelope seals protected values to a public key, so they can be
// provisioned ahead of time and adopted with secret.FromProtectedValue.
//
// The key is agreed with an ephemeral X25519 or X448 exchange and the code
// units are encrypted with AES-256-OCB. The header travels in clear and is
// authenticated as associated data.
package envelope

import (
	"bytes"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"example.com/cryptkeeper/pkg/armor"
	"example.com/cryptkeeper/pkg/codec"
	"example.com/cryptkeeper/pkg/container"
	"example.com/cryptkeeper/pkg/crypto/aesocb"
	"example.com/cryptkeeper/pkg/crypto/kem/xkem"
	"example.com/cryptkeeper/pkg/util/securemem"
)

// BlockType is the armor type of an envelope.
const BlockType = "CRYPTKEEPER ENVELOPE"

var (
	// ErrKeyMismatch is returned when an envelope was sealed to another key.
	ErrKeyMismatch = errors.New("envelope: sealed to a different key")
	// ErrDecrypt is returned when the ciphertext or header fails
	// authentication.
	ErrDecrypt = errors.New("envelope: authentication failed")
)

// Envelope is a sealed value. It holds no plaintext.
type Envelope struct {
	Header     container.Header
	Ciphertext []byte
}

// Binary reports whether the envelope holds a packed byte payload.
func (e *Envelope) Binary() bool { return e.Header.Length != nil }

// Seal encrypts units to r. units is zeroed before Seal returns.
func Seal(units []uint16, r Recipient) (*Envelope, error) {
	return seal(units, nil, r)
}

// SealBytes packs value and seals it to r. value is zeroed before SealBytes
// returns.
func SealBytes(value []byte, r Recipient) (*Envelope, error) {
	defer securemem.Wipe(value)
	scratch := securemem.NewRegion(2 * codec.PackedLen(len(value)))
	defer scratch.Destroy()
	units := codec.Units(scratch.Bytes())
	codec.Pack(units, value)
	n := len(value)
	return seal(units, &n, r)
}

// SealText seals UTF-8 text to r as UTF-16 code units. value is zeroed
// before SealText returns.
func SealText(value []byte, r Recipient) (*Envelope, error) {
	defer securemem.Wipe(value)
	if !utf8.Valid(value) {
		return nil, errors.New("envelope: text is not valid UTF-8")
	}
	scratch := securemem.NewRegion(2 * codec.UTF16Len(value))
	defer scratch.Destroy()
	units := codec.Units(scratch.Bytes())
	codec.EncodeUTF16(units, value)
	return seal(units, nil, r)
}

func seal(units []uint16, length *int, r Recipient) (*Envelope, error) {
	defer securemem.WipeUnits(units)

	c := r.Curve
	scratch := securemem.NewRegion(c.ShareSize() + 2*len(units))
	defer scratch.Destroy()
	share := scratch.Bytes()[:c.ShareSize()]
	plain := scratch.Bytes()[c.ShareSize():]

	eph, err := xkem.Encaps(c, r.Key, share)
	if err != nil {
		return nil, err
	}
	nonce, err := aesocb.NewNonce()
	if err != nil {
		return nil, err
	}
	h := container.Header{
		Version:   container.Version,
		Created:   time.Now().UTC().Truncate(time.Second),
		Curve:     c.String(),
		KeyID:     r.KeyID(),
		Ephemeral: eph,
		Nonce:     nonce,
		Units:     len(units),
		Length:    length,
	}
	aead, err := aesocb.NewAEAD(share[:aesocb.KeySize])
	if err != nil {
		return nil, err
	}
	codec.PutBigEndian(plain, units)
	ct := aead.Seal(nil, nonce, plain, h.AssociatedData())
	return &Envelope{Header: h, Ciphertext: ct}, nil
}

// Marshal returns the binary container form.
func (e *Envelope) Marshal() []byte {
	var buf bytes.Buffer
	// Writes to a bytes.Buffer do not fail.
	_ = container.Write(&buf, &e.Header, e.Ciphertext)
	return buf.Bytes()
}

// Armor returns the ASCII-armored form.
func (e *Envelope) Armor() []byte {
	return armor.Encode(BlockType, e.Marshal(), map[string]string{
		"Curve":  e.Header.Curve,
		"Key-Id": e.Header.KeyID,
	})
}

// Parse reads an envelope in binary or armored form.
func Parse(data []byte) (*Envelope, error) {
	if bytes.Contains(data, []byte("-----BEGIN ")) {
		b, err := armor.Decode(data)
		if err != nil {
			return nil, err
		}
		if b.Type != BlockType {
			return nil, fmt.Errorf("envelope: unexpected armor type %s", b.Type)
		}
		data = b.Bytes
	}
	h, ct, err := container.Read(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	c, err := xkem.ParseCurve(h.Curve)
	if err != nil {
		return nil, err
	}
	if len(h.Ephemeral) != c.KeySize() || len(h.Nonce) != aesocb.NonceSize {
		return nil, errors.New("envelope: malformed header")
	}
	if len(ct) != 2*h.Units+aesocb.TagSize {
		return nil, fmt.Errorf("envelope: ciphertext length %d does not match %d units", len(ct), h.Units)
	}
	if h.Length != nil && codec.PackedLen(*h.Length) != h.Units {
		return nil, fmt.Errorf("envelope: length %d does not match %d units", *h.Length, h.Units)
	}
	return &Envelope{Header: *h, Ciphertext: ct}, nil
}
