// Package xkem implements an ephemeral-static key encapsulation over X25519
// and X448. The key share is a SHA3 digest of the shared secret, the
// ephemeral public key and the recipient public key.
//
// Functions that produce secret material write it into caller-provided
// buffers, so callers can keep it in locked memory. Intermediate values are
// wiped before return.
package xkem

import (
	"errors"
	"fmt"
	"hash"
	"strings"

	"github.com/cloudflare/circl/dh/x25519"
	"github.com/cloudflare/circl/dh/x448"
	"golang.org/x/crypto/sha3"

	"example.com/cryptkeeper/pkg/util/random"
	"example.com/cryptkeeper/pkg/util/securemem"
)

// Curve selects which Montgomery curve to use.
type Curve int

const (
	CurveX25519 Curve = iota
	CurveX448
)

var errShared = errors.New("xkem: shared secret failure")

// ParseCurve accepts "x25519" or "x448", case-insensitively.
func ParseCurve(s string) (Curve, error) {
	switch strings.ToLower(s) {
	case "x25519":
		return CurveX25519, nil
	case "x448":
		return CurveX448, nil
	default:
		return 0, fmt.Errorf("xkem: unsupported curve %q", s)
	}
}

func (c Curve) String() string {
	switch c {
	case CurveX25519:
		return "x25519"
	case CurveX448:
		return "x448"
	default:
		return fmt.Sprintf("Curve(%d)", int(c))
	}
}

// KeySize is the length of private keys, public keys and ephemeral keys.
func (c Curve) KeySize() int {
	switch c {
	case CurveX25519:
		return x25519.Size
	case CurveX448:
		return x448.Size
	default:
		return 0
	}
}

// ShareSize is the length of the derived key share.
func (c Curve) ShareSize() int {
	switch c {
	case CurveX25519:
		return 32
	case CurveX448:
		return 64
	default:
		return 0
	}
}

func (c Curve) newHash() hash.Hash {
	if c == CurveX448 {
		return sha3.New512()
	}
	return sha3.New256()
}

func (c Curve) check(name string, b []byte) error {
	if c.KeySize() == 0 {
		return fmt.Errorf("xkem: unsupported curve %d", int(c))
	}
	if len(b) != c.KeySize() {
		return fmt.Errorf("xkem: bad %s %s length %d", c, name, len(b))
	}
	return nil
}

// GenerateKey fills priv with a fresh private key and returns its public key.
func GenerateKey(c Curve, priv []byte) ([]byte, error) {
	if err := c.check("private key", priv); err != nil {
		return nil, err
	}
	if err := random.Fill(priv); err != nil {
		return nil, err
	}
	return PublicKey(c, priv)
}

func PublicKey(c Curve, priv []byte) ([]byte, error) {
	if err := c.check("private key", priv); err != nil {
		return nil, err
	}
	pub := make([]byte, c.KeySize())
	switch c {
	case CurveX25519:
		var sk, pk x25519.Key
		copy(sk[:], priv)
		x25519.KeyGen(&pk, &sk)
		copy(pub, pk[:])
		securemem.Wipe(sk[:])
	case CurveX448:
		var sk, pk x448.Key
		copy(sk[:], priv)
		x448.KeyGen(&pk, &sk)
		copy(pub, pk[:])
		securemem.Wipe(sk[:])
	}
	return pub, nil
}

// shared writes the Diffie-Hellman output of priv and pub into dst.
func shared(c Curve, dst, priv, pub []byte) error {
	ok := false
	switch c {
	case CurveX25519:
		var sk, pk, ss x25519.Key
		copy(sk[:], priv)
		copy(pk[:], pub)
		ok = x25519.Shared(&ss, &sk, &pk)
		copy(dst, ss[:])
		securemem.Wipe(sk[:])
		securemem.Wipe(ss[:])
	case CurveX448:
		var sk, pk, ss x448.Key
		copy(sk[:], priv)
		copy(pk[:], pub)
		ok = x448.Shared(&ss, &sk, &pk)
		copy(dst, ss[:])
		securemem.Wipe(sk[:])
		securemem.Wipe(ss[:])
	}
	if !ok {
		return errShared
	}
	return nil
}

// deriveShare hashes shared ‖ ephemeral ‖ recipient into share.
func deriveShare(c Curve, share, ss, ephPub, recipientPub []byte) {
	h := c.newHash()
	h.Write(ss)
	h.Write(ephPub)
	h.Write(recipientPub)
	h.Sum(share[:0])
	h.Reset()
}

// Encaps generates an ephemeral key pair for recipientPub, writes the key
// share into share and returns the ephemeral public key.
func Encaps(c Curve, recipientPub, share []byte) ([]byte, error) {
	if err := c.check("public key", recipientPub); err != nil {
		return nil, err
	}
	if len(share) != c.ShareSize() {
		return nil, fmt.Errorf("xkem: bad share length %d", len(share))
	}
	scratch := securemem.NewRegion(2 * c.KeySize())
	defer scratch.Destroy()
	ephPriv := scratch.Bytes()[:c.KeySize()]
	ss := scratch.Bytes()[c.KeySize():]

	ephPub, err := GenerateKey(c, ephPriv)
	if err != nil {
		return nil, err
	}
	if err := shared(c, ss, ephPriv, recipientPub); err != nil {
		return nil, err
	}
	deriveShare(c, share, ss, ephPub, recipientPub)
	return ephPub, nil
}

// Decaps recomputes the key share for ephPub into share.
func Decaps(c Curve, recipientPriv, recipientPub, ephPub, share []byte) error {
	if err := c.check("private key", recipientPriv); err != nil {
		return err
	}
	if err := c.check("public key", recipientPub); err != nil {
		return err
	}
	if err := c.check("ephemeral key", ephPub); err != nil {
		return err
	}
	if len(share) != c.ShareSize() {
		return fmt.Errorf("xkem: bad share length %d", len(share))
	}
	scratch := securemem.NewRegion(c.KeySize())
	defer scratch.Destroy()
	ss := scratch.Bytes()

	if err := shared(c, ss, recipientPriv, ephPub); err != nil {
		return err
	}
	deriveShare(c, share, ss, ephPub, recipientPub)
	return nil
}
