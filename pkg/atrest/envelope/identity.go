package envelope

import (
	"bytes"
	"fmt"

	"example.com/cryptkeeper/pkg/armor"
	"example.com/cryptkeeper/pkg/crypto/hash"
	"example.com/cryptkeeper/pkg/crypto/kem/xkem"
	"example.com/cryptkeeper/pkg/util/securemem"
)

const (
	publicBlock  = "CRYPTKEEPER PUBLIC KEY"
	privateBlock = "CRYPTKEEPER PRIVATE KEY"
)

// Recipient is a public key envelopes can be sealed to.
type Recipient struct {
	Curve xkem.Curve
	Key   []byte
}

// KeyID is the fingerprint recorded in envelopes sealed to r.
func (r Recipient) KeyID() string { return hash.Fingerprint(r.Key) }

// Marshal armors the public key.
func (r Recipient) Marshal() []byte {
	return armor.Encode(publicBlock, r.Key, map[string]string{
		"Curve":  r.Curve.String(),
		"Key-Id": r.KeyID(),
	})
}

// ParseRecipient reads a public key written by Recipient.Marshal.
func ParseRecipient(data []byte) (Recipient, error) {
	b, err := armor.Decode(data)
	if err != nil {
		return Recipient{}, err
	}
	if b.Type != publicBlock {
		return Recipient{}, fmt.Errorf("envelope: expected %s, got %s", publicBlock, b.Type)
	}
	c, err := xkem.ParseCurve(b.Headers["Curve"])
	if err != nil {
		return Recipient{}, err
	}
	if len(b.Bytes) != c.KeySize() {
		return Recipient{}, fmt.Errorf("envelope: bad %s public key length %d", c, len(b.Bytes))
	}
	return Recipient{Curve: c, Key: b.Bytes}, nil
}

// Identity is a private key held in locked memory.
type Identity struct {
	curve xkem.Curve
	priv  *securemem.Region
	pub   []byte
}

func GenerateIdentity(c xkem.Curve) (*Identity, error) {
	if c.KeySize() == 0 {
		return nil, fmt.Errorf("envelope: unsupported curve %d", int(c))
	}
	priv := securemem.NewRegion(c.KeySize())
	pub, err := xkem.GenerateKey(c, priv.Bytes())
	if err != nil {
		priv.Destroy()
		return nil, err
	}
	return &Identity{curve: c, priv: priv, pub: pub}, nil
}

// NewIdentity copies priv into locked memory and wipes priv.
func NewIdentity(c xkem.Curve, priv []byte) (*Identity, error) {
	defer securemem.Wipe(priv)
	pub, err := xkem.PublicKey(c, priv)
	if err != nil {
		return nil, err
	}
	r := securemem.NewRegion(len(priv))
	copy(r.Bytes(), priv)
	return &Identity{curve: c, priv: r, pub: pub}, nil
}

// ParseIdentity reads a private key written by Identity.Marshal. data is
// wiped.
func ParseIdentity(data []byte) (*Identity, error) {
	defer securemem.Wipe(data)
	b, err := armor.Decode(data)
	if err != nil {
		return nil, err
	}
	defer securemem.Wipe(b.Bytes)
	if b.Type != privateBlock {
		return nil, fmt.Errorf("envelope: expected %s, got %s", privateBlock, b.Type)
	}
	c, err := xkem.ParseCurve(b.Headers["Curve"])
	if err != nil {
		return nil, err
	}
	return NewIdentity(c, b.Bytes)
}

func (id *Identity) Curve() xkem.Curve { return id.curve }

func (id *Identity) Recipient() Recipient {
	return Recipient{Curve: id.curve, Key: bytes.Clone(id.pub)}
}

func (id *Identity) KeyID() string { return hash.Fingerprint(id.pub) }

// Marshal armors the private key. The result is plaintext key material on
// the heap; callers should wipe it once written.
func (id *Identity) Marshal() []byte {
	return armor.Encode(privateBlock, id.priv.Bytes(), map[string]string{
		"Curve": id.curve.String(),
	})
}

// Destroy wipes and unmaps the private key. Stores opened with the identity
// fail afterwards. It must not run concurrently with UnprotectInto on such a
// store: the key may be unmapped while it is being read.
func (id *Identity) Destroy() { id.priv.Destroy() }

func (id *Identity) alive() bool { return id.priv.Alive() }
