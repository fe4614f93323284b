package aesocb

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"

	"github.com/ProtonMail/go-crypto/ocb"

	"example.com/cryptkeeper/pkg/util/random"
)

const (
	KeySize   = 32
	NonceSize = 15
	TagSize   = 16
)

// NewAEAD returns an AES-256-OCB3 AEAD with a 15-byte nonce and 16-byte tag.
func NewAEAD(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("bad key length: got %d want %d", len(key), KeySize)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return ocb.NewOCBWithNonceAndTagSize(block, NonceSize, TagSize)
}

// NewNonce returns a fresh random nonce.
func NewNonce() ([]byte, error) {
	return random.Bytes(NonceSize)
}
