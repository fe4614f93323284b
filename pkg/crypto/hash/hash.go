package hash

import (
	"encoding/hex"

	"golang.org/x/crypto/sha3"
)

// FingerprintSize is the number of digest bytes kept in a fingerprint.
const FingerprintSize = 8

// Fingerprint identifies a public key by the leading bytes of its SHA3-256
// digest, in hex.
func Fingerprint(pub []byte) string {
	h := sha3.Sum256(pub)
	return hex.EncodeToString(h[:FingerprintSize])
}
