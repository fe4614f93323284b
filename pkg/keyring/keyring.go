// Package keyring maps key ids to private key files, so an envelope can be
// verified without naming its key. The keyring file is JSON with mode 0600.
package keyring

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"example.com/cryptkeeper/pkg/util/perm"
)

var (
	ErrNotFound = errors.New("keyring: key not found")
	ErrRevoked  = errors.New("keyring: key revoked")
)

type Entry struct {
	KeyID   string    `json:"key_id"`
	Curve   string    `json:"curve"`
	Path    string    `json:"path"`
	Created time.Time `json:"created"`
	Revoked bool      `json:"revoked"`
}

type Keyring struct {
	Entries []Entry `json:"entries"`
}

// Load reads the keyring at path. A missing file is an empty keyring.
func Load(path string) (*Keyring, error) {
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &Keyring{}, nil
	}
	if err != nil {
		return nil, err
	}
	var k Keyring
	if err := json.Unmarshal(b, &k); err != nil {
		return nil, fmt.Errorf("keyring: %s: %w", path, err)
	}
	return &k, nil
}

func (k *Keyring) Save(path string) error {
	b, err := json.MarshalIndent(k, "", "  ")
	if err != nil {
		return err
	}
	return perm.WritePrivate(path, b)
}

// Add records the private key file for keyID, replacing an earlier entry and
// clearing its revocation. The key file must be private.
func (k *Keyring) Add(keyID, curve, keyPath string) error {
	if err := perm.CheckPrivate(keyPath); err != nil {
		return err
	}
	e := Entry{KeyID: keyID, Curve: curve, Path: keyPath, Created: time.Now().UTC()}
	for i := range k.Entries {
		if k.Entries[i].KeyID == keyID {
			k.Entries[i] = e
			return nil
		}
	}
	k.Entries = append(k.Entries, e)
	return nil
}

func (k *Keyring) Revoke(keyID string) error {
	for i := range k.Entries {
		if k.Entries[i].KeyID == keyID {
			k.Entries[i].Revoked = true
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrNotFound, keyID)
}

// Lookup returns the entry for keyID. Revoked keys are reported with
// ErrRevoked.
func (k *Keyring) Lookup(keyID string) (Entry, error) {
	for _, e := range k.Entries {
		if e.KeyID != keyID {
			continue
		}
		if e.Revoked {
			return e, fmt.Errorf("%w: %s", ErrRevoked, keyID)
		}
		return e, nil
	}
	return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, keyID)
}
