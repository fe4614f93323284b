// Package container frames a sealed envelope: a magic tag, a length-prefixed
// JSON header and the ciphertext.
package container

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"
)

const (
	magic   = "CKE1"
	Version = 1

	// maxHeader bounds the header length read from untrusted input.
	maxHeader = 1 << 16
)

var ErrBadMagic = errors.New("container: bad magic")

type Header struct {
	Version   int       `json:"v"`
	Created   time.Time `json:"t"`
	Curve     string    `json:"curve"`
	KeyID     string    `json:"key_id"`
	Ephemeral []byte    `json:"eph"`
	Nonce     []byte    `json:"n"`
	// Units is the number of 16-bit code units sealed.
	Units     int       `json:"units"`
	// Length is the original byte length of a binary payload. It is absent
	// for text.
	Length    *int      `json:"len,omitempty"`
}

// AssociatedData is the header JSON without the nonce. It binds every other
// header field to the ciphertext.
func (h *Header) AssociatedData() []byte {
	tmp := *h
	tmp.Nonce = nil
	b, _ := json.Marshal(tmp)
	return b
}

func Write(w io.Writer, h *Header, ciphertext []byte) error {
	hb, err := json.Marshal(h)
	if err != nil {
		return err
	}
	if _, err = io.WriteString(w, magic); err != nil {
		return err
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(hb)))
	if _, err = w.Write(lenBuf[:]); err != nil {
		return err
	}
	if _, err = w.Write(hb); err != nil {
		return err
	}
	_, err = w.Write(ciphertext)
	return err
}

func Read(r io.Reader) (*Header, []byte, error) {
	var m [4]byte
	if _, err := io.ReadFull(r, m[:]); err != nil {
		return nil, nil, fmt.Errorf("container: %w", err)
	}
	if string(m[:]) != magic {
		return nil, nil, ErrBadMagic
	}
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, nil, fmt.Errorf("container: %w", err)
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > maxHeader {
		return nil, nil, fmt.Errorf("container: header length %d too large", n)
	}
	hb := make([]byte, n)
	if _, err := io.ReadFull(r, hb); err != nil {
		return nil, nil, fmt.Errorf("container: %w", err)
	}
	var h Header
	if err := json.Unmarshal(hb, &h); err != nil {
		return nil, nil, fmt.Errorf("container: header: %w", err)
	}
	if h.Version != Version {
		return nil, nil, fmt.Errorf("container: unsupported version %d", h.Version)
	}
	if h.Units < 0 || (h.Length != nil && *h.Length < 0) {
		return nil, nil, errors.New("container: negative length")
	}
	ct, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, fmt.Errorf("container: %w", err)
	}
	return &h, ct, nil
}
