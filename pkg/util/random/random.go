package random

import (
	"crypto/rand"
	"fmt"
	"io"
)

// Fill overwrites b with bytes from the system CSPRNG.
func Fill(b []byte) error {
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return fmt.Errorf("random: %w", err)
	}
	return nil
}

func Bytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if err := Fill(b); err != nil {
		return nil, err
	}
	return b, nil
}
