package perm

import (
	"fmt"
	"os"
)

// CheckPrivate verifies that path grants no permissions to group or others.
func CheckPrivate(path string) error {
	st, err := os.Stat(path)
	if err != nil {
		return err
	}
	if mode := st.Mode().Perm(); mode&0o077 != 0 {
		return fmt.Errorf("file %s permissions %o (want 0600)", path, mode)
	}
	return nil
}

// WritePrivate writes data to a new or truncated file with mode 0600.
// An existing file keeps its mode, so it is checked afterwards.
func WritePrivate(path string, data []byte) error {
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return err
	}
	return CheckPrivate(path)
}
