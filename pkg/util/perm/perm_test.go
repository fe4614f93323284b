package perm

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckPrivate(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "k")
	require.NoError(t, WritePrivate(p, []byte("x")))
	assert.NoError(t, CheckPrivate(p))

	require.NoError(t, os.Chmod(p, 0o400))
	assert.NoError(t, CheckPrivate(p))

	require.NoError(t, os.Chmod(p, 0o640))
	assert.ErrorContains(t, CheckPrivate(p), "want 0600")

	assert.Error(t, CheckPrivate(filepath.Join(dir, "missing")))
}
