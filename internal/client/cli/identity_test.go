package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/dmitrijs2005/arcticchat/internal/cryptox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadOrCreateIdentity(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".arctic", "identity.txt")

	first, created, err := loadOrCreateIdentity(path)
	require.NoError(t, err)
	assert.True(t, created)
	_, err = cryptox.RecipientOf(first)
	require.NoError(t, err)

	second, created, err := loadOrCreateIdentity(path)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first, second)
}

func TestLoadOrCreateIdentity_RejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "identity.txt")
	require.NoError(t, os.WriteFile(path, []byte("not a key"), 0o600))

	_, _, err := loadOrCreateIdentity(path)
	assert.Error(t, err)
}
