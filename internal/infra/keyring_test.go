package infra

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

func TestKeyringKeyProvider(t *testing.T) {
	keyring.MockInit()

	provider := NewKeyringKeyProvider(t.TempDir())
	assert.False(t, provider.KeyExists())

	_, err := provider.GetKey()
	assert.ErrorIs(t, err, keyring.ErrNotFound)

	key, err := EnsureKey(provider)
	require.NoError(t, err)
	assert.True(t, provider.KeyExists())

	again, err := EnsureKey(provider)
	require.NoError(t, err)
	assert.Equal(t, key, again)

	assert.Error(t, provider.StoreKey([]byte("short")))
}

func TestKeyringKeyProvider_CorruptEntry(t *testing.T) {
	keyring.MockInit()

	provider := NewKeyringKeyProvider("corrupt")
	require.NoError(t, keyring.Set(keyringService, "corrupt", "not base64!"))

	_, err := provider.GetKey()
	assert.Error(t, err)
}
