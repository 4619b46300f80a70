package infra

import (
	"encoding/base64"
	"fmt"

	"github.com/zalando/go-keyring"

	"github.com/eliteGoblin/focusd/screen_mon/internal/domain"
)

const keyringService = "screenmon.database"

// KeyringKeyProvider keeps the database key in the OS keychain
// (Keychain, Secret Service or Windows Credential Manager).
type KeyringKeyProvider struct {
	account string
}

// NewKeyringKeyProvider stores the key under account, normally the data
// directory so two installs on one machine do not share a key.
func NewKeyringKeyProvider(account string) *KeyringKeyProvider {
	return &KeyringKeyProvider{account: account}
}

// GetKey reads and decodes the key.
func (p *KeyringKeyProvider) GetKey() ([]byte, error) {
	encoded, err := keyring.Get(keyringService, p.account)
	if err != nil {
		return nil, fmt.Errorf("failed to read key from keyring: %w", err)
	}
	return decodeKey(encoded)
}

// StoreKey writes the key to the keychain.
func (p *KeyringKeyProvider) StoreKey(key []byte) error {
	if len(key) != keySize {
		return fmt.Errorf("invalid key size: got %d, want %d", len(key), keySize)
	}
	if err := keyring.Set(keyringService, p.account, base64.StdEncoding.EncodeToString(key)); err != nil {
		return fmt.Errorf("failed to write key to keyring: %w", err)
	}
	return nil
}

// KeyExists reports whether a key is stored for the account.
func (p *KeyringKeyProvider) KeyExists() bool {
	_, err := keyring.Get(keyringService, p.account)
	return err == nil
}

var _ domain.KeyProvider = (*KeyringKeyProvider)(nil)
