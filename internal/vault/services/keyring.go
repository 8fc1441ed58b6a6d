package services

import (
	"fmt"

	"github.com/dmitrijs2005/passvault/internal/cryptox"
	"github.com/dmitrijs2005/passvault/internal/vault/models"
)

// keyring wraps and unwraps per-profile data keys. The key-encryption key is
// derived from the server secret and the profile's salt, so key records are
// useless to anyone holding only a database dump.
type keyring struct {
	crypto cryptox.Provider
	secret []byte
}

func newKeyring(crypto cryptox.Provider, serverSecret string) *keyring {
	return &keyring{crypto: crypto, secret: []byte(serverSecret)}
}

func (k *keyring) kek(profile *models.Profile) []byte {
	return k.crypto.DeriveKey(k.secret, profile.Salt)
}

// wrap seals a fresh data key for storage.
func (k *keyring) wrap(profile *models.Profile, dataKey []byte) (*models.EncryptionKey, error) {
	wrapped, nonce, err := k.crypto.Encrypt(k.kek(profile), dataKey)
	if err != nil {
		return nil, fmt.Errorf("wrapping data key: %w", err)
	}
	return &models.EncryptionKey{
		ProfileID:  profile.ID,
		WrappedKey: wrapped,
		Nonce:      nonce,
	}, nil
}

// unwrap recovers the raw data key from a stored key record. The caller owns
// the returned slice and should wipe it after use.
func (k *keyring) unwrap(profile *models.Profile, record *models.EncryptionKey) ([]byte, error) {
	return k.crypto.Decrypt(k.kek(profile), record.WrappedKey, record.Nonce)
}
