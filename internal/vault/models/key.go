package models

import "time"

// EncryptionKey holds a profile's data key, wrapped (AES-GCM) under the
// engine's key-encryption key. At most one key per profile is active at a
// time; rotation creates a new active key and deactivates the old one in the
// same transaction.
type EncryptionKey struct {
	ID         int64
	ProfileID  int64
	WrappedKey []byte
	Nonce      []byte
	Active     bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
