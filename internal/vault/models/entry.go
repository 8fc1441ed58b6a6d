package models

import "time"

// Entry is a single stored credential. The secret is kept only as AES-GCM
// ciphertext under the encryption key identified by KeyID; plaintext never
// reaches storage.
type Entry struct {
	ID              int64
	ProfileID       int64
	KeyID           int64
	ServiceName     string
	LoginURL        string
	UsernameOrEmail string
	Ciphertext      []byte
	Nonce           []byte
	Notes           string
	LastAccessed    *time.Time
	Strength        int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
