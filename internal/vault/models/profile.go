// Package models defines the entities persisted by the vault engine.
package models

import "time"

// Profile is the identity root. Every other entity is owned by exactly one
// profile and is removed when the profile is deleted.
type Profile struct {
	ID             int64
	Username       string
	PasswordHash   []byte
	Salt           []byte
	SecretQuestion string
	AnswerHash     []byte
	AnswerSalt     []byte
	// MFASecret holds the TOTP secret. A non-empty value means MFA is
	// enforced on authentication; there is no separate enabled flag.
	MFASecret      string
	FailedAttempts int
	IsLocked       bool
	CreatedAt      time.Time
}
