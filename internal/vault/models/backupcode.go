package models

import "time"

// BackupCode is a single-use fallback authentication credential. Only the
// hash is stored; the plaintext code is shown to the user once at issuance.
type BackupCode struct {
	ID        int64
	ProfileID int64
	CodeHash  []byte
	Salt      []byte
	Used      bool
	CreatedAt time.Time
}
