package models

import "time"

// Event is one append-only audit record. Rows are never updated or deleted
// except through cascading profile deletion; ordering by EventTime is the
// authoritative audit sequence.
type Event struct {
	ID        int64
	ProfileID int64
	EventTime time.Time
	EventType string
	Category  string
	Details   string
}

// Event categories.
const (
	CategoryAuthentication = "Authentication"
	CategoryManagement     = "Management"
)

// Event types.
const (
	EventLogin            = "Login"
	EventLoginFailed      = "Login Failed"
	EventAccountLocked    = "Account Locked"
	EventAccountUnlocked  = "Account Unlocked"
	EventBackupCodeLogin  = "Backup Code Login"
	EventNewUser          = "New User"
	EventUserDeleted      = "User Deleted"
	EventMFAEnabled       = "MFA Enabled"
	EventBackupCodes      = "Backup Codes Generated"
	EventPasswordCreated  = "Password Created"
	EventPasswordAccessed = "Password Accessed"
	EventPasswordUpdated  = "Password Updated"
	EventPasswordDeleted  = "Password Deleted"
	EventKeyRotated       = "Key Rotated"
	EventSessionRevoked   = "Session Revoked"
	EventVaultExported    = "Vault Exported"
)
