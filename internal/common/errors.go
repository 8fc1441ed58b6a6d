// Package common defines shared constants and sentinel errors used across
// the vault engine. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")
	ErrorValidation   = errors.New("validation error")

	// Account errors. ErrorInvalidCredentials deliberately covers both an
	// unknown username and a wrong password so callers cannot enumerate users.
	ErrorInvalidCredentials = errors.New("invalid credentials")
	ErrorAccountLocked      = errors.New("account locked")
	ErrorDuplicateUsername  = errors.New("username already taken")
	ErrorInvalidBackupCode  = errors.New("invalid backup code")
	ErrorInvalidMFACode     = errors.New("invalid mfa code")
	ErrorMFAAlreadyEnabled  = errors.New("mfa already enabled")

	// Session lifecycle errors.
	ErrorSessionExpired  = errors.New("session expired")
	ErrorSessionNotFound = errors.New("session not found")
	ErrInvalidToken      = errors.New("invalid token")

	// Invariant violations (programming-bug class, never expected in a
	// healthy installation).
	ErrorNoActiveKey = errors.New("no active encryption key")
)
