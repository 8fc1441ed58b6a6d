package models

import "time"

// Session is an authenticated caller's handle. The row is authoritative:
// a session is valid iff it exists and the expiry time is in the future.
// Revocation is deletion.
type Session struct {
	ID         string
	ProfileID  int64
	StartTime  time.Time
	ExpiryTime time.Time
}
