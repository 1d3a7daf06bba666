package session

import "time"

// Record is the server-side state of one refresh session.
type Record struct {
	SessionID string
	UserID    string
	// TokenID is the jti of the only refresh token currently accepted.
	TokenID   string
	CreatedAt int64
	ExpiresAt int64
}

// Expired reports whether the record is past its expiry at now.
func (r *Record) Expired(now time.Time) bool {
	return r.ExpiresAt <= now.Unix()
}
