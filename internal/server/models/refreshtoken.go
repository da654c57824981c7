package models

import "time"

// RefreshToken is a persisted refresh credential. Origin is the client IP the
// token was issued to; every later use must come from the same origin.
type RefreshToken struct {
	ID        string
	UserID    string
	Token     string
	Expires   time.Time
	Origin    string
	CreatedAt time.Time
}

// Expired reports whether the token is no longer usable at now. A token whose
// expiry equals now is already expired.
func (t *RefreshToken) Expired(now time.Time) bool {
	return !t.Expires.After(now)
}
