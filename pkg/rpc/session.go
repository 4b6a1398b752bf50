package rpc

import (
	"time"
)

// SessionStorageKey is the storage key the current session is persisted under.
const SessionStorageKey = "sb_session"

// Session is the bearer credential for "pu_" procedures. ExpiresAt is in
// epoch milliseconds.
type Session struct {
	Token        string `json:"token"`
	ExpiresAt    int64  `json:"expiresAt"`
	RefreshToken string `json:"refreshToken"`
}

// Valid reports whether the session is unexpired at now.
func (s *Session) Valid(now time.Time) bool {
	return s != nil && s.ExpiresAt > now.UnixMilli()
}

// Clock returns the current time.
type Clock func() time.Time

func (c Clock) now() time.Time {
	if c == nil {
		return time.Now()
	}
	return c()
}
