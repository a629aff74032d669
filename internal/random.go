package internal

import (
	"crypto/rand"
	"encoding/base64"
)

// SessionID is the raw form of a session identifier.
type SessionID [16]byte

// NewSessionID draws 128 random bits.
func NewSessionID() (SessionID, error) {
	var sid SessionID
	_, err := rand.Read(sid[:])
	return sid, err
}

func (s SessionID) String() string {
	// base64url, no padding, compact
	return base64.RawURLEncoding.EncodeToString(s[:])
}
