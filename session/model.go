package session

// Session is the server-side record for one authenticated client context.
//
// Timestamps are epoch milliseconds. The principal fields are a snapshot taken at
// creation or refresh time.
type Session struct {
	SessionID string

	UserID      string
	Username    string
	Email       string
	Role        string
	Permissions []string

	AccessToken  string
	RefreshToken string

	CreatedAt    int64
	LastActivity int64
	ExpiresAt    int64

	IPAddress  string
	UserAgent  string
	DeviceInfo string

	IsActive bool
}

// Clone returns a deep copy so callers never share slices with a repository.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	if s.Permissions != nil {
		out.Permissions = append([]string(nil), s.Permissions...)
	}
	return &out
}

// ExpiredAt reports whether the record is past its expiry at nowMillis.
func (s *Session) ExpiredAt(nowMillis int64) bool {
	return nowMillis > s.ExpiresAt
}

// ActiveAt reports whether the record counts toward the user's active sessions.
func (s *Session) ActiveAt(nowMillis int64) bool {
	return s.IsActive && nowMillis < s.ExpiresAt
}
