package session

import (
	"time"

	"github.com/rs/zerolog"
)

// Role is the coarse authorization tier carried by a session.
type Role string

const (
	RolePublicViewer Role = "publicViewer"
	RoleMember       Role = "member"
	RoleAdmin        Role = "admin"
)

// Valid reports whether r is one of the known tiers.
func (r Role) Valid() bool {
	switch r {
	case RolePublicViewer, RoleMember, RoleAdmin:
		return true
	default:
		return false
	}
}

// Authenticated reports whether r belongs to a logged-in account.
func (r Role) Authenticated() bool {
	return r == RoleMember || r == RoleAdmin
}

// Session is the server-side record referenced by a visitor cookie.
//
// FlashKind zero means no notice is pending. Version is owned by the Store and
// advances on every successful write.
type Session struct {
	ID string

	Role      Role
	Username  string
	CSRFToken string

	FlashKind uint8
	FlashArg  string

	Version   uint64
	CreatedAt int64
	ExpiresAt int64
}

// Expired reports whether the absolute deadline has passed at now.
func (s *Session) Expired(now time.Time) bool {
	return now.Unix() >= s.ExpiresAt
}

// Expiry returns ExpiresAt as a time.Time.
func (s *Session) Expiry() time.Time {
	return time.Unix(s.ExpiresAt, 0)
}

// Clone returns a copy of s.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	return &out
}

// MarshalZerologObject logs the session without its CSRF token.
func (s *Session) MarshalZerologObject(event *zerolog.Event) {
	event.Str("id", s.ID).
		Str("role", string(s.Role)).
		Str("username", s.Username).
		Bool("csrf_pending", s.CSRFToken != "").
		Uint8("flash_kind", s.FlashKind).
		Uint64("version", s.Version).
		Int64("expires_at", s.ExpiresAt)
}
