package library

import (
	"time"

	"github.com/google/uuid"
)

// Role is the capability a caller claims at login. It is asserted by the
// caller and never checked against stored member data; there is no
// per-member role field. This is a known authorization gap preserved from
// the source system, kept explicit rather than silently fixed.
type Role string

const (
	RoleMember    Role = "member"
	RoleLibrarian Role = "librarian"
)

// Session is the authenticated identity and claimed role for one login.
// It is returned by Login and passed explicitly to member-scoped
// operations; there is no process-wide session state.
type Session struct {
	ID        string
	Member    Member
	Role      Role
	StartedAt time.Time
}

func newSession(m Member, role Role, now time.Time) *Session {
	return &Session{
		ID:        uuid.NewString(),
		Member:    m,
		Role:      role,
		StartedAt: now,
	}
}
