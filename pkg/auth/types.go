package auth

import (
	"context"
	"time"
)

// User represents a platform user account
type User struct {
	ID          int64      `json:"id"`
	Email       string     `json:"email"`
	Name        string     `json:"name,omitempty"`
	IsActive    bool       `json:"is_active"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
}

// Role represents a member's role within one organization. Roles are scoped
// to a membership, never global: the same user can be an admin in one
// organization and a tenant in another.
type Role string

const (
	RoleOwner         Role = "owner"
	RoleAdmin         Role = "admin"
	RoleStaff         Role = "staff"
	RolePropertyOwner Role = "property_owner"
	RoleCaretaker     Role = "caretaker"
	RoleTenant        Role = "tenant"
	RoleMember        Role = "member"
)

// ValidRoles returns the closed set of assignable roles
func ValidRoles() []Role {
	return []Role{RoleOwner, RoleAdmin, RoleStaff, RolePropertyOwner, RoleCaretaker, RoleTenant, RoleMember}
}

// IsValid reports whether r is one of the assignable roles
func (r Role) IsValid() bool {
	for _, v := range ValidRoles() {
		if r == v {
			return true
		}
	}
	return false
}

// Session represents a resolved session token. OrganizationID and TeamID
// carry the user's active organization and team selection; either may be nil.
type Session struct {
	Token          string     `json:"-"` // never expose the raw token
	UserID         int64      `json:"user_id"`
	OrganizationID *int64     `json:"organization_id,omitempty"`
	TeamID         *int64     `json:"team_id,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	ExpiresAt      time.Time  `json:"expires_at"`
	LastSeenAt     *time.Time `json:"last_seen_at,omitempty"`
}

// Expired reports whether the session is past its expiry
func (s *Session) Expired() bool {
	return time.Now().After(s.ExpiresAt)
}

// SessionResolver resolves a session token to its session record.
// Implementations return NotFoundError for unknown or expired tokens.
type SessionResolver interface {
	ResolveSession(ctx context.Context, token string) (*Session, error)
}

// SessionToucher records session activity. Resolvers backed by the sessions
// table implement it alongside SessionResolver; the auth middleware touches
// the session on each successful resolution when the resolver supports it.
type SessionToucher interface {
	TouchSession(ctx context.Context, token string) error
}

// UserLookup loads user records by id
type UserLookup interface {
	GetUser(ctx context.Context, id int64) (*User, error)
}
