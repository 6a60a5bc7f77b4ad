package orgs

import (
	"context"
	"time"

	"github.com/rentgrid/rentgrid/pkg/auth"
)

// OrgStatus represents organization status
type OrgStatus string

const (
	OrgStatusActive    OrgStatus = "active"
	OrgStatusSuspended OrgStatus = "suspended"
	OrgStatusDeleted   OrgStatus = "deleted"
)

// MemberStatus represents a membership's lifecycle state. Only active
// members receive role-based permissions.
type MemberStatus string

const (
	MemberStatusActive   MemberStatus = "active"
	MemberStatusPending  MemberStatus = "pending"
	MemberStatusInactive MemberStatus = "inactive"
	MemberStatusRejected MemberStatus = "rejected"
)

// Organization represents a tenant
type Organization struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Slug         string    `json:"slug"`
	AgentOwnerID int64     `json:"agent_owner_id"`
	Status       OrgStatus `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Member represents a user's membership in one organization. At most one
// member row exists per (user, organization); a member belongs to at most
// one team at a time.
type Member struct {
	ID             int64        `json:"id"`
	UserID         int64        `json:"user_id"`
	OrganizationID int64        `json:"organization_id"`
	Role           auth.Role    `json:"role"`
	TeamID         *int64       `json:"team_id,omitempty"`
	Status         MemberStatus `json:"status"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// Team groups members within an organization and scopes them to a subset of
// the organization's properties.
type Team struct {
	ID             int64     `json:"id"`
	OrganizationID int64     `json:"organization_id"`
	Name           string    `json:"name"`
	Description    string    `json:"description,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// CreateTeamRequest represents a request to create a team
type CreateTeamRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// UpdateTeamRequest represents a request to update a team
type UpdateTeamRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

// Service defines the interface for tenancy management
type Service interface {
	// Organizations
	GetOrganization(ctx context.Context, id int64) (*Organization, error)

	// Members
	GetMember(ctx context.Context, userID, organizationID int64) (*Member, error)
	ListMembers(ctx context.Context, organizationID int64) ([]*Member, error)
	AddMember(ctx context.Context, organizationID, userID int64, role auth.Role) (*Member, error)
	UpdateMemberRole(ctx context.Context, organizationID, userID int64, role auth.Role) error
	UpdateMemberTeam(ctx context.Context, organizationID, userID int64, teamID *int64) error
	RemoveMember(ctx context.Context, organizationID, userID int64) error

	// Teams
	CreateTeam(ctx context.Context, team *Team) error
	GetTeam(ctx context.Context, id int64) (*Team, error)
	ListTeams(ctx context.Context, organizationID int64) ([]*Team, error)
	UpdateTeam(ctx context.Context, team *Team) error
	DeleteTeam(ctx context.Context, id int64) error
}
