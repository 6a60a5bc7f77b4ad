package authz

import (
	"time"

	"github.com/rentgrid/rentgrid/pkg/auth"
)

// ResourceType is a closed enum of resource kinds the engine understands.
// Adding a resource type means adding it here, to the role table data, and
// (if property-derived) to the ownership resolver's switch.
type ResourceType string

const (
	ResourceProperty     ResourceType = "property"
	ResourceUnit         ResourceType = "unit"
	ResourceLease        ResourceType = "lease"
	ResourceTenant       ResourceType = "tenant"
	ResourceMaintenance  ResourceType = "maintenance"
	ResourceTeam         ResourceType = "team"
	ResourceMember       ResourceType = "member"
	ResourceOrganization ResourceType = "organization"
	ResourceReport       ResourceType = "report"
	ResourceMessage      ResourceType = "message"
)

// ValidResourceTypes returns all known resource types
func ValidResourceTypes() []ResourceType {
	return []ResourceType{
		ResourceProperty,
		ResourceUnit,
		ResourceLease,
		ResourceTenant,
		ResourceMaintenance,
		ResourceTeam,
		ResourceMember,
		ResourceOrganization,
		ResourceReport,
		ResourceMessage,
	}
}

// IsValid checks if the resource type is known
func (rt ResourceType) IsValid() bool {
	for _, known := range ValidResourceTypes() {
		if rt == known {
			return true
		}
	}
	return false
}

// PropertyDerived reports whether the resource type resolves to an owning
// property for team-scoped checks. Property itself is checked directly
// against team assignments, not through the resolver.
func (rt ResourceType) PropertyDerived() bool {
	switch rt {
	case ResourceUnit, ResourceLease, ResourceTenant, ResourceMaintenance:
		return true
	}
	return false
}

// Action is a closed enum of operations on a resource
type Action string

const (
	ActionView   Action = "view"
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
	ActionAssign Action = "assign"
	ActionExport Action = "export"
)

// ValidActions returns all known actions
func ValidActions() []Action {
	return []Action{ActionView, ActionCreate, ActionUpdate, ActionDelete, ActionAssign, ActionExport}
}

// IsValid checks if the action is known
func (a Action) IsValid() bool {
	for _, known := range ValidActions() {
		if a == known {
			return true
		}
	}
	return false
}

// Override is one explicit per-resource grant
type Override struct {
	TeamID       int64        `json:"team_id"`
	ResourceType ResourceType `json:"resource_type"`
	ResourceID   int64        `json:"resource_id"`
	Action       Action       `json:"action"`
	CreatedAt    time.Time    `json:"created_at"`
}

// RolePermissions maps resource types to the actions a role may perform
type RolePermissions map[ResourceType][]Action

// DefaultRolePermissions returns the built-in role permission table. It is
// data so it can be audited row by row and tested exhaustively. Admin and
// owner are absent on purpose: they bypass the table entirely.
func DefaultRolePermissions() map[auth.Role]RolePermissions {
	return map[auth.Role]RolePermissions{
		auth.RoleStaff: {
			ResourceProperty:    {ActionView, ActionCreate, ActionUpdate},
			ResourceUnit:        {ActionView, ActionCreate, ActionUpdate},
			ResourceLease:       {ActionView, ActionCreate, ActionUpdate},
			ResourceTenant:      {ActionView, ActionCreate, ActionUpdate},
			ResourceMaintenance: {ActionView, ActionCreate, ActionUpdate, ActionDelete},
			ResourceReport:      {ActionView},
			ResourceMessage:     {ActionView, ActionCreate},
		},
		auth.RolePropertyOwner: {
			ResourceProperty:    {ActionView},
			ResourceUnit:        {ActionView},
			ResourceLease:       {ActionView},
			ResourceTenant:      {ActionView},
			ResourceMaintenance: {ActionView, ActionCreate},
			ResourceReport:      {ActionView, ActionExport},
			ResourceMessage:     {ActionView, ActionCreate},
		},
		auth.RoleCaretaker: {
			ResourceProperty:    {ActionView},
			ResourceUnit:        {ActionView},
			ResourceMaintenance: {ActionView, ActionCreate, ActionUpdate},
			ResourceMessage:     {ActionView, ActionCreate},
		},
		auth.RoleTenant: {
			ResourceLease:       {ActionView},
			ResourceMaintenance: {ActionView, ActionCreate},
			ResourceMessage:     {ActionView, ActionCreate},
		},
		auth.RoleMember: {
			ResourceProperty: {ActionView},
			ResourceMessage:  {ActionView},
		},
	}
}
