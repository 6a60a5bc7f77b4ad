// Package orgs manages the tenancy model: organizations, their members, and
// teams. An organization is the hard isolation boundary; every authorization
// decision downstream is scoped to exactly one organization.
//
// The agent owner of an organization (Organization.AgentOwnerID) holds
// implicit full authority over everything in it and bypasses role checks
// entirely.
package orgs
