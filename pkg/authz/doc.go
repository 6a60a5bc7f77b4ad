// Package authz is the authorization core: the role permission table, the
// property-ownership resolver, team-to-property assignments, per-resource
// permission overrides, and the per-request permission engine that combines
// them into a single allow/deny decision.
//
// Every decision is scoped to one organization. The decision order is fixed:
// agent-owner bypass, admin/owner role bypass, role-table gate, then
// team-scoped refinement (direct property assignment, property-derived
// ownership, explicit overrides), with teamless members falling back to the
// role-table verdict. Reordering these steps changes observable outcomes, so
// the engine implements them as a single linear function rather than
// pluggable rules.
package authz
