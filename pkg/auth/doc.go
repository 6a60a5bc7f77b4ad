// Package auth defines the identity types shared across the platform: users,
// sessions, organization roles, and the error taxonomy used by the
// authorization core.
//
// Session issuance and credential verification are owned by an external
// identity service; this package only resolves already-issued session tokens
// to their user and active organization/team context.
package auth
