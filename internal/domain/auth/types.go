// Package auth contains the domain types and logic for API authentication.
package auth

import (
	"time"
)

// Role represents what a caller may do with the governance API.
type Role string

const (
	// RoleOwner may decide pending actions and change policy.
	RoleOwner Role = "owner"
	// RoleAgent may submit capability invocations on behalf of an
	// organization's users.
	RoleAgent Role = "agent"
	// RoleAuditor has read-only access to the action log and queue.
	RoleAuditor Role = "auditor"
)

// IsValid returns true if the role is a known valid role.
func (r Role) IsValid() bool {
	switch r {
	case RoleOwner, RoleAgent, RoleAuditor:
		return true
	default:
		return false
	}
}

// Identity represents an authenticated caller, scoped to one organization.
// All reads and writes performed under this identity are confined to
// OrganizationID.
type Identity struct {
	// ID is the unique identifier for this identity.
	ID string
	// Name is the display name for this identity.
	Name string
	// OrganizationID scopes every operation this identity performs.
	OrganizationID string
	// Roles are the roles assigned to this identity.
	Roles []Role
}

// HasRole returns true if the identity has the specified role.
func (i *Identity) HasRole(role Role) bool {
	for _, r := range i.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// HasAnyRole returns true if the identity has any of the specified roles.
func (i *Identity) HasAnyRole(roles ...Role) bool {
	for _, role := range roles {
		if i.HasRole(role) {
			return true
		}
	}
	return false
}

// APIKey represents an API key for authentication.
type APIKey struct {
	// Key is the hashed key value (SHA-256 hex or Argon2id PHC format).
	Key string
	// IdentityID maps this key to an Identity.
	IdentityID string
	// Name is a human-readable label for this key.
	Name string
	// CreatedAt is when the key was created (UTC).
	CreatedAt time.Time
	// ExpiresAt is when the key expires (nil = never expires).
	ExpiresAt *time.Time
	// Revoked indicates if the key has been revoked.
	Revoked bool
}

// IsExpired returns true if the API key has expired.
// A key with nil ExpiresAt never expires.
func (k *APIKey) IsExpired() bool {
	if k.ExpiresAt == nil {
		return false
	}
	return time.Now().UTC().After(*k.ExpiresAt)
}
