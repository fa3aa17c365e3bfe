// Package ctxkey defines shared context key types used across multiple packages.
// This package should have no dependencies on other internal packages to avoid import cycles.
package ctxkey

// IdentityKey is the context key type for the authenticated caller identity.
// Set by the API key middleware, read by handlers that need the caller's
// organization scope or decided_by attribution.
type IdentityKey struct{}
