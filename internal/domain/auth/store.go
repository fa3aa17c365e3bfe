package auth

import (
	"context"
	"errors"
)

// Sentinel errors for credential lookups.
var (
	// ErrKeyNotFound is returned when no API key matches a hash.
	ErrKeyNotFound = errors.New("api key not found")
	// ErrIdentityNotFound is returned when an identity id is unknown.
	ErrIdentityNotFound = errors.New("identity not found")
)

// Store provides credential lookup for authentication.
// Interface owned by the domain per hexagonal architecture.
type Store interface {
	// GetAPIKey retrieves an API key by its hash.
	// Returns ErrKeyNotFound if the key doesn't exist.
	GetAPIKey(ctx context.Context, keyHash string) (*APIKey, error)

	// GetIdentity retrieves an identity by ID.
	// Returns ErrIdentityNotFound if the identity doesn't exist.
	GetIdentity(ctx context.Context, id string) (*Identity, error)

	// ListAPIKeys returns all stored API keys for iteration-based
	// verification of Argon2id hashes.
	ListAPIKeys(ctx context.Context) ([]*APIKey, error)
}
