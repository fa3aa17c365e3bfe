package api

import (
	"context"

	"github.com/actiongate/actiongate/internal/ctxkey"
	"github.com/actiongate/actiongate/internal/domain/auth"
)

// identityInto stores the authenticated identity on the context.
func identityInto(ctx context.Context, identity *auth.Identity) context.Context {
	return context.WithValue(ctx, ctxkey.IdentityKey{}, identity)
}

// identityFrom returns the authenticated identity, or nil when the request
// ran unauthenticated (no key service configured).
func identityFrom(ctx context.Context) *auth.Identity {
	identity, _ := ctx.Value(ctxkey.IdentityKey{}).(*auth.Identity)
	return identity
}

// scopeOrganization resolves the effective organization for a request: an
// authenticated identity bound to an organization always wins over the
// caller-supplied value, so one organization's key cannot read or act on
// another's data.
func scopeOrganization(ctx context.Context, requested string) string {
	if identity := identityFrom(ctx); identity != nil && identity.OrganizationID != "" {
		return identity.OrganizationID
	}
	return requested
}
