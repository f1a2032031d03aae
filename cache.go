package bastion

import (
	"context"

	"github.com/xraph/bastion/permission"
)

// Cache provides caching for authorization decisions.
type Cache interface {
	// Get returns a cached decision, if available.
	Get(ctx context.Context, principalID string, perm permission.Permission) (*Decision, bool)

	// Set stores a decision in the cache.
	Set(ctx context.Context, principalID string, perm permission.Permission, d *Decision)

	// InvalidatePrincipal removes all cached decisions for a principal.
	InvalidatePrincipal(ctx context.Context, principalID string)

	// Purge removes every cached decision.
	Purge(ctx context.Context)
}
