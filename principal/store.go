package principal

import "context"

// Store is the Principal Directory contract.
type Store interface {
	// GetPrincipal retrieves a principal by ID. Missing principals yield an
	// error wrapping ErrNotFound.
	GetPrincipal(ctx context.Context, principalID string) (*Principal, error)

	// SavePrincipal creates or replaces a principal. It is the provisioning
	// path used by the identity process; role and status changes go
	// through the engine instead.
	SavePrincipal(ctx context.Context, p *Principal) error

	// ListPrincipals returns principals matching the filter, ordered by ID.
	ListPrincipals(ctx context.Context, filter *ListFilter) ([]*Principal, error)
}
