package account

import "context"

// Store persists accounts and their access grants. Implementations must make
// concurrent grant upserts for the same login safe (unique-key upsert or
// row-level locking); the reconciliation core performs no locking of its own.
type Store interface {
	// GetByLogin returns the account with its grants loaded, or ErrNotFound.
	GetByLogin(ctx context.Context, login string) (*Account, error)
	// GetByToken resolves the secondary session-token key, or ErrNotFound.
	GetByToken(ctx context.Context, token string) (*Account, error)
	// Create inserts a new account. Grants on the value are ignored; new
	// accounts start with zero grants.
	Create(ctx context.Context, a *Account) error
	// SetSuperUser stores the super-user flag for the login.
	SetSuperUser(ctx context.Context, login string, super bool) error
	// GrantAccess adds role on each resource for the login, skipping
	// resources already granted at any role.
	GrantAccess(ctx context.Context, login string, role Role, resourceIDs []string) error
	// ListAccessForResource maps each login holding access to the resource
	// to its role.
	ListAccessForResource(ctx context.Context, resourceID string) (map[string]Role, error)
}
