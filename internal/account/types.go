package account

import (
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("account: not found")
	// ErrStore marks a persistence failure. Fatal for the authentication
	// attempt in progress; never retried by this core.
	ErrStore = errors.New("account: store failure")
)

// Role is the access level an account holds on a resource.
type Role string

const (
	RoleView  Role = "view"
	RoleAdmin Role = "admin"
)

// AccessGrant relates an account to one resource. Grants are only ever added
// by the reconciliation core, never escalated or revoked.
type AccessGrant struct {
	Login      string
	ResourceID string
	Role       Role
	CreatedAt  time.Time
}

// Account is the persisted projection of an authenticated identity, keyed by
// login with the session token as a secondary unique lookup key.
type Account struct {
	Login            string
	CredentialSecret string
	Email            string
	Alias            string
	SessionToken     string
	CreatedAt        time.Time
	SuperUser        bool
	Grants           []AccessGrant
}

// Covers reports whether the account already holds any access to the
// resource. Both view and admin count: an existing grant is never re-written
// or escalated.
func (a *Account) Covers(resourceID string) bool {
	for _, g := range a.Grants {
		if g.ResourceID == resourceID {
			return true
		}
	}
	return false
}
