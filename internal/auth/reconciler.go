package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pkigate.org/internal/account"
	"pkigate.org/internal/identity"
	"pkigate.org/internal/obs"
	"pkigate.org/internal/policy"
)

// Reconciler converges a resolved identity's stored account toward the
// policy-defined target: find or provision the account, keep the super-user
// flag in sync, and grow the grant set up to the default resource list.
// Reconciliation is strictly additive; nothing here ever revokes access.
type Reconciler struct {
	store  account.Store
	policy *policy.Policy
	now    func() time.Time
}

// ReconcilerOption configures Reconciler behavior.
type ReconcilerOption func(*Reconciler)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ReconcilerOption {
	return func(r *Reconciler) {
		if fn != nil {
			r.now = fn
		}
	}
}

// NewReconciler constructs a Reconciler over the given store and policy.
func NewReconciler(store account.Store, pol *policy.Policy, opts ...ReconcilerOption) *Reconciler {
	r := &Reconciler{store: store, policy: pol, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ReconcileResult carries the persisted account plus whether this attempt
// provisioned it. Provisioned feeds logging only, never a functional branch.
type ReconcileResult struct {
	Account     *account.Account
	Provisioned bool
}

// ResolveOrProvision finds or creates the account for the identity and
// reconciles its super-user flag and grant set. Only certificate-resolved
// identities may provision; a token-only identity must match an existing
// account or the attempt is denied. Policy questions are answered
// before any mutation so a configuration error or unreachable membership
// service leaves the store untouched. Super-user and grant updates are
// best-effort sequential writes, each independently idempotent; they are not
// atomic with each other.
func (r *Reconciler) ResolveOrProvision(ctx context.Context, id identity.Identity) (ReconcileResult, error) {
	acct, err := r.lookup(ctx, id)
	if err != nil {
		return ReconcileResult{}, err
	}
	login := id.Login
	if acct != nil {
		// Token lookups resolve the login; the DN is never a matching key.
		login = acct.Login
	} else if id.SubjectDN == "" || login == "" {
		// Only the certificate path may provision. A session token that
		// resolves to no stored account was never issued by a prior
		// attempt, so it authenticates nothing.
		return ReconcileResult{}, ErrNotAuthorized
	}

	super, err := r.policy.IsSuperUser(login)
	if err != nil {
		return ReconcileResult{}, err
	}
	targets, err := r.policy.DefaultResourceIDs()
	if err != nil {
		return ReconcileResult{}, err
	}
	viewable, err := r.policy.IsViewableUser(ctx, login, id.SubjectDN)
	if err != nil {
		return ReconcileResult{}, err
	}

	provisioned := false
	if acct == nil {
		if !viewable && !super {
			return ReconcileResult{}, ErrNotAuthorized
		}
		acct = &account.Account{
			Login:            login,
			CredentialSecret: id.CredentialSecret,
			Email:            id.Email,
			Alias:            id.Alias,
			SessionToken:     id.SessionToken,
			CreatedAt:        r.now().UTC(),
		}
		if err := r.store.Create(ctx, acct); err != nil {
			return ReconcileResult{}, fmt.Errorf("create %s: %w", login, err)
		}
		provisioned = true
		obs.Info("provisioned account", map[string]any{"login": login})
		obs.AccountProvisioned()
	}

	// The stored flag follows configuration on every attempt, so a config
	// edit promotes or demotes on the very next authentication. The write
	// is skipped when the value already matches, keeping a repeat run
	// write-free.
	if acct.SuperUser != super {
		if err := r.store.SetSuperUser(ctx, login, super); err != nil {
			return ReconcileResult{}, fmt.Errorf("set super-user %s: %w", login, err)
		}
		acct.SuperUser = super
	}

	if viewable || super {
		var missing []string
		for _, target := range targets {
			if !acct.Covers(target) {
				missing = append(missing, target)
			}
		}
		if len(missing) > 0 {
			if err := r.store.GrantAccess(ctx, login, account.RoleView, missing); err != nil {
				return ReconcileResult{}, fmt.Errorf("grant access %s: %w", login, err)
			}
			for _, resourceID := range missing {
				acct.Grants = append(acct.Grants, account.AccessGrant{
					Login:      login,
					ResourceID: resourceID,
					Role:       account.RoleView,
				})
			}
			obs.GrantsWritten(len(missing))
		}
	}

	return ReconcileResult{Account: acct, Provisioned: provisioned}, nil
}

func (r *Reconciler) lookup(ctx context.Context, id identity.Identity) (*account.Account, error) {
	acct, err := r.store.GetByLogin(ctx, id.Login)
	if err == nil {
		return acct, nil
	}
	if !errors.Is(err, account.ErrNotFound) {
		return nil, fmt.Errorf("lookup %s: %w", id.Login, err)
	}
	acct, err = r.store.GetByToken(ctx, id.SessionToken)
	if err == nil {
		return acct, nil
	}
	if !errors.Is(err, account.ErrNotFound) {
		return nil, fmt.Errorf("lookup by token: %w", err)
	}
	return nil, nil
}
