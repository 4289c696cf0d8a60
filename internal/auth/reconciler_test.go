package auth

import (
	"context"
	"errors"
	"testing"

	"pkigate.org/internal/account"
	"pkigate.org/internal/groups"
	"pkigate.org/internal/identity"
	"pkigate.org/internal/policy"
)

func basePolicy() *policy.Policy {
	return policy.New(policy.Config{
		SuperUsers:       []string{"bob"},
		DefaultResources: []string{"1", "2"},
	}, nil)
}

func aliceIdentity() identity.Identity {
	key := []byte("test-key")
	secret := identity.CredentialSecret(key, "alice", "CN=alice")
	return identity.Identity{
		Login:            "alice",
		Email:            "alice@example.org",
		Alias:            "Alice Cooper",
		SubjectDN:        "CN=alice",
		CredentialSecret: secret,
		SessionToken:     identity.SessionToken(key, "alice", secret),
	}
}

func TestProvisionThenIdempotent(t *testing.T) {
	store := account.NewInMemory()
	r := NewReconciler(store, basePolicy())
	ctx := context.Background()

	res, err := r.ResolveOrProvision(ctx, aliceIdentity())
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if !res.Provisioned {
		t.Fatal("first run must provision")
	}
	if res.Account.SuperUser {
		t.Fatal("alice is not a super-user")
	}
	if len(res.Account.Grants) != 2 {
		t.Fatalf("expected view on both default resources, got %+v", res.Account.Grants)
	}
	for _, g := range res.Account.Grants {
		if g.Role != account.RoleView {
			t.Fatalf("default grants must be view, got %s", g.Role)
		}
	}

	writes := store.Writes()
	res2, err := r.ResolveOrProvision(ctx, aliceIdentity())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if res2.Provisioned {
		t.Fatal("second run must not provision")
	}
	if store.Writes() != writes {
		t.Fatalf("second identical run performed writes: %d -> %d", writes, store.Writes())
	}
	if len(res2.Account.Grants) != 2 {
		t.Fatalf("grant set changed: %+v", res2.Account.Grants)
	}
}

func TestSuperUserIndependentOfViewability(t *testing.T) {
	// bob is denied by the allow-list but configured as super-user; the
	// account is still provisioned and still receives the default grants.
	pol := policy.New(policy.Config{
		SuperUsers:       []string{"bob"},
		DefaultResources: []string{"1", "2"},
		ViewableUsers:    "carol\ndave",
	}, nil)
	store := account.NewInMemory()
	r := NewReconciler(store, pol)

	res, err := r.ResolveOrProvision(context.Background(), identity.Identity{Login: "bob", SubjectDN: "CN=bob", SessionToken: "tok-bob"})
	if err != nil {
		t.Fatalf("ResolveOrProvision: %v", err)
	}
	if !res.Account.SuperUser {
		t.Fatal("bob must be super-user")
	}
	if len(res.Account.Grants) != 2 {
		t.Fatalf("super-user still receives default grants: %+v", res.Account.Grants)
	}
}

func TestDeniedLoginNotProvisioned(t *testing.T) {
	pol := policy.New(policy.Config{
		SuperUsers:       []string{},
		DefaultResources: []string{"1"},
		ViewableUsers:    "carol\ndave",
	}, nil)
	store := account.NewInMemory()
	r := NewReconciler(store, pol)

	_, err := r.ResolveOrProvision(context.Background(), identity.Identity{Login: "erin", SubjectDN: "CN=erin"})
	if !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected ErrNotAuthorized, got %v", err)
	}
	if store.Writes() != 0 {
		t.Fatal("denial must not create an account")
	}
	if _, err := store.GetByLogin(context.Background(), "erin"); !errors.Is(err, account.ErrNotFound) {
		t.Fatal("no account may exist for erin")
	}
}

func TestExistingDeniedAccountKeepsGrants(t *testing.T) {
	// Denial only gates provisioning. An account that already exists keeps
	// everything it has: reconciliation never revokes.
	store := account.NewInMemory()
	ctx := context.Background()
	store.Create(ctx, &account.Account{Login: "erin", SessionToken: "tok-erin"})
	store.GrantAccess(ctx, "erin", account.RoleView, []string{"9"})

	pol := policy.New(policy.Config{
		SuperUsers:       []string{},
		DefaultResources: []string{"1"},
		ViewableUsers:    "carol",
	}, nil)
	r := NewReconciler(store, pol)

	res, err := r.ResolveOrProvision(ctx, identity.Identity{Login: "erin"})
	if err != nil {
		t.Fatalf("existing account must authenticate: %v", err)
	}
	if len(res.Account.Grants) != 1 || res.Account.Grants[0].ResourceID != "9" {
		t.Fatalf("grants must be untouched: %+v", res.Account.Grants)
	}
}

func TestGroupModeUnreachableAbortsBeforeMutation(t *testing.T) {
	pol := policy.New(policy.Config{
		SuperUsers:       []string{},
		DefaultResources: []string{"1"},
		UseGroupPolicy:   true,
		Group:            "g",
		Project:          "p",
	}, groups.Down{})
	store := account.NewInMemory()
	r := NewReconciler(store, pol)

	_, err := r.ResolveOrProvision(context.Background(), aliceIdentity())
	if !errors.Is(err, groups.ErrUnreachable) {
		t.Fatalf("expected ErrUnreachable, got %v", err)
	}
	if store.Writes() != 0 {
		t.Fatal("unreachable policy must not mutate the store")
	}
}

func TestMissingConfigAbortsBeforeMutation(t *testing.T) {
	cases := []struct {
		name string
		cfg  policy.Config
	}{
		{"superusers undeclared", policy.Config{DefaultResources: []string{"1"}}},
		{"default resources undeclared", policy.Config{SuperUsers: []string{}}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			store := account.NewInMemory()
			r := NewReconciler(store, policy.New(c.cfg, nil))
			_, err := r.ResolveOrProvision(context.Background(), aliceIdentity())
			if !errors.Is(err, policy.ErrConfiguration) {
				t.Fatalf("expected ErrConfiguration, got %v", err)
			}
			if store.Writes() != 0 {
				t.Fatal("configuration error must precede any store mutation")
			}
		})
	}
}

func TestSuperUserFlagFollowsConfig(t *testing.T) {
	store := account.NewInMemory()
	ctx := context.Background()

	promote := policy.New(policy.Config{SuperUsers: []string{"alice"}, DefaultResources: []string{}}, nil)
	res, err := NewReconciler(store, promote).ResolveOrProvision(ctx, aliceIdentity())
	if err != nil || !res.Account.SuperUser {
		t.Fatalf("expected promotion: %+v %v", res.Account, err)
	}

	// Config edit removes alice; the very next authentication demotes.
	demote := policy.New(policy.Config{SuperUsers: []string{}, DefaultResources: []string{}}, nil)
	res, err = NewReconciler(store, demote).ResolveOrProvision(ctx, aliceIdentity())
	if err != nil {
		t.Fatal(err)
	}
	if res.Account.SuperUser {
		t.Fatal("expected demotion on next authentication")
	}
	stored, _ := store.GetByLogin(ctx, "alice")
	if stored.SuperUser {
		t.Fatal("stored flag must be recomputed, not cached")
	}
}

func TestExistingAdminGrantNotTouched(t *testing.T) {
	store := account.NewInMemory()
	ctx := context.Background()
	store.Create(ctx, &account.Account{Login: "alice", SessionToken: "tok-a"})
	store.GrantAccess(ctx, "alice", account.RoleAdmin, []string{"1"})

	r := NewReconciler(store, basePolicy())
	res, err := r.ResolveOrProvision(ctx, aliceIdentity())
	if err != nil {
		t.Fatal(err)
	}
	// "1" is covered by admin and stays admin; only "2" is added as view.
	var roles = map[string]account.Role{}
	for _, g := range res.Account.Grants {
		roles[g.ResourceID] = g.Role
	}
	if roles["1"] != account.RoleAdmin || roles["2"] != account.RoleView {
		t.Fatalf("unexpected roles: %v", roles)
	}
}

func TestTokenLookupResolvesLogin(t *testing.T) {
	store := account.NewInMemory()
	ctx := context.Background()
	store.Create(ctx, &account.Account{Login: "alice", SessionToken: "tok-a"})

	r := NewReconciler(store, basePolicy())
	res, err := r.ResolveOrProvision(ctx, identity.Identity{SessionToken: "tok-a"})
	if err != nil {
		t.Fatalf("token lookup: %v", err)
	}
	if res.Account.Login != "alice" || res.Provisioned {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestUnknownTokenNotProvisioned(t *testing.T) {
	// Empty allow-list makes every login viewable, but a token that was
	// never issued resolves no account and must not reach provisioning.
	store := account.NewInMemory()
	r := NewReconciler(store, basePolicy())

	_, err := r.ResolveOrProvision(context.Background(), identity.Identity{SessionToken: "never-issued"})
	if !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected ErrNotAuthorized, got %v", err)
	}
	if store.Writes() != 0 {
		t.Fatal("unknown token must not mutate the store")
	}
	if _, err := store.GetByLogin(context.Background(), ""); !errors.Is(err, account.ErrNotFound) {
		t.Fatal("no account may exist for an empty login")
	}
}

func TestStaleTokenForMissingAccountDenied(t *testing.T) {
	// A cookie can outlive its account. The bound login is present but the
	// token-only identity still may not re-provision.
	store := account.NewInMemory()
	r := NewReconciler(store, basePolicy())

	_, err := r.ResolveOrProvision(context.Background(), identity.Identity{Login: "alice", SessionToken: "tok-stale"})
	if !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected ErrNotAuthorized, got %v", err)
	}
	if store.Writes() != 0 {
		t.Fatal("stale token must not mutate the store")
	}
}

type failingStore struct {
	account.Store
}

func (f failingStore) GetByLogin(ctx context.Context, login string) (*account.Account, error) {
	return nil, errors.New("connection refused")
}

func TestStoreFailureSurfaces(t *testing.T) {
	r := NewReconciler(failingStore{}, basePolicy())
	_, err := r.ResolveOrProvision(context.Background(), aliceIdentity())
	if err == nil || errors.Is(err, account.ErrNotFound) {
		t.Fatalf("store failure must surface: %v", err)
	}
}
