package auth

import (
	"context"
	"errors"
	"testing"

	"pkigate.org/internal/account"
	"pkigate.org/internal/directory"
	"pkigate.org/internal/groups"
	"pkigate.org/internal/policy"
)

var testKey = []byte("deployment-key")

func testDirectory() directory.Static {
	return directory.Static{
		"CN=alice": {UID: "alice", FullName: "Alice B. Cooper", Email: "alice@example.org", FirstName: "alice", LastName: "cooper"},
		"CN=bob":   {UID: "bob", FullName: "Bob Dobbs", Email: "bob@example.org"},
	}
}

func newAuthenticator(store account.Store, pol *policy.Policy) *Authenticator {
	return NewAuthenticator(testDirectory(), NewReconciler(store, pol), testKey)
}

func TestAuthenticateNoCredential(t *testing.T) {
	a := newAuthenticator(account.NewInMemory(), basePolicy())
	v, err := a.Authenticate(context.Background(), Assertion{})
	if !errors.Is(err, ErrNoCredential) {
		t.Fatalf("expected ErrNoCredential, got %v", err)
	}
	if v.Authenticated() || v.Reason != "no credential presented" {
		t.Fatalf("unexpected verdict: %+v", v)
	}
}

func TestAuthenticateFreshCertificate(t *testing.T) {
	store := account.NewInMemory()
	a := newAuthenticator(store, basePolicy())

	v, err := a.Authenticate(context.Background(), Assertion{SubjectDN: "CN=alice", IssuerDN: "CN=ca"})
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if v.Code != CodeSuccess || v.Login != "alice" || !v.Provisioned {
		t.Fatalf("unexpected verdict: %+v", v)
	}
	if v.SessionToken == "" {
		t.Fatal("verdict must carry the session token")
	}

	acct, err := store.GetByLogin(context.Background(), "alice")
	if err != nil {
		t.Fatalf("account not provisioned: %v", err)
	}
	if acct.Alias != "Alice Cooper" {
		t.Fatalf("alias not derived from directory names: %q", acct.Alias)
	}
	if acct.SessionToken != v.SessionToken {
		t.Fatal("stored token must match the verdict token")
	}

	// Re-authentication of the same certificate reproduces the same token.
	v2, err := a.Authenticate(context.Background(), Assertion{SubjectDN: "CN=alice", IssuerDN: "CN=ca"})
	if err != nil {
		t.Fatal(err)
	}
	if v2.SessionToken != v.SessionToken {
		t.Fatal("token derivation must be deterministic")
	}
	if v2.Provisioned {
		t.Fatal("second attempt must not provision")
	}
}

func TestAuthenticateSuperuser(t *testing.T) {
	store := account.NewInMemory()
	a := newAuthenticator(store, basePolicy())
	v, err := a.Authenticate(context.Background(), Assertion{SubjectDN: "CN=bob"})
	if err != nil {
		t.Fatal(err)
	}
	if v.Code != CodeSuperuserSuccess {
		t.Fatalf("expected superuser success, got %v", v.Code)
	}
	// Full name used verbatim when first/last are absent.
	acct, _ := store.GetByLogin(context.Background(), "bob")
	if acct.Alias != "Bob Dobbs" {
		t.Fatalf("unexpected alias: %q", acct.Alias)
	}
}

func TestAuthenticateDirectoryNotFound(t *testing.T) {
	a := newAuthenticator(account.NewInMemory(), basePolicy())
	v, err := a.Authenticate(context.Background(), Assertion{SubjectDN: "CN=ghost"})
	if !errors.Is(err, directory.ErrNotFound) {
		t.Fatalf("expected directory.ErrNotFound, got %v", err)
	}
	if v.Authenticated() || v.Reason != "could not verify user against authorization service" {
		t.Fatalf("unexpected verdict: %+v", v)
	}
}

type neverCalledDirectory struct{ t *testing.T }

func (d neverCalledDirectory) QueryByDN(ctx context.Context, dn, issuerDN string) (*directory.Record, error) {
	d.t.Fatal("directory must not be consulted on the token flow")
	return nil, nil
}

func TestAuthenticateTokenFlowSkipsDirectory(t *testing.T) {
	store := account.NewInMemory()
	ctx := context.Background()
	store.Create(ctx, &account.Account{Login: "alice", SessionToken: "tok-a"})

	a := NewAuthenticator(neverCalledDirectory{t}, NewReconciler(store, basePolicy()), testKey)
	v, err := a.Authenticate(ctx, Assertion{Login: "alice", SessionToken: "tok-a"})
	if err != nil {
		t.Fatalf("token flow: %v", err)
	}
	if v.Code != CodeSuccess || v.Login != "alice" || v.SessionToken != "tok-a" {
		t.Fatalf("unexpected verdict: %+v", v)
	}
}

func TestAuthenticateForgedTokenFails(t *testing.T) {
	store := account.NewInMemory()
	a := newAuthenticator(store, basePolicy())

	v, err := a.Authenticate(context.Background(), Assertion{SessionToken: "forged-token-never-issued"})
	if !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected ErrNotAuthorized, got %v", err)
	}
	if v.Authenticated() || v.Provisioned {
		t.Fatalf("forged token must not authenticate: %+v", v)
	}
	if store.Writes() != 0 {
		t.Fatal("forged token must not mutate the store")
	}
}

func TestAuthenticateDenied(t *testing.T) {
	pol := policy.New(policy.Config{
		SuperUsers:       []string{},
		DefaultResources: []string{"1"},
		ViewableUsers:    "carol\ndave",
	}, nil)
	a := newAuthenticator(account.NewInMemory(), pol)

	v, err := a.Authenticate(context.Background(), Assertion{SubjectDN: "CN=alice"})
	if !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected ErrNotAuthorized, got %v", err)
	}
	if v.Reason != "not authorized to view" {
		t.Fatalf("unexpected reason: %q", v.Reason)
	}
}

func TestAuthenticateGroupUnreachableFailsClosed(t *testing.T) {
	pol := policy.New(policy.Config{
		SuperUsers:       []string{},
		DefaultResources: []string{"1"},
		UseGroupPolicy:   true,
		Group:            "g",
		Project:          "p",
	}, groups.Down{})
	store := account.NewInMemory()
	a := NewAuthenticator(testDirectory(), NewReconciler(store, pol), testKey)

	_, err := a.Authenticate(context.Background(), Assertion{SubjectDN: "CN=alice"})
	if !errors.Is(err, groups.ErrUnreachable) {
		t.Fatalf("expected groups.ErrUnreachable, got %v", err)
	}
	if store.Writes() != 0 {
		t.Fatal("no account mutation on unreachable policy")
	}
}

func TestAttemptRestoresPriorContextOnFailure(t *testing.T) {
	prior := Verdict{Code: CodeSuccess, Login: "previous", SessionToken: "tok-prev"}
	ctx := ContextWithVerdict(context.Background(), prior)

	a := newAuthenticator(account.NewInMemory(), basePolicy())
	out, v, err := a.Attempt(ctx, Assertion{SubjectDN: "CN=ghost"})
	if err == nil || v.Authenticated() {
		t.Fatal("attempt should have failed")
	}
	restored, ok := VerdictFromContext(out)
	if !ok || restored.Login != "previous" {
		t.Fatalf("prior trust context not preserved: %+v ok=%v", restored, ok)
	}
}

func TestAttemptActivatesVerdictOnSuccess(t *testing.T) {
	a := newAuthenticator(account.NewInMemory(), basePolicy())
	out, v, err := a.Attempt(context.Background(), Assertion{SubjectDN: "CN=alice"})
	if err != nil {
		t.Fatal(err)
	}
	active, ok := VerdictFromContext(out)
	if !ok || active.Login != v.Login {
		t.Fatalf("verdict not active: %+v ok=%v", active, ok)
	}
	if login, ok := LoginFromContext(out); !ok || login != "alice" {
		t.Fatalf("unexpected login: %q ok=%v", login, ok)
	}
}

func TestVerdictFromContextIgnoresFailures(t *testing.T) {
	ctx := ContextWithVerdict(context.Background(), Verdict{Code: CodeFailure, Reason: "nope"})
	if _, ok := VerdictFromContext(ctx); ok {
		t.Fatal("failure verdicts must not read as active")
	}
}
