package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"pkigate.org/internal/account"
	"pkigate.org/internal/auth"
	"pkigate.org/internal/directory"
	"pkigate.org/internal/policy"
)

// Exercises the full authentication flow end to end against in-process
// collaborators: fresh certificate login, provisioning, token re-login,
// and write idempotence on the repeat attempt.
func main() {
	log.SetFlags(0)

	store := account.NewInMemory()
	dir := directory.Static{
		"CN=Smoke User,O=Example": {
			UID:       "smokeuser",
			FullName:  "Smoke User",
			Email:     "smoke@example.gov",
			FirstName: "smoke",
			LastName:  "user",
		},
	}
	pol := policy.New(policy.Config{
		SuperUsers:       []string{},
		DefaultResources: []string{"1", "2"},
	}, nil)
	authn := auth.NewAuthenticator(dir, auth.NewReconciler(store, pol), []byte("smoke-key"))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	v, err := authn.Authenticate(ctx, auth.Assertion{SubjectDN: "CN=Smoke User,O=Example"})
	if err != nil {
		log.Fatalf("certificate login: %v", err)
	}
	if !v.Provisioned || v.Login != "smokeuser" || v.SessionToken == "" {
		log.Fatalf("unexpected verdict: %+v", v)
	}

	acct, err := store.GetByLogin(ctx, "smokeuser")
	if err != nil {
		log.Fatalf("lookup: %v", err)
	}
	if len(acct.Grants) != 2 {
		log.Fatalf("expected 2 default grants, got %d", len(acct.Grants))
	}
	writesAfterFirst := store.Writes()

	v2, err := authn.Authenticate(ctx, auth.Assertion{Login: v.Login, SessionToken: v.SessionToken})
	if err != nil {
		log.Fatalf("token re-login: %v", err)
	}
	if v2.Login != v.Login || v2.Provisioned {
		log.Fatalf("unexpected re-login verdict: %+v", v2)
	}
	if store.Writes() != writesAfterFirst {
		log.Fatalf("re-login performed %d extra writes", store.Writes()-writesAfterFirst)
	}

	v3, err := authn.Authenticate(ctx, auth.Assertion{SubjectDN: "CN=Smoke User,O=Example"})
	if err != nil {
		log.Fatalf("repeat certificate login: %v", err)
	}
	if v3.SessionToken != v.SessionToken {
		log.Fatalf("token not deterministic: %s vs %s", v3.SessionToken, v.SessionToken)
	}

	fmt.Printf("✅ login smoke test passed: login=%s grants=%d\n", v.Login, len(acct.Grants))
}
