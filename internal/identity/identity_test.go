package identity

import "testing"

func TestDisplayName(t *testing.T) {
	cases := []struct {
		first, last, full string
		want              string
	}{
		{"alice", "cooper", "whatever", "Alice Cooper"},
		{"ALICE", "COOPER", "whatever", "Alice Cooper"},
		{"", "cooper", "Alice B. Cooper", "Alice B. Cooper"},
		{"alice", "", "Alice B. Cooper", "Alice B. Cooper"},
		{"", "", "Alice B. Cooper", "Alice B. Cooper"},
		{"mary ann", "van der Berg", "x", "Mary Ann Van Der Berg"},
	}
	for _, c := range cases {
		if got := DisplayName(c.first, c.last, c.full); got != c.want {
			t.Errorf("DisplayName(%q,%q,%q) = %q, want %q", c.first, c.last, c.full, got, c.want)
		}
	}
}

func TestDerivationDeterministic(t *testing.T) {
	key := []byte("deployment-key")
	s1 := CredentialSecret(key, "alice", "CN=alice,O=example")
	s2 := CredentialSecret(key, "alice", "CN=alice,O=example")
	if s1 != s2 {
		t.Fatalf("secret not deterministic: %s vs %s", s1, s2)
	}
	t1 := SessionToken(key, "alice", s1)
	t2 := SessionToken(key, "alice", s2)
	if t1 != t2 {
		t.Fatalf("token not deterministic: %s vs %s", t1, t2)
	}
	if t1 == s1 {
		t.Fatal("token must differ from secret")
	}
}

func TestDerivationSensitivity(t *testing.T) {
	key := []byte("deployment-key")
	base := CredentialSecret(key, "alice", "CN=alice")
	if CredentialSecret(key, "alice", "CN=bob") == base {
		t.Fatal("secret ignores subject DN")
	}
	if CredentialSecret(key, "bob", "CN=alice") == base {
		t.Fatal("secret ignores login")
	}
	if CredentialSecret([]byte("other-key"), "alice", "CN=alice") == base {
		t.Fatal("secret ignores deployment key")
	}
}

func TestOutcomeString(t *testing.T) {
	if Verified.String() != "verified" || NoCredentialPresented.String() != "no_credential" {
		t.Fatal("unexpected outcome labels")
	}
}
