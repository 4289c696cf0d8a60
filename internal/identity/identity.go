package identity

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Identity carries the attributes the trust source established for one
// authentication attempt. It is never persisted; the account store owns the
// durable projection.
type Identity struct {
	Login            string
	Email            string
	Alias            string
	SubjectDN        string
	SessionToken     string
	CredentialSecret string
}

// Outcome tags the result of resolving a trust assertion against the
// directory service.
type Outcome int

const (
	// NoCredentialPresented means neither a certificate DN nor a session
	// token accompanied the request.
	NoCredentialPresented Outcome = iota
	// Verified means the directory returned a record for the DN.
	Verified
	// NotFound means the directory answered but knows no such DN.
	NotFound
	// Unreachable means the directory did not answer.
	Unreachable
)

func (o Outcome) String() string {
	switch o {
	case Verified:
		return "verified"
	case NotFound:
		return "not_found"
	case Unreachable:
		return "unreachable"
	default:
		return "no_credential"
	}
}

// DisplayName derives the account alias from directory name attributes. If
// either the first or last name is absent the directory's full name is used
// verbatim; otherwise first and last are title-cased independently and joined
// with a single space.
func DisplayName(firstName, lastName, fullName string) string {
	if firstName == "" || lastName == "" {
		return fullName
	}
	return titleCase(firstName) + " " + titleCase(lastName)
}

func titleCase(s string) string {
	s = strings.ToLower(s)
	out := []rune(s)
	upper := true
	for i, r := range out {
		if upper && r != ' ' {
			out[i] = []rune(strings.ToUpper(string(r)))[0]
			upper = false
		}
		if r == ' ' {
			upper = true
		}
	}
	return string(out)
}

// CredentialSecret derives the per-identity secret from login and subject DN
// under the deployment key. The derivation is deterministic: the same
// login+DN always yields the same secret, which keeps cookie refresh
// idempotent across re-authentications of one certificate.
func CredentialSecret(key []byte, login, subjectDN string) string {
	return derive(key, "secret", login, subjectDN)
}

// SessionToken derives the opaque session token from login and the
// credential secret. Deterministic for the same reason as CredentialSecret.
func SessionToken(key []byte, login, credentialSecret string) string {
	return derive(key, "token", login, credentialSecret)
}

func derive(key []byte, label string, parts ...string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(label))
	for _, p := range parts {
		mac.Write([]byte{0})
		mac.Write([]byte(p))
	}
	return hex.EncodeToString(mac.Sum(nil))
}
