package auth

import "errors"

var (
	// ErrNotAuthorized means the resolved identity failed the viewability
	// and super-user checks on first encounter. No account is created.
	ErrNotAuthorized = errors.New("auth: not authorized to view")
	// ErrNoCredential means neither a certificate DN nor a session token
	// was presented. The surrounding framework falls back to its alternate
	// login path.
	ErrNoCredential = errors.New("auth: no credential presented")
)
