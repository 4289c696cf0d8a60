package auth

import (
	"context"
	"errors"

	"pkigate.org/internal/account"
	"pkigate.org/internal/directory"
	"pkigate.org/internal/groups"
	"pkigate.org/internal/identity"
	"pkigate.org/internal/obs"
	"pkigate.org/internal/policy"
)

// Code classifies the terminal state of an authentication attempt.
type Code int

const (
	CodeFailure Code = iota
	CodeSuccess
	CodeSuperuserSuccess
)

func (c Code) String() string {
	switch c {
	case CodeSuccess:
		return "success"
	case CodeSuperuserSuccess:
		return "superuser_success"
	default:
		return "failure"
	}
}

// Verdict is the outcome of one authentication attempt. On success it carries
// the login and session token the cookie layer persists.
type Verdict struct {
	Code         Code
	Login        string
	SessionToken string
	Reason       string
	Provisioned  bool
}

// Authenticated reports whether the attempt ended in any success state.
func (v Verdict) Authenticated() bool {
	return v.Code == CodeSuccess || v.Code == CodeSuperuserSuccess
}

// Assertion is the raw trust material one request presents: a post-TLS
// verified certificate subject, a previously issued session credential, or
// neither.
type Assertion struct {
	SubjectDN    string
	IssuerDN     string
	Login        string
	SessionToken string
}

// Authenticator runs the attempt end to end: resolve the trust assertion to
// an identity, reconcile the account, emit the verdict. One attempt is fully
// synchronous; each external call happens at most once and a transient
// failure surfaces immediately.
type Authenticator struct {
	dir        directory.Client
	reconciler *Reconciler
	key        []byte
}

// NewAuthenticator constructs an Authenticator. key is the deployment key for
// deterministic credential derivation.
func NewAuthenticator(dir directory.Client, rec *Reconciler, key []byte) *Authenticator {
	return &Authenticator{dir: dir, reconciler: rec, key: key}
}

// Authenticate processes one assertion to a terminal verdict. The returned
// error is non-nil on every failure branch and matches the taxonomy the
// caller dispatches on: ErrNoCredential, ErrNotAuthorized,
// directory.ErrNotFound/ErrUnreachable, groups.ErrUnreachable,
// policy.ErrConfiguration, account.ErrStore.
func (a *Authenticator) Authenticate(ctx context.Context, as Assertion) (Verdict, error) {
	ident, outcome, err := a.resolveTrust(ctx, as)
	if err != nil {
		reason := "no credential presented"
		if outcome != identity.NoCredentialPresented {
			reason = "could not verify user against authorization service"
		}
		obs.AuthAttempt(outcome.String())
		return Verdict{Code: CodeFailure, Reason: reason}, err
	}

	res, err := a.reconciler.ResolveOrProvision(ctx, ident)
	if err != nil {
		reason := "authentication failed"
		if errors.Is(err, ErrNotAuthorized) {
			reason = "not authorized to view"
		}
		obs.AuthAttempt(outcomeLabel(err))
		return Verdict{Code: CodeFailure, Reason: reason}, err
	}

	v := Verdict{
		Code:         CodeSuccess,
		Login:        res.Account.Login,
		SessionToken: ident.SessionToken,
		Provisioned:  res.Provisioned,
	}
	if res.Account.SuperUser {
		v.Code = CodeSuperuserSuccess
	}
	obs.AuthAttempt(v.Code.String())
	return v, nil
}

// Attempt runs Authenticate and returns a context carrying the new active
// verdict only when the attempt succeeded. On any failure the caller's
// context comes back unchanged, so whatever trust context was active before
// the attempt stays in force and the framework can fall back to its alternate
// authentication path.
func (a *Authenticator) Attempt(ctx context.Context, as Assertion) (context.Context, Verdict, error) {
	v, err := a.Authenticate(ctx, as)
	if !v.Authenticated() {
		return ctx, v, err
	}
	return ContextWithVerdict(ctx, v), v, nil
}

// resolveTrust turns the assertion into an identity and classifies how the
// resolution went. A presented session token is itself the already-verified
// credential from a prior attempt, so the directory is only consulted on the
// fresh-certificate path.
func (a *Authenticator) resolveTrust(ctx context.Context, as Assertion) (identity.Identity, identity.Outcome, error) {
	switch {
	case as.SessionToken != "":
		return identity.Identity{Login: as.Login, SessionToken: as.SessionToken}, identity.Verified, nil
	case as.SubjectDN != "":
		rec, err := a.dir.QueryByDN(ctx, as.SubjectDN, as.IssuerDN)
		if err != nil {
			outcome := identity.Unreachable
			if errors.Is(err, directory.ErrNotFound) {
				outcome = identity.NotFound
			}
			return identity.Identity{}, outcome, err
		}
		obs.Debug("directory response", map[string]any{
			"uid":    rec.UID,
			"name":   rec.FullName,
			"agency": rec.Agency(),
		})
		secret := identity.CredentialSecret(a.key, rec.UID, as.SubjectDN)
		return identity.Identity{
			Login:            rec.UID,
			Email:            rec.Email,
			Alias:            identity.DisplayName(rec.FirstName, rec.LastName, rec.FullName),
			SubjectDN:        as.SubjectDN,
			CredentialSecret: secret,
			SessionToken:     identity.SessionToken(a.key, rec.UID, secret),
		}, identity.Verified, nil
	default:
		return identity.Identity{}, identity.NoCredentialPresented, ErrNoCredential
	}
}

// outcomeLabel maps reconciliation failures to metric labels; trust
// resolution failures are labeled by identity.Outcome instead.
func outcomeLabel(err error) string {
	switch {
	case errors.Is(err, ErrNotAuthorized):
		return "denied"
	case errors.Is(err, groups.ErrUnreachable):
		return "unreachable"
	case errors.Is(err, policy.ErrConfiguration):
		return "config_error"
	case errors.Is(err, account.ErrStore):
		return "store_error"
	default:
		return "error"
	}
}
