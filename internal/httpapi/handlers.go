package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"pkigate.org/internal/account"
	"pkigate.org/internal/audit"
	"pkigate.org/internal/auth"
	"pkigate.org/internal/directory"
	"pkigate.org/internal/groups"
	"pkigate.org/internal/obs"
	"pkigate.org/internal/session"
	"pkigate.org/internal/stream"
)

const serviceName = "pkigate"

// ReadyProbe reports whether downstream dependencies answer.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// API is the HTTP layer over the authentication core.
type API struct {
	mux        *http.ServeMux
	readyProbe ReadyProbe
	version    string

	authn    *auth.Authenticator
	sessions *session.Manager
	store    account.Store
	events   *stream.Stream
}

// New wires the routes.
func New(authn *auth.Authenticator, sessions *session.Manager, store account.Store, events *stream.Stream, rp ReadyProbe, version string) *API {
	a := &API{
		mux:        http.NewServeMux(),
		readyProbe: rp,
		version:    version,
		authn:      authn,
		sessions:   sessions,
		store:      store,
		events:     events,
	}

	a.mux.HandleFunc("/login", a.Login)
	a.mux.Handle("/whoami", a.withAuth(http.HandlerFunc(a.WhoAmI)))
	a.mux.Handle("/v1/access/", a.withAuth(a.requireSuperUser(http.HandlerFunc(a.ResourceAccess))))
	a.mux.Handle("/v1/events", a.withAuth(a.requireSuperUser(http.HandlerFunc(a.Events))))

	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the fully wrapped handler for the server.
func (a *API) Handler() http.Handler {
	h := http.Handler(a.mux)
	h = RateLimit(h, 20, 10)
	h = SecurityHeaders(h)
	h = Logging(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

// Login runs one authentication attempt: a restored session cookie, a
// token_auth query parameter, or a fresh client-certificate subject. On
// success the session cookie is (re)issued; on failure the prior trust
// context stays in force and the caller receives the denial reason.
func (a *API) Login(w http.ResponseWriter, r *http.Request) {
	as := a.assertionFrom(r)

	ctx, v, err := a.authn.Attempt(r.Context(), as)
	a.events.Publish(stream.LoginEvent{
		Login:       v.Login,
		Outcome:     v.Code.String(),
		Reason:      v.Reason,
		Provisioned: v.Provisioned,
	})
	if err != nil {
		_ = audit.LogEvent(ctx, "auth.failed", map[string]any{"reason": v.Reason})
		respondError(w, statusFor(err), v.Reason)
		return
	}
	if v.Provisioned {
		_ = audit.LogEvent(ctx, "auth.provisioned", map[string]any{"login": v.Login})
	}
	_ = audit.LogEvent(ctx, "auth.login", map[string]any{
		"superuser": v.Code == auth.CodeSuperuserSuccess,
	})

	cookie, err := a.sessions.Issue(v.Login, v.SessionToken)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "session issue failed")
		return
	}
	http.SetCookie(w, cookie)
	writeJSON(w, http.StatusOK, map[string]any{
		"login":     v.Login,
		"superuser": v.Code == auth.CodeSuperuserSuccess,
	})
}

// WhoAmI echoes the active verdict.
func (a *API) WhoAmI(w http.ResponseWriter, r *http.Request) {
	v, ok := auth.VerdictFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "not authenticated")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"login":     v.Login,
		"superuser": v.Code == auth.CodeSuperuserSuccess,
	})
}

// ResourceAccess lists login-to-role access for one resource. Super-user
// only.
func (a *API) ResourceAccess(w http.ResponseWriter, r *http.Request) {
	resourceID := r.URL.Path[len("/v1/access/"):]
	if resourceID == "" {
		respondError(w, http.StatusBadRequest, "resource id required")
		return
	}
	access, err := a.store.ListAccessForResource(r.Context(), resourceID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "store error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"resource_id": resourceID,
		"access":      access,
	})
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		obs.SetReady(false)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    serviceName,
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

// assertionFrom collects whatever trust material the request carries. A
// restored cookie wins over a fresh certificate: the token is the
// already-verified credential and skips the directory round-trip.
func (a *API) assertionFrom(r *http.Request) auth.Assertion {
	if login, token, err := a.sessions.Read(r); err == nil {
		return auth.Assertion{Login: login, SessionToken: token}
	}
	if token := r.URL.Query().Get("token_auth"); token != "" {
		return auth.Assertion{SessionToken: token}
	}
	dn, issuerDN := clientDN(r)
	return auth.Assertion{SubjectDN: dn, IssuerDN: issuerDN}
}

// clientDN extracts the certificate subject: the verified TLS peer
// certificate when the server terminates TLS itself, else the headers a
// trusted front proxy forwards.
func clientDN(r *http.Request) (dn, issuerDN string) {
	if r.TLS != nil && len(r.TLS.PeerCertificates) > 0 {
		cert := r.TLS.PeerCertificates[0]
		return cert.Subject.String(), cert.Issuer.String()
	}
	return r.Header.Get("X-SSL-Client-DN"), r.Header.Get("X-SSL-Client-Issuer-DN")
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, auth.ErrNoCredential), errors.Is(err, auth.ErrNotAuthorized):
		return http.StatusUnauthorized
	case errors.Is(err, directory.ErrNotFound):
		return http.StatusUnauthorized
	case errors.Is(err, directory.ErrUnreachable), errors.Is(err, groups.ErrUnreachable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]any{"error": msg})
}
