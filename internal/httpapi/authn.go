package httpapi

import (
	"net/http"

	"pkigate.org/internal/auth"
)

// withAuth authenticates the request before the wrapped handler runs. The
// session cookie and the token_auth query parameter are both accepted; a
// fresh certificate subject is not, so interactive clients go through
// /login first.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := auth.VerdictFromContext(r.Context()); ok {
			next.ServeHTTP(w, r)
			return
		}
		as, ok := a.sessionAssertion(r)
		if !ok {
			respondError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		ctx, v, err := a.authn.Attempt(r.Context(), as)
		if err != nil {
			respondError(w, statusFor(err), v.Reason)
			return
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireSuperUser gates a handler on the active verdict carrying the
// super-user code. Must run inside withAuth.
func (a *API) requireSuperUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		v, ok := auth.VerdictFromContext(r.Context())
		if !ok {
			respondError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		if v.Code != auth.CodeSuperuserSuccess {
			respondError(w, http.StatusForbidden, "super-user access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// sessionAssertion builds an assertion from previously issued credentials
// only. Returns false when the request carries neither.
func (a *API) sessionAssertion(r *http.Request) (auth.Assertion, bool) {
	if login, token, err := a.sessions.Read(r); err == nil {
		return auth.Assertion{Login: login, SessionToken: token}, true
	}
	if token := r.URL.Query().Get("token_auth"); token != "" {
		return auth.Assertion{SessionToken: token}, true
	}
	return auth.Assertion{}, false
}
