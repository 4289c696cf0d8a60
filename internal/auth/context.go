package auth

import "context"

type verdictContextKey struct{}

// ContextWithVerdict attaches the active authentication verdict to the
// context. The verdict is the explicit replacement for a process-global
// "current auth" registry: it travels with the request and is never swapped
// in place.
func ContextWithVerdict(ctx context.Context, v Verdict) context.Context {
	return context.WithValue(ctx, verdictContextKey{}, &v)
}

// VerdictFromContext extracts the active verdict, if any.
func VerdictFromContext(ctx context.Context) (Verdict, bool) {
	if ctx == nil {
		return Verdict{}, false
	}
	v, ok := ctx.Value(verdictContextKey{}).(*Verdict)
	if !ok || v == nil || !v.Authenticated() {
		return Verdict{}, false
	}
	return *v, true
}

// LoginFromContext returns the authenticated login, if any.
func LoginFromContext(ctx context.Context) (string, bool) {
	v, ok := VerdictFromContext(ctx)
	if !ok {
		return "", false
	}
	return v.Login, true
}
