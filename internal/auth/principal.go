// internal/auth/principal.go
package auth

import "context"

// Scheme identifies which verification path produced a Principal.
type Scheme string

const (
	// SchemeIdentity is an issuer-signed identity token validated against the
	// issuer's published keys. Tried first: these are centrally revocable.
	SchemeIdentity Scheme = "identity"
	// SchemeSession is a locally-issued HMAC session token. Kept as a
	// fallback for the legacy integration only.
	SchemeSession Scheme = "session"
)

// Principal is the normalized identity of an authenticated caller,
// independent of which scheme verified it. Never persisted.
type Principal struct {
	SubjectID string
	TenantID  string
	Email     string
	Roles     map[string]struct{}
	Scheme    Scheme
}

func (p Principal) HasRole(role string) bool {
	_, ok := p.Roles[role]
	return ok
}

type ctxPrincipalKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, ctxPrincipalKey{}, p)
}

// PrincipalFrom returns the request principal, or ok=false before the auth
// middleware has run.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	if v := ctx.Value(ctxPrincipalKey{}); v != nil {
		p, ok := v.(Principal)
		return p, ok
	}
	return Principal{}, false
}
