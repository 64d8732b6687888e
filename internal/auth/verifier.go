// internal/auth/verifier.go
package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"opsgate/pkg/config"
)

// ErrInvalidToken means the bearer token failed verification under both
// schemes. Callers map it to 401 with no further detail.
var ErrInvalidToken = errors.New("invalid token")

// jwksCache caches the identity issuer's key set per URL.
type jwksCache struct {
	mu   sync.RWMutex
	sets map[string]cachedJWKS
}

type cachedJWKS struct {
	set     jwk.Set
	expires time.Time
}

func (c *jwksCache) get(ctx context.Context, url string, ttl time.Duration) (jwk.Set, error) {
	c.mu.RLock()
	if e, ok := c.sets[url]; ok && time.Now().Before(e.expires) {
		c.mu.RUnlock()
		return e.set, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sets == nil {
		c.sets = map[string]cachedJWKS{}
	}
	if e, ok := c.sets[url]; ok && time.Now().Before(e.expires) {
		return e.set, nil
	}
	set, err := jwk.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	c.sets[url] = cachedJWKS{set: set, expires: time.Now().Add(ttl)}
	return set, nil
}

// Verifier validates bearer tokens under two interchangeable schemes:
// issuer-signed identity tokens first, locally-issued session tokens as the
// fallback. Verification is stateless.
type Verifier struct {
	issuer        string
	audience      string
	jwksURL       string
	skew          time.Duration
	sessionSecret []byte
	sessionIssuer string
	cache         *jwksCache
	jwksTTL       time.Duration
}

func NewVerifier(cfg config.Config) *Verifier {
	return &Verifier{
		issuer:        strings.TrimRight(cfg.Issuer, "/"),
		audience:      cfg.Audience,
		jwksURL:       cfg.JWKSURL,
		skew:          cfg.ClockSkew,
		sessionSecret: []byte(cfg.SessionSecret),
		sessionIssuer: cfg.SessionIssuer,
		cache:         &jwksCache{},
		jwksTTL:       6 * time.Hour,
	}
}

// Verify attempts scheme A (identity) and falls back to scheme B (session)
// on any scheme-A failure. Both failing yields ErrInvalidToken.
func (v *Verifier) Verify(ctx context.Context, raw string) (Principal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Principal{}, ErrInvalidToken
	}
	if p, err := v.verifyIdentity(ctx, raw); err == nil {
		return p, nil
	}
	if p, err := v.verifySession(raw); err == nil {
		return p, nil
	}
	return Principal{}, ErrInvalidToken
}

func (v *Verifier) verifyIdentity(ctx context.Context, raw string) (Principal, error) {
	if v.issuer == "" || v.jwksURL == "" {
		return Principal{}, errors.New("identity scheme not configured")
	}
	set, err := v.cache.get(ctx, v.jwksURL, v.jwksTTL)
	if err != nil {
		return Principal{}, err
	}
	opts := []jwt.ParseOption{
		jwt.WithKeySet(set),
		jwt.WithIssuer(v.issuer),
		jwt.WithValidate(true),
		jwt.WithVerify(true),
		jwt.WithAcceptableSkew(v.skew),
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}
	jt, err := jwt.Parse([]byte(raw), opts...)
	if err != nil {
		return Principal{}, err
	}
	return principalFromToken(jt, SchemeIdentity), nil
}

func (v *Verifier) verifySession(raw string) (Principal, error) {
	if len(v.sessionSecret) == 0 {
		return Principal{}, errors.New("session scheme not configured")
	}
	jt, err := jwt.Parse([]byte(raw),
		jwt.WithKey(jwa.HS256, v.sessionSecret),
		jwt.WithIssuer(v.sessionIssuer),
		jwt.WithValidate(true),
		jwt.WithVerify(true),
		jwt.WithAcceptableSkew(v.skew),
	)
	if err != nil {
		return Principal{}, err
	}
	return principalFromToken(jt, SchemeSession), nil
}

func principalFromToken(jt jwt.Token, scheme Scheme) Principal {
	p := Principal{
		SubjectID: jt.Subject(),
		Roles:     map[string]struct{}{},
		Scheme:    scheme,
	}
	if v, ok := jt.Get("tid"); ok {
		p.TenantID, _ = v.(string)
	}
	if v, ok := jt.Get("email"); ok {
		p.Email, _ = v.(string)
	}
	if v, ok := jt.Get("roles"); ok {
		switch rv := v.(type) {
		case string:
			for _, r := range strings.Fields(rv) {
				p.Roles[r] = struct{}{}
			}
		case []interface{}:
			for _, r := range rv {
				if s, ok := r.(string); ok {
					p.Roles[s] = struct{}{}
				}
			}
		}
	}
	return p
}
