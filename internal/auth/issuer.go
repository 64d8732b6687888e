// internal/auth/issuer.go
package auth

import (
	"errors"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"opsgate/pkg/config"
)

// Issuer mints scheme-B session tokens for accounts created through the
// gateway's own register/login endpoints.
type Issuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

func NewIssuer(cfg config.Config) (*Issuer, error) {
	if cfg.SessionSecret == "" {
		return nil, errors.New("SESSION_SECRET not set")
	}
	return &Issuer{
		secret: []byte(cfg.SessionSecret),
		issuer: cfg.SessionIssuer,
		ttl:    cfg.SessionTTL,
	}, nil
}

// Issue signs an HS256 session token for the user. Returns the compact
// serialization and its expiry.
func (i *Issuer) Issue(u User) (string, time.Time, error) {
	now := time.Now()
	exp := now.Add(i.ttl)
	b := jwt.NewBuilder().
		Issuer(i.issuer).
		Subject(u.ID).
		IssuedAt(now).
		Expiration(exp).
		Claim("tid", u.TenantID).
		Claim("email", u.Email)
	if len(u.Roles) > 0 {
		b = b.Claim("roles", u.Roles)
	}
	tok, err := b.Build()
	if err != nil {
		return "", time.Time{}, err
	}
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, i.secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return string(signed), exp, nil
}
