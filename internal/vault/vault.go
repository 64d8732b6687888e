// internal/vault/vault.go

// Package vault stores per-user third-party OAuth tokens under envelope
// encryption. It is the only code path that decrypts them: callers receive an
// in-memory Credential for the duration of one request, never plaintext at
// rest. There is no automatic refresh; an expired credential requires a full
// reconnect.
package vault

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrNotConnected: no credential stored for (user, provider). Callers
	// must surface "connect your account", never fall back to a shared
	// credential.
	ErrNotConnected = errors.New("provider not connected")
	// ErrExpired: stored credential is past its expiry.
	ErrExpired = errors.New("credential expired")
)

// Credential is a ready-to-use bearer credential. Request-scoped; do not
// store or log.
type Credential struct {
	AccessToken string
	ExpiresAt   time.Time
}

type Vault struct {
	box   *cipherBox
	store Store
	log   *zap.SugaredLogger
	now   func() time.Time
}

// New constructs the vault. Key material is mandatory: losing it makes all
// stored credentials permanently unreadable, so it is loaded exactly once at
// startup and never logged.
func New(keyMaterial string, store Store, log *zap.SugaredLogger) (*Vault, error) {
	box, err := newCipherBox([]byte(keyMaterial))
	if err != nil {
		return nil, errors.New("vault key material missing or invalid")
	}
	return &Vault{box: box, store: store, log: log, now: time.Now}, nil
}

// GetCredential looks up, decrypts and expiry-checks the (user, provider)
// credential. Integrity failures are logged at high severity and reported as
// an expired credential: the caller's remedy is the same (reconnect), and the
// real cause stays out of responses.
func (v *Vault) GetCredential(ctx context.Context, userID, provider string) (Credential, error) {
	rec, err := v.store.Get(ctx, userID, provider)
	if errors.Is(err, ErrNoRecord) {
		return Credential{}, ErrNotConnected
	}
	if err != nil {
		return Credential{}, err
	}
	plain, err := v.box.open(rec.EncryptedAccess)
	if err != nil {
		v.log.Errorw("credential decrypt failed: possible key mismatch or tampering",
			"user_id", userID, "provider", provider)
		return Credential{}, ErrExpired
	}
	if !rec.ExpiresAt.After(v.now()) {
		return Credential{}, ErrExpired
	}
	return Credential{AccessToken: string(plain), ExpiresAt: rec.ExpiresAt}, nil
}

// PutCredential encrypts and overwrites the (user, provider) record. The
// underlying store upserts, so readers never observe a partial write.
func (v *Vault) PutCredential(ctx context.Context, userID, provider, accessToken, refreshToken string, expiresAt time.Time) error {
	encAccess, err := v.box.seal([]byte(accessToken))
	if err != nil {
		return err
	}
	var encRefresh []byte
	if refreshToken != "" {
		if encRefresh, err = v.box.seal([]byte(refreshToken)); err != nil {
			return err
		}
	}
	return v.store.Put(ctx, Record{
		UserID:           userID,
		Provider:         provider,
		EncryptedAccess:  encAccess,
		EncryptedRefresh: encRefresh,
		ExpiresAt:        expiresAt,
		UpdatedAt:        v.now().UTC(),
	})
}

// DeleteCredential disconnects the provider for the user.
func (v *Vault) DeleteCredential(ctx context.Context, userID, provider string) error {
	return v.store.Delete(ctx, userID, provider)
}

// Connected reports whether a credential exists, without decrypting it.
func (v *Vault) Connected(ctx context.Context, userID, provider string) (bool, time.Time, error) {
	rec, err := v.store.Get(ctx, userID, provider)
	if errors.Is(err, ErrNoRecord) {
		return false, time.Time{}, nil
	}
	if err != nil {
		return false, time.Time{}, err
	}
	return true, rec.ExpiresAt, nil
}
