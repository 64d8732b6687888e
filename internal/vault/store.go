// internal/vault/store.go
package vault

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNoRecord means no credential is stored under the key.
var ErrNoRecord = errors.New("no credential record")

// Record is an encrypted credential row. Plaintext never appears here.
type Record struct {
	UserID           string
	Provider         string
	EncryptedAccess  []byte
	EncryptedRefresh []byte
	ExpiresAt        time.Time
	UpdatedAt        time.Time
}

// Store is the narrow interface the vault needs from the credential store.
// Records are keyed {userId}_{provider}; Put overwrites atomically.
type Store interface {
	Get(ctx context.Context, userID, provider string) (Record, error)
	Put(ctx context.Context, rec Record) error
	Delete(ctx context.Context, userID, provider string) error
}

type pgStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) Store {
	return &pgStore{pool: pool}
}

// EnsureSchema creates the credentials table. Idempotent.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS oauth_credentials (
  user_id text NOT NULL,
  provider text NOT NULL,
  encrypted_access bytea NOT NULL,
  encrypted_refresh bytea,
  expires_at timestamptz NOT NULL,
  updated_at timestamptz NOT NULL DEFAULT NOW(),
  PRIMARY KEY (user_id, provider)
);`)
	return err
}

func (s *pgStore) Get(ctx context.Context, userID, provider string) (Record, error) {
	var rec Record
	err := s.pool.QueryRow(ctx,
		`SELECT user_id, provider, encrypted_access, encrypted_refresh, expires_at, updated_at
		 FROM oauth_credentials WHERE user_id=$1 AND provider=$2`,
		userID, provider).
		Scan(&rec.UserID, &rec.Provider, &rec.EncryptedAccess, &rec.EncryptedRefresh, &rec.ExpiresAt, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrNoRecord
	}
	if err != nil {
		return Record{}, err
	}
	return rec, nil
}

func (s *pgStore) Put(ctx context.Context, rec Record) error {
	// Upsert: readers see either the old row or the new one, never a mix.
	_, err := s.pool.Exec(ctx,
		`INSERT INTO oauth_credentials (user_id, provider, encrypted_access, encrypted_refresh, expires_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6)
		 ON CONFLICT (user_id, provider) DO UPDATE SET
		   encrypted_access=EXCLUDED.encrypted_access,
		   encrypted_refresh=EXCLUDED.encrypted_refresh,
		   expires_at=EXCLUDED.expires_at,
		   updated_at=EXCLUDED.updated_at`,
		rec.UserID, rec.Provider, rec.EncryptedAccess, rec.EncryptedRefresh, rec.ExpiresAt, rec.UpdatedAt)
	return err
}

func (s *pgStore) Delete(ctx context.Context, userID, provider string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM oauth_credentials WHERE user_id=$1 AND provider=$2`, userID, provider)
	return err
}

type memStore struct {
	mu   sync.RWMutex
	recs map[string]Record
}

func NewMemoryStore() Store {
	return &memStore{recs: map[string]Record{}}
}

func key(userID, provider string) string { return userID + "_" + provider }

func (s *memStore) Get(_ context.Context, userID, provider string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.recs[key(userID, provider)]
	if !ok {
		return Record{}, ErrNoRecord
	}
	return rec, nil
}

func (s *memStore) Put(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs[key(rec.UserID, rec.Provider)] = rec
	return nil
}

func (s *memStore) Delete(_ context.Context, userID, provider string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.recs, key(userID, provider))
	return nil
}
