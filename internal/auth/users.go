// internal/auth/users.go
package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrUserExists   = errors.New("user already exists")
	ErrUserNotFound = errors.New("user not found")
)

// User is a gateway-local account (scheme-B tokens only).
type User struct {
	ID           string
	TenantID     string
	Email        string
	PasswordHash string
	Roles        []string
	CreatedAt    time.Time
}

type UserStore interface {
	Create(ctx context.Context, u User) error
	GetByEmail(ctx context.Context, tenantID, email string) (User, error)
}

// Register hashes the password and creates the account.
func Register(ctx context.Context, store UserStore, tenantID, email, password string) (User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || len(password) < 8 {
		return User{}, errors.New("email required and password must be at least 8 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, err
	}
	u := User{
		ID:           uuid.NewString(),
		TenantID:     tenantID,
		Email:        email,
		PasswordHash: string(hash),
		Roles:        []string{"member"},
		CreatedAt:    time.Now().UTC(),
	}
	if err := store.Create(ctx, u); err != nil {
		return User{}, err
	}
	return u, nil
}

// Login verifies the password against the stored hash.
func Login(ctx context.Context, store UserStore, tenantID, email, password string) (User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	u, err := store.GetByEmail(ctx, tenantID, email)
	if err != nil {
		return User{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return User{}, ErrUserNotFound
	}
	return u, nil
}

// pgUserStore is the Postgres-backed account store.
type pgUserStore struct {
	pool *pgxpool.Pool
}

func NewPostgresUserStore(pool *pgxpool.Pool) UserStore {
	return &pgUserStore{pool: pool}
}

// EnsureUserSchema creates the accounts table. Idempotent.
func EnsureUserSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS gateway_users (
  id uuid PRIMARY KEY,
  tenant_id text NOT NULL,
  email text NOT NULL,
  password_hash text NOT NULL,
  roles text[] DEFAULT '{}',
  created_at timestamptz NOT NULL DEFAULT NOW(),
  UNIQUE (tenant_id, email)
);`)
	return err
}

func (s *pgUserStore) Create(ctx context.Context, u User) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO gateway_users (id, tenant_id, email, password_hash, roles, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6)`,
		u.ID, u.TenantID, u.Email, u.PasswordHash, u.Roles, u.CreatedAt)
	if err != nil && strings.Contains(err.Error(), "duplicate key") {
		return ErrUserExists
	}
	return err
}

func (s *pgUserStore) GetByEmail(ctx context.Context, tenantID, email string) (User, error) {
	var u User
	err := s.pool.QueryRow(ctx,
		`SELECT id, tenant_id, email, password_hash, roles, created_at
		 FROM gateway_users WHERE tenant_id=$1 AND email=$2`,
		tenantID, email).Scan(&u.ID, &u.TenantID, &u.Email, &u.PasswordHash, &u.Roles, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, err
	}
	return u, nil
}

// memUserStore backs dev and tests.
type memUserStore struct {
	mu    sync.RWMutex
	users map[string]User // tenantID+"\x00"+email
}

func NewMemoryUserStore() UserStore {
	return &memUserStore{users: map[string]User{}}
}

func (s *memUserStore) Create(_ context.Context, u User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := u.TenantID + "\x00" + u.Email
	if _, ok := s.users[k]; ok {
		return ErrUserExists
	}
	s.users[k] = u
	return nil
}

func (s *memUserStore) GetByEmail(_ context.Context, tenantID, email string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[tenantID+"\x00"+email]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return u, nil
}
