// Package docstore persists documents next to the graph: the SMT-text
// cache, the operation-result cache, users and API keys.
//
// Backends:
//   - MongoStore: shared document database for multi-process deployments
//   - SQLStore: embedded SQLite database through GORM for standalone runs
//   - MemoryStore: in-process maps for tests
//
// Cache writes upsert by key; the latest writer wins.
package docstore

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Sentinel errors.
var (
	// ErrNotFound is returned when a document does not exist.
	ErrNotFound = errors.New("docstore: not found")

	// ErrExpired is returned when an API key has passed its expiry.
	ErrExpired = errors.New("docstore: expired")
)

// Collection names a keyed cache collection.
type Collection string

const (
	// SMTText caches formula text per (root, max_depth).
	SMTText Collection = "smt_text"
	// Operations caches operation results per request key.
	Operations Collection = "operation_result"
)

// Entry is a cached document with the moment it was computed.
type Entry struct {
	Key    string    `json:"key"`
	Value  string    `json:"value"`
	Moment time.Time `json:"moment"`
}

// Fresh reports whether the entry was computed strictly after the moment
// of the data it was computed from.
func (e *Entry) Fresh(source time.Time) bool {
	return e != nil && e.Moment.After(source)
}

// User is an account owning API keys and repositories.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// APIKey is a stored key. Only the SHA-256 hash of the secret is kept.
type APIKey struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Hash      string    `json:"-"`
	Name      string    `json:"name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// IsExpired reports whether the key has passed its expiry at now.
func (k *APIKey) IsExpired(now time.Time) bool {
	return !k.ExpiresAt.IsZero() && now.After(k.ExpiresAt)
}

// Store is implemented by every backend.
type Store interface {
	// Get returns the entry under key or ErrNotFound.
	Get(ctx context.Context, coll Collection, key string) (*Entry, error)
	// Put upserts e.
	Put(ctx context.Context, coll Collection, e Entry) error
	// Clear drops every entry of coll and reports how many were removed.
	Clear(ctx context.Context, coll Collection) (int, error)

	// CreateUser inserts u, or leaves an existing user unchanged.
	CreateUser(ctx context.Context, u User) error
	// GetUser returns the user or ErrNotFound.
	GetUser(ctx context.Context, id string) (*User, error)

	// CreateAPIKey stores k.
	CreateAPIKey(ctx context.Context, k APIKey) error
	// APIKeyByHash returns the key with the given hash or ErrNotFound.
	APIKeyByHash(ctx context.Context, hash string) (*APIKey, error)

	Close(ctx context.Context) error
}

// DefaultKeyTTL is how long a new API key stays valid.
const DefaultKeyTTL = 90 * 24 * time.Hour

// keyPrefix marks chainsat API keys.
const keyPrefix = "csk_"

// NewAPIKey generates a secret for userID and the record to store for it.
// The secret is shown once; only its hash is persisted.
func NewAPIKey(userID, name string, ttl time.Duration, now time.Time) (string, APIKey, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", APIKey{}, err
	}
	secret := keyPrefix + base64.RawURLEncoding.EncodeToString(b)
	k := APIKey{
		ID:        uuid.NewString(),
		UserID:    userID,
		Hash:      HashKey(secret),
		Name:      name,
		CreatedAt: now.UTC(),
	}
	if ttl > 0 {
		k.ExpiresAt = now.Add(ttl).UTC()
	}
	return secret, k, nil
}

// HashKey returns the stored form of a secret.
func HashKey(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// Authenticate resolves a presented secret to its key. Unknown secrets
// return ErrNotFound and expired ones ErrExpired.
func Authenticate(ctx context.Context, s Store, secret string, now time.Time) (*APIKey, error) {
	if secret == "" {
		return nil, ErrNotFound
	}
	k, err := s.APIKeyByHash(ctx, HashKey(secret))
	if err != nil {
		return nil, err
	}
	if k.IsExpired(now) {
		return nil, ErrExpired
	}
	return k, nil
}
