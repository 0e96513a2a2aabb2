package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/egplabs/gateway/pkg/db/pagination"
	"gorm.io/gorm"
)

// Repository is the key-record store contract consumed by the engine and
// the management service.
type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, key *APIKey) error
	FindByKeyID(ctx context.Context, db *gorm.DB, keyID string) (*APIKey, error)
	// ListByUser pages through a user's keys ordered by (created_at, id)
	// descending. cursor may be nil; limit rows plus one are returned so the
	// caller can detect a next page.
	ListByUser(ctx context.Context, db *gorm.DB, userID snowflake.ID, cursor *pagination.Cursor, limit int) ([]APIKey, error)
	Update(ctx context.Context, db *gorm.DB, key *APIKey) error

	// RecordFailure bumps the failed-auth streak and last-failed timestamp.
	RecordFailure(ctx context.Context, db *gorm.DB, keyID string, at time.Time) error
	// RecordSuccess resets the streak, bumps usage counters and persists the
	// latest risk snapshot.
	RecordSuccess(ctx context.Context, db *gorm.DB, keyID string, at time.Time, riskLevel string, riskScore int) error

	// OwnerContactVerified reports whether the owning user has a verified
	// contact identity; key creation requires it.
	OwnerContactVerified(ctx context.Context, db *gorm.DB, userID snowflake.ID) (bool, error)
}

// NonceRepository enforces (key_id, nonce) uniqueness for replay protection.
type NonceRepository interface {
	// Insert returns ErrNonceReplayed when the nonce was already consumed.
	Insert(ctx context.Context, db *gorm.DB, nonce *RequestNonce) error
	// DeleteExpired removes rows past their TTL for one key. Called
	// opportunistically, never on a schedule.
	DeleteExpired(ctx context.Context, db *gorm.DB, keyID string, now time.Time) error
}

// Service manages key lifecycle on behalf of key owners.
type Service interface {
	List(ctx context.Context, userID snowflake.ID, page pagination.Pagination) (*ListResponse, error)
	Create(ctx context.Context, req CreateRequest) (*SecretResponse, error)
	Rotate(ctx context.Context, userID snowflake.ID, keyID string) (*SecretResponse, error)
	Revoke(ctx context.Context, userID snowflake.ID, keyID string) error
}

type CreateRequest struct {
	UserID      snowflake.ID `json:"-"`
	Environment string       `json:"environment"`
	Name        string       `json:"name"`
	Scopes      []string     `json:"scopes"`
	ExpiresAt   *time.Time   `json:"expires_at"`
}

type ListResponse struct {
	APIKeys  []Response           `json:"api_keys"`
	PageInfo *pagination.PageInfo `json:"page_info"`
}

type Response struct {
	KeyID            string     `json:"key_id"`
	Environment      string     `json:"environment"`
	Name             string     `json:"name"`
	SecretHint       string     `json:"secret_hint"`
	Scopes           []string   `json:"scopes"`
	Status           KeyStatus  `json:"status"`
	RiskLevel        string     `json:"risk_level"`
	RiskScore        int        `json:"risk_score"`
	CreatedAt        time.Time  `json:"created_at"`
	LastUsedAt       *time.Time `json:"last_used_at"`
	ExpiresAt        *time.Time `json:"expires_at"`
	RotatedFromKeyID *string    `json:"rotated_from_key_id"`
}

// SecretResponse is returned exactly once, at creation or rotation; the
// plaintext token is never recoverable afterwards.
type SecretResponse struct {
	KeyID  string   `json:"key_id"`
	Token  string   `json:"token"`
	Scopes []string `json:"scopes"`
}
