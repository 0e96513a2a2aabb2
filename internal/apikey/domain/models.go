package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/lib/pq"
)

type KeyStatus string

const (
	StatusActive  KeyStatus = "active"
	StatusRotated KeyStatus = "rotated"
	StatusRevoked KeyStatus = "revoked"
	StatusBlocked KeyStatus = "blocked"
)

const (
	RevokedReasonExpired = "expired"
	RevokedReasonManual  = "manual"
	RevokedReasonRotated = "rotated"
)

// APIKey stores hashed API credentials and per-key admission policy.
// Environment is immutable after creation; Status follows the lifecycle
// active -> rotated -> revoked, active -> revoked, active <-> blocked.
type APIKey struct {
	ID          snowflake.ID   `gorm:"primaryKey"`
	UserID      snowflake.ID   `gorm:"column:user_id;not null;index"`
	KeyID       string         `gorm:"column:key_id;type:text;not null;uniqueIndex:ux_api_keys_key_id"`
	Environment string         `gorm:"type:text;not null"`
	Name        string         `gorm:"type:text;not null"`
	SecretHash  string         `gorm:"column:secret_hash;type:text;not null"`
	SecretHint  string         `gorm:"column:secret_hint;type:text;not null"`
	Scopes      pq.StringArray `gorm:"type:text[];not null"`
	Status      KeyStatus      `gorm:"type:text;not null;default:active"`

	RiskLevel string `gorm:"column:risk_level;type:text;not null;default:low"`
	RiskScore int    `gorm:"column:risk_score;not null;default:0"`

	RateLimitPerMinute   int `gorm:"column:rate_limit_per_minute;not null;default:0"`
	IPRateLimitPerMinute int `gorm:"column:ip_rate_limit_per_minute;not null;default:0"`
	ConcurrencyLimit     int `gorm:"column:concurrency_limit;not null;default:0"`

	FailedAuthCount int   `gorm:"column:failed_auth_count;not null;default:0"`
	UsageCount      int64 `gorm:"column:usage_count;not null;default:0"`

	CreatedAt    time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt    time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP"`
	LastUsedAt   *time.Time `gorm:"column:last_used_at"`
	LastFailedAt *time.Time `gorm:"column:last_failed_at"`

	ExpiresAt      *time.Time `gorm:"column:expires_at"`
	GraceExpiresAt *time.Time `gorm:"column:grace_expires_at"`
	BlockedUntil   *time.Time `gorm:"column:blocked_until"`
	RevokedAt      *time.Time `gorm:"column:revoked_at"`
	RevokedReason  *string    `gorm:"column:revoked_reason;type:text"`

	RotatedFromKeyID *string `gorm:"column:rotated_from_key_id;type:text"`
}

// TableName sets the database table name.
func (APIKey) TableName() string { return "api_keys" }

// RequestNonce marks a signed-request nonce as consumed. Existence of a row
// within its TTL means the nonce cannot be accepted again.
type RequestNonce struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	KeyID     string       `gorm:"column:key_id;type:text;not null;uniqueIndex:ux_request_nonces_key_nonce,priority:1"`
	Nonce     string       `gorm:"type:text;not null;uniqueIndex:ux_request_nonces_key_nonce,priority:2"`
	ExpiresAt time.Time    `gorm:"column:expires_at;not null"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (RequestNonce) TableName() string { return "request_nonces" }
