package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/egplabs/gateway/internal/apikey/domain"
	"github.com/egplabs/gateway/pkg/db/pagination"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, key *domain.APIKey) error {
	if key == nil {
		return nil
	}
	return db.WithContext(ctx).Create(key).Error
}

func (r *repo) FindByKeyID(ctx context.Context, db *gorm.DB, keyID string) (*domain.APIKey, error) {
	var key domain.APIKey
	err := db.WithContext(ctx).
		Where("key_id = ?", keyID).
		First(&key).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &key, nil
}

func (r *repo) ListByUser(ctx context.Context, db *gorm.DB, userID snowflake.ID, cursor *pagination.Cursor, limit int) ([]domain.APIKey, error) {
	q := db.WithContext(ctx).Where("user_id = ?", userID)
	if cursor != nil {
		createdAt, err := time.Parse(time.RFC3339Nano, cursor.CreatedAt)
		if err != nil {
			return nil, err
		}
		q = q.Where("created_at < ? OR (created_at = ? AND id < ?)", createdAt, createdAt, cursor.ID)
	}

	var keys []domain.APIKey
	err := q.Order("created_at desc, id desc").
		Limit(limit + 1).
		Find(&keys).Error
	if err != nil {
		return nil, err
	}
	return keys, nil
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, key *domain.APIKey) error {
	if key == nil {
		return nil
	}
	return db.WithContext(ctx).Save(key).Error
}

func (r *repo) RecordFailure(ctx context.Context, db *gorm.DB, keyID string, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE api_keys
		 SET failed_auth_count = failed_auth_count + 1,
		     last_failed_at = ?,
		     updated_at = ?
		 WHERE key_id = ?`,
		at.UTC(), at.UTC(), keyID,
	).Error
}

func (r *repo) RecordSuccess(ctx context.Context, db *gorm.DB, keyID string, at time.Time, riskLevel string, riskScore int) error {
	return db.WithContext(ctx).Exec(
		`UPDATE api_keys
		 SET failed_auth_count = 0,
		     usage_count = usage_count + 1,
		     last_used_at = ?,
		     risk_level = ?,
		     risk_score = ?,
		     updated_at = ?
		 WHERE key_id = ?`,
		at.UTC(), riskLevel, riskScore, at.UTC(), keyID,
	).Error
}

func (r *repo) OwnerContactVerified(ctx context.Context, db *gorm.DB, userID snowflake.ID) (bool, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM users WHERE id = ? AND contact_verified_at IS NOT NULL`,
		userID,
	).Scan(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
