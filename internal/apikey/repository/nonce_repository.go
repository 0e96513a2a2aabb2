package repository

import (
	"context"
	"time"

	"github.com/egplabs/gateway/internal/apikey/domain"
	"github.com/egplabs/gateway/pkg/db"
	"gorm.io/gorm"
)

type nonceRepo struct{}

func ProvideNonces() domain.NonceRepository {
	return &nonceRepo{}
}

func (r *nonceRepo) Insert(ctx context.Context, conn *gorm.DB, nonce *domain.RequestNonce) error {
	if nonce == nil {
		return nil
	}
	err := conn.WithContext(ctx).Exec(
		`INSERT INTO request_nonces (id, key_id, nonce, expires_at, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		nonce.ID,
		nonce.KeyID,
		nonce.Nonce,
		nonce.ExpiresAt.UTC(),
		nonce.CreatedAt.UTC(),
	).Error
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			return domain.ErrNonceReplayed
		}
		return err
	}
	return nil
}

func (r *nonceRepo) DeleteExpired(ctx context.Context, conn *gorm.DB, keyID string, now time.Time) error {
	return conn.WithContext(ctx).Exec(
		`DELETE FROM request_nonces WHERE key_id = ? AND expires_at < ?`,
		keyID, now.UTC(),
	).Error
}
