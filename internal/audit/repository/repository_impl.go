package repository

import (
	"context"
	"time"

	"github.com/egplabs/gateway/internal/audit/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, event *domain.AuditEvent) error {
	if event == nil {
		return nil
	}
	return db.WithContext(ctx).Exec(
		`INSERT INTO audit_events (
			id, key_id, event_type, outcome, policy_action, risk_level, risk_score,
			actor_id, ip_address, user_agent, method, path, status_code,
			reason_code, reason_msg, metadata, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID,
		event.KeyID,
		event.EventType,
		event.Outcome,
		event.PolicyAction,
		event.RiskLevel,
		event.RiskScore,
		event.ActorID,
		event.IPAddress,
		event.UserAgent,
		event.Method,
		event.Path,
		event.StatusCode,
		event.ReasonCode,
		event.ReasonMsg,
		event.Metadata,
		event.CreatedAt,
	).Error
}

func (r *repo) CountSuccesses(ctx context.Context, db *gorm.DB, keyID string, since time.Time) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Model(&domain.AuditEvent{}).
		Where("key_id = ? AND event_type = ? AND created_at >= ?",
			keyID, domain.EventAuthSucceeded, since.UTC()).
		Count(&count).Error
	return count, err
}

func (r *repo) CountSuccessesByIP(ctx context.Context, db *gorm.DB, keyID, ip string, since time.Time) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Model(&domain.AuditEvent{}).
		Where("key_id = ? AND ip_address = ? AND event_type = ? AND created_at >= ?",
			keyID, ip, domain.EventAuthSucceeded, since.UTC()).
		Count(&count).Error
	return count, err
}
