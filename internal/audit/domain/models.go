package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

const (
	EventAuthSucceeded = "api_key.auth.succeeded"
	EventAuthFailed    = "api_key.auth.failed"
	EventKeyCreated    = "api_key.created"
	EventKeyRotated    = "api_key.rotated"
	EventKeyRevoked    = "api_key.revoked"
	EventKeyBlocked    = "api_key.blocked"
)

const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// AuditEvent is append-only; rows are never updated or deleted here.
// The two composite indexes back the risk evaluator's counting queries.
type AuditEvent struct {
	ID           snowflake.ID   `gorm:"primaryKey"`
	KeyID        string         `gorm:"column:key_id;type:text;not null;index:ix_audit_events_key_time,priority:1;index:ix_audit_events_key_ip_time,priority:1"`
	EventType    string         `gorm:"column:event_type;type:text;not null"`
	Outcome      string         `gorm:"type:text;not null"`
	PolicyAction string         `gorm:"column:policy_action;type:text"`
	RiskLevel    string         `gorm:"column:risk_level;type:text"`
	RiskScore    int            `gorm:"column:risk_score;not null;default:0"`
	ActorID      *string        `gorm:"column:actor_id;type:text"`
	IPAddress    string         `gorm:"column:ip_address;type:text;index:ix_audit_events_key_ip_time,priority:2"`
	UserAgent    string         `gorm:"column:user_agent;type:text"`
	Method       string         `gorm:"type:text"`
	Path         string         `gorm:"type:text"`
	StatusCode   int            `gorm:"column:status_code;not null;default:0"`
	ReasonCode   string         `gorm:"column:reason_code;type:text"`
	ReasonMsg    string         `gorm:"column:reason_msg;type:text"`
	Metadata     datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt    time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP;index:ix_audit_events_key_time,priority:2;index:ix_audit_events_key_ip_time,priority:3"`
}

func (AuditEvent) TableName() string { return "audit_events" }
