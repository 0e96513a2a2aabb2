package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// Event is the write-side input for the audit trail.
type Event struct {
	KeyID        string
	EventType    string
	Outcome      string
	PolicyAction string
	RiskLevel    string
	RiskScore    int
	ActorID      *string
	IPAddress    string
	UserAgent    string
	Method       string
	Path         string
	StatusCode   int
	ReasonCode   string
	ReasonMsg    string
	Metadata     map[string]any
	At           time.Time
}

// Service appends events and answers the two counting queries the risk
// evaluator runs on the hot path. Record never propagates failure; a failed
// write is logged and discarded so observability cannot degrade request
// availability.
type Service interface {
	Record(ctx context.Context, event Event)
	CountSuccesses(ctx context.Context, keyID string, since time.Time) (int64, error)
	CountSuccessesByIP(ctx context.Context, keyID, ip string, since time.Time) (int64, error)
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, event *AuditEvent) error
	CountSuccesses(ctx context.Context, db *gorm.DB, keyID string, since time.Time) (int64, error)
	CountSuccessesByIP(ctx context.Context, db *gorm.DB, keyID, ip string, since time.Time) (int64, error)
}
