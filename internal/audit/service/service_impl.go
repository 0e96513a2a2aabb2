package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/egplabs/gateway/internal/audit/domain"
	"github.com/egplabs/gateway/internal/clock"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  auditdomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  auditdomain.Repository
}

func NewService(p Params) auditdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("audit.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) Record(ctx context.Context, event auditdomain.Event) {
	at := event.At
	if at.IsZero() {
		at = s.clock.Now()
	}

	var metadata datatypes.JSON
	if len(event.Metadata) > 0 {
		raw, err := json.Marshal(event.Metadata)
		if err != nil {
			s.log.Warn("audit metadata not serializable", zap.Error(err))
		} else {
			metadata = raw
		}
	}

	entry := &auditdomain.AuditEvent{
		ID:           s.genID.Generate(),
		KeyID:        event.KeyID,
		EventType:    event.EventType,
		Outcome:      event.Outcome,
		PolicyAction: event.PolicyAction,
		RiskLevel:    event.RiskLevel,
		RiskScore:    event.RiskScore,
		ActorID:      event.ActorID,
		IPAddress:    event.IPAddress,
		UserAgent:    event.UserAgent,
		Method:       event.Method,
		Path:         event.Path,
		StatusCode:   event.StatusCode,
		ReasonCode:   event.ReasonCode,
		ReasonMsg:    event.ReasonMsg,
		Metadata:     metadata,
		CreatedAt:    at.UTC(),
	}

	if err := s.repo.Insert(ctx, s.db, entry); err != nil {
		s.log.Warn("audit write failed",
			zap.String("key_id", event.KeyID),
			zap.String("event_type", event.EventType),
			zap.Error(err),
		)
	}
}

func (s *Service) CountSuccesses(ctx context.Context, keyID string, since time.Time) (int64, error) {
	return s.repo.CountSuccesses(ctx, s.db, keyID, since)
}

func (s *Service) CountSuccessesByIP(ctx context.Context, keyID, ip string, since time.Time) (int64, error) {
	return s.repo.CountSuccessesByIP(ctx, s.db, keyID, ip, since)
}
