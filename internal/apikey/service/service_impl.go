package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	apikeydomain "github.com/egplabs/gateway/internal/apikey/domain"
	auditdomain "github.com/egplabs/gateway/internal/audit/domain"
	"github.com/egplabs/gateway/internal/clock"
	"github.com/egplabs/gateway/internal/config"
	"github.com/egplabs/gateway/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	GenID  *snowflake.Node
	Clock  clock.Clock
	Policy config.Policy
	Repo   apikeydomain.Repository
	Audit  auditdomain.Service
}

type Service struct {
	db     *gorm.DB
	log    *zap.Logger
	genID  *snowflake.Node
	clock  clock.Clock
	policy config.Policy
	repo   apikeydomain.Repository
	audit  auditdomain.Service
}

func New(p Params) apikeydomain.Service {
	return &Service{
		db:     p.DB,
		log:    p.Log.Named("apikey.service"),
		genID:  p.GenID,
		clock:  p.Clock,
		policy: p.Policy,
		repo:   p.Repo,
		audit:  p.Audit,
	}
}

func (s *Service) List(ctx context.Context, userID snowflake.ID, page pagination.Pagination) (*apikeydomain.ListResponse, error) {
	var cursor *pagination.Cursor
	if page.PageToken != "" {
		decoded, err := pagination.DecodeCursor(page.PageToken)
		if err != nil {
			return nil, apikeydomain.ErrInvalidPageToken
		}
		cursor = decoded
	}

	limit := page.Limit()
	items, err := s.repo.ListByUser(ctx, s.db, userID, cursor, limit)
	if err != nil {
		return nil, err
	}

	items, pageInfo := pagination.TrimPage(items, limit, func(key apikeydomain.APIKey) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        key.ID.String(),
			CreatedAt: key.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
		if err != nil {
			return ""
		}
		return token
	})

	resp := make([]apikeydomain.Response, 0, len(items))
	for i := range items {
		resp = append(resp, toResponse(&items[i]))
	}
	return &apikeydomain.ListResponse{APIKeys: resp, PageInfo: pageInfo}, nil
}

func (s *Service) Create(ctx context.Context, req apikeydomain.CreateRequest) (*apikeydomain.SecretResponse, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, apikeydomain.ErrInvalidName
	}

	environment := strings.ToLower(strings.TrimSpace(req.Environment))
	if environment != apikeydomain.EnvironmentLive && environment != apikeydomain.EnvironmentTest {
		return nil, apikeydomain.ErrInvalidEnvironment
	}

	scopes := apikeydomain.NormalizeScopes(req.Scopes)
	if len(scopes) == 0 {
		return nil, apikeydomain.ErrInvalidScope
	}
	for _, scope := range scopes {
		if !apikeydomain.ValidScope(scope) {
			return nil, apikeydomain.ErrInvalidScope
		}
	}

	verified, err := s.repo.OwnerContactVerified(ctx, s.db, req.UserID)
	if err != nil {
		return nil, err
	}
	if !verified {
		return nil, apikeydomain.ErrUnverifiedContact
	}

	now := s.clock.Now()
	id := s.genID.Generate()
	keyID := id.String()
	secret, err := apikeydomain.GenerateSecret()
	if err != nil {
		return nil, err
	}

	key := &apikeydomain.APIKey{
		ID:          id,
		UserID:      req.UserID,
		KeyID:       keyID,
		Environment: environment,
		Name:        name,
		SecretHash:  apikeydomain.HashSecret(secret),
		SecretHint:  apikeydomain.SecretHint(secret),
		Scopes:      scopes,
		Status:      apikeydomain.StatusActive,
		RiskLevel:   "low",
		CreatedAt:   now,
		UpdatedAt:   now,
		ExpiresAt:   req.ExpiresAt,
	}

	if err := s.repo.Insert(ctx, s.db, key); err != nil {
		return nil, err
	}

	s.audit.Record(ctx, auditdomain.Event{
		KeyID:     keyID,
		EventType: auditdomain.EventKeyCreated,
		Outcome:   auditdomain.OutcomeSuccess,
		Metadata:  map[string]any{"environment": environment, "scopes": scopes},
	})

	return &apikeydomain.SecretResponse{
		KeyID:  keyID,
		Token:  apikeydomain.EncodeToken(environment, keyID, secret),
		Scopes: scopes,
	}, nil
}

func (s *Service) Rotate(ctx context.Context, userID snowflake.ID, keyID string) (*apikeydomain.SecretResponse, error) {
	trimmed := strings.TrimSpace(keyID)
	if trimmed == "" {
		return nil, apikeydomain.ErrNotFound
	}

	var result *apikeydomain.SecretResponse
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.repo.FindByKeyID(ctx, tx, trimmed)
		if err != nil {
			return err
		}
		if current == nil || current.UserID != userID || current.Status != apikeydomain.StatusActive {
			return apikeydomain.ErrNotFound
		}

		now := s.clock.Now()
		grace := now.Add(s.policy.RotationGrace())
		current.Status = apikeydomain.StatusRotated
		current.GraceExpiresAt = &grace
		current.UpdatedAt = now
		if err := s.repo.Update(ctx, tx, current); err != nil {
			return err
		}

		id := s.genID.Generate()
		nextKeyID := id.String()
		secret, err := apikeydomain.GenerateSecret()
		if err != nil {
			return err
		}

		rotatedFrom := current.KeyID
		next := &apikeydomain.APIKey{
			ID:                   id,
			UserID:               current.UserID,
			KeyID:                nextKeyID,
			Environment:          current.Environment,
			Name:                 current.Name,
			SecretHash:           apikeydomain.HashSecret(secret),
			SecretHint:           apikeydomain.SecretHint(secret),
			Scopes:               current.Scopes,
			Status:               apikeydomain.StatusActive,
			RiskLevel:            "low",
			RateLimitPerMinute:   current.RateLimitPerMinute,
			IPRateLimitPerMinute: current.IPRateLimitPerMinute,
			ConcurrencyLimit:     current.ConcurrencyLimit,
			CreatedAt:            now,
			UpdatedAt:            now,
			ExpiresAt:            current.ExpiresAt,
			RotatedFromKeyID:     &rotatedFrom,
		}

		if err := s.repo.Insert(ctx, tx, next); err != nil {
			return err
		}

		result = &apikeydomain.SecretResponse{
			KeyID:  nextKeyID,
			Token:  apikeydomain.EncodeToken(next.Environment, nextKeyID, secret),
			Scopes: next.Scopes,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, auditdomain.Event{
		KeyID:     trimmed,
		EventType: auditdomain.EventKeyRotated,
		Outcome:   auditdomain.OutcomeSuccess,
		Metadata:  map[string]any{"new_key_id": result.KeyID},
	})

	return result, nil
}

func (s *Service) Revoke(ctx context.Context, userID snowflake.ID, keyID string) error {
	trimmed := strings.TrimSpace(keyID)
	if trimmed == "" {
		return apikeydomain.ErrNotFound
	}

	key, err := s.repo.FindByKeyID(ctx, s.db, trimmed)
	if err != nil {
		return err
	}
	if key == nil || key.UserID != userID {
		return apikeydomain.ErrNotFound
	}
	if key.Status == apikeydomain.StatusRevoked {
		return nil
	}

	now := s.clock.Now()
	reason := apikeydomain.RevokedReasonManual
	key.Status = apikeydomain.StatusRevoked
	key.RevokedAt = &now
	key.RevokedReason = &reason
	key.UpdatedAt = now
	if err := s.repo.Update(ctx, s.db, key); err != nil {
		return err
	}

	s.audit.Record(ctx, auditdomain.Event{
		KeyID:     trimmed,
		EventType: auditdomain.EventKeyRevoked,
		Outcome:   auditdomain.OutcomeSuccess,
	})
	return nil
}

func toResponse(key *apikeydomain.APIKey) apikeydomain.Response {
	return apikeydomain.Response{
		KeyID:            key.KeyID,
		Environment:      key.Environment,
		Name:             key.Name,
		SecretHint:       key.SecretHint,
		Scopes:           key.Scopes,
		Status:           key.Status,
		RiskLevel:        key.RiskLevel,
		RiskScore:        key.RiskScore,
		CreatedAt:        key.CreatedAt,
		LastUsedAt:       key.LastUsedAt,
		ExpiresAt:        key.ExpiresAt,
		RotatedFromKeyID: key.RotatedFromKeyID,
	}
}
