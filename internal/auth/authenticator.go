package auth

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	apikeydomain "github.com/egplabs/gateway/internal/apikey/domain"
	"github.com/egplabs/gateway/internal/apikey/signature"
	auditdomain "github.com/egplabs/gateway/internal/audit/domain"
	"github.com/egplabs/gateway/internal/clock"
	"github.com/egplabs/gateway/internal/config"
	"github.com/egplabs/gateway/internal/observability/metrics"
	"github.com/egplabs/gateway/internal/ratelimit"
	"github.com/egplabs/gateway/internal/risk"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	keyBucketPattern   = "apikey:rl:%s"
	ipBucketPattern    = "apikey:rl:%s:ip:%s"
	slotSetPattern     = "apikey:cc:%s"
	rateLimitWindowSec = 60
)

var disallowedQueryParams = []string{"api_key", "apikey", "key"}

// Request is the transport-agnostic view of one inbound call.
type Request struct {
	Method    string
	Path      string
	Query     url.Values
	Body      []byte
	IP        string
	UserAgent string

	Authorization string
	APIKeyHeader  string
	Timestamp     string
	Nonce         string
	Signature     string
}

// Principal is the verified identity returned on success.
type Principal struct {
	KeyID        string
	UserID       snowflake.ID
	Environment  string
	Name         string
	Scopes       []string
	RiskLevel    string
	RiskScore    int
	PolicyAction risk.Action
}

// Result couples the principal with the concurrency release handle. The
// dispatch layer must call Release on every exit path; repeated calls are
// no-ops.
type Result struct {
	Principal Principal
	Release   func()
}

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Clock    clock.Clock
	Policy   config.Policy
	Repo     apikeydomain.Repository
	Audit    auditdomain.Service
	Risk     *risk.Evaluator
	Buckets  *ratelimit.Limiter
	Slots    *ratelimit.ConcurrencyLimiter
	Verifier *signature.Verifier
	Metrics  *metrics.Metrics
}

// Authenticator composes token parsing, lifecycle validation, risk scoring,
// rate limiting, concurrency admission and signature verification into one
// Authenticate operation.
type Authenticator struct {
	db       *gorm.DB
	log      *zap.Logger
	clock    clock.Clock
	policy   config.Policy
	repo     apikeydomain.Repository
	audit    auditdomain.Service
	risk     *risk.Evaluator
	buckets  *ratelimit.Limiter
	slots    *ratelimit.ConcurrencyLimiter
	verifier *signature.Verifier
	stats    *metrics.Metrics
}

func New(p Params) *Authenticator {
	return &Authenticator{
		db:       p.DB,
		log:      p.Log.Named("apikey.auth"),
		clock:    p.Clock,
		policy:   p.Policy,
		repo:     p.Repo,
		audit:    p.Audit,
		risk:     p.Risk,
		buckets:  p.Buckets,
		slots:    p.Slots,
		verifier: p.Verifier,
		stats:    p.Metrics,
	}
}

// Authenticate validates the credential and enforces the layered admission
// policy. Every rejection is audited best-effort before it is returned;
// state transitions that are side effects of a failed check (lazy expiry,
// risk auto-block) are committed even though the call fails.
func (a *Authenticator) Authenticate(ctx context.Context, req Request, requiredScopes []string, requireSignature bool) (*Result, error) {
	if hasQueryKey(req.Query) {
		return nil, a.reject(ctx, req, "", apikeydomain.ErrQueryNotAllowed())
	}

	raw := bearerOrHeader(req)
	if raw == "" {
		return nil, a.reject(ctx, req, "", apikeydomain.ErrMissing())
	}

	token, err := apikeydomain.ParseToken(raw)
	if err != nil {
		return nil, a.reject(ctx, req, "", apikeydomain.ErrInvalid())
	}

	key, err := a.repo.FindByKeyID(ctx, a.db, token.KeyID)
	if err != nil {
		return nil, err
	}
	if key == nil {
		// Same generic code as a wrong secret so the response is not an
		// existence oracle. The failure is still keyed to the claimed id.
		return nil, a.reject(ctx, req, token.KeyID, apikeydomain.ErrInvalid())
	}

	if key.Environment != token.Environment {
		a.recordFailure(ctx, key.KeyID)
		return nil, a.reject(ctx, req, key.KeyID, apikeydomain.ErrInvalid())
	}

	now := a.clock.Now()

	if key.BlockedUntil != nil && key.BlockedUntil.After(now) {
		return nil, a.reject(ctx, req, key.KeyID, apikeydomain.ErrBlocked(key.BlockedUntil))
	}

	if key.ExpiresAt != nil && key.ExpiresAt.Before(now) && key.Status != apikeydomain.StatusRevoked {
		// Lazy expiry: detected at use time, not by a background sweep.
		reason := apikeydomain.RevokedReasonExpired
		key.Status = apikeydomain.StatusRevoked
		key.RevokedAt = &now
		key.RevokedReason = &reason
		key.UpdatedAt = now
		if err := a.repo.Update(ctx, a.db, key); err != nil {
			a.log.Warn("lazy expiry transition failed", zap.String("key_id", key.KeyID), zap.Error(err))
		}
		return nil, a.reject(ctx, req, key.KeyID, apikeydomain.ErrExpired())
	}

	switch key.Status {
	case apikeydomain.StatusRotated:
		if key.GraceExpiresAt == nil || key.GraceExpiresAt.Before(now) {
			return nil, a.reject(ctx, req, key.KeyID, apikeydomain.ErrRotated())
		}
	case apikeydomain.StatusRevoked:
		return nil, a.reject(ctx, req, key.KeyID, apikeydomain.ErrRevoked())
	case apikeydomain.StatusBlocked:
		if key.BlockedUntil != nil && !key.BlockedUntil.After(now) {
			// Risk cool-down elapsed; return the key to service.
			key.Status = apikeydomain.StatusActive
			key.BlockedUntil = nil
			key.UpdatedAt = now
			if err := a.repo.Update(ctx, a.db, key); err != nil {
				a.log.Warn("unblock transition failed", zap.String("key_id", key.KeyID), zap.Error(err))
			}
		} else {
			return nil, a.reject(ctx, req, key.KeyID, apikeydomain.ErrBlocked(key.BlockedUntil))
		}
	}

	if !apikeydomain.VerifySecret(key.SecretHash, token.Secret) {
		a.recordFailure(ctx, key.KeyID)
		return nil, a.reject(ctx, req, key.KeyID, apikeydomain.ErrInvalid())
	}

	required := apikeydomain.NormalizeScopes(requiredScopes)
	if !apikeydomain.HasAllScopes(key.Scopes, required) {
		a.recordFailure(ctx, key.KeyID)
		return nil, a.reject(ctx, req, key.KeyID, apikeydomain.ErrScopeForbidden(missingScopes(key.Scopes, required)))
	}

	eval := a.risk.Evaluate(ctx, risk.Input{
		KeyID:          key.KeyID,
		IP:             req.IP,
		FailedStreak:   key.FailedAuthCount,
		RequiredScopes: required,
	})

	rateLimit := a.policy.ClampRateLimit(key.RateLimitPerMinute)
	ipRateLimit := a.policy.ClampIPRateLimit(key.IPRateLimitPerMinute)
	concurrency := a.policy.ClampConcurrencyLimit(key.ConcurrencyLimit)

	switch eval.Action {
	case risk.ActionBlock:
		until := now.Add(a.policy.RiskBlockDuration())
		key.Status = apikeydomain.StatusBlocked
		key.BlockedUntil = &until
		key.RiskLevel = eval.Level
		key.RiskScore = eval.Score
		key.UpdatedAt = now
		if err := a.repo.Update(ctx, a.db, key); err != nil {
			a.log.Warn("risk block transition failed", zap.String("key_id", key.KeyID), zap.Error(err))
		}
		a.audit.Record(ctx, auditdomain.Event{
			KeyID:        key.KeyID,
			EventType:    auditdomain.EventKeyBlocked,
			Outcome:      auditdomain.OutcomeFailure,
			PolicyAction: string(eval.Action),
			RiskLevel:    eval.Level,
			RiskScore:    eval.Score,
			IPAddress:    req.IP,
			Metadata:     map[string]any{"reasons": eval.Reasons, "blocked_until": until},
		})
		return nil, a.reject(ctx, req, key.KeyID, apikeydomain.ErrRiskBlocked(eval.Reasons))
	case risk.ActionThrottle:
		// Halve the effective limits for this call only; stored limits
		// stay untouched.
		rateLimit = halve(rateLimit)
		ipRateLimit = halve(ipRateLimit)
		concurrency = halve(concurrency)
	}

	decision := a.buckets.Consume(ctx, fmt.Sprintf(keyBucketPattern, key.KeyID), rateLimit, rateLimitWindow())
	if !decision.Allowed {
		a.stats.AdmissionDenied("global")
		return nil, a.reject(ctx, req, key.KeyID, apikeydomain.ErrRateLimited(decision.RetryAfter))
	}

	// Conservative consumption: the global token above is not refunded if a
	// later check fails.
	decision = a.buckets.Consume(ctx, fmt.Sprintf(ipBucketPattern, key.KeyID, req.IP), ipRateLimit, rateLimitWindow())
	if !decision.Allowed {
		a.stats.AdmissionDenied("ip")
		return nil, a.reject(ctx, req, key.KeyID, apikeydomain.ErrIPRateLimited(decision.RetryAfter))
	}

	slot, ok := a.slots.Acquire(ctx, fmt.Sprintf(slotSetPattern, key.KeyID), concurrency)
	if !ok {
		a.stats.AdmissionDenied("concurrency")
		return nil, a.reject(ctx, req, key.KeyID, apikeydomain.ErrConcurrencyLimited())
	}

	if requireSignature {
		if sigErr := a.verifier.Verify(ctx, key.KeyID, token.Secret, signature.Input{
			Method:    req.Method,
			Path:      req.Path,
			Body:      req.Body,
			Timestamp: req.Timestamp,
			Nonce:     req.Nonce,
			Signature: req.Signature,
		}); sigErr != nil {
			// Never leak the slot on the signature path.
			slot.Release()
			return nil, a.reject(ctx, req, key.KeyID, sigErr)
		}
	}

	if err := a.repo.RecordSuccess(ctx, a.db, key.KeyID, now, eval.Level, eval.Score); err != nil {
		a.log.Warn("success bookkeeping failed", zap.String("key_id", key.KeyID), zap.Error(err))
	}

	a.stats.AuthSucceeded()
	a.audit.Record(ctx, auditdomain.Event{
		KeyID:        key.KeyID,
		EventType:    auditdomain.EventAuthSucceeded,
		Outcome:      auditdomain.OutcomeSuccess,
		PolicyAction: string(eval.Action),
		RiskLevel:    eval.Level,
		RiskScore:    eval.Score,
		IPAddress:    req.IP,
		UserAgent:    req.UserAgent,
		Method:       req.Method,
		Path:         req.Path,
	})

	return &Result{
		Principal: Principal{
			KeyID:        key.KeyID,
			UserID:       key.UserID,
			Environment:  key.Environment,
			Name:         key.Name,
			Scopes:       key.Scopes,
			RiskLevel:    eval.Level,
			RiskScore:    eval.Score,
			PolicyAction: eval.Action,
		},
		Release: slot.Release,
	}, nil
}

// reject audits the failure best-effort and returns the error unchanged.
func (a *Authenticator) reject(ctx context.Context, req Request, keyID string, authErr *apikeydomain.AuthError) error {
	a.stats.AuthRejected(authErr.Code)
	a.audit.Record(ctx, auditdomain.Event{
		KeyID:      keyID,
		EventType:  auditdomain.EventAuthFailed,
		Outcome:    auditdomain.OutcomeFailure,
		IPAddress:  req.IP,
		UserAgent:  req.UserAgent,
		Method:     req.Method,
		Path:       req.Path,
		StatusCode: authErr.HTTPStatus,
		ReasonCode: authErr.Code,
		ReasonMsg:  authErr.Message,
	})
	return authErr
}

func (a *Authenticator) recordFailure(ctx context.Context, keyID string) {
	if err := a.repo.RecordFailure(ctx, a.db, keyID, a.clock.Now()); err != nil {
		a.log.Warn("failure bookkeeping failed", zap.String("key_id", keyID), zap.Error(err))
	}
}

func hasQueryKey(query url.Values) bool {
	for _, param := range disallowedQueryParams {
		if query.Get(param) != "" {
			return true
		}
	}
	return false
}

func bearerOrHeader(req Request) string {
	if header := strings.TrimSpace(req.Authorization); header != "" {
		parts := strings.Fields(header)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	return strings.TrimSpace(req.APIKeyHeader)
}

func missingScopes(granted []string, required []string) []string {
	missing := make([]string, 0, len(required))
	for _, req := range required {
		matched := false
		for _, g := range granted {
			if apikeydomain.ScopeMatches(g, req) {
				matched = true
				break
			}
		}
		if !matched {
			missing = append(missing, req)
		}
	}
	return missing
}

func halve(v int) int {
	h := v / 2
	if h < 1 {
		return 1
	}
	return h
}

func rateLimitWindow() time.Duration {
	return rateLimitWindowSec * time.Second
}

var Module = fx.Module("apikey.auth",
	fx.Provide(New),
)
