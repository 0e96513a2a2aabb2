package risk

import (
	"context"
	"strings"
	"time"

	auditdomain "github.com/egplabs/gateway/internal/audit/domain"
	"github.com/egplabs/gateway/internal/clock"
	"github.com/egplabs/gateway/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Action string

const (
	ActionAllow    Action = "allow"
	ActionThrottle Action = "throttle"
	ActionBlock    Action = "block"
)

const (
	LevelLow    = "low"
	LevelMedium = "medium"
	LevelHigh   = "high"
)

const (
	ReasonFailedAuthStreak = "failed_auth_streak"
	ReasonNewIP            = "new_ip"
	ReasonBurstTraffic     = "burst_traffic"
	ReasonSensitiveScope   = "sensitive_scope"
)

const (
	newIPWindow = 30 * 24 * time.Hour
	burstWindow = 60 * time.Second
)

type Input struct {
	KeyID          string
	IP             string
	FailedStreak   int
	RequiredScopes []string
}

type Evaluation struct {
	Score   int
	Level   string
	Action  Action
	Reasons []string
}

type Params struct {
	fx.In

	Log    *zap.Logger
	Clock  clock.Clock
	Policy config.Policy
	Audit  auditdomain.Service
}

// Evaluator turns recent authentication history into a score, level and
// policy action. It runs on every authenticated call, so its two counting
// queries stay narrow (key+time and key+ip+time, both indexed).
type Evaluator struct {
	log    *zap.Logger
	clock  clock.Clock
	policy config.Policy
	audit  auditdomain.Service
}

func NewEvaluator(p Params) *Evaluator {
	return &Evaluator{
		log:    p.Log.Named("risk.evaluator"),
		clock:  p.Clock,
		policy: p.Policy,
		audit:  p.Audit,
	}
}

// Evaluate scores additively; every rule runs even when an earlier one
// already crossed a threshold, so the reasons list is complete.
func (e *Evaluator) Evaluate(ctx context.Context, in Input) Evaluation {
	now := e.clock.Now()
	score := 0
	reasons := make([]string, 0, 4)

	if in.FailedStreak >= 3 {
		add := in.FailedStreak * 10
		if add > 40 {
			add = 40
		}
		score += add
		reasons = append(reasons, ReasonFailedAuthStreak)
	}

	if in.IP != "" {
		seen, err := e.audit.CountSuccessesByIP(ctx, in.KeyID, in.IP, now.Add(-newIPWindow))
		if err != nil {
			e.log.Warn("new-ip history query failed", zap.String("key_id", in.KeyID), zap.Error(err))
		} else if seen == 0 {
			score += 20
			reasons = append(reasons, ReasonNewIP)
		}
	}

	recent, err := e.audit.CountSuccesses(ctx, in.KeyID, now.Add(-burstWindow))
	if err != nil {
		e.log.Warn("burst history query failed", zap.String("key_id", in.KeyID), zap.Error(err))
	} else if recent >= int64(e.policy.BurstThreshold) {
		score += 30
		reasons = append(reasons, ReasonBurstTraffic)
	}

	if hasSensitiveScope(in.RequiredScopes) {
		score += 20
		reasons = append(reasons, ReasonSensitiveScope)
	}

	eval := Evaluation{Score: score, Reasons: reasons}
	switch {
	case score >= e.policy.RiskHighThreshold:
		eval.Level = LevelHigh
		eval.Action = ActionBlock
	case score >= e.policy.RiskMediumThreshold:
		eval.Level = LevelMedium
		eval.Action = ActionThrottle
	default:
		eval.Level = LevelLow
		eval.Action = ActionAllow
	}
	return eval
}

func hasSensitiveScope(scopes []string) bool {
	for _, scope := range scopes {
		if strings.Contains(scope, ":write") ||
			strings.Contains(scope, ":admin") ||
			strings.HasPrefix(scope, "keys:") {
			return true
		}
	}
	return false
}

var Module = fx.Module("risk.evaluator",
	fx.Provide(NewEvaluator),
)
