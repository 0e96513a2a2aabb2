package risk

import (
	"context"
	"errors"
	"testing"
	"time"

	auditdomain "github.com/egplabs/gateway/internal/audit/domain"
	"github.com/egplabs/gateway/internal/clock"
	"github.com/egplabs/gateway/internal/config"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type auditStub struct {
	successes   int64
	successesIP int64
	err         error
}

func (a *auditStub) Record(ctx context.Context, event auditdomain.Event) {}

func (a *auditStub) CountSuccesses(ctx context.Context, keyID string, since time.Time) (int64, error) {
	return a.successes, a.err
}

func (a *auditStub) CountSuccessesByIP(ctx context.Context, keyID, ip string, since time.Time) (int64, error) {
	return a.successesIP, a.err
}

func newEvaluator(audit auditdomain.Service) *Evaluator {
	return NewEvaluator(Params{
		Log:    zap.NewNop(),
		Clock:  clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)),
		Policy: config.DefaultPolicy(),
		Audit:  audit,
	})
}

func TestEvaluateKnownCallerIsLowRisk(t *testing.T) {
	e := newEvaluator(&auditStub{successes: 10, successesIP: 5})

	eval := e.Evaluate(context.Background(), Input{KeyID: "k", IP: "10.0.0.1"})
	assert.Equal(t, 0, eval.Score)
	assert.Equal(t, LevelLow, eval.Level)
	assert.Equal(t, ActionAllow, eval.Action)
	assert.Empty(t, eval.Reasons)
}

func TestEvaluateFailedStreakScoresCapped(t *testing.T) {
	e := newEvaluator(&auditStub{successesIP: 1})

	eval := e.Evaluate(context.Background(), Input{KeyID: "k", IP: "10.0.0.1", FailedStreak: 3})
	assert.Equal(t, 30, eval.Score)
	assert.Contains(t, eval.Reasons, ReasonFailedAuthStreak)

	eval = e.Evaluate(context.Background(), Input{KeyID: "k", IP: "10.0.0.1", FailedStreak: 9})
	assert.Equal(t, 40, eval.Score)
}

func TestEvaluateNewIPAndSensitiveScopeThrottle(t *testing.T) {
	e := newEvaluator(&auditStub{successesIP: 0})

	eval := e.Evaluate(context.Background(), Input{
		KeyID:          "k",
		IP:             "198.51.100.7",
		RequiredScopes: []string{"payments:write"},
	})
	assert.Equal(t, 40, eval.Score)
	assert.ElementsMatch(t, []string{ReasonNewIP, ReasonSensitiveScope}, eval.Reasons)
	assert.Equal(t, LevelMedium, eval.Level)
	assert.Equal(t, ActionThrottle, eval.Action)
}

func TestEvaluateAllRulesStillRunPastBlockThreshold(t *testing.T) {
	e := newEvaluator(&auditStub{successes: 500, successesIP: 0})

	eval := e.Evaluate(context.Background(), Input{
		KeyID:          "k",
		IP:             "198.51.100.7",
		FailedStreak:   5,
		RequiredScopes: []string{"keys:admin"},
	})
	// 40 streak + 20 new ip + 30 burst + 20 sensitive scope.
	assert.Equal(t, 110, eval.Score)
	assert.Len(t, eval.Reasons, 4)
	assert.Equal(t, LevelHigh, eval.Level)
	assert.Equal(t, ActionBlock, eval.Action)
}

func TestEvaluateHistoryErrorsFailOpen(t *testing.T) {
	e := newEvaluator(&auditStub{err: errors.New("db down")})

	eval := e.Evaluate(context.Background(), Input{KeyID: "k", IP: "10.0.0.1"})
	assert.Equal(t, 0, eval.Score)
	assert.Equal(t, ActionAllow, eval.Action)
}

func TestHasSensitiveScope(t *testing.T) {
	assert.True(t, hasSensitiveScope([]string{"payments:write"}))
	assert.True(t, hasSensitiveScope([]string{"billing:admin"}))
	assert.True(t, hasSensitiveScope([]string{"keys:read"}))
	assert.False(t, hasSensitiveScope([]string{"payments:read"}))
	assert.False(t, hasSensitiveScope(nil))
}
