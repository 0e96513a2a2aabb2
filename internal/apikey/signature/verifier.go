package signature

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/egplabs/gateway/internal/apikey/domain"
	"github.com/egplabs/gateway/internal/clock"
	"github.com/egplabs/gateway/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/crypto/hkdf"
	"gorm.io/gorm"
)

const (
	signingInfo      = "api-key-signing"
	signingKeyLength = 32
	signaturePrefix  = "sha256="
	sweepProbability = 0.02
)

// Input carries the raw header values and request shape for one signed call.
type Input struct {
	Method    string
	Path      string
	Body      []byte
	Timestamp string
	Nonce     string
	Signature string
}

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	GenID  *snowflake.Node
	Clock  clock.Clock
	Policy config.Policy
	Nonces domain.NonceRepository
}

// Verifier validates per-request HMAC signatures with timestamp-window and
// nonce replay protection.
type Verifier struct {
	db     *gorm.DB
	log    *zap.Logger
	genID  *snowflake.Node
	clock  clock.Clock
	policy config.Policy
	nonces domain.NonceRepository
}

func NewVerifier(p Params) *Verifier {
	return &Verifier{
		db:     p.DB,
		log:    p.Log.Named("apikey.signature"),
		genID:  p.GenID,
		clock:  p.Clock,
		policy: p.Policy,
		nonces: p.Nonces,
	}
}

// Verify runs the full check sequence. Each failure mode maps to its own
// rejection code; a nil return means the signature was accepted and the
// nonce consumed.
func (v *Verifier) Verify(ctx context.Context, keyID, secret string, in Input) *domain.AuthError {
	timestamp := strings.TrimSpace(in.Timestamp)
	nonce := strings.TrimSpace(in.Nonce)
	sig := strings.TrimSpace(in.Signature)

	if timestamp == "" || nonce == "" || sig == "" {
		return domain.ErrSignatureRequired()
	}

	if len(nonce) < v.policy.NonceMinLength || len(nonce) > v.policy.NonceMaxLength {
		return domain.ErrSignatureInvalid()
	}
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil || ts <= 0 {
		return domain.ErrSignatureInvalid()
	}

	now := v.clock.Now()
	ttl := v.policy.SignatureTTL()
	drift := now.Unix() - ts
	if drift < 0 {
		drift = -drift
	}
	if time.Duration(drift)*time.Second > ttl {
		return domain.ErrSignatureExpired()
	}

	sig = strings.TrimPrefix(sig, signaturePrefix)
	presented, err := hex.DecodeString(sig)
	if err != nil || len(presented) != sha256.Size {
		return domain.ErrSignatureInvalid()
	}

	payload := CanonicalPayload(in.Method, in.Path, in.Body, ts, nonce)
	expected, err := v.sign(secret, payload)
	if err != nil {
		v.log.Warn("signing key derivation failed", zap.Error(err))
		return domain.ErrSignatureInvalid()
	}
	if !hmac.Equal(expected, presented) {
		return domain.ErrSignatureInvalid()
	}

	row := &domain.RequestNonce{
		ID:        v.genID.Generate(),
		KeyID:     keyID,
		Nonce:     nonce,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
	if err := v.nonces.Insert(ctx, v.db, row); err != nil {
		if errors.Is(err, domain.ErrNonceReplayed) {
			return domain.ErrSignatureReplay()
		}
		v.log.Warn("nonce insert failed", zap.String("key_id", keyID), zap.Error(err))
		return domain.ErrSignatureInvalid()
	}

	// Amortized cleanup instead of a dedicated sweep job.
	if rand.Float64() < sweepProbability {
		if err := v.nonces.DeleteExpired(ctx, v.db, keyID, now); err != nil {
			v.log.Warn("nonce sweep failed", zap.String("key_id", keyID), zap.Error(err))
		}
	}

	return nil
}

func (v *Verifier) sign(secret, payload string) ([]byte, error) {
	reader := hkdf.New(sha256.New, []byte(secret), nil, []byte(signingInfo))
	key := make([]byte, signingKeyLength)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, err
	}
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(payload))
	return mac.Sum(nil), nil
}

// Sign produces the signature a client would send.
func Sign(secret, method, path string, body []byte, timestamp int64, nonce string) (string, error) {
	reader := hkdf.New(sha256.New, []byte(secret), nil, []byte(signingInfo))
	key := make([]byte, signingKeyLength)
	if _, err := io.ReadFull(reader, key); err != nil {
		return "", err
	}
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(CanonicalPayload(method, path, body, timestamp, nonce)))
	return hex.EncodeToString(mac.Sum(nil)), nil
}
