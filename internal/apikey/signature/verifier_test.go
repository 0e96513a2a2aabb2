package signature

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/egplabs/gateway/internal/apikey/domain"
	"github.com/egplabs/gateway/internal/apikey/repository"
	"github.com/egplabs/gateway/internal/clock"
	"github.com/egplabs/gateway/internal/config"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const testSecret = "abcdefghijklmnopqrstuvwxyz012345"

func setupVerifier(t *testing.T) (*Verifier, *clock.FakeClock) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, db.Exec(`CREATE TABLE request_nonces (
		id INTEGER PRIMARY KEY,
		key_id TEXT NOT NULL,
		nonce TEXT NOT NULL,
		expires_at DATETIME NOT NULL,
		created_at DATETIME,
		UNIQUE (key_id, nonce)
	)`).Error)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	v := NewVerifier(Params{
		DB:     db,
		Log:    zap.NewNop(),
		GenID:  node,
		Clock:  clk,
		Policy: config.DefaultPolicy(),
		Nonces: repository.ProvideNonces(),
	})
	return v, clk
}

func signedInput(t *testing.T, clk *clock.FakeClock, method, path string, body []byte, nonce string) Input {
	t.Helper()

	ts := clk.Now().Unix()
	sig, err := Sign(testSecret, method, path, body, ts, nonce)
	require.NoError(t, err)

	return Input{
		Method:    method,
		Path:      path,
		Body:      body,
		Timestamp: strconv.FormatInt(ts, 10),
		Nonce:     nonce,
		Signature: sig,
	}
}

func TestVerifyAcceptsValidSignature(t *testing.T) {
	v, clk := setupVerifier(t)

	in := signedInput(t, clk, "POST", "/v1/payments", []byte(`{"amount":100,"currency":"usd"}`), "nonce-000000000001")
	assert.Nil(t, v.Verify(context.Background(), "key1", testSecret, in))
}

func TestVerifyAcceptsPrefixedSignature(t *testing.T) {
	v, clk := setupVerifier(t)

	in := signedInput(t, clk, "GET", "/v1/payments", nil, "nonce-000000000002")
	in.Signature = "sha256=" + in.Signature
	assert.Nil(t, v.Verify(context.Background(), "key1", testSecret, in))
}

func TestVerifyBodyKeyOrderDoesNotMatter(t *testing.T) {
	v, clk := setupVerifier(t)

	in := signedInput(t, clk, "POST", "/v1/payments", []byte(`{"amount":100,"currency":"usd"}`), "nonce-000000000003")
	in.Body = []byte(`{"currency":"usd","amount":100}`)
	assert.Nil(t, v.Verify(context.Background(), "key1", testSecret, in))
}

func TestVerifyMissingHeaders(t *testing.T) {
	v, clk := setupVerifier(t)

	in := signedInput(t, clk, "GET", "/v1/payments", nil, "nonce-000000000004")
	in.Nonce = ""
	authErr := v.Verify(context.Background(), "key1", testSecret, in)
	require.NotNil(t, authErr)
	assert.Equal(t, domain.CodeSignatureRequired, authErr.Code)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	v, clk := setupVerifier(t)

	in := signedInput(t, clk, "GET", "/v1/payments", nil, "nonce-000000000005")
	authErr := v.Verify(context.Background(), "key1", "another-secret-entirely-here", in)
	require.NotNil(t, authErr)
	assert.Equal(t, domain.CodeSignatureInvalid, authErr.Code)
}

func TestVerifyRejectsTamperedPayload(t *testing.T) {
	v, clk := setupVerifier(t)

	in := signedInput(t, clk, "POST", "/v1/payments", []byte(`{"amount":100}`), "nonce-000000000006")
	in.Body = []byte(`{"amount":999}`)
	authErr := v.Verify(context.Background(), "key1", testSecret, in)
	require.NotNil(t, authErr)
	assert.Equal(t, domain.CodeSignatureInvalid, authErr.Code)
}

func TestVerifyRejectsStaleTimestamp(t *testing.T) {
	v, clk := setupVerifier(t)

	in := signedInput(t, clk, "GET", "/v1/payments", nil, "nonce-000000000007")
	clk.Advance(6 * time.Minute)
	authErr := v.Verify(context.Background(), "key1", testSecret, in)
	require.NotNil(t, authErr)
	assert.Equal(t, domain.CodeSignatureExpired, authErr.Code)
}

func TestVerifyRejectsNonceOutsideLengthBounds(t *testing.T) {
	v, clk := setupVerifier(t)

	in := signedInput(t, clk, "GET", "/v1/payments", nil, "short")
	authErr := v.Verify(context.Background(), "key1", testSecret, in)
	require.NotNil(t, authErr)
	assert.Equal(t, domain.CodeSignatureInvalid, authErr.Code)

	in = signedInput(t, clk, "GET", "/v1/payments", nil, strings.Repeat("n", 121))
	authErr = v.Verify(context.Background(), "key1", testSecret, in)
	require.NotNil(t, authErr)
	assert.Equal(t, domain.CodeSignatureInvalid, authErr.Code)
}

func TestVerifyRejectsReplayedNonce(t *testing.T) {
	v, clk := setupVerifier(t)
	ctx := context.Background()

	in := signedInput(t, clk, "GET", "/v1/payments", nil, "nonce-000000000008")
	require.Nil(t, v.Verify(ctx, "key1", testSecret, in))

	authErr := v.Verify(ctx, "key1", testSecret, in)
	require.NotNil(t, authErr)
	assert.Equal(t, domain.CodeSignatureReplay, authErr.Code)
}

func TestVerifyNonceScopedPerKey(t *testing.T) {
	v, clk := setupVerifier(t)
	ctx := context.Background()

	in := signedInput(t, clk, "GET", "/v1/payments", nil, "nonce-000000000009")
	require.Nil(t, v.Verify(ctx, "key1", testSecret, in))
	assert.Nil(t, v.Verify(ctx, "key2", testSecret, in))
}
