package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTokenRoundTrip(t *testing.T) {
	secret, err := GenerateSecret()
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(secret), 24)

	raw := EncodeToken(EnvironmentLive, "key_1234567890ab", secret)
	token, err := ParseToken(raw)
	require.NoError(t, err)

	assert.Equal(t, EnvironmentLive, token.Environment)
	assert.Equal(t, "key_1234567890ab", token.KeyID)
	assert.Equal(t, secret, token.Secret)
}

func TestParseTokenRejectsMalformedInput(t *testing.T) {
	longID := strings.Repeat("a", 129)
	longSecret := strings.Repeat("b", 257)

	cases := map[string]string{
		"empty":             "",
		"wrong prefix":      "sk_live_abcdefghijkl.abcdefghijklmnopqrstuvwx",
		"bad environment":   "egp_prod_abcdefghijkl.abcdefghijklmnopqrstuvwx",
		"key id too short":  "egp_live_short.abcdefghijklmnopqrstuvwx",
		"key id too long":   "egp_live_" + longID + ".abcdefghijklmnopqrstuvwx",
		"secret too short":  "egp_live_abcdefghijkl.tooshort",
		"secret too long":   "egp_live_abcdefghijkl." + longSecret,
		"missing separator": "egp_live_abcdefghijklabcdefghijklmnopqrstuvwx",
		"illegal charset":   "egp_live_abcdefghijk!.abcdefghijklmnopqrstuvwx",
		"trailing garbage":  "egp_live_abcdefghijkl.abcdefghijklmnopqrstuvwx extra",
	}

	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseToken(raw)
			assert.ErrorIs(t, err, ErrMalformedToken)
		})
	}
}

func TestGenerateSecretIsUnique(t *testing.T) {
	a, err := GenerateSecret()
	require.NoError(t, err)
	b, err := GenerateSecret()
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestVerifySecret(t *testing.T) {
	secret, err := GenerateSecret()
	require.NoError(t, err)

	hash := HashSecret(secret)
	assert.True(t, VerifySecret(hash, secret))
	assert.False(t, VerifySecret(hash, secret+"x"))
	assert.Equal(t, secret[len(secret)-4:], SecretHint(secret))
}
