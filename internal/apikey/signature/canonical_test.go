package signature

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalPayloadShape(t *testing.T) {
	payload := CanonicalPayload("post", "/v1/payments", nil, 1764590400, "nonce-000000000001")
	lines := strings.Split(payload, "\n")

	assert.Len(t, lines, 5)
	assert.Equal(t, "POST", lines[0])
	assert.Equal(t, "/v1/payments", lines[1])
	assert.Equal(t, BodyHash(nil), lines[2])
	assert.Equal(t, "1764590400", lines[3])
	assert.Equal(t, "nonce-000000000001", lines[4])
}

func TestBodyHashIgnoresJSONKeyOrder(t *testing.T) {
	a := BodyHash([]byte(`{"amount":100,"customer":{"id":"c1","name":"Ada"}}`))
	b := BodyHash([]byte(`{"customer":{"name":"Ada","id":"c1"},"amount":100}`))
	assert.Equal(t, a, b)
}

func TestBodyHashDistinguishesValues(t *testing.T) {
	a := BodyHash([]byte(`{"amount":100}`))
	b := BodyHash([]byte(`{"amount":101}`))
	assert.NotEqual(t, a, b)
}

func TestBodyHashPreservesArrayOrder(t *testing.T) {
	a := BodyHash([]byte(`[1,2,3]`))
	b := BodyHash([]byte(`[3,2,1]`))
	assert.NotEqual(t, a, b)
}

func TestBodyHashNonJSONHashedRaw(t *testing.T) {
	a := BodyHash([]byte("plain text body"))
	b := BodyHash([]byte("plain text body"))
	c := BodyHash([]byte("different body"))
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}
