package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeScopes(t *testing.T) {
	got := NormalizeScopes([]string{" Payments:Read ", "payments:read", "", "keys:admin"})
	assert.Equal(t, []string{"keys:admin", "payments:read"}, got)
}

func TestScopeMatches(t *testing.T) {
	cases := []struct {
		granted  string
		required string
		want     bool
	}{
		{"payments:read", "payments:read", true},
		{"payments:read", "payments:write", false},
		{"payments:*", "payments:write", true},
		{"payments", "payments:write", true},
		{"*", "payments:read", true},
		{"*:read", "payments:read", true},
		{"*:read", "payments:write", false},
		{"invoices:read", "payments:read", false},
		{"payments:read", "", true},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, ScopeMatches(tc.granted, tc.required),
			"granted=%q required=%q", tc.granted, tc.required)
	}
}

func TestHasAllScopes(t *testing.T) {
	granted := []string{"payments:read", "invoices:*"}

	assert.True(t, HasAllScopes(granted, []string{"payments:read", "invoices:write"}))
	assert.False(t, HasAllScopes(granted, []string{"payments:read", "customers:read"}))
	assert.True(t, HasAllScopes(granted, nil))
}

func TestValidScope(t *testing.T) {
	assert.True(t, ValidScope("payments:read"))
	assert.True(t, ValidScope("keys:*"))
	assert.False(t, ValidScope("Payments:Read"))
	assert.False(t, ValidScope("payments read"))
	assert.False(t, ValidScope(""))
}
