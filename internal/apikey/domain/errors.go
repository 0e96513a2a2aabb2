package domain

import (
	"errors"
	"net/http"
	"time"
)

var (
	ErrMalformedToken     = errors.New("malformed_token")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidName        = errors.New("invalid_name")
	ErrInvalidScope       = errors.New("invalid_scope")
	ErrInvalidEnvironment = errors.New("invalid_environment")
	ErrUnverifiedContact  = errors.New("unverified_contact")
	ErrNonceReplayed      = errors.New("nonce_replayed")
	ErrInvalidPageToken   = errors.New("invalid_page_token")
)

type AuthErrorKind string

const (
	KindCredential AuthErrorKind = "credential"
	KindLifecycle  AuthErrorKind = "lifecycle"
	KindPolicy     AuthErrorKind = "policy"
	KindSignature  AuthErrorKind = "signature"
)

// AuthError is the tagged rejection type returned by the authentication
// engine. The dispatch layer renders HTTPStatus and Code; the engine never
// writes HTTP itself.
type AuthError struct {
	Kind       AuthErrorKind
	HTTPStatus int
	Code       string
	Message    string
	RetryAfter time.Duration
	Details    map[string]any
}

func (e *AuthError) Error() string { return e.Code }

const (
	CodeQueryNotAllowed    = "API_KEY_QUERY_NOT_ALLOWED"
	CodeMissing            = "API_KEY_MISSING"
	CodeInvalid            = "API_KEY_INVALID"
	CodeExpired            = "API_KEY_EXPIRED"
	CodeRotated            = "API_KEY_ROTATED"
	CodeRevoked            = "API_KEY_REVOKED"
	CodeBlocked            = "API_KEY_BLOCKED"
	CodeScopeForbidden     = "API_KEY_SCOPE_FORBIDDEN"
	CodeRiskBlocked        = "API_KEY_RISK_BLOCKED"
	CodeRateLimited        = "API_KEY_RATE_LIMITED"
	CodeIPRateLimited      = "API_KEY_IP_RATE_LIMITED"
	CodeConcurrencyLimited = "API_KEY_CONCURRENCY_LIMITED"
	CodeSignatureRequired  = "API_KEY_SIGNATURE_REQUIRED"
	CodeSignatureInvalid   = "API_KEY_SIGNATURE_INVALID"
	CodeSignatureExpired   = "API_KEY_SIGNATURE_EXPIRED"
	CodeSignatureReplay    = "API_KEY_SIGNATURE_REPLAY"
)

func ErrQueryNotAllowed() *AuthError {
	return &AuthError{Kind: KindCredential, HTTPStatus: http.StatusBadRequest, Code: CodeQueryNotAllowed,
		Message: "api keys must not be supplied via query string"}
}

func ErrMissing() *AuthError {
	return &AuthError{Kind: KindCredential, HTTPStatus: http.StatusUnauthorized, Code: CodeMissing,
		Message: "api key is required"}
}

// ErrInvalid covers malformed tokens, unknown keys, wrong secrets and wrong
// environments alike, so a caller cannot probe which check failed.
func ErrInvalid() *AuthError {
	return &AuthError{Kind: KindCredential, HTTPStatus: http.StatusUnauthorized, Code: CodeInvalid,
		Message: "api key is invalid"}
}

func ErrExpired() *AuthError {
	return &AuthError{Kind: KindLifecycle, HTTPStatus: http.StatusUnauthorized, Code: CodeExpired,
		Message: "api key has expired"}
}

func ErrRotated() *AuthError {
	return &AuthError{Kind: KindLifecycle, HTTPStatus: http.StatusUnauthorized, Code: CodeRotated,
		Message: "api key was rotated and its grace window has lapsed"}
}

func ErrRevoked() *AuthError {
	return &AuthError{Kind: KindLifecycle, HTTPStatus: http.StatusUnauthorized, Code: CodeRevoked,
		Message: "api key has been revoked"}
}

func ErrBlocked(until *time.Time) *AuthError {
	e := &AuthError{Kind: KindLifecycle, HTTPStatus: http.StatusForbidden, Code: CodeBlocked,
		Message: "api key is temporarily blocked"}
	if until != nil {
		e.Details = map[string]any{"blocked_until": until.UTC()}
	}
	return e
}

func ErrScopeForbidden(missing []string) *AuthError {
	return &AuthError{Kind: KindPolicy, HTTPStatus: http.StatusForbidden, Code: CodeScopeForbidden,
		Message: "api key does not grant the required scopes",
		Details: map[string]any{"missing_scopes": missing}}
}

func ErrRiskBlocked(reasons []string) *AuthError {
	return &AuthError{Kind: KindPolicy, HTTPStatus: http.StatusForbidden, Code: CodeRiskBlocked,
		Message: "api key blocked by risk policy",
		Details: map[string]any{"reasons": reasons}}
}

func ErrRateLimited(retryAfter time.Duration) *AuthError {
	return &AuthError{Kind: KindPolicy, HTTPStatus: http.StatusTooManyRequests, Code: CodeRateLimited,
		Message: "rate limit exceeded", RetryAfter: retryAfter}
}

func ErrIPRateLimited(retryAfter time.Duration) *AuthError {
	return &AuthError{Kind: KindPolicy, HTTPStatus: http.StatusTooManyRequests, Code: CodeIPRateLimited,
		Message: "per-ip rate limit exceeded", RetryAfter: retryAfter}
}

func ErrConcurrencyLimited() *AuthError {
	return &AuthError{Kind: KindPolicy, HTTPStatus: http.StatusTooManyRequests, Code: CodeConcurrencyLimited,
		Message: "too many concurrent requests for this api key", RetryAfter: time.Second}
}

func ErrSignatureRequired() *AuthError {
	return &AuthError{Kind: KindSignature, HTTPStatus: http.StatusUnauthorized, Code: CodeSignatureRequired,
		Message: "request signature headers are required"}
}

func ErrSignatureInvalid() *AuthError {
	return &AuthError{Kind: KindSignature, HTTPStatus: http.StatusUnauthorized, Code: CodeSignatureInvalid,
		Message: "request signature is invalid"}
}

func ErrSignatureExpired() *AuthError {
	return &AuthError{Kind: KindSignature, HTTPStatus: http.StatusUnauthorized, Code: CodeSignatureExpired,
		Message: "request signature timestamp is outside the accepted window"}
}

func ErrSignatureReplay() *AuthError {
	return &AuthError{Kind: KindSignature, HTTPStatus: http.StatusUnauthorized, Code: CodeSignatureReplay,
		Message: "request nonce was already used"}
}

// AsAuthError unwraps err into an *AuthError when possible.
func AsAuthError(err error) (*AuthError, bool) {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}
