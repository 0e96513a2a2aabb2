package server

import (
	"bytes"
	"context"
	"io"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/egplabs/gateway/internal/auth"
)

const (
	HeaderAPIKey    = "X-Api-Key"
	HeaderTimestamp = "X-Api-Key-Timestamp"
	HeaderNonce     = "X-Api-Key-Nonce"
	HeaderSignature = "X-Api-Key-Signature"
)

type principalContextKey struct{}

// PrincipalFromContext returns the authenticated principal, if any.
func PrincipalFromContext(ctx context.Context) (auth.Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(auth.Principal)
	return p, ok
}

// APIKeyAuth authenticates the request via the admission engine and holds
// the concurrency slot for the lifetime of the handler chain. The release
// handle is invoked on every exit path, including panics unwound by the
// recovery middleware.
func (s *Server) APIKeyAuth(requiredScopes []string, requireSignature bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body []byte
		if requireSignature && c.Request.Body != nil {
			raw, err := io.ReadAll(c.Request.Body)
			if err != nil {
				AbortWithError(c, ErrInvalidRequest)
				return
			}
			body = raw
			c.Request.Body = io.NopCloser(bytes.NewReader(raw))
		}

		req := auth.Request{
			Method:        c.Request.Method,
			Path:          c.Request.URL.Path,
			Query:         c.Request.URL.Query(),
			Body:          body,
			IP:            c.ClientIP(),
			UserAgent:     c.Request.UserAgent(),
			Authorization: strings.TrimSpace(c.GetHeader("Authorization")),
			APIKeyHeader:  strings.TrimSpace(c.GetHeader(HeaderAPIKey)),
			Timestamp:     c.GetHeader(HeaderTimestamp),
			Nonce:         c.GetHeader(HeaderNonce),
			Signature:     c.GetHeader(HeaderSignature),
		}

		result, err := s.authn.Authenticate(c.Request.Context(), req, requiredScopes, requireSignature)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		defer result.Release()

		ctx := context.WithValue(c.Request.Context(), principalContextKey{}, result.Principal)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
