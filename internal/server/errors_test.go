package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	apikeydomain "github.com/egplabs/gateway/internal/apikey/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(handler gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(ErrorHandlingMiddleware())
	r.GET("/probe", handler)
	return r
}

func doProbe(t *testing.T, r *gin.Engine) (*httptest.ResponseRecorder, errorResponse) {
	t.Helper()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/probe", nil)
	r.ServeHTTP(w, req)

	var body errorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w, body
}

func TestErrorMiddlewareRendersAuthError(t *testing.T) {
	r := newTestEngine(func(c *gin.Context) {
		AbortWithError(c, apikeydomain.ErrScopeForbidden([]string{"keys:admin"}))
	})

	w, body := doProbe(t, r)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "policy", body.Error.Type)
	assert.Equal(t, apikeydomain.CodeScopeForbidden, body.Error.Code)
	assert.NotEmpty(t, body.Error.Message)
}

func TestErrorMiddlewareSetsRetryAfter(t *testing.T) {
	r := newTestEngine(func(c *gin.Context) {
		AbortWithError(c, apikeydomain.ErrRateLimited(1500*time.Millisecond))
	})

	w, body := doProbe(t, r)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, apikeydomain.CodeRateLimited, body.Error.Code)
	assert.Equal(t, "2", w.Header().Get("Retry-After"))
}

func TestErrorMiddlewareMapsDomainSentinels(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"not found", apikeydomain.ErrNotFound, http.StatusNotFound},
		{"invalid scope", apikeydomain.ErrInvalidScope, http.StatusBadRequest},
		{"invalid page token", apikeydomain.ErrInvalidPageToken, http.StatusBadRequest},
		{"unverified contact", apikeydomain.ErrUnverifiedContact, http.StatusForbidden},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := newTestEngine(func(c *gin.Context) {
				AbortWithError(c, tc.err)
			})
			w, _ := doProbe(t, r)
			assert.Equal(t, tc.status, w.Code)
		})
	}
}

func TestErrorMiddlewareHidesUnknownErrors(t *testing.T) {
	r := newTestEngine(func(c *gin.Context) {
		AbortWithError(c, assert.AnError)
	})

	w, body := doProbe(t, r)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "internal_error", body.Error.Type)
	assert.NotContains(t, body.Error.Message, assert.AnError.Error())
}

func TestErrorMiddlewareLeavesWrittenResponsesAlone(t *testing.T) {
	r := newTestEngine(func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/probe", nil)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"ok":true}`, w.Body.String())
}
