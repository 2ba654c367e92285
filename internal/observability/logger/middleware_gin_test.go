package logger

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/schoolfee/internal/auditcontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestGinMiddlewareWritesAccessLine(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zap.DebugLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	defer restore()

	var seenRequestID string
	r := gin.New()
	r.Use(GinMiddleware(MiddlewareConfig{
		ErrorClassifier: func(error) (string, string) { return "conflict", "409" },
	}))
	r.POST("/api/invoices", func(c *gin.Context) {
		seenRequestID = auditcontext.RequestIDFromContext(c.Request.Context())
		_ = c.Error(errors.New("invoice exists"))
		c.Status(http.StatusConflict)
	})

	req := httptest.NewRequest(http.MethodPost, "/api/invoices", nil)
	req.Header.Set(HeaderRequestID, "req-42")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "req-42", w.Header().Get(HeaderRequestID))
	assert.Equal(t, "req-42", seenRequestID)

	entries := logs.FilterMessage("http request").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	fields := entries[0].ContextMap()
	assert.Equal(t, "/api/invoices", fields["route"])
	assert.EqualValues(t, http.StatusConflict, fields["status"])
	assert.Equal(t, "conflict", fields["error_type"])
	assert.Equal(t, "req-42", fields["request_id"])
	assert.NotContains(t, fields, "error")
}

func TestGinMiddlewareGeneratesRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(GinMiddleware(MiddlewareConfig{}))
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Len(t, w.Header().Get(HeaderRequestID), 36)
}

func TestAccessLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, accessLevel("/health", 200, defaultQuietRoutes))
	assert.Equal(t, zapcore.ErrorLevel, accessLevel("/health", 503, defaultQuietRoutes))
	assert.Equal(t, zapcore.WarnLevel, accessLevel("/api/invoices", 429, defaultQuietRoutes))
	assert.Equal(t, zapcore.InfoLevel, accessLevel("/api/invoices", 404, defaultQuietRoutes))
}
