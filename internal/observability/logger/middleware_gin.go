package logger

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/smallbiznis/schoolfee/internal/auditcontext"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const HeaderRequestID = "X-Request-Id"

// MiddlewareConfig controls request logging behavior.
type MiddlewareConfig struct {
	// Debug attaches the raw handler error to the access line.
	Debug bool
	// ErrorClassifier maps a handler error to (error_type, error_code).
	ErrorClassifier func(err error) (string, string)
	// QuietRoutes are logged at debug; health checks and scrapes by default.
	QuietRoutes []string
}

var defaultQuietRoutes = []string{"/health", "/metrics"}

// GinMiddleware tags the request with an id and the caller's network
// details for audit rows, then writes one access line when the handler
// chain returns.
func GinMiddleware(cfg MiddlewareConfig) gin.HandlerFunc {
	quiet := cfg.QuietRoutes
	if quiet == nil {
		quiet = defaultQuietRoutes
	}
	return func(c *gin.Context) {
		began := time.Now()
		requestID := strings.TrimSpace(c.GetHeader(HeaderRequestID))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set("request_id", requestID)
		c.Header(HeaderRequestID, requestID)

		ctx := auditcontext.WithRequestID(c.Request.Context(), requestID)
		ctx = auditcontext.WithIPAddress(ctx, c.ClientIP())
		ctx = auditcontext.WithUserAgent(ctx, c.Request.UserAgent())
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(began)),
			zap.Int("bytes_out", max(c.Writer.Size(), 0)),
		}
		if last := c.Errors.Last(); last != nil {
			fields = append(fields, errorFields(cfg, last.Err)...)
		}

		// Later middleware replaces c.Request, so the school and actor they
		// attach are visible here.
		log := FromContext(c.Request.Context())
		if ce := log.Check(accessLevel(route, status, quiet), "http request"); ce != nil {
			ce.Write(fields...)
		}
	}
}

func errorFields(cfg MiddlewareConfig, err error) []zap.Field {
	var errType, errCode string
	if cfg.ErrorClassifier != nil {
		errType, errCode = cfg.ErrorClassifier(err)
	}
	fields := []zap.Field{zap.String("error_type", errType), zap.String("error_code", errCode)}
	if cfg.Debug {
		fields = append(fields, zap.Error(err))
	}
	return fields
}

func accessLevel(route string, status int, quiet []string) zapcore.Level {
	if status >= http.StatusInternalServerError {
		return zapcore.ErrorLevel
	}
	for _, r := range quiet {
		if r == route {
			return zapcore.DebugLevel
		}
	}
	if status == http.StatusTooManyRequests {
		return zapcore.WarnLevel
	}
	return zapcore.InfoLevel
}
