package tracing

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/schoolfee/internal/auditcontext"
	"github.com/smallbiznis/schoolfee/internal/schoolcontext"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/baggage"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "schoolfee/http"

// GinMiddleware opens a server span per request. The span is renamed to the
// matched route and tagged with the school and acting staff member once the
// handler chain has resolved them.
func GinMiddleware() gin.HandlerFunc {
	tracer := otel.Tracer(tracerName)
	return func(c *gin.Context) {
		method := strings.ToUpper(c.Request.Method)
		ctx := ExtractContext(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		ctx, span := tracer.Start(ctx, "HTTP "+method, trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()

		ctx, correlationID := EnsureCorrelationID(ctx)
		ctx = withRequestBaggage(ctx, auditcontext.RequestIDFromContext(ctx), correlationID)
		c.Request = c.Request.WithContext(ctx)

		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		status := c.Writer.Status()
		span.SetName("HTTP " + method + " " + route)
		span.SetAttributes(SafeAttributes(requestAttributes(c, route, status, time.Since(start))...)...)

		if status >= http.StatusInternalServerError {
			if last := c.Errors.Last(); last != nil {
				if safeErr := SafeError(last.Err); safeErr != nil {
					span.RecordError(safeErr)
				}
			}
			span.SetStatus(codes.Error, http.StatusText(status))
		}
	}
}

func withRequestBaggage(ctx context.Context, requestID, correlationID string) context.Context {
	var members []baggage.Member
	if requestID != "" {
		if m, err := baggage.NewMember("request_id", requestID); err == nil {
			members = append(members, m)
		}
	}
	if correlationID != "" {
		if m, err := baggage.NewMember("correlation_id", correlationID); err == nil {
			members = append(members, m)
		}
	}
	if len(members) == 0 {
		return ctx
	}
	bag, err := baggage.New(members...)
	if err != nil {
		return ctx
	}
	return baggage.ContextWithBaggage(ctx, bag)
}

func requestAttributes(c *gin.Context, route string, status int, elapsed time.Duration) []attribute.KeyValue {
	ctx := c.Request.Context()
	attrs := []attribute.KeyValue{
		attribute.String("http.method", c.Request.Method),
		attribute.String("http.route", route),
		attribute.Int("http.status_code", status),
		attribute.Int64("http.server_duration_ms", elapsed.Milliseconds()),
	}
	if requestID := auditcontext.RequestIDFromContext(ctx); requestID != "" {
		attrs = append(attrs, attribute.String("request_id", requestID))
	}
	if schoolID, ok := schoolcontext.SchoolIDFromContext(ctx); ok {
		attrs = append(attrs, attribute.String("school.id", schoolID.String()))
	}
	if actorType, actorID := auditcontext.ActorFromContext(ctx); actorID != "" {
		attrs = append(attrs, attribute.String("enduser.id", actorType+":"+actorID))
	}
	return attrs
}
