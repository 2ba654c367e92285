package tracing

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/schoolfee/internal/auditcontext"
	"github.com/smallbiznis/schoolfee/internal/schoolcontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestSafeAttributesDropsGuardianData(t *testing.T) {
	attrs := SafeAttributes(
		attribute.String("http.route", "/api/invoices/:id"),
		attribute.String("guardian_email", "parent@example.com"),
		attribute.Int64("student_id", 7),
	)
	require.Len(t, attrs, 1)
	assert.Equal(t, attribute.Key("http.route"), attrs[0].Key)
}

func TestSafeErrorTruncates(t *testing.T) {
	assert.Nil(t, SafeError(nil))
	long := errors.New(strings.Repeat("x", maxErrorLength+50))
	assert.Len(t, SafeError(long).Error(), maxErrorLength)
}

func TestEnsureCorrelationIDIsStable(t *testing.T) {
	ctx, first := EnsureCorrelationID(context.Background())
	require.NotEmpty(t, first)

	_, second := EnsureCorrelationID(ctx)
	assert.Equal(t, first, second)
}

func TestClampRatio(t *testing.T) {
	assert.Equal(t, 0.0, clampRatio(-1))
	assert.Equal(t, 1.0, clampRatio(3))
	assert.Equal(t, 0.25, clampRatio(0.25))
}

func TestGinMiddlewareTagsSchoolAndRoute(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(GinMiddleware())
	r.GET("/api/invoices/:id", func(c *gin.Context) {
		ctx := schoolcontext.WithSchoolID(c.Request.Context(), 100)
		ctx = auditcontext.WithActor(ctx, auditcontext.ActorTypeStaff, "bursar-1")
		c.Request = c.Request.WithContext(ctx)
		c.Status(http.StatusNoContent)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/invoices/42", nil))

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "HTTP GET /api/invoices/:id", spans[0].Name())

	attrs := map[attribute.Key]string{}
	for _, kv := range spans[0].Attributes() {
		attrs[kv.Key] = kv.Value.Emit()
	}
	assert.Equal(t, "100", attrs["school.id"])
	assert.Equal(t, "staff:bursar-1", attrs["enduser.id"])
	assert.Equal(t, "204", attrs["http.status_code"])
}
