package metrics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("school_id", "123"),
		attribute.String("student_id", "456"),
		attribute.String("payment_method", "cash"),
	)
	require.Len(t, attrs, 2)
	keys := []attribute.Key{attrs[0].Key, attrs[1].Key}
	assert.Contains(t, keys, attribute.Key("school_id"))
	assert.Contains(t, keys, attribute.Key("payment_method"))
}

func TestRecordPaymentCountsByMethod(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	m, err := New(Config{ServiceName: "schoolfee"}, provider)
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordPayment(ctx, "cash")
	m.RecordPayment(ctx, "cash")
	m.RecordPayment(ctx, "card")

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			if md.Name != "schoolfee_payments_recorded_total" {
				continue
			}
			sum, ok := md.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
		}
	}
	assert.Equal(t, int64(3), total)
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.RecordPayment(context.Background(), "cash")
	m.RecordCatalogMiss(context.Background(), "tuition", true)
	NewNoop().RecordInvoiceGenerated(context.Background(), "full")
}
