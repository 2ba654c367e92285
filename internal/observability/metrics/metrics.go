package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const exportInterval = 10 * time.Second

// Config configures the OTLP meter provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

func (c Config) serviceName() string {
	if name := strings.TrimSpace(c.ServiceName); name != "" {
		return name
	}
	return "schoolfee"
}

// Metrics holds the fee-domain counters pushed over OTLP. HTTP and scheduler
// metrics are scraped from /metrics instead.
type Metrics struct {
	payments       metric.Int64Counter
	invoices       metric.Int64Counter
	recalculations metric.Int64Counter
	catalogMisses  metric.Int64Counter
	notifyFailures metric.Int64Counter
}

// NewProvider registers a meter provider globally. With metrics disabled it
// is a no-op provider and nothing leaves the process.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}
	res := resource.NewSchemaless(
		attribute.String("service.name", cfg.serviceName()),
		attribute.String("deployment.environment", cfg.Environment),
	)
	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(exportInterval))),
	)
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{OnStop: provider.Shutdown})
	}
	if log != nil {
		log.Info("otlp metrics enabled",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
			zap.Duration("interval", exportInterval),
		)
	}
	return provider, nil
}

// New creates the fee-domain instruments on provider.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	meter := provider.Meter(cfg.serviceName())
	m := &Metrics{}
	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&m.payments, "schoolfee_payments_recorded_total", "Guardian payments recorded."},
		{&m.invoices, "schoolfee_invoices_generated_total", "Guardian invoices generated or regenerated."},
		{&m.recalculations, "schoolfee_invoice_recalculations_total", "Invoice recalculations."},
		{&m.catalogMisses, "schoolfee_catalog_misses_total", "Fee lookups with no active catalog entry."},
		{&m.notifyFailures, "schoolfee_notification_failures_total", "Guardian notifications that failed to send."},
	}
	for _, c := range counters {
		counter, err := meter.Int64Counter(c.name, metric.WithDescription(c.desc))
		if err != nil {
			return nil, fmt.Errorf("counter %s: %w", c.name, err)
		}
		*c.dst = counter
	}
	return m, nil
}

// NewNoop is for tests and tools that do not export metrics.
func NewNoop() *Metrics {
	m, _ := New(Config{}, noop.NewMeterProvider())
	return m
}

func (m *Metrics) RecordPayment(ctx context.Context, method string) {
	if m != nil {
		add(ctx, m.payments, attribute.String("payment_method", method))
	}
}

func (m *Metrics) RecordInvoiceGenerated(ctx context.Context, plan string) {
	if m != nil {
		add(ctx, m.invoices, attribute.String("payment_plan", plan))
	}
}

// RecordRecalculation splits recalculations by resulting status and by
// whether the totals moved.
func (m *Metrics) RecordRecalculation(ctx context.Context, status string, changed bool) {
	if m != nil {
		add(ctx, m.recalculations, attribute.String("status", status), attribute.Bool("changed", changed))
	}
}

// RecordCatalogMiss counts lookups by catalog kind. Required misses block
// computation; optional ones only drop an extra.
func (m *Metrics) RecordCatalogMiss(ctx context.Context, kind string, required bool) {
	if m != nil {
		add(ctx, m.catalogMisses, attribute.String("kind", kind), attribute.Bool("required", required))
	}
}

func (m *Metrics) RecordNotificationFailure(ctx context.Context, event string) {
	if m != nil {
		add(ctx, m.notifyFailures, attribute.String("event_type", event))
	}
}

func add(ctx context.Context, counter metric.Int64Counter, attrs ...attribute.KeyValue) {
	for i, attr := range attrs {
		if attr.Value.Type() == attribute.STRING {
			attrs[i] = attribute.String(string(attr.Key), strings.TrimSpace(attr.Value.AsString()))
		}
	}
	counter.Add(ctx, 1, metric.WithAttributes(FilterAttributes(attrs...)...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	ctx := context.Background()
	switch p := strings.ToLower(strings.TrimSpace(protocol)); p {
	case "http", "http/protobuf":
		var opts []otlpmetrichttp.Option
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(ctx, opts...)
	case "", "grpc", "grpc/protobuf":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(ctx, opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", p)
	}
}

// allowedLabelKeys bounds metric cardinality. Student, guardian and invoice
// ids never become labels.
var allowedLabelKeys = map[attribute.Key]bool{
	"school_id":      true,
	"endpoint":       true,
	"status_code":    true,
	"status":         true,
	"changed":        true,
	"kind":           true,
	"required":       true,
	"payment_method": true,
	"payment_plan":   true,
	"event_type":     true,
}

// FilterAttributes drops any label not in the allow list.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	kept := attrs[:0:0]
	for _, attr := range attrs {
		if allowedLabelKeys[attr.Key] {
			kept = append(kept, attr)
		}
	}
	return kept
}
