// Package telemetry exports data path metrics of a famgraph run over OTLP
package telemetry

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const meterName = "github.com/yuuki/famgraph"

// Metrics contains the instruments of one run. It implements
// famgraph.BatchObserver and rdma.CompletionObserver.
type Metrics struct {
	provider *sdkmetric.MeterProvider
	meter    metric.Meter

	batches     metric.Int64Counter
	segments    metric.Int64Counter
	readBytes   metric.Int64Counter
	spins       metric.Int64Histogram
	completions metric.Int64Counter

	roundDuration metric.Float64Histogram
	roundActive   metric.Int64Histogram
}

// NewMetrics creates metrics exported to collectorAddr. The scheme selects
// the exporter: grpc (the default), grpcs, http or https.
func NewMetrics(ctx context.Context, runID, collectorAddr string) (*Metrics, error) {
	parsedURL, err := url.Parse(collectorAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse otel-collector-addr '%s': %w", collectorAddr, err)
	}

	// Schemeless addresses like "localhost:4317" parse as opaque or path.
	exporterEndpoint := parsedURL.Host
	if parsedURL.Host == "" {
		switch {
		case parsedURL.Opaque != "" && !strings.Contains(parsedURL.Opaque, "/"):
			exporterEndpoint = collectorAddr
			parsedURL.Scheme = ""
		case parsedURL.Path != "" && !strings.Contains(parsedURL.Path, "/"):
			exporterEndpoint = parsedURL.Path
		default:
			return nil, fmt.Errorf("otel-collector-addr '%s' is missing a host (e.g. localhost:4317)", collectorAddr)
		}
	}
	if parsedURL.Scheme == "" {
		parsedURL.Scheme = "grpc"
	}

	var exporter sdkmetric.Exporter
	switch strings.ToLower(parsedURL.Scheme) {
	case "grpc":
		exporter, err = otlpmetricgrpc.New(ctx,
			otlpmetricgrpc.WithEndpoint(exporterEndpoint),
			otlpmetricgrpc.WithInsecure(),
		)
	case "grpcs":
		exporter, err = otlpmetricgrpc.New(ctx, otlpmetricgrpc.WithEndpoint(exporterEndpoint))
	case "http", "https":
		options := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(exporterEndpoint)}
		if parsedURL.Scheme == "http" {
			options = append(options, otlpmetrichttp.WithInsecure())
		}
		exporter, err = otlpmetrichttp.New(ctx, options...)
	default:
		return nil, fmt.Errorf("unsupported OTLP exporter protocol scheme: '%s' in %s. Use 'grpc', 'grpcs', 'http', or 'https'", parsedURL.Scheme, collectorAddr)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter (%s://%s): %w", parsedURL.Scheme, exporterEndpoint, err)
	}

	m, err := NewMetricsWithReader(runID, sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second)))
	if err != nil {
		return nil, err
	}
	otel.SetMeterProvider(m.provider)
	return m, nil
}

// NewMetricsWithReader creates metrics collected by reader
func NewMetricsWithReader(runID string, reader sdkmetric.Reader) (*Metrics, error) {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName("famgraph"),
			semconv.ServiceVersion("0.1.0"),
			semconv.ServiceInstanceID(runID),
		),
	)
	if err != nil {
		return nil, err
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
	)
	meter := provider.Meter(meterName)
	m := &Metrics{provider: provider, meter: meter}

	if m.batches, err = meter.Int64Counter("famgraph.batches",
		metric.WithDescription("Batches fetched by the windowed iterator"),
		metric.WithUnit("{batch}")); err != nil {
		return nil, err
	}
	if m.segments, err = meter.Int64Counter("famgraph.segments",
		metric.WithDescription("RDMA read work requests posted"),
		metric.WithUnit("{request}")); err != nil {
		return nil, err
	}
	if m.readBytes, err = meter.Int64Counter("famgraph.read",
		metric.WithDescription("Adjacency bytes read from remote memory"),
		metric.WithUnit("By")); err != nil {
		return nil, err
	}
	if m.spins, err = meter.Int64Histogram("famgraph.sentinel_spins",
		metric.WithDescription("Sentinel polls before a batch arrived"),
		metric.WithUnit("{poll}")); err != nil {
		return nil, err
	}
	if m.completions, err = meter.Int64Counter("famgraph.completions",
		metric.WithDescription("Work completions drained by the poller"),
		metric.WithUnit("{completion}")); err != nil {
		return nil, err
	}
	if m.roundDuration, err = meter.Float64Histogram("famgraph.round.duration",
		metric.WithDescription("Duration of one algorithm round in milliseconds"),
		metric.WithUnit("ms")); err != nil {
		return nil, err
	}
	if m.roundActive, err = meter.Int64Histogram("famgraph.round.active",
		metric.WithDescription("Vertices active in one algorithm round"),
		metric.WithUnit("{vertex}")); err != nil {
		return nil, err
	}

	return m, nil
}

// ObserveBatch records one completed iterator batch
func (m *Metrics) ObserveBatch(channel, segments int, words, spins uint64) {
	ctx := context.Background()
	attrs := metric.WithAttributes(attribute.Int("channel", channel))
	m.batches.Add(ctx, 1, attrs)
	m.segments.Add(ctx, int64(segments), attrs)
	m.readBytes.Add(ctx, int64(words*4), attrs)
	m.spins.Record(ctx, int64(spins), attrs)
}

// ObserveCompletions records completions drained from one channel
func (m *Metrics) ObserveCompletions(channel int, n int) {
	m.completions.Add(context.Background(), int64(n), metric.WithAttributes(attribute.Int("channel", channel)))
}

// RecordRound records one algorithm round
func (m *Metrics) RecordRound(ctx context.Context, algorithm string, active uint64, took time.Duration) {
	attrs := metric.WithAttributes(attribute.String("algorithm", algorithm))
	m.roundDuration.Record(ctx, float64(took.Nanoseconds())/1_000_000.0, attrs)
	m.roundActive.Record(ctx, int64(active), attrs)
}

// Shutdown flushes and stops the meter provider
func (m *Metrics) Shutdown(ctx context.Context) error {
	return m.provider.Shutdown(ctx)
}
