// Package telemetry wires the OpenTelemetry trace, metric and log providers
// of a sync process to an OTLP gRPC collector.
//
// Telemetry is optional. Without a call to [Setup] the global providers stay
// no-ops, which is what the sync engine and the HTTP server fall back to.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/log/global"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
)

const (
	// DefaultServiceName is reported as service.name when Config leaves it empty.
	DefaultServiceName = "fedisync"

	// DefaultMetricInterval is how often sync counters are pushed.
	DefaultMetricInterval = time.Minute
)

// Config is the collector connection. cmd/fedisync fills it from the
// telemetry block of the YAML config.
type Config struct {
	// OTLPEndpoint is the collector's gRPC host:port, e.g. "localhost:4317".
	OTLPEndpoint string

	// Insecure dials the collector without TLS.
	Insecure bool

	// Headers are attached as gRPC metadata to every export, typically an
	// Authorization token.
	Headers map[string]string

	ServiceName    string
	ServiceVersion string

	// MetricInterval overrides [DefaultMetricInterval].
	MetricInterval time.Duration
}

// ShutdownFunc flushes pending spans, metrics and log records and closes the
// collector connection. Pass a context that is not already cancelled.
type ShutdownFunc func(context.Context) error

// Setup installs global trace, metric and log providers exporting to
// cfg.OTLPEndpoint over one shared gRPC connection.
//
// The returned ShutdownFunc is never nil. When Setup fails, everything it
// created so far is already released and the func does nothing.
func Setup(ctx context.Context, cfg Config) (ShutdownFunc, error) {
	if cfg.OTLPEndpoint == "" {
		return noopShutdown, errors.New("OTLP endpoint is required")
	}

	res, err := newResource(cfg)
	if err != nil {
		return noopShutdown, err
	}

	conn, err := dial(cfg)
	if err != nil {
		return noopShutdown, err
	}

	// closers run in reverse on shutdown or on a failed Setup.
	closers := []func(context.Context) error{
		func(context.Context) error { return conn.Close() },
	}
	release := func(ctx context.Context) error {
		var errs []error
		for i := len(closers) - 1; i >= 0; i-- {
			errs = append(errs, closers[i](ctx))
		}
		return errors.Join(errs...)
	}

	tp, err := tracerProvider(ctx, conn, cfg, res)
	if err != nil {
		_ = release(ctx)
		return noopShutdown, err
	}
	closers = append(closers, tp.Shutdown)

	mp, err := meterProvider(ctx, conn, cfg, res)
	if err != nil {
		_ = release(ctx)
		return noopShutdown, err
	}
	closers = append(closers, mp.Shutdown)

	lp, err := loggerProvider(ctx, conn, cfg, res)
	if err != nil {
		_ = release(ctx)
		return noopShutdown, err
	}
	closers = append(closers, lp.Shutdown)

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	global.SetLoggerProvider(lp)

	return release, nil
}

func dial(cfg Config) (*grpc.ClientConn, error) {
	creds := credentials.NewTLS(nil)
	if cfg.Insecure {
		creds = insecure.NewCredentials()
	}
	conn, err := grpc.NewClient(cfg.OTLPEndpoint, grpc.WithTransportCredentials(creds))
	if err != nil {
		return nil, fmt.Errorf("dialling OTLP collector at %q: %w", cfg.OTLPEndpoint, err)
	}
	return conn, nil
}

func tracerProvider(ctx context.Context, conn *grpc.ClientConn, cfg Config, res *resource.Resource) (*sdktrace.TracerProvider, error) {
	exp, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn), otlptracegrpc.WithHeaders(cfg.Headers))
	if err != nil {
		return nil, fmt.Errorf("creating OTLP trace exporter: %w", err)
	}
	return sdktrace.NewTracerProvider(sdktrace.WithBatcher(exp), sdktrace.WithResource(res)), nil
}

func meterProvider(ctx context.Context, conn *grpc.ClientConn, cfg Config, res *resource.Resource) (*sdkmetric.MeterProvider, error) {
	exp, err := otlpmetricgrpc.New(ctx, otlpmetricgrpc.WithGRPCConn(conn), otlpmetricgrpc.WithHeaders(cfg.Headers))
	if err != nil {
		return nil, fmt.Errorf("creating OTLP metric exporter: %w", err)
	}
	reader := sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(metricInterval(cfg)))
	return sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader), sdkmetric.WithResource(res)), nil
}

func loggerProvider(ctx context.Context, conn *grpc.ClientConn, cfg Config, res *resource.Resource) (*sdklog.LoggerProvider, error) {
	exp, err := otlploggrpc.New(ctx, otlploggrpc.WithGRPCConn(conn), otlploggrpc.WithHeaders(cfg.Headers))
	if err != nil {
		return nil, fmt.Errorf("creating OTLP log exporter: %w", err)
	}
	return sdklog.NewLoggerProvider(sdklog.WithProcessor(sdklog.NewBatchProcessor(exp)), sdklog.WithResource(res)), nil
}

func metricInterval(cfg Config) time.Duration {
	if cfg.MetricInterval > 0 {
		return cfg.MetricInterval
	}
	return DefaultMetricInterval
}

// newResource describes this service instance. The service attributes are
// schemaless so they merge with resource.Default() whatever semconv version
// the SDK was built against.
func newResource(cfg Config) (*resource.Resource, error) {
	name := cfg.ServiceName
	if name == "" {
		name = DefaultServiceName
	}
	attrs := []attribute.KeyValue{semconv.ServiceName(name)}
	if cfg.ServiceVersion != "" {
		attrs = append(attrs, semconv.ServiceVersion(cfg.ServiceVersion))
	}
	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(attrs...))
	if err != nil {
		return nil, fmt.Errorf("building OTel resource: %w", err)
	}
	return res, nil
}

func noopShutdown(context.Context) error { return nil }
