// Package telemetry wires tracing and error reporting. Both are optional:
// with nothing configured Setup installs nothing and returns a no-op
// shutdown.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/scanzie/smeal/internal/logging"
)

type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	// OTLPEndpoint is a full URL, e.g. http://localhost:4318.
	OTLPEndpoint string
	SentryDSN    string
}

// Shutdown flushes and stops whatever Setup started.
type Shutdown func(context.Context) error

// Setup installs the global tracer provider when an OTLP endpoint is set
// and initializes Sentry when a DSN is set.
func Setup(ctx context.Context, cfg Config, logger logging.Logger) (Shutdown, error) {
	if logger == nil {
		logger = logging.Nop()
	}
	logger = logger.With(logging.Field{Key: "component", Value: "telemetry"})

	var shutdowns []Shutdown

	if cfg.OTLPEndpoint != "" {
		exp, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(cfg.OTLPEndpoint))
		if err != nil {
			return nil, fmt.Errorf("otlp exporter: %w", err)
		}
		res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
			attribute.String("service.name", cfg.ServiceName),
			attribute.String("service.version", cfg.ServiceVersion),
			attribute.String("deployment.environment", cfg.Environment),
		))
		if err != nil {
			return nil, fmt.Errorf("otel resource: %w", err)
		}
		tp := sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exp),
			sdktrace.WithResource(res),
		)
		otel.SetTracerProvider(tp)
		otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{}, propagation.Baggage{},
		))
		shutdowns = append(shutdowns, tp.Shutdown)
		logger.Info("tracing enabled", logging.Field{Key: "endpoint", Value: cfg.OTLPEndpoint})
	}

	if cfg.SentryDSN != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.SentryDSN,
			Environment: cfg.Environment,
			Release:     cfg.ServiceName + "@" + cfg.ServiceVersion,
		})
		if err != nil {
			return nil, errors.Join(fmt.Errorf("sentry: %w", err), runAll(ctx, shutdowns))
		}
		shutdowns = append(shutdowns, func(context.Context) error {
			sentry.Flush(2 * time.Second)
			return nil
		})
		logger.Info("error reporting enabled")
	}

	return func(ctx context.Context) error { return runAll(ctx, shutdowns) }, nil
}

func runAll(ctx context.Context, fns []Shutdown) error {
	var errs []error
	for i := len(fns) - 1; i >= 0; i-- {
		if err := fns[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// CaptureError reports err to Sentry with the request attached, when
// Sentry is initialized.
func CaptureError(r *http.Request, err error) {
	hub := sentry.CurrentHub()
	if r != nil {
		if h := sentry.GetHubFromContext(r.Context()); h != nil {
			hub = h
		}
	}
	if hub.Client() == nil {
		return
	}
	hub.WithScope(func(scope *sentry.Scope) {
		if r != nil {
			scope.SetRequest(r)
		}
		hub.CaptureException(err)
	})
}

// Enabled reports whether a Sentry client is installed.
func Enabled() bool { return sentry.CurrentHub().Client() != nil }
