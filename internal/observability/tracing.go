// Package observability provides optional OpenTelemetry tracing.
//
// Tracing is off by default. When enabled, spans are exported over OTLP
// HTTP to a local collector or agent (default localhost:4318). The agent
// handles authentication and forwarding to the tracing backend, so no
// vendor credentials pass through the application.
//
// Environment variables (optional):
//   - RAGLINE_TRACING: set to "true" to enable export
//   - OTEL_AGENT_HOST: override the agent endpoint (default: localhost:4318)
package observability

import (
	"context"
	"fmt"
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/ragline/ragline/internal/log"
)

// DefaultAgentHost is the default OTLP HTTP endpoint.
const DefaultAgentHost = "localhost:4318"

// Config for tracing setup.
type Config struct {
	// Enabled turns span export on. When false, Setup is a no-op.
	Enabled bool
	// AgentHost is the OTLP HTTP endpoint (default: localhost:4318)
	AgentHost string
	// ServiceName is the service name shown in the tracing backend
	ServiceName string
	// Environment is the deployment environment (dev, staging, prod)
	Environment string
}

// Setup installs the global tracer provider and returns a shutdown
// function that flushes pending spans. When tracing is disabled the
// returned shutdown is a no-op and no exporter is created.
func Setup(ctx context.Context, cfg Config, logger log.Logger) (shutdown func(context.Context) error, err error) {
	if !cfg.Enabled {
		return func(context.Context) error { return nil }, nil
	}

	agentHost := cfg.AgentHost
	if agentHost == "" {
		agentHost = DefaultAgentHost
	}
	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "ragline"
	}

	// Local agent endpoint; no TLS needed on loopback.
	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(agentHost),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("creating trace exporter: %w", err)
	}

	attrs := []attribute.KeyValue{
		attribute.String("service.name", serviceName),
	}
	if cfg.Environment != "" {
		attrs = append(attrs, attribute.String("deployment.environment", cfg.Environment))
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewSchemaless(attrs...)),
	)
	otel.SetTracerProvider(provider)

	logger.Debug("tracing enabled",
		"agent", agentHost,
		"service", serviceName,
		"environment", cfg.Environment,
	)

	return provider.Shutdown, nil
}

// Middleware wraps handler with server-side HTTP spans. When tracing is
// disabled the handler is returned unchanged.
func Middleware(enabled bool, handler http.Handler) http.Handler {
	if !enabled {
		return handler
	}
	return otelhttp.NewHandler(handler, "ragline.http")
}
