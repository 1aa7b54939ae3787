package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/tbourn/wedding-invite-backend/internal/config"
)

var testBuild = Build{Version: "v1.4.0", LocalBackend: "kvdb", RemoteDriver: "postgres"}

// keepGlobals restores the otel globals when the test ends.
func keepGlobals(t *testing.T) {
	t.Helper()
	tp, prop := otel.GetTracerProvider(), otel.GetTextMapPropagator()
	t.Cleanup(func() {
		otel.SetTracerProvider(tp)
		otel.SetTextMapPropagator(prop)
	})
}

func enabledConfig(insecure bool) config.OTELConfig {
	return config.OTELConfig{
		Enabled:     true,
		Insecure:    insecure,
		Endpoint:    "localhost:4317",
		ServiceName: "wedding-invite-backend",
		SampleRatio: 1.0,
	}
}

func TestSetupOTel_DisabledLeavesGlobals(t *testing.T) {
	keepGlobals(t)
	before := otel.GetTracerProvider()

	shutdown, err := SetupOTel(context.Background(), config.OTELConfig{Endpoint: "ignored:4317"}, testBuild)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("no-op shutdown: %v", err)
	}
	if otel.GetTracerProvider() != before {
		t.Fatalf("disabled tracing replaced the tracer provider")
	}
}

func TestSetupOTel_Enabled(t *testing.T) {
	canceled, cancel := context.WithCancel(context.Background())
	cancel()

	tests := []struct {
		name     string
		ctx      context.Context
		insecure bool
	}{
		{"insecure", context.Background(), true},
		{"tls", context.Background(), false},
		// Exporter dialing is lazy, so a dead setup context is fine.
		{"canceled setup context", canceled, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			keepGlobals(t)

			shutdown, err := SetupOTel(tt.ctx, enabledConfig(tt.insecure), testBuild)
			if err != nil {
				t.Fatalf("unexpected err: %v", err)
			}
			if _, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider); !ok {
				t.Fatalf("expected *sdktrace.TracerProvider, got %T", otel.GetTracerProvider())
			}

			ctx, span := otel.Tracer("services/SyncCoordinator").Start(context.Background(), "SyncCoordinator.Flush")
			carrier := propagation.MapCarrier{}
			otel.GetTextMapPropagator().Inject(ctx, carrier)
			span.End()
			if carrier.Get("traceparent") == "" {
				t.Fatalf("traceparent not injected: %v", carrier)
			}

			// No collector listens in tests; flushing the span may fail, so
			// only the bounded return matters.
			sctx, done := context.WithTimeout(context.Background(), 250*time.Millisecond)
			defer done()
			_ = shutdown(sctx)
		})
	}
}

func TestSetupOTel_SeamErrorsKeepGlobals(t *testing.T) {
	tests := []struct {
		name  string
		patch func() func()
	}{
		{
			name: "exporter",
			patch: func() func() {
				orig := newOTLPExporterFn
				newOTLPExporterFn = func(context.Context, otlptrace.Client) (*otlptrace.Exporter, error) {
					return nil, errors.New("exporter down")
				}
				return func() { newOTLPExporterFn = orig }
			},
		},
		{
			name: "resource",
			patch: func() func() {
				orig := newServiceResourceFn
				newServiceResourceFn = func(context.Context, string, Build) (*resource.Resource, error) {
					return nil, errors.New("resource conflict")
				}
				return func() { newServiceResourceFn = orig }
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			keepGlobals(t)
			t.Cleanup(tt.patch())
			tp, prop := otel.GetTracerProvider(), otel.GetTextMapPropagator()

			if _, err := SetupOTel(context.Background(), enabledConfig(true), testBuild); err == nil {
				t.Fatalf("expected error")
			}
			if otel.GetTracerProvider() != tp || otel.GetTextMapPropagator() != prop {
				t.Fatalf("globals changed on failure")
			}
		})
	}
}

func TestServiceResource_CarriesBuildAttributes(t *testing.T) {
	res, err := newServiceResourceFn(context.Background(), "wedding-invite-backend", testBuild)
	if err != nil {
		t.Fatalf("resource: %v", err)
	}
	got := map[string]string{}
	for _, kv := range res.Attributes() {
		got[string(kv.Key)] = kv.Value.Emit()
	}
	want := map[string]string{
		"service.name":             "wedding-invite-backend",
		"service.version":          "v1.4.0",
		"invitation.local_backend": "kvdb",
		"invitation.remote_driver": "postgres",
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s = %q; want %q", k, got[k], v)
		}
	}
}
