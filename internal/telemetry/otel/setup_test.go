package otel

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
	logglobal "go.opentelemetry.io/otel/log/global"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestNewProviders_EmptyEndpoint(t *testing.T) {
	ctx := context.Background()
	for _, endpoint := range []string{"", "   "} {
		providers, err := NewProviders(ctx, endpoint, "classlock-test", false)
		if err != nil {
			t.Fatalf("NewProviders(%q): %v", endpoint, err)
		}
		if providers.TracerProvider == nil || providers.MeterProvider == nil || providers.LoggerProvider == nil {
			t.Errorf("NewProviders(%q) returned nil provider: %+v", endpoint, providers)
		}
		if err := providers.Shutdown(ctx); err != nil {
			t.Errorf("shutdown should be no-op for empty endpoint, got error: %v", err)
		}
	}
}

func TestNewProviders_InvalidEndpoint(t *testing.T) {
	ctx := context.Background()
	for _, endpoint := range []string{"://invalid", "http://[invalid", "http://"} {
		if _, err := NewProviders(ctx, endpoint, "classlock-test", false); err == nil {
			t.Errorf("NewProviders(%q) should return error", endpoint)
		}
	}
}

func TestParseEndpoint(t *testing.T) {
	tests := []struct {
		endpoint     string
		override     bool
		wantTarget   string
		wantInsecure bool
	}{
		{"localhost:4317", false, "localhost:4317", true},
		{"http://collector:4317", false, "collector:4317", true},
		{"http://collector:4317/v1/traces", false, "collector:4317", true},
		{"https://collector:4317", false, "collector:4317", false},
		{"https://collector:4317", true, "collector:4317", true},
	}
	for _, tt := range tests {
		t.Run(tt.endpoint, func(t *testing.T) {
			target, insecure, err := parseEndpoint(tt.endpoint, tt.override)
			if err != nil {
				t.Fatalf("parseEndpoint: %v", err)
			}
			if target != tt.wantTarget {
				t.Errorf("target = %q, want %q", target, tt.wantTarget)
			}
			if insecure != tt.wantInsecure {
				t.Errorf("insecure = %v, want %v", insecure, tt.wantInsecure)
			}
		})
	}
}

func TestSetGlobal_WithProviders(t *testing.T) {
	ctx := context.Background()
	providers, err := NewProviders(ctx, "", "classlock-test", false)
	if err != nil {
		t.Fatalf("NewProviders: %v", err)
	}
	oldTP, oldMP, oldLP := otel.GetTracerProvider(), otel.GetMeterProvider(), logglobal.GetLoggerProvider()
	defer func() {
		otel.SetTracerProvider(oldTP)
		otel.SetMeterProvider(oldMP)
		logglobal.SetLoggerProvider(oldLP)
	}()

	providers.SetGlobal()

	if otel.GetTracerProvider() != providers.TracerProvider {
		t.Error("TracerProvider should be updated")
	}
	if otel.GetMeterProvider() != providers.MeterProvider {
		t.Error("MeterProvider should be updated")
	}
	if logglobal.GetLoggerProvider() != providers.LoggerProvider {
		t.Error("LoggerProvider should be updated")
	}
}

func TestSetGlobal_PartialProviders(t *testing.T) {
	ctx := context.Background()
	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(ctx) }()
	providers := &Providers{TracerProvider: tp, Shutdown: func(context.Context) error { return nil }}

	oldTP, oldMP := otel.GetTracerProvider(), otel.GetMeterProvider()
	defer func() {
		otel.SetTracerProvider(oldTP)
		otel.SetMeterProvider(oldMP)
	}()

	providers.SetGlobal()

	if otel.GetTracerProvider() != tp {
		t.Error("TracerProvider should be updated")
	}
	if otel.GetMeterProvider() != oldMP {
		t.Error("MeterProvider should not be updated when nil")
	}
}
