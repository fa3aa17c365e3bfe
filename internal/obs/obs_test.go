package obs

import (
	"context"
	"testing"
)

func TestInit_Disabled(t *testing.T) {
	p, err := Init(context.Background(), Config{Enabled: false}, "test")
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if p.Tracer == nil {
		t.Fatal("expected no-op tracer")
	}

	_, span := p.Tracer.Start(context.Background(), "noop")
	span.End()

	if err := p.Shutdown(context.Background()); err != nil {
		t.Errorf("shutdown: %v", err)
	}
}

func TestInit_NoneExporter(t *testing.T) {
	p, err := Init(context.Background(), Config{Enabled: true, Exporter: "none", ServiceName: "actiongate-test"}, "test")
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if p.TracerProvider == nil {
		t.Fatal("expected real tracer provider")
	}

	_, span := p.Tracer.Start(context.Background(), "invoke")
	span.End()

	if err := p.Shutdown(context.Background()); err != nil {
		t.Errorf("shutdown: %v", err)
	}
}

func TestInit_UnknownExporter(t *testing.T) {
	if _, err := Init(context.Background(), Config{Enabled: true, Exporter: "jaeger"}, "test"); err == nil {
		t.Error("expected error for unknown exporter")
	}
}
