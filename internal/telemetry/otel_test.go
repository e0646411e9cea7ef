package telemetry

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestInitTracer(t *testing.T) {
	tests := []struct {
		name string
		opts Options
	}{
		{name: "valid configuration", opts: Options{ServiceName: "checkin-insights", Endpoint: "localhost:4318"}},
		{name: "with version and ratio", opts: Options{ServiceName: "checkin-insights", ServiceVersion: "1.2.0", Endpoint: "localhost:4318", SampleRatio: 0.25}},
		{name: "empty service name", opts: Options{Endpoint: "localhost:4318"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			tp, err := InitTracer(ctx, tt.opts)
			if err != nil {
				t.Fatalf("InitTracer() error = %v", err)
			}
			if err := Shutdown(ctx, tp); err != nil {
				t.Errorf("Shutdown() error = %v", err)
			}
		})
	}
}

func TestShutdown_NilProvider(t *testing.T) {
	if err := Shutdown(context.Background(), nil); err != nil {
		t.Errorf("Shutdown() with nil provider should not error, got: %v", err)
	}
}

func TestSampler(t *testing.T) {
	tests := []struct {
		ratio float64
		want  string
	}{
		{ratio: 0, want: "AlwaysOnSampler"},
		{ratio: 1, want: "AlwaysOnSampler"},
		{ratio: 0.5, want: "TraceIDRatioBased{0.5}"},
	}
	for _, tt := range tests {
		got := sampler(tt.ratio).Description()
		if !strings.Contains(got, tt.want) {
			t.Errorf("sampler(%v) = %s, want to contain %s", tt.ratio, got, tt.want)
		}
	}
}
