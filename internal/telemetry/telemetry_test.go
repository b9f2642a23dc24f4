package telemetry

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestSamplerForMode(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		mode     string
		ratio    float64
		wantDrop bool
	}{
		{name: "off_mode_drops", mode: "off", ratio: 0.5, wantDrop: true},
		{name: "sampled_zero_ratio_drops", mode: "sampled", ratio: 0, wantDrop: true},
		{name: "sampled_full_ratio_records", mode: "sampled", ratio: 1, wantDrop: false},
		{name: "detailed_records", mode: "detailed", ratio: 0, wantDrop: false},
		{name: "errors_mode_uses_low_sampling", mode: "errors", ratio: 1, wantDrop: false},
		{name: "unknown_mode_defaults_to_sampled", mode: "unknown", ratio: 1, wantDrop: false},
	}

	params := sdktrace.SamplingParameters{}
	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			decision := samplerForMode(tc.mode, tc.ratio).ShouldSample(params).Decision
			gotDrop := decision == sdktrace.Drop
			if gotDrop != tc.wantDrop {
				t.Fatalf("ShouldSample().Decision drop=%t, want %t", gotDrop, tc.wantDrop)
			}
		})
	}
}

func TestClampRatio(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name  string
		input float64
		want  float64
	}{
		{name: "below_zero", input: -0.25, want: 0},
		{name: "within_bounds", input: 0.42, want: 0.42},
		{name: "above_one", input: 1.25, want: 1},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			if got := clampRatio(tc.input); got != tc.want {
				t.Fatalf("clampRatio(%v) = %v, want %v", tc.input, got, tc.want)
			}
		})
	}
}

// Setup mutates the global provider and trace mode, so these tests run sequentially.
func TestSetupAndStageSpans(t *testing.T) {
	recorder := tracetest.NewInMemoryExporter()
	runtime, err := Setup(Config{
		Enabled:     true,
		ServiceName: "commit-stats-test",
		TraceMode:   "detailed",
		Exporter:    recorder,
	})
	if err != nil {
		t.Fatalf("Setup() unexpected error: %v", err)
	}
	t.Cleanup(func() {
		_, _ = Setup(Config{Enabled: false})
	})

	if !ShouldTraceDependencies() {
		t.Fatalf("ShouldTraceDependencies() = false in detailed mode")
	}

	_, okSpan := StartStage(context.Background(), "window")
	EndStage(okSpan, nil)
	_, failedSpan := StartStage(context.Background(), "fetch")
	EndStage(failedSpan, errors.New("status 404"))

	if err := runtime.TracerProvider.ForceFlush(context.Background()); err != nil {
		t.Fatalf("ForceFlush() unexpected error: %v", err)
	}
	spans := recorder.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("len(spans) = %d, want 2", len(spans))
	}
	if spans[0].Name != "pipeline.window" || spans[0].Status.Code != codes.Ok {
		t.Fatalf("span[0] = %s/%v, want pipeline.window/Ok", spans[0].Name, spans[0].Status.Code)
	}
	if spans[1].Name != "pipeline.fetch" || spans[1].Status.Code != codes.Error {
		t.Fatalf("span[1] = %s/%v, want pipeline.fetch/Error", spans[1].Name, spans[1].Status.Code)
	}

	if err := runtime.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() unexpected error: %v", err)
	}
}

func TestSetupDisabledTurnsTracingOff(t *testing.T) {
	runtime, err := Setup(Config{Enabled: false, TraceMode: "detailed"})
	if err != nil {
		t.Fatalf("Setup() unexpected error: %v", err)
	}
	if runtime.TracerProvider == nil {
		t.Fatalf("TracerProvider is nil")
	}
	if TraceMode() != traceModeOff {
		t.Fatalf("TraceMode() = %q, want off", TraceMode())
	}
	if ShouldTraceDependencies() {
		t.Fatalf("ShouldTraceDependencies() = true with tracing disabled")
	}
	if err := runtime.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() unexpected error: %v", err)
	}
}

func TestNormalizeTraceMode(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		input string
		want  string
	}{
		{input: "OFF", want: traceModeOff},
		{input: " errors ", want: traceModeErrors},
		{input: "detailed", want: traceModeDetailed},
		{input: "", want: traceModeSampled},
		{input: "verbose", want: traceModeSampled},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.input, func(t *testing.T) {
			t.Parallel()
			if got := normalizeTraceMode(tc.input); got != tc.want {
				t.Fatalf("normalizeTraceMode(%q) = %q, want %q", tc.input, got, tc.want)
			}
		})
	}
}
