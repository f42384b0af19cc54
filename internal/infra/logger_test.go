package infra

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"go.opentelemetry.io/otel/trace"

	"data-upload-service/config"
)

func spanContext(t *testing.T) context.Context {
	t.Helper()
	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	if err != nil {
		t.Fatalf("invalid trace id: %v", err)
	}
	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	if err != nil {
		t.Fatalf("invalid span id: %v", err)
	}
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	})
	return trace.ContextWithSpanContext(context.Background(), sc)
}

func logLine(t *testing.T, cfg *config.Config, ctx context.Context) map[string]any {
	t.Helper()
	var buf bytes.Buffer
	logger := slog.New(NewTraceHandler(slog.NewJSONHandler(&buf, nil), cfg))
	logger.InfoContext(ctx, "decrypt completed", "app_id", "app-1")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log line: %v", err)
	}
	return entry
}

func TestTraceHandler_AddsTraceFields(t *testing.T) {
	entry := logLine(t, &config.Config{OtelEnabled: true, GoogleCloudProject: "my-project"}, spanContext(t))

	if entry["trace"] != "4bf92f3577b34da6a3ce929d0e0e4736" {
		t.Errorf("unexpected trace: %v", entry["trace"])
	}
	if entry["spanId"] != "00f067aa0ba902b7" {
		t.Errorf("unexpected spanId: %v", entry["spanId"])
	}
	if entry["logging.googleapis.com/trace"] != "projects/my-project/traces/4bf92f3577b34da6a3ce929d0e0e4736" {
		t.Errorf("unexpected cloud logging trace: %v", entry["logging.googleapis.com/trace"])
	}
	if entry["app_id"] != "app-1" {
		t.Errorf("unexpected app_id: %v", entry["app_id"])
	}
}

func TestTraceHandler_Disabled(t *testing.T) {
	entry := logLine(t, &config.Config{OtelEnabled: false}, spanContext(t))

	if _, ok := entry["trace"]; ok {
		t.Error("trace fields must not be added when otel is disabled")
	}
}
