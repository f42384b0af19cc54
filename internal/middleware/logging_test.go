package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestWriteAuditLog(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	WriteAuditLog(context.Background(), "DECRYPT", "app-1", 128, ResultFailed)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log line: %v", err)
	}
	if entry["operation"] != "DECRYPT" {
		t.Errorf("want operation DECRYPT, got %v", entry["operation"])
	}
	if entry["app_id"] != "app-1" {
		t.Errorf("want app_id app-1, got %v", entry["app_id"])
	}
	if entry["size"] != float64(128) {
		t.Errorf("want size 128, got %v", entry["size"])
	}
	if entry["result"] != ResultFailed {
		t.Errorf("want result FAILED, got %v", entry["result"])
	}
	if _, ok := entry["timestamp"]; !ok {
		t.Error("want timestamp field")
	}
}
