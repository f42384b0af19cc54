// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"log/slog"
	"time"
)

// 監査ログの結果。
const (
	ResultSuccess = "SUCCESS"
	ResultFailed  = "FAILED"
)

// WriteAuditLog は監査ログを出力する。size は受信したペイロードのバイト数。
func WriteAuditLog(ctx context.Context, operation string, appID string, size int, result string) {
	slog.InfoContext(ctx, "upload operation completed",
		"operation", operation,
		"app_id", appID,
		"size", size,
		"result", result,
		"timestamp", time.Now().UTC().Format(time.RFC3339),
	)
}
