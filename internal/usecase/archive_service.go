package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"data-upload-service/internal/archive"
	"data-upload-service/internal/domain"
	"data-upload-service/internal/metrics"
)

var tracer = otel.Tracer("data-upload-service/internal/usecase")

// ArchiveService はアップロードデータの暗号化・復号・展開のユースケースを提供する。
type ArchiveService struct {
	cache     *EncryptorCache
	extractor *archive.Extractor
}

// NewArchiveService は新しいArchiveServiceを生成する。
func NewArchiveService(cache *EncryptorCache, extractor *archive.Extractor) *ArchiveService {
	return &ArchiveService{
		cache:     cache,
		extractor: extractor,
	}
}

// Encrypt は指定されたアプリの証明書で平文を暗号化する。
func (s *ArchiveService) Encrypt(ctx context.Context, appID string, plaintext []byte) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "ArchiveService.Encrypt")
	defer span.End()
	span.SetAttributes(attribute.String("app_id", appID), attribute.Int("payload.size", len(plaintext)))

	if err := validate(appID, plaintext); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	enc, err := s.cache.Get(ctx, appID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "encryptor lookup failed")
		return nil, err
	}

	start := time.Now()
	ciphertext, err := enc.Encrypt(plaintext)
	metrics.CryptoOperationDuration.WithLabelValues("encrypt").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.CryptoOperationsTotal.WithLabelValues("encrypt", "error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "encryption failed")
		slog.ErrorContext(ctx, "failed to encrypt payload",
			"operation", "encrypt",
			"app_id", appID,
			"error", err,
		)
		return nil, fmt.Errorf("encrypting payload: %w", err)
	}

	metrics.CryptoOperationsTotal.WithLabelValues("encrypt", "success").Inc()
	return ciphertext, nil
}

// Decrypt は指定されたアプリの秘密鍵で暗号文を復号する。
// 暗号文の破損・鍵の不一致・暗号化専用の鍵はいずれも domain.ErrDecryptionFailed として返し、
// 詳細な原因はログにのみ出力する。
func (s *ArchiveService) Decrypt(ctx context.Context, appID string, ciphertext []byte) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "ArchiveService.Decrypt")
	defer span.End()
	span.SetAttributes(attribute.String("app_id", appID), attribute.Int("payload.size", len(ciphertext)))

	if err := validate(appID, ciphertext); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	enc, err := s.cache.Get(ctx, appID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "encryptor lookup failed")
		return nil, err
	}

	start := time.Now()
	plaintext, err := enc.Decrypt(ciphertext)
	metrics.CryptoOperationDuration.WithLabelValues("decrypt").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.CryptoOperationsTotal.WithLabelValues("decrypt", "error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "decryption failed")
		slog.WarnContext(ctx, "failed to decrypt payload",
			"operation", "decrypt",
			"app_id", appID,
			"cause", decryptFailureCause(err),
			"error", err,
		)
		if isDecryptionFailure(err) {
			return nil, domain.ErrDecryptionFailed
		}
		return nil, fmt.Errorf("decrypting payload: %w", err)
	}

	metrics.CryptoOperationsTotal.WithLabelValues("decrypt", "success").Inc()
	return plaintext, nil
}

// Unzip はZIPアーカイブを上限付きで展開する。
func (s *ArchiveService) Unzip(ctx context.Context, data []byte) (map[string][]byte, error) {
	ctx, span := tracer.Start(ctx, "ArchiveService.Unzip")
	defer span.End()
	span.SetAttributes(attribute.Int("archive.size", len(data)))

	files, err := s.extractor.Extract(data)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "extraction failed")
		slog.WarnContext(ctx, "failed to extract archive",
			"operation", "unzip",
			"archive_size", len(data),
			"error", err,
		)
		return nil, err
	}

	span.SetAttributes(attribute.Int("archive.entries", len(files)))
	return files, nil
}

// DecryptAndUnzip は暗号文を復号し、平文をZIPアーカイブとして展開する。
func (s *ArchiveService) DecryptAndUnzip(ctx context.Context, appID string, ciphertext []byte) (map[string][]byte, error) {
	plaintext, err := s.Decrypt(ctx, appID, ciphertext)
	if err != nil {
		return nil, err
	}
	return s.Unzip(ctx, plaintext)
}

func validate(appID string, payload []byte) error {
	if strings.TrimSpace(appID) == "" {
		return fmt.Errorf("%w: app id cannot be blank", domain.ErrInvalidInput)
	}
	if payload == nil {
		return fmt.Errorf("%w: payload cannot be nil", domain.ErrInvalidInput)
	}
	return nil
}

func isDecryptionFailure(err error) bool {
	return errors.Is(err, domain.ErrMalformedCiphertext) ||
		errors.Is(err, domain.ErrKeyMismatch) ||
		errors.Is(err, domain.ErrDecryptNotSupported)
}

func decryptFailureCause(err error) string {
	switch {
	case errors.Is(err, domain.ErrMalformedCiphertext):
		return "malformed_ciphertext"
	case errors.Is(err, domain.ErrKeyMismatch):
		return "key_mismatch"
	case errors.Is(err, domain.ErrDecryptNotSupported):
		return "decrypt_not_supported"
	default:
		return "unknown"
	}
}
