// Package usecase はアプリケーションのユースケースを実装する。
package usecase

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"data-upload-service/internal/domain"
	"data-upload-service/internal/envelope"
)

// TenantKeyRepository は鍵素材のデータアクセスのインターフェース。
type TenantKeyRepository interface {
	FindActiveByAppID(ctx context.Context, appID string) (*domain.TenantKey, error)
	Create(ctx context.Context, key *domain.TenantKey) error
	UpdateStatus(ctx context.Context, appID string, status domain.TenantKeyStatus) error
}

// KMSClient は秘密鍵のラップ・アンラップのインターフェース。
type KMSClient interface {
	Encrypt(ctx context.Context, plaintext []byte) ([]byte, error)
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
}

// KeyMaterialService はデータベースに保存された鍵素材を読み込み、
// Cloud KMSで秘密鍵をアンラップして返す。
type KeyMaterialService struct {
	repo      TenantKeyRepository
	kmsClient KMSClient
}

// NewKeyMaterialService は新しいKeyMaterialServiceを生成する。
func NewKeyMaterialService(repo TenantKeyRepository, kmsClient KMSClient) *KeyMaterialService {
	return &KeyMaterialService{
		repo:      repo,
		kmsClient: kmsClient,
	}
}

// Load は指定されたアプリの鍵素材を取得する。
// 秘密鍵が保存されていない場合は暗号化専用の鍵素材を返す。
func (s *KeyMaterialService) Load(ctx context.Context, appID string) (*domain.KeyMaterial, error) {
	ctx, span := tracer.Start(ctx, "KeyMaterialService.Load")
	defer span.End()
	span.SetAttributes(attribute.String("app_id", appID))

	key, err := s.repo.FindActiveByAppID(ctx, appID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "finding tenant key failed")
		return nil, fmt.Errorf("finding tenant key: %w", err)
	}
	if key == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrTenantKeyNotFound, appID)
	}

	material := &domain.KeyMaterial{
		AppID:          key.AppID,
		CertificatePEM: key.CertificatePEM,
	}
	if len(key.EncryptedPrivateKey) == 0 {
		return material, nil
	}

	// KMSで復号
	privateKey, err := s.kmsClient.Decrypt(ctx, key.EncryptedPrivateKey)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "unwrapping private key failed")
		return nil, fmt.Errorf("unwrapping private key: %w", err)
	}
	material.PrivateKeyPEM = privateKey
	return material, nil
}

// Import は外部で発行された鍵素材を検証し、秘密鍵をKMSでラップして保存する。
func (s *KeyMaterialService) Import(ctx context.Context, material *domain.KeyMaterial) (*domain.TenantKey, error) {
	ctx, span := tracer.Start(ctx, "KeyMaterialService.Import")
	defer span.End()

	if material == nil || material.AppID == "" {
		return nil, fmt.Errorf("%w: app id cannot be blank", domain.ErrInvalidInput)
	}
	span.SetAttributes(attribute.String("app_id", material.AppID))

	// 保存前に証明書と秘密鍵の組み合わせを検証する
	if _, err := envelope.NewEncryptor(material); err != nil {
		return nil, err
	}

	key := &domain.TenantKey{
		AppID:          material.AppID,
		CertificatePEM: material.CertificatePEM,
		Status:         domain.TenantKeyStatusActive,
	}
	if material.HasPrivateKey() {
		// KMSで暗号化
		wrapped, err := s.kmsClient.Encrypt(ctx, material.PrivateKeyPEM)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "wrapping private key failed")
			return nil, fmt.Errorf("wrapping private key: %w", err)
		}
		key.EncryptedPrivateKey = wrapped
	}

	// DBに保存
	if err := s.repo.Create(ctx, key); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "creating tenant key failed")
		return nil, fmt.Errorf("creating tenant key: %w", err)
	}
	return key, nil
}

// Disable は指定されたアプリの鍵素材を無効化する。
// 稼働中のサーバーはキャッシュ済みのEncryptorを再起動まで使い続ける。
func (s *KeyMaterialService) Disable(ctx context.Context, appID string) error {
	key, err := s.repo.FindActiveByAppID(ctx, appID)
	if err != nil {
		return fmt.Errorf("finding tenant key: %w", err)
	}
	if key == nil {
		return fmt.Errorf("%w: %s", domain.ErrTenantKeyNotFound, appID)
	}
	if err := s.repo.UpdateStatus(ctx, appID, domain.TenantKeyStatusDisabled); err != nil {
		return fmt.Errorf("updating status: %w", err)
	}
	return nil
}
