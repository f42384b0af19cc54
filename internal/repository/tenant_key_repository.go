// Package repository はデータアクセス層の実装を提供する。
package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"data-upload-service/internal/domain"
)

// TenantKeyModel はgorm用のモデル定義。
type TenantKeyModel struct {
	ID                  string    `gorm:"type:char(36);primaryKey"`
	AppID               string    `gorm:"type:varchar(64);not null;uniqueIndex:uk_app_id"`
	CertificatePEM      []byte    `gorm:"column:certificate_pem;type:blob;not null"`
	EncryptedPrivateKey []byte    `gorm:"type:blob"`
	Status              string    `gorm:"type:enum('active','disabled');not null;default:'active'"`
	CreatedAt           time.Time `gorm:"type:datetime(6);not null;autoCreateTime"`
	UpdatedAt           time.Time `gorm:"type:datetime(6);not null;autoUpdateTime"`
}

// TableName はテーブル名を返す。
func (TenantKeyModel) TableName() string {
	return "tenant_keys"
}

// BeforeCreate はレコード作成前にUUIDを生成する。
func (m *TenantKeyModel) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return nil
}

func (m *TenantKeyModel) toDomain() *domain.TenantKey {
	return &domain.TenantKey{
		ID:                  m.ID,
		AppID:               m.AppID,
		CertificatePEM:      m.CertificatePEM,
		EncryptedPrivateKey: m.EncryptedPrivateKey,
		Status:              domain.TenantKeyStatus(m.Status),
		CreatedAt:           m.CreatedAt,
		UpdatedAt:           m.UpdatedAt,
	}
}

// TenantKeyRepository はアプリ単位の鍵素材へのデータアクセスを提供する。
type TenantKeyRepository struct {
	db *gorm.DB
}

// NewTenantKeyRepository は新しいTenantKeyRepositoryを生成する。
func NewTenantKeyRepository(db *gorm.DB) *TenantKeyRepository {
	return &TenantKeyRepository{db: db}
}

// FindActiveByAppID は指定されたアプリの有効な鍵素材を取得する。
// 見つからない場合は nil, nil を返す。
func (r *TenantKeyRepository) FindActiveByAppID(ctx context.Context, appID string) (*domain.TenantKey, error) {
	var model TenantKeyModel
	err := r.db.WithContext(ctx).
		Where("app_id = ? AND status = ?", appID, string(domain.TenantKeyStatusActive)).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		slog.ErrorContext(ctx, "failed to find active tenant key",
			"operation", "find_active_by_app_id",
			"app_id", appID,
			"error", err,
		)
		return nil, err
	}
	return model.toDomain(), nil
}

// Create は鍵素材を有効な状態で保存する。テスト・運用ツールからのプロビジョニングに使う。
// app_idは一意のため、無効化済みの行があればその行を新しい鍵素材で置き換える。
// 有効な鍵素材が既に存在する場合は domain.ErrTenantKeyExists を返す。
func (r *TenantKeyRepository) Create(ctx context.Context, key *domain.TenantKey) error {
	model := &TenantKeyModel{
		ID:                  key.ID,
		AppID:               key.AppID,
		CertificatePEM:      key.CertificatePEM,
		EncryptedPrivateKey: key.EncryptedPrivateKey,
		Status:              string(key.Status),
	}
	if model.Status == "" {
		model.Status = string(domain.TenantKeyStatusActive)
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing TenantKeyModel
		err := tx.Where("app_id = ?", key.AppID).First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return tx.Create(model).Error
		}
		if err != nil {
			return err
		}
		if existing.Status == string(domain.TenantKeyStatusActive) {
			return fmt.Errorf("%w: %s", domain.ErrTenantKeyExists, key.AppID)
		}

		// 無効化済みの行を再利用する
		model.ID = existing.ID
		model.CreatedAt = existing.CreatedAt
		return tx.Save(model).Error
	})
	if err != nil {
		if !errors.Is(err, domain.ErrTenantKeyExists) {
			slog.ErrorContext(ctx, "failed to create tenant key",
				"operation", "create",
				"app_id", key.AppID,
				"error", err,
			)
		}
		return err
	}
	// gormで設定された値をドメインエンティティに反映
	key.ID = model.ID
	key.Status = domain.TenantKeyStatus(model.Status)
	key.CreatedAt = model.CreatedAt
	key.UpdatedAt = model.UpdatedAt
	return nil
}

// UpdateStatus は指定されたアプリの鍵素材のステータスを更新する。
func (r *TenantKeyRepository) UpdateStatus(ctx context.Context, appID string, status domain.TenantKeyStatus) error {
	err := r.db.WithContext(ctx).
		Model(&TenantKeyModel{}).
		Where("app_id = ?", appID).
		Update("status", string(status)).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to update status",
			"operation", "update_status",
			"app_id", appID,
			"status", status,
			"error", err,
		)
		return err
	}
	return nil
}
