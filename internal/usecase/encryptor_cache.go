package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"data-upload-service/internal/domain"
	"data-upload-service/internal/envelope"
	"data-upload-service/internal/metrics"
)

// KeyMaterialSource はアプリIDに対応する鍵素材を取得するインターフェース。
// 鍵素材が存在しない場合は domain.ErrTenantKeyNotFound を返す。
type KeyMaterialSource interface {
	Load(ctx context.Context, appID string) (*domain.KeyMaterial, error)
}

// EncryptorCache はアプリIDごとのEncryptorを保持するレジストリ。
// 同じアプリIDに対する初回アクセスが並行しても、鍵素材の読み込みは1回だけ行われる。
// 読み込みに失敗した結果は保持しないため、次回のアクセスで再試行される。
type EncryptorCache struct {
	source KeyMaterialSource
	group  singleflight.Group
	items  sync.Map // map[string]*envelope.Encryptor
}

// NewEncryptorCache は新しいEncryptorCacheを生成する。
func NewEncryptorCache(source KeyMaterialSource) *EncryptorCache {
	return &EncryptorCache{source: source}
}

// Get は指定されたアプリIDのEncryptorを返す。未登録の場合は鍵素材を読み込んで生成する。
func (c *EncryptorCache) Get(ctx context.Context, appID string) (*envelope.Encryptor, error) {
	if strings.TrimSpace(appID) == "" {
		return nil, fmt.Errorf("%w: app id cannot be blank", domain.ErrInvalidInput)
	}

	if enc, ok := c.items.Load(appID); ok {
		metrics.EncryptorCacheLookupsTotal.WithLabelValues("hit").Inc()
		return enc.(*envelope.Encryptor), nil
	}
	metrics.EncryptorCacheLookupsTotal.WithLabelValues("miss").Inc()

	// 最初の呼び出し元のキャンセルが相乗りした他の呼び出し元を失敗させないよう、
	// 読み込みはキャンセルを切り離したコンテキストで行う
	loadCtx := context.WithoutCancel(ctx)
	v, err, _ := c.group.Do(appID, func() (any, error) {
		if enc, ok := c.items.Load(appID); ok {
			return enc, nil
		}
		enc, err := c.load(loadCtx, appID)
		if err != nil {
			return nil, err
		}
		c.items.Store(appID, enc)
		metrics.EncryptorCacheSize.Inc()
		return enc, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*envelope.Encryptor), nil
}

func (c *EncryptorCache) load(ctx context.Context, appID string) (*envelope.Encryptor, error) {
	material, err := c.source.Load(ctx, appID)
	if err != nil {
		metrics.KeyMaterialLoadsTotal.WithLabelValues("error").Inc()
		slog.ErrorContext(ctx, "failed to load key material",
			"operation", "encryptor_cache.load",
			"app_id", appID,
			"error", err,
		)
		return nil, err
	}

	enc, err := envelope.NewEncryptor(material)
	if err != nil {
		metrics.KeyMaterialLoadsTotal.WithLabelValues("invalid").Inc()
		slog.ErrorContext(ctx, "failed to build encryptor",
			"operation", "encryptor_cache.load",
			"app_id", appID,
			"error", err,
		)
		return nil, fmt.Errorf("building encryptor for %s: %w", appID, err)
	}

	metrics.KeyMaterialLoadsTotal.WithLabelValues("success").Inc()
	slog.InfoContext(ctx, "encryptor loaded",
		"app_id", appID,
		"can_decrypt", enc.CanDecrypt(),
	)
	return enc, nil
}

// Len はキャッシュ済みのEncryptorの数を返す。
func (c *EncryptorCache) Len() int {
	n := 0
	c.items.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
