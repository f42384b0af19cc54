package infra

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"data-upload-service/internal/domain"
)

const (
	certificateExt = ".crt"
	privateKeyExt  = ".key"
)

// FileKeySource はディレクトリに配置されたPEMファイルから鍵素材を読み込む。
// <dir>/<app_id>.crt が証明書、<dir>/<app_id>.key が秘密鍵となる。
// 秘密鍵ファイルが存在しない場合は暗号化専用の鍵素材を返す。
type FileKeySource struct {
	dir string
}

// NewFileKeySource は新しいFileKeySourceを生成する。
func NewFileKeySource(dir string) (*FileKeySource, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("opening key material directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("key material path %s is not a directory", dir)
	}
	return &FileKeySource{dir: dir}, nil
}

// Load は指定されたアプリの鍵素材を読み込む。
func (s *FileKeySource) Load(ctx context.Context, appID string) (*domain.KeyMaterial, error) {
	if appID == "" || appID != filepath.Base(appID) || strings.HasPrefix(appID, ".") {
		return nil, fmt.Errorf("%w: app id %q cannot be used as a file name", domain.ErrInvalidInput, appID)
	}

	cert, err := os.ReadFile(filepath.Join(s.dir, appID+certificateExt))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", domain.ErrTenantKeyNotFound, appID)
		}
		return nil, fmt.Errorf("reading certificate: %w", err)
	}

	material := &domain.KeyMaterial{
		AppID:          appID,
		CertificatePEM: cert,
	}

	key, err := os.ReadFile(filepath.Join(s.dir, appID+privateKeyExt))
	switch {
	case err == nil:
		material.PrivateKeyPEM = key
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, fmt.Errorf("reading private key: %w", err)
	}
	return material, nil
}
