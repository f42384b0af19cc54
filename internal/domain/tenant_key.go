// Package domain はドメインモデルとビジネスルールを定義する。
package domain

import "time"

// TenantKeyStatus は鍵素材のステータスを表す。
type TenantKeyStatus string

const (
	// TenantKeyStatusActive は有効な鍵素材を表す。
	TenantKeyStatusActive TenantKeyStatus = "active"
	// TenantKeyStatusDisabled は無効化された鍵素材を表す。
	TenantKeyStatusDisabled TenantKeyStatus = "disabled"
)

// TenantKey は永続化されたアプリ単位の鍵素材エンティティを表す。
// 秘密鍵はCloud KMSでラップされた状態で保存される。
type TenantKey struct {
	ID                  string
	AppID               string
	CertificatePEM      []byte
	EncryptedPrivateKey []byte
	Status              TenantKeyStatus
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// KeyMaterial はEncryptorの構築に使う平文の鍵素材を表す。
// PrivateKeyPEM がnilの場合は暗号化専用となる。
type KeyMaterial struct {
	AppID          string
	CertificatePEM []byte
	PrivateKeyPEM  []byte
}

// HasPrivateKey は復号用の秘密鍵を含むかどうかを返す。
func (m *KeyMaterial) HasPrivateKey() bool {
	return m != nil && len(m.PrivateKeyPEM) > 0
}
