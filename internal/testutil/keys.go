// Package testutil はテスト用の鍵素材とアーカイブを生成するヘルパーを提供する。
package testutil

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"sync"
	"testing"
	"time"

	"data-upload-service/internal/domain"
)

const testKeySize = 2048

var (
	materialMu sync.Mutex
	materials  = map[string]*domain.KeyMaterial{}
)

// KeyMaterial はアプリIDごとに自己署名証明書とPKCS#1秘密鍵を生成して返す。
// 鍵生成は重いため、同じアプリIDに対してはプロセス内で同じ鍵素材を再利用する。
func KeyMaterial(t testing.TB, appID string) *domain.KeyMaterial {
	t.Helper()

	materialMu.Lock()
	defer materialMu.Unlock()

	if m, ok := materials[appID]; ok {
		return clone(m)
	}

	key, err := rsa.GenerateKey(rand.Reader, testKeySize)
	if err != nil {
		t.Fatalf("failed to generate RSA key: %v", err)
	}
	m := &domain.KeyMaterial{
		AppID:          appID,
		CertificatePEM: SelfSignedCertificatePEM(t, appID, key),
		PrivateKeyPEM: pem.EncodeToMemory(&pem.Block{
			Type:  "RSA PRIVATE KEY",
			Bytes: x509.MarshalPKCS1PrivateKey(key),
		}),
	}
	materials[appID] = m
	return clone(m)
}

// SelfSignedCertificatePEM は指定された鍵で自己署名したPEM証明書を生成する。
func SelfSignedCertificatePEM(t testing.TB, commonName string, key *rsa.PrivateKey) []byte {
	t.Helper()

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 62))
	if err != nil {
		t.Fatalf("failed to generate serial number: %v", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: commonName, Organization: []string{"data-upload-service test"}},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageKeyEncipherment | x509.KeyUsageDataEncipherment,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("failed to create certificate: %v", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
}

// EncryptOnly は秘密鍵を除いた鍵素材を返す。
func EncryptOnly(m *domain.KeyMaterial) *domain.KeyMaterial {
	return &domain.KeyMaterial{
		AppID:          m.AppID,
		CertificatePEM: append([]byte(nil), m.CertificatePEM...),
	}
}

func clone(m *domain.KeyMaterial) *domain.KeyMaterial {
	return &domain.KeyMaterial{
		AppID:          m.AppID,
		CertificatePEM: append([]byte(nil), m.CertificatePEM...),
		PrivateKeyPEM:  append([]byte(nil), m.PrivateKeyPEM...),
	}
}
