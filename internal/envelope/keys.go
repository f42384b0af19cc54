package envelope

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"

	"data-upload-service/internal/domain"
)

// minRSAKeySize はRSA鍵の最小ビット長。
const minRSAKeySize = 2048

// ParseCertificatePEM はPEM形式のX.509証明書を解析し、RSA公開鍵を持つことを確認する。
func ParseCertificatePEM(pemBytes []byte) (*x509.Certificate, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("%w: failed to decode certificate PEM block", domain.ErrInvalidKeyMaterial)
	}
	if block.Type != "CERTIFICATE" {
		return nil, fmt.Errorf("%w: unsupported PEM block type %q (expected CERTIFICATE)", domain.ErrInvalidKeyMaterial, block.Type)
	}

	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing certificate: %v", domain.ErrInvalidKeyMaterial, err)
	}

	pub, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: certificate key is not RSA, got %T", domain.ErrInvalidKeyMaterial, cert.PublicKey)
	}
	if bits := pub.N.BitLen(); bits < minRSAKeySize {
		return nil, fmt.Errorf("%w: RSA key size must be at least %d bits, got %d bits", domain.ErrInvalidKeyMaterial, minRSAKeySize, bits)
	}
	return cert, nil
}

// ParsePrivateKeyPEM はPEM形式のRSA秘密鍵を解析する。
// PKCS#1（RSA PRIVATE KEY）とPKCS#8（PRIVATE KEY）に対応する。
func ParsePrivateKeyPEM(pemBytes []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("%w: failed to decode private key PEM block", domain.ErrInvalidKeyMaterial)
	}

	switch block.Type {
	case "RSA PRIVATE KEY":
		key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: parsing PKCS1 private key: %v", domain.ErrInvalidKeyMaterial, err)
		}
		return key, nil
	case "PRIVATE KEY":
		parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: parsing PKCS8 private key: %v", domain.ErrInvalidKeyMaterial, err)
		}
		key, ok := parsed.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("%w: private key is not RSA, got %T", domain.ErrInvalidKeyMaterial, parsed)
		}
		return key, nil
	default:
		return nil, fmt.Errorf("%w: unsupported PEM block type %q (expected RSA PRIVATE KEY or PRIVATE KEY)", domain.ErrInvalidKeyMaterial, block.Type)
	}
}

// matchKeyPair は秘密鍵が証明書の公開鍵に対応することを確認する。
func matchKeyPair(cert *x509.Certificate, key *rsa.PrivateKey) error {
	pub := cert.PublicKey.(*rsa.PublicKey)
	if pub.N.Cmp(key.N) != 0 || pub.E != key.E {
		return fmt.Errorf("%w: private key does not match certificate public key", domain.ErrInvalidKeyMaterial)
	}
	if err := key.Validate(); err != nil {
		return fmt.Errorf("%w: validating private key: %v", domain.ErrInvalidKeyMaterial, err)
	}
	return nil
}
