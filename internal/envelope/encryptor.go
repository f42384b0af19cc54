package envelope

import (
	"bytes"
	"crypto/rsa"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/smallstep/pkcs7"

	"data-upload-service/internal/domain"
)

var algorithmOnce sync.Once

// useAES256CBC はpkcs7のコンテンツ暗号化方式をAES-256-CBCへ切り替える。
// pkcs7のデフォルトはDES-CBCで、設定はプロセス全体に効く。
func useAES256CBC() {
	algorithmOnce.Do(func() {
		pkcs7.ContentEncryptionAlgorithm = pkcs7.EncryptionAlgorithmAES256CBC
	})
}

// Encryptor は1つのアプリの鍵ペアに束縛されたCMSエンベロープ暗号化を提供する。
// 生成後は不変で、複数goroutineから同時に利用できる。
type Encryptor struct {
	appID      string
	cert       *x509.Certificate
	privateKey *rsa.PrivateKey // nilの場合は暗号化専用
}

// NewEncryptor は鍵素材からEncryptorを生成する。
// 秘密鍵が含まれない場合は暗号化専用のEncryptorとなる。
func NewEncryptor(material *domain.KeyMaterial) (*Encryptor, error) {
	if material == nil {
		return nil, fmt.Errorf("%w: key material cannot be nil", domain.ErrInvalidKeyMaterial)
	}
	useAES256CBC()

	cert, err := ParseCertificatePEM(material.CertificatePEM)
	if err != nil {
		return nil, err
	}

	enc := &Encryptor{
		appID: material.AppID,
		cert:  cert,
	}
	if !material.HasPrivateKey() {
		return enc, nil
	}

	key, err := ParsePrivateKeyPEM(material.PrivateKeyPEM)
	if err != nil {
		return nil, err
	}
	if err := matchKeyPair(cert, key); err != nil {
		return nil, err
	}
	enc.privateKey = key
	return enc, nil
}

// AppID は束縛されたアプリIDを返す。
func (e *Encryptor) AppID() string {
	return e.appID
}

// CanDecrypt は秘密鍵を保持し復号可能かどうかを返す。
func (e *Encryptor) CanDecrypt() bool {
	return e.privateKey != nil
}

// Certificate は受信者証明書の複製を返す。呼び出し側が変更してもEncryptorには影響しない。
func (e *Encryptor) Certificate() *x509.Certificate {
	cert, err := x509.ParseCertificate(bytes.Clone(e.cert.Raw))
	if err != nil {
		// 生成時に一度パースできたDERのため到達しない
		panic(fmt.Sprintf("envelope: re-parsing certificate: %v", err))
	}
	return cert
}

// Encrypt は平文をCMS EnvelopedDataとして暗号化する。長さ0の平文も受け付ける。
func (e *Encryptor) Encrypt(plaintext []byte) ([]byte, error) {
	if plaintext == nil {
		return nil, fmt.Errorf("%w: plaintext cannot be nil", domain.ErrInvalidInput)
	}

	der, err := pkcs7.Encrypt(plaintext, []*x509.Certificate{e.cert})
	if err != nil {
		return nil, fmt.Errorf("encrypting enveloped data: %w", err)
	}
	return der, nil
}

// Decrypt はCMS EnvelopedDataを復号する。失敗時に部分的な平文は返さない。
func (e *Encryptor) Decrypt(ciphertext []byte) ([]byte, error) {
	if ciphertext == nil {
		return nil, fmt.Errorf("%w: ciphertext cannot be nil", domain.ErrInvalidInput)
	}
	if !e.CanDecrypt() {
		return nil, domain.ErrDecryptNotSupported
	}

	p7, err := pkcs7.Parse(ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedCiphertext, err)
	}

	plaintext, err := decryptContent(p7, e.cert, e.privateKey)
	if err != nil {
		if errors.Is(err, domain.ErrMalformedCiphertext) {
			return nil, err
		}
		if errors.Is(err, pkcs7.ErrNotEncryptedContent) || errors.Is(err, pkcs7.ErrUnsupportedAlgorithm) {
			return nil, fmt.Errorf("%w: %v", domain.ErrMalformedCiphertext, err)
		}
		// 受信者が見つからない、またはコンテンツ鍵のアンラップに失敗した
		return nil, fmt.Errorf("%w: %v", domain.ErrKeyMismatch, err)
	}
	if plaintext == nil {
		plaintext = []byte{}
	}
	return plaintext, nil
}

// decryptContent はpkcs7の復号を呼び出す。改ざんされたパディング長でpkcs7内部が
// panicするため、recoverして不正な暗号文として扱う。
func decryptContent(p7 *pkcs7.PKCS7, cert *x509.Certificate, key *rsa.PrivateKey) (plaintext []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			plaintext = nil
			err = fmt.Errorf("%w: corrupted encrypted content: %v", domain.ErrMalformedCiphertext, r)
		}
	}()
	return p7.Decrypt(cert, key)
}

// DecryptReader はストリームから暗号文を読み込んで復号する。
// 読み込みエラーは暗号エラーとは区別してそのまま返す。
func (e *Encryptor) DecryptReader(r io.Reader) ([]byte, error) {
	if r == nil {
		return nil, fmt.Errorf("%w: ciphertext reader cannot be nil", domain.ErrInvalidInput)
	}
	ciphertext, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading ciphertext: %w", err)
	}
	return e.Decrypt(ciphertext)
}
