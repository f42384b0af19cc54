package domain

import "errors"

var (
	// ErrInvalidInput はアプリIDやペイロードが空・nilなど呼び出し側の入力が不正な場合のエラー。
	ErrInvalidInput = errors.New("invalid input")

	// ErrTenantKeyNotFound は指定されたアプリの鍵素材がプロビジョニングされていない場合のエラー。
	ErrTenantKeyNotFound = errors.New("tenant key not found")

	// ErrTenantKeyExists は有効な鍵素材が登録済みのアプリに新しい鍵素材を登録しようとした場合のエラー。
	ErrTenantKeyExists = errors.New("active tenant key already exists")

	// ErrInvalidKeyMaterial は証明書・秘密鍵のPEMが解析できない、または鍵ペアが一致しない場合のエラー。
	ErrInvalidKeyMaterial = errors.New("invalid key material")

	// ErrMalformedCiphertext は暗号文がCMS EnvelopedDataとして解析できない場合のエラー。
	ErrMalformedCiphertext = errors.New("malformed ciphertext")

	// ErrKeyMismatch は暗号文が別の受信者鍵向けに生成されている場合のエラー。
	ErrKeyMismatch = errors.New("ciphertext was not encrypted for this key")

	// ErrDecryptNotSupported は秘密鍵を持たない暗号化専用のEncryptorで復号しようとした場合のエラー。
	ErrDecryptNotSupported = errors.New("decryption not supported: no private key loaded")

	// ErrDecryptionFailed は呼び出し側に返す復号失敗の統一エラー。詳細な原因はログにのみ出力する。
	ErrDecryptionFailed = errors.New("decryption failed")

	// ErrArchiveTooManyEntries はアーカイブのエントリ数が上限を超えた場合のエラー。
	ErrArchiveTooManyEntries = errors.New("archive has too many entries")

	// ErrArchiveEntryTooLarge は展開後のエントリサイズが上限を超えた場合のエラー。
	ErrArchiveEntryTooLarge = errors.New("archive entry too large")

	// ErrArchiveMalformed はZIPとして解析できない、または未対応の圧縮方式・CRC不一致の場合のエラー。
	ErrArchiveMalformed = errors.New("malformed archive")

	// ErrMigrationFailed はマイグレーション実行時のエラー。
	ErrMigrationFailed = errors.New("migration failed")

	// ErrInvalidMigrationFile はマイグレーションファイルのフォーマットが不正な場合のエラー。
	ErrInvalidMigrationFile = errors.New("invalid migration file")
)
