// Package migrations は鍵ストアのスキーマ定義SQLを埋め込む。
package migrations

import "embed"

// FS は {version}_{name}.sql 形式のマイグレーションファイルを保持する。
//
//go:embed *.sql
var FS embed.FS
