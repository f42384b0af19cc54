package domain

import "time"

// MigrationStatus はマイグレーションの適用状態を表す
type MigrationStatus string

const (
	MigrationStatusPending MigrationStatus = "pending"
	MigrationStatusApplied MigrationStatus = "applied"
)

// Migration は鍵ストアのスキーマ変更1件を表すドメインモデル
type Migration struct {
	Version   string          // 例: "001"
	Name      string          // ファイル名から抽出した名前
	Source    string          // 埋め込みFS上のパス
	AppliedAt *time.Time      // 未適用の場合はnil
	Status    MigrationStatus
}

// IsApplied は適用済みかどうかを返す。
func (m *Migration) IsApplied() bool {
	return m.Status == MigrationStatusApplied
}
