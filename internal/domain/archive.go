package domain

// ArchiveEntry はアーカイブから取り出したエントリを表す。
type ArchiveEntry struct {
	Name string
	Data []byte
}
