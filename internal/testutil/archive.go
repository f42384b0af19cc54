package testutil

import (
	"bytes"
	"hash/crc32"
	"testing"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"

	"data-upload-service/internal/domain"
)

// Zip は指定されたエントリを順番通りにDeflate圧縮したZIPを生成する。
func Zip(t testing.TB, entries ...domain.ArchiveEntry) []byte {
	t.Helper()

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for _, e := range entries {
		f, err := w.CreateHeader(&zip.FileHeader{Name: e.Name, Method: zip.Deflate})
		if err != nil {
			t.Fatalf("failed to create zip entry %q: %v", e.Name, err)
		}
		if _, err := f.Write(e.Data); err != nil {
			t.Fatalf("failed to write zip entry %q: %v", e.Name, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("failed to close zip writer: %v", err)
	}
	return buf.Bytes()
}

// SampleZip は内容を持つ3エントリのZIPを返す。
func SampleZip(t testing.TB) []byte {
	t.Helper()
	return Zip(t,
		domain.ArchiveEntry{Name: "manifest.json", Data: []byte(`{"app":"test-app","files":2}`)},
		domain.ArchiveEntry{Name: "data/records.csv", Data: []byte("id,value\n1,alpha\n2,beta\n")},
		domain.ArchiveEntry{Name: "data/notes.txt", Data: []byte("This is my raw data")},
	)
}

// ZipBomb は展開後サイズが actualSize バイトのエントリを1つ持つZIPを生成する。
// セントラルディレクトリ上の展開後サイズには declaredSize を記録するため、
// メタデータを信用する実装は実際のサイズを過小評価する。
func ZipBomb(t testing.TB, name string, actualSize int, declaredSize uint64) []byte {
	t.Helper()

	content := bytes.Repeat([]byte{0}, actualSize)

	var compressed bytes.Buffer
	fw, err := flate.NewWriter(&compressed, flate.BestCompression)
	if err != nil {
		t.Fatalf("failed to create flate writer: %v", err)
	}
	if _, err := fw.Write(content); err != nil {
		t.Fatalf("failed to compress content: %v", err)
	}
	if err := fw.Close(); err != nil {
		t.Fatalf("failed to close flate writer: %v", err)
	}

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	f, err := w.CreateRaw(&zip.FileHeader{
		Name:               name,
		Method:             zip.Deflate,
		CRC32:              crc32.ChecksumIEEE(content),
		CompressedSize64:   uint64(compressed.Len()),
		UncompressedSize64: declaredSize,
	})
	if err != nil {
		t.Fatalf("failed to create raw zip entry: %v", err)
	}
	if _, err := f.Write(compressed.Bytes()); err != nil {
		t.Fatalf("failed to write raw zip entry: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("failed to close zip writer: %v", err)
	}
	return buf.Bytes()
}
