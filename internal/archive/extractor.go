// Package archive はZIPアーカイブの上限付き展開を提供する。
//
// 展開サイズはアーカイブ内の宣言値を一切信用せず、実際に伸長されたバイト数で判定する。
// エントリ数と各エントリの展開後サイズに上限を設けることで、zip bombによる
// メモリ・CPU枯渇を防ぐ。全エントリの合計サイズには上限を設けない。
package archive

import (
	"bytes"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"sort"
	"strings"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"

	"data-upload-service/internal/domain"
	"data-upload-service/internal/metrics"
)

// methodZstd はAPPNOTE 6.3.7で割り当てられたZstandardの圧縮方式ID。
const methodZstd uint16 = 93

// Limits は展開時の上限を表す。
type Limits struct {
	// MaxEntries はアーカイブに含められる最大エントリ数。
	MaxEntries int
	// MaxEntrySize は1エントリあたりの展開後最大バイト数。
	MaxEntrySize int64
}

// Extractor は上限付きでZIPアーカイブを展開する。
type Extractor struct {
	limits Limits
}

// NewExtractor は新しいExtractorを生成する。上限はいずれも正の値でなければならない。
func NewExtractor(limits Limits) (*Extractor, error) {
	if limits.MaxEntries <= 0 {
		return nil, fmt.Errorf("max entries must be positive, got %d", limits.MaxEntries)
	}
	if limits.MaxEntrySize <= 0 {
		return nil, fmt.Errorf("max entry size must be positive, got %d", limits.MaxEntrySize)
	}
	return &Extractor{limits: limits}, nil
}

// Limits は設定された上限を返す。
func (x *Extractor) Limits() Limits {
	return x.limits
}

// Extract はZIPアーカイブを展開し、エントリ名から内容へのマップを返す。
// 同名のエントリは後のものが優先される。上限超過や破損を検出した時点で中断し、
// 部分的な結果は返さない。
func (x *Extractor) Extract(data []byte) (map[string][]byte, error) {
	if data == nil {
		return nil, fmt.Errorf("%w: archive data cannot be nil", domain.ErrInvalidInput)
	}

	// 全エントリのヘッダを解析する前に、終端レコードの件数で上限を判定する
	if n, ok := declaredEntryCount(data); ok && n > uint64(x.limits.MaxEntries) {
		return nil, x.tooManyEntries()
	}

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		metrics.ArchiveRejectionsTotal.WithLabelValues("malformed").Inc()
		return nil, fmt.Errorf("%w: %v", domain.ErrArchiveMalformed, err)
	}

	result := make(map[string][]byte)
	count := 0
	for _, f := range zr.File {
		count++
		if count > x.limits.MaxEntries {
			return nil, x.tooManyEntries()
		}

		if strings.HasSuffix(f.Name, "/") {
			continue
		}

		content, err := x.readEntry(f)
		if err != nil {
			switch {
			case errors.Is(err, domain.ErrArchiveEntryTooLarge):
				metrics.ArchiveRejectionsTotal.WithLabelValues("entry_too_large").Inc()
			default:
				metrics.ArchiveRejectionsTotal.WithLabelValues("malformed").Inc()
			}
			return nil, err
		}
		result[f.Name] = content
	}

	return result, nil
}

func (x *Extractor) tooManyEntries() error {
	metrics.ArchiveRejectionsTotal.WithLabelValues("too_many_entries").Inc()
	return fmt.Errorf("%w: more than %d entries", domain.ErrArchiveTooManyEntries, x.limits.MaxEntries)
}

// readEntry は圧縮データを自前で伸長し、生成されたバイト数で上限を判定する。
// 標準のOpenは宣言サイズに依存するため使わない。
func (x *Extractor) readEntry(f *zip.File) ([]byte, error) {
	raw, err := f.OpenRaw()
	if err != nil {
		return nil, fmt.Errorf("%w: opening entry %q: %v", domain.ErrArchiveMalformed, f.Name, err)
	}

	rc, err := decompressor(f.Method, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: entry %q: %v", domain.ErrArchiveMalformed, f.Name, err)
	}
	defer rc.Close()

	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(rc, x.limits.MaxEntrySize+1))
	if n > x.limits.MaxEntrySize {
		return nil, fmt.Errorf("%w: entry %q exceeds %d bytes", domain.ErrArchiveEntryTooLarge, f.Name, x.limits.MaxEntrySize)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: decompressing entry %q: %v", domain.ErrArchiveMalformed, f.Name, err)
	}

	if sum := crc32.ChecksumIEEE(buf.Bytes()); f.CRC32 != 0 && sum != f.CRC32 {
		return nil, fmt.Errorf("%w: entry %q checksum mismatch", domain.ErrArchiveMalformed, f.Name)
	}
	return buf.Bytes(), nil
}

func decompressor(method uint16, r io.Reader) (io.ReadCloser, error) {
	switch method {
	case zip.Store:
		return io.NopCloser(r), nil
	case zip.Deflate:
		return flate.NewReader(r), nil
	case methodZstd:
		// ウィンドウサイズを制限し、ヘッダで巨大なバッファを要求されても確保しない
		dec, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1), zstd.WithDecoderMaxWindow(16<<20))
		if err != nil {
			return nil, err
		}
		return dec.IOReadCloser(), nil
	default:
		return nil, fmt.Errorf("unsupported compression method %d", method)
	}
}

// Entries は展開結果を名前順のエントリ一覧に変換する。
func Entries(files map[string][]byte) []domain.ArchiveEntry {
	entries := make([]domain.ArchiveEntry, 0, len(files))
	for name, data := range files {
		entries = append(entries, domain.ArchiveEntry{Name: name, Data: data})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name < entries[j].Name
	})
	return entries
}
