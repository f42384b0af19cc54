package archive

import (
	"bytes"
	"fmt"
	"io"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/require"

	"data-upload-service/internal/domain"
	"data-upload-service/internal/testutil"
)

func newTestExtractor(t *testing.T, maxEntries int, maxEntrySize int64) *Extractor {
	t.Helper()
	x, err := NewExtractor(Limits{MaxEntries: maxEntries, MaxEntrySize: maxEntrySize})
	require.NoError(t, err)
	return x
}

func entries(n int) []domain.ArchiveEntry {
	out := make([]domain.ArchiveEntry, n)
	for i := range out {
		out[i] = domain.ArchiveEntry{Name: fmt.Sprintf("file-%03d.txt", i), Data: []byte("x")}
	}
	return out
}

func TestNewExtractor_RejectsNonPositiveLimits(t *testing.T) {
	_, err := NewExtractor(Limits{MaxEntries: 0, MaxEntrySize: 10})
	require.Error(t, err)

	_, err = NewExtractor(Limits{MaxEntries: 10, MaxEntrySize: 0})
	require.Error(t, err)
}

func TestExtract_SampleArchive(t *testing.T) {
	x := newTestExtractor(t, 10, 1024)

	files, err := x.Extract(testutil.SampleZip(t))
	require.NoError(t, err)
	require.Len(t, files, 3)
	for name, data := range files {
		require.NotEmpty(t, data, "entry %s should have content", name)
	}
	require.Equal(t, "This is my raw data", string(files["data/notes.txt"]))
}

func TestExtract_EntryCountBound(t *testing.T) {
	const maxEntries = 5
	x := newTestExtractor(t, maxEntries, 1024)

	t.Run("exactly max entries", func(t *testing.T) {
		files, err := x.Extract(testutil.Zip(t, entries(maxEntries)...))
		require.NoError(t, err)
		require.Len(t, files, maxEntries)
	})

	t.Run("one more than max", func(t *testing.T) {
		files, err := x.Extract(testutil.Zip(t, entries(maxEntries+1)...))
		require.ErrorIs(t, err, domain.ErrArchiveTooManyEntries)
		require.Nil(t, files)
	})
}

func TestExtract_EntryCountCheckedBeforeParsingDirectory(t *testing.T) {
	archive := testutil.Zip(t, entries(3)...)
	// 3件目のセントラルディレクトリのシグネチャを壊す
	idx := bytes.LastIndex(archive, []byte("PK\x01\x02"))
	require.Positive(t, idx)
	corrupted := bytes.Clone(archive)
	corrupted[idx+3] = 0xff

	for _, maxEntries := range []int{1, 2} {
		t.Run(fmt.Sprintf("max %d", maxEntries), func(t *testing.T) {
			x := newTestExtractor(t, maxEntries, 1024)
			files, err := x.Extract(corrupted)
			require.ErrorIs(t, err, domain.ErrArchiveTooManyEntries)
			require.Nil(t, files)
		})
	}

	// 上限内なら壊れたディレクトリは不正なアーカイブとして扱う
	_, err := newTestExtractor(t, 3, 1024).Extract(corrupted)
	require.ErrorIs(t, err, domain.ErrArchiveMalformed)
}

func TestExtract_EntrySizeBound(t *testing.T) {
	x := newTestExtractor(t, 10, 100)

	t.Run("exactly max size", func(t *testing.T) {
		files, err := x.Extract(testutil.Zip(t, domain.ArchiveEntry{Name: "a", Data: bytes.Repeat([]byte("a"), 100)}))
		require.NoError(t, err)
		require.Len(t, files["a"], 100)
	})

	t.Run("one byte over", func(t *testing.T) {
		files, err := x.Extract(testutil.Zip(t, domain.ArchiveEntry{Name: "a", Data: bytes.Repeat([]byte("a"), 101)}))
		require.ErrorIs(t, err, domain.ErrArchiveEntryTooLarge)
		require.Nil(t, files)
	})

	t.Run("later entry too large discards earlier entries", func(t *testing.T) {
		files, err := x.Extract(testutil.Zip(t,
			domain.ArchiveEntry{Name: "ok", Data: []byte("fine")},
			domain.ArchiveEntry{Name: "big", Data: bytes.Repeat([]byte("b"), 1000)},
		))
		require.ErrorIs(t, err, domain.ErrArchiveEntryTooLarge)
		require.Nil(t, files)
	})
}

func TestExtract_ZipBombWithUnderstatedSize(t *testing.T) {
	x := newTestExtractor(t, 10, 64*1024)

	// 展開後10MiBのエントリを、メタデータ上は10バイトと宣言する
	bomb := testutil.ZipBomb(t, "bomb.bin", 10<<20, 10)
	require.Less(t, len(bomb), 64*1024, "bomb should be much smaller than its expanded size")

	files, err := x.Extract(bomb)
	require.ErrorIs(t, err, domain.ErrArchiveEntryTooLarge)
	require.Nil(t, files)
}

func TestExtract_LastWriteWins(t *testing.T) {
	x := newTestExtractor(t, 10, 1024)

	files, err := x.Extract(testutil.Zip(t,
		domain.ArchiveEntry{Name: "dup.txt", Data: []byte("first")},
		domain.ArchiveEntry{Name: "dup.txt", Data: []byte("second")},
	))
	require.NoError(t, err)
	require.Len(t, files, 1)
	require.Equal(t, "second", string(files["dup.txt"]))
}

func TestExtract_DirectoriesCountButAreNotReturned(t *testing.T) {
	x := newTestExtractor(t, 2, 1024)

	archive := testutil.Zip(t,
		domain.ArchiveEntry{Name: "dir/"},
		domain.ArchiveEntry{Name: "dir/file.txt", Data: []byte("content")},
	)
	files, err := x.Extract(archive)
	require.NoError(t, err)
	require.Equal(t, map[string][]byte{"dir/file.txt": []byte("content")}, files)

	x = newTestExtractor(t, 1, 1024)
	_, err = x.Extract(archive)
	require.ErrorIs(t, err, domain.ErrArchiveTooManyEntries)
}

func TestExtract_StoredAndZstdEntries(t *testing.T) {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	w.RegisterCompressor(methodZstd, func(out io.Writer) (io.WriteCloser, error) {
		return zstd.NewWriter(out)
	})

	stored, err := w.CreateHeader(&zip.FileHeader{Name: "stored.txt", Method: zip.Store})
	require.NoError(t, err)
	_, err = stored.Write([]byte("stored content"))
	require.NoError(t, err)

	zs, err := w.CreateHeader(&zip.FileHeader{Name: "zstd.txt", Method: methodZstd})
	require.NoError(t, err)
	_, err = zs.Write(bytes.Repeat([]byte("zstd "), 20))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	x := newTestExtractor(t, 10, 1024)
	files, err := x.Extract(buf.Bytes())
	require.NoError(t, err)
	require.Equal(t, "stored content", string(files["stored.txt"]))
	require.Equal(t, bytes.Repeat([]byte("zstd "), 20), files["zstd.txt"])
}

func TestExtract_Malformed(t *testing.T) {
	x := newTestExtractor(t, 10, 1024)

	_, err := x.Extract([]byte("this is not a zip archive"))
	require.ErrorIs(t, err, domain.ErrArchiveMalformed)

	_, err = x.Extract(nil)
	require.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestExtract_ChecksumMismatch(t *testing.T) {
	x := newTestExtractor(t, 10, 1024)

	archive := testutil.Zip(t, domain.ArchiveEntry{Name: "a.txt", Data: []byte("stored")})
	// セントラルディレクトリのCRCを改ざんする（展開結果とは一致しなくなる）
	zr, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	require.NoError(t, err)
	crc := zr.File[0].CRC32
	tampered := bytes.Replace(archive, le32(crc), le32(crc^0xffffffff), -1)

	_, err = x.Extract(tampered)
	require.ErrorIs(t, err, domain.ErrArchiveMalformed)
}

func le32(v uint32) []byte {
	return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
}

func TestEntries_SortedByName(t *testing.T) {
	got := Entries(map[string][]byte{"b": []byte("2"), "a": []byte("1")})
	require.Equal(t, []domain.ArchiveEntry{
		{Name: "a", Data: []byte("1")},
		{Name: "b", Data: []byte("2")},
	}, got)
}
