package usecase

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"data-upload-service/internal/archive"
	"data-upload-service/internal/domain"
	"data-upload-service/internal/testutil"
)

func newTestArchiveService(t *testing.T, src KeyMaterialSource) *ArchiveService {
	t.Helper()
	x, err := archive.NewExtractor(archive.Limits{MaxEntries: 10, MaxEntrySize: 1 << 20})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return NewArchiveService(NewEncryptorCache(src), x)
}

func TestArchiveService_EncryptDecrypt_RoundTrip(t *testing.T) {
	svc := newTestArchiveService(t, newFakeSource(t, "test-app"))
	ctx := context.Background()

	for _, payload := range [][]byte{
		[]byte("This is my raw data"),
		{},
		bytes.Repeat([]byte{0xAB}, 64*1024),
	} {
		ciphertext, err := svc.Encrypt(ctx, "test-app", payload)
		if err != nil {
			t.Fatalf("unexpected encrypt error: %v", err)
		}
		if len(payload) > 0 && bytes.Contains(ciphertext, payload) {
			t.Error("ciphertext must not contain the plaintext")
		}

		plaintext, err := svc.Decrypt(ctx, "test-app", ciphertext)
		if err != nil {
			t.Fatalf("unexpected decrypt error: %v", err)
		}
		if !bytes.Equal(plaintext, payload) {
			t.Errorf("round trip mismatch: want %d bytes, got %d bytes", len(payload), len(plaintext))
		}
	}
}

func TestArchiveService_EndToEnd(t *testing.T) {
	svc := newTestArchiveService(t, newFakeSource(t, "test-app"))
	ctx := context.Background()

	ciphertext, err := svc.Encrypt(ctx, "test-app", []byte("This is my raw data"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	plaintext, err := svc.Decrypt(ctx, "test-app", ciphertext)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(plaintext) != "This is my raw data" {
		t.Errorf("want %q, got %q", "This is my raw data", plaintext)
	}

	files, err := svc.Unzip(ctx, testutil.SampleZip(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(files) != 3 {
		t.Errorf("want 3 entries, got %d", len(files))
	}
	for name, data := range files {
		if len(data) == 0 {
			t.Errorf("entry %s is empty", name)
		}
	}
}

func TestArchiveService_DecryptAndUnzip(t *testing.T) {
	svc := newTestArchiveService(t, newFakeSource(t, "test-app"))
	ctx := context.Background()

	ciphertext, err := svc.Encrypt(ctx, "test-app", testutil.SampleZip(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	files, err := svc.DecryptAndUnzip(ctx, "test-app", ciphertext)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(files["data/notes.txt"]) != "This is my raw data" {
		t.Errorf("unexpected notes content: %q", files["data/notes.txt"])
	}
}

func TestArchiveService_Decrypt_CrossTenantFails(t *testing.T) {
	svc := newTestArchiveService(t, newFakeSource(t, "app-1", "app-2"))
	ctx := context.Background()

	ciphertext, err := svc.Encrypt(ctx, "app-1", []byte("secret"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = svc.Decrypt(ctx, "app-2", ciphertext)
	if !errors.Is(err, domain.ErrDecryptionFailed) {
		t.Errorf("want ErrDecryptionFailed, got %v", err)
	}
	if errors.Is(err, domain.ErrKeyMismatch) {
		t.Error("specific cause must not be exposed to the caller")
	}
}

func TestArchiveService_Decrypt_MalformedCiphertext(t *testing.T) {
	svc := newTestArchiveService(t, newFakeSource(t, "test-app"))

	for _, ciphertext := range [][]byte{
		{},
		[]byte("definitely not DER"),
		{0x30, 0x82, 0x01},
	} {
		_, err := svc.Decrypt(context.Background(), "test-app", ciphertext)
		if !errors.Is(err, domain.ErrDecryptionFailed) {
			t.Errorf("ciphertext %x: want ErrDecryptionFailed, got %v", ciphertext, err)
		}
	}
}

func TestArchiveService_Decrypt_TamperedCiphertext(t *testing.T) {
	svc := newTestArchiveService(t, newFakeSource(t, "test-app"))
	ctx := context.Background()

	ciphertext, err := svc.Encrypt(ctx, "test-app", []byte("This is my raw data"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// 1ブロック目の末尾を反転させ、復号後のパディング長を本文より長い値にする
	tampered := bytes.Clone(ciphertext)
	tampered[len(tampered)-17] ^= 0xff

	plaintext, err := svc.Decrypt(ctx, "test-app", tampered)
	if !errors.Is(err, domain.ErrDecryptionFailed) {
		t.Errorf("want ErrDecryptionFailed, got %v", err)
	}
	if plaintext != nil {
		t.Error("plaintext must be nil on failure")
	}

	// 末尾のどのバイトを書き換えてもpanicせず、失敗時は DecryptionFailed になる
	for i := 1; i <= 32; i++ {
		tampered := bytes.Clone(ciphertext)
		tampered[len(tampered)-i] ^= 0xff
		if _, err := svc.Decrypt(ctx, "test-app", tampered); err != nil && !errors.Is(err, domain.ErrDecryptionFailed) {
			t.Errorf("offset -%d: want ErrDecryptionFailed, got %v", i, err)
		}
	}
}

func TestArchiveService_Decrypt_EncryptOnlyKey(t *testing.T) {
	src := &fakeKeyMaterialSource{materials: map[string]*domain.KeyMaterial{
		"test-app": testutil.EncryptOnly(testutil.KeyMaterial(t, "test-app")),
	}}
	svc := newTestArchiveService(t, src)
	ctx := context.Background()

	ciphertext, err := svc.Encrypt(ctx, "test-app", []byte("data"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err = svc.Decrypt(ctx, "test-app", ciphertext)
	if !errors.Is(err, domain.ErrDecryptionFailed) {
		t.Errorf("want ErrDecryptionFailed, got %v", err)
	}
}

func TestArchiveService_InvalidInput(t *testing.T) {
	src := newFakeSource(t, "test-app")
	svc := newTestArchiveService(t, src)
	ctx := context.Background()

	tests := []struct {
		name string
		call func() error
	}{
		{"encrypt blank app", func() error { _, err := svc.Encrypt(ctx, " ", []byte("x")); return err }},
		{"encrypt nil payload", func() error { _, err := svc.Encrypt(ctx, "test-app", nil); return err }},
		{"decrypt blank app", func() error { _, err := svc.Decrypt(ctx, "", []byte("x")); return err }},
		{"decrypt nil payload", func() error { _, err := svc.Decrypt(ctx, "test-app", nil); return err }},
		{"unzip nil archive", func() error { _, err := svc.Unzip(ctx, nil); return err }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.call(); !errors.Is(err, domain.ErrInvalidInput) {
				t.Errorf("want ErrInvalidInput, got %v", err)
			}
		})
	}
	if got := src.loads.Load(); got != 0 {
		t.Errorf("want no key loads for invalid input, got %d", got)
	}
}

func TestArchiveService_UnknownApp(t *testing.T) {
	svc := newTestArchiveService(t, newFakeSource(t))

	_, err := svc.Encrypt(context.Background(), "unknown", []byte("x"))
	if !errors.Is(err, domain.ErrTenantKeyNotFound) {
		t.Errorf("want ErrTenantKeyNotFound, got %v", err)
	}
	_, err = svc.Decrypt(context.Background(), "unknown", []byte("x"))
	if !errors.Is(err, domain.ErrTenantKeyNotFound) {
		t.Errorf("want ErrTenantKeyNotFound, got %v", err)
	}
}

func TestArchiveService_Unzip_Limits(t *testing.T) {
	x, err := archive.NewExtractor(archive.Limits{MaxEntries: 2, MaxEntrySize: 64})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	svc := NewArchiveService(NewEncryptorCache(newFakeSource(t)), x)

	_, err = svc.Unzip(context.Background(), testutil.SampleZip(t))
	if !errors.Is(err, domain.ErrArchiveTooManyEntries) {
		t.Errorf("want ErrArchiveTooManyEntries, got %v", err)
	}

	_, err = svc.Unzip(context.Background(), testutil.ZipBomb(t, "bomb.bin", 1<<20, 8))
	if !errors.Is(err, domain.ErrArchiveEntryTooLarge) {
		t.Errorf("want ErrArchiveEntryTooLarge, got %v", err)
	}
}
