// Package handler はHTTPハンドラを提供する。
package handler

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"

	"github.com/go-chi/chi/v5"

	"data-upload-service/internal/archive"
	"data-upload-service/internal/domain"
	"data-upload-service/internal/middleware"
	"data-upload-service/internal/usecase"
	"data-upload-service/pkg/httputil"
)

var appIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

// 監査ログの操作名。
const (
	opEncrypt      = "ENCRYPT"
	opDecrypt      = "DECRYPT"
	opDecryptUnzip = "DECRYPT_UNZIP"
	opUnzip        = "UNZIP"
)

// ArchiveHandler はアップロードデータの暗号化・復号・展開のHTTPハンドラを提供する。
type ArchiveHandler struct {
	service *usecase.ArchiveService
}

// NewArchiveHandler は新しいArchiveHandlerを生成する。
func NewArchiveHandler(service *usecase.ArchiveService) *ArchiveHandler {
	return &ArchiveHandler{service: service}
}

func validateAppID(appID string) error {
	if !appIDRegex.MatchString(appID) {
		return fmt.Errorf("%w: invalid app id format", domain.ErrInvalidInput)
	}
	return nil
}

// EntryResponse は展開したエントリのレスポンス形式。Data はbase64でエンコードされる。
type EntryResponse struct {
	Name string `json:"name"`
	Size int    `json:"size"`
	Data []byte `json:"data"`
}

// UnzipResponse は展開結果のレスポンス形式。
type UnzipResponse struct {
	Entries []EntryResponse `json:"entries"`
}

func newUnzipResponse(files map[string][]byte) UnzipResponse {
	entries := archive.Entries(files)
	resp := UnzipResponse{Entries: make([]EntryResponse, len(entries))}
	for i, e := range entries {
		resp.Entries[i] = EntryResponse{
			Name: e.Name,
			Size: len(e.Data),
			Data: e.Data,
		}
	}
	return resp
}

// Encrypt はリクエストボディをアプリの証明書で暗号化し、DERを返す。
func (h *ArchiveHandler) Encrypt(w http.ResponseWriter, r *http.Request) {
	appID := chi.URLParam(r, "app_id")
	if err := validateAppID(appID); err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_APP_ID", "invalid app ID format")
		return
	}

	body, ok := readBody(w, r, opEncrypt, appID)
	if !ok {
		return
	}

	ciphertext, err := h.service.Encrypt(r.Context(), appID, body)
	if err != nil {
		middleware.WriteAuditLog(r.Context(), opEncrypt, appID, len(body), middleware.ResultFailed)
		writeError(w, r, err)
		return
	}

	middleware.WriteAuditLog(r.Context(), opEncrypt, appID, len(body), middleware.ResultSuccess)
	httputil.Binary(w, http.StatusOK, ciphertext)
}

// Decrypt はリクエストボディの暗号文を復号し、平文を返す。
func (h *ArchiveHandler) Decrypt(w http.ResponseWriter, r *http.Request) {
	appID := chi.URLParam(r, "app_id")
	if err := validateAppID(appID); err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_APP_ID", "invalid app ID format")
		return
	}

	body, ok := readBody(w, r, opDecrypt, appID)
	if !ok {
		return
	}

	plaintext, err := h.service.Decrypt(r.Context(), appID, body)
	if err != nil {
		middleware.WriteAuditLog(r.Context(), opDecrypt, appID, len(body), middleware.ResultFailed)
		writeError(w, r, err)
		return
	}

	middleware.WriteAuditLog(r.Context(), opDecrypt, appID, len(body), middleware.ResultSuccess)
	httputil.Binary(w, http.StatusOK, plaintext)
}

// DecryptAndUnzip はリクエストボディの暗号文を復号し、ZIPとして展開した結果を返す。
func (h *ArchiveHandler) DecryptAndUnzip(w http.ResponseWriter, r *http.Request) {
	appID := chi.URLParam(r, "app_id")
	if err := validateAppID(appID); err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_APP_ID", "invalid app ID format")
		return
	}

	body, ok := readBody(w, r, opDecryptUnzip, appID)
	if !ok {
		return
	}

	files, err := h.service.DecryptAndUnzip(r.Context(), appID, body)
	if err != nil {
		middleware.WriteAuditLog(r.Context(), opDecryptUnzip, appID, len(body), middleware.ResultFailed)
		writeError(w, r, err)
		return
	}

	middleware.WriteAuditLog(r.Context(), opDecryptUnzip, appID, len(body), middleware.ResultSuccess)
	httputil.JSON(w, http.StatusOK, newUnzipResponse(files))
}

// Unzip はリクエストボディの平文ZIPを展開した結果を返す。
func (h *ArchiveHandler) Unzip(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r, opUnzip, "")
	if !ok {
		return
	}

	files, err := h.service.Unzip(r.Context(), body)
	if err != nil {
		middleware.WriteAuditLog(r.Context(), opUnzip, "", len(body), middleware.ResultFailed)
		writeError(w, r, err)
		return
	}

	middleware.WriteAuditLog(r.Context(), opUnzip, "", len(body), middleware.ResultSuccess)
	httputil.JSON(w, http.StatusOK, newUnzipResponse(files))
}

// readBody はリクエストボディを読み込む。失敗時はエラーレスポンスを書き込み false を返す。
func readBody(w http.ResponseWriter, r *http.Request, operation, appID string) ([]byte, bool) {
	body, err := io.ReadAll(r.Body)
	if err == nil {
		return body, true
	}

	middleware.WriteAuditLog(r.Context(), operation, appID, len(body), middleware.ResultFailed)
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		httputil.Error(w, http.StatusRequestEntityTooLarge, "REQUEST_TOO_LARGE",
			fmt.Sprintf("request body exceeds %d bytes", maxErr.Limit))
		return nil, false
	}
	slog.WarnContext(r.Context(), "failed to read request body",
		"operation", operation,
		"app_id", appID,
		"error", err,
	)
	httputil.Error(w, http.StatusBadRequest, "INVALID_BODY", "failed to read request body")
	return nil, false
}

// writeError はドメインエラーをHTTPステータスに変換して返す。
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		httputil.Error(w, http.StatusBadRequest, "INVALID_INPUT", "invalid input")
	case errors.Is(err, domain.ErrTenantKeyNotFound):
		httputil.Error(w, http.StatusNotFound, "TENANT_KEY_NOT_FOUND", "no key material for this app")
	case errors.Is(err, domain.ErrInvalidKeyMaterial):
		httputil.Error(w, http.StatusInternalServerError, "INVALID_KEY_MATERIAL", "key material for this app is invalid")
	case errors.Is(err, domain.ErrDecryptionFailed):
		httputil.Error(w, http.StatusUnprocessableEntity, "DECRYPTION_FAILED", "decryption failed")
	case errors.Is(err, domain.ErrArchiveTooManyEntries):
		httputil.Error(w, http.StatusRequestEntityTooLarge, "ARCHIVE_TOO_MANY_ENTRIES", "archive has too many entries")
	case errors.Is(err, domain.ErrArchiveEntryTooLarge):
		httputil.Error(w, http.StatusRequestEntityTooLarge, "ARCHIVE_ENTRY_TOO_LARGE", "archive entry exceeds the size limit")
	case errors.Is(err, domain.ErrArchiveMalformed):
		httputil.Error(w, http.StatusBadRequest, "ARCHIVE_MALFORMED", "archive is malformed")
	default:
		slog.ErrorContext(r.Context(), "unexpected error",
			"path", r.URL.Path,
			"error", err,
		)
		httputil.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
	}
}
