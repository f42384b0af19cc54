// Package main はAPIサーバーのエントリポイント。
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"data-upload-service/config"
	"data-upload-service/internal/archive"
	"data-upload-service/internal/handler"
	"data-upload-service/internal/infra"
	"data-upload-service/internal/repository"
	"data-upload-service/internal/usecase"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

// run はサーバーを起動し、停止するまでブロックする。
// deferした後始末を確実に実行するため、os.Exitはmainでのみ呼ぶ。
func run() error {
	ctx := context.Background()

	// .envファイルを読み込む（存在しない場合は無視）
	// 既存の環境変数は上書きしない
	_ = godotenv.Load()

	// 設定読み込み
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// ログレベル設定
	var logLevel slog.Level
	switch cfg.LogLevel {
	case "DEBUG":
		logLevel = slog.LevelDebug
	case "WARN":
		logLevel = slog.LevelWarn
	case "ERROR":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	// トレーサー初期化（ロガー設定の前に実行）
	tp, err := infra.InitTracer(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initializing tracer: %w", err)
	}
	if tp != nil {
		defer func() {
			if err := tp.Shutdown(ctx); err != nil {
				slog.Error("failed to shutdown tracer", "error", err)
			}
		}()
	}

	// トレース情報付きロガーを設定
	infra.SetupLogger(cfg, logLevel)

	// 鍵素材ソース初期化
	source, closer, err := newKeyMaterialSource(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initializing %s key material source: %w", cfg.KeySource, err)
	}
	if closer != nil {
		defer func() {
			if closeErr := closer.Close(); closeErr != nil {
				slog.Error("failed to close key material source", "error", closeErr)
			}
		}()
	}

	extractor, err := archive.NewExtractor(archive.Limits{
		MaxEntries:   cfg.MaxZipEntries,
		MaxEntrySize: cfg.MaxZipEntrySize,
	})
	if err != nil {
		return fmt.Errorf("initializing extractor: %w", err)
	}

	// DI
	cache := usecase.NewEncryptorCache(source)
	service := usecase.NewArchiveService(cache, extractor)
	h := handler.NewArchiveHandler(service)
	router := handler.NewRouter(h, cfg)

	// サーバー起動
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
		<-sigCh

		slog.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("starting server",
		"port", cfg.Port,
		"key_source", cfg.KeySource,
		"max_zip_entries", cfg.MaxZipEntries,
		"max_zip_entry_size", cfg.MaxZipEntrySize,
	)
	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving http: %w", err)
	}
	slog.Info("server stopped")
	return nil
}

// newKeyMaterialSource は設定に応じた鍵素材ソースを生成する。
// 返される io.Closer は後始末が不要な場合nilとなる。
func newKeyMaterialSource(ctx context.Context, cfg *config.Config) (usecase.KeyMaterialSource, io.Closer, error) {
	if cfg.KeySource == config.KeySourceFile {
		src, err := infra.NewFileKeySource(cfg.KeyMaterialDir)
		return src, nil, err
	}

	// DB初期化
	if cfg.DatabaseURL == "" {
		return nil, nil, errors.New("DATABASE_URL is not set")
	}
	db, err := infra.NewDB(cfg.DatabaseURL, cfg)
	if err != nil {
		return nil, nil, err
	}

	// KMSクライアント初期化
	kmsClient, err := infra.NewKMSClient(ctx, cfg.KMSKeyName)
	if err != nil {
		_ = infra.CloseDB(db)
		return nil, nil, err
	}

	repo := repository.NewTenantKeyRepository(db)
	closer := closerFunc(func() error {
		return errors.Join(kmsClient.Close(), infra.CloseDB(db))
	})
	return usecase.NewKeyMaterialService(repo, kmsClient), closer, nil
}

// closerFunc は関数をio.Closerとして扱うアダプタ。
type closerFunc func() error

func (f closerFunc) Close() error {
	return f()
}
