package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"data-upload-service/config"
)

// NewRouter はルーターを生成する。
func NewRouter(h *ArchiveHandler, cfg *config.Config) http.Handler {
	r := chi.NewRouter()

	// ミドルウェア
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	// ルート定義
	r.Route("/v1", func(r chi.Router) {
		r.Use(chimiddleware.RequestSize(cfg.MaxRequestBodySize))

		r.Route("/apps/{app_id}", func(r chi.Router) {
			r.Post("/encrypt", h.Encrypt)
			r.Post("/decrypt", h.Decrypt)
			r.Post("/unzip", h.DecryptAndUnzip)
		})
		r.Post("/archives/unzip", h.Unzip)
	})

	if cfg.OtelEnabled {
		return otelhttp.NewHandler(r, "data-upload-service")
	}
	return r
}
