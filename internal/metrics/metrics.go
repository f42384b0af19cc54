// Package metrics はPrometheusメトリクスを提供する。
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EncryptorCacheLookupsTotal はEncryptorキャッシュの参照回数を結果（hit/miss）別に数える。
	EncryptorCacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upload_encryptor_cache_lookups_total",
			Help: "Total number of encryptor cache lookups",
		},
		[]string{"result"},
	)

	// KeyMaterialLoadsTotal は鍵素材の読み込み回数を結果別に数える。
	KeyMaterialLoadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upload_key_material_loads_total",
			Help: "Total number of tenant key material loads",
		},
		[]string{"result"},
	)

	// CryptoOperationsTotal は暗号化・復号の回数を操作と結果別に数える。
	CryptoOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upload_crypto_operations_total",
			Help: "Total number of envelope encrypt/decrypt operations",
		},
		[]string{"operation", "result"},
	)

	// CryptoOperationDuration は暗号化・復号の所要時間を計測する。
	CryptoOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upload_crypto_operation_duration_seconds",
			Help:    "Duration of envelope encrypt/decrypt operations in seconds",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		},
		[]string{"operation"},
	)

	// ArchiveRejectionsTotal は展開を中断したアーカイブの数を理由別に数える。
	ArchiveRejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upload_archive_rejections_total",
			Help: "Total number of archives rejected during extraction",
		},
		[]string{"reason"},
	)

	// EncryptorCacheSize はキャッシュ済みEncryptorの数。
	EncryptorCacheSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "upload_encryptor_cache_size",
			Help: "Number of tenant encryptors currently cached",
		},
	)
)
