package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(ArchiveRejectionsTotal.WithLabelValues("entry_too_large"))
	ArchiveRejectionsTotal.WithLabelValues("entry_too_large").Inc()
	if got := testutil.ToFloat64(ArchiveRejectionsTotal.WithLabelValues("entry_too_large")); got != before+1 {
		t.Errorf("want %v, got %v", before+1, got)
	}

	before = testutil.ToFloat64(CryptoOperationsTotal.WithLabelValues("decrypt", "error"))
	CryptoOperationsTotal.WithLabelValues("decrypt", "error").Inc()
	if got := testutil.ToFloat64(CryptoOperationsTotal.WithLabelValues("decrypt", "error")); got != before+1 {
		t.Errorf("want %v, got %v", before+1, got)
	}
}

func TestMetricNames(t *testing.T) {
	if n := testutil.CollectAndCount(EncryptorCacheSize, "upload_encryptor_cache_size"); n != 1 {
		t.Errorf("want 1 gauge, got %d", n)
	}
}
