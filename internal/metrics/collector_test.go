package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordRequestIncrementsCountersAndHistogram(t *testing.T) {
	c := NewCollectorWithRegistry(prometheus.NewRegistry())

	c.RecordRequest("llama3", "/api/chat", "200", 0.42, 128)

	if got := testutil.ToFloat64(c.RequestsTotal.WithLabelValues("llama3", "/api/chat", "200")); got != 1 {
		t.Errorf("expected requests_total=1, got %f", got)
	}
	if got := testutil.ToFloat64(c.TokensTotal.WithLabelValues("llama3", "/api/chat")); got != 128 {
		t.Errorf("expected tokens_total=128, got %f", got)
	}
}

func TestRecordCacheHitAndMiss(t *testing.T) {
	c := NewCollectorWithRegistry(prometheus.NewRegistry())
	c.RecordCacheHit()
	c.RecordCacheHit()
	c.RecordCacheMiss()

	if got := testutil.ToFloat64(c.CacheHitsTotal); got != 2 {
		t.Errorf("expected cache_hits_total=2, got %f", got)
	}
	if got := testutil.ToFloat64(c.CacheMissesTotal); got != 1 {
		t.Errorf("expected cache_misses_total=1, got %f", got)
	}
}
