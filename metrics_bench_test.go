package authkit

import (
	"context"
	"testing"
	"time"

	"github.com/wareflow/authkit/permission"
)

func newMetricsBenchEngine(histograms bool) *Engine {
	return &Engine{metrics: NewMetrics(MetricsConfig{
		Enabled:                 true,
		EnableLatencyHistograms: histograms,
	})}
}

// latencySamples spread across every histogram bucket, +Inf included.
var latencySamples = [...]time.Duration{
	2 * time.Millisecond,
	8 * time.Millisecond,
	20 * time.Millisecond,
	40 * time.Millisecond,
	90 * time.Millisecond,
	200 * time.Millisecond,
	400 * time.Millisecond,
	1500 * time.Millisecond,
}

func BenchmarkObserveResponseParallel(b *testing.B) {
	e := newMetricsBenchEngine(true)
	b.ReportAllocs()
	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			e.observeResponse("GET", "/owner/warehouse", 200, latencySamples[i%len(latencySamples)])
			i++
		}
	})
}

func BenchmarkObserveResponseHistogramsOff(b *testing.B) {
	e := newMetricsBenchEngine(false)
	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		e.observeResponse("GET", "/owner/warehouse", 200, 12*time.Millisecond)
	}
}

func BenchmarkUnauthorizedRecoveryCounters(b *testing.B) {
	e := newMetricsBenchEngine(false)
	b.ReportAllocs()
	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			e.observeUnauthorized("/owner/warehouse")
			e.observeRetry("/owner/warehouse", true)
		}
	})
}

type staticFetcher struct{}

func (staticFetcher) FetchWarehousePermissions(context.Context, permission.Role, string, string) ([]string, error) {
	return []string{permission.CapZoneManage, permission.CapGetMyPermissions}, nil
}

func (staticFetcher) FetchSystemPermissions(context.Context, permission.Role) ([]permission.SystemPermission, error) {
	return nil, nil
}

func BenchmarkPermissionCacheHitCountedParallel(b *testing.B) {
	e := newMetricsBenchEngine(false)
	cache := permission.NewCache(staticFetcher{}, permission.Options{OnHit: e.observePermissionHit})
	ctx := context.Background()
	if _, err := cache.GetForWarehouse(ctx, permission.RoleEmployer, "1", "clerk"); err != nil {
		b.Fatalf("warm cache: %v", err)
	}
	b.ReportAllocs()
	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if _, err := cache.GetForWarehouse(ctx, permission.RoleEmployer, "1", "clerk"); err != nil {
				b.Errorf("cached lookup: %v", err)
				return
			}
		}
	})
	b.StopTimer()
	if got := e.MetricsSnapshot().Counters[MetricPermissionCacheHit]; got < uint64(b.N) {
		b.Fatalf("expected at least %d cache hits, got %d", b.N, got)
	}
}

func BenchmarkMetricsSnapshotScrape(b *testing.B) {
	e := newMetricsBenchEngine(true)
	for id := MetricID(0); id < metricIDCount; id++ {
		e.metricInc(id)
	}
	for _, d := range latencySamples {
		e.observeResponse("GET", "/owner/warehouse", 200, d)
	}
	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		_ = e.MetricsSnapshot()
	}
}
