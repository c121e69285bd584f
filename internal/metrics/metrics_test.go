package metrics

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	return rec.Body.String()
}

func assertLine(t *testing.T, body, line string) {
	t.Helper()
	if !strings.Contains(body, line) {
		t.Errorf("expected %q in exposition, got:\n%s", line, body)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveFetch(FetchOK, time.Second)
	m.IncParseError()
	m.ObserveCache(CacheHit)
	m.SetCacheEntries(3)
	m.ObserveExport("csv", time.Millisecond, errors.New("boom"))
	m.IncDecomposeSkipped()
	m.SetBreakerState(1, true)
	m.SetWSClients(2)
	m.SetHeldWrites(1)
	m.ObserveReplay(1, 0)
}

func TestRedisHeldWrites(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.SetHeldWrites(3)
	assertLine(t, scrape(t, m), `macrodash_redis_held_writes 3`)

	m.ObserveReplay(2, 1)
	body := scrape(t, m)
	assertLine(t, body, `macrodash_redis_held_writes 1`)
	assertLine(t, body, `macrodash_redis_replayed_writes_total 2`)
}

func TestCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveFetch(FetchOK, 10*time.Millisecond)
	m.ObserveFetch(FetchOK, 10*time.Millisecond)
	m.ObserveFetch(FetchUnreachable, time.Second)
	m.ObserveExport("csv", time.Millisecond, nil)
	m.ObserveExport("csv", time.Millisecond, errors.New("disk full"))
	m.SetBreakerState(1, true)
	m.SetCacheEntries(7)

	body := scrape(t, m)
	assertLine(t, body, `macrodash_fetch_total{result="ok"} 2`)
	assertLine(t, body, `macrodash_fetch_total{result="unreachable"} 1`)
	assertLine(t, body, `macrodash_export_failures_total{sink="csv"} 1`)
	assertLine(t, body, `macrodash_redis_circuit_breaker_state 1`)
	assertLine(t, body, `macrodash_redis_circuit_breaker_trips_total 1`)
	assertLine(t, body, `macrodash_cache_entries 7`)
}

func TestNewWithNilRegistry(t *testing.T) {
	m := New(nil)
	m.ObserveCache(CacheStale)
	assertLine(t, scrape(t, m), `macrodash_cache_requests_total{outcome="stale"} 1`)
}
