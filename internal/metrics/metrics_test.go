package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.ConnectionOpened()
	m.ConnectionClosed()
	m.CommandProcessed("GET", false)
	m.PubSubDelivered(3)
	m.SaveCompleted(123)
	m.SaveFailed()
	m.Sample()
	if got := m.System(); got.Goroutines != 0 {
		t.Fatalf("nil metrics should report zero stats, got %+v", got)
	}
}

func TestCountersAppearInScrape(t *testing.T) {
	m := New()
	m.ConnectionOpened()
	m.CommandProcessed("SET", false)
	m.CommandProcessed("GET", true)
	m.PubSubDelivered(2)
	m.SaveCompleted(1700000000)
	m.RegisterKeyspaceSize(func() float64 { return 7 })

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Result().Body)
	scrape := string(body)

	for _, want := range []string{
		`coolcache_connections_total 1`,
		`coolcache_commands_total{command="SET"} 1`,
		`coolcache_command_errors_total 1`,
		`coolcache_pubsub_messages_delivered_total 2`,
		`coolcache_last_save_timestamp_seconds 1.7e+09`,
		`coolcache_keyspace_keys 7`,
	} {
		if !strings.Contains(scrape, want) {
			t.Fatalf("scrape missing %q:\n%s", want, scrape)
		}
	}
}

func TestTwoInstancesDoNotCollide(t *testing.T) {
	a := New()
	b := New()
	a.ConnectionOpened()
	b.ConnectionOpened()
	b.ConnectionOpened()

	rec := httptest.NewRecorder()
	b.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Result().Body)
	if !strings.Contains(string(body), "coolcache_connections_total 2") {
		t.Fatalf("expected instance-local counter value 2, got:\n%s", body)
	}
}
