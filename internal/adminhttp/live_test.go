package adminhttp

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"coolcache/internal/keyspace"
	"coolcache/internal/metrics"
)

func TestLiveStatsHandlerStreamsStats(t *testing.T) {
	store := keyspace.NewStore()
	if _, err := store.Set("a", []byte("1"), keyspace.SetOptions{}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	h := NewHandlerSet(Options{Store: store, Metrics: metrics.New()})

	srv := httptest.NewServer(h.LiveStatsHandler())
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dialing: %v", err)
	}
	defer conn.Close()

	if err := conn.SetReadDeadline(time.Now().Add(5 * time.Second)); err != nil {
		t.Fatalf("read deadline: %v", err)
	}
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("reading stats frame: %v", err)
	}
	var stats statsResponse
	if err := json.Unmarshal(payload, &stats); err != nil {
		t.Fatalf("unmarshalling stats: %v", err)
	}
	if stats.Keys != 1 {
		t.Fatalf("expected 1 key in stats, got %d", stats.Keys)
	}
}

func TestLiveStatsHandlerRequiresToken(t *testing.T) {
	h := NewHandlerSet(Options{AdminToken: "topsecret", Metrics: metrics.New()})

	srv := httptest.NewServer(h.LiveStatsHandler())
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	if _, resp, err := websocket.DefaultDialer.Dial(wsURL, nil); err == nil {
		t.Fatal("expected dial to fail without a token")
	} else if resp == nil || resp.StatusCode != 401 {
		t.Fatalf("expected 401 handshake rejection, got %+v", resp)
	}
}
