package proxy

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"openrouter-gateway/pkg/dedup"
	"openrouter-gateway/pkg/logstore"
	"openrouter-gateway/pkg/upstream"
)

func TestLogEventsDisabledWithoutStore(t *testing.T) {
	s := newTestServer(testConfig(), "http://127.0.0.1:1", nil)
	rec := doRequest(s, http.MethodGet, "/events/logs", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestLogEventsReplaysHistoryThenStreamsLive(t *testing.T) {
	logs := logstore.NewStore(100)
	logs.Add("info", "gateway listening", time.Now())

	cfg := testConfig()
	s := NewServer(cfg, Options{
		Client:   upstream.NewClient(upstream.Config{BaseURL: "http://127.0.0.1:1"}),
		Registry: &stubCatalog{},
		Detector: dedup.New(5*time.Second, nil),
		Logs:     logs,
	})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/events/logs"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if resp != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	var replayed logstore.Entry
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(&replayed); err != nil {
		t.Fatalf("read replayed entry: %v", err)
	}
	if replayed.Message != "gateway listening" {
		t.Fatalf("replayed entry = %+v", replayed)
	}

	logs.Add("warn", "duplicate request detected", time.Now())
	var live logstore.Entry
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(&live); err != nil {
		t.Fatalf("read live entry: %v", err)
	}
	if live.Level != "warn" || live.Message != "duplicate request detected" {
		t.Fatalf("live entry = %+v", live)
	}
}
