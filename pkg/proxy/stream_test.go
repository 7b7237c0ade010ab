package proxy

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

const sseFixture = "data: {\"id\":\"gen-1\",\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n\n" +
	"data: {\"id\":\"gen-1\",\"choices\":[{\"delta\":{\"content\":\"lo\"}}],\"usage\":{\"prompt_tokens\":5,\"completion_tokens\":2,\"total_tokens\":7}}\n\n" +
	"data: [DONE]\n\n"

func TestStreamingRelayPreservesBytes(t *testing.T) {
	upstreamSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Accept"); got != "text/event-stream" {
			t.Errorf("Accept = %q", got)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Access-Control-Allow-Origin", "https://upstream.example")
		flusher := w.(http.Flusher)
		// Two flushes so the relay sees at least two chunks.
		io.WriteString(w, sseFixture[:40])
		flusher.Flush()
		io.WriteString(w, sseFixture[40:])
		flusher.Flush()
	}))
	defer upstreamSrv.Close()

	s := newTestServer(testConfig(), upstreamSrv.URL, nil)
	body := `{"model":"openai/gpt-4o","stream":true,"messages":[{"role":"user","content":"hi"}]}`
	rec := doRequest(s, http.MethodPost, "/v1/chat/completions", body)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q", ct)
	}
	if cc := rec.Header().Get("Cache-Control"); cc != "no-cache" {
		t.Fatalf("Cache-Control = %q", cc)
	}
	if got := rec.Header().Values("Access-Control-Allow-Origin"); len(got) != 1 || got[0] != "*" {
		t.Fatalf("Access-Control-Allow-Origin = %v, want exactly [*]", got)
	}
	if got := rec.Body.String(); got != sseFixture {
		t.Fatalf("relayed bytes differ:\n got %q\nwant %q", got, sseFixture)
	}
	if !rec.Flushed {
		t.Fatalf("response was never flushed")
	}
}

func TestStreamingUpstreamErrorIsClassifiedBeforeRelay(t *testing.T) {
	upstreamSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"error":{"message":"No auth credentials found"}}`)
	}))
	defer upstreamSrv.Close()

	s := newTestServer(testConfig(), upstreamSrv.URL, nil)
	body := `{"model":"openai/gpt-4o","stream":true,"messages":[{"role":"user","content":"hi"}]}`
	rec := doRequest(s, http.MethodPost, "/v1/chat/completions", body)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want upstream 401 preserved", rec.Code)
	}
	if e := decodeError(t, rec); e.Code != "unauthorized" || e.Type != "authentication_error" {
		t.Fatalf("error = %+v", e)
	}
}

func TestSSEUsageScannerTracksFinalUsage(t *testing.T) {
	sc := newSSEUsageScanner()
	// Chunks split mid-line to exercise the pending buffer.
	sc.consume([]byte("data: {\"usage\":{\"prompt_tokens\":1,\"completion_tokens\":2,\"total_tokens\":3}}\n\n"))
	sc.consume([]byte("data: {\"usage\":{\"prompt_tokens\":5,\"comp"))
	sc.consume([]byte("letion_tokens\":2,\"total_tokens\":7}}\n\ndata: [DONE]\n\n"))

	u := sc.usage()
	if u.Prompt != 5 || u.Completion != 2 || u.Total != 7 {
		t.Fatalf("usage = %+v", u)
	}
}

func TestSSEUsageScannerIgnoresNonDataLines(t *testing.T) {
	sc := newSSEUsageScanner()
	sc.consume([]byte(": keepalive\n\nevent: message\ndata: [DONE]\n\n"))
	if u := sc.usage(); u.Total != 0 {
		t.Fatalf("usage = %+v, want zero", u)
	}
}
