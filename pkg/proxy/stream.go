package proxy

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	log "github.com/charmbracelet/log"
)

// relayChatStream pipes the upstream SSE body to the client chunk by chunk.
// Chunk order is preserved verbatim; nothing is buffered beyond the read
// buffer. The upstream request runs on the client's request context, so a
// client disconnect cancels it instead of streaming into the void.
func (s *Server) relayChatStream(w http.ResponseWriter, r *http.Request, info *requestInfo, model string) {
	resp, err := s.client.ChatCompletionStream(r.Context(), info.Body)
	if err != nil {
		s.writeUpstreamFailure(w, info, err)
		return
	}
	defer resp.Body.Close()

	relayHeader(w.Header(), resp.Header)
	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "text/event-stream")
	}
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(resp.StatusCode)

	flusher, _ := w.(http.Flusher)
	if flusher != nil {
		flusher.Flush()
	}

	scanner := newSSEUsageScanner()
	buf := make([]byte, 32*1024)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			scanner.consume(buf[:n])
			if _, writeErr := w.Write(buf[:n]); writeErr != nil {
				// Client went away; returning cancels the upstream call via
				// the request context.
				log.Debug("client disconnected mid-stream", "req", info.ID)
				s.recordUsage(info, r.URL.Path, model, resp.StatusCode, true, scanner.usage())
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if readErr != nil {
			if !errors.Is(readErr, io.EOF) {
				log.Error("upstream stream aborted", "req", info.ID, "err", readErr)
				writeStreamErrorEvent(w, flusher, readErr)
			}
			s.recordUsage(info, r.URL.Path, model, resp.StatusCode, true, scanner.usage())
			return
		}
	}
}

// writeStreamErrorEvent emits a best-effort terminal error event when the
// upstream dies mid-stream and the client connection is still writable.
func writeStreamErrorEvent(w http.ResponseWriter, flusher http.Flusher, cause error) {
	payload, err := json.Marshal(errorPayload{Error: errorBody{
		Message: "upstream stream aborted: " + cause.Error(),
		Type:    "upstream_error",
		Code:    "stream_aborted",
	}})
	if err != nil {
		return
	}
	if _, err := w.Write(append(append([]byte("data: "), payload...), '\n', '\n')); err != nil {
		return
	}
	if flusher != nil {
		flusher.Flush()
	}
}

// sseUsageScanner watches relayed bytes for the usage object most providers
// attach to the final data chunk. Purely observational; the stream itself is
// untouched.
type sseUsageScanner struct {
	pending []byte
	counts  usageCounts
}

func newSSEUsageScanner() *sseUsageScanner {
	return &sseUsageScanner{pending: make([]byte, 0, 1024)}
}

func (p *sseUsageScanner) consume(chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	p.pending = append(p.pending, chunk...)
	for {
		idx := bytes.IndexByte(p.pending, '\n')
		if idx < 0 {
			return
		}
		line := strings.TrimSpace(string(p.pending[:idx]))
		p.pending = p.pending[idx+1:]
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" || data == "[DONE]" {
			continue
		}
		if u := usageFromResponse([]byte(data)); u.Total > p.counts.Total {
			p.counts = u
		}
	}
}

func (p *sseUsageScanner) usage() usageCounts {
	return p.counts
}
