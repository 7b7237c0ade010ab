package proxy

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	log "github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5/middleware"
)

// corsMiddleware is stateless: preflight requests are answered immediately
// with permissive headers and never reach a handler; everything else gets the
// same headers appended on the way through.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Accept, Origin, X-Requested-With")
		h.Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type contextKey int

const requestInfoKey contextKey = 0

// requestInfo is the per-request envelope: correlation id, raw body and the
// duplicate-check verdict. It lives only for the handler's duration.
type requestInfo struct {
	ID           string
	Body         []byte
	RemoteAddr   string
	ReceivedAt   time.Time
	Duplicate    bool
	FirstSeenAgo time.Duration
}

func infoFromContext(ctx context.Context) *requestInfo {
	info, _ := ctx.Value(requestInfoKey).(*requestInfo)
	return info
}

// clientHost reduces a RemoteAddr to the client address. The ephemeral port
// changes per TCP connection and must not enter the duplicate fingerprint, or
// identical requests over fresh connections would never match.
func clientHost(remoteAddr string) string {
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		return host
	}
	// RealIP may have substituted a bare address from a forwarding header.
	return remoteAddr
}

// requestContextMiddleware assigns the sequential correlation id, buffers the
// request body, runs the duplicate check, and logs entry/exit with duration.
// Duplicates are logged, never blocked: an IDE retrying a failed call looks
// identical to a duplicate and must go through.
func (s *Server) requestContextMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		info := &requestInfo{
			ID:         fmt.Sprintf("req-%d", s.requestSeq.Add(1)),
			RemoteAddr: r.RemoteAddr,
			ReceivedAt: time.Now(),
		}

		if r.Body != nil {
			body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodyBytes))
			r.Body.Close()
			if err != nil {
				writeErrorBody(w, http.StatusBadRequest, "failed to read request body", "invalid_request_error", "")
				return
			}
			info.Body = body
			r.Body = io.NopCloser(bytes.NewReader(body))
		}

		res := s.detector.CheckAndRecord(string(info.Body), clientHost(r.RemoteAddr))
		info.Duplicate = res.Duplicate
		info.FirstSeenAgo = res.FirstSeenAgo
		if res.Duplicate {
			log.Warn("duplicate request detected",
				"req", info.ID, "path", r.URL.Path,
				"first_seen_ago_ms", res.FirstSeenAgo.Milliseconds())
		}
		s.detector.EvictExpired()

		w.Header().Set("X-Request-ID", info.ID)
		log.Debug("request received",
			"req", info.ID, "method", r.Method, "path", r.URL.Path, "origin", info.RemoteAddr)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(context.WithValue(r.Context(), requestInfoKey, info)))

		log.Info("request completed",
			"req", info.ID, "method", r.Method, "path", r.URL.Path,
			"status", ww.Status(), "duration_ms", time.Since(info.ReceivedAt).Milliseconds())
	})
}
