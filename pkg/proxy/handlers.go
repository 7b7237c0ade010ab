package proxy

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	log "github.com/charmbracelet/log"
	openai "github.com/sashabaranov/go-openai"

	"openrouter-gateway/pkg/classify"
	"openrouter-gateway/pkg/upstream"
	"openrouter-gateway/pkg/usagelog"
	"openrouter-gateway/pkg/validate"
	"openrouter-gateway/pkg/version"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	checked, duplicates := s.detector.Stats()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"version":    version.String(),
		"uptime_s":   int64(time.Since(s.startedAt).Seconds()),
		"requests":   checked,
		"duplicates": duplicates,
		"configured": s.cfg.Configured(),
	})
}

// openaiModel is one /v1/models entry: the OpenAI shape plus the capability
// metadata host UIs use for model pickers.
type openaiModel struct {
	ID                  string   `json:"id"`
	Object              string   `json:"object"`
	Created             int64    `json:"created,omitempty"`
	OwnedBy             string   `json:"owned_by"`
	ContextLength       int      `json:"context_length,omitempty"`
	InputModalities     []string `json:"input_modalities,omitempty"`
	OutputModalities    []string `json:"output_modalities,omitempty"`
	SupportedParameters []string `json:"supported_parameters,omitempty"`
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	info := infoFromContext(r.Context())
	models, err := s.registry.Models(r.Context())
	if err != nil {
		s.writeUpstreamFailure(w, info, err)
		return
	}
	out := make([]openaiModel, 0, len(models))
	for _, m := range models {
		out = append(out, openaiModel{
			ID:                  m.ID,
			Object:              "model",
			Created:             m.Created,
			OwnedBy:             ownerOf(m.ID),
			ContextLength:       m.ContextLength,
			InputModalities:     m.Architecture.InputModalities,
			OutputModalities:    m.Architecture.OutputModalities,
			SupportedParameters: m.SupportedParameters,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"object": "list", "data": out})
}

// ownerOf derives owned_by from the provider prefix of an aggregation-API
// model id ("openai/gpt-4o" -> "openai").
func ownerOf(modelID string) string {
	if idx := strings.IndexByte(modelID, '/'); idx > 0 {
		return modelID[:idx]
	}
	return "unknown"
}

func (s *Server) handleCredits(w http.ResponseWriter, r *http.Request) {
	info := infoFromContext(r.Context())
	credits, err := s.client.Credits(r.Context())
	if err != nil {
		s.writeUpstreamFailure(w, info, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": credits})
}

func (s *Server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	info := infoFromContext(r.Context())
	if len(info.Body) == 0 {
		writeErrorBody(w, http.StatusBadRequest, "request body required", "invalid_request_error", "")
		return
	}

	var req openai.ChatCompletionRequest
	if err := json.Unmarshal(info.Body, &req); err != nil {
		writeErrorBody(w, http.StatusBadRequest, "invalid JSON payload: "+err.Error(), "invalid_request_error", "")
		return
	}
	if strings.TrimSpace(req.Model) == "" {
		writeErrorBody(w, http.StatusBadRequest, "model is required", "invalid_request_error", "")
		return
	}

	if res := validate.Request(&req, s.registry, info.ID); !res.Valid {
		s.recordUsage(info, r.URL.Path, req.Model, http.StatusBadRequest, false, usageCounts{})
		writeValidationError(w, res)
		return
	}

	if req.Stream {
		s.relayChatStream(w, r, info, req.Model)
		return
	}

	respBody, status, header, err := s.client.ChatCompletion(r.Context(), info.Body)
	if err != nil {
		s.writeUpstreamFailure(w, info, err)
		return
	}

	relayHeader(w.Header(), header)
	w.WriteHeader(status)
	_, _ = w.Write(respBody)

	s.recordUsage(info, r.URL.Path, req.Model, status, false, usageFromResponse(respBody))
}

// relayHeader copies upstream response headers onto the client response,
// dropping hop-by-hop headers and anything the gateway owns itself: the CORS
// middleware already answered Access-Control-*, and a second copy from the
// aggregation API would leave the client with duplicate values.
func relayHeader(dst, src http.Header) {
	for k, vals := range src {
		if skipRelayHeader(k) {
			continue
		}
		for _, v := range vals {
			dst.Add(k, v)
		}
	}
}

func skipRelayHeader(key string) bool {
	lower := strings.ToLower(key)
	if strings.HasPrefix(lower, "access-control-") {
		return true
	}
	switch lower {
	case "content-length", "connection", "keep-alive", "transfer-encoding",
		"te", "trailer", "upgrade", "proxy-authenticate", "proxy-authorization":
		return true
	}
	return false
}

// writeUpstreamFailure maps the three failure families: caller errors (our
// side, before any network I/O), classified upstream responses, and transport
// failures.
func (s *Server) writeUpstreamFailure(w http.ResponseWriter, info *requestInfo, err error) {
	var callerErr *upstream.CallerError
	if errors.As(err, &callerErr) {
		log.Error("caller error", "req", info.ID, "err", callerErr.Reason)
		writeErrorBody(w, http.StatusBadRequest, callerErr.Reason, "invalid_request_error", "missing_credential")
		return
	}
	var httpErr *upstream.HTTPError
	if errors.As(err, &httpErr) {
		c := classify.Error(httpErr)
		log.Warn("upstream error",
			"req", info.ID, "status", httpErr.StatusCode, "category", c.Category)
		writeClassifiedError(w, httpErr.StatusCode, c)
		return
	}
	c := classify.Transport(err)
	log.Error("upstream transport failure", "req", info.ID, "category", c.Category, "err", err)
	writeClassifiedError(w, 0, c)
}

type usageCounts struct {
	Prompt     int
	Completion int
	Total      int
}

func usageFromResponse(body []byte) usageCounts {
	var payload struct {
		Usage struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
			TotalTokens      int `json:"total_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return usageCounts{}
	}
	u := payload.Usage
	total := u.TotalTokens
	if total == 0 {
		total = u.PromptTokens + u.CompletionTokens
	}
	return usageCounts{Prompt: u.PromptTokens, Completion: u.CompletionTokens, Total: total}
}

func (s *Server) recordUsage(info *requestInfo, path, model string, status int, streamed bool, u usageCounts) {
	if s.usage == nil {
		return
	}
	rec := usagelog.Record{
		Timestamp:        time.Now(),
		CorrelationID:    info.ID,
		Path:             path,
		Model:            model,
		StatusCode:       status,
		Streamed:         streamed,
		Duplicate:        info.Duplicate,
		PromptTokens:     u.Prompt,
		CompletionTokens: u.Completion,
		TotalTokens:      u.Total,
		LatencyMS:        time.Since(info.ReceivedAt).Milliseconds(),
	}
	if err := s.usage.Append(rec); err != nil {
		log.Warn("failed to append usage record", "req", info.ID, "err", err)
	}
}
