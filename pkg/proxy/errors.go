package proxy

import (
	"encoding/json"
	"net/http"

	"openrouter-gateway/pkg/classify"
	"openrouter-gateway/pkg/validate"
)

// Wire shape is the OpenAI error envelope; classification detail rides in a
// metadata object so host UIs can render suggestions without parsing prose.
type errorBody struct {
	Message  string         `json:"message"`
	Type     string         `json:"type"`
	Code     string         `json:"code,omitempty"`
	Metadata *errorMetadata `json:"metadata,omitempty"`
}

type errorMetadata struct {
	Category          classify.Category `json:"category,omitempty"`
	MissingCapability string            `json:"missing_capability,omitempty"`
	SuggestedModels   []string          `json:"suggested_models,omitempty"`
}

type errorPayload struct {
	Error errorBody `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErrorBody(w http.ResponseWriter, status int, message, errType, code string) {
	writeJSON(w, status, errorPayload{Error: errorBody{Message: message, Type: errType, Code: code}})
}

// writeValidationError surfaces a capability mismatch without any upstream
// call, including the ranked alternatives.
func writeValidationError(w http.ResponseWriter, res validate.Result) {
	writeJSON(w, http.StatusBadRequest, errorPayload{Error: errorBody{
		Message: res.Reason,
		Type:    "invalid_request_error",
		Code:    "model_capability",
		Metadata: &errorMetadata{
			MissingCapability: res.MissingCapability,
			SuggestedModels:   res.SuggestedModels,
		},
	}})
}

// writeClassifiedError translates an upstream failure. upstreamStatus wins
// when the upstream responded at all; otherwise the category picks the code.
func writeClassifiedError(w http.ResponseWriter, upstreamStatus int, c classify.Classification) {
	status := upstreamStatus
	if status <= 0 {
		status = statusForCategory(c.Category)
	}
	meta := &errorMetadata{Category: c.Category, SuggestedModels: c.SuggestedModels}
	if m := missingCapability(c.Category); m != "" {
		meta.MissingCapability = m
	}
	writeJSON(w, status, errorPayload{Error: errorBody{
		Message:  c.Message,
		Type:     errorTypeForCategory(c.Category),
		Code:     string(c.Category),
		Metadata: meta,
	}})
}

func statusForCategory(c classify.Category) int {
	switch c {
	case classify.ImageNotSupported, classify.AudioNotSupported,
		classify.VideoNotSupported, classify.FileNotSupported:
		return http.StatusBadRequest
	case classify.FreeTierEnded:
		return http.StatusPaymentRequired
	case classify.RateLimited:
		return http.StatusTooManyRequests
	case classify.Unauthorized:
		return http.StatusUnauthorized
	case classify.NotFound:
		return http.StatusNotFound
	case classify.Timeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func errorTypeForCategory(c classify.Category) string {
	switch c {
	case classify.ImageNotSupported, classify.AudioNotSupported,
		classify.VideoNotSupported, classify.FileNotSupported, classify.NotFound:
		return "invalid_request_error"
	case classify.Unauthorized:
		return "authentication_error"
	case classify.RateLimited:
		return "rate_limit_error"
	case classify.FreeTierEnded:
		return "billing_error"
	default:
		return "upstream_error"
	}
}

func missingCapability(c classify.Category) string {
	switch c {
	case classify.ImageNotSupported:
		return "image"
	case classify.AudioNotSupported:
		return "audio"
	case classify.VideoNotSupported:
		return "video"
	case classify.FileNotSupported:
		return "file"
	default:
		return ""
	}
}
