package classify

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"

	"openrouter-gateway/pkg/registry"
	"openrouter-gateway/pkg/upstream"
)

// Category is the semantic class of an upstream failure.
type Category string

const (
	ImageNotSupported Category = "image_not_supported"
	AudioNotSupported Category = "audio_not_supported"
	VideoNotSupported Category = "video_not_supported"
	FileNotSupported  Category = "file_not_supported"
	FreeTierEnded     Category = "free_tier_ended"
	RateLimited       Category = "rate_limited"
	Unauthorized      Category = "unauthorized"
	NotFound          Category = "not_found"
	Unavailable       Category = "unavailable"
	Timeout           Category = "timeout"
	ProviderError     Category = "provider_error"
	Unknown           Category = "unknown"
)

// Classification carries the category, the original upstream message, and for
// capability mismatches a ranked list of models that do support the modality.
type Classification struct {
	Category        Category `json:"category"`
	Message         string   `json:"message"`
	SuggestedModels []string `json:"suggested_models,omitempty"`
}

// rule is one ordered pattern. Matching is case-insensitive substring work on
// upstream prose; precedence is the slice order, so modality rules sit above
// the generic ones that would also match their text.
type rule struct {
	category Category
	modality string
	match    func(lower string) bool
}

func anyOf(subs ...string) func(string) bool {
	return func(lower string) bool {
		for _, s := range subs {
			if strings.Contains(lower, s) {
				return true
			}
		}
		return false
	}
}

// freeTierMatch requires "free" to co-occur with a migration phrase. Known
// loose heuristic: an unrelated error mentioning "free" alongside one of the
// phrases is misclassified. Kept as-is; the rule table makes it visible.
func freeTierMatch(lower string) bool {
	if !strings.Contains(lower, "free") {
		return false
	}
	return anyOf("period has ended", "trial has ended", "has ended", "add credits", "upgrade your account")(lower)
}

var rules = []rule{
	{ImageNotSupported, registry.ModalityImage, anyOf("support image input", "image input is not", "does not support image", "no image support")},
	{AudioNotSupported, registry.ModalityAudio, anyOf("support audio input", "audio input is not", "does not support audio", "no audio support")},
	{VideoNotSupported, registry.ModalityVideo, anyOf("support video input", "video input is not", "does not support video", "no video support")},
	{FileNotSupported, registry.ModalityFile, anyOf("support file input", "file input is not", "does not support file", "does not support document")},
	{FreeTierEnded, "", freeTierMatch},
	{RateLimited, "", anyOf("rate limit", "rate-limited", "too many requests", "quota exceeded")},
	{Unauthorized, "", anyOf("unauthorized", "invalid api key", "api key not valid", "no auth credentials", "authentication")},
	{NotFound, "", anyOf("not found", "no endpoints found", "does not exist", "unknown model")},
	{Timeout, "", anyOf("timed out", "timeout", "deadline exceeded")},
	{Unavailable, "", anyOf("unavailable", "overloaded", "temporarily", "no providers are available")},
	{ProviderError, "", anyOf("provider returned error", "provider error", "internal server error", "upstream error")},
}

// Error maps an upstream HTTP error to a classification. Text rules run
// first in order; if none match, the status code decides; otherwise Unknown
// carrying the raw message. Deterministic for a given input.
func Error(httpErr *upstream.HTTPError) Classification {
	msg := ExtractMessage(httpErr.Body)
	if msg == "" {
		msg = strings.TrimSpace(httpErr.Body)
	}
	lower := strings.ToLower(msg)

	for _, r := range rules {
		if r.match(lower) {
			c := Classification{Category: r.category, Message: msg}
			if r.modality != "" {
				c.SuggestedModels = registry.SuggestedModels(r.modality)
			}
			return c
		}
	}

	switch {
	case httpErr.StatusCode == http.StatusTooManyRequests:
		return Classification{Category: RateLimited, Message: msg}
	case httpErr.StatusCode == http.StatusUnauthorized || httpErr.StatusCode == http.StatusForbidden:
		return Classification{Category: Unauthorized, Message: msg}
	case httpErr.StatusCode == http.StatusNotFound:
		return Classification{Category: NotFound, Message: msg}
	case httpErr.StatusCode == http.StatusServiceUnavailable || httpErr.StatusCode == http.StatusBadGateway:
		return Classification{Category: Unavailable, Message: msg}
	case httpErr.StatusCode >= 500:
		return Classification{Category: ProviderError, Message: msg}
	default:
		return Classification{Category: Unknown, Message: msg}
	}
}

// Transport classifies network-level failures (no upstream response at all).
func Transport(err error) Classification {
	msg := err.Error()
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return Classification{Category: Timeout, Message: msg}
	case errors.As(err, &netErr) && netErr.Timeout():
		return Classification{Category: Timeout, Message: msg}
	default:
		return Classification{Category: Unavailable, Message: msg}
	}
}

// ExtractMessage digs a human-readable message out of an upstream JSON error
// envelope; empty when the body is not JSON or carries no message.
func ExtractMessage(body string) string {
	trimmed := strings.TrimSpace(body)
	if trimmed == "" || !strings.HasPrefix(trimmed, "{") {
		return ""
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(trimmed), &payload); err != nil {
		return ""
	}
	return messageFromMap(payload)
}

func messageFromMap(payload map[string]any) string {
	for _, key := range []string{"message", "detail", "error_description"} {
		if s, ok := payload[key].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	if nested, ok := payload["error"].(map[string]any); ok {
		if msg := messageFromMap(nested); msg != "" {
			return msg
		}
	}
	if s, ok := payload["error"].(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}
