package validate

import (
	"fmt"
	"strings"

	log "github.com/charmbracelet/log"
	openai "github.com/sashabaranov/go-openai"

	"openrouter-gateway/pkg/registry"
)

// Content part types seen on the OpenAI-compatible wire. The SDK only names
// text and image_url; the rest are declared here so the switch stays explicit.
const (
	partTypeText       = "text"
	partTypeImageURL   = "image_url"
	partTypeInputAudio = "input_audio"
	partTypeAudioURL   = "audio_url"
	partTypeVideoURL   = "video_url"
	partTypeFile       = "file"
)

// Result is the outcome of capability validation. A zero MissingCapability
// means Valid.
type Result struct {
	Valid             bool
	Reason            string
	MissingCapability string
	SuggestedModels   []string
}

func valid() Result {
	return Result{Valid: true}
}

// Request checks every message content part of req against the target model's
// declared input modalities.
//
// Policy, in order:
//   - purely textual content is always valid, no registry lookup;
//   - a model the registry does not know is valid (metadata gaps must not
//     block traffic);
//   - the first part whose modality is missing from the model's capabilities
//     fails the request, carrying curated alternative models.
func Request(req *openai.ChatCompletionRequest, provider registry.Provider, correlationID string) Result {
	if req == nil {
		return valid()
	}
	modalities := requestedModalities(req.Messages)
	if len(modalities) == 0 {
		return valid()
	}

	caps, known := provider.Capabilities(req.Model)
	if !known {
		log.Debug("model unknown to registry, skipping capability validation",
			"req", correlationID, "model", req.Model)
		return valid()
	}

	supported := make(map[string]struct{}, len(caps.InputModalities))
	for _, m := range caps.InputModalities {
		supported[strings.ToLower(strings.TrimSpace(m))] = struct{}{}
	}
	for _, modality := range modalities {
		if _, ok := supported[modality]; ok {
			continue
		}
		suggestions := registry.SuggestedModels(modality)
		log.Info("rejecting request for unsupported input modality",
			"req", correlationID, "model", req.Model, "modality", modality)
		return Result{
			Reason: fmt.Sprintf("model %s does not support %s input; try one of: %s",
				req.Model, modality, strings.Join(suggestions, ", ")),
			MissingCapability: modality,
			SuggestedModels:   suggestions,
		}
	}
	return valid()
}

// requestedModalities walks message content parts in order and returns the
// non-text modalities they declare, first occurrence first.
func requestedModalities(messages []openai.ChatCompletionMessage) []string {
	var out []string
	seen := map[string]struct{}{}
	add := func(m string) {
		if _, ok := seen[m]; ok {
			return
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	for _, msg := range messages {
		for _, part := range msg.MultiContent {
			if m := partModality(string(part.Type)); m != "" {
				add(m)
			}
		}
	}
	return out
}

func partModality(partType string) string {
	switch strings.ToLower(strings.TrimSpace(partType)) {
	case partTypeImageURL:
		return registry.ModalityImage
	case partTypeInputAudio, partTypeAudioURL:
		return registry.ModalityAudio
	case partTypeVideoURL, "video":
		return registry.ModalityVideo
	case partTypeFile:
		return registry.ModalityFile
	case partTypeText, "":
		return ""
	default:
		// Unrecognized part types pass through; upstream owns the final word.
		return ""
	}
}
