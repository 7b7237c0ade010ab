package validate

import (
	"strings"
	"testing"

	openai "github.com/sashabaranov/go-openai"

	"openrouter-gateway/pkg/registry"
)

type stubProvider map[string]registry.Capabilities

func (p stubProvider) Capabilities(model string) (registry.Capabilities, bool) {
	caps, ok := p[model]
	return caps, ok
}

var catalog = stubProvider{
	"textonly/model": {
		ID:              "textonly/model",
		InputModalities: []string{"text"},
	},
	"openai/gpt-4o": {
		ID:              "openai/gpt-4o",
		InputModalities: []string{"text", "image"},
	},
	"google/gemini-2.5-flash": {
		ID:              "google/gemini-2.5-flash",
		InputModalities: []string{"text", "image", "audio", "video", "file"},
	},
}

func textRequest(model string) *openai.ChatCompletionRequest {
	return &openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: "hello"},
		},
	}
}

func multimodalRequest(model string, parts ...openai.ChatMessagePart) *openai.ChatCompletionRequest {
	return &openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, MultiContent: parts},
		},
	}
}

func imagePart() openai.ChatMessagePart {
	return openai.ChatMessagePart{
		Type:     openai.ChatMessagePartTypeImageURL,
		ImageURL: &openai.ChatMessageImageURL{URL: "data:image/png;base64,AAAA"},
	}
}

func TestTextOnlyContentIsAlwaysValid(t *testing.T) {
	res := Request(textRequest("textonly/model"), catalog, "req-1")
	if !res.Valid {
		t.Fatalf("text-only request rejected: %s", res.Reason)
	}
}

func TestImageInputAgainstTextOnlyModelIsRejected(t *testing.T) {
	res := Request(multimodalRequest("textonly/model", imagePart()), catalog, "req-2")
	if res.Valid {
		t.Fatalf("image input against text-only model accepted")
	}
	if res.MissingCapability != registry.ModalityImage {
		t.Fatalf("MissingCapability = %q, want %q", res.MissingCapability, registry.ModalityImage)
	}
	if len(res.SuggestedModels) == 0 {
		t.Fatalf("rejection carries no suggested models")
	}
	if !strings.Contains(res.Reason, "textonly/model") {
		t.Fatalf("reason does not name the rejected model: %q", res.Reason)
	}
}

func TestImageInputAgainstVisionModelIsValid(t *testing.T) {
	res := Request(multimodalRequest("openai/gpt-4o", imagePart()), catalog, "req-3")
	if !res.Valid {
		t.Fatalf("image input against vision model rejected: %s", res.Reason)
	}
}

// Registry gaps must not block traffic: a model the catalog does not know
// passes validation unconditionally.
func TestUnknownModelIsPermissive(t *testing.T) {
	res := Request(multimodalRequest("brand-new/model", imagePart()), catalog, "req-4")
	if !res.Valid {
		t.Fatalf("unknown model rejected: %s", res.Reason)
	}
}

func TestFirstViolationWins(t *testing.T) {
	req := multimodalRequest("openai/gpt-4o",
		openai.ChatMessagePart{Type: "input_audio"},
		openai.ChatMessagePart{Type: "video_url"},
	)
	res := Request(req, catalog, "req-5")
	if res.Valid {
		t.Fatalf("audio+video against image-only model accepted")
	}
	if res.MissingCapability != registry.ModalityAudio {
		t.Fatalf("MissingCapability = %q, want first violation %q", res.MissingCapability, registry.ModalityAudio)
	}
}

func TestAudioAndFilePartTypesMapToModalities(t *testing.T) {
	cases := []struct {
		partType string
		want     string
	}{
		{"input_audio", registry.ModalityAudio},
		{"audio_url", registry.ModalityAudio},
		{"video_url", registry.ModalityVideo},
		{"file", registry.ModalityFile},
	}
	for _, tc := range cases {
		req := multimodalRequest("textonly/model", openai.ChatMessagePart{Type: openai.ChatMessagePartType(tc.partType)})
		res := Request(req, catalog, "req-6")
		if res.Valid {
			t.Fatalf("part type %q accepted against text-only model", tc.partType)
		}
		if res.MissingCapability != tc.want {
			t.Fatalf("part type %q mapped to %q, want %q", tc.partType, res.MissingCapability, tc.want)
		}
	}
}

// Part types this gateway does not recognize pass through untouched; the
// aggregation API owns the final word on them.
func TestUnrecognizedPartTypePassesThrough(t *testing.T) {
	req := multimodalRequest("textonly/model", openai.ChatMessagePart{Type: "3d_model"})
	res := Request(req, catalog, "req-7")
	if !res.Valid {
		t.Fatalf("unrecognized part type rejected: %s", res.Reason)
	}
}

func TestFullyCapableModelAcceptsEverything(t *testing.T) {
	req := multimodalRequest("google/gemini-2.5-flash",
		imagePart(),
		openai.ChatMessagePart{Type: "input_audio"},
		openai.ChatMessagePart{Type: "video_url"},
		openai.ChatMessagePart{Type: "file"},
	)
	if res := Request(req, catalog, "req-8"); !res.Valid {
		t.Fatalf("fully capable model rejected: %s", res.Reason)
	}
}

func TestNilRequestIsValid(t *testing.T) {
	if res := Request(nil, catalog, "req-9"); !res.Valid {
		t.Fatalf("nil request rejected")
	}
}
