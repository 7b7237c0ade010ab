package registry

// Modality names match the catalog's input_modalities values.
const (
	ModalityText  = "text"
	ModalityImage = "image"
	ModalityAudio = "audio"
	ModalityVideo = "video"
	ModalityFile  = "file"
)

// suggestionTable maps a missing input modality to models known to support
// it, best first. Static and curated; capability errors surface these so the
// caller does not have to dig through the catalog.
var suggestionTable = map[string][]string{
	ModalityImage: {
		"openai/gpt-4o",
		"anthropic/claude-sonnet-4",
		"google/gemini-2.5-flash",
		"qwen/qwen2.5-vl-72b-instruct",
	},
	ModalityAudio: {
		"google/gemini-2.5-flash",
		"openai/gpt-4o-audio-preview",
		"google/gemini-2.5-pro",
	},
	ModalityVideo: {
		"google/gemini-2.5-flash",
		"google/gemini-2.5-pro",
	},
	ModalityFile: {
		"anthropic/claude-sonnet-4",
		"google/gemini-2.5-flash",
		"openai/gpt-4o",
	},
}

// SuggestedModels returns the ranked alternatives for a missing modality.
// The slice is a copy; callers may reorder it.
func SuggestedModels(modality string) []string {
	models, ok := suggestionTable[modality]
	if !ok {
		return nil
	}
	return append([]string(nil), models...)
}
