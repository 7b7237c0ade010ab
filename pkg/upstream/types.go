package upstream

// Model is one catalog entry from the aggregation API. Only the fields the
// gateway consumes are mapped; the catalog carries more.
type Model struct {
	ID            string       `json:"id"`
	Name          string       `json:"name,omitempty"`
	Description   string       `json:"description,omitempty"`
	ContextLength int          `json:"context_length,omitempty"`
	Created       int64        `json:"created,omitempty"`
	Architecture  Architecture `json:"architecture"`
	Pricing       Pricing      `json:"pricing"`
	// SupportedParameters lists sampling parameters the model accepts
	// (temperature, top_p, tools, ...).
	SupportedParameters []string `json:"supported_parameters,omitempty"`
}

type Architecture struct {
	InputModalities  []string `json:"input_modalities,omitempty"`
	OutputModalities []string `json:"output_modalities,omitempty"`
	Tokenizer        string   `json:"tokenizer,omitempty"`
}

type Pricing struct {
	Prompt     string `json:"prompt,omitempty"`
	Completion string `json:"completion,omitempty"`
}

type modelListResponse struct {
	Data []Model `json:"data"`
}

// Credits is the account-credits payload (api-key-scoped endpoint).
type Credits struct {
	TotalCredits float64 `json:"total_credits"`
	TotalUsage   float64 `json:"total_usage"`
}

type creditsResponse struct {
	Data Credits `json:"data"`
}

// Key is one managed API key (provisioning-key-scoped endpoint).
type Key struct {
	Hash      string  `json:"hash"`
	Name      string  `json:"name"`
	Label     string  `json:"label,omitempty"`
	Disabled  bool    `json:"disabled"`
	Limit     float64 `json:"limit,omitempty"`
	Usage     float64 `json:"usage,omitempty"`
	CreatedAt string  `json:"created_at,omitempty"`
}

type keyListResponse struct {
	Data []Key `json:"data"`
}
