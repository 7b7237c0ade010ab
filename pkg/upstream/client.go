package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"openrouter-gateway/pkg/version"
)

// AuthScheme is the credential class an aggregation-API endpoint requires.
// Each endpoint has exactly one; picking the wrong one is a caller bug and is
// rejected before any network I/O.
type AuthScheme int

const (
	AuthNone AuthScheme = iota
	AuthAPIKey
	AuthProvisioningKey
)

func (s AuthScheme) String() string {
	switch s {
	case AuthAPIKey:
		return "api-key"
	case AuthProvisioningKey:
		return "provisioning-key"
	default:
		return "none"
	}
}

type Endpoint struct {
	Method string
	Path   string
	Auth   AuthScheme
}

var (
	EndpointModels          = Endpoint{Method: http.MethodGet, Path: "/models", Auth: AuthNone}
	EndpointChatCompletions = Endpoint{Method: http.MethodPost, Path: "/chat/completions", Auth: AuthAPIKey}
	EndpointCredits         = Endpoint{Method: http.MethodGet, Path: "/credits", Auth: AuthAPIKey}
	EndpointKeys            = Endpoint{Method: http.MethodGet, Path: "/keys", Auth: AuthProvisioningKey}
)

// HTTPError wraps a non-2xx upstream response for classification downstream.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("upstream status %d: %s", e.StatusCode, e.Body)
}

// CallerError marks a request that was malformed on our side, before any
// network I/O happened.
type CallerError struct {
	Reason string
}

func (e *CallerError) Error() string {
	return e.Reason
}

type Config struct {
	BaseURL         string
	APIKey          string
	ProvisioningKey string
	Timeout         time.Duration
	StreamTimeout   time.Duration
	// Referer and Title identify the gateway to the aggregation API.
	Referer string
	Title   string
}

// Client talks to the aggregation API. Buffered calls use a bounded timeout;
// streaming calls use a separate client with a generous timeout since SSE
// bodies are long-lived.
type Client struct {
	cfg          Config
	client       *http.Client
	streamClient *http.Client
}

func NewClient(cfg Config) *Client {
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.StreamTimeout <= 0 {
		cfg.StreamTimeout = 5 * time.Minute
	}
	if cfg.Referer == "" {
		cfg.Referer = "https://github.com/openrouter-gateway"
	}
	if cfg.Title == "" {
		cfg.Title = "OpenRouter Gateway"
	}
	return &Client{
		cfg:          cfg,
		client:       &http.Client{Timeout: cfg.Timeout},
		streamClient: &http.Client{Timeout: cfg.StreamTimeout},
	}
}

func (c *Client) credentialFor(scheme AuthScheme) (string, error) {
	switch scheme {
	case AuthNone:
		return "", nil
	case AuthAPIKey:
		if strings.TrimSpace(c.cfg.APIKey) == "" {
			return "", &CallerError{Reason: "endpoint requires an API key but none is configured"}
		}
		return c.cfg.APIKey, nil
	case AuthProvisioningKey:
		if strings.TrimSpace(c.cfg.ProvisioningKey) == "" {
			return "", &CallerError{Reason: "endpoint requires a provisioning key but none is configured"}
		}
		return c.cfg.ProvisioningKey, nil
	default:
		return "", &CallerError{Reason: fmt.Sprintf("unknown auth scheme %d", scheme)}
	}
}

func (c *Client) newRequest(ctx context.Context, ep Endpoint, body []byte) (*http.Request, error) {
	token, err := c.credentialFor(ep.Auth)
	if err != nil {
		return nil, err
	}
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, ep.Method, c.cfg.BaseURL+ep.Path, rd)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("HTTP-Referer", c.cfg.Referer)
	req.Header.Set("X-Title", c.cfg.Title)
	req.Header.Set("User-Agent", version.UserAgent())
	return req, nil
}

// Call issues a buffered request against ep and returns the response body,
// status and headers. Non-2xx responses come back as *HTTPError.
func (c *Client) Call(ctx context.Context, ep Endpoint, body []byte) ([]byte, int, http.Header, error) {
	req, err := c.newRequest(ctx, ep, body)
	if err != nil {
		return nil, 0, nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, nil, err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, resp.StatusCode, resp.Header.Clone(), err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, resp.StatusCode, resp.Header.Clone(), &HTTPError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	return b, resp.StatusCode, resp.Header.Clone(), nil
}

// Stream issues a request whose response body is relayed live by the caller.
// A non-2xx status is drained into an *HTTPError; on success the caller owns
// resp.Body and must close it.
func (c *Client) Stream(ctx context.Context, ep Endpoint, body []byte) (*http.Response, error) {
	req, err := c.newRequest(ctx, ep, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	resp, err := c.streamClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		resp.Body.Close()
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	return resp, nil
}

// ListModels fetches the model catalog. No credential required.
func (c *Client) ListModels(ctx context.Context) ([]Model, error) {
	b, _, _, err := c.Call(ctx, EndpointModels, nil)
	if err != nil {
		return nil, err
	}
	var out modelListResponse
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("decode models response: %w", err)
	}
	return out.Data, nil
}

// Credits fetches account credit state, api-key-scoped.
func (c *Client) Credits(ctx context.Context) (*Credits, error) {
	b, _, _, err := c.Call(ctx, EndpointCredits, nil)
	if err != nil {
		return nil, err
	}
	var out creditsResponse
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("decode credits response: %w", err)
	}
	return &out.Data, nil
}

// ListKeys fetches managed API keys, provisioning-key-scoped.
func (c *Client) ListKeys(ctx context.Context) ([]Key, error) {
	b, _, _, err := c.Call(ctx, EndpointKeys, nil)
	if err != nil {
		return nil, err
	}
	var out keyListResponse
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("decode keys response: %w", err)
	}
	return out.Data, nil
}

// ChatCompletion forwards a prepared request body, buffered. The upstream
// status is returned so the relay can preserve non-200 success codes.
func (c *Client) ChatCompletion(ctx context.Context, body []byte) ([]byte, int, http.Header, error) {
	return c.Call(ctx, EndpointChatCompletions, body)
}

// ChatCompletionStream forwards a prepared request body and hands back the
// live response for SSE relay.
func (c *Client) ChatCompletionStream(ctx context.Context, body []byte) (*http.Response, error) {
	return c.Stream(ctx, EndpointChatCompletions, body)
}
