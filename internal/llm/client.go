package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/openai/openai-go/v3"
)

// HTTPConfig describes the completion endpoint and request shape.
type HTTPConfig struct {
	URL     string
	Model   string
	System  string
	Timeout time.Duration
	// HTTPClient defaults to http.DefaultClient.
	HTTPClient *http.Client
}

// HTTPClient posts chat requests to an OpenAI-compatible endpoint. It keeps
// the raw response body of failed calls, which the SDK client would replace
// with its own error type.
type HTTPClient struct {
	apiKey  string
	url     string
	model   openai.ChatModel
	system  string
	timeout time.Duration
	http    *http.Client
}

// NewHTTPClient builds a client bound to one API key.
func NewHTTPClient(apiKey string, cfg HTTPConfig) (*HTTPClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("api key required")
	}
	if cfg.URL == "" {
		return nil, fmt.Errorf("completion url required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model required")
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	return &HTTPClient{
		apiKey:  apiKey,
		url:     cfg.URL,
		model:   openai.ChatModel(cfg.Model),
		system:  cfg.System,
		timeout: cfg.Timeout,
		http:    hc,
	}, nil
}

// Complete issues a single POST. Non-200 responses come back as *APIError.
func (c *HTTPClient) Complete(ctx context.Context, prompt string) (Answer, error) {
	if c == nil || c.http == nil {
		return Answer{}, fmt.Errorf("nil completion client")
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	body, err := json.Marshal(openai.ChatCompletionNewParams{
		Model:    c.model,
		Messages: buildMessages(c.system, prompt),
	})
	if err != nil {
		return Answer{}, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return Answer{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Answer{}, fmt.Errorf("post completion: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Answer{}, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Answer{}, &APIError{StatusCode: resp.StatusCode, Body: string(raw)}
	}

	var completion openai.ChatCompletion
	if err := json.Unmarshal(raw, &completion); err != nil {
		return Answer{}, fmt.Errorf("decode response: %w", err)
	}
	if len(completion.Choices) == 0 {
		return Answer{}, errors.New("completion: no choices returned")
	}
	model := completion.Model
	if model == "" {
		model = string(c.model)
	}
	return Answer{Text: completion.Choices[0].Message.Content, Model: model}, nil
}

func buildMessages(system, user string) []openai.ChatCompletionMessageParamUnion {
	return []openai.ChatCompletionMessageParamUnion{
		{
			OfSystem: &openai.ChatCompletionSystemMessageParam{
				Content: openai.ChatCompletionSystemMessageParamContentUnion{
					OfString: openai.String(system),
				},
			},
		},
		{
			OfUser: &openai.ChatCompletionUserMessageParam{
				Content: openai.ChatCompletionUserMessageParamContentUnion{
					OfString: openai.String(user),
				},
			},
		},
	}
}
