package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// Message is one chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Client sends a chat prompt to an LLM and returns the text answer.
type Client interface {
	Complete(ctx context.Context, messages []Message) (string, error)
}

// Options configures an OpenAI-compatible chat completions client.
type Options struct {
	BaseURL        string
	EndpointPath   string
	Model          string
	APIKey         string
	APIKeyEnv      string
	TimeoutSeconds int
	Temperature    float64
}

func (o *Options) defaults() {
	if o.BaseURL == "" {
		o.BaseURL = "https://api.openai.com/v1"
	}
	if o.EndpointPath == "" {
		o.EndpointPath = "/chat/completions"
	}
	if o.Model == "" {
		o.Model = "gpt-4o-mini"
	}
	if o.APIKeyEnv == "" {
		o.APIKeyEnv = "OPENAI_API_KEY"
	}
	if o.TimeoutSeconds <= 0 {
		o.TimeoutSeconds = 60
	}
}

// OpenAIClient calls the chat completions API in JSON object mode.
type OpenAIClient struct {
	url         string
	apiKey      string
	model       string
	temperature float64
	do          func(*http.Request) (*http.Response, error)
}

// NewOpenAIClient creates a client. The API key comes from opts.APIKey or
// the opts.APIKeyEnv environment variable.
func NewOpenAIClient(opts Options) (*OpenAIClient, error) {
	opts.defaults()
	key := opts.APIKey
	if key == "" {
		key = os.Getenv(opts.APIKeyEnv)
	}
	if key == "" {
		return nil, fmt.Errorf("openai: %w: missing api key (%s)", ErrInvalidInput, opts.APIKeyEnv)
	}

	url := opts.EndpointPath
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		url = strings.TrimRight(opts.BaseURL, "/") + "/" + strings.TrimLeft(opts.EndpointPath, "/")
	}
	hc := &http.Client{Timeout: time.Duration(opts.TimeoutSeconds) * time.Second}

	return &OpenAIClient{
		url:         url,
		apiKey:      key,
		model:       opts.Model,
		temperature: opts.Temperature,
		do:          hc.Do,
	}, nil
}

// Model returns the configured model name.
func (c *OpenAIClient) Model() string {
	return c.model
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Complete sends messages and returns the first choice's content.
func (c *OpenAIClient) Complete(ctx context.Context, messages []Message) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:          c.model,
		Messages:       messages,
		Temperature:    c.temperature,
		ResponseFormat: &responseFormat{Type: "json_object"},
	})
	if err != nil {
		return "", fmt.Errorf("encode: %v: %w", err, ErrInvalidInput)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new request: %v: %w", err, ErrInvalidInput)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "", ctx.Err()
		}
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", ErrRateLimited
	}
	if resp.StatusCode/100 != 2 {
		slurp, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		msg := strings.TrimSpace(string(slurp))
		if resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode/100 == 5 {
			return "", &UpstreamError{Status: resp.StatusCode, Message: msg}
		}
		return "", fmt.Errorf("openai upstream %d: %s: %w", resp.StatusCode, msg, ErrInvalidInput)
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode: %w", ErrResponseInvalid)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("no choices: %w", ErrResponseInvalid)
	}
	return out.Choices[0].Message.Content, nil
}
