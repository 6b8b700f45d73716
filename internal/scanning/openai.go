package scanning

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// OpenAIConfig configures the OpenAI scanner
type OpenAIConfig struct {
	BaseURL   string        // default https://api.openai.com/v1
	Model     string        // default gpt-4o
	MaxTokens int           // default 300
	Timeout   time.Duration // per call, default 60s
}

// OpenAI implements the Scanner interface using the OpenAI chat completions API
type OpenAI struct {
	cfg    OpenAIConfig
	client *http.Client
}

// NewOpenAI creates a new OpenAI Scanner instance
func NewOpenAI(cfg OpenAIConfig) (*OpenAI, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 300
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}

	return &OpenAI{
		cfg:    cfg,
		client: &http.Client{},
	}, nil
}

type openAIChatRequest struct {
	Model     string          `json:"model"`
	Messages  []openAIMessage `json:"messages"`
	MaxTokens int             `json:"max_tokens"`
}

type openAIMessage struct {
	Role    string              `json:"role"`
	Content []openAIContentPart `json:"content"`
}

type openAIContentPart struct {
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`
	ImageURL *openAIImageURL `json:"image_url,omitempty"`
}

type openAIImageURL struct {
	URL string `json:"url"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// ScanBill sends the bill image to the chat completions endpoint and returns the answer text
func (o *OpenAI) ScanBill(ctx context.Context, img *Image, apiKey string) (string, error) {
	if strings.TrimSpace(apiKey) == "" {
		return "", ErrMissingCredentials
	}

	ctx, cancel := context.WithTimeout(ctx, o.cfg.Timeout)
	defer cancel()

	reqID := uuid.NewString()
	start := time.Now()

	reqBody := openAIChatRequest{
		Model:     o.cfg.Model,
		MaxTokens: o.cfg.MaxTokens,
		Messages: []openAIMessage{
			{
				Role: "user",
				Content: []openAIContentPart{
					{Type: "text", Text: billScanPrompt},
					{Type: "image_url", ImageURL: &openAIImageURL{URL: img.DataURL()}},
				},
			},
		},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	url := strings.TrimRight(o.cfg.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	slog.Debug("Sending bill to OpenAI", "req_id", reqID, "model", o.cfg.Model, "path", img.Path, "bytes", len(jsonData))

	resp, err := o.client.Do(req)
	if err != nil {
		return "", &TransportError{Provider: "openai", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &TransportError{Provider: "openai", Err: fmt.Errorf("reading response: %w", err)}
	}

	slog.Debug("OpenAI responded",
		"req_id", reqID,
		"status", resp.StatusCode,
		"bytes", len(body),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode/100 != 2 {
		return "", &TransportError{Provider: "openai", StatusCode: resp.StatusCode, Body: string(body)}
	}

	var chatResp openAIChatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return "", &TransportError{Provider: "openai", Err: fmt.Errorf("decoding response: %w", err)}
	}
	if len(chatResp.Choices) == 0 {
		return "", &TransportError{Provider: "openai", Err: fmt.Errorf("no choices in response")}
	}

	return chatResp.Choices[0].Message.Content, nil
}

// RequiresKey reports that OpenAI always needs an API key
func (o *OpenAI) RequiresKey() bool {
	return true
}

// Close is a no-op for the HTTP client
func (o *OpenAI) Close() error {
	return nil
}
