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

// Ollama implements the Scanner interface using a local Ollama server
type Ollama struct {
	baseURL string
	model   string
	timeout time.Duration
	client  *http.Client
}

// NewOllama creates a new Ollama Scanner instance
// Vision models that read bills reasonably well:
//   - llava:1.6
//   - qwen2-vl:7b (good OCR capabilities)
//   - llava-phi3 (smaller, faster, but less accurate)
func NewOllama(baseURL string, modelName string, timeout time.Duration) (*Ollama, error) {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if modelName == "" {
		modelName = "llava"
	}
	if timeout <= 0 {
		timeout = 120 * time.Second // Ollama can be slow for vision models
	}

	return &Ollama{
		baseURL: baseURL,
		model:   modelName,
		timeout: timeout,
		client:  &http.Client{},
	}, nil
}

// ollamaChatRequest represents the request body for Ollama's chat API
type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
}

type ollamaMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

// ollamaChatResponse represents the response from Ollama's chat API
type ollamaChatResponse struct {
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
}

// ScanBill sends the bill image to Ollama and returns the answer text.
// The API key is ignored.
func (o *Ollama) ScanBill(ctx context.Context, img *Image, _ string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	reqID := uuid.NewString()
	start := time.Now()

	reqBody := ollamaChatRequest{
		Model:  o.model,
		Stream: false,
		Messages: []ollamaMessage{
			{
				Role:    "system",
				Content: "You are an expert at reading utility bills. You must carefully read all text in images and extract accurate information.",
			},
			{
				Role:    "user",
				Content: billScanPrompt,
				Images:  []string{img.Base64()},
			},
		},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	url := strings.TrimRight(o.baseURL, "/") + "/api/chat"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return "", &TransportError{Provider: "ollama", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", &TransportError{Provider: "ollama", StatusCode: resp.StatusCode, Body: string(body)}
	}

	var chatResp ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", &TransportError{Provider: "ollama", Err: fmt.Errorf("decoding response: %w", err)}
	}

	slog.Debug("Ollama responded", "req_id", reqID, "path", img.Path, "elapsed_ms", time.Since(start).Milliseconds())

	return chatResp.Message.Content, nil
}

// RequiresKey reports that a local Ollama server needs no API key
func (o *Ollama) RequiresKey() bool {
	return false
}

// Close closes the Ollama client (no-op for HTTP client)
func (o *Ollama) Close() error {
	return nil
}
