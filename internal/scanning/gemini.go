package scanning

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/google/uuid"
	"google.golang.org/api/option"
)

// Gemini implements the Scanner interface using Google Gemini
type Gemini struct {
	modelName string
	timeout   time.Duration
}

// NewGemini creates a new Gemini Scanner instance.
// The API key is supplied per call, so the client is created on each scan.
func NewGemini(modelName string, timeout time.Duration) (*Gemini, error) {
	if modelName == "" {
		modelName = "gemini-2.5-pro"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Gemini{
		modelName: modelName,
		timeout:   timeout,
	}, nil
}

// ScanBill analyzes a bill image and returns the model's text answer
func (g *Gemini) ScanBill(ctx context.Context, img *Image, apiKey string) (string, error) {
	if strings.TrimSpace(apiKey) == "" {
		return "", ErrMissingCredentials
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	reqID := uuid.NewString()
	start := time.Now()

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return "", fmt.Errorf("creating gemini client: %w", err)
	}
	defer client.Close()

	// genai.ImageData expects just the format suffix (e.g., "png"), not the full MIME type
	format := strings.TrimPrefix(img.MIMEType, "image/")
	parts := []genai.Part{
		genai.ImageData(format, img.Data),
		genai.Text(billScanPrompt),
	}

	resp, err := client.GenerativeModel(g.modelName).GenerateContent(ctx, parts...)
	if err != nil {
		return "", &TransportError{Provider: "gemini", Err: err}
	}

	slog.Debug("Gemini responded", "req_id", reqID, "path", img.Path, "elapsed_ms", time.Since(start).Milliseconds())

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", &TransportError{Provider: "gemini", Err: fmt.Errorf("no response from gemini")}
	}

	var responseText strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			responseText.WriteString(string(text))
		}
	}
	return responseText.String(), nil
}

// RequiresKey reports that Gemini always needs an API key
func (g *Gemini) RequiresKey() bool {
	return true
}

// Close is a no-op; clients are closed after each scan
func (g *Gemini) Close() error {
	return nil
}
