package advisor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"
)

const (
	DefaultGeminiURL   = "https://generativelanguage.googleapis.com/"
	DefaultGeminiModel = "gemini-2.5-flash-lite"
)

// Model generates a text answer from a prompt and a JPEG image.
type Model interface {
	Generate(ctx context.Context, prompt string, jpeg []byte) (string, error)
}

var errMissingKey = errors.New("missing api key")

// GeminiClient asks a Gemini model through the genai SDK.
type GeminiClient struct {
	model  string
	client *genai.Client
}

var _ Model = (*GeminiClient)(nil)

// NewGeminiClient builds the SDK client. Without an API key every Generate call fails,
// which the advisor turns into the neutral recommendation.
func NewGeminiClient(ctx context.Context, baseURL, model, apiKey string, timeout time.Duration) (*GeminiClient, error) {
	if model == "" {
		model = DefaultGeminiModel
	}
	c := &GeminiClient{model: model}
	if apiKey == "" {
		return c, nil
	}
	if baseURL = strings.TrimSpace(baseURL); baseURL == "" {
		baseURL = DefaultGeminiURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      apiKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  &http.Client{Timeout: timeout},
		HTTPOptions: genai.HTTPOptions{BaseURL: baseURL},
	})
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	c.client = client
	return c, nil
}

func (c *GeminiClient) Generate(ctx context.Context, prompt string, jpeg []byte) (string, error) {
	if c.client == nil {
		return "", errMissingKey
	}

	parts := []*genai.Part{genai.NewPartFromText(prompt)}
	if len(jpeg) > 0 {
		parts = append(parts, genai.NewPartFromBytes(jpeg, "image/jpeg"))
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, nil)
	if err != nil {
		return "", fmt.Errorf("gemini: %w", err)
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return "", fmt.Errorf("gemini blocked prompt: %s", resp.PromptFeedback.BlockReason)
	}
	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("gemini returned no candidates")
	}
	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("gemini returned no text (finish reason %q)", resp.Candidates[0].FinishReason)
	}
	return text, nil
}
