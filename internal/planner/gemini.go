package planner

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"google.golang.org/genai"
)

// DefaultGeminiModel is used when no model is configured for the gemini
// provider.
const DefaultGeminiModel = "gemini-1.5-flash"

// GeminiModel adapts the Google GenAI client to llms.Model so the gateway
// treats it like any other provider.
type GeminiModel struct {
	client *genai.Client
	model  string
}

var _ llms.Model = (*GeminiModel)(nil)

// NewGeminiModel creates a Gemini API client. baseURL is optional and only
// needed for proxies.
func NewGeminiModel(ctx context.Context, apiKey, model, baseURL string) (*GeminiModel, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GenAI API key is required")
	}
	if model == "" {
		model = DefaultGeminiModel
	}

	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &GeminiModel{client: client, model: model}, nil
}

func (m *GeminiModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	opts := llms.CallOptions{}
	for _, o := range options {
		o(&opts)
	}

	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(opts.Temperature)),
	}

	var contents []*genai.Content
	for _, msg := range messages {
		text := textOf(msg.Parts)
		switch msg.Role {
		case llms.ChatMessageTypeSystem:
			cfg.SystemInstruction = genai.NewContentFromText(text, genai.RoleUser)
		case llms.ChatMessageTypeAI:
			contents = append(contents, genai.NewContentFromText(text, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(text, genai.RoleUser))
		}
	}

	resp, err := m.client.Models.GenerateContent(ctx, m.model, contents, cfg)
	if err != nil {
		return nil, fmt.Errorf("GenAI generate failed: %w", err)
	}
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: resp.Text()}},
	}, nil
}

func (m *GeminiModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

func textOf(parts []llms.ContentPart) string {
	var b strings.Builder
	for _, p := range parts {
		if t, ok := p.(llms.TextContent); ok {
			b.WriteString(t.Text)
		}
	}
	return b.String()
}
