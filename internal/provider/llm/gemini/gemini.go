// Package gemini provides a coach.Suggester backed by the Gemini API.
package gemini

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/ashureev/fluentcoach/internal/coach"
	"github.com/ashureev/fluentcoach/internal/provider/llm"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gemini-2.0-flash"

// Provider implements coach.Suggester.
type Provider struct {
	client *genai.Client
	model  string
}

type config struct {
	baseURL string
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the Gemini API endpoint.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// New constructs a Provider.
func New(ctx context.Context, apiKey, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: apiKey must not be empty")
	}
	if model == "" {
		model = DefaultModel
	}
	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}

	cc := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.baseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.baseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	return &Provider{client: client, model: strings.TrimPrefix(model, "models/")}, nil
}

// Suggest implements coach.Suggester.
func (p *Provider) Suggest(ctx context.Context, req coach.SuggestRequest) (string, error) {
	contents := []*genai.Content{
		genai.NewContentFromText(llm.UserPrompt(req), genai.RoleUser),
	}
	resp, err := p.client.Models.GenerateContent(ctx, p.model, contents, buildConfig())
	if err != nil {
		return "", fmt.Errorf("gemini: generate content: %w", err)
	}
	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("gemini: no candidates")
	}
	return resp.Text(), nil
}

func buildConfig() *genai.GenerateContentConfig {
	return &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{genai.NewPartFromText(llm.SystemPrompt)},
		},
		ResponseMIMEType: "application/json",
		Temperature:      genai.Ptr[float32](0.3),
	}
}
