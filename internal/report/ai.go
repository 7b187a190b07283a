package report

import (
	"context"
	"fmt"
	"sync"

	"google.golang.org/genai"

	"github.com/Dimkaghb/chocosync/internal/transport"
)

// ConfigSynthesizer turns a prompt into JSON-bearing text. The coordinator
// does not care how: through the backend's agent endpoint or a model SDK.
type ConfigSynthesizer interface {
	Synthesize(ctx context.Context, prompt string) (string, error)
}

// AgentSynthesizer uses the backend's AI agent endpoint.
type AgentSynthesizer struct {
	tr *transport.Client
}

// NewAgentSynthesizer creates a synthesizer over the backend agent.
func NewAgentSynthesizer(tr *transport.Client) *AgentSynthesizer {
	return &AgentSynthesizer{tr: tr}
}

func (s *AgentSynthesizer) Synthesize(ctx context.Context, prompt string) (string, error) {
	return s.tr.RunAgent(ctx, prompt)
}

// GeminiSynthesizer calls Gemini directly through the genai SDK, for
// deployments without a backend agent.
type GeminiSynthesizer struct {
	apiKey  string
	model   string
	once    sync.Once
	client  *genai.Client
	initErr error
}

// NewGeminiSynthesizer creates a Gemini-backed synthesizer.
func NewGeminiSynthesizer(apiKey, model string) *GeminiSynthesizer {
	return &GeminiSynthesizer{apiKey: apiKey, model: model}
}

func (s *GeminiSynthesizer) ensureClient(ctx context.Context) error {
	s.once.Do(func() {
		s.client, s.initErr = genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  s.apiKey,
			Backend: genai.BackendGeminiAPI,
		})
	})
	return s.initErr
}

func (s *GeminiSynthesizer) Synthesize(ctx context.Context, prompt string) (string, error) {
	if err := s.ensureClient(ctx); err != nil {
		return "", fmt.Errorf("gemini: client init failed: %w", err)
	}
	resp, err := s.client.Models.GenerateContent(ctx, s.model, genai.Text(prompt), nil)
	if err != nil {
		return "", fmt.Errorf("gemini: %w", err)
	}
	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("gemini: empty response")
	}
	return text, nil
}
