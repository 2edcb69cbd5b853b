package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/studyhub-io/studyhub-api/pkg/config"
)

// Gemini generates text via the Google Generative AI API. It backs the chat
// assistant, quiz generation, and material summarization.
type Gemini struct {
	cfg    config.LLMConfig
	logger *zap.Logger
}

// NewGemini constructs a client wrapper. The API key is validated lazily on
// first call so the server can boot without one when LLM features are off.
func NewGemini(cfg config.LLMConfig, logger *zap.Logger) *Gemini {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.0-flash"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Gemini{cfg: cfg, logger: logger}
}

// Generate sends the prompt and returns the first candidate's text.
func (g *Gemini) Generate(ctx context.Context, prompt string) (string, error) {
	if g.cfg.APIKey == "" {
		return "", fmt.Errorf("llm api key not configured")
	}

	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	client, err := genai.NewClient(ctx, option.WithAPIKey(g.cfg.APIKey))
	if err != nil {
		return "", fmt.Errorf("create llm client: %w", err)
	}
	defer client.Close() //nolint:errcheck

	model := client.GenerativeModel(g.cfg.Model)
	start := time.Now()
	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("llm generate: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("llm returned no candidates")
	}

	g.logger.Debug("llm completion",
		zap.String("model", g.cfg.Model),
		zap.Duration("latency", time.Since(start)),
	)

	return fmt.Sprintf("%v", resp.Candidates[0].Content.Parts[0]), nil
}
