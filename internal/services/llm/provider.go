// -----------------------------------------------------------------------
// Model adapters - pluggable template generation providers
// -----------------------------------------------------------------------

package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/ternarybob/arbor"
	"google.golang.org/genai"

	"github.com/ternarybob/pagesmith/internal/common"
	"github.com/ternarybob/pagesmith/internal/models"
)

// ProviderType represents the AI provider type
type ProviderType string

const (
	// ProviderGemini uses Google Gemini API
	ProviderGemini ProviderType = "gemini"
	// ProviderClaude uses Anthropic Claude API
	ProviderClaude ProviderType = "claude"
)

const rawResponseCap = 2000

// Generator is the worker's view of a model adapter. Adapters never
// return an error: every outcome is folded into the GenerationResult
// classification (success, retryable, permanent).
type Generator interface {
	Generate(ctx context.Context, prompt string) *models.GenerationResult
	Provider() ProviderType
	Close() error
}

// Service generates template packages through the configured provider.
// Clients are created lazily on first use; initialization is guarded so
// concurrent workers share one client per provider.
type Service struct {
	geminiConfig *common.GeminiConfig
	claudeConfig *common.ClaudeConfig
	llmConfig    *common.LLMConfig
	logger       arbor.ILogger

	geminiOnce   sync.Once
	geminiClient *genai.Client
	geminiErr    error

	claudeOnce   sync.Once
	claudeClient *anthropic.Client
	claudeErr    error
}

// NewService creates a generation service for the configured provider
func NewService(
	geminiConfig *common.GeminiConfig,
	claudeConfig *common.ClaudeConfig,
	llmConfig *common.LLMConfig,
	logger arbor.ILogger,
) *Service {
	return &Service{
		geminiConfig: geminiConfig,
		claudeConfig: claudeConfig,
		llmConfig:    llmConfig,
		logger:       logger,
	}
}

// Provider returns the configured provider type
func (s *Service) Provider() ProviderType {
	if s.llmConfig.DefaultProvider == common.LLMProviderClaude {
		return ProviderClaude
	}
	return ProviderGemini
}

// Generate runs one model call under the per-call timeout and classifies
// the outcome
func (s *Service) Generate(ctx context.Context, prompt string) *models.GenerationResult {
	provider := s.Provider()

	var (
		text string
		err  error
	)
	switch provider {
	case ProviderClaude:
		text, err = s.generateWithClaude(ctx, prompt)
	default:
		text, err = s.generateWithGemini(ctx, prompt)
	}

	if err != nil {
		s.logger.Warn().
			Str("provider", string(provider)).
			Err(err).
			Msg("Model call failed")
		return &models.GenerationResult{
			Success:    false,
			Error:      err.Error(),
			StatusCode: StatusCodeOf(err),
			Retryable:  IsRetryable(err),
			RetryAfter: ExtractRetryDelay(err),
		}
	}

	template, parseErr := extractTemplateJSON(text)
	if parseErr != nil {
		s.logger.Warn().
			Str("provider", string(provider)).
			Err(parseErr).
			Msg("Model returned unparseable template")
		// Malformed output is transient; the next attempt may produce
		// valid JSON
		return &models.GenerationResult{
			Success:     false,
			Error:       parseErr.Error(),
			RawResponse: truncate(text, rawResponseCap),
			Retryable:   true,
		}
	}

	return &models.GenerationResult{
		Success:     true,
		Template:    template,
		RawResponse: truncate(text, rawResponseCap),
	}
}

func (s *Service) generateWithGemini(ctx context.Context, prompt string) (string, error) {
	client, err := s.getGeminiClient(ctx)
	if err != nil {
		return "", err
	}

	timeout := common.ParseDurationOr(s.geminiConfig.Timeout, 2*time.Minute)
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	config := &genai.GenerateContentConfig{
		Temperature:       genai.Ptr(s.geminiConfig.Temperature),
		SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
		ResponseMIMEType:  "application/json",
		ResponseSchema:    responseSchema,
	}

	resp, err := client.Models.GenerateContent(callCtx, s.geminiConfig.Model, genai.Text(prompt), config)
	if err != nil {
		return "", fmt.Errorf("gemini call failed: %w", err)
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return "", fmt.Errorf("empty response from Gemini API")
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("empty text in Gemini response")
	}
	return text, nil
}

func (s *Service) generateWithClaude(ctx context.Context, prompt string) (string, error) {
	client, err := s.getClaudeClient()
	if err != nil {
		return "", err
	}

	timeout := common.ParseDurationOr(s.claudeConfig.Timeout, 2*time.Minute)
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	maxTokens := s.claudeConfig.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 8192
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(s.claudeConfig.Model),
		MaxTokens: int64(maxTokens),
		System:    []anthropic.TextBlockParam{{Text: systemPrompt}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if s.claudeConfig.Temperature > 0 {
		params.Temperature = anthropic.Float(float64(s.claudeConfig.Temperature))
	}

	resp, err := client.Messages.New(callCtx, params)
	if err != nil {
		return "", fmt.Errorf("claude call failed: %w", err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return "", fmt.Errorf("empty response from Claude API")
	}
	return text.String(), nil
}

func (s *Service) getGeminiClient(ctx context.Context) (*genai.Client, error) {
	s.geminiOnce.Do(func() {
		if s.geminiConfig.APIKey == "" {
			s.geminiErr = fmt.Errorf("gemini API key not configured")
			return
		}
		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  s.geminiConfig.APIKey,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			s.geminiErr = fmt.Errorf("failed to create Gemini client: %w", err)
			return
		}
		s.geminiClient = client
	})
	return s.geminiClient, s.geminiErr
}

func (s *Service) getClaudeClient() (*anthropic.Client, error) {
	s.claudeOnce.Do(func() {
		if s.claudeConfig.APIKey == "" {
			s.claudeErr = fmt.Errorf("anthropic API key not configured")
			return
		}
		client := anthropic.NewClient(option.WithAPIKey(s.claudeConfig.APIKey))
		s.claudeClient = &client
	})
	return s.claudeClient, s.claudeErr
}

// Close releases provider clients. Neither SDK holds connections that
// need explicit teardown.
func (s *Service) Close() error {
	return nil
}

// extractTemplateJSON decodes the model output into a raw template tree.
// Markdown code fences are tolerated even though the prompt forbids them.
func extractTemplateJSON(text string) (map[string]any, error) {
	cleaned := strings.TrimSpace(text)
	if strings.HasPrefix(cleaned, "```") {
		cleaned = strings.TrimPrefix(cleaned, "```json")
		cleaned = strings.TrimPrefix(cleaned, "```")
		if idx := strings.LastIndex(cleaned, "```"); idx >= 0 {
			cleaned = cleaned[:idx]
		}
		cleaned = strings.TrimSpace(cleaned)
	}

	var template map[string]any
	if err := json.Unmarshal([]byte(cleaned), &template); err != nil {
		return nil, fmt.Errorf("invalid JSON in model response: %w", err)
	}
	return template, nil
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}
