// Package advisory wraps the optional language-model service used for intent
// re-scoring, prompt rewriting, and conversational replies.
//
// The service is strictly best-effort: one attempt, a bounded wait, no
// retries. Every caller must have a deterministic fallback; absence of this
// service never disables generation.
package advisory

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/genai"
)

// DefaultModelName is the Gemini model used when DIRECTOR_ADVISORY_MODEL is unset.
const DefaultModelName = "gemini-3-flash-preview"

// DefaultTimeout bounds a single advisory call.
const DefaultTimeout = 20 * time.Second

// Service is the advisory language-model contract. Implementations must be
// safe for concurrent use.
type Service interface {
	// Complete sends one system+user prompt pair and returns the raw text
	// response. Errors are expected and callers degrade on them.
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// GeminiService implements Service over the Gemini API.
type GeminiService struct {
	client  *genai.Client
	model   string
	timeout time.Duration
}

// NewGeminiService creates a GeminiService with the model name taken from
// DIRECTOR_ADVISORY_MODEL (default DefaultModelName).
func NewGeminiService(client *genai.Client) *GeminiService {
	model := os.Getenv("DIRECTOR_ADVISORY_MODEL")
	if model == "" {
		model = DefaultModelName
	}
	return &GeminiService{client: client, model: model, timeout: DefaultTimeout}
}

// NewGeminiServiceWithModel creates a GeminiService pinned to an explicit
// model name, bypassing the environment lookup.
func NewGeminiServiceWithModel(client *genai.Client, model string) *GeminiService {
	if model == "" {
		model = DefaultModelName
	}
	return &GeminiService{client: client, model: model, timeout: DefaultTimeout}
}

// Complete sends a single generation request to Gemini and returns the text.
func (s *GeminiService) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	config := &genai.GenerateContentConfig{}
	if systemPrompt != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: systemPrompt}},
		}
	}
	contents := []*genai.Content{
		{Role: "user", Parts: []*genai.Part{{Text: userPrompt}}},
	}

	start := time.Now()
	resp, err := s.client.Models.GenerateContent(ctx, s.model, contents, config)
	elapsed := time.Since(start)

	if err != nil {
		log.Warn().Err(err).Dur("duration", elapsed).Str("model", s.model).Msg("Advisory call failed")
		return "", fmt.Errorf("advisory generate content: %w", err)
	}
	if resp == nil || strings.TrimSpace(resp.Text()) == "" {
		log.Warn().Dur("duration", elapsed).Str("model", s.model).Msg("Advisory call returned empty response")
		return "", fmt.Errorf("advisory returned empty response")
	}

	log.Debug().
		Int("response_length", len(resp.Text())).
		Dur("duration", elapsed).
		Str("model", s.model).
		Msg("Advisory response received")

	return resp.Text(), nil
}
