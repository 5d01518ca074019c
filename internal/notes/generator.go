// Package notes generates study notes for a book with an LLM and renders
// them for reading and export.
package notes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgallion1/bookshelf/internal/remote"
)

// Generator produces a completion for a single prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	Model() string
	Stats() StatsSnapshot
}

// ProviderConfig selects and configures a Generator.
type ProviderConfig struct {
	Provider        string
	AnthropicAPIKey string
	AnthropicModel  string
	OpenAIAPIKey    string
	OpenAIModel     string
}

// NewGenerator returns the configured Generator, or nil when notes are
// disabled.
func NewGenerator(cfg ProviderConfig) (Generator, error) {
	switch cfg.Provider {
	case "":
		return nil, nil
	case "anthropic":
		return NewClaudeClient(cfg.AnthropicAPIKey, cfg.AnthropicModel), nil
	case "openai":
		return NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIModel), nil
	}
	return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
}

// Service builds the prompt, calls the generator with retries and validates
// the result.
type Service struct {
	gen    Generator
	policy remote.Policy
	log    *slog.Logger
}

func NewService(gen Generator, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{gen: gen, policy: remote.DefaultPolicy(), log: log}
}

// WithPolicy replaces the retry policy.
func (s *Service) WithPolicy(p remote.Policy) *Service {
	s.policy = p
	return s
}

// Enabled reports whether a generator is configured.
func (s *Service) Enabled() bool {
	return s != nil && s.gen != nil
}

func (s *Service) Model() string {
	if !s.Enabled() {
		return ""
	}
	return s.gen.Model()
}

func (s *Service) Stats() StatsSnapshot {
	if !s.Enabled() {
		return StatsSnapshot{}
	}
	return s.gen.Stats()
}

// ErrDisabled is returned by Generate when no provider is configured.
var ErrDisabled = errors.New("note generation is not configured")

// Generate returns validated markdown notes for the book.
func (s *Service) Generate(ctx context.Context, in PromptInput) (string, error) {
	if !s.Enabled() {
		return "", ErrDisabled
	}
	prompt := BuildNotesPrompt(in)

	start := time.Now()
	var out string
	err := remote.Do(ctx, s.policy, func(ctx context.Context) error {
		var err error
		out, err = s.gen.Generate(ctx, prompt)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("generate notes: %w", err)
	}

	notes, err := ValidateNotes(out)
	if err != nil {
		return "", err
	}
	s.log.Info("notes generated",
		"title", in.Title,
		"model", s.gen.Model(),
		"chars", len(notes),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return notes, nil
}
