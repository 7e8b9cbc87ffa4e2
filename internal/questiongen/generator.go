// Package questiongen turns a free-form text generator into validated multiple choice questions.
package questiongen

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/park285/Trivia-KakaoTalk-bot/internal/domain"
)

const (
	DefaultAttempts = 3
	FallbackHint    = "Pense com calma e elimine as opções que parecem menos prováveis!"
)

// ErrGenerationExhausted is returned after every attempt produced an unusable question.
var ErrGenerationExhausted = errors.New("question generation exhausted")

// TextGenerator is the external model; *gemini.Client implements it.
type TextGenerator interface {
	GenerateContent(ctx context.Context, prompt string) (string, error)
}

type Generator struct {
	llm      TextGenerator
	attempts int
	log      *zap.Logger
}

type Option func(*Generator)

func WithAttempts(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.attempts = n
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(g *Generator) {
		if l != nil {
			g.log = l
		}
	}
}

func New(llm TextGenerator, opts ...Option) *Generator {
	g := &Generator{llm: llm, attempts: DefaultAttempts, log: zap.NewNop()}
	for _, opt := range opts {
		opt(g)
	}
	g.log = g.log.Named("questiongen")
	return g
}

// Generate asks for one question on topic at the given tier. previouslyAsked lists texts that
// must not be repeated; they are both sent in the prompt and enforced on the result.
func (g *Generator) Generate(ctx context.Context, topic string, tier domain.Tier, previouslyAsked []string) (*domain.Question, error) {
	prompt := BuildPrompt(topic, tier, previouslyAsked)

	var lastErr error
	for attempt := 1; attempt <= g.attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		q, err := g.attempt(ctx, prompt, tier, previouslyAsked)
		if err == nil {
			return q, nil
		}
		lastErr = err
		g.log.Warn("question_attempt_failed",
			zap.String("topic", topic),
			zap.String("tier", string(tier)),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
	g.log.Error("question_generation_exhausted",
		zap.String("topic", topic),
		zap.Int("attempts", g.attempts),
		zap.Error(lastErr),
	)
	return nil, ErrGenerationExhausted
}

func (g *Generator) attempt(ctx context.Context, prompt string, tier domain.Tier, asked []string) (*domain.Question, error) {
	raw, err := g.llm.GenerateContent(ctx, prompt)
	if err != nil {
		return nil, err
	}
	c, err := parseCandidate(raw)
	if err != nil {
		return nil, err
	}
	c, err = validate(c, asked)
	if err != nil {
		return nil, err
	}
	return &domain.Question{
		ID:      uuid.NewString(),
		Text:    c.text,
		Options: c.options,
		Correct: c.correct,
		Tier:    tier,
	}, nil
}

// Hint makes one best-effort call; any failure yields FallbackHint.
func (g *Generator) Hint(ctx context.Context, questionText string) string {
	raw, err := g.llm.GenerateContent(ctx, hintPrompt(questionText))
	if err != nil {
		g.log.Warn("hint_failed", zap.Error(err))
		return FallbackHint
	}
	hint := strings.TrimSpace(strings.ReplaceAll(raw, "```", ""))
	if hint == "" {
		return FallbackHint
	}
	return hint
}
