// Package gateway turns assembled prompt contexts into validated, structured
// LLM output.
//
// A [Gateway] owns the prompt template directory and an [llm.Provider]. Both
// generation paths run the same pipeline: load template, substitute
// placeholders, call the model, strip Markdown code fences, parse JSON, and
// validate the document's shape. Callers receive either a typed value
// ([Thought], [UpdateProposal]) or an error that classifies the failure
// ([ErrTemplateNotFound], [ErrGeneration], [ErrInvalidResponse]).
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/MrWong99/dramaturg/internal/prompt"
	"github.com/MrWong99/dramaturg/pkg/provider/llm"
)

const (
	// thoughtTemplate is the template file for character turn generation.
	thoughtTemplate = "think_generate.txt"

	// updateTemplate is the template file for long-term memory updates.
	updateTemplate = "long_term_update.txt"

	// defaultTemperature balances coherence against variety for narrative
	// generation.
	defaultTemperature = 0.7
)

// ErrTemplateNotFound is returned when a prompt template file does not exist.
var ErrTemplateNotFound = errors.New("gateway: prompt template not found")

// ErrGeneration is returned when the LLM call itself fails.
var ErrGeneration = errors.New("gateway: llm generation failed")

// ErrInvalidResponse is returned when the LLM replies with something that is
// not the expected JSON document. The wrapped message names the violation.
var ErrInvalidResponse = errors.New("gateway: invalid llm response")

// Thought is one character's generated turn. Empty Act and Talk are valid
// and mean the character does or says nothing.
type Thought struct {
	// Think is the internal monologue.
	Think string `json:"think"`

	// Act is the visible action. May be empty.
	Act string `json:"act"`

	// Talk is the spoken line. May be empty.
	Talk string `json:"talk"`
}

// Gateway runs the template-render-call-parse pipeline against one provider.
type Gateway struct {
	provider    llm.Provider
	promptsDir  string
	temperature float64
	maxTokens   int
	logger      *slog.Logger
}

// Option configures a [Gateway].
type Option func(*Gateway)

// WithTemperature overrides the default sampling temperature.
func WithTemperature(t float64) Option {
	return func(g *Gateway) { g.temperature = t }
}

// WithMaxTokens caps completion length. Zero means provider default.
func WithMaxTokens(n int) Option {
	return func(g *Gateway) { g.maxTokens = n }
}

// WithLogger sets the logger used for generation diagnostics.
// Defaults to [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(g *Gateway) {
		if l != nil {
			g.logger = l
		}
	}
}

// New creates a Gateway reading templates from promptsDir and generating
// through provider.
func New(provider llm.Provider, promptsDir string, opts ...Option) (*Gateway, error) {
	if provider == nil {
		return nil, fmt.Errorf("gateway: provider must not be nil")
	}
	if promptsDir == "" {
		return nil, fmt.Errorf("gateway: prompts directory must not be empty")
	}
	g := &Gateway{
		provider:    provider,
		promptsDir:  promptsDir,
		temperature: defaultTemperature,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// GenerateThought produces a character's next turn from the assembled
// context values.
func (g *Gateway) GenerateThought(ctx context.Context, values map[string]string) (*Thought, error) {
	raw, err := g.generate(ctx, thoughtTemplate, values)
	if err != nil {
		return nil, err
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return nil, fmt.Errorf("%w: not a JSON object: %w", ErrInvalidResponse, err)
	}

	var thought Thought
	for _, key := range []string{"think", "act", "talk"} {
		field, ok := fields[key]
		if !ok {
			return nil, fmt.Errorf("%w: missing required key %q", ErrInvalidResponse, key)
		}
		var s string
		if err := json.Unmarshal(field, &s); err != nil {
			return nil, fmt.Errorf("%w: key %q is not a string", ErrInvalidResponse, key)
		}
		switch key {
		case "think":
			thought.Think = s
		case "act":
			thought.Act = s
		case "talk":
			thought.Talk = s
		}
	}

	return &thought, nil
}

// GenerateLongTermUpdate produces a memory update proposal from the
// assembled update context values.
func (g *Gateway) GenerateLongTermUpdate(ctx context.Context, values map[string]string) (*UpdateProposal, error) {
	raw, err := g.generate(ctx, updateTemplate, values)
	if err != nil {
		return nil, err
	}
	return parseUpdateProposal(raw)
}

// generate runs the shared pipeline up to the cleaned JSON text.
func (g *Gateway) generate(ctx context.Context, templateName string, values map[string]string) (string, error) {
	template, err := g.loadTemplate(templateName)
	if err != nil {
		return "", err
	}

	rendered := prompt.RenderTemplate(template, values)

	resp, err := g.provider.Complete(ctx, llm.CompletionRequest{
		Messages:    []llm.Message{{Role: "user", Content: rendered}},
		Temperature: g.temperature,
		MaxTokens:   g.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrGeneration, err)
	}
	if resp == nil || resp.Content == "" {
		return "", fmt.Errorf("%w: empty completion", ErrGeneration)
	}

	g.logger.Debug("llm completion received",
		"template", templateName,
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens)

	return StripFence(resp.Content), nil
}

func (g *Gateway) loadTemplate(name string) (string, error) {
	path := filepath.Join(g.promptsDir, name)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrTemplateNotFound, path)
		}
		return "", fmt.Errorf("gateway: read template %s: %w", path, err)
	}
	return string(data), nil
}

var (
	fenceOpenLine  = regexp.MustCompile("(?m)^```json\\s*\n")
	fenceCloseLine = regexp.MustCompile("(?m)\n```\\s*$")
	fenceOpen      = regexp.MustCompile("^```json")
	fenceClose     = regexp.MustCompile("```$")
)

// StripFence removes Markdown code fence markers around a JSON document.
// Both fenced multi-line blocks and inline markers are handled; the result
// is trimmed of surrounding whitespace.
func StripFence(s string) string {
	s = fenceOpenLine.ReplaceAllString(s, "")
	s = fenceCloseLine.ReplaceAllString(s, "")
	s = fenceOpen.ReplaceAllString(s, "")
	s = fenceClose.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}
