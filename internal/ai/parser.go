// Package ai extracts structured proposal fields from vendor emails using an
// OpenAI-compatible chat model.
package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"

	"github.com/nhle/procurement-inbox/internal/model"
)

const (
	defaultModel   = "gpt-4o-mini"
	defaultTimeout = 60 * time.Second

	// maxBodyChars bounds the email text sent to the model.
	maxBodyChars = 20000
)

// Generator is the subset of llms.Model the parser uses.
type Generator interface {
	GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error)
}

// ParseError reports that a vendor response could not be turned into a
// proposal. It is isolated to the message being processed.
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err == nil {
		return "parsing vendor response: " + e.Reason
	}
	return fmt.Sprintf("parsing vendor response: %s: %v", e.Reason, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// IsParseError reports whether err (or any error in its chain) is a ParseError.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}

// Config holds the parser settings.
type Config struct {
	BaseURL string
	Model   string
	APIKey  string
	Timeout time.Duration
}

// Parser turns free-text vendor replies into ParsedProposal values.
type Parser struct {
	llm     Generator
	model   string
	timeout time.Duration
	logger  *zap.Logger
}

// New creates a Parser backed by langchaingo's OpenAI client. BaseURL may
// point at any OpenAI-compatible endpoint, such as Ollama's /v1.
func New(cfg Config, logger *zap.Logger) (*Parser, error) {
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}

	opts := []openai.Option{openai.WithModel(cfg.Model)}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	// The client refuses an empty token; local endpoints ignore it.
	token := cfg.APIKey
	if token == "" {
		token = "unused"
	}
	opts = append(opts, openai.WithToken(token))

	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating llm client: %w", err)
	}

	return NewWithGenerator(llm, cfg.Model, cfg.Timeout, logger), nil
}

// NewWithGenerator creates a Parser over an existing model client.
func NewWithGenerator(llm Generator, modelName string, timeout time.Duration, logger *zap.Logger) *Parser {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Parser{
		llm:     llm,
		model:   modelName,
		timeout: timeout,
		logger:  logger.Named("ai"),
	}
}

// ParseVendorResponse asks the model to extract proposal fields from body,
// using the RFP for context. Every failure is a *ParseError.
func (p *Parser) ParseVendorResponse(ctx context.Context, body string, rfp *model.Rfp) (*model.ParsedProposal, error) {
	if strings.TrimSpace(body) == "" {
		return nil, &ParseError{Reason: "empty message body"}
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	resp, err := p.llm.GenerateContent(ctx,
		[]llms.MessageContent{
			llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt),
			llms.TextParts(llms.ChatMessageTypeHuman, buildUserPrompt(body, rfp)),
		},
		llms.WithJSONMode(),
		llms.WithTemperature(0),
	)
	if err != nil {
		return nil, &ParseError{Reason: "model call failed", Err: err}
	}
	if resp == nil || len(resp.Choices) == 0 {
		return nil, &ParseError{Reason: "model returned no choices"}
	}

	raw := resp.Choices[0].Content
	p.logger.Debug("model responded",
		zap.String("model", p.model),
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("chars", len(raw)),
	)

	parsed, err := decodeProposal(raw)
	if err != nil {
		return nil, err
	}
	return parsed, nil
}

// decodeProposal unmarshals the model output, tolerating a Markdown code
// fence around the JSON.
func decodeProposal(raw string) (*model.ParsedProposal, error) {
	text := stripCodeFence(raw)
	if text == "" {
		return nil, &ParseError{Reason: "model returned empty content"}
	}

	var pp model.ParsedProposal
	if err := json.Unmarshal([]byte(text), &pp); err != nil {
		return nil, &ParseError{Reason: "model returned invalid JSON", Err: err}
	}
	if pp.Currency != "" {
		pp.Currency = strings.ToUpper(strings.TrimSpace(pp.Currency))
	}
	if pp.Items == nil {
		pp.Items = model.LineItems{}
	}
	return &pp, nil
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		// Drop the language tag line, e.g. ```json.
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
