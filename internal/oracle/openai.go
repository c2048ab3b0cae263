// Package oracle provides the OpenAI-backed relevance oracle used for
// persona scoring.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
)

const (
	// DefaultModel is the chat model used when none is configured.
	DefaultModel = "gpt-4o-mini"

	// DefaultTimeout bounds a single oracle round trip.
	DefaultTimeout = 30 * time.Second

	// systemPrompt pins the oracle to numeric-only output. The
	// response is still parsed defensively; models do not always obey.
	systemPrompt = "You are a precision relevance scoring system that evaluates content relevance to specific personas."

	// maxTokens keeps the completion to a bare numeric score.
	maxTokens = 10

	// temperature is kept low for reproducible scoring.
	temperature = 0.1
)

// ErrAPIKeyNotSet is returned when constructing a client without an API key.
var ErrAPIKeyNotSet = errors.New("OpenAI API key not set")

// ErrUnparseableScore is returned when the oracle response does not
// parse as a number.
var ErrUnparseableScore = errors.New("oracle response is not a numeric score")

// OpenAIOracle implements scoring.Oracle using the OpenAI chat API.
type OpenAIOracle struct {
	client  openai.Client
	model   string
	timeout time.Duration
}

// NewOpenAIOracle creates an oracle backed by the OpenAI API.
func NewOpenAIOracle(apiKey, model string) (*OpenAIOracle, error) {
	if apiKey == "" {
		return nil, ErrAPIKeyNotSet
	}
	if model == "" {
		model = DefaultModel
	}
	return &OpenAIOracle{
		client:  openai.NewClient(option.WithAPIKey(apiKey)),
		model:   model,
		timeout: DefaultTimeout,
	}, nil
}

// SetTimeout overrides the per-call timeout.
func (o *OpenAIOracle) SetTimeout(timeout time.Duration) {
	o.timeout = timeout
}

// ModelName returns the configured chat model.
func (o *OpenAIOracle) ModelName() string {
	return o.model
}

// Score sends the prompt to the chat API and parses the response as a
// relevance value. Transport errors and unparseable responses are
// returned to the caller, which absorbs them with a fallback score.
func (o *OpenAIOracle) Score(ctx context.Context, prompt string) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	completion, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: shared.ChatModel(o.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(prompt),
		},
		MaxTokens:   openai.Int(maxTokens),
		Temperature: openai.Float(temperature),
	})
	if err != nil {
		return 0, fmt.Errorf("oracle completion failed: %w", err)
	}
	if len(completion.Choices) == 0 {
		return 0, fmt.Errorf("%w: empty completion", ErrUnparseableScore)
	}

	return ParseScore(completion.Choices[0].Message.Content)
}

// ParseScore parses an oracle response as a relevance value, clamped to
// [0, 1]. The response is untrusted text; anything that does not parse
// as a number yields ErrUnparseableScore.
func ParseScore(response string) (float64, error) {
	trimmed := strings.TrimSpace(response)
	score, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrUnparseableScore, trimmed)
	}

	if score < 0.0 {
		score = 0.0
	}
	if score > 1.0 {
		score = 1.0
	}
	return score, nil
}
