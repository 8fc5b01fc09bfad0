package classification

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/sashabaranov/go-openai"
	"github.com/sony/gobreaker"

	"guard_server/core/domain"
	"guard_server/core/service/normalize"
	"guard_server/pkg/logger"
	"guard_server/pkg/resilience"
)

// DefaultOpenAIModel is used when no model is configured.
const DefaultOpenAIModel = "gpt-4o-mini"

// OpenAIClassifierConfig configures the chat completion backend.
type OpenAIClassifierConfig struct {
	Model   string
	BaseURL string // empty for the public API
}

// OpenAIClassifier asks a chat model for per-category scores as a JSON object.
// One client is kept per API token.
type OpenAIClassifier struct {
	model   string
	baseURL string
	cb      *gobreaker.CircuitBreaker

	mu      sync.Mutex
	clients map[string]*openai.Client
}

// NewOpenAIClassifier creates the chat completion remote strategy.
func NewOpenAIClassifier(cfg OpenAIClassifierConfig) *OpenAIClassifier {
	model := cfg.Model
	if model == "" {
		model = DefaultOpenAIModel
	}
	return &OpenAIClassifier{
		model:   model,
		baseURL: cfg.BaseURL,
		cb:      resilience.NewBreaker(resilience.DefaultBreakerConfig("remote-openai")),
		clients: make(map[string]*openai.Client),
	}
}

// Name returns the classifier name.
func (c *OpenAIClassifier) Name() string {
	return "remote-openai"
}

func (c *OpenAIClassifier) client(token string) *openai.Client {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cl, ok := c.clients[token]; ok {
		return cl
	}
	cfg := openai.DefaultConfig(token)
	if c.baseURL != "" {
		cfg.BaseURL = c.baseURL
	}
	cl := openai.NewClientWithConfig(cfg)
	c.clients[token] = cl
	return cl
}

func buildScorePrompt(text string) string {
	var sb strings.Builder
	sb.WriteString("Rate how strongly the post below belongs to each category, from 0 to 1.\n")
	sb.WriteString("Categories: ")
	sb.WriteString(strings.Join(domain.CategoryNames(), ", "))
	sb.WriteString("\nRespond with JSON only: {\"scores\": {\"<category>\": <number>}}\n\nPost:\n")
	sb.WriteString(text)
	return sb.String()
}

// ClassifyWithToken classifies normalized text with the caller's token.
func (c *OpenAIClassifier) ClassifyWithToken(ctx context.Context, text, apiToken string) ([]domain.Label, error) {
	if apiToken == "" {
		return nil, fmt.Errorf("%w: missing api token", domain.ErrTransportFailure)
	}

	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: "You are a content safety classifier.",
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: buildScorePrompt(normalize.TransportText(text)),
			},
		},
		Temperature: 0,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}

	result, err := c.cb.Execute(func() (interface{}, error) {
		return c.client(apiToken).CreateChatCompletion(ctx, req)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrTransportFailure, err)
	}
	resp := result.(openai.ChatCompletionResponse)
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices returned", domain.ErrTransportFailure)
	}

	labels, err := DecodeRemoteLabels([]byte(resp.Choices[0].Message.Content))
	if errors.Is(err, domain.ErrMalformedResponse) {
		logger.WithField("classifier", c.Name()).Warn("completion carried no scores")
		return []domain.Label{}, nil
	}
	if err != nil {
		return nil, err
	}
	return labels, nil
}
