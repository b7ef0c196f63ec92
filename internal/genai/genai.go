// Package genai provides the LLM completion collaborator used by the study setup flow.
//
// Client wraps the OpenAI chat completion API; ResilientClient adds the
// per-attempt timeout race and bounded retry policy around any Completer.
package genai

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

// Defaults applied when an option or per-call setting is not provided.
const (
	DefaultModel       = "gpt-4o"
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 1000
)

// Message roles understood by Complete.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one chat message sent to the model.
type Message struct {
	Role    string
	Content string
}

// CompletionOptions tunes a single completion. Zero values fall back to the client defaults.
type CompletionOptions struct {
	Model        string
	Temperature  *float64
	MaxTokens    int
	JSONResponse bool
}

// Float returns a pointer to v, for CompletionOptions.Temperature.
func Float(v float64) *float64 { return &v }

// Completer turns a message list into the model's reply text.
type Completer interface {
	Complete(ctx context.Context, messages []Message, opts CompletionOptions) (string, error)
}

// chatService defines minimal interface for chat completions.
type chatService interface {
	Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error)
}

// completionsAdapter adapts the SDK's completion service to chatService.
type completionsAdapter struct {
	svc *openai.ChatCompletionService
}

func (a completionsAdapter) Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error) {
	resp, err := a.svc.New(ctx, params)
	if err != nil {
		return openai.ChatCompletion{}, err
	}
	return *resp, nil
}

// Opts holds configuration for the GenAI client.
type Opts struct {
	APIKey    string
	BaseURL   string
	Model     string
	DebugMode bool
	StateDir  string
}

// Option configures the GenAI client.
type Option func(*Opts)

// WithAPIKey sets the OpenAI API key.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithBaseURL points the client at an OpenAI-compatible endpoint.
func WithBaseURL(url string) Option {
	return func(o *Opts) { o.BaseURL = url }
}

// WithModel sets the default chat model.
func WithModel(model string) Option {
	return func(o *Opts) { o.Model = model }
}

// WithDebugMode enables per-call JSON debug logs under the state directory.
func WithDebugMode(enabled bool) Option {
	return func(o *Opts) { o.DebugMode = enabled }
}

// WithStateDir sets where debug logs are written.
func WithStateDir(dir string) Option {
	return func(o *Opts) { o.StateDir = dir }
}

// Client wraps the OpenAI ChatCompletion service.
type Client struct {
	chat        chatService
	model       string
	temperature float64
	maxTokens   int
	debugMode   bool
	stateDir    string
}

// NewClient initializes a GenAI client. The API key comes from WithAPIKey or OPENAI_API_KEY.
func NewClient(opts ...Option) (*Client, error) {
	cfg := Opts{Model: DefaultModel}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.APIKey == "" {
		slog.Error("genai.NewClient: API key not set")
		return nil, fmt.Errorf("%w: OPENAI_API_KEY not set", ErrNotConfigured)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		// retries are owned by ResilientClient
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.BaseURL))
	}
	cli := openai.NewClient(reqOpts...)

	slog.Debug("genai.NewClient: client created", "model", cfg.Model, "debugMode", cfg.DebugMode, "baseURL_set", cfg.BaseURL != "")
	return &Client{
		chat:        completionsAdapter{svc: &cli.Chat.Completions},
		model:       cfg.Model,
		temperature: DefaultTemperature,
		maxTokens:   DefaultMaxTokens,
		debugMode:   cfg.DebugMode,
		stateDir:    cfg.StateDir,
	}, nil
}

// Complete sends messages to the chat model and returns the first choice's content.
func (c *Client) Complete(ctx context.Context, messages []Message, opts CompletionOptions) (string, error) {
	params := c.buildParams(messages, opts)

	start := time.Now()
	resp, err := c.chat.Create(ctx, params)
	elapsed := time.Since(start)
	if err != nil {
		classified := classifyError(err)
		slog.Error("Client.Complete: chat completion failed", "model", params.Model, "elapsed", elapsed, "error", classified)
		c.writeDebugLog("Complete", params, nil, classified)
		return "", classified
	}
	c.writeDebugLog("Complete", params, &resp, nil)

	if len(resp.Choices) == 0 {
		slog.Warn("Client.Complete: no choices returned", "model", params.Model, "elapsed", elapsed)
		return "", ErrNoChoicesReturned
	}
	content := resp.Choices[0].Message.Content
	slog.Debug("Client.Complete: chat completion succeeded", "model", params.Model, "elapsed", elapsed, "contentLength", len(content))
	return content, nil
}

func (c *Client) buildParams(messages []Message, opts CompletionOptions) openai.ChatCompletionNewParams {
	model := c.model
	if opts.Model != "" {
		model = opts.Model
	}
	temperature := c.temperature
	if opts.Temperature != nil {
		temperature = *opts.Temperature
	}
	maxTokens := c.maxTokens
	if opts.MaxTokens > 0 {
		maxTokens = opts.MaxTokens
	}

	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(model),
		Messages:    toOpenAIMessages(messages),
		Temperature: openai.Float(temperature),
		MaxTokens:   openai.Int(int64(maxTokens)),
	}
	if opts.JSONResponse {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}
	return params
}

func toOpenAIMessages(messages []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

// Unconfigured is a Completer that always fails with ErrNotConfigured.
// It stands in for Client when no API key is available so scripted turns keep working.
type Unconfigured struct{}

// Complete always returns ErrNotConfigured.
func (Unconfigured) Complete(ctx context.Context, messages []Message, opts CompletionOptions) (string, error) {
	return "", fmt.Errorf("%w: no API key configured", ErrNotConfigured)
}
