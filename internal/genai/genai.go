// Package genai provides the chat-completion client used to generate the
// assistant's replies. It talks to Azure OpenAI deployments or to the public
// OpenAI API through github.com/openai/openai-go.
package genai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/AssadourKH/NEWAIBOT/internal/models"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/azure"
	"github.com/openai/openai-go/option"
)

// Defaults applied when options leave a field unset.
const (
	DefaultModel           = "gpt-4o-mini"
	DefaultTemperature     = 0.7
	DefaultTopP            = 0.95
	DefaultMaxTokens       = 800
	DefaultAzureAPIVersion = "2025-01-01-preview"
)

// ErrNoChoicesReturned is returned when the model answers without choices.
var ErrNoChoicesReturned = errors.New("no choices returned")

// chatService defines the minimal interface for chat completions.
type chatService interface {
	Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error)
}

// completions adapts the SDK service to chatService.
type completions struct {
	svc *openai.ChatCompletionService
}

func (c completions) Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error) {
	resp, err := c.svc.New(ctx, params)
	if err != nil {
		return openai.ChatCompletion{}, err
	}
	return *resp, nil
}

// Opts holds configuration for the client.
type Opts struct {
	APIKey          string
	AzureEndpoint   string // empty means the public OpenAI API
	AzureAPIVersion string
	Model           string // deployment name on Azure
	Temperature     float64
	TopP            float64
	MaxTokens       int
	DebugMode       bool   // write every call to <StateDir>/debug
	StateDir        string // required when DebugMode is set
}

// Option configures the client.
type Option func(*Opts)

// WithAPIKey sets the API key.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithAzureEndpoint routes requests to an Azure OpenAI resource.
func WithAzureEndpoint(endpoint, apiVersion string) Option {
	return func(o *Opts) {
		o.AzureEndpoint = endpoint
		o.AzureAPIVersion = apiVersion
	}
}

// WithModel sets the model, or the deployment name on Azure.
func WithModel(model string) Option {
	return func(o *Opts) { o.Model = model }
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(o *Opts) { o.Temperature = t }
}

// WithTopP sets nucleus sampling.
func WithTopP(p float64) Option {
	return func(o *Opts) { o.TopP = p }
}

// WithMaxTokens caps the completion length.
func WithMaxTokens(n int) Option {
	return func(o *Opts) { o.MaxTokens = n }
}

// WithDebugMode enables request/response capture under stateDir/debug.
func WithDebugMode(enabled bool, stateDir string) Option {
	return func(o *Opts) {
		o.DebugMode = enabled
		o.StateDir = stateDir
	}
}

// Client generates replies from a chat history.
type Client struct {
	chat        chatService
	model       string
	temperature float64
	topP        float64
	maxTokens   int
	debugMode   bool
	stateDir    string
}

// NewClient initializes a client. An API key is required.
func NewClient(opts ...Option) (*Client, error) {
	o := Opts{
		Model:           DefaultModel,
		Temperature:     DefaultTemperature,
		TopP:            DefaultTopP,
		MaxTokens:       DefaultMaxTokens,
		AzureAPIVersion: DefaultAzureAPIVersion,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.APIKey == "" {
		return nil, fmt.Errorf("API key not set")
	}

	var reqOpts []option.RequestOption
	if o.AzureEndpoint != "" {
		if o.AzureAPIVersion == "" {
			o.AzureAPIVersion = DefaultAzureAPIVersion
		}
		reqOpts = append(reqOpts,
			azure.WithEndpoint(o.AzureEndpoint, o.AzureAPIVersion),
			azure.WithAPIKey(o.APIKey),
		)
		slog.Debug("genai.NewClient: using Azure OpenAI", "endpoint", o.AzureEndpoint, "deployment", o.Model, "api_version", o.AzureAPIVersion)
	} else {
		reqOpts = append(reqOpts, option.WithAPIKey(o.APIKey))
		slog.Debug("genai.NewClient: using OpenAI", "model", o.Model)
	}

	cli := openai.NewClient(reqOpts...)
	return &Client{
		chat:        completions{svc: &cli.Chat.Completions},
		model:       o.Model,
		temperature: o.Temperature,
		topP:        o.TopP,
		maxTokens:   o.MaxTokens,
		debugMode:   o.DebugMode,
		stateDir:    o.StateDir,
	}, nil
}

// Complete sends the conversation to the model and returns the first
// choice's content.
func (c *Client) Complete(ctx context.Context, messages []models.ChatMessage) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(c.model),
		Messages:    toParams(messages),
		Temperature: openai.Float(c.temperature),
		TopP:        openai.Float(c.topP),
	}
	if c.maxTokens > 0 {
		params.MaxTokens = openai.Int(int64(c.maxTokens))
	}

	start := time.Now()
	resp, err := c.chat.Create(ctx, params)
	c.debugLog("Complete", params, resp, err)
	if err != nil {
		slog.Error("genai.Complete: chat completion failed", "model", c.model, "elapsed", time.Since(start), "error", err)
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		slog.Warn("genai.Complete: no choices returned", "model", c.model)
		return "", ErrNoChoicesReturned
	}
	slog.Debug("genai.Complete: reply received", "model", c.model, "elapsed", time.Since(start),
		"prompt_tokens", resp.Usage.PromptTokens, "completion_tokens", resp.Usage.CompletionTokens)
	return resp.Choices[0].Message.Content, nil
}

func toParams(messages []models.ChatMessage) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case models.ChatRoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case models.ChatRoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

type debugEntry struct {
	Timestamp time.Time                      `json:"timestamp"`
	Method    string                         `json:"method"`
	Model     string                         `json:"model"`
	Params    openai.ChatCompletionNewParams `json:"params"`
	Response  openai.ChatCompletion          `json:"response"`
	Error     string                         `json:"error,omitempty"`
}

// debugLog writes one JSON file per call when debug mode is on. Failures are
// logged and otherwise ignored.
func (c *Client) debugLog(method string, params openai.ChatCompletionNewParams, resp openai.ChatCompletion, callErr error) {
	if !c.debugMode || c.stateDir == "" {
		return
	}
	dir := filepath.Join(c.stateDir, "debug")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		slog.Warn("genai.debugLog: failed to create debug directory", "dir", dir, "error", err)
		return
	}
	entry := debugEntry{Timestamp: time.Now(), Method: method, Model: c.model, Params: params, Response: resp}
	if callErr != nil {
		entry.Error = callErr.Error()
	}
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		slog.Warn("genai.debugLog: failed to marshal entry", "error", err)
		return
	}
	name := fmt.Sprintf("%s_%s.json", entry.Timestamp.Format("20060102T150405.000000000"), method)
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		slog.Warn("genai.debugLog: failed to write entry", "error", err)
	}
}
