// Package twiliowhatsapp wraps the Twilio API for WhatsApp delivery.
package twiliowhatsapp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"sync"

	"github.com/AssadourKH/NEWAIBOT/internal/order"
	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// Sender is the Twilio surface used by the messaging layer.
type Sender interface {
	SendMessage(ctx context.Context, to string, body string) error
	SendTemplate(ctx context.Context, to string, params []string) error
}

// Opts holds configuration options for the Twilio WhatsApp client.
type Opts struct {
	AccountSID string
	AuthToken  string
	FromWhats  string
	// ContentSID is the approved content template for order confirmations.
	// Without it templates go out as plain text.
	ContentSID string
}

// Option defines a configuration option for the Twilio WhatsApp client.
type Option func(*Opts)

// WithAccountSID sets the Twilio account SID.
func WithAccountSID(sid string) Option {
	return func(o *Opts) { o.AccountSID = sid }
}

// WithAuthToken sets the Twilio auth token.
func WithAuthToken(token string) Option {
	return func(o *Opts) { o.AuthToken = token }
}

// WithFromWhats sets the sender, in "whatsapp:+1234567890" form.
func WithFromWhats(from string) Option {
	return func(o *Opts) { o.FromWhats = from }
}

// WithContentSID sets the content template used by SendTemplate.
func WithContentSID(sid string) Option {
	return func(o *Opts) { o.ContentSID = sid }
}

// Client wraps Twilio REST API for WhatsApp
type Client struct {
	client     *twilio.RestClient
	fromWhats  string
	contentSID string
}

var _ Sender = (*Client)(nil)

// NewClient builds a client, falling back to TWILIO_* environment variables
// for anything not set through options.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.AccountSID == "" {
		cfg.AccountSID = os.Getenv("TWILIO_ACCOUNT_SID")
	}
	if cfg.AuthToken == "" {
		cfg.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	}
	if cfg.FromWhats == "" {
		cfg.FromWhats = os.Getenv("TWILIO_FROM_NUMBER")
	}
	if cfg.ContentSID == "" {
		cfg.ContentSID = os.Getenv("TWILIO_CONTENT_SID")
	}
	slog.Debug("twiliowhatsapp.NewClient: config loaded",
		"AccountSID_set", cfg.AccountSID != "",
		"AuthToken_set", cfg.AuthToken != "",
		"FromWhats_set", cfg.FromWhats != "",
		"ContentSID_set", cfg.ContentSID != "")

	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, fmt.Errorf("account SID and auth token must be provided")
	}
	if cfg.FromWhats == "" {
		return nil, fmt.Errorf("fromWhats number must be provided")
	}

	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return &Client{client: client, fromWhats: cfg.FromWhats, contentSID: cfg.ContentSID}, nil
}

// SendMessage sends a WhatsApp message using Twilio API
func (c *Client) SendMessage(ctx context.Context, to string, body string) error {
	params := &twilioApi.CreateMessageParams{}
	params.SetTo("whatsapp:" + to)
	params.SetFrom(c.fromWhats)
	params.SetBody(body)

	if _, err := c.client.Api.CreateMessage(params); err != nil {
		slog.Error("twiliowhatsapp.SendMessage: failed", "to", to, "error", err)
		return fmt.Errorf("failed to send message to %s: %w", to, err)
	}
	slog.Debug("twiliowhatsapp.SendMessage: sent", "to", to)
	return nil
}

// SendTemplate sends the confirmation content template, or its text
// rendering when no content SID is configured.
func (c *Client) SendTemplate(ctx context.Context, to string, params []string) error {
	if c.contentSID == "" {
		return c.SendMessage(ctx, to, order.TemplateText(params))
	}
	vars, err := ContentVariables(params)
	if err != nil {
		return err
	}

	p := &twilioApi.CreateMessageParams{}
	p.SetTo("whatsapp:" + to)
	p.SetFrom(c.fromWhats)
	p.SetContentSid(c.contentSID)
	p.SetContentVariables(vars)

	if _, err := c.client.Api.CreateMessage(p); err != nil {
		slog.Error("twiliowhatsapp.SendTemplate: failed", "to", to, "error", err)
		return fmt.Errorf("failed to send template to %s: %w", to, err)
	}
	slog.Debug("twiliowhatsapp.SendTemplate: sent", "to", to, "params", len(params))
	return nil
}

// ContentVariables encodes template parameters as Twilio's numbered
// variables, {"1": first, "2": second, ...}.
func ContentVariables(params []string) (string, error) {
	vars := make(map[string]string, len(params))
	for i, p := range params {
		vars[strconv.Itoa(i+1)] = p
	}
	b, err := json.Marshal(vars)
	if err != nil {
		return "", fmt.Errorf("failed to encode content variables: %w", err)
	}
	return string(b), nil
}

// MockClient records sends for tests.
type MockClient struct {
	mu            sync.Mutex
	SentMessages  []SentMessage
	SentTemplates []SentTemplate
	Err           error
}

type SentMessage struct {
	To   string
	Body string
}

type SentTemplate struct {
	To     string
	Params []string
}

var _ Sender = (*MockClient)(nil)

func NewMockClient() *MockClient {
	return &MockClient{}
}

func (m *MockClient) SendMessage(ctx context.Context, to string, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.SentMessages = append(m.SentMessages, SentMessage{To: to, Body: body})
	return nil
}

func (m *MockClient) SendTemplate(ctx context.Context, to string, params []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.SentTemplates = append(m.SentTemplates, SentTemplate{To: to, Params: append([]string(nil), params...)})
	return nil
}
