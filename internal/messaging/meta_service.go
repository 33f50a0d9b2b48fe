package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/AssadourKH/NEWAIBOT/internal/order"
	"golang.org/x/time/rate"
)

// Meta WhatsApp Cloud API defaults.
const (
	DefaultMetaAPIVersion   = "v22.0"
	DefaultGraphBaseURL     = "https://graph.facebook.com"
	DefaultTemplateName     = "order_confirmation"
	DefaultTemplateLanguage = "en_US"
	// DefaultMetaSendInterval and DefaultMetaSendBurst pace outbound sends.
	DefaultMetaSendInterval = 50 * time.Millisecond
	DefaultMetaSendBurst    = 5
	DefaultMetaHTTPTimeout  = 30 * time.Second
	maxErrorBodyBytes       = 4 << 10
	maxMediaBytes           = 16 << 20
)

// MetaOpts configures the Cloud API service.
type MetaOpts struct {
	AccessToken      string
	PhoneNumberID    string
	VerifyToken      string
	APIVersion       string
	BaseURL          string
	TemplateName     string
	TemplateLanguage string
	HTTPClient       *http.Client
	Limiter          *rate.Limiter
	Transcriber      Transcriber
	// Catalog names and prices native catalog orders.
	Catalog order.Lookup
}

// MetaOption defines a configuration option for the Cloud API service.
type MetaOption func(*MetaOpts)

// WithMetaCredentials sets the access token and sending phone number id.
func WithMetaCredentials(accessToken, phoneNumberID string) MetaOption {
	return func(o *MetaOpts) {
		o.AccessToken = accessToken
		o.PhoneNumberID = phoneNumberID
	}
}

// WithVerifyToken sets the token expected on webhook verification requests.
func WithVerifyToken(token string) MetaOption {
	return func(o *MetaOpts) { o.VerifyToken = token }
}

// WithAPIVersion overrides the Graph API version, e.g. "v22.0".
func WithAPIVersion(version string) MetaOption {
	return func(o *MetaOpts) { o.APIVersion = version }
}

// WithBaseURL overrides the Graph API host.
func WithBaseURL(baseURL string) MetaOption {
	return func(o *MetaOpts) { o.BaseURL = baseURL }
}

// WithTemplate sets the confirmation template name and language code.
func WithTemplate(name, language string) MetaOption {
	return func(o *MetaOpts) {
		o.TemplateName = name
		o.TemplateLanguage = language
	}
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) MetaOption {
	return func(o *MetaOpts) { o.HTTPClient = c }
}

// WithSendLimiter replaces the outbound rate limiter.
func WithSendLimiter(l *rate.Limiter) MetaOption {
	return func(o *MetaOpts) { o.Limiter = l }
}

// WithTranscriber sets the voice note transcriber.
func WithTranscriber(t Transcriber) MetaOption {
	return func(o *MetaOpts) { o.Transcriber = t }
}

// WithCatalog sets the catalog used to render native catalog orders.
func WithCatalog(c order.Lookup) MetaOption {
	return func(o *MetaOpts) { o.Catalog = c }
}

// MetaService implements Service over the WhatsApp Cloud API.
type MetaService struct {
	*eventChannels
	opts       MetaOpts
	httpClient *http.Client
	limiter    *rate.Limiter
}

var _ Service = (*MetaService)(nil)

// NewMetaService builds a Cloud API service. The access token and phone
// number id are required.
func NewMetaService(opts ...MetaOption) (*MetaService, error) {
	cfg := MetaOpts{
		APIVersion:       DefaultMetaAPIVersion,
		BaseURL:          DefaultGraphBaseURL,
		TemplateName:     DefaultTemplateName,
		TemplateLanguage: DefaultTemplateLanguage,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.AccessToken == "" || cfg.PhoneNumberID == "" {
		return nil, fmt.Errorf("meta access token and phone number id must be provided")
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: DefaultMetaHTTPTimeout}
	}
	if cfg.Limiter == nil {
		cfg.Limiter = rate.NewLimiter(rate.Every(DefaultMetaSendInterval), DefaultMetaSendBurst)
	}
	if cfg.Transcriber == nil {
		cfg.Transcriber = NoopTranscriber{}
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	slog.Debug("MetaService.New: configured", "api_version", cfg.APIVersion, "template", cfg.TemplateName, "verify_token_set", cfg.VerifyToken != "")

	return &MetaService{
		eventChannels: newEventChannels("MetaService"),
		opts:          cfg,
		httpClient:    cfg.HTTPClient,
		limiter:       cfg.Limiter,
	}, nil
}

// Start is a no-op; inbound traffic arrives through WebhookHandler.
func (s *MetaService) Start(ctx context.Context) error {
	return nil
}

// Stop closes the event channels.
func (s *MetaService) Stop() error {
	s.stop()
	return nil
}

type outboundMessage struct {
	MessagingProduct string            `json:"messaging_product"`
	To               string            `json:"to"`
	Type             string            `json:"type"`
	Text             *outboundText     `json:"text,omitempty"`
	Template         *outboundTemplate `json:"template,omitempty"`
}

type outboundText struct {
	Body string `json:"body"`
}

type outboundTemplate struct {
	Name       string              `json:"name"`
	Language   templateLanguage    `json:"language"`
	Components []templateComponent `json:"components"`
}

type templateLanguage struct {
	Code string `json:"code"`
}

type templateComponent struct {
	Type       string              `json:"type"`
	Parameters []templateParameter `json:"parameters"`
}

type templateParameter struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// SendText sends a plain text message.
func (s *MetaService) SendText(ctx context.Context, to string, body string) error {
	return s.send(ctx, to, outboundMessage{Type: "text", Text: &outboundText{Body: body}})
}

// SendTemplate sends the confirmation template with params as body parameters.
func (s *MetaService) SendTemplate(ctx context.Context, to string, params []string) error {
	parameters := make([]templateParameter, len(params))
	for i, p := range params {
		parameters[i] = templateParameter{Type: "text", Text: p}
	}
	return s.send(ctx, to, outboundMessage{
		Type: "template",
		Template: &outboundTemplate{
			Name:       s.opts.TemplateName,
			Language:   templateLanguage{Code: s.opts.TemplateLanguage},
			Components: []templateComponent{{Type: "body", Parameters: parameters}},
		},
	})
}

func (s *MetaService) send(ctx context.Context, to string, msg outboundMessage) error {
	if s.isStopped() {
		return ErrServiceStopped
	}
	canonical, err := CanonicalizeRecipient(to)
	if err != nil {
		slog.Error("MetaService.send: invalid recipient", "error", err, "to", to)
		return err
	}
	msg.MessagingProduct = "whatsapp"
	msg.To = canonical

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode %s message: %w", msg.Type, err)
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("send rate limiter: %w", err)
	}

	url := fmt.Sprintf("%s/%s/%s/messages", s.opts.BaseURL, s.opts.APIVersion, s.opts.PhoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if err := s.do(req, nil); err != nil {
		slog.Error("MetaService.send: failed", "type", msg.Type, "to", canonical, "error", err)
		return fmt.Errorf("failed to send %s to %s: %w", msg.Type, canonical, err)
	}

	slog.Info("MetaService.send: delivered to Graph API", "type", msg.Type, "to", canonical)
	s.emitReceipt(sentReceipt(canonical))
	return nil
}

// do executes an authenticated Graph API request and decodes a JSON body
// into out when out is non-nil.
func (s *MetaService) do(req *http.Request, out any) error {
	req.Header.Set("Authorization", "Bearer "+s.opts.AccessToken)
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return fmt.Errorf("graph api status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// mediaURL resolves a media id to its short-lived download URL.
func (s *MetaService) mediaURL(ctx context.Context, mediaID string) (string, error) {
	url := fmt.Sprintf("%s/%s/%s", s.opts.BaseURL, s.opts.APIVersion, mediaID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	var info struct {
		URL string `json:"url"`
	}
	if err := s.do(req, &info); err != nil {
		return "", fmt.Errorf("failed to fetch media url: %w", err)
	}
	if info.URL == "" {
		return "", fmt.Errorf("media %s has no url", mediaID)
	}
	return info.URL, nil
}

// downloadMedia fetches a media payload; the URL needs the same bearer token.
func (s *MetaService) downloadMedia(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+s.opts.AccessToken)
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("media download status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxMediaBytes))
}
