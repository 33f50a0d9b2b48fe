package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/AssadourKH/NEWAIBOT/internal/models"
	"github.com/AssadourKH/NEWAIBOT/internal/twiliowhatsapp"
)

// TwilioService implements the Service interface using Twilio API
type TwilioService struct {
	*eventChannels
	client twiliowhatsapp.Sender // real Twilio client or MockClient
}

var _ Service = (*TwilioService)(nil)

// NewTwilioService wraps a Twilio sender.
func NewTwilioService(client twiliowhatsapp.Sender) *TwilioService {
	return &TwilioService{
		eventChannels: newEventChannels("TwilioService"),
		client:        client,
	}
}

// Start is a no-op; inbound traffic arrives through TwilioWebhookHandler.
func (s *TwilioService) Start(ctx context.Context) error {
	return nil
}

// Stop closes channels and stops the service
func (s *TwilioService) Stop() error {
	s.stop()
	return nil
}

// SendText sends a message via Twilio and emits a receipt
func (s *TwilioService) SendText(ctx context.Context, to string, body string) error {
	if s.isStopped() {
		return ErrServiceStopped
	}
	canonicalTo, err := CanonicalizeRecipient(to)
	if err != nil {
		slog.Error("TwilioService.SendText: invalid recipient", "error", err, "to", to)
		return err
	}
	if err := s.client.SendMessage(ctx, "+"+canonicalTo, body); err != nil {
		return err
	}
	s.emitReceipt(sentReceipt(canonicalTo))
	return nil
}

// SendTemplate sends the confirmation content template.
func (s *TwilioService) SendTemplate(ctx context.Context, to string, params []string) error {
	if s.isStopped() {
		return ErrServiceStopped
	}
	canonicalTo, err := CanonicalizeRecipient(to)
	if err != nil {
		slog.Error("TwilioService.SendTemplate: invalid recipient", "error", err, "to", to)
		return err
	}
	if err := s.client.SendTemplate(ctx, "+"+canonicalTo, params); err != nil {
		return err
	}
	s.emitReceipt(sentReceipt(canonicalTo))
	return nil
}

// TwilioWebhookHandler handles inbound Twilio webhook requests and emits them
// on the Responses channel. Quick-reply clicks arrive with ButtonText set.
func (s *TwilioService) TwilioWebhookHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		slog.Error("TwilioService.TwilioWebhookHandler: failed to parse form", "error", err)
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	from := strings.TrimPrefix(r.FormValue("From"), "whatsapp:")
	body := strings.TrimSpace(r.FormValue("Body"))
	button := strings.TrimSpace(r.FormValue("ButtonText"))

	msg := models.InboundMessage{
		ID:        r.FormValue("MessageSid"),
		Username:  r.FormValue("ProfileName"),
		Type:      models.MessageTypeText,
		Text:      body,
		Timestamp: time.Now(),
	}
	switch {
	case button != "":
		msg.Type, msg.Text = models.MessageTypeButton, button
	case strings.HasPrefix(r.FormValue("MediaContentType0"), "audio/"):
		msg.Type, msg.Text = models.MessageTypeAudio, AudioFailedText
	}

	canonical, err := CanonicalizeRecipient(from)
	if err != nil || msg.Text == "" {
		slog.Warn("TwilioService.TwilioWebhookHandler: missing fields", "from", from, "body_length", len(msg.Text))
		http.Error(w, "Missing required fields", http.StatusBadRequest)
		return
	}
	msg.From = canonical

	slog.Info("TwilioService.TwilioWebhookHandler: inbound message", "from", msg.From, "type", msg.Type)
	s.emitResponse(msg)

	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}
