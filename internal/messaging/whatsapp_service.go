package messaging

import (
	"context"
	"log/slog"
	"strings"

	"github.com/AssadourKH/NEWAIBOT/internal/models"
	"github.com/AssadourKH/NEWAIBOT/internal/order"
	"github.com/AssadourKH/NEWAIBOT/internal/whatsapp"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types/events"
)

// WhatsAppService implements Service on a linked WhatsApp Web device.
// Templates are not available there, so SendTemplate sends their text form.
type WhatsAppService struct {
	*eventChannels
	client    whatsapp.Sender
	waClient  *whatsapp.Client // set when events can be subscribed to
	handlerID uint32
}

var _ Service = (*WhatsAppService)(nil)

// NewWhatsAppService creates a new WhatsAppService wrapping the given sender.
func NewWhatsAppService(client whatsapp.Sender) *WhatsAppService {
	s := &WhatsAppService{
		eventChannels: newEventChannels("WhatsAppService"),
		client:        client,
	}
	if waClient, ok := client.(*whatsapp.Client); ok {
		s.waClient = waClient
	}
	return s
}

// Start subscribes to whatsmeow message and receipt events.
func (s *WhatsAppService) Start(ctx context.Context) error {
	if s.waClient == nil || s.waClient.GetClient() == nil {
		slog.Debug("WhatsAppService.Start: no live client, skipping event handling")
		return nil
	}
	s.handlerID = s.waClient.GetClient().AddEventHandler(func(evt interface{}) {
		switch v := evt.(type) {
		case *events.Message:
			if msg, ok := inboundFromEvent(v); ok {
				s.emitResponse(msg)
			}
		case *events.Receipt:
			if rc, ok := receiptFromEvent(v); ok {
				s.emitReceipt(rc)
			}
		}
	})
	slog.Debug("WhatsAppService.Start: event handler registered")
	return nil
}

// Stop removes the event handler and closes the channels.
func (s *WhatsAppService) Stop() error {
	if s.waClient != nil && s.waClient.GetClient() != nil && s.handlerID != 0 {
		s.waClient.GetClient().RemoveEventHandler(s.handlerID)
	}
	s.stop()
	return nil
}

// SendText sends a message and emits a sent receipt.
func (s *WhatsAppService) SendText(ctx context.Context, to string, body string) error {
	if s.isStopped() {
		return ErrServiceStopped
	}
	canonical, err := CanonicalizeRecipient(to)
	if err != nil {
		return err
	}
	if err := s.client.SendMessage(ctx, canonical, body); err != nil {
		slog.Error("WhatsAppService.SendText: failed", "error", err, "to", canonical)
		return err
	}
	s.emitReceipt(sentReceipt(canonical))
	return nil
}

// SendTemplate sends the text rendering of the confirmation template.
func (s *WhatsAppService) SendTemplate(ctx context.Context, to string, params []string) error {
	return s.SendText(ctx, to, order.TemplateText(params))
}

// inboundFromEvent extracts the customer text from a whatsmeow message.
func inboundFromEvent(evt *events.Message) (models.InboundMessage, bool) {
	if evt == nil || evt.Message == nil || evt.Info.IsFromMe || evt.Info.IsGroup {
		return models.InboundMessage{}, false
	}
	msgType, text, ok := messageContent(evt.Message)
	if !ok {
		slog.Debug("WhatsAppService: ignoring unsupported message", "from", evt.Info.Sender.User)
		return models.InboundMessage{}, false
	}
	return models.InboundMessage{
		ID:        evt.Info.ID,
		From:      evt.Info.Sender.User,
		Username:  evt.Info.PushName,
		Type:      msgType,
		Text:      strings.TrimSpace(text),
		Timestamp: evt.Info.Timestamp,
	}, true
}

func messageContent(m *waE2E.Message) (models.MessageType, string, bool) {
	switch {
	case m.Conversation != nil:
		return models.MessageTypeText, m.GetConversation(), true
	case m.ExtendedTextMessage != nil:
		return models.MessageTypeText, m.GetExtendedTextMessage().GetText(), true
	case m.TemplateButtonReplyMessage != nil:
		return models.MessageTypeButton, m.GetTemplateButtonReplyMessage().GetSelectedDisplayText(), true
	case m.ButtonsResponseMessage != nil:
		return models.MessageTypeButton, m.GetButtonsResponseMessage().GetSelectedDisplayText(), true
	case m.AudioMessage != nil:
		return models.MessageTypeAudio, AudioFailedText, true
	}
	return "", "", false
}

func receiptFromEvent(evt *events.Receipt) (models.Receipt, bool) {
	var status models.MessageStatus
	switch evt.Type {
	case events.ReceiptTypeDelivered:
		status = models.MessageStatusDelivered
	case events.ReceiptTypeRead:
		status = models.MessageStatusRead
	default:
		return models.Receipt{}, false
	}
	return models.Receipt{To: evt.MessageSource.Sender.User, Status: status, Time: evt.Timestamp.Unix()}, true
}
