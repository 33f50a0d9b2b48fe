package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/AssadourKH/NEWAIBOT/internal/models"
	"github.com/AssadourKH/NEWAIBOT/internal/order"
)

// AudioFailedText replaces a voice note that could not be transcribed.
const AudioFailedText = "⚠️ Failed to download audio. Please type your message."

// WebhookPayload is the top-level Cloud API webhook delivery.
type WebhookPayload struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

// Entry represents one business account entry.
type Entry struct {
	ID      string   `json:"id"`
	Changes []Change `json:"changes"`
}

// Change wraps a single change notification.
type Change struct {
	Field string      `json:"field"`
	Value ChangeValue `json:"value"`
}

// ChangeValue holds the message data.
type ChangeValue struct {
	MessagingProduct string    `json:"messaging_product"`
	Contacts         []Contact `json:"contacts,omitempty"`
	Messages         []Message `json:"messages,omitempty"`
	Statuses         []Status  `json:"statuses,omitempty"`
}

// Contact is a WhatsApp contact.
type Contact struct {
	Profile ContactProfile `json:"profile"`
	WaID    string         `json:"wa_id"`
}

// ContactProfile has the display name.
type ContactProfile struct {
	Name string `json:"name"`
}

// Message is one inbound customer message.
type Message struct {
	From        string              `json:"from"`
	ID          string              `json:"id"`
	Timestamp   string              `json:"timestamp"`
	Type        string              `json:"type"`
	Text        *TextContent        `json:"text,omitempty"`
	Audio       *MediaContent       `json:"audio,omitempty"`
	Order       *OrderContent       `json:"order,omitempty"`
	Button      *ButtonContent      `json:"button,omitempty"`
	Interactive *InteractiveContent `json:"interactive,omitempty"`
}

// TextContent holds a text message body.
type TextContent struct {
	Body string `json:"body"`
}

// MediaContent references uploaded media by id.
type MediaContent struct {
	ID       string `json:"id"`
	MimeType string `json:"mime_type"`
}

// OrderContent is a native catalog order.
type OrderContent struct {
	CatalogID    string               `json:"catalog_id"`
	Text         string               `json:"text,omitempty"`
	ProductItems []models.ProductItem `json:"product_items"`
}

// ButtonContent is a template quick-reply click.
type ButtonContent struct {
	Text    string `json:"text"`
	Payload string `json:"payload"`
}

// InteractiveContent is a reply to an interactive button or list message.
type InteractiveContent struct {
	Type        string        `json:"type"`
	ButtonReply *ReplyContent `json:"button_reply,omitempty"`
	ListReply   *ReplyContent `json:"list_reply,omitempty"`
}

// ReplyContent is the chosen option of an interactive message.
type ReplyContent struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Status is a delivery status update for an outbound message.
type Status struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	Timestamp   string `json:"timestamp"`
	RecipientID string `json:"recipient_id"`
}

// VerifyHandler answers the Cloud API subscription handshake.
func (s *MetaService) VerifyHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mode, token, challenge := q.Get("hub.mode"), q.Get("hub.verify_token"), q.Get("hub.challenge")
	if mode == "" || token == "" {
		http.Error(w, "Missing verification parameters", http.StatusBadRequest)
		return
	}
	if mode != "subscribe" || s.opts.VerifyToken == "" || token != s.opts.VerifyToken {
		slog.Warn("MetaService.VerifyHandler: verification failed", "mode", mode)
		http.Error(w, "Verification failed", http.StatusForbidden)
		return
	}
	slog.Info("MetaService.VerifyHandler: verification successful")
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, challenge)
}

// WebhookHandler accepts Cloud API deliveries. Every decodable payload is
// acknowledged with 200 so Meta does not retry; processing happens downstream
// of the Responses channel.
func (s *MetaService) WebhookHandler(w http.ResponseWriter, r *http.Request) {
	var payload WebhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		slog.Error("MetaService.WebhookHandler: undecodable payload", "error", err)
		http.Error(w, "ERROR", http.StatusInternalServerError)
		return
	}
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			for _, m := range s.Normalize(r.Context(), change.Value) {
				s.emitResponse(m)
			}
			for _, rc := range receiptsFrom(change.Value.Statuses) {
				s.emitReceipt(rc)
			}
		}
	}
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

// Normalize converts the messages of one change into InboundMessages.
func (s *MetaService) Normalize(ctx context.Context, v ChangeValue) []models.InboundMessage {
	out := make([]models.InboundMessage, 0, len(v.Messages))
	for _, msg := range v.Messages {
		if msg.From == "" {
			continue
		}
		in := models.InboundMessage{
			ID:        msg.ID,
			From:      msg.From,
			Username:  contactName(v.Contacts, msg.From),
			Type:      models.MessageType(msg.Type),
			Text:      s.messageText(ctx, msg),
			Timestamp: parseUnix(msg.Timestamp),
		}
		slog.Debug("MetaService.Normalize: inbound message", "from", in.From, "type", in.Type, "text_length", len(in.Text))
		out = append(out, in)
	}
	return out
}

func (s *MetaService) messageText(ctx context.Context, msg Message) string {
	switch models.MessageType(msg.Type) {
	case models.MessageTypeText:
		if msg.Text == nil {
			return ""
		}
		return strings.TrimSpace(msg.Text.Body)
	case models.MessageTypeAudio:
		if msg.Audio == nil || msg.Audio.ID == "" {
			return AudioFailedText
		}
		return s.transcribe(ctx, *msg.Audio)
	case models.MessageTypeOrder:
		if msg.Order == nil {
			return order.FormatCatalogOrder(nil, s.opts.Catalog)
		}
		return order.FormatCatalogOrder(msg.Order.ProductItems, s.opts.Catalog)
	case models.MessageTypeButton:
		if msg.Button == nil {
			return ""
		}
		return msg.Button.Text
	case models.MessageTypeInteractive:
		if msg.Interactive == nil {
			return ""
		}
		if r := msg.Interactive.ButtonReply; r != nil && r.Title != "" {
			return r.Title
		}
		if r := msg.Interactive.ListReply; r != nil {
			return r.Title
		}
		return ""
	default:
		return fmt.Sprintf("[Unsupported %s message]", msg.Type)
	}
}

// transcribe downloads a voice note and runs it through the Transcriber.
// Any failure yields AudioFailedText.
func (s *MetaService) transcribe(ctx context.Context, media MediaContent) string {
	if _, ok := s.opts.Transcriber.(NoopTranscriber); ok {
		return AudioFailedText
	}
	url, err := s.mediaURL(ctx, media.ID)
	if err != nil {
		slog.Error("MetaService.transcribe: media lookup failed", "error", err, "media_id", media.ID)
		return AudioFailedText
	}
	audio, err := s.downloadMedia(ctx, url)
	if err != nil {
		slog.Error("MetaService.transcribe: download failed", "error", err, "media_id", media.ID)
		return AudioFailedText
	}
	text, err := s.opts.Transcriber.Transcribe(ctx, audio, media.MimeType)
	if err != nil || strings.TrimSpace(text) == "" {
		slog.Error("MetaService.transcribe: transcription failed", "error", err, "media_id", media.ID)
		return AudioFailedText
	}
	return strings.TrimSpace(text)
}

func contactName(contacts []Contact, waID string) string {
	for _, c := range contacts {
		if c.WaID == waID {
			return c.Profile.Name
		}
	}
	if len(contacts) > 0 {
		return contacts[0].Profile.Name
	}
	return ""
}

func receiptsFrom(statuses []Status) []models.Receipt {
	var out []models.Receipt
	for _, st := range statuses {
		status := models.MessageStatus(st.Status)
		switch status {
		case models.MessageStatusSent, models.MessageStatusDelivered, models.MessageStatusRead, models.MessageStatusFailed:
		default:
			continue
		}
		out = append(out, models.Receipt{To: st.RecipientID, Status: status, Time: parseUnix(st.Timestamp).Unix()})
	}
	return out
}

func parseUnix(ts string) time.Time {
	sec, err := strconv.ParseInt(ts, 10, 64)
	if err != nil || sec <= 0 {
		return time.Now()
	}
	return time.Unix(sec, 0)
}
