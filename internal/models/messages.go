package models

import "time"

// ChatRole tags a message in the model conversation.
type ChatRole string

const (
	ChatRoleSystem    ChatRole = "system"
	ChatRoleUser      ChatRole = "user"
	ChatRoleAssistant ChatRole = "assistant"
)

// ChatMessage is one role-tagged entry of the model conversation.
type ChatMessage struct {
	Role    ChatRole `json:"role"`
	Content string   `json:"content"`
}

// Direction records whether a logged message came from or went to the customer.
type Direction string

const (
	DirectionIncoming Direction = "incoming"
	DirectionOutgoing Direction = "outgoing"
)

// Role maps a logged direction onto the model conversation role.
func (d Direction) Role() ChatRole {
	if d == DirectionIncoming {
		return ChatRoleUser
	}
	return ChatRoleAssistant
}

// MessageType is the provider-reported kind of an inbound message.
type MessageType string

const (
	MessageTypeText        MessageType = "text"
	MessageTypeAudio       MessageType = "audio"
	MessageTypeOrder       MessageType = "order"
	MessageTypeButton      MessageType = "button"
	MessageTypeInteractive MessageType = "interactive"
)

// InboundMessage is a customer message after transport-specific normalization.
type InboundMessage struct {
	ID        string      `json:"id,omitempty"`
	From      string      `json:"from"`
	Username  string      `json:"username,omitempty"`
	Type      MessageType `json:"type"`
	Text      string      `json:"text"`
	Timestamp time.Time   `json:"timestamp"`
}

// IsButton reports whether the message is a template quick-reply click.
func (m InboundMessage) IsButton() bool {
	return m.Type == MessageTypeButton
}

// ProductItem is one line of a native WhatsApp catalog order.
type ProductItem struct {
	RetailerID string  `json:"product_retailer_id"`
	Quantity   int     `json:"quantity"`
	ItemPrice  float64 `json:"item_price,omitempty"`
	Currency   string  `json:"currency,omitempty"`
}

// MessageStatus is the delivery state of an outbound message.
type MessageStatus string

const (
	MessageStatusSent      MessageStatus = "sent"
	MessageStatusDelivered MessageStatus = "delivered"
	MessageStatusRead      MessageStatus = "read"
	MessageStatusFailed    MessageStatus = "failed"
)

// Receipt is a delivery event for an outbound message.
type Receipt struct {
	To     string        `json:"to"`
	Status MessageStatus `json:"status"`
	Time   int64         `json:"time"`
}
