package flow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/AssadourKH/NEWAIBOT/internal/config"
	"github.com/AssadourKH/NEWAIBOT/internal/models"
)

// buildMessages assembles the model conversation: the most recent history,
// then the system prompt, then the customer's message.
func (p *Processor) buildMessages(ctx context.Context, customerKey string, history []models.ChatMessage, text string) ([]models.ChatMessage, error) {
	if n := p.profile.HistoryWindow; len(history) > n {
		history = history[len(history)-n:]
	}
	system, err := p.profile.RenderSystemPrompt(config.PromptData{
		CustomerID: customerKey,
		Catalog:    p.catalog.Current().PromptText(),
		Branches:   p.branchList(ctx),
	})
	if err != nil {
		return nil, err
	}

	messages := make([]models.ChatMessage, 0, len(history)+2)
	messages = append(messages, history...)
	messages = append(messages,
		models.ChatMessage{Role: models.ChatRoleSystem, Content: system},
		models.ChatMessage{Role: models.ChatRoleUser, Content: text},
	)
	return messages, nil
}

// branchList renders one line per branch. Store failures yield an empty list.
func (p *Processor) branchList(ctx context.Context) string {
	branches, err := p.repo.ListBranches(ctx)
	if err != nil {
		slog.Error("flow.Processor.branchList: failed to load branches", "error", err)
		return ""
	}
	lines := make([]string, 0, len(branches))
	for _, b := range branches {
		lines = append(lines, fmt.Sprintf("- %s: %s (Delivery: %s)", b.Name, b.Location, b.DeliveryTime))
	}
	return strings.Join(lines, "\n")
}

// history loads the conversation so far. Failures degrade to no history.
func (p *Processor) history(ctx context.Context, conversationID int64) []models.ChatMessage {
	if conversationID == 0 {
		return nil
	}
	h, err := p.repo.GetHistory(ctx, conversationID, p.profile.HistoryWindow)
	if err != nil {
		slog.Error("flow.Processor.history: failed to load history", "conversation_id", conversationID, "error", err)
		return nil
	}
	return h
}

// logMessage appends to the conversation log, best-effort.
func (p *Processor) logMessage(ctx context.Context, customerID, conversationID int64, text string, dir models.Direction) {
	if customerID == 0 || conversationID == 0 || text == "" {
		return
	}
	if err := p.repo.AppendMessage(ctx, customerID, conversationID, text, dir); err != nil {
		slog.Error("flow.Processor.logMessage: failed", "customer_id", customerID, "direction", dir, "error", err)
	}
}

// resolveCustomer upserts the customer and finds the open conversation.
// Either id is 0 when the store failed.
func (p *Processor) resolveCustomer(ctx context.Context, msg models.InboundMessage) (customerID, conversationID int64) {
	customerID, err := p.repo.UpsertCustomer(ctx, msg.From, msg.Username)
	if err != nil {
		slog.Error("flow.Processor.resolveCustomer: upsert failed", "from", msg.From, "error", err)
		return 0, 0
	}
	conversationID, err = p.repo.GetOrCreateConversation(ctx, customerID)
	if err != nil {
		slog.Error("flow.Processor.resolveCustomer: conversation lookup failed", "customer_id", customerID, "error", err)
		return customerID, 0
	}
	return customerID, conversationID
}
