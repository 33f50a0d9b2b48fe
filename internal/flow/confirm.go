package flow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/AssadourKH/NEWAIBOT/internal/models"
)

// confirmPending handles the confirm button: it freezes the pending order,
// persists it, evicts it and acknowledges. A failed insert keeps the frozen
// context so the next click retries. Without a pending order it tells the
// customer there is nothing to confirm.
func (p *Processor) confirmPending(ctx context.Context, customerID int64, key, to string, res *TurnResult) error {
	var pending models.OrderContext
	var found bool
	p.contexts.Update(key, func(cur *models.OrderContext) *models.OrderContext {
		if !cur.HasItems() {
			return cur
		}
		cur.Confirmed = true
		pending, found = cur.Clone(), true
		return cur
	})

	if !found {
		slog.Info("flow.Processor.confirmPending: no pending order", "customer", key)
		if err := p.sender.SendText(ctx, to, p.profile.Texts.NoPendingOrder); err != nil {
			return fmt.Errorf("no pending order notice to %s: %w", to, err)
		}
		return nil
	}

	if stored, err := p.persist(ctx, customerID, pending); err != nil {
		logUnpersisted(key, customerID, pending, err)
	} else {
		p.contexts.Update(key, func(cur *models.OrderContext) *models.OrderContext {
			if cur != nil && cur.Confirmed {
				return nil
			}
			return cur
		})
		res.OrderPersisted = true
		p.metrics.OrderPersisted()
		slog.Info("flow.Processor.confirmPending: order persisted", "customer", key, "order_id", stored.ID, "reference", stored.Reference, "total", stored.TotalPrice)
	}

	if err := p.sender.SendText(ctx, to, p.profile.Texts.ConfirmAck); err != nil {
		return fmt.Errorf("confirmation ack to %s: %w", to, err)
	}
	return nil
}

// logUnpersisted records everything needed to re-enter the order by hand.
func logUnpersisted(key string, customerID int64, c models.OrderContext, err error) {
	items, merr := json.Marshal(c.Items)
	if merr != nil {
		items = []byte(fmt.Sprintf("%+v", c.Items))
	}
	slog.Error("flow.Processor.confirmPending: failed to persist order",
		"customer", key,
		"customer_id", customerID,
		"order_type", c.DeliveryType,
		"items", string(items),
		"total", c.PriceValue(),
		"address", c.Address,
		"phone", c.Phone,
		"branch", c.Branch,
		"name", c.Name,
		"error", err)
}

func (p *Processor) persist(ctx context.Context, customerID int64, c models.OrderContext) (models.Order, error) {
	if customerID == 0 {
		return models.Order{}, models.ErrCustomerNotFound
	}
	o, err := OrderFromContext(customerID, c)
	if err != nil {
		return models.Order{}, err
	}
	return p.repo.InsertConfirmedOrder(ctx, o)
}

// OrderFromContext converts a confirmed context into an orders row.
func OrderFromContext(customerID int64, c models.OrderContext) (models.Order, error) {
	items := c.Items
	if items == nil {
		items = []models.OrderItem{}
	}
	itemsJSON, err := json.Marshal(items)
	if err != nil {
		return models.Order{}, fmt.Errorf("failed to encode items: %w", err)
	}
	return models.Order{
		CustomerID:   customerID,
		OrderType:    string(c.DeliveryType),
		Items:        string(itemsJSON),
		TotalPrice:   c.PriceValue(),
		Address:      optional(c.Address),
		Phone:        optional(c.Phone),
		Branch:       optional(c.Branch),
		CustomerName: optional(c.Name),
		Status:       models.OrderStatusConfirmed,
	}, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
