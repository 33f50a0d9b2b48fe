package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/AssadourKH/NEWAIBOT/internal/models"
	"github.com/AssadourKH/NEWAIBOT/internal/order"
)

// TurnResult reports what a turn did.
type TurnResult struct {
	CustomerID int64
	Throttled  bool
	// ModelFailed is set when the apology replaced the model reply.
	ModelFailed bool
	Intent      string
	Outcome     order.OutcomeKind
	Decision    order.DecisionKind
	// Reply is the text the decision was taken on.
	Reply string
	// ConfirmHandled is set when the turn was a confirm button click.
	ConfirmHandled bool
	OrderPersisted bool
}

// HandleTurn processes one turn. Store failures only degrade the turn; the
// returned error joins the send failures, which are also logged.
func (p *Processor) HandleTurn(ctx context.Context, turn Turn) (TurnResult, error) {
	msg := turn.Message
	defer p.markProcessed(turn.MessageIDs)

	customerID, conversationID := p.resolveCustomer(ctx, msg)
	key := contextKey(customerID, msg.From)
	res := TurnResult{CustomerID: customerID, Outcome: order.OutcomeUnchanged, Decision: order.DecisionNone}

	var errs []error
	if p.throttle.Allow(key, msg.Text) {
		errs = append(errs, p.converse(ctx, msg, customerID, conversationID, key, &res)...)
	} else {
		res.Throttled = true
		p.metrics.Throttled()
	}

	if msg.IsButton() && p.profile.IsConfirmButton(msg.Text) {
		res.ConfirmHandled = true
		if err := p.confirmPending(ctx, customerID, key, msg.From, &res); err != nil {
			errs = append(errs, err)
		}
	}

	p.metrics.LiveContexts(p.contexts.Len())
	return res, errors.Join(errs...)
}

// converse runs the model half of a turn and dispatches its reply.
func (p *Processor) converse(ctx context.Context, msg models.InboundMessage, customerID, conversationID int64, key string, res *TurnResult) []error {
	history := p.history(ctx, conversationID)
	p.logMessage(ctx, customerID, conversationID, msg.Text, models.DirectionIncoming)

	reply, ok := p.complete(ctx, key, history, msg.Text)
	res.ModelFailed = !ok

	var errs []error
	if ok {
		intent := p.extractor.Extract(reply)
		res.Intent = order.Kind(intent)
		p.metrics.Turn(res.Intent)

		outcome := p.reconcile(key, intent)
		res.Outcome = outcome.Kind
		p.metrics.UnresolvedItems(len(outcome.Unresolved))
		switch outcome.Kind {
		case order.OutcomeLocked:
			p.metrics.LockedRejection()
		case order.OutcomeConfirmed:
			// The template is the turn's only outbound action.
			res.Reply = outcome.Summary
			res.Decision = order.DecisionTemplate
			p.logMessage(ctx, customerID, conversationID, outcome.Summary, models.DirectionOutgoing)
			if err := p.sendConfirmation(ctx, customerID, msg.From, outcome.Summary); err != nil {
				errs = append(errs, err)
			}
			return errs
		}
		if outcome.Reply != "" {
			reply = outcome.Reply
		}
	}

	res.Reply = reply
	p.logMessage(ctx, customerID, conversationID, reply, models.DirectionOutgoing)
	if err := p.dispatch(ctx, key, msg.From, reply, res); err != nil {
		errs = append(errs, err)
	}
	return errs
}

// complete calls the model under the profile timeout. On failure it returns
// the apology and false.
func (p *Processor) complete(ctx context.Context, key string, history []models.ChatMessage, text string) (string, bool) {
	messages, err := p.buildMessages(ctx, key, history, text)
	if err != nil {
		slog.Error("flow.Processor.complete: failed to build prompt", "customer", key, "error", err)
		return p.profile.Texts.Apology, false
	}

	mctx, cancel := context.WithTimeout(ctx, p.profile.ModelTimeout)
	defer cancel()
	start := p.now()
	reply, err := p.model.Complete(mctx, messages)
	elapsed := p.now().Sub(start)
	if err != nil {
		p.metrics.ModelCall("error", elapsed)
		slog.Error("flow.Processor.complete: model call failed", "customer", key, "elapsed", elapsed, "error", err)
		return p.profile.Texts.Apology, false
	}
	p.metrics.ModelCall("ok", elapsed)
	slog.Debug("flow.Processor.complete: model replied", "customer", key, "elapsed", elapsed, "reply_length", len(reply))
	return reply, true
}

// reconcile applies intent to the customer's context under its lock. A
// context is created on the first intent that needs one.
func (p *Processor) reconcile(key string, intent order.Intent) order.Outcome {
	if _, none := intent.(order.NoIntent); none {
		return order.Outcome{Kind: order.OutcomeUnchanged}
	}
	var outcome order.Outcome
	p.contexts.Update(key, func(cur *models.OrderContext) *models.OrderContext {
		if cur == nil {
			if _, undo := intent.(order.Undo); undo {
				outcome = order.Outcome{Kind: order.OutcomeNothingToUndo, Reply: order.NothingToUndoText}
				return nil
			}
			cur = &models.OrderContext{Items: []models.OrderItem{}}
		}
		outcome = p.reconciler.Apply(cur, intent)
		return cur
	})
	slog.Info("flow.Processor.reconcile: applied intent", "customer", key, "intent", order.Kind(intent), "outcome", outcome.Kind)
	return outcome
}

// sendConfirmation sends the confirmed summary through the template to the
// phone on file, falling back to the sender.
func (p *Processor) sendConfirmation(ctx context.Context, customerID int64, from, summary string) error {
	to := from
	if customerID > 0 {
		phone, err := p.repo.PhoneByCustomerID(ctx, customerID)
		switch {
		case err != nil:
			slog.Warn("flow.Processor.sendConfirmation: phone lookup failed, using sender", "customer_id", customerID, "error", err)
		case phone != "":
			to = phone
		}
	}
	if err := p.sender.SendTemplate(ctx, to, order.TemplateParams(summary)); err != nil {
		slog.Error("flow.Processor.sendConfirmation: template send failed", "to", to, "error", err)
		return fmt.Errorf("confirmation template to %s: %w", to, err)
	}
	p.metrics.Dispatched(string(order.DecisionTemplate))
	return nil
}

// dispatch fires the single outbound action chosen for reply.
func (p *Processor) dispatch(ctx context.Context, key, to, reply string, res *TurnResult) error {
	d := order.Decide(reply)
	res.Decision = d.Kind

	var err error
	switch d.Kind {
	case order.DecisionTemplate:
		err = p.sender.SendTemplate(ctx, to, order.TemplateParams(d.Text))
		p.contexts.Update(key, func(cur *models.OrderContext) *models.OrderContext {
			if cur != nil && (cur.HasItems() || cur.Confirmed) {
				return cur
			}
			synth := order.SynthesizeContext(d.Text, to, p.catalog)
			slog.Info("flow.Processor.dispatch: built order context from summary", "customer", key, "items", len(synth.Items))
			return &synth
		})
	case order.DecisionAck:
		err = p.sender.SendText(ctx, to, d.Text)
	case order.DecisionText:
		text := order.StripPayload(d.Text)
		if text == "" {
			res.Decision = order.DecisionNone
			break
		}
		err = p.sender.SendText(ctx, to, text)
	}
	p.metrics.Dispatched(string(res.Decision))
	if err != nil {
		slog.Error("flow.Processor.dispatch: send failed", "to", to, "decision", d.Kind, "error", err)
		return fmt.Errorf("%s to %s: %w", d.Kind, to, err)
	}
	return nil
}
