package order

import (
	"log/slog"

	"github.com/AssadourKH/NEWAIBOT/internal/models"
)

// OutcomeKind is the transition a reconciliation took.
type OutcomeKind string

const (
	OutcomeUnchanged     OutcomeKind = "unchanged"
	OutcomeConfirmed     OutcomeKind = "confirmed"
	OutcomeModified      OutcomeKind = "modified"
	OutcomeUndone        OutcomeKind = "undone"
	OutcomeNothingToUndo OutcomeKind = "nothing_to_undo"
	OutcomeLocked        OutcomeKind = "locked"
)

// NothingToUndoText is sent when an undo finds no earlier state.
const NothingToUndoText = "↩️ There is no earlier change to undo."

// Outcome describes what Apply did to a context.
type Outcome struct {
	Kind OutcomeKind
	// Summary is the rendered order after Confirmed, Modified and Undone.
	Summary string
	// Reply is the customer-facing text for Modified, Undone, Locked and
	// NothingToUndo. Empty means the model's own reply stands.
	Reply string
	// Unresolved lists items the catalog could not price.
	Unresolved []string
	// Skipped counts changes whose item_id matched nothing.
	Skipped int
}

// Reconciler applies intents to order contexts, pricing against Catalog.
type Reconciler struct {
	Catalog Lookup
}

// NewReconciler creates a Reconciler pricing against idx.
func NewReconciler(idx Lookup) *Reconciler {
	return &Reconciler{Catalog: idx}
}

// Apply transitions c according to intent. It never fails: malformed parts
// of an intent are skipped and c is always left self-consistent.
//
// A confirmed context is frozen: modifications and repeated confirmations
// are rejected with OutcomeLocked and leave c untouched.
func (r *Reconciler) Apply(c *models.OrderContext, intent Intent) Outcome {
	switch in := intent.(type) {
	case ConfirmedOrder:
		if c.Confirmed {
			return Outcome{Kind: OutcomeLocked, Reply: LockedText}
		}
		return r.confirm(c, in)
	case ModificationSet:
		if c.Confirmed {
			slog.Info("order.Reconciler: modification rejected, order already confirmed", "changes", len(in.Changes))
			return Outcome{Kind: OutcomeLocked, Reply: LockedText}
		}
		return r.modify(c, in)
	case Undo:
		return r.undo(c)
	default:
		return Outcome{Kind: OutcomeUnchanged}
	}
}

func (r *Reconciler) confirm(c *models.OrderContext, in ConfirmedOrder) Outcome {
	c.DeliveryType = in.DeliveryType
	c.Items = models.CloneItems(in.Items)
	c.Address = in.Address
	c.Phone = in.Phone
	c.Branch = in.Branch
	c.Name = in.Name
	// The confirmed write is terminal; earlier snapshots must not be
	// restorable afterwards.
	c.History = nil

	var unresolved []string
	if in.Price != nil {
		c.SetPrice(*in.Price)
	} else {
		var total int64
		total, unresolved = Recompute(c.Items, r.Catalog)
		if total > 0 {
			c.SetPrice(total)
		} else {
			c.Price = nil
			slog.Warn("order.Reconciler: confirmed order has no resolvable price", "items", len(c.Items))
		}
	}
	c.Confirmed = true
	return Outcome{Kind: OutcomeConfirmed, Summary: FormatSummary(*c), Unresolved: unresolved}
}

func (r *Reconciler) modify(c *models.OrderContext, in ModificationSet) Outcome {
	c.History = append(c.History, models.CloneItems(c.Items))

	skipped := 0
	for _, ch := range in.Changes {
		if !applyChange(c, ch) {
			skipped++
			slog.Warn("order.Reconciler: change targets unknown item", "item_id", ch.TargetID())
		}
	}

	unresolved := r.reprice(c)
	summary := FormatSummary(*c)
	return Outcome{
		Kind:       OutcomeModified,
		Summary:    summary,
		Reply:      UpdatedPrefix + "\n\n" + summary,
		Unresolved: unresolved,
		Skipped:    skipped,
	}
}

func (r *Reconciler) undo(c *models.OrderContext) Outcome {
	n := len(c.History)
	if n == 0 {
		return Outcome{Kind: OutcomeNothingToUndo, Reply: NothingToUndoText}
	}
	c.Items = c.History[n-1]
	c.History = c.History[:n-1]

	unresolved := r.reprice(c)
	summary := FormatSummary(*c)
	return Outcome{
		Kind:       OutcomeUndone,
		Summary:    summary,
		Reply:      UndonePrefix + "\n\n" + summary,
		Unresolved: unresolved,
	}
}

func (r *Reconciler) reprice(c *models.OrderContext) []string {
	total, unresolved := Recompute(c.Items, r.Catalog)
	c.SetPrice(total)
	return unresolved
}

// applyChange mutates every item whose id matches. It reports whether any
// item matched. A quantity of zero or less removes the item.
func applyChange(c *models.OrderContext, ch Change) bool {
	id := ch.TargetID()
	matched := false
	kept := c.Items[:0:0]
	for _, it := range c.Items {
		if it.ID == "" || it.ID != id {
			kept = append(kept, it)
			continue
		}
		matched = true
		switch v := ch.(type) {
		case RemoveItem:
			continue
		case QuantityChange:
			if v.NewQuantity <= 0 {
				continue
			}
			it.Quantity = v.NewQuantity
		case AddModification:
			if v.Mod != "" {
				it.Modifications = append(append([]string(nil), it.Modifications...), v.Mod)
			}
		case RemoveModification:
			it.Modifications = removeFirst(it.Modifications, v.Mod)
		}
		kept = append(kept, it)
	}
	c.Items = kept
	return matched
}

func removeFirst(mods []string, mod string) []string {
	for i, m := range mods {
		if m == mod {
			out := make([]string, 0, len(mods)-1)
			out = append(out, mods[:i]...)
			return append(out, mods[i+1:]...)
		}
	}
	return mods
}
