package catalog

import (
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/AssadourKH/NEWAIBOT/internal/models"
)

// Holder publishes the current Index and lets a reload job swap it wholesale.
// Readers always see a complete index, never a partially loaded one.
type Holder struct {
	current atomic.Pointer[Index]
}

// NewHolder creates a holder serving idx (or an empty index when nil).
func NewHolder(idx *Index) *Holder {
	h := &Holder{}
	if idx == nil {
		idx = Empty()
	}
	h.current.Store(idx)
	return h
}

// Current returns the index in effect.
func (h *Holder) Current() *Index {
	return h.current.Load()
}

// FindByID delegates to the current index.
func (h *Holder) FindByID(id string) (models.CatalogEntry, bool) {
	return h.Current().FindByID(id)
}

// FindByNameSubstring delegates to the current index.
func (h *Holder) FindByNameSubstring(name string) (models.CatalogEntry, bool) {
	return h.Current().FindByNameSubstring(name)
}

// Reload loads the snapshot at path and swaps it in. A failed or empty load
// keeps the previous index.
func (h *Holder) Reload(path string) error {
	idx, err := LoadSnapshot(path)
	if err != nil {
		slog.Warn("catalog.Holder.Reload: keeping previous catalog", "path", path, "error", err, "entries", h.Current().Len())
		return err
	}
	if idx.Len() == 0 {
		slog.Warn("catalog.Holder.Reload: snapshot empty, keeping previous catalog", "path", path, "entries", h.Current().Len())
		return fmt.Errorf("catalog snapshot %s has no entries", path)
	}
	prev := h.current.Swap(idx)
	slog.Info("catalog.Holder.Reload: catalog swapped", "path", path, "previous_entries", prev.Len(), "entries", idx.Len())
	return nil
}
