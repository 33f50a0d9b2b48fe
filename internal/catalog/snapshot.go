package catalog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/AssadourKH/NEWAIBOT/internal/models"
)

// DefaultCurrency is assumed when a snapshot row carries none.
const DefaultCurrency = "LBP"

var priceRegex = regexp.MustCompile(`^([A-Z]+)?\s*([\d,]+)(?:\.\d*)?$`)

// ParsePrice parses catalog prices such as "500000", "500,000" or
// "LBP500,000.00". Thousands separators are dropped and any fraction is
// truncated. Anything else is rejected with ok=false.
func ParsePrice(raw string) (amount int64, currency string, ok bool) {
	m := priceRegex.FindStringSubmatch(strings.TrimSpace(raw))
	if m == nil {
		return 0, "", false
	}
	digits := strings.ReplaceAll(m[2], ",", "")
	if digits == "" {
		return 0, "", false
	}
	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0, "", false
	}
	return n, m[1], true
}

// ReadSnapshot decodes a catalog CSV with a header row. Recognized columns are
// retailer_id (or id), name, description, price and currency; others are ignored.
func ReadSnapshot(r io.Reader) ([]models.CatalogEntry, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	idCol, ok := cols["retailer_id"]
	if !ok {
		idCol, ok = cols["id"]
	}
	nameCol, hasName := cols["name"]
	if !ok || !hasName {
		return nil, errors.New("catalog header must contain retailer_id and name columns")
	}
	field := func(rec []string, col string) string {
		i, ok := cols[col]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	var out []models.CatalogEntry
	line := 1
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("failed to read catalog line %d: %w", line, err)
		}
		if idCol >= len(rec) || nameCol >= len(rec) {
			slog.Warn("catalog.ReadSnapshot: short row skipped", "line", line)
			continue
		}
		entry := models.CatalogEntry{
			ID:          strings.TrimSpace(rec[idCol]),
			Name:        strings.TrimSpace(rec[nameCol]),
			Description: field(rec, "description"),
			Currency:    field(rec, "currency"),
		}
		if raw := field(rec, "price"); raw != "" {
			amount, cur, ok := ParsePrice(raw)
			if !ok {
				slog.Warn("catalog.ReadSnapshot: unparseable price, entry priced at zero", "line", line, "id", entry.ID, "price", raw)
			} else {
				entry.UnitPrice = amount
				if entry.Currency == "" {
					entry.Currency = cur
				}
			}
		}
		out = append(out, entry)
	}
	return out, nil
}

// LoadSnapshot reads the CSV at path into an index. On any failure it returns
// an empty index together with the error so callers can log and carry on.
func LoadSnapshot(path string) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		slog.Error("catalog.LoadSnapshot: failed to open snapshot", "path", path, "error", err)
		return Empty(), fmt.Errorf("failed to open catalog snapshot %s: %w", path, err)
	}
	defer f.Close()

	records, err := ReadSnapshot(f)
	if err != nil {
		slog.Error("catalog.LoadSnapshot: malformed snapshot", "path", path, "error", err)
		return Empty(), err
	}
	idx := Load(records)
	slog.Info("catalog.LoadSnapshot: catalog loaded", "path", path, "entries", idx.Len())
	return idx, nil
}
