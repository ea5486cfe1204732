package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"bilancio/internal/core"
	"bilancio/internal/persistence"
	"bilancio/internal/store"

	"github.com/shopspring/decimal"
)

// DocumentVersion is written into every export.
const DocumentVersion = 1

// ErrInvalidDocument is returned when an import cannot be applied.
var ErrInvalidDocument = errors.New("invalid document")

// Document is the export/import file: the whole transaction list plus
// settings.
type Document struct {
	Version      int                `json:"version"`
	Transactions []core.Transaction `json:"transactions"`
	Settings     *core.Settings     `json:"settings,omitempty"`
}

// Export writes the current transactions (insertion order) and settings as
// indented JSON.
func (c *Controller) Export(w io.Writer) error {
	settings := c.store.Settings()
	doc := Document{
		Version:      DocumentVersion,
		Transactions: persistence.CloneTransactions(c.store.All()),
		Settings:     &settings,
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode export: %w", err)
	}
	return nil
}

// Import replaces the transaction list with the document's and, when the
// document carries settings, replaces both settings keys. Every record is
// validated first; one bad record rejects the whole document.
func (c *Controller) Import(ctx context.Context, r io.Reader) (int, error) {
	var doc Document
	dec := json.NewDecoder(r)
	if err := dec.Decode(&doc); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	if doc.Version > DocumentVersion {
		return 0, fmt.Errorf("%w: unsupported version %d", ErrInvalidDocument, doc.Version)
	}

	for i, t := range doc.Transactions {
		if errs := c.validator.ValidateTransaction(t.Input()); errs.HasErrors() {
			return 0, fmt.Errorf("%w: record %d (%s): %s", ErrInvalidDocument, i, t.ID, errs.Error())
		}
	}

	var patch core.SettingsPatch
	if doc.Settings != nil {
		budget := doc.Settings.BudgetCap
		patch.BudgetCap = &budget
		patch.CurrencyRates = doc.Settings.CurrencyRates
		if patch.CurrencyRates == nil {
			patch.CurrencyRates = map[string]decimal.Decimal{}
		}
		if errs := c.validator.ValidateSettingsPatch(patch); errs.HasErrors() {
			return 0, fmt.Errorf("%w: settings: %s", ErrInvalidDocument, errs.Error())
		}
	}

	if doc.Transactions == nil {
		doc.Transactions = []core.Transaction{}
	}
	var errs []error
	if err := c.store.SetTransactions(ctx, doc.Transactions); err != nil {
		if !errors.Is(err, store.ErrNotPersisted) {
			return 0, err
		}
		errs = append(errs, err)
	}
	if doc.Settings != nil {
		if _, err := c.store.UpdateSettings(ctx, patch); err != nil {
			errs = append(errs, err)
		}
	}
	return len(doc.Transactions), errors.Join(errs...)
}
