// Package app drives the transaction store the way a form-based front end
// does: live field checks, an add/edit form bound to the editing cursor, and
// a dashboard recomputed from the current list.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bilancio/internal/analytics"
	"bilancio/internal/core"
	"bilancio/internal/log"
	"bilancio/internal/store"
	"bilancio/internal/validation"
)

// TransactionStore is the part of *store.Store the controller drives.
type TransactionStore interface {
	Add(ctx context.Context, in core.TransactionInput) (core.Transaction, error)
	Update(ctx context.Context, id core.TransactionID, in core.TransactionInput) (core.Transaction, error)
	Delete(ctx context.Context, id core.TransactionID) error
	Get(id core.TransactionID) (core.Transaction, bool)
	All() []core.Transaction
	SetTransactions(ctx context.Context, txns []core.Transaction) error
	SetEditingID(id core.TransactionID)
	EditingID() (core.TransactionID, bool)
	ClearEditingID()
	Settings() core.Settings
	UpdateSettings(ctx context.Context, p core.SettingsPatch) (core.Settings, error)
	Flush(ctx context.Context) error
	Dirty() bool
}

var _ TransactionStore = (*store.Store)(nil)

type Controller struct {
	store     TransactionStore
	validator *validation.Validator
	now       func() time.Time
}

// New returns a controller. A nil clock means time.Now.
func New(s TransactionStore, v *validation.Validator, now func() time.Time) *Controller {
	if now == nil {
		now = time.Now
	}
	return &Controller{store: s, validator: v, now: now}
}

// Today is the date new transactions default to.
func (c *Controller) Today() core.Date {
	return core.Today(c.now())
}

// Categories lists the categories the form offers.
func (c *Controller) Categories() []core.Category {
	return c.validator.Categories().List()
}

// ValidateField checks a single field as it is typed.
func (c *Controller) ValidateField(f validation.Field, value string) string {
	return c.validator.ValidateField(f, value)
}

// BeginAdd puts the form in add mode.
func (c *Controller) BeginAdd() {
	c.store.ClearEditingID()
}

// BeginEdit targets the form at id and returns the record to prefill it.
// Unknown ids leave the cursor alone.
func (c *Controller) BeginEdit(id core.TransactionID) (core.Transaction, bool) {
	t, ok := c.store.Get(id)
	if !ok {
		return core.Transaction{}, false
	}
	c.store.SetEditingID(id)
	return t, true
}

func (c *Controller) Cancel() {
	c.store.ClearEditingID()
}

// Editing returns the record the form currently targets, if any.
func (c *Controller) Editing() (core.Transaction, bool) {
	id, ok := c.store.EditingID()
	if !ok {
		return core.Transaction{}, false
	}
	return c.store.Get(id)
}

// Submit validates every field and, when all pass, updates the record under
// the cursor or adds a new one. Field problems come back as data and nothing
// is stored. A stale cursor is cleared and reported as core.ErrNotFound.
func (c *Controller) Submit(ctx context.Context, in core.TransactionInput) (core.Transaction, validation.Errors, error) {
	if errs := c.validator.ValidateTransaction(in); errs.HasErrors() {
		log.FromContext(ctx).DebugContext(ctx, "Submit rejected",
			log.FieldOperation, log.OpValidate,
			log.FieldErrorType, log.ErrorTypeValidation,
			log.FieldError, errs.Error())
		return core.Transaction{}, errs, nil
	}

	id, editing := c.store.EditingID()
	if !editing {
		t, err := c.store.Add(ctx, in)
		return t, nil, err
	}

	t, err := c.store.Update(ctx, id, in)
	if errors.Is(err, core.ErrNotFound) {
		c.store.ClearEditingID()
	}
	return t, nil, err
}

// Delete removes id; deleting the record under edit also leaves edit mode.
func (c *Controller) Delete(ctx context.Context, id core.TransactionID) error {
	return c.store.Delete(ctx, id)
}

// Transactions returns the list in display order, newest date first.
func (c *Controller) Transactions() []core.Transaction {
	return analytics.SortByDate(c.store.All())
}

func (c *Controller) Dashboard() analytics.Stats {
	return analytics.Compute(c.store.All(), c.store.Settings(), c.Today())
}

func (c *Controller) Settings() core.Settings {
	return c.store.Settings()
}

// UpdateSettings validates the keys present in p before merging them.
func (c *Controller) UpdateSettings(ctx context.Context, p core.SettingsPatch) (core.Settings, validation.SettingsErrors, error) {
	if errs := c.validator.ValidateSettingsPatch(p); errs.HasErrors() {
		return c.store.Settings(), errs, nil
	}
	s, err := c.store.UpdateSettings(ctx, p)
	return s, nil, err
}

// Flush retries whatever the backend failed to store earlier.
func (c *Controller) Flush(ctx context.Context) error {
	if !c.store.Dirty() {
		return nil
	}
	if err := c.store.Flush(ctx); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	return nil
}

// Dirty reports unsaved changes.
func (c *Controller) Dirty() bool {
	return c.store.Dirty()
}
