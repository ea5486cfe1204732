package validation

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"bilancio/internal/core"

	"github.com/shopspring/decimal"
)

const (
	// MaxDescriptionLength is counted in characters, not bytes.
	MaxDescriptionLength = 200
)

// MaxAmount bounds the absolute value of a single transaction.
var MaxAmount = decimal.NewFromInt(1_000_000_000)

const (
	MsgDescriptionRequired = "Description is required"
	MsgDescriptionTooLong  = "Description must be 200 characters or less"
	MsgAmountInvalid       = "Amount must be a valid number"
	MsgAmountZero          = "Amount cannot be zero"
	MsgAmountOutOfRange    = "Amount must be between -1,000,000,000 and 1,000,000,000"
	MsgDateRequired        = "Date is required"
	MsgDateInvalid         = "Date must be a valid date (YYYY-MM-DD)"
	MsgDateInFuture        = "Date cannot be in the future"
	MsgCategoryInvalid     = "Please select a valid category"
	MsgBudgetCapInvalid    = "Budget cap must be a positive number"
	MsgRateInvalid         = "Exchange rates must be positive numbers keyed by a 3-letter currency code"
)

var currencyCode = regexp.MustCompile(`^[A-Z]{3}$`)

// Errors maps each failing field to its message. A missing key means the
// field is valid.
type Errors map[Field]string

func (e Errors) HasErrors() bool {
	return len(e) > 0
}

func (e Errors) Get(f Field) (string, bool) {
	msg, ok := e[f]
	return msg, ok
}

// Fields returns the failing fields in display order.
func (e Errors) Fields() []Field {
	out := make([]Field, 0, len(e))
	for f := range e {
		out = append(out, f)
	}
	slices.SortFunc(out, func(a, b Field) int { return a.order() - b.order() })
	return out
}

// Error renders every message on one line, for logs.
func (e Errors) Error() string {
	parts := make([]string, 0, len(e))
	for _, f := range e.Fields() {
		parts = append(parts, fmt.Sprintf("%s: %s", f, e[f]))
	}
	return strings.Join(parts, "; ")
}

// Validator holds the two inputs the rules need besides the value itself:
// the known categories and the current time (for the no-future-dates rule).
type Validator struct {
	categories core.CategorySet
	now        func() time.Time
}

// New returns a validator. A nil clock means time.Now.
func New(categories core.CategorySet, now func() time.Time) *Validator {
	if now == nil {
		now = time.Now
	}
	return &Validator{categories: categories, now: now}
}

// Categories returns the category set the validator accepts.
func (v *Validator) Categories() core.CategorySet {
	return v.categories
}

// ValidateDescription returns an empty string when the description is valid.
func (v *Validator) ValidateDescription(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return MsgDescriptionRequired
	}
	if utf8.RuneCountInString(trimmed) > MaxDescriptionLength {
		return MsgDescriptionTooLong
	}
	return ""
}

// ValidateAmount accepts signed amounts; zero and absurdly large values fail.
func (v *Validator) ValidateAmount(value string) string {
	amount, err := core.ParseAmount(value)
	if err != nil {
		return MsgAmountInvalid
	}
	if amount.IsZero() {
		return MsgAmountZero
	}
	if amount.Abs().GreaterThan(MaxAmount) {
		return MsgAmountOutOfRange
	}
	return ""
}

// ValidateDate requires a YYYY-MM-DD date no later than today.
func (v *Validator) ValidateDate(value string) string {
	if strings.TrimSpace(value) == "" {
		return MsgDateRequired
	}
	d, err := core.ParseDate(value)
	if err != nil {
		return MsgDateInvalid
	}
	if d.After(core.Today(v.now())) {
		return MsgDateInFuture
	}
	return ""
}

func (v *Validator) ValidateCategory(value string) string {
	if !v.categories.Contains(core.Category(strings.TrimSpace(value))) {
		return MsgCategoryInvalid
	}
	return ""
}

// ValidateField dispatches on the field tag; used for live, per-keystroke checks.
func (v *Validator) ValidateField(f Field, value string) string {
	switch f {
	case FieldDescription:
		return v.ValidateDescription(value)
	case FieldAmount:
		return v.ValidateAmount(value)
	case FieldDate:
		return v.ValidateDate(value)
	case FieldCategory:
		return v.ValidateCategory(value)
	default:
		return ""
	}
}

// ValidateTransaction runs every field check and collects all failures.
func (v *Validator) ValidateTransaction(in core.TransactionInput) Errors {
	errs := Errors{}
	values := map[Field]string{
		FieldDescription: in.Description,
		FieldAmount:      in.Amount,
		FieldDate:        in.Date,
		FieldCategory:    in.Category,
	}
	for f, value := range values {
		if msg := v.ValidateField(f, value); msg != "" {
			errs[f] = msg
		}
	}
	return errs
}

// SettingsErrors reports problems with a settings patch, keyed by setting name.
type SettingsErrors map[string]string

var ErrInvalidSettings = errors.New("invalid settings")

func (e SettingsErrors) HasErrors() bool {
	return len(e) > 0
}

func (e SettingsErrors) Error() string {
	keys := make([]string, 0, len(e))
	for k := range e {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e[k]))
	}
	return strings.Join(parts, "; ")
}

// ValidateSettingsPatch checks only the keys present in the patch.
func (v *Validator) ValidateSettingsPatch(p core.SettingsPatch) SettingsErrors {
	errs := SettingsErrors{}
	if p.BudgetCap != nil && p.BudgetCap.Valid && !p.BudgetCap.Decimal.IsPositive() {
		errs["budgetCap"] = MsgBudgetCapInvalid
	}
	for code, rate := range p.CurrencyRates {
		if !currencyCode.MatchString(code) || !rate.IsPositive() {
			errs["currencyRates"] = MsgRateInvalid
			break
		}
	}
	return errs
}
