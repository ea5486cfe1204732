package core

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	Food          Category = "Food"
	Transport     Category = "Transport"
	Housing       Category = "Housing"
	Entertainment Category = "Entertainment"
	Other         Category = "Other"
)

type (
	TransactionID string

	Category string

	// Transaction is a single recorded income (positive) or expense (negative).
	Transaction struct {
		ID          TransactionID   `json:"id"`
		Description string          `json:"description"`
		Amount      decimal.Decimal `json:"amount"`
		Category    Category        `json:"category"`
		Date        Date            `json:"date"`
		CreatedAt   time.Time       `json:"createdAt"`
		UpdatedAt   time.Time       `json:"updatedAt"`
	}

	// TransactionInput holds the raw field values as typed by the user.
	TransactionInput struct {
		Description string `json:"description"`
		Amount      string `json:"amount"`
		Category    string `json:"category"`
		Date        string `json:"date"`
	}
)

var (
	ErrNotFound      = errors.New("transaction not found")
	ErrInvalidAmount = errors.New("invalid amount")
	ErrInvalidDate   = errors.New("invalid date")
)

func (id TransactionID) String() string {
	return string(id)
}

func (c Category) String() string {
	return string(c)
}

// Input converts a stored transaction back into editable field values.
func (t Transaction) Input() TransactionInput {
	return TransactionInput{
		Description: t.Description,
		Amount:      t.Amount.String(),
		Category:    string(t.Category),
		Date:        t.Date.String(),
	}
}

// Trimmed returns a copy with surrounding whitespace removed from every field.
func (in TransactionInput) Trimmed() TransactionInput {
	return TransactionInput{
		Description: strings.TrimSpace(in.Description),
		Amount:      strings.TrimSpace(in.Amount),
		Category:    strings.TrimSpace(in.Category),
		Date:        strings.TrimSpace(in.Date),
	}
}

// CategorySet is an ordered set of known categories.
type CategorySet struct {
	order []Category
	index map[Category]struct{}
}

// DefaultCategories returns the built-in category set.
func DefaultCategories() CategorySet {
	return NewCategorySet(Food, Transport, Housing, Entertainment, Other)
}

// NewCategorySet builds a set preserving first-seen order; blanks and duplicates are dropped.
func NewCategorySet(cats ...Category) CategorySet {
	s := CategorySet{index: make(map[Category]struct{}, len(cats))}
	for _, c := range cats {
		c = Category(strings.TrimSpace(string(c)))
		if c == "" {
			continue
		}
		if _, ok := s.index[c]; ok {
			continue
		}
		s.index[c] = struct{}{}
		s.order = append(s.order, c)
	}
	return s
}

// ParseCategories builds a set from plain strings, e.g. from configuration.
func ParseCategories(names []string) CategorySet {
	cats := make([]Category, len(names))
	for i, n := range names {
		cats[i] = Category(n)
	}
	return NewCategorySet(cats...)
}

func (s CategorySet) Contains(c Category) bool {
	_, ok := s.index[c]
	return ok
}

// List returns the categories in display order.
func (s CategorySet) List() []Category {
	return append([]Category(nil), s.order...)
}

func (s CategorySet) Len() int {
	return len(s.order)
}
