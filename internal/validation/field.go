// Package validation checks raw transaction fields against business rules.
//
// Every function is pure: results depend only on the arguments and the
// validator's category set and clock. Failures are reported as data, one
// message per field, never as Go errors.
package validation

import (
	"fmt"
	"strings"
)

// Field identifies one of the user-editable transaction fields.
type Field int

const (
	FieldDescription Field = iota + 1
	FieldAmount
	FieldDate
	FieldCategory
)

type fieldSlots struct {
	name  string
	value string
	error string
}

var slots = map[Field]fieldSlots{
	FieldDescription: {name: "description", value: "description", error: "description-error"},
	FieldAmount:      {name: "amount", value: "amount", error: "amount-error"},
	FieldDate:        {name: "date", value: "date", error: "date-error"},
	FieldCategory:    {name: "category", value: "category", error: "category-error"},
}

// Fields returns all fields in display order.
func Fields() []Field {
	return []Field{FieldDescription, FieldAmount, FieldCategory, FieldDate}
}

// ParseField maps a field name back to its tag.
func ParseField(name string) (Field, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for f, s := range slots {
		if s.name == name {
			return f, nil
		}
	}
	return 0, fmt.Errorf("unknown field %q", name)
}

func (f Field) String() string {
	if s, ok := slots[f]; ok {
		return s.name
	}
	return fmt.Sprintf("field(%d)", int(f))
}

// ValueSlot names where the presentation layer keeps the field's input.
func (f Field) ValueSlot() string {
	return slots[f].value
}

// ErrorSlot names where the presentation layer shows the field's message.
func (f Field) ErrorSlot() string {
	return slots[f].error
}

func (f Field) order() int {
	for i, o := range Fields() {
		if o == f {
			return i
		}
	}
	return len(slots)
}
