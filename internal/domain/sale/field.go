package sale

import (
	"errors"
	"fmt"
	"net/mail"
	"strconv"
	"time"
	"unicode/utf8"
)

var (
	ErrFieldNotFound     = errors.New("ticket field not found")
	ErrFieldNotEditable  = errors.New("ticket field is not editable")
	ErrInvalidFieldValue = errors.New("invalid ticket field value")
)

// FieldType constrains the values a ticket field accepts.
type FieldType string

const (
	FieldText   FieldType = "text"
	FieldEmail  FieldType = "email"
	FieldNumber FieldType = "number"
	FieldDate   FieldType = "date"
)

// MaxFieldValueLength bounds every field value, in characters.
const MaxFieldValueLength = 1000

// Known reports whether t is a supported field type.
func (t FieldType) Known() bool {
	switch t {
	case FieldText, FieldEmail, FieldNumber, FieldDate:
		return true
	}
	return false
}

// ItemField is a custom value every ticket of an item carries, such as the
// attendee's name. Tickets start with Default; only Editable fields can be
// changed by the buyer afterwards.
type ItemField struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Type     FieldType `json:"type"`
	Default  string    `json:"default,omitempty"`
	Editable bool      `json:"editable"`
}

// Check validates value against the field type. The empty value is always
// accepted and clears the field.
func (f ItemField) Check(value string) error {
	if value == "" {
		return nil
	}
	if utf8.RuneCountInString(value) > MaxFieldValueLength {
		return fmt.Errorf("%w: %s is longer than %d characters", ErrInvalidFieldValue, f.ID, MaxFieldValueLength)
	}
	var err error
	switch f.Type {
	case FieldText:
	case FieldEmail:
		_, err = mail.ParseAddress(value)
	case FieldNumber:
		_, err = strconv.ParseFloat(value, 64)
	case FieldDate:
		_, err = time.Parse(time.DateOnly, value)
	default:
		err = fmt.Errorf("unknown type %q", f.Type)
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidFieldValue, f.ID, err)
	}
	return nil
}

// Field returns the item's field definition with the given id.
func (i *Item) Field(id string) (ItemField, error) {
	for _, f := range i.Fields {
		if f.ID == id {
			return f, nil
		}
	}
	return ItemField{}, fmt.Errorf("%w: %s on item %s", ErrFieldNotFound, id, i.ID)
}

// DefaultFields returns the initial field values of a new ticket, or nil
// when no field has a default.
func (i *Item) DefaultFields() map[string]string {
	var values map[string]string
	for _, f := range i.Fields {
		if f.Default == "" {
			continue
		}
		if values == nil {
			values = make(map[string]string)
		}
		values[f.ID] = f.Default
	}
	return values
}
