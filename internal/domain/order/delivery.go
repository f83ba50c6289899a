package order

import (
	"slices"
	"strings"
	"time"
)

// DateLayout is the format of Delivery.Date.
const DateLayout = "2006-01-02"

// TimeSlots are the delivery windows a customer may pick.
var TimeSlots = []string{"09:00-12:00", "12:00-15:00", "15:00-18:00", "18:00-21:00"}

// PaymentMethods are the accepted payment options.
var PaymentMethods = []string{"card", "paynow", "cash_on_delivery"}

// Delivery holds the checkout form fields. It doubles as the session draft
// that re-populates the form after a failed submit.
type Delivery struct {
	Name          string `json:"name"`
	Contact       string `json:"contact"`
	Address       string `json:"address"`
	PostalCode    string `json:"postal_code"`
	PaymentMethod string `json:"payment_method"`
	Date          string `json:"date"`
	TimeSlot      string `json:"time_slot"`
	Notes         string `json:"notes,omitempty"`
}

// FieldError is a single invalid form field.
type FieldError struct {
	Field   string
	Message string
}

// ValidationError collects every invalid field of a delivery form.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		msgs[i] = f.Message
	}
	return strings.Join(msgs, "; ")
}

// Validate checks every field and returns a ValidationError listing all
// violations, or nil. Dates are compared by calendar day in now's location.
func (d *Delivery) Validate(now time.Time) error {
	var fields []FieldError
	add := func(field, msg string) {
		fields = append(fields, FieldError{Field: field, Message: msg})
	}

	if strings.TrimSpace(d.Name) == "" {
		add("name", "Name is required.")
	}
	if strings.TrimSpace(d.Contact) == "" {
		add("contact", "Contact number is required.")
	}
	if strings.TrimSpace(d.Address) == "" {
		add("address", "Delivery address is required.")
	}
	if strings.TrimSpace(d.PostalCode) == "" {
		add("postal_code", "Postal code is required.")
	}
	if !slices.Contains(PaymentMethods, d.PaymentMethod) {
		add("payment_method", "Please select a payment method.")
	}

	if date, err := time.ParseInLocation(DateLayout, d.Date, now.Location()); err != nil {
		add("date", "Please choose a valid delivery date.")
	} else {
		today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
		if date.Before(today) {
			add("date", "Delivery date cannot be in the past.")
		}
	}

	if !slices.Contains(TimeSlots, d.TimeSlot) {
		add("time_slot", "Please choose a delivery time slot.")
	}

	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}
