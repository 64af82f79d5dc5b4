package core

import (
	"fmt"
	"net/mail"
	"unicode/utf8"
)

// Contact form bounds, in characters. Only the message has an upper bound;
// the request body cap limits the rest.
const (
	ContactNameMin    = 2
	ContactSubjectMin = 5
	ContactMessageMin = 10
	ContactMessageMax = 500
)

// ContactInput is a contact form submission before it is stored.
type ContactInput struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Subject string `json:"subject"`
	Message string `json:"message"`
}

// FieldError reports an invalid contact form field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *FieldError) Error() string {
	return e.Field + ": " + e.Message
}

// Validate checks the form rules and returns the first failing field. Values
// are checked as submitted, without trimming.
func (in ContactInput) Validate() error {
	if err := lengthBetween("name", in.Name, ContactNameMin, 0); err != nil {
		return err
	}
	if in.Email == "" {
		return &FieldError{Field: "email", Message: "is required"}
	}
	addr, err := mail.ParseAddress(in.Email)
	if err != nil || addr.Address != in.Email {
		return &FieldError{Field: "email", Message: "must be a valid email address"}
	}
	if err := lengthBetween("subject", in.Subject, ContactSubjectMin, 0); err != nil {
		return err
	}
	return lengthBetween("message", in.Message, ContactMessageMin, ContactMessageMax)
}

func lengthBetween(field, value string, min, max int) error {
	n := utf8.RuneCountInString(value)
	if n < min {
		return &FieldError{Field: field, Message: fmt.Sprintf("must be at least %d characters", min)}
	}
	if max > 0 && n > max {
		return &FieldError{Field: field, Message: fmt.Sprintf("must be at most %d characters", max)}
	}
	return nil
}
