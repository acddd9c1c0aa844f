package model

import (
	"errors"
	"strings"

	"schedcal/internal/apperr"
	"schedcal/internal/datekey"
)

// ErrValidation marks input rejected at the boundary: malformed HH:MM,
// end not after start, a bad date key, or a missing required field.
// Match with errors.Is.
var ErrValidation = apperr.ErrValidation

// ErrNotFound is returned by the agenda workflow when an event id is not
// in the snapshot.
var ErrNotFound = apperr.ErrNotFound

// ValidationError describes which value failed and why.
type ValidationError struct {
	EventID string
	Field   string
	Value   string
	Reason  string
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	b.WriteString(ErrValidation.Error())
	b.WriteString(": ")
	if e.EventID != "" {
		b.WriteString("event ")
		b.WriteString(e.EventID)
		b.WriteString(": ")
	}
	if e.Field != "" {
		b.WriteString(e.Field)
		b.WriteString(": ")
	}
	b.WriteString(e.Reason)
	if e.Value != "" {
		b.WriteString(" (got ")
		b.WriteString(quote(e.Value))
		b.WriteString(")")
	}
	return b.String()
}

// Is makes errors.Is(err, ErrValidation) true.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// ParseDate validates key as a canonical day. Failures are reported as a
// *ValidationError on field, naming the event id when one is given.
func ParseDate(id, field string, key datekey.Key) (datekey.Key, error) {
	k, err := datekey.Parse(string(key))
	if err != nil {
		return "", &ValidationError{
			EventID: id,
			Field:   field,
			Value:   string(key),
			Reason:  "date must be YYYY-MM-DD",
		}
	}
	return k, nil
}

func quote(s string) string {
	return `"` + s + `"`
}

func withField(err error, field string) error {
	var ve *ValidationError
	if errors.As(err, &ve) && ve.Field == "" {
		cp := *ve
		cp.Field = field
		return &cp
	}
	return err
}

func withEvent(err error, id string) error {
	var ve *ValidationError
	if errors.As(err, &ve) && ve.EventID == "" && id != "" {
		cp := *ve
		cp.EventID = id
		return &cp
	}
	return err
}
