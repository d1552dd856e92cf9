// Package validation runs ordered, pure validation rules over a candidate
// value and collects field-tagged errors.
package validation

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/dmitrijs2005/microblog/internal/common"
)

// Messages attached to fields.
const (
	MsgBlank        = "can't be blank"
	MsgInvalid      = "is invalid"
	MsgTaken        = "has already been taken"
	MsgNotIncluded  = "is not included in the list"
	MsgConfirmation = "doesn't match password"
	MsgSelfFollow   = "cannot follow yourself"
)

var emailRe = regexp.MustCompile(`(?i)^[\w+\-.]+@[a-z\d\-.]+\.[a-z]+$`)

// FieldError is one failed rule.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Errors is a list of field errors. A non-empty Errors satisfies
// errors.Is(err, common.ErrorValidation).
type Errors []FieldError

func (e Errors) Error() string {
	parts := make([]string, 0, len(e))
	for _, fe := range e {
		parts = append(parts, fe.Field+" "+fe.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e Errors) Is(target error) bool {
	return target == common.ErrorValidation
}

// Add appends a message for field.
func (e *Errors) Add(field, message string) {
	*e = append(*e, FieldError{Field: field, Message: message})
}

// Err returns e as an error, or nil when it is empty.
func (e Errors) Err() error {
	if len(e) == 0 {
		return nil
	}
	return e
}

// Fields groups messages by field name.
func (e Errors) Fields() map[string][]string {
	m := make(map[string][]string, len(e))
	for _, fe := range e {
		m[fe.Field] = append(m[fe.Field], fe.Message)
	}
	return m
}

// Has reports whether field has at least one error.
func (e Errors) Has(field string) bool {
	for _, fe := range e {
		if fe.Field == field {
			return true
		}
	}
	return false
}

// Single builds a one-entry Errors value.
func Single(field, message string) Errors {
	return Errors{{Field: field, Message: message}}
}

// Rule checks one aspect of a candidate and records failures in errs.
type Rule[T any] func(candidate T, errs *Errors)

// Run applies rules in order and returns the collected errors, or nil.
// Every rule runs, so the caller sees all failures at once.
func Run[T any](candidate T, rules ...Rule[T]) error {
	var errs Errors
	for _, rule := range rules {
		rule(candidate, &errs)
	}
	return errs.Err()
}

// Presence fails when value is empty after trimming whitespace.
func Presence(errs *Errors, field, value string) bool {
	if strings.TrimSpace(value) == "" {
		errs.Add(field, MsgBlank)
		return false
	}
	return true
}

// MaxLength fails when value has more than max characters.
func MaxLength(errs *Errors, field, value string, max int) bool {
	if utf8.RuneCountInString(value) > max {
		errs.Add(field, fmt.Sprintf("is too long (maximum is %d characters)", max))
		return false
	}
	return true
}

// MaxBytes fails when value is longer than max bytes.
func MaxBytes(errs *Errors, field, value string, max int) bool {
	if len(value) > max {
		errs.Add(field, fmt.Sprintf("is too long (maximum is %d bytes)", max))
		return false
	}
	return true
}

// Email fails when value does not look like an email address.
func Email(errs *Errors, field, value string) bool {
	if !emailRe.MatchString(value) {
		errs.Add(field, MsgInvalid)
		return false
	}
	return true
}

// Inclusion fails when ok is false.
func Inclusion(errs *Errors, field string, ok bool) bool {
	if !ok {
		errs.Add(field, MsgNotIncluded)
		return false
	}
	return true
}

// Sorted returns a copy of e ordered by field name, keeping message order
// within a field.
func (e Errors) Sorted() Errors {
	out := make(Errors, len(e))
	copy(out, e)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Field < out[j].Field })
	return out
}
