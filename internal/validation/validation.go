// Package validation collects field-level input problems into a single
// BadRequest error.
package validation

import (
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/wolfman30/clinicdesk/internal/apperr"
)

var phonePattern = regexp.MustCompile(`^\+?[\d\s-]{7,15}$`)

// Errors accumulates failing field messages in declaration order.
type Errors struct {
	fields []string
}

// Add records msg when failed is true.
func (e *Errors) Add(failed bool, msg string) {
	if failed {
		e.fields = append(e.fields, msg)
	}
}

func (e *Errors) Required(value, label string) {
	e.Add(strings.TrimSpace(value) == "", label+" is required")
}

func (e *Errors) MaxLen(value string, max int, label string) {
	e.Add(utf8.RuneCountInString(value) > max, fmt.Sprintf("%s cannot exceed %d characters", label, max))
}

// Email checks the format of a non-empty address.
func (e *Errors) Email(value string) {
	if strings.TrimSpace(value) == "" {
		return
	}
	e.Add(!IsEmail(value), "Please provide a valid email")
}

// Phone checks the format of a non-empty contact number.
func (e *Errors) Phone(value string) {
	if strings.TrimSpace(value) == "" {
		return
	}
	e.Add(!phonePattern.MatchString(strings.TrimSpace(value)), "Please provide a valid contact number")
}

// Err returns nil when nothing failed.
func (e *Errors) Err() error {
	if len(e.fields) == 0 {
		return nil
	}
	return apperr.Validation(e.fields...)
}

// IsEmail reports whether s is a bare address without a display name.
func IsEmail(s string) bool {
	s = strings.TrimSpace(s)
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s {
		return false
	}
	at := strings.LastIndex(s, "@")
	return at > 0 && strings.Contains(s[at:], ".")
}

// NormalizeEmail trims and lower-cases an address for storage and lookup.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
