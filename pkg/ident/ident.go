// Package ident validates the identifiers that scope retention: data
// categories and tenant ids.
package ident

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/complykit/audittrail/pkg/errclass"
)

var nameRegex = regexp.MustCompile(`^[a-zA-Z0-9._:-]+$`)

// Normalize returns the NFC form of s with surrounding space removed.
func Normalize(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

// ValidateCategory checks a data category name ("audit-log", "all", ...).
func ValidateCategory(category string) error {
	return validate("dataCategory", category)
}

// ValidateTenant checks a tenant id. Empty means "no tenant" and is valid.
func ValidateTenant(tenantID string) error {
	if tenantID == "" {
		return nil
	}
	return validate("tenantId", tenantID)
}

func validate(field, name string) error {
	if name == "" {
		return errclass.ErrValidation.Field(field, "must not be empty")
	}

	name = Normalize(name)

	for _, r := range name {
		if unicode.IsControl(r) {
			return errclass.ErrValidation.Field(field, "must not contain control characters")
		}
	}

	if !nameRegex.MatchString(name) {
		return errclass.ErrValidation.Field(field, "must match [a-zA-Z0-9._:-]+")
	}

	return nil
}
