// Package uuidutil generates the identifiers used across the trail.
package uuidutil

import "github.com/google/uuid"

// NewV4 generates a random UUID v4 string.
func NewV4() string {
	return uuid.NewString()
}

// NewV7 generates a time-ordered UUID v7 string, used for ledger entries so
// ids sort roughly by append time. Falls back to v4 if the clock source fails.
func NewV7() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Valid reports whether s parses as a UUID.
func Valid(s string) bool {
	return uuid.Validate(s) == nil
}
