package errclass

import "fmt"

// AuditError is a stable, machine-readable error class.
type AuditError struct {
	Code    string
	Message string
}

func (e *AuditError) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AuditError) Is(target error) bool {
	t, ok := target.(*AuditError)
	return ok && e.Code == t.Code
}

// WithMessage returns a new AuditError with the same Code but a specific message.
func (e *AuditError) WithMessage(msg string) *AuditError {
	return &AuditError{Code: e.Code, Message: msg}
}

// WithMessagef returns a new AuditError with a formatted message.
func (e *AuditError) WithMessagef(format string, args ...any) *AuditError {
	return &AuditError{Code: e.Code, Message: fmt.Sprintf(format, args...)}
}

// Field returns a validation-style error naming the offending field.
func (e *AuditError) Field(field, reason string) *AuditError {
	return &AuditError{Code: e.Code, Message: fmt.Sprintf("%s %s", field, reason)}
}

// Stable error classes.
var (
	ErrValidation         = &AuditError{Code: "E_VALIDATION"}
	ErrNotFound           = &AuditError{Code: "E_NOT_FOUND"}
	ErrChainBroken        = &AuditError{Code: "E_CHAIN_BROKEN"}
	ErrSigningUnavailable = &AuditError{Code: "E_SIGNING_UNAVAILABLE"}
	ErrSignatureInvalid   = &AuditError{Code: "E_SIGNATURE_INVALID"}
	ErrHashMismatch       = &AuditError{Code: "E_HASH_MISMATCH"}
	ErrFormatUnsupported  = &AuditError{Code: "E_FORMAT_UNSUPPORTED"}
	ErrJournalCorrupt     = &AuditError{Code: "E_JOURNAL_CORRUPT"}
	ErrJournalConflict    = &AuditError{Code: "E_JOURNAL_CONFLICT"}
)
