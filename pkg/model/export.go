package model

import "time"

// Export format constants.
const (
	HashAlgorithmSHA256 = "SHA-256"
	ExportFormatVersion = "1.0"
)

// ExportMetadata describes a tamper-evident export. ContentHash and
// Signature are excluded from the hashed content.
type ExportMetadata struct {
	ExportID           string            `json:"exportId"`
	ExportedAt         time.Time         `json:"exportedAt"`
	ExportedBy         string            `json:"exportedBy"`
	ExportedByName     string            `json:"exportedByName"`
	HashAlgorithm      string            `json:"hashAlgorithm"`
	FormatVersion      string            `json:"formatVersion"`
	Filters            map[string]string `json:"filters"`
	HashChainValid     bool              `json:"hashChainValid"`
	ValidationMessage  string            `json:"validationMessage"`
	EntryCount         int               `json:"entryCount"`
	ChainGaps          []ChainGap        `json:"chainGaps,omitempty"`
	SignatureAlgorithm string            `json:"signatureAlgorithm"`
	KeyID              string            `json:"keyId,omitempty"`
	ContentHash        string            `json:"contentHash"`
	Signature          string            `json:"signature"`
}

// TamperEvidentExport is a signed, self-verifying bundle of entries.
// Entries are in ascending timestamp order.
type TamperEvidentExport struct {
	Metadata ExportMetadata  `json:"metadata"`
	Entries  []AuditLogEntry `json:"entries"`
}
