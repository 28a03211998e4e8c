package export

import (
	"errors"
	"fmt"

	"github.com/complykit/audittrail/internal/audit"
	"github.com/complykit/audittrail/internal/signing"
	"github.com/complykit/audittrail/pkg/errclass"
	"github.com/complykit/audittrail/pkg/model"
)

// BundleVerification is the result of checking an export without access
// to the ledger.
type BundleVerification struct {
	Valid            bool     `json:"valid"`
	EntryHashesValid bool     `json:"entryHashesValid"`
	ChainValid       bool     `json:"chainValid"`
	ContentHashValid bool     `json:"contentHashValid"`
	SignatureValid   bool     `json:"signatureValid"`
	ChainMessage     string   `json:"chainMessage"`
	Problems         []string `json:"problems,omitempty"`

	err error
}

// Err returns the first failure as a classified error, or nil.
func (v BundleVerification) Err() error {
	return v.err
}

func (v *BundleVerification) fail(err error) {
	if v.err == nil {
		v.err = err
	}
	v.Problems = append(v.Problems, err.Error())
}

// VerifyBundle recomputes every entry hash, the links visible in the
// bundle, the content hash and the signature. Links are only checked for
// unfiltered exports; a filtered bundle is not contiguous.
func VerifyBundle(b model.TamperEvidentExport, v signing.Verifier) BundleVerification {
	res := BundleVerification{EntryHashesValid: true, ChainValid: true}
	meta := b.Metadata

	if meta.FormatVersion != model.ExportFormatVersion || meta.HashAlgorithm != model.HashAlgorithmSHA256 {
		res.fail(errclass.ErrFormatUnsupported.WithMessagef("format %q with %q", meta.FormatVersion, meta.HashAlgorithm))
		return res
	}
	if meta.EntryCount != len(b.Entries) {
		res.fail(errclass.ErrHashMismatch.WithMessagef("metadata lists %d entries, bundle has %d", meta.EntryCount, len(b.Entries)))
	}

	for _, e := range b.Entries {
		if audit.Hash(e) != e.EntryHash {
			res.EntryHashesValid = false
			res.fail(errclass.ErrHashMismatch.WithMessagef("entry %s: entry hash does not match its content", e.ID))
		}
	}

	if len(meta.Filters) == 0 {
		ok, msg := audit.VerifyChain(b.Entries, meta.ChainGaps...)
		res.ChainValid, res.ChainMessage = ok, msg
		if !ok {
			res.fail(errclass.ErrChainBroken.WithMessage(msg))
		}
	} else {
		linked := 0
		for i := 1; i < len(b.Entries); i++ {
			if b.Entries[i].PreviousEntryHash == b.Entries[i-1].EntryHash {
				linked++
			}
		}
		res.ChainMessage = fmt.Sprintf("filtered export: %d of %d adjacent links contiguous; ledger reported: %s",
			linked, max(len(b.Entries)-1, 0), meta.ValidationMessage)
	}

	hash, err := ContentHash(meta, b.Entries)
	switch {
	case err != nil:
		res.fail(err)
	case hash != meta.ContentHash:
		res.fail(errclass.ErrHashMismatch.WithMessage("export content hash mismatch"))
	default:
		res.ContentHashValid = true
	}

	switch {
	case v == nil:
		res.fail(errclass.ErrSigningUnavailable.WithMessage("no verifier supplied"))
	default:
		digest, err := signing.DigestHex(meta.ContentHash)
		if err == nil {
			err = v.Verify(digest, meta.Signature)
		}
		if err != nil {
			var ae *errclass.AuditError
			if !errors.As(err, &ae) {
				err = errclass.ErrSignatureInvalid.WithMessage(err.Error())
			}
			res.fail(err)
		} else {
			res.SignatureValid = true
		}
	}

	res.Valid = res.err == nil
	return res
}
