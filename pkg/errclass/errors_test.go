package errclass_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/complykit/audittrail/pkg/errclass"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditError_Error(t *testing.T) {
	err := errclass.ErrNotFound.WithMessage("retention policy p-1")
	assert.Equal(t, "E_NOT_FOUND: retention policy p-1", err.Error())
}

func TestAuditError_BareCode(t *testing.T) {
	assert.Equal(t, "E_CHAIN_BROKEN", errclass.ErrChainBroken.Error())
}

func TestAuditError_Is(t *testing.T) {
	err := errclass.ErrValidation.WithMessage("specific message")
	require.True(t, errors.Is(err, errclass.ErrValidation))
	require.False(t, errors.Is(err, errclass.ErrNotFound))
}

func TestAuditError_IsThroughWrap(t *testing.T) {
	err := fmt.Errorf("sign report: %w", errclass.ErrSigningUnavailable.WithMessage("no key"))
	assert.True(t, errors.Is(err, errclass.ErrSigningUnavailable))
}

func TestAuditError_Field(t *testing.T) {
	err := errclass.ErrValidation.Field("retentionDays", "must be at least 1")
	assert.Equal(t, "E_VALIDATION: retentionDays must be at least 1", err.Error())
}

func TestAuditError_WithMessagef(t *testing.T) {
	err := errclass.ErrHashMismatch.WithMessagef("entry %d", 3)
	assert.Equal(t, "E_HASH_MISMATCH: entry 3", err.Error())
}
