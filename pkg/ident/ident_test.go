package ident_test

import (
	"errors"
	"testing"

	"github.com/complykit/audittrail/pkg/errclass"
	"github.com/complykit/audittrail/pkg/ident"
	"github.com/stretchr/testify/assert"
)

func TestValidateCategory_Valid(t *testing.T) {
	for _, c := range []string{"audit-log", "all", "evidence.files", "esg:scope-1"} {
		assert.NoError(t, ident.ValidateCategory(c), c)
	}
}

func TestValidateCategory_Invalid(t *testing.T) {
	for _, c := range []string{"", "has space", "slash/name", "tab\tname"} {
		err := ident.ValidateCategory(c)
		assert.True(t, errors.Is(err, errclass.ErrValidation), c)
	}
}

func TestValidateTenant_EmptyAllowed(t *testing.T) {
	assert.NoError(t, ident.ValidateTenant(""))
	assert.NoError(t, ident.ValidateTenant("tenant-1"))
	assert.Error(t, ident.ValidateTenant("tenant 1"))
}

func TestNormalize_NFC(t *testing.T) {
	decomposed := "e\u0301"
	assert.Equal(t, "\u00e9", ident.Normalize(" "+decomposed+" "))
}
