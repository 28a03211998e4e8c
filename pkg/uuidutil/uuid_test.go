package uuidutil_test

import (
	"regexp"
	"testing"

	"github.com/complykit/audittrail/pkg/uuidutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	v4Pattern = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)
	v7Pattern = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-7[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)
)

func TestNewV4_Format(t *testing.T) {
	require.Regexp(t, v4Pattern, uuidutil.NewV4())
}

func TestNewV7_Format(t *testing.T) {
	require.Regexp(t, v7Pattern, uuidutil.NewV7())
}

func TestNewV7_Uniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := uuidutil.NewV7()
		assert.False(t, seen[id], "duplicate UUID: %s", id)
		seen[id] = true
	}
}

func TestValid(t *testing.T) {
	assert.True(t, uuidutil.Valid(uuidutil.NewV4()))
	assert.False(t, uuidutil.Valid("not-a-uuid"))
}
