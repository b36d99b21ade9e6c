package errs

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_ChainingAndHelpers(t *testing.T) {
	t.Parallel()

	root := errors.New("disk i/o error")
	err := New(CodeSQLite, "store write failed").
		WithCause(root).
		WithRetryable(true).
		WithDetail("table", "messages")

	assert.Equal(t, CodeSQLite, CodeOf(err))
	assert.True(t, IsRetryable(err))
	assert.Equal(t, "messages", err.Detail["table"])
	assert.ErrorIs(t, err, root)
	assert.NotEmpty(t, err.Error())
}

func TestClassifyStoreError_TransientSignatures(t *testing.T) {
	t.Parallel()

	cases := []struct {
		msg       string
		retryable bool
	}{
		{"database is locked", true},
		{"SQLITE_BUSY: busy", true},
		{"unable to open database file", true},
		{"disk I/O error", true},
		{"pool timeout after 30s", true},
		{"pool exhausted", true},
		{"no such table: messages", false},
		{"UNIQUE constraint failed", false},
	}

	for _, tc := range cases {
		classified := ClassifyStoreError(errors.New(tc.msg))
		require.Equal(t, CodeSQLite, classified.Code)
		assert.Equalf(t, tc.retryable, classified.Retryable, "msg=%q", tc.msg)
	}
}

func TestClassifyStoreError_Nil(t *testing.T) {
	t.Parallel()
	assert.Nil(t, ClassifyStoreError(nil))
}

func TestAliasConflict_Detail(t *testing.T) {
	t.Parallel()

	err := AliasConflict("sender", "sender", "BlueLake", "from_agent", "RedHawk")
	assert.Equal(t, CodeInvalidArgument, err.Code)
	assert.Equal(t, "sender", err.Detail["field"])
	first := err.Detail["first"].(map[string]any)
	assert.Equal(t, "BlueLake", first["value"])
}
