package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_Unwrap_PreservesCause(t *testing.T) {
	cause := stderrors.New("connection refused")
	err := New(ErrCodeOracleUnavailable, "oracle call failed", cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "[ERR_601_ORACLE_UNAVAILABLE] oracle call failed: connection refused", err.Error())
}

func TestError_Is_MatchesByCode(t *testing.T) {
	a := New(ErrCodeIndexUnavailable, "a", nil)
	b := New(ErrCodeIndexUnavailable, "b", nil)
	c := New(ErrCodeHydrationFailed, "c", nil)

	assert.True(t, stderrors.Is(a, b))
	assert.False(t, stderrors.Is(a, c))
}

func TestError_CategoryAndSeverityFromCode(t *testing.T) {
	tests := []struct {
		code      string
		category  Category
		severity  Severity
		retryable bool
	}{
		{ErrCodeConfigInvalid, CategoryConfig, SeverityError, false},
		{ErrCodeCorruptIndex, CategoryIO, SeverityFatal, false},
		{ErrCodeNetworkTimeout, CategoryNetwork, SeverityWarning, true},
		{ErrCodeQueryEmpty, CategoryValidation, SeverityError, false},
		{ErrCodeInternal, CategoryInternal, SeverityError, false},
		{ErrCodeOracleUnavailable, CategoryRetrieval, SeverityWarning, true},
		{ErrCodeOracleMalformed, CategoryRetrieval, SeverityWarning, false},
		{ErrCodeIndexUnavailable, CategoryRetrieval, SeverityWarning, false},
		{"BAD", CategoryInternal, SeverityError, false},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := New(tt.code, "msg", nil)
			assert.Equal(t, tt.category, err.Category)
			assert.Equal(t, tt.severity, err.Severity)
			assert.Equal(t, tt.retryable, err.Retryable)
		})
	}
}

func TestHelpers_FindErrorThroughWrapping(t *testing.T) {
	inner := OracleUnavailable("openai", stderrors.New("503"))
	wrapped := fmt.Errorf("classify: %w", inner)

	assert.True(t, IsRetryable(wrapped))
	assert.False(t, IsFatal(wrapped))
	assert.Equal(t, ErrCodeOracleUnavailable, GetCode(wrapped))
	assert.Equal(t, CategoryRetrieval, GetCategory(wrapped))
	assert.Equal(t, "openai", inner.Details["provider"])

	assert.False(t, IsRetryable(stderrors.New("plain")))
	assert.Empty(t, GetCode(nil))
}

func TestWrap_NilReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(ErrCodeInternal, nil))
}

func TestFormatForCLI(t *testing.T) {
	err := IndexUnavailable("review", stderrors.New("file missing")).
		WithSuggestion("run 'hotelrag ingest --type review'")

	out := FormatForCLI(err)
	assert.Contains(t, out, "Error: index query failed")
	assert.Contains(t, out, "Cause: file missing")
	assert.Contains(t, out, "Hint: run 'hotelrag ingest --type review'")
	assert.Contains(t, out, "Code: ERR_603_INDEX_UNAVAILABLE")

	assert.Empty(t, FormatForCLI(nil))
	assert.Contains(t, FormatForCLI(stderrors.New("boom")), "ERR_501_INTERNAL")
}

func TestFormatJSON(t *testing.T) {
	data, err := FormatJSON(OracleMalformed("no json object", stderrors.New("eof")))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"code":"ERR_602_ORACLE_MALFORMED"`)
	assert.Contains(t, string(data), `"category":"RETRIEVAL"`)
	assert.Contains(t, string(data), `"cause":"eof"`)
}
