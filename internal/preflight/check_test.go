package preflight

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/hotelrag/internal/embed"
	herrors "github.com/Aman-CERP/hotelrag/internal/errors"
)

// shortEmbedder returns vectors one shorter than it declares.
type shortEmbedder struct{ embed.Embedder }

func (s shortEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	v, err := s.Embedder.Embed(ctx, text)
	return v[:len(v)-1], err
}

// downEmbedder always fails.
type downEmbedder struct{ embed.Embedder }

func (downEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, errors.New("connection refused")
}

func TestCheckStatus_String(t *testing.T) {
	tests := []struct {
		status CheckStatus
		want   string
	}{
		{StatusPass, "PASS"},
		{StatusWarn, "WARN"},
		{StatusFail, "FAIL"},
		{CheckStatus(9), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.status.String())
		})
	}
}

func TestCheckResult_IsCritical(t *testing.T) {
	assert.False(t, CheckResult{Status: StatusPass, Required: true}.IsCritical())
	assert.True(t, CheckResult{Status: StatusFail, Required: true}.IsCritical())
	assert.False(t, CheckResult{Status: StatusFail, Required: false}.IsCritical())
	assert.False(t, CheckResult{Status: StatusWarn, Required: true}.IsCritical())
}

func TestRunAll_Passes(t *testing.T) {
	c := New(WithEmbedder(embed.NewStaticEmbedder(32)), WithMinDiskSpace(1))

	results := c.RunAll(context.Background(), t.TempDir())

	require.Len(t, results, 3)
	for _, r := range results {
		assert.Equal(t, StatusPass, r.Status, r.Name)
	}
	assert.False(t, HasCriticalFailures(results))
	assert.NoError(t, Err(results))
}

func TestRunAll_WithoutEmbedder(t *testing.T) {
	results := New(WithMinDiskSpace(1)).RunAll(context.Background(), t.TempDir())

	assert.Len(t, results, 2)
}

func TestCheckDiskSpace_BelowMinimum(t *testing.T) {
	c := New(WithMinDiskSpace(math.MaxUint64))

	r := c.CheckDiskSpace(t.TempDir())

	assert.Equal(t, StatusFail, r.Status)
	assert.True(t, r.IsCritical())
}

func TestCheckWritePermissions_MissingDir(t *testing.T) {
	r := New().CheckWritePermissions(filepath.Join(t.TempDir(), "missing"))

	assert.Equal(t, StatusFail, r.Status)
}

func TestCheckWritePermissions_LeavesNoFile(t *testing.T) {
	dir := t.TempDir()

	r := New().CheckWritePermissions(dir)

	assert.Equal(t, StatusPass, r.Status)
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCheckEmbedder_Failures(t *testing.T) {
	static := embed.NewStaticEmbedder(16)

	down := New(WithEmbedder(downEmbedder{static})).CheckEmbedder(context.Background())
	assert.Equal(t, StatusFail, down.Status)
	assert.Contains(t, down.Message, "connection refused")

	short := New(WithEmbedder(shortEmbedder{static})).CheckEmbedder(context.Background())
	assert.Equal(t, StatusFail, short.Status)
	assert.Contains(t, short.Message, "15 dimensions, expected 16")
}

func TestErr_NamesFailures(t *testing.T) {
	err := Err([]CheckResult{
		{Name: "disk_space", Status: StatusFail, Message: "1 MiB free", Required: true},
		{Name: "embedder", Status: StatusWarn, Message: "slow", Required: true},
	})

	require.Error(t, err)
	assert.Equal(t, herrors.ErrCodeIngestFailed, herrors.GetCode(err))
	assert.Contains(t, err.Error(), "disk_space: 1 MiB free")
	assert.NotContains(t, err.Error(), "embedder")
}
