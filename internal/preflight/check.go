// Package preflight checks that a data directory and embedder are usable
// before an ingest run starts writing.
package preflight

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Aman-CERP/hotelrag/internal/embed"
	herrors "github.com/Aman-CERP/hotelrag/internal/errors"
)

// CheckStatus represents the result of a preflight check.
type CheckStatus int

const (
	// StatusPass indicates the check passed successfully.
	StatusPass CheckStatus = iota
	// StatusWarn indicates a non-critical warning.
	StatusWarn
	// StatusFail indicates the check failed.
	StatusFail
)

// String returns the string representation of a CheckStatus.
func (s CheckStatus) String() string {
	switch s {
	case StatusPass:
		return "PASS"
	case StatusWarn:
		return "WARN"
	case StatusFail:
		return "FAIL"
	default:
		return "UNKNOWN"
	}
}

// CheckResult holds the result of a single preflight check.
type CheckResult struct {
	Name     string      `json:"name"`
	Status   CheckStatus `json:"status"`
	Message  string      `json:"message"`
	Required bool        `json:"required"`
}

// IsCritical returns true if this is a required check that failed.
func (r CheckResult) IsCritical() bool {
	return r.Required && r.Status == StatusFail
}

// Checker performs preflight checks.
type Checker struct {
	embedder embed.Embedder
	minFree  uint64
}

// Option configures a Checker.
type Option func(*Checker)

// WithEmbedder adds a probe embedding to the checks.
func WithEmbedder(e embed.Embedder) Option {
	return func(c *Checker) { c.embedder = e }
}

// WithMinDiskSpace overrides MinDiskSpaceBytes.
func WithMinDiskSpace(bytes uint64) Option {
	return func(c *Checker) { c.minFree = bytes }
}

// New creates a Checker.
func New(opts ...Option) *Checker {
	c := &Checker{minFree: MinDiskSpaceBytes}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RunAll runs every check against dataDir, which must exist.
func (c *Checker) RunAll(ctx context.Context, dataDir string) []CheckResult {
	results := []CheckResult{
		c.CheckDiskSpace(dataDir),
		c.CheckWritePermissions(dataDir),
	}
	if c.embedder != nil {
		results = append(results, c.CheckEmbedder(ctx))
	}
	return results
}

// HasCriticalFailures returns true if any required check failed.
func HasCriticalFailures(results []CheckResult) bool {
	for _, r := range results {
		if r.IsCritical() {
			return true
		}
	}
	return false
}

// Err returns an error naming every critical failure, or nil.
func Err(results []CheckResult) error {
	var failed []string
	for _, r := range results {
		if r.IsCritical() {
			failed = append(failed, r.Name+": "+r.Message)
		}
	}
	if len(failed) == 0 {
		return nil
	}
	return herrors.New(herrors.ErrCodeIngestFailed, "preflight failed: "+strings.Join(failed, "; "), nil)
}

// CheckWritePermissions verifies that files can be created in path.
func (c *Checker) CheckWritePermissions(path string) CheckResult {
	result := CheckResult{Name: "write_permissions", Required: true}

	testFile := filepath.Join(path, ".hotelrag-preflight")
	f, err := os.Create(testFile)
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("permission denied: %v", err)
		return result
	}
	_ = f.Close()
	_ = os.Remove(testFile)

	result.Status = StatusPass
	result.Message = "OK"
	return result
}

// CheckEmbedder embeds a probe text and compares its size with the
// embedder's declared dimensions.
func (c *Checker) CheckEmbedder(ctx context.Context) CheckResult {
	result := CheckResult{Name: "embedder", Required: true}

	vec, err := c.embedder.Embed(ctx, "preflight probe")
	switch {
	case err != nil:
		result.Status = StatusFail
		result.Message = fmt.Sprintf("%s unavailable: %v", c.embedder.ModelName(), err)
	case len(vec) != c.embedder.Dimensions():
		result.Status = StatusFail
		result.Message = fmt.Sprintf("%s returned %d dimensions, expected %d",
			c.embedder.ModelName(), len(vec), c.embedder.Dimensions())
	default:
		result.Status = StatusPass
		result.Message = fmt.Sprintf("%s, %d dimensions", c.embedder.ModelName(), len(vec))
	}
	return result
}
