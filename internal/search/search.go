// Package search runs a query vector against several named indexes and
// fuses the hits into one ranked candidate list.
package search

import (
	"math"

	"github.com/Aman-CERP/hotelrag/internal/domain"
	"github.com/Aman-CERP/hotelrag/internal/hydrate"
)

// Defaults.
const (
	DefaultThreshold = 0.7
	DefaultLimit     = 10
	// oversample is the k multiplier applied to the requested limit.
	oversample = 2
)

// Weights splits a fused score between the primary index and the best
// secondary index.
type Weights struct {
	Primary   float64 `json:"primary"`
	Secondary float64 `json:"secondary"`
}

// DefaultWeights returns 0.6/0.4.
func DefaultWeights() Weights {
	return Weights{Primary: 0.6, Secondary: 0.4}
}

// Similarity maps a squared L2 distance between unit vectors (2 - 2cos) to
// 1 - d/2, which is the cosine clamped to [0, 1].
func Similarity(distance float32) float64 {
	s := 1 - float64(distance)/2
	return math.Max(0, math.Min(1, s))
}

// Hit is one thresholded neighbour, tagged with the index it came from.
type Hit struct {
	Index      string  `json:"index"`
	ID         string  `json:"id"`
	Distance   float32 `json:"distance"`
	Similarity float64 `json:"similarity"`
}

// Candidate is one canonical record after fusion and hydration.
type Candidate struct {
	// ID is the canonical record id, shared across indexes.
	ID         string          `json:"id"`
	EntityType string          `json:"entity_type"`
	Score      float64         `json:"score"`
	Hits       []Hit           `json:"hits"`
	Payload    hydrate.Payload `json:"payload,omitempty"`
}

// Indexes returns the distinct source indexes of c's hits.
func (c Candidate) Indexes() []string {
	seen := make(map[string]bool, len(c.Hits))
	var out []string
	for _, h := range c.Hits {
		if !seen[h.Index] {
			seen[h.Index] = true
			out = append(out, h.Index)
		}
	}
	return out
}

// Request describes one search.
type Request struct {
	Vector  []float32
	Indexes []string
	// Limit and Threshold fall back to the searcher's options when zero.
	Limit     int
	Threshold float64
	// Intent selects a per-intent weight override.
	Intent domain.Intent
}

// Result is the fused, hydrated output of a search.
type Result struct {
	Candidates []Candidate `json:"candidates"`
	// Searched lists indexes that answered, Failed those that did not.
	Searched []string `json:"searched"`
	Failed   []string `json:"failed,omitempty"`
}
