// Package vector holds the named k-NN indexes searched by a query.
//
// The nearest-neighbour algorithm is a black box: every index satisfies
// Backend and reports raw distances. Callers turn distances into
// similarities.
package vector

import (
	"context"
	"fmt"
)

// Entity types stored behind an index.
const (
	EntityHotel = "hotel"
	EntityVisa  = "visa"
)

// Neighbor is one k-NN result.
type Neighbor struct {
	// ID is the vector's own id, unique within the index.
	ID string
	// Ref is the record the vector belongs to. Several vectors may share a
	// ref, for example many reviews of one hotel.
	Ref string
	// Distance is the squared L2 distance between the unit-normalized query
	// and vector, in [0, 4]. Lower is closer.
	Distance float32
}

// Descriptor is read-only index metadata.
type Descriptor struct {
	Name       string `json:"name"`
	Dimensions int    `json:"dimensions"`
	Count      int    `json:"count"`
	// EntityType is the record type refs resolve to.
	EntityType string `json:"entity_type"`
}

// Backend is a searchable vector index.
type Backend interface {
	Descriptor() Descriptor
	Search(ctx context.Context, query []float32, k int) ([]Neighbor, error)
}

// Item is one vector to index.
type Item struct {
	ID     string
	Ref    string
	Vector []float32
}

// ErrDimensionMismatch indicates a vector of the wrong size.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d (re-run 'hotelrag ingest')", e.Expected, e.Got)
}
