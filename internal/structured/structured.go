// Package structured maps a routed query onto parameterized graph queries
// and runs them against a structured backend.
//
// The engine never builds query text from user input. Library picks a
// fixed template per (intent, entities) and passes values as parameters.
package structured

import (
	"context"
	"errors"
)

// Query is one parameterized structured query.
type Query struct {
	// Name identifies the template. Executors that do not speak Cypher
	// dispatch on it.
	Name   string         `json:"name"`
	Cypher string         `json:"-"`
	Params map[string]any `json:"params"`
}

// Row is one result record keyed by column alias.
type Row map[string]any

// Executor runs structured queries.
type Executor interface {
	Execute(ctx context.Context, q Query) ([]Row, error)
}

// ErrUnsupported is returned by executors that cannot answer a template.
var ErrUnsupported = errors.New("query not supported by this executor")

// Template names.
const (
	QueryHotelsByCity       = "hotels_by_city"
	QueryHotelsByCountry    = "hotels_by_country"
	QueryHotelsByRating     = "hotels_by_rating"
	QueryHotelsByStars      = "hotels_by_star_rating"
	QueryTopForTraveller    = "top_hotels_for_traveller_type"
	QueryHotelsByQuality    = "hotels_by_quality"
	QueryReviewsByHotelName = "reviews_by_hotel_name"
	QueryReviewsByHotelID   = "reviews_by_hotel_id"
	QueryBestLocation       = "hotels_best_location"
	QueryVisaCheck          = "visa_check"
	QueryTravellersNoVisa   = "travellers_without_visa"
	QueryHotelDetails       = "hotel_full_details"
)
