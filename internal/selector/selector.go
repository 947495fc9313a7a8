// Package selector picks the vector indexes a query should search.
package selector

import (
	"sort"

	"github.com/Aman-CERP/hotelrag/internal/domain"
)

// Index names.
const (
	IndexHotel  = "hotel"
	IndexReview = "review"
	IndexVisa   = "visa"
)

// Select returns the indexes to search for intent given the entity fields
// that were extracted. It is pure and returns names in sorted order.
//
// VisaQuestion searches only visa and ReviewLookup only review. Otherwise the
// primary index is searched, plus review when the query names a traveller
// type or an origin country.
func Select(intent domain.Intent, keys []domain.Field) []string {
	switch intent {
	case domain.IntentVisaQuestion:
		return []string{IndexVisa}
	case domain.IntentReviewLookup:
		return []string{IndexReview}
	}

	set := map[string]struct{}{IndexHotel: {}}
	for _, k := range keys {
		if k == domain.FieldTravellerType || k == domain.FieldFromCountry {
			set[IndexReview] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for name := range set {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
