// Package domain holds the request-scoped data model shared by the routing,
// resolution and retrieval stages: intents, entity fields, typed values and
// the injected reference data used to normalize them.
package domain

import "strings"

// Intent is the classified purpose of a travel query.
type Intent string

// Supported intents.
const (
	IntentHotelSearch              Intent = "HotelSearch"
	IntentHotelRecommendation      Intent = "HotelRecommendation"
	IntentReviewLookup             Intent = "ReviewLookup"
	IntentLocationQuery            Intent = "LocationQuery"
	IntentVisaQuestion             Intent = "VisaQuestion"
	IntentAmenityFilter            Intent = "AmenityFilter"
	IntentGeneralQuestionAnswering Intent = "GeneralQuestionAnswering"
	IntentCasualConversation       Intent = "CasualConversation"
)

// DefaultIntent is used when neither rules nor the oracle produce a valid intent.
const DefaultIntent = IntentGeneralQuestionAnswering

var allIntents = []Intent{
	IntentHotelSearch,
	IntentHotelRecommendation,
	IntentReviewLookup,
	IntentLocationQuery,
	IntentVisaQuestion,
	IntentAmenityFilter,
	IntentGeneralQuestionAnswering,
	IntentCasualConversation,
}

// AllIntents returns every supported intent in declaration order.
func AllIntents() []Intent {
	out := make([]Intent, len(allIntents))
	copy(out, allIntents)
	return out
}

// Valid reports whether i is one of the supported intents.
func (i Intent) Valid() bool {
	for _, known := range allIntents {
		if i == known {
			return true
		}
	}
	return false
}

func (i Intent) String() string { return string(i) }

// ParseIntent maps free-form oracle output to an intent.
// Quotes and punctuation are stripped, then an exact case-insensitive match is
// tried, then a reply that contains an intent name. A fragment of a name such
// as "Hotel" is not an intent.
func ParseIntent(raw string) (Intent, bool) {
	cleaned := strings.TrimSpace(strings.Trim(strings.TrimSpace(raw), "\"'`.,:;!?()[]{}"))
	if cleaned == "" {
		return "", false
	}
	lower := strings.ToLower(cleaned)
	for _, known := range allIntents {
		if strings.ToLower(string(known)) == lower {
			return known, true
		}
	}
	// Longest name first so "HotelSearch" inside a sentence does not lose to a shorter prefix.
	best := Intent("")
	for _, known := range allIntents {
		name := strings.ToLower(string(known))
		if strings.Contains(lower, name) {
			if len(known) > len(best) {
				best = known
			}
		}
	}
	return best, best != ""
}
