package router

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Aman-CERP/hotelrag/internal/domain"
)

const intentSystem = "You classify queries for a hotel travel assistant. " +
	"Reply with exactly one intent name and nothing else."

var intentDefinitions = map[domain.Intent]string{
	domain.IntentHotelSearch:              "finding hotels by city, country, rating threshold or star rating",
	domain.IntentHotelRecommendation:      "best or recommended hotels for a traveller type or quality need",
	domain.IntentReviewLookup:             "reviews, feedback or ratings for a specific hotel",
	domain.IntentLocationQuery:            "hotels with the best location or questions about an area",
	domain.IntentVisaQuestion:             "visa requirements between two countries",
	domain.IntentAmenityFilter:            "filtering by cleanliness, comfort, value, staff or facilities scores",
	domain.IntentGeneralQuestionAnswering: "hotel details and anything that fits no other intent",
	domain.IntentCasualConversation:       "greetings, thanks, small talk and questions about the assistant",
}

func intentPrompt(query string, hint domain.Intent) string {
	var b strings.Builder
	b.WriteString("Intents:\n")
	for _, i := range domain.AllIntents() {
		fmt.Fprintf(&b, "- %s: %s\n", i, intentDefinitions[i])
	}
	fmt.Fprintf(&b, "\nQuery: %q\n", query)
	if hint != "" {
		fmt.Fprintf(&b, "A keyword classifier suggests %s. Use it only if it fits.\n", hint)
	}
	b.WriteString("Intent:")
	return b.String()
}

const entitySystem = "You extract search parameters from hotel travel queries. " +
	"Reply with a single JSON object. Use null for anything the query does not state."

func entityPrompt(query string, fields []domain.Field, hint domain.Entities, extra string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Query: %q\n\nKeys:\n", query)
	for _, f := range fields {
		kind := "string"
		if f.Numeric() {
			kind = "number"
		}
		fmt.Fprintf(&b, "- %s (%s)\n", f, kind)
	}
	if extra != "" {
		fmt.Fprintf(&b, "\n%s\n", extra)
	}
	if len(hint) > 0 {
		if raw, err := json.Marshal(hint.Params()); err == nil {
			fmt.Fprintf(&b, "\nA pattern matcher found: %s\nCorrect or complete it.\n", raw)
		}
	}
	b.WriteString("\nJSON:")
	return b.String()
}
