package structured

import (
	"github.com/Aman-CERP/hotelrag/internal/hydrate"
)

// renames maps raw record keys to catalog keys, per kind.
var renames = map[string]map[string]string{
	DocHotel: {
		"name":                  "hotel_name",
		"average_reviews_score": "avg_score",
	},
	DocReview: {
		"text": "review_text",
		"date": "review_date",
		"type": "traveller_type",
	},
}

// Normalize returns a copy of a raw record using catalog field names.
// Hotels without review averages fall back to their baseline scores.
// Visa records mean a visa is required unless they say otherwise.
func Normalize(kind string, raw hydrate.Payload) hydrate.Payload {
	doc := raw.Clone()
	for from, to := range renames[kind] {
		if v, ok := doc[from]; ok {
			if _, taken := doc[to]; !taken {
				doc[to] = v
			}
			delete(doc, from)
		}
	}

	switch kind {
	case DocHotel:
		for _, d := range dimensions {
			if _, ok := doc[d.Alias]; ok {
				continue
			}
			if v, ok := doc[d.Base]; ok {
				doc[d.Alias] = v
			}
		}
	case DocVisa:
		if _, ok := doc["visa_required"]; !ok {
			doc["visa_required"] = true
		}
	}
	return doc
}
