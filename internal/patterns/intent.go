package patterns

import (
	"regexp"
	"sort"
	"strings"

	"github.com/Aman-CERP/hotelrag/internal/domain"
)

// Keyword is a weighted phrase. It matches at a word start, so "review" also
// matches "reviews".
type Keyword struct {
	Intent domain.Intent
	Term   string
	Weight float64
}

// Pattern is a weighted regular expression.
type Pattern struct {
	Intent domain.Intent
	Name   string
	Re     *regexp.Regexp
	Weight float64
}

// IntentRules is the rule table for intent scoring.
type IntentRules struct {
	Exact    map[string]domain.Intent
	Keywords []Keyword
	Patterns []Pattern
}

// IntentScore is the rule evidence for one intent.
type IntentScore struct {
	Intent domain.Intent
	// Score is the combined score in [0, 1].
	Score float64
	// Keyword is the capped sum of matched keyword weights.
	Keyword float64
	// Regex is the highest matched pattern weight.
	Regex float64
	// Matched names the keywords and patterns that fired.
	Matched []string
}

// IntentMatcher scores queries against IntentRules.
type IntentMatcher struct {
	rules IntentRules
	boost float64
}

// NewIntentMatcher returns a matcher. boost is added when keyword and pattern
// evidence agree on an intent.
func NewIntentMatcher(rules IntentRules, boost float64) *IntentMatcher {
	exact := make(map[string]domain.Intent, len(rules.Exact))
	for k, v := range rules.Exact {
		exact[exactKey(k)] = v
	}
	rules.Exact = exact
	return &IntentMatcher{rules: rules, boost: boost}
}

func exactKey(s string) string {
	return strings.TrimSpace(words(s))
}

// Exact returns the intent for a query that exactly matches a known phrase,
// ignoring case and punctuation.
func (m *IntentMatcher) Exact(query string) (domain.Intent, bool) {
	i, ok := m.rules.Exact[exactKey(query)]
	return i, ok
}

// Score returns every intent with non-zero evidence, best first. Ties keep
// the declaration order of domain.AllIntents.
func (m *IntentMatcher) Score(query string) []IntentScore {
	hay := " " + strings.TrimSpace(words(query))
	byIntent := make(map[domain.Intent]*IntentScore)
	get := func(i domain.Intent) *IntentScore {
		s, ok := byIntent[i]
		if !ok {
			s = &IntentScore{Intent: i}
			byIntent[i] = s
		}
		return s
	}

	for _, kw := range m.rules.Keywords {
		term := strings.TrimSpace(words(kw.Term))
		if term == "" || !strings.Contains(hay, " "+term) {
			continue
		}
		s := get(kw.Intent)
		s.Keyword += kw.Weight
		s.Matched = append(s.Matched, "kw:"+kw.Term)
	}
	for _, p := range m.rules.Patterns {
		if !p.Re.MatchString(query) {
			continue
		}
		s := get(p.Intent)
		if p.Weight > s.Regex {
			s.Regex = p.Weight
		}
		s.Matched = append(s.Matched, "re:"+p.Name)
	}

	order := make(map[domain.Intent]int)
	for i, intent := range domain.AllIntents() {
		order[intent] = i
	}

	out := make([]IntentScore, 0, len(byIntent))
	for _, s := range byIntent {
		if s.Keyword > 1 {
			s.Keyword = 1
		}
		s.Score = s.Keyword
		if s.Regex > s.Score {
			s.Score = s.Regex
		}
		if s.Keyword > 0 && s.Regex > 0 {
			s.Score += m.boost
		}
		if s.Score > 1 {
			s.Score = 1
		}
		out = append(out, *s)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return order[out[i].Intent] < order[out[j].Intent]
	})
	return out
}

func re(expr string) *regexp.Regexp { return regexp.MustCompile(expr) }

// DefaultIntentRules returns the built-in travel intent table.
func DefaultIntentRules() IntentRules {
	const (
		search    = domain.IntentHotelSearch
		recommend = domain.IntentHotelRecommendation
		review    = domain.IntentReviewLookup
		location  = domain.IntentLocationQuery
		visa      = domain.IntentVisaQuestion
		amenity   = domain.IntentAmenityFilter
		general   = domain.IntentGeneralQuestionAnswering
		casual    = domain.IntentCasualConversation
	)

	exact := map[string]domain.Intent{}
	for _, phrase := range []string{
		"hi", "hello", "hey", "hi there", "hello there", "good morning", "good afternoon",
		"good evening", "thanks", "thank you", "thanks a lot", "thank you so much",
		"bye", "goodbye", "see you", "how are you", "ok", "okay", "cool", "great",
	} {
		exact[phrase] = casual
	}

	return IntentRules{
		Exact: exact,
		Keywords: []Keyword{
			{search, "hotels in", 0.6},
			{search, "hotel in", 0.6},
			{search, "find hotel", 0.5},
			{search, "find me a hotel", 0.5},
			{search, "search for hotel", 0.5},
			{search, "place to stay", 0.5},
			{search, "places to stay", 0.5},
			{search, "accommodation", 0.4},
			{search, "where to stay", 0.5},
			{search, "hotels", 0.3},
			{search, "hotel", 0.2},
			{search, "rated", 0.2},

			{recommend, "recommend", 0.6},
			{recommend, "suggest", 0.5},
			{recommend, "best hotel", 0.4},
			{recommend, "suitable for", 0.4},
			{recommend, "good for", 0.3},
			{recommend, "ideal for", 0.4},
			{recommend, "family friendly", 0.5},
			{recommend, "romantic", 0.4},
			{recommend, "honeymoon", 0.5},
			{recommend, "business trip", 0.5},
			{recommend, "travelling with", 0.4},
			{recommend, "traveling with", 0.4},

			{review, "review", 0.6},
			{review, "feedback", 0.5},
			{review, "opinions", 0.5},
			{review, "guests say", 0.6},
			{review, "people say", 0.6},
			{review, "what do people think", 0.6},
			{review, "complaints", 0.5},

			{location, "where is", 0.6},
			{location, "located", 0.5},
			{location, "location of", 0.5},
			{location, "address", 0.5},
			{location, "how far", 0.5},
			{location, "which city", 0.4},
			{location, "close to", 0.3},

			{visa, "visa", 0.9},
			{visa, "passport", 0.5},
			{visa, "entry requirements", 0.6},
			{visa, "travel documents", 0.5},
			{visa, "citizens", 0.3},

			{amenity, "amenities", 0.6},
			{amenity, "facilities", 0.5},
			{amenity, "cleanliness", 0.5},
			{amenity, "clean", 0.3},
			{amenity, "comfort", 0.4},
			{amenity, "staff", 0.4},
			{amenity, "value for money", 0.5},
			{amenity, "pool", 0.4},
			{amenity, "wifi", 0.4},
			{amenity, "breakfast", 0.4},

			{general, "what is", 0.3},
			{general, "tell me about", 0.4},
			{general, "how many", 0.4},
			{general, "which country", 0.4},
			{general, "average", 0.3},
			{general, "explain", 0.3},

			{casual, "hello", 0.6},
			{casual, "thank", 0.6},
			{casual, "how are you", 0.8},
			{casual, "good morning", 0.6},
		},
		Patterns: []Pattern{
			{search, "hotels_in_place", re(`(?i)\bhotels?\s+(?:in|at|near)\s+\w+`), 0.7},
			{search, "n_star", re(`(?i)\b(?:[1-5]|one|two|three|four|five)[- ]?stars?\b`), 0.6},
			{search, "rating_above", re(`(?i)\b(?:rat(?:i?ng|ed)|score)\s*(?:of|above|over|at least|>=?)?\s*\d`), 0.6},

			{recommend, "for_traveller", re(`(?i)\bfor\s+(?:a\s+)?(?:couples?|famil(?:y|ies)|business|solo|groups?|friends|kids|children)\b`), 0.8},
			{recommend, "recommend_verb", re(`(?i)\b(?:recommend|suggest)\w*\b`), 0.75},
			{recommend, "travelling_as", re(`(?i)\btravell?ing\s+(?:with|as|alone|solo)\b`), 0.7},

			{review, "reviews_of", re(`(?i)\b(?:reviews?|feedback|opinions?)\s+(?:of|for|about|on)\b`), 0.9},
			{review, "what_do_people_say", re(`(?i)\bwhat\s+do\s+(?:people|guests|travell?ers|visitors)\s+(?:say|think)\b`), 0.9},

			{location, "where_is", re(`(?i)\bwhere\s+(?:is|are)\b`), 0.8},
			{location, "how_far", re(`(?i)\bhow\s+far\s+is\b`), 0.8},

			{visa, "visa_from_to", re(`(?i)\bvisa\b.*\bfrom\b.*\bto\b`), 1.0},
			{visa, "need_visa", re(`(?i)\bneed\s+(?:a\s+)?visa\b`), 0.95},
			{visa, "visa_requirements", re(`(?i)\bvisa\s+(?:requirements?|rules|policy|free)\b`), 0.95},

			{amenity, "dimension_score", re(`(?i)\b(?:clean(?:liness)?|comfort|value|staff|location|facilit(?:y|ies))\s+(?:score\s+)?(?:of|above|over|at least|>=?)\s*\d`), 0.9},
			{amenity, "with_amenity", re(`(?i)\bwith\s+(?:a\s+)?(?:pool|spa|gym|wifi|parking|breakfast)\b`), 0.7},

			{general, "question_word", re(`(?i)^\s*(?:what|which|how|why|who)\b`), 0.3},

			{casual, "greeting", re(`(?i)^\s*(?:hi|hello|hey|thanks|thank you)\b[\s!.,]*$`), 0.95},
		},
	}
}
