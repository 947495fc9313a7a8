package router

import (
	"sync"

	"github.com/Aman-CERP/hotelrag/internal/domain"
	"github.com/Aman-CERP/hotelrag/internal/patterns"
)

// Strategy extracts entities for one intent.
type Strategy interface {
	// Fields lists the fields the strategy may emit.
	Fields() []domain.Field
	// Extract returns rule matches for query.
	Extract(query string) []patterns.Match
	// Guidance is extra oracle instruction for this intent. May be empty.
	Guidance() string
}

// schemaStrategy runs the shared extractor restricted to an intent schema.
type schemaStrategy struct {
	intent    domain.Intent
	extractor *patterns.EntityExtractor
	guidance  string
}

func (s *schemaStrategy) Fields() []domain.Field { return domain.Schema(s.intent) }

func (s *schemaStrategy) Extract(query string) []patterns.Match {
	return s.extractor.Matches(query, s.Fields())
}

func (s *schemaStrategy) Guidance() string { return s.guidance }

var guidance = map[domain.Intent]string{
	domain.IntentHotelRecommendation: "traveller_type is one of Business, Couple, Family, Solo, Group. " +
		"Map words like high or excellent to 8.0 and good or best to 7.5 for quality fields.",
	domain.IntentReviewLookup:  "hotel_name is the hotel the user asks about, without words like reviews.",
	domain.IntentVisaQuestion:  "from_country is the traveller's citizenship; to_country is the destination.",
	domain.IntentAmenityFilter: "Quality fields are minimum scores out of 10.",
}

// Registry maps intents to strategies. It is safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	strategies map[domain.Intent]Strategy
	extractor  *patterns.EntityExtractor
}

// NewRegistry returns a registry with a schema strategy for every intent.
func NewRegistry(extractor *patterns.EntityExtractor) *Registry {
	r := &Registry{
		strategies: make(map[domain.Intent]Strategy),
		extractor:  extractor,
	}
	for _, i := range domain.AllIntents() {
		r.strategies[i] = &schemaStrategy{intent: i, extractor: extractor, guidance: guidance[i]}
	}
	return r
}

// Register replaces the strategy for intent.
func (r *Registry) Register(intent domain.Intent, s Strategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategies[intent] = s
}

// Lookup returns the strategy for intent, falling back to the default
// intent's strategy.
func (r *Registry) Lookup(intent domain.Intent) Strategy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s, ok := r.strategies[intent]; ok {
		return s
	}
	return r.strategies[domain.DefaultIntent]
}
