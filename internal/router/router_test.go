package router

import (
	"context"
	stderrors "errors"
	"regexp"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/hotelrag/internal/diag"
	"github.com/Aman-CERP/hotelrag/internal/domain"
	"github.com/Aman-CERP/hotelrag/internal/errors"
	"github.com/Aman-CERP/hotelrag/internal/oracle"
	"github.com/Aman-CERP/hotelrag/internal/patterns"
)

// =============================================================================
// Test doubles
// =============================================================================

// fakeOracle replies with a fixed text or error and counts calls.
type fakeOracle struct {
	reply string
	err   error
	calls atomic.Int64
	last  atomic.Value
}

func (f *fakeOracle) Ask(_ context.Context, req oracle.Request) (string, error) {
	f.calls.Add(1)
	f.last.Store(req)
	return f.reply, f.err
}

func (f *fakeOracle) lastPrompt() string {
	req, _ := f.last.Load().(oracle.Request)
	return req.Prompt
}

// fixedStrategy returns canned matches.
type fixedStrategy struct {
	intent  domain.Intent
	matches []patterns.Match
}

func (s fixedStrategy) Fields() []domain.Field          { return domain.Schema(s.intent) }
func (s fixedStrategy) Extract(string) []patterns.Match { return s.matches }
func (s fixedStrategy) Guidance() string                { return "" }

func testRules() patterns.IntentRules {
	return patterns.IntentRules{
		Exact: map[string]domain.Intent{"hello": domain.IntentCasualConversation},
		Keywords: []patterns.Keyword{
			{Intent: domain.IntentVisaQuestion, Term: "visa", Weight: 0.95},
			{Intent: domain.IntentHotelSearch, Term: "hotel", Weight: 0.6},
			{Intent: domain.IntentReviewLookup, Term: "review", Weight: 0.95},
			{Intent: domain.IntentHotelRecommendation, Term: "recommend", Weight: 0.95},
		},
		Patterns: []patterns.Pattern{
			{Intent: domain.IntentLocationQuery, Name: "where", Re: regexp.MustCompile(`where`), Weight: 0.4},
		},
	}
}

func newTestRouter(t *testing.T, o oracle.Oracle) *Router {
	t.Helper()
	ref, err := domain.DefaultReference()
	require.NoError(t, err)
	extractor := patterns.NewEntityExtractor(ref, 0.1)
	return New(patterns.NewIntentMatcher(testRules(), 0.1), NewRegistry(extractor), o, DefaultOptions())
}

// =============================================================================
// Thresholds
// =============================================================================

func TestThresholds_Tier(t *testing.T) {
	th := DefaultThresholds()
	assert.Equal(t, TierHigh, th.Tier(0.9))
	assert.Equal(t, TierHigh, th.Tier(1.0))
	assert.Equal(t, TierMedium, th.Tier(0.5))
	assert.Equal(t, TierMedium, th.Tier(0.89))
	assert.Equal(t, TierLow, th.Tier(0.49))
	assert.Equal(t, TierLow, th.Tier(0))
}

func TestThresholds_Penalize(t *testing.T) {
	th := DefaultThresholds()
	tests := []struct {
		name        string
		top, second float64
		want        float64
	}{
		{"clear winner", 0.95, 0.2, 0.95},
		{"close runner-up", 0.95, 0.7, 0.65},
		{"penalty hits floor", 0.5, 0.4, 0.3},
		{"below floor unchanged", 0.25, 0.1, 0.25},
		{"gap exactly at margin", 0.8, 0.5, 0.8},
		{"single match", 0.6, 0, 0.6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, th.Penalize(tt.top, tt.second), 1e-9)
		})
	}
}

// =============================================================================
// Intent routing
// =============================================================================

func TestClassifyIntent_ExactSkipsOracle(t *testing.T) {
	o := &fakeOracle{reply: "HotelSearch"}
	r := newTestRouter(t, o)

	d := r.ClassifyIntent(context.Background(), "Hello!", nil)

	assert.Equal(t, domain.IntentCasualConversation, d.Intent)
	assert.Equal(t, domain.SourceRule, d.Source)
	assert.Equal(t, 1.0, d.Confidence)
	assert.Zero(t, o.calls.Load())
}

func TestClassifyIntent_HighTierSkipsOracle(t *testing.T) {
	o := &fakeOracle{reply: "HotelSearch"}
	r := newTestRouter(t, o)

	d := r.ClassifyIntent(context.Background(), "do I need a visa for japan", nil)

	assert.Equal(t, domain.IntentVisaQuestion, d.Intent)
	assert.Equal(t, domain.SourceRule, d.Source)
	assert.Equal(t, TierHigh, d.Tier)
	assert.Zero(t, o.calls.Load())
}

func TestClassifyIntent_MediumTier(t *testing.T) {
	tests := []struct {
		name       string
		reply      string
		err        error
		wantIntent domain.Intent
		wantSource domain.Provenance
		wantKind   diag.Kind
	}{
		{"oracle overrides", "HotelRecommendation", nil, domain.IntentHotelRecommendation, domain.SourceOracle, ""},
		{"oracle agrees", "\"HotelSearch\".", nil, domain.IntentHotelSearch, domain.SourceHybrid, ""},
		{"oracle fails", "", errors.OracleUnavailable("fake", stderrors.New("down")),
			domain.IntentHotelSearch, domain.SourceRule, diag.KindOracleUnavailable},
		{"oracle rambles", "I am not sure", nil, domain.IntentHotelSearch, domain.SourceRule, diag.KindMalformedOracleOutput},
		{"oracle truncates", "Hotel", nil, domain.IntentHotelSearch, domain.SourceRule, diag.KindMalformedOracleOutput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := &fakeOracle{reply: tt.reply, err: tt.err}
			r := newTestRouter(t, o)
			rec := diag.NewRecorder()

			d := r.ClassifyIntent(context.Background(), "a hotel in town", rec)

			assert.Equal(t, TierMedium, d.Tier)
			assert.Equal(t, tt.wantIntent, d.Intent)
			assert.Equal(t, tt.wantSource, d.Source)
			assert.Equal(t, int64(1), o.calls.Load())
			assert.True(t, rec.Has(diag.KindExtractionAmbiguous))
			if tt.wantKind != "" {
				assert.True(t, rec.Has(tt.wantKind))
			}
			assert.Contains(t, o.lastPrompt(), "suggests HotelSearch")
		})
	}
}

func TestClassifyIntent_TiePenaltyDropsToMedium(t *testing.T) {
	o := &fakeOracle{reply: "ReviewLookup"}
	r := newTestRouter(t, o)

	d := r.ClassifyIntent(context.Background(), "recommend a review", nil)

	assert.InDelta(t, 0.65, d.Confidence, 1e-9)
	assert.Equal(t, TierMedium, d.Tier)
	assert.Equal(t, domain.IntentReviewLookup, d.Intent)
	assert.Equal(t, int64(1), o.calls.Load())
}

func TestClassifyIntent_LowTier(t *testing.T) {
	t.Run("oracle answers", func(t *testing.T) {
		o := &fakeOracle{reply: "LocationQuery"}
		r := newTestRouter(t, o)

		d := r.ClassifyIntent(context.Background(), "where", nil)

		assert.Equal(t, TierLow, d.Tier)
		assert.Equal(t, domain.IntentLocationQuery, d.Intent)
		assert.Equal(t, domain.SourceOracle, d.Source)
		assert.NotContains(t, o.lastPrompt(), "suggests")
	})

	t.Run("oracle fails uses default", func(t *testing.T) {
		o := &fakeOracle{err: errors.OracleUnavailable("fake", stderrors.New("down"))}
		r := newTestRouter(t, o)
		rec := diag.NewRecorder()

		d := r.ClassifyIntent(context.Background(), "something odd", rec)

		assert.Equal(t, domain.IntentGeneralQuestionAnswering, d.Intent)
		assert.Equal(t, domain.SourceRule, d.Source)
		assert.True(t, rec.Has(diag.KindOracleUnavailable))
	})
}

func TestClassifyIntent_DisabledOracleIsQuiet(t *testing.T) {
	r := newTestRouter(t, nil)
	rec := diag.NewRecorder()

	d := r.ClassifyIntent(context.Background(), "something odd", rec)

	assert.Equal(t, domain.IntentGeneralQuestionAnswering, d.Intent)
	assert.Empty(t, rec.Events())
}

// =============================================================================
// Entity routing
// =============================================================================

func withStrategy(r *Router, intent domain.Intent, matches ...patterns.Match) {
	r.Registry().Register(intent, fixedStrategy{intent: intent, matches: matches})
}

func match(f domain.Field, v domain.Value, conf float64) patterns.Match {
	return patterns.Match{Field: f, Value: v, Confidence: conf, Rule: "test"}
}

func TestExtractEntities_HighTier(t *testing.T) {
	o := &fakeOracle{reply: `{"city":"London"}`}
	r := newTestRouter(t, o)
	withStrategy(r, domain.IntentHotelSearch, match(domain.FieldCity, domain.Text("Paris"), 0.95))

	d := r.ExtractEntities(context.Background(), "hotels in Paris", domain.IntentHotelSearch, nil)

	assert.Equal(t, TierHigh, d.Tier)
	assert.Equal(t, domain.SourceRule, d.Source)
	assert.Equal(t, "Paris", d.Entities.Text(domain.FieldCity))
	limit, ok := d.Entities.Number(domain.FieldLimit)
	require.True(t, ok)
	assert.Equal(t, 10.0, limit)
	assert.Zero(t, o.calls.Load())
}

func TestExtractEntities_MediumTierMerges(t *testing.T) {
	o := &fakeOracle{reply: "```json\n" + `{"city":"Paris","min_rating":8,"country":"null","hotel_name":"Ritz","star_rating":"unknown"}` + "\n```"}
	r := newTestRouter(t, o)
	withStrategy(r, domain.IntentHotelSearch, match(domain.FieldCity, domain.Text("paris"), 0.7))
	rec := diag.NewRecorder()

	d := r.ExtractEntities(context.Background(), "nice paris hotels", domain.IntentHotelSearch, rec)

	assert.Equal(t, TierMedium, d.Tier)
	assert.InDelta(t, 0.7, d.Confidence, 1e-9)
	assert.Equal(t, domain.SourceHybrid, d.Source)

	city := d.Entities[domain.FieldCity]
	assert.Equal(t, domain.SourceHybrid, city.Source)
	assert.Equal(t, "paris", d.Entities.Text(domain.FieldCity))

	rating := d.Entities[domain.FieldMinRating]
	assert.Equal(t, domain.SourceOracle, rating.Source)
	assert.InDelta(t, 0.9, rating.Confidence, 1e-9)

	assert.False(t, d.Entities.Has(domain.FieldCountry), "placeholder skipped")
	assert.False(t, d.Entities.Has(domain.FieldStarRating), "placeholder skipped")
	assert.False(t, d.Entities.Has(domain.FieldHotelName), "outside schema")
	assert.True(t, rec.Has(diag.KindExtractionAmbiguous))
	assert.Contains(t, o.lastPrompt(), `"city":"paris"`)
}

func TestExtractEntities_OracleOverridesRule(t *testing.T) {
	o := &fakeOracle{reply: `{"city":"London"}`}
	r := newTestRouter(t, o)
	withStrategy(r, domain.IntentHotelSearch, match(domain.FieldCity, domain.Text("Londn"), 0.6))

	d := r.ExtractEntities(context.Background(), "hotels in londn", domain.IntentHotelSearch, nil)

	assert.Equal(t, "London", d.Entities.Text(domain.FieldCity))
	assert.Equal(t, domain.SourceOracle, d.Entities[domain.FieldCity].Source)
	assert.Equal(t, domain.SourceOracle, d.Source)
}

func TestExtractEntities_MalformedKeepsRules(t *testing.T) {
	o := &fakeOracle{reply: "no json here"}
	r := newTestRouter(t, o)
	withStrategy(r, domain.IntentHotelSearch, match(domain.FieldCity, domain.Text("Paris"), 0.7))
	rec := diag.NewRecorder()

	d := r.ExtractEntities(context.Background(), "paris", domain.IntentHotelSearch, rec)

	assert.Equal(t, int64(2), o.calls.Load(), "one recovery retry")
	assert.Equal(t, "Paris", d.Entities.Text(domain.FieldCity))
	assert.Equal(t, domain.SourceRule, d.Source)
	assert.True(t, rec.Has(diag.KindMalformedOracleOutput))
}

func TestExtractEntities_LowTierAsksWithoutHint(t *testing.T) {
	o := &fakeOracle{reply: `{"city":"Tokyo","limit":5}`}
	r := newTestRouter(t, o)
	withStrategy(r, domain.IntentHotelSearch)

	d := r.ExtractEntities(context.Background(), "somewhere in japan's capital", domain.IntentHotelSearch, nil)

	assert.Equal(t, TierLow, d.Tier)
	assert.Zero(t, d.Confidence)
	assert.Equal(t, "Tokyo", d.Entities.Text(domain.FieldCity))
	limit, _ := d.Entities.Number(domain.FieldLimit)
	assert.Equal(t, 5.0, limit)
	assert.Equal(t, domain.SourceOracle, d.Source)
	assert.NotContains(t, o.lastPrompt(), "pattern matcher found")
}

func TestExtractEntities_EmptySchemaSkipsOracle(t *testing.T) {
	o := &fakeOracle{reply: `{}`}
	r := newTestRouter(t, o)

	d := r.ExtractEntities(context.Background(), "thanks!", domain.IntentCasualConversation, nil)

	assert.Empty(t, d.Entities)
	assert.Zero(t, o.calls.Load())
}

func TestExtractEntities_DefaultLimitOnlyInSchema(t *testing.T) {
	o := &fakeOracle{reply: `{}`}
	r := newTestRouter(t, o)
	withStrategy(r, domain.IntentVisaQuestion,
		match(domain.FieldFromCountry, domain.Text("India"), 0.9),
		match(domain.FieldToCountry, domain.Text("Japan"), 0.9))

	d := r.ExtractEntities(context.Background(), "visa from india to japan", domain.IntentVisaQuestion, nil)

	assert.False(t, d.Entities.Has(domain.FieldLimit))
	assert.Len(t, d.Entities, 2)
}

func TestExtractEntities_DefaultStrategy(t *testing.T) {
	r := newTestRouter(t, nil)

	d := r.ExtractEntities(context.Background(), "Find 5-star hotels in Paris", domain.IntentHotelSearch, nil)

	assert.Equal(t, "Paris", d.Entities.Text(domain.FieldCity))
	stars, ok := d.Entities.Number(domain.FieldStarRating)
	require.True(t, ok)
	assert.Equal(t, 5.0, stars)
}
