package merge

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/hotelrag/internal/hydrate"
	"github.com/Aman-CERP/hotelrag/internal/search"
	"github.com/Aman-CERP/hotelrag/internal/structured"
)

func hotelCandidate(id string, score float64, p hydrate.Payload) search.Candidate {
	return search.Candidate{ID: id, EntityType: "hotel", Score: score, Payload: p}
}

// =============================================================================
// Merge
// =============================================================================

func TestMerge_HybridCollision(t *testing.T) {
	m := New(Options{})
	rows := []structured.Row{
		{"hotel_id": "h1", "hotel_name": "Hotel Paris"},
		{"hotel_id": "h2", "hotel_name": "London Inn"},
	}
	cands := []search.Candidate{
		hotelCandidate("h1", 0.8, hydrate.Payload{"hotel_id": "h1", "star_rating": 4}),
		hotelCandidate("h3", 0.95, hydrate.Payload{"hotel_id": "h3", "hotel_name": "Rome Stay"}),
	}

	items := m.Merge(rows, cands)

	require.Len(t, items, 3)
	assert.Equal(t, "hotel:h2", items[0].Key, "structured rows keep full relevance")
	assert.Equal(t, SourceBaseline, items[0].Source)
	assert.Equal(t, "hotel:h3", items[1].Key)
	assert.Equal(t, SourceEmbedding, items[1].Source)
	assert.InDelta(t, 0.95, items[1].Score, 1e-9)
	assert.Equal(t, "hotel:h1", items[2].Key)
	assert.Equal(t, SourceHybrid, items[2].Source)
	assert.InDelta(t, 0.92, items[2].Score, 1e-9)
	assert.Equal(t, 4, items[2].Payload["star_rating"], "missing fields are filled from the vector payload")
	assert.Equal(t, "Hotel Paris", items[2].Payload["hotel_name"])
}

func TestMerge_VectorOnlyCollisionStaysEmbedding(t *testing.T) {
	m := New(Options{})
	cands := []search.Candidate{
		hotelCandidate("h1", 0.7, hydrate.Payload{"hotel_id": "h1", "hotel_name": "Grand"}),
		{ID: "r9", EntityType: "hotel", Score: 0.9, Payload: hydrate.Payload{"hotel_id": "h1", "city": "Paris"}},
	}

	items := m.Merge(nil, cands)

	require.Len(t, items, 1)
	assert.Equal(t, "hotel:h1", items[0].Key)
	assert.Equal(t, SourceEmbedding, items[0].Source)
	assert.InDelta(t, 0.9, items[0].Score, 1e-9, "best vector score wins, unweighted")
	assert.Equal(t, "Paris", items[0].Payload["city"])
}

func TestMerge_HybridFusesOnce(t *testing.T) {
	m := New(Options{})
	rows := []structured.Row{{"hotel_id": "h1", "hotel_name": "Grand"}}
	cands := []search.Candidate{
		hotelCandidate("h1", 0.8, hydrate.Payload{"hotel_id": "h1"}),
		{ID: "r9", EntityType: "hotel", Score: 0.5, Payload: hydrate.Payload{"hotel_id": "h1"}},
	}

	items := m.Merge(rows, cands)

	require.Len(t, items, 1)
	assert.Equal(t, SourceHybrid, items[0].Source)
	assert.InDelta(t, 0.92, items[0].Score, 1e-9)
}

func TestMerge_KeysAreUnique(t *testing.T) {
	m := New(Options{})
	rows := []structured.Row{
		{"hotel_id": "h1", "hotel_name": "A"},
		{"hotel_id": "h1", "avg_rating": 9.0},
		{"note": "x"},
		{"note": "y"},
	}
	cands := []search.Candidate{
		{ID: "x", EntityType: "other", Score: 0.9, Payload: hydrate.Payload{"note": "z"}},
	}

	items := m.Merge(rows, cands)

	keys := map[string]bool{}
	for _, it := range items {
		assert.False(t, keys[it.Key], "duplicate key %s", it.Key)
		keys[it.Key] = true
	}
	assert.True(t, keys["other_2"])
	assert.True(t, keys["other_3"])
	assert.True(t, keys["other:x"])
	assert.Len(t, items, 4)
	assert.Equal(t, 9.0, items[0].Payload["avg_rating"])
}

func TestMerge_VisaPairDeduplicates(t *testing.T) {
	m := New(Options{})
	rows := []structured.Row{
		{"from_country": "India", "to_country": "Japan", "visa_required": true},
		{"from_country": "India", "to_country": "Japan", "traveller_count": 3},
	}
	cands := []search.Candidate{
		{ID: "India->Japan", EntityType: "visa", Score: 0.9, Payload: hydrate.Payload{"from_country": "India", "to_country": "Japan", "visa_type": "eVisa"}},
	}

	items := m.Merge(rows, cands)

	require.Len(t, items, 2)
	assert.Equal(t, "other_1", items[0].Key)
	assert.Equal(t, "visa:India->Japan", items[1].Key)
	assert.Equal(t, SourceHybrid, items[1].Source)
	assert.Equal(t, "eVisa", items[1].Payload["visa_type"])
}

func TestMerge_ReviewsKeyOnReviewID(t *testing.T) {
	m := New(Options{})
	rows := []structured.Row{
		{"review_id": "r1", "hotel_id": "h1", "review_text": "a"},
		{"review_id": "r2", "hotel_id": "h1", "review_text": "b"},
		{"hotel_id": "h1", "hotel_name": "Grand"},
	}

	items := m.Merge(rows, nil)

	require.Len(t, items, 3)
	assert.Equal(t, KindReview, items[0].Kind)
	assert.Equal(t, KindReview, items[1].Kind)
	assert.Equal(t, KindHotel, items[2].Kind)
}

// =============================================================================
// Render
// =============================================================================

func TestRender_Empty(t *testing.T) {
	text, n := New(Options{}).Render(nil)
	assert.Equal(t, NoResults, text)
	assert.Zero(t, n)
}

func TestRender_HotelBlock(t *testing.T) {
	m := New(Options{})
	items := []Item{{
		Key: "hotel:h1", Kind: KindHotel, Score: 0.92, Source: SourceHybrid,
		Payload: hydrate.Payload{
			"hotel_name": "Hotel Paris", "city": "Paris", "country": "France",
			"star_rating": 4.0, "avg_score": 8.5,
			"avg_cleanliness": 9.123, "comfort_base": 8.0,
			"avg_rating": 8.75, "review_count": 12, "traveller_type": "Family",
		},
	}}

	text, n := m.Render(items)

	want := "=== HOTELS ===\n" +
		"1. Hotel Paris\n" +
		"   Location: Paris, France\n" +
		"   Star Rating: 4\n" +
		"   Average Score: 8.50\n" +
		"   Relevance: 0.92\n" +
		"   Scores: Cleanliness: 9.12, Comfort: 8, Overall Rating: 8.75\n" +
		"   Reviews: 12 (by Family travellers)\n" +
		"\n"
	assert.Equal(t, want, text)
	assert.Equal(t, 1, n)
}

func TestRender_SectionOrder(t *testing.T) {
	m := New(Options{})
	items := m.Merge([]structured.Row{
		{"review_id": "r1", "hotel_name": "Grand", "review_text": "Nice", "score_overall": 9.0},
		{"hotel_id": "h1", "hotel_name": "Grand"},
		{"from_country": "India", "to_country": "France", "visa_required": true, "visa_type": "Schengen"},
	}, nil)

	text, n := m.Render(items)

	assert.Equal(t, 3, n)
	visa := strings.Index(text, "1. VISA INFORMATION")
	hotels := strings.Index(text, "=== HOTELS ===")
	reviews := strings.Index(text, "=== REVIEWS ===")
	assert.True(t, visa == 0 && hotels > visa && reviews > hotels, text)
	assert.Contains(t, text, "   Visa Required: Yes\n   Visa Type: Schengen\n")
	assert.Contains(t, text, "1. Review for Grand\n   Score: 9\n   Relevance: 1.00\n   Text: Nice\n\n")
	assert.Contains(t, text, "   Location: Location unknown\n")
}

func TestRender_OtherShapes(t *testing.T) {
	m := New(Options{})
	items := []Item{
		{Kind: KindOther, Score: 1, Payload: hydrate.Payload{"from_country": "India", "to_country": "Japan", "traveller_count": 3}},
		{Kind: KindOther, Score: 1, Payload: hydrate.Payload{"from_country": "India", "to_country": "Japan", "visa_required": false, "visa_type": "eVisa"}},
		{Kind: KindOther, Score: 1, Payload: hydrate.Payload{"total_hotels": 42, "busiest_city": "Paris", "source": "x"}},
	}

	text, _ := m.Render(items)

	assert.Contains(t, text, "1. TRAVELLER STATISTICS\n   From: India\n   Destination: Japan\n   Travellers (no visa required): 3\n\n")
	assert.Contains(t, text, "2. VISA INFORMATION\n   From: India\n   To: Japan\n   Visa Required: No\n\n")
	assert.NotContains(t, text, "eVisa")
	assert.Contains(t, text, "=== QUERY RESULT 3 ===\n\nBusiest City: Paris\nTotal Hotels: 42\n\n")
	assert.NotContains(t, text, "Source")
}

func TestRender_ReviewTruncation(t *testing.T) {
	m := New(Options{})
	long := strings.Repeat("é", 250)

	text, _ := m.Render([]Item{{Kind: KindReview, Score: 0.5, Payload: hydrate.Payload{"review_text": long}}})

	assert.Contains(t, text, "Review for Unknown Hotel")
	assert.Contains(t, text, "   Text: "+strings.Repeat("é", 200)+"...\n")
}

func TestRender_BudgetWholeEntries(t *testing.T) {
	m := New(Options{TokenBudget: 40, CharsPerToken: 4})
	big := strings.Repeat("x", 120)
	items := []Item{
		{Kind: KindHotel, Score: 1, Payload: hydrate.Payload{"hotel_name": "A"}},
		{Kind: KindHotel, Score: 0.9, Payload: hydrate.Payload{"hotel_name": big}},
		{Kind: KindHotel, Score: 0.8, Payload: hydrate.Payload{"hotel_name": "C"}},
	}

	text, n := m.Render(items)

	assert.Equal(t, 1, n, "the first overflow ends rendering")
	assert.Contains(t, text, "1. A\n")
	assert.NotContains(t, text, "3. C")
	assert.LessOrEqual(t, utf8.RuneCountInString(text), m.Budget())
	assert.True(t, strings.HasSuffix(text, "\n\n"), "no partial entry")
}

func TestRender_BudgetTooSmallForAnything(t *testing.T) {
	m := New(Options{TokenBudget: 1, CharsPerToken: 4})
	text, n := m.Render([]Item{{Kind: KindHotel, Score: 1, Payload: hydrate.Payload{"hotel_name": "A"}}})
	assert.Empty(t, text)
	assert.Zero(t, n)
}

func TestBuild_CountsOmitted(t *testing.T) {
	m := New(Options{TokenBudget: 20, CharsPerToken: 4})
	var rows []structured.Row
	for _, id := range []string{"a", "b", "c", "d"} {
		rows = append(rows, structured.Row{"hotel_id": id, "hotel_name": "Hotel " + id})
	}

	ctx := m.Build(rows, nil)

	assert.Len(t, ctx.Items, 4)
	assert.Equal(t, 4, ctx.Included+ctx.Omitted)
	assert.Positive(t, ctx.Omitted)
	assert.LessOrEqual(t, utf8.RuneCountInString(ctx.Text), 80)
}
