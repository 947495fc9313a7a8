package merge

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/Aman-CERP/hotelrag/internal/search"
	"github.com/Aman-CERP/hotelrag/internal/structured"
)

// NoResults is the context for an empty merge.
const NoResults = "No results found."

const (
	hotelsHeader  = "=== HOTELS ===\n"
	reviewsHeader = "\n=== REVIEWS ===\n"
)

// Context is a rendered merge.
type Context struct {
	Text  string `json:"context"`
	Items []Item `json:"items"`
	// Included counts items rendered within the budget.
	Included int `json:"included"`
	Omitted  int `json:"omitted"`
}

// Build merges and renders in one step.
func (m *Merger) Build(rows []structured.Row, candidates []search.Candidate) Context {
	items := m.Merge(rows, candidates)
	text, n := m.Render(items)
	if n < len(items) {
		m.logger.Debug("context_truncated",
			"included", n,
			"omitted", len(items)-n,
			"budget", m.Budget())
	}
	return Context{Text: text, Items: items, Included: n, Omitted: len(items) - n}
}

// Render formats items as other results, then hotels, then reviews. Only
// whole entries are emitted: the first entry that would push the text past
// the budget ends rendering. It returns the text and the number of entries
// rendered.
func (m *Merger) Render(items []Item) (string, int) {
	if len(items) == 0 {
		return NoResults, 0
	}

	var others, hotels, reviews []Item
	for _, it := range items {
		switch it.Kind {
		case KindReview:
			reviews = append(reviews, it)
		case KindHotel:
			hotels = append(hotels, it)
		default:
			others = append(others, it)
		}
	}

	w := &budgetWriter{limit: m.Budget()}
	n := 0
	for i, it := range others {
		if !w.write(formatOther(it, i+1)) {
			return w.String(), n
		}
		n++
	}
	for i, it := range hotels {
		entry := formatHotel(it, i+1)
		if i == 0 {
			entry = hotelsHeader + entry
		}
		if !w.write(entry) {
			return w.String(), n
		}
		n++
	}
	for i, it := range reviews {
		entry := m.formatReview(it, i+1)
		if i == 0 {
			entry = reviewsHeader + entry
		}
		if !w.write(entry) {
			return w.String(), n
		}
		n++
	}
	return w.String(), n
}

// budgetWriter accepts whole entries while they fit.
type budgetWriter struct {
	strings.Builder
	used  int
	limit int
}

func (w *budgetWriter) write(s string) bool {
	n := utf8.RuneCountInString(s)
	if w.used+n > w.limit {
		return false
	}
	w.WriteString(s)
	w.used += n
	return true
}

// scoreLabels lists quality scores in render order: review average first,
// hotel baseline second.
var scoreLabels = []struct {
	label, avg, base string
}{
	{"Cleanliness", "avg_cleanliness", "cleanliness_base"},
	{"Comfort", "avg_comfort", "comfort_base"},
	{"Value", "avg_value", "value_for_money_base"},
	{"Staff", "avg_staff", "staff_base"},
	{"Location", "avg_location", "location_base"},
	{"Facilities", "avg_facilities", "facilities_base"},
}

func formatHotel(it Item, i int) string {
	p := it.Payload
	var b strings.Builder

	name := p.String("hotel_name")
	if name == "" {
		name = "Unknown Hotel"
	}
	fmt.Fprintf(&b, "%d. %s\n", i, name)
	fmt.Fprintf(&b, "   Location: %s\n", location(p.String("city"), p.String("country")))
	if v, ok := p["star_rating"]; ok && truthy(v) {
		fmt.Fprintf(&b, "   Star Rating: %s\n", value(v))
	}
	if v, ok := p["avg_score"]; ok && truthy(v) {
		fmt.Fprintf(&b, "   Average Score: %s\n", fixed(v))
	}
	fmt.Fprintf(&b, "   Relevance: %.2f\n", it.Score)

	var scores []string
	for _, s := range scoreLabels {
		if v, ok := p[s.avg]; ok && v != nil {
			scores = append(scores, s.label+": "+fixed(v))
		} else if v, ok := p[s.base]; ok && v != nil {
			scores = append(scores, s.label+": "+value(v))
		}
	}
	if v, ok := p["avg_rating"]; ok && v != nil {
		scores = append(scores, "Overall Rating: "+fixed(v))
	}
	if len(scores) > 0 {
		fmt.Fprintf(&b, "   Scores: %s\n", strings.Join(scores, ", "))
	}

	if v, ok := p["review_count"]; ok {
		fmt.Fprintf(&b, "   Reviews: %s", value(v))
		if t := p.String("traveller_type"); t != "" {
			fmt.Fprintf(&b, " (by %s travellers)", t)
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")
	return b.String()
}

func (m *Merger) formatReview(it Item, i int) string {
	p := it.Payload
	var b strings.Builder

	hotel := p.String("hotel_name")
	if hotel == "" {
		hotel = "Unknown Hotel"
	}
	text := p.String("review_text")
	if text == "" {
		text = "No review text"
	}

	fmt.Fprintf(&b, "%d. Review for %s\n", i, hotel)
	if v, ok := p["score_overall"]; ok && truthy(v) {
		fmt.Fprintf(&b, "   Score: %s\n", value(v))
	}
	fmt.Fprintf(&b, "   Relevance: %.2f\n", it.Score)
	fmt.Fprintf(&b, "   Text: %s\n\n", truncate(text, m.opts.ReviewTextLimit))
	return b.String()
}

func formatOther(it Item, i int) string {
	p := it.Payload
	var b strings.Builder

	_, from := p["from_country"]
	_, to := p["to_country"]
	_, count := p["traveller_count"]
	switch {
	case from && to && count:
		fmt.Fprintf(&b, "%d. TRAVELLER STATISTICS\n", i)
		fmt.Fprintf(&b, "   From: %s\n", orUnknown(p.String("from_country")))
		fmt.Fprintf(&b, "   Destination: %s\n", orUnknown(p.String("to_country")))
		fmt.Fprintf(&b, "   Travellers (no visa required): %s\n", value(p["traveller_count"]))
	case from && to:
		required := truthy(p["visa_required"])
		fmt.Fprintf(&b, "%d. VISA INFORMATION\n", i)
		fmt.Fprintf(&b, "   From: %s\n", orUnknown(p.String("from_country")))
		fmt.Fprintf(&b, "   To: %s\n", orUnknown(p.String("to_country")))
		fmt.Fprintf(&b, "   Visa Required: %s\n", yesNo(required))
		if t := p.String("visa_type"); required && t != "" {
			fmt.Fprintf(&b, "   Visa Type: %s\n", t)
		}
	default:
		fmt.Fprintf(&b, "=== QUERY RESULT %d ===\n\n", i)
		keys := make([]string, 0, len(p))
		for k := range p {
			if k != "source" && k != "relevance_score" {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		title := cases.Title(language.Und)
		for _, k := range keys {
			fmt.Fprintf(&b, "%s: %s\n", title.String(strings.ReplaceAll(k, "_", " ")), value(p[k]))
		}
	}
	b.WriteString("\n")
	return b.String()
}

func location(city, country string) string {
	switch {
	case city != "" && country != "":
		return city + ", " + country
	case city != "":
		return city
	case country != "":
		return country
	}
	return "Location unknown"
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit]) + "..."
}

// truthy reports whether v is present and non-zero.
func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != "" && !strings.EqualFold(x, "false")
	}
	if f, ok := number(v); ok {
		return f != 0
	}
	return true
}

func number(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	}
	return 0, false
}

// value renders v the shortest way.
func value(v any) string {
	if v == nil {
		return "n/a"
	}
	if f, ok := number(v); ok {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return fmt.Sprint(v)
}

// fixed renders numbers with two decimals.
func fixed(v any) string {
	if f, ok := number(v); ok {
		return strconv.FormatFloat(f, 'f', 2, 64)
	}
	return value(v)
}
