package ingest

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/Aman-CERP/hotelrag/internal/hydrate"
	"github.com/Aman-CERP/hotelrag/internal/structured"
)

// Text returns the string embedded for a normalized record.
func Text(kind string, doc hydrate.Payload) string {
	switch kind {
	case structured.DocHotel:
		return hotelText(doc)
	case structured.DocReview:
		var b strings.Builder
		if name := doc.String("hotel_name"); name != "" {
			fmt.Fprintf(&b, "Review of %s", name)
			if t := doc.String("traveller_type"); t != "" {
				fmt.Fprintf(&b, " by a %s traveller", strings.ToLower(t))
			}
			b.WriteString(". ")
		}
		b.WriteString(doc.String("review_text"))
		return b.String()
	case structured.DocVisa:
		from, to := doc.String("from_country"), doc.String("to_country")
		if required, _ := doc["visa_required"].(bool); required {
			s := fmt.Sprintf("Travellers from %s need a visa for %s", from, to)
			if t := doc.String("visa_type"); t != "" {
				s += " (" + t + ")"
			}
			return s + "."
		}
		return fmt.Sprintf("Travellers from %s can visit %s without a visa.", from, to)
	}
	return ""
}

func hotelText(doc hydrate.Payload) string {
	var b strings.Builder
	b.WriteString(doc.String("hotel_name"))
	if loc := joinNonEmpty(", ", doc.String("city"), doc.String("country")); loc != "" {
		b.WriteString(" in " + loc)
	}
	b.WriteString(".")
	if v, ok := num(doc["star_rating"]); ok {
		fmt.Fprintf(&b, " Star rating: %.1f.", v)
	}
	if v, ok := num(doc["avg_score"]); ok {
		fmt.Fprintf(&b, " Average score: %.2f.", v)
	}
	title := cases.Title(language.English)
	var scores []string
	for _, d := range structured.Dimensions() {
		if v, ok := num(doc[d.Alias]); ok {
			scores = append(scores, fmt.Sprintf("%s: %.1f", title.String(d.Name), v))
		}
	}
	if len(scores) > 0 {
		b.WriteString(" " + strings.Join(scores, ", ") + ".")
	}
	return b.String()
}

func joinNonEmpty(sep string, parts ...string) string {
	kept := parts[:0:0]
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}

func num(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	case string:
		f, err := strconv.ParseFloat(x, 64)
		return f, err == nil
	}
	return 0, false
}
