package patterns

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/Aman-CERP/hotelrag/internal/domain"
)

// Match is one value proposed for a field by one rule.
type Match struct {
	Field      domain.Field
	Value      domain.Value
	Confidence float64
	Rule       string
}

// Rule weights. Known-value lookups are the most reliable, free-text captures
// the least.
const (
	WeightKnownValue  = 0.95
	WeightStarDigit   = 0.95
	WeightHotelID     = 0.95
	WeightStarWord    = 0.9
	WeightDimension   = 0.9
	WeightFromTo      = 0.9
	WeightQuoted      = 0.9
	WeightTraveller   = 0.9
	WeightRating      = 0.85
	WeightLimit       = 0.85
	WeightDemonym     = 0.85
	WeightReviewOf    = 0.8
	WeightVisaTo      = 0.8
	WeightAboutHotel  = 0.75
	WeightAlias       = 0.7
	WeightCue         = 0.7
	WeightQualitative = 0.6
	WeightPlaceGuess  = 0.6
)

// Qualitative thresholds for a quality dimension named without a number.
const (
	HighThreshold = 8.0
	GoodThreshold = 7.5
)

var qualitative = map[string]float64{
	"high":      HighThreshold,
	"excellent": HighThreshold,
	"great":     HighThreshold,
	"top":       HighThreshold,
	"good":      GoodThreshold,
	"best":      GoodThreshold,
}

var dimensions = []struct {
	field domain.Field
	expr  string
}{
	{domain.FieldMinCleanliness, `clean(?:liness)?`},
	{domain.FieldMinComfort, `comfort(?:able)?`},
	{domain.FieldMinValue, `value(?:\s+for\s+money)?`},
	{domain.FieldMinStaff, `staff`},
	{domain.FieldMinLocation, `location`},
	{domain.FieldMinFacilities, `facilit(?:y|ies)`},
}

const (
	numExpr = `(\d+(?:\.\d+)?)`
	cmpExpr = `(?:\s+score|\s+rating)?\s*(?:(?:of|above|over|at\s+least|>=|>|greater\s+than|higher\s+than|more\s+than|:)\s*){0,2}`
	endExpr = `(?:[?.!,;]|$)`
)

var (
	starDigitRe = regexp.MustCompile(`(?i)\b([1-5])\s*[- ]?\s*stars?\b`)
	starWordRe  = regexp.MustCompile(`(?i)\b(one|two|three|four|five)[- ]stars?\b`)

	ratingRe      = regexp.MustCompile(`(?i)\b(?:rat(?:i?ng|ed)|scored?|reviewed)` + cmpExpr + numExpr)
	highlyRatedRe = regexp.MustCompile(`(?i)\b(?:highly|top|best)[- ]rated\b`)
	goodRatingRe  = regexp.MustCompile(`(?i)\b(?:good|great|high)\s+(?:ratings?|reviews?|scores?)\b`)

	limitTopRe  = regexp.MustCompile(`(?i)\b(?:top|first|best)\s+(\d{1,2})\b`)
	limitNounRe = regexp.MustCompile(`(?i)\b(\d{1,2})\s+(?:hotels?|results?|reviews?|options?|places?|recommendations?)\b`)

	fromToRe   = regexp.MustCompile(`(?i)\bfrom\s+(?:the\s+)?([a-z][a-z .'-]*?)\s+to\s+(?:the\s+)?([a-z][a-z .'-]*?)(?:\s+(?:need|needs|require|requires|for|with)\b|` + endExpr + `)`)
	needVisaRe = regexp.MustCompile(`(?i)\b(?:do|does|will|would)\s+([a-z][a-z ]*?)\s+(?:citizens\s+|nationals\s+|passport\s+holders\s+)?need\s+(?:a\s+)?visa\s+(?:for|to|in)\s+(?:visit(?:ing)?\s+)?(?:the\s+)?([a-z][a-z .'-]*?)` + endExpr)
	visaToRe   = regexp.MustCompile(`(?i)\bvisa\s+(?:for|to)\s+(?:visit(?:ing)?\s+)?(?:the\s+)?([a-z][a-z .'-]*?)(?:\s+from\b|` + endExpr + `)`)
	citizenRe  = regexp.MustCompile(`(?i)\b(?:as\s+an?|i\s*'?\s*a?m\s+(?:an?\s+)?)\s*([a-z]+)\s+(?:citizen|national|passport\s+holder)`)

	reviewOfRe   = regexp.MustCompile(`(?i)\b(?:reviews?|feedback|opinions?|ratings?)\s+(?:of|for|about|on)\s+(?:the\s+)?(.+?)` + endExpr)
	peopleSayRe  = regexp.MustCompile(`(?i)\bwhat\s+do\s+(?:people|guests|travell?ers|visitors)\s+(?:say|think)\s+(?:about|of)\s+(?:the\s+)?(.+?)` + endExpr)
	aboutHotelRe = regexp.MustCompile(`(?i)\b(?:tell\s+me\s+about|information\s+(?:on|about)|details\s+(?:on|about|of))\s+(?:the\s+)?(.+?\b(?:hotel|inn|resort|suites?|lodge|hostel|palace))\b`)
	quotedRe     = regexp.MustCompile(`["“]([^"”]{3,60})["”]`)
	hotelIDRe    = regexp.MustCompile(`(?i)\bhotel[\s_-]?id\s*[:#=]?\s*([a-z0-9_-]+)`)

	travellerRe = regexp.MustCompile(`(?i)\b(business|couples?|famil(?:y|ies)|solo|groups?)\b`)
	placeRe     = regexp.MustCompile(`(?i)\b(?:in|at|near|around|visiting|visit)\s+([a-z][a-z'-]+(?:\s+[a-z][a-z'-]+){0,2})`)
)

var starWords = map[string]float64{"one": 1, "two": 2, "three": 3, "four": 4, "five": 5}

type dimensionRule struct {
	field       domain.Field
	numeric     *regexp.Regexp
	reversed    *regexp.Regexp
	qualitative *regexp.Regexp
}

var dimensionRules = func() []dimensionRule {
	out := make([]dimensionRule, len(dimensions))
	for i, d := range dimensions {
		out[i] = dimensionRule{
			field:       d.field,
			numeric:     regexp.MustCompile(`(?i)\b` + d.expr + `\b` + cmpExpr + numExpr),
			reversed:    regexp.MustCompile(`(?i)\b` + numExpr + `\+?\s+(?:for|in|on)\s+` + d.expr + `\b`),
			qualitative: regexp.MustCompile(`(?i)\b(high|excellent|great|top|good|best)\s+` + d.expr + `\b`),
		}
	}
	return out
}()

// placeStop are words a free-text place capture must not start with or end on.
var placeStop = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "my": {}, "our": {}, "this": {}, "that": {}, "town": {},
	"city": {}, "center": {}, "centre": {}, "downtown": {}, "hotels": {}, "hotel": {},
	"with": {}, "for": {}, "and": {}, "or": {}, "under": {}, "above": {}, "near": {},
	"which": {}, "who": {}, "where": {}, "least": {}, "most": {}, "me": {}, "us": {},
	"it": {}, "there": {}, "here": {}, "order": {}, "general": {}, "mind": {}, "terms": {},
	"good": {}, "great": {}, "best": {}, "top": {}, "rated": {}, "stars": {}, "star": {},
}

var pronouns = map[string]struct{}{
	"i": {}, "we": {}, "you": {}, "they": {}, "he": {}, "she": {}, "my": {}, "our": {}, "people": {},
}

// EntityExtractor proposes field values from a query using regular
// expressions and the injected reference data.
type EntityExtractor struct {
	ref   domain.Lookup
	boost float64
}

// NewEntityExtractor returns an extractor over ref. boost is added when two
// rules agree on a value.
func NewEntityExtractor(ref domain.Lookup, boost float64) *EntityExtractor {
	return &EntityExtractor{ref: ref, boost: boost}
}

// span is a byte range of the query claimed by a numeric match.
type span struct{ start, end int }

type scan struct {
	query   string
	hay     string
	want    map[domain.Field]bool
	claimed []span
	matches []Match
}

func (s *scan) add(f domain.Field, v domain.Value, conf float64, rule string) {
	if !s.want[f] {
		return
	}
	s.matches = append(s.matches, Match{Field: f, Value: v, Confidence: conf, Rule: rule})
}

func (s *scan) claim(start, end int) { s.claimed = append(s.claimed, span{start, end}) }

func (s *scan) isClaimed(start, end int) bool {
	for _, c := range s.claimed {
		if start < c.end && c.start < end {
			return true
		}
	}
	return false
}

// Matches returns every rule match for the requested fields, in rule order.
func (x *EntityExtractor) Matches(query string, fields []domain.Field) []Match {
	s := &scan{query: query, hay: words(query), want: make(map[domain.Field]bool, len(fields))}
	for _, f := range fields {
		s.want[f] = true
	}
	if len(s.want) == 0 {
		return nil
	}

	// Numeric rules run first so their literals are claimed before the
	// generic rating and limit rules look for numbers.
	x.stars(s)
	x.qualityDimensions(s)
	x.rating(s)
	x.limit(s)
	x.places(s)
	x.visaCountries(s)
	x.hotelNames(s)
	x.travellerTypes(s)
	return s.matches
}

// Extract resolves Matches into one entity per field. When several rules
// agree on a value the best confidence is raised by the boost; otherwise the
// most confident value wins.
func (x *EntityExtractor) Extract(query string, fields []domain.Field) domain.Entities {
	return Resolve(x.Matches(query, fields), x.boost)
}

// Resolve folds matches into entities.
func Resolve(matches []Match, boost float64) domain.Entities {
	byField := make(map[domain.Field][]Match)
	var order []domain.Field
	for _, m := range matches {
		if _, seen := byField[m.Field]; !seen {
			order = append(order, m.Field)
		}
		byField[m.Field] = append(byField[m.Field], m)
	}

	out := make(domain.Entities, len(byField))
	for _, f := range order {
		ms := byField[f]
		sort.SliceStable(ms, func(i, j int) bool { return ms[i].Confidence > ms[j].Confidence })
		best := ms[0]
		conf := best.Confidence
		for _, other := range ms[1:] {
			if other.Rule != best.Rule && other.Value.Equal(best.Value) {
				conf += boost
				break
			}
		}
		if conf > 1 {
			conf = 1
		}
		out[f] = domain.Entity{Value: best.Value, Source: domain.SourceRule, Confidence: conf}
	}
	return out
}

func parseNum(s string) (float64, bool) {
	n, err := strconv.ParseFloat(s, 64)
	return n, err == nil
}

func (x *EntityExtractor) stars(s *scan) {
	for _, m := range starDigitRe.FindAllStringSubmatchIndex(s.query, -1) {
		n, _ := parseNum(s.query[m[2]:m[3]])
		s.claim(m[2], m[3])
		s.add(domain.FieldStarRating, domain.Number(n), WeightStarDigit, "star_digit")
	}
	for _, m := range starWordRe.FindAllStringSubmatchIndex(s.query, -1) {
		n := starWords[strings.ToLower(s.query[m[2]:m[3]])]
		s.add(domain.FieldStarRating, domain.Number(n), WeightStarWord, "star_word")
	}
}

func (x *EntityExtractor) qualityDimensions(s *scan) {
	for _, d := range dimensionRules {
		found := false
		for _, m := range d.numeric.FindAllStringSubmatchIndex(s.query, -1) {
			if n, ok := parseNum(s.query[m[2]:m[3]]); ok && n <= 10 {
				s.claim(m[2], m[3])
				s.add(d.field, domain.Number(n), WeightDimension, "dimension_score")
				found = true
			}
		}
		for _, m := range d.reversed.FindAllStringSubmatchIndex(s.query, -1) {
			if n, ok := parseNum(s.query[m[2]:m[3]]); ok && n <= 10 {
				s.claim(m[2], m[3])
				s.add(d.field, domain.Number(n), WeightDimension, "score_for_dimension")
				found = true
			}
		}
		if found {
			continue
		}
		if m := d.qualitative.FindStringSubmatch(s.query); m != nil {
			s.add(d.field, domain.Number(qualitative[strings.ToLower(m[1])]), WeightQualitative, "qualitative_dimension")
		}
	}
}

func (x *EntityExtractor) rating(s *scan) {
	found := false
	for _, m := range ratingRe.FindAllStringSubmatchIndex(s.query, -1) {
		if s.isClaimed(m[2], m[3]) {
			continue
		}
		if n, ok := parseNum(s.query[m[2]:m[3]]); ok && n <= 10 {
			s.claim(m[2], m[3])
			s.add(domain.FieldMinRating, domain.Number(n), WeightRating, "rating_number")
			found = true
		}
	}
	if found {
		return
	}
	if highlyRatedRe.MatchString(s.query) {
		s.add(domain.FieldMinRating, domain.Number(HighThreshold), WeightQualitative, "highly_rated")
	} else if goodRatingRe.MatchString(s.query) {
		s.add(domain.FieldMinRating, domain.Number(GoodThreshold), WeightQualitative, "good_rating")
	}
}

func (x *EntityExtractor) limit(s *scan) {
	for _, re := range []*regexp.Regexp{limitTopRe, limitNounRe} {
		for _, m := range re.FindAllStringSubmatchIndex(s.query, -1) {
			if s.isClaimed(m[2], m[3]) {
				continue
			}
			if n, ok := parseNum(s.query[m[2]:m[3]]); ok && n >= 1 {
				v, err := domain.ParseValue(domain.FieldLimit, n)
				if err != nil {
					continue
				}
				s.claim(m[2], m[3])
				s.add(domain.FieldLimit, v, WeightLimit, "limit")
			}
		}
	}
}

// places finds known cities and countries, then falls back to a capitalised
// or prepositional phrase that may be a misspelt place.
func (x *EntityExtractor) places(s *scan) {
	foundCity, foundCountry := false, false
	for _, city := range x.ref.Values(domain.DomainCity) {
		if containsWord(s.hay, city) {
			s.add(domain.FieldCity, domain.Text(city), WeightKnownValue, "known_city")
			foundCity = true
		}
	}
	for _, country := range x.ref.Values(domain.DomainCountry) {
		if containsWord(s.hay, country) {
			s.add(domain.FieldCountry, domain.Text(country), WeightKnownValue, "known_country")
			foundCountry = true
		}
	}
	if !foundCountry {
		for _, alias := range sortedAliases(x.ref, domain.DomainCountry) {
			if len(alias) < 3 || !containsWord(s.hay, alias) {
				continue
			}
			target, _ := x.ref.Alias(domain.DomainCountry, alias)
			s.add(domain.FieldCountry, domain.Text(target), WeightAlias, "country_alias")
			foundCountry = true
			break
		}
	}
	if foundCity || foundCountry {
		return
	}

	for _, m := range placeRe.FindAllStringSubmatch(s.query, -1) {
		phrase := trimPlace(m[1])
		if phrase == "" {
			continue
		}
		if target, ok := x.ref.Alias(domain.DomainCountry, phrase); ok {
			s.add(domain.FieldCountry, domain.Text(target), WeightAlias, "place_alias")
			return
		}
		s.add(domain.FieldCity, domain.Text(phrase), WeightPlaceGuess, "place_guess")
		return
	}
}

func trimPlace(phrase string) string {
	fields := strings.Fields(phrase)
	for len(fields) > 0 {
		if _, stop := placeStop[strings.ToLower(fields[0])]; !stop {
			break
		}
		fields = fields[1:]
	}
	for i, f := range fields {
		if _, stop := placeStop[strings.ToLower(f)]; stop {
			fields = fields[:i]
			break
		}
	}
	for _, f := range fields {
		if _, err := strconv.Atoi(f); err == nil {
			return ""
		}
	}
	return strings.Join(fields, " ")
}

func (x *EntityExtractor) visaCountries(s *scan) {
	if !s.want[domain.FieldFromCountry] && !s.want[domain.FieldToCountry] {
		return
	}
	if m := fromToRe.FindStringSubmatch(s.query); m != nil {
		s.add(domain.FieldFromCountry, domain.Text(strings.TrimSpace(m[1])), WeightFromTo, "from_to")
		s.add(domain.FieldToCountry, domain.Text(strings.TrimSpace(m[2])), WeightFromTo, "from_to")
	}
	if m := needVisaRe.FindStringSubmatch(s.query); m != nil {
		who := strings.ToLower(strings.TrimSpace(m[1]))
		if _, ok := pronouns[who]; !ok {
			if c, ok := x.country(who); ok {
				s.add(domain.FieldFromCountry, domain.Text(c), WeightDemonym, "demonym_need_visa")
			}
		}
		s.add(domain.FieldToCountry, domain.Text(strings.TrimSpace(m[2])), WeightDemonym, "need_visa_for")
	}
	if m := visaToRe.FindStringSubmatch(s.query); m != nil {
		s.add(domain.FieldToCountry, domain.Text(strings.TrimSpace(m[1])), WeightVisaTo, "visa_to")
	}
	if m := citizenRe.FindStringSubmatch(s.query); m != nil {
		if c, ok := x.country(m[1]); ok {
			s.add(domain.FieldFromCountry, domain.Text(c), WeightDemonym, "citizen_of")
		}
	}
}

// country maps a country name or alias (including demonyms) to its canonical form.
func (x *EntityExtractor) country(raw string) (string, bool) {
	if c, ok := x.ref.Alias(domain.DomainCountry, raw); ok {
		return c, true
	}
	for _, c := range x.ref.Values(domain.DomainCountry) {
		if Fold(c) == Fold(raw) {
			return c, true
		}
	}
	return "", false
}

func (x *EntityExtractor) hotelNames(s *scan) {
	if m := hotelIDRe.FindStringSubmatch(s.query); m != nil {
		s.add(domain.FieldHotelID, domain.Text(m[1]), WeightHotelID, "hotel_id")
	}
	if !s.want[domain.FieldHotelName] {
		return
	}
	for _, m := range quotedRe.FindAllStringSubmatch(s.query, -1) {
		s.add(domain.FieldHotelName, domain.Text(strings.TrimSpace(m[1])), WeightQuoted, "quoted_name")
	}
	add := func(re *regexp.Regexp, weight float64, rule string) {
		m := re.FindStringSubmatch(s.query)
		if m == nil {
			return
		}
		name := strings.Trim(strings.TrimSpace(m[1]), `"“”'`)
		lower := strings.ToLower(name)
		if name == "" || strings.HasPrefix(lower, "hotels") || strings.HasPrefix(lower, "hotel in") ||
			strings.HasPrefix(lower, "places") || lower == "it" {
			return
		}
		s.add(domain.FieldHotelName, domain.Text(name), weight, rule)
	}
	add(peopleSayRe, WeightReviewOf+0.05, "people_say_about")
	add(reviewOfRe, WeightReviewOf, "reviews_of")
	add(aboutHotelRe, WeightAboutHotel, "about_hotel")
}

func (x *EntityExtractor) travellerTypes(s *scan) {
	if !s.want[domain.FieldTravellerType] {
		return
	}
	for _, m := range travellerRe.FindAllStringSubmatch(s.query, -1) {
		if t, ok := x.travellerType(m[1]); ok {
			s.add(domain.FieldTravellerType, domain.Text(t), WeightTraveller, "traveller_word")
		}
	}
	for _, alias := range sortedAliases(x.ref, domain.DomainTravellerType) {
		if containsWord(s.hay, alias) {
			t, _ := x.ref.Alias(domain.DomainTravellerType, alias)
			s.add(domain.FieldTravellerType, domain.Text(t), WeightCue, "traveller_cue")
		}
	}
}

func (x *EntityExtractor) travellerType(raw string) (string, bool) {
	for _, t := range x.ref.Values(domain.DomainTravellerType) {
		if strings.EqualFold(t, raw) {
			return t, true
		}
	}
	return x.ref.Alias(domain.DomainTravellerType, raw)
}

// sortedAliases returns alias keys longest first, so "great britain" wins over "britain".
func sortedAliases(ref domain.Lookup, d domain.Domain) []string {
	aliases := ref.Aliases(d)
	keys := make([]string, 0, len(aliases))
	for k := range aliases {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
	return keys
}
