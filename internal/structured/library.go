package structured

import (
	"fmt"

	"github.com/Aman-CERP/hotelrag/internal/domain"
)

// Dimension is one review-score axis a quality query can rank by.
type Dimension struct {
	Name  string
	Field domain.Field
	// Score is the review property averaged by the query.
	Score string
	// Alias is the output column, also the catalog field holding the average.
	Alias string
	// Base is the hotel's precomputed baseline property.
	Base string
}

// Dimensions in selection order.
var dimensions = []Dimension{
	{Name: "cleanliness", Field: domain.FieldMinCleanliness, Score: "score_cleanliness", Alias: "avg_cleanliness", Base: "cleanliness_base"},
	{Name: "comfort", Field: domain.FieldMinComfort, Score: "score_comfort", Alias: "avg_comfort", Base: "comfort_base"},
	{Name: "value", Field: domain.FieldMinValue, Score: "score_value_for_money", Alias: "avg_value", Base: "value_for_money_base"},
	{Name: "staff", Field: domain.FieldMinStaff, Score: "score_staff", Alias: "avg_staff", Base: "staff_base"},
	{Name: "location", Field: domain.FieldMinLocation, Score: "score_location", Alias: "avg_location", Base: "location_base"},
	{Name: "facilities", Field: domain.FieldMinFacilities, Score: "score_facilities", Alias: "avg_facilities", Base: "facilities_base"},
}

// Dimensions returns every quality dimension.
func Dimensions() []Dimension {
	out := make([]Dimension, len(dimensions))
	copy(out, dimensions)
	return out
}

// DimensionByName looks up a dimension.
func DimensionByName(name string) (Dimension, bool) {
	for _, d := range dimensions {
		if d.Name == name {
			return d, true
		}
	}
	return Dimension{}, false
}

const hotelColumns = `h.hotel_id AS hotel_id,
       h.name AS hotel_name,
       h.star_rating AS star_rating`

const cityCountry = `OPTIONAL MATCH (h)-[:LOCATED_IN]->(c:City)-[:LOCATED_IN]->(country:Country)`

var cypher = map[string]string{
	QueryHotelsByCity: `
MATCH (h:Hotel)-[:LOCATED_IN]->(c:City {name: $city})
OPTIONAL MATCH (c)-[:LOCATED_IN]->(country:Country)
RETURN ` + hotelColumns + `,
       h.average_reviews_score AS avg_score,
       c.name AS city,
       country.name AS country
ORDER BY h.average_reviews_score DESC
LIMIT $limit`,

	QueryHotelsByCountry: `
MATCH (h:Hotel)-[:LOCATED_IN]->(c:City)-[:LOCATED_IN]->(country:Country {name: $country})
RETURN ` + hotelColumns + `,
       h.average_reviews_score AS avg_score,
       c.name AS city,
       country.name AS country
ORDER BY h.average_reviews_score DESC
LIMIT $limit`,

	QueryHotelsByRating: `
MATCH (r:Review)-[:REVIEWED]->(h:Hotel)
` + cityCountry + `
WITH h, c, country, AVG(r.score_overall) AS avg_score
WHERE avg_score >= $min_rating
ORDER BY avg_score DESC
LIMIT $limit
RETURN ` + hotelColumns + `,
       avg_score,
       c.name AS city,
       country.name AS country`,

	QueryHotelsByStars: `
MATCH (h:Hotel)
WHERE h.star_rating >= $star_rating
` + cityCountry + `
RETURN ` + hotelColumns + `,
       h.average_reviews_score AS avg_score,
       c.name AS city,
       country.name AS country
ORDER BY h.star_rating DESC, h.average_reviews_score DESC
LIMIT $limit`,

	QueryTopForTraveller: `
MATCH (t:Traveller {type: $traveller_type})-[:WROTE]->(r:Review)-[:REVIEWED]->(h:Hotel)
` + cityCountry + `
WITH h, c, country, AVG(r.score_overall) AS avg_rating, COUNT(r) AS review_count
ORDER BY avg_rating DESC, review_count DESC
LIMIT $limit
RETURN ` + hotelColumns + `,
       avg_rating,
       review_count,
       c.name AS city,
       country.name AS country`,

	QueryReviewsByHotelName: `
MATCH (h:Hotel {name: $hotel_name})<-[:REVIEWED]-(r:Review)<-[:WROTE]-(t:Traveller)
RETURN ` + reviewColumns + `
ORDER BY r.date DESC
LIMIT $limit`,

	QueryReviewsByHotelID: `
MATCH (h:Hotel {hotel_id: $hotel_id})<-[:REVIEWED]-(r:Review)<-[:WROTE]-(t:Traveller)
RETURN ` + reviewColumns + `
ORDER BY r.date DESC
LIMIT $limit`,

	QueryBestLocation: `
MATCH (r:Review)-[:REVIEWED]->(h:Hotel)-[:LOCATED_IN]->(c:City)
WHERE $city IS NULL OR c.name = $city
OPTIONAL MATCH (c)-[:LOCATED_IN]->(country:Country)
WITH h, c, country, AVG(r.score_location) AS avg_location
ORDER BY avg_location DESC
LIMIT $limit
RETURN ` + hotelColumns + `,
       avg_location,
       c.name AS city,
       country.name AS country`,

	QueryVisaCheck: `
MATCH (from:Country {name: $from_country})
MATCH (to:Country {name: $to_country})
OPTIONAL MATCH (from)-[v:NEEDS_VISA]->(to)
RETURN from.name AS from_country,
       to.name AS to_country,
       v IS NOT NULL AS visa_required,
       v.visa_type AS visa_type`,

	QueryTravellersNoVisa: `
MATCH (t:Traveller)-[:FROM_COUNTRY]->(fromCountry:Country {name: $from_country})
MATCH (t)-[:STAYED_AT]->(h:Hotel)-[:LOCATED_IN]->(c:City)-[:LOCATED_IN]->(toCountry:Country {name: $to_country})
WHERE NOT (fromCountry)-[:NEEDS_VISA]->(toCountry)
RETURN COUNT(DISTINCT t) AS traveller_count,
       fromCountry.name AS from_country,
       toCountry.name AS to_country`,

	QueryHotelDetails: `
MATCH (h:Hotel {name: $hotel_name})
` + cityCountry + `
OPTIONAL MATCH (r:Review)-[:REVIEWED]->(h)
WITH h, c, country,
     AVG(r.score_overall) AS avg_rating,
     AVG(r.score_cleanliness) AS avg_cleanliness,
     AVG(r.score_comfort) AS avg_comfort,
     AVG(r.score_facilities) AS avg_facilities,
     AVG(r.score_location) AS avg_location,
     AVG(r.score_staff) AS avg_staff,
     AVG(r.score_value_for_money) AS avg_value,
     COUNT(r) AS review_count
RETURN ` + hotelColumns + `,
       h.average_reviews_score AS avg_score,
       h.cleanliness_base AS cleanliness_base,
       h.comfort_base AS comfort_base,
       h.facilities_base AS facilities_base,
       h.location_base AS location_base,
       h.staff_base AS staff_base,
       h.value_for_money_base AS value_for_money_base,
       c.name AS city,
       country.name AS country,
       avg_rating, avg_cleanliness, avg_comfort, avg_facilities,
       avg_location, avg_staff, avg_value, review_count`,
}

const reviewColumns = `r.review_id AS review_id,
       h.name AS hotel_name,
       r.text AS review_text,
       r.date AS review_date,
       r.score_overall AS score_overall,
       r.score_cleanliness AS score_cleanliness,
       r.score_comfort AS score_comfort,
       r.score_facilities AS score_facilities,
       r.score_location AS score_location,
       r.score_staff AS score_staff,
       r.score_value_for_money AS score_value_for_money,
       t.type AS traveller_type`

func qualityCypher(d Dimension) string {
	return fmt.Sprintf(`
MATCH (r:Review)-[:REVIEWED]->(h:Hotel)
%s
WITH h, c, country, AVG(r.%s) AS %s
WHERE %s >= $min
ORDER BY %s DESC
LIMIT $limit
RETURN %s,
       %s,
       c.name AS city,
       country.name AS country`, cityCountry, d.Score, d.Alias, d.Alias, d.Alias, hotelColumns, d.Alias)
}

// Per-template default row limits.
const (
	defaultLimit          = 10
	defaultTravellerLimit = 5
	defaultLocationLimit  = 5
)

// Library selects query templates for a routed query.
type Library struct {
	// QualityFallback is the threshold used when a quality intent names no
	// dimension.
	QualityFallback float64
}

// NewLibrary returns a library with the standard fallback of 8.0.
func NewLibrary() *Library {
	return &Library{QualityFallback: 8.0}
}

// Select returns the queries for intent, or nil when the entities do not
// support any template.
func (l *Library) Select(intent domain.Intent, ents domain.Entities) []Query {
	switch intent {
	case domain.IntentHotelSearch:
		limit := limitOr(ents, defaultLimit)
		switch {
		case ents.Has(domain.FieldCity):
			return one(QueryHotelsByCity, map[string]any{"city": ents.Text(domain.FieldCity), "limit": limit})
		case ents.Has(domain.FieldCountry):
			return one(QueryHotelsByCountry, map[string]any{"country": ents.Text(domain.FieldCountry), "limit": limit})
		case ents.Has(domain.FieldMinRating):
			v, _ := ents.Number(domain.FieldMinRating)
			return one(QueryHotelsByRating, map[string]any{"min_rating": v, "limit": limit})
		case ents.Has(domain.FieldStarRating):
			v, _ := ents.Number(domain.FieldStarRating)
			return one(QueryHotelsByStars, map[string]any{"star_rating": v, "limit": limit})
		}

	case domain.IntentHotelRecommendation:
		if ents.Has(domain.FieldTravellerType) {
			return one(QueryTopForTraveller, map[string]any{
				"traveller_type": ents.Text(domain.FieldTravellerType),
				"limit":          limitOr(ents, defaultTravellerLimit),
			})
		}
		return l.quality(ents)

	case domain.IntentAmenityFilter:
		return l.quality(ents)

	case domain.IntentReviewLookup:
		limit := limitOr(ents, defaultLimit)
		switch {
		case ents.Has(domain.FieldHotelName):
			return one(QueryReviewsByHotelName, map[string]any{"hotel_name": ents.Text(domain.FieldHotelName), "limit": limit})
		case ents.Has(domain.FieldHotelID):
			return one(QueryReviewsByHotelID, map[string]any{"hotel_id": ents.Text(domain.FieldHotelID), "limit": limit})
		}

	case domain.IntentLocationQuery:
		var city any
		if ents.Has(domain.FieldCity) {
			city = ents.Text(domain.FieldCity)
		}
		return one(QueryBestLocation, map[string]any{"city": city, "limit": limitOr(ents, defaultLocationLimit)})

	case domain.IntentVisaQuestion:
		if ents.Has(domain.FieldFromCountry) && ents.Has(domain.FieldToCountry) {
			params := map[string]any{
				"from_country": ents.Text(domain.FieldFromCountry),
				"to_country":   ents.Text(domain.FieldToCountry),
			}
			return []Query{
				build(QueryVisaCheck, params),
				build(QueryTravellersNoVisa, clone(params)),
			}
		}

	case domain.IntentGeneralQuestionAnswering:
		if ents.Has(domain.FieldHotelName) {
			return one(QueryHotelDetails, map[string]any{"hotel_name": ents.Text(domain.FieldHotelName)})
		}
	}
	return nil
}

// quality picks the first dimension with a threshold, or the fallback.
func (l *Library) quality(ents domain.Entities) []Query {
	limit := limitOr(ents, defaultLimit)
	for _, d := range dimensions {
		if v, ok := ents.Number(d.Field); ok {
			return []Query{QualityQuery(d, v, limit)}
		}
	}
	return []Query{QualityQuery(dimensions[0], l.QualityFallback, limit)}
}

// QualityQuery builds the threshold query for one dimension.
func QualityQuery(d Dimension, threshold float64, limit int) Query {
	return Query{
		Name:   QueryHotelsByQuality,
		Cypher: qualityCypher(d),
		Params: map[string]any{"dimension": d.Name, "min": threshold, "limit": limit},
	}
}

func build(name string, params map[string]any) Query {
	return Query{Name: name, Cypher: cypher[name], Params: params}
}

func one(name string, params map[string]any) []Query {
	return []Query{build(name, params)}
}

func limitOr(ents domain.Entities, def int) int {
	if v, ok := ents.Number(domain.FieldLimit); ok && v >= 1 {
		return int(v)
	}
	return def
}

func clone(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
