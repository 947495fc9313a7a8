package hydrate

import (
	"context"
	"fmt"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// VisaID joins a visa record's countries into its id.
func VisaID(from, to string) string { return from + "->" + to }

// SplitVisaID reverses VisaID.
func SplitVisaID(id string) (from, to string, ok bool) {
	return strings.Cut(id, "->")
}

const hotelCypher = `
MATCH (h:Hotel {hotel_id: $id})
OPTIONAL MATCH (h)-[:LOCATED_IN]->(c:City)-[:LOCATED_IN]->(country:Country)
OPTIONAL MATCH (r:Review)-[:REVIEWED]->(h)
WITH h, c, country, COUNT(r) AS review_count
RETURN h.hotel_id AS hotel_id,
       h.name AS hotel_name,
       h.star_rating AS star_rating,
       h.average_reviews_score AS avg_score,
       h.cleanliness_base AS cleanliness_base,
       h.comfort_base AS comfort_base,
       h.facilities_base AS facilities_base,
       h.location_base AS location_base,
       h.staff_base AS staff_base,
       h.value_for_money_base AS value_for_money_base,
       review_count,
       c.name AS city,
       country.name AS country`

const visaCypher = `
MATCH (from:Country {name: $from_country})
MATCH (to:Country {name: $to_country})
OPTIONAL MATCH (from)-[v:NEEDS_VISA]->(to)
RETURN from.name AS from_country,
       to.name AS to_country,
       v IS NOT NULL AS visa_required,
       v.visa_type AS visa_type`

// Neo4jFetcher hydrates records from the knowledge graph.
type Neo4jFetcher struct {
	driver   neo4j.DriverWithContext
	database string
}

// NewNeo4jFetcher returns a fetcher over driver. database may be empty for
// the server default.
func NewNeo4jFetcher(driver neo4j.DriverWithContext, database string) *Neo4jFetcher {
	return &Neo4jFetcher{driver: driver, database: database}
}

// Fetch implements Fetcher for hotel and visa records.
func (f *Neo4jFetcher) Fetch(ctx context.Context, id, entityType string) (Payload, error) {
	var cypher string
	var params map[string]any
	switch entityType {
	case "hotel":
		cypher, params = hotelCypher, map[string]any{"id": id}
	case "visa":
		from, to, ok := SplitVisaID(id)
		if !ok {
			return nil, fmt.Errorf("visa id %q: want FROM->TO", id)
		}
		cypher, params = visaCypher, map[string]any{"from_country": from, "to_country": to}
	default:
		return nil, fmt.Errorf("neo4j hydration: unsupported entity type %q", entityType)
	}

	opts := []neo4j.ExecuteQueryConfigurationOption{neo4j.ExecuteQueryWithReadersRouting()}
	if f.database != "" {
		opts = append(opts, neo4j.ExecuteQueryWithDatabase(f.database))
	}
	res, err := neo4j.ExecuteQuery(ctx, f.driver, cypher, params, neo4j.EagerResultTransformer, opts...)
	if err != nil {
		return nil, fmt.Errorf("neo4j hydration %s %q: %w", entityType, id, err)
	}
	if len(res.Records) == 0 {
		return nil, fmt.Errorf("%s %q: %w", entityType, id, ErrNotFound)
	}
	return Payload(res.Records[0].AsMap()), nil
}
