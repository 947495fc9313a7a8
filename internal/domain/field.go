package domain

// Field is a closed-set entity key.
type Field string

// Entity fields.
const (
	FieldCity           Field = "city"
	FieldCountry        Field = "country"
	FieldFromCountry    Field = "from_country"
	FieldToCountry      Field = "to_country"
	FieldHotelName      Field = "hotel_name"
	FieldHotelID        Field = "hotel_id"
	FieldTravellerType  Field = "traveller_type"
	FieldMinRating      Field = "min_rating"
	FieldStarRating     Field = "star_rating"
	FieldMinCleanliness Field = "min_cleanliness"
	FieldMinComfort     Field = "min_comfort"
	FieldMinValue       Field = "min_value"
	FieldMinStaff       Field = "min_staff"
	FieldMinLocation    Field = "min_location"
	FieldMinFacilities  Field = "min_facilities"
	FieldLimit          Field = "limit"
)

// QualityFields are the per-dimension review score thresholds.
var qualityFields = []Field{
	FieldMinCleanliness,
	FieldMinComfort,
	FieldMinValue,
	FieldMinStaff,
	FieldMinLocation,
	FieldMinFacilities,
}

var allFields = []Field{
	FieldCity, FieldCountry, FieldFromCountry, FieldToCountry,
	FieldHotelName, FieldHotelID, FieldTravellerType,
	FieldMinRating, FieldStarRating,
	FieldMinCleanliness, FieldMinComfort, FieldMinValue,
	FieldMinStaff, FieldMinLocation, FieldMinFacilities,
	FieldLimit,
}

// Limit bounds.
const (
	DefaultLimit = 10
	MaxLimit     = 50
)

// AllFields returns every entity field.
func AllFields() []Field {
	out := make([]Field, len(allFields))
	copy(out, allFields)
	return out
}

// QualityFields returns the six review-dimension threshold fields.
func QualityFields() []Field {
	out := make([]Field, len(qualityFields))
	copy(out, qualityFields)
	return out
}

// ParseField returns the field named s.
func ParseField(s string) (Field, bool) {
	for _, f := range allFields {
		if string(f) == s {
			return f, true
		}
	}
	return "", false
}

// Numeric reports whether values for f must be numbers.
func (f Field) Numeric() bool {
	switch f {
	case FieldMinRating, FieldStarRating, FieldLimit:
		return true
	}
	return f.Quality()
}

// Quality reports whether f is a review-dimension threshold.
func (f Field) Quality() bool {
	for _, q := range qualityFields {
		if f == q {
			return true
		}
	}
	return false
}

// Domain returns the closed value domain for f, if any.
func (f Field) Domain() (Domain, bool) {
	switch f {
	case FieldCity:
		return DomainCity, true
	case FieldCountry, FieldFromCountry, FieldToCountry:
		return DomainCountry, true
	case FieldTravellerType:
		return DomainTravellerType, true
	}
	return "", false
}

var schemas = map[Intent][]Field{
	IntentHotelSearch: {FieldCity, FieldCountry, FieldMinRating, FieldStarRating, FieldLimit},
	IntentHotelRecommendation: {
		FieldTravellerType,
		FieldMinCleanliness, FieldMinComfort, FieldMinValue,
		FieldMinStaff, FieldMinLocation, FieldMinFacilities,
		FieldCity, FieldCountry, FieldLimit,
	},
	IntentReviewLookup:  {FieldHotelName, FieldHotelID, FieldLimit},
	IntentLocationQuery: {FieldCity, FieldCountry, FieldLimit},
	IntentVisaQuestion:  {FieldFromCountry, FieldToCountry},
	IntentAmenityFilter: {
		FieldMinCleanliness, FieldMinComfort, FieldMinValue,
		FieldMinStaff, FieldMinLocation, FieldMinFacilities,
		FieldLimit,
	},
	IntentGeneralQuestionAnswering: {FieldHotelName, FieldCity, FieldCountry},
	IntentCasualConversation:       {},
}

// Schema returns the fields an intent's extraction may emit.
func Schema(i Intent) []Field {
	fields := schemas[i]
	out := make([]Field, len(fields))
	copy(out, fields)
	return out
}

// InSchema reports whether f belongs to the schema of i.
func InSchema(i Intent, f Field) bool {
	for _, s := range schemas[i] {
		if s == f {
			return true
		}
	}
	return false
}
