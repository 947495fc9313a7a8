package domain

import (
	"encoding/json"
	"sort"
)

// Provenance records which stage produced a value or decision.
type Provenance string

// Provenance values.
const (
	SourceRule   Provenance = "rule"
	SourceOracle Provenance = "oracle"
	SourceHybrid Provenance = "hybrid"
)

// Entity is one finalized field value.
type Entity struct {
	Value      Value      `json:"value"`
	Source     Provenance `json:"source"`
	Confidence float64    `json:"confidence"`
}

// Entities maps each field to exactly one finalized value.
type Entities map[Field]Entity

// Keys returns the populated fields in sorted order.
func (e Entities) Keys() []Field {
	keys := make([]Field, 0, len(e))
	for k := range e {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Has reports whether f is populated.
func (e Entities) Has(f Field) bool {
	_, ok := e[f]
	return ok
}

// Value returns the value for f.
func (e Entities) Value(f Field) (Value, bool) {
	ent, ok := e[f]
	return ent.Value, ok
}

// Text returns the text value for f, or "".
func (e Entities) Text(f Field) string {
	if ent, ok := e[f]; ok {
		s, _ := ent.Value.Text()
		return s
	}
	return ""
}

// Number returns the numeric value for f.
func (e Entities) Number(f Field) (float64, bool) {
	if ent, ok := e[f]; ok {
		return ent.Value.Number()
	}
	return 0, false
}

// Clone returns a shallow copy.
func (e Entities) Clone() Entities {
	out := make(Entities, len(e))
	for k, v := range e {
		out[k] = v
	}
	return out
}

// MinConfidence returns the lowest field confidence, or 0 when empty.
func (e Entities) MinConfidence() float64 {
	if len(e) == 0 {
		return 0
	}
	lowest := 1.0
	for _, ent := range e {
		if ent.Confidence < lowest {
			lowest = ent.Confidence
		}
	}
	return lowest
}

// Restrict drops fields outside the schema of intent.
func (e Entities) Restrict(intent Intent) Entities {
	out := make(Entities, len(e))
	for k, v := range e {
		if InSchema(intent, k) {
			out[k] = v
		}
	}
	return out
}

// Params returns plain values keyed by field name, for query parameters.
func (e Entities) Params() map[string]any {
	out := make(map[string]any, len(e))
	for k, v := range e {
		out[string(k)] = v.Value.Any()
	}
	return out
}

// MarshalJSON encodes entities keyed by field name.
func (e Entities) MarshalJSON() ([]byte, error) {
	out := make(map[string]Entity, len(e))
	for k, v := range e {
		out[string(k)] = v
	}
	return json.Marshal(out)
}
