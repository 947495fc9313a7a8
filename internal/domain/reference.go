package domain

import (
	"fmt"
	"os"
	"strings"
	"sync/atomic"

	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/hotelrag/configs"
)

// Domain names a closed set of canonical values.
type Domain string

// Value domains.
const (
	DomainCity          Domain = "city"
	DomainCountry       Domain = "country"
	DomainTravellerType Domain = "traveller_type"
)

// ParseDomain returns the domain named s.
func ParseDomain(s string) (Domain, bool) {
	switch Domain(strings.ToLower(strings.TrimSpace(s))) {
	case DomainCity:
		return DomainCity, true
	case DomainCountry:
		return DomainCountry, true
	case DomainTravellerType, "traveller", "traveler_type", "traveler":
		return DomainTravellerType, true
	}
	return "", false
}

// Lookup is read-only access to reference data.
type Lookup interface {
	// Values returns the canonical values of d. Callers must not modify the slice.
	Values(d Domain) []string
	// Alias returns the canonical value an alias stands for.
	Alias(d Domain, raw string) (string, bool)
	// Aliases returns the alias table of d, keyed by lowercase alias.
	Aliases(d Domain) map[string]string
}

// ReferenceData is the on-disk shape of the reference file.
type ReferenceData struct {
	Cities           []string          `yaml:"cities"`
	Countries        []string          `yaml:"countries"`
	TravellerTypes   []string          `yaml:"traveller_types"`
	CountryAliases   map[string]string `yaml:"country_aliases"`
	TravellerAliases map[string]string `yaml:"traveller_aliases"`
}

// Reference is an immutable snapshot of reference data.
type Reference struct {
	values  map[Domain][]string
	aliases map[Domain]map[string]string
}

// NewReference validates data and builds a snapshot.
func NewReference(data ReferenceData) (*Reference, error) {
	if len(data.Cities) == 0 {
		return nil, fmt.Errorf("reference data: no cities")
	}
	if len(data.Countries) == 0 {
		return nil, fmt.Errorf("reference data: no countries")
	}
	if len(data.TravellerTypes) == 0 {
		return nil, fmt.Errorf("reference data: no traveller types")
	}

	r := &Reference{
		values: map[Domain][]string{
			DomainCity:          dedupe(data.Cities),
			DomainCountry:       dedupe(data.Countries),
			DomainTravellerType: dedupe(data.TravellerTypes),
		},
		aliases: map[Domain]map[string]string{
			DomainCountry:       lowerKeys(data.CountryAliases),
			DomainTravellerType: lowerKeys(data.TravellerAliases),
		},
	}

	for d, aliases := range r.aliases {
		for alias, target := range aliases {
			if !r.contains(d, target) {
				return nil, fmt.Errorf("reference data: alias %q points to unknown %s %q", alias, d, target)
			}
		}
	}
	return r, nil
}

// ParseReference decodes YAML reference data.
func ParseReference(b []byte) (*Reference, error) {
	var data ReferenceData
	if err := yaml.Unmarshal(b, &data); err != nil {
		return nil, fmt.Errorf("parse reference data: %w", err)
	}
	return NewReference(data)
}

// LoadReference reads reference data from path.
func LoadReference(path string) (*Reference, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read reference data: %w", err)
	}
	return ParseReference(b)
}

// DefaultReference returns the reference data embedded in the binary.
func DefaultReference() (*Reference, error) {
	return ParseReference(configs.ReferenceYAML)
}

// Values implements Lookup.
func (r *Reference) Values(d Domain) []string {
	return r.values[d]
}

// Alias implements Lookup.
func (r *Reference) Alias(d Domain, raw string) (string, bool) {
	target, ok := r.aliases[d][strings.ToLower(strings.TrimSpace(raw))]
	return target, ok
}

// Aliases implements Lookup. The returned map is a copy.
func (r *Reference) Aliases(d Domain) map[string]string {
	out := make(map[string]string, len(r.aliases[d]))
	for k, v := range r.aliases[d] {
		out[k] = v
	}
	return out
}

func (r *Reference) contains(d Domain, v string) bool {
	for _, known := range r.values[d] {
		if strings.EqualFold(known, v) {
			return true
		}
	}
	return false
}

// Holder publishes reference snapshots for concurrent readers.
// Readers never block; Store swaps the whole snapshot.
type Holder struct {
	current atomic.Pointer[Reference]
}

// NewHolder returns a holder serving ref.
func NewHolder(ref *Reference) *Holder {
	h := &Holder{}
	h.current.Store(ref)
	return h
}

// Load returns the current snapshot.
func (h *Holder) Load() *Reference { return h.current.Load() }

// Store replaces the current snapshot.
func (h *Holder) Store(ref *Reference) { h.current.Store(ref) }

// Values implements Lookup.
func (h *Holder) Values(d Domain) []string { return h.Load().Values(d) }

// Alias implements Lookup.
func (h *Holder) Alias(d Domain, raw string) (string, bool) { return h.Load().Alias(d, raw) }

// Aliases implements Lookup.
func (h *Holder) Aliases(d Domain) map[string]string { return h.Load().Aliases(d) }

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		key := strings.ToLower(v)
		if v == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, v)
	}
	return out
}

func lowerKeys(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[strings.ToLower(strings.TrimSpace(k))] = v
	}
	return out
}
