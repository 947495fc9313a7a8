// Package configs provides files embedded into the hotelrag binary.
//
// Files:
//   - reference.yaml: default closed value domains (cities, countries,
//     traveller types) and their aliases, used by entity resolution.
//   - config.example.yaml: annotated configuration template written by
//     `hotelrag config init`.
//
// Configuration hierarchy (see internal/config Load()):
//  1. Hardcoded defaults (internal/config NewConfig())
//  2. User config (~/.config/hotelrag/config.yaml)
//  3. Project config (.hotelrag.yaml or .hotelrag.toml)
//  4. Environment variables (HOTELRAG_*)
package configs

import _ "embed"

// ReferenceYAML is the default reference data set.
//
//go:embed reference.yaml
var ReferenceYAML []byte

// ConfigTemplate is the annotated configuration template.
//
//go:embed config.example.yaml
var ConfigTemplate string
