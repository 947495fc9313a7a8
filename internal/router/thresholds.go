package router

import "math"

// Tier is a confidence band.
type Tier int

const (
	// TierLow asks the oracle without a hint.
	TierLow Tier = iota
	// TierMedium asks the oracle with the rule result as a hint.
	TierMedium
	// TierHigh accepts the rule result.
	TierHigh
)

// String returns the tier name.
func (t Tier) String() string {
	switch t {
	case TierHigh:
		return "high"
	case TierMedium:
		return "medium"
	default:
		return "low"
	}
}

// MarshalText encodes the tier by name.
func (t Tier) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

// gapEpsilon absorbs float noise in the tie comparison, so a gap of exactly
// TieMargin is not a tie.
const gapEpsilon = 1e-9

// Thresholds are the routing constants.
type Thresholds struct {
	// High is the lower bound of the high tier.
	High float64
	// Medium is the lower bound of the medium tier.
	Medium float64
	// TieMargin is the top-two gap below which the top score is penalised.
	TieMargin float64
	// TiePenalty is subtracted from an ambiguous top score.
	TiePenalty float64
	// PenaltyFloor is the lowest score the penalty can produce.
	PenaltyFloor float64
	// Boost is added when independent rules agree.
	Boost float64
}

// DefaultThresholds returns the stock routing constants.
func DefaultThresholds() Thresholds {
	return Thresholds{
		High:         0.9,
		Medium:       0.5,
		TieMargin:    0.3,
		TiePenalty:   0.3,
		PenaltyFloor: 0.3,
		Boost:        0.1,
	}
}

// Tier returns the band for score.
func (t Thresholds) Tier(score float64) Tier {
	switch {
	case score >= t.High:
		return TierHigh
	case score >= t.Medium:
		return TierMedium
	default:
		return TierLow
	}
}

// Penalize applies the ambiguity penalty to top when the runner-up is
// within TieMargin. A score at or below the floor is returned unchanged.
func (t Thresholds) Penalize(top, second float64) float64 {
	if top-second >= t.TieMargin-gapEpsilon {
		return top
	}
	if top <= t.PenaltyFloor {
		return top
	}
	return math.Max(top-t.TiePenalty, t.PenaltyFloor)
}
