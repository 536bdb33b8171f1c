package risk

import "fmt"

// Level is the qualitative risk band derived from the fake probability.
type Level int

const (
	LevelLow Level = iota
	LevelSuspicious
	LevelHigh
)

func (l Level) String() string {
	switch l {
	case LevelLow:
		return "LOW"
	case LevelSuspicious:
		return "SUSPICIOUS"
	case LevelHigh:
		return "HIGH"
	default:
		return fmt.Sprintf("Level(%d)", int(l))
	}
}

// Default band boundaries.
const (
	DefaultLowMax  = 0.35
	DefaultHighMin = 0.65
)

// Thresholds configures the two band boundaries. LowMax is the highest fake
// probability still classified LOW; HighMin is the lowest classified HIGH.
type Thresholds struct {
	LowMax  float32
	HighMin float32
}

// DefaultThresholds returns the stock 0.35 / 0.65 boundaries.
func DefaultThresholds() Thresholds {
	return Thresholds{LowMax: DefaultLowMax, HighMin: DefaultHighMin}
}

// Validate rejects threshold pairs that would make the SUSPICIOUS band empty
// or inverted.
func (t Thresholds) Validate() error {
	if t.LowMax < 0 || t.HighMin > 1 {
		return fmt.Errorf("thresholds %v out of [0,1]", t)
	}
	if t.LowMax >= t.HighMin {
		return fmt.Errorf("low_max (%.2f) must be below high_min (%.2f)", t.LowMax, t.HighMin)
	}
	return nil
}

// Classify maps a fake probability to a band: HIGH at or above HighMin,
// SUSPICIOUS strictly above LowMax, LOW otherwise. The boundary semantics
// (>= for HIGH, strict > for SUSPICIOUS) are part of the contract.
func Classify(fakeProb float32, t Thresholds) Level {
	switch {
	case fakeProb >= t.HighMin:
		return LevelHigh
	case fakeProb > t.LowMax:
		return LevelSuspicious
	default:
		return LevelLow
	}
}
