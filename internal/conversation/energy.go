package conversation

import "math"

// Energy status buckets.
const (
	EnergyPlenty   = "충분해요"
	EnergyModerate = "적당해요"
	EnergyLow      = "조금 부족해요"
)

// Energy describes how much of the token budget is left.
type Energy struct {
	Used      int64   `json:"used"`
	Ceiling   int64   `json:"ceiling"`
	Remaining int64   `json:"remaining"`
	Ratio     float64 `json:"ratio"`
	Status    string  `json:"status"`
}

// NewEnergy computes the gauge for used tokens out of ceiling.
func NewEnergy(used, ceiling int64) Energy {
	used = max(used, 0)
	ratio := 1.0
	if ceiling > 0 {
		ratio = math.Min(float64(used)/float64(ceiling), 1)
	}

	status := EnergyLow
	switch {
	case ratio < 0.5:
		status = EnergyPlenty
	case ratio < 0.95:
		status = EnergyModerate
	}

	return Energy{
		Used:      used,
		Ceiling:   ceiling,
		Remaining: max(ceiling-used, 0),
		Ratio:     ratio,
		Status:    status,
	}
}
