package reputation

// WeightPolicy derives a user's validation weight from their accumulated
// reputation. The scoring engine reads the stored weight, never this policy
// directly, so swapping the policy cannot rewrite history.
type WeightPolicy func(reputationScore int, level string) float64

// DefaultWeightPolicy keeps every validation at weight 1. Level progression
// is display-only for now; a weight curve can be plugged in here without
// touching the scoring engine.
func DefaultWeightPolicy(int, string) float64 {
	return 1
}

// LevelForScore maps accumulated reputation to a named level.
func LevelForScore(score int) string {
	switch {
	case score < 20:
		return LevelNew
	case score < 100:
		return LevelLocal
	case score < 500:
		return LevelScout
	default:
		return LevelLegend
	}
}
