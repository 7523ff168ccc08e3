package scoring

import "math"

// Stage is a spot's trust tier, derived from its confidence score.
type Stage string

const (
	StageGhost     Stage = "GHOST"
	StageReview    Stage = "REVIEW"
	StageVerified  Stage = "VERIFIED"
	StageLegendary Stage = "LEGENDARY"

	// Reserved for activity decay; no transition produces them yet.
	StageStale Stage = "STALE"
	StageDead  Stage = "DEAD"
)

const (
	// MaxScore bounds the confidence score.
	MaxScore = 200

	validatorPoints  = 5
	validatorTermCap = 50
	weightedTermCap  = 60
	photoPoints      = 3
	photoTermCap     = 40
)

// WeightedValidation is one ledger row as seen by the fold: the validator's
// weight snapshotted at validation time times the method's point value.
type WeightedValidation struct {
	Weight float64
	Points int
}

// Inputs is everything the confidence fold reads. It is assembled from the
// full validation and photo ledger of a spot, never from running counters.
type Inputs struct {
	DistinctValidators int
	Validations        []WeightedValidation
	DistinctPhotoUsers int
}

// Compute folds the ledger into a confidence score. Three independently
// capped terms keep any single method from monopolizing the score; the outer
// cap bounds the result to [0, MaxScore]. Deterministic for a given Inputs.
func Compute(in Inputs) int {
	validatorTerm := in.DistinctValidators * validatorPoints
	if validatorTerm > validatorTermCap {
		validatorTerm = validatorTermCap
	}

	weighted := 0.0
	for _, v := range in.Validations {
		weighted += v.Weight * float64(v.Points)
	}
	if weighted > weightedTermCap {
		weighted = weightedTermCap
	}
	weightedTerm := int(math.Round(weighted))

	photoTerm := in.DistinctPhotoUsers * photoPoints
	if photoTerm > photoTermCap {
		photoTerm = photoTermCap
	}

	score := validatorTerm + weightedTerm + photoTerm
	if score > MaxScore {
		score = MaxScore
	}
	return score
}

// StageForScore maps a score to its stage. Pure and hysteresis-free: the
// machine is stateless given the score.
func StageForScore(score int) Stage {
	switch {
	case score < 10:
		return StageGhost
	case score < 50:
		return StageReview
	case score < 100:
		return StageVerified
	default:
		return StageLegendary
	}
}

// VisibleToPublic reports whether a stage is shown to unauthenticated
// callers. GHOST spots are only visible to their creator.
func VisibleToPublic(s Stage) bool {
	return s == StageReview || s == StageVerified || s == StageLegendary
}
