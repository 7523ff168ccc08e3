package reputation

import "time"

// UserReputation scales the value of a user's validations. Created lazily on
// the first validation, updated additively after every one, never deleted.
type UserReputation struct {
	UserID           string    `json:"user_id"`
	ReputationScore  int       `json:"reputation_score"`
	Level            string    `json:"level"`
	ValidationWeight float64   `json:"validation_weight"`
	ValidationsGiven int       `json:"validations_given"`
	SpotsVerified    int       `json:"spots_verified"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

const (
	LevelNew    = "NEW"
	LevelLocal  = "LOCAL"
	LevelScout  = "SCOUT"
	LevelLegend = "LEGEND"
)
