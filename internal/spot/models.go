package spot

import (
	"fmt"
	"time"
)

// Spot is a physical skate location candidate. Score, stage and history are
// written only by the validation engine, never by external edits.
type Spot struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	Category        string     `json:"category"`
	Description     string     `json:"description,omitempty"`
	Lat             float64    `json:"lat"`
	Lng             float64    `json:"lng"`
	Country         string     `json:"country,omitempty"`
	City            string     `json:"city,omitempty"`
	Address         string     `json:"address,omitempty"`
	ConfidenceScore int        `json:"confidence_score"`
	Stage           string     `json:"stage"`
	IsHot           bool       `json:"is_hot"`
	HotUntil        *time.Time `json:"hot_until,omitempty"`
	LastActivityAt  time.Time  `json:"last_activity_at"`
	CreatedBy       string     `json:"created_by"`
	CreatedAt       time.Time  `json:"created_at"`
}

// NearbySpot is a spot with its computed distance from the query point.
type NearbySpot struct {
	Spot
	DistanceM float64 `json:"distance_m"`
}

// StatusEntry is one line of a spot's append-only audit trail. Written on
// every recompute, never pruned.
type StatusEntry struct {
	ID        string    `json:"id"`
	SpotID    string    `json:"spot_id"`
	Stage     string    `json:"stage"`
	Score     int       `json:"score"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}

type RegisterRequest struct {
	Name         string   `json:"name"`
	Category     string   `json:"category"`
	Lat          float64  `json:"lat"`
	Lng          float64  `json:"lng"`
	Description  string   `json:"description"`
	Country      string   `json:"country"`
	City         string   `json:"city"`
	Address      string   `json:"address"`
	Photos       []string `json:"photos"`
	ForceProceed bool     `json:"force_proceed"`
}

var validCategories = map[string]struct{}{
	"park": {},
	"shop": {},
	"spot": {},
}

// RegistrationConflict refuses a registration near existing spots. With four
// or more neighbors the refusal is final; with fewer the caller may retry
// with force_proceed after reviewing the candidates.
type RegistrationConflict struct {
	Code   string       `json:"code"`
	Nearby []NearbySpot `json:"nearby"`
}

const (
	CodeTooManyNearby    = "TOO_MANY_NEARBY"
	CodeNearbySpotsFound = "NEARBY_SPOTS_FOUND"
)

func (e *RegistrationConflict) Error() string {
	return fmt.Sprintf("%s: %d spot(s) nearby", e.Code, len(e.Nearby))
}
