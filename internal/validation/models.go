package validation

import (
	"fmt"
	"time"

	"github.com/cristiansk8/TheTrickest-sub001/internal/shared/scoring"
)

// Method is how a user attested that a spot exists. Each method carries a
// fixed point value reflecting how strongly it proves physical presence.
type Method string

const (
	MethodGPSProximity Method = "GPS_PROXIMITY"
	MethodPhotoUpload  Method = "PHOTO_UPLOAD"
	MethodLivePhoto    Method = "LIVE_PHOTO"
	MethodCheckIn      Method = "CHECK_IN"
	MethodCrowdReport  Method = "CROWD_REPORT"
)

var methodPoints = map[Method]int{
	MethodLivePhoto:    10,
	MethodPhotoUpload:  5,
	MethodCrowdReport:  3,
	MethodGPSProximity: 2,
	MethodCheckIn:      1,
}

// Points returns the method's point value, or 0 for an unknown method.
func (m Method) Points() int {
	return methodPoints[m]
}

// Valid reports whether m is a known validation method.
func (m Method) Valid() bool {
	_, ok := methodPoints[m]
	return ok
}

// Validation is one user's attestation of one spot via one method.
// Immutable once written; (spot, user, method) is unique.
type Validation struct {
	ID        string    `json:"id"`
	SpotID    string    `json:"spot_id"`
	UserID    string    `json:"user_id"`
	Method    Method    `json:"method"`
	Weight    float64   `json:"weight"`
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	AccuracyM float64   `json:"accuracy_m"`
	CreatedAt time.Time `json:"created_at"`
}

// Photo is evidence attached to a spot. Counted per distinct contributor in
// the confidence score.
type Photo struct {
	ID        string    `json:"id"`
	SpotID    string    `json:"spot_id"`
	UserID    string    `json:"user_id"`
	URL       string    `json:"url"`
	IsLive    bool      `json:"is_live"`
	ExifLat   *float64  `json:"exif_lat,omitempty"`
	ExifLng   *float64  `json:"exif_lng,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// CheckIn is the secondary "how busy is it now" stream attached to CHECK_IN
// validations. Display-only, never scored.
type CheckIn struct {
	ID         string    `json:"id"`
	SpotID     string    `json:"spot_id"`
	UserID     string    `json:"user_id"`
	CrowdLevel string    `json:"crowd_level"`
	IsOpen     bool      `json:"is_open"`
	CreatedAt  time.Time `json:"created_at"`
}

// SpotState is the slice of the spot the engine rewrites on every recompute.
type SpotState struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	ConfidenceScore int        `json:"confidence_score"`
	Stage           string     `json:"stage"`
	IsHot           bool       `json:"is_hot"`
	HotUntil        *time.Time `json:"hot_until,omitempty"`
	LastActivityAt  time.Time  `json:"last_activity_at"`
}

type ValidateRequest struct {
	Method     Method  `json:"method"`
	Lat        float64 `json:"lat"`
	Lng        float64 `json:"lng"`
	CrowdLevel string  `json:"crowd_level,omitempty"`
	IsOpen     *bool   `json:"is_open,omitempty"`
}

type ValidateResult struct {
	Validation   Validation `json:"validation"`
	Spot         SpotState  `json:"spot"`
	PointsEarned int        `json:"points_earned"`
	NewScore     int        `json:"new_score"`
}

type PhotoRequest struct {
	URL     string   `json:"url"`
	IsLive  bool     `json:"is_live"`
	ExifLat *float64 `json:"exif_lat,omitempty"`
	ExifLng *float64 `json:"exif_lng,omitempty"`
}

// Event is what the stream hub broadcasts after a committed mutation.
type Event struct {
	Type   string        `json:"type"`
	SpotID string        `json:"spot_id"`
	UserID string        `json:"user_id"`
	Score  int           `json:"score"`
	Stage  scoring.Stage `json:"stage"`
	At     time.Time     `json:"at"`
}

// ErrSpotNotFound and ErrAlreadyValidated are the engine's idempotent
// rejections; neither mutates state.
var (
	ErrSpotNotFound     = fmt.Errorf("spot not found")
	ErrAlreadyValidated = fmt.Errorf("already validated")
	ErrForbidden        = fmt.Errorf("no validation held for this spot")
)

// ProximityError rejects a validation attempted too far from the spot,
// carrying the measured distance and a qualitative hint.
type ProximityError struct {
	DistanceM float64 `json:"distance_m"`
	Hint      string  `json:"hint"`
}

func (e *ProximityError) Error() string {
	return fmt.Sprintf("too far from spot: %.0f m (%s)", e.DistanceM, e.Hint)
}
