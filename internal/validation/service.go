package validation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cristiansk8/TheTrickest-sub001/internal/db"
	"github.com/cristiansk8/TheTrickest-sub001/internal/reputation"
	"github.com/cristiansk8/TheTrickest-sub001/internal/shared/geo"
	"github.com/cristiansk8/TheTrickest-sub001/internal/shared/scoring"
	"github.com/cristiansk8/TheTrickest-sub001/internal/stream"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
)

const (
	maxValidationDistanceM = 50.0
	closeHintDistanceM     = 200.0
	crowdCacheTTL          = 2 * time.Hour
)

// ErrInvalidInput marks malformed requests (bad coordinates, unknown method).
var ErrInvalidInput = errors.New("invalid input")

type Service struct {
	db     db.Pool
	hub    *stream.Hub
	redis  *redis.Client
	weight reputation.WeightPolicy
	now    func() time.Time
}

func NewService(pool db.Pool, hub *stream.Hub, redisClient *redis.Client) *Service {
	return &Service{
		db:     pool,
		hub:    hub,
		redis:  redisClient,
		weight: reputation.DefaultWeightPolicy,
		now:    time.Now,
	}
}

// Validate runs the full chain for one attestation: proximity check, ledger
// insert, reputation credit, score recompute, spot/stage/history update. All
// writes share one transaction so concurrent validations of the same spot
// cannot interleave stale scores.
func (s *Service) Validate(ctx context.Context, spotID, userID string, req ValidateRequest) (ValidateResult, error) {
	if !req.Method.Valid() {
		return ValidateResult{}, fmt.Errorf("%w: unknown method %q", ErrInvalidInput, req.Method)
	}
	if !geo.ValidCoords(req.Lat, req.Lng) {
		return ValidateResult{}, fmt.Errorf("%w: coordinates out of range", ErrInvalidInput)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return ValidateResult{}, err
	}
	defer tx.Rollback(ctx)

	var name, createdBy, prevStage string
	var spotLat, spotLng float64
	err = tx.QueryRow(ctx, `
		SELECT name, created_by, stage, ST_Y(location::geometry), ST_X(location::geometry)
		FROM spots WHERE id=$1
		FOR UPDATE
	`, spotID).Scan(&name, &createdBy, &prevStage, &spotLat, &spotLng)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ValidateResult{}, ErrSpotNotFound
		}
		return ValidateResult{}, err
	}

	distance := geo.DistanceMeters(req.Lat, req.Lng, spotLat, spotLng)
	if distance > maxValidationDistanceM {
		hint := "verify your location"
		if distance < closeHintDistanceM {
			hint = "close, move closer"
		}
		return ValidateResult{}, &ProximityError{DistanceM: distance, Hint: hint}
	}

	weight, err := reputation.CurrentWeight(ctx, tx, userID)
	if err != nil {
		return ValidateResult{}, err
	}

	v := Validation{
		SpotID:    spotID,
		UserID:    userID,
		Method:    req.Method,
		Weight:    weight,
		Lat:       req.Lat,
		Lng:       req.Lng,
		AccuracyM: distance,
	}
	if err := Insert(ctx, tx, &v); err != nil {
		return ValidateResult{}, err
	}

	if req.Method == MethodCheckIn && req.CrowdLevel != "" {
		isOpen := true
		if req.IsOpen != nil {
			isOpen = *req.IsOpen
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO spot_checkins (id, spot_id, user_id, crowd_level, is_open)
			VALUES ($1,$2,$3,$4,$5)
		`, uuid.NewString(), spotID, userID, req.CrowdLevel, isOpen); err != nil {
			return ValidateResult{}, err
		}
	}

	if _, err := reputation.Apply(ctx, tx, userID, req.Method.Points(), s.weight); err != nil {
		return ValidateResult{}, err
	}

	score, stage, err := SyncScore(ctx, tx, spotID, createdBy, "validated via "+string(req.Method))
	if err != nil {
		return ValidateResult{}, err
	}

	now := s.now()
	hotUntil, err := markHot(ctx, tx, spotID, now)
	if err != nil {
		return ValidateResult{}, err
	}

	if err := s.creditVerifiers(ctx, tx, spotID, createdBy, scoring.Stage(prevStage), stage); err != nil {
		return ValidateResult{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return ValidateResult{}, err
	}

	s.broadcast(Event{Type: "validation_recorded", SpotID: spotID, UserID: userID, Score: score, Stage: stage, At: now})
	if string(stage) != prevStage {
		s.broadcast(Event{Type: "stage_changed", SpotID: spotID, UserID: userID, Score: score, Stage: stage, At: now})
	}
	if req.Method == MethodCheckIn && req.CrowdLevel != "" {
		s.cacheCrowd(ctx, spotID, req, now)
	}

	return ValidateResult{
		Validation: v,
		Spot: SpotState{
			ID:              spotID,
			Name:            name,
			ConfidenceScore: score,
			Stage:           string(stage),
			IsHot:           true,
			HotUntil:        &hotUntil,
			LastActivityAt:  now,
		},
		PointsEarned: req.Method.Points(),
		NewScore:     score,
	}, nil
}

// RecordPhoto attaches evidence to a spot. Only the creator or a prior
// validator may contribute; a new distinct contributor can move the score, so
// the ledger is refolded inside the same transaction.
func (s *Service) RecordPhoto(ctx context.Context, spotID, userID string, req PhotoRequest) (Photo, error) {
	if req.URL == "" {
		return Photo{}, fmt.Errorf("%w: url required", ErrInvalidInput)
	}
	if req.ExifLat != nil && req.ExifLng != nil && !geo.ValidCoords(*req.ExifLat, *req.ExifLng) {
		return Photo{}, fmt.Errorf("%w: exif coordinates out of range", ErrInvalidInput)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return Photo{}, err
	}
	defer tx.Rollback(ctx)

	var createdBy, prevStage string
	err = tx.QueryRow(ctx, `
		SELECT created_by, stage FROM spots WHERE id=$1 FOR UPDATE
	`, spotID).Scan(&createdBy, &prevStage)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Photo{}, ErrSpotNotFound
		}
		return Photo{}, err
	}

	held, err := HasValidation(ctx, tx, spotID, userID)
	if err != nil {
		return Photo{}, err
	}
	if !held {
		return Photo{}, ErrForbidden
	}

	photo, err := InsertPhoto(ctx, tx, Photo{
		SpotID:  spotID,
		UserID:  userID,
		URL:     req.URL,
		IsLive:  req.IsLive,
		ExifLat: req.ExifLat,
		ExifLng: req.ExifLng,
	})
	if err != nil {
		return Photo{}, err
	}

	score, stage, err := SyncScore(ctx, tx, spotID, createdBy, "photo added")
	if err != nil {
		return Photo{}, err
	}

	if err := s.creditVerifiers(ctx, tx, spotID, createdBy, scoring.Stage(prevStage), stage); err != nil {
		return Photo{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Photo{}, err
	}

	s.broadcast(Event{Type: "photo_added", SpotID: spotID, UserID: userID, Score: score, Stage: stage, At: s.now()})
	return photo, nil
}

// creditVerifiers bumps spots_verified for every distinct validator the first
// time a recompute lifts the spot to VERIFIED or above.
func (s *Service) creditVerifiers(ctx context.Context, q db.Querier, spotID, createdBy string, prev, next scoring.Stage) error {
	wasVerified := prev == scoring.StageVerified || prev == scoring.StageLegendary
	isVerified := next == scoring.StageVerified || next == scoring.StageLegendary
	if wasVerified || !isVerified {
		return nil
	}
	_, err := q.Exec(ctx, `
		UPDATE user_reputations
		SET spots_verified = spots_verified + 1, updated_at = now()
		WHERE user_id IN (
			SELECT DISTINCT user_id FROM spot_validations WHERE spot_id=$1 AND user_id<>$2
		)
	`, spotID, createdBy)
	return err
}

func (s *Service) Validations(ctx context.Context, spotID string) ([]Validation, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, spot_id, user_id, method, weight, ST_Y(location::geometry), ST_X(location::geometry), accuracy_m, created_at
		FROM spot_validations WHERE spot_id=$1
		ORDER BY created_at
	`, spotID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Validation
	for rows.Next() {
		var v Validation
		var method string
		if err := rows.Scan(&v.ID, &v.SpotID, &v.UserID, &method, &v.Weight, &v.Lat, &v.Lng, &v.AccuracyM, &v.CreatedAt); err != nil {
			return nil, err
		}
		v.Method = Method(method)
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *Service) Photos(ctx context.Context, spotID string) ([]Photo, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, spot_id, user_id, photo_url, is_live, exif_lat, exif_lng, created_at
		FROM spot_photos WHERE spot_id=$1
		ORDER BY created_at DESC
	`, spotID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Photo
	for rows.Next() {
		var p Photo
		if err := rows.Scan(&p.ID, &p.SpotID, &p.UserID, &p.URL, &p.IsLive, &p.ExifLat, &p.ExifLng, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// CrowdStatus is the latest check-in observation for "how busy is it now".
type CrowdStatus struct {
	SpotID     string    `json:"spot_id"`
	CrowdLevel string    `json:"crowd_level"`
	IsOpen     bool      `json:"is_open"`
	ReportedAt time.Time `json:"reported_at"`
}

// Crowd reads the Redis cache first and falls back to the newest check-in
// row. Returns false when the spot has no observations at all.
func (s *Service) Crowd(ctx context.Context, spotID string) (CrowdStatus, bool, error) {
	if s.redis != nil {
		raw, err := s.redis.Get(ctx, crowdKey(spotID)).Result()
		if err == nil {
			var status CrowdStatus
			if jsonErr := json.Unmarshal([]byte(raw), &status); jsonErr == nil {
				return status, true, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			return CrowdStatus{}, false, err
		}
	}

	var status CrowdStatus
	err := s.db.QueryRow(ctx, `
		SELECT spot_id, crowd_level, is_open, created_at
		FROM spot_checkins WHERE spot_id=$1
		ORDER BY created_at DESC
		LIMIT 1
	`, spotID).Scan(&status.SpotID, &status.CrowdLevel, &status.IsOpen, &status.ReportedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return CrowdStatus{}, false, nil
		}
		return CrowdStatus{}, false, err
	}
	return status, true, nil
}

func (s *Service) cacheCrowd(ctx context.Context, spotID string, req ValidateRequest, now time.Time) {
	if s.redis == nil {
		return
	}
	isOpen := true
	if req.IsOpen != nil {
		isOpen = *req.IsOpen
	}
	payload, err := json.Marshal(CrowdStatus{
		SpotID:     spotID,
		CrowdLevel: req.CrowdLevel,
		IsOpen:     isOpen,
		ReportedAt: now,
	})
	if err != nil {
		return
	}
	// best effort; the check-in row is the durable record
	_ = s.redis.Set(ctx, crowdKey(spotID), payload, crowdCacheTTL).Err()
}

func (s *Service) broadcast(ev Event) {
	if s.hub == nil {
		return
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	s.hub.Broadcast(ev.SpotID, payload)
}

func crowdKey(spotID string) string {
	return "spot:" + spotID + ":crowd"
}
