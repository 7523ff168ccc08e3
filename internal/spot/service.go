package spot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cristiansk8/TheTrickest-sub001/internal/db"
	"github.com/cristiansk8/TheTrickest-sub001/internal/reputation"
	"github.com/cristiansk8/TheTrickest-sub001/internal/shared/geo"
	"github.com/cristiansk8/TheTrickest-sub001/internal/validation"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// duplicateBoxDelta is the fixed-degree half-width of the duplicate guard's
// bounding box (~111 m of latitude). A box, not a radius: the latitude
// distortion is an accepted simplification for registration, which is
// advisory rather than safety-critical.
const duplicateBoxDelta = 0.001

// hardRefusalCount is the neighbor count at which registration is refused
// even with force_proceed, to stop spot-spam clustering.
const hardRefusalCount = 4

// ErrInvalidInput marks malformed registrations (bad coordinates, unknown
// category, missing name).
var ErrInvalidInput = errors.New("invalid input")

type Service struct {
	db     db.Pool
	weight reputation.WeightPolicy
	now    func() time.Time
}

func NewService(pool db.Pool) *Service {
	return &Service{
		db:     pool,
		weight: reputation.DefaultWeightPolicy,
		now:    time.Now,
	}
}

// Register creates a spot behind the duplicate guard. The new spot starts at
// GHOST with score 0; an initial ledger entry is recorded for the creator
// (excluded from scoring) so the creator can attach photos later.
func (s *Service) Register(ctx context.Context, createdBy string, req RegisterRequest) (Spot, error) {
	if req.Name == "" {
		return Spot{}, fmt.Errorf("%w: name required", ErrInvalidInput)
	}
	if _, ok := validCategories[req.Category]; !ok {
		return Spot{}, fmt.Errorf("%w: unknown category %q", ErrInvalidInput, req.Category)
	}
	if !geo.ValidCoords(req.Lat, req.Lng) {
		return Spot{}, fmt.Errorf("%w: coordinates out of range", ErrInvalidInput)
	}

	// Snapshot read, no lock: two spots registered near-simultaneously at the
	// same corner is a known, benign race.
	nearby, err := s.nearbyInBox(ctx, req.Lat, req.Lng)
	if err != nil {
		return Spot{}, err
	}
	if len(nearby) >= hardRefusalCount {
		return Spot{}, &RegistrationConflict{Code: CodeTooManyNearby, Nearby: nearby}
	}
	if len(nearby) > 0 && !req.ForceProceed {
		return Spot{}, &RegistrationConflict{Code: CodeNearbySpotsFound, Nearby: nearby}
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return Spot{}, err
	}
	defer tx.Rollback(ctx)

	sp := Spot{
		ID:          uuid.NewString(),
		Name:        req.Name,
		Category:    req.Category,
		Description: req.Description,
		Lat:         req.Lat,
		Lng:         req.Lng,
		Country:     req.Country,
		City:        req.City,
		Address:     req.Address,
		Stage:       "GHOST",
		CreatedBy:   createdBy,
	}
	row := tx.QueryRow(ctx, `
		INSERT INTO spots (id, name, category, description, location, country, city, address, confidence_score, stage, created_by, last_activity_at)
		VALUES ($1,$2,$3,$4, ST_SetSRID(ST_MakePoint($5,$6), 4326)::geography, $7,$8,$9, 0, 'GHOST', $10, now())
		RETURNING created_at, last_activity_at
	`, sp.ID, sp.Name, sp.Category, sp.Description, sp.Lng, sp.Lat, sp.Country, sp.City, sp.Address, sp.CreatedBy)
	if err := row.Scan(&sp.CreatedAt, &sp.LastActivityAt); err != nil {
		return Spot{}, err
	}

	method := validation.MethodGPSProximity
	if len(req.Photos) > 0 {
		method = validation.MethodPhotoUpload
	}

	weight, err := reputation.CurrentWeight(ctx, tx, createdBy)
	if err != nil {
		return Spot{}, err
	}
	v := validation.Validation{
		SpotID: sp.ID,
		UserID: createdBy,
		Method: method,
		Weight: weight,
		Lat:    req.Lat,
		Lng:    req.Lng,
	}
	if err := validation.Insert(ctx, tx, &v); err != nil {
		return Spot{}, err
	}

	for _, url := range req.Photos {
		if _, err := validation.InsertPhoto(ctx, tx, validation.Photo{
			SpotID: sp.ID,
			UserID: createdBy,
			URL:    url,
		}); err != nil {
			return Spot{}, err
		}
	}

	if _, err := reputation.Apply(ctx, tx, createdBy, method.Points(), s.weight); err != nil {
		return Spot{}, err
	}

	score, stage, err := validation.SyncScore(ctx, tx, sp.ID, createdBy, "registered")
	if err != nil {
		return Spot{}, err
	}
	sp.ConfidenceScore = score
	sp.Stage = string(stage)

	if err := tx.Commit(ctx); err != nil {
		return Spot{}, err
	}
	return sp, nil
}

// nearbyInBox lists existing spots inside the fixed-degree box around the
// candidate location, with haversine distances for the conflict payload.
func (s *Service) nearbyInBox(ctx context.Context, lat, lng float64) ([]NearbySpot, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, name, category, stage, ST_Y(location::geometry), ST_X(location::geometry)
		FROM spots
		WHERE ST_Y(location::geometry) BETWEEN $1 AND $2
		  AND ST_X(location::geometry) BETWEEN $3 AND $4
	`, lat-duplicateBoxDelta, lat+duplicateBoxDelta, lng-duplicateBoxDelta, lng+duplicateBoxDelta)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []NearbySpot
	for rows.Next() {
		var n NearbySpot
		if err := rows.Scan(&n.ID, &n.Name, &n.Category, &n.Stage, &n.Lat, &n.Lng); err != nil {
			return nil, err
		}
		n.DistanceM = geo.DistanceMeters(lat, lng, n.Lat, n.Lng)
		out = append(out, n)
	}
	return out, rows.Err()
}

// Nearby returns spots within radiusKm of a point, closest first.
// Unauthenticated callers only see spots at REVIEW or above.
func (s *Service) Nearby(ctx context.Context, lat, lng, radiusKm float64, stageFilter, categoryFilter string, authenticated bool) ([]NearbySpot, error) {
	if !geo.ValidCoords(lat, lng) {
		return nil, fmt.Errorf("%w: coordinates out of range", ErrInvalidInput)
	}
	rows, err := s.db.Query(ctx, `
		SELECT id, name, category, description, stage, confidence_score,
		       ST_Y(location::geometry), ST_X(location::geometry),
		       COALESCE(country,''), COALESCE(city,''), COALESCE(address,''),
		       is_hot, hot_until, last_activity_at, created_by, created_at,
		       ST_Distance(location, ST_SetSRID(ST_MakePoint($1,$2), 4326)::geography)
		FROM spots
		WHERE ST_DWithin(location, ST_SetSRID(ST_MakePoint($1,$2), 4326)::geography, $3)
		  AND ($4 = '' OR stage = $4)
		  AND ($5 = '' OR category = $5)
		  AND ($6 OR stage IN ('REVIEW','VERIFIED','LEGENDARY'))
		ORDER BY 17
	`, lng, lat, radiusKm*1000, stageFilter, categoryFilter, authenticated)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	now := s.now()
	var out []NearbySpot
	for rows.Next() {
		var n NearbySpot
		if err := rows.Scan(&n.ID, &n.Name, &n.Category, &n.Description, &n.Stage, &n.ConfidenceScore,
			&n.Lat, &n.Lng, &n.Country, &n.City, &n.Address,
			&n.IsHot, &n.HotUntil, &n.LastActivityAt, &n.CreatedBy, &n.CreatedAt, &n.DistanceM); err != nil {
			return nil, err
		}
		n.IsHot = hotNow(n.IsHot, n.HotUntil, now)
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *Service) Get(ctx context.Context, id string) (Spot, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, name, category, description, stage, confidence_score,
		       ST_Y(location::geometry), ST_X(location::geometry),
		       COALESCE(country,''), COALESCE(city,''), COALESCE(address,''),
		       is_hot, hot_until, last_activity_at, created_by, created_at
		FROM spots WHERE id=$1
	`, id)
	var sp Spot
	if err := row.Scan(&sp.ID, &sp.Name, &sp.Category, &sp.Description, &sp.Stage, &sp.ConfidenceScore,
		&sp.Lat, &sp.Lng, &sp.Country, &sp.City, &sp.Address,
		&sp.IsHot, &sp.HotUntil, &sp.LastActivityAt, &sp.CreatedBy, &sp.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Spot{}, validation.ErrSpotNotFound
		}
		return Spot{}, err
	}
	sp.IsHot = hotNow(sp.IsHot, sp.HotUntil, s.now())
	return sp, nil
}

func (s *Service) History(ctx context.Context, spotID string) ([]StatusEntry, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, spot_id, stage, score, reason, created_at
		FROM spot_status_history WHERE spot_id=$1
		ORDER BY created_at
	`, spotID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StatusEntry
	for rows.Next() {
		var e StatusEntry
		if err := rows.Scan(&e.ID, &e.SpotID, &e.Stage, &e.Score, &e.Reason, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// hotNow decays the hot flag by comparison at read time; no sweep runs.
func hotNow(isHot bool, until *time.Time, now time.Time) bool {
	return isHot && until != nil && until.After(now)
}
