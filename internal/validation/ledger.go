package validation

import (
	"context"
	"errors"
	"time"

	"github.com/cristiansk8/TheTrickest-sub001/internal/db"
	"github.com/cristiansk8/TheTrickest-sub001/internal/shared/scoring"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// Insert appends one validation row. The UNIQUE(spot_id, user_id, method)
// constraint closes the race where two concurrent requests both pass the
// application-level existence check; a constraint hit surfaces as
// ErrAlreadyValidated.
func Insert(ctx context.Context, q db.Querier, v *Validation) error {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	row := q.QueryRow(ctx, `
		INSERT INTO spot_validations (id, spot_id, user_id, method, weight, location, accuracy_m)
		VALUES ($1,$2,$3,$4,$5, ST_SetSRID(ST_MakePoint($6,$7), 4326)::geography, $8)
		RETURNING created_at
	`, v.ID, v.SpotID, v.UserID, string(v.Method), v.Weight, v.Lng, v.Lat, v.AccuracyM)
	if err := row.Scan(&v.CreatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrAlreadyValidated
		}
		return err
	}
	return nil
}

// InsertPhoto appends one photo record to a spot's evidence.
func InsertPhoto(ctx context.Context, q db.Querier, p Photo) (Photo, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	row := q.QueryRow(ctx, `
		INSERT INTO spot_photos (id, spot_id, user_id, photo_url, is_live, exif_lat, exif_lng)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING created_at
	`, p.ID, p.SpotID, p.UserID, p.URL, p.IsLive, p.ExifLat, p.ExifLng)
	if err := row.Scan(&p.CreatedAt); err != nil {
		return Photo{}, err
	}
	return p, nil
}

// recompute folds the spot's full validation and photo ledger into a fresh
// score. The spot creator's own rows are recorded but never scored, so a
// registration cannot lift its own spot out of GHOST. Always reads the whole
// ledger; there is no incremental path.
func recompute(ctx context.Context, q db.Querier, spotID, createdBy string) (int, error) {
	rows, err := q.Query(ctx, `
		SELECT user_id, weight, method
		FROM spot_validations
		WHERE spot_id=$1 AND user_id<>$2
	`, spotID, createdBy)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	validators := map[string]struct{}{}
	var weighted []scoring.WeightedValidation
	for rows.Next() {
		var userID, method string
		var weight float64
		if err := rows.Scan(&userID, &weight, &method); err != nil {
			return 0, err
		}
		validators[userID] = struct{}{}
		weighted = append(weighted, scoring.WeightedValidation{
			Weight: weight,
			Points: Method(method).Points(),
		})
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}

	var photoUsers int
	if err := q.QueryRow(ctx, `
		SELECT COUNT(DISTINCT user_id) FROM spot_photos WHERE spot_id=$1 AND user_id<>$2
	`, spotID, createdBy).Scan(&photoUsers); err != nil {
		return 0, err
	}

	return scoring.Compute(scoring.Inputs{
		DistinctValidators: len(validators),
		Validations:        weighted,
		DistinctPhotoUsers: photoUsers,
	}), nil
}

// SyncScore recomputes a spot's score from its ledger, persists score and
// stage, and appends one status history entry. Must run inside the same
// transaction as the ledger write it follows.
func SyncScore(ctx context.Context, q db.Querier, spotID, createdBy, reason string) (int, scoring.Stage, error) {
	score, err := recompute(ctx, q, spotID, createdBy)
	if err != nil {
		return 0, "", err
	}
	stage := scoring.StageForScore(score)

	if _, err := q.Exec(ctx, `
		UPDATE spots SET confidence_score=$2, stage=$3, last_activity_at=now() WHERE id=$1
	`, spotID, score, string(stage)); err != nil {
		return 0, "", err
	}

	if _, err := q.Exec(ctx, `
		INSERT INTO spot_status_history (id, spot_id, stage, score, reason)
		VALUES ($1,$2,$3,$4,$5)
	`, uuid.NewString(), spotID, string(stage), score, reason); err != nil {
		return 0, "", err
	}
	return score, stage, nil
}

// HasValidation reports whether the user holds any validation for the spot.
// Gates RecordPhoto: only the creator or a prior validator may attach photos.
func HasValidation(ctx context.Context, q db.Querier, spotID, userID string) (bool, error) {
	var ok bool
	err := q.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM spot_validations WHERE spot_id=$1 AND user_id=$2)
	`, spotID, userID).Scan(&ok)
	return ok, err
}

// markHot flags the spot as hot for the next 24 hours. Readers compare
// hot_until against the clock; nothing sweeps the flag.
func markHot(ctx context.Context, q db.Querier, spotID string, now time.Time) (time.Time, error) {
	until := now.Add(24 * time.Hour)
	_, err := q.Exec(ctx, `
		UPDATE spots SET is_hot=true, hot_until=$2 WHERE id=$1
	`, spotID, until)
	return until, err
}
