package reputation

import (
	"context"

	"github.com/cristiansk8/TheTrickest-sub001/internal/db"
)

type Service struct {
	db db.Querier
}

func NewService(db db.Querier) *Service {
	return &Service{db: db}
}

func (s *Service) Get(ctx context.Context, userID string) (UserReputation, error) {
	row := s.db.QueryRow(ctx, `
		SELECT user_id, reputation_score, level, validation_weight, validations_given, spots_verified, created_at, updated_at
		FROM user_reputations WHERE user_id=$1
	`, userID)
	var rep UserReputation
	if err := row.Scan(&rep.UserID, &rep.ReputationScore, &rep.Level, &rep.ValidationWeight,
		&rep.ValidationsGiven, &rep.SpotsVerified, &rep.CreatedAt, &rep.UpdatedAt); err != nil {
		return UserReputation{}, err
	}
	return rep, nil
}

func (s *Service) Leaderboard(ctx context.Context, limit int) ([]UserReputation, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	rows, err := s.db.Query(ctx, `
		SELECT user_id, reputation_score, level, validation_weight, validations_given, spots_verified, created_at, updated_at
		FROM user_reputations
		ORDER BY reputation_score DESC, validations_given DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []UserReputation
	for rows.Next() {
		var rep UserReputation
		if err := rows.Scan(&rep.UserID, &rep.ReputationScore, &rep.Level, &rep.ValidationWeight,
			&rep.ValidationsGiven, &rep.SpotsVerified, &rep.CreatedAt, &rep.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, rep)
	}
	return out, nil
}

// Apply credits one successful validation inside the caller's transaction:
// upsert the record, add the method's points and bump the counter, then
// re-derive level and weight. The weight never decreases.
func Apply(ctx context.Context, q db.Querier, userID string, points int, policy WeightPolicy) (UserReputation, error) {
	if policy == nil {
		policy = DefaultWeightPolicy
	}

	var rep UserReputation
	rep.UserID = userID
	row := q.QueryRow(ctx, `
		INSERT INTO user_reputations (user_id, reputation_score, level, validation_weight, validations_given, spots_verified)
		VALUES ($1, $2, 'NEW', 1, 1, 0)
		ON CONFLICT (user_id) DO UPDATE
		SET reputation_score = user_reputations.reputation_score + $2,
		    validations_given = user_reputations.validations_given + 1,
		    updated_at = now()
		RETURNING reputation_score, level, validation_weight, validations_given, spots_verified, created_at, updated_at
	`, userID, points)
	if err := row.Scan(&rep.ReputationScore, &rep.Level, &rep.ValidationWeight,
		&rep.ValidationsGiven, &rep.SpotsVerified, &rep.CreatedAt, &rep.UpdatedAt); err != nil {
		return UserReputation{}, err
	}

	level := LevelForScore(rep.ReputationScore)
	weight := policy(rep.ReputationScore, level)
	if weight < rep.ValidationWeight {
		weight = rep.ValidationWeight
	}
	if level != rep.Level || weight != rep.ValidationWeight {
		if _, err := q.Exec(ctx, `
			UPDATE user_reputations SET level=$2, validation_weight=$3, updated_at=now() WHERE user_id=$1
		`, userID, level, weight); err != nil {
			return UserReputation{}, err
		}
		rep.Level = level
		rep.ValidationWeight = weight
	}
	return rep, nil
}

// CurrentWeight returns the stored validation weight for a user, or the
// baseline 1 when the user has no reputation record yet.
func CurrentWeight(ctx context.Context, q db.Querier, userID string) (float64, error) {
	var weight float64
	err := q.QueryRow(ctx, `
		SELECT COALESCE((SELECT validation_weight FROM user_reputations WHERE user_id=$1), 1)
	`, userID).Scan(&weight)
	if err != nil {
		return 0, err
	}
	return weight, nil
}
