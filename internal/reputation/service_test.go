package reputation

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
)

func newMockPool(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	t.Cleanup(mock.Close)
	return mock
}

func repColumns() *pgxmock.Rows {
	return pgxmock.NewRows([]string{"reputation_score", "level", "validation_weight", "validations_given", "spots_verified", "created_at", "updated_at"})
}

func TestApplyFirstValidation(t *testing.T) {
	mock := newMockPool(t)
	mock.ExpectQuery(`INSERT INTO user_reputations`).
		WithArgs("user-1", 2).
		WillReturnRows(repColumns().AddRow(2, "NEW", 1.0, 1, 0, time.Now(), time.Now()))

	rep, err := Apply(context.Background(), mock, "user-1", 2, nil)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if rep.ReputationScore != 2 || rep.Level != LevelNew || rep.ValidationWeight != 1 {
		t.Fatalf("unexpected reputation %+v", rep)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestApplyLevelPromotion(t *testing.T) {
	mock := newMockPool(t)
	// stored level lags the score after crossing 20; Apply rewrites it
	mock.ExpectQuery(`INSERT INTO user_reputations`).
		WithArgs("user-1", 10).
		WillReturnRows(repColumns().AddRow(25, "NEW", 1.0, 6, 0, time.Now(), time.Now()))
	mock.ExpectExec(`UPDATE user_reputations SET level`).
		WithArgs("user-1", LevelLocal, 1.0).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	rep, err := Apply(context.Background(), mock, "user-1", 10, nil)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if rep.Level != LevelLocal {
		t.Fatalf("expected LOCAL, got %s", rep.Level)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestApplyWeightNeverDecreases(t *testing.T) {
	mock := newMockPool(t)
	// a previously granted 1.5 weight survives a policy that would return 1
	mock.ExpectQuery(`INSERT INTO user_reputations`).
		WithArgs("user-1", 2).
		WillReturnRows(repColumns().AddRow(150, "SCOUT", 1.5, 40, 3, time.Now(), time.Now()))

	rep, err := Apply(context.Background(), mock, "user-1", 2, DefaultWeightPolicy)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if rep.ValidationWeight != 1.5 {
		t.Fatalf("expected weight 1.5, got %v", rep.ValidationWeight)
	}
}

func TestCurrentWeightDefaultsToOne(t *testing.T) {
	mock := newMockPool(t)
	mock.ExpectQuery(`SELECT COALESCE`).
		WithArgs("nobody").
		WillReturnRows(pgxmock.NewRows([]string{"coalesce"}).AddRow(1.0))

	weight, err := CurrentWeight(context.Background(), mock, "nobody")
	if err != nil {
		t.Fatalf("current weight: %v", err)
	}
	if weight != 1 {
		t.Fatalf("expected baseline 1, got %v", weight)
	}
}

func TestLevelForScore(t *testing.T) {
	cases := map[int]string{
		0:   LevelNew,
		19:  LevelNew,
		20:  LevelLocal,
		99:  LevelLocal,
		100: LevelScout,
		499: LevelScout,
		500: LevelLegend,
	}
	for score, want := range cases {
		if got := LevelForScore(score); got != want {
			t.Fatalf("score %d: expected %s, got %s", score, want, got)
		}
	}
}

func TestGetAndLeaderboard(t *testing.T) {
	mock := newMockPool(t)
	svc := NewService(mock)

	mock.ExpectQuery(`SELECT user_id, reputation_score, level`).
		WithArgs("user-1").
		WillReturnRows(pgxmock.NewRows([]string{"user_id", "reputation_score", "level", "validation_weight", "validations_given", "spots_verified", "created_at", "updated_at"}).
			AddRow("user-1", 42, "LOCAL", 1.0, 12, 2, time.Now(), time.Now()))

	rep, err := svc.Get(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rep.ReputationScore != 42 || rep.Level != LevelLocal {
		t.Fatalf("unexpected reputation %+v", rep)
	}

	mock.ExpectQuery(`SELECT user_id, reputation_score, level`).
		WithArgs(20).
		WillReturnRows(pgxmock.NewRows([]string{"user_id", "reputation_score", "level", "validation_weight", "validations_given", "spots_verified", "created_at", "updated_at"}).
			AddRow("user-1", 42, "LOCAL", 1.0, 12, 2, time.Now(), time.Now()).
			AddRow("user-2", 7, "NEW", 1.0, 3, 0, time.Now(), time.Now()))

	// limit 0 falls back to the default page size
	board, err := svc.Leaderboard(context.Background(), 0)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if len(board) != 2 || board[0].UserID != "user-1" {
		t.Fatalf("unexpected leaderboard %+v", board)
	}
}

func TestReputationRoutes(t *testing.T) {
	mock := newMockPool(t)

	app := fiber.New()
	RegisterRoutes(app.Group("/reputation"), NewService(mock))

	mock.ExpectQuery(`SELECT user_id, reputation_score, level`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	req := httptest.NewRequest("GET", "/reputation/missing", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("test request: %v", err)
	}
	if resp.StatusCode != 404 {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}

	mock.ExpectQuery(`SELECT user_id, reputation_score, level`).
		WithArgs(20).
		WillReturnRows(pgxmock.NewRows([]string{"user_id", "reputation_score", "level", "validation_weight", "validations_given", "spots_verified", "created_at", "updated_at"}))

	req = httptest.NewRequest("GET", "/reputation/leaderboard", nil)
	resp, err = app.Test(req)
	if err != nil {
		t.Fatalf("test request: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}
