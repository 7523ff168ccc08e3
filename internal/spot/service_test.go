package spot

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cristiansk8/TheTrickest-sub001/internal/validation"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
)

const (
	plazaLat = 41.3851
	plazaLng = 2.1734
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

func expectBoxQuery(mock pgxmock.PgxPoolIface, lat, lng float64, rows *pgxmock.Rows) {
	mock.ExpectQuery(`SELECT id, name, category, stage, ST_Y`).
		WithArgs(lat-duplicateBoxDelta, lat+duplicateBoxDelta, lng-duplicateBoxDelta, lng+duplicateBoxDelta).
		WillReturnRows(rows)
}

func boxColumns() *pgxmock.Rows {
	return pgxmock.NewRows([]string{"id", "name", "category", "stage", "lat", "lng"})
}

func TestRegisterHappyPath(t *testing.T) {
	mock := newMockPool(t)

	expectBoxQuery(mock, plazaLat, plazaLng, boxColumns())
	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO spots`).
		WithArgs(pgxmock.AnyArg(), "Plaza Ledge", "spot", "waxed granite ledges", plazaLng, plazaLat, "ES", "Barcelona", "", "creator-1").
		WillReturnRows(pgxmock.NewRows([]string{"created_at", "last_activity_at"}).AddRow(time.Now(), time.Now()))
	mock.ExpectQuery(`SELECT COALESCE`).
		WithArgs("creator-1").
		WillReturnRows(pgxmock.NewRows([]string{"coalesce"}).AddRow(1.0))
	mock.ExpectQuery(`INSERT INTO spot_validations`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), "creator-1", "GPS_PROXIMITY", 1.0, plazaLng, plazaLat, 0.0).
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(time.Now()))
	mock.ExpectQuery(`INSERT INTO user_reputations`).
		WithArgs("creator-1", 2).
		WillReturnRows(pgxmock.NewRows([]string{"reputation_score", "level", "validation_weight", "validations_given", "spots_verified", "created_at", "updated_at"}).
			AddRow(2, "NEW", 1.0, 1, 0, time.Now(), time.Now()))
	// creator rows never score: the ledger fold sees nothing
	mock.ExpectQuery(`SELECT user_id, weight, method`).
		WithArgs(pgxmock.AnyArg(), "creator-1").
		WillReturnRows(pgxmock.NewRows([]string{"user_id", "weight", "method"}))
	mock.ExpectQuery(`SELECT COUNT\(DISTINCT user_id\) FROM spot_photos`).
		WithArgs(pgxmock.AnyArg(), "creator-1").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec(`UPDATE spots SET confidence_score`).
		WithArgs(pgxmock.AnyArg(), 0, "GHOST").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`INSERT INTO spot_status_history`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), "GHOST", 0, "registered").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	svc := NewService(mock)
	sp, err := svc.Register(context.Background(), "creator-1", RegisterRequest{
		Name:        "Plaza Ledge",
		Category:    "spot",
		Lat:         plazaLat,
		Lng:         plazaLng,
		Description: "waxed granite ledges",
		Country:     "ES",
		City:        "Barcelona",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if sp.Stage != "GHOST" || sp.ConfidenceScore != 0 {
		t.Fatalf("expected fresh GHOST spot, got %s/%d", sp.Stage, sp.ConfidenceScore)
	}
	if sp.ID == "" {
		t.Fatalf("expected generated id")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRegisterWithPhotosUsesPhotoMethod(t *testing.T) {
	mock := newMockPool(t)

	expectBoxQuery(mock, plazaLat, plazaLng, boxColumns())
	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO spots`).
		WithArgs(pgxmock.AnyArg(), "Curved Rail", "spot", "", plazaLng, plazaLat, "", "", "", "creator-1").
		WillReturnRows(pgxmock.NewRows([]string{"created_at", "last_activity_at"}).AddRow(time.Now(), time.Now()))
	mock.ExpectQuery(`SELECT COALESCE`).
		WithArgs("creator-1").
		WillReturnRows(pgxmock.NewRows([]string{"coalesce"}).AddRow(1.0))
	mock.ExpectQuery(`INSERT INTO spot_validations`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), "creator-1", "PHOTO_UPLOAD", 1.0, plazaLng, plazaLat, 0.0).
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(time.Now()))
	mock.ExpectQuery(`INSERT INTO spot_photos`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), "creator-1", "https://cdn.example/rail.jpg", false, (*float64)(nil), (*float64)(nil)).
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(time.Now()))
	mock.ExpectQuery(`INSERT INTO user_reputations`).
		WithArgs("creator-1", 5).
		WillReturnRows(pgxmock.NewRows([]string{"reputation_score", "level", "validation_weight", "validations_given", "spots_verified", "created_at", "updated_at"}).
			AddRow(5, "NEW", 1.0, 1, 0, time.Now(), time.Now()))
	mock.ExpectQuery(`SELECT user_id, weight, method`).
		WithArgs(pgxmock.AnyArg(), "creator-1").
		WillReturnRows(pgxmock.NewRows([]string{"user_id", "weight", "method"}))
	mock.ExpectQuery(`SELECT COUNT\(DISTINCT user_id\) FROM spot_photos`).
		WithArgs(pgxmock.AnyArg(), "creator-1").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec(`UPDATE spots SET confidence_score`).
		WithArgs(pgxmock.AnyArg(), 0, "GHOST").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`INSERT INTO spot_status_history`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), "GHOST", 0, "registered").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	svc := NewService(mock)
	_, err := svc.Register(context.Background(), "creator-1", RegisterRequest{
		Name:     "Curved Rail",
		Category: "spot",
		Lat:      plazaLat,
		Lng:      plazaLng,
		Photos:   []string{"https://cdn.example/rail.jpg"},
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRegisterNearbyConflict(t *testing.T) {
	mock := newMockPool(t)

	expectBoxQuery(mock, plazaLat, plazaLng, boxColumns().
		AddRow("other-1", "Old Ledge", "spot", "VERIFIED", plazaLat+0.0005, plazaLng))

	svc := NewService(mock)
	_, err := svc.Register(context.Background(), "creator-1", RegisterRequest{
		Name:     "Plaza Ledge",
		Category: "spot",
		Lat:      plazaLat,
		Lng:      plazaLng,
	})

	var conflict *RegistrationConflict
	if !errors.As(err, &conflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if conflict.Code != CodeNearbySpotsFound {
		t.Fatalf("expected NEARBY_SPOTS_FOUND, got %s", conflict.Code)
	}
	if len(conflict.Nearby) != 1 || conflict.Nearby[0].DistanceM <= 0 {
		t.Fatalf("expected one neighbor with distance, got %+v", conflict.Nearby)
	}
}

func TestRegisterForceProceedBypassesSoftConflict(t *testing.T) {
	mock := newMockPool(t)

	expectBoxQuery(mock, plazaLat, plazaLng, boxColumns().
		AddRow("other-1", "Old Ledge", "spot", "VERIFIED", plazaLat+0.0005, plazaLng))
	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO spots`).
		WithArgs(pgxmock.AnyArg(), "Plaza Ledge", "spot", "", plazaLng, plazaLat, "", "", "", "creator-1").
		WillReturnRows(pgxmock.NewRows([]string{"created_at", "last_activity_at"}).AddRow(time.Now(), time.Now()))
	mock.ExpectQuery(`SELECT COALESCE`).
		WithArgs("creator-1").
		WillReturnRows(pgxmock.NewRows([]string{"coalesce"}).AddRow(1.0))
	mock.ExpectQuery(`INSERT INTO spot_validations`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), "creator-1", "GPS_PROXIMITY", 1.0, plazaLng, plazaLat, 0.0).
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(time.Now()))
	mock.ExpectQuery(`INSERT INTO user_reputations`).
		WithArgs("creator-1", 2).
		WillReturnRows(pgxmock.NewRows([]string{"reputation_score", "level", "validation_weight", "validations_given", "spots_verified", "created_at", "updated_at"}).
			AddRow(2, "NEW", 1.0, 1, 0, time.Now(), time.Now()))
	mock.ExpectQuery(`SELECT user_id, weight, method`).
		WithArgs(pgxmock.AnyArg(), "creator-1").
		WillReturnRows(pgxmock.NewRows([]string{"user_id", "weight", "method"}))
	mock.ExpectQuery(`SELECT COUNT\(DISTINCT user_id\) FROM spot_photos`).
		WithArgs(pgxmock.AnyArg(), "creator-1").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec(`UPDATE spots SET confidence_score`).
		WithArgs(pgxmock.AnyArg(), 0, "GHOST").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`INSERT INTO spot_status_history`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), "GHOST", 0, "registered").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	svc := NewService(mock)
	_, err := svc.Register(context.Background(), "creator-1", RegisterRequest{
		Name:         "Plaza Ledge",
		Category:     "spot",
		Lat:          plazaLat,
		Lng:          plazaLng,
		ForceProceed: true,
	})
	if err != nil {
		t.Fatalf("register with force_proceed: %v", err)
	}
}

func TestRegisterTooManyNearbyIgnoresForce(t *testing.T) {
	mock := newMockPool(t)

	rows := boxColumns()
	for _, id := range []string{"a", "b", "c", "d"} {
		rows.AddRow(id, "Spot "+id, "spot", "GHOST", plazaLat+0.0002, plazaLng)
	}
	expectBoxQuery(mock, plazaLat, plazaLng, rows)

	svc := NewService(mock)
	_, err := svc.Register(context.Background(), "creator-1", RegisterRequest{
		Name:         "Plaza Ledge",
		Category:     "spot",
		Lat:          plazaLat,
		Lng:          plazaLng,
		ForceProceed: true,
	})

	var conflict *RegistrationConflict
	if !errors.As(err, &conflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if conflict.Code != CodeTooManyNearby {
		t.Fatalf("expected TOO_MANY_NEARBY, got %s", conflict.Code)
	}
	if len(conflict.Nearby) != 4 {
		t.Fatalf("expected 4 neighbors, got %d", len(conflict.Nearby))
	}
}

func TestRegisterValidation(t *testing.T) {
	svc := NewService(newMockPool(t))

	cases := []RegisterRequest{
		{Category: "spot", Lat: plazaLat, Lng: plazaLng},
		{Name: "X", Category: "mall", Lat: plazaLat, Lng: plazaLng},
		{Name: "X", Category: "spot", Lat: 91, Lng: plazaLng},
		{Name: "X", Category: "spot", Lat: plazaLat, Lng: 181},
	}
	for i, req := range cases {
		if _, err := svc.Register(context.Background(), "creator-1", req); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("case %d: expected invalid input, got %v", i, err)
		}
	}
}

func nearbyColumns() *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "name", "category", "description", "stage", "confidence_score",
		"lat", "lng", "country", "city", "address",
		"is_hot", "hot_until", "last_activity_at", "created_by", "created_at",
		"distance_m",
	})
}

func TestNearbyOrderingAndHotDecay(t *testing.T) {
	mock := newMockPool(t)

	hotUntil := time.Now().Add(time.Hour)
	expired := time.Now().Add(-time.Hour)
	mock.ExpectQuery(`SELECT id, name, category, description, stage, confidence_score`).
		WithArgs(plazaLng, plazaLat, 5000.0, "", "", true).
		WillReturnRows(nearbyColumns().
			AddRow("s-1", "Plaza Ledge", "spot", "", "VERIFIED", 60, plazaLat, plazaLng, "ES", "Barcelona", "", true, &hotUntil, time.Now(), "creator-1", time.Now(), 120.0).
			AddRow("s-2", "Dusty Rail", "spot", "", "GHOST", 4, plazaLat, plazaLng, "ES", "Barcelona", "", true, &expired, time.Now(), "creator-2", time.Now(), 800.0))

	svc := NewService(mock)
	spots, err := svc.Nearby(context.Background(), plazaLat, plazaLng, 5, "", "", true)
	if err != nil {
		t.Fatalf("nearby: %v", err)
	}
	if len(spots) != 2 {
		t.Fatalf("expected 2 spots, got %d", len(spots))
	}
	if !spots[0].IsHot {
		t.Fatalf("expected first spot to still be hot")
	}
	if spots[1].IsHot {
		t.Fatalf("expected expired hot flag to decay at read time")
	}
	if spots[0].DistanceM >= spots[1].DistanceM {
		t.Fatalf("expected closest-first ordering")
	}
}

func TestNearbyAnonymousHidesGhosts(t *testing.T) {
	mock := newMockPool(t)

	// visibility filtering happens in SQL; the anonymous flag must reach it
	mock.ExpectQuery(`SELECT id, name, category, description, stage, confidence_score`).
		WithArgs(plazaLng, plazaLat, 2000.0, "", "park", false).
		WillReturnRows(nearbyColumns())

	svc := NewService(mock)
	spots, err := svc.Nearby(context.Background(), plazaLat, plazaLng, 2, "", "park", false)
	if err != nil {
		t.Fatalf("nearby: %v", err)
	}
	if len(spots) != 0 {
		t.Fatalf("expected no spots, got %d", len(spots))
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestNearbyBadCoords(t *testing.T) {
	svc := NewService(newMockPool(t))
	if _, err := svc.Nearby(context.Background(), 91, 0, 5, "", "", true); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestGetNotFound(t *testing.T) {
	mock := newMockPool(t)
	mock.ExpectQuery(`SELECT id, name, category, description, stage, confidence_score`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	svc := NewService(mock)
	if _, err := svc.Get(context.Background(), "missing"); err != validation.ErrSpotNotFound {
		t.Fatalf("expected ErrSpotNotFound, got %v", err)
	}
}

func TestHistory(t *testing.T) {
	mock := newMockPool(t)
	mock.ExpectQuery(`SELECT id, spot_id, stage, score, reason, created_at`).
		WithArgs("spot-1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "spot_id", "stage", "score", "reason", "created_at"}).
			AddRow("h-1", "spot-1", "GHOST", 0, "registered", time.Now()).
			AddRow("h-2", "spot-1", "REVIEW", 17, "validated via GPS_PROXIMITY", time.Now()))

	svc := NewService(mock)
	entries, err := svc.History(context.Background(), "spot-1")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(entries) != 2 || entries[1].Stage != "REVIEW" {
		t.Fatalf("unexpected history %+v", entries)
	}
}

func TestHotNow(t *testing.T) {
	now := time.Now()
	future := now.Add(time.Hour)
	past := now.Add(-time.Hour)

	if !hotNow(true, &future, now) {
		t.Fatalf("expected hot")
	}
	if hotNow(true, &past, now) {
		t.Fatalf("expected decayed")
	}
	if hotNow(false, &future, now) {
		t.Fatalf("expected cold")
	}
	if hotNow(true, nil, now) {
		t.Fatalf("expected cold without deadline")
	}
}
