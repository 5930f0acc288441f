package api_test

import (
	"database/sql"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lox/adelaideauditor/internal/api"
	"github.com/lox/adelaideauditor/internal/models"
	"github.com/lox/adelaideauditor/internal/store"

	_ "modernc.org/sqlite"
)

func setupTestStore(t *testing.T) (*store.Store, *time.Location) {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	// Each pool connection to :memory: sees its own empty database.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	loc, err := time.LoadLocation("Australia/Adelaide")
	if err != nil {
		t.Fatal(err)
	}
	s := store.New(db, loc)
	if err := s.Migrate(); err != nil {
		t.Fatal(err)
	}
	return s, loc
}

func nf(v float64) sql.NullFloat64 {
	return sql.NullFloat64{Float64: v, Valid: true}
}

func seedGradedDay(t *testing.T, s *store.Store, day time.Time) {
	t.Helper()
	if err := s.UpsertStation(models.Station{StationID: "west-terrace", Name: "West Terrace", Active: true}); err != nil {
		t.Fatal(err)
	}
	if err := s.InsertForecast(models.Forecast{
		CaptureDate: day,
		StationID:   "west-terrace",
		SourceID:    "open-meteo",
		CapturedAt:  day.Add(9 * time.Hour),
		TempMax:     nf(25),
		TempMin:     nf(10),
		RainMin:     nf(0),
		RainMax:     nf(0),
	}); err != nil {
		t.Fatal(err)
	}
	if err := s.UpsertActual(models.Actual{
		ActualDate: day,
		StationID:  "west-terrace",
		TempMax:    nf(24.5),
		TempMin:    nf(9),
		Rain:       nf(0),
	}); err != nil {
		t.Fatal(err)
	}
}

func TestHealthEndpoint(t *testing.T) {
	t.Parallel()
	s, loc := setupTestStore(t)
	srv := api.NewServer(s, "8080", loc, 30, 1.0)

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != 200 {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode health body: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status = %v", body["status"])
	}
	if body["schema_version"] == nil {
		t.Error("expected schema_version in health response")
	}
}

func TestLeaderboardEndpoint(t *testing.T) {
	t.Parallel()
	s, loc := setupTestStore(t)
	seedGradedDay(t, s, time.Date(2025, 7, 14, 0, 0, 0, 0, time.UTC))

	srv := api.NewServer(s, "8080", loc, 30, 1.0)
	req := httptest.NewRequest("GET", "/api/leaderboard?window=30&as_of=2025-07-20", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != 200 {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var body struct {
		AsOf     string `json:"as_of"`
		Rankings []struct {
			Rank       int      `json:"rank"`
			SourceID   string   `json:"source_id"`
			MaxTempMAE *float64 `json:"max_temp_mae"`
		} `json:"rankings"`
		PerfectDays []struct {
			Date     string `json:"date"`
			SourceID string `json:"source_id"`
		} `json:"perfect_days"`
		Coverage []struct {
			SourceID      string `json:"source_id"`
			ForecastCount int    `json:"forecast_count"`
			GradedCount   int    `json:"graded_count"`
		} `json:"coverage"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode leaderboard: %v", err)
	}

	if body.AsOf != "2025-07-20" {
		t.Errorf("as_of = %q", body.AsOf)
	}
	if len(body.Rankings) != 1 || body.Rankings[0].SourceID != "open-meteo" || body.Rankings[0].Rank != 1 {
		t.Fatalf("rankings = %+v", body.Rankings)
	}
	if mae := body.Rankings[0].MaxTempMAE; mae == nil || *mae != 0.5 {
		t.Errorf("max_temp_mae = %v, want 0.5", mae)
	}
	// Forecast error 0.5 within tolerance and rain in range: perfect day.
	if len(body.PerfectDays) != 1 || body.PerfectDays[0].Date != "2025-07-14" {
		t.Errorf("perfect_days = %+v", body.PerfectDays)
	}
	if len(body.Coverage) != 1 || body.Coverage[0].ForecastCount != 1 || body.Coverage[0].GradedCount != 1 {
		t.Errorf("coverage = %+v", body.Coverage)
	}
}

func TestLeaderboardEndpoint_BadParams(t *testing.T) {
	t.Parallel()
	s, loc := setupTestStore(t)
	srv := api.NewServer(s, "8080", loc, 30, 1.0)

	for _, url := range []string{
		"/api/leaderboard?window=0",
		"/api/leaderboard?window=abc",
		"/api/leaderboard?as_of=19-07-2025",
	} {
		req := httptest.NewRequest("GET", url, nil)
		w := httptest.NewRecorder()
		srv.Handler().ServeHTTP(w, req)
		if w.Code != 400 {
			t.Errorf("%s: expected 400, got %d", url, w.Code)
		}
	}
}

func TestHistoryEndpoint(t *testing.T) {
	t.Parallel()
	s, loc := setupTestStore(t)
	seedGradedDay(t, s, time.Date(2025, 7, 14, 0, 0, 0, 0, time.UTC))

	// Observation with no matching forecast still shows as its own row.
	if err := s.UpsertActual(models.Actual{
		ActualDate: time.Date(2025, 7, 13, 0, 0, 0, 0, time.UTC),
		StationID:  "west-terrace",
		TempMax:    nf(18),
	}); err != nil {
		t.Fatal(err)
	}

	srv := api.NewServer(s, "8080", loc, 30, 1.0)
	req := httptest.NewRequest("GET", "/api/history?start=2025-07-10&end=2025-07-20", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != 200 {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var rows []struct {
		Date            string   `json:"date"`
		SourceID        *string  `json:"source_id"`
		ForecastTempMax *float64 `json:"forecast_max_temp"`
		ActualTempMax   *float64 `json:"actual_max_temp"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &rows); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("%d rows, want 2", len(rows))
	}

	actualOnly := rows[0]
	if actualOnly.Date != "2025-07-13" || actualOnly.SourceID != nil || actualOnly.ForecastTempMax != nil {
		t.Errorf("actual-only row = %+v", actualOnly)
	}
	joined := rows[1]
	if joined.SourceID == nil || *joined.SourceID != "open-meteo" {
		t.Errorf("joined row source = %v", joined.SourceID)
	}
	if joined.ForecastTempMax == nil || *joined.ForecastTempMax != 25 || joined.ActualTempMax == nil || *joined.ActualTempMax != 24.5 {
		t.Errorf("joined row temps = %+v", joined)
	}
}

func TestStationsEndpoint(t *testing.T) {
	t.Parallel()
	s, loc := setupTestStore(t)
	if err := s.UpsertStation(models.Station{StationID: "mount-lofty", Name: "Mount Lofty", Latitude: -34.98, Longitude: 138.71, Active: true}); err != nil {
		t.Fatal(err)
	}
	if err := s.UpsertStation(models.Station{StationID: "retired", Name: "Retired", Active: false}); err != nil {
		t.Fatal(err)
	}

	srv := api.NewServer(s, "8080", loc, 30, 1.0)
	req := httptest.NewRequest("GET", "/api/stations", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != 200 {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var stations []struct {
		StationID string `json:"station_id"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &stations); err != nil {
		t.Fatalf("decode stations: %v", err)
	}
	if len(stations) != 1 || stations[0].StationID != "mount-lofty" {
		t.Errorf("stations = %+v", stations)
	}
}
