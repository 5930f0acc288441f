// Package api serves the read-only query surface the dashboard consumes.
// Nothing here mutates the store; writes happen only in the capture
// pipeline.
package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lox/adelaideauditor/internal/grading"
	"github.com/lox/adelaideauditor/internal/leaderboard"
	"github.com/lox/adelaideauditor/internal/models"
	"github.com/lox/adelaideauditor/internal/store"
)

type Server struct {
	store         *store.Store
	port          string
	loc           *time.Location
	windowDays    int
	tempTolerance float64
}

func NewServer(st *store.Store, port string, loc *time.Location, windowDays int, tempTolerance float64) *Server {
	if windowDays <= 0 {
		windowDays = leaderboard.DefaultWindowDays
	}
	if tempTolerance <= 0 {
		tempTolerance = leaderboard.DefaultPerfectTempTolerance
	}
	return &Server{
		store:         st,
		port:          port,
		loc:           loc,
		windowDays:    windowDays,
		tempTolerance: tempTolerance,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/leaderboard", s.handleLeaderboard)
	mux.HandleFunc("/api/history", s.handleHistory)
	mux.HandleFunc("/api/stations", s.handleStations)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:    ":" + s.port,
		Handler: s.Handler(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	log.Printf("api: listening on :%s", s.port)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	version, err := s.store.MigrationVersion()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{
		"status":         "ok",
		"schema_version": version,
	})
}

// handleLeaderboard computes rankings on demand. Grading is pure and the
// window is small, so recomputing per request beats caching a snapshot
// that goes stale the moment an actual lands.
func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	windowDays := s.windowDays
	if v := r.URL.Query().Get("window"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "window must be a positive integer", http.StatusBadRequest)
			return
		}
		windowDays = n
	}

	asOf := models.CivilDate(time.Now(), s.loc)
	if v := r.URL.Query().Get("as_of"); v != "" {
		d, err := time.Parse("2006-01-02", v)
		if err != nil {
			http.Error(w, "as_of must be YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		asOf = d
	}

	lb, err := s.computeLeaderboard(windowDays, asOf)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, lb)
}

func (s *Server) computeLeaderboard(windowDays int, asOf time.Time) (leaderboard.Leaderboard, error) {
	start := asOf.AddDate(0, 0, -windowDays)
	forecasts, err := s.store.QueryForecasts(start, asOf, "", "")
	if err != nil {
		return leaderboard.Leaderboard{}, fmt.Errorf("query forecasts: %w", err)
	}
	actuals, err := s.store.QueryActuals(start, asOf)
	if err != nil {
		return leaderboard.Leaderboard{}, fmt.Errorf("query actuals: %w", err)
	}
	graded := grading.Grade(forecasts, actuals)
	return leaderboard.Rank(graded, forecasts, windowDays, asOf, s.tempTolerance), nil
}

// historyRow is the JSON shape of one flat history row. Every weather
// field is independently nullable; a row that only has actuals carries a
// null source_id.
type historyRow struct {
	Date            string   `json:"date"`
	StationID       string   `json:"station_id"`
	SourceID        *string  `json:"source_id"`
	ForecastTempMax *float64 `json:"forecast_max_temp"`
	ForecastTempMin *float64 `json:"forecast_min_temp"`
	ForecastRainMin *float64 `json:"forecast_rain_min"`
	ForecastRainMax *float64 `json:"forecast_rain_max"`
	ActualTempMax   *float64 `json:"actual_max_temp"`
	ActualTempMin   *float64 `json:"actual_min_temp"`
	ActualRain      *float64 `json:"actual_rain"`
	CapturedAt      *string  `json:"captured_at"`
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	end := models.CivilDate(time.Now(), s.loc)
	start := end.AddDate(0, 0, -s.windowDays)
	var err error
	if v := r.URL.Query().Get("start"); v != "" {
		if start, err = time.Parse("2006-01-02", v); err != nil {
			http.Error(w, "start must be YYYY-MM-DD", http.StatusBadRequest)
			return
		}
	}
	if v := r.URL.Query().Get("end"); v != "" {
		if end, err = time.Parse("2006-01-02", v); err != nil {
			http.Error(w, "end must be YYYY-MM-DD", http.StatusBadRequest)
			return
		}
	}

	rows, err := s.store.HistoryRows(start, end)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	out := make([]historyRow, 0, len(rows))
	for _, row := range rows {
		out = append(out, toHistoryJSON(row))
	}
	writeJSON(w, out)
}

func toHistoryJSON(row models.HistoryRow) historyRow {
	h := historyRow{
		Date:            row.Date.Format("2006-01-02"),
		StationID:       row.StationID,
		ForecastTempMax: nullFloat(row.ForecastTempMax),
		ForecastTempMin: nullFloat(row.ForecastTempMin),
		ForecastRainMin: nullFloat(row.ForecastRainMin),
		ForecastRainMax: nullFloat(row.ForecastRainMax),
		ActualTempMax:   nullFloat(row.ActualTempMax),
		ActualTempMin:   nullFloat(row.ActualTempMin),
		ActualRain:      nullFloat(row.ActualRain),
	}
	if row.SourceID.Valid {
		h.SourceID = &row.SourceID.String
	}
	if row.CapturedAt.Valid {
		ts := row.CapturedAt.Time.UTC().Format(time.RFC3339)
		h.CapturedAt = &ts
	}
	return h
}

func (s *Server) handleStations(w http.ResponseWriter, r *http.Request) {
	stations, err := s.store.ActiveStations()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	type stationJSON struct {
		StationID string  `json:"station_id"`
		Name      string  `json:"name"`
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	}
	out := make([]stationJSON, 0, len(stations))
	for _, st := range stations {
		out = append(out, stationJSON{
			StationID: st.StationID,
			Name:      st.Name,
			Latitude:  st.Latitude,
			Longitude: st.Longitude,
		})
	}
	writeJSON(w, out)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
