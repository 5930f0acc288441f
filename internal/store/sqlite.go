package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lox/adelaideauditor/internal/models"
)

// ErrDuplicateKey is returned when a forecast insert collides with an
// existing (capture_date, station_id, source_id) row. Forecasts are
// write-once: only the first capture in the morning window is meaningful,
// so a collision is a scheduling anomaly, not an update.
var ErrDuplicateKey = errors.New("store: duplicate key")

type Store struct {
	db  *sql.DB
	loc *time.Location
}

func New(db *sql.DB, loc *time.Location) *Store {
	return &Store{db: db, loc: loc}
}

func dateStr(t time.Time) string {
	return t.Format("2006-01-02")
}

func parseDate(s string) (time.Time, error) {
	d, err := time.Parse("2006-01-02", s[:10])
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return d, nil
}

func (s *Store) UpsertStation(st models.Station) error {
	_, err := s.db.Exec(`
		INSERT INTO stations (station_id, name, latitude, longitude, bom_station_number, bom_product_id, bom_place, aac, active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(station_id) DO UPDATE SET
			name = excluded.name,
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			bom_station_number = excluded.bom_station_number,
			bom_product_id = excluded.bom_product_id,
			bom_place = excluded.bom_place,
			aac = excluded.aac,
			active = excluded.active
	`, st.StationID, st.Name, st.Latitude, st.Longitude, st.BOMStationNumber, st.BOMProductID, st.BOMPlace, st.AAC, st.Active)
	return err
}

func (s *Store) ActiveStations() ([]models.Station, error) {
	rows, err := s.db.Query(`
		SELECT station_id, name, latitude, longitude, bom_station_number, bom_product_id, bom_place, aac, active
		FROM stations WHERE active = TRUE ORDER BY station_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stations []models.Station
	for rows.Next() {
		var st models.Station
		if err := rows.Scan(&st.StationID, &st.Name, &st.Latitude, &st.Longitude, &st.BOMStationNumber, &st.BOMProductID, &st.BOMPlace, &st.AAC, &st.Active); err != nil {
			return nil, err
		}
		stations = append(stations, st)
	}
	return stations, rows.Err()
}

// InsertForecast persists a forecast record. There is no update path: if
// the key already exists the insert is rejected with ErrDuplicateKey and
// the stored row is left untouched.
func (s *Store) InsertForecast(f models.Forecast) error {
	res, err := s.db.Exec(`
		INSERT INTO forecasts (capture_date, station_id, source_id, captured_at, temp_max, temp_min, rain_min, rain_max)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(capture_date, station_id, source_id) DO NOTHING
	`, dateStr(f.CaptureDate), f.StationID, f.SourceID, f.CapturedAt.UTC(), f.TempMax, f.TempMin, f.RainMin, f.RainMax)
	if err != nil {
		return fmt.Errorf("insert forecast: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert forecast: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("forecast %s/%s/%s: %w", dateStr(f.CaptureDate), f.StationID, f.SourceID, ErrDuplicateKey)
	}
	return nil
}

// UpsertActual creates or merges the actual record for (date, station).
// Only fields present in the incoming record overwrite stored values, so
// a retry that finally carries the minimum temperature does not clobber a
// maximum recorded earlier in the day.
func (s *Store) UpsertActual(a models.Actual) error {
	_, err := s.db.Exec(`
		INSERT INTO actuals (actual_date, station_id, temp_max, temp_min, rain)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(actual_date, station_id) DO UPDATE SET
			temp_max = COALESCE(excluded.temp_max, temp_max),
			temp_min = COALESCE(excluded.temp_min, temp_min),
			rain = COALESCE(excluded.rain, rain),
			updated_at = CURRENT_TIMESTAMP
	`, dateStr(a.ActualDate), a.StationID, a.TempMax, a.TempMin, a.Rain)
	if err != nil {
		return fmt.Errorf("upsert actual: %w", err)
	}
	return nil
}

// QueryForecasts returns forecasts with capture_date in [start, end],
// optionally filtered by station and source. Empty filter strings match
// everything.
func (s *Store) QueryForecasts(start, end time.Time, stationID, sourceID string) ([]models.Forecast, error) {
	query := `
		SELECT id, capture_date, station_id, source_id, captured_at, temp_max, temp_min, rain_min, rain_max
		FROM forecasts
		WHERE capture_date >= ? AND capture_date <= ?`
	args := []any{dateStr(start), dateStr(end)}

	if stationID != "" {
		query += ` AND station_id = ?`
		args = append(args, stationID)
	}
	if sourceID != "" {
		query += ` AND source_id = ?`
		args = append(args, sourceID)
	}
	query += ` ORDER BY capture_date, station_id, source_id`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var forecasts []models.Forecast
	for rows.Next() {
		var f models.Forecast
		var capDate string
		if err := rows.Scan(&f.ID, &capDate, &f.StationID, &f.SourceID, &f.CapturedAt, &f.TempMax, &f.TempMin, &f.RainMin, &f.RainMax); err != nil {
			return nil, err
		}
		if f.CaptureDate, err = parseDate(capDate); err != nil {
			return nil, err
		}
		forecasts = append(forecasts, f)
	}
	return forecasts, rows.Err()
}

// QueryActual returns the actual record for (date, station), or nil if
// none has been recorded yet.
func (s *Store) QueryActual(date time.Time, stationID string) (*models.Actual, error) {
	row := s.db.QueryRow(`
		SELECT actual_date, station_id, temp_max, temp_min, rain
		FROM actuals WHERE actual_date = ? AND station_id = ?
	`, dateStr(date), stationID)

	var a models.Actual
	var actDate string
	err := row.Scan(&actDate, &a.StationID, &a.TempMax, &a.TempMin, &a.Rain)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if a.ActualDate, err = parseDate(actDate); err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *Store) QueryActuals(start, end time.Time) ([]models.Actual, error) {
	rows, err := s.db.Query(`
		SELECT actual_date, station_id, temp_max, temp_min, rain
		FROM actuals
		WHERE actual_date >= ? AND actual_date <= ?
		ORDER BY actual_date, station_id
	`, dateStr(start), dateStr(end))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var actuals []models.Actual
	for rows.Next() {
		var a models.Actual
		var actDate string
		if err := rows.Scan(&actDate, &a.StationID, &a.TempMax, &a.TempMin, &a.Rain); err != nil {
			return nil, err
		}
		if a.ActualDate, err = parseDate(actDate); err != nil {
			return nil, err
		}
		actuals = append(actuals, a)
	}
	return actuals, rows.Err()
}

// HistoryRows returns the flat dashboard layout: every forecast row
// joined to its actual where one exists, plus actual-only rows for days
// where observations arrived before (or without) any forecast.
func (s *Store) HistoryRows(start, end time.Time) ([]models.HistoryRow, error) {
	rows, err := s.db.Query(`
		SELECT COALESCE(f.capture_date, a.actual_date),
		       COALESCE(f.station_id, a.station_id),
		       f.source_id,
		       f.temp_max, f.temp_min, f.rain_min, f.rain_max,
		       a.temp_max, a.temp_min, a.rain,
		       f.captured_at
		FROM forecasts f
		FULL OUTER JOIN actuals a
		  ON a.actual_date = f.capture_date AND a.station_id = f.station_id
		WHERE COALESCE(f.capture_date, a.actual_date) >= ?
		  AND COALESCE(f.capture_date, a.actual_date) <= ?
		ORDER BY 1, 2, 3
	`, dateStr(start), dateStr(end))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []models.HistoryRow
	for rows.Next() {
		var r models.HistoryRow
		var date string
		if err := rows.Scan(&date, &r.StationID, &r.SourceID,
			&r.ForecastTempMax, &r.ForecastTempMin, &r.ForecastRainMin, &r.ForecastRainMax,
			&r.ActualTempMax, &r.ActualTempMin, &r.ActualRain, &r.CapturedAt); err != nil {
			return nil, err
		}
		if r.Date, err = parseDate(date); err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, rows.Err()
}
