package models

import (
	"database/sql"
	"time"
)

// Station is a monitored location. Stations are seeded at startup and
// treated as immutable for the life of the process.
type Station struct {
	StationID        string
	Name             string
	Latitude         float64
	Longitude        float64
	BOMStationNumber string // e.g. "94648", identifies the observation feed
	BOMProductID     string // e.g. "IDS60901", the observation product
	BOMPlace         string // URL slug for the published forecast page
	AAC              string // area code in the BOM city forecast XML product
	Active           bool
}

// Forecast is one provider's prediction for one station on one civil day,
// captured during the morning window. Keyed by (capture_date, station_id,
// source_id); write-once, never updated.
type Forecast struct {
	ID          int64
	CaptureDate time.Time // civil date, midnight UTC
	StationID   string
	SourceID    string
	CapturedAt  time.Time
	TempMax     sql.NullFloat64
	TempMin     sql.NullFloat64
	// RainMin == RainMax is a valid point estimate for sources that
	// publish a single precipitation figure rather than a range.
	RainMin sql.NullFloat64
	RainMax sql.NullFloat64
}

// Actual is the recorded observation outcome for one station on one civil
// day. Source-independent ground truth, keyed by (actual_date, station_id).
// Fields arrive incrementally: BOM sometimes publishes the maximum before
// the minimum, so later fetches merge into the same row.
type Actual struct {
	ActualDate time.Time // civil date, midnight UTC
	StationID  string
	TempMax    sql.NullFloat64
	TempMin    sql.NullFloat64
	Rain       sql.NullFloat64
}

// Graded joins a Forecast with the Actual for the same (date, station).
// Derived on demand, never stored. Errors are signed (forecast − actual)
// so consumers can study bias as well as magnitude.
type Graded struct {
	CaptureDate     time.Time
	StationID       string
	SourceID        string
	ForecastTempMax sql.NullFloat64
	ForecastTempMin sql.NullFloat64
	ForecastRainMin sql.NullFloat64
	ForecastRainMax sql.NullFloat64
	ActualTempMax   sql.NullFloat64
	ActualTempMin   sql.NullFloat64
	ActualRain      sql.NullFloat64
	MaxTempError    sql.NullFloat64
	MinTempError    sql.NullFloat64
	RainWithinRange sql.NullBool
}

// HistoryRow is the flat export layout consumed by the dashboard: one row
// per (date, station, source) with every weather field independently
// nullable. Rows with only actuals carry a null source.
type HistoryRow struct {
	Date            time.Time
	StationID       string
	SourceID        sql.NullString
	ForecastTempMax sql.NullFloat64
	ForecastTempMin sql.NullFloat64
	ForecastRainMin sql.NullFloat64
	ForecastRainMax sql.NullFloat64
	ActualTempMax   sql.NullFloat64
	ActualTempMin   sql.NullFloat64
	ActualRain      sql.NullFloat64
	CapturedAt      sql.NullTime
}

// CivilDate truncates t to its civil date in loc, normalized to midnight
// UTC so date values compare and format consistently everywhere.
func CivilDate(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
}
