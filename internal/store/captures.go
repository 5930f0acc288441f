package store

import (
	"database/sql"
	"time"
)

// CaptureRun records one fetch attempt against an external provider, for
// auditing coverage gaps. A failed run is the durable trace of a source
// being down for a (station, source, day) triple.
type CaptureRun struct {
	ID            int64
	StartedAt     time.Time
	FinishedAt    sql.NullTime
	SourceID      string
	StationID     sql.NullString
	Endpoint      sql.NullString
	HTTPStatus    sql.NullInt64
	RecordsStored sql.NullInt64
	Success       bool
	ErrorMessage  sql.NullString
}

// StartCaptureRun creates a new capture run record and returns it.
func (s *Store) StartCaptureRun(sourceID, stationID, endpoint string) (*CaptureRun, error) {
	run := &CaptureRun{
		StartedAt: time.Now().UTC(),
		SourceID:  sourceID,
	}
	if stationID != "" {
		run.StationID = sql.NullString{String: stationID, Valid: true}
	}
	if endpoint != "" {
		run.Endpoint = sql.NullString{String: endpoint, Valid: true}
	}

	result, err := s.db.Exec(`
		INSERT INTO capture_runs (started_at, source_id, station_id, endpoint, success)
		VALUES (?, ?, ?, ?, FALSE)
	`, run.StartedAt, run.SourceID, run.StationID, run.Endpoint)
	if err != nil {
		return nil, err
	}

	run.ID, err = result.LastInsertId()
	if err != nil {
		return nil, err
	}

	return run, nil
}

// CompleteCaptureRun updates the capture run with its outcome.
func (s *Store) CompleteCaptureRun(run *CaptureRun) error {
	if run == nil {
		return nil
	}

	run.FinishedAt = sql.NullTime{Time: time.Now().UTC(), Valid: true}

	_, err := s.db.Exec(`
		UPDATE capture_runs SET
			finished_at = ?,
			http_status = ?,
			records_stored = ?,
			success = ?,
			error_message = ?
		WHERE id = ?
	`, run.FinishedAt, run.HTTPStatus, run.RecordsStored, run.Success, run.ErrorMessage, run.ID)
	return err
}

// CaptureHealthSummary aggregates capture outcomes per source per day.
type CaptureHealthSummary struct {
	Date        string
	SourceID    string
	TotalRuns   int
	SuccessRuns int
	FailedRuns  int
}

// CaptureHealth returns per-source capture health for the last N days.
func (s *Store) CaptureHealth(days int) ([]CaptureHealthSummary, error) {
	rows, err := s.db.Query(`
		SELECT
			DATE(SUBSTR(started_at, 1, 19)) as date,
			source_id,
			COUNT(*) as total_runs,
			SUM(CASE WHEN success THEN 1 ELSE 0 END) as success_runs,
			SUM(CASE WHEN NOT success THEN 1 ELSE 0 END) as failed_runs
		FROM capture_runs
		WHERE SUBSTR(started_at, 1, 19) > datetime('now', '-' || ? || ' days')
		GROUP BY date, source_id
		ORDER BY date DESC, source_id
	`, days)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []CaptureHealthSummary
	for rows.Next() {
		var h CaptureHealthSummary
		if err := rows.Scan(&h.Date, &h.SourceID, &h.TotalRuns, &h.SuccessRuns, &h.FailedRuns); err != nil {
			return nil, err
		}
		results = append(results, h)
	}
	return results, rows.Err()
}

// RecentCaptureErrors returns the most recent failed capture runs.
func (s *Store) RecentCaptureErrors(limit int) ([]CaptureRun, error) {
	rows, err := s.db.Query(`
		SELECT id, started_at, finished_at, source_id, station_id, endpoint,
		       http_status, records_stored, success, error_message
		FROM capture_runs
		WHERE success = FALSE
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []CaptureRun
	for rows.Next() {
		var r CaptureRun
		if err := rows.Scan(&r.ID, &r.StartedAt, &r.FinishedAt, &r.SourceID, &r.StationID, &r.Endpoint,
			&r.HTTPStatus, &r.RecordsStored, &r.Success, &r.ErrorMessage); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}
