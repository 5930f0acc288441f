package ingest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/lox/adelaideauditor/internal/clock"
	"github.com/lox/adelaideauditor/internal/metrics"
	"github.com/lox/adelaideauditor/internal/models"
	"github.com/lox/adelaideauditor/internal/sources"
	"github.com/lox/adelaideauditor/internal/store"
)

const defaultFetchTimeout = 30 * time.Second

// Pipeline is one capture-and-reconcile invocation: gate the window,
// capture today's forecasts from every source for every station, and
// fetch yesterday's actuals. It is a run-to-completion batch; the only
// state that outlives it is what the store persists.
type Pipeline struct {
	store        *store.Store
	sources      []sources.Source
	actuals      *ActualsClient
	gate         *clock.Gate
	loc          *time.Location
	fetchTimeout time.Duration
	ignoreGate   bool
}

func NewPipeline(st *store.Store, srcs []sources.Source, actuals *ActualsClient, gate *clock.Gate) *Pipeline {
	return &Pipeline{
		store:        st,
		sources:      srcs,
		actuals:      actuals,
		gate:         gate,
		loc:          gate.Location(),
		fetchTimeout: defaultFetchTimeout,
	}
}

// SetIgnoreWindow disables the gate check for manual backfill runs.
// Captures made this way are recorded like any other, so use it only
// when a run genuinely stands in for the missed morning capture.
func (p *Pipeline) SetIgnoreWindow(v bool) {
	p.ignoreGate = v
}

// Run executes one invocation for the wall-clock instant now. Outside
// the capture window it is a side-effect-free no-op: a partial capture
// would break the fair-simultaneous-comparison premise, so nothing is
// fetched at all. Per-source failures are recorded and skipped; only a
// storage failure aborts the run.
func (p *Pipeline) Run(ctx context.Context, now time.Time) error {
	if !p.ignoreGate && !p.gate.ShouldRun(now) {
		log.Printf("pipeline: %s is outside the capture window, skipping", now.In(p.loc).Format("15:04"))
		return nil
	}

	stations, err := p.store.ActiveStations()
	if err != nil {
		return fmt.Errorf("load stations: %w", err)
	}
	if len(stations) == 0 {
		log.Println("pipeline: no active stations configured")
		return nil
	}

	today := models.CivilDate(now, p.loc)
	yesterday := today.AddDate(0, 0, -1)

	log.Printf("pipeline: capturing forecasts for %s across %d stations and %d sources",
		today.Format("2006-01-02"), len(stations), len(p.sources))

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		fatalErr error
	)
	recordFatal := func(err error) {
		mu.Lock()
		if fatalErr == nil {
			fatalErr = err
		}
		mu.Unlock()
	}

	// Every (station, source) pair is independent: distinct store keys,
	// no shared state. Fan out and attempt all of them regardless of
	// earlier failures.
	for _, station := range stations {
		for _, src := range p.sources {
			wg.Add(1)
			go func(station models.Station, src sources.Source) {
				defer wg.Done()
				if err := p.captureForecast(ctx, src, station, today); err != nil {
					recordFatal(err)
				}
			}(station, src)
		}

		wg.Add(1)
		go func(station models.Station) {
			defer wg.Done()
			if err := p.reconcileActuals(ctx, station, yesterday); err != nil {
				recordFatal(err)
			}
		}(station)
	}
	wg.Wait()

	if fatalErr != nil {
		return fatalErr
	}

	log.Println("pipeline: run complete")
	return nil
}

// captureForecast fetches and stores one (station, source) forecast.
// Source failures and duplicate keys are recorded, not returned; the
// returned error is reserved for storage failures, which are fatal.
func (p *Pipeline) captureForecast(ctx context.Context, src sources.Source, station models.Station, today time.Time) error {
	run, err := p.store.StartCaptureRun(src.ID(), station.StationID, "forecast")
	if err != nil {
		return fmt.Errorf("start capture run: %w", err)
	}

	fetchCtx, cancel := context.WithTimeout(ctx, p.fetchTimeout)
	defer cancel()

	started := time.Now()
	fc, fetchErr := src.Fetch(fetchCtx, station, today)
	metrics.ForecastFetchLatency.WithLabelValues(src.ID()).Observe(time.Since(started).Seconds())

	if fetchErr != nil {
		// One dead source is a coverage gap for the day, never a
		// reason to stop capturing the others.
		log.Printf("pipeline: %s/%s: %v", station.StationID, src.ID(), fetchErr)
		metrics.ForecastFetchesTotal.WithLabelValues(station.StationID, src.ID(), "error").Inc()
		run.ErrorMessage = sql.NullString{String: fetchErr.Error(), Valid: true}
		return p.store.CompleteCaptureRun(run)
	}

	metrics.ForecastFetchesTotal.WithLabelValues(station.StationID, src.ID(), "ok").Inc()

	if err := p.store.InsertForecast(fc); err != nil {
		if errors.Is(err, store.ErrDuplicateKey) {
			// The scheduler fired twice inside one window. The first
			// capture stands; log the anomaly and move on.
			log.Printf("pipeline: %s/%s already captured for %s, rejecting re-capture",
				station.StationID, src.ID(), today.Format("2006-01-02"))
			metrics.DuplicateRejections.WithLabelValues(station.StationID, src.ID()).Inc()
			run.ErrorMessage = sql.NullString{String: err.Error(), Valid: true}
			return p.store.CompleteCaptureRun(run)
		}
		return fmt.Errorf("insert forecast %s/%s: %w", station.StationID, src.ID(), err)
	}

	metrics.ForecastsRecorded.WithLabelValues(station.StationID, src.ID()).Inc()
	run.Success = true
	run.RecordsStored = sql.NullInt64{Int64: 1, Valid: true}
	return p.store.CompleteCaptureRun(run)
}

// reconcileActuals fetches yesterday's recorded observations for a
// station and merges them into the store. BOM sometimes publishes the
// maximum hours before the minimum, so partial records are expected and
// merged field by field across runs.
func (p *Pipeline) reconcileActuals(ctx context.Context, station models.Station, date time.Time) error {
	fetchCtx, cancel := context.WithTimeout(ctx, p.fetchTimeout)
	defer cancel()

	actual, err := p.actuals.Fetch(fetchCtx, station, date)
	if err != nil {
		log.Printf("pipeline: actuals %s: %v", station.StationID, err)
		metrics.ActualsFetchesTotal.WithLabelValues(station.StationID, "error").Inc()
		return nil
	}

	if flags := ValidateActual(&actual); len(flags) > 0 {
		log.Printf("pipeline: actuals %s for %s: dropped implausible fields: %v",
			station.StationID, date.Format("2006-01-02"), flags)
	}

	if !actual.TempMax.Valid && !actual.TempMin.Valid && !actual.Rain.Valid {
		log.Printf("pipeline: actuals %s for %s: nothing plausible to record",
			station.StationID, date.Format("2006-01-02"))
		metrics.ActualsFetchesTotal.WithLabelValues(station.StationID, "empty").Inc()
		return nil
	}

	if err := p.store.UpsertActual(actual); err != nil {
		return fmt.Errorf("upsert actual %s: %w", station.StationID, err)
	}

	metrics.ActualsFetchesTotal.WithLabelValues(station.StationID, "ok").Inc()
	log.Printf("pipeline: recorded actuals for %s on %s", station.StationID, date.Format("2006-01-02"))
	return nil
}
