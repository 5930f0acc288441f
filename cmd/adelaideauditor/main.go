package main

import (
	"context"
	"database/sql"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	kongdotenv "github.com/titusjaka/kong-dotenv-go"
	_ "modernc.org/sqlite"

	"github.com/lox/adelaideauditor/internal/api"
	"github.com/lox/adelaideauditor/internal/clock"
	"github.com/lox/adelaideauditor/internal/grading"
	"github.com/lox/adelaideauditor/internal/ingest"
	"github.com/lox/adelaideauditor/internal/leaderboard"
	"github.com/lox/adelaideauditor/internal/models"
	"github.com/lox/adelaideauditor/internal/sources"
	"github.com/lox/adelaideauditor/internal/store"
)

// The four Adelaide-area stations the auditor monitors. Only West
// Terrace appears in the FTP city product; the others record coverage
// gaps for that source.
var defaultStations = []models.Station{
	{StationID: "west-terrace", Name: "Adelaide (West Terrace)", Latitude: -34.9257, Longitude: 138.5832, BOMStationNumber: "94648", BOMProductID: "IDS60901", BOMPlace: "adelaide", AAC: "SA_PT001", Active: true},
	{StationID: "adelaide-airport", Name: "Adelaide Airport", Latitude: -34.9524, Longitude: 138.5196, BOMStationNumber: "94146", BOMProductID: "IDS60901", BOMPlace: "adelaide-airport", Active: true},
	{StationID: "mount-lofty", Name: "Mount Lofty", Latitude: -34.9794, Longitude: 138.7086, BOMStationNumber: "95678", BOMProductID: "IDS60901", BOMPlace: "mount-lofty", Active: true},
	{StationID: "noarlunga", Name: "Noarlunga", Latitude: -35.1586, Longitude: 138.5056, BOMStationNumber: "94808", BOMProductID: "IDS60901", BOMPlace: "noarlunga-centre", Active: true},
}

type cli struct {
	DB                   string  `help:"Path to the SQLite database." default:"data/adelaideauditor.db" env:"AUDITOR_DB"`
	Timezone             string  `help:"Civil time zone the capture window is defined in." default:"Australia/Adelaide" env:"AUDITOR_TIMEZONE"`
	WindowStart          string  `help:"Capture window opening wall-clock time (HH:MM)." default:"08:30" env:"AUDITOR_WINDOW_START"`
	WindowEnd            string  `help:"Capture window closing wall-clock time, exclusive (HH:MM)." default:"10:00" env:"AUDITOR_WINDOW_END"`
	WindowDays           int     `help:"Rolling leaderboard window in days." default:"30" env:"AUDITOR_WINDOW_DAYS"`
	PerfectTempTolerance float64 `help:"Max absolute max-temp error (°C) that still counts as a Perfect Day." default:"1.0" env:"AUDITOR_PERFECT_TEMP_TOLERANCE"`
	WeatherzoneURL       string  `help:"Override the Weatherzone forecast page URL." env:"AUDITOR_WEATHERZONE_URL"`

	Capture     captureCmd     `cmd:"" default:"withargs" help:"Run one capture-and-reconcile invocation (no-op outside the window)."`
	Grade       gradeCmd       `cmd:"" help:"Print graded forecast records for a date range as JSON."`
	Leaderboard leaderboardCmd `cmd:"" help:"Print the rolling accuracy leaderboard as JSON."`
	Serve       serveCmd       `cmd:"" help:"Serve the read-only dashboard API."`
	Export      exportCmd      `cmd:"" help:"Write the flat forecast/actual history as CSV."`
}

// app carries the shared dependencies each command runs against.
type app struct {
	cli   *cli
	store *store.Store
	loc   *time.Location
}

type captureCmd struct {
	IgnoreWindow bool `help:"Capture even outside the morning window (manual backfill)."`
}

func (c *captureCmd) Run(a *app) error {
	gate, err := clock.NewGate(a.cli.Timezone, a.cli.WindowStart, a.cli.WindowEnd)
	if err != nil {
		return fmt.Errorf("configure window: %w", err)
	}

	srcs := []sources.Source{
		sources.NewOpenMeteo(a.cli.Timezone),
		sources.NewBOMPlaces(),
		sources.NewWeatherzone(a.cli.WeatherzoneURL),
		sources.NewBOMFTP(),
	}
	actuals := ingest.NewActualsClient(a.loc)

	pipeline := ingest.NewPipeline(a.store, srcs, actuals, gate)
	pipeline.SetIgnoreWindow(c.IgnoreWindow)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return pipeline.Run(ctx, time.Now())
}

type gradeCmd struct {
	Start   string `help:"Range start date (YYYY-MM-DD), defaults to the leaderboard window."`
	End     string `help:"Range end date (YYYY-MM-DD), defaults to today."`
	Station string `help:"Filter to one station."`
	Source  string `help:"Filter to one source."`
}

func (c *gradeCmd) Run(a *app) error {
	end := models.CivilDate(time.Now(), a.loc)
	start := end.AddDate(0, 0, -a.cli.WindowDays)
	var err error
	if c.Start != "" {
		if start, err = time.Parse("2006-01-02", c.Start); err != nil {
			return fmt.Errorf("parse --start: %w", err)
		}
	}
	if c.End != "" {
		if end, err = time.Parse("2006-01-02", c.End); err != nil {
			return fmt.Errorf("parse --end: %w", err)
		}
	}

	forecasts, err := a.store.QueryForecasts(start, end, c.Station, c.Source)
	if err != nil {
		return fmt.Errorf("query forecasts: %w", err)
	}
	actuals, err := a.store.QueryActuals(start, end)
	if err != nil {
		return fmt.Errorf("query actuals: %w", err)
	}

	type gradedJSON struct {
		Date            string   `json:"date"`
		StationID       string   `json:"station_id"`
		SourceID        string   `json:"source_id"`
		MaxTempError    *float64 `json:"max_temp_error"`
		MinTempError    *float64 `json:"min_temp_error"`
		RainWithinRange *bool    `json:"rain_within_range"`
	}
	nullF := func(v sql.NullFloat64) *float64 {
		if !v.Valid {
			return nil
		}
		f := v.Float64
		return &f
	}

	var out []gradedJSON
	for _, g := range grading.Grade(forecasts, actuals) {
		row := gradedJSON{
			Date:         g.CaptureDate.Format("2006-01-02"),
			StationID:    g.StationID,
			SourceID:     g.SourceID,
			MaxTempError: nullF(g.MaxTempError),
			MinTempError: nullF(g.MinTempError),
		}
		if g.RainWithinRange.Valid {
			b := g.RainWithinRange.Bool
			row.RainWithinRange = &b
		}
		out = append(out, row)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

type leaderboardCmd struct {
	Window int    `help:"Override the rolling window in days."`
	AsOf   string `help:"Reference date (YYYY-MM-DD), defaults to today."`
}

func (c *leaderboardCmd) Run(a *app) error {
	windowDays := a.cli.WindowDays
	if c.Window > 0 {
		windowDays = c.Window
	}

	asOf := models.CivilDate(time.Now(), a.loc)
	if c.AsOf != "" {
		var err error
		if asOf, err = time.Parse("2006-01-02", c.AsOf); err != nil {
			return fmt.Errorf("parse --as-of: %w", err)
		}
	}

	start := asOf.AddDate(0, 0, -windowDays)
	forecasts, err := a.store.QueryForecasts(start, asOf, "", "")
	if err != nil {
		return fmt.Errorf("query forecasts: %w", err)
	}
	actuals, err := a.store.QueryActuals(start, asOf)
	if err != nil {
		return fmt.Errorf("query actuals: %w", err)
	}

	graded := grading.Grade(forecasts, actuals)
	lb := leaderboard.Rank(graded, forecasts, windowDays, asOf, a.cli.PerfectTempTolerance)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(lb)
}

type serveCmd struct {
	Port string `help:"HTTP listen port." default:"8080" env:"AUDITOR_PORT"`
}

func (c *serveCmd) Run(a *app) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	server := api.NewServer(a.store, c.Port, a.loc, a.cli.WindowDays, a.cli.PerfectTempTolerance)
	return server.Run(ctx)
}

type exportCmd struct {
	Start  string `help:"Range start date (YYYY-MM-DD), defaults to the full history."`
	End    string `help:"Range end date (YYYY-MM-DD), defaults to today."`
	Output string `help:"Destination file, or - for stdout." default:"-"`
}

func (c *exportCmd) Run(a *app) error {
	start := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	end := models.CivilDate(time.Now(), a.loc)
	var err error
	if c.Start != "" {
		if start, err = time.Parse("2006-01-02", c.Start); err != nil {
			return fmt.Errorf("parse --start: %w", err)
		}
	}
	if c.End != "" {
		if end, err = time.Parse("2006-01-02", c.End); err != nil {
			return fmt.Errorf("parse --end: %w", err)
		}
	}

	rows, err := a.store.HistoryRows(start, end)
	if err != nil {
		return fmt.Errorf("query history: %w", err)
	}

	var out io.Writer = os.Stdout
	if c.Output != "-" {
		f, err := os.Create(c.Output)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer f.Close()
		out = f
	}
	return writeHistoryCSV(out, rows)
}

func writeHistoryCSV(out io.Writer, rows []models.HistoryRow) error {
	w := csv.NewWriter(out)
	header := []string{
		"date", "station_id", "source_id",
		"forecast_max_temp", "forecast_min_temp", "forecast_rain_min", "forecast_rain_max",
		"actual_max_temp", "actual_min_temp", "actual_rain", "captured_at",
	}
	if err := w.Write(header); err != nil {
		return err
	}

	cell := func(v sql.NullFloat64) string {
		if !v.Valid {
			return ""
		}
		return strconv.FormatFloat(v.Float64, 'f', -1, 64)
	}
	for _, row := range rows {
		sourceID := ""
		if row.SourceID.Valid {
			sourceID = row.SourceID.String
		}
		capturedAt := ""
		if row.CapturedAt.Valid {
			capturedAt = row.CapturedAt.Time.UTC().Format(time.RFC3339)
		}
		record := []string{
			row.Date.Format("2006-01-02"), row.StationID, sourceID,
			cell(row.ForecastTempMax), cell(row.ForecastTempMin), cell(row.ForecastRainMin), cell(row.ForecastRainMax),
			cell(row.ActualTempMax), cell(row.ActualTempMin), cell(row.ActualRain), capturedAt,
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func main() {
	var flags cli
	ctx := kong.Parse(&flags,
		kong.Name("adelaideauditor"),
		kong.Description("Captures Adelaide forecasts each morning and grades them against BOM observations."),
		kong.Configuration(kongdotenv.ENVFileReader, ".env"),
	)

	loc, err := time.LoadLocation(flags.Timezone)
	if err != nil {
		log.Fatalf("load timezone %s: %v", flags.Timezone, err)
	}

	db, err := sql.Open("sqlite", flags.DB)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()

	db.Exec("PRAGMA journal_mode=WAL")
	db.Exec("PRAGMA busy_timeout=5000")

	st := store.New(db, loc)
	if err := st.Migrate(); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	for _, station := range defaultStations {
		if err := st.UpsertStation(station); err != nil {
			log.Fatalf("upsert station %s: %v", station.StationID, err)
		}
	}

	ctx.FatalIfErrorf(ctx.Run(&app{cli: &flags, store: st, loc: loc}))
}
