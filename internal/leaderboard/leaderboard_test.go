package leaderboard

import (
	"database/sql"
	"testing"
	"time"

	"github.com/lox/adelaideauditor/internal/models"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func nf(v float64) sql.NullFloat64 {
	return sql.NullFloat64{Float64: v, Valid: true}
}

func nb(v bool) sql.NullBool {
	return sql.NullBool{Bool: v, Valid: true}
}

func gradedRec(d time.Time, source string, maxErr sql.NullFloat64, rainIn sql.NullBool) models.Graded {
	return models.Graded{
		CaptureDate:     d,
		StationID:       "west-terrace",
		SourceID:        source,
		MaxTempError:    maxErr,
		RainWithinRange: rainIn,
	}
}

func forecastRec(d time.Time, source string) models.Forecast {
	return models.Forecast{CaptureDate: d, StationID: "west-terrace", SourceID: source}
}

func TestRank_MAE(t *testing.T) {
	asOf := date(2025, 7, 20)
	graded := []models.Graded{
		gradedRec(date(2025, 7, 17), "open-meteo", nf(1), nb(true)),
		gradedRec(date(2025, 7, 18), "open-meteo", nf(-2), nb(true)),
		gradedRec(date(2025, 7, 19), "open-meteo", nf(3), nb(true)),
	}
	forecasts := []models.Forecast{
		forecastRec(date(2025, 7, 17), "open-meteo"),
		forecastRec(date(2025, 7, 18), "open-meteo"),
		forecastRec(date(2025, 7, 19), "open-meteo"),
		forecastRec(date(2025, 7, 19), "weatherzone"),
	}

	lb := Rank(graded, forecasts, 30, asOf, DefaultPerfectTempTolerance)
	if len(lb.Rankings) != 2 {
		t.Fatalf("%d rankings, want 2", len(lb.Rankings))
	}

	om := lb.Rankings[0]
	if om.SourceID != "open-meteo" || om.Rank != 1 {
		t.Fatalf("first ranking = %+v", om)
	}
	if om.MaxTempMAE == nil || *om.MaxTempMAE != 2.0 {
		t.Errorf("MaxTempMAE = %v, want 2.0 over signed errors [1,-2,3]", om.MaxTempMAE)
	}
	if om.CombinedMAE == nil || *om.CombinedMAE != 2.0 {
		t.Errorf("CombinedMAE = %v, want 2.0", om.CombinedMAE)
	}

	// A source with captures but nothing graded yet is reported, not
	// ranked, and never given a fabricated MAE of zero.
	wz := lb.Rankings[1]
	if wz.SourceID != "weatherzone" || !wz.InsufficientData || wz.Rank != 0 {
		t.Fatalf("second ranking = %+v, want insufficient data", wz)
	}
	if wz.CombinedMAE != nil {
		t.Errorf("CombinedMAE = %v for zero samples, want nil", *wz.CombinedMAE)
	}
}

func TestRank_WindowBounds(t *testing.T) {
	asOf := date(2025, 7, 30)
	graded := []models.Graded{
		gradedRec(date(2025, 6, 30), "bom", nf(10), nb(false)), // exactly window_days back, excluded
		gradedRec(date(2025, 7, 1), "bom", nf(2), nb(false)),   // oldest included day
		gradedRec(date(2025, 7, 30), "bom", nf(4), nb(false)),  // as_of itself, included
		gradedRec(date(2025, 7, 31), "bom", nf(10), nb(false)), // future, excluded
	}

	lb := Rank(graded, nil, 30, asOf, DefaultPerfectTempTolerance)
	if len(lb.Rankings) != 1 {
		t.Fatalf("%d rankings, want 1", len(lb.Rankings))
	}
	r := lb.Rankings[0]
	if r.MaxTempSamples != 2 {
		t.Errorf("samples = %d, want 2 (window is exclusive at the start, inclusive at as_of)", r.MaxTempSamples)
	}
	if r.MaxTempMAE == nil || *r.MaxTempMAE != 3.0 {
		t.Errorf("MaxTempMAE = %v, want 3.0", r.MaxTempMAE)
	}
}

func TestRank_OrderingAndTies(t *testing.T) {
	asOf := date(2025, 7, 20)
	d := date(2025, 7, 19)
	graded := []models.Graded{
		gradedRec(d, "weatherzone", nf(1.5), nb(true)),
		gradedRec(d, "bom", nf(0.5), nb(true)),
		gradedRec(d, "open-meteo", nf(1.5), nb(true)),
	}

	lb := Rank(graded, nil, 30, asOf, DefaultPerfectTempTolerance)
	var order []string
	for _, r := range lb.Rankings {
		order = append(order, r.SourceID)
	}
	want := []string{"bom", "open-meteo", "weatherzone"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v (ascending MAE, ties lexical)", order, want)
		}
	}
	for i, r := range lb.Rankings {
		if r.Rank != i+1 {
			t.Errorf("rank[%d] = %d", i, r.Rank)
		}
	}
}

func TestRank_PerfectDays(t *testing.T) {
	asOf := date(2025, 7, 20)
	d := date(2025, 7, 19)
	graded := []models.Graded{
		// |err| == tolerance still qualifies; the bound is inclusive.
		gradedRec(d, "on-the-line", nf(1.0), nb(true)),
		gradedRec(d, "too-far-off", nf(-1.1), nb(true)),
		gradedRec(d, "rain-missed", nf(0.2), nb(false)),
		gradedRec(d, "rain-unknown", nf(0.2), sql.NullBool{}),
	}

	lb := Rank(graded, nil, 30, asOf, 1.0)
	if len(lb.PerfectDays) != 1 {
		t.Fatalf("%d perfect days, want 1: %+v", len(lb.PerfectDays), lb.PerfectDays)
	}
	p := lb.PerfectDays[0]
	if p.SourceID != "on-the-line" || p.Date != "2025-07-19" {
		t.Errorf("perfect day = %+v", p)
	}
}

func TestRank_Coverage(t *testing.T) {
	asOf := date(2025, 7, 20)
	forecasts := []models.Forecast{
		forecastRec(date(2025, 7, 18), "bom"),
		forecastRec(date(2025, 7, 19), "bom"),
		forecastRec(date(2025, 7, 20), "bom"),
	}
	graded := []models.Graded{
		gradedRec(date(2025, 7, 18), "bom", nf(1), nb(true)),
		gradedRec(date(2025, 7, 19), "bom", nf(1), nb(true)),
	}

	lb := Rank(graded, forecasts, 30, asOf, DefaultPerfectTempTolerance)
	if len(lb.Coverage) != 1 {
		t.Fatalf("%d coverage entries, want 1", len(lb.Coverage))
	}
	c := lb.Coverage[0]
	if c.ForecastCount != 3 || c.GradedCount != 2 || c.Ungraded != 1 {
		t.Errorf("coverage = %+v, want 3 captured / 2 graded / 1 pending", c)
	}
}
