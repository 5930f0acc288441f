// Package leaderboard turns graded records into ranked per-source
// accuracy statistics over a rolling window. Output types marshal
// directly to the JSON the dashboard consumes, so absent statistics are
// nil pointers rather than zeroes.
package leaderboard

import (
	"math"
	"sort"
	"time"

	"github.com/lox/adelaideauditor/internal/models"
)

// DefaultWindowDays is the rolling window used when none is configured.
const DefaultWindowDays = 30

// DefaultPerfectTempTolerance is the maximum absolute max-temp error, in
// degrees Celsius, that still counts toward a Perfect Day.
const DefaultPerfectTempTolerance = 1.0

// Ranking is one source's accuracy over the window. MAE fields are nil
// when the source has no samples for that metric; a source with no
// samples at all is flagged InsufficientData and carries no rank.
type Ranking struct {
	Rank             int      `json:"rank,omitempty"`
	SourceID         string   `json:"source_id"`
	MaxTempMAE       *float64 `json:"max_temp_mae,omitempty"`
	MinTempMAE       *float64 `json:"min_temp_mae,omitempty"`
	CombinedMAE      *float64 `json:"combined_mae,omitempty"`
	MaxTempSamples   int      `json:"max_temp_samples"`
	MinTempSamples   int      `json:"min_temp_samples"`
	InsufficientData bool     `json:"insufficient_data,omitempty"`
}

// PerfectDay is a graded record whose max-temp error was within
// tolerance and whose observed rainfall landed inside the forecast range.
type PerfectDay struct {
	Date         string  `json:"date"`
	StationID    string  `json:"station_id"`
	SourceID     string  `json:"source_id"`
	MaxTempError float64 `json:"max_temp_error"`
}

// Coverage compares how many forecasts a source captured in the window
// against how many have been graded. A large gap means actuals are still
// pending or the source's captures are failing.
type Coverage struct {
	SourceID      string `json:"source_id"`
	ForecastCount int    `json:"forecast_count"`
	GradedCount   int    `json:"graded_count"`
	Ungraded      int    `json:"ungraded"`
}

type Leaderboard struct {
	AsOf        string       `json:"as_of"`
	WindowDays  int          `json:"window_days"`
	Rankings    []Ranking    `json:"rankings"`
	PerfectDays []PerfectDay `json:"perfect_days"`
	Coverage    []Coverage   `json:"coverage"`
}

// Rank computes the leaderboard for captures in (asOf − windowDays, asOf].
// forecasts is the full capture set for the window and feeds the coverage
// summary; graded is the subset the grading engine could pair. tolerance
// is the Perfect Day max-temp bound.
func Rank(graded []models.Graded, forecasts []models.Forecast, windowDays int, asOf time.Time, tolerance float64) Leaderboard {
	if windowDays <= 0 {
		windowDays = DefaultWindowDays
	}
	windowStart := asOf.AddDate(0, 0, -windowDays)
	inWindow := func(d time.Time) bool {
		return d.After(windowStart) && !d.After(asOf)
	}

	type accum struct {
		maxAbsSum float64
		maxN      int
		minAbsSum float64
		minN      int
		graded    int
	}
	bySource := map[string]*accum{}
	source := func(id string) *accum {
		a, ok := bySource[id]
		if !ok {
			a = &accum{}
			bySource[id] = a
		}
		return a
	}

	forecastCounts := map[string]int{}
	for _, f := range forecasts {
		if !inWindow(f.CaptureDate) {
			continue
		}
		forecastCounts[f.SourceID]++
		source(f.SourceID)
	}

	var perfect []PerfectDay
	for _, g := range graded {
		if !inWindow(g.CaptureDate) {
			continue
		}
		a := source(g.SourceID)
		a.graded++
		if g.MaxTempError.Valid {
			a.maxAbsSum += math.Abs(g.MaxTempError.Float64)
			a.maxN++
		}
		if g.MinTempError.Valid {
			a.minAbsSum += math.Abs(g.MinTempError.Float64)
			a.minN++
		}
		if g.MaxTempError.Valid && math.Abs(g.MaxTempError.Float64) <= tolerance &&
			g.RainWithinRange.Valid && g.RainWithinRange.Bool {
			perfect = append(perfect, PerfectDay{
				Date:         g.CaptureDate.Format("2006-01-02"),
				StationID:    g.StationID,
				SourceID:     g.SourceID,
				MaxTempError: g.MaxTempError.Float64,
			})
		}
	}

	var rankings []Ranking
	var coverage []Coverage
	for id, a := range bySource {
		r := Ranking{
			SourceID:       id,
			MaxTempSamples: a.maxN,
			MinTempSamples: a.minN,
		}
		if a.maxN > 0 {
			mae := a.maxAbsSum / float64(a.maxN)
			r.MaxTempMAE = &mae
		}
		if a.minN > 0 {
			mae := a.minAbsSum / float64(a.minN)
			r.MinTempMAE = &mae
		}
		if a.maxN+a.minN > 0 {
			mae := (a.maxAbsSum + a.minAbsSum) / float64(a.maxN+a.minN)
			r.CombinedMAE = &mae
		} else {
			r.InsufficientData = true
		}
		rankings = append(rankings, r)
		coverage = append(coverage, Coverage{
			SourceID:      id,
			ForecastCount: forecastCounts[id],
			GradedCount:   a.graded,
			Ungraded:      forecastCounts[id] - a.graded,
		})
	}

	// Ranked sources first, ascending combined MAE, ties broken by
	// source id. Insufficient-data sources trail unranked.
	sort.Slice(rankings, func(i, j int) bool {
		a, b := rankings[i], rankings[j]
		if a.InsufficientData != b.InsufficientData {
			return !a.InsufficientData
		}
		if !a.InsufficientData && *a.CombinedMAE != *b.CombinedMAE {
			return *a.CombinedMAE < *b.CombinedMAE
		}
		return a.SourceID < b.SourceID
	})
	for i := range rankings {
		if !rankings[i].InsufficientData {
			rankings[i].Rank = i + 1
		}
	}

	sort.Slice(coverage, func(i, j int) bool { return coverage[i].SourceID < coverage[j].SourceID })
	sort.Slice(perfect, func(i, j int) bool {
		if perfect[i].Date != perfect[j].Date {
			return perfect[i].Date < perfect[j].Date
		}
		if perfect[i].StationID != perfect[j].StationID {
			return perfect[i].StationID < perfect[j].StationID
		}
		return perfect[i].SourceID < perfect[j].SourceID
	})

	return Leaderboard{
		AsOf:        asOf.Format("2006-01-02"),
		WindowDays:  windowDays,
		Rankings:    rankings,
		PerfectDays: perfect,
		Coverage:    coverage,
	}
}
