// Package grading joins captured forecasts against recorded observations
// and computes per-field signed errors. It is pure: no storage access, no
// clock access, same inputs always produce the same output.
package grading

import (
	"database/sql"
	"sort"

	"github.com/lox/adelaideauditor/internal/models"
)

type actualKey struct {
	date      string
	stationID string
}

// Grade pairs each forecast with the actual sharing its (date, station)
// key. A forecast with no actual yet is pending and omitted; that is the
// normal state for today's captures since observations lag a day. A pair
// produces a graded record only when at least one temperature field is
// present on both sides, so a record always carries a meaningful error.
//
// Errors are signed (forecast minus actual). Callers take the absolute
// value for MAE; the sign is kept so bias is visible.
func Grade(forecasts []models.Forecast, actuals []models.Actual) []models.Graded {
	byKey := make(map[actualKey]models.Actual, len(actuals))
	for _, a := range actuals {
		byKey[actualKey{a.ActualDate.Format("2006-01-02"), a.StationID}] = a
	}

	graded := make([]models.Graded, 0, len(forecasts))
	for _, f := range forecasts {
		actual, ok := byKey[actualKey{f.CaptureDate.Format("2006-01-02"), f.StationID}]
		if !ok {
			continue
		}

		maxErr := signedError(f.TempMax, actual.TempMax)
		minErr := signedError(f.TempMin, actual.TempMin)
		if !maxErr.Valid && !minErr.Valid {
			continue
		}

		graded = append(graded, models.Graded{
			CaptureDate:     f.CaptureDate,
			StationID:       f.StationID,
			SourceID:        f.SourceID,
			ForecastTempMax: f.TempMax,
			ForecastTempMin: f.TempMin,
			ForecastRainMin: f.RainMin,
			ForecastRainMax: f.RainMax,
			ActualTempMax:   actual.TempMax,
			ActualTempMin:   actual.TempMin,
			ActualRain:      actual.Rain,
			MaxTempError:    maxErr,
			MinTempError:    minErr,
			RainWithinRange: rainWithinRange(f.RainMin, f.RainMax, actual.Rain),
		})
	}

	sort.Slice(graded, func(i, j int) bool {
		a, b := graded[i], graded[j]
		if !a.CaptureDate.Equal(b.CaptureDate) {
			return a.CaptureDate.Before(b.CaptureDate)
		}
		if a.StationID != b.StationID {
			return a.StationID < b.StationID
		}
		return a.SourceID < b.SourceID
	})
	return graded
}

// signedError computes forecast − actual when both values are present.
// A missing side leaves the error absent rather than defaulting to zero,
// which would drag MAE toward artificial accuracy.
func signedError(forecast, actual sql.NullFloat64) sql.NullFloat64 {
	if !forecast.Valid || !actual.Valid {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: forecast.Float64 - actual.Float64, Valid: true}
}

// rainWithinRange reports whether the observed rainfall falls inside the
// forecast range, bounds inclusive. A point estimate (min == max) is a
// zero-width range and still satisfiable by an exact match. Absent on any
// side means the question cannot be answered and the result is absent.
func rainWithinRange(rainMin, rainMax, actual sql.NullFloat64) sql.NullBool {
	if !rainMin.Valid || !rainMax.Valid || !actual.Valid {
		return sql.NullBool{}
	}
	within := actual.Float64 >= rainMin.Float64 && actual.Float64 <= rainMax.Float64
	return sql.NullBool{Bool: within, Valid: true}
}
