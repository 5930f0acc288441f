package ingest

import "github.com/lox/adelaideauditor/internal/models"

const (
	FlagRainNegative      = "rain_negative"
	FlagMaxTempOutOfRange = "max_temp_out_of_range"
	FlagMinTempOutOfRange = "min_temp_out_of_range"
	FlagMinExceedsMax     = "min_exceeds_max"
)

// ValidateActual checks an actual record against plausible physical
// bounds for the Adelaide region. Implausible values are cleared to
// absent rather than trusted: a negative rain trace or a 90 °C maximum
// is a feed defect, and recording it would poison every source's error
// statistics. Returned flags name what was dropped so operators can
// review the feed.
func ValidateActual(a *models.Actual) []string {
	var flags []string

	if a.Rain.Valid && a.Rain.Float64 < 0 {
		a.Rain.Valid = false
		flags = append(flags, FlagRainNegative)
	}

	if a.TempMax.Valid && (a.TempMax.Float64 < -10 || a.TempMax.Float64 > 55) {
		a.TempMax.Valid = false
		flags = append(flags, FlagMaxTempOutOfRange)
	}

	if a.TempMin.Valid && (a.TempMin.Float64 < -10 || a.TempMin.Float64 > 55) {
		a.TempMin.Valid = false
		flags = append(flags, FlagMinTempOutOfRange)
	}

	if a.TempMin.Valid && a.TempMax.Valid && a.TempMin.Float64 > a.TempMax.Float64 {
		a.TempMin.Valid = false
		a.TempMax.Valid = false
		flags = append(flags, FlagMinExceedsMax)
	}

	return flags
}
