// Package sources implements the per-provider forecast adapters. Each
// adapter normalizes one provider's representation (API JSON, scraped
// HTML, or FTP XML) into a models.Forecast for a single station and
// capture date. Adapters fail independently: any fetch or parse problem
// surfaces as ErrSourceUnavailable for that (station, source) pair and
// never aborts the wider capture run.
package sources

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"strconv"
	"time"

	"github.com/lox/adelaideauditor/internal/models"
)

// ErrSourceUnavailable covers every per-source failure mode: network
// errors, timeouts, non-200 statuses, selector drift on scraped pages,
// and payloads missing the fields a forecast needs.
var ErrSourceUnavailable = errors.New("source unavailable")

// Source is one forecast provider. ID is stable and used as the
// source_id component of the record store key.
type Source interface {
	ID() string
	Fetch(ctx context.Context, station models.Station, captureDate time.Time) (models.Forecast, error)
}

var numberRe = regexp.MustCompile(`(-?\d+\.?\d*)`)

// parseRainRange normalizes precipitation text into a [min, max] pair.
// "0 to 1 mm" and "25 to 40mm" give a range; a bare "5 mm" is a point
// estimate with min == max. Text with no numbers leaves both absent.
func parseRainRange(s string) (min, max sql.NullFloat64) {
	nums := numberRe.FindAllString(s, 2)
	switch len(nums) {
	case 0:
		return
	case 1:
		v, err := strconv.ParseFloat(nums[0], 64)
		if err != nil {
			return
		}
		return sql.NullFloat64{Float64: v, Valid: true}, sql.NullFloat64{Float64: v, Valid: true}
	default:
		lo, err1 := strconv.ParseFloat(nums[0], 64)
		hi, err2 := strconv.ParseFloat(nums[1], 64)
		if err1 != nil || err2 != nil {
			return
		}
		return sql.NullFloat64{Float64: lo, Valid: true}, sql.NullFloat64{Float64: hi, Valid: true}
	}
}

// parseFirstNumber extracts the leading numeric token from free text,
// e.g. "Max: 24 °C" -> 24.
func parseFirstNumber(s string) sql.NullFloat64 {
	m := numberRe.FindString(s)
	if m == "" {
		return sql.NullFloat64{}
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}
