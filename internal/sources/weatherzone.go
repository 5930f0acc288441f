package sources

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/lox/adelaideauditor/internal/htmlutil"
	"github.com/lox/adelaideauditor/internal/httputil"
	"github.com/lox/adelaideauditor/internal/models"
)

const weatherzoneDefaultURL = "https://www.weatherzone.com.au/sa/adelaide/adelaide"

// Weatherzone scrapes the Adelaide-wide forecast page. The page is one
// general-area forecast, so every station records the same figures.
//
// Scraping here is fragile by nature: the primary strategy uses class
// selectors, with a flattened-text regex fallback for when the markup
// drifts. A miss on both strategies is a normal SourceUnavailable day,
// not a crash.
type Weatherzone struct {
	client *http.Client
	url    string
}

func NewWeatherzone(pageURL string) *Weatherzone {
	if pageURL == "" {
		pageURL = weatherzoneDefaultURL
	}
	return &Weatherzone{
		client: httputil.NewClient(),
		url:    pageURL,
	}
}

func (w *Weatherzone) ID() string { return "weatherzone" }

var (
	degreeRe    = regexp.MustCompile(`(-?\d+)\s*°`)
	rainRangeRe = regexp.MustCompile(`(\d+\.?\d*)\s*(?:-|–|to)\s*(\d+\.?\d*)\s*mm`)
	rainBareRe  = regexp.MustCompile(`(\d+\.?\d*)\s*mm`)
)

func (w *Weatherzone) Fetch(ctx context.Context, station models.Station, captureDate time.Time) (models.Forecast, error) {
	req, err := httputil.NewBrowserRequest(ctx, w.url)
	if err != nil {
		return models.Forecast{}, fmt.Errorf("weatherzone: %w", err)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return models.Forecast{}, fmt.Errorf("weatherzone fetch: %w: %w", ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.Forecast{}, fmt.Errorf("weatherzone fetch: %w: status %d", ErrSourceUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.Forecast{}, fmt.Errorf("weatherzone read body: %w: %w", ErrSourceUnavailable, err)
	}

	fc, err := parseWeatherzonePage(body)
	if err != nil {
		return models.Forecast{}, fmt.Errorf("weatherzone parse: %w", err)
	}

	fc.CaptureDate = captureDate
	fc.StationID = station.StationID
	fc.SourceID = w.ID()
	fc.CapturedAt = time.Now().UTC()
	return fc, nil
}

func parseWeatherzonePage(body []byte) (models.Forecast, error) {
	var fc models.Forecast

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return models.Forecast{}, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}

	// Strategy 1: elements whose class names mention max/min.
	if el := doc.Find(`[class*="max"]`).First(); el.Length() > 0 {
		fc.TempMax = parseFirstNumber(el.Text())
	}
	if el := doc.Find(`[class*="min"]`).First(); el.Length() > 0 {
		fc.TempMin = parseFirstNumber(el.Text())
	}

	text := htmlutil.Flatten(string(body))

	// Strategy 2: degree-symbol tokens in the page text. The first few
	// figures belong to today's panel; min and max bound them.
	if !fc.TempMax.Valid {
		var temps []float64
		for _, m := range degreeRe.FindAllStringSubmatch(text, 4) {
			if v, err := strconv.ParseFloat(m[1], 64); err == nil {
				temps = append(temps, v)
			}
		}
		if len(temps) >= 2 {
			lo, hi := temps[0], temps[0]
			for _, v := range temps {
				if v < lo {
					lo = v
				}
				if v > hi {
					hi = v
				}
			}
			fc.TempMin = sql.NullFloat64{Float64: lo, Valid: true}
			fc.TempMax = sql.NullFloat64{Float64: hi, Valid: true}
		}
	}

	if !fc.TempMax.Valid {
		return models.Forecast{}, fmt.Errorf("%w: no temperatures found", ErrSourceUnavailable)
	}

	// Rainfall: a "25 to 40mm" range wins; a bare "5mm" is a point
	// estimate recorded as a zero-width range. A page with no rainfall
	// figure at all is a dry-day forecast, recorded as 0 to 0.
	if m := rainRangeRe.FindStringSubmatch(text); m != nil {
		lo, err1 := strconv.ParseFloat(m[1], 64)
		hi, err2 := strconv.ParseFloat(m[2], 64)
		if err1 == nil && err2 == nil {
			fc.RainMin = sql.NullFloat64{Float64: lo, Valid: true}
			fc.RainMax = sql.NullFloat64{Float64: hi, Valid: true}
		}
	} else if m := rainBareRe.FindStringSubmatch(text); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			fc.RainMin = sql.NullFloat64{Float64: v, Valid: true}
			fc.RainMax = fc.RainMin
		}
	}
	if !fc.RainMin.Valid {
		fc.RainMin = sql.NullFloat64{Float64: 0, Valid: true}
		fc.RainMax = fc.RainMin
	}

	return fc, nil
}
