package sources

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/lox/adelaideauditor/internal/httputil"
	"github.com/lox/adelaideauditor/internal/models"
)

const bomPlacesBaseURL = "https://www.bom.gov.au"

// BOMPlaces scrapes the published forecast from a station's page on
// bom.gov.au/places. This is the human-curated forecast BOM
// meteorologists issue, the one most people actually see.
//
// The pages use a stable dt/dd structure for the first forecast block:
//
//	Min: 13 °C | Max: 24 °C
//	Possible rainfall: 0 to 1 mm
//
// Late in the day BOM drops the Min entry once the overnight low has
// passed; that field is left absent rather than guessed.
type BOMPlaces struct {
	client  *http.Client
	baseURL string
}

func NewBOMPlaces() *BOMPlaces {
	return &BOMPlaces{
		client:  httputil.NewClient(),
		baseURL: bomPlacesBaseURL,
	}
}

func (b *BOMPlaces) ID() string { return "bom" }

func (b *BOMPlaces) Fetch(ctx context.Context, station models.Station, captureDate time.Time) (models.Forecast, error) {
	if station.BOMPlace == "" {
		return models.Forecast{}, fmt.Errorf("bom: %w: station %s has no forecast page slug", ErrSourceUnavailable, station.StationID)
	}

	url := fmt.Sprintf("%s/places/sa/%s/forecast", b.baseURL, station.BOMPlace)
	req, err := httputil.NewBrowserRequest(ctx, url)
	if err != nil {
		return models.Forecast{}, fmt.Errorf("bom: %w", err)
	}
	req.Header.Set("Accept", "text/html")

	resp, err := b.client.Do(req)
	if err != nil {
		return models.Forecast{}, fmt.Errorf("bom fetch %s: %w: %w", station.BOMPlace, ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.Forecast{}, fmt.Errorf("bom fetch %s: %w: status %d", station.BOMPlace, ErrSourceUnavailable, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return models.Forecast{}, fmt.Errorf("bom parse %s: %w: %w", station.BOMPlace, ErrSourceUnavailable, err)
	}

	fc, err := parsePlacesForecast(doc)
	if err != nil {
		return models.Forecast{}, fmt.Errorf("bom parse %s: %w", station.BOMPlace, err)
	}

	fc.CaptureDate = captureDate
	fc.StationID = station.StationID
	fc.SourceID = b.ID()
	fc.CapturedAt = time.Now().UTC()
	return fc, nil
}

// parsePlacesForecast extracts the first forecast block's figures from
// the dt/dd pairs of a places page.
func parsePlacesForecast(doc *goquery.Document) (models.Forecast, error) {
	var fc models.Forecast

	doc.Find("dt").EachWithBreak(func(_ int, dt *goquery.Selection) bool {
		label := strings.ToLower(strings.TrimSpace(dt.Text()))
		dd := dt.NextFiltered("dd")
		if dd.Length() == 0 {
			return true
		}
		value := strings.TrimSpace(dd.Text())

		switch {
		case label == "min" && !fc.TempMin.Valid:
			fc.TempMin = parseFirstNumber(value)
		case label == "max" && !fc.TempMax.Valid:
			fc.TempMax = parseFirstNumber(value)
		case strings.Contains(label, "possible rainfall") && !fc.RainMin.Valid:
			fc.RainMin, fc.RainMax = parseRainRange(value)
		}

		// The first block is complete once max and rainfall are seen;
		// stopping avoids picking up tomorrow's figures.
		return !(fc.TempMax.Valid && fc.RainMin.Valid)
	})

	if !fc.TempMax.Valid {
		return models.Forecast{}, fmt.Errorf("%w: no max temperature found (selector drift?)", ErrSourceUnavailable)
	}

	// A page that names no rainfall at all forecasts a dry day.
	if !fc.RainMin.Valid {
		fc.RainMin = sql.NullFloat64{Float64: 0, Valid: true}
		fc.RainMax = fc.RainMin
	}

	return fc, nil
}
