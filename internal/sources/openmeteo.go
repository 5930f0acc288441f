package sources

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/lox/adelaideauditor/internal/httputil"
	"github.com/lox/adelaideauditor/internal/models"
)

const openMeteoBaseURL = "https://api.open-meteo.com/v1/forecast"

// OpenMeteo fetches the daily forecast from the Open-Meteo API. With no
// models parameter the API selects its "best match" blend for the
// coordinates, which for Adelaide mixes the high-resolution local model
// with global ones.
type OpenMeteo struct {
	client   *http.Client
	baseURL  string
	timezone string
}

func NewOpenMeteo(timezone string) *OpenMeteo {
	return &OpenMeteo{
		client:   httputil.NewClient(),
		baseURL:  openMeteoBaseURL,
		timezone: timezone,
	}
}

func (o *OpenMeteo) ID() string { return "open-meteo" }

type openMeteoResponse struct {
	Daily *struct {
		TempMax   []*float64 `json:"temperature_2m_max"`
		TempMin   []*float64 `json:"temperature_2m_min"`
		PrecipSum []*float64 `json:"precipitation_sum"`
	} `json:"daily"`
}

func (o *OpenMeteo) Fetch(ctx context.Context, station models.Station, captureDate time.Time) (models.Forecast, error) {
	q := url.Values{}
	q.Set("latitude", fmt.Sprintf("%.4f", station.Latitude))
	q.Set("longitude", fmt.Sprintf("%.4f", station.Longitude))
	q.Set("daily", "temperature_2m_max,temperature_2m_min,precipitation_sum")
	q.Set("timezone", o.timezone)
	q.Set("forecast_days", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return models.Forecast{}, fmt.Errorf("open-meteo: %w", err)
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return models.Forecast{}, fmt.Errorf("open-meteo fetch: %w: %w", ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.Forecast{}, fmt.Errorf("open-meteo fetch: %w: status %d", ErrSourceUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.Forecast{}, fmt.Errorf("open-meteo read body: %w: %w", ErrSourceUnavailable, err)
	}

	var data openMeteoResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return models.Forecast{}, fmt.Errorf("open-meteo unmarshal: %w: %w", ErrSourceUnavailable, err)
	}
	if data.Daily == nil || len(data.Daily.TempMax) == 0 {
		return models.Forecast{}, fmt.Errorf("open-meteo: %w: no daily block in response", ErrSourceUnavailable)
	}

	fc := models.Forecast{
		CaptureDate: captureDate,
		StationID:   station.StationID,
		SourceID:    o.ID(),
		CapturedAt:  time.Now().UTC(),
	}

	if v := first(data.Daily.TempMax); v != nil {
		fc.TempMax = sql.NullFloat64{Float64: *v, Valid: true}
	}
	if v := first(data.Daily.TempMin); v != nil {
		fc.TempMin = sql.NullFloat64{Float64: *v, Valid: true}
	}
	if !fc.TempMax.Valid || !fc.TempMin.Valid {
		return models.Forecast{}, fmt.Errorf("open-meteo: %w: null temperature data", ErrSourceUnavailable)
	}

	// Precipitation is a single daily sum, normalized as a zero-width
	// range so rain grading works uniformly across sources.
	if v := first(data.Daily.PrecipSum); v != nil {
		fc.RainMin = sql.NullFloat64{Float64: *v, Valid: true}
		fc.RainMax = fc.RainMin
	}

	return fc, nil
}

func first(vals []*float64) *float64 {
	if len(vals) == 0 {
		return nil
	}
	return vals[0]
}
