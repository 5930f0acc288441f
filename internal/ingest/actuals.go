package ingest

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/tidwall/gjson"

	"github.com/lox/adelaideauditor/internal/httputil"
	"github.com/lox/adelaideauditor/internal/models"
)

const bomObsBaseURL = "http://www.bom.gov.au"

// ActualsClient fetches recorded observations from the BOM JSON feed.
// This is not a forecast: it is the instrument record used as ground
// truth when grading every provider's predictions.
type ActualsClient struct {
	client  *http.Client
	baseURL string
	loc     *time.Location
}

func NewActualsClient(loc *time.Location) *ActualsClient {
	return &ActualsClient{
		client:  httputil.NewClient(),
		baseURL: bomObsBaseURL,
		loc:     loc,
	}
}

// Fetch retrieves the observation feed for a station and reduces it to
// the actual max/min temperature and rainfall for the given civil date.
// The feed holds ~72 hours of readings, so yesterday's figures are
// usually available the following morning. When the feed lags, the
// caller retries on a later run and the store merges whatever arrives.
func (c *ActualsClient) Fetch(ctx context.Context, station models.Station, date time.Time) (models.Actual, error) {
	if station.BOMProductID == "" || station.BOMStationNumber == "" {
		return models.Actual{}, fmt.Errorf("actuals: station %s has no observation feed configured", station.StationID)
	}

	url := fmt.Sprintf("%s/fwo/%s/%s.%s.json", c.baseURL, station.BOMProductID, station.BOMProductID, station.BOMStationNumber)

	var body []byte
	operation := func() error {
		req, err := httputil.NewBrowserRequest(ctx, url)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("Referer", bomObsBaseURL+"/")

		resp, err := c.client.Do(req)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("fetch observations: %w", err))
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusForbidden {
			return fmt.Errorf("rate limited: status %d", resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			return backoff.Permanent(fmt.Errorf("fetch observations: status %d", resp.StatusCode))
		}

		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("read body: %w", err))
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 1 * time.Minute
	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		return models.Actual{}, fmt.Errorf("actuals %s: %w", station.StationID, err)
	}

	return c.reduce(body, station, date)
}

// reduce filters the raw observation list down to the requested date and
// derives daily aggregates from the individual readings.
func (c *ActualsClient) reduce(body []byte, station models.Station, date time.Time) (models.Actual, error) {
	data := gjson.GetBytes(body, "observations.data")
	if !data.Exists() || !data.IsArray() {
		return models.Actual{}, fmt.Errorf("actuals %s: feed has no observation data", station.StationID)
	}

	wantDate := date.Format("20060102")

	actual := models.Actual{
		ActualDate: date,
		StationID:  station.StationID,
	}

	var haveTemp bool
	var maxT, minT float64
	var latestRain string

	data.ForEach(func(_, obs gjson.Result) bool {
		stamp := obs.Get("local_date_time_full").String()
		if len(stamp) < 8 || stamp[:8] != wantDate {
			return true
		}

		if temp := obs.Get("air_temp"); temp.Exists() && temp.Type == gjson.Number {
			v := temp.Float()
			if !haveTemp || v > maxT {
				maxT = v
			}
			if !haveTemp || v < minT {
				minT = v
			}
			haveTemp = true
		}

		// rain_trace is cumulative since 9am; the feed is newest-first,
		// so the first reading for the date carries the day's total.
		if latestRain == "" {
			if rt := obs.Get("rain_trace").String(); rt != "" && rt != "-" {
				latestRain = rt
			}
		}

		return true
	})

	if haveTemp {
		actual.TempMax = sql.NullFloat64{Float64: maxT, Valid: true}
		actual.TempMin = sql.NullFloat64{Float64: minT, Valid: true}
	}
	if latestRain != "" {
		if v, err := strconv.ParseFloat(latestRain, 64); err == nil {
			actual.Rain = sql.NullFloat64{Float64: v, Valid: true}
		}
	}

	if !actual.TempMax.Valid && !actual.Rain.Valid {
		return models.Actual{}, fmt.Errorf("actuals %s: no observations for %s yet", station.StationID, date.Format("2006-01-02"))
	}

	return actual, nil
}
