package sources

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"time"

	"github.com/jlaffaye/ftp"

	"github.com/lox/adelaideauditor/internal/models"
)

const (
	bomFTPHost        = "ftp.bom.gov.au:21"
	bomSAForecastFile = "/anon/gen/fwo/IDS10034.xml"
	bomFTPDialTimeout = 15 * time.Second
)

// BOMFTP fetches the machine-readable SA city forecast product over
// BOM's anonymous FTP service. Unlike the places-page scrape this is a
// structured XML feed, so it degrades differently: the transport can
// fail, but the fields never move.
type BOMFTP struct {
	host string
	file string
}

func NewBOMFTP() *BOMFTP {
	return &BOMFTP{host: bomFTPHost, file: bomSAForecastFile}
}

func (b *BOMFTP) ID() string { return "bom-ftp" }

type bomProduct struct {
	XMLName  xml.Name       `xml:"product"`
	Forecast bomForecastDoc `xml:"forecast"`
}

type bomForecastDoc struct {
	Areas []bomArea `xml:"area"`
}

type bomArea struct {
	AAC     string              `xml:"aac,attr"`
	Type    string              `xml:"type,attr"`
	Periods []bomForecastPeriod `xml:"forecast-period"`
}

type bomForecastPeriod struct {
	Index     int          `xml:"index,attr"`
	StartTime string       `xml:"start-time-utc,attr"`
	Elements  []bomElement `xml:"element"`
}

type bomElement struct {
	Type  string `xml:"type,attr"`
	Units string `xml:"units,attr"`
	Value string `xml:",chardata"`
}

func (b *BOMFTP) Fetch(ctx context.Context, station models.Station, captureDate time.Time) (models.Forecast, error) {
	if station.AAC == "" {
		return models.Forecast{}, fmt.Errorf("bom-ftp: %w: station %s has no AAC", ErrSourceUnavailable, station.StationID)
	}

	body, err := b.retrieve(ctx)
	if err != nil {
		return models.Forecast{}, fmt.Errorf("bom-ftp: %w: %w", ErrSourceUnavailable, err)
	}

	fc, err := parseBOMProduct(body, station.AAC)
	if err != nil {
		return models.Forecast{}, fmt.Errorf("bom-ftp: %w", err)
	}

	fc.CaptureDate = captureDate
	fc.StationID = station.StationID
	fc.SourceID = b.ID()
	fc.CapturedAt = time.Now().UTC()
	return fc, nil
}

func (b *BOMFTP) retrieve(ctx context.Context) ([]byte, error) {
	conn, err := ftp.Dial(b.host, ftp.DialWithTimeout(bomFTPDialTimeout), ftp.DialWithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("ftp dial: %w", err)
	}
	defer conn.Quit()

	if err := conn.Login("anonymous", "anonymous"); err != nil {
		return nil, fmt.Errorf("ftp login: %w", err)
	}

	resp, err := conn.Retr(b.file)
	if err != nil {
		return nil, fmt.Errorf("ftp retr: %w", err)
	}
	defer resp.Close()

	body, err := io.ReadAll(resp)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

// parseBOMProduct extracts today's forecast (period index 0) for the
// given area from a city forecast XML product.
func parseBOMProduct(body []byte, aac string) (models.Forecast, error) {
	var product bomProduct
	if err := xml.Unmarshal(body, &product); err != nil {
		return models.Forecast{}, fmt.Errorf("%w: unmarshal xml: %w", ErrSourceUnavailable, err)
	}

	var targetArea *bomArea
	for i := range product.Forecast.Areas {
		if product.Forecast.Areas[i].AAC == aac && product.Forecast.Areas[i].Type == "location" {
			targetArea = &product.Forecast.Areas[i]
			break
		}
	}
	if targetArea == nil {
		return models.Forecast{}, fmt.Errorf("%w: area %s not found in product", ErrSourceUnavailable, aac)
	}

	var fc models.Forecast
	found := false
	for _, period := range targetArea.Periods {
		if period.Index != 0 {
			continue
		}
		found = true
		for _, elem := range period.Elements {
			switch elem.Type {
			case "air_temperature_maximum":
				fc.TempMax = parseFirstNumber(elem.Value)
			case "air_temperature_minimum":
				fc.TempMin = parseFirstNumber(elem.Value)
			case "precipitation_range":
				fc.RainMin, fc.RainMax = parseRainRange(elem.Value)
			}
		}
	}
	if !found {
		return models.Forecast{}, fmt.Errorf("%w: no period 0 for area %s", ErrSourceUnavailable, aac)
	}
	if !fc.TempMax.Valid && !fc.TempMin.Valid {
		return models.Forecast{}, fmt.Errorf("%w: period 0 for %s carries no temperatures", ErrSourceUnavailable, aac)
	}

	return fc, nil
}
