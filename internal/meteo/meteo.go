// Package meteo fetches the forecast, the geomagnetic outlook and the
// station's place name from public web services.
package meteo

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/url"
	"strconv"
	"strings"

	"meteo-station/internal/httpget"
	"meteo-station/internal/mailbox"
)

const (
	DefaultForecastURL = "https://api.open-meteo.com/v1/forecast"
	DefaultGeomagURL   = "https://services.swpc.noaa.gov/text/3-day-geomag-forecast.txt"
	DefaultGeocodeURL  = "https://nominatim.openstreetmap.org/reverse"
	DefaultUserAgent   = "meteo_station/1.0"
)

var ErrNoData = errors.New("no data")

//go:embed certs/isrg-root-x1.pem
var isrgRootX1 []byte

//go:embed certs/amazon-root-ca-1.pem
var amazonRootCA1 []byte

type Client struct {
	http   httpget.Getter
	logger *slog.Logger

	ForecastURL string
	GeomagURL   string
	GeocodeURL  string
	UserAgent   string
	Language    string
	Timezone    string

	// PinRoots restricts TLS to the roots each service is known to chain to.
	PinRoots bool
}

func NewClient(get httpget.Getter, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		http:        get,
		logger:      logger,
		ForecastURL: DefaultForecastURL,
		GeomagURL:   DefaultGeomagURL,
		GeocodeURL:  DefaultGeocodeURL,
		UserAgent:   DefaultUserAgent,
		Language:    "ru",
		Timezone:    "auto",
	}
}

func (c *Client) get(ctx context.Context, u string, root []byte, userAgent string) string {
	var opts []httpget.Option
	if c.PinRoots {
		opts = append(opts, httpget.WithRootCA(root))
	}
	if userAgent != "" {
		opts = append(opts, httpget.WithUserAgent(userAgent))
	}
	return c.http.Get(ctx, u, opts...)
}

type forecastResponse struct {
	Current *struct {
		WeatherCode   *int     `json:"weather_code"`
		Temperature   *float64 `json:"temperature_2m"`
		Precipitation float64  `json:"precipitation"`
		WindSpeed     float64  `json:"wind_speed_10m"`
		WindDirection float64  `json:"wind_direction_10m"`
		Humidity      float64  `json:"relative_humidity_2m"`
		Pressure      float64  `json:"surface_pressure"`
	} `json:"current"`
	Daily *struct {
		Time          []string  `json:"time"`
		WeatherCode   []int     `json:"weather_code"`
		TempMax       []float64 `json:"temperature_2m_max"`
		TempMin       []float64 `json:"temperature_2m_min"`
		Precipitation []float64 `json:"precipitation_sum"`
		PrecipChance  []float64 `json:"precipitation_probability_max"`
		WindSpeed     []float64 `json:"wind_speed_10m_max"`
		WindDirection []float64 `json:"wind_direction_10m_dominant"`
	} `json:"daily"`
}

func (c *Client) forecastURL(lat, lon float64) string {
	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(lat, 'f', 4, 64))
	q.Set("longitude", strconv.FormatFloat(lon, 'f', 4, 64))
	q.Set("current", "weather_code,temperature_2m,precipitation,wind_speed_10m,wind_direction_10m,relative_humidity_2m,surface_pressure")
	q.Set("daily", "temperature_2m_max,temperature_2m_min,precipitation_sum,precipitation_probability_max,wind_speed_10m_max,wind_direction_10m_dominant,weather_code")
	q.Set("forecast_days", "3")
	q.Set("wind_speed_unit", "ms")
	q.Set("timezone", c.Timezone)
	q.Set("models", "icon_seamless")
	return c.ForecastURL + "?" + q.Encode()
}

// Forecast returns current conditions plus three daily entries. Either all
// four entries are filled or an error wrapping ErrNoData is returned.
func (c *Client) Forecast(ctx context.Context, lat, lon float64) (mailbox.ForecastSet, error) {
	body := c.get(ctx, c.forecastURL(lat, lon), isrgRootX1, "")
	if httpget.IsNoData(body) {
		return mailbox.ForecastSet{}, fmt.Errorf("forecast: %w", ErrNoData)
	}
	return ParseForecast([]byte(body))
}

func ParseForecast(body []byte) (mailbox.ForecastSet, error) {
	var set mailbox.ForecastSet

	var resp forecastResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return set, fmt.Errorf("forecast: decode: %w: %w", ErrNoData, err)
	}
	if resp.Current == nil || resp.Current.Temperature == nil || resp.Current.WeatherCode == nil {
		return set, fmt.Errorf("forecast: %w: missing current conditions", ErrNoData)
	}
	d := resp.Daily
	if d == nil {
		return set, fmt.Errorf("forecast: %w: missing daily block", ErrNoData)
	}
	days := mailbox.ForecastEntries - 1
	for name, n := range map[string]int{
		"time":               len(d.Time),
		"weather_code":       len(d.WeatherCode),
		"temperature_2m_max": len(d.TempMax),
		"temperature_2m_min": len(d.TempMin),
	} {
		if n < days {
			return set, fmt.Errorf("forecast: %w: daily %s has %d values", ErrNoData, name, n)
		}
	}

	cur := resp.Current
	set.Entries[0] = mailbox.ForecastEntry{
		Index:         0,
		WeatherCode:   *cur.WeatherCode,
		Temperature:   *cur.Temperature,
		Pressure:      int(math.Round(cur.Pressure)),
		Humidity:      int(math.Round(cur.Humidity)),
		Precipitation: cur.Precipitation,
		WindSpeed:     cur.WindSpeed,
		WindDirection: int(math.Round(cur.WindDirection)),
	}

	for i := range days {
		date, err := reformatDate(d.Time[i])
		if err != nil {
			return mailbox.ForecastSet{}, fmt.Errorf("forecast: %w: %w", ErrNoData, err)
		}
		set.Entries[i+1] = mailbox.ForecastEntry{
			Index:         i + 1,
			WeatherCode:   d.WeatherCode[i],
			Temperature:   d.TempMax[i],
			TemperatureHi: d.TempMax[i],
			TemperatureLo: d.TempMin[i],
			Precipitation: at(d.Precipitation, i),
			PrecipChance:  int(math.Round(at(d.PrecipChance, i))),
			WindSpeed:     at(d.WindSpeed, i),
			WindDirection: int(math.Round(at(d.WindDirection, i))),
			Date:          date,
		}
	}
	return set, nil
}

func at(v []float64, i int) float64 {
	if i < len(v) {
		return v[i]
	}
	return 0
}

// reformatDate turns YYYY-MM-DD into DD-MM-YYYY.
func reformatDate(s string) (string, error) {
	parts := strings.Split(s, "-")
	if len(parts) != 3 || len(parts[0]) != 4 || len(parts[1]) != 2 || len(parts[2]) != 2 {
		return "", fmt.Errorf("bad date %q", s)
	}
	return parts[2] + "-" + parts[1] + "-" + parts[0], nil
}

// Geomagnetic returns the daily maximum Kp for the next three days.
func (c *Client) Geomagnetic(ctx context.Context) (mailbox.GeomagneticForecast, error) {
	body := c.get(ctx, c.GeomagURL, amazonRootCA1, "")
	if httpget.IsNoData(body) {
		return mailbox.GeomagneticForecast{}, fmt.Errorf("geomagnetic: %w", ErrNoData)
	}
	g, ok := ParseKp(body)
	if !ok {
		return mailbox.GeomagneticForecast{}, fmt.Errorf("geomagnetic: %w: Kp table not found", ErrNoData)
	}
	return g, nil
}

type reverseResponse struct {
	Address     map[string]string `json:"address"`
	DisplayName string            `json:"display_name"`
}

var placeKeys = []string{"city", "town", "village", "municipality", "county", "state"}

// PlaceName reverse geocodes the coordinates. It returns "" when nothing
// usable came back.
func (c *Client) PlaceName(ctx context.Context, lat, lon float64) string {
	q := url.Values{}
	q.Set("format", "json")
	q.Set("addressdetails", "1")
	q.Set("accept-language", c.Language)
	q.Set("lat", strconv.FormatFloat(lat, 'f', 6, 64))
	q.Set("lon", strconv.FormatFloat(lon, 'f', 6, 64))
	q.Set("zoom", "10")

	body := c.get(ctx, c.GeocodeURL+"?"+q.Encode(), isrgRootX1, c.UserAgent)
	if httpget.IsNoData(body) {
		return ""
	}

	var resp reverseResponse
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		c.logger.Warn("reverse geocode: decode", "err", err)
		return ""
	}
	for _, k := range placeKeys {
		if name := strings.TrimSpace(resp.Address[k]); name != "" {
			return name
		}
	}
	name, _, _ := strings.Cut(resp.DisplayName, ",")
	return strings.TrimSpace(name)
}
