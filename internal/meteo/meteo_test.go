package meteo

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"meteo-station/internal/httpget"
)

const forecastBody = `{
  "current": {"weather_code": 3, "temperature_2m": 12.4, "precipitation": 0.2,
              "wind_speed_10m": 4.1, "wind_direction_10m": 270.4,
              "relative_humidity_2m": 81.6, "surface_pressure": 1011.7},
  "daily": {
    "time": ["2026-10-14", "2026-10-15", "2026-10-16"],
    "weather_code": [3, 61, 0],
    "temperature_2m_max": [14.1, 11.0, 9.5],
    "temperature_2m_min": [6.2, 5.0, 1.3],
    "precipitation_sum": [0.4, 7.8, 0],
    "precipitation_probability_max": [20, 90, 5],
    "wind_speed_10m_max": [6.0, 9.2, 3.3],
    "wind_direction_10m_dominant": [265, 300, 180]
  }
}`

const geomagBody = `:Product: 3-Day Geomagnetic Forecast
:Issued: 2026 Oct 14 0030 UTC

NOAA Ap Index Forecast
Observed Ap 13 Oct 005

NOAA Kp index forecast 14 Oct - 16 Oct
             Oct 14    Oct 15    Oct 16
00-03UT        2.67      3.00      2.33
03-06UT        2.00      5.00 (G1) 2.00
06-09UT        1.67      3.33      1.67
09-12UT        1.33      2.67      1.33
12-15UT        1.33      2.33      1.00
15-18UT        1.67      2.00      1.33
18-21UT        2.33      2.33      1.67
21-00UT        3.00      2.67      2.00
`

type fakeGetter struct {
	bodies map[string]string
	urls   []string
}

func (f *fakeGetter) Get(_ context.Context, u string, _ ...httpget.Option) string {
	f.urls = append(f.urls, u)
	for prefix, body := range f.bodies {
		if strings.HasPrefix(u, prefix) {
			return body
		}
	}
	return httpget.Sentinel
}

func TestForecast(t *testing.T) {
	g := &fakeGetter{bodies: map[string]string{DefaultForecastURL: forecastBody}}
	c := NewClient(g, nil)

	set, err := c.Forecast(context.Background(), 47.2362, 38.8969)
	if err != nil {
		t.Fatalf("Forecast() error = %v, want nil", err)
	}

	cur := set.Entries[0]
	if cur.Index != 0 || cur.WeatherCode != 3 || cur.Temperature != 12.4 || cur.Pressure != 1012 || cur.Humidity != 82 {
		t.Errorf("current = %+v", cur)
	}
	if cur.Date != "" {
		t.Errorf("current date = %q, want empty", cur.Date)
	}

	tomorrow := set.Entries[2]
	if tomorrow.Index != 2 || tomorrow.Date != "15-10-2026" || tomorrow.WeatherCode != 61 {
		t.Errorf("tomorrow = %+v", tomorrow)
	}
	if tomorrow.TemperatureHi != 11.0 || tomorrow.TemperatureLo != 5.0 || tomorrow.PrecipChance != 90 {
		t.Errorf("tomorrow ranges = %+v", tomorrow)
	}

	u, err := url.Parse(g.urls[0])
	if err != nil {
		t.Fatalf("parse request url: %v", err)
	}
	q := u.Query()
	if q.Get("forecast_days") != "3" || q.Get("wind_speed_unit") != "ms" || q.Get("latitude") != "47.2362" {
		t.Errorf("forecast query = %v", q)
	}
}

func TestForecastNoDataCases(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"sentinel", httpget.Sentinel},
		{"empty", ""},
		{"not json", "<html>"},
		{"short daily", `{"current":{"weather_code":1,"temperature_2m":1},"daily":{"time":["2026-10-14"],"weather_code":[1],"temperature_2m_max":[1],"temperature_2m_min":[1]}}`},
		{"missing current", `{"daily":{}}`},
		{"bad date", strings.Replace(forecastBody, "2026-10-15", "15.10.2026", 1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewClient(&fakeGetter{bodies: map[string]string{DefaultForecastURL: tt.body}}, nil)
			set, err := c.Forecast(context.Background(), 1, 2)
			if !errors.Is(err, ErrNoData) {
				t.Fatalf("Forecast() error = %v, want ErrNoData", err)
			}
			if set.Entries[0].WeatherCode != 0 || set.Entries[3].Date != "" {
				t.Fatalf("Forecast() returned partial data: %+v", set)
			}
		})
	}
}

func TestParseKp(t *testing.T) {
	g, ok := ParseKp(geomagBody)
	if !ok {
		t.Fatal("ParseKp() ok = false, want true")
	}
	want := [3]float64{3.00, 5.00, 2.33}
	if g.Kp != want {
		t.Fatalf("ParseKp() = %v, want %v", g.Kp, want)
	}

	if _, ok := ParseKp("NOAA Ap Index Forecast only"); ok {
		t.Fatal("ParseKp() without table ok = true, want false")
	}
	broken := strings.Replace(geomagBody, "1.67      3.33      1.67", "1.67", 1)
	if _, ok := ParseKp(broken); ok {
		t.Fatal("ParseKp() with short row ok = true, want false")
	}
	truncated := geomagBody[:strings.Index(geomagBody, "12-15UT")]
	if g, ok := ParseKp(truncated); ok || g.Kp != ([3]float64{}) {
		t.Fatalf("ParseKp() with 4 of 8 rows = %v, %v, want zero, false", g.Kp, ok)
	}
}

func TestGeomagnetic(t *testing.T) {
	c := NewClient(&fakeGetter{bodies: map[string]string{DefaultGeomagURL: geomagBody}}, nil)
	g, err := c.Geomagnetic(context.Background())
	if err != nil {
		t.Fatalf("Geomagnetic() error = %v, want nil", err)
	}
	if g.Kp[1] != 5 {
		t.Fatalf("Geomagnetic() = %v", g.Kp)
	}

	c = NewClient(&fakeGetter{}, nil)
	if _, err := c.Geomagnetic(context.Background()); !errors.Is(err, ErrNoData) {
		t.Fatalf("Geomagnetic() on sentinel error = %v, want ErrNoData", err)
	}
}

func TestPlaceNamePreference(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"city wins", `{"address":{"city":"Taganrog","state":"Rostov"}}`, "Taganrog"},
		{"town before county", `{"address":{"county":"Neklinovsky","town":"Pokrovskoye"}}`, "Pokrovskoye"},
		{"state only", `{"address":{"state":"Rostov Oblast"}}`, "Rostov Oblast"},
		{"display name fallback", `{"address":{},"display_name":"Sea of Azov, Russia"}`, "Sea of Azov"},
		{"nothing", `{"address":{}}`, ""},
		{"garbage", `not json`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewClient(&fakeGetter{bodies: map[string]string{DefaultGeocodeURL: tt.body}}, nil)
			if got := c.PlaceName(context.Background(), 47.2, 38.9); got != tt.want {
				t.Fatalf("PlaceName() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPlaceNameSendsUserAgent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != DefaultUserAgent {
			http.Error(w, "no agent", http.StatusForbidden)
			return
		}
		if r.URL.Query().Get("zoom") != "10" {
			http.Error(w, "zoom", http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"address":{"village":"Sambek"}}`))
	}))
	defer srv.Close()

	c := NewClient(httpget.New(time.Second, nil), nil)
	c.GeocodeURL = srv.URL
	if got := c.PlaceName(context.Background(), 47.2, 38.9); got != "Sambek" {
		t.Fatalf("PlaceName() = %q, want Sambek", got)
	}
}

func TestEmbeddedRootsParse(t *testing.T) {
	for name, pem := range map[string][]byte{"isrg": isrgRootX1, "amazon": amazonRootCA1} {
		if !strings.Contains(string(pem), "BEGIN CERTIFICATE") {
			t.Fatalf("%s root is not PEM", name)
		}
	}
}
