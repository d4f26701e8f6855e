package mailbox

import (
	"time"

	"meteo-station/internal/settings"
)

type Kind uint8

const (
	KindConfig Kind = iota + 1
	KindForecast
	KindGeomagnetic
	KindIndoor
	KindOutdoor
	KindPlaceName
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindForecast:
		return "forecast"
	case KindGeomagnetic:
		return "geomagnetic"
	case KindIndoor:
		return "indoor"
	case KindOutdoor:
		return "outdoor"
	case KindPlaceName:
		return "place_name"
	default:
		return "unknown"
	}
}

// Item is a value moved through a Mailbox. Every implementation is a plain
// value type, so once sent the producer's copy is unrelated to what the
// consumer receives.
type Item interface {
	Kind() Kind
	item()
}

type Config struct {
	Station settings.Station
}

const ForecastEntries = 4

// ForecastEntry is one slot of a forecast set. Slot 0 holds current
// conditions, slots 1..3 the daily forecast for today and the next two days.
type ForecastEntry struct {
	Index         int
	WeatherCode   int
	Temperature   float64
	TemperatureLo float64
	TemperatureHi float64
	Pressure      int
	Humidity      int
	Precipitation float64
	PrecipChance  int
	WindSpeed     float64
	WindDirection int
	Date          string // DD-MM-YYYY, empty for current conditions
}

type ForecastSet struct {
	Entries [ForecastEntries]ForecastEntry
}

// GeomagneticForecast holds the maximum Kp index per day for three days.
type GeomagneticForecast struct {
	Kp [3]float64
}

type IndoorSample struct {
	Temperature float64
	Humidity    uint8
	Pressure    float64
}

type OutdoorSample struct {
	Temperature float64
	Humidity    float64
	Pressure    uint16
	Battery     uint16
	ReceivedAt  time.Time
}

type PlaceName struct {
	Name string
}

func (Config) Kind() Kind              { return KindConfig }
func (ForecastSet) Kind() Kind         { return KindForecast }
func (GeomagneticForecast) Kind() Kind { return KindGeomagnetic }
func (IndoorSample) Kind() Kind        { return KindIndoor }
func (OutdoorSample) Kind() Kind       { return KindOutdoor }
func (PlaceName) Kind() Kind           { return KindPlaceName }

func (Config) item()              {}
func (ForecastSet) item()         {}
func (GeomagneticForecast) item() {}
func (IndoorSample) item()        {}
func (OutdoorSample) item()       {}
func (PlaceName) item()           {}
