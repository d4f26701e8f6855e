package display

import (
	"log/slog"

	"meteo-station/internal/mailbox"
)

// Connection is the triple shown by the link widget.
type Connection struct {
	Up   bool // broker and relay
	Down bool // forecast source
	Wifi bool
}

// Renderer draws individual widgets. Calls are idempotent: drawing the same
// values twice produces the same output.
type Renderer interface {
	Clock(hour, minute int) error
	Date(label string) error
	Connection(c Connection) error
	Indoor(s mailbox.IndoorSample, valid bool) error
	Outdoor(s mailbox.OutdoorSample, valid bool) error
	Battery(percent uint16) error
	PlaceName(name string) error
	Current(e mailbox.ForecastEntry, valid bool) error
	Forecast(col int, e mailbox.ForecastEntry, label string, kp float64, valid bool) error
	UpdateNotice() error
}

// LogRenderer writes every widget as a structured log record. It stands in
// for a panel on headless hosts.
type LogRenderer struct {
	logger *slog.Logger
}

func NewLogRenderer(logger *slog.Logger) *LogRenderer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogRenderer{logger: logger.With("renderer", "log")}
}

func (l *LogRenderer) Clock(hour, minute int) error {
	l.logger.Info("clock", "hour", hour, "minute", minute)
	return nil
}

func (l *LogRenderer) Date(label string) error {
	l.logger.Info("date", "label", label)
	return nil
}

func (l *LogRenderer) Connection(c Connection) error {
	l.logger.Info("connection", "up", c.Up, "down", c.Down, "wifi", c.Wifi)
	return nil
}

func (l *LogRenderer) Indoor(s mailbox.IndoorSample, valid bool) error {
	l.logger.Info("indoor", "t", s.Temperature, "h", s.Humidity, "p", s.Pressure, "valid", valid)
	return nil
}

func (l *LogRenderer) Outdoor(s mailbox.OutdoorSample, valid bool) error {
	l.logger.Info("outdoor", "t", s.Temperature, "h", s.Humidity, "p", s.Pressure, "valid", valid)
	return nil
}

func (l *LogRenderer) Battery(percent uint16) error {
	l.logger.Info("battery", "percent", percent)
	return nil
}

func (l *LogRenderer) PlaceName(name string) error {
	l.logger.Info("place", "name", name)
	return nil
}

func (l *LogRenderer) Current(e mailbox.ForecastEntry, valid bool) error {
	l.logger.Info("current weather",
		"t", e.Temperature, "h", e.Humidity, "wind", e.WindSpeed, "dir", e.WindDirection,
		"code", e.WeatherCode, "valid", valid)
	return nil
}

func (l *LogRenderer) Forecast(col int, e mailbox.ForecastEntry, label string, kp float64, valid bool) error {
	l.logger.Info("forecast",
		"col", col, "label", label, "lo", e.TemperatureLo, "hi", e.TemperatureHi,
		"wind", e.WindSpeed, "dir", e.WindDirection, "precip", e.PrecipChance,
		"code", e.WeatherCode, "kp", kp, "valid", valid)
	return nil
}

func (l *LogRenderer) UpdateNotice() error {
	l.logger.Info("firmware update in progress")
	return nil
}
