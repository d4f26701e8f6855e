// Package display owns the presentation snapshot: it merges every item sent
// to the display mailbox, ages data out and redraws only what changed.
package display

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"meteo-station/internal/mailbox"
	"meteo-station/internal/sampling"
	"meteo-station/internal/status"
)

const (
	DefaultTick    = time.Second
	DefaultHorizon = 30 * time.Minute

	todayLabel = "TODAY"
	dateLayout = "02-01-2006"
)

type Section uint16

const (
	SectionClock Section = 1 << iota
	SectionDate
	SectionConnection
	SectionIndoor
	SectionOutdoor
	SectionBattery
	SectionPlace
	SectionCurrent
	SectionForecast

	sectionAll = SectionClock | SectionDate | SectionConnection | SectionIndoor | SectionOutdoor |
		SectionBattery | SectionPlace | SectionCurrent | SectionForecast
)

var sectionOrder = []Section{
	SectionClock, SectionDate, SectionConnection, SectionIndoor, SectionOutdoor,
	SectionBattery, SectionPlace, SectionCurrent, SectionForecast,
}

func (s Section) String() string {
	switch s {
	case SectionClock:
		return "clock"
	case SectionDate:
		return "date"
	case SectionConnection:
		return "connection"
	case SectionIndoor:
		return "indoor"
	case SectionOutdoor:
		return "outdoor"
	case SectionBattery:
		return "battery"
	case SectionPlace:
		return "place"
	case SectionCurrent:
		return "current"
	case SectionForecast:
		return "forecast"
	default:
		return fmt.Sprintf("section(%d)", uint16(s))
	}
}

// Snapshot is the latest accepted value of every displayed source.
type Snapshot struct {
	Indoor       mailbox.IndoorSample
	Outdoor      mailbox.OutdoorSample
	Forecast     [mailbox.ForecastEntries]mailbox.ForecastEntry
	HaveForecast bool
	Kp           [3]float64
	Place        string
}

type Engine struct {
	box    *mailbox.Mailbox
	status *status.Register
	r      Renderer
	logger *slog.Logger

	Tick time.Duration

	now func() time.Time
	loc *time.Location

	snap Snapshot

	indoor, outdoor, forecast                sampling.Freshness
	indoorValid, outdoorValid, forecastValid bool

	dirty     Section
	clockAt   time.Time
	conn      Connection
	updating  bool
	connShown bool
}

func NewEngine(box *mailbox.Mailbox, reg *status.Register, r Renderer, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		box:      box,
		status:   reg,
		r:        r,
		logger:   logger,
		Tick:     DefaultTick,
		now:      time.Now,
		loc:      time.Local,
		indoor:   sampling.NewFreshness(DefaultHorizon),
		outdoor:  sampling.NewFreshness(DefaultHorizon),
		forecast: sampling.NewFreshness(DefaultHorizon),
		dirty:    sectionAll,
	}
}

// SetHorizon changes how long each source stays valid after an update.
func (e *Engine) SetHorizon(h time.Duration) {
	e.indoor.Horizon = h
	e.outdoor.Horizon = h
	e.forecast.Horizon = h
}

func (e *Engine) Snapshot() Snapshot { return e.snap }

// Dirty reports the sections still waiting for a successful render.
func (e *Engine) Dirty() Section { return e.dirty }

func (e *Engine) Run(ctx context.Context) error {
	t := time.NewTicker(e.Tick)
	defer t.Stop()

	for {
		e.Step()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
}

// Step runs one render tick.
func (e *Engine) Step() {
	now := e.now()
	flags := e.status.Load()

	if flags.Has(status.UpdateInProgress) {
		if !e.updating {
			e.logger.Info("firmware update started, switching to update notice")
		}
		e.updating = true
		if err := e.r.UpdateNotice(); err != nil {
			e.logger.Warn("render update notice failed", "err", err)
		}
		return
	}
	if e.updating {
		e.updating = false
		e.dirty = sectionAll
		e.connShown = false
		e.clockAt = time.Time{}
	}

	for it := range e.box.Drain() {
		e.merge(it, now)
	}

	e.decay(now)
	e.clock(now)
	e.connection(flags)
	e.render(now)
}

func (e *Engine) merge(it mailbox.Item, now time.Time) {
	if err := validate(it); err != nil {
		e.logger.Warn("display item discarded", "kind", it.Kind().String(), "err", err)
		return
	}

	switch v := it.(type) {
	case mailbox.Config:
		e.loc = v.Station.Location()
		e.clockAt = time.Time{}
		e.dirty |= SectionForecast
	case mailbox.PlaceName:
		e.snap.Place = v.Name
		e.dirty |= SectionPlace
	case mailbox.IndoorSample:
		e.snap.Indoor = v
		e.indoor.Touch(now)
		e.indoorValid = true
		e.dirty |= SectionIndoor
	case mailbox.OutdoorSample:
		e.snap.Outdoor = v
		e.outdoor.Touch(now)
		e.outdoorValid = true
		e.dirty |= SectionOutdoor | SectionBattery
	case mailbox.ForecastSet:
		e.snap.Forecast = v.Entries
		e.snap.HaveForecast = true
		e.forecast.Touch(now)
		e.forecastValid = true
		e.dirty |= SectionCurrent | SectionForecast
	case mailbox.GeomagneticForecast:
		e.snap.Kp = v.Kp
		e.dirty |= SectionForecast
	}
}

func validate(it mailbox.Item) error {
	switch v := it.(type) {
	case mailbox.IndoorSample:
		if !finite(v.Temperature, v.Pressure) || v.Humidity > 100 {
			return fmt.Errorf("indoor sample out of range")
		}
	case mailbox.OutdoorSample:
		if !finite(v.Temperature, v.Humidity) {
			return fmt.Errorf("outdoor sample not finite")
		}
	case mailbox.ForecastSet:
		for i, en := range v.Entries {
			if en.Index != i {
				return fmt.Errorf("forecast entry %d has index %d", i, en.Index)
			}
			if !finite(en.Temperature, en.TemperatureLo, en.TemperatureHi, en.WindSpeed, en.Precipitation) {
				return fmt.Errorf("forecast entry %d not finite", i)
			}
		}
	case mailbox.GeomagneticForecast:
		for _, kp := range v.Kp {
			if !finite(kp) || kp < 0 {
				return fmt.Errorf("kp %v out of range", kp)
			}
		}
	}
	return nil
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// decay marks sources that went stale since the last tick.
func (e *Engine) decay(now time.Time) {
	check := func(f sampling.Freshness, valid *bool, s Section) {
		v := f.Valid(now)
		if *valid && !v {
			e.logger.Info("display data stale", "section", s.String(), "last", f.LastUpdate())
			e.dirty |= s
		}
		*valid = v
	}
	check(e.indoor, &e.indoorValid, SectionIndoor)
	check(e.outdoor, &e.outdoorValid, SectionOutdoor)
	check(e.forecast, &e.forecastValid, SectionCurrent|SectionForecast)
}

func (e *Engine) clock(now time.Time) {
	local := now.In(e.loc)
	if e.clockAt.IsZero() {
		e.dirty |= SectionClock | SectionDate
		e.clockAt = local
		return
	}
	prev := e.clockAt.In(e.loc)
	if local.Hour() != prev.Hour() || local.Minute() != prev.Minute() {
		e.dirty |= SectionClock
	}
	if y, m, d := local.Date(); y != prev.Year() || m != prev.Month() || d != prev.Day() {
		e.dirty |= SectionClock | SectionDate | SectionForecast
	}
	e.clockAt = local
}

func (e *Engine) connection(flags status.Flags) {
	c := Connection{
		Wifi: flags.Has(status.WifiUp),
		Down: flags.Has(status.ForecastUp),
		Up:   flags.Has(status.BrokerUp | status.RelayUp),
	}
	if !c.Wifi {
		c.Up, c.Down = false, false
	}
	if !e.connShown || c != e.conn {
		e.conn = c
		e.dirty |= SectionConnection
	}
}

func (e *Engine) render(now time.Time) {
	for _, s := range sectionOrder {
		if e.dirty&s == 0 {
			continue
		}
		if err := e.draw(s, now); err != nil {
			e.logger.Warn("render failed", "section", s.String(), "err", err)
			continue
		}
		e.dirty &^= s
		if s == SectionConnection {
			e.connShown = true
		}
	}
}

func (e *Engine) draw(s Section, now time.Time) error {
	local := now.In(e.loc)
	switch s {
	case SectionClock:
		return e.r.Clock(local.Hour(), local.Minute())
	case SectionDate:
		return e.r.Date(local.Format(dateLayout))
	case SectionConnection:
		return e.r.Connection(e.conn)
	case SectionIndoor:
		return e.r.Indoor(e.snap.Indoor, e.indoorValid)
	case SectionOutdoor:
		return e.r.Outdoor(e.snap.Outdoor, e.outdoorValid)
	case SectionBattery:
		return e.r.Battery(e.snap.Outdoor.Battery)
	case SectionPlace:
		return e.r.PlaceName(e.snap.Place)
	case SectionCurrent:
		if !e.snap.HaveForecast {
			return nil
		}
		return e.r.Current(e.snap.Forecast[0], e.forecastValid)
	case SectionForecast:
		if !e.snap.HaveForecast {
			return nil
		}
		today := local.Format(dateLayout)
		for i := 1; i < mailbox.ForecastEntries; i++ {
			en := e.snap.Forecast[i]
			if err := e.r.Forecast(i-1, en, dayLabel(en.Date, today), e.snap.Kp[i-1], e.forecastValid); err != nil {
				return fmt.Errorf("column %d: %w", i-1, err)
			}
		}
	}
	return nil
}

func dayLabel(date, today string) string {
	switch date {
	case "":
		return today
	case today:
		return todayLabel
	default:
		return date
	}
}
