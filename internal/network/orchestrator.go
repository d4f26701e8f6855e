// Package network runs the station's connectivity worker: provisioning,
// telemetry republishing, forecast polling and the outdoor relay.
package network

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"meteo-station/internal/link"
	"meteo-station/internal/mailbox"
	"meteo-station/internal/settings"
	"meteo-station/internal/status"
)

const (
	DefaultTick              = 10 * time.Millisecond
	DefaultReceiveWait       = 50 * time.Millisecond
	DefaultForecastInterval  = 10 * time.Minute
	DefaultRelayInterval     = 5 * time.Minute
	DefaultReconnectInterval = 5 * time.Second
)

type State int

const (
	StateAwaitingConnectivity State = iota
	StateProvisioned
	StateSteady
)

func (s State) String() string {
	switch s {
	case StateAwaitingConnectivity:
		return "awaiting_connectivity"
	case StateProvisioned:
		return "provisioned"
	case StateSteady:
		return "steady"
	default:
		return "unknown"
	}
}

type Forecaster interface {
	Forecast(ctx context.Context, lat, lon float64) (mailbox.ForecastSet, error)
	Geomagnetic(ctx context.Context) (mailbox.GeomagneticForecast, error)
	PlaceName(ctx context.Context, lat, lon float64) string
}

type Relay interface {
	Send(ctx context.Context, s mailbox.OutdoorSample) error
}

type Republisher interface {
	Loop()
	Publish(item mailbox.Item) error
	Close()
}

type PublisherFactory func(settings.Station) (Republisher, error)

type SettingsLoader interface {
	Load() (settings.Station, error)
}

type Deps struct {
	Probe        link.Probe
	Provisioner  link.Provisioner
	Settings     SettingsLoader
	Meteo        Forecaster
	Relay        Relay
	NewPublisher PublisherFactory
	Status       *status.Register
	Display      *mailbox.Mailbox
	Inbox        *mailbox.Mailbox
}

type date struct {
	year  int
	month time.Month
	day   int
}

func dateOf(t time.Time) date {
	y, m, d := t.Date()
	return date{y, m, d}
}

type Orchestrator struct {
	deps   Deps
	logger *slog.Logger

	Tick              time.Duration
	ReceiveWait       time.Duration
	ForecastInterval  time.Duration
	RelayInterval     time.Duration
	ReconnectInterval time.Duration
	SendTimeout       time.Duration

	now   func() time.Time
	state State

	station  settings.Station
	loc      *time.Location
	lat, lon float64
	pub      Republisher

	lastForecast  time.Time
	lastDate      date
	lastRelay     time.Time
	lastReconnect time.Time
	lastOut       mailbox.OutdoorSample
	lastOutAt     time.Time
}

func New(deps Deps, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		deps:              deps,
		logger:            logger,
		Tick:              DefaultTick,
		ReceiveWait:       DefaultReceiveWait,
		ForecastInterval:  DefaultForecastInterval,
		RelayInterval:     DefaultRelayInterval,
		ReconnectInterval: DefaultReconnectInterval,
		SendTimeout:       200 * time.Millisecond,
		now:               time.Now,
		loc:               time.UTC,
	}
}

func (o *Orchestrator) State() State { return o.state }

func (o *Orchestrator) Run(ctx context.Context) error {
	if err := o.provision(ctx); err != nil {
		return err
	}
	o.enterProvisioned(ctx)
	defer func() {
		if o.pub != nil {
			o.pub.Close()
		}
	}()

	t := time.NewTicker(o.Tick)
	defer t.Stop()

	for {
		o.Step(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
}

// provision blocks until the link is up, alternating saved-credential
// attempts with the portal flow.
func (o *Orchestrator) provision(ctx context.Context) error {
	o.state = StateAwaitingConnectivity
	for !o.deps.Probe.Connected() {
		if o.deps.Provisioner.AutoConnect(ctx) {
			break
		}
		o.logger.Info("auto-connect failed, starting provisioning portal")
		if err := o.deps.Provisioner.Portal(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if !errors.Is(err, link.ErrPortalTimeout) {
				o.logger.Warn("provisioning portal failed", "err", err)
			}
		}
	}
	o.deps.Status.Set(status.WifiUp)
	return nil
}

func (o *Orchestrator) enterProvisioned(ctx context.Context) {
	o.state = StateProvisioned

	st, err := o.deps.Settings.Load()
	if err != nil {
		o.logger.Warn("station settings unavailable, using defaults", "err", err)
	}
	o.station = st
	o.loc = st.Location()

	lat, lon, err := st.Coordinates()
	if err != nil {
		o.logger.Warn("bad station coordinates, using defaults", "err", err)
		lat, lon, _ = settings.Defaults().Coordinates()
	}
	o.lat, o.lon = lat, lon

	if err := o.deps.Display.Send(mailbox.Config{Station: st}, o.SendTimeout); err != nil {
		o.logger.Warn("config not delivered to display", "err", err)
	}

	name := o.deps.Meteo.PlaceName(ctx, lat, lon)
	if err := o.deps.Display.Send(mailbox.PlaceName{Name: name}, o.SendTimeout); err != nil {
		o.logger.Warn("place name not delivered to display", "err", err)
	} else {
		o.logger.Info("place name resolved", "name", name)
	}

	if o.deps.NewPublisher != nil {
		pub, err := o.deps.NewPublisher(st)
		if err != nil {
			o.logger.Warn("telemetry republisher disabled", "err", err)
		} else {
			o.pub = pub
		}
	}

	now := o.now()
	o.lastDate = dateOf(now.In(o.loc))
	o.lastRelay = now
	o.state = StateSteady
	o.logger.Info("network steady", "lat", lat, "lon", lon, "tz", o.loc.String())
}

// Step runs one steady-state tick.
func (o *Orchestrator) Step(ctx context.Context) {
	now := o.now()

	if !o.deps.Probe.Connected() {
		o.deps.Status.Clear(status.WifiUp)
		if o.lastReconnect.IsZero() || now.Sub(o.lastReconnect) >= o.ReconnectInterval {
			o.lastReconnect = now
			o.logger.Warn("wifi not connected, reconnecting")
			o.deps.Probe.Reconnect()
		}
		return
	}
	o.deps.Status.Set(status.WifiUp)

	if o.pub != nil {
		o.pub.Loop()
	}
	if item, ok := o.deps.Inbox.Receive(o.ReceiveWait); ok {
		o.republish(item)
	}

	o.pollForecasts(ctx)
	o.relayWindow(ctx)
}

func (o *Orchestrator) republish(item mailbox.Item) {
	if s, ok := item.(mailbox.OutdoorSample); ok {
		o.lastOut = s
		o.lastOutAt = s.ReceivedAt
		if o.lastOutAt.IsZero() {
			o.lastOutAt = o.now()
		}
		o.logger.Debug("cached outdoor sample for relay", "t", s.Temperature, "h", s.Humidity)
	}
	if o.pub == nil {
		return
	}
	if err := o.pub.Publish(item); err != nil {
		o.logger.Warn("republish failed", "kind", item.Kind().String(), "err", err)
	}
}

func (o *Orchestrator) pollForecasts(ctx context.Context) {
	now := o.now()

	dateChanged := false
	if today := dateOf(now.In(o.loc)); today != o.lastDate {
		o.lastDate = today
		dateChanged = true
		o.logger.Info("date change detected, forcing forecast refresh")
	}

	if !dateChanged && !o.lastForecast.IsZero() && now.Sub(o.lastForecast) < o.ForecastInterval {
		return
	}
	o.lastForecast = now

	// Geomagnetic goes first; only the weather fetch drives ForecastUp.
	if kp, err := o.deps.Meteo.Geomagnetic(ctx); err != nil {
		o.logger.Warn("geomagnetic forecast unavailable", "err", err)
	} else if err := o.deps.Display.Send(kp, o.SendTimeout); err != nil {
		o.logger.Warn("geomagnetic forecast not delivered", "err", err)
	}

	ok := false
	if set, err := o.deps.Meteo.Forecast(ctx, o.lat, o.lon); err != nil {
		o.logger.Warn("weather forecast unavailable", "err", err)
	} else if err := o.deps.Display.Send(set, o.SendTimeout); err != nil {
		o.logger.Warn("weather forecast not delivered", "err", err)
	} else {
		ok = true
	}
	o.deps.Status.Update(status.ForecastUp, ok)
}

// relayWindow forwards the cached outdoor sample once per RelayInterval,
// only when it arrived inside the window that just closed.
func (o *Orchestrator) relayWindow(ctx context.Context) {
	now := o.now()
	if now.Sub(o.lastRelay) < o.RelayInterval {
		return
	}
	o.lastRelay = now

	if o.lastOutAt.IsZero() {
		o.logger.Info("no outdoor sample cached, relay skipped")
		o.deps.Status.Clear(status.RelayUp)
		return
	}
	if age := now.Sub(o.lastOutAt); age > o.RelayInterval {
		o.logger.Info("outdoor sample too old, relay skipped", "age", age.Round(time.Second))
		o.deps.Status.Clear(status.RelayUp)
		return
	}

	if o.deps.Relay == nil {
		o.deps.Status.Clear(status.RelayUp)
		return
	}
	if err := o.deps.Relay.Send(ctx, o.lastOut); err != nil {
		o.logger.Warn("relay send failed", "err", err)
		o.deps.Status.Clear(status.RelayUp)
		return
	}
	o.deps.Status.Set(status.RelayUp)
}
