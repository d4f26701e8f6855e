package link

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"time"

	"meteo-station/internal/settings"
)

var ErrPortalTimeout = errors.New("provisioning portal timed out")

type Provisioner interface {
	// AutoConnect tries saved credentials and reports whether the link came up.
	AutoConnect(ctx context.Context) bool
	// Portal blocks until the link is provisioned or its timeout expires.
	Portal(ctx context.Context) error
}

// Portal provisions the station from the persisted settings file. The
// operator completes provisioning out of band, by editing config.json and
// bringing the interface up.
type Portal struct {
	probe    Probe
	settings *settings.Store
	logger   *slog.Logger

	AutoConnectWait time.Duration
	PortalTimeout   time.Duration
	PollInterval    time.Duration
}

func NewPortal(probe Probe, store *settings.Store, logger *slog.Logger) *Portal {
	if logger == nil {
		logger = slog.Default()
	}
	return &Portal{
		probe:           probe,
		settings:        store,
		logger:          logger,
		AutoConnectWait: 10 * time.Second,
		PortalTimeout:   120 * time.Second,
		PollInterval:    100 * time.Millisecond,
	}
}

func (p *Portal) AutoConnect(ctx context.Context) bool {
	if p.probe.Connected() {
		return true
	}
	if _, err := p.settings.Load(); err != nil {
		p.logger.Warn("no usable station config, portal required", "err", err)
		return false
	}

	p.logger.Info("attempting connection with saved credentials")
	p.probe.Reconnect()
	if p.waitConnected(ctx, p.AutoConnectWait) {
		return true
	}
	p.logger.Warn("connection with saved credentials failed, portal required")
	return false
}

func (p *Portal) Portal(ctx context.Context) error {
	if _, err := p.settings.Load(); errors.Is(err, fs.ErrNotExist) {
		if err := p.settings.Save(settings.Defaults()); err != nil {
			p.logger.Warn("write default station config", "err", err)
		} else {
			p.logger.Info("default station config written, edit it to provision the station")
		}
	}

	p.logger.Info("waiting for provisioning", "timeout", p.PortalTimeout)
	if p.waitConnected(ctx, p.PortalTimeout) {
		p.logger.Info("station provisioned")
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return ErrPortalTimeout
}

func (p *Portal) waitConnected(ctx context.Context, d time.Duration) bool {
	deadline := time.NewTimer(d)
	defer deadline.Stop()
	tick := time.NewTicker(p.PollInterval)
	defer tick.Stop()

	for {
		if p.probe.Connected() {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-deadline.C:
			return p.probe.Connected()
		case <-tick.C:
		}
	}
}
