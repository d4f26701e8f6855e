// Package ota checks a firmware manifest and hands newer images to an
// applier. A successful apply never returns: it replaces the process.
package ota

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/mod/semver"

	"meteo-station/internal/httpget"
	"meteo-station/internal/link"
	"meteo-station/internal/prefs"
	"meteo-station/internal/status"
)

const (
	FirmwareType   = "meteo_station"
	DefaultVersion = "0.0.0"

	DefaultInterval     = time.Hour
	DefaultInitialDelay = 30 * time.Second
)

var (
	ErrNoUpdate = errors.New("no update available")
	ErrManifest = errors.New("manifest unavailable")
)

type Manifest struct {
	Type    string `json:"type"`
	Version string `json:"version"`
	URL     string `json:"url"`
}

type ManifestSource interface {
	Manifest(ctx context.Context) (Manifest, error)
}

type Applier interface {
	// Apply installs m. Returning at all means the update did not take.
	Apply(ctx context.Context, m Manifest) error
}

type HTTPManifest struct {
	get httpget.Getter
	url string
}

func NewHTTPManifest(get httpget.Getter, url string) *HTTPManifest {
	return &HTTPManifest{get: get, url: url}
}

func (h *HTTPManifest) Manifest(ctx context.Context) (Manifest, error) {
	body := h.get.Get(ctx, h.url)
	if httpget.IsNoData(body) {
		return Manifest{}, ErrManifest
	}
	var m Manifest
	if err := json.Unmarshal([]byte(body), &m); err != nil {
		return Manifest{}, fmt.Errorf("%w: %v", ErrManifest, err)
	}
	if m.Version == "" || m.URL == "" {
		return Manifest{}, fmt.Errorf("%w: missing version or url", ErrManifest)
	}
	return m, nil
}

type Checker struct {
	source  ManifestSource
	applier Applier
	prefs   prefs.Store
	probe   link.Probe
	status  *status.Register
	logger  *slog.Logger

	Interval     time.Duration
	InitialDelay time.Duration
	WaitPoll     time.Duration
}

func NewChecker(source ManifestSource, applier Applier, store prefs.Store, probe link.Probe, reg *status.Register, logger *slog.Logger) *Checker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Checker{
		source:       source,
		applier:      applier,
		prefs:        store,
		probe:        probe,
		status:       reg,
		logger:       logger,
		Interval:     DefaultInterval,
		InitialDelay: DefaultInitialDelay,
		WaitPoll:     5 * time.Second,
	}
}

func (c *Checker) Run(ctx context.Context) error {
	for !c.probe.Connected() {
		if !sleep(ctx, c.WaitPoll) {
			return ctx.Err()
		}
	}

	current, err := c.Version(ctx)
	if err != nil {
		c.logger.Warn("firmware marker unreadable", "err", err)
	}
	c.logger.Info("firmware update checker ready", "version", current)

	if !sleep(ctx, c.InitialDelay) {
		return ctx.Err()
	}
	for {
		if err := c.CheckOnce(ctx); err != nil && !errors.Is(err, ErrNoUpdate) {
			c.logger.Warn("firmware update check failed", "err", err)
		}
		if !sleep(ctx, c.Interval) {
			return ctx.Err()
		}
	}
}

// Version returns the persisted firmware marker, seeding the default on
// first use.
func (c *Checker) Version(ctx context.Context) (string, error) {
	v, ok, err := c.prefs.Get(ctx, prefs.KeyFirmwareVersion)
	if err != nil {
		return DefaultVersion, err
	}
	if !ok || v == "" {
		c.logger.Info("no firmware marker stored, saving default", "version", DefaultVersion)
		return DefaultVersion, c.prefs.Set(ctx, prefs.KeyFirmwareVersion, DefaultVersion)
	}
	return v, nil
}

// CheckOnce runs one check. It returns ErrNoUpdate when nothing newer is
// offered and the apply error when an update did not take effect.
func (c *Checker) CheckOnce(ctx context.Context) error {
	if !c.probe.Connected() {
		c.logger.Warn("wifi not connected, skipping firmware check")
		return nil
	}

	current, err := c.Version(ctx)
	if err != nil {
		return fmt.Errorf("read firmware marker: %w", err)
	}
	m, err := c.source.Manifest(ctx)
	if err != nil {
		return err
	}
	if !Newer(m, current) {
		c.logger.Info("no new firmware", "current", current, "offered", m.Version)
		return ErrNoUpdate
	}

	c.logger.Info("new firmware available, starting update", "current", current, "version", m.Version)
	c.status.Set(status.UpdateInProgress)
	if err := c.prefs.Set(ctx, prefs.KeyFirmwareVersion, m.Version); err != nil {
		c.logger.Warn("firmware marker not saved", "err", err)
	}
	c.record(ctx, m, "started", nil)

	applyErr := c.applier.Apply(ctx, m)
	if applyErr == nil {
		applyErr = errors.New("applier returned without restarting")
	}

	c.status.Clear(status.UpdateInProgress)
	if err := c.prefs.Set(ctx, prefs.KeyFirmwareVersion, DefaultVersion); err != nil {
		c.logger.Warn("firmware marker not rolled back", "err", err)
	}
	c.record(ctx, m, "failed", applyErr)
	c.logger.Error("firmware update failed, retrying next interval", "version", m.Version, "err", applyErr)
	return fmt.Errorf("apply %s: %w", m.Version, applyErr)
}

func (c *Checker) record(ctx context.Context, m Manifest, outcome string, cause error) {
	a := prefs.UpdateAttempt{Version: m.Version, URL: m.URL, Outcome: outcome}
	if cause != nil {
		a.Detail = cause.Error()
	}
	if err := c.prefs.RecordAttempt(ctx, a); err != nil {
		c.logger.Warn("update attempt not recorded", "err", err)
	}
}

// Newer reports whether m is firmware for this station with a version above
// current.
func Newer(m Manifest, current string) bool {
	if m.Type != FirmwareType {
		return false
	}
	offered := canonical(m.Version)
	if !semver.IsValid(offered) {
		return false
	}
	have := canonical(current)
	if !semver.IsValid(have) {
		have = canonical(DefaultVersion)
	}
	return semver.Compare(offered, have) > 0
}

func canonical(v string) string {
	v = strings.TrimSpace(v)
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return v
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
