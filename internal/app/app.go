package app

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"meteo-station/internal/config"
	"meteo-station/internal/db"
	"meteo-station/internal/db/migrate"
	"meteo-station/internal/display"
	"meteo-station/internal/httpget"
	"meteo-station/internal/link"
	"meteo-station/internal/logging"
	"meteo-station/internal/mailbox"
	"meteo-station/internal/meteo"
	"meteo-station/internal/mqtt"
	"meteo-station/internal/network"
	"meteo-station/internal/ota"
	"meteo-station/internal/prefs"
	"meteo-station/internal/radio"
	"meteo-station/internal/relay"
	"meteo-station/internal/sensor"
	"meteo-station/internal/settings"
	"meteo-station/internal/status"
	"meteo-station/internal/storage"
)

// Run starts every station worker and blocks until ctx is cancelled. Only
// boot failures of mandatory resources are returned early.
func Run(ctx context.Context, cfg config.Config) error {
	logger := slog.Default()
	logger.Info("initializing station",
		"data_dir", cfg.DataDir,
		"sqlite", cfg.SQLitePath,
		"display", cfg.DisplayDriver,
		"interface", cfg.NetInterface,
	)

	medium, err := storage.Mount(cfg.DataDir)
	if err != nil {
		return err
	}

	conn, err := db.Open(cfg.SQLitePath)
	if err != nil {
		return fmt.Errorf("open prefs db: %w", err)
	}
	defer conn.Close()
	if err := migrate.Run(ctx, conn, logger); err != nil {
		return fmt.Errorf("migrate prefs db: %w", err)
	}
	store := prefs.NewStore(conn)

	reg := status.New()
	displayBox := mailbox.New("display", mailbox.DefaultCapacity)
	networkBox := mailbox.New("network", mailbox.DefaultCapacity)
	stationSettings := settings.NewStore(medium)

	renderer, closeRenderer := newRenderer(cfg, medium, logger)
	defer closeRenderer()

	probe := link.NewInterface(cfg.NetInterface, logging.Worker(logger, "link"))
	get := httpget.New(httpget.DefaultTimeout, logging.Worker(logger, "http"))

	meteoClient := meteo.NewClient(get, logging.Worker(logger, "meteo"))
	meteoClient.PinRoots = cfg.PinRootCerts

	deviceID := cfg.DeviceID
	if deviceID == "" {
		if deviceID, err = link.HardwareAddr(cfg.NetInterface); err != nil {
			logger.Warn("no relay device id", "interface", cfg.NetInterface, "err", err)
		}
	}

	orchestrator := network.New(network.Deps{
		Probe:       probe,
		Provisioner: link.NewPortal(probe, stationSettings, logging.Worker(logger, "portal")),
		Settings:    stationSettings,
		Meteo:       meteoClient,
		Relay:       relay.New(get, cfg.RelayBaseURL, deviceID, logging.Worker(logger, "relay")),
		NewPublisher: func(st settings.Station) (network.Republisher, error) {
			p, err := mqtt.NewPublisher(st, reg, logging.Worker(logger, "mqtt"))
			if err != nil {
				return nil, err
			}
			return p, nil
		},
		Status:  reg,
		Display: displayBox,
		Inbox:   networkBox,
	}, logging.Worker(logger, "network"))

	sampler := sensor.NewSampler(sensor.NewBME280(cfg.BME280Address), displayBox, networkBox, logging.Worker(logger, "indoor"))
	sampler.PollInterval = cfg.SensorPollInterval
	sampler.StartDelay = cfg.SensorStartDelay

	transceiver := radio.NewBLETransceiver(radio.BLEOptions{Adapter: cfg.BLEAdapter}, logging.Worker(logger, "ble"))
	receiver := radio.NewReceiver(transceiver, displayBox, networkBox, logging.Worker(logger, "radio"))
	receiver.PollInterval = cfg.RadioPollInterval

	engine := display.NewEngine(displayBox, reg, renderer, logging.Worker(logger, "display"))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return engine.Run(ctx) })
	g.Go(func() error { return orchestrator.Run(ctx) })
	g.Go(func() error { return sampler.Run(ctx) })
	g.Go(func() error { return transceiver.Run(ctx) })
	g.Go(func() error { return receiver.Run(ctx) })

	if cfg.OTAManifestURL != "" {
		checker := ota.NewChecker(
			ota.NewHTTPManifest(get, cfg.OTAManifestURL),
			ota.NewExecApplier(filepath.Join(cfg.DataDir, "firmware")),
			store, probe, reg, logging.Worker(logger, "ota"),
		)
		checker.Interval = cfg.OTACheckInterval
		checker.InitialDelay = cfg.OTAInitialDelay
		g.Go(func() error { return checker.Run(ctx) })
	} else {
		logger.Info("firmware update checker disabled, OTA_MANIFEST_URL not set")
	}

	err = g.Wait()
	logger.Info("station shutting down")
	return err
}

func newRenderer(cfg config.Config, medium *storage.Medium, logger *slog.Logger) (display.Renderer, func()) {
	if cfg.DisplayDriver == "ssd1306" {
		panel, err := display.OpenPanel(cfg.DisplayBus, medium, logger)
		if err == nil {
			return panel, func() { _ = panel.Close() }
		}
		logger.Warn("ssd1306 unavailable, rendering to log", "err", err)
	}
	return display.NewLogRenderer(logger), func() {}
}
