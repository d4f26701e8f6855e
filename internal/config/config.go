package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	AppEnv   string
	LogLevel slog.Level

	DataDir    string
	SQLitePath string

	BME280Address      uint16
	SensorPollInterval time.Duration
	SensorStartDelay   time.Duration

	RadioPollInterval time.Duration
	BLEAdapter        string

	NetInterface  string
	DisplayDriver string
	DisplayBus    string
	PinRootCerts  bool

	OTAManifestURL   string
	OTACheckInterval time.Duration
	OTAInitialDelay  time.Duration

	RelayBaseURL string
	DeviceID     string
}

func LoadFromEnv() (Config, error) {
	appEnv := envOr("APP_ENV", "dev")
	switch appEnv {
	case "dev", "prod":
	default:
		return Config{}, fmt.Errorf("invalid APP_ENV %q (allowed: dev, prod)", appEnv)
	}

	level, err := parseLogLevel(envOr("LOG_LEVEL", "info"))
	if err != nil {
		return Config{}, err
	}

	dataDir := envOr("DATA_DIR", "./data")
	sqlitePath := envOr("SQLITE_PATH", filepath.Join(dataDir, "prefs.db"))

	bme280AddressStr := envOr("BME280_ADDRESS", "0x76")
	bme280Address, err := strconv.ParseUint(bme280AddressStr, 0, 16)
	if err != nil {
		return Config{}, fmt.Errorf("invalid BME280_ADDRESS %q: %w", bme280AddressStr, err)
	}

	sensorPollInterval, err := positiveDuration("SENSOR_POLL_INTERVAL", "60s")
	if err != nil {
		return Config{}, err
	}
	sensorStartDelay, err := nonNegativeDuration("SENSOR_START_DELAY", "20s")
	if err != nil {
		return Config{}, err
	}
	radioPollInterval, err := positiveDuration("RADIO_POLL_INTERVAL", "5s")
	if err != nil {
		return Config{}, err
	}

	displayDriver := strings.ToLower(envOr("DISPLAY_DRIVER", "log"))
	switch displayDriver {
	case "log", "ssd1306":
	default:
		return Config{}, fmt.Errorf("invalid DISPLAY_DRIVER %q (allowed: log, ssd1306)", displayDriver)
	}

	pinRootCertsStr := envOr("PIN_ROOT_CERTS", "false")
	pinRootCerts, err := strconv.ParseBool(pinRootCertsStr)
	if err != nil {
		return Config{}, fmt.Errorf("invalid PIN_ROOT_CERTS %q: %w", pinRootCertsStr, err)
	}

	otaManifestURL := envOr("OTA_MANIFEST_URL", "")
	if otaManifestURL != "" {
		if err := checkURL(otaManifestURL); err != nil {
			return Config{}, fmt.Errorf("invalid OTA_MANIFEST_URL %q: %w", otaManifestURL, err)
		}
	}
	otaCheckInterval, err := positiveDuration("OTA_CHECK_INTERVAL", "1h")
	if err != nil {
		return Config{}, err
	}
	otaInitialDelay, err := nonNegativeDuration("OTA_INITIAL_DELAY", "30s")
	if err != nil {
		return Config{}, err
	}

	relayBaseURL := envOr("RELAY_BASE_URL", "http://narodmon.ru/get")
	if err := checkURL(relayBaseURL); err != nil {
		return Config{}, fmt.Errorf("invalid RELAY_BASE_URL %q: %w", relayBaseURL, err)
	}

	return Config{
		AppEnv:             appEnv,
		LogLevel:           level,
		DataDir:            dataDir,
		SQLitePath:         sqlitePath,
		BME280Address:      uint16(bme280Address),
		SensorPollInterval: sensorPollInterval,
		SensorStartDelay:   sensorStartDelay,
		RadioPollInterval:  radioPollInterval,
		BLEAdapter:         envOr("BLE_ADAPTER", "hci0"),
		NetInterface:       envOr("NET_INTERFACE", "wlan0"),
		DisplayDriver:      displayDriver,
		DisplayBus:         envOr("DISPLAY_I2C_BUS", ""),
		PinRootCerts:       pinRootCerts,
		OTAManifestURL:     otaManifestURL,
		OTACheckInterval:   otaCheckInterval,
		OTAInitialDelay:    otaInitialDelay,
		RelayBaseURL:       relayBaseURL,
		DeviceID:           envOr("DEVICE_ID", ""),
	}, nil
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func positiveDuration(key, def string) (time.Duration, error) {
	s := envOr(key, def)
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %v", key, d)
	}
	return d, nil
}

func nonNegativeDuration(key, def string) (time.Duration, error) {
	s := envOr(key, def)
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s must not be negative, got %v", key, d)
	}
	return d, nil
}

func checkURL(s string) error {
	u, err := url.Parse(s)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https")
	}
	if u.Host == "" {
		return fmt.Errorf("missing host")
	}
	return nil
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q (allowed: debug, info, warn, error)", s)
	}
}
