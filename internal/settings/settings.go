// Package settings loads and saves the persisted station configuration.
package settings

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"meteo-station/internal/storage"
)

const FileName = "config.json"

// Station mirrors the flat config.json document. Every value is kept as a
// string the way the provisioning portal writes it.
type Station struct {
	MQTTServer   string `json:"mqtt_server"`
	MQTTPort     string `json:"mqtt_port"`
	MQTTUser     string `json:"mqtt_user"`
	MQTTPass     string `json:"mqtt_pass"`
	MQTTPrefix   string `json:"mqtt_prefix"`
	BotToken     string `json:"bot_token"`
	BotChatID    string `json:"bot_chat_id"`
	Latitude     string `json:"latitude"`
	Longitude    string `json:"longitude"`
	GMTOffsetSec string `json:"gmt_offset_sec"`
}

func Defaults() Station {
	return Station{
		MQTTServer:   "tag78.ru",
		MQTTPort:     "1883",
		MQTTPrefix:   "meteo_station",
		Latitude:     "47.2362",
		Longitude:    "38.8969",
		GMTOffsetSec: "10800",
	}
}

func (s Station) Port() (int, error) {
	p, err := strconv.Atoi(strings.TrimSpace(s.MQTTPort))
	if err != nil {
		return 0, fmt.Errorf("invalid mqtt_port %q: %w", s.MQTTPort, err)
	}
	if p <= 0 || p > 65535 {
		return 0, fmt.Errorf("mqtt_port %d out of range", p)
	}
	return p, nil
}

func (s Station) Coordinates() (lat, lon float64, err error) {
	lat, err = strconv.ParseFloat(strings.TrimSpace(s.Latitude), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid latitude %q: %w", s.Latitude, err)
	}
	lon, err = strconv.ParseFloat(strings.TrimSpace(s.Longitude), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid longitude %q: %w", s.Longitude, err)
	}
	return lat, lon, nil
}

// Location returns a fixed zone for the configured UTC offset. An unparsable
// offset yields UTC.
func (s Station) Location() *time.Location {
	sec, err := strconv.Atoi(strings.TrimSpace(s.GMTOffsetSec))
	if err != nil {
		return time.UTC
	}
	return time.FixedZone("station", sec)
}

type Store struct {
	medium *storage.Medium
}

func NewStore(m *storage.Medium) *Store {
	return &Store{medium: m}
}

// Load returns the persisted station config. Keys missing from the file keep
// their default. On any error the defaults are returned alongside it.
func (s *Store) Load() (Station, error) {
	st := Defaults()

	data, err := s.medium.ReadFile(FileName)
	if err != nil {
		return Defaults(), fmt.Errorf("load settings: %w", err)
	}
	if err := json.Unmarshal(data, &st); err != nil {
		return Defaults(), fmt.Errorf("parse settings: %w", err)
	}
	return st, nil
}

func (s *Store) Save(st Station) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if err := s.medium.WriteFile(FileName, data); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}
