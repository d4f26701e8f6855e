// Package sensor samples the indoor climate sensor and publishes rolling
// averages to the display and network workers.
package sensor

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	"meteo-station/internal/mailbox"
	"meteo-station/internal/sampling"
)

const windowSize = 5

type Sampler struct {
	driver  Driver
	display *mailbox.Mailbox
	network *mailbox.Mailbox
	logger  *slog.Logger

	PollInterval  time.Duration
	StartDelay    time.Duration
	RetryInterval time.Duration
	SendTimeout   time.Duration

	temperature *sampling.Window
	pressure    *sampling.Window
	humidity    *sampling.Window

	present bool
}

func NewSampler(d Driver, display, network *mailbox.Mailbox, logger *slog.Logger) *Sampler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sampler{
		driver:        d,
		display:       display,
		network:       network,
		logger:        logger,
		PollInterval:  60 * time.Second,
		StartDelay:    20 * time.Second,
		RetryInterval: 5 * time.Second,
		SendTimeout:   100 * time.Millisecond,
		temperature:   sampling.NewWindow(windowSize),
		pressure:      sampling.NewWindow(windowSize),
		humidity:      sampling.NewWindow(windowSize),
	}
}

// Run samples until ctx is cancelled. A missing sensor is retried every
// RetryInterval.
func (s *Sampler) Run(ctx context.Context) error {
	defer s.driver.Close()

	s.init()
	if !sleep(ctx, s.StartDelay) {
		return ctx.Err()
	}

	for {
		if !s.present && !s.init() {
			if !sleep(ctx, s.RetryInterval) {
				return ctx.Err()
			}
			continue
		}

		start := time.Now()
		if _, err := s.SampleOnce(); err != nil {
			s.logger.Warn("indoor sample failed", "err", err)
		}
		if !sleep(ctx, s.PollInterval-time.Since(start)) {
			return ctx.Err()
		}
	}
}

func (s *Sampler) init() bool {
	if err := s.driver.Init(); err != nil {
		if s.present || !errors.Is(err, ErrNotPresent) {
			s.logger.Warn("indoor sensor init failed", "err", err)
		} else {
			s.logger.Debug("indoor sensor not present", "err", err)
		}
		s.present = false
		return false
	}
	if !s.present {
		s.logger.Info("indoor sensor initialized")
	}
	s.present = true
	return true
}

// SampleOnce reads the sensor, folds the reading into the rolling windows
// and sends the averaged sample to both mailboxes.
func (s *Sampler) SampleOnce() (mailbox.IndoorSample, error) {
	r, err := s.driver.Read()
	if err != nil {
		s.present = false
		return mailbox.IndoorSample{}, err
	}

	sample := mailbox.IndoorSample{
		Temperature: s.temperature.Add(r.Temperature),
		Pressure:    s.pressure.Add(r.Pressure),
		Humidity:    percent(s.humidity.Add(r.Humidity)),
	}

	s.logger.Info("indoor sample",
		"t", r.Temperature, "p", r.Pressure, "h", r.Humidity,
		"avg_t", sample.Temperature, "avg_p", sample.Pressure, "avg_h", sample.Humidity,
		"n", s.temperature.Count(),
	)

	if err := mailbox.SendEach(sample, s.SendTimeout, s.display, s.network); err != nil {
		s.logger.Warn("indoor sample not delivered", "err", err)
	}
	return sample, nil
}

func percent(v float64) uint8 {
	return uint8(math.Round(min(max(v, 0), 100)))
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
