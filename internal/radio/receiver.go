// Package radio receives outdoor sensor frames and hands the decoded
// samples to the display and network workers.
package radio

import (
	"context"
	"log/slog"
	"time"

	"meteo-station/internal/mailbox"
)

// maxFramesPerPoll bounds one drain pass so a chattering transmitter cannot
// starve the poll loop.
const maxFramesPerPoll = 64

type Transceiver interface {
	Available() bool
	Read() ([]byte, error)
	Connected() bool
}

type Receiver struct {
	trx     Transceiver
	display *mailbox.Mailbox
	network *mailbox.Mailbox
	logger  *slog.Logger

	PollInterval time.Duration
	SendTimeout  time.Duration

	now   func() time.Time
	stats Stats
}

func NewReceiver(trx Transceiver, display, network *mailbox.Mailbox, logger *slog.Logger) *Receiver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Receiver{
		trx:          trx,
		display:      display,
		network:      network,
		logger:       logger,
		PollInterval: 5 * time.Second,
		SendTimeout:  100 * time.Millisecond,
		now:          time.Now,
	}
}

func (r *Receiver) Run(ctx context.Context) error {
	t := time.NewTicker(r.PollInterval)
	defer t.Stop()

	for {
		r.PollOnce()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
}

// PollOnce drains every pending frame and returns how many samples were
// decoded.
func (r *Receiver) PollOnce() int {
	n := 0
	for range maxFramesPerPoll {
		if !r.trx.Available() {
			break
		}
		frame, err := r.trx.Read()
		if err != nil {
			r.logger.Warn("radio read failed", "err", err)
			break
		}

		sample, err := DecodeFrame(frame)
		if err != nil {
			r.logger.Warn("radio frame dropped", "err", err, "data", bytesToHex(frame))
			continue
		}
		now := r.now()
		sample.ReceivedAt = now
		delta := r.stats.Observe(now)
		n++

		r.logger.Info("outdoor sample",
			"t", sample.Temperature, "h", sample.Humidity, "p", sample.Pressure, "bat", sample.Battery,
			"delta", delta, "max_delta", r.stats.Max, "avg_delta", r.stats.Mean(),
		)

		if err := mailbox.SendEach(sample, r.SendTimeout, r.display, r.network); err != nil {
			r.logger.Warn("outdoor sample not delivered", "err", err)
		}
	}

	if !r.trx.Connected() {
		r.logger.Warn("radio transceiver not responding")
	}
	return n
}

func (r *Receiver) Stats() Stats { return r.stats }
