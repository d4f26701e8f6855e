package radio

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"tinygo.org/x/bluetooth"
)

// Advertisement layout carried in manufacturer data: magic 0x01 0xD1,
// sequence uint32 LE, then one outdoor frame.
const (
	advMagic0 = 0x01
	advMagic1 = 0xD1
	advLen    = 2 + 4 + FrameSize
)

var ErrNoFrame = errors.New("no frame available")

type BLEOptions struct {
	Adapter       string
	CompanyID     uint16
	Buffer        int
	RetryInterval time.Duration
}

// BLETransceiver collects outdoor frames broadcast in BLE advertisements.
// Frames wait in a bounded buffer until the receiver polls them; when the
// buffer is full new frames are dropped.
type BLETransceiver struct {
	adapter *bluetooth.Adapter
	opts    BLEOptions
	logger  *slog.Logger

	frames   chan []byte
	scanning atomic.Bool
	dropped  atomic.Uint64

	// last sequence accepted per device; advertisers repeat each frame
	// until the next one, and restart at 0 after a reboot.
	mu      sync.Mutex
	lastSeq map[string]uint32
}

func NewBLETransceiver(opts BLEOptions, logger *slog.Logger) *BLETransceiver {
	if opts.Adapter == "" {
		opts.Adapter = "hci0"
	}
	if opts.CompanyID == 0 {
		opts.CompanyID = 0xFFFF
	}
	if opts.Buffer <= 0 {
		opts.Buffer = 32
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BLETransceiver{
		adapter: bluetooth.NewAdapter(opts.Adapter),
		opts:    opts,
		logger:  logger,
		frames:  make(chan []byte, opts.Buffer),
		lastSeq: make(map[string]uint32),
	}
}

// Run scans until ctx is cancelled, re-enabling the adapter after failures.
func (t *BLETransceiver) Run(ctx context.Context) error {
	for {
		err := t.scan(ctx)
		t.scanning.Store(false)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		t.logger.Warn("ble scan stopped, retrying", "adapter", t.opts.Adapter, "err", err, "retry", t.opts.RetryInterval)

		timer := time.NewTimer(t.opts.RetryInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (t *BLETransceiver) scan(ctx context.Context) error {
	if err := t.adapter.Enable(); err != nil {
		return fmt.Errorf("ble enable (%s): %w", t.opts.Adapter, err)
	}

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = t.adapter.StopScan()
		case <-stop:
		}
	}()

	t.scanning.Store(true)
	t.logger.Info("ble scanning started", "adapter", t.opts.Adapter, "company", fmt.Sprintf("0x%04X", t.opts.CompanyID))

	// Scan blocks until StopScan or an adapter error.
	err := t.adapter.Scan(func(_ *bluetooth.Adapter, r bluetooth.ScanResult) {
		for _, md := range r.ManufacturerData() {
			if t.handle(r.Address.String(), md.CompanyID, md.Data) {
				return
			}
		}
	})
	if err != nil {
		return fmt.Errorf("ble scan: %w", err)
	}
	return errors.New("ble scan ended")
}

// handle accepts one manufacturer-data element and reports whether it was an
// outdoor advertisement.
func (t *BLETransceiver) handle(addr string, companyID uint16, data []byte) bool {
	if companyID != t.opts.CompanyID {
		return false
	}
	if len(data) != advLen || data[0] != advMagic0 || data[1] != advMagic1 {
		return false
	}

	seq := binary.LittleEndian.Uint32(data[2:6])
	if t.duplicate(addr, seq) {
		return true
	}

	frame := append([]byte(nil), data[6:]...)
	select {
	case t.frames <- frame:
	default:
		t.dropped.Add(1)
		t.logger.Warn("ble frame buffer full, frame dropped", "addr", addr, "seq", seq)
	}
	return true
}

func (t *BLETransceiver) duplicate(addr string, seq uint32) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if last, ok := t.lastSeq[addr]; ok && last == seq {
		return true
	}
	t.lastSeq[addr] = seq
	return false
}

func (t *BLETransceiver) Available() bool { return len(t.frames) > 0 }

func (t *BLETransceiver) Read() ([]byte, error) {
	select {
	case f := <-t.frames:
		return f, nil
	default:
		return nil, ErrNoFrame
	}
}

func (t *BLETransceiver) Connected() bool { return t.scanning.Load() }

func (t *BLETransceiver) Dropped() uint64 { return t.dropped.Load() }

// Advertisement builds the manufacturer data a transmitter broadcasts for
// one frame.
func Advertisement(seq uint32, frame []byte) []byte {
	b := make([]byte, 0, advLen)
	b = append(b, advMagic0, advMagic1)
	b = binary.LittleEndian.AppendUint32(b, seq)
	return append(b, frame...)
}
