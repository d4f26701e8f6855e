package radio

import (
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"meteo-station/internal/mailbox"
	"meteo-station/internal/mqtt"
)

type fakeTransceiver struct {
	frames    [][]byte
	readErr   error
	connected bool
}

func (f *fakeTransceiver) Available() bool { return len(f.frames) > 0 || f.readErr != nil }

func (f *fakeTransceiver) Read() ([]byte, error) {
	if f.readErr != nil {
		return nil, f.readErr
	}
	fr := f.frames[0]
	f.frames = f.frames[1:]
	return fr, nil
}

func (f *fakeTransceiver) Connected() bool { return f.connected }

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newTestReceiver(trx Transceiver) (*Receiver, *mailbox.Mailbox, *mailbox.Mailbox) {
	display := mailbox.New("display", mailbox.DefaultCapacity)
	network := mailbox.New("network", mailbox.DefaultCapacity)
	r := NewReceiver(trx, display, network, quiet())
	r.SendTimeout = 0
	return r, display, network
}

func TestFrameRoundTrip(t *testing.T) {
	in := mailbox.OutdoorSample{Temperature: -5.5, Humidity: 55, Pressure: 1012, Battery: 80}
	b := EncodeFrame(in)
	if len(b) != FrameSize {
		t.Fatalf("frame len = %d", len(b))
	}
	out, err := DecodeFrame(b)
	if err != nil {
		t.Fatalf("DecodeFrame: %v", err)
	}
	if out != in {
		t.Fatalf("got %+v, want %+v", out, in)
	}
}

func TestDecodeFrameRejects(t *testing.T) {
	nan := EncodeFrame(mailbox.OutdoorSample{Temperature: math.NaN()})
	tests := []struct {
		name string
		data []byte
	}{
		{"short", make([]byte, FrameSize-1)},
		{"long", make([]byte, FrameSize+1)},
		{"nan", nan},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeFrame(tt.data); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestPollOnceFansOutOutdoorSample(t *testing.T) {
	frame := EncodeFrame(mailbox.OutdoorSample{Temperature: -5.3, Humidity: 55, Pressure: 1012, Battery: 80})
	trx := &fakeTransceiver{frames: [][]byte{frame}, connected: true}
	r, display, network := newTestReceiver(trx)
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	r.now = func() time.Time { return at }

	if n := r.PollOnce(); n != 1 {
		t.Fatalf("PollOnce = %d, want 1", n)
	}
	if display.Len() != 1 || network.Len() != 1 {
		t.Fatalf("display=%d network=%d, want 1 each", display.Len(), network.Len())
	}

	for _, box := range []*mailbox.Mailbox{display, network} {
		it, ok := box.Receive(0)
		if !ok {
			t.Fatalf("%s: no item", box.Name())
		}
		s, ok := it.(mailbox.OutdoorSample)
		if !ok {
			t.Fatalf("%s: item kind %v", box.Name(), it.Kind())
		}
		if !s.ReceivedAt.Equal(at) {
			t.Fatalf("ReceivedAt = %v", s.ReceivedAt)
		}
		got := string(mqtt.OutdoorPayload(s))
		want := `{"t":-5.3,"p":1012,"h":55.0,"bat":80}`
		if got != want {
			t.Fatalf("payload = %s, want %s", got, want)
		}
	}
}

func TestPollOnceDrainsAllPending(t *testing.T) {
	trx := &fakeTransceiver{connected: true}
	for i := range 3 {
		trx.frames = append(trx.frames, EncodeFrame(mailbox.OutdoorSample{Temperature: float64(i)}))
	}
	trx.frames = append(trx.frames, []byte{1, 2, 3})

	r, display, _ := newTestReceiver(trx)
	if n := r.PollOnce(); n != 3 {
		t.Fatalf("PollOnce = %d, want 3", n)
	}
	if len(trx.frames) != 0 {
		t.Fatalf("%d frames left", len(trx.frames))
	}
	if display.Len() != 3 {
		t.Fatalf("display len = %d", display.Len())
	}
}

func TestPollOnceFullDisplayStillFeedsNetwork(t *testing.T) {
	trx := &fakeTransceiver{frames: [][]byte{EncodeFrame(mailbox.OutdoorSample{Temperature: 1})}, connected: true}
	r, display, network := newTestReceiver(trx)
	for range display.Cap() {
		_ = display.Send(mailbox.PlaceName{Name: "x"}, 0)
	}

	r.PollOnce()
	if network.Len() != 1 {
		t.Fatalf("network len = %d, want 1", network.Len())
	}
	if display.Stats().Dropped != 1 {
		t.Fatalf("display dropped = %d, want 1", display.Stats().Dropped)
	}
}

func TestPollOnceDisconnectedKeepsGoing(t *testing.T) {
	trx := &fakeTransceiver{readErr: errors.New("spi timeout")}
	r, display, _ := newTestReceiver(trx)
	if n := r.PollOnce(); n != 0 {
		t.Fatalf("PollOnce = %d", n)
	}
	trx.readErr = nil
	trx.frames = [][]byte{EncodeFrame(mailbox.OutdoorSample{})}
	if n := r.PollOnce(); n != 1 {
		t.Fatalf("PollOnce after recovery = %d", n)
	}
	if display.Len() != 1 {
		t.Fatalf("display len = %d", display.Len())
	}
}

func TestStats(t *testing.T) {
	var s Stats
	t0 := time.Unix(1000, 0)
	if d := s.Observe(t0); d != 0 {
		t.Fatalf("first delta = %v", d)
	}
	s.Observe(t0.Add(10 * time.Second))
	s.Observe(t0.Add(40 * time.Second))

	if s.Count != 2 {
		t.Fatalf("Count = %d", s.Count)
	}
	if s.Max != 30*time.Second {
		t.Fatalf("Max = %v", s.Max)
	}
	if s.Mean() != 20*time.Second {
		t.Fatalf("Mean = %v", s.Mean())
	}
}

func newTestBLE(buffer int) *BLETransceiver {
	return &BLETransceiver{
		opts:    BLEOptions{Adapter: "hci0", CompanyID: 0xFFFF, Buffer: buffer},
		logger:  quiet(),
		frames:  make(chan []byte, buffer),
		lastSeq: make(map[string]uint32),
	}
}

func TestBLEHandleFiltersAndDedups(t *testing.T) {
	bt := newTestBLE(4)
	frame := EncodeFrame(mailbox.OutdoorSample{Temperature: 3.5, Pressure: 1000})
	adv := Advertisement(7, frame)

	if bt.handle("AA", 0x004C, adv) {
		t.Fatal("foreign company accepted")
	}
	bad := append([]byte(nil), adv...)
	bad[1] = 0x00
	if bt.handle("AA", 0xFFFF, bad) {
		t.Fatal("bad magic accepted")
	}
	if !bt.handle("AA", 0xFFFF, adv) || !bt.handle("AA", 0xFFFF, adv) {
		t.Fatal("valid advertisement rejected")
	}
	bt.handle("BB", 0xFFFF, adv)

	if len(bt.frames) != 2 {
		t.Fatalf("buffered = %d, want 2 (one per device)", len(bt.frames))
	}
	got, err := bt.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	s, err := DecodeFrame(got)
	if err != nil || s.Temperature != 3.5 {
		t.Fatalf("decoded %+v, %v", s, err)
	}
}

func TestBLEAcceptsSequenceRestart(t *testing.T) {
	bt := newTestBLE(200)
	frame := EncodeFrame(mailbox.OutdoorSample{Temperature: 1})

	for seq := uint32(0); seq < 100; seq++ {
		bt.handle("AA", 0xFFFF, Advertisement(seq, frame))
	}
	for bt.Available() {
		if _, err := bt.Read(); err != nil {
			t.Fatal(err)
		}
	}

	// transmitter rebooted, numbering starts over
	for seq := uint32(0); seq < 100; seq++ {
		bt.handle("AA", 0xFFFF, Advertisement(seq, frame))
	}
	if len(bt.frames) != 100 {
		t.Fatalf("accepted after restart = %d, want 100", len(bt.frames))
	}
}

func TestBLEBufferDropsWhenFull(t *testing.T) {
	bt := newTestBLE(1)
	frame := EncodeFrame(mailbox.OutdoorSample{})
	bt.handle("AA", 0xFFFF, Advertisement(1, frame))
	bt.handle("AA", 0xFFFF, Advertisement(2, frame))

	if bt.Dropped() != 1 {
		t.Fatalf("Dropped = %d", bt.Dropped())
	}
	if _, err := bt.Read(); err != nil {
		t.Fatal(err)
	}
	if _, err := bt.Read(); !errors.Is(err, ErrNoFrame) {
		t.Fatalf("err = %v, want ErrNoFrame", err)
	}
	if bt.Available() {
		t.Fatal("Available after drain")
	}
}
