package mqtt

import (
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"meteo-station/internal/mailbox"
	"meteo-station/internal/status"
)

type fakeToken struct {
	done chan struct{}
	err  error
}

func newDoneToken(err error) *fakeToken {
	t := &fakeToken{done: make(chan struct{}), err: err}
	close(t.done)
	return t
}

func (t *fakeToken) Wait() bool {
	<-t.done
	return true
}

func (t *fakeToken) WaitTimeout(d time.Duration) bool {
	select {
	case <-t.done:
		return true
	case <-time.After(d):
		return false
	}
}

func (t *fakeToken) Done() <-chan struct{} { return t.done }
func (t *fakeToken) Error() error          { return t.err }

type published struct {
	topic   string
	payload string
}

type fakeClient struct {
	mqtt.Client

	mu        sync.Mutex
	open      bool
	connects  int
	connTok   mqtt.Token
	published []published
}

func (c *fakeClient) Connect() mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connects++
	return c.connTok
}

func (c *fakeClient) IsConnectionOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

func (c *fakeClient) Publish(topic string, _ byte, _ bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published = append(c.published, published{topic, payload.(string)})
	return newDoneToken(nil)
}

func (c *fakeClient) Disconnect(uint) {}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestOutdoorPayload(t *testing.T) {
	s := mailbox.OutdoorSample{Temperature: float64(float32(-5.3)), Humidity: 55, Pressure: 1012, Battery: 80}
	want := `{"t":-5.3,"p":1012,"h":55.0,"bat":80}`
	if got := OutdoorPayload(s); got != want {
		t.Fatalf("OutdoorPayload() = %s, want %s", got, want)
	}
}

func TestIndoorPayload(t *testing.T) {
	tests := []struct {
		name string
		in   mailbox.IndoorSample
		want string
	}{
		{"typical", mailbox.IndoorSample{Temperature: 22.46, Pressure: 1013.4, Humidity: 41}, `{"t":22.5,"p":1013.0,"h":41}`},
		{"rounding up", mailbox.IndoorSample{Temperature: 19.96, Pressure: 998.5, Humidity: 100}, `{"t":20.0,"p":999.0,"h":100}`},
		{"negative zero", mailbox.IndoorSample{Temperature: -0.04, Pressure: -0.2}, `{"t":-0.0,"p":0.0,"h":0}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IndoorPayload(tt.in); got != tt.want {
				t.Fatalf("IndoorPayload() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestPublishTopics(t *testing.T) {
	reg := status.New()
	fc := &fakeClient{open: true}
	p := newPublisher(fc, "meteo_station/", reg, discard())

	if err := p.Publish(mailbox.IndoorSample{Temperature: 21, Pressure: 1000, Humidity: 40}); err != nil {
		t.Fatalf("Publish(indoor) error = %v", err)
	}
	if err := p.Publish(mailbox.OutdoorSample{Temperature: 1, Humidity: 2, Pressure: 3, Battery: 4}); err != nil {
		t.Fatalf("Publish(outdoor) error = %v", err)
	}
	if err := p.Publish(mailbox.PlaceName{Name: "x"}); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("Publish(place) error = %v, want ErrUnsupported", err)
	}

	if len(fc.published) != 2 {
		t.Fatalf("published %d messages, want 2", len(fc.published))
	}
	if fc.published[0].topic != "meteo_station/in" || fc.published[1].topic != "meteo_station/out" {
		t.Fatalf("topics = %q, %q", fc.published[0].topic, fc.published[1].topic)
	}
}

func TestPublishNotConnected(t *testing.T) {
	fc := &fakeClient{}
	p := newPublisher(fc, "p", status.New(), discard())
	if err := p.Publish(mailbox.IndoorSample{}); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("Publish() error = %v, want ErrNotConnected", err)
	}

	unconfigured := newPublisher(nil, "p", status.New(), discard())
	if err := unconfigured.Publish(mailbox.OutdoorSample{}); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("Publish() on unconfigured error = %v, want ErrNotConnected", err)
	}
}

func TestLoopTracksBrokerUp(t *testing.T) {
	reg := status.New()
	pending := &fakeToken{done: make(chan struct{})}
	fc := &fakeClient{connTok: pending}
	p := newPublisher(fc, "p", reg, discard())

	p.Loop()
	p.Loop()
	if fc.connects != 1 {
		t.Fatalf("Connect called %d times while pending, want 1", fc.connects)
	}
	if reg.Load().Has(status.BrokerUp) {
		t.Fatal("BrokerUp set before connection opened")
	}

	fc.mu.Lock()
	fc.open = true
	fc.mu.Unlock()
	close(pending.done)
	p.Loop()
	if !reg.Load().Has(status.BrokerUp) {
		t.Fatal("BrokerUp not set after connection opened")
	}

	fc.mu.Lock()
	fc.open = false
	fc.mu.Unlock()
	p.Loop()
	if reg.Load().Has(status.BrokerUp) {
		t.Fatal("BrokerUp still set after connection dropped")
	}
}

func TestLoopRetriesFailedConnect(t *testing.T) {
	fc := &fakeClient{connTok: newDoneToken(errors.New("not authorized"))}
	p := newPublisher(fc, "p", status.New(), discard())

	p.Loop() // starts attempt
	p.Loop() // observes failure
	p.Loop() // starts again
	if fc.connects != 2 {
		t.Fatalf("Connect called %d times, want 2", fc.connects)
	}
}

func TestLoopUnconfigured(t *testing.T) {
	reg := status.New()
	reg.Set(status.BrokerUp)
	newPublisher(nil, "p", reg, discard()).Loop()
	if reg.Load().Has(status.BrokerUp) {
		t.Fatal("BrokerUp left set without a broker")
	}
}

func TestClientID(t *testing.T) {
	a, b := ClientID(), ClientID()
	if !strings.HasPrefix(a, "meteo_pub_") || len(a) != len("meteo_pub_")+12 {
		t.Fatalf("ClientID() = %q", a)
	}
	if a == b {
		t.Fatal("ClientID() returned the same id twice")
	}
}
