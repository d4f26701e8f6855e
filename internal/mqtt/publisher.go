package mqtt

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"meteo-station/internal/mailbox"
	"meteo-station/internal/settings"
	"meteo-station/internal/status"
)

const publishTimeout = 5 * time.Second

var (
	ErrNotConnected = errors.New("mqtt client not connected")
	ErrUnsupported  = errors.New("item kind is not republished")
)

// Publisher republishes indoor and outdoor samples to the station broker.
// Connection upkeep is left to paho's auto-reconnect; Loop only starts the
// first attempt and mirrors the connection state into BrokerUp.
type Publisher struct {
	client mqtt.Client
	prefix string
	status *status.Register
	logger *slog.Logger

	mu    sync.Mutex
	token mqtt.Token
}

func NewPublisher(st settings.Station, reg *status.Register, logger *slog.Logger) (*Publisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	server := strings.TrimSpace(st.MQTTServer)
	if server == "" {
		return newPublisher(nil, st.MQTTPrefix, reg, logger), nil
	}
	port, err := st.Port()
	if err != nil {
		return nil, err
	}

	p := newPublisher(nil, st.MQTTPrefix, reg, logger)

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", server, port))
	opts.SetClientID(ClientID())
	if st.MQTTUser != "" {
		opts.SetUsername(st.MQTTUser)
		opts.SetPassword(st.MQTTPass)
	}

	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)
	opts.SetConnectTimeout(10 * time.Second)
	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	opts.SetOnConnectHandler(func(_ mqtt.Client) {
		reg.Set(status.BrokerUp)
		logger.Info("mqtt connected", "broker", server, "port", port)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		reg.Clear(status.BrokerUp)
		logger.Warn("mqtt connection lost", "error", err)
	})

	p.client = mqtt.NewClient(opts)
	return p, nil
}

func newPublisher(client mqtt.Client, prefix string, reg *status.Register, logger *slog.Logger) *Publisher {
	return &Publisher{
		client: client,
		prefix: strings.TrimSuffix(prefix, "/"),
		status: reg,
		logger: logger,
	}
}

// ClientID returns a fresh broker client id.
func ClientID() string {
	return "meteo_pub_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// Loop services the broker connection without blocking.
func (p *Publisher) Loop() {
	if p.client == nil {
		p.status.Clear(status.BrokerUp)
		return
	}

	p.mu.Lock()
	if p.token == nil {
		p.token = p.client.Connect()
	} else {
		select {
		case <-p.token.Done():
			if err := p.token.Error(); err != nil {
				p.logger.Warn("mqtt connect failed", "error", err)
				p.token = nil
			}
		default:
		}
	}
	p.mu.Unlock()

	p.status.Update(status.BrokerUp, p.client.IsConnectionOpen())
}

func (p *Publisher) Connected() bool {
	return p.client != nil && p.client.IsConnectionOpen()
}

// Publish sends one sample. Kinds other than indoor and outdoor samples
// return ErrUnsupported.
func (p *Publisher) Publish(item mailbox.Item) error {
	var topic, payload string
	switch v := item.(type) {
	case mailbox.IndoorSample:
		topic, payload = p.prefix+"/in", IndoorPayload(v)
	case mailbox.OutdoorSample:
		topic, payload = p.prefix+"/out", OutdoorPayload(v)
	default:
		return fmt.Errorf("%w: %v", ErrUnsupported, item.Kind())
	}

	if !p.Connected() {
		return ErrNotConnected
	}

	token := p.client.Publish(topic, 0, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish timeout for topic %s", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}

	p.logger.Debug("published sample", "topic", topic, "payload", payload)
	return nil
}

func (p *Publisher) Close() {
	if p.client != nil {
		p.client.Disconnect(250)
	}
	p.status.Clear(status.BrokerUp)
}

// IndoorPayload renders {"t":<1dp>,"p":<whole>,"h":<uint>}.
func IndoorPayload(s mailbox.IndoorSample) string {
	var b strings.Builder
	b.WriteString(`{"t":`)
	b.WriteString(strconv.FormatFloat(s.Temperature, 'f', 1, 64))
	b.WriteString(`,"p":`)
	b.WriteString(wholeFloat(s.Pressure))
	b.WriteString(`,"h":`)
	b.WriteString(strconv.FormatUint(uint64(s.Humidity), 10))
	b.WriteString(`}`)
	return b.String()
}

// OutdoorPayload renders {"t":<1dp>,"p":<uint>,"h":<whole>,"bat":<uint>}.
func OutdoorPayload(s mailbox.OutdoorSample) string {
	var b strings.Builder
	b.WriteString(`{"t":`)
	b.WriteString(strconv.FormatFloat(s.Temperature, 'f', 1, 64))
	b.WriteString(`,"p":`)
	b.WriteString(strconv.FormatUint(uint64(s.Pressure), 10))
	b.WriteString(`,"h":`)
	b.WriteString(wholeFloat(s.Humidity))
	b.WriteString(`,"bat":`)
	b.WriteString(strconv.FormatUint(uint64(s.Battery), 10))
	b.WriteString(`}`)
	return b.String()
}

// wholeFloat rounds v to an integer but keeps it typed as a float on the
// wire, e.g. 55 -> 55.0.
func wholeFloat(v float64) string {
	r := math.Round(v)
	if r == 0 {
		r = 0 // normalise -0
	}
	return strconv.FormatFloat(r, 'f', 1, 64)
}
