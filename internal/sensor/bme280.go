package sensor

import (
	"errors"
	"fmt"
	"sync"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/bmxx80"
	"periph.io/x/host/v3"
)

var ErrNotPresent = errors.New("sensor not present")

type Reading struct {
	Temperature float64 // °C
	Pressure    float64 // hPa
	Humidity    float64 // %rH
}

type Driver interface {
	Init() error
	Read() (Reading, error)
	Close() error
}

// BME280 reads a Bosch BME280 on the default I²C bus. The primary address
// is probed first, then the chip's alternate address.
type BME280 struct {
	addrs []uint16

	hostOnce sync.Once
	hostErr  error

	bus  i2c.BusCloser
	dev  *bmxx80.Dev
	addr uint16
}

func NewBME280(primary uint16) *BME280 {
	alt := uint16(0x77)
	if primary == 0x77 {
		alt = 0x76
	}
	return &BME280{addrs: []uint16{primary, alt}}
}

func (b *BME280) Init() error {
	if b.dev != nil {
		return nil
	}

	b.hostOnce.Do(func() { _, b.hostErr = host.Init() })
	if b.hostErr != nil {
		return fmt.Errorf("%w: host init: %v", ErrNotPresent, b.hostErr)
	}

	if b.bus == nil {
		bus, err := i2creg.Open("")
		if err != nil {
			return fmt.Errorf("%w: open i2c bus: %v", ErrNotPresent, err)
		}
		b.bus = bus
	}

	var errs []error
	for _, addr := range b.addrs {
		dev, err := bmxx80.NewI2C(b.bus, addr, &bmxx80.DefaultOpts)
		if err == nil {
			b.dev, b.addr = dev, addr
			return nil
		}
		errs = append(errs, fmt.Errorf("%#x: %v", addr, err))
	}
	return fmt.Errorf("%w: %v", ErrNotPresent, errors.Join(errs...))
}

func (b *BME280) Address() uint16 { return b.addr }

func (b *BME280) Read() (Reading, error) {
	if b.dev == nil {
		return Reading{}, ErrNotPresent
	}

	var env physic.Env
	if err := b.dev.Sense(&env); err != nil {
		_ = b.dev.Halt()
		b.dev = nil
		return Reading{}, fmt.Errorf("sense: %w", err)
	}

	return Reading{
		Temperature: env.Temperature.Celsius(),
		// nano pascal to hPa
		Pressure: float64(env.Pressure) / 1e7,
		// 0.00001 %rH fixed point
		Humidity: float64(env.Humidity) / 1e5,
	}, nil
}

func (b *BME280) Close() error {
	var errs []error
	if b.dev != nil {
		errs = append(errs, b.dev.Halt())
		b.dev = nil
	}
	if b.bus != nil {
		errs = append(errs, b.bus.Close())
		b.bus = nil
	}
	return errors.Join(errs...)
}
