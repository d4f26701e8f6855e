package display

import (
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"io"
	"io/fs"
	"log/slog"
	"strconv"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/devices/v3/ssd1306"
	"periph.io/x/devices/v3/ssd1306/image1bit"
	"periph.io/x/host/v3"

	"meteo-station/internal/mailbox"
	"meteo-station/internal/storage"
)

// Device is the part of an ssd1306 the panel needs.
type Device interface {
	Bounds() image.Rectangle
	Draw(r image.Rectangle, src image.Image, sp image.Point) error
}

// 128x64 layout in 7x13 glyph rows.
var (
	rectClock      = image.Rect(0, 0, 35, 13)
	rectDate       = image.Rect(38, 0, 80, 13)
	rectConnection = image.Rect(84, 0, 105, 13)
	rectBattery    = image.Rect(105, 0, 128, 13)
	rectIndoor     = image.Rect(0, 13, 64, 26)
	rectOutdoor    = image.Rect(64, 13, 128, 26)
	rectCurrent    = image.Rect(0, 26, 64, 39)
	rectPlace      = image.Rect(64, 26, 128, 39)
	rectForecast   = image.Rect(0, 39, 128, 64)

	forecastColW = 42
	iconSize     = 13
)

// Panel renders widgets onto a monochrome ssd1306. Weather icons are read
// from the storage medium; when the medium is busy the icon is skipped.
type Panel struct {
	dev    Device
	img    *image1bit.VerticalLSB
	face   font.Face
	assets *storage.Medium
	logger *slog.Logger
	bus    io.Closer
}

// OpenPanel initialises the host and opens an ssd1306 on the named I²C bus
// ("" selects the first one).
func OpenPanel(busName string, assets *storage.Medium, logger *slog.Logger) (*Panel, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("host init: %w", err)
	}
	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, fmt.Errorf("open i2c bus %q: %w", busName, err)
	}
	dev, err := openSSD1306(bus)
	if err != nil {
		bus.Close()
		return nil, err
	}
	p := NewPanel(dev, assets, logger)
	p.bus = bus
	return p, nil
}

func openSSD1306(bus i2c.Bus) (*ssd1306.Dev, error) {
	dev, err := ssd1306.NewI2C(bus, &ssd1306.DefaultOpts)
	if err != nil {
		return nil, fmt.Errorf("ssd1306 init: %w", err)
	}
	return dev, nil
}

func NewPanel(dev Device, assets *storage.Medium, logger *slog.Logger) *Panel {
	if logger == nil {
		logger = slog.Default()
	}
	return &Panel{
		dev:    dev,
		img:    image1bit.NewVerticalLSB(dev.Bounds()),
		face:   basicfont.Face7x13,
		assets: assets,
		logger: logger.With("renderer", "ssd1306"),
	}
}

func (p *Panel) Close() error {
	if p.bus != nil {
		return p.bus.Close()
	}
	return nil
}

func (p *Panel) clear(r image.Rectangle) {
	draw.Draw(p.img, r, &image.Uniform{C: image1bit.Off}, image.Point{}, draw.Src)
}

func (p *Panel) text(r image.Rectangle, line int, s string) {
	s = truncate(asciiText(s), r.Dx()/7)
	d := font.Drawer{
		Dst:  p.img,
		Src:  &image.Uniform{C: image1bit.On},
		Face: p.face,
		Dot:  fixed.P(r.Min.X, r.Min.Y+11+13*line),
	}
	d.DrawString(s)
}

func (p *Panel) flush(r image.Rectangle) error {
	return p.dev.Draw(r, p.img, r.Min)
}

func (p *Panel) widget(r image.Rectangle, lines ...string) error {
	p.clear(r)
	for i, l := range lines {
		p.text(r, i, l)
	}
	return p.flush(r)
}

func stale(s string, valid bool) string {
	if valid {
		return s
	}
	return s + "?"
}

func (p *Panel) Clock(hour, minute int) error {
	return p.widget(rectClock, fmt.Sprintf("%02d:%02d", hour, minute))
}

// Date shows the day and month; the year does not fit.
func (p *Panel) Date(label string) error {
	if len(label) > 5 {
		label = label[:5]
	}
	return p.widget(rectDate, label)
}

func (p *Panel) Connection(c Connection) error {
	b := []byte("---")
	if c.Wifi {
		b[0] = 'W'
	}
	if c.Down {
		b[1] = 'D'
	}
	if c.Up {
		b[2] = 'U'
	}
	return p.widget(rectConnection, string(b))
}

func (p *Panel) Battery(percent uint16) error {
	return p.widget(rectBattery, "B"+strconv.Itoa(int(min(percent, 99))))
}

func (p *Panel) Indoor(s mailbox.IndoorSample, valid bool) error {
	return p.widget(rectIndoor, stale(fmt.Sprintf("%.1f %d", s.Temperature, s.Humidity), valid))
}

func (p *Panel) Outdoor(s mailbox.OutdoorSample, valid bool) error {
	return p.widget(rectOutdoor, stale(fmt.Sprintf("%.1f %.0f", s.Temperature, s.Humidity), valid))
}

func (p *Panel) PlaceName(name string) error {
	return p.widget(rectPlace, name)
}

func (p *Panel) Current(e mailbox.ForecastEntry, valid bool) error {
	p.clear(rectCurrent)
	textRect := rectCurrent
	if p.icon(e.WeatherCode, rectCurrent.Min) {
		textRect.Min.X += iconSize + 1
	}
	p.text(textRect, 0, stale(fmt.Sprintf("%.0f %.0fm", e.Temperature, e.WindSpeed), valid))
	return p.flush(rectCurrent)
}

func (p *Panel) Forecast(col int, e mailbox.ForecastEntry, label string, kp float64, valid bool) error {
	if col < 0 || col > 2 {
		return fmt.Errorf("forecast column %d out of range", col)
	}
	r := image.Rect(col*forecastColW, rectForecast.Min.Y, (col+1)*forecastColW, rectForecast.Max.Y)
	lo, hi := fmt.Sprintf("%.0f", e.TemperatureLo), fmt.Sprintf("%.0f", e.TemperatureHi)
	return p.widget(r, label, stale(lo+"/"+hi+" "+strconv.Itoa(int(kp)), valid))
}

func (p *Panel) UpdateNotice() error {
	bounds := p.img.Bounds()
	p.clear(bounds)
	p.text(bounds, 1, " UPDATING...")
	p.text(bounds, 2, " do not power off")
	return p.flush(bounds)
}

// icon draws assets/w<code>.png at pt and reports whether it did.
func (p *Panel) icon(code int, pt image.Point) bool {
	if p.assets == nil {
		return false
	}
	name := fmt.Sprintf("assets/w%d.png", code)

	var src image.Image
	err := p.assets.View(name, func(r io.Reader) error {
		var err error
		src, err = png.Decode(r)
		return err
	})
	switch {
	case err == nil:
	case errors.Is(err, fs.ErrNotExist):
		p.logger.Debug("icon missing", "name", name)
		return false
	case errors.Is(err, storage.ErrLockTimeout):
		p.logger.Warn("storage busy, icon skipped", "name", name)
		return false
	default:
		p.logger.Warn("icon unreadable", "name", name, "err", err)
		return false
	}

	dst := image.Rectangle{Min: pt, Max: pt.Add(image.Pt(iconSize, iconSize))}
	draw.Draw(p.img, dst, src, src.Bounds().Min, draw.Over)
	return true
}
