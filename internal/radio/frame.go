package radio

import (
	"encoding/binary"
	"fmt"
	"math"

	"meteo-station/internal/mailbox"
)

// Outdoor sensor record, little-endian: temperature float32, humidity
// float32, pressure uint16 (hPa), battery uint16 (%).
const FrameSize = 12

func DecodeFrame(b []byte) (mailbox.OutdoorSample, error) {
	if len(b) != FrameSize {
		return mailbox.OutdoorSample{}, fmt.Errorf("frame length %d, want %d", len(b), FrameSize)
	}
	temp := math.Float32frombits(binary.LittleEndian.Uint32(b[0:4]))
	hum := math.Float32frombits(binary.LittleEndian.Uint32(b[4:8]))
	if !finite(temp) || !finite(hum) {
		return mailbox.OutdoorSample{}, fmt.Errorf("frame carries non-finite values")
	}
	return mailbox.OutdoorSample{
		Temperature: float64(temp),
		Humidity:    float64(hum),
		Pressure:    binary.LittleEndian.Uint16(b[8:10]),
		Battery:     binary.LittleEndian.Uint16(b[10:12]),
	}, nil
}

func EncodeFrame(s mailbox.OutdoorSample) []byte {
	b := make([]byte, FrameSize)
	binary.LittleEndian.PutUint32(b[0:4], math.Float32bits(float32(s.Temperature)))
	binary.LittleEndian.PutUint32(b[4:8], math.Float32bits(float32(s.Humidity)))
	binary.LittleEndian.PutUint16(b[8:10], s.Pressure)
	binary.LittleEndian.PutUint16(b[10:12], s.Battery)
	return b
}

func finite(f float32) bool {
	v := float64(f)
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func bytesToHex(b []byte) string {
	const hexd = "0123456789ABCDEF"
	out := make([]byte, 0, len(b)*2)
	for _, x := range b {
		out = append(out, hexd[x>>4], hexd[x&0x0F])
	}
	return string(out)
}
