// Package status holds the process-wide condition flags shared by all
// workers. Every operation is a single atomic instruction.
package status

import (
	"strings"
	"sync/atomic"
)

type Flags uint32

const (
	WifiUp Flags = 1 << iota
	BrokerUp
	ForecastUp
	RelayUp
	UpdateInProgress
)

// LinkUp is the combination shown as "fully connected".
const LinkUp = WifiUp | BrokerUp | RelayUp

var names = []struct {
	flag Flags
	name string
}{
	{WifiUp, "wifi"},
	{BrokerUp, "broker"},
	{ForecastUp, "forecast"},
	{RelayUp, "relay"},
	{UpdateInProgress, "update"},
}

// Has reports whether every bit of mask is set.
func (f Flags) Has(mask Flags) bool {
	return f&mask == mask
}

func (f Flags) String() string {
	if f == 0 {
		return "none"
	}
	var parts []string
	for _, n := range names {
		if f&n.flag != 0 {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}

type Register struct {
	v atomic.Uint32
}

func New() *Register {
	return &Register{}
}

// Set raises mask and returns the flags held before the call.
func (r *Register) Set(mask Flags) Flags {
	return Flags(r.v.Or(uint32(mask)))
}

// Clear lowers mask and returns the flags held before the call.
func (r *Register) Clear(mask Flags) Flags {
	return Flags(r.v.And(^uint32(mask)))
}

// Update sets mask when on is true and clears it otherwise.
func (r *Register) Update(mask Flags, on bool) Flags {
	if on {
		return r.Set(mask)
	}
	return r.Clear(mask)
}

func (r *Register) Load() Flags {
	return Flags(r.v.Load())
}
