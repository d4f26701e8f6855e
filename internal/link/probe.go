// Package link watches the station's network interface and drives the
// provisioning flow that precedes steady-state networking.
package link

import (
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync/atomic"
)

type Probe interface {
	Connected() bool
	// Reconnect starts a reconnect attempt in the background.
	Reconnect()
}

// Interface probes a named OS network interface.
type Interface struct {
	name   string
	logger *slog.Logger

	// Activate brings the interface back up on a saved connection.
	Activate func(iface string) error

	busy atomic.Bool
}

func NewInterface(name string, logger *slog.Logger) *Interface {
	if logger == nil {
		logger = slog.Default()
	}
	return &Interface{
		name:     name,
		logger:   logger,
		Activate: activateSaved,
	}
}

func (i *Interface) Name() string { return i.name }

// Connected reports whether the interface is up and holds a routable address.
func (i *Interface) Connected() bool {
	iface, err := net.InterfaceByName(i.name)
	if err != nil {
		return false
	}
	if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
		return false
	}
	addrs, err := iface.Addrs()
	if err != nil {
		return false
	}
	for _, a := range addrs {
		ipn, ok := a.(*net.IPNet)
		if !ok {
			continue
		}
		if ip := ipn.IP; !ip.IsLoopback() && !ip.IsLinkLocalUnicast() {
			return true
		}
	}
	return false
}

func (i *Interface) Reconnect() {
	if i.Activate == nil {
		return
	}
	if !i.busy.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer i.busy.Store(false)

		if err := i.Activate(i.name); err != nil {
			i.logger.Warn("reconnect failed", "iface", i.name, "err", err)
			return
		}
		i.logger.Info("reconnect requested", "iface", i.name)
	}()
}

// HardwareAddr returns the interface MAC as upper-case hex without separators.
func HardwareAddr(name string) (string, error) {
	iface, err := net.InterfaceByName(name)
	if err != nil {
		return "", fmt.Errorf("interface %q: %w", name, err)
	}
	if len(iface.HardwareAddr) == 0 {
		return "", fmt.Errorf("interface %q has no hardware address", name)
	}
	return strings.ToUpper(strings.ReplaceAll(iface.HardwareAddr.String(), ":", "")), nil
}
