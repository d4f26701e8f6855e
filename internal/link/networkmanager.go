package link

import (
	"errors"
	"fmt"

	gonm "github.com/Wifx/gonetworkmanager/v2"
)

var ErrNoSavedConnection = errors.New("no saved connection for interface")

// activateSaved asks NetworkManager over the system bus to activate the
// first saved connection available on iface.
func activateSaved(iface string) error {
	nm, err := gonm.NewNetworkManager()
	if err != nil {
		return fmt.Errorf("networkmanager: %w", err)
	}
	dev, err := nm.GetDeviceByIpIface(iface)
	if err != nil {
		return fmt.Errorf("networkmanager device %s: %w", iface, err)
	}
	conns, err := dev.GetPropertyAvailableConnections()
	if err != nil {
		return fmt.Errorf("networkmanager connections %s: %w", iface, err)
	}
	if len(conns) == 0 {
		return fmt.Errorf("%s: %w", iface, ErrNoSavedConnection)
	}
	if _, err := nm.ActivateConnection(conns[0], dev, nil); err != nil {
		return fmt.Errorf("networkmanager activate %s: %w", iface, err)
	}
	return nil
}
