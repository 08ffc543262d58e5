// Package hostif implements wifi.Driver for an interface the host already
// manages, such as ethernet on a development box or a container veth.
//
// The driver never changes interface state. Association is reported from
// the interface flags and the presence of an IPv4 address.
package hostif

import (
	"fmt"
	"net"

	"github.com/nerrad567/sensorlink/internal/wifi"
)

// Driver reports on a host-managed interface.
type Driver struct {
	name string

	lookup func(name string) (*net.Interface, error)
	addrs  func(iface *net.Interface) ([]net.Addr, error)
}

// New creates a Driver for the named interface.
func New(name string) *Driver {
	return &Driver{
		name:   name,
		lookup: net.InterfaceByName,
		addrs:  func(iface *net.Interface) ([]net.Addr, error) { return iface.Addrs() },
	}
}

// Activate is a no-op; the host owns the interface.
func (d *Driver) Activate(bool) error { return nil }

// Associate is a no-op; credentials are ignored.
func (d *Driver) Associate(string, string) error { return nil }

// Disassociate is a no-op.
func (d *Driver) Disassociate() error { return nil }

// Status maps interface state to a wifi.Status:
//
//	missing interface → StatusConnectFail
//	down              → StatusConnecting
//	up, no IPv4       → StatusNoIP
//	up with IPv4      → StatusGotIP
func (d *Driver) Status() (wifi.Status, error) {
	iface, err := d.lookup(d.name)
	if err != nil {
		return wifi.StatusConnectFail, nil
	}
	if iface.Flags&net.FlagUp == 0 {
		return wifi.StatusConnecting, nil
	}

	ipnet, err := d.firstIPv4(iface)
	if err != nil {
		return wifi.StatusIdle, err
	}
	if ipnet == nil {
		return wifi.StatusNoIP, nil
	}
	return wifi.StatusGotIP, nil
}

// IPConfig returns the first IPv4 address on the interface.
func (d *Driver) IPConfig() (wifi.IPConfig, error) {
	iface, err := d.lookup(d.name)
	if err != nil {
		return wifi.IPConfig{}, fmt.Errorf("%w: interface %s: %w", wifi.ErrDriver, d.name, err)
	}

	ipnet, err := d.firstIPv4(iface)
	if err != nil {
		return wifi.IPConfig{}, err
	}
	if ipnet == nil {
		return wifi.IPConfig{}, fmt.Errorf("%w: interface %s has no IPv4 address", wifi.ErrDriver, d.name)
	}

	return wifi.IPConfig{
		IP:      ipnet.IP.String(),
		Netmask: net.IP(ipnet.Mask).String(),
	}, nil
}

// IsAssociated reports whether the interface is up with an IPv4 address.
func (d *Driver) IsAssociated() bool {
	status, err := d.Status()
	return err == nil && status == wifi.StatusGotIP
}

func (d *Driver) firstIPv4(iface *net.Interface) (*net.IPNet, error) {
	addrs, err := d.addrs(iface)
	if err != nil {
		return nil, fmt.Errorf("%w: listing addresses on %s: %w", wifi.ErrDriver, d.name, err)
	}
	for _, addr := range addrs {
		ipnet, ok := addr.(*net.IPNet)
		if !ok {
			continue
		}
		if ip4 := ipnet.IP.To4(); ip4 != nil {
			mask := ipnet.Mask
			if len(mask) == net.IPv6len {
				mask = mask[net.IPv6len-net.IPv4len:]
			}
			return &net.IPNet{IP: ip4, Mask: mask}, nil
		}
	}
	return nil, nil //nolint:nilnil // no address is not an error
}
