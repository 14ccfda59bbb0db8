package discovery

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// Device is a switch found on the management network
type Device struct {
	// Instance is the advertised service instance name (e.g. "leaf01")
	Instance string

	// Hostname is the mDNS hostname (e.g. "leaf01.local.")
	Hostname string

	// IP is the first advertised address, IPv4 preferred
	IP string

	// Port is the advertised service port
	Port int

	// Metadata holds the TXT record as key/value pairs
	Metadata map[string]string

	DiscoveredAt time.Time
}

// String returns a human-readable representation of the device
func (d *Device) String() string {
	return fmt.Sprintf("%s (%s) at %s", d.Name(), d.Hostname, d.Address())
}

// Name returns the short name used as an inventory key
func (d *Device) Name() string {
	if d.Instance != "" {
		return d.Instance
	}
	return strings.TrimSuffix(strings.TrimSuffix(d.Hostname, "."), ".local")
}

// Address returns host:port suitable for display
func (d *Device) Address() string {
	return net.JoinHostPort(d.IP, strconv.Itoa(d.Port))
}

// GetMetadata retrieves a TXT value by key, or "" if not present
func (d *Device) GetMetadata(key string) string {
	if d.Metadata == nil {
		return ""
	}
	return d.Metadata[key]
}
