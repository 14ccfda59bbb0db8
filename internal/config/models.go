package config

import (
	"fmt"
	"sort"
	"time"
)

// CurrentVersion is the inventory file format version
const CurrentVersion = 1

// Inventory represents the entire user configuration file: the devices nvuectl
// can address by name, plus defaults for transactions.
type Inventory struct {
	Version     int                `yaml:"version"`
	Devices     map[string]*Device `yaml:"devices,omitempty"` // Keyed by device name
	Preferences *Preferences       `yaml:"preferences,omitempty"`
}

// Device describes how to reach one switch.
// Passwords are NEVER stored; they come from --password or NVUE_PASSWORD.
type Device struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port,omitempty"`
	Username string `yaml:"username,omitempty"`
	Insecure bool   `yaml:"insecure,omitempty"`

	LastRevision string    `yaml:"last_revision,omitempty"` // Revision id of the last set/apply
	LastState    string    `yaml:"last_state,omitempty"`    // State that revision was last seen in
	LastSeen     time.Time `yaml:"last_seen,omitempty"`
}

// Preferences hold defaults applied when the matching flag is not given
type Preferences struct {
	DefaultWait int  `yaml:"default_wait"` // Seconds to poll for apply completion
	Force       bool `yaml:"force"`        // Auto-confirm apply prompts
	WaitReady   bool `yaml:"wait_ready"`   // Probe the API before a transaction
}

// NewInventory creates an Inventory with default values
func NewInventory() *Inventory {
	return &Inventory{
		Version:     CurrentVersion,
		Devices:     make(map[string]*Device),
		Preferences: defaultPreferences(),
	}
}

func defaultPreferences() *Preferences {
	return &Preferences{DefaultWait: 0}
}

// GetDevice returns the named device or nil
func (inv *Inventory) GetDevice(name string) *Device {
	return inv.Devices[name]
}

// AddDevice registers or replaces a device
func (inv *Inventory) AddDevice(name string, d *Device) error {
	if name == "" {
		return fmt.Errorf("device name is required")
	}
	if d == nil || d.Host == "" {
		return fmt.Errorf("device %s: host is required", name)
	}
	if d.Port < 0 || d.Port > 65535 {
		return fmt.Errorf("device %s: invalid port %d", name, d.Port)
	}
	if inv.Devices == nil {
		inv.Devices = make(map[string]*Device)
	}
	inv.Devices[name] = d
	return nil
}

// RemoveDevice deletes a device, reporting whether it existed
func (inv *Inventory) RemoveDevice(name string) bool {
	if _, ok := inv.Devices[name]; !ok {
		return false
	}
	delete(inv.Devices, name)
	return true
}

// Names returns the device names in sorted order
func (inv *Inventory) Names() []string {
	names := make([]string, 0, len(inv.Devices))
	for name := range inv.Devices {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve maps a --device argument to a Device. Inventory names win; anything
// else is treated as a host with default settings.
func (inv *Inventory) Resolve(target string) (name string, d Device) {
	if dev, ok := inv.Devices[target]; ok {
		return target, *dev
	}
	return target, Device{Host: target}
}

// RecordTransaction remembers the revision last used on a device
func (inv *Inventory) RecordTransaction(name, revisionID, state string) {
	dev, ok := inv.Devices[name]
	if !ok {
		return
	}
	dev.LastRevision = revisionID
	dev.LastState = state
	dev.LastSeen = time.Now()
}
