package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"gopkg.in/yaml.v3"
)

const (
	appName    = "nvuectl"
	configFile = "config.yaml"

	// ConfigEnvVar overrides the inventory file location
	ConfigEnvVar = "NVUECTL_CONFIG"
)

var (
	globalInventory     *Inventory
	globalInventoryOnce sync.Once
	globalInventoryErr  error

	// Serializes file writes
	fileMutex sync.Mutex
)

// GetConfigDir returns the OS-appropriate configuration directory:
//   - Linux: $XDG_CONFIG_HOME/nvuectl or $HOME/.config/nvuectl
//   - macOS: $HOME/.config/nvuectl
//   - Windows: %LOCALAPPDATA%\nvuectl
func GetConfigDir() (string, error) {
	switch runtime.GOOS {
	case "windows":
		if localAppData := os.Getenv("LOCALAPPDATA"); localAppData != "" {
			return filepath.Join(localAppData, appName), nil
		}
		userProfile := os.Getenv("USERPROFILE")
		if userProfile == "" {
			return "", fmt.Errorf("cannot determine user profile directory (LOCALAPPDATA and USERPROFILE not set)")
		}
		return filepath.Join(userProfile, "AppData", "Local", appName), nil

	case "darwin":
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot determine home directory: %w", err)
		}
		return filepath.Join(homeDir, ".config", appName), nil

	default:
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, appName), nil
		}
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot determine home directory: %w", err)
		}
		return filepath.Join(homeDir, ".config", appName), nil
	}
}

// GetConfigPath returns the inventory file path, honoring NVUECTL_CONFIG
func GetConfigPath() (string, error) {
	if p := os.Getenv(ConfigEnvVar); p != "" {
		return p, nil
	}
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, configFile), nil
}

// LoadInventory loads the inventory from the default location once.
// A missing file yields a fresh default inventory.
func LoadInventory() (*Inventory, error) {
	globalInventoryOnce.Do(func() {
		path, err := GetConfigPath()
		if err != nil {
			globalInventoryErr = fmt.Errorf("failed to get config path: %w", err)
			return
		}
		globalInventory, globalInventoryErr = LoadFrom(path)
	})
	return globalInventory, globalInventoryErr
}

// ReloadInventory discards the cached inventory and reads it again
func ReloadInventory() (*Inventory, error) {
	fileMutex.Lock()
	globalInventoryOnce = sync.Once{}
	globalInventory, globalInventoryErr = nil, nil
	fileMutex.Unlock()
	return LoadInventory()
}

// LoadFrom reads an inventory file
func LoadFrom(path string) (*Inventory, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return NewInventory(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var inv Inventory
	if err := yaml.Unmarshal(data, &inv); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if inv.Version != CurrentVersion {
		return nil, fmt.Errorf("unsupported config version: %d (expected %d)", inv.Version, CurrentVersion)
	}

	if inv.Devices == nil {
		inv.Devices = make(map[string]*Device)
	}
	if inv.Preferences == nil {
		inv.Preferences = defaultPreferences()
	}
	for name, d := range inv.Devices {
		if d == nil || d.Host == "" {
			return nil, fmt.Errorf("config file %s: device %s has no host", path, name)
		}
	}
	return &inv, nil
}

// Save writes the inventory to the default location
func (inv *Inventory) Save() error {
	path, err := GetConfigPath()
	if err != nil {
		return fmt.Errorf("failed to get config path: %w", err)
	}
	return inv.SaveTo(path)
}

// SaveTo writes the inventory atomically: a temp file in the same directory
// is renamed over the target.
func (inv *Inventory) SaveTo(path string) error {
	fileMutex.Lock()
	defer fileMutex.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(inv)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# nvuectl inventory
# Device passwords are never stored here. Use --password or NVUE_PASSWORD.

`)
	data = append(header, data...)

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write temporary config file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to save config file: %w", err)
	}
	return nil
}
