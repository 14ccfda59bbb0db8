// Package config manages the nvuectl device inventory.
//
// The inventory is a YAML file naming the switches nvuectl talks to and a few
// transaction defaults. Commands accept either an inventory name or a bare host
// for --device.
//
// # Configuration File Location
//
//   - Linux: $XDG_CONFIG_HOME/nvuectl/config.yaml or $HOME/.config/nvuectl/config.yaml
//   - macOS: $HOME/.config/nvuectl/config.yaml
//   - Windows: %LOCALAPPDATA%\nvuectl\config.yaml
//
// NVUECTL_CONFIG overrides the location.
//
// # File Format
//
//	version: 1
//	devices:
//	  leaf01:
//	    host: 10.0.0.11
//	    port: 8765
//	    username: cumulus
//	    insecure: true
//	preferences:
//	  default_wait: 15
//	  force: false
//	  wait_ready: true
//
// # Security
//
// Passwords are never written to the inventory.
package config
