package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/muurk/nvuectl/internal/config"
	"github.com/muurk/nvuectl/internal/ui"
)

var inventoryHost string

func init() {
	inventoryAddCmd.Flags().StringVar(&inventoryHost, "host", "", "Host name or address (default: the device name)")

	inventoryCmd.AddCommand(inventoryAddCmd)
	inventoryCmd.AddCommand(inventoryListCmd)
	inventoryCmd.AddCommand(inventoryRemoveCmd)
	rootCmd.AddCommand(inventoryCmd)
}

var inventoryCmd = &cobra.Command{
	Use:   "inventory",
	Short: "Manage named devices",
	Long: `Manage the device inventory, a YAML file in the user config directory
(override with NVUECTL_CONFIG). Devices in the inventory can be addressed by
name with --device. Passwords are never stored.`,
}

var inventoryAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Add or replace a device",
	Example: `  nvuectl inventory add leaf01 --host 192.0.2.11 --insecure
  nvuectl inventory add spine01 --host spine01.example.net --port 8765 --user admin`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		path, inv, err := loadInventoryFile()
		if err != nil {
			return err
		}

		host := inventoryHost
		if host == "" {
			host = name
		}
		dev := &config.Device{Host: host, Port: devicePort, Username: username, Insecure: insecure}
		if err := inv.AddDevice(name, dev); err != nil {
			return err
		}
		if err := inv.SaveTo(path); err != nil {
			return err
		}

		if format == formatJSON {
			return writeJSON(cmd.OutOrStdout(), map[string]any{"name": name, "device": dev})
		}
		ui.NewPrinter(cmd.OutOrStdout()).PrintSuccess("Device "+name+" saved",
			ui.Param{Key: "Host", Value: host},
			ui.Param{Key: "File", Value: path},
		)
		return nil
	},
}

var inventoryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List devices",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, inv, err := loadInventoryFile()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if format == formatJSON {
			return writeJSON(out, inv.Devices)
		}

		p := ui.NewPrinter(out)
		names := inv.Names()
		if len(names) == 0 {
			p.PrintWarning("Inventory is empty", ui.Param{Key: "Add", Value: "nvuectl inventory add <name> --host <address>"})
			return nil
		}
		details := make([]ui.Param, 0, len(names))
		for _, name := range names {
			d := inv.Devices[name]
			value := d.Host
			if d.Port != 0 {
				value += ":" + strconv.Itoa(d.Port)
			}
			if d.LastRevision != "" {
				value += fmt.Sprintf("  (last: %s, %s)", d.LastRevision, d.LastState)
			}
			details = append(details, ui.Param{Key: name, Value: value})
		}
		p.PrintSuccess(fmt.Sprintf("%d device(s)", len(names)), details...)
		return nil
	},
}

var inventoryRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Remove a device",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, inv, err := loadInventoryFile()
		if err != nil {
			return err
		}
		if !inv.RemoveDevice(args[0]) {
			return errors.New("no device named " + args[0])
		}
		if err := inv.SaveTo(path); err != nil {
			return err
		}
		if format == formatJSON {
			return writeJSON(cmd.OutOrStdout(), map[string]any{"removed": args[0]})
		}
		ui.NewPrinter(cmd.OutOrStdout()).PrintSuccess("Device " + args[0] + " removed")
		return nil
	},
}
