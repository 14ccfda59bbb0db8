package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/muurk/nvuectl/internal/config"
	"github.com/muurk/nvuectl/internal/discovery"
	"github.com/muurk/nvuectl/internal/ui"
)

// Scan command flags
var (
	scanTimeout time.Duration
	scanService string
	scanFilter  string
	scanAdd     bool
)

func init() {
	scanCmd.Flags().DurationVar(&scanTimeout, "scan-timeout", discovery.DefaultScanTimeout, "How long to browse")
	scanCmd.Flags().StringVar(&scanService, "service", discovery.DefaultServiceType, "DNS-SD service type to browse")
	scanCmd.Flags().StringVar(&scanFilter, "filter", "", "Only keep hosts matching this regular expression")
	scanCmd.Flags().BoolVar(&scanAdd, "add", false, "Add discovered devices to the inventory")
	rootCmd.AddCommand(scanCmd)
}

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Discover switches on the management network with mDNS",
	Long: `Browse for switches advertising the NVUE API with mDNS/DNS-SD.

Cumulus Linux announces its HTTPS endpoint as _https._tcp; use --filter to
keep only your switches (for example '^(leaf|spine)').`,
	Example: `  # Browse for 5 seconds
  nvuectl scan

  # Keep leaf and spine switches and add them to the inventory
  nvuectl scan --filter '^(leaf|spine)' --add`,
	Args: cobra.NoArgs,
	RunE: runScan,
}

func runScan(cmd *cobra.Command, args []string) error {
	scanner := discovery.NewScanner()
	scanner.Timeout = scanTimeout
	scanner.Service = scanService
	if err := scanner.SetFilter(scanFilter); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	p := ui.NewPrinter(out)
	if format == formatPretty {
		p.PrintHeader("Device discovery", "nvuectl scan",
			ui.Param{Key: "Service", Value: scanService},
			ui.Param{Key: "Timeout", Value: scanTimeout.String()},
		)
	}

	found, err := scanner.Scan(cmd.Context())
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	if scanAdd && len(found) > 0 {
		if err := addDiscovered(found); err != nil {
			return err
		}
	}

	if format == formatJSON {
		return writeJSON(out, found)
	}

	if len(found) == 0 {
		p.PrintWarning("No devices found",
			ui.Param{Key: "Check", Value: "the switch and this host share a multicast domain"},
			ui.Param{Key: "Try", Value: "a longer --scan-timeout or --device with the address"},
		)
		return nil
	}

	details := make([]ui.Param, 0, len(found))
	for _, d := range found {
		details = append(details, ui.Param{Key: d.Name(), Value: d.Address()})
	}
	title := fmt.Sprintf("Found %d device(s)", len(found))
	if scanAdd {
		title += ", added to inventory"
	}
	p.PrintSuccess(title, details...)
	return nil
}

// addDiscovered stores discovered devices in the inventory under their name
func addDiscovered(found []*discovery.Device) error {
	path, inv, err := loadInventoryFile()
	if err != nil {
		return err
	}
	for _, d := range found {
		dev := &config.Device{Host: d.IP, Port: d.Port, Insecure: insecure}
		if existing := inv.GetDevice(d.Name()); existing != nil {
			existing.Host, existing.Port = dev.Host, dev.Port
			continue
		}
		if err := inv.AddDevice(d.Name(), dev); err != nil {
			return fmt.Errorf("add %s: %w", d.Name(), err)
		}
	}
	return inv.SaveTo(path)
}
