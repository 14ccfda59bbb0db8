// Nvuectl drives the NVUE REST API of Cumulus Linux switches.
//
// Every configuration change runs as a revision transaction: a revision is
// created, the payload is staged into it, the revision is applied and then
// polled until the switch reports it applied or the wait budget runs out.
//
// Usage:
//
//	nvuectl [command] [flags]
//
// Several --device flags run the same command on every device concurrently.
// See 'nvuectl --help' for available commands.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/muurk/nvuectl/internal/logging"
	"github.com/muurk/nvuectl/internal/transport"
	"github.com/muurk/nvuectl/internal/version"
)

// PasswordEnvVar supplies the API password when --password is not given
const PasswordEnvVar = "NVUE_PASSWORD"

// Output formats
const (
	formatPretty = "pretty"
	formatJSON   = "json"
)

// Global flags
var (
	devices     []string
	devicePort  int
	username    string
	password    string
	insecure    bool
	timeout     time.Duration
	format      string
	logLevel    string
	waitReady   bool
	metricsFile string
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	logging.Sync()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "nvuectl",
	Short: "NVUE transactional configuration client",
	Long: `A command line client for the NVUE REST API of Cumulus Linux switches.

Configuration is changed through revisions: nvuectl creates a revision, stages
the payload into it, applies it and waits until the switch reports it applied.
Reads always come from the applied revision.

Devices are given with --device as a host name, an address or the name of a
device in the inventory (see 'nvuectl inventory').`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := logging.Initialize(logLevel); err != nil {
			return err
		}
		switch format {
		case formatPretty, formatJSON:
		default:
			return fmt.Errorf("invalid --format %q (expected pretty or json)", format)
		}
		if password == "" {
			password = os.Getenv(PasswordEnvVar)
		}
		return nil
	},
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	flags := rootCmd.PersistentFlags()
	flags.StringArrayVarP(&devices, "device", "d", nil, "Device host or inventory name (repeatable)")
	flags.IntVar(&devicePort, "port", 0, fmt.Sprintf("NVUE API port (default %d)", transport.DefaultPort))
	flags.StringVarP(&username, "user", "u", "", "API user (default cumulus)")
	flags.StringVarP(&password, "password", "p", "", "API password (or "+PasswordEnvVar+")")
	flags.BoolVarP(&insecure, "insecure", "k", false, "Skip TLS certificate verification")
	flags.DurationVar(&timeout, "timeout", transport.DefaultTimeout, "Timeout for a single request")
	flags.StringVar(&format, "format", formatPretty, "Output format (pretty, json)")
	flags.StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); logs go to stderr")
	flags.BoolVar(&waitReady, "wait-ready", false, "Wait for the API to answer before starting")
	flags.StringVar(&metricsFile, "metrics-file", "", "Write Prometheus metrics to this file when done")

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		if format == formatJSON {
			_ = writeJSON(cmd.OutOrStdout(), version.Get())
			return
		}
		fmt.Fprintf(cmd.OutOrStdout(), "nvuectl %s\n", version.Full())
	},
}

func defaultUser() string {
	if username != "" {
		return username
	}
	return "cumulus"
}

func joinNames(names []string) string {
	return strings.Join(names, ", ")
}
