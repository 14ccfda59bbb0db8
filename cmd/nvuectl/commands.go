package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/muurk/nvuectl/internal/config"
	"github.com/muurk/nvuectl/internal/logging"
	"github.com/muurk/nvuectl/internal/nvue"
	"github.com/muurk/nvuectl/internal/payload"
	"github.com/muurk/nvuectl/internal/schema"
	"github.com/muurk/nvuectl/internal/ui"
)

// Transaction command flags
var (
	dataInline string
	dataFile   string
	force      bool
	wait       int
	revisionID string
	checkMode  bool
	assumeYes  bool
	routerMode string
)

// Router states
const (
	stateGathered = "gathered"
	stateMerged   = "merged"
)

func init() {
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(setCmd)
	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(revisionCmd)
	rootCmd.AddCommand(routerCmd)
	revisionCmd.AddCommand(revisionNewCmd)

	for _, c := range []*cobra.Command{setCmd, routerCmd} {
		c.Flags().StringVar(&dataInline, "data", "", "Payload as inline JSON or YAML")
		c.Flags().StringVarP(&dataFile, "data-file", "f", "", "Payload file (.json, .yaml, .yml; - for stdin)")
		c.Flags().StringVar(&revisionID, "revid", "", "Stage into this open revision and leave it open")
		c.Flags().BoolVar(&checkMode, "check", false, "Validate the payload and stop before sending any request")
	}
	for _, c := range []*cobra.Command{setCmd, routerCmd, applyCmd} {
		c.Flags().BoolVar(&force, "force", false, "Answer yes to apply prompts and ignore apply failures")
		c.Flags().IntVarP(&wait, "wait", "w", 0, "Seconds to poll until the revision is applied")
		c.Flags().BoolVarP(&assumeYes, "yes", "y", false, "Do not ask before a forced apply on several devices")
	}
	routerCmd.Flags().StringVar(&routerMode, "state", stateMerged, "gathered (read) or merged (stage and apply)")
}

var getCmd = &cobra.Command{
	Use:   "get [path]",
	Short: "Read configuration from the applied revision",
	Long: `Read a subtree of the applied configuration.

The path is relative to the API root, for example "router/bgp" or
"interface/swp1". Without a path the whole applied tree is returned.`,
	Example: `  # Read BGP settings
  nvuectl get router/bgp --device leaf01

  # Whole tree from two switches as JSON
  nvuectl get --device leaf01 --device leaf02 --format json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runGet,
}

func runGet(cmd *cobra.Command, args []string) error {
	path := ""
	if len(args) == 1 {
		path = args[0]
	}
	return runOnDevices(cmd, func(ctx context.Context, d *device) (*result, error) {
		return readPath(ctx, d, "Get configuration", "nvuectl get "+path, path)
	})
}

// readPath performs a get and renders it
func readPath(ctx context.Context, d *device, title, command, path string) (*result, error) {
	resp, err := d.client().Get(ctx, path)

	if format == formatPretty {
		p := d.printer()
		shown := path
		if shown == "" {
			shown = "/"
		}
		p.PrintHeader(title, command,
			ui.Param{Key: "Device", Value: d.Name},
			ui.Param{Key: "Path", Value: shown},
		)
		if err != nil {
			p.PrintError(d.Name+": read failed", err, nvue.GetTroubleshootingHint(err))
		} else {
			p.PrintDocument("Applied configuration", ui.NewDocument("", resp))
		}
	}
	if err != nil {
		return nil, err
	}
	return &result{Message: resp}, nil
}

var setCmd = &cobra.Command{
	Use:   "set [path]",
	Short: "Stage and apply a configuration payload",
	Long: `Stage a payload in a new revision, apply it and wait for the result.

The payload is a JSON merge patch against the API root, so it names the full
path to what it changes, for example {"router": {"bgp": {"enable": "on"}}}.
The optional path argument is only used in logs and output.

With --revid the payload is staged into an existing open revision, which is
left open; apply it later with 'nvuectl apply'.

If the revision is not applied within --wait seconds the command still
succeeds and reports the last state seen; the switch keeps applying.`,
	Example: `  # Enable BGP and wait up to 30s for the apply
  nvuectl set --device leaf01 --data '{"router":{"bgp":{"enable":"on"}}}' --wait 30

  # Stage a YAML file into an open revision
  nvuectl set --device leaf01 --data-file bgp.yaml --revid changeset/cumulus/2024-05-01_12.00.00_ABCD`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSet,
}

func runSet(cmd *cobra.Command, args []string) error {
	path := ""
	if len(args) == 1 {
		path = args[0]
	}

	data, err := payload.Load(dataInline, dataFile)
	if err != nil {
		return err
	}
	return runTransaction(cmd, "Set configuration", "nvuectl set "+path, path, data)
}

var routerCmd = &cobra.Command{
	Use:   "router",
	Short: "Manage the router subtree (BGP, OSPF, VRR, PIM, policy)",
	Long: `Read or merge the router configuration.

--state gathered reads the applied router subtree. --state merged validates
the payload against the router schema and stages it under "router", then
applies it like 'nvuectl set'. The payload is the content of the router
subtree, without the "router" key.`,
	Example: `  # Read the router subtree
  nvuectl router --state gathered --device leaf01

  # Merge BGP settings from a file
  nvuectl router --device leaf01 --data-file router.yaml --wait 30`,
	Args: cobra.NoArgs,
	RunE: runRouter,
}

func runRouter(cmd *cobra.Command, args []string) error {
	switch routerMode {
	case stateGathered:
		return runOnDevices(cmd, func(ctx context.Context, d *device) (*result, error) {
			return readPath(ctx, d, "Router configuration", "nvuectl router --state gathered", "router")
		})
	case stateMerged:
	default:
		return fmt.Errorf("invalid --state %q (expected %s or %s)", routerMode, stateGathered, stateMerged)
	}

	data, err := payload.Load(dataInline, dataFile)
	if err != nil {
		return err
	}
	if err := schema.ValidateRouter(data); err != nil {
		return err
	}
	return runTransaction(cmd, "Merge router configuration", "nvuectl router --state merged", "router", payload.Wrap("router", data))
}

// runTransaction runs Set with data on every device
func runTransaction(cmd *cobra.Command, title, command, path string, data any) error {
	encoded, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	if checkMode {
		return runCheck(cmd, title, path)
	}

	_, inv, err := loadInventoryFile()
	if err != nil {
		return err
	}
	opts := transactionOptions(cmd, inv)
	opts.RevisionID = revisionID

	if err := confirmForce(cmd, opts.Force, opts.RevisionID == ""); err != nil {
		return err
	}

	return runOnDevices(cmd, func(ctx context.Context, d *device) (*result, error) {
		logging.LogPayload(d.Name, encoded)

		tracker := newRevisionTracker(opts.RevisionID)
		observers := []nvue.Observer{tracker}

		var runner *ui.TransactionRunner
		if format == formatPretty {
			runner = ui.NewTransactionRunner(ui.RunnerConfig{
				Title:        title,
				Command:      command,
				Device:       d.Name,
				Wait:         opts.Wait,
				RevisionID:   opts.RevisionID,
				ShowDocument: opts.RevisionID != "",
				Output:       d.out,
				Width:        d.width,
			})
			observers = append(observers, runner)
			runner.Begin()
		}

		resp, err := d.client(observers...).Set(ctx, path, data, opts)
		if runner != nil {
			runner.Finish(resp, err)
		}

		rev := tracker.last()
		res := &result{Revision: rev.ID, State: rev.RawState}
		if err != nil {
			return res, err
		}
		if resp.StateString() != "" {
			res.State = resp.StateString()
		}
		logging.LogTransaction(d.Name, "set", res.Revision, res.State)

		res.Message = resp
		res.Changed = !resp.IsEmpty()
		return res, nil
	})
}

// runCheck reports what would be sent without contacting any device
func runCheck(cmd *cobra.Command, title, path string) error {
	_, inv, err := loadInventoryFile()
	if err != nil {
		return err
	}
	targets, err := resolveTargets(cmd, inv)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	results := make([]*result, 0, len(targets))
	for _, t := range targets {
		results = append(results, &result{Device: t.Name, Msg: "check mode: no request sent"})
	}
	if format == formatJSON {
		if len(results) == 1 {
			return writeJSON(out, results[0])
		}
		return writeJSON(out, results)
	}

	names := make([]string, 0, len(targets))
	for _, t := range targets {
		names = append(names, t.Name)
	}
	p := ui.NewPrinter(out)
	p.PrintSuccess(title+": payload valid",
		ui.Param{Key: "Devices", Value: joinNames(names)},
		ui.Param{Key: "Path", Value: path},
		ui.Param{Key: "Mode", Value: "check, nothing sent"},
	)
	return nil
}

var applyCmd = &cobra.Command{
	Use:   "apply <revision>",
	Short: "Apply an open revision",
	Long: `Apply a revision created with 'nvuectl revision new' and staged with
'nvuectl set --revid', then wait up to --wait seconds for it to be applied.`,
	Example: `  nvuectl apply changeset/cumulus/2024-05-01_12.00.00_ABCD --device leaf01 --wait 30`,
	Args:    cobra.ExactArgs(1),
	RunE:    runApply,
}

func runApply(cmd *cobra.Command, args []string) error {
	id := args[0]

	_, inv, err := loadInventoryFile()
	if err != nil {
		return err
	}
	opts := transactionOptions(cmd, inv)
	if err := confirmForce(cmd, opts.Force, true); err != nil {
		return err
	}

	return runOnDevices(cmd, func(ctx context.Context, d *device) (*result, error) {
		tracker := newRevisionTracker(id)
		observers := []nvue.Observer{tracker}

		var runner *ui.TransactionRunner
		if format == formatPretty {
			runner = ui.NewTransactionRunner(ui.RunnerConfig{
				Title:      "Apply revision",
				Command:    "nvuectl apply " + id,
				Device:     d.Name,
				Wait:       opts.Wait,
				RevisionID: id,
				ApplyOnly:  true,
				Output:     d.out,
				Width:      d.width,
			})
			observers = append(observers, runner)
			runner.Begin()
		}

		resp, err := d.client(observers...).ApplyRevision(ctx, id, opts.Force, opts.Wait)
		if runner != nil {
			runner.Finish(resp, err)
		}

		res := &result{Revision: id, State: tracker.last().RawState}
		if err != nil {
			return res, err
		}
		res.State = resp.StateString()
		res.Message = resp
		res.Changed = resp.State() == nvue.StateApplied
		logging.LogTransaction(d.Name, "apply", id, res.State)
		return res, nil
	})
}

var revisionCmd = &cobra.Command{
	Use:   "revision",
	Short: "Manage revisions",
}

var revisionNewCmd = &cobra.Command{
	Use:   "new",
	Short: "Create a revision and print its id",
	Long: `Create an empty revision. Stage changes into it with
'nvuectl set --revid <id>' and commit them with 'nvuectl apply <id>'.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOnDevices(cmd, func(ctx context.Context, d *device) (*result, error) {
			id, err := d.client().CreateRevision(ctx)
			if format == formatPretty {
				p := d.printer()
				if err != nil {
					p.PrintError(d.Name+": create revision failed", err, nvue.GetTroubleshootingHint(err))
				} else {
					p.PrintSuccess(d.Name+": revision created",
						ui.Param{Key: "Revision", Value: id},
						ui.Param{Key: "Next", Value: "nvuectl set --revid " + id},
					)
				}
			}
			if err != nil {
				return nil, err
			}
			return &result{Changed: true, Revision: id, State: nvue.StateOpen.String()}, nil
		})
	},
}

// transactionOptions merges flags with inventory preferences
func transactionOptions(cmd *cobra.Command, inv *config.Inventory) nvue.Options {
	opts := nvue.Options{Force: force, Wait: wait}
	if prefs := inv.Preferences; prefs != nil {
		if !cmd.Flags().Changed("wait") {
			opts.Wait = prefs.DefaultWait
		}
		if !cmd.Flags().Changed("force") {
			opts.Force = prefs.Force
		}
	}
	return opts
}

// confirmForce asks before a forced apply reaches several devices. It only
// prompts on an interactive terminal; scripts must pass --yes.
func confirmForce(cmd *cobra.Command, forced, applies bool) error {
	if !forced || !applies || assumeYes || len(devices) < 2 || format != formatPretty {
		return nil
	}
	if !ui.IsTerminal(os.Stdin) {
		return fmt.Errorf("forced apply on %d devices needs --yes when not run interactively", len(devices))
	}
	if !ui.ConfirmForcedApply(os.Stdin, cmd.OutOrStdout(), devices) {
		return fmt.Errorf("cancelled: forced apply on %s", strings.Join(devices, ", "))
	}
	return nil
}
