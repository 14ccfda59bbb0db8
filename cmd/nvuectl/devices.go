package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/muurk/nvuectl/internal/config"
	"github.com/muurk/nvuectl/internal/logging"
	"github.com/muurk/nvuectl/internal/metrics"
	"github.com/muurk/nvuectl/internal/nvue"
	"github.com/muurk/nvuectl/internal/transport"
	"github.com/muurk/nvuectl/internal/ui"
)

// maxParallelDevices bounds concurrent transactions in one run
const maxParallelDevices = 16

// pollInterval is only changed by tests
var pollInterval time.Duration

// target is one resolved --device argument
type target struct {
	Name string
	// Known is true when Name came from the inventory
	Known  bool
	Config transport.Config
}

// parseHost splits "host", "host:port" or "scheme://host:port"
func parseHost(spec string) (scheme, host string, port int, err error) {
	if strings.Contains(spec, "://") {
		u, err := url.Parse(spec)
		if err != nil {
			return "", "", 0, fmt.Errorf("invalid device URL %q: %w", spec, err)
		}
		if u.Port() != "" {
			port, err = strconv.Atoi(u.Port())
			if err != nil {
				return "", "", 0, fmt.Errorf("invalid port in %q: %w", spec, err)
			}
		}
		return u.Scheme, u.Hostname(), port, nil
	}

	if h, p, splitErr := net.SplitHostPort(spec); splitErr == nil {
		port, err = strconv.Atoi(p)
		if err != nil {
			return "", "", 0, fmt.Errorf("invalid port in %q: %w", spec, err)
		}
		return "", h, port, nil
	}
	return "", spec, 0, nil
}

// resolveTargets turns --device arguments into connection settings. Inventory
// entries supply defaults; explicit flags win over them.
func resolveTargets(cmd *cobra.Command, inv *config.Inventory) ([]target, error) {
	if len(devices) == 0 {
		return nil, errors.New("no device given (use --device)")
	}

	flags := cmd.Flags()
	seen := make(map[string]bool, len(devices))
	targets := make([]target, 0, len(devices))

	for _, arg := range devices {
		if seen[arg] {
			continue
		}
		seen[arg] = true

		name, dev := inv.Resolve(arg)
		scheme, host, port, err := parseHost(dev.Host)
		if err != nil {
			return nil, err
		}
		if port == 0 {
			port = dev.Port
		}

		cfg := transport.Config{
			Host:     host,
			Port:     port,
			Scheme:   scheme,
			Username: dev.Username,
			Password: password,
			Insecure: dev.Insecure || insecure,
			Timeout:  timeout,
		}
		if flags.Changed("port") {
			cfg.Port = devicePort
		}
		if username != "" || cfg.Username == "" {
			cfg.Username = defaultUser()
		}

		targets = append(targets, target{Name: name, Known: inv.GetDevice(name) != nil, Config: cfg})
	}
	return targets, nil
}

// device is the per-target context handed to a command
type device struct {
	target
	conn     *transport.Connection
	logger   *zap.Logger
	out      *bytes.Buffer
	width    int
	recorder *metrics.Recorder
}

// client builds a transaction client for the device. Metrics are always
// observed; extra observers (the pretty runner, revision tracking) are added.
func (d *device) client(extra ...nvue.Observer) *nvue.Client {
	observers := nvue.MultiObserver{}
	if d.recorder != nil {
		observers = append(observers, d.recorder.ForDevice(d.Name))
	}
	observers = append(observers, extra...)

	opts := []nvue.Option{nvue.WithLogger(d.logger), nvue.WithObserver(observers)}
	if pollInterval > 0 {
		opts = append(opts, nvue.WithPollInterval(pollInterval))
	}
	return nvue.NewClient(d.conn, opts...)
}

// printer writes pretty output into the device's buffer
func (d *device) printer() *ui.Printer {
	return ui.NewPrinter(d.out).SetWidth(d.width)
}

// result is what a command reports per device. The JSON form mirrors the
// changed/failed/msg convention of configuration management tools.
type result struct {
	Device   string         `json:"device"`
	Changed  bool           `json:"changed"`
	Failed   bool           `json:"failed,omitempty"`
	Msg      string         `json:"msg,omitempty"`
	Error    string         `json:"error,omitempty"`
	Status   int            `json:"status,omitempty"`
	Revision string         `json:"revision,omitempty"`
	State    string         `json:"state,omitempty"`
	Message  *nvue.Response `json:"message,omitempty"`

	err error
}

// deviceFunc runs one command on one device
type deviceFunc func(ctx context.Context, d *device) (*result, error)

// runOnDevices runs fn on every target concurrently, then prints the results
// in --device order. Each device gets its own connection and client. A failed
// device does not stop the others.
func runOnDevices(cmd *cobra.Command, fn deviceFunc) error {
	invPath, inv, err := loadInventoryFile()
	if err != nil {
		return err
	}
	targets, err := resolveTargets(cmd, inv)
	if err != nil {
		return err
	}

	var recorder *metrics.Recorder
	if metricsFile != "" {
		recorder = metrics.NewRecorder()
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	out := cmd.OutOrStdout()
	width := ui.TerminalWidth(out)
	ready := waitReady || (!cmd.Flags().Changed("wait-ready") && inv.Preferences.WaitReady)

	results := make([]*result, len(targets))
	buffers := make([]*bytes.Buffer, len(targets))

	var g errgroup.Group
	g.SetLimit(maxParallelDevices)
	for i, t := range targets {
		i := i
		buffers[i] = &bytes.Buffer{}
		d := &device{
			target:   t,
			logger:   logging.ForDevice(t.Name),
			out:      buffers[i],
			width:    width,
			recorder: recorder,
		}
		g.Go(func() error {
			results[i] = runDevice(ctx, d, ready, fn)
			return nil
		})
	}
	_ = g.Wait()

	if err := recordTransactions(invPath, inv, results, targets); err != nil {
		logging.Warn("Failed to update inventory", zap.Error(err))
	}
	if recorder != nil {
		if err := recorder.WriteTextfile(metricsFile); err != nil {
			logging.Warn("Failed to write metrics file", zap.String("path", metricsFile), zap.Error(err))
		}
	}

	if err := printResults(out, results, buffers); err != nil {
		return err
	}
	return summarize(results)
}

func runDevice(ctx context.Context, d *device, ready bool, fn deviceFunc) *result {
	fail := func(err error) *result {
		return &result{
			Device: d.Name,
			Failed: true,
			Msg:    err.Error(),
			Error:  nvue.GetShortErrorMessage(err),
			Status: nvue.StatusCode(err),
			err:    err,
		}
	}

	conn, err := transport.NewConnection(d.Config, transport.WithLogger(d.logger))
	if err != nil {
		if format == formatPretty {
			d.printer().PrintError(d.Name+": invalid connection settings", err, nvue.GetTroubleshootingHint(err))
		}
		return fail(err)
	}
	d.conn = conn

	if ready {
		if err := conn.WaitReady(ctx, transport.DefaultReadySettings()); err != nil {
			if format == formatPretty {
				d.printer().PrintError(d.Name+": API not ready", err, nvue.GetTroubleshootingHint(err))
			}
			return fail(err)
		}
	}

	res, err := fn(ctx, d)
	if err != nil {
		if !ready && nvue.IsNetworkError(err) {
			d.logger.Info("Device unreachable; --wait-ready waits for the API before starting")
		}
		r := fail(err)
		if res != nil {
			r.Revision, r.State = res.Revision, res.State
		}
		return r
	}
	res.Device = d.Name
	return res
}

// printResults writes pretty buffers, or JSON: one object for a single
// device, an array for several
func printResults(out io.Writer, results []*result, buffers []*bytes.Buffer) error {
	if format == formatJSON {
		if len(results) == 1 {
			return writeJSON(out, results[0])
		}
		return writeJSON(out, results)
	}

	for i, buf := range buffers {
		if i > 0 {
			_, _ = fmt.Fprintln(out)
		}
		if err := ui.RenderOnce(out, strings.TrimRight(buf.String(), "\n")); err != nil {
			return err
		}
	}
	return nil
}

func summarize(results []*result) error {
	var failed []string
	var first error
	for _, r := range results {
		if r.Failed {
			failed = append(failed, r.Device)
			if first == nil {
				first = r.err
			}
		}
	}
	switch {
	case len(failed) == 0:
		return nil
	case len(results) == 1:
		return first
	case len(failed) == len(results) && nvue.IsValidationError(first):
		// Arguments are the same for every device
		return first
	default:
		return fmt.Errorf("%d of %d devices failed: %s", len(failed), len(results), joinNames(failed))
	}
}

// recordTransactions stores the last revision of inventory devices
func recordTransactions(path string, inv *config.Inventory, results []*result, targets []target) error {
	changed := false
	for i, r := range results {
		if r == nil || r.Revision == "" || !targets[i].Known {
			continue
		}
		inv.RecordTransaction(targets[i].Name, r.Revision, r.State)
		changed = true
	}
	if !changed {
		return nil
	}
	return inv.SaveTo(path)
}

// loadInventoryFile reads the inventory from its configured path
func loadInventoryFile() (string, *config.Inventory, error) {
	path, err := config.GetConfigPath()
	if err != nil {
		return "", nil, fmt.Errorf("locate inventory: %w", err)
	}
	inv, err := config.LoadFrom(path)
	if err != nil {
		return "", nil, fmt.Errorf("load inventory: %w", err)
	}
	return path, inv, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

// revisionTracker remembers the revision a transaction used and where it ended
type revisionTracker struct {
	nvue.NopObserver

	mu  sync.Mutex
	rev nvue.Revision
}

func newRevisionTracker(id string) *revisionTracker {
	return &revisionTracker{rev: nvue.Revision{ID: id}}
}

func (t *revisionTracker) RevisionCreated(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rev = nvue.Revision{ID: id, State: nvue.StateOpen, RawState: nvue.StateOpen.String()}
}

func (t *revisionTracker) RevisionPatched(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rev.ID = id
	if t.rev.RawState == "" {
		t.rev.State, t.rev.RawState = nvue.StateOpen, nvue.StateOpen.String()
	}
}

func (t *revisionTracker) ApplyRequested(id string, _ bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rev.ID = id
}

func (t *revisionTracker) ApplyPolled(_ string, _ int, state string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rev.State, t.rev.RawState = nvue.ParseRevisionState(state), state
}

func (t *revisionTracker) last() nvue.Revision {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rev
}
