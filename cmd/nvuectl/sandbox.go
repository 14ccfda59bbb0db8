package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/muurk/nvuectl/internal/logging"
	"github.com/muurk/nvuectl/internal/nvuemock"
	"github.com/muurk/nvuectl/internal/payload"
	"github.com/muurk/nvuectl/internal/ui"
)

// Sandbox command flags
var (
	sandboxAddr          string
	sandboxApplyAfter    int
	sandboxRequirePrompt bool
	sandboxLatency       time.Duration
	sandboxFail          string
	sandboxSeed          string
)

func init() {
	f := sandboxCmd.Flags()
	f.StringVar(&sandboxAddr, "addr", "127.0.0.1:8765", "Listen address")
	f.IntVar(&sandboxApplyAfter, "apply-after", 2, "Revision polls before an apply completes")
	f.BoolVar(&sandboxRequirePrompt, "require-prompt", false, "Stop applies without --force in ays_fail")
	f.DurationVar(&sandboxLatency, "latency", 0, "Delay added to every response")
	f.StringVar(&sandboxFail, "fail", "", "Inject failures, e.g. rate=0.1,code=503")
	f.StringVar(&sandboxSeed, "seed", "", "JSON or YAML file with the initial applied configuration")
	rootCmd.AddCommand(sandboxCmd)
}

var sandboxCmd = &cobra.Command{
	Use:   "sandbox",
	Short: "Run a local mock of the NVUE API",
	Long: `Serve an in-memory NVUE API over plain HTTP for trying nvuectl, playbooks
or scripts without a switch. Revisions, merge-patch staging, apply polling and
confirmation prompts behave like nvued. Prometheus metrics are served on
/metrics.`,
	Example: `  # Start the sandbox and point nvuectl at it
  nvuectl sandbox --addr 127.0.0.1:8765 &
  nvuectl set --device http://127.0.0.1:8765 --data '{"system":{"hostname":"leaf01"}}' --wait 5

  # Flaky, slow device
  nvuectl sandbox --latency 300ms --fail rate=0.2,code=503`,
	Args: cobra.NoArgs,
	RunE: runSandbox,
}

// parseFailSpec reads "rate=<0..1>,code=<status>"
func parseFailSpec(spec string) (float64, int, error) {
	if spec == "" {
		return 0, 0, nil
	}
	var (
		rate float64
		code int
		err  error
	)
	for _, part := range strings.Split(spec, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			return 0, 0, fmt.Errorf("invalid --fail entry %q (expected key=value)", part)
		}
		switch key {
		case "rate":
			rate, err = strconv.ParseFloat(value, 64)
			if err != nil || rate < 0 || rate > 1 {
				return 0, 0, fmt.Errorf("invalid --fail rate %q (expected 0..1)", value)
			}
		case "code":
			code, err = strconv.Atoi(value)
			if err != nil || code < 400 || code > 599 {
				return 0, 0, fmt.Errorf("invalid --fail code %q (expected 400..599)", value)
			}
		default:
			return 0, 0, fmt.Errorf("unknown --fail key %q (expected rate or code)", key)
		}
	}
	return rate, code, nil
}

func newSandbox() (*nvuemock.Server, error) {
	rate, code, err := parseFailSpec(sandboxFail)
	if err != nil {
		return nil, err
	}

	mock := nvuemock.New(nvuemock.Options{
		User:            defaultUser(),
		ApplyAfterPolls: sandboxApplyAfter,
		RequirePrompt:   sandboxRequirePrompt,
		FailRate:        rate,
		FailCode:        code,
		Latency:         sandboxLatency,
		Logger:          logging.GetLogger().Named("sandbox"),
	})

	if sandboxSeed != "" {
		data, err := payload.LoadFile(sandboxSeed)
		if err != nil {
			return nil, err
		}
		tree, ok := data.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("seed %s: top level must be an object", sandboxSeed)
		}
		mock.Seed(tree)
	}
	return mock, nil
}

func sandboxHandler(mock *nvuemock.Server) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", mock.MetricsHandler())
	mux.Handle("/", mock)
	return mux
}

func runSandbox(cmd *cobra.Command, args []string) error {
	mock, err := newSandbox()
	if err != nil {
		return err
	}

	listener, err := net.Listen("tcp", sandboxAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", sandboxAddr, err)
	}

	srv := &http.Server{
		Handler:           sandboxHandler(mock),
		ReadHeaderTimeout: 10 * time.Second,
	}

	url := "http://" + listener.Addr().String()
	if format == formatJSON {
		_ = writeJSON(cmd.OutOrStdout(), map[string]string{"url": url, "metrics": url + "/metrics"})
	} else {
		ui.NewPrinter(cmd.OutOrStdout()).PrintHeader("NVUE sandbox", "nvuectl sandbox",
			ui.Param{Key: "API", Value: url + nvuemock.Prefix},
			ui.Param{Key: "Metrics", Value: url + "/metrics"},
			ui.Param{Key: "Try", Value: "nvuectl get --device " + url},
		)
	}
	logging.Info("Sandbox listening", zap.String("addr", listener.Addr().String()))

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(listener)
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("sandbox server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	logging.Info("Sandbox shutting down")
	return srv.Shutdown(shutdownCtx)
}
