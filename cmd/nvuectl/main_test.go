package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muurk/nvuectl/internal/config"
	"github.com/muurk/nvuectl/internal/nvue"
	"github.com/muurk/nvuectl/internal/nvuemock"
)

func TestMain(m *testing.M) {
	pollInterval = time.Millisecond
	os.Exit(m.Run())
}

// resetFlags puts every flag back to its default so commands can be executed
// repeatedly in one process
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.PersistentFlags().VisitAll(reset)
	cmd.Flags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

// execute runs nvuectl with args and returns stdout
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	password = ""

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

// withInventory points the inventory at an empty temp file
func withInventory(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	t.Setenv(config.ConfigEnvVar, path)
	return path
}

func startMock(t *testing.T, opts nvuemock.Options) (*nvuemock.Server, string) {
	t.Helper()
	mock := nvuemock.New(opts)
	srv := httptest.NewServer(sandboxHandler(mock))
	t.Cleanup(srv.Close)
	return mock, srv.URL
}

func decodeResult(t *testing.T, out string) map[string]any {
	t.Helper()
	var r map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &r), out)
	return r
}

func TestGet(t *testing.T) {
	withInventory(t)
	mock, url := startMock(t, nvuemock.Options{})
	mock.Seed(map[string]any{"router": map[string]any{"bgp": map[string]any{"enable": "on"}}})

	out, err := execute(t, "get", "router/bgp", "--device", url, "--format", "json")
	require.NoError(t, err)

	r := decodeResult(t, out)
	assert.Equal(t, false, r["changed"])
	assert.Equal(t, map[string]any{"enable": "on"}, r["message"])

	reqs := mock.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "/nvue_v1/router/bgp?rev=applied", reqs[0].Path)
}

func TestGet_Pretty(t *testing.T) {
	withInventory(t)
	mock, url := startMock(t, nvuemock.Options{})
	mock.Seed(map[string]any{"system": map[string]any{"hostname": "leaf01"}})

	out, err := execute(t, "get", "system", "--device", url)
	require.NoError(t, err)
	assert.Contains(t, out, "GET CONFIGURATION")
	assert.Contains(t, out, `"hostname": "leaf01"`)
}

func TestSet_AppliesAndReportsChanged(t *testing.T) {
	withInventory(t)
	mock, url := startMock(t, nvuemock.Options{ApplyAfterPolls: 1})

	out, err := execute(t, "set", "--device", url, "--format", "json",
		"--data", `{"router":{"vrr":{"enable":"on"}}}`, "--wait", "3")
	require.NoError(t, err)

	r := decodeResult(t, out)
	assert.Equal(t, true, r["changed"])
	assert.Equal(t, "applied", r["state"])
	assert.True(t, strings.HasPrefix(r["revision"].(string), "changeset/cumulus/"), r["revision"])

	assert.Equal(t, map[string]any{"router": map[string]any{"vrr": map[string]any{"enable": "on"}}}, mock.Applied())
}

func TestSet_Pretty(t *testing.T) {
	withInventory(t)
	_, url := startMock(t, nvuemock.Options{})

	out, err := execute(t, "set", "router", "--device", url,
		"--data", "router:\n  vrr:\n    enable: \"on\"\n", "--wait", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "SET CONFIGURATION")
	assert.Contains(t, out, "Create revision")
	assert.Contains(t, out, "SUCCESS")
}

func TestSet_SoftTimeoutIsNotAnError(t *testing.T) {
	withInventory(t)
	_, url := startMock(t, nvuemock.Options{ApplyAfterPolls: 10})

	out, err := execute(t, "set", "--device", url, "--format", "json",
		"--data", `{"system":{"hostname":"leaf01"}}`, "--wait", "1")
	require.NoError(t, err)

	r := decodeResult(t, out)
	assert.Equal(t, "apply", r["state"])
	assert.Nil(t, r["failed"])
}

func TestRevisionWorkflow(t *testing.T) {
	withInventory(t)
	mock, url := startMock(t, nvuemock.Options{})

	out, err := execute(t, "revision", "new", "--device", url, "--format", "json")
	require.NoError(t, err)
	id := decodeResult(t, out)["revision"].(string)
	require.NotEmpty(t, id)

	out, err = execute(t, "set", "--device", url, "--format", "json",
		"--data", `{"system":{"hostname":"leaf01"}}`, "--revid", id)
	require.NoError(t, err)
	r := decodeResult(t, out)
	assert.Equal(t, id, r["revision"])
	assert.Equal(t, "open", r["state"])
	assert.Empty(t, mock.Applied(), "a staged revision must not be applied")

	out, err = execute(t, "apply", id, "--device", url, "--format", "json", "--wait", "2")
	require.NoError(t, err)
	r = decodeResult(t, out)
	assert.Equal(t, "applied", r["state"])
	assert.Equal(t, true, r["changed"])
	assert.Equal(t, map[string]any{"system": map[string]any{"hostname": "leaf01"}}, mock.Applied())
}

func TestSet_CheckSendsNothing(t *testing.T) {
	withInventory(t)
	mock, url := startMock(t, nvuemock.Options{})

	out, err := execute(t, "set", "--device", url, "--format", "json", "--data", `{"system":{}}`, "--check")
	require.NoError(t, err)
	assert.Equal(t, false, decodeResult(t, out)["changed"])
	assert.Empty(t, mock.Requests())
}

func TestSet_PayloadErrors(t *testing.T) {
	withInventory(t)
	mock, url := startMock(t, nvuemock.Options{})

	_, err := execute(t, "set", "--device", url)
	require.Error(t, err)

	_, err = execute(t, "set", "--device", url, "--data", "{}", "--data-file", "x.json")
	require.Error(t, err)

	_, err = execute(t, "set", "--device", url, "--data", `{"a":1}`, "--wait", "-1", "--format", "json")
	require.Error(t, err)

	for _, r := range mock.Requests() {
		assert.NotEqual(t, "POST", r.Method, "no revision should be created")
	}
}

func TestRouter(t *testing.T) {
	withInventory(t)
	mock, url := startMock(t, nvuemock.Options{})

	_, err := execute(t, "router", "--device", url, "--data", `{"bpg":{}}`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "router data invalid")
	assert.Empty(t, mock.Requests())

	out, err := execute(t, "router", "--device", url, "--format", "json",
		"--data", `{"bgp":{"enable":"on","autonomous-system":65001}}`, "--wait", "1")
	require.NoError(t, err)
	assert.Equal(t, "applied", decodeResult(t, out)["state"])

	out, err = execute(t, "router", "--state", "gathered", "--device", url, "--format", "json")
	require.NoError(t, err)
	assert.Equal(t,
		map[string]any{"bgp": map[string]any{"enable": "on", "autonomous-system": float64(65001)}},
		decodeResult(t, out)["message"])

	_, err = execute(t, "router", "--state", "replaced", "--device", url)
	require.Error(t, err)
}

func TestMultipleDevices(t *testing.T) {
	withInventory(t)
	good, goodURL := startMock(t, nvuemock.Options{})
	_, badURL := startMock(t, nvuemock.Options{FailRate: 1, FailCode: 503})

	out, err := execute(t, "set", "--device", goodURL, "--device", badURL, "--format", "json",
		"--data", `{"system":{"hostname":"leaf01"}}`, "--wait", "1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2 devices failed")

	var results []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &results), out)
	require.Len(t, results, 2)
	assert.Equal(t, goodURL, results[0]["device"])
	assert.Equal(t, "applied", results[0]["state"])
	assert.Equal(t, true, results[1]["failed"])
	assert.Contains(t, results[1]["msg"], "HTTP 503")
	assert.Equal(t, "Device error (HTTP 503)", results[1]["error"])
	assert.Equal(t, 503.0, results[1]["status"])
	assert.NotContains(t, results[0], "error")

	assert.NotEmpty(t, good.Applied())
}

func TestMultipleDevices_SameValidationErrorReportedOnce(t *testing.T) {
	withInventory(t)
	first, firstURL := startMock(t, nvuemock.Options{})
	second, secondURL := startMock(t, nvuemock.Options{})

	_, err := execute(t, "set", "--device", firstURL, "--device", secondURL, "--format", "json",
		"--data", `{"system":{"hostname":"leaf01"}}`, "--wait", "-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wait must be >= 0")
	assert.NotContains(t, err.Error(), "devices failed")
	assert.Empty(t, first.Requests())
	assert.Empty(t, second.Requests())
}

func TestRevisionTracker(t *testing.T) {
	tracker := newRevisionTracker("")
	tracker.RevisionCreated("changeset/cumulus/1")
	assert.Equal(t, nvue.Revision{ID: "changeset/cumulus/1", State: nvue.StateOpen, RawState: "open"}, tracker.last())

	tracker.ApplyRequested("changeset/cumulus/1", false)
	tracker.ApplyPolled("changeset/cumulus/1", 1, "ays_fail")
	assert.Equal(t, nvue.Revision{ID: "changeset/cumulus/1", State: nvue.StateUnknown, RawState: "ays_fail"}, tracker.last())

	tracker.ApplyPolled("changeset/cumulus/1", 2, "applied")
	assert.Equal(t, nvue.StateApplied, tracker.last().State)

	staged := newRevisionTracker("changeset/cumulus/2")
	staged.RevisionPatched("changeset/cumulus/2")
	assert.Equal(t, nvue.Revision{ID: "changeset/cumulus/2", State: nvue.StateOpen, RawState: "open"}, staged.last())
}

func TestForcedApplyOnSeveralDevicesNeedsYes(t *testing.T) {
	withInventory(t)
	_, a := startMock(t, nvuemock.Options{})
	_, b := startMock(t, nvuemock.Options{})

	_, err := execute(t, "set", "--device", a, "--device", b, "--force", "--data", `{"system":{}}`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--yes")

	_, err = execute(t, "set", "--device", a, "--device", b, "--force", "--yes", "--data", `{"system":{}}`, "--wait", "1")
	require.NoError(t, err)
}

func TestInventoryWorkflow(t *testing.T) {
	path := withInventory(t)
	_, url := startMock(t, nvuemock.Options{})

	_, err := execute(t, "inventory", "add", "leaf01", "--host", url)
	require.NoError(t, err)

	out, err := execute(t, "inventory", "list", "--format", "json")
	require.NoError(t, err)
	assert.Contains(t, out, url)

	out, err = execute(t, "set", "--device", "leaf01", "--format", "json", "--data", `{"system":{}}`, "--wait", "1")
	require.NoError(t, err)
	rev := decodeResult(t, out)["revision"].(string)

	inv, err := config.LoadFrom(path)
	require.NoError(t, err)
	require.NotNil(t, inv.GetDevice("leaf01"))
	assert.Equal(t, rev, inv.GetDevice("leaf01").LastRevision)
	assert.Equal(t, "applied", inv.GetDevice("leaf01").LastState)

	_, err = execute(t, "inventory", "remove", "leaf01")
	require.NoError(t, err)
	_, err = execute(t, "inventory", "remove", "leaf01")
	require.Error(t, err)
}

func TestMetricsFile(t *testing.T) {
	withInventory(t)
	_, url := startMock(t, nvuemock.Options{})
	metricsPath := filepath.Join(t.TempDir(), "nvuectl.prom")

	_, err := execute(t, "set", "--device", url, "--format", "json", "--data", `{"system":{}}`,
		"--wait", "1", "--metrics-file", metricsPath)
	require.NoError(t, err)

	data, err := os.ReadFile(metricsPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "nvuectl_revisions_created_total")
	assert.Contains(t, string(data), `outcome="applied"`)
}

func TestNoDevice(t *testing.T) {
	withInventory(t)
	_, err := execute(t, "get")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--device")
}

func TestInvalidFormat(t *testing.T) {
	_, err := execute(t, "version", "--format", "xml")
	require.Error(t, err)
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "nvuectl "), out)
}

func TestParseHost(t *testing.T) {
	tests := []struct {
		spec   string
		scheme string
		host   string
		port   int
	}{
		{"leaf01", "", "leaf01", 0},
		{"192.0.2.1:8443", "", "192.0.2.1", 8443},
		{"http://127.0.0.1:9000", "http", "127.0.0.1", 9000},
		{"https://leaf01.example.net", "https", "leaf01.example.net", 0},
		{"[2001:db8::1]:8765", "", "2001:db8::1", 8765},
	}
	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			scheme, host, port, err := parseHost(tt.spec)
			require.NoError(t, err)
			assert.Equal(t, tt.scheme, scheme)
			assert.Equal(t, tt.host, host)
			assert.Equal(t, tt.port, port)
		})
	}

	_, _, _, err := parseHost("leaf01:http")
	assert.Error(t, err)
}

func TestParseFailSpec(t *testing.T) {
	rate, code, err := parseFailSpec("rate=0.25,code=503")
	require.NoError(t, err)
	assert.InDelta(t, 0.25, rate, 1e-9)
	assert.Equal(t, 503, code)

	rate, code, err = parseFailSpec("")
	require.NoError(t, err)
	assert.Zero(t, rate)
	assert.Zero(t, code)

	for _, bad := range []string{"rate=2", "code=200", "rate", "speed=1"} {
		_, _, err := parseFailSpec(bad)
		assert.Error(t, err, bad)
	}
}
