// Package nvuemock is an in-memory stand-in for the NVUE REST API.
//
// It speaks enough of the revision protocol for the transaction client to run
// end to end: revisions are created, patched with JSON merge patches, applied
// and polled until they report "applied". The sandbox command serves it over
// HTTP; tests mount it on an httptest server.
package nvuemock

import (
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Prefix is the API prefix the mock serves under
const Prefix = "/nvue_v1"

// Revision states reported by the mock
const (
	StateOpen    = "open"
	StateApply   = "apply"
	StateApplied = "applied"
	StateAYSFail = "ays_fail"
)

// Options tune the mock's behavior
type Options struct {
	// User appears in generated revision ids (changeset/<user>/<uuid>); default "cumulus"
	User string

	// ApplyAfterPolls is the number of revision GETs after an apply request
	// before the revision reports "applied". Zero applies immediately.
	ApplyAfterPolls int

	// RequirePrompt makes an apply without auto-prompt stop in "ays_fail"
	RequirePrompt bool

	// FailRate is the probability (0..1) that a request is answered with FailCode
	FailRate float64

	// FailCode is the status used for injected failures; default 500
	FailCode int

	// Latency delays every response
	Latency time.Duration

	// Logger receives one debug line per request
	Logger *zap.Logger
}

// Request is one entry of the request log
type Request struct {
	Method string
	// Path is the escaped request path followed by the raw query, if any
	Path string
	Body string
}

type revision struct {
	id     string
	state  string
	staged map[string]any
	// patches are replayed in order on commit; staged is only their summary
	patches []map[string]any
	polls   int
}

// Server implements http.Handler
type Server struct {
	opts   Options
	logger *zap.Logger

	mu        sync.Mutex
	applied   map[string]any
	revisions map[string]*revision
	requests  []Request

	registry     *prometheus.Registry
	requestCount *prometheus.CounterVec
	openGauge    prometheus.Gauge
	appliedCount prometheus.Counter
}

// New creates a mock server with an empty applied configuration
func New(opts Options) *Server {
	if opts.User == "" {
		opts.User = "cumulus"
	}
	if opts.FailCode == 0 {
		opts.FailCode = http.StatusInternalServerError
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Server{
		opts:      opts,
		logger:    logger,
		applied:   map[string]any{},
		revisions: map[string]*revision{},
		registry:  registry,
		requestCount: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "nvuemock_requests_total",
			Help: "Requests served by the mock NVUE API",
		}, []string{"method", "route", "code"}),
		openGauge: factory.NewGauge(prometheus.GaugeOpts{
			Name: "nvuemock_open_revisions",
			Help: "Revisions that have not been applied yet",
		}),
		appliedCount: factory.NewCounter(prometheus.CounterOpts{
			Name: "nvuemock_revisions_applied_total",
			Help: "Revisions merged into the applied configuration",
		}),
	}
}

// Registry exposes the mock's own metrics
func (s *Server) Registry() *prometheus.Registry {
	return s.registry
}

// MetricsHandler serves the mock's metrics in the Prometheus exposition format
func (s *Server) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// Seed replaces the applied configuration
func (s *Server) Seed(tree map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tree == nil {
		tree = map[string]any{}
	}
	s.applied = deepCopy(tree).(map[string]any)
}

// Applied returns a copy of the applied configuration
func (s *Server) Applied() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return deepCopy(s.applied).(map[string]any)
}

// RevisionState returns the current state of a revision
func (s *Server) RevisionState(id string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rev, ok := s.revisions[id]
	if !ok {
		return "", false
	}
	return rev.state, true
}

// RevisionIDs returns the ids of every revision created so far, sorted
func (s *Server) RevisionIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.revisions))
	for id := range s.revisions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Requests returns a copy of the request log
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Request, len(s.requests))
	copy(out, s.requests)
	return out
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.writeError(w, r, "read", http.StatusBadRequest, "failed to read body")
		return
	}

	path := r.URL.EscapedPath()
	if r.URL.RawQuery != "" {
		path += "?" + r.URL.RawQuery
	}
	s.mu.Lock()
	s.requests = append(s.requests, Request{Method: r.Method, Path: path, Body: string(body)})
	s.mu.Unlock()

	if s.opts.Latency > 0 {
		select {
		case <-time.After(s.opts.Latency):
		case <-r.Context().Done():
			return
		}
	}

	if s.opts.FailRate > 0 && rand.Float64() < s.opts.FailRate {
		s.writeError(w, r, "injected", s.opts.FailCode, "injected failure")
		return
	}

	rest, ok := strings.CutPrefix(r.URL.EscapedPath(), Prefix)
	if !ok {
		s.writeError(w, r, "unknown", http.StatusNotFound, "not an NVUE path")
		return
	}

	switch {
	case rest == "/revision":
		if r.Method != http.MethodPost {
			s.writeError(w, r, "revision", http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		s.handleCreate(w, r)

	case strings.HasPrefix(rest, "/revision/"):
		id, err := url.PathUnescape(strings.TrimPrefix(rest, "/revision/"))
		if err != nil || id == "" {
			s.writeError(w, r, "revision_item", http.StatusBadRequest, "malformed revision id")
			return
		}
		switch r.Method {
		case http.MethodGet:
			s.handlePoll(w, r, id)
		case http.MethodPatch:
			s.handleApply(w, r, id, body)
		default:
			s.writeError(w, r, "revision_item", http.StatusMethodNotAllowed, "method not allowed")
		}

	case r.Method == http.MethodPatch && rest == "/":
		s.handlePatch(w, r, r.URL.Query().Get("rev"), body)

	case r.Method == http.MethodGet:
		s.handleGet(w, r, rest, r.URL.Query().Get("rev"))

	default:
		s.writeError(w, r, "config", http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	id := fmt.Sprintf("changeset/%s/%s", s.opts.User, uuid.NewString())

	s.mu.Lock()
	s.revisions[id] = &revision{id: id, state: StateOpen, staged: map[string]any{}}
	s.mu.Unlock()
	s.openGauge.Inc()

	s.logger.Debug("Revision created", zap.String("revision", id))
	s.writeJSON(w, r, "revision", http.StatusOK, map[string]any{
		id: revisionDocument(StateOpen, ""),
	})
}

func (s *Server) handlePatch(w http.ResponseWriter, r *http.Request, id string, body []byte) {
	if id == "" {
		s.writeError(w, r, "config", http.StatusBadRequest, "rev query parameter is required")
		return
	}

	var patch any
	if err := json.Unmarshal(body, &patch); err != nil {
		s.writeError(w, r, "config", http.StatusBadRequest, "body is not valid JSON: "+err.Error())
		return
	}

	s.mu.Lock()
	rev, ok := s.revisions[id]
	if !ok {
		s.mu.Unlock()
		s.writeError(w, r, "config", http.StatusNotFound, fmt.Sprintf("revision %s not found", id))
		return
	}
	if rev.state != StateOpen {
		state := rev.state
		s.mu.Unlock()
		s.writeError(w, r, "config", http.StatusConflict, fmt.Sprintf("revision %s is %s", id, state))
		return
	}
	obj, isObject := patch.(map[string]any)
	if !isObject {
		s.mu.Unlock()
		s.writeError(w, r, "config", http.StatusBadRequest, "patch must be a JSON object")
		return
	}
	rev.staged = composePatch(rev.staged, obj)
	rev.patches = append(rev.patches, deepCopy(obj).(map[string]any))
	staged := deepCopy(rev.staged)
	s.mu.Unlock()

	s.writeJSON(w, r, "config", http.StatusOK, staged)
}

type applyBody struct {
	State      string `json:"state"`
	AutoPrompt *struct {
		AYS        string `json:"ays"`
		IgnoreFail string `json:"ignore_fail"`
	} `json:"auto-prompt"`
}

func (s *Server) handleApply(w http.ResponseWriter, r *http.Request, id string, body []byte) {
	var req applyBody
	if err := json.Unmarshal(body, &req); err != nil {
		s.writeError(w, r, "revision_item", http.StatusBadRequest, "body is not valid JSON: "+err.Error())
		return
	}
	if req.State != StateApply {
		s.writeError(w, r, "revision_item", http.StatusBadRequest, fmt.Sprintf("unsupported state %q", req.State))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rev, ok := s.revisions[id]
	if !ok {
		s.writeError(w, r, "revision_item", http.StatusNotFound, fmt.Sprintf("revision %s not found", id))
		return
	}
	if rev.state != StateOpen && rev.state != StateAYSFail {
		s.writeError(w, r, "revision_item", http.StatusConflict, fmt.Sprintf("revision %s is %s", id, rev.state))
		return
	}

	confirmed := req.AutoPrompt != nil && req.AutoPrompt.AYS == "ays_yes"
	if s.opts.RequirePrompt && !confirmed {
		rev.state = StateAYSFail
		s.writeJSON(w, r, "revision_item", http.StatusOK, revisionDocument(rev.state, "confirmation required"))
		return
	}

	rev.state = StateApply
	rev.polls = 0
	if s.opts.ApplyAfterPolls <= 0 {
		s.commitLocked(rev)
	}
	s.writeJSON(w, r, "revision_item", http.StatusOK, revisionDocument(rev.state, ""))
}

func (s *Server) handlePoll(w http.ResponseWriter, r *http.Request, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rev, ok := s.revisions[id]
	if !ok {
		s.writeError(w, r, "revision_item", http.StatusNotFound, fmt.Sprintf("revision %s not found", id))
		return
	}
	if rev.state == StateApply {
		rev.polls++
		if rev.polls >= s.opts.ApplyAfterPolls {
			s.commitLocked(rev)
		}
	}
	s.writeJSON(w, r, "revision_item", http.StatusOK, revisionDocument(rev.state, ""))
}

// commitLocked merges the staged tree into the applied configuration
func (s *Server) commitLocked(rev *revision) {
	s.applied = replayPatches(s.applied, rev.patches)
	rev.state = StateApplied
	s.openGauge.Dec()
	s.appliedCount.Inc()
	s.logger.Debug("Revision applied", zap.String("revision", rev.id))
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request, rest, rev string) {
	var tree any
	s.mu.Lock()
	switch rev {
	case "", StateApplied:
		tree = deepCopy(s.applied)
	default:
		pending, ok := s.revisions[rev]
		if !ok {
			s.mu.Unlock()
			s.writeError(w, r, "config", http.StatusNotFound, fmt.Sprintf("revision %s not found", rev))
			return
		}
		tree = replayPatches(deepCopy(s.applied).(map[string]any), pending.patches)
	}
	s.mu.Unlock()

	for _, segment := range strings.Split(strings.Trim(rest, "/"), "/") {
		if segment == "" {
			continue
		}
		key, err := url.PathUnescape(segment)
		if err != nil {
			s.writeError(w, r, "config", http.StatusBadRequest, "malformed path")
			return
		}
		obj, ok := tree.(map[string]any)
		if !ok {
			s.writeError(w, r, "config", http.StatusNotFound, fmt.Sprintf("%s not found", rest))
			return
		}
		if tree, ok = obj[key]; !ok {
			s.writeError(w, r, "config", http.StatusNotFound, fmt.Sprintf("%s not found", rest))
			return
		}
	}

	s.writeJSON(w, r, "config", http.StatusOK, tree)
}

func revisionDocument(state, issue string) map[string]any {
	issues := map[string]any{}
	if issue != "" {
		issues["0"] = map[string]any{"message": issue, "severity": "warning"}
	}
	return map[string]any{
		"state": state,
		"transition": map[string]any{
			"issue":    issues,
			"progress": "",
		},
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, route string, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("Failed to write response", zap.Error(err))
	}
	s.record(r, route, code)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, route string, code int, detail string) {
	s.writeJSON(w, r, route, code, map[string]any{
		"status": code,
		"title":  http.StatusText(code),
		"detail": detail,
	})
}

func (s *Server) record(r *http.Request, route string, code int) {
	s.requestCount.WithLabelValues(r.Method, route, strconv.Itoa(code)).Inc()
	s.logger.Debug("Mock request",
		zap.String("method", r.Method),
		zap.String("path", r.URL.EscapedPath()),
		zap.String("query", r.URL.RawQuery),
		zap.Int("status", code),
	)
}
