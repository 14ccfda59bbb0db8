// Package metrics records transaction outcomes as Prometheus metrics.
//
// A Recorder is an nvue.Observer. It registers on its own registry so a
// one-shot CLI run can dump exactly what it did to a node-exporter textfile
// without touching the global default registry.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/muurk/nvuectl/internal/nvue"
)

const namespace = "nvuectl"

// Recorder counts transaction events per device
type Recorder struct {
	*collectors
	device string

	mu      sync.Mutex
	started map[string]time.Time
	now     func() time.Time
}

// collectors are shared by every device view of a Recorder
type collectors struct {
	registry *prometheus.Registry

	revisionsCreated *prometheus.CounterVec
	patches          *prometheus.CounterVec
	applies          *prometheus.CounterVec
	polls            *prometheus.CounterVec
	outcomes         *prometheus.CounterVec
	failures         *prometheus.CounterVec
	applyDuration    *prometheus.HistogramVec
}

// NewRecorder creates a recorder on a fresh registry
func NewRecorder() *Recorder {
	return NewRecorderWithRegistry(prometheus.NewRegistry())
}

// NewRecorderWithRegistry creates a recorder registered on registry
func NewRecorderWithRegistry(registry *prometheus.Registry) *Recorder {
	factory := promauto.With(registry)
	deviceLabel := []string{"device"}

	c := &collectors{
		registry: registry,
		revisionsCreated: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "revisions_created_total",
			Help:      "Revisions created",
		}, deviceLabel),
		patches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "revision_patches_total",
			Help:      "Payloads staged into a revision",
		}, deviceLabel),
		applies: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "revision_applies_total",
			Help:      "Apply requests sent",
		}, []string{"device", "force"}),
		polls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "revision_polls_total",
			Help:      "Revision state polls after apply",
		}, deviceLabel),
		outcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "apply_outcomes_total",
			Help:      "Finished applies by outcome (applied, incomplete or failed)",
		}, []string{"device", "outcome"}),
		failures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "request_failures_total",
			Help:      "Failed requests by operation",
		}, []string{"device", "operation"}),
		applyDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "apply_duration_seconds",
			Help:      "Time from apply request to the last poll",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		}, deviceLabel),
	}
	return newView(c, "", time.Now)
}

func newView(c *collectors, device string, now func() time.Time) *Recorder {
	return &Recorder{
		collectors: c,
		device:     device,
		started:    make(map[string]time.Time),
		now:        now,
	}
}

// ForDevice returns a view of the recorder that labels events with device.
// Views share the underlying metrics.
func (r *Recorder) ForDevice(device string) *Recorder {
	return newView(r.collectors, device, r.now)
}

// Registry returns the registry the metrics live on
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// WriteTextfile writes every metric to path in the text exposition format,
// for the node-exporter textfile collector
func (r *Recorder) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.registry)
}

// RevisionCreated implements nvue.Observer
func (r *Recorder) RevisionCreated(string) {
	r.revisionsCreated.WithLabelValues(r.device).Inc()
}

// RevisionPatched implements nvue.Observer
func (r *Recorder) RevisionPatched(string) {
	r.patches.WithLabelValues(r.device).Inc()
}

// ApplyRequested implements nvue.Observer
func (r *Recorder) ApplyRequested(revisionID string, force bool) {
	forceLabel := "false"
	if force {
		forceLabel = "true"
	}
	r.applies.WithLabelValues(r.device, forceLabel).Inc()

	r.mu.Lock()
	r.started[revisionID] = r.now()
	r.mu.Unlock()
}

// ApplyPolled implements nvue.Observer
func (r *Recorder) ApplyPolled(string, int, string) {
	r.polls.WithLabelValues(r.device).Inc()
}

// ApplyFinished implements nvue.Observer
func (r *Recorder) ApplyFinished(revisionID string, state nvue.RevisionState, _ int) {
	outcome := "incomplete"
	if state == nvue.StateApplied {
		outcome = "applied"
	}
	r.outcomes.WithLabelValues(r.device, outcome).Inc()

	r.mu.Lock()
	start, ok := r.started[revisionID]
	delete(r.started, revisionID)
	r.mu.Unlock()
	if ok {
		r.applyDuration.WithLabelValues(r.device).Observe(r.now().Sub(start).Seconds())
	}
}

// RequestFailed implements nvue.Observer. A failed apply or poll ends every
// apply this view is timing; they are counted with outcome "failed".
func (r *Recorder) RequestFailed(op nvue.Operation, _ error) {
	r.failures.WithLabelValues(r.device, op.String()).Inc()
	if op != nvue.OpApplyRevision {
		return
	}

	r.mu.Lock()
	started := r.started
	r.started = make(map[string]time.Time)
	r.mu.Unlock()

	for _, start := range started {
		r.outcomes.WithLabelValues(r.device, "failed").Inc()
		r.applyDuration.WithLabelValues(r.device).Observe(r.now().Sub(start).Seconds())
	}
}
