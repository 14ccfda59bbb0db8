package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/muurk/nvuectl/internal/nvue"
)

// Transaction steps, in the order a Set runs them
const (
	StepCreate = iota + 1
	StepStage
	StepApply
	StepWait
)

// TransactionStepNames labels the four transaction steps
var TransactionStepNames = []string{
	"Create revision",
	"Stage configuration",
	"Apply revision",
	"Wait for applied",
}

// RunnerConfig describes the transaction a TransactionRunner follows
type RunnerConfig struct {
	Title   string  // e.g., "Set configuration"
	Command string  // e.g., "nvuectl set router"
	Device  string  // device name shown in the header and result
	Params  []Param // extra header lines
	Wait    int     // apply poll budget in seconds

	// RevisionID is set when the caller supplied an existing revision;
	// creating is skipped and, for Set, so are apply and wait.
	RevisionID string

	// ApplyOnly follows a bare ApplyRevision: create and stage are skipped
	ApplyOnly bool

	// ShowDocument prints the final response body below the result box
	ShowDocument bool

	Output io.Writer // default os.Stdout
	Width  int       // default: width of Output
}

// TransactionRunner renders a transaction as it happens. It implements
// nvue.Observer, so the client drives it. Step lines are written as each step
// settles; the header and result box come from Begin and Finish.
//
// A runner follows one transaction. Multi-device commands give every device
// its own runner writing to its own buffer.
type TransactionRunner struct {
	cfg      RunnerConfig
	header   *Header
	progress *Progress
	out      io.Writer
	width    int
	now      func() time.Time

	mu       sync.Mutex
	start    time.Time
	revision string
	state    string
	polls    int
	finished bool
}

var _ nvue.Observer = (*TransactionRunner)(nil)

// NewTransactionRunner creates a runner for cfg
func NewTransactionRunner(cfg RunnerConfig) *TransactionRunner {
	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}
	width := cfg.Width
	if width == 0 {
		width = TerminalWidth(cfg.Output)
	}

	params := []Param{{Key: "Device", Value: cfg.Device}}
	if cfg.RevisionID != "" {
		params = append(params, Param{Key: "Revision", Value: cfg.RevisionID})
	}
	params = append(params, Param{Key: "Wait", Value: fmt.Sprintf("%ds", cfg.Wait)})
	params = append(params, cfg.Params...)

	header := NewHeader(cfg.Title, cfg.Command, params...)
	header.SetWidth(width)

	progress := NewProgress(TransactionStepNames...)
	progress.SetWidth(width)
	progress.ShowBar = false

	return &TransactionRunner{
		cfg:      cfg,
		header:   header,
		progress: progress,
		out:      cfg.Output,
		width:    width,
		now:      time.Now,
		revision: cfg.RevisionID,
	}
}

// Begin prints the header and marks the first step running
func (r *TransactionRunner) Begin() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.start = r.now()
	r.println(r.header.Render())
	r.println("")

	switch {
	case r.cfg.ApplyOnly:
		r.settle(StepCreate, StepSkipped, "existing revision")
		r.settle(StepStage, StepSkipped, "")
		r.progress.StartStep(StepApply, "")
	case r.cfg.RevisionID != "":
		r.settle(StepCreate, StepSkipped, "existing revision")
		r.progress.StartStep(StepStage, "")
	default:
		r.progress.StartStep(StepCreate, "")
	}
}

// RevisionCreated implements nvue.Observer
func (r *TransactionRunner) RevisionCreated(revisionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.revision = revisionID
	r.settle(StepCreate, StepComplete, revisionID)
	r.progress.StartStep(StepStage, "")
}

// RevisionPatched implements nvue.Observer
func (r *TransactionRunner) RevisionPatched(string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.settle(StepStage, StepComplete, "")
}

// ApplyRequested implements nvue.Observer
func (r *TransactionRunner) ApplyRequested(revisionID string, force bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.revision = revisionID
	note := ""
	if force {
		note = "force"
	}
	r.progress.StartStep(StepApply, note)
}

// ApplyPolled implements nvue.Observer
func (r *TransactionRunner) ApplyPolled(_ string, attempt int, state string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if attempt == 1 {
		step, _ := r.progress.Step(StepApply)
		r.settle(StepApply, StepComplete, step.Message)
	}
	r.polls = attempt
	r.state = state
	r.progress.StartStep(StepWait, fmt.Sprintf("poll %d/%d: %s", attempt, r.cfg.Wait+1, state))
}

// ApplyFinished implements nvue.Observer
func (r *TransactionRunner) ApplyFinished(_ string, state nvue.RevisionState, polls int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.polls = polls
	msg := fmt.Sprintf("%s after %d polls", r.state, polls)
	if state == nvue.StateApplied {
		r.settle(StepWait, StepComplete, msg)
		return
	}
	r.settle(StepWait, StepFailed, msg)
}

// RequestFailed implements nvue.Observer
func (r *TransactionRunner) RequestFailed(nvue.Operation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.progress.Current == 0 {
		return
	}
	if step, ok := r.progress.Step(r.progress.Current); ok && step.Status == StepRunning {
		r.settle(step.Number, StepFailed, step.Message)
	}
}

// Finish settles any remaining steps and prints the result box. resp is the
// value returned by the client call, err its error.
func (r *TransactionRunner) Finish(resp *nvue.Response, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finished {
		return
	}
	r.finished = true

	for _, s := range r.progress.Steps {
		switch s.Status {
		case StepPending:
			r.settle(s.Number, StepSkipped, "")
		case StepRunning:
			status := StepFailed
			if err == nil {
				status = StepComplete
			}
			r.settle(s.Number, status, s.Message)
		}
	}
	r.println("")

	duration := r.now().Sub(r.start).Round(time.Millisecond)
	name := r.cfg.Device

	var result *Result
	switch {
	case err != nil:
		summary, tips := SplitHint(nvue.GetTroubleshootingHint(err))
		if summary != "" {
			tips = append([]string{summary}, tips...)
		}
		result = NewFailureResult(name+": "+strings.ToLower(r.cfg.Title)+" failed", err, tips)
	case r.cfg.RevisionID != "" && !r.cfg.ApplyOnly:
		result = NewSuccessResult(name+": staged",
			Param{Key: "Revision", Value: r.revision},
			Param{Key: "Next", Value: "nvuectl apply " + r.revision},
		)
	case resp != nil && resp.State() == nvue.StateApplied:
		result = NewSuccessResult(name+": applied",
			Param{Key: "Revision", Value: r.revision},
			Param{Key: "Polls", Value: fmt.Sprint(r.polls)},
		)
	default:
		state := ""
		if resp != nil {
			state = resp.StateString()
		}
		result = NewWarningResult(name+": not applied within "+fmt.Sprintf("%ds", r.cfg.Wait),
			Param{Key: "Revision", Value: r.revision},
			Param{Key: "State", Value: state},
			Param{Key: "Polls", Value: fmt.Sprint(r.polls)},
		)
	}
	result.AddDetail("Duration", duration.String())
	result.SetWidth(r.width)
	r.println(result.Render())

	if r.cfg.ShowDocument && err == nil && resp != nil {
		r.println(NewDocument("Response", resp).SetWidth(r.width).Render())
	}
}

// Steps returns a copy of the current step list
func (r *TransactionRunner) Steps() []Step {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Step(nil), r.progress.Steps...)
}

// settle sets a final status and prints the step line; callers hold r.mu
func (r *TransactionRunner) settle(number int, status StepStatus, message string) {
	r.progress.UpdateStep(number, status, message)
	if step, ok := r.progress.Step(number); ok {
		r.println(r.progress.RenderStep(step))
	}
}

func (r *TransactionRunner) println(s string) {
	_, _ = fmt.Fprintln(r.out, s)
}

// SplitHint separates a troubleshooting hint into its summary line and bullets
func SplitHint(hint string) (string, []string) {
	var (
		summary string
		tips    []string
	)
	for _, line := range strings.Split(hint, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case line == "" || line == "Troubleshooting:":
		case strings.HasPrefix(line, "•"):
			tips = append(tips, strings.TrimSpace(strings.TrimPrefix(line, "•")))
		case summary == "":
			summary = line
		default:
			tips = append(tips, line)
		}
	}
	return summary, tips
}
