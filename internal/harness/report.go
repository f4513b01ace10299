package harness

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// Status classifies a scenario outcome.
type Status string

const (
	StatusPass  Status = "pass"
	StatusFail  Status = "fail"
	StatusError Status = "error"
	StatusSkip  Status = "skip"
)

// Exit codes distinguish assertion failures from harness failures so
// surrounding tooling can tell them apart.
const (
	ExitPass         = 0
	ExitScenarioFail = 1
	ExitHarnessError = 2
)

// Outcome is the result of one scenario.
type Outcome struct {
	Scenario string        `json:"scenario"`
	Status   Status        `json:"status"`
	Detail   string        `json:"detail,omitempty"`
	Duration time.Duration `json:"duration_ns"`
}

// Report collects scenario outcomes in run order.
type Report struct {
	Target   string    `json:"target"`
	Calendar string    `json:"calendar,omitempty"`
	Started  time.Time `json:"started"`
	Outcomes []Outcome `json:"outcomes"`
	// HarnessFailure is set when setup or the transport aborted the
	// run before all scenarios could execute.
	HarnessFailure string `json:"harness_failure,omitempty"`
	// TeardownFailure records a best-effort teardown that failed. It
	// never overwrites scenario outcomes.
	TeardownFailure string `json:"teardown_failure,omitempty"`
}

func (r *Report) add(name string, status Status, detail string, duration time.Duration) {
	r.Outcomes = append(r.Outcomes, Outcome{
		Scenario: name,
		Status:   status,
		Detail:   detail,
		Duration: duration,
	})
}

// Counts returns the per-status totals.
func (r *Report) Counts() (pass, fail, errs, skip int) {
	for _, o := range r.Outcomes {
		switch o.Status {
		case StatusPass:
			pass++
		case StatusFail:
			fail++
		case StatusError:
			errs++
		case StatusSkip:
			skip++
		}
	}
	return
}

// ExitCode maps the report to a process exit status: 0 when every
// scenario passed, 2 for harness failures, 1 for scenario failures.
func (r *Report) ExitCode() int {
	if r.HarnessFailure != "" {
		return ExitHarnessError
	}
	_, fail, errs, _ := r.Counts()
	if fail > 0 || errs > 0 {
		return ExitScenarioFail
	}
	return ExitPass
}

// WriteHuman renders the report for a terminal.
func (r *Report) WriteHuman(w io.Writer) error {
	for _, o := range r.Outcomes {
		line := fmt.Sprintf("%-5s %-35s %v", o.Status, o.Scenario, o.Duration.Round(time.Millisecond))
		if o.Detail != "" {
			line += "  (" + o.Detail + ")"
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}

	pass, fail, errs, skip := r.Counts()
	if _, err := fmt.Fprintf(w, "\n%d passed, %d failed, %d errored, %d skipped\n", pass, fail, errs, skip); err != nil {
		return err
	}
	if r.HarnessFailure != "" {
		if _, err := fmt.Fprintf(w, "harness failure: %s\n", r.HarnessFailure); err != nil {
			return err
		}
	}
	if r.TeardownFailure != "" {
		if _, err := fmt.Fprintf(w, "teardown failure: %s\n", r.TeardownFailure); err != nil {
			return err
		}
	}
	return nil
}

// WriteJSON renders the report machine-readably.
func (r *Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}
