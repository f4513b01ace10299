package harness

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/lithammer/shortuuid/v4"

	"github.com/davprobe/davprobe/internal/httpclient"
	"github.com/davprobe/davprobe/internal/model"
	"github.com/davprobe/davprobe/internal/xmlbody"
)

// Phase names the runner's position in its lifecycle. Transitions are
// strictly forward; a run never revisits a phase.
type Phase string

const (
	PhaseIdle         Phase = "idle"
	PhaseDiscovering  Phase = "discovering"
	PhaseProvisioning Phase = "provisioning"
	PhaseExecuting    Phase = "executing"
	PhaseVerifying    Phase = "verifying"
	PhaseTearingDown  Phase = "tearing-down"
	PhaseDone         Phase = "done"
)

const defaultTeardownTimeout = 15 * time.Second

// Options configure a run.
type Options struct {
	// Target is a display label for the report, usually the base URL.
	Target string
	// HomePath is the calendar home collection the run provisions its
	// calendar under. It must end with a slash.
	HomePath string
	// Only restricts the run to the named scenarios. Empty means all.
	Only []string
	// TeardownTimeout bounds the best-effort calendar deletion.
	TeardownTimeout time.Duration
	Logger          *slog.Logger
}

// Runner drives one conformance run against one target. It is
// single-use; build a new Runner for each run.
type Runner struct {
	client httpclient.Wrapper
	opts   Options
	logger *slog.Logger
	phase  Phase

	scenarios []Scenario
	rc        *RunContext
	report    *Report
}

func NewRunner(client httpclient.Wrapper, opts Options) *Runner {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.TeardownTimeout <= 0 {
		opts.TeardownTimeout = defaultTeardownTimeout
	}
	if !strings.HasSuffix(opts.HomePath, "/") {
		opts.HomePath += "/"
	}
	return &Runner{
		client:    client,
		opts:      opts,
		logger:    opts.Logger,
		phase:     PhaseIdle,
		scenarios: selectScenarios(Scenarios(), opts.Only),
	}
}

func selectScenarios(all []Scenario, only []string) []Scenario {
	if len(only) == 0 {
		return all
	}
	wanted := make(map[string]bool, len(only))
	for _, name := range only {
		wanted[name] = true
	}
	var picked []Scenario
	for _, s := range all {
		if wanted[s.Name] {
			picked = append(picked, s)
		}
	}
	return picked
}

func (r *Runner) transition(next Phase) {
	r.logger.Debug("phase transition", "from", string(r.phase), "to", string(next))
	r.phase = next
}

// Run executes the whole lifecycle. Failures of individual scenarios
// are recorded, not returned; only the report's exit code tells the
// caller how the run went. Teardown is attempted whenever a calendar
// was provisioned, even after an aborted run.
func (r *Runner) Run(ctx context.Context) *Report {
	r.report = &Report{
		Target:  r.opts.Target,
		Started: time.Now().UTC(),
	}

	r.transition(PhaseDiscovering)
	features, err := r.discover(ctx)
	if err != nil {
		r.abort("discovery", err)
		return r.report
	}

	r.transition(PhaseProvisioning)
	if err := r.provision(ctx, features); err != nil {
		r.abort("provisioning", err)
		return r.report
	}

	r.transition(PhaseExecuting)
	r.execute(ctx)

	r.transition(PhaseVerifying)
	// Per-scenario verification already ran inline; this phase exists
	// so the lifecycle log shows when execution ended.

	r.teardown(ctx)
	r.transition(PhaseDone)
	return r.report
}

// discover checks the home collection exists and collects the DAV
// compliance tokens the server advertises there.
func (r *Runner) discover(ctx context.Context) ([]string, error) {
	resp, err := r.client.DoOPTIONS(ctx, r.opts.HomePath)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, &HarnessError{Phase: "discovery", Err: fmt.Errorf("OPTIONS %s returned %d", r.opts.HomePath, resp.StatusCode)}
	}
	features := resp.DAVFeatures()
	r.logger.Info("discovered target", "home", r.opts.HomePath, "dav", features)

	pf, err := r.client.DoPROPFIND(ctx, r.opts.HomePath, 0, &xmlbody.PropfindRequest{
		Props: []xmlbody.PropName{xmlbody.PropResourcetype},
	})
	if err != nil {
		return nil, err
	}
	if pf.StatusCode != http.StatusMultiStatus {
		return nil, &HarnessError{Phase: "discovery", Err: fmt.Errorf("PROPFIND %s returned %d, want 207", r.opts.HomePath, pf.StatusCode)}
	}
	ms, err := xmlbody.ParseMultistatus(pf.Body)
	if err != nil {
		return nil, &HarnessError{Phase: "discovery", Err: err}
	}
	home, ok := ms.FindByHref(r.opts.HomePath).Get()
	if !ok {
		return nil, &HarnessError{Phase: "discovery", Err: fmt.Errorf("no multistatus response for %s", r.opts.HomePath)}
	}
	if !home.IsCollection() {
		return nil, &HarnessError{Phase: "discovery", Err: fmt.Errorf("%s is not a collection", r.opts.HomePath)}
	}
	return features, nil
}

// provision creates a uniquely named calendar for this run so
// concurrent runs against the same server cannot collide.
func (r *Runner) provision(ctx context.Context, features []string) error {
	name := "probe-run-" + shortuuid.New()
	path := r.opts.HomePath + name + "/"
	components := []string{"VEVENT", "VTODO"}

	resp, err := r.client.DoMKCALENDAR(ctx, path, &xmlbody.MkcalendarRequest{
		DisplayName: "davprobe " + name,
		Components:  components,
	})
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusCreated {
		return &HarnessError{Phase: "provisioning", Err: fmt.Errorf("MKCALENDAR %s returned %d, want 201", path, resp.StatusCode)}
	}
	r.logger.Info("provisioned calendar", "path", path)

	r.report.Calendar = path
	r.rc = &RunContext{
		Client:       r.client,
		Logger:       r.logger,
		CalendarPath: path,
		Calendar: model.NewCalendarState(model.Calendar{
			URL:         path,
			DisplayName: "davprobe " + name,
			Components:  components,
		}),
		Features: features,
	}
	return nil
}

// execute runs the scenario list in order. A transport error aborts
// the rest of the run; everything else is recorded and the loop
// continues.
func (r *Runner) execute(ctx context.Context) {
	for i, s := range r.scenarios {
		if missing := r.rc.missingFeatures(s.Requires); len(missing) > 0 {
			r.report.add(s.Name, StatusSkip, "server does not advertise "+strings.Join(missing, ", "), 0)
			r.logger.Info("scenario skipped", "scenario", s.Name, "missing", missing)
			continue
		}

		started := time.Now()
		result, err := s.Run(ctx, r.rc)
		elapsed := time.Since(started)

		switch {
		case err != nil && httpclient.IsTransportError(err):
			r.report.add(s.Name, StatusError, err.Error(), elapsed)
			r.logger.Error("transport error, aborting run", "scenario", s.Name, "error", err)
			r.skipRemaining(r.scenarios[i+1:], "run aborted by transport error")
			r.report.HarnessFailure = err.Error()
			return
		case err != nil && IsProtocolError(err):
			// Malformed response: this scenario cannot be judged, but
			// the server is still up, so the run continues.
			r.report.add(s.Name, StatusError, err.Error(), elapsed)
			r.logger.Warn("scenario hit a malformed response", "scenario", s.Name, "error", err)
		case err != nil:
			r.report.add(s.Name, StatusError, err.Error(), elapsed)
			r.logger.Error("scenario errored", "scenario", s.Name, "error", err)
		case !result.Passed():
			r.report.add(s.Name, StatusFail, result.Detail(), elapsed)
			r.logger.Warn("scenario failed", "scenario", s.Name, "detail", result.Detail())
		default:
			r.report.add(s.Name, StatusPass, "", elapsed)
			r.logger.Info("scenario passed", "scenario", s.Name, "duration", elapsed)
		}
	}
}

func (r *Runner) skipRemaining(rest []Scenario, reason string) {
	for _, s := range rest {
		r.report.add(s.Name, StatusSkip, reason, 0)
	}
}

// abort records a setup failure and marks every scenario skipped.
func (r *Runner) abort(phase string, err error) {
	r.logger.Error("run aborted", "phase", phase, "error", err)
	r.report.HarnessFailure = err.Error()
	r.skipRemaining(r.scenarios, "run aborted during "+phase)
	r.teardown(context.Background())
	r.transition(PhaseDone)
}

// teardown deletes the run's calendar. It gets its own deadline,
// detached from the run context, so a canceled run still cleans up.
func (r *Runner) teardown(ctx context.Context) {
	if r.rc == nil {
		return
	}
	r.transition(PhaseTearingDown)

	tctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.opts.TeardownTimeout)
	defer cancel()

	resp, err := r.client.DoDELETE(tctx, r.rc.CalendarPath, "")
	switch {
	case err != nil:
		r.report.TeardownFailure = err.Error()
		r.logger.Error("teardown failed", "calendar", r.rc.CalendarPath, "error", err)
	case resp.StatusCode >= http.StatusBadRequest && resp.StatusCode != http.StatusNotFound:
		r.report.TeardownFailure = fmt.Sprintf("DELETE %s returned %d", r.rc.CalendarPath, resp.StatusCode)
		r.logger.Error("teardown failed", "calendar", r.rc.CalendarPath, "status", resp.StatusCode)
	default:
		r.logger.Info("calendar deleted", "calendar", r.rc.CalendarPath)
	}
}
