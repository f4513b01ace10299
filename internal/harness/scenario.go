package harness

import (
	"context"
	"log/slog"
	"time"

	"github.com/davprobe/davprobe/internal/httpclient"
	"github.com/davprobe/davprobe/internal/model"
	"github.com/davprobe/davprobe/internal/verify"
)

// Scenario is one conformance probe: a name, the DAV compliance
// features it needs, and its probe function. Scenarios are plain
// values iterated in order; later scenarios may depend on state the
// earlier ones left in the RunContext.
type Scenario struct {
	Name string
	// Requires lists DAV header tokens the server must advertise.
	// A scenario whose requirement is missing is skipped, not failed.
	Requires []string
	Run      func(ctx context.Context, rc *RunContext) (verify.Result, error)
}

// RunContext carries everything a scenario needs, explicitly: no
// process-wide state, so independent targets can run in parallel.
type RunContext struct {
	Client httpclient.Wrapper
	Logger *slog.Logger

	// CalendarPath is the test calendar this run provisioned.
	CalendarPath string
	Calendar     *model.CalendarState

	// Features are the DAV tokens the server advertised at discovery.
	Features []string

	// State threaded between scenarios.
	ObjectPath string
	ObjectUID  string
	EventStart time.Time
	// StaleETag is the pre-update ETag kept around for the stale
	// precondition probe.
	StaleETag string
	PriorSync model.SyncState
}

// hasFeature reports whether the server advertised the DAV token.
func (rc *RunContext) hasFeature(feature string) bool {
	for _, f := range rc.Features {
		if f == feature {
			return true
		}
	}
	return false
}

func (rc *RunContext) missingFeatures(requires []string) []string {
	var missing []string
	for _, feature := range requires {
		if !rc.hasFeature(feature) {
			missing = append(missing, feature)
		}
	}
	return missing
}
