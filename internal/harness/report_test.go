package harness

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReportCountsAndExitCode(t *testing.T) {
	tests := []struct {
		name           string
		statuses       []Status
		harnessFailure string
		wantExit       int
	}{
		{
			name:     "all pass",
			statuses: []Status{StatusPass, StatusPass},
			wantExit: ExitPass,
		},
		{
			name:     "skips alone still pass",
			statuses: []Status{StatusPass, StatusSkip},
			wantExit: ExitPass,
		},
		{
			name:     "one failure",
			statuses: []Status{StatusPass, StatusFail},
			wantExit: ExitScenarioFail,
		},
		{
			name:     "scenario error",
			statuses: []Status{StatusError, StatusPass},
			wantExit: ExitScenarioFail,
		},
		{
			name:           "harness failure trumps scenario results",
			statuses:       []Status{StatusPass, StatusFail},
			harnessFailure: "MKCALENDAR refused",
			wantExit:       ExitHarnessError,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			report := &Report{HarnessFailure: tc.harnessFailure}
			for i, status := range tc.statuses {
				report.add("scenario", status, "", time.Duration(i)*time.Millisecond)
			}
			assert.Equal(t, tc.wantExit, report.ExitCode())
		})
	}
}

func TestReportCountsPartition(t *testing.T) {
	report := &Report{}
	report.add("a", StatusPass, "", 0)
	report.add("b", StatusPass, "", 0)
	report.add("c", StatusFail, "etag mismatch", 0)
	report.add("d", StatusError, "parse failure", 0)
	report.add("e", StatusSkip, "feature missing", 0)

	pass, fail, errs, skip := report.Counts()
	assert.Equal(t, 2, pass)
	assert.Equal(t, 1, fail)
	assert.Equal(t, 1, errs)
	assert.Equal(t, 1, skip)
}

func TestReportWriteHuman(t *testing.T) {
	report := &Report{Target: "http://example.test"}
	report.add("object/create", StatusPass, "", 12*time.Millisecond)
	report.add("object/fetch-roundtrip", StatusFail, "uid changed", 3*time.Millisecond)
	report.TeardownFailure = "DELETE returned 500"

	var buf bytes.Buffer
	require.NoError(t, report.WriteHuman(&buf))

	out := buf.String()
	assert.Contains(t, out, "pass")
	assert.Contains(t, out, "object/create")
	assert.Contains(t, out, "uid changed")
	assert.Contains(t, out, "1 passed, 1 failed, 0 errored, 0 skipped")
	assert.Contains(t, out, "teardown failure: DELETE returned 500")
}

func TestReportWriteJSON(t *testing.T) {
	report := &Report{
		Target:   "http://example.test",
		Calendar: "/calendars/probe/probe-run-x/",
		Started:  time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC),
	}
	report.add("object/create", StatusPass, "", time.Millisecond)

	var buf bytes.Buffer
	require.NoError(t, report.WriteJSON(&buf))

	var decoded Report
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, report.Target, decoded.Target)
	assert.Equal(t, report.Calendar, decoded.Calendar)
	require.Len(t, decoded.Outcomes, 1)
	assert.Equal(t, StatusPass, decoded.Outcomes[0].Status)
	assert.Equal(t, time.Millisecond, decoded.Outcomes[0].Duration)
}
