package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newState() *CalendarState {
	return NewCalendarState(Calendar{
		URL:         "/calendars/probe/run-1/",
		DisplayName: "run-1",
	})
}

func TestApplyCreate(t *testing.T) {
	s := newState()

	require.NoError(t, s.ApplyCreate(Object{URL: "/calendars/probe/run-1/a.ics", ETag: `"v1"`, UID: "evt-1"}))

	obj, ok := s.Object("/calendars/probe/run-1/a.ics")
	require.True(t, ok)
	assert.Equal(t, "evt-1", obj.UID)

	tests := []struct {
		name string
		obj  Object
	}{
		{name: "missing etag", obj: Object{URL: "/calendars/probe/run-1/b.ics", UID: "evt-2"}},
		{name: "duplicate URL", obj: Object{URL: "/calendars/probe/run-1/a.ics", ETag: `"v1"`, UID: "evt-3"}},
		{name: "duplicate UID", obj: Object{URL: "/calendars/probe/run-1/c.ics", ETag: `"v1"`, UID: "evt-1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, s.ApplyCreate(tt.obj))
		})
	}
}

func TestApplyUpdate(t *testing.T) {
	s := newState()
	require.NoError(t, s.ApplyCreate(Object{URL: "/a.ics", ETag: `"v1"`, UID: "evt-1"}))

	// UID stable, ETag changed: ok
	require.NoError(t, s.ApplyUpdate(Object{URL: "/a.ics", ETag: `"v2"`, UID: "evt-1"}))

	// ETag unchanged: violation of the ETag change law
	assert.Error(t, s.ApplyUpdate(Object{URL: "/a.ics", ETag: `"v2"`, UID: "evt-1"}))

	// UID drift: violation
	assert.Error(t, s.ApplyUpdate(Object{URL: "/a.ics", ETag: `"v3"`, UID: "evt-other"}))

	// unknown object
	assert.Error(t, s.ApplyUpdate(Object{URL: "/nope.ics", ETag: `"v1"`, UID: "x"}))
}

func TestApplyDelete(t *testing.T) {
	s := newState()
	require.NoError(t, s.ApplyCreate(Object{URL: "/a.ics", ETag: `"v1"`, UID: "evt-1"}))

	require.NoError(t, s.ApplyDelete("/a.ics"))
	assert.Error(t, s.ApplyDelete("/a.ics"))

	// UID is free again after deletion
	assert.NoError(t, s.ApplyCreate(Object{URL: "/b.ics", ETag: `"v1"`, UID: "evt-1"}))
}

func TestRecordSyncToken(t *testing.T) {
	s := newState()

	require.NoError(t, s.RecordSyncToken("sync/1"))
	assert.Equal(t, "sync/1", s.Calendar.SyncToken)

	// Same token again: no changes since, fine.
	require.NoError(t, s.RecordSyncToken("sync/1"))

	require.NoError(t, s.RecordSyncToken("sync/2"))

	// Going back to an earlier token is a monotonicity violation.
	assert.Error(t, s.RecordSyncToken("sync/1"))

	assert.Error(t, s.RecordSyncToken(""))
}

func TestSnapshotAndClone(t *testing.T) {
	s := newState()
	require.NoError(t, s.ApplyCreate(Object{URL: "/a.ics", ETag: `"v1"`, UID: "evt-1"}))
	require.NoError(t, s.RecordSyncToken("sync/1"))

	snap := s.Snapshot()
	assert.Equal(t, "sync/1", snap.Token)
	assert.Equal(t, map[string]string{"/a.ics": `"v1"`}, snap.Objects)

	clone := snap.Clone()
	clone.Objects["/a.ics"] = `"tampered"`
	assert.Equal(t, `"v1"`, snap.Objects["/a.ics"])
}
