package harness

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/emersion/go-ical"
	"github.com/google/uuid"

	"github.com/davprobe/davprobe/internal/httpclient"
	"github.com/davprobe/davprobe/internal/icalbody"
	"github.com/davprobe/davprobe/internal/model"
	"github.com/davprobe/davprobe/internal/verify"
	"github.com/davprobe/davprobe/internal/xmlbody"
)

// Feature tokens from the DAV compliance header (RFC 4791, RFC 6578).
const (
	FeatureCalendarAccess = "calendar-access"
	FeatureSyncCollection = "sync-collection"
)

// Scenarios returns the ordered conformance catalog. Later scenarios
// build on resources created by earlier ones.
func Scenarios() []Scenario {
	return []Scenario{
		{Name: "options/caldav-advertised", Run: scenarioOptions},
		{Name: "propfind/new-calendar-empty", Run: scenarioEmptyCalendar},
		{Name: "object/create", Run: scenarioCreate},
		{Name: "object/fetch-roundtrip", Run: scenarioFetch},
		{Name: "object/conditional-update", Run: scenarioConditionalUpdate},
		{Name: "object/stale-precondition", Run: scenarioStalePrecondition},
		{Name: "report/calendar-query", Run: scenarioCalendarQuery},
		{Name: "report/multiget", Run: scenarioMultiget},
		{Name: "sync/initial-and-delta", Requires: []string{FeatureSyncCollection}, Run: scenarioSyncDelta},
		{Name: "object/delete", Run: scenarioDelete},
	}
}

// objectProps are requested for every object-level multistatus check.
var objectProps = []xmlbody.PropName{xmlbody.PropGetEtag, xmlbody.PropCalendarData}

// fetchETag asks the server for the current ETag of a resource, used
// when a PUT response carried none.
func fetchETag(ctx context.Context, rc *RunContext, path string) (string, error) {
	resp, err := rc.Client.DoPROPFIND(ctx, path, 0, &xmlbody.PropfindRequest{
		Props: []xmlbody.PropName{xmlbody.PropGetEtag},
	})
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusMultiStatus {
		return "", &ProtocolError{Op: "PROPFIND " + path, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}
	ms, err := xmlbody.ParseMultistatus(resp.Body)
	if err != nil {
		return "", &ProtocolError{Op: "PROPFIND " + path, Err: err}
	}
	found, ok := ms.FindByHref(path).Get()
	if !ok {
		return "", &ProtocolError{Op: "PROPFIND " + path, Err: fmt.Errorf("no response for %s", path)}
	}
	return found.Etag().OrElse(""), nil
}

// fetchCTag reads the calendarserver.org collection tag of the run
// calendar. Empty when the server does not expose one.
func fetchCTag(ctx context.Context, rc *RunContext) (string, error) {
	resp, err := rc.Client.DoPROPFIND(ctx, rc.CalendarPath, 0, &xmlbody.PropfindRequest{
		Props: []xmlbody.PropName{xmlbody.PropGetCTag},
	})
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusMultiStatus {
		return "", nil
	}
	ms, err := xmlbody.ParseMultistatus(resp.Body)
	if err != nil {
		return "", &ProtocolError{Op: "PROPFIND " + rc.CalendarPath, Err: err}
	}
	found, ok := ms.FindByHref(rc.CalendarPath).Get()
	if !ok {
		return "", nil
	}
	return found.PropText(xmlbody.PropGetCTag).OrElse(""), nil
}

func parseMultistatus(op string, body []byte) (*xmlbody.Multistatus, error) {
	ms, err := xmlbody.ParseMultistatus(body)
	if err != nil {
		return nil, &ProtocolError{Op: op, Err: err}
	}
	return ms, nil
}

// The server must advertise CalDAV support on the test calendar.
func scenarioOptions(ctx context.Context, rc *RunContext) (verify.Result, error) {
	resp, err := rc.Client.DoOPTIONS(ctx, rc.CalendarPath)
	if err != nil {
		return verify.Result{}, err
	}

	result := verify.Status(resp, http.StatusOK, http.StatusNoContent)
	features := resp.DAVFeatures()
	hasCalendarAccess := false
	for _, f := range features {
		if f == FeatureCalendarAccess {
			hasCalendarAccess = true
		}
	}
	if !hasCalendarAccess {
		result = result.Merge(verify.Fail("DAV header", FeatureCalendarAccess, fmt.Sprintf("%v", features)))
	}

	// Allow is optional, but when present it must list the CalDAV
	// extension methods.
	if allowed := resp.AllowedMethods(); len(allowed) > 0 {
		for _, method := range []string{"REPORT", "MKCALENDAR"} {
			found := false
			for _, m := range allowed {
				if m == method {
					found = true
				}
			}
			if !found {
				result = result.Merge(verify.Fail("Allow header", method, fmt.Sprintf("%v", allowed)))
			}
		}
	}
	return result, nil
}

// A freshly provisioned calendar must report itself and zero children.
func scenarioEmptyCalendar(ctx context.Context, rc *RunContext) (verify.Result, error) {
	resp, err := rc.Client.DoPROPFIND(ctx, rc.CalendarPath, 1, &xmlbody.PropfindRequest{
		Props: []xmlbody.PropName{xmlbody.PropResourcetype, xmlbody.PropDisplayName},
	})
	if err != nil {
		return verify.Result{}, err
	}
	if result := verify.Status(resp, http.StatusMultiStatus); !result.Passed() {
		return result, nil
	}

	ms, err := parseMultistatus("PROPFIND "+rc.CalendarPath, resp.Body)
	if err != nil {
		return verify.Result{}, err
	}

	result := verify.Multistatus(ms, verify.Shape{
		Require:    []string{rc.CalendarPath},
		ExactCount: 1,
		Props:      []xmlbody.PropName{xmlbody.PropResourcetype},
	})
	if found, ok := ms.FindByHref(rc.CalendarPath).Get(); ok && !found.IsCalendar() {
		result = result.Merge(verify.Fail("resourcetype", "a calendar collection", "not a calendar"))
	}
	return result, nil
}

// PUT of a new object must create it and hand back an ETag.
func scenarioCreate(ctx context.Context, rc *RunContext) (verify.Result, error) {
	uid := "evt-" + uuid.NewString()
	rc.ObjectUID = uid
	rc.ObjectPath = rc.CalendarPath + uid + ".ics"
	rc.EventStart = time.Now().UTC().Add(time.Hour).Truncate(time.Second)

	ctagBefore, err := fetchCTag(ctx, rc)
	if err != nil {
		return verify.Result{}, err
	}

	data, err := icalbody.Build(icalbody.ObjectSpec{
		UID:       uid,
		Component: ical.CompEvent,
		Summary:   "davprobe conformance event",
		Start:     rc.EventStart,
		End:       rc.EventStart.Add(30 * time.Minute),
	})
	if err != nil {
		return verify.Result{}, err
	}

	resp, err := rc.Client.DoPUT(ctx, rc.ObjectPath, httpclient.PutOptions{IfNoneMatchAny: true}, data)
	if err != nil {
		return verify.Result{}, err
	}
	if result := verify.Status(resp, http.StatusCreated, http.StatusOK, http.StatusNoContent); !result.Passed() {
		return result, nil
	}

	etag := resp.ETag()
	if etag == "" {
		// Some servers omit the ETag on PUT; ask again.
		etag, err = fetchETag(ctx, rc, rc.ObjectPath)
		if err != nil {
			return verify.Result{}, err
		}
	}
	if result := verify.Etag(etag); !result.Passed() {
		return result, nil
	}

	if err := rc.Calendar.ApplyCreate(model.Object{URL: rc.ObjectPath, ETag: etag, UID: uid}); err != nil {
		return verify.Fail("resource model", "a fresh object", err.Error()), nil
	}

	// getctag is an optional calendarserver.org extension; when the
	// server exposes one, a write must rotate it.
	ctagAfter, err := fetchCTag(ctx, rc)
	if err != nil {
		return verify.Result{}, err
	}
	if ctagBefore != "" && ctagAfter != "" && ctagBefore == ctagAfter {
		return verify.Fail("getctag", "a rotated collection tag after PUT", ctagAfter), nil
	}
	return verify.OK(), nil
}

// GET must return the stored object with the UID verbatim.
func scenarioFetch(ctx context.Context, rc *RunContext) (verify.Result, error) {
	resp, err := rc.Client.DoGET(ctx, rc.ObjectPath)
	if err != nil {
		return verify.Result{}, err
	}

	result := verify.Status(resp, http.StatusOK)
	if !result.Passed() {
		return result, nil
	}
	result = result.Merge(verify.Etag(resp.ETag()))
	result = result.Merge(verify.CalendarData(string(resp.Body), rc.ObjectUID))
	return result, nil
}

// A conditional PUT with the current ETag must succeed and change it.
func scenarioConditionalUpdate(ctx context.Context, rc *RunContext) (verify.Result, error) {
	obj, ok := rc.Calendar.Object(rc.ObjectPath)
	if !ok {
		return verify.Fail("precondition", "object created by earlier scenario", "absent"), nil
	}
	rc.StaleETag = obj.ETag

	data, err := icalbody.Build(icalbody.ObjectSpec{
		UID:       rc.ObjectUID,
		Component: ical.CompEvent,
		Summary:   "davprobe conformance event (updated)",
		Start:     rc.EventStart,
		End:       rc.EventStart.Add(time.Hour),
		Sequence:  1,
	})
	if err != nil {
		return verify.Result{}, err
	}

	resp, err := rc.Client.DoPUT(ctx, rc.ObjectPath, httpclient.PutOptions{IfMatch: obj.ETag}, data)
	if err != nil {
		return verify.Result{}, err
	}
	if result := verify.Status(resp, http.StatusOK, http.StatusNoContent, http.StatusCreated); !result.Passed() {
		return result, nil
	}

	etag := resp.ETag()
	if etag == "" {
		etag, err = fetchETag(ctx, rc, rc.ObjectPath)
		if err != nil {
			return verify.Result{}, err
		}
	}
	if result := verify.Etag(etag); !result.Passed() {
		return result, nil
	}

	if err := rc.Calendar.ApplyUpdate(model.Object{URL: rc.ObjectPath, ETag: etag, UID: rc.ObjectUID}); err != nil {
		return verify.Fail("etag change law", "a new ETag after update", err.Error()), nil
	}
	return verify.OK(), nil
}

// A PUT with a stale If-Match must be rejected with 412.
func scenarioStalePrecondition(ctx context.Context, rc *RunContext) (verify.Result, error) {
	if rc.StaleETag == "" {
		return verify.Fail("precondition", "a stale ETag from the update scenario", "absent"), nil
	}

	data, err := icalbody.Build(icalbody.ObjectSpec{
		UID:       rc.ObjectUID,
		Component: ical.CompEvent,
		Summary:   "conflicting write",
		Start:     rc.EventStart,
		Sequence:  2,
	})
	if err != nil {
		return verify.Result{}, err
	}

	resp, err := rc.Client.DoPUT(ctx, rc.ObjectPath, httpclient.PutOptions{IfMatch: rc.StaleETag}, data)
	if err != nil {
		return verify.Result{}, err
	}
	return verify.Status(resp, http.StatusPreconditionFailed), nil
}

// A time-range calendar-query must return exactly the live object.
func scenarioCalendarQuery(ctx context.Context, rc *RunContext) (verify.Result, error) {
	query := xmlbody.CalendarQueryRequest{
		Props:     objectProps,
		Component: ical.CompEvent,
		Start:     rc.EventStart.Add(-time.Hour),
		End:       rc.EventStart.Add(2 * time.Hour),
	}
	body, err := query.Encode()
	if err != nil {
		return verify.Result{}, err
	}

	resp, err := rc.Client.DoREPORT(ctx, rc.CalendarPath, 1, body)
	if err != nil {
		return verify.Result{}, err
	}
	if result := verify.Status(resp, http.StatusMultiStatus); !result.Passed() {
		return result, nil
	}

	ms, err := parseMultistatus("REPORT calendar-query", resp.Body)
	if err != nil {
		return verify.Result{}, err
	}

	result := verify.Multistatus(ms, verify.Shape{
		Require:    []string{rc.ObjectPath},
		ExactCount: 1,
		Props:      objectProps,
	})
	if found, ok := ms.FindByHref(rc.ObjectPath).Get(); ok {
		result = result.Merge(verify.CalendarData(found.CalendarData().OrElse(""), rc.ObjectUID))
	}
	return result, nil
}

// calendar-multiget must return each requested href exactly once.
func scenarioMultiget(ctx context.Context, rc *RunContext) (verify.Result, error) {
	req := xmlbody.CalendarMultigetRequest{
		Props: objectProps,
		Hrefs: []string{rc.ObjectPath},
	}
	body, err := req.Encode()
	if err != nil {
		return verify.Result{}, err
	}

	resp, err := rc.Client.DoREPORT(ctx, rc.CalendarPath, 1, body)
	if err != nil {
		return verify.Result{}, err
	}
	if result := verify.Status(resp, http.StatusMultiStatus); !result.Passed() {
		return result, nil
	}

	ms, err := parseMultistatus("REPORT calendar-multiget", resp.Body)
	if err != nil {
		return verify.Result{}, err
	}

	return verify.Multistatus(ms, verify.Shape{
		Require:    []string{rc.ObjectPath},
		ExactCount: 1,
		Props:      objectProps,
	}), nil
}

// sync-collection must report exactly the delta since a prior token,
// and issue a fresh token.
func scenarioSyncDelta(ctx context.Context, rc *RunContext) (verify.Result, error) {
	// Initial sync establishes the baseline token.
	initial := xmlbody.SyncCollectionRequest{Props: []xmlbody.PropName{xmlbody.PropGetEtag}}
	body, err := initial.Encode()
	if err != nil {
		return verify.Result{}, err
	}
	resp, err := rc.Client.DoREPORT(ctx, rc.CalendarPath, 1, body)
	if err != nil {
		return verify.Result{}, err
	}
	if result := verify.Status(resp, http.StatusMultiStatus); !result.Passed() {
		return result, nil
	}
	ms, err := parseMultistatus("REPORT sync-collection", resp.Body)
	if err != nil {
		return verify.Result{}, err
	}

	token, ok := ms.SyncToken.Get()
	if !ok || token == "" {
		return verify.Fail("sync-token", "a token on the initial sync", "absent"), nil
	}
	if err := rc.Calendar.RecordSyncToken(token); err != nil {
		return verify.Fail("sync-token", "a monotonic token", err.Error()), nil
	}
	rc.PriorSync = rc.Calendar.Snapshot().Clone()

	// Mutate the object so the prior token has a delta to report.
	obj, ok := rc.Calendar.Object(rc.ObjectPath)
	if !ok {
		return verify.Fail("precondition", "object created by earlier scenario", "absent"), nil
	}
	data, err := icalbody.Build(icalbody.ObjectSpec{
		UID:       rc.ObjectUID,
		Component: ical.CompEvent,
		Summary:   "davprobe sync delta probe",
		Start:     rc.EventStart,
		Sequence:  3,
	})
	if err != nil {
		return verify.Result{}, err
	}
	putResp, err := rc.Client.DoPUT(ctx, rc.ObjectPath, httpclient.PutOptions{IfMatch: obj.ETag}, data)
	if err != nil {
		return verify.Result{}, err
	}
	if result := verify.Status(putResp, http.StatusOK, http.StatusNoContent, http.StatusCreated); !result.Passed() {
		return result, nil
	}
	etag := putResp.ETag()
	if etag == "" {
		if etag, err = fetchETag(ctx, rc, rc.ObjectPath); err != nil {
			return verify.Result{}, err
		}
	}
	if err := rc.Calendar.ApplyUpdate(model.Object{URL: rc.ObjectPath, ETag: etag, UID: rc.ObjectUID}); err != nil {
		return verify.Fail("etag change law", "a new ETag after update", err.Error()), nil
	}

	// The prior token must now report exactly this one change.
	delta := xmlbody.SyncCollectionRequest{SyncToken: rc.PriorSync.Token, Props: []xmlbody.PropName{xmlbody.PropGetEtag}}
	if body, err = delta.Encode(); err != nil {
		return verify.Result{}, err
	}
	resp, err = rc.Client.DoREPORT(ctx, rc.CalendarPath, 1, body)
	if err != nil {
		return verify.Result{}, err
	}
	if result := verify.Status(resp, http.StatusMultiStatus); !result.Passed() {
		return result, nil
	}
	ms, err = parseMultistatus("REPORT sync-collection", resp.Body)
	if err != nil {
		return verify.Result{}, err
	}

	result := verify.SyncDelta(ms, rc.PriorSync, []string{rc.ObjectPath}, nil)
	if newToken, ok := ms.SyncToken.Get(); ok && newToken != "" {
		if err := rc.Calendar.RecordSyncToken(newToken); err != nil {
			result = result.Merge(verify.Fail("sync-token", "a monotonic token", err.Error()))
		}
	}
	return result, nil
}

// DELETE must remove the object; a second DELETE and a GET must both
// report it gone rather than erroring.
func scenarioDelete(ctx context.Context, rc *RunContext) (verify.Result, error) {
	obj, ok := rc.Calendar.Object(rc.ObjectPath)
	if !ok {
		return verify.Fail("precondition", "object created by earlier scenario", "absent"), nil
	}

	resp, err := rc.Client.DoDELETE(ctx, rc.ObjectPath, obj.ETag)
	if err != nil {
		return verify.Result{}, err
	}
	result := verify.Status(resp, http.StatusNoContent, http.StatusOK)
	if !result.Passed() {
		return result, nil
	}
	if err := rc.Calendar.ApplyDelete(rc.ObjectPath); err != nil {
		return verify.Fail("resource model", "a known object", err.Error()), nil
	}

	getResp, err := rc.Client.DoGET(ctx, rc.ObjectPath)
	if err != nil {
		return verify.Result{}, err
	}
	result = result.Merge(verify.Status(getResp, http.StatusNotFound, http.StatusGone))

	// Deleting twice is part of the probe, not a harness mistake.
	again, err := rc.Client.DoDELETE(ctx, rc.ObjectPath, "")
	if err != nil {
		return verify.Result{}, err
	}
	result = result.Merge(verify.Status(again, http.StatusNotFound, http.StatusGone))
	return result, nil
}
