package mockdav

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testCalendar = HomePath + "cal1/"

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	srv := New(nil)
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	return srv, ts
}

func do(t *testing.T, ts *httptest.Server, method, path, body string, headers map[string]string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, ts.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func mkCalendar(t *testing.T, ts *httptest.Server) {
	t.Helper()
	resp := do(t, ts, "MKCALENDAR", testCalendar, "", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestMkcalendarOutsideHomeRefused(t *testing.T) {
	_, ts := newTestServer(t)
	resp := do(t, ts, "MKCALENDAR", "/elsewhere/cal/", "", nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestMkcalendarTwiceRefused(t *testing.T) {
	_, ts := newTestServer(t)
	mkCalendar(t, ts)
	resp := do(t, ts, "MKCALENDAR", testCalendar, "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestPutPreconditions(t *testing.T) {
	_, ts := newTestServer(t)
	mkCalendar(t, ts)
	path := testCalendar + "a.ics"

	created := do(t, ts, http.MethodPut, path, "BEGIN:VCALENDAR\r\nEND:VCALENDAR\r\n", map[string]string{"If-None-Match": "*"})
	require.Equal(t, http.StatusCreated, created.StatusCode)
	etag := created.Header.Get("ETag")
	require.NotEmpty(t, etag)

	// Creating again with If-None-Match: * must fail.
	again := do(t, ts, http.MethodPut, path, "x", map[string]string{"If-None-Match": "*"})
	assert.Equal(t, http.StatusPreconditionFailed, again.StatusCode)

	// Updating with the wrong ETag must fail.
	wrong := do(t, ts, http.MethodPut, path, "x", map[string]string{"If-Match": `"nope"`})
	assert.Equal(t, http.StatusPreconditionFailed, wrong.StatusCode)

	// Updating with the right ETag succeeds and rotates the ETag.
	updated := do(t, ts, http.MethodPut, path, "BEGIN:VCALENDAR\r\nX:1\r\nEND:VCALENDAR\r\n", map[string]string{"If-Match": etag})
	assert.Equal(t, http.StatusNoContent, updated.StatusCode)
	assert.NotEqual(t, etag, updated.Header.Get("ETag"))
}

func TestDeleteCalendarRemovesIt(t *testing.T) {
	srv, ts := newTestServer(t)
	mkCalendar(t, ts)
	require.Equal(t, 1, srv.CalendarCount())

	resp := do(t, ts, http.MethodDelete, testCalendar, "", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Zero(t, srv.CalendarCount())
}

func TestSyncTokenAdvancesPerChange(t *testing.T) {
	srv, ts := newTestServer(t)
	mkCalendar(t, ts)

	token := func() string {
		srv.store.mu.RLock()
		defer srv.store.mu.RUnlock()
		return srv.store.calendars[testCalendar].syncToken()
	}
	first := token()

	put := do(t, ts, http.MethodPut, testCalendar+"a.ics", "BEGIN:VCALENDAR\r\nEND:VCALENDAR\r\n", nil)
	require.Equal(t, http.StatusCreated, put.StatusCode)

	second := token()
	assert.NotEqual(t, first, second)

	seq, ok := parseSyncToken(second)
	require.True(t, ok)
	assert.Equal(t, 1, seq)

	_, ok = parseSyncToken("http://other.example/sync/1")
	assert.False(t, ok)
}

func TestBasicAuthEnforced(t *testing.T) {
	srv, ts := newTestServer(t)
	srv.Username = "probe"
	srv.Password = "secret"

	resp := do(t, ts, "PROPFIND", HomePath, "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, err := http.NewRequest("PROPFIND", ts.URL+HomePath, nil)
	require.NoError(t, err)
	req.SetBasicAuth("probe", "secret")
	authed, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer authed.Body.Close()
	assert.Equal(t, http.StatusMultiStatus, authed.StatusCode)
}
