package httpclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davprobe/davprobe/internal/xmlbody"
)

func newTestWrapper(t *testing.T, server *httptest.Server) Wrapper {
	t.Helper()
	base, err := url.Parse(server.URL)
	require.NoError(t, err)

	w, err := NewWrapper(Config{
		BaseURL:  *base,
		Username: "probe",
		Password: "secret",
	})
	require.NoError(t, err)
	return w
}

func TestDoPROPFIND_Headers(t *testing.T) {
	var gotMethod, gotDepth, gotContentType, gotAuth string
	var gotBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotDepth = r.Header.Get("Depth")
		gotContentType = r.Header.Get("Content-Type")
		gotAuth = r.Header.Get("Authorization")
		buf := make([]byte, r.ContentLength)
		r.Body.Read(buf)
		gotBody = buf
		w.WriteHeader(http.StatusMultiStatus)
		w.Write([]byte(`<?xml version="1.0"?><D:multistatus xmlns:D="DAV:"/>`))
	}))
	defer server.Close()

	wrapper := newTestWrapper(t, server)
	resp, err := wrapper.DoPROPFIND(context.Background(), "/cal/", 1, &xmlbody.PropfindRequest{
		Props: []xmlbody.PropName{xmlbody.PropGetEtag},
	})
	require.NoError(t, err)

	assert.Equal(t, http.StatusMultiStatus, resp.StatusCode)
	assert.Equal(t, "PROPFIND", gotMethod)
	assert.Equal(t, "1", gotDepth)
	assert.Contains(t, gotContentType, "application/xml")
	assert.NotEmpty(t, gotAuth, "basic auth header should be set")
	assert.Contains(t, string(gotBody), "getetag")
}

func TestDoPUT_ConditionalHeaders(t *testing.T) {
	var gotIfMatch, gotIfNoneMatch string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotIfMatch = r.Header.Get("If-Match")
		gotIfNoneMatch = r.Header.Get("If-None-Match")
		w.Header().Set("ETag", `"v1"`)
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	wrapper := newTestWrapper(t, server)

	resp, err := wrapper.DoPUT(context.Background(), "/cal/obj.ics", PutOptions{IfNoneMatchAny: true}, []byte("BEGIN:VCALENDAR\r\nEND:VCALENDAR\r\n"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, `"v1"`, resp.ETag())
	assert.Equal(t, "*", gotIfNoneMatch)
	assert.Empty(t, gotIfMatch)

	_, err = wrapper.DoPUT(context.Background(), "/cal/obj.ics", PutOptions{IfMatch: `"v1"`}, []byte("data"))
	require.NoError(t, err)
	assert.Equal(t, `"v1"`, gotIfMatch)
	assert.Empty(t, gotIfNoneMatch)
}

// An HTTP error status is a result, not a transport failure.
func TestErrorStatusIsNotTransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPreconditionFailed)
	}))
	defer server.Close()

	wrapper := newTestWrapper(t, server)
	resp, err := wrapper.DoDELETE(context.Background(), "/cal/obj.ics", `"stale"`)
	require.NoError(t, err)
	assert.Equal(t, http.StatusPreconditionFailed, resp.StatusCode)
}

func TestNetworkFailureIsTransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // nothing listening any more

	base, err := url.Parse(server.URL)
	require.NoError(t, err)
	wrapper, err := NewWrapper(Config{BaseURL: *base, Username: "probe", Password: "secret"})
	require.NoError(t, err)

	_, err = wrapper.DoGET(context.Background(), "/cal/obj.ics")
	require.Error(t, err)
	assert.True(t, IsTransportError(err), "expected TransportError, got %v", err)
}

func TestServerErrorIsNotRetried(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	base, err := url.Parse(server.URL)
	require.NoError(t, err)
	wrapper, err := NewWrapper(Config{
		BaseURL:  *base,
		Username: "probe",
		Password: "secret",
		RetryMax: 3,
	})
	require.NoError(t, err)

	resp, err := wrapper.DoGET(context.Background(), "/cal/obj.ics")
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, 1, calls, "5xx must not be retried")
}

func TestDAVFeatures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("DAV", "1, 3, calendar-access")
		w.Header().Add("DAV", "extended-mkcol")
		w.Header().Set("Allow", "OPTIONS, GET, PUT, DELETE, PROPFIND, REPORT, MKCALENDAR")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	wrapper := newTestWrapper(t, server)
	resp, err := wrapper.DoOPTIONS(context.Background(), "/cal/")
	require.NoError(t, err)

	assert.Equal(t, []string{"1", "3", "calendar-access", "extended-mkcol"}, resp.DAVFeatures())
	assert.Contains(t, resp.AllowedMethods(), "MKCALENDAR")
	assert.Contains(t, resp.AllowedMethods(), "REPORT")
}

func TestResolveURLAgainstBase(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	wrapper := newTestWrapper(t, server)
	_, err := wrapper.DoGET(context.Background(), "/calendars/probe/evt.ics")
	require.NoError(t, err)
	assert.Equal(t, "/calendars/probe/evt.ics", gotPath)
}
