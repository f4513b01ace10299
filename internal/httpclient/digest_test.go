package httpclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davprobe/davprobe/internal/xmlbody"
)

const (
	digestRealm  = "caldav tests"
	digestNonce  = "4044a2ffa7693f2c"
	digestOpaque = "5ccc069c403ebaf9"
)

// newDigestServer verifies digest authorization the way a CalDAV
// server would: challenge anonymous requests, recompute the response
// hash for authorized ones.
func newDigestServer(t *testing.T, challenges *int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Digest ") {
			*challenges++
			w.Header().Set("WWW-Authenticate",
				`Digest realm="`+digestRealm+`", nonce="`+digestNonce+`", opaque="`+digestOpaque+`", qop="auth", algorithm=MD5`)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		params := digestParams(strings.TrimPrefix(auth, "Digest "))
		ha1 := md5Hex("probe:" + digestRealm + ":secret")
		ha2 := md5Hex(r.Method + ":" + params["uri"])
		want := md5Hex(strings.Join(
			[]string{ha1, digestNonce, params["nc"], params["cnonce"], "auth", ha2}, ":"))
		if params["response"] != want || params["opaque"] != digestOpaque || params["username"] != "probe" {
			w.WriteHeader(http.StatusForbidden)
			return
		}

		w.Header().Set("Content-Type", "application/xml; charset=utf-8")
		w.WriteHeader(http.StatusMultiStatus)
		w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?><D:multistatus xmlns:D="DAV:"/>`))
	}))
}

func newDigestWrapper(t *testing.T, server *httptest.Server) Wrapper {
	t.Helper()
	base, err := url.Parse(server.URL)
	require.NoError(t, err)

	w, err := NewWrapper(Config{
		BaseURL:    *base,
		Username:   "probe",
		Password:   "secret",
		DigestAuth: true,
		Timeout:    5 * time.Second,
	})
	require.NoError(t, err)
	return w
}

func TestDigestAuthAnswersChallenge(t *testing.T) {
	var challenges int
	server := newDigestServer(t, &challenges)
	defer server.Close()

	w := newDigestWrapper(t, server)
	resp, err := w.DoPROPFIND(context.Background(), "/calendars/probe/", 0, &xmlbody.PropfindRequest{
		Props: []xmlbody.PropName{xmlbody.PropResourcetype},
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusMultiStatus, resp.StatusCode)
	assert.Equal(t, 1, challenges)
}

func TestDigestAuthReusesChallenge(t *testing.T) {
	var challenges int
	server := newDigestServer(t, &challenges)
	defer server.Close()

	w := newDigestWrapper(t, server)
	for i := 0; i < 3; i++ {
		resp, err := w.DoGET(context.Background(), "/calendars/probe/a.ics")
		require.NoError(t, err)
		assert.Equal(t, http.StatusMultiStatus, resp.StatusCode)
	}
	// Only the very first request pays the challenge round trip.
	assert.Equal(t, 1, challenges)
}

func TestDigestAuthLeavesOtherChallengesAlone(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("WWW-Authenticate", `Basic realm="elsewhere"`)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	w := newDigestWrapper(t, server)
	resp, err := w.DoGET(context.Background(), "/calendars/probe/a.ics")
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestParseDigestChallenge(t *testing.T) {
	tests := []struct {
		name    string
		headers []string
		want    *digestChallenge
	}{
		{
			name:    "no digest challenge",
			headers: []string{`Basic realm="x"`},
			want:    nil,
		},
		{
			name:    "missing nonce",
			headers: []string{`Digest realm="x"`},
			want:    nil,
		},
		{
			name:    "full challenge",
			headers: []string{`Digest realm="r", nonce="n", opaque="o", qop="auth,auth-int", algorithm=MD5`},
			want:    &digestChallenge{Realm: "r", Nonce: "n", Opaque: "o", Qop: "auth,auth-int", Algorithm: "MD5"},
		},
		{
			name:    "digest after basic",
			headers: []string{`Basic realm="x"`, `Digest realm="r", nonce="n"`},
			want:    &digestChallenge{Realm: "r", Nonce: "n", Algorithm: "MD5"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, parseDigestChallenge(tc.headers))
		})
	}
}

func TestDigestAuthorizationWithoutQop(t *testing.T) {
	transport := NewDigestAuthTransport("probe", "secret", nil, nil)
	transport.challenge = &digestChallenge{Realm: "r", Nonce: "n", Algorithm: "MD5"}

	auth := transport.authorizationLocked(http.MethodGet, "/a.ics")
	assert.Contains(t, auth, `username="probe"`)
	assert.Contains(t, auth, `uri="/a.ics"`)
	assert.NotContains(t, auth, "qop=")

	ha1 := md5Hex("probe:r:secret")
	ha2 := md5Hex("GET:/a.ics")
	assert.Contains(t, auth, `response="`+md5Hex(ha1+":n:"+ha2)+`"`)
}
