package httpclient

import (
	"crypto/md5"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
)

// DigestAuthTransport implements http.RoundTripper and answers HTTP
// digest challenges (RFC 7616, MD5). The first request costs an extra
// round trip to collect the challenge; once a challenge is cached the
// Authorization header is computed up front.
type DigestAuthTransport struct {
	Username  string
	Password  string
	Transport http.RoundTripper
	Logger    *slog.Logger

	mu        sync.Mutex
	challenge *digestChallenge
	nc        int
}

// NewDigestAuthTransport creates a new DigestAuthTransport with the
// given credentials and optional underlying transport. If transport is
// nil, http.DefaultTransport will be used.
func NewDigestAuthTransport(username, password string, transport http.RoundTripper, logger *slog.Logger) *DigestAuthTransport {
	if transport == nil {
		transport = http.DefaultTransport
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &DigestAuthTransport{
		Username:  username,
		Password:  password,
		Transport: transport,
		Logger:    logger,
	}
}

// RoundTrip implements the http.RoundTripper interface. On a 401 with
// a digest challenge it computes the Authorization header and replays
// the request once; the challenge is cached for later requests.
func (t *DigestAuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	logExchangeRequest(t.Logger, req)

	if t.Username == "" {
		return nil, errors.New("digest auth username cannot be empty")
	}
	if t.Password == "" {
		return nil, errors.New("digest auth password cannot be empty")
	}
	if t.Transport == nil {
		return nil, errors.New("transport cannot be nil")
	}

	t.mu.Lock()
	if t.challenge != nil {
		req.Header.Set("Authorization", t.authorizationLocked(req.Method, req.URL.RequestURI()))
	}
	t.mu.Unlock()

	resp, err := t.Transport.RoundTrip(req)
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		logExchangeResponse(req.Context(), t.Logger, resp, err)
		return resp, err
	}

	challenge := parseDigestChallenge(resp.Header.Values("Www-Authenticate"))
	if challenge == nil {
		logExchangeResponse(req.Context(), t.Logger, resp, err)
		return resp, nil
	}

	retry, err := replayableRequest(req)
	if err != nil {
		// The body cannot be replayed; hand the 401 back unchanged.
		logExchangeResponse(req.Context(), t.Logger, resp, nil)
		return resp, nil
	}

	// Drain the challenge response so the connection can be reused.
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	t.mu.Lock()
	t.challenge = challenge
	t.nc = 0
	retry.Header.Set("Authorization", t.authorizationLocked(retry.Method, retry.URL.RequestURI()))
	t.mu.Unlock()

	resp, err = t.Transport.RoundTrip(retry)
	logExchangeResponse(req.Context(), t.Logger, resp, err)
	return resp, err
}

// replayableRequest clones the request with a fresh body.
func replayableRequest(req *http.Request) (*http.Request, error) {
	retry := req.Clone(req.Context())
	if req.Body == nil {
		return retry, nil
	}
	if req.GetBody == nil {
		return nil, errors.New("request body cannot be replayed")
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, err
	}
	retry.Body = body
	return retry, nil
}

// digestChallenge holds the parameters of a WWW-Authenticate digest
// challenge.
type digestChallenge struct {
	Realm     string
	Nonce     string
	Opaque    string
	Qop       string
	Algorithm string
}

// parseDigestChallenge extracts a digest challenge from the
// WWW-Authenticate header values. Returns nil when no digest
// challenge is present.
func parseDigestChallenge(headers []string) *digestChallenge {
	for _, header := range headers {
		if !strings.HasPrefix(header, "Digest ") {
			continue
		}
		challenge := &digestChallenge{Algorithm: "MD5"}
		for key, value := range digestParams(strings.TrimPrefix(header, "Digest ")) {
			switch key {
			case "realm":
				challenge.Realm = value
			case "nonce":
				challenge.Nonce = value
			case "opaque":
				challenge.Opaque = value
			case "qop":
				challenge.Qop = value
			case "algorithm":
				challenge.Algorithm = value
			}
		}
		if challenge.Nonce != "" {
			return challenge
		}
	}
	return nil
}

// digestParams splits a comma-separated list of key=value pairs,
// unquoting quoted values. Commas inside quotes (a qop list) do not
// split.
func digestParams(list string) map[string]string {
	params := make(map[string]string)
	for _, pair := range splitParams(list) {
		key, value, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok {
			continue
		}
		params[strings.ToLower(key)] = strings.Trim(value, `"`)
	}
	return params
}

func splitParams(list string) []string {
	var parts []string
	var current strings.Builder
	inQuotes := false
	for _, r := range list {
		switch {
		case r == '"':
			inQuotes = !inQuotes
			current.WriteRune(r)
		case r == ',' && !inQuotes:
			parts = append(parts, current.String())
			current.Reset()
		default:
			current.WriteRune(r)
		}
	}
	return append(parts, current.String())
}

// authorizationLocked computes the Authorization header for the cached
// challenge. Caller holds t.mu.
func (t *DigestAuthTransport) authorizationLocked(method, uri string) string {
	ch := t.challenge
	ha1 := md5Hex(t.Username + ":" + ch.Realm + ":" + t.Password)
	ha2 := md5Hex(method + ":" + uri)

	fields := []string{
		fmt.Sprintf("username=%q", t.Username),
		fmt.Sprintf("realm=%q", ch.Realm),
		fmt.Sprintf("nonce=%q", ch.Nonce),
		fmt.Sprintf("uri=%q", uri),
	}

	var response string
	if qopAuth(ch.Qop) {
		t.nc++
		nc := fmt.Sprintf("%08x", t.nc)
		cnonce := newCnonce()
		response = md5Hex(strings.Join([]string{ha1, ch.Nonce, nc, cnonce, "auth", ha2}, ":"))
		fields = append(fields,
			"qop=auth",
			"nc="+nc,
			fmt.Sprintf("cnonce=%q", cnonce))
	} else {
		response = md5Hex(ha1 + ":" + ch.Nonce + ":" + ha2)
	}
	fields = append(fields, fmt.Sprintf("response=%q", response), "algorithm="+ch.Algorithm)
	if ch.Opaque != "" {
		fields = append(fields, fmt.Sprintf("opaque=%q", ch.Opaque))
	}
	return "Digest " + strings.Join(fields, ", ")
}

// qopAuth reports whether the challenge's qop list offers "auth".
func qopAuth(qop string) bool {
	for _, option := range strings.Split(qop, ",") {
		if strings.TrimSpace(option) == "auth" {
			return true
		}
	}
	return false
}

func md5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

func newCnonce() string {
	buf := make([]byte, 8)
	rand.Read(buf)
	return hex.EncodeToString(buf)
}
