package httpclient

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
)

// BasicAuthTransport implements http.RoundTripper and adds Basic Auth
// authentication to outgoing requests.
type BasicAuthTransport struct {
	Username  string
	Password  string
	Transport http.RoundTripper
	Logger    *slog.Logger
}

// NewBasicAuthTransport creates a new BasicAuthTransport with the given
// credentials and optional underlying transport. If transport is nil,
// http.DefaultTransport will be used.
func NewBasicAuthTransport(username, password string, transport http.RoundTripper, logger *slog.Logger) *BasicAuthTransport {
	if transport == nil {
		transport = http.DefaultTransport
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &BasicAuthTransport{
		Username:  username,
		Password:  password,
		Transport: transport,
		Logger:    logger,
	}
}

// RoundTrip implements the http.RoundTripper interface. It adds Basic Auth
// credentials to the request and delegates to the underlying transport.
func (t *BasicAuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	logExchangeRequest(t.Logger, req)

	if t.Username == "" {
		return nil, errors.New("basic auth username cannot be empty")
	}
	if t.Password == "" {
		return nil, errors.New("basic auth password cannot be empty")
	}
	if t.Transport == nil {
		return nil, errors.New("transport cannot be nil")
	}
	req.SetBasicAuth(t.Username, t.Password)
	resp, err := t.Transport.RoundTrip(req)
	logExchangeResponse(req.Context(), t.Logger, resp, err)
	return resp, err
}

// BearerAuthTransport implements http.RoundTripper and adds a Bearer
// token to outgoing requests.
type BearerAuthTransport struct {
	Token     string
	Transport http.RoundTripper
	Logger    *slog.Logger
}

// NewBearerAuthTransport creates a new BearerAuthTransport with the
// given token. If transport is nil, http.DefaultTransport will be used.
func NewBearerAuthTransport(token string, transport http.RoundTripper, logger *slog.Logger) *BearerAuthTransport {
	if transport == nil {
		transport = http.DefaultTransport
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &BearerAuthTransport{
		Token:     token,
		Transport: transport,
		Logger:    logger,
	}
}

// RoundTrip implements the http.RoundTripper interface.
func (t *BearerAuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	logExchangeRequest(t.Logger, req)

	if t.Token == "" {
		return nil, errors.New("bearer token cannot be empty")
	}
	if t.Transport == nil {
		return nil, errors.New("transport cannot be nil")
	}
	req.Header.Set("Authorization", "Bearer "+t.Token)
	resp, err := t.Transport.RoundTrip(req)
	logExchangeResponse(req.Context(), t.Logger, resp, err)
	return resp, err
}

func logExchangeRequest(logger *slog.Logger, req *http.Request) {
	if !logger.Enabled(req.Context(), slog.LevelDebug) {
		return
	}

	reqBody := ""
	if req.Body != nil {
		bodyBytes, err := io.ReadAll(req.Body)
		if err == nil {
			reqBody = string(bodyBytes)
			req.Body = io.NopCloser(bytes.NewBuffer(bodyBytes)) // Reset the body
		}
	}

	logger.Debug("outgoing request",
		"method", req.Method,
		"url", req.URL.String(),
		"headers", req.Header,
		"body", reqBody)
}

func logExchangeResponse(ctx context.Context, logger *slog.Logger, resp *http.Response, err error) {
	if err != nil || resp == nil {
		return
	}
	if !logger.Enabled(ctx, slog.LevelDebug) {
		return
	}

	respBody := ""
	if resp.Body != nil {
		bodyBytes, err := io.ReadAll(resp.Body)
		if err == nil {
			respBody = string(bodyBytes)
			resp.Body = io.NopCloser(bytes.NewBuffer(bodyBytes)) // Reset the body
		}
	}

	logger.Debug("incoming response",
		"status", resp.Status,
		"headers", resp.Header,
		"body", respBody)
}
