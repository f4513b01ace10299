// Package httpclient wraps http.Client with the WebDAV and CalDAV
// extension methods the probe needs, plus authentication, bounded
// retry of transient network failures, and debug logging.
package httpclient

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/davprobe/davprobe/internal/xmlbody"
)

// PutOptions control the conditional headers of a PUT request.
type PutOptions struct {
	// IfMatch makes the PUT conditional on the current ETag.
	IfMatch string
	// IfNoneMatchAny asserts the resource must not exist yet
	// (If-None-Match: *), used when creating objects.
	IfNoneMatchAny bool
}

// WireResponse is the raw outcome of one HTTP exchange. Response
// validation happens elsewhere; the client never treats an error
// status as a Go error.
type WireResponse struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// ETag returns the ETag response header, empty if absent.
func (r *WireResponse) ETag() string {
	return r.Header.Get("Etag")
}

// Wrapper wraps http.Client with CalDAV-specific functionality
type Wrapper interface {
	DoOPTIONS(ctx context.Context, url string) (*WireResponse, error)
	DoPROPFIND(ctx context.Context, url string, depth int, req *xmlbody.PropfindRequest) (*WireResponse, error)
	DoREPORT(ctx context.Context, url string, depth int, body []byte) (*WireResponse, error)
	DoGET(ctx context.Context, url string) (*WireResponse, error)
	DoPUT(ctx context.Context, url string, opts PutOptions, data []byte) (*WireResponse, error)
	DoDELETE(ctx context.Context, url string, ifMatch string) (*WireResponse, error)
	DoMKCALENDAR(ctx context.Context, url string, req *xmlbody.MkcalendarRequest) (*WireResponse, error)
}

// Config configures a Wrapper.
type Config struct {
	BaseURL url.URL

	Username string
	Password string
	// DigestAuth switches Username/Password from basic to digest
	// authentication.
	DigestAuth bool
	// BearerToken takes precedence over Username/Password when set.
	BearerToken string

	// InsecureTLS disables certificate verification.
	InsecureTLS bool
	// Timeout bounds each HTTP exchange. Zero means 30 seconds.
	Timeout time.Duration
	// RetryMax bounds retries of transient network failures. HTTP
	// error statuses are never retried.
	RetryMax int

	Logger *slog.Logger
}

type wrapper struct {
	client  *http.Client
	baseURL url.URL
	logger  *slog.Logger
}

// NewWrapper creates a client wrapper from the given configuration.
func NewWrapper(cfg Config) (Wrapper, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	inner := http.DefaultTransport
	if cfg.InsecureTLS {
		t := http.DefaultTransport.(*http.Transport).Clone()
		t.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
		inner = t
	}

	var transport http.RoundTripper
	switch {
	case cfg.BearerToken != "":
		transport = NewBearerAuthTransport(cfg.BearerToken, inner, logger)
	case cfg.Username != "" && cfg.DigestAuth:
		transport = NewDigestAuthTransport(cfg.Username, cfg.Password, inner, logger)
	case cfg.Username != "":
		transport = NewBasicAuthTransport(cfg.Username, cfg.Password, inner, logger)
	default:
		transport = inner
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = cfg.RetryMax
	rc.RetryWaitMin = 100 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	rc.Logger = nil
	rc.HTTPClient = &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
	// Only network-level failures are transient. A 4xx/5xx is a probe
	// result, not something to retry away.
	rc.CheckRetry = func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return err != nil, nil
	}

	return &wrapper{
		client:  rc.StandardClient(),
		baseURL: cfg.BaseURL,
		logger:  logger,
	}, nil
}

// resolveURL resolves a URL string against the base URL
func (c *wrapper) resolveURL(urlStr string) (*url.URL, error) {
	ref, err := url.Parse(urlStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL %q: %w", urlStr, err)
	}
	return c.baseURL.ResolveReference(ref), nil
}

// execute performs one HTTP exchange and drains the response. A
// network failure comes back as a *TransportError; any HTTP status is
// a successful exchange from the transport's point of view.
func (c *wrapper) execute(ctx context.Context, method, urlStr string, headers http.Header, body []byte) (*WireResponse, error) {
	resolvedURL, err := c.resolveURL(urlStr)
	if err != nil {
		return nil, err
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, resolvedURL.String(), reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s request: %w", method, err)
	}
	for key, values := range headers {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("request failed", "method", method, "url", resolvedURL.String(), "error", err)
		return nil, &TransportError{Op: method, URL: resolvedURL.String(), Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Op: method, URL: resolvedURL.String(), Err: err}
	}

	c.logger.Debug("exchange complete",
		"method", method,
		"url", resolvedURL.String(),
		"status", resp.Status,
		"body_length", len(respBody))

	return &WireResponse{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       respBody,
	}, nil
}
