package httpclient

import (
	"context"
	"fmt"
	"net/http"

	"github.com/davprobe/davprobe/internal/xmlbody"
)

// DoMKCALENDAR creates a calendar collection at the given URL.
func (c *wrapper) DoMKCALENDAR(ctx context.Context, urlStr string, req *xmlbody.MkcalendarRequest) (*WireResponse, error) {
	c.logger.Debug("starting MKCALENDAR request",
		"url", urlStr,
		"display_name", req.DisplayName)

	body, err := req.Encode()
	if err != nil {
		return nil, fmt.Errorf("failed to build MKCALENDAR body: %w", err)
	}

	headers := http.Header{}
	headers.Set("Content-Type", "application/xml; charset=utf-8")

	return c.execute(ctx, "MKCALENDAR", urlStr, headers, body)
}
