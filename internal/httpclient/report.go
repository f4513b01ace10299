package httpclient

import (
	"context"
	"fmt"
	"net/http"
)

// DoREPORT executes a CalDAV REPORT request with a prebuilt XML body
// (calendar-query, calendar-multiget or sync-collection).
func (c *wrapper) DoREPORT(ctx context.Context, urlStr string, depth int, body []byte) (*WireResponse, error) {
	c.logger.Debug("starting REPORT request",
		"url", urlStr,
		"depth", depth,
		"body_length", len(body))

	headers := http.Header{}
	headers.Set("Depth", fmt.Sprintf("%d", depth))
	headers.Set("Content-Type", "application/xml; charset=utf-8")

	return c.execute(ctx, "REPORT", urlStr, headers, body)
}
