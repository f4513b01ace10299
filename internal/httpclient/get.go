package httpclient

import (
	"context"
	"net/http"
)

// DoGET fetches a calendar object.
func (c *wrapper) DoGET(ctx context.Context, urlStr string) (*WireResponse, error) {
	c.logger.Debug("starting GET request", "url", urlStr)

	headers := http.Header{}
	headers.Set("Accept", "text/calendar")

	return c.execute(ctx, http.MethodGet, urlStr, headers, nil)
}
