package httpclient

import (
	"context"
	"net/http"
)

// DoDELETE sends a DELETE request with an optional If-Match header for
// optimistic locking.
func (c *wrapper) DoDELETE(ctx context.Context, urlStr string, ifMatch string) (*WireResponse, error) {
	c.logger.Debug("starting DELETE request",
		"url", urlStr,
		"if_match", ifMatch)

	headers := http.Header{}
	if ifMatch != "" {
		headers.Set("If-Match", ifMatch)
	}

	return c.execute(ctx, http.MethodDelete, urlStr, headers, nil)
}
