package httpclient

import (
	"context"
	"net/http"
)

// DoPUT uploads a calendar object. Conditional headers come from opts:
// If-Match for updates with optimistic locking, If-None-Match: * for
// creations that must not overwrite.
func (c *wrapper) DoPUT(ctx context.Context, urlStr string, opts PutOptions, data []byte) (*WireResponse, error) {
	c.logger.Debug("starting PUT request",
		"url", urlStr,
		"if_match", opts.IfMatch,
		"if_none_match_any", opts.IfNoneMatchAny,
		"data_length", len(data))

	headers := http.Header{}
	headers.Set("Content-Type", "text/calendar; charset=utf-8")
	if opts.IfMatch != "" {
		headers.Set("If-Match", opts.IfMatch)
	}
	if opts.IfNoneMatchAny {
		headers.Set("If-None-Match", "*")
	}

	return c.execute(ctx, http.MethodPut, urlStr, headers, data)
}
