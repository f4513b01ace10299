package httpclient

import (
	"context"
	"fmt"
	"net/http"

	"github.com/davprobe/davprobe/internal/xmlbody"
)

// DoPROPFIND performs a PROPFIND request at the given depth (0 or 1).
func (c *wrapper) DoPROPFIND(ctx context.Context, urlStr string, depth int, req *xmlbody.PropfindRequest) (*WireResponse, error) {
	c.logger.Debug("starting PROPFIND request",
		"url", urlStr,
		"depth", depth,
		"properties", len(req.Props))

	body, err := req.Encode()
	if err != nil {
		return nil, fmt.Errorf("failed to build PROPFIND body: %w", err)
	}

	headers := http.Header{}
	headers.Set("Depth", fmt.Sprintf("%d", depth))
	headers.Set("Content-Type", "application/xml; charset=utf-8")

	return c.execute(ctx, "PROPFIND", urlStr, headers, body)
}
