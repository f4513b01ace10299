package httpclient

import (
	"context"
	"net/http"
	"strings"
)

// DoOPTIONS asks the server which methods and DAV compliance classes
// it supports at the given URL.
func (c *wrapper) DoOPTIONS(ctx context.Context, urlStr string) (*WireResponse, error) {
	c.logger.Debug("starting OPTIONS request", "url", urlStr)
	return c.execute(ctx, http.MethodOptions, urlStr, nil, nil)
}

// DAVFeatures splits the DAV compliance header of an OPTIONS response
// into its individual tokens (e.g. "1", "3", "calendar-access").
func (r *WireResponse) DAVFeatures() []string {
	var features []string
	for _, value := range r.Header.Values("Dav") {
		for _, token := range strings.Split(value, ",") {
			token = strings.TrimSpace(token)
			if token != "" {
				features = append(features, token)
			}
		}
	}
	return features
}

// AllowedMethods splits the Allow header of an OPTIONS response.
func (r *WireResponse) AllowedMethods() []string {
	var methods []string
	for _, value := range r.Header.Values("Allow") {
		for _, token := range strings.Split(value, ",") {
			token = strings.TrimSpace(token)
			if token != "" {
				methods = append(methods, token)
			}
		}
	}
	return methods
}
