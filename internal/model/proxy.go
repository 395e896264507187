// Package model defines shared types for the proxy.
package model

import (
	"context"
	"io"
	"net/http"
)

// UpstreamRequest is a fully built outbound call to the GitHub API or OAuth endpoint.
type UpstreamRequest struct {
	Ctx    context.Context
	Route  string
	Method string
	URL    string
	Header http.Header
	Body   io.Reader
}

// UpstreamResponse is the raw upstream response. The caller closes Body.
type UpstreamResponse struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser
}

// RelayedResponse is the verified JSON payload returned to the caller as-is.
type RelayedResponse struct {
	StatusCode int
	Body       []byte
}
