// Package model defines the outbound request and response descriptors shared
// by the proxy pipeline and the upstream client.
package model

import (
	"net/http"
	"net/url"
)

// OutboundRequest describes the request sent to the remote target.
// It is built incrementally by the pipeline before dispatch.
type OutboundRequest struct {
	Method string
	URL    *url.URL
	Header http.Header
	// Host overrides the Host header. Empty means the target's own host.
	Host string
	// Body is nil when no body is forwarded.
	Body []byte
	// ParsedBody holds the decoded JSON value or url.Values when the inbound
	// body was parsed before re-serialization.
	ParsedBody any
}

// Clone returns a deep copy of the descriptor. ParsedBody is shared.
func (r *OutboundRequest) Clone() *OutboundRequest {
	out := *r
	if r.URL != nil {
		u := *r.URL
		out.URL = &u
	}
	out.Header = r.Header.Clone()
	if r.Body != nil {
		out.Body = append([]byte(nil), r.Body...)
	}
	return &out
}

// OutboundResponse is the fully buffered upstream response.
type OutboundResponse struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}
