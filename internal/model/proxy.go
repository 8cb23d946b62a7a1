// Package model defines shared types for the proxy.
package model

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
)

// ProxyRequest represents a client request as seen by the proxy.
type ProxyRequest struct {
	Ctx    context.Context
	Method string
	// Target is the raw request target from the request line. Origin-form
	// targets start with "/"; anything else is rejected.
	Target string
	Header *HeaderSet
	Body   io.ReadCloser
	// ContentLength is -1 when unknown, 0 when the request has no body.
	ContentLength int64
}

// Target describes where a proxied request is sent.
type Target struct {
	Scheme   string
	Hostname string
	Port     int
	// Path is the escaped path, exactly as the client sent it.
	Path     string
	RawQuery string
	Method   string
}

// defaultPorts maps schemes to the port that is left implicit in URLs.
var defaultPorts = map[string]int{"http": 80, "https": 443}

// URL renders the target as an absolute URL. The port is omitted when it is
// the scheme's default so the Host header carries the bare hostname. The
// escaped path is kept byte for byte: "%2F" stays "%2F" and nothing is
// escaped twice.
func (t Target) URL() *url.URL {
	host := t.Hostname
	if p, ok := defaultPorts[t.Scheme]; !ok || p != t.Port {
		host = net.JoinHostPort(t.Hostname, strconv.Itoa(t.Port))
	}
	u := &url.URL{
		Scheme:   t.Scheme,
		Host:     host,
		Path:     t.Path,
		RawQuery: t.RawQuery,
	}
	if unescaped, err := url.PathUnescape(t.Path); err == nil {
		u.Path = unescaped
		u.RawPath = t.Path
	}
	return u
}

// UpstreamRequest is a fully prepared request ready to be dispatched.
type UpstreamRequest struct {
	Target Target
	Header *HeaderSet
	Body   io.ReadCloser
	// ContentLength mirrors ProxyRequest.ContentLength.
	ContentLength int64
}

// ProxyResponse represents the upstream response to be streamed back.
type ProxyResponse struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser
}
