package service

import (
	"context"
	"errors"
	"net"
	"net/url"
	"os"
)

var (
	// ErrInvalidPath is returned for request targets that are not origin-form.
	ErrInvalidPath = errors.New("request path must start with '/'")
	// ErrNoRoutingKey is returned when the normalized path has no first segment.
	ErrNoRoutingKey = errors.New("request path has no routing key")
	// ErrUpgradeRejected is returned for protocol upgrade and tunnel requests.
	ErrUpgradeRejected = errors.New("protocol upgrades are not proxied")
	// ErrUnauthorized is returned when a required header is missing or wrong.
	ErrUnauthorized = errors.New("required header missing or mismatched")
)

// UpstreamErrorKind returns a bounded label describing an upstream transport
// error, for logs and metrics. Every kind maps to 502 for the client.
func UpstreamErrorKind(err error) string {
	switch {
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, os.ErrDeadlineExceeded):
		return "timeout"
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return "dns"
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return "connection"
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if urlErr.Timeout() {
			return "timeout"
		}
		return "connection"
	}
	return "other"
}
