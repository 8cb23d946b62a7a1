package service

import (
	"fmt"
	"path"
	"strings"

	"subdomain-proxy-go/internal/model"
)

// Upstream scheme and port are deployment constants. They are never taken
// from the request.
const (
	UpstreamScheme = "https"
	UpstreamPort   = 443
)

// ResolveTarget derives the upstream target from a request path: the first
// path segment becomes the subdomain of baseDomain and the rest becomes the
// upstream path. A query string, if any, is carried through unchanged.
func ResolveTarget(rawPath, baseDomain string) (model.Target, error) {
	if !strings.HasPrefix(rawPath, "/") {
		return model.Target{}, fmt.Errorf("%w: %q", ErrInvalidPath, rawPath)
	}

	p, rawQuery, _ := strings.Cut(rawPath, "?")
	key, rest := splitRoutingKey(normalizePath(p))
	if key == "" {
		return model.Target{}, ErrNoRoutingKey
	}

	return model.Target{
		Scheme:   UpstreamScheme,
		Hostname: key + "." + baseDomain,
		Port:     UpstreamPort,
		Path:     rest,
		RawQuery: rawQuery,
	}, nil
}

// normalizePath collapses "." and ".." segments and duplicate slashes.
// ".." never climbs above the root.
func normalizePath(p string) string {
	return path.Clean("/" + p)
}

// splitRoutingKey splits a normalized path into its first segment and the
// remainder, which is "/" when nothing follows the key.
func splitRoutingKey(clean string) (key, rest string) {
	key, rest, _ = strings.Cut(strings.TrimPrefix(clean, "/"), "/")
	return key, "/" + rest
}
