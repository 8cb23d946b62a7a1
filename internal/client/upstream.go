// Package client provides the HTTP client used to reach upstream hosts.
package client

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"subdomain-proxy-go/internal/config"
	"subdomain-proxy-go/internal/metrics"
	"subdomain-proxy-go/internal/model"
)

// framingHeaders are carried by http.Request fields rather than the header map.
var framingHeaders = []string{"Host", "Content-Length", "Transfer-Encoding"}

// UpstreamClient sends proxied requests to upstream hosts.
type UpstreamClient struct {
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewUpstreamClient creates an UpstreamClient with connection pooling.
// The metrics parameter is optional; pass nil to disable upstream metrics recording.
func NewUpstreamClient(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *UpstreamClient {
	transport := &http.Transport{
		MaxIdleConns:        cfg.Upstream.IdleConnections,
		MaxIdleConnsPerHost: cfg.Upstream.IdleConnections,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		// Bodies are relayed byte for byte; never negotiate or decode gzip.
		DisableCompression: true,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}
	if cfg.Upstream.TimeoutSeconds > 0 {
		transport.ResponseHeaderTimeout = time.Duration(cfg.Upstream.TimeoutSeconds) * time.Second
	}

	return NewUpstreamClientWithTransport(transport, logger, m)
}

// NewUpstreamClientWithTransport creates an UpstreamClient on top of rt.
// Tests use it to point every upstream hostname at a local server.
func NewUpstreamClientWithTransport(rt http.RoundTripper, logger *slog.Logger, m *metrics.Metrics) *UpstreamClient {
	return &UpstreamClient{
		httpClient: &http.Client{
			Transport: rt,
			// Redirects belong to the client, not the proxy.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		logger:  logger.With("component", "upstream_client"),
		metrics: m,
	}
}

// Do executes an HTTP request against the upstream and returns the raw response.
// The caller is responsible for closing the response body.
func (c *UpstreamClient) Do(req *http.Request) (*model.ProxyResponse, error) {
	c.logger.Debug("upstream request",
		"method", req.Method,
		"host", req.Host,
		"path", req.URL.Path,
	)

	start := time.Now()
	resp, err := c.httpClient.Do(req) //nolint:bodyclose // body ownership transfers to caller via ProxyResponse
	duration := time.Since(start).Seconds()

	method := metrics.NormalizeMethod(req.Method)

	if err != nil {
		if c.metrics != nil {
			c.metrics.UpstreamDuration.WithLabelValues(method).Observe(duration)
		}
		return nil, fmt.Errorf("upstream request: %w", err)
	}

	if c.metrics != nil {
		status := strconv.Itoa(resp.StatusCode)
		c.metrics.UpstreamDuration.WithLabelValues(method).Observe(duration)
		c.metrics.UpstreamResponses.WithLabelValues(method, status).Inc()
	}

	return &model.ProxyResponse{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       resp.Body,
	}, nil
}

// Forward dispatches a prepared request and returns once the upstream response
// headers arrive. The request body is streamed, not buffered.
// The provided context controls the lifetime of the upstream request:
// when the context is canceled (e.g. client disconnects), the upstream
// request is also canceled.
func (c *UpstreamClient) Forward(ctx context.Context, ur *model.UpstreamRequest) (*model.ProxyResponse, error) {
	body := ur.Body
	if ur.ContentLength == 0 || body == nil {
		body = http.NoBody
	}

	req, err := http.NewRequestWithContext(ctx, ur.Target.Method, ur.Target.URL().String(), body)
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	req.ContentLength = ur.ContentLength
	if body == http.NoBody {
		req.ContentLength = 0
	}

	hs := ur.Header.Clone()
	if host := hs.Get("Host"); host != "" {
		req.Host = host
	}
	for _, name := range framingHeaders {
		hs.Del(name)
	}
	req.Header = hs.HTTP()

	// net/http only recognises the canonical User-Agent key, and falls back
	// to its own agent string when the key is missing entirely.
	if ua := hs.Values("User-Agent"); ua != nil {
		for _, name := range hs.Names() {
			if strings.EqualFold(name, "User-Agent") {
				delete(req.Header, name)
			}
		}
		req.Header["User-Agent"] = ua
	} else {
		req.Header["User-Agent"] = []string{""}
	}

	return c.Do(req)
}
