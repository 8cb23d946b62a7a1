// Package service implements request validation, target resolution, header
// filtering and upstream forwarding.
package service

import (
	"context"
	"fmt"
	"log/slog"

	"subdomain-proxy-go/internal/client"
	"subdomain-proxy-go/internal/config"
	"subdomain-proxy-go/internal/model"
)

// ProxyService turns validated client requests into upstream requests and
// dispatches them.
type ProxyService struct {
	client     *client.UpstreamClient
	policy     *Policy
	baseDomain string
	logger     *slog.Logger
}

// NewProxyService creates a ProxyService. The header policy is built here,
// once, and shared read-only by every request.
func NewProxyService(c *client.UpstreamClient, cfg *config.Config, logger *slog.Logger) *ProxyService {
	return &ProxyService{
		client:     c,
		policy:     NewPolicy(cfg.Headers),
		baseDomain: cfg.Upstream.BaseDomain,
		logger:     logger.With("component", "proxy_service"),
	}
}

// Validate checks pr against the header policy without touching the upstream.
func (s *ProxyService) Validate(pr *model.ProxyRequest) Outcome {
	return Validate(pr, s.policy)
}

// Prepare resolves the upstream target and builds the outbound header set.
// It must only be called for requests that Validate let through.
func (s *ProxyService) Prepare(pr *model.ProxyRequest) (*model.UpstreamRequest, error) {
	target, err := ResolveTarget(pr.Target, s.baseDomain)
	if err != nil {
		return nil, fmt.Errorf("resolve target: %w", err)
	}
	target.Method = pr.Method

	return &model.UpstreamRequest{
		Target:        target,
		Header:        FilterHeaders(pr.Header, s.policy.Excluded()),
		Body:          pr.Body,
		ContentLength: pr.ContentLength,
	}, nil
}

// Forward sends a prepared request upstream and returns the response once its
// headers arrive. The caller is responsible for closing the response body.
func (s *ProxyService) Forward(ctx context.Context, ur *model.UpstreamRequest) (*model.ProxyResponse, error) {
	s.logger.Debug("forwarding request",
		"method", ur.Target.Method,
		"host", ur.Target.Hostname,
		"path", ur.Target.Path,
	)

	resp, err := s.client.Forward(ctx, ur)
	if err != nil {
		return nil, fmt.Errorf("forward to upstream: %w", err)
	}
	return resp, nil
}
