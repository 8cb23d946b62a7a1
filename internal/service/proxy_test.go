package service

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"testing"

	"subdomain-proxy-go/internal/client"
	"subdomain-proxy-go/internal/config"
)

// newTestProxyService builds a ProxyService whose client sends every
// upstream hostname to srv.
func newTestProxyService(srv *httptest.Server, headers config.HeadersConfig) *ProxyService {
	var d net.Dialer
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec // test server certificate
		DialContext: func(ctx context.Context, network, _ string) (net.Conn, error) {
			return d.DialContext(ctx, network, srv.Listener.Addr().String())
		},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := &config.Config{
		Upstream: config.UpstreamConfig{BaseDomain: "example.com"},
		Headers:  headers,
	}
	return NewProxyService(client.NewUpstreamClientWithTransport(transport, logger, nil), cfg, logger)
}

func TestPrepare(t *testing.T) {
	s := newTestProxyService(nil, config.HeadersConfig{
		Excluded: []string{"cookie"},
	})

	pr := proxyRequest(http.MethodPut, "/users/123", headerSet("Cookie", "x=y", "Authorization", "secret"))
	pr.ContentLength = 42

	ur, err := s.Prepare(pr)
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	if ur.Target.Hostname != "users.example.com" {
		t.Errorf("Hostname = %q, want %q", ur.Target.Hostname, "users.example.com")
	}
	if ur.Target.Path != "/123" {
		t.Errorf("Path = %q, want %q", ur.Target.Path, "/123")
	}
	if ur.Target.Method != http.MethodPut {
		t.Errorf("Method = %q, want %q", ur.Target.Method, http.MethodPut)
	}
	if ur.Header.Has("Cookie") {
		t.Error("Cookie should be excluded")
	}
	if ur.ContentLength != 42 {
		t.Errorf("ContentLength = %d, want 42", ur.ContentLength)
	}
}

func TestPrepare_InvalidPath(t *testing.T) {
	s := newTestProxyService(nil, config.HeadersConfig{})

	_, err := s.Prepare(proxyRequest(http.MethodGet, "users/123", nil))
	if !errors.Is(err, ErrInvalidPath) {
		t.Errorf("Prepare() error = %v, want ErrInvalidPath", err)
	}
}

func TestForward_EndToEnd(t *testing.T) {
	upstream := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Host != "users.example.com" {
			t.Errorf("Host = %q, want %q", r.Host, "users.example.com")
		}
		if r.URL.Path != "/123" {
			t.Errorf("path = %q, want %q", r.URL.Path, "/123")
		}
		if got := r.Header.Get("Authorization"); got != "secret" {
			t.Errorf("Authorization = %q, want %q", got, "secret")
		}
		if got := r.Header.Get("Cookie"); got != "" {
			t.Errorf("Cookie should not be forwarded, got %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"id":123}`))
	}))
	defer upstream.Close()

	s := newTestProxyService(upstream, config.HeadersConfig{
		Excluded: []string{"cookie"},
		Required: map[string]string{"Authorization": "secret"},
	})

	pr := proxyRequest(http.MethodGet, "/users/123", headerSet("Authorization", "secret", "Cookie", "x=y"))
	pr.Ctx = context.Background()

	if got := s.Validate(pr); got.Kind != Proceed {
		t.Fatalf("Validate() = %v, want proceed", got.Kind)
	}
	ur, err := s.Prepare(pr)
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	resp, err := s.Forward(pr.Ctx, ur)
	if err != nil {
		t.Fatalf("Forward() error = %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != `{"id":123}` {
		t.Errorf("body = %q, want %q", body, `{"id":123}`)
	}
}

func TestForward_UpstreamUnreachable(t *testing.T) {
	upstream := httptest.NewTLSServer(http.NotFoundHandler())
	s := newTestProxyService(upstream, config.HeadersConfig{})
	upstream.Close()

	ur, err := s.Prepare(proxyRequest(http.MethodGet, "/users/1", nil))
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	_, err = s.Forward(context.Background(), ur)
	if err == nil {
		t.Fatal("Forward() expected error for closed upstream, got nil")
	}
	if kind := UpstreamErrorKind(err); kind != "connection" {
		t.Errorf("UpstreamErrorKind() = %q, want %q", kind, "connection")
	}
}

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

func TestUpstreamErrorKind(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"canceled", fmt.Errorf("forward: %w", context.Canceled), "canceled"},
		{"deadline", fmt.Errorf("forward: %w", context.DeadlineExceeded), "timeout"},
		{"os deadline", fmt.Errorf("read: %w", os.ErrDeadlineExceeded), "timeout"},
		{"dns", fmt.Errorf("forward: %w", &net.DNSError{Err: "no such host", Name: "users.example.com"}), "dns"},
		{"dial", &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}, "connection"},
		{"url timeout", &url.Error{Op: "Get", URL: "https://a.example.com", Err: timeoutError{}}, "timeout"},
		{"url other", &url.Error{Op: "Get", URL: "https://a.example.com", Err: errors.New("EOF")}, "connection"},
		{"other", errors.New("boom"), "other"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := UpstreamErrorKind(tt.err); got != tt.want {
				t.Errorf("UpstreamErrorKind() = %q, want %q", got, tt.want)
			}
		})
	}
}
