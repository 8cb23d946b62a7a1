package metrics

import (
	"testing"
)

func TestNew_GathersMetrics(t *testing.T) {
	m := New()

	families, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}

	// Should include at least Go runtime and process collectors.
	if len(families) == 0 {
		t.Fatal("expected non-empty metric families from Gather()")
	}

	// Verify our custom metrics exist by incrementing them and gathering again.
	m.RequestsTotal.WithLabelValues("GET", "200", RouteProxy).Inc()
	m.Sessions.WithLabelValues("completed").Inc()

	families, err = m.Registry.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}

	want := map[string]bool{
		"subdomain_proxy_http_requests_total": false,
		"subdomain_proxy_sessions_total":      false,
		"subdomain_proxy_open_connections":    false,
	}
	for _, f := range families {
		if _, ok := want[f.GetName()]; ok {
			want[f.GetName()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("expected %s in gathered metrics", name)
		}
	}
}

func TestNormalizeMethod(t *testing.T) {
	tests := []struct {
		method string
		want   string
	}{
		{"GET", "GET"},
		{"POST", "POST"},
		{"PUT", "PUT"},
		{"DELETE", "DELETE"},
		{"PATCH", "PATCH"},
		{"HEAD", "HEAD"},
		{"OPTIONS", "OPTIONS"},
		{"CONNECT", "CONNECT"},
		{"FOOBAR", "other"},
		{"get", "other"},
		{"X-CUSTOM", "other"},
		{"", "other"},
	}

	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			got := NormalizeMethod(tt.method)
			if got != tt.want {
				t.Errorf("NormalizeMethod(%q) = %q, want %q", tt.method, got, tt.want)
			}
		})
	}
}

func TestNormalizeRoute(t *testing.T) {
	tests := []struct {
		target string
		want   string
	}{
		{"/", RouteRoot},
		{"//", RouteRoot},
		{"/?x=1", RouteRoot},
		{"/a/..", RouteRoot},
		{"/users/123", RouteProxy},
		{"/users", RouteProxy},
		{"*", RouteInvalid},
		{"example.com:443", RouteInvalid},
		{"", RouteInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			got := NormalizeRoute(tt.target)
			if got != tt.want {
				t.Errorf("NormalizeRoute(%q) = %q, want %q", tt.target, got, tt.want)
			}
		})
	}
}
