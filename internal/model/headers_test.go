package model

import (
	"net/http"
	"reflect"
	"testing"
)

func TestHeaderSet_CaseInsensitiveLookup(t *testing.T) {
	h := NewHeaderSet()
	h.Add("X-Auth", "secret")

	for _, name := range []string{"X-Auth", "x-auth", "X-AUTH"} {
		if got := h.Get(name); got != "secret" {
			t.Errorf("Get(%q) = %q, want %q", name, got, "secret")
		}
		if !h.Has(name) {
			t.Errorf("Has(%q) = false, want true", name)
		}
	}
}

func TestHeaderSet_AddAccumulates(t *testing.T) {
	h := NewHeaderSet()
	h.Add("Accept", "text/html")
	h.Add("accept", "application/json")

	want := []string{"text/html", "application/json"}
	if got := h.Values("ACCEPT"); !reflect.DeepEqual(got, want) {
		t.Errorf("Values() = %v, want %v", got, want)
	}
	if h.Len() != 1 {
		t.Errorf("Len() = %d, want 1", h.Len())
	}
	// First writer's casing is kept by Add.
	if names := h.Names(); names[0] != "Accept" {
		t.Errorf("name = %q, want %q", names[0], "Accept")
	}
}

func TestHeaderSet_SetLastWriteWins(t *testing.T) {
	h := NewHeaderSet()
	h.Add("Host", "proxy.local")
	h.Add("Cookie", "a=b")
	h.Set("host", "override.example")

	if got := h.Values("Host"); !reflect.DeepEqual(got, []string{"override.example"}) {
		t.Errorf("Values(Host) = %v, want [override.example]", got)
	}
	want := []string{"host", "Cookie"}
	if got := h.Names(); !reflect.DeepEqual(got, want) {
		t.Errorf("Names() = %v, want %v", got, want)
	}
}

func TestHeaderSet_Del(t *testing.T) {
	h := NewHeaderSet()
	h.Add("A", "1")
	h.Add("B", "2")
	h.Add("C", "3")

	h.Del("b")
	h.Del("missing")

	if h.Has("B") {
		t.Error("B should be deleted")
	}
	if got := h.Names(); !reflect.DeepEqual(got, []string{"A", "C"}) {
		t.Errorf("Names() = %v, want [A C]", got)
	}
	// Index must still resolve entries that moved.
	if got := h.Get("c"); got != "3" {
		t.Errorf("Get(c) = %q, want %q", got, "3")
	}
}

func TestHeaderSet_Clone(t *testing.T) {
	h := NewHeaderSet()
	h.Add("X-One", "1")

	c := h.Clone()
	c.Add("X-One", "2")
	c.Set("X-Two", "2")

	if got := h.Values("X-One"); len(got) != 1 {
		t.Errorf("input mutated: %v", got)
	}
	if h.Has("X-Two") {
		t.Error("input gained X-Two")
	}
}

func TestHeaderSet_HTTPKeepsCasing(t *testing.T) {
	h := NewHeaderSet()
	h.Set("x-lower", "v")
	h.Add("X-Multi", "1")
	h.Add("X-Multi", "2")

	out := h.HTTP()
	if _, ok := out["x-lower"]; !ok {
		t.Errorf("expected raw key x-lower, got %v", out)
	}
	if got := out["X-Multi"]; !reflect.DeepEqual(got, []string{"1", "2"}) {
		t.Errorf("X-Multi = %v, want [1 2]", got)
	}
}

func TestHeaderSetFromHTTP(t *testing.T) {
	src := http.Header{
		"Cookie":        {"a=b"},
		"Authorization": {"secret"},
	}

	h := HeaderSetFromHTTP(src, "proxy.local:8080")
	if got := h.Get("host"); got != "proxy.local:8080" {
		t.Errorf("Host = %q, want %q", got, "proxy.local:8080")
	}
	if got := h.Get("cookie"); got != "a=b" {
		t.Errorf("Cookie = %q, want %q", got, "a=b")
	}
	if h.Len() != 3 {
		t.Errorf("Len() = %d, want 3", h.Len())
	}

	if HeaderSetFromHTTP(src, "").Has("Host") {
		t.Error("empty host should not produce a Host entry")
	}
}

func TestTarget_URL(t *testing.T) {
	tests := []struct {
		name   string
		target Target
		want   string
	}{
		{
			name:   "default https port omitted",
			target: Target{Scheme: "https", Hostname: "users.example.com", Port: 443, Path: "/123"},
			want:   "https://users.example.com/123",
		},
		{
			name:   "non-default port kept",
			target: Target{Scheme: "https", Hostname: "users.example.com", Port: 8443, Path: "/"},
			want:   "https://users.example.com:8443/",
		},
		{
			name:   "query carried",
			target: Target{Scheme: "https", Hostname: "a.example.com", Port: 443, Path: "/b", RawQuery: "x=1"},
			want:   "https://a.example.com/b?x=1",
		},
		{
			name:   "escaped space kept",
			target: Target{Scheme: "https", Hostname: "users.example.com", Port: 443, Path: "/a%20b"},
			want:   "https://users.example.com/a%20b",
		},
		{
			name:   "escaped utf-8 kept",
			target: Target{Scheme: "https", Hostname: "users.example.com", Port: 443, Path: "/caf%C3%A9"},
			want:   "https://users.example.com/caf%C3%A9",
		},
		{
			name:   "escaped slash kept",
			target: Target{Scheme: "https", Hostname: "users.example.com", Port: 443, Path: "/a%2Fb/c"},
			want:   "https://users.example.com/a%2Fb/c",
		},
		{
			name:   "lower-case escapes kept",
			target: Target{Scheme: "https", Hostname: "users.example.com", Port: 443, Path: "/a%2fb"},
			want:   "https://users.example.com/a%2fb",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.target.URL().String(); got != tt.want {
				t.Errorf("URL() = %q, want %q", got, tt.want)
			}
		})
	}
}
