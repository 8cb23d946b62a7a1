package model

import (
	"net/http"
	"strings"
)

// HeaderSet is an ordered, case-insensitive multi-map of header names to values.
// Lookups ignore case; the stored name keeps the casing of whichever call last
// wrote it.
type HeaderSet struct {
	entries []headerEntry
	index   map[string]int // lower-cased name -> position in entries
}

type headerEntry struct {
	name   string
	values []string
}

// NewHeaderSet returns an empty HeaderSet.
func NewHeaderSet() *HeaderSet {
	return &HeaderSet{index: make(map[string]int)}
}

// HeaderSetFromHTTP copies an http.Header into a HeaderSet. Go's server lifts
// the Host header out of the map, so the caller passes it back in as host; an
// empty host is skipped.
func HeaderSetFromHTTP(h http.Header, host string) *HeaderSet {
	hs := NewHeaderSet()
	if host != "" {
		hs.Add("Host", host)
	}
	for name, vals := range h {
		for _, v := range vals {
			hs.Add(name, v)
		}
	}
	return hs
}

// Add appends value to name, creating the entry if needed.
func (h *HeaderSet) Add(name, value string) {
	key := strings.ToLower(name)
	if i, ok := h.index[key]; ok {
		h.entries[i].values = append(h.entries[i].values, value)
		return
	}
	h.index[key] = len(h.entries)
	h.entries = append(h.entries, headerEntry{name: name, values: []string{value}})
}

// Set replaces all values of name. The entry keeps its position but takes the
// new casing.
func (h *HeaderSet) Set(name string, values ...string) {
	key := strings.ToLower(name)
	vals := append([]string(nil), values...)
	if i, ok := h.index[key]; ok {
		h.entries[i] = headerEntry{name: name, values: vals}
		return
	}
	h.index[key] = len(h.entries)
	h.entries = append(h.entries, headerEntry{name: name, values: vals})
}

// Del removes name.
func (h *HeaderSet) Del(name string) {
	key := strings.ToLower(name)
	i, ok := h.index[key]
	if !ok {
		return
	}
	h.entries = append(h.entries[:i], h.entries[i+1:]...)
	delete(h.index, key)
	for j := i; j < len(h.entries); j++ {
		h.index[strings.ToLower(h.entries[j].name)] = j
	}
}

// Has reports whether name is present.
func (h *HeaderSet) Has(name string) bool {
	_, ok := h.index[strings.ToLower(name)]
	return ok
}

// Get returns the first value of name, or "".
func (h *HeaderSet) Get(name string) string {
	if vals := h.Values(name); len(vals) > 0 {
		return vals[0]
	}
	return ""
}

// Values returns all values of name. The slice must not be modified.
func (h *HeaderSet) Values(name string) []string {
	if i, ok := h.index[strings.ToLower(name)]; ok {
		return h.entries[i].values
	}
	return nil
}

// Len returns the number of distinct names.
func (h *HeaderSet) Len() int {
	return len(h.entries)
}

// Names returns the stored names in insertion order.
func (h *HeaderSet) Names() []string {
	names := make([]string, len(h.entries))
	for i, e := range h.entries {
		names[i] = e.name
	}
	return names
}

// Clone returns a deep copy.
func (h *HeaderSet) Clone() *HeaderSet {
	c := &HeaderSet{
		entries: make([]headerEntry, len(h.entries)),
		index:   make(map[string]int, len(h.index)),
	}
	for i, e := range h.entries {
		c.entries[i] = headerEntry{name: e.name, values: append([]string(nil), e.values...)}
		c.index[strings.ToLower(e.name)] = i
	}
	return c
}

// HTTP converts the set into an http.Header. Names are stored as written,
// without canonicalisation, so they go on the wire with their current casing.
func (h *HeaderSet) HTTP() http.Header {
	out := make(http.Header, len(h.entries))
	for _, e := range h.entries {
		out[e.name] = append([]string(nil), e.values...)
	}
	return out
}
