package service

import (
	"net/http"
	"strings"

	"subdomain-proxy-go/internal/config"
	"subdomain-proxy-go/internal/model"
)

// Policy is the header policy shared by every session. It is built once at
// startup and never modified afterwards.
type Policy struct {
	excluded map[string]struct{}
	required map[string]string
}

// NewPolicy builds a Policy from the headers section of the config.
func NewPolicy(cfg config.HeadersConfig) *Policy {
	p := &Policy{
		excluded: make(map[string]struct{}, len(cfg.Excluded)),
		required: make(map[string]string, len(cfg.Required)),
	}
	for _, name := range cfg.Excluded {
		p.excluded[strings.ToLower(name)] = struct{}{}
	}
	for name, value := range cfg.Required {
		p.required[name] = value
	}
	return p
}

// Excluded returns the lower-cased excluded header names. Callers must not
// modify the map.
func (p *Policy) Excluded() map[string]struct{} {
	return p.excluded
}

// OutcomeKind is the verdict of Validate.
type OutcomeKind int

const (
	// Proceed means the request may be dispatched upstream.
	Proceed OutcomeKind = iota
	// ShortCircuit means the proxy answers the request itself.
	ShortCircuit
	// Reject means the request is refused.
	Reject
)

func (k OutcomeKind) String() string {
	switch k {
	case Proceed:
		return "proceed"
	case ShortCircuit:
		return "short_circuit"
	case Reject:
		return "reject"
	}
	return "unknown"
}

// Outcome is the result of validating a request.
type Outcome struct {
	Kind   OutcomeKind
	Status int
	// Err explains a rejection; nil otherwise.
	Err error
	// Destroy asks for the connection to be torn down after the response
	// instead of merely being marked for close.
	Destroy bool
}

// Validate gates a request before any upstream work. Rules apply in order:
// upgrade/tunnel attempts, non-origin-form paths, the root path, then
// required headers.
func Validate(req *model.ProxyRequest, policy *Policy) Outcome {
	if isUpgrade(req) {
		return Outcome{Kind: Reject, Status: http.StatusBadRequest, Err: ErrUpgradeRejected, Destroy: true}
	}

	if !strings.HasPrefix(req.Target, "/") {
		return Outcome{Kind: Reject, Status: http.StatusBadRequest, Err: ErrInvalidPath}
	}

	p, _, _ := strings.Cut(req.Target, "?")
	if normalizePath(p) == "/" {
		if req.Method == http.MethodGet || req.Method == http.MethodHead {
			return Outcome{Kind: ShortCircuit, Status: http.StatusNoContent}
		}
		return Outcome{Kind: ShortCircuit, Status: http.StatusMethodNotAllowed}
	}

	for name, want := range policy.required {
		// Repeated headers are compared in their combined "a, b" form.
		vals := req.Header.Values(name)
		if len(vals) == 0 || strings.Join(vals, ", ") != want {
			return Outcome{Kind: Reject, Status: http.StatusUnauthorized, Err: ErrUnauthorized}
		}
	}

	return Outcome{Kind: Proceed}
}

// isUpgrade reports whether the request asks to switch protocols or to open
// a tunnel.
func isUpgrade(req *model.ProxyRequest) bool {
	if req.Method == http.MethodConnect {
		return true
	}
	if !req.Header.Has("Upgrade") {
		return false
	}
	for _, v := range req.Header.Values("Connection") {
		for _, token := range strings.Split(v, ",") {
			if strings.EqualFold(strings.TrimSpace(token), "upgrade") {
				return true
			}
		}
	}
	return false
}
