package handler

import (
	"fmt"
	"log/slog"
	"slices"

	"subdomain-proxy-go/internal/model"
)

// State is a step in the life of a proxy session.
type State int

const (
	StateCreated State = iota
	StateValidated
	StateDispatched
	StateStreaming
	StateCompleted
	// StateRejected is terminal: the upstream was never contacted.
	StateRejected
	// StateFailed is terminal: the upstream was contacted and something broke.
	StateFailed
)

var stateNames = [...]string{
	StateCreated:    "created",
	StateValidated:  "validated",
	StateDispatched: "dispatched",
	StateStreaming:  "streaming",
	StateCompleted:  "completed",
	StateRejected:   "rejected",
	StateFailed:     "failed",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateRejected || s == StateFailed
}

var transitions = map[State][]State{
	StateCreated:    {StateValidated, StateRejected},
	StateValidated:  {StateDispatched, StateRejected},
	StateDispatched: {StateStreaming, StateFailed},
	StateStreaming:  {StateCompleted, StateFailed},
}

// Session tracks one client request from receipt to its terminal state.
// A session belongs to a single request goroutine and is never shared.
type Session struct {
	ID     uint64
	ConnID uint64

	state        State
	request      *model.ProxyRequest
	upstream     *model.UpstreamRequest
	responseSent bool
	logger       *slog.Logger
}

func newSession(id, connID uint64, req *model.ProxyRequest, logger *slog.Logger) *Session {
	return &Session{
		ID:      id,
		ConnID:  connID,
		state:   StateCreated,
		request: req,
		logger:  logger.With("session_id", id, "conn_id", connID),
	}
}

// State returns the current state.
func (s *Session) State() State {
	return s.state
}

// transition moves the session to next, refusing moves the state machine
// does not allow.
func (s *Session) transition(next State) error {
	if !slices.Contains(transitions[s.state], next) {
		return fmt.Errorf("session %d: illegal transition %s -> %s", s.ID, s.state, next)
	}
	s.logger.Debug("session transition", "from", s.state.String(), "to", next.String())
	s.state = next
	return nil
}

// summary returns log attributes describing how far the session got.
func (s *Session) summary() []any {
	attrs := []any{
		"state", s.state.String(),
		"method", s.request.Method,
		"target", s.request.Target,
		"response_sent", s.responseSent,
	}
	if s.upstream != nil {
		attrs = append(attrs, "upstream_host", s.upstream.Target.Hostname)
	}
	return attrs
}
