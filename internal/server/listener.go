// Package server owns the proxy's listening socket and the bookkeeping of
// the connections and sessions that pass through it.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"subdomain-proxy-go/internal/metrics"
)

// ConnInfo describes one accepted client connection. It is used for
// diagnostics only, never for routing.
type ConnInfo struct {
	ID         uint64
	RemoteAddr string
	OpenedAt   time.Time
}

// SessionRecord describes one in-flight proxy session.
type SessionRecord struct {
	ID        uint64
	ConnID    uint64
	Method    string
	Target    string
	StartedAt time.Time
}

// Stats is a point-in-time view of the listener's bookkeeping.
type Stats struct {
	OpenConnections  int    `json:"open_connections"`
	OpenSessions     int    `json:"open_sessions"`
	TotalConnections uint64 `json:"total_connections"`
	TotalSessions    uint64 `json:"total_sessions"`
}

// ContextKeySessionID is the request-context key (echo.Context.Set) under
// which the session id allocated by OpenSession is stored.
const ContextKeySessionID = "session_id"

type connKey struct{}

// Listener accepts client connections and hands every parsed request to an
// http.Handler. It assigns connection and session ids from its own atomic
// counters and keeps the live records in maps it owns.
//
// Malformed request lines and headers never reach the handler: net/http
// answers them with a raw "400 Bad Request" and closes the connection.
type Listener struct {
	logger  *slog.Logger
	metrics *metrics.Metrics

	connSeq    atomic.Uint64
	sessionSeq atomic.Uint64

	mu       sync.Mutex
	server   *http.Server
	conns    map[uint64]*ConnInfo
	connIDs  map[net.Conn]uint64
	sessions map[uint64]*SessionRecord
}

// NewListener creates a Listener. The metrics parameter is optional.
func NewListener(logger *slog.Logger, m *metrics.Metrics) *Listener {
	return &Listener{
		logger:   logger.With("component", "listener"),
		metrics:  m,
		conns:    make(map[uint64]*ConnInfo),
		connIDs:  make(map[net.Conn]uint64),
		sessions: make(map[uint64]*SessionRecord),
	}
}

// Start serves h on ln in a background goroutine. It returns immediately.
func (l *Listener) Start(ln net.Listener, h http.Handler) {
	srv := &http.Server{
		Handler: h,
		// Inbound header timeout to mitigate slow-client attacks. There is no
		// read or write timeout so long-running streams are not cut off.
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		ConnContext:       l.connContext,
		ConnState:         l.connState,
		ErrorLog:          slog.NewLogLogger(l.logger.Handler(), slog.LevelDebug),
	}

	l.mu.Lock()
	l.server = srv
	l.mu.Unlock()

	l.logger.Info("listening", "addr", ln.Addr().String())
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.logger.Error("server error", "err", err)
		}
	}()
}

// Shutdown stops accepting connections and waits for active requests to end.
func (l *Listener) Shutdown(ctx context.Context) error {
	l.mu.Lock()
	srv := l.server
	l.mu.Unlock()
	if srv == nil {
		return nil
	}
	l.logger.Info("shutting down listener")
	return srv.Shutdown(ctx)
}

func (l *Listener) connContext(ctx context.Context, c net.Conn) context.Context {
	info := &ConnInfo{
		ID:         l.connSeq.Add(1),
		RemoteAddr: formatAddr(c.RemoteAddr()),
		OpenedAt:   time.Now(),
	}

	l.mu.Lock()
	l.conns[info.ID] = info
	l.connIDs[c] = info.ID
	l.mu.Unlock()

	if l.metrics != nil {
		l.metrics.OpenConnections.Inc()
	}
	l.logger.Debug("connection opened", "conn_id", info.ID, "remote", info.RemoteAddr)
	return context.WithValue(ctx, connKey{}, info)
}

func (l *Listener) connState(c net.Conn, state http.ConnState) {
	if state != http.StateClosed && state != http.StateHijacked {
		return
	}

	l.mu.Lock()
	id, ok := l.connIDs[c]
	var info *ConnInfo
	if ok {
		info = l.conns[id]
		delete(l.connIDs, c)
		delete(l.conns, id)
	}
	l.mu.Unlock()

	if !ok {
		return
	}
	if l.metrics != nil {
		l.metrics.OpenConnections.Dec()
	}
	l.logger.Debug("connection closed",
		"conn_id", id,
		"state", state.String(),
		"duration_ms", time.Since(info.OpenedAt).Milliseconds(),
	)
}

// ConnFromContext returns the connection a request arrived on.
func ConnFromContext(ctx context.Context) (ConnInfo, bool) {
	info, ok := ctx.Value(connKey{}).(*ConnInfo)
	if !ok {
		return ConnInfo{}, false
	}
	return *info, true
}

// OpenSession allocates the next session id and records the session until
// CloseSession is called.
func (l *Listener) OpenSession(ctx context.Context, method, target string) SessionRecord {
	rec := SessionRecord{
		ID:        l.sessionSeq.Add(1),
		Method:    method,
		Target:    target,
		StartedAt: time.Now(),
	}
	if info, ok := ConnFromContext(ctx); ok {
		rec.ConnID = info.ID
	}

	l.mu.Lock()
	l.sessions[rec.ID] = &rec
	l.mu.Unlock()
	return rec
}

// CloseSession forgets a session opened by OpenSession.
func (l *Listener) CloseSession(id uint64) {
	l.mu.Lock()
	delete(l.sessions, id)
	l.mu.Unlock()
}

// Stats returns current connection and session counts.
func (l *Listener) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Stats{
		OpenConnections:  len(l.conns),
		OpenSessions:     len(l.sessions),
		TotalConnections: l.connSeq.Load(),
		TotalSessions:    l.sessionSeq.Load(),
	}
}

// formatAddr renders an address as network://host:port.
func formatAddr(addr net.Addr) string {
	if addr == nil {
		return "unknown"
	}
	return fmt.Sprintf("%s://%s", addr.Network(), addr.String())
}
