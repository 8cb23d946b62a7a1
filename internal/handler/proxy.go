package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"subdomain-proxy-go/internal/metrics"
	"subdomain-proxy-go/internal/model"
	"subdomain-proxy-go/internal/server"
	"subdomain-proxy-go/internal/service"
)

// SessionTracker allocates session ids and keeps the live session records.
type SessionTracker interface {
	OpenSession(ctx context.Context, method, target string) server.SessionRecord
	CloseSession(id uint64)
}

var (
	errUpstreamRead = errors.New("reading upstream response body")
	errClientWrite  = errors.New("writing client response body")
)

// ProxyHandler runs one proxy session per request.
type ProxyHandler struct {
	service  *service.ProxyService
	sessions SessionTracker
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewProxyHandler creates a ProxyHandler. The metrics parameter is optional.
func NewProxyHandler(svc *service.ProxyService, sessions SessionTracker, m *metrics.Metrics, logger *slog.Logger) *ProxyHandler {
	return &ProxyHandler{
		service:  svc,
		sessions: sessions,
		metrics:  m,
		logger:   logger.With("component", "proxy_handler"),
	}
}

// Handle validates the request, forwards it to the subdomain named by its
// first path segment and streams the response back.
func (h *ProxyHandler) Handle(c echo.Context) error {
	req := c.Request()

	rec := h.sessions.OpenSession(req.Context(), req.Method, req.RequestURI)
	defer h.sessions.CloseSession(rec.ID)
	c.Set(server.ContextKeySessionID, rec.ID)

	pr := &model.ProxyRequest{
		Ctx:           req.Context(),
		Method:        req.Method,
		Target:        req.RequestURI,
		Header:        model.HeaderSetFromHTTP(req.Header, req.Host),
		Body:          req.Body,
		ContentLength: req.ContentLength,
	}
	sess := newSession(rec.ID, rec.ConnID, pr, h.logger)
	sess.logger.Debug("request received", "method", pr.Method, "target", pr.Target)

	outcome := h.service.Validate(pr)
	if outcome.Kind != service.Proceed {
		return h.reject(c, sess, outcome.Status, outcome.Destroy, outcome.Err)
	}
	h.advance(sess, StateValidated)

	ur, err := h.service.Prepare(pr)
	if err != nil {
		return h.reject(c, sess, http.StatusBadRequest, false, err)
	}
	sess.upstream = ur
	h.advance(sess, StateDispatched)

	resp, err := h.service.Forward(pr.Ctx, ur)
	if err != nil {
		return h.failBeforeHeaders(c, sess, err)
	}
	defer func() { _ = resp.Body.Close() }()

	h.advance(sess, StateStreaming)
	sess.logger.Debug("upstream responded", "status", resp.StatusCode, "host", ur.Target.Hostname)

	// Relay status and headers verbatim.
	dst := c.Response().Header()
	for key, vals := range resp.Header {
		dst[key] = append(dst[key], vals...)
	}
	c.Response().WriteHeader(resp.StatusCode)
	sess.responseSent = true

	start := time.Now()
	n, err := stream(c.Response(), resp.Body)
	if err != nil {
		h.failAfterHeaders(sess, err, n)
	}

	h.advance(sess, StateCompleted)
	h.recordSession(sess)
	sess.logger.Debug("session completed", append(sess.summary(),
		"bytes", n,
		"stream_ms", time.Since(start).Milliseconds(),
	)...)
	return nil
}

// reject answers the request without contacting the upstream. When destroy is
// set the connection is taken over and closed right after a raw response.
func (h *ProxyHandler) reject(c echo.Context, sess *Session, status int, destroy bool, cause error) error {
	h.advance(sess, StateRejected)
	h.recordSession(sess)
	defer func() {
		sess.logger.Debug("request rejected", append(sess.summary(),
			"status", status,
			"reason", errString(cause),
		)...)
	}()

	c.Response().Status = status
	if destroy {
		conn, _, err := http.NewResponseController(c.Response().Writer).Hijack()
		if err == nil {
			_, _ = conn.Write(server.RawResponse(status))
			_ = conn.Close()
			sess.responseSent = true
			return nil
		}
		// Writers that cannot be hijacked still get a closing response.
		sess.logger.Debug("hijack unavailable; closing after response", "err", err)
	}

	c.Response().Header().Set("Connection", "close")
	c.Response().WriteHeader(status)
	sess.responseSent = true
	return nil
}

// failBeforeHeaders answers an upstream transport error that happened before
// any response headers were sent to the client.
func (h *ProxyHandler) failBeforeHeaders(c echo.Context, sess *Session, err error) error {
	kind := service.UpstreamErrorKind(err)
	h.advance(sess, StateFailed)
	h.recordSession(sess)
	if h.metrics != nil {
		h.metrics.UpstreamErrors.WithLabelValues(kind, "dispatch").Inc()
	}

	if kind == "canceled" {
		sess.logger.Debug("client went away before upstream responded", "err", err)
	} else {
		sess.logger.Warn("upstream request failed", append(sess.summary(), "err", err, "kind", kind)...)
	}

	c.Response().Header().Set("Connection", "close")
	c.Response().WriteHeader(http.StatusBadGateway)
	sess.responseSent = true
	return nil
}

// failAfterHeaders handles a failure once the status line is on the wire. A
// second status cannot be sent, so the connection is aborted instead; the
// client sees a truncated response.
func (h *ProxyHandler) failAfterHeaders(sess *Session, err error, written int64) {
	h.advance(sess, StateFailed)
	h.recordSession(sess)

	phase := "stream"
	if errors.Is(err, errClientWrite) {
		phase = "client"
	}
	if h.metrics != nil {
		h.metrics.UpstreamErrors.WithLabelValues(service.UpstreamErrorKind(err), phase).Inc()
	}
	sess.logger.Warn("streaming response body", append(sess.summary(),
		"err", err,
		"phase", phase,
		"bytes", written,
	)...)

	// net/http closes the connection without logging a stack trace.
	panic(http.ErrAbortHandler)
}

// advance applies a state transition. A refused transition is a programming
// error and is logged rather than crashing the request.
func (h *ProxyHandler) advance(sess *Session, next State) {
	if err := sess.transition(next); err != nil {
		sess.logger.Error("session state", "err", err)
	}
}

func (h *ProxyHandler) recordSession(sess *Session) {
	if h.metrics != nil {
		h.metrics.Sessions.WithLabelValues(sess.State().String()).Inc()
	}
}

// flushWriter is the part of echo.Response used for streaming.
type flushWriter interface {
	io.Writer
	http.Flusher
}

// stream copies src to dst, flushing after every chunk so the client sees
// data as soon as the upstream sends it. The returned error says which side
// failed.
func stream(dst flushWriter, src io.Reader) (int64, error) {
	buf := make([]byte, 32*1024)
	var written int64
	for {
		nr, rerr := src.Read(buf)
		if nr > 0 {
			nw, werr := dst.Write(buf[:nr])
			written += int64(nw)
			if werr != nil {
				return written, fmt.Errorf("%w: %w", errClientWrite, werr)
			}
			if nw != nr {
				return written, fmt.Errorf("%w: %w", errClientWrite, io.ErrShortWrite)
			}
			dst.Flush()
		}
		if rerr == io.EOF {
			return written, nil
		}
		if rerr != nil {
			return written, fmt.Errorf("%w: %w", errUpstreamRead, rerr)
		}
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
