package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	"github.com/labstack/echo/v4"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"subdomain-proxy-go/internal/client"
	"subdomain-proxy-go/internal/config"
	"subdomain-proxy-go/internal/handler"
	"subdomain-proxy-go/internal/metrics"
	"subdomain-proxy-go/internal/middleware"
	"subdomain-proxy-go/internal/server"
	"subdomain-proxy-go/internal/service"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// proxyEcho and adminEcho tell the two Echo instances apart in the fx graph.
type (
	proxyEcho struct{ *echo.Echo }
	adminEcho struct{ *echo.Echo }
)

func main() {
	var cli config.CLI
	kong.Parse(&cli,
		kong.Name("subdomain-proxy"),
		kong.Description("Reverse proxy that routes /<key>/<path> to https://<key>.<base-domain>/<path>."),
		kong.Vars{"version": fmt.Sprintf("%s (%s, %s)", version, commit, date)},
	)

	fx.New(
		fx.WithLogger(func(l *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: l}
		}),
		fx.Provide(
			func() *config.CLI { return &cli },
			func() handler.Version { return handler.Version(version) },
			config.Load,
			newLogger,
			metrics.New,
			client.NewUpstreamClient,
			service.NewProxyService,
			server.NewListener,
			func(l *server.Listener) handler.SessionTracker { return l },
			func(l *server.Listener) handler.StatsSource { return l },
			handler.NewProxyHandler,
			handler.NewHealthHandler,
			newProxyEcho,
			newAdminEcho,
		),
		fx.Invoke(warnConfigPermissions, startProxy, startAdmin),
	).Run()
}

func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	switch strings.ToLower(cfg.Log.Format) {
	case "text":
		h = slog.NewTextHandler(os.Stdout, opts)
	default:
		h = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(h)
}

// newProxyEcho builds the proxy router. Middleware is registered with Pre so
// it also wraps requests that bypass the router.
func newProxyEcho(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics, proxy *handler.ProxyHandler) proxyEcho {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Pre(middleware.Recover(logger))
	e.Pre(middleware.RequestLogger(logger))
	if cfg.Admin.MetricsEnabled {
		e.Pre(middleware.MetricsMiddleware(m))
	}
	e.Pre(middleware.RequestTarget(proxy.Handle))

	handler.RegisterProxyRoutes(e, proxy)
	return proxyEcho{e}
}

func newAdminEcho(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics, health *handler.HealthHandler) adminEcho {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Server.ReadHeaderTimeout = 10 * time.Second
	e.Server.ReadTimeout = 30 * time.Second
	e.Server.WriteTimeout = 30 * time.Second
	e.Server.IdleTimeout = 120 * time.Second

	e.Use(middleware.Recover(logger))
	e.Use(middleware.RequestLogger(logger.With("listener", "admin")))

	var reg *metrics.Metrics
	if cfg.Admin.MetricsEnabled {
		reg = m
	}
	handler.RegisterAdminRoutes(e, health, reg, cfg.Admin.MetricsPath)
	return adminEcho{e}
}

func warnConfigPermissions(cfg *config.Config, logger *slog.Logger) {
	cfg.WarnPermissions(logger)
}

func startProxy(lc fx.Lifecycle, e proxyEcho, ln *server.Listener, cfg *config.Config, logger *slog.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			addr := cfg.Server.Addr()
			l, err := net.Listen("tcp", addr)
			if err != nil {
				return fmt.Errorf("bind %s: %w", addr, err)
			}
			logger.Info("starting proxy",
				"addr", addr,
				"base_domain", cfg.Upstream.BaseDomain,
				"excluded_headers", len(cfg.Headers.Excluded),
				"required_headers", len(cfg.Headers.Required),
			)
			ln.Start(l, e.Echo)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return ln.Shutdown(ctx)
		},
	})
}

func startAdmin(lc fx.Lifecycle, e adminEcho, cfg *config.Config, logger *slog.Logger) {
	if cfg.Admin.Addr == "" {
		logger.Info("admin listener disabled")
		return
	}
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			l, err := net.Listen("tcp", cfg.Admin.Addr)
			if err != nil {
				return fmt.Errorf("bind admin %s: %w", cfg.Admin.Addr, err)
			}
			logger.Info("starting admin server", "addr", cfg.Admin.Addr, "metrics", cfg.Admin.MetricsEnabled)
			go func() {
				if err := e.Server.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("admin server error", "err", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("shutting down admin server")
			return e.Shutdown(ctx)
		},
	})
}
