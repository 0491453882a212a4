// Package httpapi mounts the droplet's HTTP surface: the platform webhook
// endpoint, the tenant REST API under /api/installations, and the ops
// endpoints (/healthz, /metrics).
package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/goliatone/go-droplet/auth"
	"github.com/goliatone/go-droplet/core"
	"github.com/goliatone/go-droplet/ingress"
	syncpkg "github.com/goliatone/go-droplet/sync"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

const installationParam = "installation_id"

// Service is the slice of droplet core behavior the tenant REST surface
// drives.
type Service interface {
	SubmitConfiguration(ctx context.Context, in core.SubmitConfigurationInput) (core.Installation, error)
	GetInstallation(ctx context.Context, installationID string) (core.Installation, error)
	Dashboard(ctx context.Context, installationID string) (core.DashboardSummary, error)
	DeleteInstallation(ctx context.Context, installationID string) error
}

var _ Service = (*core.Service)(nil)

// WebhookDispatcher routes one inbound platform webhook.
type WebhookDispatcher interface {
	Dispatch(ctx context.Context, req ingress.InboundRequest) (ingress.InboundResult, error)
}

var _ WebhookDispatcher = (*ingress.Dispatcher)(nil)

// Syncer runs an on-demand company-data pull for one installation.
type Syncer interface {
	SyncInstallation(ctx context.Context, installationID string) (syncpkg.Report, error)
}

var _ Syncer = (*syncpkg.Orchestrator)(nil)

// ServerConfig carries the collaborators the HTTP surface mounts. Service,
// Webhooks, and Guard are required; Syncer, Metrics, and Health gate their
// endpoints on presence.
type ServerConfig struct {
	Service  Service
	Webhooks WebhookDispatcher
	Guard    *auth.Guard
	Syncer   Syncer
	// WebhookPath overrides where the platform webhook mounts. It must match
	// the path the registrar advertises (core Config.CallbackURL); empty
	// means /webhook.
	WebhookPath string
	// Metrics serves GET /metrics when set, typically promhttp.Handler().
	Metrics http.Handler
	// Health is consulted by GET /healthz when set, typically a DB ping.
	Health func(ctx context.Context) error
	Logger core.Logger
}

// Server is the droplet's HTTP front. It owns an echo instance with the
// webhook, tenant, and ops routes mounted; Start and Shutdown delegate to
// echo's lifecycle.
type Server struct {
	echo     *echo.Echo
	service  Service
	webhooks WebhookDispatcher
	guard    *auth.Guard
	syncer   Syncer
	health   func(ctx context.Context) error
	log      core.Logger
}

func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Service == nil {
		return nil, fmt.Errorf("httpapi: core service is required")
	}
	if cfg.Webhooks == nil {
		return nil, fmt.Errorf("httpapi: webhook dispatcher is required")
	}
	if cfg.Guard == nil {
		return nil, fmt.Errorf("httpapi: tenant guard is required")
	}

	s := &Server{
		echo:     echo.New(),
		service:  cfg.Service,
		webhooks: cfg.Webhooks,
		guard:    cfg.Guard,
		syncer:   cfg.Syncer,
		health:   cfg.Health,
		log:      cfg.Logger,
	}
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.HTTPErrorHandler = newErrorHandler(s.logger())
	s.echo.Use(middleware.Recover())

	webhookPath := strings.TrimSpace(cfg.WebhookPath)
	if webhookPath == "" {
		webhookPath = "/webhook"
	}
	if !strings.HasPrefix(webhookPath, "/") {
		webhookPath = "/" + webhookPath
	}
	s.echo.POST(webhookPath, s.handleWebhook)
	s.echo.GET("/healthz", s.handleHealthz)
	if cfg.Metrics != nil {
		s.echo.GET("/metrics", echo.WrapHandler(cfg.Metrics))
	}

	installations := s.echo.Group("/api/installations")
	installations.POST(
		"/:installation_id/configuration",
		s.handleSubmitConfiguration,
		auth.OptionalInstallation(s.guard, installationParam),
	)
	installations.GET(
		"/:installation_id/status",
		s.handleStatus,
		auth.OptionalInstallation(s.guard, installationParam),
	)
	installations.GET(
		"/:installation_id/dashboard",
		s.handleDashboard,
		auth.RequireInstallation(s.guard, installationParam),
	)
	if cfg.Syncer != nil {
		installations.POST(
			"/:installation_id/sync",
			s.handleSync,
			auth.RequireInstallation(s.guard, installationParam),
		)
	}
	installations.DELETE(
		"/:installation_id",
		s.handleDisconnect,
		auth.RequireInstallation(s.guard, installationParam),
	)

	return s, nil
}

// Handler exposes the mounted routes, mostly for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) handleHealthz(c echo.Context) error {
	if s.health != nil {
		if err := s.health(c.Request().Context()); err != nil {
			s.logger().Warn("health check failed", "error", err.Error())
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
		}
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) logger() core.Logger {
	if s != nil && s.log != nil {
		return s.log
	}
	return glog.Ensure(nil)
}
