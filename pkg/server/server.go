package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"folio/pkg/apierr"
	"folio/pkg/blob"
	"folio/pkg/config"
	"folio/pkg/log"
	"folio/pkg/metrics"
	"folio/pkg/ratelimit"
	"folio/pkg/repository"
	"folio/pkg/resource"
	"folio/pkg/session"
	"folio/pkg/signature"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

const (
	contextClientIP    = "clientIP"
	contextRequestTime = "requestTime"

	policyPublic    = "public"
	policyProtected = "protected"
)

// Options are the collaborators of a Server.
type Options struct {
	Config       *config.Config
	Repo         repository.Repository
	ProjectBlobs blob.Store
	ServiceBlobs blob.Store
	Limiter      *ratelimit.Limiter
	Verifier     *signature.Verifier
	Gate         *session.Gate
	LoginLimiter *ratelimit.KeyedLimiter
	// FilesDir is served under /files when blobs live on local disk.
	FilesDir string
	Now      func() time.Time
}

type Server struct {
	echo *echo.Echo
	cfg  *config.Config
	opts Options
	now  func() time.Time
}

// New builds the server and registers every route.
func New(opts Options) *Server {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Limiter == nil {
		opts.Limiter = ratelimit.New(ratelimit.NewMemoryStore())
	}
	if opts.Verifier == nil {
		opts.Verifier = signature.NewVerifier(opts.Config.Security.SignatureSecret, opts.Config.Security.SignatureWindow)
	}

	srv := &Server{
		echo: echo.New(),
		cfg:  opts.Config,
		opts: opts,
		now:  opts.Now,
	}
	srv.setupRoutes()
	return srv
}

// Echo exposes the router, mainly for tests.
func (srv *Server) Echo() *echo.Echo {
	return srv.echo
}

// Start serves on addr until SIGINT or SIGTERM, then shuts down gracefully.
func (srv *Server) Start(addr string) error {
	go func() {
		log.Info().
			Str("addr", addr).
			Str("version", srv.cfg.Server.Version).
			Str("auth_scheme", srv.cfg.Security.AuthScheme).
			Int("functions", len(srv.cfg.FunctionList())).
			Msg("Starting folio server")

		if err := srv.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server startup failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	return srv.Shutdown()
}

func (srv *Server) Shutdown() error {
	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), srv.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.echo.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
		return err
	}

	log.Info().Msg("Server gracefully stopped")
	return nil
}

func (srv *Server) setupRoutes() {
	srv.echo.HideBanner = true
	srv.echo.HidePort = true
	srv.echo.HTTPErrorHandler = srv.handleError
	srv.echo.IPExtractor = ipExtractor(srv.cfg.Server.TrustedProxies)

	srv.echo.Use(middleware.Recover())
	srv.echo.Use(requestLogger())
	srv.echo.Use(recordMetrics)
	srv.echo.Use(middleware.SecureWithConfig(middleware.SecureConfig{
		XSSProtection:      "1; mode=block",
		ContentTypeNosniff: "nosniff",
		XFrameOptions:      "DENY",
		ReferrerPolicy:     "strict-origin-when-cross-origin",
	}))
	srv.echo.Use(cors(srv.cfg.CORS))
	srv.echo.Use(middleware.BodyLimit(bodyLimit(srv.cfg.Storage.MaxUploadBytes)))

	srv.echo.GET("/metrics", echo.WrapHandler(metrics.Handler()))
	srv.echo.GET("/docs", srv.serveSwaggerUI)
	srv.echo.GET("/swagger.yml", srv.serveSwaggerSpec)

	admin := srv.echo.Group("/admin")
	admin.POST("/session", srv.createSession)
	admin.GET("/session", srv.sessionStatus)

	if srv.opts.FilesDir != "" {
		srv.echo.Static("/files", srv.opts.FilesDir)
	}

	public := srv.Security(SecurityConfig{
		Name:           policyPublic,
		RateLimit:      &ratelimit.Policy{Window: srv.cfg.Security.PublicWindow, Max: srv.cfg.Security.PublicMax},
		AllowedMethods: []string{http.MethodGet, http.MethodHead},
	})
	protected := srv.Security(SecurityConfig{
		Name:           policyProtected,
		RequireAuth:    true,
		RateLimit:      &ratelimit.Policy{Window: srv.cfg.Security.ProtectedWindow, Max: srv.cfg.Security.ProtectedMax},
		AllowedMethods: []string{http.MethodPost, http.MethodPut, http.MethodDelete},
	})

	for _, fn := range srv.cfg.FunctionList() {
		group := srv.echo.Group("/" + fn.Name)
		group.GET("/health", srv.health(fn))

		deps := resource.Deps{
			Logger:         log.Component(fn.Name),
			Now:            srv.now,
			MaxUploadBytes: srv.cfg.Storage.MaxUploadBytes,
		}

		switch fn.Kind {
		case config.KindProjects:
			deps.Blobs = srv.opts.ProjectBlobs
			api := &projectAPI{srv: srv, flows: resource.NewProjects(fn.Collection, srv.opts.Repo, deps), blobs: deps.Blobs}
			group.GET("/projects", api.list, public)
			group.GET("/projects/:id", api.get, public)
			group.POST("/projects", api.create, protected)
			group.PUT("/projects/:id", api.update, protected)
			group.DELETE("/projects/:id", api.delete, protected)
		case config.KindServices:
			deps.Blobs = srv.opts.ServiceBlobs
			api := &serviceAPI{srv: srv, flows: resource.NewServices(fn.Collection, srv.opts.Repo, deps), blobs: deps.Blobs}
			group.GET("/services", api.list, public)
			group.GET("/services/:id", api.get, public)
			group.POST("/services", api.create, protected)
			group.PUT("/services/:id", api.update, protected)
			group.DELETE("/services/:id", api.delete, protected)
		}
	}
}

func (srv *Server) health(fn config.Function) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		return ctx.JSON(http.StatusOK, map[string]interface{}{
			"status":    "ok",
			"function":  fn.Name,
			"kind":      fn.Kind,
			"timestamp": srv.now().UTC(),
			"version":   srv.cfg.Server.Version,
		})
	}
}

// fail writes the JSON error body for err.
func (srv *Server) fail(ctx echo.Context, err error) error {
	status := apierr.Status(err)
	event := log.Warn()
	if status >= http.StatusInternalServerError {
		event = log.Error()
	}
	event.Err(err).Str("method", ctx.Request().Method).Str("path", ctx.Path()).Int("status", status).
		Msg("Request failed")

	var apiErr *apierr.Error
	if errors.As(err, &apiErr) && apiErr.Kind == apierr.KindRateLimit && apiErr.RetryAfter > 0 {
		ctx.Response().Header().Set(headerRetryAfter,
			strconv.FormatInt(apierr.RetryAfterSeconds(apiErr.RetryAfter), 10))
	}

	return ctx.JSON(status, apierr.Body(err, srv.cfg.IsDevelopment()))
}

// handleError renders router and middleware errors in the same JSON shape
// as handler failures.
func (srv *Server) handleError(err error, ctx echo.Context) {
	if ctx.Response().Committed {
		return
	}

	var he *echo.HTTPError
	if !errors.As(err, &he) {
		_ = srv.fail(ctx, err)
		return
	}

	msg := http.StatusText(he.Code)
	switch he.Code {
	case http.StatusMethodNotAllowed:
		msg = "Method not allowed"
	case http.StatusNotFound:
		msg = "Not found"
	}

	if ctx.Request().Method == http.MethodHead {
		_ = ctx.NoContent(he.Code)
		return
	}
	_ = ctx.JSON(he.Code, map[string]string{"error": msg})
}

// ipExtractor resolves RealIP for the login throttle. X-Forwarded-For is
// only read when the connection comes from one of the trusted CIDRs.
func ipExtractor(trusted []string) echo.IPExtractor {
	if len(trusted) == 0 {
		return echo.ExtractIPDirect()
	}

	opts := []echo.TrustOption{
		echo.TrustLoopback(false),
		echo.TrustLinkLocal(false),
		echo.TrustPrivateNet(false),
	}
	for _, cidr := range trusted {
		_, ipNet, err := net.ParseCIDR(strings.TrimSpace(cidr))
		if err != nil {
			log.Warn().Str("cidr", cidr).Msg("Ignoring invalid trusted proxy range")
			continue
		}
		opts = append(opts, echo.TrustIPRange(ipNet))
	}
	return echo.ExtractIPFromXFFHeader(opts...)
}

// bodyLimit sizes the request cap for ten images plus form fields.
func bodyLimit(maxUpload int64) string {
	if maxUpload <= 0 {
		maxUpload = resource.DefaultMaxUploadBytes
	}
	kb := maxUpload * 11 / 1024
	if kb < 1 {
		kb = 1
	}
	return fmt.Sprintf("%dK", kb)
}
