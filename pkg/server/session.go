package server

import (
	"net/http"
	"time"

	"folio/pkg/apierr"
	"folio/pkg/metrics"
	"folio/pkg/session"

	"github.com/labstack/echo/v4"
)

type loginRequest struct {
	Password string `json:"password"`
}

// throttle applies the per-IP login bucket. It keys on RealIP, which only
// honours X-Forwarded-For from trusted proxies.
func (srv *Server) throttle(ctx echo.Context) error {
	if srv.opts.LoginLimiter == nil {
		return nil
	}
	if !srv.opts.LoginLimiter.Allow(ctx.RealIP()) {
		return apierr.RateLimited(time.Minute)
	}
	return nil
}

func (srv *Server) gate() (*session.Gate, error) {
	if srv.opts.Gate == nil || !srv.opts.Gate.Configured() {
		return nil, apierr.Configuration("admin session", session.ErrNotConfigured)
	}
	return srv.opts.Gate, nil
}

func (srv *Server) createSession(ctx echo.Context) error {
	if err := srv.throttle(ctx); err != nil {
		return srv.fail(ctx, err)
	}
	gate, err := srv.gate()
	if err != nil {
		return srv.fail(ctx, err)
	}

	var req loginRequest
	if err := ctx.Bind(&req); err != nil {
		return srv.fail(ctx, apierr.Validation("Invalid request body"))
	}

	token, err := gate.Login(req.Password)
	if err != nil {
		if apierr.Is(err, apierr.KindAuth) {
			metrics.AuthFailures.WithLabelValues("session").Inc()
		}
		return srv.fail(ctx, err)
	}

	return ctx.JSON(http.StatusOK, map[string]interface{}{
		"success":   true,
		"token":     token.Value,
		"expiresAt": token.ExpiresAt,
	})
}

func (srv *Server) sessionStatus(ctx echo.Context) error {
	if err := srv.throttle(ctx); err != nil {
		return srv.fail(ctx, err)
	}
	gate, err := srv.gate()
	if err != nil {
		return srv.fail(ctx, err)
	}

	token, ok := bearerToken(ctx.Request())
	if !ok {
		return ctx.JSON(http.StatusUnauthorized, map[string]interface{}{"authenticated": false})
	}

	claims, err := gate.Verify(token)
	if err != nil {
		return ctx.JSON(http.StatusUnauthorized, map[string]interface{}{"authenticated": false})
	}

	return ctx.JSON(http.StatusOK, map[string]interface{}{
		"authenticated": true,
		"expiresAt":     claims.ExpiresAt.Time,
	})
}
