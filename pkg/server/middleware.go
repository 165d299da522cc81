package server

import (
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"folio/pkg/config"
	"folio/pkg/log"
	"folio/pkg/metrics"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

func requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			log.Debug().
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("remote_ip", v.RemoteIP).
				Msg("Request")
			return nil
		},
	})
}

func recordMetrics(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		start := time.Now()
		err := next(ctx)
		if err != nil {
			ctx.Error(err)
		}

		route := ctx.Path()
		if route == "" {
			route = "unmatched"
		}
		status := strconv.Itoa(ctx.Response().Status)
		metrics.RequestTotal.WithLabelValues(ctx.Request().Method, route, status).Inc()
		metrics.RequestDuration.WithLabelValues(ctx.Request().Method, route).Observe(time.Since(start).Seconds())
		return nil
	}
}

const (
	allowMethods = "GET, POST, PUT, DELETE, OPTIONS"
	allowHeaders = "Content-Type, Authorization, X-Internal-Secret, X-Signature, X-Timestamp"
	exposeHeader = "X-RateLimit-Limit, X-RateLimit-Remaining, X-RateLimit-Reset, Retry-After"
)

// cors reflects whitelisted origins and answers preflight requests itself.
func cors(cfg config.CORSConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			header := ctx.Response().Header()
			origin := ctx.Request().Header.Get(echo.HeaderOrigin)

			if slices.Contains(cfg.AllowedOrigins, "*") {
				header.Set(echo.HeaderAccessControlAllowOrigin, "*")
			} else if allow := allowedOrigin(cfg.AllowedOrigins, origin); allow != "" {
				header.Set(echo.HeaderAccessControlAllowOrigin, allow)
				header.Add(echo.HeaderVary, echo.HeaderOrigin)
				if cfg.AllowCredentials {
					header.Set(echo.HeaderAccessControlAllowCredentials, "true")
				}
			}
			header.Set(echo.HeaderAccessControlAllowMethods, allowMethods)
			header.Set(echo.HeaderAccessControlAllowHeaders, allowHeaders)
			header.Set(echo.HeaderAccessControlExposeHeaders, exposeHeader)
			header.Set(echo.HeaderAccessControlMaxAge, "86400")

			if ctx.Request().Method == http.MethodOptions {
				return ctx.String(http.StatusOK, "OK")
			}
			return next(ctx)
		}
	}
}

// allowedOrigin echoes origin when it is whitelisted and falls back to the
// first configured origin otherwise.
func allowedOrigin(allowed []string, origin string) string {
	if len(allowed) == 0 {
		return ""
	}
	if origin != "" && slices.ContainsFunc(allowed, func(a string) bool {
		return strings.EqualFold(strings.TrimSuffix(a, "/"), origin)
	}) {
		return origin
	}
	return allowed[0]
}
