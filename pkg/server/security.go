package server

import (
	"bytes"
	"crypto/subtle"
	"errors"
	"io"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"folio/pkg/apierr"
	"folio/pkg/config"
	"folio/pkg/log"
	"folio/pkg/metrics"
	"folio/pkg/ratelimit"
	"folio/pkg/signature"

	"github.com/labstack/echo/v4"
)

const (
	headerInternalSecret = "X-Internal-Secret"
	headerLimit          = "X-RateLimit-Limit"
	headerRemaining      = "X-RateLimit-Remaining"
	headerReset          = "X-RateLimit-Reset"
	headerRetryAfter     = "Retry-After"
)

var errSecretMismatch = errors.New("internal secret mismatch")

// SecurityConfig describes the checks applied to one route.
type SecurityConfig struct {
	// Name scopes rate-limit counters so policies do not share a window.
	Name           string
	RequireAuth    bool
	RateLimit      *ratelimit.Policy
	AllowedMethods []string
}

// Security returns a middleware running, in order, the rate limit, the
// method whitelist and authentication. Every rejection ends the chain.
func (srv *Server) Security(cfg SecurityConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			clientIP := ClientIP(ctx.Request())

			if cfg.RateLimit != nil {
				if err := srv.limit(ctx, cfg, clientIP); err != nil {
					return srv.fail(ctx, err)
				}
			}

			if len(cfg.AllowedMethods) > 0 && !slices.Contains(cfg.AllowedMethods, ctx.Request().Method) {
				return ctx.JSON(http.StatusMethodNotAllowed, map[string]string{"error": "Method not allowed"})
			}

			if cfg.RequireAuth {
				if err := srv.authenticate(ctx); err != nil {
					return srv.fail(ctx, err)
				}
			}

			ctx.Set(contextClientIP, clientIP)
			ctx.Set(contextRequestTime, srv.now())
			return next(ctx)
		}
	}
}

func (srv *Server) limit(ctx echo.Context, cfg SecurityConfig, clientIP string) error {
	res, err := srv.opts.Limiter.CheckPolicy(ctx.Request().Context(), cfg.Name+":"+clientIP, *cfg.RateLimit)
	if err != nil {
		// Store errors fail open.
		log.Error().Err(err).Str("policy", cfg.Name).Msg("Rate limit check failed")
		return nil
	}

	header := ctx.Response().Header()
	reset := strconv.FormatInt(apierr.RetryAfterSeconds(res.ResetIn), 10)
	header.Set(headerLimit, strconv.Itoa(cfg.RateLimit.Max))
	header.Set(headerRemaining, strconv.Itoa(res.Remaining))
	header.Set(headerReset, reset)

	if !res.Allowed {
		header.Set(headerRetryAfter, reset)
		metrics.RateLimited.WithLabelValues(cfg.Name).Inc()
		return apierr.RateLimited(res.ResetIn)
	}
	return nil
}

func (srv *Server) authenticate(ctx echo.Context) error {
	req := ctx.Request()
	if req.Method == http.MethodGet || req.Method == http.MethodHead {
		return nil
	}

	if token, ok := bearerToken(req); ok && srv.opts.Gate != nil {
		if _, err := srv.opts.Gate.Verify(token); err == nil {
			return nil
		}
	}

	scheme := srv.cfg.Security.AuthScheme
	err := srv.checkScheme(ctx, scheme)
	if err != nil {
		metrics.AuthFailures.WithLabelValues(scheme).Inc()
	}
	return err
}

func (srv *Server) checkScheme(ctx echo.Context, scheme string) error {
	req := ctx.Request()

	switch scheme {
	case config.AuthSchemeSignature:
		body, err := io.ReadAll(req.Body)
		if err != nil {
			return apierr.Validation("Failed to read request body")
		}
		req.Body = io.NopCloser(bytes.NewReader(body))

		err = srv.opts.Verifier.Verify(
			req.Header.Get(signature.HeaderSignature),
			req.Header.Get(signature.HeaderTimestamp),
			body, req.Method, req.URL.Path,
		)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, signature.ErrNotConfigured):
			return apierr.Configuration("signature verification", err)
		default:
			return apierr.Auth("Unauthorized: Invalid credentials", err)
		}

	default:
		secret := srv.cfg.Security.InternalSecret
		if secret == "" {
			return apierr.Configuration("internal secret", errors.New("INTERNAL_API_SECRET is not set"))
		}
		provided := req.Header.Get(headerInternalSecret)
		if subtle.ConstantTimeCompare([]byte(provided), []byte(secret)) != 1 {
			return apierr.Auth("Unauthorized: Invalid credentials", errSecretMismatch)
		}
		return nil
	}
}

func bearerToken(req *http.Request) (string, bool) {
	auth := req.Header.Get(echo.HeaderAuthorization)
	token, ok := strings.CutPrefix(auth, "Bearer ")
	token = strings.TrimSpace(token)
	return token, ok && token != ""
}

// ClientIP picks the caller address from proxy headers, falling back to the
// connection address.
func ClientIP(req *http.Request) string {
	if fwd := req.Header.Get(echo.HeaderXForwardedFor); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(req.Header.Get(echo.HeaderXRealIP)); ip != "" {
		return ip
	}
	if host := remoteHost(req.RemoteAddr); host != "" {
		return host
	}
	return "unknown"
}

func remoteHost(addr string) string {
	if i := strings.LastIndexByte(addr, ':'); i > 0 {
		addr = addr[:i]
	}
	return strings.Trim(addr, "[]")
}
