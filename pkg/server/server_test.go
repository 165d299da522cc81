package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"folio/pkg/blob"
	"folio/pkg/config"
	"folio/pkg/ratelimit"
	"folio/pkg/repository/sqlite"
	"folio/pkg/session"
	"folio/pkg/signature"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

const (
	testSecret   = "topsecret"
	testPassword = "hunter22"
)

type filePart struct {
	field       string
	name        string
	contentType string
	data        string
}

func multipartBody(fields map[string][]string, files ...filePart) (*bytes.Buffer, string) {
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)

	for name, values := range fields {
		for _, v := range values {
			_ = w.WriteField(name, v)
		}
	}
	for _, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, f.field, f.name))
		h.Set("Content-Type", f.contentType)
		part, _ := w.CreatePart(h)
		_, _ = io.WriteString(part, f.data)
	}
	_ = w.Close()

	return body, w.FormDataContentType()
}

type ServerTestSuite struct {
	suite.Suite
	cfg          *config.Config
	store        *sqlite.Store
	projectBlobs *blob.MemoryStore
	serviceBlobs *blob.MemoryStore
	loginLimiter *ratelimit.KeyedLimiter
	server       *Server
}

func (s *ServerTestSuite) SetupTest() {
	s.T().Setenv("CONFIG_PATH", "")

	cfg, err := config.Load("")
	s.Require().NoError(err)
	cfg.Environment = "production"
	cfg.Security.InternalSecret = testSecret
	cfg.Security.SignatureSecret = "edge"
	s.cfg = cfg

	s.store, err = sqlite.New(filepath.Join(s.T().TempDir(), "folio.db"))
	s.Require().NoError(err)
	s.Require().NoError(s.store.Initialize(context.Background()))

	s.projectBlobs = blob.NewMemoryStore("http://cdn.test/projects")
	s.serviceBlobs = blob.NewMemoryStore("http://cdn.test/services")
	s.loginLimiter = ratelimit.NewKeyedLimiter(60, 5, time.Minute)

	s.server = s.newServer()
}

func (s *ServerTestSuite) TearDownTest() {
	s.loginLimiter.Close()
	s.NoError(s.store.Close())
}

func (s *ServerTestSuite) newServer() *Server {
	return New(Options{
		Config:       s.cfg,
		Repo:         s.store,
		ProjectBlobs: s.projectBlobs,
		ServiceBlobs: s.serviceBlobs,
		Gate: session.NewGate(session.Options{
			Password: testPassword,
			Secret:   "jwt-secret",
		}),
		LoginLimiter: s.loginLimiter,
	})
}

func (s *ServerTestSuite) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.server.Echo().ServeHTTP(rec, req)
	return rec
}

func (s *ServerTestSuite) decode(rec *httptest.ResponseRecorder) map[string]interface{} {
	var out map[string]interface{}
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func (s *ServerTestSuite) projectForm(files ...filePart) (*bytes.Buffer, string) {
	return multipartBody(map[string][]string{
		"title":    {"Harbour house"},
		"details":  {"A timber frame house on the harbour front."},
		"services": {"design", "build"},
	}, files...)
}

func (s *ServerTestSuite) createProject(files ...filePart) map[string]interface{} {
	body, contentType := s.projectForm(files...)
	req := httptest.NewRequest(http.MethodPost, "/portfolio/projects", body)
	req.Header.Set(echo.HeaderContentType, contentType)
	req.Header.Set(headerInternalSecret, testSecret)

	rec := s.do(req)
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
	return s.decode(rec)["project"].(map[string]interface{})
}

func (s *ServerTestSuite) TestHealth() {
	rec := s.do(httptest.NewRequest(http.MethodGet, "/portfolio/health", nil))

	s.Equal(http.StatusOK, rec.Code)
	body := s.decode(rec)
	s.Equal("ok", body["status"])
	s.Equal("2.0.0", body["version"])
	s.Equal("portfolio", body["function"])
	s.NotEmpty(body["timestamp"])
}

func (s *ServerTestSuite) TestSecurityHeaders() {
	rec := s.do(httptest.NewRequest(http.MethodGet, "/portfolio/health", nil))

	s.Equal("DENY", rec.Header().Get("X-Frame-Options"))
	s.Equal("nosniff", rec.Header().Get("X-Content-Type-Options"))
	s.Equal("strict-origin-when-cross-origin", rec.Header().Get("Referrer-Policy"))
}

func (s *ServerTestSuite) TestListProjectsEmpty() {
	rec := s.do(httptest.NewRequest(http.MethodGet, "/portfolio/projects", nil))

	s.Equal(http.StatusOK, rec.Code)
	body := s.decode(rec)
	s.Equal(true, body["success"])
	s.Equal(float64(0), body["count"])
	s.Equal([]interface{}{}, body["projects"])
	s.Equal("100", rec.Header().Get(headerLimit))
	s.Equal("99", rec.Header().Get(headerRemaining))
}

func (s *ServerTestSuite) TestGetBypassesAuth() {
	project := s.createProject()

	req := httptest.NewRequest(http.MethodGet, "/portfolio/projects/"+project["id"].(string), nil)
	rec := s.do(req)

	s.Equal(http.StatusOK, rec.Code)
	s.Equal("Harbour house", s.decode(rec)["project"].(map[string]interface{})["title"])
}

func (s *ServerTestSuite) TestCreateWithoutSecret() {
	body, contentType := s.projectForm(filePart{"images", "a.png", "image/png", "png"})
	req := httptest.NewRequest(http.MethodPost, "/portfolio/projects", body)
	req.Header.Set(echo.HeaderContentType, contentType)

	rec := s.do(req)

	s.Equal(http.StatusUnauthorized, rec.Code)
	s.Equal("Unauthorized: Invalid credentials", s.decode(rec)["error"])
	s.Equal(0, s.projectBlobs.Len())
}

func (s *ServerTestSuite) TestCreateWithWrongSecret() {
	body, contentType := s.projectForm()
	req := httptest.NewRequest(http.MethodPost, "/portfolio/projects", body)
	req.Header.Set(echo.HeaderContentType, contentType)
	req.Header.Set(headerInternalSecret, "topsecreT")

	s.Equal(http.StatusUnauthorized, s.do(req).Code)
}

func (s *ServerTestSuite) TestMissingServerSecret() {
	s.cfg.Security.InternalSecret = ""

	body, contentType := s.projectForm()
	req := httptest.NewRequest(http.MethodPost, "/portfolio/projects", body)
	req.Header.Set(echo.HeaderContentType, contentType)
	req.Header.Set(headerInternalSecret, testSecret)

	rec := s.do(req)

	s.Equal(http.StatusInternalServerError, rec.Code)
	s.Equal(map[string]interface{}{"error": "Server configuration error"}, s.decode(rec))
}

func (s *ServerTestSuite) TestProjectLifecycle() {
	project := s.createProject(
		filePart{"images", "front.png", "image/png", "front"},
		filePart{"images", "back.webp", "image/webp", "back"},
	)
	id := project["id"].(string)

	urls := project["imageUrls"].([]interface{})
	s.Require().Len(urls, 2)
	s.True(strings.HasPrefix(urls[0].(string), "http://cdn.test/projects/"+id+"/"))
	s.Equal([]interface{}{"design", "build"}, project["services"])
	s.Equal(2, s.projectBlobs.Len())

	paths := project["imagePaths"].([]interface{})
	body, contentType := multipartBody(map[string][]string{
		"title":        {"Harbour house, restored"},
		"deleteImages": {paths[0].(string)},
	})
	req := httptest.NewRequest(http.MethodPut, "/portfolio/projects/"+id, body)
	req.Header.Set(echo.HeaderContentType, contentType)
	req.Header.Set(headerInternalSecret, testSecret)

	rec := s.do(req)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	updated := s.decode(rec)["project"].(map[string]interface{})
	s.Equal("Harbour house, restored", updated["title"])
	s.Equal([]interface{}{paths[1]}, updated["imagePaths"])
	s.NotNil(updated["updatedAt"])
	s.Equal(1, s.projectBlobs.Len())

	req = httptest.NewRequest(http.MethodDelete, "/portfolio/projects/"+id, nil)
	req.Header.Set(headerInternalSecret, testSecret)
	rec = s.do(req)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	deleted := s.decode(rec)
	s.Equal("Project "+id+" deleted", deleted["message"])
	s.Equal(float64(1), deleted["imagesRemoved"])
	s.Equal(0, s.projectBlobs.Len())

	rec = s.do(httptest.NewRequest(http.MethodGet, "/portfolio/projects/"+id, nil))
	s.Equal(http.StatusNotFound, rec.Code)
	s.Equal("Project not found", s.decode(rec)["error"])
}

func (s *ServerTestSuite) TestCollectionsAreIsolated() {
	project := s.createProject()

	rec := s.do(httptest.NewRequest(http.MethodGet, "/seadek/projects/"+project["id"].(string), nil))
	s.Equal(http.StatusNotFound, rec.Code)

	rec = s.do(httptest.NewRequest(http.MethodGet, "/seadek/projects", nil))
	s.Equal(float64(0), s.decode(rec)["count"])
}

func (s *ServerTestSuite) TestCreateValidation() {
	body, contentType := multipartBody(map[string][]string{
		"title":   {"ab"},
		"details": {"Long enough details"},
	}, filePart{"images", "a.png", "image/png", "png"})
	req := httptest.NewRequest(http.MethodPost, "/portfolio/projects", body)
	req.Header.Set(echo.HeaderContentType, contentType)
	req.Header.Set(headerInternalSecret, testSecret)

	rec := s.do(req)

	s.Equal(http.StatusBadRequest, rec.Code)
	s.Equal("Title is required (min 3 characters)", s.decode(rec)["error"])
	s.Equal(0, s.projectBlobs.Len())
}

func (s *ServerTestSuite) TestInvalidFileType() {
	body, contentType := s.projectForm(filePart{"images", "a.pdf", "application/pdf", "%PDF"})
	req := httptest.NewRequest(http.MethodPost, "/portfolio/projects", body)
	req.Header.Set(echo.HeaderContentType, contentType)
	req.Header.Set(headerInternalSecret, testSecret)

	rec := s.do(req)

	s.Equal(http.StatusBadRequest, rec.Code)
	s.Equal("Invalid file type: application/pdf", s.decode(rec)["error"])
}

func (s *ServerTestSuite) TestInvalidID() {
	rec := s.do(httptest.NewRequest(http.MethodGet, "/portfolio/projects/not-a-uuid", nil))

	s.Equal(http.StatusBadRequest, rec.Code)
	s.Equal("Invalid project ID format", s.decode(rec)["error"])
}

func (s *ServerTestSuite) TestRateLimit() {
	s.cfg.Security.PublicMax = 2
	s.server = s.newServer()

	for i := 0; i < 2; i++ {
		s.Equal(http.StatusOK, s.do(httptest.NewRequest(http.MethodGet, "/portfolio/projects", nil)).Code)
	}

	rec := s.do(httptest.NewRequest(http.MethodGet, "/portfolio/projects", nil))
	s.Equal(http.StatusTooManyRequests, rec.Code)
	body := s.decode(rec)
	s.Equal("Rate limit exceeded", body["error"])
	s.Equal(float64(60), body["retryAfter"])
	s.Equal("60", rec.Header().Get(headerRetryAfter))
	s.Equal("0", rec.Header().Get(headerRemaining))

	// Another client keeps its own window.
	req := httptest.NewRequest(http.MethodGet, "/portfolio/projects", nil)
	req.Header.Set(echo.HeaderXForwardedFor, "203.0.113.9, 10.0.0.1")
	s.Equal(http.StatusOK, s.do(req).Code)
}

func (s *ServerTestSuite) TestPreflight() {
	req := httptest.NewRequest(http.MethodOptions, "/portfolio/projects", nil)
	req.Header.Set(echo.HeaderOrigin, "http://localhost:3000")
	rec := s.do(req)

	s.Equal(http.StatusOK, rec.Code)
	s.Equal("OK", rec.Body.String())
	s.Equal("http://localhost:3000", rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
	s.Equal("true", rec.Header().Get(echo.HeaderAccessControlAllowCredentials))
	s.Contains(rec.Header().Get(echo.HeaderAccessControlAllowHeaders), "X-Internal-Secret")

	req = httptest.NewRequest(http.MethodOptions, "/portfolio/projects", nil)
	req.Header.Set(echo.HeaderOrigin, "https://evil.example")
	rec = s.do(req)
	s.Equal("http://localhost:3000", rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
}

func (s *ServerTestSuite) TestMethodNotAllowed() {
	req := httptest.NewRequest(http.MethodPatch, "/portfolio/projects", nil)
	rec := s.do(req)

	s.Equal(http.StatusMethodNotAllowed, rec.Code)
	s.Equal("Method not allowed", s.decode(rec)["error"])
}

func (s *ServerTestSuite) TestSessionLogin() {
	rec := s.do(jsonRequest(http.MethodPost, "/admin/session", `{"password":"wrong"}`))
	s.Equal(http.StatusUnauthorized, rec.Code)

	rec = s.do(jsonRequest(http.MethodPost, "/admin/session", `{"password":"`+testPassword+`"}`))
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	login := s.decode(rec)
	s.Equal(true, login["success"])
	token := login["token"].(string)
	s.NotEmpty(token)

	req := httptest.NewRequest(http.MethodGet, "/admin/session", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	rec = s.do(req)
	s.Equal(http.StatusOK, rec.Code)
	s.Equal(true, s.decode(rec)["authenticated"])

	// The bearer token stands in for the internal secret.
	body, contentType := s.projectForm()
	req = httptest.NewRequest(http.MethodPost, "/portfolio/projects", body)
	req.Header.Set(echo.HeaderContentType, contentType)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	s.Equal(http.StatusCreated, s.do(req).Code)
}

func (s *ServerTestSuite) TestSessionStatusWithoutToken() {
	rec := s.do(httptest.NewRequest(http.MethodGet, "/admin/session", nil))

	s.Equal(http.StatusUnauthorized, rec.Code)
	s.Equal(false, s.decode(rec)["authenticated"])
}

func (s *ServerTestSuite) TestLoginThrottle() {
	for i := 0; i < 5; i++ {
		s.do(jsonRequest(http.MethodPost, "/admin/session", `{"password":"wrong"}`))
	}

	rec := s.do(jsonRequest(http.MethodPost, "/admin/session", `{"password":"`+testPassword+`"}`))
	s.Equal(http.StatusTooManyRequests, rec.Code)
	s.Equal("60", rec.Header().Get("Retry-After"))
	s.EqualValues(60, s.decode(rec)["retryAfter"])
}

func (s *ServerTestSuite) TestLoginThrottleIgnoresForwardedFor() {
	for i := 0; i < 5; i++ {
		req := jsonRequest(http.MethodPost, "/admin/session", `{"password":"wrong"}`)
		req.Header.Set(echo.HeaderXForwardedFor, fmt.Sprintf("203.0.113.%d", i+1))
		s.do(req)
	}

	req := jsonRequest(http.MethodPost, "/admin/session", `{"password":"wrong"}`)
	req.Header.Set(echo.HeaderXForwardedFor, "203.0.113.99")
	rec := s.do(req)
	s.Equal(http.StatusTooManyRequests, rec.Code)
}

func (s *ServerTestSuite) TestLoginThrottleBehindTrustedProxy() {
	s.cfg.Server.TrustedProxies = []string{"192.0.2.0/24"}
	s.server = s.newServer()

	for i := 0; i < 5; i++ {
		req := jsonRequest(http.MethodPost, "/admin/session", `{"password":"wrong"}`)
		req.Header.Set(echo.HeaderXForwardedFor, "203.0.113.1")
		s.do(req)
	}

	req := jsonRequest(http.MethodPost, "/admin/session", `{"password":"wrong"}`)
	req.Header.Set(echo.HeaderXForwardedFor, "203.0.113.1")
	s.Equal(http.StatusTooManyRequests, s.do(req).Code)

	req = jsonRequest(http.MethodPost, "/admin/session", `{"password":"wrong"}`)
	req.Header.Set(echo.HeaderXForwardedFor, "203.0.113.2")
	s.Equal(http.StatusUnauthorized, s.do(req).Code)
}

func (s *ServerTestSuite) TestSignatureScheme() {
	s.cfg.Security.AuthScheme = config.AuthSchemeSignature
	s.server = s.newServer()

	body, contentType := s.projectForm()
	raw := body.Bytes()
	ts := signature.Timestamp(time.Now())

	req := httptest.NewRequest(http.MethodPost, "/portfolio/projects", bytes.NewReader(raw))
	req.Header.Set(echo.HeaderContentType, contentType)
	req.Header.Set(signature.HeaderTimestamp, ts)
	req.Header.Set(signature.HeaderSignature, signature.Sign("edge", ts, http.MethodPost, "/portfolio/projects", raw))
	rec := s.do(req)
	s.Equal(http.StatusCreated, rec.Code, rec.Body.String())

	req = httptest.NewRequest(http.MethodPost, "/portfolio/projects", bytes.NewReader(raw))
	req.Header.Set(echo.HeaderContentType, contentType)
	req.Header.Set(signature.HeaderTimestamp, ts)
	req.Header.Set(signature.HeaderSignature, signature.Sign("edge", ts, http.MethodPost, "/seadek/projects", raw))
	s.Equal(http.StatusUnauthorized, s.do(req).Code)

	// The internal secret is not accepted under this scheme.
	req = httptest.NewRequest(http.MethodPost, "/portfolio/projects", bytes.NewReader(raw))
	req.Header.Set(echo.HeaderContentType, contentType)
	req.Header.Set(headerInternalSecret, testSecret)
	s.Equal(http.StatusUnauthorized, s.do(req).Code)
}

func (s *ServerTestSuite) TestSignatureSchemeNotConfigured() {
	s.cfg.Security.AuthScheme = config.AuthSchemeSignature
	s.cfg.Security.SignatureSecret = ""
	s.server = s.newServer()

	body, contentType := s.projectForm()
	req := httptest.NewRequest(http.MethodPost, "/portfolio/projects", body)
	req.Header.Set(echo.HeaderContentType, contentType)

	s.Equal(http.StatusInternalServerError, s.do(req).Code)
}

func (s *ServerTestSuite) TestServiceLifecycle() {
	body, contentType := multipartBody(map[string][]string{
		"title":            {"Sea trial"},
		"details":          {"Half a day on the water with a skipper."},
		"icon":             {"anchor"},
		"price_cents":      {"250000"},
		"currency":         {"eur"},
		"is_bookable":      {"true"},
		"duration_minutes": {"240"},
	}, filePart{"image", "logo.svg", "image/svg+xml", "<svg/>"})
	req := httptest.NewRequest(http.MethodPost, "/catalog/services", body)
	req.Header.Set(echo.HeaderContentType, contentType)
	req.Header.Set(headerInternalSecret, testSecret)

	rec := s.do(req)
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
	service := s.decode(rec)["service"].(map[string]interface{})
	id := service["id"].(string)

	s.Equal("anchor", service["icon"])
	s.Equal(true, service["isBookable"])
	s.Equal(float64(240), service["durationMinutes"])
	s.Equal(map[string]interface{}{
		"amount":    float64(250000),
		"currency":  "EUR",
		"formatted": "€2,500.00",
	}, service["price"])
	s.True(strings.HasPrefix(service["imageUrl"].(string), "http://cdn.test/services/"+id+"/"))
	s.Equal(1, s.serviceBlobs.Len())

	rec = s.do(httptest.NewRequest(http.MethodGet, "/catalog/services?bookable=true&minPrice=100000", nil))
	s.Equal(float64(1), s.decode(rec)["count"])
	rec = s.do(httptest.NewRequest(http.MethodGet, "/catalog/services?bookable=false", nil))
	s.Equal(float64(0), s.decode(rec)["count"])
	rec = s.do(httptest.NewRequest(http.MethodGet, "/catalog/services?maxPrice=abc", nil))
	s.Equal(http.StatusBadRequest, rec.Code)

	body, contentType = multipartBody(map[string][]string{
		"price_cents":  {""},
		"icon":         {"null"},
		"delete_image": {"true"},
	})
	req = httptest.NewRequest(http.MethodPut, "/catalog/services/"+id, body)
	req.Header.Set(echo.HeaderContentType, contentType)
	req.Header.Set(headerInternalSecret, testSecret)
	rec = s.do(req)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	updated := s.decode(rec)["service"].(map[string]interface{})
	s.Nil(updated["price"])
	s.Nil(updated["icon"])
	s.Nil(updated["imageUrl"])
	s.Equal("Sea trial", updated["title"])
	s.Equal(0, s.serviceBlobs.Len())

	req = httptest.NewRequest(http.MethodDelete, "/catalog/services/"+id, nil)
	req.Header.Set(headerInternalSecret, testSecret)
	rec = s.do(req)
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Equal("Service "+id+" deleted", s.decode(rec)["message"])

	rec = s.do(httptest.NewRequest(http.MethodGet, "/catalog/services/"+id, nil))
	s.Equal(http.StatusNotFound, rec.Code)
}

func (s *ServerTestSuite) TestMetricsEndpoint() {
	s.do(httptest.NewRequest(http.MethodGet, "/catalog/health", nil))

	rec := s.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	s.Equal(http.StatusOK, rec.Code)
	s.Contains(rec.Body.String(), "folio_http_requests_total")
}

func (s *ServerTestSuite) TestSecurityMiddlewareShortCircuits() {
	mw := s.server.Security(SecurityConfig{
		Name:           "test",
		AllowedMethods: []string{http.MethodGet},
	})
	called := false
	handler := mw(func(ctx echo.Context) error {
		called = true
		return ctx.NoContent(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	rec := httptest.NewRecorder()
	s.Require().NoError(handler(s.server.Echo().NewContext(req, rec)))
	s.Equal(http.StatusMethodNotAllowed, rec.Code)
	s.False(called)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	rec = httptest.NewRecorder()
	ctx := s.server.Echo().NewContext(req, rec)
	s.Require().NoError(handler(ctx))
	s.True(called)
	s.Equal("192.0.2.1", ctx.Get(contextClientIP))
	s.NotNil(ctx.Get(contextRequestTime))
}

func (s *ServerTestSuite) TestRequireAuthLetsReadsThrough() {
	mw := s.server.Security(SecurityConfig{
		Name:           "test",
		RequireAuth:    true,
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
	})
	called := 0
	handler := mw(func(ctx echo.Context) error {
		called++
		return ctx.NoContent(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	s.Require().NoError(handler(s.server.Echo().NewContext(req, rec)))
	s.Equal(http.StatusNoContent, rec.Code)
	s.Equal(1, called)

	req = httptest.NewRequest(http.MethodPost, "/", nil)
	rec = httptest.NewRecorder()
	s.Require().NoError(handler(s.server.Echo().NewContext(req, rec)))
	s.Equal(http.StatusUnauthorized, rec.Code)
	s.Equal(1, called)

	req = httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("X-Internal-Secret", testSecret)
	rec = httptest.NewRecorder()
	s.Require().NoError(handler(s.server.Echo().NewContext(req, rec)))
	s.Equal(http.StatusNoContent, rec.Code)
	s.Equal(2, called)
}

func jsonRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}

func TestServerTestSuite(t *testing.T) {
	suite.Run(t, new(ServerTestSuite))
}

func TestCORSWildcardDropsCredentials(t *testing.T) {
	mw := cors(config.CORSConfig{AllowedOrigins: []string{"*"}, AllowCredentials: true})
	handler := mw(func(ctx echo.Context) error { return ctx.NoContent(http.StatusNoContent) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(echo.HeaderOrigin, "https://anyone.example")
	rec := httptest.NewRecorder()
	assert.NoError(t, handler(echo.New().NewContext(req, rec)))

	assert.Equal(t, "*", rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
	assert.Empty(t, rec.Header().Get(echo.HeaderAccessControlAllowCredentials))
}

func TestIPExtractor(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.1.2.3:4567"
	req.Header.Set(echo.HeaderXForwardedFor, "203.0.113.7")

	assert.Equal(t, "10.1.2.3", ipExtractor(nil)(req))
	assert.Equal(t, "203.0.113.7", ipExtractor([]string{"10.0.0.0/8"})(req))
	assert.Equal(t, "10.1.2.3", ipExtractor([]string{"192.168.0.0/16"})(req))
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"forwarded first entry", map[string]string{"X-Forwarded-For": " 203.0.113.5 , 10.0.0.1"}, "192.0.2.1:1234", "203.0.113.5"},
		{"real ip", map[string]string{"X-Real-IP": "198.51.100.7"}, "192.0.2.1:1234", "198.51.100.7"},
		{"remote addr", nil, "192.0.2.1:1234", "192.0.2.1"},
		{"ipv6 remote", nil, "[2001:db8::1]:443", "2001:db8::1"},
		{"nothing", nil, "", "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, ClientIP(req))
		})
	}
}

func TestBodyLimit(t *testing.T) {
	assert.Equal(t, "112640K", bodyLimit(10*1024*1024))
	assert.Equal(t, "1K", bodyLimit(10))
}

func (s *ServerTestSuite) TestDocs() {
	rec := s.do(httptest.NewRequest(http.MethodGet, "/docs", nil))
	s.Equal(http.StatusOK, rec.Code)
	s.Contains(rec.Body.String(), "folio API Documentation")
	s.Contains(rec.Body.String(), "swagger.yml")

	rec = s.do(httptest.NewRequest(http.MethodGet, "/swagger.yml", nil))
	s.Equal(http.StatusOK, rec.Code)
	s.Contains(rec.Body.String(), "/{function}/projects:")
}
