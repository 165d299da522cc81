package server

import (
	"embed"
	"html/template"
	"net/http"

	"folio/pkg/log"

	"github.com/labstack/echo/v4"
)

//go:embed docs/openapi.yml docs/swagger-ui.html
var docsFS embed.FS

var swaggerUI = template.Must(template.ParseFS(docsFS, "docs/swagger-ui.html"))

func (srv *Server) serveSwaggerUI(ctx echo.Context) error {
	data := struct {
		Title       string
		SwaggerPath string
	}{
		Title:       "folio API Documentation",
		SwaggerPath: "/swagger.yml",
	}

	ctx.Response().Header().Set(echo.HeaderContentType, echo.MIMETextHTMLCharsetUTF8)
	ctx.Response().WriteHeader(http.StatusOK)
	if err := swaggerUI.Execute(ctx.Response().Writer, data); err != nil {
		log.Error().Err(err).Msg("Failed to execute template")
		return err
	}
	return nil
}

func (srv *Server) serveSwaggerSpec(ctx echo.Context) error {
	spec, err := docsFS.ReadFile("docs/openapi.yml")
	if err != nil {
		return srv.fail(ctx, err)
	}
	return ctx.Blob(http.StatusOK, "application/yaml", spec)
}
