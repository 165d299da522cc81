package server

import (
	"fmt"
	"net/http"

	"folio/pkg/blob"
	"folio/pkg/models"
	"folio/pkg/resource"

	"github.com/labstack/echo/v4"
)

type projectAPI struct {
	srv   *Server
	flows *resource.Projects
	blobs blob.Store
}

func (api *projectAPI) view(p *models.Project) models.ProjectView {
	return models.NewProjectView(p, api.blobs.PublicURL)
}

func (api *projectAPI) list(ctx echo.Context) error {
	projects, err := api.flows.List(ctx.Request().Context())
	if err != nil {
		return api.srv.fail(ctx, err)
	}

	views := make([]models.ProjectView, 0, len(projects))
	for i := range projects {
		views = append(views, api.view(&projects[i]))
	}

	return ctx.JSON(http.StatusOK, map[string]interface{}{
		"success":  true,
		"projects": views,
		"count":    len(views),
	})
}

func (api *projectAPI) get(ctx echo.Context) error {
	project, err := api.flows.Get(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return api.srv.fail(ctx, err)
	}

	return ctx.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"project": api.view(project),
	})
}

func (api *projectAPI) create(ctx echo.Context) error {
	f, err := readForm(ctx)
	if err != nil {
		return api.srv.fail(ctx, err)
	}

	project, err := api.flows.Create(ctx.Request().Context(), resource.ProjectInput{
		Title:    f.value("title"),
		Details:  f.value("details"),
		Services: f.all("services"),
		Images:   f.uploads("images"),
	})
	if err != nil {
		return api.srv.fail(ctx, err)
	}

	return ctx.JSON(http.StatusCreated, map[string]interface{}{
		"success": true,
		"project": api.view(project),
	})
}

func (api *projectAPI) update(ctx echo.Context) error {
	f, err := readForm(ctx)
	if err != nil {
		return api.srv.fail(ctx, err)
	}

	patch := resource.ProjectPatch{
		Title:        f.field("title"),
		Details:      f.field("details"),
		DeleteImages: f.all("deleteImages"),
		Images:       f.uploads("images"),
	}
	if services := f.all("services"); len(services) > 0 {
		patch.Services = &services
	}

	project, err := api.flows.Update(ctx.Request().Context(), ctx.Param("id"), patch)
	if err != nil {
		return api.srv.fail(ctx, err)
	}

	return ctx.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"project": api.view(project),
	})
}

func (api *projectAPI) delete(ctx echo.Context) error {
	id := ctx.Param("id")
	removed, err := api.flows.Delete(ctx.Request().Context(), id)
	if err != nil {
		return api.srv.fail(ctx, err)
	}

	return ctx.JSON(http.StatusOK, map[string]interface{}{
		"success":       true,
		"message":       fmt.Sprintf("Project %s deleted", id),
		"imagesRemoved": removed,
	})
}
