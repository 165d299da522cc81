package server

import (
	"fmt"
	"net/http"
	"strconv"

	"folio/pkg/apierr"
	"folio/pkg/blob"
	"folio/pkg/models"
	"folio/pkg/resource"

	"github.com/labstack/echo/v4"
)

type serviceAPI struct {
	srv   *Server
	flows *resource.Services
	blobs blob.Store
}

func (api *serviceAPI) view(s *models.Service) models.ServiceView {
	return models.NewServiceView(s, api.blobs.PublicURL)
}

func (api *serviceAPI) list(ctx echo.Context) error {
	filter, err := serviceFilter(ctx)
	if err != nil {
		return api.srv.fail(ctx, err)
	}

	services, err := api.flows.List(ctx.Request().Context(), filter)
	if err != nil {
		return api.srv.fail(ctx, err)
	}

	views := make([]models.ServiceView, 0, len(services))
	for i := range services {
		views = append(views, api.view(&services[i]))
	}

	return ctx.JSON(http.StatusOK, map[string]interface{}{
		"success":  true,
		"services": views,
		"count":    len(views),
	})
}

// serviceFilter reads bookable, minPrice, maxPrice, limit and offset.
func serviceFilter(ctx echo.Context) (models.ServiceFilter, error) {
	var filter models.ServiceFilter

	if raw := ctx.QueryParam("bookable"); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return filter, apierr.Validation("Invalid bookable filter: %s", raw)
		}
		filter.Bookable = &b
	}

	var err error
	if filter.MinPrice, err = queryInt64(ctx, "minPrice"); err != nil {
		return filter, err
	}
	if filter.MaxPrice, err = queryInt64(ctx, "maxPrice"); err != nil {
		return filter, err
	}

	limit, err := queryInt64(ctx, "limit")
	if err != nil {
		return filter, err
	}
	if limit != nil {
		filter.Limit = int(*limit)
	}

	offset, err := queryInt64(ctx, "offset")
	if err != nil {
		return filter, err
	}
	if offset != nil {
		filter.Offset = int(*offset)
	}

	return filter, nil
}

func queryInt64(ctx echo.Context, name string) (*int64, error) {
	raw := ctx.QueryParam(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, apierr.Validation("Invalid %s: %s", name, raw)
	}
	return &v, nil
}

func (api *serviceAPI) get(ctx echo.Context) error {
	service, err := api.flows.Get(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return api.srv.fail(ctx, err)
	}

	return ctx.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"service": api.view(service),
	})
}

func (api *serviceAPI) create(ctx echo.Context) error {
	f, err := readForm(ctx)
	if err != nil {
		return api.srv.fail(ctx, err)
	}

	service, err := api.flows.Create(ctx.Request().Context(), resource.ServiceInput{
		Title:           f.value("title"),
		Details:         f.value("details"),
		Icon:            f.value("icon"),
		PriceCents:      f.value("price_cents"),
		Currency:        f.value("currency"),
		IsBookable:      f.value("is_bookable"),
		DurationMinutes: f.value("duration_minutes"),
		Images:          f.uploads("image"),
	})
	if err != nil {
		return api.srv.fail(ctx, err)
	}

	return ctx.JSON(http.StatusCreated, map[string]interface{}{
		"success": true,
		"service": api.view(service),
	})
}

func (api *serviceAPI) update(ctx echo.Context) error {
	f, err := readForm(ctx)
	if err != nil {
		return api.srv.fail(ctx, err)
	}

	service, err := api.flows.Update(ctx.Request().Context(), ctx.Param("id"), resource.ServicePatch{
		Title:           f.field("title"),
		Details:         f.field("details"),
		Icon:            f.field("icon"),
		PriceCents:      f.field("price_cents"),
		Currency:        f.field("currency"),
		IsBookable:      f.field("is_bookable"),
		DurationMinutes: f.field("duration_minutes"),
		DeleteImage:     f.value("delete_image") == "true",
		Images:          f.uploads("image"),
	})
	if err != nil {
		return api.srv.fail(ctx, err)
	}

	return ctx.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"service": api.view(service),
	})
}

func (api *serviceAPI) delete(ctx echo.Context) error {
	id := ctx.Param("id")
	if err := api.flows.Delete(ctx.Request().Context(), id); err != nil {
		return api.srv.fail(ctx, err)
	}

	return ctx.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"message": fmt.Sprintf("Service %s deleted", id),
	})
}
