package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"folio/pkg/models"
)

// ServiceQuery filters ListServices. Zero values are not sent.
type ServiceQuery struct {
	Bookable *bool
	MinPrice *int64
	MaxPrice *int64
	Limit    int
	Offset   int
}

func (q ServiceQuery) values() url.Values {
	v := url.Values{}
	if q.Bookable != nil {
		v.Set("bookable", strconv.FormatBool(*q.Bookable))
	}
	if q.MinPrice != nil {
		v.Set("minPrice", strconv.FormatInt(*q.MinPrice, 10))
	}
	if q.MaxPrice != nil {
		v.Set("maxPrice", strconv.FormatInt(*q.MaxPrice, 10))
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Offset > 0 {
		v.Set("offset", strconv.Itoa(q.Offset))
	}
	return v
}

// ServiceForm mirrors the service form fields. Empty strings are sent as
// empty values, which clears nullable fields on update.
type ServiceForm struct {
	Title           string
	Details         string
	Icon            string
	PriceCents      string
	Currency        string
	IsBookable      string
	DurationMinutes string
	Image           *File
}

func (c *Client) ListServices(ctx context.Context, q ServiceQuery) ([]models.ServiceView, error) {
	var body struct {
		Services []models.ServiceView `json:"services"`
	}
	if err := c.get(ctx, "/services", q.values(), &body); err != nil {
		return nil, err
	}
	return body.Services, nil
}

func (c *Client) GetService(ctx context.Context, id string) (*models.ServiceView, error) {
	var body struct {
		Service models.ServiceView `json:"service"`
	}
	if err := c.get(ctx, "/services/"+url.PathEscape(id), nil, &body); err != nil {
		return nil, err
	}
	return &body.Service, nil
}

func (c *Client) CreateService(ctx context.Context, form ServiceForm) (*models.ServiceView, error) {
	fields := []formField{
		{"title", form.Title},
		{"details", form.Details},
		{"icon", form.Icon},
		{"price_cents", form.PriceCents},
		{"currency", form.Currency},
		{"is_bookable", form.IsBookable},
		{"duration_minutes", form.DurationMinutes},
	}
	var files []File
	if form.Image != nil {
		files = append(files, *form.Image)
	}

	body, contentType, err := encodeForm(fields, "image", files)
	if err != nil {
		return nil, fmt.Errorf("encode form: %w", err)
	}

	var out struct {
		Service models.ServiceView `json:"service"`
	}
	if err := c.send(ctx, http.MethodPost, c.url("/services"), body, contentType, &out); err != nil {
		return nil, err
	}
	return &out.Service, nil
}

func (c *Client) DeleteService(ctx context.Context, id string) error {
	return c.send(ctx, http.MethodDelete, c.url("/services/")+url.PathEscape(id), nil, "", nil)
}
