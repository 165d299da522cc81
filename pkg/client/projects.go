package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// Project is a project as read from any deployment. Older deployments
// used other field names; Normalize folds them into this shape.
type Project struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Details     string   `json:"details,omitempty"`
	ImageURLs   []string `json:"imageUrls"`
	ImagePaths  []string `json:"imagePaths,omitempty"`
	Services    []string `json:"services"`
	CreatedAt   string   `json:"createdAt"`
	UpdatedAt   string   `json:"updatedAt,omitempty"`
}

// ProjectForm is the create form. Update uses ProjectChanges.
type ProjectForm struct {
	Title    string
	Details  string
	Services []string
	Images   []File
}

// ProjectChanges only sends the fields that are set.
type ProjectChanges struct {
	Title        *string
	Details      *string
	Services     []string
	DeleteImages []string
	Images       []File
}

func (c *Client) ListProjects(ctx context.Context) ([]Project, error) {
	var body struct {
		Projects []map[string]interface{} `json:"projects"`
	}
	if err := c.get(ctx, "/projects", nil, &body); err != nil {
		return nil, err
	}
	return Normalize(body.Projects), nil
}

func (c *Client) GetProject(ctx context.Context, id string) (*Project, error) {
	var body struct {
		Project map[string]interface{} `json:"project"`
	}
	if err := c.get(ctx, "/projects/"+url.PathEscape(id), nil, &body); err != nil {
		return nil, err
	}
	p := normalizeOne(body.Project, 0)
	return &p, nil
}

func (c *Client) CreateProject(ctx context.Context, form ProjectForm) (*Project, error) {
	fields := []formField{{"title", form.Title}, {"details", form.Details}}
	for _, s := range form.Services {
		fields = append(fields, formField{"services", s})
	}
	return c.writeProject(ctx, http.MethodPost, "/projects", fields, form.Images)
}

func (c *Client) UpdateProject(ctx context.Context, id string, changes ProjectChanges) (*Project, error) {
	var fields []formField
	if changes.Title != nil {
		fields = append(fields, formField{"title", *changes.Title})
	}
	if changes.Details != nil {
		fields = append(fields, formField{"details", *changes.Details})
	}
	for _, s := range changes.Services {
		fields = append(fields, formField{"services", s})
	}
	for _, p := range changes.DeleteImages {
		fields = append(fields, formField{"deleteImages", p})
	}
	return c.writeProject(ctx, http.MethodPut, "/projects/"+url.PathEscape(id), fields, changes.Images)
}

func (c *Client) writeProject(ctx context.Context, method, path string, fields []formField, images []File) (*Project, error) {
	body, contentType, err := encodeForm(fields, "images", images)
	if err != nil {
		return nil, fmt.Errorf("encode form: %w", err)
	}

	var out struct {
		Project Project `json:"project"`
	}
	if err := c.send(ctx, method, c.url(path), body, contentType, &out); err != nil {
		return nil, err
	}
	return &out.Project, nil
}

// DeleteProject returns the number of images that were removed.
func (c *Client) DeleteProject(ctx context.Context, id string) (int, error) {
	var out struct {
		ImagesRemoved int `json:"imagesRemoved"`
	}
	if err := c.send(ctx, http.MethodDelete, c.url("/projects/")+url.PathEscape(id), nil, "", &out); err != nil {
		return 0, err
	}
	return out.ImagesRemoved, nil
}

// Normalize maps raw project objects onto Project, accepting the legacy
// field names ProjectTitle, ProjectDescription, ImageURLs, gallery,
// image_urls, images, created_at, service_keys and services_titles.
// Records without an id get "fallback-{index}".
func Normalize(raw []map[string]interface{}) []Project {
	out := make([]Project, 0, len(raw))
	for i, r := range raw {
		out = append(out, normalizeOne(r, i))
	}
	return out
}

func normalizeOne(r map[string]interface{}, index int) Project {
	p := Project{
		ID:          str(r, "id"),
		Title:       str(r, "title", "ProjectTitle"),
		Description: str(r, "description", "ProjectDescription"),
		Details:     str(r, "details"),
		ImageURLs:   strs(r, "imageUrls", "ImageURLs", "gallery", "image_urls", "images"),
		ImagePaths:  strs(r, "imagePaths", "image_paths"),
		Services:    strs(r, "services", "service_keys", "services_titles"),
		CreatedAt:   str(r, "createdAt", "created_at"),
		UpdatedAt:   str(r, "updatedAt", "updated_at"),
	}
	if p.ID == "" {
		p.ID = fmt.Sprintf("fallback-%d", index)
	}
	return p
}

// str returns the first non-empty string under keys.
func str(r map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if s, ok := r[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// strs returns the first list under keys that decodes as strings.
func strs(r map[string]interface{}, keys ...string) []string {
	for _, k := range keys {
		list, ok := r[k].([]interface{})
		if !ok || len(list) == 0 {
			continue
		}
		out := make([]string, 0, len(list))
		for _, v := range list {
			if s, ok := v.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return []string{}
}
