package models

import "time"

// Project is a portfolio entry with its gallery.
type Project struct {
	ID         string     `json:"id"`
	Collection string     `json:"collection"`
	Title      string     `json:"title"`
	Details    string     `json:"details"`
	ImagePaths []string   `json:"image_paths"`
	Services   []string   `json:"services"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  *time.Time `json:"updated_at,omitempty"`
}

// ProjectView is the public JSON shape of a project. Image paths are
// resolved to URLs when the view is built.
type ProjectView struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	ImageURLs   []string   `json:"imageUrls"`
	ImagePaths  []string   `json:"imagePaths"`
	Services    []string   `json:"services"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   *time.Time `json:"updatedAt"`
}

// NewProjectView renders p, resolving every image path with resolve.
func NewProjectView(p *Project, resolve func(string) string) ProjectView {
	urls := make([]string, 0, len(p.ImagePaths))
	for _, path := range p.ImagePaths {
		if u := resolve(path); u != "" {
			urls = append(urls, u)
		}
	}

	return ProjectView{
		ID:          p.ID,
		Title:       p.Title,
		Description: p.Details,
		ImageURLs:   urls,
		ImagePaths:  nonNil(p.ImagePaths),
		Services:    nonNil(p.Services),
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
