// Package repository defines the metadata store for projects and services.
package repository

import (
	"context"
	"errors"

	"folio/pkg/models"
)

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrExists is returned when inserting a record whose id is taken.
	ErrExists = errors.New("record already exists")

	// ErrDatabase is returned when a database operation fails.
	ErrDatabase = errors.New("database error")
)

// Projects stores portfolio projects. Records are scoped by collection.
type Projects interface {
	CreateProject(ctx context.Context, p *models.Project) error
	GetProject(ctx context.Context, collection, id string) (*models.Project, error)
	ListProjects(ctx context.Context, collection string) ([]models.Project, error)
	UpdateProject(ctx context.Context, p *models.Project) error
	DeleteProject(ctx context.Context, collection, id string) error
}

// Services stores service catalog entries.
type Services interface {
	CreateService(ctx context.Context, s *models.Service) error
	GetService(ctx context.Context, collection, id string) (*models.Service, error)
	ListServices(ctx context.Context, collection string, filter models.ServiceFilter) ([]models.Service, error)
	UpdateService(ctx context.Context, s *models.Service) error
	DeleteService(ctx context.Context, collection, id string) error
}

// Repository is the full metadata store.
type Repository interface {
	Projects
	Services
	Ping(ctx context.Context) error
	Close() error
}

type noCacheKey struct{}

// NoCache marks ctx so that reads skip any record cache and go to the
// underlying store. Write flows read through it.
func NoCache(ctx context.Context) context.Context {
	return context.WithValue(ctx, noCacheKey{}, true)
}

// CacheBypassed reports whether ctx was marked with NoCache.
func CacheBypassed(ctx context.Context) bool {
	v, _ := ctx.Value(noCacheKey{}).(bool)
	return v
}
