// Package cache is a read-through record cache in front of a repository.
// Entries are dropped on every write to the same collection. Invalidation is
// local to the process, so the cache only suits single-instance deployments
// or a short TTL.
package cache

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"folio/pkg/metrics"
	"folio/pkg/models"
	"folio/pkg/repository"
)

// Repository wraps a repository.Repository with a TTL cache.
type Repository struct {
	repository.Repository
	items *ttlcache.Cache[string, any]
	stop  sync.Once

	// gen is bumped by every invalidation. A read that started under an
	// older generation does not populate the cache.
	mu  sync.Mutex
	gen uint64
}

var _ repository.Repository = (*Repository)(nil)

// New wraps next. A non-positive ttl disables caching and returns next unchanged.
func New(next repository.Repository, ttl time.Duration) repository.Repository {
	if ttl <= 0 {
		return next
	}

	items := ttlcache.New[string, any](
		ttlcache.WithTTL[string, any](ttl),
		ttlcache.WithDisableTouchOnHit[string, any](),
	)
	go items.Start()

	return &Repository{Repository: next, items: items}
}

// Close stops the eviction loop and closes the wrapped repository once.
func (r *Repository) Close() error {
	var err error
	r.stop.Do(func() {
		r.items.Stop()
		r.items.DeleteAll()
		err = r.Repository.Close()
	})
	return err
}

func (r *Repository) GetProject(ctx context.Context, collection, id string) (*models.Project, error) {
	if repository.CacheBypassed(ctx) {
		return r.Repository.GetProject(ctx, collection, id)
	}
	gen := r.generation()

	key := recordKey("project", collection, id)
	if v, ok := r.lookup(key); ok {
		return cloneProject(v.(*models.Project)), nil
	}

	p, err := r.Repository.GetProject(ctx, collection, id)
	if err != nil {
		return nil, err
	}
	r.store(key, gen, cloneProject(p))
	return p, nil
}

func (r *Repository) ListProjects(ctx context.Context, collection string) ([]models.Project, error) {
	if repository.CacheBypassed(ctx) {
		return r.Repository.ListProjects(ctx, collection)
	}
	gen := r.generation()

	key := listKey("project", collection, "all")
	if v, ok := r.lookup(key); ok {
		return cloneProjects(v.([]models.Project)), nil
	}

	projects, err := r.Repository.ListProjects(ctx, collection)
	if err != nil {
		return nil, err
	}
	r.store(key, gen, cloneProjects(projects))
	return projects, nil
}

func (r *Repository) CreateProject(ctx context.Context, p *models.Project) error {
	defer r.invalidate("project", p.Collection, p.ID)
	return r.Repository.CreateProject(ctx, p)
}

func (r *Repository) UpdateProject(ctx context.Context, p *models.Project) error {
	defer r.invalidate("project", p.Collection, p.ID)
	return r.Repository.UpdateProject(ctx, p)
}

func (r *Repository) DeleteProject(ctx context.Context, collection, id string) error {
	defer r.invalidate("project", collection, id)
	return r.Repository.DeleteProject(ctx, collection, id)
}

func (r *Repository) GetService(ctx context.Context, collection, id string) (*models.Service, error) {
	if repository.CacheBypassed(ctx) {
		return r.Repository.GetService(ctx, collection, id)
	}
	gen := r.generation()

	key := recordKey("service", collection, id)
	if v, ok := r.lookup(key); ok {
		return cloneService(v.(*models.Service)), nil
	}

	svc, err := r.Repository.GetService(ctx, collection, id)
	if err != nil {
		return nil, err
	}
	r.store(key, gen, cloneService(svc))
	return svc, nil
}

func (r *Repository) ListServices(ctx context.Context, collection string, filter models.ServiceFilter) ([]models.Service, error) {
	if repository.CacheBypassed(ctx) {
		return r.Repository.ListServices(ctx, collection, filter)
	}
	gen := r.generation()

	key := listKey("service", collection, filterKey(filter))
	if v, ok := r.lookup(key); ok {
		return cloneServices(v.([]models.Service)), nil
	}

	services, err := r.Repository.ListServices(ctx, collection, filter)
	if err != nil {
		return nil, err
	}
	r.store(key, gen, cloneServices(services))
	return services, nil
}

func (r *Repository) CreateService(ctx context.Context, svc *models.Service) error {
	defer r.invalidate("service", svc.Collection, svc.ID)
	return r.Repository.CreateService(ctx, svc)
}

func (r *Repository) UpdateService(ctx context.Context, svc *models.Service) error {
	defer r.invalidate("service", svc.Collection, svc.ID)
	return r.Repository.UpdateService(ctx, svc)
}

func (r *Repository) DeleteService(ctx context.Context, collection, id string) error {
	defer r.invalidate("service", collection, id)
	return r.Repository.DeleteService(ctx, collection, id)
}

// Len reports the number of cached entries.
func (r *Repository) Len() int {
	return r.items.Len()
}

func (r *Repository) lookup(key string) (any, bool) {
	item := r.items.Get(key)
	if item == nil {
		metrics.CacheRequests.WithLabelValues("miss").Inc()
		return nil, false
	}
	metrics.CacheRequests.WithLabelValues("hit").Inc()
	return item.Value(), true
}

func (r *Repository) generation() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gen
}

// store caches v unless an invalidation happened since gen was read.
func (r *Repository) store(key string, gen uint64, v any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.gen != gen {
		return
	}
	r.items.Set(key, v, ttlcache.DefaultTTL)
}

func (r *Repository) invalidate(kind, collection, id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gen++

	r.items.Delete(recordKey(kind, collection, id))

	prefix := listKey(kind, collection, "")
	for _, key := range r.items.Keys() {
		if strings.HasPrefix(key, prefix) {
			r.items.Delete(key)
		}
	}
}

func recordKey(kind, collection, id string) string {
	return kind + "/" + collection + "/" + id
}

func listKey(kind, collection, variant string) string {
	return kind + "s/" + collection + "/" + variant
}

func filterKey(f models.ServiceFilter) string {
	return fmt.Sprintf("b=%s,min=%s,max=%s,l=%d,o=%d",
		boolKey(f.Bookable), int64Key(f.MinPrice), int64Key(f.MaxPrice), f.EffectiveLimit(), f.Offset)
}

func boolKey(v *bool) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprint(*v)
}

func int64Key(v *int64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprint(*v)
}

func cloneProject(p *models.Project) *models.Project {
	c := *p
	c.ImagePaths = append([]string{}, p.ImagePaths...)
	c.Services = append([]string{}, p.Services...)
	return &c
}

func cloneProjects(list []models.Project) []models.Project {
	out := make([]models.Project, len(list))
	for i := range list {
		out[i] = *cloneProject(&list[i])
	}
	return out
}

func cloneService(s *models.Service) *models.Service {
	c := *s
	c.ImagePaths = append([]string{}, s.ImagePaths...)
	return &c
}

func cloneServices(list []models.Service) []models.Service {
	out := make([]models.Service, len(list))
	for i := range list {
		out[i] = *cloneService(&list[i])
	}
	return out
}
