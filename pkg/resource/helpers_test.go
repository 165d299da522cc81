package resource

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"folio/pkg/blob"
	"folio/pkg/models"
	"folio/pkg/repository"
)

var errInjected = errors.New("injected failure")

// memRepo is an in-memory repository with failure injection.
type memRepo struct {
	mu        sync.Mutex
	projects  map[string]models.Project
	services  map[string]models.Service
	failWrite bool
	failDel   bool
}

func newMemRepo() *memRepo {
	return &memRepo{projects: map[string]models.Project{}, services: map[string]models.Service{}}
}

func (m *memRepo) CreateProject(_ context.Context, p *models.Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrite {
		return errInjected
	}
	m.projects[p.ID] = *p
	return nil
}

func (m *memRepo) GetProject(_ context.Context, _, id string) (*models.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

func (m *memRepo) ListProjects(context.Context, string) ([]models.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Project{}
	for _, p := range m.projects {
		out = append(out, p)
	}
	return out, nil
}

func (m *memRepo) UpdateProject(_ context.Context, p *models.Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrite {
		return errInjected
	}
	m.projects[p.ID] = *p
	return nil
}

func (m *memRepo) DeleteProject(_ context.Context, _, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failDel {
		return errInjected
	}
	delete(m.projects, id)
	return nil
}

func (m *memRepo) CreateService(_ context.Context, s *models.Service) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrite {
		return errInjected
	}
	m.services[s.ID] = *s
	return nil
}

func (m *memRepo) GetService(_ context.Context, _, id string) (*models.Service, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.services[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &s, nil
}

func (m *memRepo) ListServices(context.Context, string, models.ServiceFilter) ([]models.Service, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Service{}
	for _, s := range m.services {
		out = append(out, s)
	}
	return out, nil
}

func (m *memRepo) UpdateService(_ context.Context, s *models.Service) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrite {
		return errInjected
	}
	m.services[s.ID] = *s
	return nil
}

func (m *memRepo) DeleteService(_ context.Context, _, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failDel {
		return errInjected
	}
	delete(m.services, id)
	return nil
}

// flakyBlobs fails Put for keys containing failOn and Delete when failDelete is set.
type flakyBlobs struct {
	*blob.MemoryStore
	failOn     string
	failDelete bool
}

func (f *flakyBlobs) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	if f.failOn != "" && strings.Contains(key, f.failOn) {
		return errInjected
	}
	return f.MemoryStore.Put(ctx, key, r, size, contentType)
}

func (f *flakyBlobs) Delete(ctx context.Context, keys ...string) error {
	if f.failDelete {
		return errInjected
	}
	return f.MemoryStore.Delete(ctx, keys...)
}

type opener struct {
	opened atomic.Int32
}

func (o *opener) upload(name, contentType, data string) Upload {
	return Upload{
		Filename:    name,
		ContentType: contentType,
		Size:        int64(len(data)),
		Open: func() (io.ReadCloser, error) {
			o.opened.Add(1)
			return io.NopCloser(strings.NewReader(data)), nil
		},
	}
}

var fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func testDeps(blobs blob.Store, id string) Deps {
	return Deps{
		Blobs:  blobs,
		Logger: zerolog.Nop(),
		Now:    func() time.Time { return fixedNow },
		NewID:  func() string { return id },
	}
}

func strPtr(s string) *string {
	return &s
}
