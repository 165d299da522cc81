package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"folio/pkg/models"
	"folio/pkg/repository"
)

type countingRepo struct {
	repository.Repository
	projects map[string]*models.Project
	services []models.Service
	gets     int
	lists    int
	closed   bool
}

func (c *countingRepo) GetProject(_ context.Context, _, id string) (*models.Project, error) {
	c.gets++
	p, ok := c.projects[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (c *countingRepo) ListProjects(context.Context, string) ([]models.Project, error) {
	c.lists++
	out := []models.Project{}
	for _, p := range c.projects {
		out = append(out, *p)
	}
	return out, nil
}

func (c *countingRepo) UpdateProject(_ context.Context, p *models.Project) error {
	cp := *p
	c.projects[p.ID] = &cp
	return nil
}

func (c *countingRepo) DeleteProject(_ context.Context, _, id string) error {
	delete(c.projects, id)
	return nil
}

func (c *countingRepo) ListServices(context.Context, string, models.ServiceFilter) ([]models.Service, error) {
	c.lists++
	return c.services, nil
}

func (c *countingRepo) DeleteService(context.Context, string, string) error {
	return nil
}

func (c *countingRepo) Close() error {
	c.closed = true
	return nil
}

// pausingRepo holds GetProject after the row was read until release closes.
type pausingRepo struct {
	*countingRepo
	read    chan struct{}
	release chan struct{}
	once    sync.Once
}

func (p *pausingRepo) GetProject(ctx context.Context, collection, id string) (*models.Project, error) {
	project, err := p.countingRepo.GetProject(ctx, collection, id)
	p.once.Do(func() { close(p.read) })
	<-p.release
	return project, err
}

type CacheTestSuite struct {
	suite.Suite
	next  *countingRepo
	cache *Repository
	ctx   context.Context
}

func (s *CacheTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.next = &countingRepo{projects: map[string]*models.Project{
		"p1": {ID: "p1", Collection: "main", Title: "Deck", ImagePaths: []string{"p1/a.jpg"}},
	}}
	s.cache = New(s.next, time.Minute).(*Repository)
}

func (s *CacheTestSuite) TearDownTest() {
	s.cache.Close()
}

func (s *CacheTestSuite) TestGetIsCached() {
	for i := 0; i < 3; i++ {
		p, err := s.cache.GetProject(s.ctx, "main", "p1")
		s.Require().NoError(err)
		s.Equal("Deck", p.Title)
	}
	s.Equal(1, s.next.gets)
}

func (s *CacheTestSuite) TestMissesAreNotCached() {
	_, err := s.cache.GetProject(s.ctx, "main", "nope")
	s.ErrorIs(err, repository.ErrNotFound)
	_, err = s.cache.GetProject(s.ctx, "main", "nope")
	s.ErrorIs(err, repository.ErrNotFound)
	s.Equal(2, s.next.gets)
}

func (s *CacheTestSuite) TestCallerMutationDoesNotLeak() {
	p, err := s.cache.GetProject(s.ctx, "main", "p1")
	s.Require().NoError(err)
	p.Title = "mutated"
	p.ImagePaths[0] = "mutated"

	again, err := s.cache.GetProject(s.ctx, "main", "p1")
	s.Require().NoError(err)
	s.Equal("Deck", again.Title)
	s.Equal([]string{"p1/a.jpg"}, again.ImagePaths)
}

func (s *CacheTestSuite) TestWriteInvalidates() {
	_, err := s.cache.GetProject(s.ctx, "main", "p1")
	s.Require().NoError(err)
	_, err = s.cache.ListProjects(s.ctx, "main")
	s.Require().NoError(err)
	s.Equal(2, s.cache.Len())

	s.Require().NoError(s.cache.UpdateProject(s.ctx, &models.Project{ID: "p1", Collection: "main", Title: "Renamed"}))
	s.Equal(0, s.cache.Len())

	p, err := s.cache.GetProject(s.ctx, "main", "p1")
	s.Require().NoError(err)
	s.Equal("Renamed", p.Title)
	s.Equal(2, s.next.gets)
}

func (s *CacheTestSuite) TestServiceListsKeyedByFilter() {
	s.next.services = []models.Service{{ID: "s1"}}
	bookable := true

	_, err := s.cache.ListServices(s.ctx, "main", models.ServiceFilter{})
	s.Require().NoError(err)
	_, err = s.cache.ListServices(s.ctx, "main", models.ServiceFilter{})
	s.Require().NoError(err)
	_, err = s.cache.ListServices(s.ctx, "main", models.ServiceFilter{Bookable: &bookable})
	s.Require().NoError(err)
	s.Equal(2, s.next.lists)

	s.Require().NoError(s.cache.DeleteService(s.ctx, "main", "s1"))
	s.Equal(0, s.cache.Len())
}

func (s *CacheTestSuite) TestReadRacingDeleteIsNotCached() {
	next := &pausingRepo{countingRepo: s.next, read: make(chan struct{}), release: make(chan struct{})}
	cached := New(next, time.Minute).(*Repository)
	defer cached.Close()

	done := make(chan error, 1)
	go func() {
		_, err := cached.GetProject(s.ctx, "main", "p1")
		done <- err
	}()

	<-next.read
	s.Require().NoError(cached.DeleteProject(s.ctx, "main", "p1"))
	close(next.release)
	s.Require().NoError(<-done)

	s.Equal(0, cached.Len())
	_, err := cached.GetProject(s.ctx, "main", "p1")
	s.ErrorIs(err, repository.ErrNotFound)
}

func (s *CacheTestSuite) TestNoCacheReadsThrough() {
	_, err := s.cache.GetProject(s.ctx, "main", "p1")
	s.Require().NoError(err)

	// Another process changed the row without touching this cache.
	s.next.projects["p1"] = &models.Project{ID: "p1", Collection: "main", Title: "Elsewhere"}

	stale, err := s.cache.GetProject(s.ctx, "main", "p1")
	s.Require().NoError(err)
	s.Equal("Deck", stale.Title)

	fresh, err := s.cache.GetProject(repository.NoCache(s.ctx), "main", "p1")
	s.Require().NoError(err)
	s.Equal("Elsewhere", fresh.Title)
	s.Equal(2, s.next.gets)

	delete(s.next.projects, "p1")
	_, err = s.cache.GetProject(repository.NoCache(s.ctx), "main", "p1")
	s.ErrorIs(err, repository.ErrNotFound)
}

func (s *CacheTestSuite) TestCloseClosesNext() {
	s.Require().NoError(s.cache.Close())
	s.True(s.next.closed)
}

func TestCacheTestSuite(t *testing.T) {
	suite.Run(t, new(CacheTestSuite))
}

func TestZeroTTLDisablesCache(t *testing.T) {
	next := &countingRepo{}
	if New(next, 0) != repository.Repository(next) {
		t.Fatal("expected the wrapped repository to be returned unchanged")
	}
}
